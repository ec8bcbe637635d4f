package klog

import "fmt"
import "io"
import "os"
import "strings"
import "sync"
import "sync/atomic"

import "github.com/NomadArchitect/microkernel/caller"

type Level_t int32

const (
	TRACE Level_t = iota
	DEBUG
	INFO
	WARN
	ERROR
)

var _names = [...]string{"[TRACE]", "[DEBUG]", "[INFO]", "[WARN]", "[ERROR]"}

var level = int32(INFO)

var outl sync.Mutex
var out io.Writer = os.Stdout

func Setlevel(l Level_t) {
	atomic.StoreInt32(&level, int32(l))
}

func Getlevel() Level_t {
	return Level_t(atomic.LoadInt32(&level))
}

// Setoutput redirects all log output and returns the previous writer.
func Setoutput(w io.Writer) io.Writer {
	outl.Lock()
	old := out
	out = w
	outl.Unlock()
	return old
}

func Parselevel(s string) (Level_t, error) {
	switch strings.ToLower(s) {
	case "trace":
		return TRACE, nil
	case "debug":
		return DEBUG, nil
	case "info", "":
		return INFO, nil
	case "warn":
		return WARN, nil
	case "error":
		return ERROR, nil
	}
	return INFO, fmt.Errorf("unknown log level %q", s)
}

// Log_t logs on behalf of one kernel module.
type Log_t struct {
	scope string
}

func Mk(module string) *Log_t {
	return &Log_t{scope: "[kernel][" + module + "]"}
}

// emit writes lines such as "[INFO][kernel][pm] Create(): created thread 3".
// it never fails and blocks on nothing but the output writer.
func (l *Log_t) emit(lvl Level_t, format string, args []interface{}) {
	if lvl < Getlevel() {
		return
	}
	fn := caller.Funcname(2)
	msg := fmt.Sprintf(format, args...)
	outl.Lock()
	fmt.Fprintf(out, "%s%s %s(): %s\n", _names[lvl], l.scope, fn, msg)
	outl.Unlock()
}

func (l *Log_t) Trace(format string, args ...interface{}) {
	l.emit(TRACE, format, args)
}

func (l *Log_t) Debug(format string, args ...interface{}) {
	l.emit(DEBUG, format, args)
}

func (l *Log_t) Info(format string, args ...interface{}) {
	l.emit(INFO, format, args)
}

func (l *Log_t) Warn(format string, args ...interface{}) {
	l.emit(WARN, format, args)
}

func (l *Log_t) Error(format string, args ...interface{}) {
	l.emit(ERROR, format, args)
}

// Kputs writes s unconditionally, without a prefix. it is the console path
// used by the write kernel call.
func Kputs(s string) {
	outl.Lock()
	io.WriteString(out, s)
	outl.Unlock()
}

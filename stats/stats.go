package stats

import "reflect"
import "sync/atomic"
import "strconv"
import "strings"
import "time"

// counting is off unless the kernel is booted with statistics enabled
var enabled int32

func Enable(on bool) {
	v := int32(0)
	if on {
		v = 1
	}
	atomic.StoreInt32(&enabled, v)
}

func Enabled() bool {
	return atomic.LoadInt32(&enabled) != 0
}

type Counter_t int64

// nanoseconds
type Cycles_t int64

func (c *Counter_t) Inc() {
	if Enabled() {
		atomic.AddInt64((*int64)(c), 1)
	}
}

func (c *Counter_t) Load() int64 {
	return atomic.LoadInt64((*int64)(c))
}

func Now() int64 {
	if Enabled() {
		return time.Now().UnixNano()
	}
	return 0
}

// Add charges the time since m, a value from Now().
func (c *Cycles_t) Add(m int64) {
	if Enabled() {
		atomic.AddInt64((*int64)(c), time.Now().UnixNano()-m)
	}
}

func (c *Cycles_t) Load() int64 {
	return atomic.LoadInt64((*int64)(c))
}

// Stats2String renders every Counter_t and Cycles_t field of the struct
// pointed to by st.
func Stats2String(st interface{}) string {
	if !Enabled() {
		return ""
	}
	v := reflect.ValueOf(st)
	if v.Kind() == reflect.Ptr {
		v = v.Elem()
	} else {
		c := reflect.New(v.Type()).Elem()
		c.Set(v)
		v = c
	}
	s := ""
	for i := 0; i < v.NumField(); i++ {
		t := v.Field(i).Type().String()
		if strings.HasSuffix(t, "Counter_t") {
			n := v.Field(i).Addr().Interface().(*Counter_t).Load()
			s += "\n\t#" + v.Type().Field(i).Name + ": " + strconv.FormatInt(n, 10)
		}
		if strings.HasSuffix(t, "Cycles_t") {
			n := v.Field(i).Addr().Interface().(*Cycles_t).Load()
			s += "\n\t#" + v.Type().Field(i).Name + ": " + strconv.FormatInt(n, 10)
		}
	}
	return s + "\n"
}

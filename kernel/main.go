package main

import "context"
import "errors"
import "flag"
import "fmt"
import "io"
import "os"
import "path/filepath"
import "runtime"
import "strings"
import "time"

import "golang.org/x/sync/errgroup"

import "github.com/NomadArchitect/microkernel/defs"
import "github.com/NomadArchitect/microkernel/elf"
import "github.com/NomadArchitect/microkernel/hal"
import "github.com/NomadArchitect/microkernel/kcall"
import "github.com/NomadArchitect/microkernel/klog"
import "github.com/NomadArchitect/microkernel/limits"
import "github.com/NomadArchitect/microkernel/lockorder"
import "github.com/NomadArchitect/microkernel/proc"
import "github.com/NomadArchitect/microkernel/schedtrace"
import "github.com/NomadArchitect/microkernel/stats"
import "github.com/NomadArchitect/microkernel/thread"
import "github.com/NomadArchitect/microkernel/vm"

var log = klog.Mk("main")

// the programs run when no image is given
var builtin = map[string]string{
	"init": `# first user process
print hello from init
getpid
void
threads 2
yield 3
clock
spawn child
exit 0
`,
	"child": `print hello from child
pinfo
threads 1
exit 7
`,
}

type kernel_t struct {
	cfg   *limits.Syslimit_t
	cores *hal.Cores_t
	tt    *thread.Threadtable_t
	pt    *proc.Ptable_t
	k     *kcall.Kcall_t
	root  *vm.Vm_t
	t0    *thread.Thread_t
	trace *schedtrace.Trace_t
	boot  time.Time
}

func mkkernel(cfg *limits.Syslimit_t, trace bool, out io.Writer) *kernel_t {
	kn := &kernel_t{cfg: cfg, boot: time.Now()}
	kn.cores = hal.Mkcores(cfg.Cores)
	if trace {
		kn.trace = schedtrace.Mktrace(cfg.Cores)
		kn.trace.Attach(kn.cores)
	}
	kn.tt = thread.Mkthreadtable(cfg, kn.cores, thread.Mksched(cfg, kn.cores))
	kn.pt = proc.Mkptable(cfg, kn.tt, vm.Mkfactory(cfg.Procs), elf.Elf32_t{})
	kn.root = vm.Mkroot()
	kn.t0 = kn.tt.Init(kn.root)
	kn.pt.Init(kn.root)
	kn.k = kcall.Mkkcall(kn.pt, kn.tt, out)
	kn.k.Register(defs.NR_clock, kn.sys_clock)
	kn.k.Register(defs.NR_stats, kn.sys_stats)
	return kn
}

// clock() returns milliseconds since boot.
func (kn *kernel_t) sys_clock(sb *kcall.Scoreboard_t) int {
	return int(time.Since(kn.boot).Milliseconds())
}

// stats() dumps the kernel counters to the log.
func (kn *kernel_t) sys_stats(sb *kcall.Scoreboard_t) int {
	if !stats.Enabled() {
		return int(-defs.ENOSYS)
	}
	log.Info("stats requested by pid %v:%v", sb.Pid, kn.statstr())
	return 0
}

func (kn *kernel_t) statstr() string {
	return "\nthreads:" + stats.Stats2String(&kn.tt.Stats) +
		"kcalls:" + stats.Stats2String(&kn.k.Stats)
}

// ticker drives preemption until ctx is done.
func (kn *kernel_t) ticker(ctx context.Context, period time.Duration) error {
	tk := time.NewTicker(period)
	defer tk.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-tk.C:
			kn.tt.Preempt_tick()
		}
	}
}

// wait returns once only the kernel process is left or ctx is done.
func (kn *kernel_t) wait(ctx context.Context) {
	for kn.pt.Count() > 1 {
		select {
		case <-ctx.Done():
			return
		case <-time.After(5 * time.Millisecond):
		}
	}
}

func (kn *kernel_t) ps() {
	kn.pt.Iter(func(pid defs.Pid_t, nthreads int, exec int64) bool {
		log.Info("pid %v: %v threads, %v us", pid, nthreads, exec/1000)
		return true
	})
}

func loadimages(args []string) (map[string][]uint8, []string, error) {
	images := make(map[string][]uint8)
	if len(args) == 0 {
		for name, src := range builtin {
			img, err := Mkscript(src)
			if err != nil {
				return nil, nil, err
			}
			images[name] = img
		}
		return images, []string{"init"}, nil
	}
	var order []string
	for _, path := range args {
		buf, err := os.ReadFile(path)
		if err != nil {
			return nil, nil, err
		}
		name := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
		if !strings.HasPrefix(string(buf), "\x7fELF") {
			if buf, err = Mkscript(string(buf)); err != nil {
				return nil, nil, fmt.Errorf("%v: %w", path, err)
			}
		}
		images[name] = buf
		order = append(order, name)
	}
	// the first image is init; the rest may be spawned by name
	return images, order[:1], nil
}

func main() {
	cpath := flag.String("config", "", "JSON file of kernel limits")
	lvl := flag.String("loglevel", "", "override the configured log level")
	policy := flag.String("sched", "", "override the scheduling policy")
	tpath := flag.String("trace", "", "write a PNG timeline of core switches here")
	dostats := flag.Bool("stats", false, "collect and print kernel counters")
	lockcheck := flag.Bool("lockcheck", false, "check lock acquisition order")
	selftest := flag.Bool("selftest", false, "run kernel self tests before init")
	tick := flag.Duration("tick", time.Millisecond, "preemption timer period")
	timeout := flag.Duration("timeout", 0, "stop after this long")
	flag.Parse()

	if err := run(*cpath, *lvl, *policy, *tpath, *dostats, *lockcheck,
		*selftest, *tick, *timeout, flag.Args()); err != nil {
		fmt.Fprintf(os.Stderr, "kernel: %v\n", err)
		os.Exit(1)
	}
}

func run(cpath, lvl, policy, tpath string, dostats, lockcheck, selftest bool,
	tick, timeout time.Duration, args []string) error {
	cfg := limits.Syslimit
	if cpath != "" {
		c, err := limits.Load(cpath)
		if err != nil {
			return err
		}
		cfg = c
	}
	if lvl != "" {
		cfg.Loglevel = lvl
	}
	if policy != "" {
		cfg.Policy = policy
	}
	if err := cfg.Validate(); err != nil {
		return err
	}
	limits.Syslimit = cfg
	l, err := klog.Parselevel(cfg.Loglevel)
	if err != nil {
		return err
	}
	klog.Setlevel(l)
	stats.Enable(dostats)
	lockorder.Enable(lockcheck)

	images, initial, err := loadimages(args)
	if err != nil {
		return err
	}

	fmt.Printf("              microkernel\n")
	fmt.Printf("          go version: %v\n", runtime.Version())
	fmt.Printf("  %v cores, %v scheduling\n", cfg.Cores, cfg.Policy)

	kn := mkkernel(cfg, tpath != "", os.Stdout)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if timeout > 0 {
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return kn.k.Handler(gctx)
	})
	g.Go(func() error {
		return kn.ticker(gctx, tick)
	})
	stop, halt := context.WithCancel(gctx)
	defer halt()
	kn.k.Onshutdown = func() {
		log.Info("shutdown requested")
		halt()
	}

	if selftest {
		if err := kn.selftest(); err != nil {
			halt()
			cancel()
			g.Wait()
			return fmt.Errorf("self test: %w", err)
		}
	}

	if cfg.Loglevel == "debug" || cfg.Loglevel == "trace" {
		kn.k.Badcalls.Enabled = true
	}
	u := mkuser(kn.k, images)
	kn.pt.Userland = u.run
	for _, name := range initial {
		pid, err := kn.pt.Create(images[name])
		if err != 0 {
			return fmt.Errorf("cannot start %v: %v", name, err)
		}
		log.Info("started %v as pid %v", name, pid)
	}

	kn.wait(stop)
	kn.ps()
	cancel()
	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) &&
		!errors.Is(err, context.DeadlineExceeded) {
		return err
	}

	if dostats {
		fmt.Printf("%v", kn.statstr())
	}
	if kn.trace != nil {
		f, err := os.Create(tpath)
		if err != nil {
			return err
		}
		if err := kn.trace.Render(f); err != nil {
			f.Close()
			return err
		}
		if err := f.Close(); err != nil {
			return err
		}
	}
	if lockcheck {
		cyc := lockorder.Kgraph.Cycles()
		for _, c := range cyc {
			log.Error("lock order cycle: %v", strings.Join(c, " -> "))
		}
		if len(cyc) != 0 {
			return fmt.Errorf("%v lock order cycles", len(cyc))
		}
	}
	return nil
}

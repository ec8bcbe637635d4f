package proc

import "github.com/NomadArchitect/microkernel/defs"
import "github.com/NomadArchitect/microkernel/ksync"
import "github.com/NomadArchitect/microkernel/limits"

type semslot_t struct {
	key  uint
	used bool
	// units inside Down; a semaphore in use cannot be deleted
	users int
	sem   *ksync.Sem_t
}

// Semtable_t holds the kernel semaphores that user threads reach by id. a
// semaphore is created by the first Get of its key and lives until Delete.
type Semtable_t struct {
	lock  ksync.Spinlock_t
	slots []semslot_t
}

func Mksemtable(cfg *limits.Syslimit_t) *Semtable_t {
	if cfg.Sems <= 0 {
		panic("no semaphore slots")
	}
	st := &Semtable_t{}
	st.lock.Class = "semtable"
	st.slots = make([]semslot_t, cfg.Sems)
	return st
}

// Get returns the id of the semaphore named key, creating it with a count
// of zero if needed.
func (st *Semtable_t) Get(key uint) (int, defs.Err_t) {
	st.lock.Lock()
	defer st.lock.Unlock()
	free := -1
	for i := range st.slots {
		s := &st.slots[i]
		if s.used && s.key == key {
			return i, 0
		}
		if !s.used && free < 0 {
			free = i
		}
	}
	if free < 0 {
		return -1, -defs.EAGAIN
	}
	st.slots[free] = semslot_t{key: key, used: true, sem: ksync.Mksem(0)}
	log.Trace("semaphore %v for key %v", free, key)
	return free, 0
}

func (st *Semtable_t) _get(id int) *semslot_t {
	if id < 0 || id >= len(st.slots) || !st.slots[id].used {
		return nil
	}
	return &st.slots[id]
}

func (st *Semtable_t) _sem(id int) (*ksync.Sem_t, defs.Err_t) {
	st.lock.Lock()
	defer st.lock.Unlock()
	s := st._get(id)
	if s == nil {
		return nil, -defs.EINVAL
	}
	return s.sem, 0
}

func (st *Semtable_t) Up(id int) defs.Err_t {
	s, err := st._sem(id)
	if err != 0 {
		return err
	}
	s.Up()
	return 0
}

// Down fails with -EINTR if u is killed while it waits.
func (st *Semtable_t) Down(u ksync.Unit_i, id int) defs.Err_t {
	st.lock.Lock()
	s := st._get(id)
	if s == nil {
		st.lock.Unlock()
		return -defs.EINVAL
	}
	s.users++
	sem := s.sem
	st.lock.Unlock()

	err := sem.Down(u)

	st.lock.Lock()
	s.users--
	st.lock.Unlock()
	return err
}

// Trydown fails with -EAGAIN instead of waiting.
func (st *Semtable_t) Trydown(id int) defs.Err_t {
	s, err := st._sem(id)
	if err != 0 {
		return err
	}
	return s.Trydown()
}

func (st *Semtable_t) Getvalue(id int) (int, defs.Err_t) {
	s, err := st._sem(id)
	if err != 0 {
		return 0, err
	}
	return s.Count(), 0
}

func (st *Semtable_t) Setvalue(id, n int) defs.Err_t {
	s, err := st._sem(id)
	if err != 0 {
		return err
	}
	return s.Set(n)
}

// Delete frees semaphore id. it fails with -EBUSY while a unit waits on
// it.
func (st *Semtable_t) Delete(id int) defs.Err_t {
	st.lock.Lock()
	defer st.lock.Unlock()
	s := st._get(id)
	if s == nil {
		return -defs.EINVAL
	}
	if s.users > 0 {
		return -defs.EBUSY
	}
	*s = semslot_t{}
	return 0
}

func (st *Semtable_t) Count() int {
	st.lock.Lock()
	defer st.lock.Unlock()
	n := 0
	for i := range st.slots {
		if st.slots[i].used {
			n++
		}
	}
	return n
}

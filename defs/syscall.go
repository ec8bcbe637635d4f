package defs

// kernel call numbers. calls below NR_last_kcall have an inline handler;
// anything else is handed to the out-of-line handler.
const (
	NR_void0         = 0
	NR_void1         = 1
	NR_void2         = 2
	NR_void3         = 3
	NR_void4         = 4
	NR_void5         = 5
	NR_shutdown      = 6
	NR_write         = 7
	NR_spawn         = 8
	NR_pinfo         = 9
	NR_thread_get_id = 10
	NR_thread_create = 11
	NR_thread_exit   = 12
	NR_thread_join   = 13
	NR_thread_yield  = 14
	NR_sleep         = 15
	NR_wakeup        = 16
	NR_getpid        = 17
	NR_semget        = 18
	NR_semop         = 19
	NR_semctl        = 20
	NR_thread_detach = 21
	NR_last_kcall    = 22
)

// NR_semop operations
const (
	SEM_UP      = 0
	SEM_DOWN    = 1
	SEM_TRYLOCK = 2
)

// NR_semctl commands
const (
	SEM_GETVALUE = 0
	SEM_SETVALUE = 1
	SEM_DELETE   = 2
)

// served out of line
const (
	NR_clock = 40
	NR_stats = 42
)

// largest buffer NR_write accepts
const WRITE_BUFFER_SIZE = 128

package defs

const (
	EPERM   Err_t = 1
	ENOENT  Err_t = 2
	ESRCH   Err_t = 3
	EINTR   Err_t = 4
	ECHILD  Err_t = 10
	EAGAIN  Err_t = 11
	ENOMEM  Err_t = 12
	EFAULT  Err_t = 14
	EBUSY   Err_t = 16
	EINVAL  Err_t = 22
	ENOSYS  Err_t = 38
)

type Err_t int

func (e Err_t) Error() string {
	n := e
	if n < 0 {
		n = -n
	}
	switch n {
	case 0:
		return "success"
	case EPERM:
		return "operation not permitted"
	case ENOENT:
		return "no such entry"
	case ESRCH:
		return "no such thread"
	case EINTR:
		return "interrupted"
	case ECHILD:
		return "no child"
	case EAGAIN:
		return "resource temporarily unavailable"
	case ENOMEM:
		return "out of memory"
	case EFAULT:
		return "bad address"
	case EBUSY:
		return "busy"
	case EINVAL:
		return "invalid argument"
	case ENOSYS:
		return "no such kernel call"
	}
	return "unknown error"
}

package sparse

import (
	"fmt"
	"syscall"

	errors "golang.org/x/xerrors"
)

// Kind classifies an IOError.
type Kind int

const (
	Unknown Kind = iota
	NotFound
	PermissionDenied
	InvalidArgument
	NoSuchRegion
	Interrupted
)

func (k Kind) String() string {
	switch k {
	case NotFound:
		return "not found"
	case PermissionDenied:
		return "permission denied"
	case InvalidArgument:
		return "invalid argument"
	case NoSuchRegion:
		return "no such region"
	case Interrupted:
		return "interrupted"
	default:
		return "unknown"
	}
}

// IOError is the only error type the accessor returns.
type IOError struct {
	Op   string
	Path string
	Kind Kind
	Err  error
}

func newError(op, path string, err error) *IOError {
	return &IOError{
		Op:   op,
		Path: path,
		Kind: classify(err),
		Err:  err,
	}
}

func (e *IOError) Error() string {
	return fmt.Sprint(e)
}

func (e *IOError) Format(s fmt.State, v rune) {
	errors.FormatError(e, s, v)
}

func (e *IOError) FormatError(p errors.Printer) error {
	p.Printf("%s %s: %s", e.Op, e.Path, e.Kind)

	return e.Err
}

func (e *IOError) Unwrap() error {
	return e.Err
}

// Is matches another IOError by Kind, so errors.Is(err, &IOError{Kind: k})
// works without caring about Op or Path.
func (e *IOError) Is(target error) bool {
	t, ok := target.(*IOError)
	if !ok {
		return false
	}

	return t.Op == "" && t.Path == "" && t.Err == nil && t.Kind == e.Kind
}

// KindOf returns the Kind of the first IOError in err's chain, or Unknown.
func KindOf(err error) Kind {
	var ioErr *IOError
	if errors.As(err, &ioErr) {
		return ioErr.Kind
	}

	return Unknown
}

func classify(err error) Kind {
	var errno syscall.Errno
	if !errors.As(err, &errno) {
		return Unknown
	}

	switch errno {
	case syscall.ENOENT, syscall.ENOTDIR:
		return NotFound

	case syscall.EACCES, syscall.EPERM, syscall.EBADF, syscall.EROFS:
		return PermissionDenied

	case syscall.EINVAL, syscall.ESPIPE, syscall.EOVERFLOW, syscall.EISDIR, syscall.EFBIG:
		return InvalidArgument

	case syscall.ENXIO:
		return NoSuchRegion

	case syscall.EINTR:
		return Interrupted

	default:
		return Unknown
	}
}

// Package fdesc defines the descriptor contract every storage substrate
// implements. A Handle is one descriptor; the offset and status flags it
// reads and moves belong to the open file description behind it, which Dup
// shares.
//
// Errors are reported as syscall.Errno values (wrapped or bare) so callers
// can classify them the same way for every substrate.
package fdesc

// Handle is a descriptor over an open file description.
//
// Read and Write use and advance the shared offset. Read returns 0, nil at or
// past end-of-file. Write on a description opened with O_APPEND positions at
// end-of-file and writes as one atomic step.
//
// ReadAt and WriteAt are positional and leave the shared offset alone.
//
// Seek accepts SEEK_SET, SEEK_CUR and SEEK_END. Probe accepts SEEK_DATA and
// SEEK_HOLE and, unlike lseek(2), never moves the shared offset.
type Handle interface {
	Read(p []byte) (int, error)
	Write(p []byte) (int, error)
	ReadAt(p []byte, off int64) (int, error)
	WriteAt(p []byte, off int64) (int, error)
	Seek(offset int64, whence int) (int64, error)
	Probe(offset int64, whence int) (int64, error)
	Size() (int64, error)

	// Dup returns a new descriptor referring to the same open file
	// description. The copy inherits the close-on-exec state of h.
	Dup() (Handle, error)

	// Inheritable reports whether the descriptor survives exec.
	Inheritable() (bool, error)
	// SetCloseOnExec marks the descriptor as not inheritable.
	SetCloseOnExec() error

	Close() error
}

// Resolver opens names relative to a fixed root.
//
// flags carries O_RDONLY/O_RDWR and optionally O_APPEND. O_CREAT and
// O_TRUNC are not honored.
type Resolver interface {
	Resolve(name string, flags int, inheritable bool) (Handle, error)
}

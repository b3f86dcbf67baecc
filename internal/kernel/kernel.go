// Package kernel opens files through the operating system.
//
// Names resolve against a directory descriptor with openat(2), never against
// the process working directory. Offsets live in the kernel's open file
// description, so a Dup of a File, or the same descriptor inherited by a
// child process, moves one shared offset.
package kernel

import (
	"github.com/Sherlock-Holo/sparsefd/internal/fdesc"
	"golang.org/x/sys/unix"
	errors "golang.org/x/xerrors"
)

var (
	_ fdesc.Resolver = new(Root)
	_ fdesc.Handle   = new(File)
)

// Root is a directory that names are resolved against.
type Root struct {
	fd   int
	path string
}

// OpenRoot opens dir as a resolution root.
func OpenRoot(dir string) (*Root, error) {
	fd, err := unix.Open(dir, unix.O_RDONLY|unix.O_DIRECTORY|unix.O_CLOEXEC, 0)
	if err != nil {
		return nil, errors.Errorf("open root %s failed: %w", dir, err)
	}

	return &Root{fd: fd, path: dir}, nil
}

func (r *Root) Path() string {
	return r.path
}

func (r *Root) Close() error {
	return unix.Close(r.fd)
}

// Resolve opens name relative to r.
//
// Besides the descriptor handed to the caller, a private read-only
// descriptor is opened for SEEK_DATA/SEEK_HOLE probing, so region queries
// never disturb the shared offset.
func (r *Root) Resolve(name string, flags int, inheritable bool) (fdesc.Handle, error) {
	flags &= unix.O_ACCMODE | unix.O_APPEND
	if !inheritable {
		flags |= unix.O_CLOEXEC
	}

	fd, err := unix.Openat(r.fd, name, flags, 0)
	if err != nil {
		return nil, errors.Errorf("open %s failed: %w", name, err)
	}

	probe, err := unix.Openat(r.fd, name, unix.O_RDONLY|unix.O_CLOEXEC, 0)
	if err != nil {
		_ = unix.Close(fd)
		return nil, errors.Errorf("open %s for probing failed: %w", name, err)
	}

	same, err := sameFile(fd, probe)
	if err == nil && !same {
		// name was replaced between the two opens
		err = unix.ESTALE
	}
	if err != nil {
		_ = unix.Close(fd)
		_ = unix.Close(probe)
		return nil, errors.Errorf("open %s failed: %w", name, err)
	}

	return &File{fd: fd, probe: probe}, nil
}

func sameFile(a, b int) (bool, error) {
	var sa, sb unix.Stat_t
	if err := unix.Fstat(a, &sa); err != nil {
		return false, err
	}
	if err := unix.Fstat(b, &sb); err != nil {
		return false, err
	}

	return sa.Dev == sb.Dev && sa.Ino == sb.Ino, nil
}

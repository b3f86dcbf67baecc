package kernel

import (
	"github.com/Sherlock-Holo/sparsefd/internal/fdesc"
	"golang.org/x/sys/unix"
)

// File is a kernel descriptor plus a private descriptor for region probes.
type File struct {
	fd    int
	probe int
}

// Fd returns the descriptor handed to the caller.
func (f *File) Fd() int {
	return f.fd
}

func (f *File) Read(p []byte) (int, error) {
	n, err := unix.Read(f.fd, p)
	if err != nil {
		return 0, err
	}

	return n, nil
}

func (f *File) Write(p []byte) (int, error) {
	n, err := unix.Write(f.fd, p)
	if err != nil {
		return 0, err
	}

	return n, nil
}

func (f *File) ReadAt(p []byte, off int64) (int, error) {
	n, err := unix.Pread(f.fd, p, off)
	if err != nil {
		return 0, err
	}

	return n, nil
}

func (f *File) WriteAt(p []byte, off int64) (int, error) {
	n, err := unix.Pwrite(f.fd, p, off)
	if err != nil {
		return 0, err
	}

	return n, nil
}

func (f *File) Seek(offset int64, whence int) (int64, error) {
	switch whence {
	case unix.SEEK_SET, unix.SEEK_CUR, unix.SEEK_END:
		return unix.Seek(f.fd, offset, whence)

	default:
		return 0, unix.EINVAL
	}
}

func (f *File) Probe(offset int64, whence int) (int64, error) {
	switch whence {
	case unix.SEEK_DATA, unix.SEEK_HOLE:
		return unix.Seek(f.probe, offset, whence)

	default:
		return 0, unix.EINVAL
	}
}

func (f *File) Size() (int64, error) {
	var stat unix.Stat_t
	if err := unix.Fstat(f.fd, &stat); err != nil {
		return 0, err
	}

	return stat.Size, nil
}

// Allocated returns the bytes of storage the file occupies.
func (f *File) Allocated() (int64, error) {
	var stat unix.Stat_t
	if err := unix.Fstat(f.fd, &stat); err != nil {
		return 0, err
	}

	// st_blocks is always in 512-byte units, whatever st_blksize says
	return stat.Blocks * 512, nil
}

func (f *File) Dup() (fdesc.Handle, error) {
	inheritable, err := f.Inheritable()
	if err != nil {
		return nil, err
	}

	cmd := unix.F_DUPFD_CLOEXEC
	if inheritable {
		cmd = unix.F_DUPFD
	}

	fd, err := unix.FcntlInt(uintptr(f.fd), cmd, 0)
	if err != nil {
		return nil, err
	}

	probe, err := unix.FcntlInt(uintptr(f.probe), unix.F_DUPFD_CLOEXEC, 0)
	if err != nil {
		_ = unix.Close(fd)
		return nil, err
	}

	return &File{fd: fd, probe: probe}, nil
}

func (f *File) Inheritable() (bool, error) {
	flags, err := unix.FcntlInt(uintptr(f.fd), unix.F_GETFD, 0)
	if err != nil {
		return false, err
	}

	return flags&unix.FD_CLOEXEC == 0, nil
}

func (f *File) SetCloseOnExec() error {
	flags, err := unix.FcntlInt(uintptr(f.fd), unix.F_GETFD, 0)
	if err != nil {
		return err
	}

	_, err = unix.FcntlInt(uintptr(f.fd), unix.F_SETFD, flags|unix.FD_CLOEXEC)

	return err
}

func (f *File) Close() error {
	err := unix.Close(f.fd)
	if probeErr := unix.Close(f.probe); err == nil {
		err = probeErr
	}

	return err
}

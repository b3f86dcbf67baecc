package memfs

import (
	"io"
	"sync"
	"syscall"
	"time"

	"github.com/Sherlock-Holo/sparsefd/internal/fdesc"
	"golang.org/x/sys/unix"
)

var _ fdesc.Handle = new(Handle)

// description is an open file description. Every Handle duplicated from one
// Resolve call points at the same description and moves the same offset.
type description struct {
	id       uint64
	file     *File
	mutex    sync.Mutex
	offset   int64
	readable bool
	writable bool
	append   bool
	refs     int
}

// Handle is an in-process descriptor. It must not be used from more than one
// goroutine at a time; separate Handles may share a description freely.
type Handle struct {
	fsys    *FS
	desc    *description
	cloexec bool
	closed  bool
}

// ID returns the identity of the open file description behind h.
func (h *Handle) ID() uint64 {
	return h.desc.id
}

func (h *Handle) Read(p []byte) (int, error) {
	if h.closed || !h.desc.readable {
		return 0, syscall.EBADF
	}

	desc := h.desc
	desc.mutex.Lock()
	defer desc.mutex.Unlock()

	n, err := desc.file.readAt(p, desc.offset)
	if err != nil {
		return n, err
	}
	desc.offset += int64(n)

	return n, nil
}

func (h *Handle) Write(p []byte) (int, error) {
	if h.closed || !h.desc.writable {
		return 0, syscall.EBADF
	}

	desc := h.desc
	desc.mutex.Lock()
	defer desc.mutex.Unlock()

	var (
		off int64
		n   int
		err error
	)
	if desc.append {
		off, n, err = desc.file.appendData(p)
	} else {
		off = desc.offset
		n, err = desc.file.writeAt(p, off)
	}
	if err != nil {
		return n, err
	}
	desc.offset = off + int64(n)

	return n, nil
}

func (h *Handle) ReadAt(p []byte, off int64) (int, error) {
	if h.closed || !h.desc.readable {
		return 0, syscall.EBADF
	}

	return h.desc.file.readAt(p, off)
}

func (h *Handle) WriteAt(p []byte, off int64) (int, error) {
	if h.closed || !h.desc.writable {
		return 0, syscall.EBADF
	}

	return h.desc.file.writeAt(p, off)
}

func (h *Handle) Seek(offset int64, whence int) (int64, error) {
	if h.closed {
		return 0, syscall.EBADF
	}

	desc := h.desc
	desc.mutex.Lock()
	defer desc.mutex.Unlock()

	var base int64
	switch whence {
	case io.SeekStart:

	case io.SeekCurrent:
		base = desc.offset

	case io.SeekEnd:
		base = desc.file.size()

	default:
		return 0, syscall.EINVAL
	}

	target := base + offset
	if target < 0 {
		return 0, syscall.EINVAL
	}
	desc.offset = target

	return target, nil
}

func (h *Handle) Probe(offset int64, whence int) (int64, error) {
	if h.closed {
		return 0, syscall.EBADF
	}

	return h.desc.file.seekRegion(offset, whence)
}

func (h *Handle) Size() (int64, error) {
	if h.closed {
		return 0, syscall.EBADF
	}

	return h.desc.file.size(), nil
}

func (h *Handle) Dup() (fdesc.Handle, error) {
	if h.closed {
		return nil, syscall.EBADF
	}

	h.fsys.ref(h.desc)

	return &Handle{
		fsys:    h.fsys,
		desc:    h.desc,
		cloexec: h.cloexec,
	}, nil
}

func (h *Handle) Inheritable() (bool, error) {
	if h.closed {
		return false, syscall.EBADF
	}

	return !h.cloexec, nil
}

func (h *Handle) SetCloseOnExec() error {
	if h.closed {
		return syscall.EBADF
	}

	h.cloexec = true

	return nil
}

func (h *Handle) Close() error {
	if h.closed {
		return syscall.EBADF
	}

	h.closed = true
	h.fsys.release(h.desc)

	return nil
}

func (f *File) readAt(p []byte, off int64) (int, error) {
	f.mutex.RLock()
	defer f.mutex.RUnlock()

	n, err := f.content.ReadAt(p, off)
	if err == io.EOF {
		err = nil
	}

	return n, err
}

func (f *File) writeAt(p []byte, off int64) (int, error) {
	f.mutex.Lock()
	defer f.mutex.Unlock()

	n, err := f.content.WriteAt(p, off)
	if n > 0 {
		f.touch()
	}

	return n, err
}

// appendData locates end-of-file and writes there under one lock.
func (f *File) appendData(p []byte) (int64, int, error) {
	f.mutex.Lock()
	defer f.mutex.Unlock()

	off, err := f.content.Append(p)
	if err != nil {
		return off, 0, err
	}
	f.touch()

	return off, len(p), nil
}

func (f *File) size() int64 {
	f.mutex.RLock()
	defer f.mutex.RUnlock()

	return f.content.Size()
}

func (f *File) seekRegion(off int64, whence int) (int64, error) {
	f.mutex.RLock()
	defer f.mutex.RUnlock()

	switch whence {
	case unix.SEEK_DATA:
		return f.content.SeekData(off)

	case unix.SEEK_HOLE:
		return f.content.SeekHole(off)

	default:
		return 0, syscall.EINVAL
	}
}

// touch must be called with the write lock held.
func (f *File) touch() {
	now := time.Now()
	f.modifyTime = now
	f.changeTime = now
}

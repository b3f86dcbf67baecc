// Package sparse is a sparse-file-aware positional I/O accessor.
//
// An Accessor owns one Handle. The offset it reads and moves belongs to the
// open file description behind that handle, not to the Accessor: accessors
// created with Dup, or handles inherited by another process, see every seek,
// read and write the others make. Open the file again for an independent
// cursor.
//
// Holes read back as zeros. Regions are derived from the substrate on every
// query and never cached.
//
// FindRegion(x, NextHole) treats end-of-file as the start of an implicit
// trailing hole, so it succeeds for every x before end-of-file. At or past
// end-of-file both region kinds fail with NoSuchRegion.
package sparse

import (
	"syscall"

	log "github.com/sirupsen/logrus"
)

// Accessor is not safe for concurrent use. Give each goroutine its own
// Accessor, from Dup or a separate Open.
type Accessor struct {
	name   string
	mode   AccessMode
	handle Handle
	log    log.FieldLogger
	closed bool
}

// Open opens name through r. The offset starts at 0. Open never creates
// files.
func Open(r Resolver, name string, mode AccessMode, opts ...Option) (*Accessor, error) {
	o := options{logger: log.StandardLogger()}
	for _, opt := range opts {
		opt(&o)
	}

	flags, ok := mode.flags()
	if !ok {
		return nil, newError("open", name, syscall.EINVAL)
	}

	var handle Handle
	err := retry(func() (err error) {
		handle, err = r.Resolve(name, flags, o.inheritable)
		return err
	})
	if err != nil {
		return nil, newError("open", name, err)
	}

	a := &Accessor{
		name:   name,
		mode:   mode,
		handle: handle,
		log: o.logger.WithFields(log.Fields{
			"file": name,
			"mode": mode,
		}),
	}

	a.log.Debugf("opened, inheritable %t", o.inheritable)

	return a, nil
}

func (a *Accessor) Name() string {
	return a.name
}

func (a *Accessor) Mode() AccessMode {
	return a.mode
}

// Dup returns an Accessor with a new handle on the same open file
// description. The two share one offset.
func (a *Accessor) Dup() (*Accessor, error) {
	if a.closed {
		return nil, newError("dup", a.name, syscall.EBADF)
	}

	var handle Handle
	err := retry(func() (err error) {
		handle, err = a.handle.Dup()
		return err
	})
	if err != nil {
		return nil, newError("dup", a.name, err)
	}

	return &Accessor{
		name:   a.name,
		mode:   a.mode,
		handle: handle,
		log:    a.log,
	}, nil
}

// Seek moves the shared offset without doing I/O and returns the new
// absolute offset. With Current, target is a signed delta.
func (a *Accessor) Seek(target int64, whence Whence) (int64, error) {
	if a.closed {
		return 0, newError("seek", a.name, syscall.EBADF)
	}

	w, ok := whence.seek()
	if !ok {
		return 0, newError("seek", a.name, syscall.EINVAL)
	}

	var off int64
	err := retry(func() (err error) {
		off, err = a.handle.Seek(target, w)
		return err
	})
	if err != nil {
		return 0, newError("seek", a.name, err)
	}

	return off, nil
}

// Offset returns the shared offset.
func (a *Accessor) Offset() (int64, error) {
	return a.Seek(0, Current)
}

// Size returns the current file size.
func (a *Accessor) Size() (int64, error) {
	if a.closed {
		return 0, newError("size", a.name, syscall.EBADF)
	}

	var size int64
	err := retry(func() (err error) {
		size, err = a.handle.Size()
		return err
	})
	if err != nil {
		return 0, newError("size", a.name, err)
	}

	return size, nil
}

// Read reads up to length bytes at the shared offset and advances it by the
// number read. At or past end-of-file it returns an empty slice and no error.
func (a *Accessor) Read(length int) ([]byte, error) {
	if a.closed {
		return nil, newError("read", a.name, syscall.EBADF)
	}
	if length < 0 {
		return nil, newError("read", a.name, syscall.EINVAL)
	}

	buf := make([]byte, length)

	var n int
	err := retry(func() (err error) {
		n, err = a.handle.Read(buf)
		return err
	})
	if err != nil {
		return nil, newError("read", a.name, err)
	}

	return buf[:n], nil
}

// ReadAt reads up to length bytes at off. The shared offset does not move.
func (a *Accessor) ReadAt(length int, off int64) ([]byte, error) {
	if a.closed {
		return nil, newError("pread", a.name, syscall.EBADF)
	}
	if length < 0 || off < 0 {
		return nil, newError("pread", a.name, syscall.EINVAL)
	}

	buf := make([]byte, length)

	var n int
	err := retry(func() (err error) {
		n, err = a.handle.ReadAt(buf, off)
		return err
	})
	if err != nil {
		return nil, newError("pread", a.name, err)
	}

	return buf[:n], nil
}

// Write writes data and returns the bytes written.
//
// In ReadWrite mode data lands at the shared offset, which then advances by
// the bytes written. Writing past end-of-file leaves a hole behind the old
// end. In ReadWriteAppend mode the substrate moves to end-of-file and writes
// in one atomic step, and the offset ends at the new end-of-file.
func (a *Accessor) Write(data []byte) (int, error) {
	if a.closed {
		return 0, newError("write", a.name, syscall.EBADF)
	}
	if a.mode == ReadOnly {
		return 0, newError("write", a.name, syscall.EBADF)
	}

	var n int
	err := retry(func() (err error) {
		n, err = a.handle.Write(data)
		return err
	})
	if err != nil {
		return n, newError("write", a.name, err)
	}

	return n, nil
}

// WriteAt writes data at off without moving the shared offset. It is refused
// in ReadWriteAppend mode, where pwrite(2) semantics differ between systems.
func (a *Accessor) WriteAt(data []byte, off int64) (int, error) {
	if a.closed {
		return 0, newError("pwrite", a.name, syscall.EBADF)
	}
	if a.mode == ReadOnly {
		return 0, newError("pwrite", a.name, syscall.EBADF)
	}
	if a.mode == ReadWriteAppend || off < 0 {
		return 0, newError("pwrite", a.name, syscall.EINVAL)
	}

	var n int
	err := retry(func() (err error) {
		n, err = a.handle.WriteAt(data, off)
		return err
	})
	if err != nil {
		return n, newError("pwrite", a.name, err)
	}

	return n, nil
}

// FindRegion returns the first offset at or after from that belongs to a
// region of the given kind. It has no side effects.
func (a *Accessor) FindRegion(from int64, kind RegionKind) (int64, error) {
	if a.closed {
		return 0, newError("find region", a.name, syscall.EBADF)
	}

	whence, ok := kind.whence()
	if !ok || from < 0 {
		return 0, newError("find region", a.name, syscall.EINVAL)
	}

	var off int64
	err := retry(func() (err error) {
		off, err = a.handle.Probe(from, whence)
		return err
	})
	if err != nil {
		return 0, newError("find region", a.name, err)
	}

	return off, nil
}

// Regions returns the layout of the whole file as alternating Data and Hole
// regions covering [0, Size).
func (a *Accessor) Regions() ([]Region, error) {
	size, err := a.Size()
	if err != nil {
		return nil, err
	}

	var regions []Region
	for start := int64(0); start < size; {
		dataStart, err := a.FindRegion(start, NextData)
		if err != nil {
			if KindOf(err) != NoSuchRegion {
				return nil, err
			}

			// no more data: the rest is a trailing hole
			regions = append(regions, Region{Start: start, End: size, Kind: Hole})
			break
		}

		if dataStart > start {
			regions = append(regions, Region{Start: start, End: dataStart, Kind: Hole})
		}

		holeStart, err := a.FindRegion(dataStart, NextHole)
		if err != nil {
			return nil, err
		}
		// the file may have changed size since the Size call
		if holeStart > size || holeStart <= dataStart {
			holeStart = size
		}

		regions = append(regions, Region{Start: dataStart, End: holeStart, Kind: Data})
		start = holeStart
	}

	return regions, nil
}

// Inheritable reports whether the handle survives exec.
func (a *Accessor) Inheritable() (bool, error) {
	if a.closed {
		return false, newError("inheritable", a.name, syscall.EBADF)
	}

	inheritable, err := a.handle.Inheritable()
	if err != nil {
		return false, newError("inheritable", a.name, err)
	}

	return inheritable, nil
}

// MarkNotInheritable sets close-on-exec. It is the only change to the
// inheritable flag allowed after Open.
func (a *Accessor) MarkNotInheritable() error {
	if a.closed {
		return newError("mark not inheritable", a.name, syscall.EBADF)
	}

	if err := a.handle.SetCloseOnExec(); err != nil {
		return newError("mark not inheritable", a.name, err)
	}

	return nil
}

// Fd returns the kernel descriptor behind a. It reports false for
// substrates without one and after Close.
func (a *Accessor) Fd() (int, bool) {
	if a.closed {
		return -1, false
	}

	f, ok := a.handle.(interface{ Fd() int })
	if !ok {
		return -1, false
	}

	return f.Fd(), true
}

// Close releases the handle. A second Close fails with InvalidArgument.
func (a *Accessor) Close() error {
	if a.closed {
		return newError("close", a.name, syscall.EINVAL)
	}

	a.closed = true

	// close(2) must not be retried on EINTR, the descriptor is gone either way
	if err := a.handle.Close(); err != nil {
		return newError("close", a.name, err)
	}

	a.log.Debug("closed")

	return nil
}

// retry runs fn again once if it was interrupted by a signal.
func retry(fn func() error) error {
	err := fn()
	if classify(err) == Interrupted {
		err = fn()
	}

	return err
}

package memfs

import (
	"context"
	"os"
	"sync"
	"syscall"
	"time"

	"github.com/Sherlock-Holo/sparsefd/internal/extent"
	"github.com/hanwen/go-fuse/v2/fs"
	"github.com/hanwen/go-fuse/v2/fuse"
	"golang.org/x/sys/unix"
)

var (
	_ fs.NodeGetattrer = new(File)
	_ fs.NodeSetattrer = new(File)
	_ fs.NodeOpener    = new(File)
	_ fs.NodeAllocater = new(File)
	_ fs.NodeReader    = new(File)
	_ fs.NodeWriter    = new(File)
	_ fs.NodeLseeker   = new(File)
	_ fs.NodeReleaser  = new(File)
	_ fs.NodeFsyncer   = new(File)
)

// File is a sparse file. Only written bytes take memory.
type File struct {
	fs.Inode
	mutex      *sync.RWMutex
	name       string
	ino        uint64
	accessTime time.Time
	modifyTime time.Time
	changeTime time.Time
	mode       os.FileMode
	owner      fuse.Owner
	content    extent.Map
}

// fileHandle is handed to the kernel on FUSE open. The kernel keeps the
// offset, so only the access flags live here.
type fileHandle struct {
	writable bool
	readable bool
	append   bool
}

func newFileHandle(flags uint32) *fileHandle {
	readable, writable := accessMode(int(flags))

	return &fileHandle{
		readable: readable,
		writable: writable,
		append:   flags&syscall.O_APPEND != 0,
	}
}

func (f *File) Name() string {
	f.mutex.RLock()
	defer f.mutex.RUnlock()

	return f.name
}

// Allocated returns the number of bytes backed by memory.
func (f *File) Allocated() int64 {
	f.mutex.RLock()
	defer f.mutex.RUnlock()

	return f.content.Allocated()
}

func (f *File) fillAttr(out *fuse.Attr) {
	out.Ino = f.ino
	out.Mode = uint32(f.mode) | syscall.S_IFREG
	out.Owner = f.owner
	out.Size = uint64(f.content.Size())
	out.Blksize = blockSize
	out.Blocks = blocks(f.content.Allocated())

	setEntryOutTime(f.accessTime, f.modifyTime, f.changeTime, out)
}

func (f *File) Getattr(ctx context.Context, handle fs.FileHandle, out *fuse.AttrOut) syscall.Errno {
	f.mutex.RLock()
	defer f.mutex.RUnlock()

	f.fillAttr(&out.Attr)

	return fs.OK
}

func (f *File) Setattr(ctx context.Context, handle fs.FileHandle, in *fuse.SetAttrIn, out *fuse.AttrOut) syscall.Errno {
	f.mutex.Lock()
	defer f.mutex.Unlock()

	f.changeTime = time.Now()

	if mode, ok := in.GetMode(); ok {
		f.mode = os.FileMode(mode).Perm()
	}

	if atime, ok := in.GetATime(); ok {
		f.accessTime = atime
	}

	if mtime, ok := in.GetMTime(); ok {
		f.modifyTime = mtime
	}

	if ctime, ok := in.GetCTime(); ok {
		f.changeTime = ctime
	}

	if uid, ok := in.GetUID(); ok {
		f.owner.Uid = uid
	}
	if gid, ok := in.GetGID(); ok {
		f.owner.Gid = gid
	}

	if size, ok := in.GetSize(); ok {
		if err := f.content.Truncate(int64(size)); err != nil {
			return fs.ToErrno(err)
		}
	}

	f.fillAttr(&out.Attr)

	return fs.OK
}

func (f *File) Open(ctx context.Context, flags uint32) (fh fs.FileHandle, fuseFlags uint32, errno syscall.Errno) {
	handle := newFileHandle(flags)

	if flags&syscall.O_TRUNC != 0 {
		f.mutex.Lock()
		_ = f.content.Truncate(0)
		f.touch()
		f.mutex.Unlock()
	}

	// the kernel must not serve reads from its page cache, or holes written
	// in process would be invisible through the mount
	return handle, fuse.FOPEN_DIRECT_IO, fs.OK
}

// Allocate punches holes for FALLOC_FL_PUNCH_HOLE and otherwise only grows
// the size; space reservation is not modeled.
func (f *File) Allocate(ctx context.Context, handle fs.FileHandle, offset uint64, size uint64, mode uint32) syscall.Errno {
	f.mutex.Lock()
	defer f.mutex.Unlock()

	switch {
	case mode&unix.FALLOC_FL_PUNCH_HOLE != 0:
		if mode&unix.FALLOC_FL_KEEP_SIZE == 0 {
			return syscall.EINVAL
		}
		if err := f.content.PunchHole(int64(offset), int64(size)); err != nil {
			return fs.ToErrno(err)
		}

	case mode&unix.FALLOC_FL_KEEP_SIZE != 0:

	case mode == 0:
		if end := int64(offset + size); end > f.content.Size() {
			if err := f.content.Truncate(end); err != nil {
				return fs.ToErrno(err)
			}
		}

	default:
		return syscall.EOPNOTSUPP
	}

	f.touch()

	return fs.OK
}

func (f *File) Write(ctx context.Context, handle fs.FileHandle, data []byte, offset int64) (written uint32, errno syscall.Errno) {
	fileHandle, ok := handle.(*fileHandle)
	if !ok {
		return 0, syscall.EBADF
	}

	if !fileHandle.writable {
		return 0, syscall.EBADF
	}

	var (
		n   int
		err error
	)
	if fileHandle.append {
		// ignore the kernel's idea of end-of-file, it may be stale
		_, n, err = f.appendData(data)
	} else {
		n, err = f.writeAt(data, offset)
	}
	if err != nil {
		return 0, fs.ToErrno(err)
	}

	return uint32(n), fs.OK
}

func (f *File) Read(ctx context.Context, handle fs.FileHandle, dest []byte, offset int64) (fuse.ReadResult, syscall.Errno) {
	fileHandle, ok := handle.(*fileHandle)
	if !ok {
		return nil, syscall.EBADF
	}

	if !fileHandle.readable {
		return nil, syscall.EBADF
	}

	n, err := f.readAt(dest, offset)
	if err != nil {
		return nil, fs.ToErrno(err)
	}

	return fuse.ReadResultData(dest[:n]), fs.OK
}

func (f *File) Lseek(ctx context.Context, handle fs.FileHandle, off uint64, whence uint32) (uint64, syscall.Errno) {
	result, err := f.seekRegion(int64(off), int(whence))
	if err != nil {
		return 0, fs.ToErrno(err)
	}

	return uint64(result), fs.OK
}

func (f *File) Release(ctx context.Context, handle fs.FileHandle) syscall.Errno {
	return fs.OK
}

func (f *File) Fsync(ctx context.Context, _ fs.FileHandle, flags uint32) syscall.Errno {
	return fs.OK
}

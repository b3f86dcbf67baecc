package memfs

import (
	"context"
	"os"
	"sync"
	"syscall"
	"time"

	"github.com/hanwen/go-fuse/v2/fs"
	"github.com/hanwen/go-fuse/v2/fuse"
)

var (
	_ fs.NodeGetattrer = new(Dir)
	_ fs.NodeSetattrer = new(Dir)
	_ fs.NodeReaddirer = new(Dir)
	_ fs.NodeLookuper  = new(Dir)
	_ fs.NodeCreater   = new(Dir)
	_ fs.NodeUnlinker  = new(Dir)
	_ fs.NodeRenamer   = new(Dir)
)

// Dir is the root directory of an FS mount. The namespace is flat, so Dir
// has no subdirectories.
type Dir struct {
	fs.Inode
	fsys       *FS
	mutex      *sync.RWMutex
	accessTime time.Time
	modifyTime time.Time
	changeTime time.Time
	mode       os.FileMode
}

func newRoot(fsys *FS) *Dir {
	now := time.Now()

	return &Dir{
		fsys:       fsys,
		mutex:      new(sync.RWMutex),
		accessTime: now,
		modifyTime: now,
		changeTime: now,
		mode:       os.ModeDir | 0755,
	}
}

func (d *Dir) touch() {
	d.mutex.Lock()
	defer d.mutex.Unlock()

	now := time.Now()
	d.modifyTime = now
	d.changeTime = now
}

func (d *Dir) Unlink(ctx context.Context, name string) syscall.Errno {
	if err := d.fsys.Remove(name); err != nil {
		return fs.ToErrno(err)
	}

	d.touch()

	return fs.OK
}

func (d *Dir) Getattr(ctx context.Context, f fs.FileHandle, out *fuse.AttrOut) syscall.Errno {
	d.mutex.RLock()
	defer d.mutex.RUnlock()

	out.Mode = uint32(d.mode.Perm()) | syscall.S_IFDIR
	out.Owner = d.fsys.owner

	setEntryOutTime(d.accessTime, d.modifyTime, d.changeTime, &out.Attr)

	return fs.OK
}

func (d *Dir) Setattr(ctx context.Context, f fs.FileHandle, in *fuse.SetAttrIn, out *fuse.AttrOut) syscall.Errno {
	d.mutex.Lock()
	defer d.mutex.Unlock()

	if mode, ok := in.GetMode(); ok {
		d.mode = os.ModeDir | os.FileMode(mode).Perm()
	}

	if atime, ok := in.GetATime(); ok {
		d.accessTime = atime
	}

	if mtime, ok := in.GetMTime(); ok {
		d.modifyTime = mtime
	}

	if ctime, ok := in.GetCTime(); ok {
		d.changeTime = ctime
	}

	out.Mode = uint32(d.mode.Perm()) | syscall.S_IFDIR
	out.Owner = d.fsys.owner
	setEntryOutTime(d.accessTime, d.modifyTime, d.changeTime, &out.Attr)

	return fs.OK
}

func (d *Dir) Readdir(ctx context.Context) (fs.DirStream, syscall.Errno) {
	files := d.fsys.names()

	entries := make([]fuse.DirEntry, 0, len(files)+2)
	entries = append(entries,
		fuse.DirEntry{
			Name: ".",
			Ino:  d.StableAttr().Ino,
			Mode: syscall.S_IFDIR,
		},
		fuse.DirEntry{
			Name: "..",
			Ino:  d.StableAttr().Ino,
			Mode: syscall.S_IFDIR,
		},
	)

	for name, file := range files {
		entries = append(entries, fuse.DirEntry{
			Ino:  file.ino,
			Mode: syscall.S_IFREG,
			Name: name,
		})
	}

	return fs.NewListDirStream(entries), fs.OK
}

func (d *Dir) Lookup(ctx context.Context, name string, out *fuse.EntryOut) (*fs.Inode, syscall.Errno) {
	if name == "." || name == ".." {
		return &d.Inode, fs.OK
	}

	file, ok := d.fsys.Lookup(name)
	if !ok {
		return nil, syscall.ENOENT
	}

	file.mutex.RLock()
	file.fillAttr(&out.Attr)
	file.mutex.RUnlock()

	if child := d.GetChild(name); child != nil && child.StableAttr().Ino == file.ino {
		return child, fs.OK
	}

	return d.NewInode(ctx, file, fs.StableAttr{Mode: syscall.S_IFREG, Ino: file.ino}), fs.OK
}

func (d *Dir) Create(ctx context.Context, name string, flags uint32, mode uint32, out *fuse.EntryOut) (node *fs.Inode, fh fs.FileHandle, fuseFlags uint32, errno syscall.Errno) {
	file, err := d.fsys.Create(name, os.FileMode(mode), nil)
	if err != nil {
		return nil, nil, 0, fs.ToErrno(err)
	}

	d.touch()

	file.mutex.RLock()
	file.fillAttr(&out.Attr)
	file.mutex.RUnlock()

	fileNode := d.NewInode(ctx, file, fs.StableAttr{Mode: syscall.S_IFREG, Ino: file.ino})

	return fileNode, newFileHandle(flags), fuse.FOPEN_DIRECT_IO, fs.OK
}

func (d *Dir) Rename(ctx context.Context, name string, newParent fs.InodeEmbedder, newName string, flags uint32) syscall.Errno {
	if newParent.EmbeddedInode() != &d.Inode {
		return syscall.EXDEV
	}

	if err := d.fsys.Rename(name, newName, flags); err != nil {
		return fs.ToErrno(err)
	}

	d.touch()

	return fs.OK
}

// Package memfs is an in-memory filesystem of sparse files.
//
// Files can be opened in process through FS.Resolve, which hands out
// descriptors over explicit open file descriptions, or served to the kernel
// through FUSE by mounting Root.
package memfs

import (
	"os"
	"sync"
	"syscall"
	"time"

	"github.com/Sherlock-Holo/sparsefd/internal/fdesc"
	"github.com/hanwen/go-fuse/v2/fuse"
	"golang.org/x/sys/unix"
)

var _ fdesc.Resolver = new(FS)

// FS is a flat namespace of sparse files.
type FS struct {
	mutex        sync.Mutex
	owner        fuse.Owner
	files        map[string]*File
	descriptions map[uint64]*description
	nextIno      uint64
	nextID       uint64
	root         *Dir
}

func New(owner *fuse.Owner) *FS {
	fsys := &FS{
		files:        make(map[string]*File),
		descriptions: make(map[uint64]*description),
		// 1 is the root inode
		nextIno: 2,
	}

	if owner != nil {
		fsys.owner = *owner
	}

	fsys.root = newRoot(fsys)

	return fsys
}

// Root returns the FUSE node of the namespace.
func (fsys *FS) Root() *Dir {
	return fsys.root
}

// Create adds a file holding content. It fails with EEXIST if name is taken.
func (fsys *FS) Create(name string, mode os.FileMode, content []byte) (*File, error) {
	fsys.mutex.Lock()
	defer fsys.mutex.Unlock()

	return fsys.createLocked(name, mode, content)
}

func (fsys *FS) createLocked(name string, mode os.FileMode, content []byte) (*File, error) {
	name, ok := cleanName(name)
	if !ok {
		return nil, syscall.ENOENT
	}

	if _, ok := fsys.files[name]; ok {
		return nil, syscall.EEXIST
	}

	now := time.Now()

	file := &File{
		name:       name,
		ino:        fsys.nextIno,
		mutex:      new(sync.RWMutex),
		mode:       mode.Perm(),
		owner:      fsys.owner,
		accessTime: now,
		modifyTime: now,
		changeTime: now,
	}
	fsys.nextIno++

	if _, err := file.content.WriteAt(content, 0); err != nil {
		return nil, err
	}

	fsys.files[name] = file

	return file, nil
}

// Remove unlinks name. Open descriptions keep the file alive.
func (fsys *FS) Remove(name string) error {
	fsys.mutex.Lock()
	defer fsys.mutex.Unlock()

	name, ok := cleanName(name)
	if !ok {
		return syscall.ENOENT
	}

	if _, ok := fsys.files[name]; !ok {
		return syscall.ENOENT
	}
	delete(fsys.files, name)

	return nil
}

// Lookup returns the file called name.
func (fsys *FS) Lookup(name string) (*File, bool) {
	fsys.mutex.Lock()
	defer fsys.mutex.Unlock()

	name, ok := cleanName(name)
	if !ok {
		return nil, false
	}

	file, ok := fsys.files[name]

	return file, ok
}

func (fsys *FS) names() map[string]*File {
	fsys.mutex.Lock()
	defer fsys.mutex.Unlock()

	files := make(map[string]*File, len(fsys.files))
	for name, file := range fsys.files {
		files[name] = file
	}

	return files
}

// Rename moves oldName to newName under one lock. An existing newName is
// replaced unless flags carries RENAME_NOREPLACE. Renaming a name onto
// itself does nothing.
func (fsys *FS) Rename(oldName, newName string, flags uint32) error {
	if flags&^unix.RENAME_NOREPLACE != 0 {
		return syscall.EINVAL
	}

	fsys.mutex.Lock()
	defer fsys.mutex.Unlock()

	oldName, ok := cleanName(oldName)
	if !ok {
		return syscall.ENOENT
	}
	newName, ok = cleanName(newName)
	if !ok {
		return syscall.ENOENT
	}

	file, ok := fsys.files[oldName]
	if !ok {
		return syscall.ENOENT
	}

	if oldName == newName {
		return nil
	}

	if _, ok := fsys.files[newName]; ok && flags&unix.RENAME_NOREPLACE != 0 {
		return syscall.EEXIST
	}

	delete(fsys.files, oldName)
	fsys.files[newName] = file

	file.mutex.Lock()
	file.name = newName
	file.changeTime = time.Now()
	file.mutex.Unlock()

	return nil
}

// Resolve opens name with a new open file description.
func (fsys *FS) Resolve(name string, flags int, inheritable bool) (fdesc.Handle, error) {
	file, ok := fsys.Lookup(name)
	if !ok {
		return nil, syscall.ENOENT
	}

	readable, writable := accessMode(flags)

	file.mutex.RLock()
	mode := file.mode
	file.mutex.RUnlock()

	if readable && mode&0400 == 0 {
		return nil, syscall.EACCES
	}
	if writable && mode&0200 == 0 {
		return nil, syscall.EACCES
	}

	fsys.mutex.Lock()
	defer fsys.mutex.Unlock()

	desc := &description{
		id:       fsys.nextID,
		file:     file,
		readable: readable,
		writable: writable,
		append:   flags&syscall.O_APPEND != 0,
		refs:     1,
	}
	fsys.nextID++
	fsys.descriptions[desc.id] = desc

	return &Handle{
		fsys:    fsys,
		desc:    desc,
		cloexec: !inheritable,
	}, nil
}

// OpenDescriptions returns how many open file descriptions are alive.
func (fsys *FS) OpenDescriptions() int {
	fsys.mutex.Lock()
	defer fsys.mutex.Unlock()

	return len(fsys.descriptions)
}

func (fsys *FS) ref(desc *description) {
	fsys.mutex.Lock()
	defer fsys.mutex.Unlock()

	desc.refs++
}

func (fsys *FS) release(desc *description) {
	fsys.mutex.Lock()
	defer fsys.mutex.Unlock()

	desc.refs--
	if desc.refs == 0 {
		delete(fsys.descriptions, desc.id)
	}
}

func accessMode(flags int) (readable, writable bool) {
	switch flags & syscall.O_ACCMODE {
	case syscall.O_RDONLY:
		return true, false

	case syscall.O_WRONLY:
		return false, true

	default:
		return true, true
	}
}

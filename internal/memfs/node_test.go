package memfs

import (
	"context"
	"sort"
	"syscall"
	"testing"

	"github.com/hanwen/go-fuse/v2/fs"
	"github.com/hanwen/go-fuse/v2/fuse"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sys/unix"
)

// newTree returns an FS whose root is wired into a node tree, so Lookup and
// Create can hand out inodes without a mount.
func newTree(t *testing.T, files map[string]string) *FS {
	t.Helper()

	fsys := New(nil)
	for name, content := range files {
		_, err := fsys.Create(name, 0644, []byte(content))
		require.NoError(t, err)
	}

	fs.NewNodeFS(fsys.Root(), &fs.Options{})

	return fsys
}

func newFile(t *testing.T, content string) *File {
	t.Helper()

	file, err := New(nil).Create("text.txt", 0644, []byte(content))
	require.NoError(t, err)

	return file
}

func openFile(t *testing.T, file *File, flags uint32) fs.FileHandle {
	t.Helper()

	fh, fuseFlags, errno := file.Open(context.Background(), flags)
	require.Equal(t, fs.OK, errno)
	assert.Equal(t, uint32(fuse.FOPEN_DIRECT_IO), fuseFlags)

	return fh
}

func readAll(t *testing.T, file *File) []byte {
	t.Helper()

	buf := make([]byte, file.content.Size())
	n, err := file.readAt(buf, 0)
	require.NoError(t, err)

	return buf[:n]
}

func TestFile_Getattr(t *testing.T) {
	file := newFile(t, "0123456789")

	var out fuse.AttrOut
	require.Equal(t, fs.OK, file.Getattr(context.Background(), nil, &out))

	assert.Equal(t, uint32(syscall.S_IFREG|0644), out.Mode)
	assert.EqualValues(t, 10, out.Size)
	assert.EqualValues(t, 1, out.Blocks)
	assert.EqualValues(t, blockSize, out.Blksize)
}

func TestFile_Setattr(t *testing.T) {
	file := newFile(t, "0123456789")
	ctx := context.Background()

	var out fuse.AttrOut
	in := &fuse.SetAttrIn{SetAttrInCommon: fuse.SetAttrInCommon{
		Valid: fuse.FATTR_SIZE | fuse.FATTR_MODE,
		Size:  4,
		Mode:  0600,
	}}
	require.Equal(t, fs.OK, file.Setattr(ctx, nil, in, &out))
	assert.EqualValues(t, 4, out.Size)
	assert.Equal(t, uint32(syscall.S_IFREG|0600), out.Mode)
	assert.Equal(t, []byte("0123"), readAll(t, file))

	in = &fuse.SetAttrIn{SetAttrInCommon: fuse.SetAttrInCommon{
		Valid: fuse.FATTR_SIZE,
		Size:  1 << 20,
	}}
	require.Equal(t, fs.OK, file.Setattr(ctx, nil, in, &out))
	assert.EqualValues(t, 1<<20, out.Size)
	assert.EqualValues(t, 1, out.Blocks, "growing adds a hole, not storage")
}

func TestFile_Allocate(t *testing.T) {
	tests := []struct {
		name      string
		off, size uint64
		mode      uint32
		errno     syscall.Errno
		expect    []byte
	}{
		{
			"punch hole",
			2, 3,
			unix.FALLOC_FL_PUNCH_HOLE | unix.FALLOC_FL_KEEP_SIZE,
			fs.OK,
			[]byte{'0', '1', 0, 0, 0, '5', '6', '7'},
		},
		{
			"punch hole past end",
			6, 100,
			unix.FALLOC_FL_PUNCH_HOLE | unix.FALLOC_FL_KEEP_SIZE,
			fs.OK,
			[]byte{'0', '1', '2', '3', '4', '5', 0, 0},
		},
		{
			"punch hole without keep size",
			2, 3,
			unix.FALLOC_FL_PUNCH_HOLE,
			syscall.EINVAL,
			[]byte("01234567"),
		},
		{
			"keep size",
			4, 100,
			unix.FALLOC_FL_KEEP_SIZE,
			fs.OK,
			[]byte("01234567"),
		},
		{
			"grow",
			6, 4,
			0,
			fs.OK,
			[]byte{'0', '1', '2', '3', '4', '5', '6', '7', 0, 0},
		},
		{
			"inside",
			0, 4,
			0,
			fs.OK,
			[]byte("01234567"),
		},
		{
			"collapse range",
			0, 4,
			unix.FALLOC_FL_COLLAPSE_RANGE,
			syscall.EOPNOTSUPP,
			[]byte("01234567"),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			file := newFile(t, "01234567")

			errno := file.Allocate(context.Background(), nil, tt.off, tt.size, tt.mode)
			assert.Equal(t, tt.errno, errno)
			assert.Equal(t, tt.expect, readAll(t, file))
		})
	}
}

func TestFile_ReadWrite(t *testing.T) {
	file := newFile(t, "0123456789")
	ctx := context.Background()

	rw := openFile(t, file, syscall.O_RDWR)

	written, errno := file.Write(ctx, rw, []byte("xy"), 12)
	require.Equal(t, fs.OK, errno)
	assert.EqualValues(t, 2, written)

	res, errno := file.Read(ctx, rw, make([]byte, 16), 8)
	require.Equal(t, fs.OK, errno)
	data, status := res.Bytes(nil)
	require.Equal(t, fuse.OK, status)
	assert.Equal(t, []byte{'8', '9', 0, 0, 'x', 'y'}, data)

	ro := openFile(t, file, syscall.O_RDONLY)
	_, errno = file.Write(ctx, ro, []byte("z"), 0)
	assert.Equal(t, syscall.EBADF, errno)

	wo := openFile(t, file, syscall.O_WRONLY)
	_, errno = file.Read(ctx, wo, make([]byte, 1), 0)
	assert.Equal(t, syscall.EBADF, errno)

	_, errno = file.Write(ctx, nil, []byte("z"), 0)
	assert.Equal(t, syscall.EBADF, errno)

	assert.Equal(t, fs.OK, file.Release(ctx, rw))
}

func TestFile_WriteAppend(t *testing.T) {
	file := newFile(t, "head")
	ctx := context.Background()

	fh := openFile(t, file, syscall.O_WRONLY|syscall.O_APPEND)

	// the kernel's offset may be stale, the write still lands at the end
	for _, part := range []string{"-one", "-two"} {
		written, errno := file.Write(ctx, fh, []byte(part), 0)
		require.Equal(t, fs.OK, errno)
		assert.EqualValues(t, len(part), written)
	}

	assert.Equal(t, "head-one-two", string(readAll(t, file)))
}

func TestFile_OpenTrunc(t *testing.T) {
	file := newFile(t, "0123456789")

	openFile(t, file, syscall.O_RDWR|syscall.O_TRUNC)

	assert.Empty(t, readAll(t, file))
	assert.Zero(t, file.Allocated())
}

func TestFile_Lseek(t *testing.T) {
	file := newFile(t, "A")
	_, err := file.writeAt([]byte("123"), 5)
	require.NoError(t, err)

	tests := []struct {
		name   string
		off    uint64
		whence uint32
		expect uint64
		errno  syscall.Errno
	}{
		{"data from hole", 3, unix.SEEK_DATA, 5, fs.OK},
		{"data in data", 6, unix.SEEK_DATA, 6, fs.OK},
		{"hole after first byte", 0, unix.SEEK_HOLE, 1, fs.OK},
		{"trailing hole", 5, unix.SEEK_HOLE, 8, fs.OK},
		{"data at end", 8, unix.SEEK_DATA, 0, syscall.ENXIO},
		{"plain whence", 0, unix.SEEK_SET, 0, syscall.EINVAL},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, errno := file.Lseek(context.Background(), nil, tt.off, tt.whence)
			assert.Equal(t, tt.errno, errno)
			if tt.errno == fs.OK {
				assert.Equal(t, tt.expect, got)
			}
		})
	}
}

func TestFS_Rename(t *testing.T) {
	tests := []struct {
		name          string
		from, to      string
		flags         uint32
		expect        error
		exist, absent []string
	}{
		{"move", "a", "c", 0, nil, []string{"b", "c"}, []string{"a"}},
		{"onto itself", "a", "a", 0, nil, []string{"a", "b"}, nil},
		{"onto itself cleaned", "/a", "a", unix.RENAME_NOREPLACE, nil, []string{"a", "b"}, nil},
		{"replace", "a", "b", 0, nil, []string{"b"}, []string{"a"}},
		{"no replace", "a", "b", unix.RENAME_NOREPLACE, syscall.EEXIST, []string{"a", "b"}, nil},
		{"missing", "x", "y", 0, syscall.ENOENT, []string{"a", "b"}, []string{"y"}},
		{"subdirectory", "a", "dir/a", 0, syscall.ENOENT, []string{"a", "b"}, nil},
		{"exchange", "a", "b", unix.RENAME_EXCHANGE, syscall.EINVAL, []string{"a", "b"}, nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fsys := New(nil)
			a, err := fsys.Create("a", 0644, []byte("from a"))
			require.NoError(t, err)
			_, err = fsys.Create("b", 0644, []byte("from b"))
			require.NoError(t, err)

			err = fsys.Rename(tt.from, tt.to, tt.flags)
			if tt.expect != nil {
				assert.ErrorIs(t, err, tt.expect)
			} else {
				require.NoError(t, err)
			}

			for _, name := range tt.exist {
				_, ok := fsys.Lookup(name)
				assert.True(t, ok, name)
			}
			for _, name := range tt.absent {
				_, ok := fsys.Lookup(name)
				assert.False(t, ok, name)
			}

			if tt.expect == nil {
				file, ok := fsys.Lookup(tt.to)
				require.True(t, ok)
				assert.Same(t, a, file)
				assert.Equal(t, tt.to, file.Name())
			}
		})
	}
}

func TestDir_Rename(t *testing.T) {
	fsys := New(nil)
	_, err := fsys.Create("a", 0644, []byte("data"))
	require.NoError(t, err)

	d := fsys.Root()
	ctx := context.Background()

	assert.Equal(t, fs.OK, d.Rename(ctx, "a", d, "a", 0))
	file, ok := fsys.Lookup("a")
	require.True(t, ok, "renaming onto itself keeps the file")
	assert.Equal(t, "data", string(readAll(t, file)))

	assert.Equal(t, syscall.EXDEV, d.Rename(ctx, "a", New(nil).Root(), "a", 0))

	assert.Equal(t, fs.OK, d.Rename(ctx, "a", d, "b", 0))
	assert.Equal(t, []string{"b"}, sortedNames(fsys))

	assert.Equal(t, syscall.ENOENT, d.Rename(ctx, "a", d, "c", 0))
}

func TestDir_CreateLookupUnlink(t *testing.T) {
	fsys := newTree(t, map[string]string{"seeded": "abc"})
	d := fsys.Root()
	ctx := context.Background()

	var out fuse.EntryOut
	node, fh, fuseFlags, errno := d.Create(ctx, "new", syscall.O_RDWR, syscall.S_IFREG|0640, &out)
	require.Equal(t, fs.OK, errno)
	require.NotNil(t, node)
	assert.NotNil(t, fh)
	assert.Equal(t, uint32(fuse.FOPEN_DIRECT_IO), fuseFlags)
	assert.Equal(t, uint32(syscall.S_IFREG|0640), out.Mode)
	assert.Equal(t, node.StableAttr().Ino, out.Ino)

	_, _, _, errno = d.Create(ctx, "new", syscall.O_RDWR, 0644, &out)
	assert.Equal(t, syscall.EEXIST, errno)

	node, errno = d.Lookup(ctx, "seeded", &out)
	require.Equal(t, fs.OK, errno)
	assert.EqualValues(t, 3, out.Size)
	assert.Equal(t, uint32(syscall.S_IFREG), node.StableAttr().Mode)

	_, errno = d.Lookup(ctx, "missing", &out)
	assert.Equal(t, syscall.ENOENT, errno)

	assert.Equal(t, fs.OK, d.Unlink(ctx, "new"))
	_, errno = d.Lookup(ctx, "new", &out)
	assert.Equal(t, syscall.ENOENT, errno)
	assert.Equal(t, syscall.ENOENT, d.Unlink(ctx, "new"))
}

func TestDir_Readdir(t *testing.T) {
	fsys := newTree(t, map[string]string{"a": "", "b": "x"})

	stream, errno := fsys.Root().Readdir(context.Background())
	require.Equal(t, fs.OK, errno)
	defer stream.Close()

	var names []string
	for stream.HasNext() {
		entry, errno := stream.Next()
		require.Equal(t, fs.OK, errno)
		names = append(names, entry.Name)
	}

	assert.ElementsMatch(t, []string{".", "..", "a", "b"}, names)
}

func sortedNames(fsys *FS) []string {
	var names []string
	for name := range fsys.names() {
		names = append(names, name)
	}
	sort.Strings(names)

	return names
}

package memfs

import (
	"path"
	"strings"
	"time"

	"github.com/hanwen/go-fuse/v2/fuse"
)

const blockSize = 512

func setEntryOutTime(atime, mtime, ctime time.Time, out *fuse.Attr) {
	out.Atime = uint64(atime.Unix())
	out.Atimensec = uint32(atime.UnixNano() - atime.Unix()*1_000_000_000)

	out.Mtime = uint64(mtime.Unix())
	out.Mtimensec = uint32(mtime.UnixNano() - mtime.Unix()*1_000_000_000)

	out.Ctime = uint64(ctime.Unix())
	out.Ctimensec = uint32(ctime.UnixNano() - ctime.Unix()*1_000_000_000)
}

// blocks counts 512-byte blocks of stored data, so holes are not billed.
func blocks(allocated int64) uint64 {
	n := uint64(allocated) / blockSize
	if uint64(allocated)%blockSize != 0 {
		n++
	}

	return n
}

// cleanName maps a name to its entry in the flat namespace. It reports false
// for names that point into a subdirectory.
func cleanName(name string) (string, bool) {
	name = strings.TrimPrefix(path.Clean("/"+name), "/")
	if name == "" || strings.Contains(name, "/") {
		return "", false
	}

	return name, true
}

// Package extent stores a sparse file in memory at byte granularity.
//
// Only written ranges are kept. Everything else up to Size is a hole and
// reads back as zeros.
package extent

import (
	"io"
	"math"
	"sort"

	"golang.org/x/sys/unix"
)

type extent struct {
	off  int64
	data []byte
}

func (e extent) end() int64 {
	return e.off + int64(len(e.data))
}

// Map is a byte-granular sparse file. Extents are sorted, never overlap and
// never touch: adjacent writes are merged. A Map is not safe for concurrent
// use.
type Map struct {
	extents []extent
	size    int64
}

func (m *Map) Size() int64 {
	return m.size
}

// Allocated returns the number of bytes backed by storage.
func (m *Map) Allocated() int64 {
	var n int64
	for _, e := range m.extents {
		n += int64(len(e.data))
	}

	return n
}

// ReadAt reads len(p) bytes at off. Hole bytes are zero. It returns io.EOF
// when fewer than len(p) bytes exist before Size.
func (m *Map) ReadAt(p []byte, off int64) (int, error) {
	if off < 0 {
		return 0, unix.EINVAL
	}
	if off >= m.size {
		return 0, io.EOF
	}

	n := len(p)
	if remain := m.size - off; int64(n) > remain {
		n = int(remain)
	}
	buf := p[:n]
	for i := range buf {
		buf[i] = 0
	}

	end := off + int64(n)
	for i := m.first(off); i < len(m.extents) && m.extents[i].off < end; i++ {
		e := m.extents[i]
		lo := maxInt64(e.off, off)
		hi := minInt64(e.end(), end)
		copy(buf[lo-off:hi-off], e.data[lo-e.off:hi-e.off])
	}

	if n < len(p) {
		return n, io.EOF
	}

	return n, nil
}

// WriteAt stores p at off. A gap between the old Size and off becomes a hole.
// It fails with EFBIG when the write would end past math.MaxInt64.
func (m *Map) WriteAt(p []byte, off int64) (int, error) {
	if off < 0 {
		return 0, unix.EINVAL
	}
	if off > math.MaxInt64-int64(len(p)) {
		return 0, unix.EFBIG
	}
	if len(p) == 0 {
		return 0, nil
	}

	end := off + int64(len(p))

	// extents overlapping or touching [off, end)
	lo := sort.Search(len(m.extents), func(i int) bool { return m.extents[i].end() >= off })
	hi := lo
	for hi < len(m.extents) && m.extents[hi].off <= end {
		hi++
	}

	start, stop := off, end
	if lo < hi {
		start = minInt64(start, m.extents[lo].off)
		stop = maxInt64(stop, m.extents[hi-1].end())
	}

	merged := make([]byte, stop-start)
	for _, e := range m.extents[lo:hi] {
		copy(merged[e.off-start:], e.data)
	}
	copy(merged[off-start:], p)

	extents := make([]extent, 0, len(m.extents)-(hi-lo)+1)
	extents = append(extents, m.extents[:lo]...)
	extents = append(extents, extent{off: start, data: merged})
	extents = append(extents, m.extents[hi:]...)
	m.extents = extents

	if end > m.size {
		m.size = end
	}

	return len(p), nil
}

// Append writes p at Size and returns the offset it was written at.
func (m *Map) Append(p []byte) (int64, error) {
	off := m.size
	_, err := m.WriteAt(p, off)

	return off, err
}

// Truncate sets Size. Growing adds a hole, shrinking drops data.
func (m *Map) Truncate(size int64) error {
	if size < 0 {
		return unix.EINVAL
	}

	if size < m.size {
		m.drop(size, m.size)
	}
	m.size = size

	return nil
}

// PunchHole releases storage in [off, off+length) without changing Size.
func (m *Map) PunchHole(off, length int64) error {
	if off < 0 || length <= 0 {
		return unix.EINVAL
	}
	if length > math.MaxInt64-off {
		length = math.MaxInt64 - off
	}

	m.drop(off, off+length)

	return nil
}

// SeekData returns the first data offset at or after off, or ENXIO.
func (m *Map) SeekData(off int64) (int64, error) {
	if off < 0 {
		return 0, unix.EINVAL
	}
	if off >= m.size {
		return 0, unix.ENXIO
	}

	i := m.first(off)
	if i == len(m.extents) {
		return 0, unix.ENXIO
	}

	return maxInt64(off, m.extents[i].off), nil
}

// SeekHole returns the first hole offset at or after off. Size counts as
// the start of an implicit trailing hole. Past Size it returns ENXIO.
func (m *Map) SeekHole(off int64) (int64, error) {
	if off < 0 {
		return 0, unix.EINVAL
	}
	if off >= m.size {
		return 0, unix.ENXIO
	}

	i := m.first(off)
	if i == len(m.extents) || m.extents[i].off > off {
		return off, nil
	}

	return minInt64(m.extents[i].end(), m.size), nil
}

// first returns the index of the first extent ending after off.
func (m *Map) first(off int64) int {
	return sort.Search(len(m.extents), func(i int) bool { return m.extents[i].end() > off })
}

// drop removes stored bytes in [from, to).
func (m *Map) drop(from, to int64) {
	extents := m.extents[:0:0]
	for _, e := range m.extents {
		if e.end() <= from || e.off >= to {
			extents = append(extents, e)
			continue
		}

		if e.off < from {
			extents = append(extents, extent{off: e.off, data: e.data[:from-e.off]})
		}
		if e.end() > to {
			extents = append(extents, extent{off: to, data: e.data[to-e.off:]})
		}
	}
	m.extents = extents
}

func minInt64(a, b int64) int64 {
	if a < b {
		return a
	}
	return b
}

func maxInt64(a, b int64) int64 {
	if a > b {
		return a
	}
	return b
}

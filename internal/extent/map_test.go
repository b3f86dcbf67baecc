package extent

import (
	"io"
	"math"
	"sort"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sys/unix"
)

func TestMap_WriteRead(t *testing.T) {
	tests := []struct {
		name   string
		writes map[int64]string
		off    int64
		length int
		expect []byte
		eof    bool
	}{
		{
			name:   "hole between writes",
			writes: map[int64]string{0: "A", 5: "123"},
			off:    0,
			length: 8,
			expect: []byte{'A', 0, 0, 0, 0, '1', '2', '3'},
		},
		{
			name:   "short read at tail",
			writes: map[int64]string{0: "hello"},
			off:    3,
			length: 10,
			expect: []byte("lo"),
			eof:    true,
		},
		{
			name:   "overwrite merges",
			writes: map[int64]string{0: "aaaa", 2: "bbbb"},
			off:    0,
			length: 6,
			expect: []byte("aabbbb"),
		},
		{
			name:   "leading hole",
			writes: map[int64]string{3: "x"},
			off:    0,
			length: 4,
			expect: []byte{0, 0, 0, 'x'},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var m Map
			// apply in offset order so overlapping cases are deterministic
			for _, off := range sortedKeys(tt.writes) {
				n, err := m.WriteAt([]byte(tt.writes[off]), off)
				require.NoError(t, err)
				require.Equal(t, len(tt.writes[off]), n)
			}

			buf := make([]byte, tt.length)
			n, err := m.ReadAt(buf, tt.off)
			if tt.eof {
				require.ErrorIs(t, err, io.EOF)
			} else {
				require.NoError(t, err)
			}
			assert.Equal(t, tt.expect, buf[:n])
		})
	}
}

func TestMap_ReadPastEnd(t *testing.T) {
	var m Map
	_, err := m.WriteAt([]byte("abc"), 0)
	require.NoError(t, err)

	for i := 0; i < 2; i++ {
		n, err := m.ReadAt(make([]byte, 4), 3)
		assert.Equal(t, 0, n)
		assert.ErrorIs(t, err, io.EOF)
	}
}

func TestMap_Seek(t *testing.T) {
	var m Map
	_, err := m.WriteAt([]byte("A"), 0)
	require.NoError(t, err)
	_, err = m.WriteAt([]byte("123"), 5)
	require.NoError(t, err)

	data, err := m.SeekData(3)
	require.NoError(t, err)
	assert.EqualValues(t, 5, data)

	data, err = m.SeekData(6)
	require.NoError(t, err)
	assert.EqualValues(t, 6, data, "inside data stays put")

	hole, err := m.SeekHole(0)
	require.NoError(t, err)
	assert.EqualValues(t, 1, hole)

	hole, err = m.SeekHole(2)
	require.NoError(t, err)
	assert.EqualValues(t, 2, hole, "inside hole stays put")

	hole, err = m.SeekHole(6)
	require.NoError(t, err)
	assert.EqualValues(t, 8, hole, "end of file is an implicit hole")

	_, err = m.SeekHole(8)
	assert.ErrorIs(t, err, unix.ENXIO)
	_, err = m.SeekData(8)
	assert.ErrorIs(t, err, unix.ENXIO)
}

func TestMap_SeekDataTrailingHole(t *testing.T) {
	var m Map
	_, err := m.WriteAt([]byte("ab"), 0)
	require.NoError(t, err)
	require.NoError(t, m.Truncate(10))

	_, err = m.SeekData(4)
	assert.ErrorIs(t, err, unix.ENXIO)

	hole, err := m.SeekHole(0)
	require.NoError(t, err)
	assert.EqualValues(t, 2, hole)
}

func TestMap_TruncateAndPunch(t *testing.T) {
	var m Map
	_, err := m.WriteAt([]byte("0123456789"), 0)
	require.NoError(t, err)

	require.NoError(t, m.PunchHole(2, 3))
	assert.EqualValues(t, 10, m.Size())
	assert.EqualValues(t, 7, m.Allocated())

	buf := make([]byte, 10)
	_, err = m.ReadAt(buf, 0)
	require.NoError(t, err)
	assert.Equal(t, []byte{'0', '1', 0, 0, 0, '5', '6', '7', '8', '9'}, buf)

	require.NoError(t, m.Truncate(6))
	assert.EqualValues(t, 6, m.Size())
	assert.EqualValues(t, 3, m.Allocated())

	require.NoError(t, m.Truncate(8))
	buf = make([]byte, 8)
	_, err = m.ReadAt(buf, 0)
	require.NoError(t, err)
	assert.Equal(t, []byte{'0', '1', 0, 0, 0, '5', 0, 0}, buf)

	assert.ErrorIs(t, m.Truncate(-1), unix.EINVAL)
	assert.ErrorIs(t, m.PunchHole(0, 0), unix.EINVAL)
}

func TestMap_Append(t *testing.T) {
	var m Map
	require.NoError(t, m.Truncate(4))

	off, err := m.Append([]byte("xy"))
	require.NoError(t, err)
	assert.EqualValues(t, 4, off)

	off, err = m.Append([]byte("z"))
	require.NoError(t, err)
	assert.EqualValues(t, 6, off)
	assert.EqualValues(t, 7, m.Size())
	assert.EqualValues(t, 3, m.Allocated())
}

func TestMap_WriteOverflow(t *testing.T) {
	var m Map
	_, err := m.WriteAt([]byte("A"), 0)
	require.NoError(t, err)

	tests := []struct {
		name string
		off  int64
		data string
	}{
		{"ends past max", math.MaxInt64 - 1, "abc"},
		{"starts at max", math.MaxInt64, "a"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			n, err := m.WriteAt([]byte(tt.data), tt.off)
			assert.ErrorIs(t, err, unix.EFBIG)
			assert.Zero(t, n)

			assert.EqualValues(t, 1, m.Size())
			data, err := m.SeekData(0)
			require.NoError(t, err)
			assert.Zero(t, data)
		})
	}

	n, err := m.WriteAt([]byte("z"), math.MaxInt64-1)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.EqualValues(t, int64(math.MaxInt64), m.Size())

	_, err = m.Append([]byte("y"))
	assert.ErrorIs(t, err, unix.EFBIG)

	require.NoError(t, m.PunchHole(1, math.MaxInt64))
	assert.EqualValues(t, 1, m.Allocated())
}

func sortedKeys(m map[int64]string) []int64 {
	keys := make([]int64, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i] < keys[j] })

	return keys
}

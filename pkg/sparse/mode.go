package sparse

import (
	"io"

	"golang.org/x/sys/unix"
)

// AccessMode is fixed when an Accessor is opened.
type AccessMode int

const (
	ReadOnly AccessMode = iota
	ReadWrite
	// ReadWriteAppend writes always land at end-of-file.
	ReadWriteAppend
)

func (m AccessMode) String() string {
	switch m {
	case ReadOnly:
		return "read-only"
	case ReadWrite:
		return "read-write"
	case ReadWriteAppend:
		return "read-write-append"
	default:
		return "invalid"
	}
}

func (m AccessMode) flags() (int, bool) {
	switch m {
	case ReadOnly:
		return unix.O_RDONLY, true
	case ReadWrite:
		return unix.O_RDWR, true
	case ReadWriteAppend:
		return unix.O_RDWR | unix.O_APPEND, true
	default:
		return 0, false
	}
}

// Whence says what a Seek target is relative to.
type Whence int

const (
	Start Whence = iota
	Current
	End
)

func (w Whence) seek() (int, bool) {
	switch w {
	case Start:
		return io.SeekStart, true
	case Current:
		return io.SeekCurrent, true
	case End:
		return io.SeekEnd, true
	default:
		return 0, false
	}
}

// RegionKind is what FindRegion looks for.
type RegionKind int

const (
	NextData RegionKind = iota
	NextHole
)

// Data and Hole name the kind of a Region.
const (
	Data = NextData
	Hole = NextHole
)

func (k RegionKind) String() string {
	switch k {
	case NextData:
		return "data"
	case NextHole:
		return "hole"
	default:
		return "invalid"
	}
}

func (k RegionKind) whence() (int, bool) {
	switch k {
	case NextData:
		return unix.SEEK_DATA, true
	case NextHole:
		return unix.SEEK_HOLE, true
	default:
		return 0, false
	}
}

// Region is the half-open byte range [Start, End) of one Kind.
type Region struct {
	Start int64
	End   int64
	Kind  RegionKind
}

func (r Region) Len() int64 {
	return r.End - r.Start
}

// Summary totals a layout.
type Summary struct {
	Data  int64
	Holes int64
}

func (s Summary) Total() int64 {
	return s.Data + s.Holes
}

func Summarize(regions []Region) Summary {
	var s Summary
	for _, r := range regions {
		switch r.Kind {
		case Data:
			s.Data += r.Len()
		case Hole:
			s.Holes += r.Len()
		}
	}

	return s
}

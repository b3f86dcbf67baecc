// Package demo holds the teaching programs. Each one opens a single file
// through a sparse.Accessor and prints what it observes.
package demo

import (
	"bytes"
	"fmt"
	"math"
	"strings"

	"github.com/Sherlock-Holo/sparsefd/pkg/sparse"
	log "github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
	errors "golang.org/x/xerrors"
)

// Hole writes past end-of-file to leave a four byte hole, reads it back and
// walks the boundaries with FindRegion.
func Hole(cfg Config, name string) error {
	r, release, err := cfg.resolver(name)
	if err != nil {
		return err
	}
	defer release()

	a, err := sparse.Open(r, name, sparse.ReadWrite)
	if err != nil {
		return err
	}
	defer a.Close()

	out := cfg.out()

	end, err := a.Seek(0, sparse.End)
	if err != nil {
		return err
	}
	if _, err := a.Seek(4, sparse.End); err != nil {
		return err
	}
	if _, err := a.Write([]byte("123")); err != nil {
		return err
	}

	if _, err := a.Seek(end, sparse.Start); err != nil {
		return err
	}
	buf, err := a.Read(4)
	if err != nil {
		return err
	}

	var digits strings.Builder
	for _, b := range buf {
		fmt.Fprintf(&digits, "%d", b)
	}
	fmt.Fprintln(out, digits.String())

	atHole, err := a.Seek(end+2, sparse.Start)
	if err != nil {
		return err
	}
	nextData, err := a.FindRegion(atHole, sparse.NextData)
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "Current offset %d at hole, move to %d with SEEK_DATA\n", atHole, nextData)

	// a file shorter than two bytes has no data two bytes before its end
	atData := end - 2
	if atData < 0 {
		atData = 0
	}
	if _, err := a.Seek(atData, sparse.Start); err != nil {
		return err
	}
	nextHole, err := a.FindRegion(atData, sparse.NextHole)
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "Current offset %d at data, move to %d with SEEK_HOLE\n", atData, nextHole)

	return nil
}

// Offset opens the same file in append mode and then in plain read-write
// mode and shows where each write lands.
func Offset(cfg Config, name string) error {
	r, release, err := cfg.resolver(name)
	if err != nil {
		return err
	}
	defer release()

	out := cfg.out()

	for _, mode := range []sparse.AccessMode{sparse.ReadWriteAppend, sparse.ReadWrite} {
		a, err := sparse.Open(r, name, mode)
		if err != nil {
			return err
		}

		fmt.Fprintf(out, "File opened %s:\n", mode)
		err = offsetRun(a, cfg)
		if closeErr := a.Close(); err == nil {
			err = closeErr
		}
		if err != nil {
			return err
		}
	}

	return nil
}

func offsetRun(a *sparse.Accessor, cfg Config) error {
	out := cfg.out()

	printOffset := func() error {
		off, err := a.Offset()
		if err != nil {
			return err
		}
		fmt.Fprintf(out, "File offset is %d.\n", off)

		return nil
	}

	read := func() error {
		buf, err := a.Read(4)
		if err != nil {
			return err
		}
		fmt.Fprintf(out, "Read %d bytes: %s.\n", len(buf), buf)

		return nil
	}

	steps := []func() error{
		printOffset,
		read,
		printOffset,
		func() error {
			n, err := a.Write([]byte("payload"))
			if err != nil {
				return err
			}
			fmt.Fprintf(out, "Write %d bytes.\n", n)

			return nil
		},
		printOffset,
		read,
		printOffset,
	}

	for _, step := range steps {
		if err := step(); err != nil {
			return err
		}
	}

	return nil
}

// Layout prints how much of each file is data and how much is holes.
func Layout(cfg Config, names ...string) error {
	r, release, err := cfg.resolver(names...)
	if err != nil {
		return err
	}
	defer release()

	for _, name := range names {
		a, err := sparse.Open(r, name, sparse.ReadOnly)
		if err != nil {
			return err
		}

		regions, err := a.Regions()
		if closeErr := a.Close(); err == nil {
			err = closeErr
		}
		if err != nil {
			return err
		}

		log.Debugf("%s has %d regions", name, len(regions))

		printSummary(cfg, name, sparse.Summarize(regions))
	}

	return nil
}

func printSummary(cfg Config, name string, s sparse.Summary) {
	out := cfg.out()

	width := 1
	if total := s.Total(); total >= 1024 {
		width = int(math.Log10(float64(total)/1024)) + 2
	}

	fmt.Fprintf(out, "%s:\n", name)
	fmt.Fprintf(out, "Data:  %*d kB %12d KiB\n", width, s.Data/1000, s.Data/1024)
	fmt.Fprintf(out, "Holes: %*d kB %12d KiB\n", width, s.Holes/1000, s.Holes/1024)
	fmt.Fprintf(out, "Total: %*d kB %12d KiB\n", width, s.Total()/1000, s.Total()/1024)
}

// Inherit shows the inheritable flag of a default handle and of one opened
// inheritable, before and after it is marked not inheritable.
func Inherit(cfg Config, name string) error {
	r, release, err := cfg.resolver(name)
	if err != nil {
		return err
	}
	defer release()

	for _, inheritable := range []bool{false, true} {
		a, err := sparse.Open(r, name, sparse.ReadOnly, sparse.WithInheritable(inheritable))
		if err != nil {
			return err
		}

		err = inheritRun(a, cfg)
		if closeErr := a.Close(); err == nil {
			err = closeErr
		}
		if err != nil {
			return err
		}
	}

	return nil
}

func inheritRun(a *sparse.Accessor, cfg Config) error {
	out := cfg.out()

	label := "handle"
	if fd, ok := a.Fd(); ok {
		label = fmt.Sprintf("fd %d", fd)
	}

	inheritable, err := a.Inheritable()
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "%s inheritable across exec: %t\n", label, inheritable)

	if !inheritable {
		return nil
	}

	if err := a.MarkNotInheritable(); err != nil {
		return err
	}

	inheritable, err = a.Inheritable()
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "%s marked not inheritable: %t\n", label, inheritable)

	return nil
}

// Append runs writers concurrent appenders of records lines each. Even
// writers share one open file description, odd writers open their own. It
// then checks that no record was torn or overwritten.
func Append(cfg Config, name string, writers, records int) error {
	if writers < 1 || records < 1 {
		return errors.Errorf("writers %d and records %d must be positive", writers, records)
	}

	r, release, err := cfg.resolver(name)
	if err != nil {
		return err
	}
	defer release()

	base, err := sparse.Open(r, name, sparse.ReadWriteAppend)
	if err != nil {
		return err
	}
	defer base.Close()

	before, err := base.Size()
	if err != nil {
		return err
	}

	var group errgroup.Group
	for w := 0; w < writers; w++ {
		w := w
		var a *sparse.Accessor
		if w%2 == 0 {
			a, err = base.Dup()
		} else {
			a, err = sparse.Open(r, name, sparse.ReadWriteAppend)
		}
		if err != nil {
			_ = group.Wait()
			return err
		}

		group.Go(func() error {
			defer a.Close()

			for i := 0; i < records; i++ {
				if _, err := a.Write(record(w, i)); err != nil {
					return errors.Errorf("writer %d record %d failed: %w", w, i, err)
				}
			}

			log.Debugf("writer %d done", w)

			return nil
		})
	}

	if err := group.Wait(); err != nil {
		return err
	}

	size, err := base.Size()
	if err != nil {
		return err
	}

	content, err := base.ReadAt(int(size-before), before)
	if err != nil {
		return err
	}

	if err := checkRecords(content, writers, records); err != nil {
		return err
	}

	fmt.Fprintf(cfg.out(), "%d records from %d writers appended intact, file grew %d -> %d\n",
		writers*records, writers, before, size)

	return nil
}

func record(writer, index int) []byte {
	return []byte(fmt.Sprintf("w%04d-r%08d\n", writer, index))
}

func checkRecords(content []byte, writers, records int) error {
	size := len(record(0, 0))
	if len(content) != writers*records*size {
		return errors.Errorf("appended %d bytes, expect %d", len(content), writers*records*size)
	}

	next := make([]int, writers)
	for off := 0; off < len(content); off += size {
		line := content[off : off+size]

		var w, i int
		if _, err := fmt.Sscanf(string(line), "w%04d-r%08d\n", &w, &i); err != nil || w < 0 || w >= writers {
			return errors.Errorf("torn record at %d: %q", off, line)
		}
		if !bytes.Equal(line, record(w, i)) || i != next[w] {
			return errors.Errorf("writer %d record %d out of order at %d", w, i, off)
		}
		next[w]++
	}

	return nil
}

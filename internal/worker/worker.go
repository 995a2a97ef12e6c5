// Package worker scans one byte range of a visit log and counts visits
// per (route, date).
package worker

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"slices"

	"github.com/ianlewis/visits-go/internal/catalog"
	"github.com/ianlewis/visits-go/internal/chunk"
	"github.com/ianlewis/visits-go/internal/datecodec"
	"github.com/ianlewis/visits-go/internal/wire"
)

const (
	// DefaultBlockSize is the size of a single read.
	DefaultBlockSize = 256 * 1024 // 256kb

	// DefaultDelimiter separates the route from the timestamp.
	DefaultDelimiter = ','
)

// Stats counts what a scan saw.
type Stats struct {
	// Lines is the number of non-empty lines scanned.
	Lines int64
	// Dropped is the number of lines whose route or date did not resolve.
	Dropped int64
}

// Add adds o to s.
func (s *Stats) Add(o Stats) {
	s.Lines += o.Lines
	s.Dropped += o.Dropped
}

// Table holds partial counts keyed by route id in the high 16 bits and
// date id in the low 16 bits.
type Table map[uint32]uint32

// Add counts one visit.
func (t Table) Add(route, date uint16) {
	t[uint32(route)<<16|uint32(date)]++
}

// Get returns the count for (route, date).
func (t Table) Get(route, date uint16) uint32 {
	return t[uint32(route)<<16|uint32(date)]
}

// Encode appends one wire record per key to dst. Record order is
// unspecified.
func (t Table) Encode(dst []byte) []byte {
	dst = slices.Grow(dst, len(t)*wire.RecordSize)
	for k, count := range t {
		dst = wire.Append(dst, wire.Record{
			Route: uint16(k >> 16),
			Date:  uint16(k),
			Count: count,
		})
	}
	return dst
}

// Worker resolves lines against read-only catalogs. A Worker holds no
// mutable state and may be shared by concurrent scans.
type Worker struct {
	routes    *catalog.Catalog
	dates     *datecodec.Codec
	blockSize int
	delim     byte
}

// New returns a worker reading blockSize bytes at a time. Zero values
// select the defaults.
func New(routes *catalog.Catalog, dates *datecodec.Codec, blockSize int, delim byte) *Worker {
	if blockSize <= 0 {
		blockSize = DefaultBlockSize
	}
	if delim == 0 {
		delim = DefaultDelimiter
	}
	return &Worker{
		routes:    routes,
		dates:     dates,
		blockSize: blockSize,
		delim:     delim,
	}
}

// Scan opens path and counts every line that starts inside rg. The last
// such line is read to its end even if it extends past rg.End.
func (w *Worker) Scan(ctx context.Context, path string, rg chunk.Range) (Table, Stats, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, Stats{}, fmt.Errorf("worker: %w", err)
	}
	defer f.Close()

	fi, err := f.Stat()
	if err != nil {
		return nil, Stats{}, fmt.Errorf("worker: %w", err)
	}
	return w.ScanReader(ctx, f, fi.Size(), rg)
}

// ScanReader is like Scan but reads from the first size bytes of r.
func (w *Worker) ScanReader(ctx context.Context, r io.ReaderAt, size int64, rg chunk.Range) (Table, Stats, error) {
	t := make(Table)
	var st Stats
	if rg.Start >= rg.End || rg.Start >= size {
		return t, st, nil
	}

	sr := io.NewSectionReader(r, rg.Start, size-rg.Start)
	buf := make([]byte, w.blockSize)
	pos := rg.Start // file offset of buf[0]
	var carry int
	for {
		if err := ctx.Err(); err != nil {
			return nil, st, err
		}

		if carry == len(buf) {
			// The pending line is longer than the buffer.
			buf = append(buf, make([]byte, len(buf))...)
			buf = buf[:cap(buf)]
		}

		n, err := io.ReadFull(sr, buf[carry:])
		eof := errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF)
		if err != nil && !eof {
			return nil, st, fmt.Errorf("worker: reading at %d: %w", pos+int64(carry), err)
		}

		lines, remainder := splitBlock(buf[:carry+n], eof)
		if w.processLines(lines, pos, rg.End, t, &st) || eof {
			return t, st, nil
		}
		pos += int64(len(lines))
		carry = copy(buf, remainder)
	}
}

// splitBlock splits b into complete lines and the trailing partial line.
// At EOF the partial line is complete.
func splitBlock(b []byte, eof bool) ([]byte, []byte) {
	if eof {
		return b, nil
	}
	i := bytes.LastIndexByte(b, '\n')
	return b[:i+1], b[i+1:]
}

// processLines counts each line of b that starts before end. base is the
// file offset of b. It reports whether a line at or past end was reached.
func (w *Worker) processLines(b []byte, base, end int64, t Table, st *Stats) bool {
	for len(b) > 0 {
		if base >= end {
			return true
		}
		var line []byte
		if i := bytes.IndexByte(b, '\n'); i >= 0 {
			line, b = b[:i], b[i+1:]
			base += int64(i + 1)
		} else {
			line, b = b, nil
			base += int64(len(line))
		}
		w.processLine(line, t, st)
	}
	return base >= end
}

func (w *Worker) processLine(line []byte, t Table, st *Stats) {
	if n := len(line); n > 0 && line[n-1] == '\r' {
		line = line[:n-1]
	}
	if len(line) == 0 {
		return
	}
	st.Lines++

	i := bytes.IndexByte(line, w.delim)
	if i < 0 {
		st.Dropped++
		return
	}
	route, ok := w.routes.Lookup(line[:i])
	if !ok {
		st.Dropped++
		return
	}
	date, ok := w.dates.Lookup(line[i+1:])
	if !ok {
		st.Dropped++
		return
	}
	t.Add(route, date)
}

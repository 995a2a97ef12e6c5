// Package chunk splits a file into line aligned byte ranges.
package chunk

import (
	"bufio"
	"errors"
	"fmt"
	"io"
)

// ErrWorkerCount is returned when asked for fewer than one range.
var ErrWorkerCount = errors.New("invalid worker count")

// Range is the half open byte range [Start, End).
type Range struct {
	Start int64
	End   int64
}

// Len returns the number of bytes in the range.
func (r Range) Len() int64 {
	return r.End - r.Start
}

// Plan divides the first size bytes of r into n contiguous ranges covering
// [0, size). Every boundary other than 0 and size falls right after a '\n'.
// Ranges may be empty when lines are longer than size/n.
func Plan(r io.ReaderAt, size int64, n int) ([]Range, error) {
	if n < 1 {
		return nil, fmt.Errorf("%w: %d", ErrWorkerCount, n)
	}
	if size < 0 {
		return nil, fmt.Errorf("chunk: negative size %d", size)
	}

	target := size / int64(n)
	ranges := make([]Range, n)
	var start int64
	for i := 0; i < n-1; i++ {
		end, err := nextLine(r, size, max(int64(i+1)*target, start))
		if err != nil {
			return nil, err
		}
		ranges[i] = Range{Start: start, End: end}
		start = end
	}
	ranges[n-1] = Range{Start: start, End: size}
	return ranges, nil
}

// nextLine returns the offset just past the first '\n' at or after off, or
// size if there is none.
func nextLine(r io.ReaderAt, size, off int64) (int64, error) {
	if off >= size {
		return size, nil
	}
	br := bufio.NewReader(io.NewSectionReader(r, off, size-off))
	pos := off
	for {
		line, err := br.ReadSlice('\n')
		pos += int64(len(line))
		switch {
		case err == nil:
			return pos, nil
		case errors.Is(err, bufio.ErrBufferFull):
			continue
		case errors.Is(err, io.EOF):
			return size, nil
		default:
			return 0, fmt.Errorf("chunk: seeking line end from %d: %w", off, err)
		}
	}
}

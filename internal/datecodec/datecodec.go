// Package datecodec maps calendar days in a bounded window to dense ids.
package datecodec

import (
	"errors"
	"fmt"
	"math"
	"time"
)

const (
	// MaxWindow is the number of days that fit in a 16 bit id.
	MaxWindow = math.MaxUint16 + 1

	// Layout is the textual form of a date.
	Layout = "2006-01-02"

	day = 24 * time.Hour
)

var (
	// ErrOutOfWindow is returned when a date falls outside the window.
	ErrOutOfWindow = errors.New("date out of window")

	// ErrInvalidWindow is returned for empty windows or windows that do not fit
	// in 16 bit ids.
	ErrInvalidWindow = errors.New("invalid date window")
)

// Codec is an immutable mapping between the days of a window and ids
// 0..window-1. It is safe for concurrent use.
type Codec struct {
	epoch     time.Time
	epochYear int
	dates     []string
	// index maps ((year-epochYear)*12+month-1)*31+day-1 to an id, or -1.
	index []int32
}

// New builds a codec whose day 0 is the calendar day of epoch.
func New(epoch time.Time, window int) (*Codec, error) {
	if window < 1 {
		return nil, fmt.Errorf("%w: %d days", ErrInvalidWindow, window)
	}
	if window > MaxWindow {
		return nil, fmt.Errorf("%w: %d days, max %d", ErrInvalidWindow, window, MaxWindow)
	}

	y, m, d := epoch.Date()
	epoch = time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
	last := epoch.AddDate(0, 0, window-1)

	c := &Codec{
		epoch:     epoch,
		epochYear: y,
		dates:     make([]string, window),
		index:     make([]int32, (last.Year()-y+1)*12*31),
	}
	for i := range c.index {
		c.index[i] = -1
	}
	for i := 0; i < window; i++ {
		t := epoch.AddDate(0, 0, i)
		c.dates[i] = t.Format(Layout)
		c.index[c.slot(t.Year(), int(t.Month()), t.Day())] = int32(i)
	}
	return c, nil
}

func (c *Codec) slot(year, month, day int) int {
	return ((year-c.epochYear)*12+month-1)*31 + day - 1
}

// Epoch returns day 0 of the window.
func (c *Codec) Epoch() time.Time {
	return c.epoch
}

// Window returns the number of days in the window.
func (c *Codec) Window() int {
	return len(c.dates)
}

// Encode returns the id of the calendar day of t.
func (c *Codec) Encode(t time.Time) (uint16, error) {
	y, m, d := t.Date()
	days := time.Date(y, m, d, 0, 0, 0, 0, time.UTC).Sub(c.epoch) / day
	if days < 0 || int(days) >= len(c.dates) {
		return 0, fmt.Errorf("%w: %s", ErrOutOfWindow, t.Format(Layout))
	}
	return uint16(days), nil
}

// Decode returns the date string for id.
func (c *Codec) Decode(id uint16) (string, bool) {
	if int(id) >= len(c.dates) {
		return "", false
	}
	return c.dates[id], true
}

// Lookup resolves the leading "YYYY-MM-DD" of token without parsing it
// into a time. Anything after the first ten bytes is ignored.
func (c *Codec) Lookup(token []byte) (uint16, bool) {
	if len(token) < len(Layout) || token[4] != '-' || token[7] != '-' {
		return 0, false
	}
	year, ok := digits(token[0:4])
	if !ok {
		return 0, false
	}
	month, ok := digits(token[5:7])
	if !ok || month < 1 || month > 12 {
		return 0, false
	}
	d, ok := digits(token[8:10])
	if !ok || d < 1 || d > 31 {
		return 0, false
	}
	if year < c.epochYear {
		return 0, false
	}
	i := c.slot(year, month, d)
	if i >= len(c.index) || c.index[i] < 0 {
		return 0, false
	}
	return uint16(c.index[i]), true
}

func digits(b []byte) (int, bool) {
	n := 0
	for _, ch := range b {
		if ch < '0' || ch > '9' {
			return 0, false
		}
		n = n*10 + int(ch-'0')
	}
	return n, true
}

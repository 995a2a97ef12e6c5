// Package resultchan implements a fixed capacity shared memory region that
// carries one length prefixed payload per worker.
//
// Slot i occupies bytes [i*(4+capacity), (i+1)*(4+capacity)) of the region:
// a big-endian uint32 payload length followed by the payload. Each slot is
// written at most once, by its own worker, and read by the coordinator
// only after that worker has finished.
package resultchan

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"
	"os"

	"github.com/edsrzf/mmap-go"
)

const prefixSize = 4

var (
	// ErrSlotOverflow is returned when a payload exceeds the slot capacity.
	ErrSlotOverflow = errors.New("slot capacity exceeded")

	// ErrSlotIndex is returned for a slot outside the channel.
	ErrSlotIndex = errors.New("slot index out of range")

	// ErrSlotWritten is returned when a slot is written twice.
	ErrSlotWritten = errors.New("slot already written")

	// ErrSlotNotWritten is returned when reading a slot that was never written.
	ErrSlotNotWritten = errors.New("slot not written")

	// ErrCorruptSlot is returned when a slot's length prefix exceeds its capacity.
	ErrCorruptSlot = errors.New("corrupt slot")

	// ErrClosed is returned when using a closed channel.
	ErrClosed = errors.New("channel closed")
)

// Channel is a region of slots slots of capacity payload bytes each.
//
// Write may be called concurrently for distinct slots. Read must not be
// called for a slot until its Write has returned.
type Channel struct {
	region   mmap.MMap
	file     *os.File
	slots    int
	capacity int
	written  []bool
}

// Open maps a new region. If dir is empty the region is anonymous shared
// memory, otherwise it is backed by a temporary file in dir that is
// removed on Close.
func Open(slots, capacity int, dir string) (*Channel, error) {
	if slots < 1 {
		return nil, fmt.Errorf("resultchan: invalid slot count %d", slots)
	}
	if capacity < 0 || uint64(capacity) > math.MaxUint32 {
		return nil, fmt.Errorf("resultchan: invalid slot capacity %d", capacity)
	}
	stride := prefixSize + capacity
	if stride > math.MaxInt/slots {
		return nil, fmt.Errorf("resultchan: %d slots of %d bytes do not fit in memory", slots, capacity)
	}
	size := slots * stride

	c := &Channel{
		slots:    slots,
		capacity: capacity,
		written:  make([]bool, slots),
	}

	var err error
	if dir == "" {
		c.region, err = mmap.MapRegion(nil, size, mmap.RDWR, mmap.ANON, 0)
		if err != nil {
			return nil, fmt.Errorf("resultchan: mapping %d bytes: %w", size, err)
		}
		return c, nil
	}

	c.file, err = os.CreateTemp(dir, "visits-slots-*.bin")
	if err != nil {
		return nil, fmt.Errorf("resultchan: %w", err)
	}
	if err := c.file.Truncate(int64(size)); err != nil {
		_ = c.removeFile()
		return nil, fmt.Errorf("resultchan: %w", err)
	}
	c.region, err = mmap.MapRegion(c.file, size, mmap.RDWR, 0, 0)
	if err != nil {
		name := c.file.Name()
		_ = c.removeFile()
		return nil, fmt.Errorf("resultchan: mapping %q: %w", name, err)
	}
	return c, nil
}

// Slots returns the number of slots.
func (c *Channel) Slots() int {
	return c.slots
}

// Capacity returns the payload capacity of each slot.
func (c *Channel) Capacity() int {
	return c.capacity
}

func (c *Channel) base(slot int) (int, error) {
	if c.region == nil {
		return 0, ErrClosed
	}
	if slot < 0 || slot >= c.slots {
		return 0, fmt.Errorf("%w: %d of %d", ErrSlotIndex, slot, c.slots)
	}
	return slot * (prefixSize + c.capacity), nil
}

// Write stores payload in slot. A slot can only be written once.
func (c *Channel) Write(slot int, payload []byte) error {
	base, err := c.base(slot)
	if err != nil {
		return err
	}
	if c.written[slot] {
		return fmt.Errorf("%w: %d", ErrSlotWritten, slot)
	}
	if len(payload) > c.capacity {
		return fmt.Errorf("%w: slot %d: %d bytes, capacity %d", ErrSlotOverflow, slot, len(payload), c.capacity)
	}
	binary.BigEndian.PutUint32(c.region[base:], uint32(len(payload)))
	copy(c.region[base+prefixSize:], payload)
	c.written[slot] = true
	return nil
}

// Read returns the payload of slot. The returned slice aliases the region
// and is only valid until Close.
func (c *Channel) Read(slot int) ([]byte, error) {
	base, err := c.base(slot)
	if err != nil {
		return nil, err
	}
	if !c.written[slot] {
		return nil, fmt.Errorf("%w: %d", ErrSlotNotWritten, slot)
	}
	n := int(binary.BigEndian.Uint32(c.region[base:]))
	if n > c.capacity {
		return nil, fmt.Errorf("%w: slot %d: length %d, capacity %d", ErrCorruptSlot, slot, n, c.capacity)
	}
	start := base + prefixSize
	return c.region[start : start+n], nil
}

// Close unmaps the region and removes its backing file, if any. Calling
// Close more than once is a no-op.
func (c *Channel) Close() error {
	if c.region == nil {
		return nil
	}
	err := c.region.Unmap()
	c.region = nil
	if c.file != nil {
		err = errors.Join(err, c.removeFile())
	}
	return err
}

func (c *Channel) removeFile() error {
	name := c.file.Name()
	err := c.file.Close()
	c.file = nil
	return errors.Join(err, os.Remove(name))
}

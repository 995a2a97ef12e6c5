package engine

import (
	"errors"
	"fmt"
	"math"
	"runtime"

	"github.com/c2h5oh/datasize"

	"github.com/ianlewis/visits-go/internal/wire"
	"github.com/ianlewis/visits-go/internal/worker"
)

// ErrConfig is returned for an invalid Config.
var ErrConfig = errors.New("invalid configuration")

// Config holds the run parameters of a Parser.
type Config struct {
	// Workers is the number of ranges scanned in parallel.
	Workers int

	// SlotCapacity is the largest payload a worker may produce. Zero sizes
	// slots for the worst case of every route visited on every day.
	SlotCapacity datasize.ByteSize

	// BlockSize is the size of each read made by a worker.
	BlockSize datasize.ByteSize

	// Delimiter separates the route from the timestamp on each line.
	Delimiter byte

	// ChannelDir, if set, backs the result channel with a temporary file
	// in this directory instead of anonymous shared memory.
	ChannelDir string
}

// DefaultConfig returns a Config with one worker per CPU.
func DefaultConfig() Config {
	return Config{
		Workers:   runtime.NumCPU(),
		BlockSize: worker.DefaultBlockSize * datasize.B,
		Delimiter: worker.DefaultDelimiter,
	}
}

// Validate checks c for values that cannot run.
func (c Config) Validate() error {
	switch {
	case c.Workers < 1:
		return fmt.Errorf("%w: workers must be at least 1, got %d", ErrConfig, c.Workers)
	case c.BlockSize < 1:
		return fmt.Errorf("%w: block size must be at least 1 byte", ErrConfig)
	case c.BlockSize > math.MaxInt32:
		return fmt.Errorf("%w: block size %s too large", ErrConfig, c.BlockSize.HumanReadable())
	case c.SlotCapacity != 0 && c.SlotCapacity < wire.RecordSize:
		return fmt.Errorf("%w: slot capacity %d below one record", ErrConfig, c.SlotCapacity.Bytes())
	case c.SlotCapacity > math.MaxUint32:
		return fmt.Errorf("%w: slot capacity %s too large", ErrConfig, c.SlotCapacity.HumanReadable())
	case c.Delimiter == '\n' || c.Delimiter == '\r':
		return fmt.Errorf("%w: delimiter cannot be a line terminator", ErrConfig)
	}
	return nil
}

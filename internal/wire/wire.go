// Package wire defines the fixed width record used to move partial counts
// from workers to the merger.
//
// A record is 8 bytes, big-endian, no padding:
//
//	offset 0: route id (uint16)
//	offset 2: date id  (uint16)
//	offset 4: count    (uint32)
package wire

import (
	"encoding/binary"
	"errors"
	"fmt"
)

// RecordSize is the encoded size of a Record.
const RecordSize = 8

// ErrTruncated is returned when a payload is not a whole number of records.
var ErrTruncated = errors.New("truncated record")

// Record is a count for one (route, date) key.
type Record struct {
	Route uint16
	Date  uint16
	Count uint32
}

// Append appends the encoding of r to dst.
func Append(dst []byte, r Record) []byte {
	dst = binary.BigEndian.AppendUint16(dst, r.Route)
	dst = binary.BigEndian.AppendUint16(dst, r.Date)
	return binary.BigEndian.AppendUint32(dst, r.Count)
}

// Decode decodes the record at the start of b. b must hold at least
// RecordSize bytes.
func Decode(b []byte) Record {
	_ = b[RecordSize-1]
	return Record{
		Route: binary.BigEndian.Uint16(b[0:2]),
		Date:  binary.BigEndian.Uint16(b[2:4]),
		Count: binary.BigEndian.Uint32(b[4:8]),
	}
}

// Each calls fn for every record in payload. Nothing is decoded if the
// payload length is not a multiple of RecordSize.
func Each(payload []byte, fn func(Record)) error {
	if len(payload)%RecordSize != 0 {
		return fmt.Errorf("%w: %d bytes", ErrTruncated, len(payload))
	}
	for i := 0; i < len(payload); i += RecordSize {
		fn(Decode(payload[i:]))
	}
	return nil
}

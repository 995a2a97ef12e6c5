// Package output writes merged visit counts as JSON.
package output

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	jsoniter "github.com/json-iterator/go"

	"github.com/ianlewis/visits-go/internal/merge"
)

const bufSize = 64 * 1024

// Encode writes r to w as a JSON object of route path to an object of
// date to count, preserving the order of r. A positive indent pretty
// prints with that many spaces per level.
func Encode(w io.Writer, r *merge.Result, indent int) error {
	cfg := jsoniter.Config{IndentionStep: max(indent, 0)}.Froze()
	stream := jsoniter.NewStream(cfg, w, bufSize)

	if len(r.Routes) == 0 {
		stream.WriteEmptyObject()
	} else {
		stream.WriteObjectStart()
		for i, rt := range r.Routes {
			if i > 0 {
				stream.WriteMore()
			}
			stream.WriteObjectField(rt.Path)
			stream.WriteObjectStart()
			for j, d := range rt.Days {
				if j > 0 {
					stream.WriteMore()
				}
				stream.WriteObjectField(d.Date)
				stream.WriteUint64(d.Count)
			}
			stream.WriteObjectEnd()
		}
		stream.WriteObjectEnd()
	}

	if stream.Error != nil {
		return fmt.Errorf("output: %w", stream.Error)
	}
	if err := stream.Flush(); err != nil {
		return fmt.Errorf("output: %w", err)
	}
	return nil
}

// WriteFile writes r to path. The file is written to a temporary file in
// the same directory and renamed into place, so path is never left
// partially written.
func WriteFile(path string, r *merge.Result, indent int) (err error) {
	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, ".tmp-*")
	if err != nil {
		return fmt.Errorf("output: %w", err)
	}
	defer func() {
		if err != nil {
			tmp.Close()
			os.Remove(tmp.Name())
		}
	}()

	if err := Encode(tmp, r, indent); err != nil {
		return err
	}
	if err := tmp.Chmod(0o644); err != nil {
		return fmt.Errorf("output: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		return fmt.Errorf("output: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("output: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("output: %w", err)
	}
	return nil
}

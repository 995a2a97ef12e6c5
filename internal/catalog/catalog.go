// Package catalog maps route paths to dense integer ids and back.
package catalog

import (
	"errors"
	"fmt"
	"math"
	"os"

	jsoniter "github.com/json-iterator/go"
)

const (
	// DefaultPrefixLen is the length of the scheme and host portion of a
	// catalog URI, e.g. "https://stitcher.io". The route path starts right
	// after it.
	DefaultPrefixLen = 19

	// MaxRoutes is the number of distinct routes that fit in a 16 bit id.
	MaxRoutes = math.MaxUint16 + 1
)

var (
	// ErrTooManyRoutes is returned when the catalog does not fit in 16 bit ids.
	ErrTooManyRoutes = errors.New("too many routes")

	// ErrInvalidURI is returned for a URI shorter than the prefix.
	ErrInvalidURI = errors.New("invalid route uri")
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// Visit is an entry of the external route listing.
type Visit struct {
	ID  int    `json:"id"`
	URI string `json:"uri"`
}

// Catalog is an immutable bidirectional mapping between route paths and
// ids. It is safe for concurrent use once built.
type Catalog struct {
	ids   map[string]uint16
	paths []string
}

// New builds a catalog from visits in iteration order. Route ids are
// assigned densely in the order paths are first seen; repeated paths keep
// their first id.
func New(visits []Visit, prefixLen int) (*Catalog, error) {
	c := &Catalog{
		ids:   make(map[string]uint16, len(visits)),
		paths: make([]string, 0, len(visits)),
	}
	for _, v := range visits {
		if prefixLen < 0 || len(v.URI) <= prefixLen {
			return nil, fmt.Errorf("%w: visit %d: %q", ErrInvalidURI, v.ID, v.URI)
		}
		path := v.URI[prefixLen:]
		if _, ok := c.ids[path]; ok {
			continue
		}
		if len(c.paths) == MaxRoutes {
			return nil, fmt.Errorf("%w: more than %d distinct paths", ErrTooManyRoutes, MaxRoutes)
		}
		c.ids[path] = uint16(len(c.paths))
		c.paths = append(c.paths, path)
	}
	return c, nil
}

// Lookup returns the id of the route path in token. The conversion to
// string in the map index does not allocate.
func (c *Catalog) Lookup(token []byte) (uint16, bool) {
	id, ok := c.ids[string(token)]
	return id, ok
}

// Path returns the route path for id.
func (c *Catalog) Path(id uint16) (string, bool) {
	if int(id) >= len(c.paths) {
		return "", false
	}
	return c.paths[id], true
}

// Len returns the number of routes.
func (c *Catalog) Len() int {
	return len(c.paths)
}

// LoadFile reads a JSON array of visits from path.
func LoadFile(path string) ([]Visit, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("catalog: reading %q: %w", path, err)
	}
	var visits []Visit
	if err := json.Unmarshal(b, &visits); err != nil {
		return nil, fmt.Errorf("catalog: decoding %q: %w", path, err)
	}
	return visits, nil
}

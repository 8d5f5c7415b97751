// Package namelist reads, edits and writes Fortran namelist files.
//
// Values are held as Go scalars (string, bool, int, float64) or as []any
// for comma-separated lists. Group and key names are case-insensitive and
// stored lower-cased. Ordering of groups and keys is preserved so that a
// parsed file renders back in its original order.
package namelist

import (
	"errors"
	"fmt"
	"os"
	"slices"
	"strings"
)

// ErrUnsupportedValue is returned by Set for values that have no namelist form.
var ErrUnsupportedValue = errors.New("unsupported namelist value")

// Namelist is an ordered collection of groups.
type Namelist struct {
	groups []*group
}

type group struct {
	name   string
	keys   []string
	values map[string]any
}

// New returns an empty namelist.
func New() *Namelist {
	return &Namelist{}
}

// Read parses the namelist file at path.
func Read(path string) (*Namelist, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open namelist: %w", err)
	}
	defer func() { _ = f.Close() }()

	nml, err := Parse(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return nml, nil
}

func (n *Namelist) lookup(name string) *group {
	name = strings.ToLower(name)
	for _, g := range n.groups {
		if g.name == name {
			return g
		}
	}
	return nil
}

func (n *Namelist) ensure(name string) *group {
	if g := n.lookup(name); g != nil {
		return g
	}
	g := &group{name: strings.ToLower(name), values: make(map[string]any)}
	n.groups = append(n.groups, g)
	return g
}

func (g *group) set(key string, v any) {
	key = strings.ToLower(key)
	if _, ok := g.values[key]; !ok {
		g.keys = append(g.keys, key)
	}
	g.values[key] = v
}

// Set assigns key in group, creating the group when absent.
// Accepted values are string, bool, int, int64, float64 and slices of those.
func (n *Namelist) Set(groupName, key string, value any) error {
	v, err := normalize(value)
	if err != nil {
		return fmt.Errorf("%s.%s: %w", groupName, key, err)
	}
	n.ensure(groupName).set(key, v)
	return nil
}

// Get returns the value assigned to key in group.
func (n *Namelist) Get(groupName, key string) (any, bool) {
	g := n.lookup(groupName)
	if g == nil {
		return nil, false
	}
	v, ok := g.values[strings.ToLower(key)]
	return v, ok
}

// Groups returns group names in file order.
func (n *Namelist) Groups() []string {
	out := make([]string, len(n.groups))
	for i, g := range n.groups {
		out[i] = g.name
	}
	return out
}

// Keys returns the keys of a group in assignment order.
func (n *Namelist) Keys(groupName string) []string {
	g := n.lookup(groupName)
	if g == nil {
		return nil
	}
	return slices.Clone(g.keys)
}

// Clone returns a deep copy.
func (n *Namelist) Clone() *Namelist {
	out := &Namelist{groups: make([]*group, len(n.groups))}
	for i, g := range n.groups {
		cg := &group{
			name:   g.name,
			keys:   slices.Clone(g.keys),
			values: make(map[string]any, len(g.values)),
		}
		for k, v := range g.values {
			if list, ok := v.([]any); ok {
				v = slices.Clone(list)
			}
			cg.values[k] = v
		}
		out.groups[i] = cg
	}
	return out
}

func normalize(value any) (any, error) {
	switch v := value.(type) {
	case string, bool, int, float64:
		return v, nil
	case int64:
		return int(v), nil
	case int32:
		return int(v), nil
	case float32:
		return float64(v), nil
	case []any:
		out := make([]any, len(v))
		for i, item := range v {
			s, err := normalize(item)
			if err != nil {
				return nil, err
			}
			if _, nested := s.([]any); nested {
				return nil, fmt.Errorf("%w: nested list", ErrUnsupportedValue)
			}
			out[i] = s
		}
		return out, nil
	case []string:
		return toList(v), nil
	case []int:
		return toList(v), nil
	case []float64:
		return toList(v), nil
	case []bool:
		return toList(v), nil
	default:
		return nil, fmt.Errorf("%w: %T", ErrUnsupportedValue, value)
	}
}

func toList[T any](in []T) []any {
	out := make([]any, len(in))
	for i, v := range in {
		out[i] = v
	}
	return out
}

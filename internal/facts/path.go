// internal/facts/path.go
package facts

import (
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/solatis/rulekeeper/internal/types"
)

/*
 * Field path resolution for fact documents.
 *
 * Paths are written as dotted keys with bracketed indexes, for example
 * "order.payment.type", "items[0].sku" or "items[*].price". A "*" segment
 * (bare or bracketed) is a wildcard that matches the first element, in index
 * order for lists and sorted key order for objects, for which the rest of
 * the path resolves.
 *
 * Anything that does not resolve (missing key, index out of range, key on a
 * list, null in the middle or at the end) is reported as
 * types.ErrDataUnavailable so the referencing leaf evaluates to false.
 * A path that is malformed or exceeds the limits is ErrInvalidPath and is
 * reported when the document is built, not during evaluation.
 */

const (
	// MaxPathDepth bounds the number of segments in a path.
	MaxPathDepth = 16
	// MaxWildcards bounds the number of wildcard segments in a path.
	MaxWildcards = 2
)

// ErrInvalidPath indicates a path that cannot be parsed or exceeds limits.
var ErrInvalidPath = errors.New("invalid field path")

// Segment is one step of a path.
type Segment struct {
	Key      string
	Index    int
	IsIndex  bool
	Wildcard bool
}

func (s Segment) String() string {
	switch {
	case s.Wildcard:
		return "[*]"
	case s.IsIndex:
		return "[" + strconv.Itoa(s.Index) + "]"
	default:
		return s.Key
	}
}

// Path is a parsed field path.
type Path []Segment

func (p Path) String() string {
	var b strings.Builder
	for i, seg := range p {
		if i > 0 && !seg.IsIndex && !seg.Wildcard {
			b.WriteByte('.')
		}
		b.WriteString(seg.String())
	}
	return b.String()
}

// ParsePath parses a dotted/bracketed path expression.
func ParsePath(expr string) (Path, error) {
	if expr == "" {
		return nil, fmt.Errorf("%w: empty path", ErrInvalidPath)
	}

	var path Path
	for _, part := range strings.Split(expr, ".") {
		if part == "" {
			return nil, fmt.Errorf("%w: empty segment in %q", ErrInvalidPath, expr)
		}
		key, rest, _ := strings.Cut(part, "[")
		switch {
		case key == "*":
			path = append(path, Segment{Wildcard: true})
		case key != "":
			path = append(path, Segment{Key: key})
		case rest == "":
			return nil, fmt.Errorf("%w: empty segment in %q", ErrInvalidPath, expr)
		}
		if rest == "" && !strings.Contains(part, "[") {
			continue
		}
		rest = "[" + rest
		for rest != "" {
			if rest[0] != '[' {
				return nil, fmt.Errorf("%w: unexpected %q in %q", ErrInvalidPath, rest, expr)
			}
			end := strings.IndexByte(rest, ']')
			if end < 0 {
				return nil, fmt.Errorf("%w: unclosed bracket in %q", ErrInvalidPath, expr)
			}
			inner := rest[1:end]
			rest = rest[end+1:]
			if inner == "*" {
				path = append(path, Segment{Wildcard: true})
				continue
			}
			idx, err := strconv.Atoi(inner)
			if err != nil || idx < 0 {
				return nil, fmt.Errorf("%w: bad index %q in %q", ErrInvalidPath, inner, expr)
			}
			path = append(path, Segment{Index: idx, IsIndex: true})
		}
	}

	if err := path.validate(); err != nil {
		return nil, err
	}
	return path, nil
}

func (p Path) validate() error {
	if len(p) > MaxPathDepth {
		return fmt.Errorf("%w: %d segments exceeds %d", ErrInvalidPath, len(p), MaxPathDepth)
	}
	wildcards := 0
	for _, seg := range p {
		if seg.Wildcard {
			wildcards++
		}
	}
	if wildcards > MaxWildcards {
		return fmt.Errorf("%w: %d wildcards exceeds %d", ErrInvalidPath, wildcards, MaxWildcards)
	}
	return nil
}

// Resolve walks data along p. A null result counts as unavailable.
func Resolve(p Path, data any) (any, error) {
	if err := p.validate(); err != nil {
		return nil, err
	}
	v, ok := resolve(p, data)
	if !ok || v == nil {
		return nil, fmt.Errorf("%w: path %s", types.ErrDataUnavailable, p)
	}
	return v, nil
}

func resolve(p Path, current any) (any, bool) {
	if len(p) == 0 {
		return current, current != nil
	}
	seg, remaining := p[0], p[1:]

	switch v := current.(type) {
	case map[string]any:
		if seg.Wildcard {
			keys := make([]string, 0, len(v))
			for k := range v {
				keys = append(keys, k)
			}
			sort.Strings(keys)
			for _, k := range keys {
				if found, ok := resolve(remaining, v[k]); ok {
					return found, true
				}
			}
			return nil, false
		}
		if seg.IsIndex {
			return nil, false
		}
		val, ok := v[seg.Key]
		if !ok {
			return nil, false
		}
		return resolve(remaining, val)

	case []any:
		if seg.Wildcard {
			for _, elem := range v {
				if found, ok := resolve(remaining, elem); ok {
					return found, true
				}
			}
			return nil, false
		}
		if !seg.IsIndex || seg.Index >= len(v) {
			return nil, false
		}
		return resolve(remaining, v[seg.Index])

	default:
		// nil or a scalar with path remaining
		return nil, false
	}
}

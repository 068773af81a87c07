package cache

import (
	"fmt"
	"strconv"
	"strings"
)

// Key builds a deterministic hierarchical cache key from a namespace and the
// parameters of a query. Identical parameters always produce identical keys,
// and the ':'-separated layout lets a single glob (for example
// "race:12:*") invalidate everything under one natural key.
func Key(parts ...interface{}) string {
	segs := make([]string, len(parts))
	for i, p := range parts {
		segs[i] = keySegment(p)
	}
	return strings.Join(segs, ":")
}

func keySegment(p interface{}) string {
	switch t := p.(type) {
	case string:
		if t == "" {
			return "_"
		}
		return t
	case int:
		return strconv.Itoa(t)
	case int64:
		return strconv.FormatInt(t, 10)
	case float64:
		return strconv.FormatFloat(t, 'g', -1, 64)
	case bool:
		if t {
			return "1"
		}
		return "0"
	}
	return fmt.Sprintf("%v", p)
}

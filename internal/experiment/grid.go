package experiment

import (
	"maps"
	"slices"
)

// Grid expands params into the cartesian product of its values. Keys are
// visited in sorted order with the last key varying fastest. Keys with no
// values are ignored. An empty params yields a single empty point.
func Grid(params map[string][]string) []map[string]string {
	var keys []string
	for _, k := range slices.Sorted(maps.Keys(params)) {
		if len(params[k]) > 0 {
			keys = append(keys, k)
		}
	}

	points := []map[string]string{{}}
	for _, k := range keys {
		next := make([]map[string]string, 0, len(points)*len(params[k]))
		for _, p := range points {
			for _, v := range params[k] {
				q := maps.Clone(p)
				q[k] = v
				next = append(next, q)
			}
		}
		points = next
	}
	return points
}

package train

import (
	"sort"
)

// Grid maps a hyperparameter name to its candidate values.
type Grid map[string][]any

// Expand produces every combination of the grid in a stable order: keys
// are iterated sorted, the first key varies slowest. An empty grid
// yields a single empty Params so every family is trained at least once.
func (g Grid) Expand() []Params {
	keys := make([]string, 0, len(g))
	for key, values := range g {
		if len(values) > 0 {
			keys = append(keys, key)
		}
	}
	sort.Strings(keys)
	if len(keys) == 0 {
		return []Params{{}}
	}

	out := []Params{{}}
	for _, key := range keys {
		next := make([]Params, 0, len(out)*len(g[key]))
		for _, base := range out {
			for _, value := range g[key] {
				combo := base.Clone()
				combo[key] = value
				next = append(next, combo)
			}
		}
		out = next
	}
	return out
}

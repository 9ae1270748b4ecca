package effects

import "sort"

// Patch is a partial state update keyed by normalized attribute name.
// Keys absent from a patch are left untouched when it is merged.
type Patch map[string]any

// Has reports whether the patch carries key.
func (p Patch) Has(key string) bool {
	_, ok := p[key]
	return ok
}

// Keys returns the patch keys sorted.
func (p Patch) Keys() []string {
	keys := make([]string, 0, len(p))
	for k := range p {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Merge copies every entry of other into p. Nested maps (colour) are merged
// field by field.
func (p Patch) Merge(other Patch) {
	for k, v := range other {
		sub, ok := v.(map[string]any)
		if !ok {
			p[k] = v
			continue
		}
		cur, ok := p[k].(map[string]any)
		if !ok {
			cur = make(map[string]any, len(sub))
		} else {
			cp := make(map[string]any, len(cur)+len(sub))
			for ck, cv := range cur {
				cp[ck] = cv
			}
			cur = cp
		}
		for sk, sv := range sub {
			cur[sk] = sv
		}
		p[k] = cur
	}
}

// Clone returns a shallow copy with nested maps copied.
func (p Patch) Clone() Patch {
	out := make(Patch, len(p))
	out.Merge(p)
	return out
}

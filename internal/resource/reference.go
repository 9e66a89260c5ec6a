package resource

import "strings"

// ReplaceReference rewrites every Reference.reference element equal to oldRef
// so that it points at newRef. Absolute references ending in "/"+oldRef are
// rewritten too, keeping their base URL. It returns the number of elements
// changed.
func (r *Resource) ReplaceReference(oldRef, newRef string) int {
	if oldRef == newRef {
		return 0
	}
	return replaceIn(r.Fields, oldRef, newRef)
}

func replaceIn(v any, oldRef, newRef string) int {
	n := 0
	switch val := v.(type) {
	case map[string]any:
		for k, elem := range val {
			if s, ok := elem.(string); ok && k == "reference" {
				if rewritten, ok := rewriteReference(s, oldRef, newRef); ok {
					val[k] = rewritten
					n++
				}
				continue
			}
			n += replaceIn(elem, oldRef, newRef)
		}
	case []any:
		for _, elem := range val {
			n += replaceIn(elem, oldRef, newRef)
		}
	}
	return n
}

func rewriteReference(s, oldRef, newRef string) (string, bool) {
	if s == oldRef {
		return newRef, true
	}
	if base, ok := strings.CutSuffix(s, "/"+oldRef); ok && strings.Contains(base, "://") {
		return base + "/" + newRef, true
	}
	return s, false
}

package prefilter

import (
	"github.com/armon/go-radix"
	"github.com/google/uuid"
)

/*
 * Prefix index.
 *
 * All finite prefixes across matchers live in one radix trie keyed by byte
 * string; each leaf carries the set of matcher UUIDs whose PrefixSet
 * contains that prefix. A lookup for a context value walks the trie along
 * the value and unions the leaf sets of every stored key that prefixes it,
 * which is exactly the radix WalkPath traversal.
 *
 * Unbounded matchers never enter the trie; the router treats them as
 * always-candidates.
 */

// Index maps literal prefixes to the matchers that require them.
type Index struct {
	field string
	tree  *radix.Tree
}

// New creates an empty index for the nominated String field.
func New(field string) *Index {
	return &Index{field: field, tree: radix.New()}
}

// Field returns the nominated prefilter field.
func (ix *Index) Field() string {
	return ix.field
}

// Insert registers every prefix of ps for id. Unbounded sets are a no-op.
// A previous registration under the same id must be removed first.
func (ix *Index) Insert(id uuid.UUID, ps PrefixSet) {
	if ps.Unbounded {
		return
	}
	for _, p := range ps.Prefixes {
		var leaf map[uuid.UUID]struct{}
		if raw, ok := ix.tree.Get(p); ok {
			leaf = raw.(map[uuid.UUID]struct{})
		} else {
			leaf = make(map[uuid.UUID]struct{})
			ix.tree.Insert(p, leaf)
		}
		leaf[id] = struct{}{}
	}
}

// Remove unregisters every prefix of ps for id, deleting leaves that drain
// so the trie returns to its pre-insert shape.
func (ix *Index) Remove(id uuid.UUID, ps PrefixSet) {
	if ps.Unbounded {
		return
	}
	for _, p := range ps.Prefixes {
		raw, ok := ix.tree.Get(p)
		if !ok {
			continue
		}
		leaf := raw.(map[uuid.UUID]struct{})
		delete(leaf, id)
		if len(leaf) == 0 {
			ix.tree.Delete(p)
		}
	}
}

// Candidates returns the union of matcher ids whose prefix set contains a
// prefix of any of the given values.
func (ix *Index) Candidates(values []string) map[uuid.UUID]struct{} {
	out := make(map[uuid.UUID]struct{})
	for _, v := range values {
		ix.tree.WalkPath(v, func(_ string, raw interface{}) bool {
			for id := range raw.(map[uuid.UUID]struct{}) {
				out[id] = struct{}{}
			}
			return false
		})
	}
	return out
}

// Len returns the number of distinct prefixes stored.
func (ix *Index) Len() int {
	return ix.tree.Len()
}

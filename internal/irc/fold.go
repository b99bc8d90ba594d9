package irc

import "sort"

// Fold maps s to its RFC 2812 case-insensitive form: A-Z become a-z and
// []\~ become {}|^.
func Fold(s string) string {
	var out []byte
	for i := 0; i < len(s); i++ {
		c := s[i]
		f := foldByte(c)
		if f != c && out == nil {
			out = make([]byte, len(s))
			copy(out, s[:i])
		}
		if out != nil {
			out[i] = f
		}
	}
	if out == nil {
		return s
	}
	return string(out)
}

func foldByte(c byte) byte {
	switch {
	case c >= 'A' && c <= 'Z':
		return c + ('a' - 'A')
	case c == '[':
		return '{'
	case c == ']':
		return '}'
	case c == '\\':
		return '|'
	case c == '~':
		return '^'
	}
	return c
}

// EqualFold compares two names under RFC 2812 folding.
func EqualFold(a, b string) bool { return Fold(a) == Fold(b) }

// FoldMap is a case-insensitive map keyed by folded name that remembers the
// most recent original casing of each key.
type FoldMap[V any] struct {
	m map[string]foldEntry[V]
}

type foldEntry[V any] struct {
	name  string
	value V
}

// NewFoldMap returns an empty map.
func NewFoldMap[V any]() *FoldMap[V] {
	return &FoldMap[V]{m: make(map[string]foldEntry[V])}
}

// Get looks up name under folding.
func (fm *FoldMap[V]) Get(name string) (V, bool) {
	e, ok := fm.m[Fold(name)]
	return e.value, ok
}

// Name returns the stored original casing for name.
func (fm *FoldMap[V]) Name(name string) (string, bool) {
	e, ok := fm.m[Fold(name)]
	return e.name, ok
}

// Has reports whether name is present.
func (fm *FoldMap[V]) Has(name string) bool {
	_, ok := fm.m[Fold(name)]
	return ok
}

// Set stores value under name, updating the remembered casing.
func (fm *FoldMap[V]) Set(name string, value V) {
	fm.m[Fold(name)] = foldEntry[V]{name: name, value: value}
}

// Delete removes name; removing an absent name is a no-op.
func (fm *FoldMap[V]) Delete(name string) bool {
	k := Fold(name)
	if _, ok := fm.m[k]; !ok {
		return false
	}
	delete(fm.m, k)
	return true
}

// Len returns the number of entries.
func (fm *FoldMap[V]) Len() int { return len(fm.m) }

// Clear removes all entries.
func (fm *FoldMap[V]) Clear() {
	for k := range fm.m {
		delete(fm.m, k)
	}
}

// Names returns the original casings sorted by folded key.
func (fm *FoldMap[V]) Names() []string {
	keys := make([]string, 0, len(fm.m))
	for k := range fm.m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	out := make([]string, len(keys))
	for i, k := range keys {
		out[i] = fm.m[k].name
	}
	return out
}

// Range visits entries in folded-key order until fn returns false.
func (fm *FoldMap[V]) Range(fn func(name string, value V) bool) {
	keys := make([]string, 0, len(fm.m))
	for k := range fm.m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		e := fm.m[k]
		if !fn(e.name, e.value) {
			return
		}
	}
}

// Clone returns a shallow copy.
func (fm *FoldMap[V]) Clone() *FoldMap[V] {
	out := &FoldMap[V]{m: make(map[string]foldEntry[V], len(fm.m))}
	for k, v := range fm.m {
		out.m[k] = v
	}
	return out
}

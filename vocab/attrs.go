package vocab

import (
	"reflect"
)

// Attrs is the attribute table shared by every object variant. Keys are
// stored in internal lower_snake_case and keep their insertion order.
type Attrs struct {
	typeName string
	known    map[string]struct{} // nil means any key is accepted
	keys     []string
	values   map[string]any
	external map[string]string // wire spelling seen on decode
	context  Context
}

func newAttrs(typeName string, known map[string]struct{}, ctx Context) Attrs {
	return Attrs{
		typeName: typeName,
		known:    known,
		values:   map[string]any{},
		context:  ctx,
	}
}

func (a *Attrs) attrs() *Attrs { return a }

func (a *Attrs) allowed(key string) bool {
	if a.known == nil {
		return true
	}
	_, ok := a.known[key]
	return ok
}

func (a *Attrs) check(key string) (string, error) {
	k := ToInternal(key)
	if !a.allowed(k) {
		return "", &UnknownAttributeError{Type: a.typeName, Key: key}
	}
	return k, nil
}

// Has reports whether the attribute is set. Unknown keys are never set.
func (a *Attrs) Has(key string) bool {
	_, ok := a.values[ToInternal(key)]
	return ok
}

// Get returns the attribute value, nil when it is unset.
func (a *Attrs) Get(key string) (any, error) {
	k, err := a.check(key)
	if err != nil {
		return nil, err
	}
	return a.values[k], nil
}

// Set stores value under key. A nil value removes the attribute.
func (a *Attrs) Set(key string, value any) error {
	k, err := a.check(key)
	if err != nil {
		return err
	}
	a.put(k, value)
	return nil
}

// Add merges value into the collection at key. An existing scalar becomes a
// one-element collection first and the result holds no equal values twice.
func (a *Attrs) Add(key string, value any) error {
	k, err := a.check(key)
	if err != nil {
		return err
	}

	var list []any
	switch cur := a.values[k].(type) {
	case nil:
	case []any:
		list = append(list, cur...)
	case []string:
		for _, s := range cur {
			list = append(list, s)
		}
	default:
		list = append(list, cur)
	}

	switch v := value.(type) {
	case []any:
		list = append(list, v...)
	case []string:
		for _, s := range v {
			list = append(list, s)
		}
	default:
		list = append(list, v)
	}

	a.put(k, dedupe(list))
	return nil
}

// Keys lists the set attributes in insertion order.
func (a *Attrs) Keys() []string {
	out := make([]string, len(a.keys))
	copy(out, a.keys)
	return out
}

// Context returns the object's own namespace table.
func (a *Attrs) Context() Context { return a.context }

// SetContext replaces the namespace table.
func (a *Attrs) SetContext(c Context) { a.context = c }

func (a *Attrs) put(k string, value any) {
	if value == nil {
		if _, ok := a.values[k]; ok {
			delete(a.values, k)
			for i, existing := range a.keys {
				if existing == k {
					a.keys = append(a.keys[:i], a.keys[i+1:]...)
					break
				}
			}
		}
		return
	}
	if _, ok := a.values[k]; !ok {
		a.keys = append(a.keys, k)
	}
	a.values[k] = value
}

// value reads a known attribute without the key check.
func (a *Attrs) value(k string) any { return a.values[k] }

func (a *Attrs) str(k string) string {
	s, _ := a.values[k].(string)
	return s
}

func (a *Attrs) externalKey(k string) string {
	if ext, ok := a.external[k]; ok {
		return ext
	}
	return ToExternal(k)
}

func dedupe(list []any) []any {
	out := make([]any, 0, len(list))
	for _, v := range list {
		dup := false
		for _, seen := range out {
			if equalValues(seen, v) {
				dup = true
				break
			}
		}
		if !dup {
			out = append(out, v)
		}
	}
	return out
}

func equalValues(a, b any) bool {
	oa, aok := a.(Object)
	ob, bok := b.(Object)
	switch {
	case aok && bok:
		if oa.ID() != "" && ob.ID() != "" {
			return oa.ID() == ob.ID()
		}
		return reflect.DeepEqual(Encode(oa, false), Encode(ob, false))
	case aok || bok:
		return false
	}
	return reflect.DeepEqual(a, b)
}

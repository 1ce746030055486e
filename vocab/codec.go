package vocab

import (
	"encoding/json"
	"sort"
	"strings"
	"time"
)

// maxDepth bounds recursive decoding of embedded activities.
const maxDepth = 8

// nestedKeys are the activity attributes decoded into objects.
var nestedKeys = set("object", "target", "origin", "instrument", "result")

// Decode builds a protocol object from its nested-map wire form. Unknown
// types decode to *Generic.
func Decode(raw map[string]any) (Object, error) {
	if raw == nil {
		return nil, &DecodeError{Reason: "empty document"}
	}
	return decode(raw, 0), nil
}

// DecodeJSON parses and decodes a JSON document. The top level must be an
// object.
func DecodeJSON(data []byte) (Object, error) {
	var v any
	if err := json.Unmarshal(data, &v); err != nil {
		return nil, &DecodeError{Reason: "invalid json", Err: err}
	}
	m, ok := v.(map[string]any)
	if !ok {
		return nil, &DecodeError{Reason: "document is not an object"}
	}
	return Decode(m)
}

// New returns an empty object of the registered variant for typ.
func New(typ string) Object {
	switch {
	case IsActivityType(typ):
		return NewActivity(typ)
	case IsActorType(typ):
		return NewActor(typ)
	case IsContentType(typ):
		return NewContent(typ)
	}
	return NewGeneric(typ)
}

func decode(raw map[string]any, depth int) Object {
	obj := New(typeOf(raw["type"]))
	a := obj.attrs()
	if c, ok := raw["@context"]; ok {
		a.context = ParseContext(c)
	}

	for _, ext := range orderedKeys(raw) {
		if strings.HasPrefix(ext, "@") {
			continue
		}
		k := ToInternal(ext)
		if k == "" || !a.allowed(k) {
			continue
		}

		v := raw[ext]
		if k == "type" {
			v = nonEmpty(typeOf(v))
		} else if obj.Kind() == KindActivity {
			if _, ok := nestedKeys[k]; ok && depth < maxDepth {
				v = decodeNested(v, depth+1)
			}
		}
		a.put(k, v)

		if !strings.Contains(ext, ":") && ToExternal(k) != ext {
			if a.external == nil {
				a.external = map[string]string{}
			}
			a.external[k] = ext
		}
	}
	return obj
}

func decodeNested(v any, depth int) any {
	switch t := v.(type) {
	case map[string]any:
		return decode(t, depth)
	case []any:
		out := make([]any, len(t))
		for i, e := range t {
			out[i] = decodeNested(e, depth)
		}
		return out
	}
	return v
}

// orderedKeys puts id and type first and sorts the rest so decoded objects
// have a stable attribute order.
func orderedKeys(raw map[string]any) []string {
	keys := make([]string, 0, len(raw))
	for k := range raw {
		if k != "id" && k != "type" {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	head := make([]string, 0, 2)
	for _, k := range []string{"id", "type"} {
		if _, ok := raw[k]; ok {
			head = append(head, k)
		}
	}
	return append(head, keys...)
}

func typeOf(v any) string {
	switch t := v.(type) {
	case string:
		return t
	case []any:
		for _, e := range t {
			if s, ok := e.(string); ok {
				return s
			}
		}
	}
	return ""
}

// Encode renders obj to its wire map. Only root encodes carry @context;
// embedded objects contribute their tables to the root's.
func Encode(obj Object, includeContext bool) map[string]any {
	if !includeContext {
		return encode(obj, false, obj.Context())
	}
	return encode(obj, true, composedContext(obj, 0))
}

func encode(obj Object, root bool, ctx Context) map[string]any {
	a := obj.attrs()
	out := make(map[string]any, len(a.keys)+1)
	if root && len(ctx) > 0 {
		out["@context"] = ctx.Raw()
	}
	for _, k := range a.keys {
		ext := a.externalKey(k)
		if ctx.IsNamespaced(ext) {
			if p, ok := ctx.Prefix(ext); ok {
				ext = p + ":" + ext
			}
		}
		out[ext] = encodeValue(a.values[k], ctx)
	}
	return out
}

func encodeValue(v any, ctx Context) any {
	switch t := v.(type) {
	case Object:
		return encode(t, false, ctx)
	case []any:
		out := make([]any, len(t))
		for i, e := range t {
			out[i] = encodeValue(e, ctx)
		}
		return out
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, e := range t {
			out[k] = encodeValue(e, ctx)
		}
		return out
	case time.Time:
		return t.UTC().Format(time.RFC3339)
	}
	return v
}

// composedContext appends the tables of embedded objects to obj's own.
func composedContext(obj Object, depth int) Context {
	ctx := obj.Context()
	if depth >= maxDepth {
		return ctx
	}
	a := obj.attrs()
	for _, k := range a.keys {
		for _, e := range asList(a.values[k]) {
			if nested, ok := e.(Object); ok {
				ctx = Compose(ctx, composedContext(nested, depth+1))
			}
		}
	}
	return ctx
}

func marshal(obj Object) ([]byte, error) {
	return json.Marshal(Encode(obj, true))
}

// Clone returns a deep copy of obj through its wire form.
func Clone(obj Object) Object {
	out := decode(Encode(obj, true), 0)
	out.attrs().context = obj.Context()
	return out
}

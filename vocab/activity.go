package vocab

// Activity is a typed message performed by an actor.
type Activity struct {
	base
}

// NewActivity returns an empty activity of the given type.
func NewActivity(typ string) *Activity {
	a := &Activity{base{newAttrs(typ, activityAttributes, activityContext())}}
	a.put("type", nonEmpty(typ))
	return a
}

func (a *Activity) Kind() Kind { return KindActivity }

// Actor returns the URI of the performing actor.
func (a *Activity) Actor() string { return URIOf(a.value("actor")) }

func (a *Activity) SetActor(uri string) { a.put("actor", nonEmpty(uri)) }

// Object returns the raw object value: a URI string, an Object, or a list.
func (a *Activity) Object() any { return a.value("object") }

// ObjectURI returns the URI of the (first) object.
func (a *Activity) ObjectURI() string { return URIOf(a.value("object")) }

// ObjectValue returns the embedded object, nil when the object is a bare URI.
func (a *Activity) ObjectValue() Object {
	v := a.value("object")
	if list, ok := v.([]any); ok && len(list) > 0 {
		v = list[0]
	}
	o, _ := v.(Object)
	return o
}

// SetObject stores the object and pre-fills unset attributes from it.
func (a *Activity) SetObject(v any) {
	a.put("object", v)
	a.prefill()
}

func (a *Activity) Target() any       { return a.value("target") }
func (a *Activity) TargetURI() string { return URIOf(a.value("target")) }
func (a *Activity) Origin() any       { return a.value("origin") }
func (a *Activity) OriginURI() string { return URIOf(a.value("origin")) }

func (a *Activity) SetTarget(v any) { a.put("target", v) }
func (a *Activity) SetOrigin(v any) { a.put("origin", v) }

func (a *Activity) Instrument() any { return a.value("instrument") }
func (a *Activity) Result() any     { return a.value("result") }

func (a *Activity) SetInstrument(v any) { a.put("instrument", v) }
func (a *Activity) SetResult(v any)     { a.put("result", v) }

// IsIntransitive reports whether this activity type carries no object.
func (a *Activity) IsIntransitive() bool { return IsIntransitive(a.Type()) }

func (a *Activity) ToMap(includeContext bool) map[string]any { return Encode(a, includeContext) }

func (a *Activity) MarshalJSON() ([]byte, error) { return marshal(a) }

// Set stores an attribute. Setting "object" pre-fills like SetObject.
func (a *Activity) Set(key string, value any) error {
	if err := a.Attrs.Set(key, value); err != nil {
		return err
	}
	if ToInternal(key) == "object" {
		a.prefill()
	}
	return nil
}

package vocab

import "fmt"

// DecodeError reports input that cannot become a protocol object at all.
type DecodeError struct {
	Reason string
	Err    error
}

func (e *DecodeError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("vocab: decode: %s: %v", e.Reason, e.Err)
	}
	return "vocab: decode: " + e.Reason
}

func (e *DecodeError) Unwrap() error { return e.Err }

// UnknownAttributeError is returned when a typed object is asked for an
// attribute outside its declared set.
type UnknownAttributeError struct {
	Type string
	Key  string
}

func (e *UnknownAttributeError) Error() string {
	return fmt.Sprintf("vocab: %s has no attribute %q", e.Type, e.Key)
}

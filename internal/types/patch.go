package types

// Patch distinguishes "leave unchanged" from "set to this value" (including
// setting to the zero value or clearing an optional field) in partial
// updates. JSON absence leaves Present false; an explicit null or value
// marks the field present.
type Patch[T any] struct {
	Present bool
	Value   T
}

// UnmarshalJSON marks the field present whenever the key appears in the
// request body, null included.
func (p *Patch[T]) UnmarshalJSON(data []byte) error {
	p.Present = true
	if string(data) == "null" {
		var zero T
		p.Value = zero
		return nil
	}
	return jsonUnmarshal(data, &p.Value)
}

// Apply overwrites dst when the patch is present.
func (p Patch[T]) Apply(dst *T) {
	if p.Present {
		*dst = p.Value
	}
}

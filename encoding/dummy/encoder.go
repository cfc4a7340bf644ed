package dummy

import (
	"encoding/json"
)

type Stringer interface {
	String() string
}

type Unmarshaler interface {
	Unmarshal(bs []byte) error
}

// Encoder passes strings and bytes through unchanged,
// and falls back to JSON for other values.
type Encoder struct{}

func NewEncoder() *Encoder {
	return new(Encoder)
}

func (e *Encoder) Marshal(v any) ([]byte, error) {
	switch t := v.(type) {
	case Stringer:
		return []byte(t.String()), nil
	case string:
		return []byte(t), nil
	case []byte:
		return t, nil
	case *string:
		return []byte(*t), nil
	case *[]byte:
		return *t, nil
	}
	return json.Marshal(v)
}

func (e *Encoder) Unmarshal(bs []byte, ret any) error {
	switch t := ret.(type) {
	case Unmarshaler:
		return t.Unmarshal(bs)
	case *string:
		*t = string(bs)
	case *[]byte:
		*t = bs
	default:
		return json.Unmarshal(bs, ret)
	}
	return nil
}

func (e *Encoder) Validate(req any) error {
	return nil
}

func (e *Encoder) GetFormatInstructions() string {
	return ""
}

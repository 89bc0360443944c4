package model

import (
	"encoding/json"
	"strconv"
	"strings"
	"time"

	"github.com/rotisserie/eris"
)

// Kind tags the variant held by a Value.
type Kind string

const (
	KindString Kind = "string"
	KindNumber Kind = "number"
	KindDate   Kind = "date"
	KindBool   Kind = "bool"
	KindList   Kind = "list"
)

// dateLayout is the canonical calendar representation for date values.
const dateLayout = "2006-01-02"

// Value is a tagged union over the field value types extraction can produce.
// Exactly one of the payload fields is meaningful, selected by Kind.
type Value struct {
	Kind Kind
	Str  string
	Num  float64
	Date time.Time
	Bool bool
	List []Value
}

// String builds a string Value.
func String(s string) Value { return Value{Kind: KindString, Str: s} }

// Number builds a numeric Value.
func Number(f float64) Value { return Value{Kind: KindNumber, Num: f} }

// Date builds a date Value, truncated to the calendar day in UTC.
func Date(t time.Time) Value {
	y, m, d := t.UTC().Date()
	return Value{Kind: KindDate, Date: time.Date(y, m, d, 0, 0, 0, 0, time.UTC)}
}

// Bool builds a boolean Value.
func Bool(b bool) Value { return Value{Kind: KindBool, Bool: b} }

// List builds a list Value.
func List(vs ...Value) Value { return Value{Kind: KindList, List: vs} }

// Raw returns the underlying Go value, with dates rendered canonically.
func (v Value) Raw() any {
	switch v.Kind {
	case KindString:
		return v.Str
	case KindNumber:
		return v.Num
	case KindDate:
		return v.Date.Format(dateLayout)
	case KindBool:
		return v.Bool
	case KindList:
		items := make([]any, len(v.List))
		for i, item := range v.List {
			items[i] = item.Raw()
		}
		return items
	default:
		return nil
	}
}

// Display renders the value for logs and reports.
func (v Value) Display() string {
	switch v.Kind {
	case KindString:
		return v.Str
	case KindNumber:
		return strconv.FormatFloat(v.Num, 'f', -1, 64)
	case KindDate:
		return v.Date.Format(dateLayout)
	case KindBool:
		return strconv.FormatBool(v.Bool)
	case KindList:
		parts := make([]string, len(v.List))
		for i, item := range v.List {
			parts[i] = item.Display()
		}
		return "[" + strings.Join(parts, ", ") + "]"
	default:
		return ""
	}
}

type valueJSON struct {
	Kind  Kind            `json:"kind"`
	Value json.RawMessage `json:"value"`
}

// MarshalJSON encodes the value as {"kind": ..., "value": ...}. List items
// keep their tags so nested kinds survive a round trip.
func (v Value) MarshalJSON() ([]byte, error) {
	var inner any
	if v.Kind == KindList {
		inner = v.List
	} else {
		inner = v.Raw()
	}
	raw, err := json.Marshal(inner)
	if err != nil {
		return nil, err
	}
	return json.Marshal(valueJSON{Kind: v.Kind, Value: raw})
}

// UnmarshalJSON decodes the tagged representation produced by MarshalJSON.
func (v *Value) UnmarshalJSON(data []byte) error {
	var vj valueJSON
	if err := json.Unmarshal(data, &vj); err != nil {
		return err
	}
	switch vj.Kind {
	case KindString:
		var s string
		if err := json.Unmarshal(vj.Value, &s); err != nil {
			return err
		}
		*v = String(s)
	case KindNumber:
		var f float64
		if err := json.Unmarshal(vj.Value, &f); err != nil {
			return err
		}
		*v = Number(f)
	case KindDate:
		var s string
		if err := json.Unmarshal(vj.Value, &s); err != nil {
			return err
		}
		t, err := time.Parse(dateLayout, s)
		if err != nil {
			return eris.Wrapf(err, "parse date value %q", s)
		}
		*v = Date(t)
	case KindBool:
		var b bool
		if err := json.Unmarshal(vj.Value, &b); err != nil {
			return err
		}
		*v = Bool(b)
	case KindList:
		var items []Value
		if err := json.Unmarshal(vj.Value, &items); err != nil {
			return err
		}
		*v = Value{Kind: KindList, List: items}
	default:
		return eris.Errorf("unknown value kind: %q", vj.Kind)
	}
	return nil
}

// FromAny converts a decoded JSON value (string, float64, bool, []any) into a
// tagged Value. This is the validation boundary for comparator payloads and
// extraction output: anything else is rejected.
func FromAny(raw any) (Value, error) {
	switch x := raw.(type) {
	case string:
		if t, err := time.Parse(dateLayout, x); err == nil {
			return Date(t), nil
		}
		return String(x), nil
	case float64:
		return Number(x), nil
	case int:
		return Number(float64(x)), nil
	case int64:
		return Number(float64(x)), nil
	case bool:
		return Bool(x), nil
	case []any:
		items := make([]Value, 0, len(x))
		for _, item := range x {
			v, err := FromAny(item)
			if err != nil {
				return Value{}, err
			}
			items = append(items, v)
		}
		return Value{Kind: KindList, List: items}, nil
	case nil:
		return Value{}, eris.New("null field value")
	default:
		return Value{}, eris.Errorf("unsupported field value type %T", raw)
	}
}

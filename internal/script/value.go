package script

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/pkg/errors"
)

// Value is an argument to or a result of a script call. A nil Value stands
// for Python's None.
type Value interface {
	fmt.Stringer
	isValue()
}

// Int is a Python int (bools arrive as 0 or 1).
type Int int64

// Real is a Python float.
type Real float64

// Text is a Python str.
type Text string

// Tuple is a Python tuple or list.
type Tuple []Value

func (Int) isValue()   {}
func (Real) isValue()  {}
func (Text) isValue()  {}
func (Tuple) isValue() {}

func (v Int) String() string  { return strconv.FormatInt(int64(v), 10) }
func (v Real) String() string { return strconv.FormatFloat(float64(v), 'g', -1, 64) }
func (v Text) String() string { return strconv.Quote(string(v)) }

func (v Tuple) String() string {
	parts := make([]string, len(v))
	for i, e := range v {
		parts[i] = format(e)
	}
	if len(v) == 1 {
		return "(" + parts[0] + ",)"
	}
	return "(" + strings.Join(parts, ", ") + ")"
}

func format(v Value) string {
	if v == nil {
		return "None"
	}
	return v.String()
}

// Ints builds a tuple of ints.
func Ints(values ...int) Tuple {
	t := make(Tuple, len(values))
	for i, v := range values {
		t[i] = Int(v)
	}
	return t
}

// Reals builds a tuple of floats.
func Reals(values ...float64) Tuple {
	t := make(Tuple, len(values))
	for i, v := range values {
		t[i] = Real(v)
	}
	return t
}

// Texts builds a tuple of strings.
func Texts(values ...string) Tuple {
	t := make(Tuple, len(values))
	for i, v := range values {
		t[i] = Text(v)
	}
	return t
}

// wireValue is the tagged JSON form exchanged with the interpreter process.
type wireValue struct {
	Int   *int64       `json:"int,omitempty"`
	Real  *float64     `json:"real,omitempty"`
	Text  *string      `json:"text,omitempty"`
	Tuple *[]wireValue `json:"tuple,omitempty"`
	None  bool         `json:"none,omitempty"`
}

func toWire(v Value) (wireValue, error) {
	switch v := v.(type) {
	case nil:
		return wireValue{None: true}, nil
	case Int:
		i := int64(v)
		return wireValue{Int: &i}, nil
	case Real:
		f := float64(v)
		return wireValue{Real: &f}, nil
	case Text:
		s := string(v)
		return wireValue{Text: &s}, nil
	case Tuple:
		elems := make([]wireValue, len(v))
		for i, e := range v {
			w, err := toWire(e)
			if err != nil {
				return wireValue{}, err
			}
			elems[i] = w
		}
		return wireValue{Tuple: &elems}, nil
	default:
		return wireValue{}, errors.Errorf("unsupported value type %T", v)
	}
}

func fromWire(w wireValue) Value {
	switch {
	case w.Int != nil:
		return Int(*w.Int)
	case w.Real != nil:
		return Real(*w.Real)
	case w.Text != nil:
		return Text(*w.Text)
	case w.Tuple != nil:
		t := make(Tuple, len(*w.Tuple))
		for i, e := range *w.Tuple {
			t[i] = fromWire(e)
		}
		return t
	default:
		return nil
	}
}

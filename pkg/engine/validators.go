package engine

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"
)

// ValidatorFunc validates a raw option value and returns it coerced to its
// typed form.
type ValidatorFunc func(raw interface{}) (interface{}, error)

// tags runs tag based checks on already-typed values.
var tags = validator.New()

// checkTag applies a go-playground/validator tag to v and converts the
// failure into a readable reason.
func checkTag(v interface{}, tag, reason string) error {
	if err := tags.Var(v, tag); err != nil {
		return fmt.Errorf("%s", reason)
	}
	return nil
}

// String accepts string scalars. Numbers and booleans are not converted.
func String() ValidatorFunc {
	return func(raw interface{}) (interface{}, error) {
		s, ok := raw.(string)
		if !ok {
			return nil, fmt.Errorf("expected a string, got %s", describe(raw))
		}
		return s, nil
	}
}

// StringLen accepts strings whose length is within [min, max].
func StringLen(min, max int) ValidatorFunc {
	base := String()
	return func(raw interface{}) (interface{}, error) {
		v, err := base(raw)
		if err != nil {
			return nil, err
		}
		s := v.(string)
		tag := fmt.Sprintf("min=%d,max=%d", min, max)
		if err := checkTag(s, tag, fmt.Sprintf("length must be between %d and %d, got %d", min, max, len(s))); err != nil {
			return nil, err
		}
		return s, nil
	}
}

// Identifier accepts C++ identifiers usable as generated variable names.
func Identifier() ValidatorFunc {
	base := String()
	return func(raw interface{}) (interface{}, error) {
		v, err := base(raw)
		if err != nil {
			return nil, err
		}
		s := v.(string)
		if s == "" {
			return nil, fmt.Errorf("identifier must not be empty")
		}
		for i, r := range s {
			switch {
			case r == '_', r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z':
			case r >= '0' && r <= '9' && i > 0:
			default:
				return nil, fmt.Errorf("%q is not a valid identifier", s)
			}
		}
		return s, nil
	}
}

// HexString accepts a hexadecimal string encoding exactly n bytes.
func HexString(n int) ValidatorFunc {
	base := String()
	return func(raw interface{}) (interface{}, error) {
		v, err := base(raw)
		if err != nil {
			return nil, err
		}
		s := strings.TrimPrefix(strings.ToLower(v.(string)), "0x")
		if err := checkTag(s, "hexadecimal", fmt.Sprintf("%q is not hexadecimal", v)); err != nil {
			return nil, err
		}
		if len(s) != 2*n {
			return nil, fmt.Errorf("expected %d hex digits, got %d", 2*n, len(s))
		}
		return s, nil
	}
}

// Bool accepts booleans and the strings true/false/yes/no/on/off.
func Bool() ValidatorFunc {
	return func(raw interface{}) (interface{}, error) {
		switch v := raw.(type) {
		case bool:
			return v, nil
		case string:
			switch strings.ToLower(v) {
			case "true", "yes", "on":
				return true, nil
			case "false", "no", "off":
				return false, nil
			}
		}
		return nil, fmt.Errorf("expected a boolean, got %s", describe(raw))
	}
}

// OneOf accepts one of the given strings, compared case-insensitively. The
// canonical spelling from values is returned.
func OneOf(values ...string) ValidatorFunc {
	base := String()
	return func(raw interface{}) (interface{}, error) {
		v, err := base(raw)
		if err != nil {
			return nil, err
		}
		s := v.(string)
		for _, allowed := range values {
			if strings.EqualFold(s, allowed) {
				return allowed, nil
			}
		}
		return nil, fmt.Errorf("%q is not one of [%s]", s, strings.Join(values, ", "))
	}
}

// IntRange accepts integers within [min, max] and returns an int64.
func IntRange(min, max int64) ValidatorFunc {
	return func(raw interface{}) (interface{}, error) {
		n, err := toInt64(raw)
		if err != nil {
			return nil, err
		}
		tag := fmt.Sprintf("gte=%d,lte=%d", min, max)
		if err := checkTag(n, tag, fmt.Sprintf("value %d is out of range [%d, %d]", n, min, max)); err != nil {
			return nil, err
		}
		return n, nil
	}
}

// UInt8 accepts integers in [0, 255] and returns a uint8.
func UInt8() ValidatorFunc {
	return unsigned(8, func(n int64) interface{} { return uint8(n) })
}

// UInt16 accepts integers in [0, 65535] and returns a uint16.
func UInt16() ValidatorFunc {
	return unsigned(16, func(n int64) interface{} { return uint16(n) })
}

// UInt32 accepts integers in [0, 4294967295] and returns a uint32.
func UInt32() ValidatorFunc {
	return unsigned(32, func(n int64) interface{} { return uint32(n) })
}

func unsigned(bits uint, convert func(int64) interface{}) ValidatorFunc {
	check := IntRange(0, int64(1)<<bits-1)
	return func(raw interface{}) (interface{}, error) {
		v, err := check(raw)
		if err != nil {
			return nil, err
		}
		return convert(v.(int64)), nil
	}
}

// Float accepts numbers and numeric text and returns a float64.
func Float() ValidatorFunc {
	return func(raw interface{}) (interface{}, error) {
		switch v := raw.(type) {
		case float64:
			return v, nil
		case float32:
			return float64(v), nil
		case string:
			f, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
			if err != nil {
				return nil, fmt.Errorf("%q is not a number", v)
			}
			return f, nil
		}
		n, err := toInt64(raw)
		if err != nil {
			return nil, fmt.Errorf("expected a number, got %s", describe(raw))
		}
		return float64(n), nil
	}
}

// Sequence accepts a list whose items all pass item and returns []interface{}.
// A single scalar is accepted as a one element list.
func Sequence(item ValidatorFunc) ValidatorFunc {
	return func(raw interface{}) (interface{}, error) {
		var items []interface{}
		switch v := raw.(type) {
		case []interface{}:
			items = v
		case []string:
			for _, s := range v {
				items = append(items, s)
			}
		case map[string]interface{}:
			return nil, fmt.Errorf("expected a list, got a mapping")
		default:
			items = []interface{}{v}
		}

		out := make([]interface{}, 0, len(items))
		for i, it := range items {
			v, err := item(it)
			if err != nil {
				return nil, fmt.Errorf("item %d: %w", i, err)
			}
			out = append(out, v)
		}
		return out, nil
	}
}

// toInt64 converts integer-like raw values. Integral floats and decimal or
// 0x-prefixed hexadecimal text are accepted.
func toInt64(raw interface{}) (int64, error) {
	switch v := raw.(type) {
	case int:
		return int64(v), nil
	case int8:
		return int64(v), nil
	case int16:
		return int64(v), nil
	case int32:
		return int64(v), nil
	case int64:
		return v, nil
	case uint:
		if uint64(v) > math.MaxInt64 {
			return 0, fmt.Errorf("value %d is too large", v)
		}
		return int64(v), nil
	case uint8:
		return int64(v), nil
	case uint16:
		return int64(v), nil
	case uint32:
		return int64(v), nil
	case uint64:
		if v > math.MaxInt64 {
			return 0, fmt.Errorf("value %d is too large", v)
		}
		return int64(v), nil
	case float64:
		if v != math.Trunc(v) || math.IsInf(v, 0) || math.IsNaN(v) {
			return 0, fmt.Errorf("expected an integer, got %v", v)
		}
		return int64(v), nil
	case string:
		n, err := strconv.ParseInt(strings.TrimSpace(v), 0, 64)
		if err != nil {
			return 0, fmt.Errorf("%q is not an integer", v)
		}
		return n, nil
	}
	return 0, fmt.Errorf("expected an integer, got %s", describe(raw))
}

// describe names the type of a raw value for error messages.
func describe(raw interface{}) string {
	switch raw.(type) {
	case nil:
		return "null"
	case string:
		return "a string"
	case bool:
		return "a boolean"
	case int, int8, int16, int32, int64, uint, uint8, uint16, uint32, uint64:
		return "an integer"
	case float32, float64:
		return "a number"
	case []interface{}:
		return "a list"
	case map[string]interface{}, Options:
		return "a mapping"
	default:
		return fmt.Sprintf("%T", raw)
	}
}

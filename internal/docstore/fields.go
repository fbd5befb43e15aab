package docstore

import (
	"cmp"
	"fmt"
	"time"
)

// TimeLayout is the fixed-width UTC encoding used when time values are serialized, so that
// lexical order matches chronological order.
const TimeLayout = "2006-01-02T15:04:05.000000000Z"

type serverTimestamp struct{}

// ServerTimestamp may be used as a field value; the store replaces it with its own clock
// at write time.
var ServerTimestamp any = serverTimestamp{}

// Fields holds the contents of a document.
type Fields map[string]any

// String returns the string value of key, or "" when absent or not a string.
func (f Fields) String(key string) string {
	if s, ok := f[key].(string); ok {
		return s
	}
	return ""
}

// Time returns the time value of key. Encoded times are decoded from TimeLayout or RFC3339.
func (f Fields) Time(key string) time.Time {
	switch v := f[key].(type) {
	case time.Time:
		return v.UTC()
	case string:
		if t, err := time.Parse(TimeLayout, v); err == nil {
			return t
		}
		if t, err := time.Parse(time.RFC3339Nano, v); err == nil {
			return t.UTC()
		}
	}
	return time.Time{}
}

// Resolve copies fields, substituting ServerTimestamp with now and normalizing times to UTC.
func Resolve(fields Fields, now time.Time) Fields {
	out := make(Fields, len(fields))
	for k, v := range fields {
		switch t := v.(type) {
		case serverTimestamp:
			out[k] = now.UTC()
		case time.Time:
			out[k] = t.UTC()
		default:
			out[k] = v
		}
	}
	return out
}

// Encode converts fields into JSON-friendly values, writing times in TimeLayout.
func Encode(fields Fields) Fields {
	out := make(Fields, len(fields))
	for k, v := range fields {
		if t, ok := v.(time.Time); ok {
			out[k] = t.UTC().Format(TimeLayout)
			continue
		}
		out[k] = v
	}
	return out
}

// EncodeValue converts a single filter value the same way Encode does.
func EncodeValue(v any) any {
	if t, ok := v.(time.Time); ok {
		return t.UTC().Format(TimeLayout)
	}
	return v
}

func compareValues(a, b any) int {
	switch x := a.(type) {
	case time.Time:
		if y, ok := b.(time.Time); ok {
			return x.Compare(y)
		}
	case string:
		if y, ok := b.(string); ok {
			return cmp.Compare(x, y)
		}
	case bool:
		if y, ok := b.(bool); ok {
			switch {
			case x == y:
				return 0
			case !x:
				return -1
			default:
				return 1
			}
		}
	}
	if x, ok := toFloat(a); ok {
		if y, ok := toFloat(b); ok {
			return cmp.Compare(x, y)
		}
	}
	if a == nil || b == nil {
		switch {
		case a == nil && b == nil:
			return 0
		case a == nil:
			return -1
		default:
			return 1
		}
	}
	return cmp.Compare(fmt.Sprint(a), fmt.Sprint(b))
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case int:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case float32:
		return float64(n), true
	case float64:
		return n, true
	}
	return 0, false
}

package chain

import (
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"
)

var errFieldMissing = errors.New("field missing")

// record is a provider JSON object decoded with UseNumber
type record map[string]any

// lookup returns the first present, non-null value among candidate keys.
// Dotted keys descend into nested objects.
func (r record) lookup(keys ...string) (any, string, bool) {
	for _, key := range keys {
		var cur any = map[string]any(r)
		found := true
		for _, part := range strings.Split(key, ".") {
			m, ok := cur.(map[string]any)
			if !ok {
				found = false
				break
			}
			v, ok := m[part]
			if !ok || v == nil {
				found = false
				break
			}
			cur = v
		}
		if found {
			return cur, key, true
		}
	}
	return nil, "", false
}

func (r record) str(keys ...string) (string, error) {
	v, key, ok := r.lookup(keys...)
	if !ok {
		return "", fmt.Errorf("%v: %w", keys, errFieldMissing)
	}
	switch t := v.(type) {
	case string:
		return t, nil
	case json.Number:
		return t.String(), nil
	default:
		return "", fmt.Errorf("%s: unexpected type %T", key, v)
	}
}

func (r record) decimal(keys ...string) (decimal.Decimal, error) {
	v, key, ok := r.lookup(keys...)
	if !ok {
		return decimal.Zero, fmt.Errorf("%v: %w", keys, errFieldMissing)
	}
	var s string
	switch t := v.(type) {
	case string:
		s = strings.TrimSpace(t)
	case json.Number:
		s = t.String()
	default:
		return decimal.Zero, fmt.Errorf("%s: unexpected type %T", key, v)
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, fmt.Errorf("%s: %w", key, err)
	}
	return d, nil
}

// int returns integer field; missing field is reported as ok=false
func (r record) int(keys ...string) (int64, bool, error) {
	v, key, ok := r.lookup(keys...)
	if !ok {
		return 0, false, nil
	}
	var s string
	switch t := v.(type) {
	case string:
		s = strings.TrimSpace(t)
	case json.Number:
		s = t.String()
	default:
		return 0, true, fmt.Errorf("%s: unexpected type %T", key, v)
	}
	if s == "" {
		return 0, false, nil
	}
	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0, true, fmt.Errorf("%s: %w", key, err)
	}
	return n, true, nil
}

func (r record) boolean(keys ...string) (bool, bool) {
	v, _, ok := r.lookup(keys...)
	if !ok {
		return false, false
	}
	switch t := v.(type) {
	case bool:
		return t, true
	case string:
		b, err := strconv.ParseBool(t)
		return b, err == nil
	default:
		return false, false
	}
}

// records converts decoded JSON array to records, dropping non-objects
func records(v any) []record {
	arr, ok := v.([]any)
	if !ok {
		return nil
	}
	out := make([]record, 0, len(arr))
	for _, item := range arr {
		if m, ok := item.(map[string]any); ok {
			out = append(out, record(m))
		}
	}
	return out
}

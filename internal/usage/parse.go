package usage

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/atinyakov/oroio/internal/models"
)

// Field names tried in priority order. The upstream schema is not ours, so
// every lookup is best effort.
var (
	sectionFields = []string{"standard", "premium", "total", "main"}
	totalFields   = []string{"totalAllowance", "basicAllowance", "allowance"}
	usedFields    = []string{"orgTotalTokensUsed", "used", "tokensUsed"}
	overageFields = []string{"orgOverageUsed"}
	expiryFields  = []string{"endDate", "expire_at", "expires_at"}
)

// ParseUsage extracts a snapshot from a usage response body. An error means
// the body was not usable at all; a body without a usage document yields a
// "no_usage" snapshot and no error.
func ParseUsage(body []byte) (models.Snapshot, error) {
	dec := json.NewDecoder(bytes.NewReader(body))
	dec.UseNumber()
	var doc map[string]any
	if err := dec.Decode(&doc); err != nil {
		return models.Snapshot{}, fmt.Errorf("decode usage: %w", err)
	}

	snap := models.EmptySnapshot()
	usage, ok := doc["usage"].(map[string]any)
	if !ok || len(usage) == 0 {
		snap.Raw = models.RawNoUsage
		return snap, nil
	}

	if section := firstSection(usage); section != nil {
		total, hasTotal, err := pick(section, totalFields)
		if err != nil {
			return models.Snapshot{}, err
		}
		used, _, err := pick(section, usedFields)
		if err != nil {
			return models.Snapshot{}, err
		}
		overage, _, err := pick(section, overageFields)
		if err != nil {
			return models.Snapshot{}, err
		}
		used += overage
		if hasTotal {
			snap.Total = int64(total)
			snap.Used = int64(used)
			snap.BalanceNum = int64(total - used)
			snap.Balance = snap.BalanceNum
		}
	}

	if v := pickAny(usage, expiryFields); v != nil {
		snap.Expires = formatExpiry(v)
	}
	return snap, nil
}

func firstSection(usage map[string]any) map[string]any {
	for _, name := range sectionFields {
		if s, ok := usage[name].(map[string]any); ok && len(s) > 0 {
			return s
		}
	}
	return nil
}

// pick returns the first non-zero numeric field. When every field is zero or
// absent it reports whether the last field was present, so an explicit zero
// in the final fallback still counts as a value.
func pick(m map[string]any, fields []string) (float64, bool, error) {
	for i, name := range fields {
		v, present, err := number(m[name])
		if err != nil {
			return 0, false, fmt.Errorf("field %s: %w", name, err)
		}
		if present && v != 0 {
			return v, true, nil
		}
		if i == len(fields)-1 {
			return v, present, nil
		}
	}
	return 0, false, nil
}

// number converts a JSON value to a float. nil, false and "" are absent.
func number(v any) (float64, bool, error) {
	switch t := v.(type) {
	case nil:
		return 0, false, nil
	case json.Number:
		f, err := t.Float64()
		return f, err == nil, err
	case string:
		if t == "" {
			return 0, false, nil
		}
		f, err := strconv.ParseFloat(t, 64)
		return f, err == nil, err
	case bool:
		if !t {
			return 0, false, nil
		}
		return 1, true, nil
	default:
		return 0, false, fmt.Errorf("unexpected %T", v)
	}
}

// pickAny returns the first truthy value, or the last field's value when
// none is truthy.
func pickAny(m map[string]any, fields []string) any {
	var last any
	for _, name := range fields {
		last = m[name]
		if truthy(last) {
			return last
		}
	}
	return last
}

func truthy(v any) bool {
	switch t := v.(type) {
	case nil:
		return false
	case json.Number:
		f, err := t.Float64()
		return err == nil && f != 0
	case string:
		return t != ""
	case bool:
		return t
	case map[string]any:
		return len(t) > 0
	case []any:
		return len(t) > 0
	default:
		return true
	}
}

// formatExpiry renders unix-millisecond timestamps as a UTC date and passes
// anything else through.
func formatExpiry(v any) string {
	switch t := v.(type) {
	case json.Number:
		if f, err := t.Float64(); err == nil {
			return msDate(int64(f))
		}
		return t.String()
	case string:
		if isDigits(t) {
			if ms, err := strconv.ParseInt(t, 10, 64); err == nil {
				return msDate(ms)
			}
		}
		return t
	default:
		return fmt.Sprint(v)
	}
}

func msDate(ms int64) string {
	return time.UnixMilli(ms).UTC().Format(time.DateOnly)
}

func isDigits(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

package tools

import (
	"strconv"
	"strings"
)

// Key aliases the planner (or an LLM) commonly emits. Applied before schema
// validation so both spellings are accepted.
var keyAliases = map[string]string{
	"start_date":  "startDate",
	"end_date":    "endDate",
	"product_ids": "productIds",
	"n":           "limit",
	"topN":        "limit",
	"top_n":       "limit",
}

// Metric synonyms coerced to the canonical metric domain.
var metricSynonyms = map[string]string{
	"revenue":    "sales",
	"gmv":        "sales",
	"traffic":    "sessions",
	"visits":     "sessions",
	"visit":      "sessions",
	"conversion": "conversion_rate",
	"cvr":        "conversion_rate",
}

// dateKeys are argument keys holding ISO dates; full timestamps are trimmed
// to their date prefix.
var dateKeys = map[string]bool{
	"startDate": true,
	"endDate":   true,
	"date":      true,
}

// NormalizeArgs rewrites common aliases and sloppy values into the canonical
// argument shape. The input map is not mutated.
func NormalizeArgs(args map[string]any) map[string]any {
	out := make(map[string]any, len(args))
	for k, v := range args {
		if canonical, ok := keyAliases[k]; ok {
			k = canonical
		}
		out[k] = coerceValue(k, v)
	}
	return out
}

func coerceValue(key string, v any) any {
	switch key {
	case "metric":
		if s, ok := v.(string); ok {
			m := strings.ToLower(strings.TrimSpace(s))
			if canonical, ok := metricSynonyms[m]; ok {
				return canonical
			}
			return m
		}
	case "grain":
		if s, ok := v.(string); ok && strings.EqualFold(s, "daily") {
			return "day"
		}
	case "limit":
		return coerceInt(v)
	case "productIds":
		if list, ok := v.([]any); ok {
			out := make([]any, len(list))
			for i, item := range list {
				out[i] = item
			}
			return out
		}
		if list, ok := v.([]string); ok {
			out := make([]any, len(list))
			for i, item := range list {
				out[i] = item
			}
			return out
		}
	case "points":
		if list, ok := v.([]any); ok {
			out := make([]any, len(list))
			for i, item := range list {
				if m, ok := item.(map[string]any); ok {
					out[i] = normalizePoint(m)
				} else {
					out[i] = item
				}
			}
			return out
		}
	}
	if dateKeys[key] {
		if s, ok := v.(string); ok {
			return trimISODate(s)
		}
	}
	return v
}

func normalizePoint(m map[string]any) map[string]any {
	out := make(map[string]any, len(m))
	for k, v := range m {
		if k == "date" {
			if s, ok := v.(string); ok {
				out[k] = trimISODate(s)
				continue
			}
		}
		out[k] = v
	}
	return out
}

// coerceInt folds numeric strings and whole floats into JSON-integer form.
func coerceInt(v any) any {
	switch val := v.(type) {
	case string:
		if n, err := strconv.Atoi(strings.TrimSpace(val)); err == nil {
			return float64(n)
		}
	case float64:
		return val
	case int:
		return float64(val)
	case int64:
		return float64(val)
	}
	return v
}

// trimISODate reduces a full ISO timestamp to its date prefix.
func trimISODate(s string) string {
	if len(s) > 10 && s[4] == '-' && s[7] == '-' && (s[10] == 'T' || s[10] == ' ') {
		return s[:10]
	}
	return s
}

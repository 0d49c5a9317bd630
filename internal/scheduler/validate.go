package scheduler

import (
	"strconv"

	"gis-map-server/internal/order"
)

// Validate reports whether params carries all six required fields with
// well-formed values, per spec.md §4.1: lat/lon must parse as
// floating-point, and scale/w/h must be non-negative decimal integers.
// format is passed through verbatim — the renderer itself rejects
// unsupported formats by exit code.
func Validate(params map[string]string) bool {
	for _, key := range order.RequiredParams {
		if _, ok := params[key]; !ok {
			return false
		}
	}
	if _, err := strconv.ParseFloat(params["lat"], 64); err != nil {
		return false
	}
	if _, err := strconv.ParseFloat(params["lon"], 64); err != nil {
		return false
	}
	for _, key := range []string{"scale", "w", "h"} {
		if !isNonNegativeInt(params[key]) {
			return false
		}
	}
	return true
}

func isNonNegativeInt(s string) bool {
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

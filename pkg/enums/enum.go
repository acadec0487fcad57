package enums

import (
	"fmt"
	"slices"
)

// parse matches value exactly against the canonical set. Values are stored
// verbatim in Postgres enums, so no case folding happens here.
func parse[T ~string](value string, valid []T, label string) (T, error) {
	if i := slices.Index(valid, T(value)); i >= 0 {
		return valid[i], nil
	}
	var zero T
	return zero, fmt.Errorf("invalid %s %q", label, value)
}

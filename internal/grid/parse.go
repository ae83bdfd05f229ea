package grid

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"sipoma-sync/internal/domain"
)

// Validation failures are rejected locally, before any network call.
var (
	ErrNotNumeric = errors.New("value is not numeric")
	ErrOutOfRange = errors.New("value outside parameter bounds")
)

// ParseNumeric parses operator input in the plant's locale, where "."
// separates thousands and "," is the decimal mark.
//
// Disambiguation policy for dot-only input (the source's heuristic,
// made explicit): when a comma is present every dot is a thousands
// separator. Without a comma, a single dot followed by exactly three
// digits (with at least one digit before it) is a thousands separator;
// any other single dot is a decimal point. Multiple dots are always
// separators.
func ParseNumeric(raw string) (float64, error) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return 0, ErrNotNumeric
	}

	neg := false
	switch s[0] {
	case '-':
		neg = true
		s = s[1:]
	case '+':
		s = s[1:]
	}
	if s == "" {
		return 0, ErrNotNumeric
	}

	hasComma := strings.Contains(s, ",")
	dots := strings.Count(s, ".")

	switch {
	case hasComma:
		if strings.Count(s, ",") > 1 {
			return 0, ErrNotNumeric
		}
		s = strings.ReplaceAll(s, ".", "")
		s = strings.Replace(s, ",", ".", 1)
	case dots == 1:
		i := strings.Index(s, ".")
		if i >= 1 && len(s)-i-1 == 3 {
			s = strings.ReplaceAll(s, ".", "")
		}
	case dots > 1:
		s = strings.ReplaceAll(s, ".", "")
	}

	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, ErrNotNumeric
	}
	if neg {
		v = -v
	}
	return v, nil
}

// NormalizeInput converts raw operator input into the cell value that
// will be stored, applying the parameter's data kind and numeric bounds
// for the plant unit. Empty input means "clear the cell" and returns a
// nil cell.
func NormalizeInput(def *domain.ParameterDefinition, unit, raw string) (*domain.CellValue, error) {
	if strings.TrimSpace(raw) == "" {
		return nil, nil
	}

	v, perr := ParseNumeric(raw)

	if def.DataKind == domain.KindText {
		// Text parameters still keep parseable numbers numeric so
		// aggregates can see them.
		if perr == nil {
			return domain.NumberCell(v), nil
		}
		return domain.TextCell(strings.TrimSpace(raw)), nil
	}

	if perr != nil {
		return nil, fmt.Errorf("%q: %w", raw, perr)
	}
	min, max := def.BoundsFor(unit)
	if min != nil && v < *min {
		return nil, fmt.Errorf("%v below minimum %v: %w", v, *min, ErrOutOfRange)
	}
	if max != nil && v > *max {
		return nil, fmt.Errorf("%v above maximum %v: %w", v, *max, ErrOutOfRange)
	}
	return domain.NumberCell(v), nil
}

package canonical

import (
	"fmt"
	"math/big"
	"regexp"
	"strings"
)

// MaxUnscaledCGPA bounds a CGPA given without an explicit "/scale" suffix.
const MaxUnscaledCGPA = "10"

// MaxCGPAScale bounds the explicit scale (percentages are the largest).
const MaxCGPAScale = "100"

var decimalPattern = regexp.MustCompile(`^(0|[1-9][0-9]{0,2})(\.[0-9]{1,4})?$`)

// recognizedGrades are the scale strings accepted in place of a number.
var recognizedGrades = map[string]bool{
	"A+": true, "A": true, "A-": true,
	"B+": true, "B": true, "B-": true,
	"C+": true, "C": true, "C-": true,
	"D+": true, "D": true, "D-": true,
	"E": true, "F": true,
	"FIRST CLASS":                  true,
	"FIRST CLASS WITH DISTINCTION": true,
	"SECOND CLASS UPPER":           true,
	"SECOND CLASS LOWER":           true,
	"THIRD CLASS":                  true,
	"DISTINCTION":                  true,
	"MERIT":                        true,
	"PASS":                         true,
}

// CGPA is a validated grade. Numeric grades keep their exact decimal text.
type CGPA struct {
	Value string
	Scale string
	Grade string
}

// String returns the canonical text of the grade.
func (g CGPA) String() string {
	if g.Grade != "" {
		return g.Grade
	}
	if g.Scale != "" {
		return g.Value + "/" + g.Scale
	}
	return g.Value
}

// IsNumeric reports whether the grade is a number rather than a scale string.
func (g CGPA) IsNumeric() bool {
	return g.Grade == ""
}

// ParseCGPA validates a CGPA string. Accepted forms are a decimal in
// [0, MaxUnscaledCGPA], "<value>/<scale>" with 0 < scale <= MaxCGPAScale and
// value <= scale, or one of the recognized grade strings (case-insensitive).
func ParseCGPA(raw string) (CGPA, error) {
	text, err := NormalizeText(raw)
	if err != nil {
		return CGPA{}, err
	}

	upper := strings.ToUpper(text)
	if recognizedGrades[upper] {
		return CGPA{Grade: upper}, nil
	}

	valueText, scaleText, hasScale := strings.Cut(text, "/")
	valueText = strings.TrimSpace(valueText)
	scaleText = strings.TrimSpace(scaleText)

	value, err := parseDecimal(valueText)
	if err != nil {
		return CGPA{}, fmt.Errorf("cgpa value %q: %w", valueText, err)
	}
	if value.Sign() < 0 {
		return CGPA{}, fmt.Errorf("cgpa must not be negative")
	}

	if !hasScale {
		limit, _ := new(big.Rat).SetString(MaxUnscaledCGPA)
		if value.Cmp(limit) > 0 {
			return CGPA{}, fmt.Errorf("cgpa %s exceeds %s; give an explicit scale such as %s/100", valueText, MaxUnscaledCGPA, valueText)
		}
		return CGPA{Value: valueText}, nil
	}

	scale, err := parseDecimal(scaleText)
	if err != nil {
		return CGPA{}, fmt.Errorf("cgpa scale %q: %w", scaleText, err)
	}
	maxScale, _ := new(big.Rat).SetString(MaxCGPAScale)
	if scale.Sign() <= 0 || scale.Cmp(maxScale) > 0 {
		return CGPA{}, fmt.Errorf("cgpa scale must be greater than 0 and at most %s", MaxCGPAScale)
	}
	if value.Cmp(scale) > 0 {
		return CGPA{}, fmt.Errorf("cgpa %s exceeds its scale %s", valueText, scaleText)
	}

	return CGPA{Value: valueText, Scale: scaleText}, nil
}

func parseDecimal(s string) (*big.Rat, error) {
	if !decimalPattern.MatchString(s) {
		return nil, fmt.Errorf("not a decimal number")
	}
	r, ok := new(big.Rat).SetString(s)
	if !ok {
		return nil, fmt.Errorf("not a decimal number")
	}
	return r, nil
}

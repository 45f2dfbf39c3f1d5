// Package dosage turns free-text label fields into values that satisfy the
// catalog's storage constraints. Nothing here returns an error: malformed
// input degrades to safe defaults.
package dosage

import (
	"regexp"
	"strconv"
	"strings"
)

// Unit is a canonical dosage unit.
type Unit string

const (
	UnitMG      Unit = "mg"
	UnitG       Unit = "g"
	UnitMCG     Unit = "mcg"
	UnitIU      Unit = "IU"
	UnitML      Unit = "ml"
	UnitServing Unit = "serving"
)

// Form is the physical form of a supplement.
type Form string

const (
	FormCapsule Form = "capsule"
	FormTablet  Form = "tablet"
	FormPowder  Form = "powder"
	FormLiquid  Form = "liquid"
	FormGummy   Form = "gummy"
	FormSoftgel Form = "softgel"
	FormOther   Form = "other"
)

const (
	// DefaultAmount is used whenever the numeric portion is missing or not positive.
	DefaultAmount = 1.0
	// DefaultUnit is used when the trailing text matches no known unit.
	DefaultUnit = UnitMG
	// DefaultForm replaces any form outside the enum.
	DefaultForm = FormCapsule
	// DefaultServings is used when a label does not state servings per container.
	DefaultServings = 30
)

// Units lists the whitelist in match priority order.
var Units = []Unit{UnitMG, UnitG, UnitMCG, UnitIU, UnitML, UnitServing}

// Forms lists every accepted form.
var Forms = []Form{FormCapsule, FormTablet, FormPowder, FormLiquid, FormGummy, FormSoftgel, FormOther}

var amountPattern = regexp.MustCompile(`^([\d.]+)\s*(.*)$`)

// Dosage is a validated amount and unit.
type Dosage struct {
	Amount float64 `json:"amount"`
	Unit   Unit    `json:"unit"`
	// Defaulted reports whether the amount or unit had to be substituted.
	Defaulted bool `json:"-"`
}

// String renders the serving size label, e.g. "500 mg".
func (d Dosage) String() string {
	return strconv.FormatFloat(d.Amount, 'f', -1, 64) + " " + string(d.Unit)
}

// Label is the normalized dosage/unit/form triple stored on a product.
type Label struct {
	Dosage
	Form Form `json:"form"`
	// LowConfidence is set when any field fell back to a default.
	LowConfidence bool `json:"low_confidence"`
}

// Parse splits text such as "500 mg" into an amount and a unit.
func Parse(text string) Dosage {
	trimmed := strings.TrimSpace(text)

	result := Dosage{Amount: DefaultAmount, Unit: DefaultUnit}
	rest := trimmed

	match := amountPattern.FindStringSubmatch(trimmed)
	if match == nil {
		result.Defaulted = true
	} else {
		rest = match[2]
		amount, err := strconv.ParseFloat(match[1], 64)
		if err != nil || amount <= 0 {
			result.Defaulted = true
		} else {
			result.Amount = amount
		}
	}

	unit, ok := matchUnit(rest)
	if !ok {
		result.Defaulted = true
	}
	result.Unit = unit

	return result
}

func matchUnit(text string) (Unit, bool) {
	lowered := strings.ToLower(strings.TrimSpace(text))
	if lowered == "" {
		return DefaultUnit, false
	}
	for _, unit := range Units {
		if strings.HasPrefix(lowered, strings.ToLower(string(unit))) {
			return unit, true
		}
	}
	return DefaultUnit, false
}

// NormalizeForm coerces any value outside the enum to capsule.
func NormalizeForm(raw string) Form {
	form, _ := normalizeForm(raw)
	return form
}

func normalizeForm(raw string) (Form, bool) {
	candidate := Form(strings.ToLower(strings.TrimSpace(raw)))
	for _, form := range Forms {
		if candidate == form {
			return form, true
		}
	}
	return DefaultForm, false
}

// ParseLabel combines Parse and NormalizeForm.
func ParseLabel(dosageText, formText string) Label {
	d := Parse(dosageText)
	form, ok := normalizeForm(formText)
	return Label{
		Dosage:        d,
		Form:          form,
		LowConfidence: d.Defaulted || !ok,
	}
}

// NormalizeServings maps a missing (zero) count to DefaultServings and floors
// the result at one.
func NormalizeServings(n int) int {
	if n == 0 {
		n = DefaultServings
	}
	if n < 1 {
		return 1
	}
	return n
}

// Package rules is the correction-rule selector (C11): a deterministic
// layering of a template's own rules with reliability-triggered rules,
// each added only once.
package rules

import (
	"strconv"

	"github.com/preflight/governor/internal/governance"
)

// StandardRules is the registry of built-in correction rules recognised
// by field-compatibility validation.
var StandardRules = map[string]governance.CorrectionRule{
	"sum_line_items": {
		Field: "total", Rule: "sum_line_items",
		Parameters: map[string]any{"tolerance": 0.01},
	},
	"iso8601_normalize": {
		Field: "date", Rule: "iso8601_normalize",
		Parameters: map[string]any{"output_format": "YYYY-MM-DD"},
	},
	"currency_standardize": {
		Field: "amount", Rule: "currency_standardize",
		Parameters: map[string]any{"decimal_places": 2},
	},
	"address_normalize": {
		Field: "address", Rule: "address_normalize",
		Parameters: map[string]any{"format": "usps"},
	},
	"name_case_normalize": {
		Field: "name", Rule: "name_case_normalize",
		Parameters: map[string]any{"style": "title"},
	},
	"cross_field_validation": {
		Field: "*", Rule: "cross_field_validation",
		Parameters: map[string]any{"strict": false},
	},
	"confidence_threshold": {
		Field: "*", Rule: "confidence_threshold",
		Parameters: map[string]any{"min_confidence": 0.80},
	},
}

func hasRule(rs []governance.CorrectionRule, name string) bool {
	for _, r := range rs {
		if r.Rule == name {
			return true
		}
	}
	return false
}

// Select layers a template's own correction rules with rules triggered
// by the reliability score, in this fixed order:
//
//  1. the template's defined rules, as-is
//  2. below 0.95: cross_field_validation (strict iff reliability < 0.80),
//     unless already present
//  3. below 0.80: confidence_threshold plus enhanced_validation, each
//     unless already present
//  4. below 0.60: flag_for_review, carrying the triggering score
func Select(template governance.Template, reliabilityScore float64) []governance.CorrectionRule {
	out := make([]governance.CorrectionRule, 0, len(template.CorrectionRules)+3)
	out = append(out, template.CorrectionRules...)

	if reliabilityScore < 0.95 {
		if !hasRule(out, "cross_field_validation") {
			out = append(out, governance.CorrectionRule{
				Field: "*", Rule: "cross_field_validation",
				Parameters: map[string]any{"strict": reliabilityScore < 0.80},
			})
		}
	}

	if reliabilityScore < 0.80 {
		if !hasRule(out, "confidence_threshold") {
			out = append(out, governance.CorrectionRule{
				Field: "*", Rule: "confidence_threshold",
				Parameters: map[string]any{"min_confidence": 0.85},
			})
		}
		if !hasRule(out, "enhanced_validation") {
			out = append(out, governance.CorrectionRule{
				Field: "*", Rule: "enhanced_validation",
				Parameters: map[string]any{"level": "strict"},
			})
		}
	}

	if reliabilityScore < 0.60 {
		out = append(out, governance.CorrectionRule{
			Field: "*", Rule: "flag_for_review",
			Parameters: map[string]any{"reason": "low_reliability", "threshold": reliabilityScore},
		})
	}

	return out
}

// Validate checks field/rule presence and, for rules that match a
// StandardRules entry, field compatibility (a standard rule whose field
// is not "*" must be applied to its own field or to "*", not some other
// specific field). Custom (non-standard) rule names are accepted
// without further validation.
func Validate(rs []governance.CorrectionRule) []string {
	var errs []string
	for i, r := range rs {
		if r.Field == "" {
			errs = append(errs, fieldErr(i, "field is required"))
		}
		if r.Rule == "" {
			errs = append(errs, fieldErr(i, "rule name is required"))
		}
		if standard, ok := StandardRules[r.Rule]; ok {
			if standard.Field != "*" && r.Field != "*" && r.Field != standard.Field {
				errs = append(errs, fieldErr(i, r.Rule+" is designed for field '"+standard.Field+"', not '"+r.Field+"'"))
			}
		}
	}
	return errs
}

func fieldErr(i int, msg string) string {
	return "rule " + strconv.Itoa(i) + ": " + msg
}

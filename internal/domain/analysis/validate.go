package analysis

import "fmt"

// ValidationError reports input or result data that breaks an invariant.
// Malformed data is rejected, never repaired.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

func invalid(field, format string, args ...any) error {
	return &ValidationError{Field: field, Reason: fmt.Sprintf(format, args...)}
}

func (s CheckStatus) valid() bool {
	return s == CheckPass || s == CheckWarning || s == CheckFail
}

func (s CompletenessStatus) valid() bool {
	return s == CompletenessGood || s == CompletenessWarning || s == CompletenessPoor
}

func (i Importance) valid() bool {
	return i == ImportanceCritical || i == ImportanceMedium || i == ImportanceLow
}

func (s Severity) valid() bool {
	return s == SeverityHigh || s == SeverityMedium || s == SeverityLow
}

// Validate checks every invariant of a Result.
func (r Result) Validate() error {
	c := r.Completeness
	if c.Score < 0 || c.Score > 100 {
		return invalid("completeness.score", "%d is outside 0-100", c.Score)
	}
	if !c.Status.valid() {
		return invalid("completeness.status", "unknown status %q", c.Status)
	}
	if err := validateChecks("completeness.checks", c.Checks); err != nil {
		return err
	}

	m := r.MissingInfo
	if m.Count < 0 || m.Critical < 0 {
		return invalid("missingInfo", "negative count (count=%d critical=%d)", m.Count, m.Critical)
	}
	if m.Critical > m.Count {
		return invalid("missingInfo.critical", "%d exceeds count %d", m.Critical, m.Count)
	}
	if m.Count != len(m.Items) {
		return invalid("missingInfo.count", "%d does not match %d items", m.Count, len(m.Items))
	}
	if err := validateMissing("missingInfo.items", m.Items); err != nil {
		return err
	}

	in := r.Inconsistencies
	if in.Count < 0 || in.Severe < 0 {
		return invalid("inconsistencies", "negative count (count=%d severe=%d)", in.Count, in.Severe)
	}
	if in.Severe > in.Count {
		return invalid("inconsistencies.severe", "%d exceeds count %d", in.Severe, in.Count)
	}
	if in.Count != len(in.Items) {
		return invalid("inconsistencies.count", "%d does not match %d items", in.Count, len(in.Items))
	}
	return validateInconsistencies("inconsistencies.items", in.Items)
}

// Validate checks the raw analyzer output before a Result is built from it.
func (f Findings) Validate() error {
	if f.Score < 0 || f.Score > 100 {
		return invalid("findings.score", "%d is outside 0-100", f.Score)
	}
	if err := validateChecks("findings.checks", f.Checks); err != nil {
		return err
	}
	if err := validateMissing("findings.missing", f.Missing); err != nil {
		return err
	}
	return validateInconsistencies("findings.inconsistencies", f.Inconsistencies)
}

func validateChecks(field string, checks []Check) error {
	for i, ch := range checks {
		if !ch.Status.valid() {
			return invalid(fmt.Sprintf("%s[%d].status", field, i), "unknown status %q", ch.Status)
		}
	}
	return nil
}

func validateMissing(field string, items []MissingItem) error {
	for i, it := range items {
		if !it.Importance.valid() {
			return invalid(fmt.Sprintf("%s[%d].importance", field, i), "unknown importance %q", it.Importance)
		}
	}
	return nil
}

func validateInconsistencies(field string, items []Inconsistency) error {
	for i, it := range items {
		if !it.Severity.valid() {
			return invalid(fmt.Sprintf("%s[%d].severity", field, i), "unknown severity %q", it.Severity)
		}
	}
	return nil
}

package model

// ValidationCheck is the result of one preflight check.
type ValidationCheck struct {
	Name    string         `json:"name"`
	Passed  bool           `json:"passed"`
	Message string         `json:"message"`
	Details map[string]any `json:"details,omitempty"`
	Skipped bool           `json:"skipped,omitempty"`
}

// ValidationResult aggregates checks. Valid is true exactly when Errors is
// empty; warnings never affect it.
type ValidationResult struct {
	Valid    bool              `json:"valid"`
	Checks   []ValidationCheck `json:"checks"`
	Errors   []string          `json:"errors"`
	Warnings []string          `json:"warnings"`
}

// NewValidationResult returns an empty, valid result.
func NewValidationResult() *ValidationResult {
	return &ValidationResult{
		Valid:    true,
		Checks:   []ValidationCheck{},
		Errors:   []string{},
		Warnings: []string{},
	}
}

// AddCheck records c. A failed fatal check adds an error, a failed
// non-fatal check adds a warning.
func (r *ValidationResult) AddCheck(c ValidationCheck, fatal bool) {
	r.Checks = append(r.Checks, c)
	if !c.Passed {
		if fatal {
			r.Errors = append(r.Errors, c.Message)
		} else {
			r.Warnings = append(r.Warnings, c.Message)
		}
	}
	r.Valid = len(r.Errors) == 0
}

// AddWarning records a warning not tied to a check.
func (r *ValidationResult) AddWarning(msg string) {
	r.Warnings = append(r.Warnings, msg)
}

// Check returns the named check, if it ran.
func (r *ValidationResult) Check(name string) (ValidationCheck, bool) {
	for _, c := range r.Checks {
		if c.Name == name {
			return c, true
		}
	}
	return ValidationCheck{}, false
}

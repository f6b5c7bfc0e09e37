package domain

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"
)

// DateLayouts are the accepted input layouts for the report date field
var DateLayouts = []string{"2006-01-02", "02/01/2006", "01/02/2006", "02-01-2006", "01-02-2006"}

// fieldRules holds the validator tags applied to optional text fields
var fieldRules = map[string]string{
	"teacher_name":  "max=200",
	"quran_surah":   "max=200",
	"noor_page":     "max=500",
	"tajweed_rules": "max=500",
	"topic":         "max=500",
	"homework":      "max=2000",
	"parent_notes":  "max=2000",
	"admin_notes":   "max=2000",
}

var (
	validateOnce sync.Once
	validate     *validator.Validate
)

func fieldValidator() *validator.Validate {
	validateOnce.Do(func() {
		validate = validator.New(validator.WithRequiredStructEnabled())
	})
	return validate
}

// ValidateReportFields checks the fields required by the report form.
// The returned error wraps ErrInvalidFields.
func ValidateReportFields(fields Fields) error {
	v := fieldValidator()

	studentName := strings.TrimSpace(fields.String("student_name"))
	if err := v.Var(studentName, "required,max=200"); err != nil {
		return fmt.Errorf("%w: student_name: %s", ErrInvalidFields, describe(err))
	}

	if email := strings.TrimSpace(fields.String("email")); email != "" {
		if err := v.Var(email, "email"); err != nil {
			return fmt.Errorf("%w: email: invalid format", ErrInvalidFields)
		}
	}

	if date := strings.TrimSpace(fields.String("date")); date != "" {
		if _, ok := NormalizeDate(date); !ok {
			return fmt.Errorf("%w: date: use DD/MM/YYYY or YYYY-MM-DD", ErrInvalidFields)
		}
	}

	for name, rule := range fieldRules {
		if err := v.Var(fields.String(name), rule); err != nil {
			return fmt.Errorf("%w: %s: %s", ErrInvalidFields, name, describe(err))
		}
	}

	return nil
}

// NormalizeDate converts a date in any of DateLayouts to YYYY-MM-DD
func NormalizeDate(value string) (string, bool) {
	for _, layout := range DateLayouts {
		if t, err := time.Parse(layout, value); err == nil {
			return t.Format(time.DateOnly), true
		}
	}
	// dates stored from time.Time values read back as RFC3339
	if t, err := time.Parse(time.RFC3339, value); err == nil {
		return t.Format(time.DateOnly), true
	}
	return "", false
}

func describe(err error) string {
	if verrs, ok := err.(validator.ValidationErrors); ok && len(verrs) > 0 {
		fe := verrs[0]
		if fe.Param() != "" {
			return fmt.Sprintf("failed %s=%s", fe.Tag(), fe.Param())
		}
		return "failed " + fe.Tag()
	}
	return err.Error()
}

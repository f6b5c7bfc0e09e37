package domain

import (
	"encoding/json"
	"fmt"
	"reflect"
	"sort"
	"strings"
	"time"
)

// DefaultSearchFields are matched by a profile search when no fields are given
var DefaultSearchFields = []string{"student_name", "teacher_name", "email", "date"}

// Fields maps report field names to their values (strings, numbers or dates)
type Fields map[string]any

// Normalize returns a copy of the fields as they will read back from storage:
// numbers become float64 and dates become RFC3339 strings.
func (f Fields) Normalize() (Fields, error) {
	if f == nil {
		return Fields{}, nil
	}

	data, err := json.Marshal(f)
	if err != nil {
		return nil, fmt.Errorf("failed to encode fields: %w", err)
	}

	var normalized Fields
	if err := json.Unmarshal(data, &normalized); err != nil {
		return nil, fmt.Errorf("failed to decode fields: %w", err)
	}

	return normalized, nil
}

// String returns the value of a field rendered as text, or "" when absent
func (f Fields) String(name string) string {
	value, ok := f[name]
	if !ok || value == nil {
		return ""
	}

	switch v := value.(type) {
	case string:
		return v
	case float64:
		// integral numbers print without a trailing ".0"
		if v == float64(int64(v)) {
			return fmt.Sprintf("%d", int64(v))
		}
		return fmt.Sprintf("%g", v)
	case time.Time:
		return v.Format(time.DateOnly)
	default:
		return fmt.Sprint(v)
	}
}

// Names returns the field names in sorted order
func (f Fields) Names() []string {
	names := make([]string, 0, len(f))
	for name := range f {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Matches reports whether query appears, case-insensitively, in any of the given fields
func (f Fields) Matches(query string, fields []string) bool {
	if query == "" {
		return true
	}
	if len(fields) == 0 {
		fields = DefaultSearchFields
	}

	needle := strings.ToLower(query)
	for _, name := range fields {
		if strings.Contains(strings.ToLower(f.String(name)), needle) {
			return true
		}
	}
	return false
}

// FieldChange records the old and new value of a field between two revisions
type FieldChange struct {
	Old any `json:"old"`
	New any `json:"new"`
}

// Diff computes the per-field changes from before to after
func Diff(before, after Fields) map[string]FieldChange {
	changes := make(map[string]FieldChange)
	for name, oldValue := range before {
		newValue, ok := after[name]
		if !ok {
			changes[name] = FieldChange{Old: oldValue, New: nil}
			continue
		}
		if !reflect.DeepEqual(oldValue, newValue) {
			changes[name] = FieldChange{Old: oldValue, New: newValue}
		}
	}
	for name, newValue := range after {
		if _, ok := before[name]; !ok {
			changes[name] = FieldChange{Old: nil, New: newValue}
		}
	}
	return changes
}

// Profile is the current snapshot of a student's report record
type Profile struct {
	ID        string    `json:"profile_id"`
	Fields    Fields    `json:"fields"`
	Revision  int64     `json:"revision"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Revision is an immutable snapshot of a profile written by one Put
type Revision struct {
	ProfileID string                 `json:"profile_id"`
	Number    int64                  `json:"revision"`
	Fields    Fields                 `json:"fields"`
	Changes   map[string]FieldChange `json:"changes"`
	Note      string                 `json:"note,omitempty"`
	CreatedAt time.Time              `json:"created_at"`
}

// ProfileFilter selects profiles for List. Query is matched as a substring
// over Fields; Match, when set, must also accept the profile.
type ProfileFilter struct {
	Query  string
	Fields []string
	Match  func(*Profile) bool
}

// Accepts reports whether the profile passes the filter
func (f ProfileFilter) Accepts(p *Profile) bool {
	if !p.Fields.Matches(f.Query, f.Fields) {
		return false
	}
	if f.Match != nil && !f.Match(p) {
		return false
	}
	return true
}

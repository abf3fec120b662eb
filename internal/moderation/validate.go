package moderation

import (
	"errors"
	"html"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/microcosm-cc/bluemonday"
)

var (
	validate = newValidator()
	policy   = bluemonday.StrictPolicy()
)

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// maxSanitizePasses bounds how many layers of entity encoding are peeled off
// before the escaped form is kept instead.
const maxSanitizePasses = 4

// sanitize strips markup and surrounding whitespace from free text. Stripping
// repeats until decoding entities exposes no further markup, so encoded tags
// cannot come back as live ones.
func sanitize(s string) string {
	for i := 0; i < maxSanitizePasses; i++ {
		next := html.UnescapeString(policy.Sanitize(s))
		if next == s {
			return strings.TrimSpace(s)
		}
		s = next
	}
	return strings.TrimSpace(policy.Sanitize(s))
}

func sanitizeMetadata(m Metadata) Metadata {
	m.Name = sanitize(m.Name)
	m.Type = OrgType(strings.ToLower(strings.TrimSpace(string(m.Type))))
	m.Description = sanitize(m.Description)
	m.Address = sanitize(m.Address)
	m.Phone = strings.TrimSpace(m.Phone)
	m.Email = strings.ToLower(strings.TrimSpace(m.Email))
	m.Website = strings.TrimSpace(m.Website)
	m.WorkingHours = sanitize(m.WorkingHours)
	m.AdditionalInfo = sanitize(m.AdditionalInfo)
	return m
}

func validateMetadata(m Metadata) error {
	err := validate.Struct(m)
	if err == nil {
		return nil
	}
	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		return &ValidationError{Problems: []FieldProblem{{Field: "metadata", Rule: err.Error()}}}
	}
	out := &ValidationError{Problems: make([]FieldProblem, 0, len(fieldErrs))}
	for _, fe := range fieldErrs {
		out.Problems = append(out.Problems, FieldProblem{Field: fe.Field(), Rule: fe.Tag()})
	}
	return out
}

// Package form builds validation and serialization for record editing from a
// database's property list.
package form

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"second-brain/internal/domain"
	apperrors "second-brain/internal/errors"
)

// Values is form state keyed by property id.
type Values map[string]any

// Field is one editable input.
type Field struct {
	Property domain.Property
	Rule     Rule
}

func (f Field) Required() bool { return f.Property.Required }

// Options returns the choices of a select field in display order.
func (f Field) Options() []domain.SelectOption {
	return f.Property.Config.SelectOptions
}

// Form validates and serializes values for one property list.
type Form struct {
	fields []Field
	byID   map[string]Field
}

// Build derives a form from props. Computed properties get no input. An
// unknown property type is an error so new types cannot silently render
// without validation.
func Build(props []domain.Property) (*Form, error) {
	f := &Form{byID: make(map[string]Field)}
	for _, p := range domain.SortedProperties(props) {
		rule, ok := rules[p.Type]
		if !ok {
			return nil, fmt.Errorf("property %q: unsupported type %q", p.ID, p.Type)
		}
		if rule.Kind == KindComputed {
			continue
		}
		field := Field{Property: p, Rule: rule}
		f.fields = append(f.fields, field)
		f.byID[p.ID] = field
	}
	return f, nil
}

// Fields returns the inputs in property order.
func (f *Form) Fields() []Field {
	return append([]Field(nil), f.fields...)
}

// Field looks up the input for a property id.
func (f *Form) Field(id string) (Field, bool) {
	field, ok := f.byID[id]
	return field, ok
}

// Validate coerces values per field and checks required and format rules.
// It returns the coerced values, or a validation error carrying one message
// per offending property id.
func (f *Form) Validate(values Values) (Values, error) {
	out := make(Values, len(f.fields))
	errs := make(map[string]string)

	for _, field := range f.fields {
		p := field.Property
		v, err := coerce(field.Rule.Kind, values[p.ID])
		if err != nil {
			errs[p.ID] = p.Name + " " + err.Error()
			continue
		}
		if isEmpty(v) {
			if p.Required {
				errs[p.ID] = p.Name + " is required"
			}
			continue
		}
		if msg := check(field, v); msg != "" {
			errs[p.ID] = p.Name + " " + msg
			continue
		}
		out[p.ID] = v
	}

	if len(errs) > 0 {
		return out, apperrors.Validation("Please fix the highlighted fields", errs)
	}
	return out, nil
}

func check(field Field, v any) string {
	p := field.Property
	switch field.Rule.Kind {
	case KindString:
		if field.Rule.Format != "" {
			if err := validate.Var(v, field.Rule.Format); err != nil {
				return formatMessages[field.Rule.Format]
			}
		}
	case KindID:
		if p.Type.HasOptions() {
			if _, ok := p.Option(v.(string)); !ok {
				return fmt.Sprintf("has an unknown option %q", v)
			}
		}
	case KindIDs:
		if p.Type.HasOptions() {
			for _, id := range v.([]string) {
				if _, ok := p.Option(id); !ok {
					return fmt.Sprintf("has an unknown option %q", id)
				}
			}
		}
	}
	return ""
}

// Prefill maps a stored record onto form state, normalizing stored shapes
// the same way display does. Values that cannot be coerced are left out.
func (f *Form) Prefill(rec domain.Record) Values {
	out := make(Values, len(f.fields))
	for _, field := range f.fields {
		raw, ok := rec.Properties[field.Property.ID]
		if !ok {
			continue
		}
		v, err := coerce(field.Rule.Kind, raw)
		if err != nil || isEmpty(v) {
			continue
		}
		out[field.Property.ID] = v
	}
	return out
}

// Serialize converts coerced values into a write payload. Dates become
// RFC 3339 strings and empty values are omitted rather than sent.
func (f *Form) Serialize(values Values) map[string]any {
	out := make(map[string]any, len(values))
	for _, field := range f.fields {
		v, err := coerce(field.Rule.Kind, values[field.Property.ID])
		if err != nil || isEmpty(v) {
			continue
		}
		if t, ok := v.(time.Time); ok {
			v = FormatDate(t)
		}
		out[field.Property.ID] = v
	}
	return out
}

// Submit validates values and returns the serialized payload.
func (f *Form) Submit(values Values) (map[string]any, error) {
	coerced, err := f.Validate(values)
	if err != nil {
		return nil, err
	}
	return f.Serialize(coerced), nil
}

// CheckPayload verifies a write payload against props: every key names a
// known writable property, values have the right shape and select ids exist.
// A nil or empty value clears the property unless the property is required.
func CheckPayload(props []domain.Property, payload map[string]any) error {
	byID := make(map[string]domain.Property, len(props))
	for _, p := range props {
		byID[p.ID] = p
	}

	errs := make(map[string]string)
	for id, raw := range payload {
		p, ok := byID[id]
		if !ok {
			errs[id] = "unknown property"
			continue
		}
		rule, ok := rules[p.Type]
		if !ok {
			errs[id] = p.Name + " has an unsupported type"
			continue
		}
		if rule.Kind == KindComputed {
			errs[id] = p.Name + " is read-only"
			continue
		}
		if raw == nil {
			if p.Required {
				errs[id] = p.Name + " is required"
			}
			continue
		}
		v, err := coerce(rule.Kind, raw)
		if err != nil {
			errs[id] = p.Name + " " + err.Error()
			continue
		}
		if isEmpty(v) {
			if p.Required {
				errs[id] = p.Name + " is required"
			}
			continue
		}
		if msg := check(Field{Property: p, Rule: rule}, v); msg != "" {
			errs[id] = p.Name + " " + msg
		}
	}

	if len(errs) > 0 {
		return apperrors.Validation("Invalid record values", errs)
	}
	return nil
}

// MissingRequired reports required writable properties absent from a create
// payload, keyed by property id.
func MissingRequired(props []domain.Property, payload map[string]any) map[string]string {
	errs := make(map[string]string)
	for _, p := range props {
		rule, ok := rules[p.Type]
		if !ok || rule.Kind == KindComputed || !p.Required {
			continue
		}
		if v, err := coerce(rule.Kind, payload[p.ID]); err != nil || isEmpty(v) {
			errs[p.ID] = p.Name + " is required"
		}
	}
	return errs
}

// FormatDate renders a date value. Values at midnight are treated as calendar
// dates and keep their day regardless of location.
func FormatDate(t time.Time) string {
	return normalizeDate(t).Format(time.RFC3339)
}

// ParseDate accepts RFC 3339 timestamps and bare YYYY-MM-DD dates.
func ParseDate(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if t, err := time.Parse(time.RFC3339Nano, s); err == nil {
		return normalizeDate(t), nil
	}
	t, err := time.Parse(time.DateOnly, s)
	if err != nil {
		return time.Time{}, err
	}
	return t, nil
}

func normalizeDate(t time.Time) time.Time {
	if t.Hour() == 0 && t.Minute() == 0 && t.Second() == 0 && t.Nanosecond() == 0 {
		return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
	}
	return t.UTC()
}

func coerce(kind Kind, v any) (any, error) {
	if v == nil {
		return nil, nil
	}
	switch kind {
	case KindString:
		switch t := v.(type) {
		case string:
			if strings.TrimSpace(t) == "" {
				return nil, nil
			}
			return t, nil
		case fmt.Stringer:
			return t.String(), nil
		}
		return nil, fmt.Errorf("must be text")

	case KindNumber:
		return coerceNumber(v)

	case KindBool:
		switch t := v.(type) {
		case bool:
			return t, nil
		case string:
			if t == "" {
				return nil, nil
			}
			b, err := strconv.ParseBool(t)
			if err != nil {
				return nil, fmt.Errorf("must be true or false")
			}
			return b, nil
		}
		return nil, fmt.Errorf("must be true or false")

	case KindDate:
		switch t := v.(type) {
		case time.Time:
			if t.IsZero() {
				return nil, nil
			}
			return normalizeDate(t), nil
		case *time.Time:
			if t == nil || t.IsZero() {
				return nil, nil
			}
			return normalizeDate(*t), nil
		case string:
			if strings.TrimSpace(t) == "" {
				return nil, nil
			}
			d, err := ParseDate(t)
			if err != nil {
				return nil, fmt.Errorf("must be a valid date")
			}
			return d, nil
		}
		return nil, fmt.Errorf("must be a valid date")

	case KindID:
		if s, ok := v.(string); ok && s == "" {
			return nil, nil
		}
		id, ok := domain.SelectID(v)
		if !ok {
			return nil, fmt.Errorf("must be a single option")
		}
		return id, nil

	case KindIDs:
		ids := domain.SelectIDs(v)
		if len(ids) == 0 {
			return nil, nil
		}
		return ids, nil
	}
	return nil, fmt.Errorf("is read-only")
}

func coerceNumber(v any) (any, error) {
	var f float64
	switch t := v.(type) {
	case float64:
		f = t
	case float32:
		f = float64(t)
	case int:
		f = float64(t)
	case int64:
		f = float64(t)
	case json.Number:
		n, err := t.Float64()
		if err != nil {
			return nil, fmt.Errorf("must be a number")
		}
		f = n
	case string:
		s := strings.TrimSpace(t)
		if s == "" {
			return nil, nil
		}
		n, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return nil, fmt.Errorf("must be a number")
		}
		f = n
	default:
		return nil, fmt.Errorf("must be a number")
	}
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return nil, fmt.Errorf("must be a number")
	}
	return f, nil
}

func isEmpty(v any) bool {
	switch t := v.(type) {
	case nil:
		return true
	case string:
		return t == ""
	case []string:
		return len(t) == 0
	}
	return false
}

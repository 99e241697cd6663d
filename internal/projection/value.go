package projection

import (
	"cmp"
	"encoding/json"
	"fmt"
	"slices"
	"strconv"
	"strings"
	"time"

	"second-brain/internal/domain"
	"second-brain/internal/form"
)

type valueKind int

const (
	kindNone valueKind = iota
	kindNumber
	kindDate
	kindBool
	kindText
	kindIDs
)

// value is a record value typed by its property.
type value struct {
	kind valueKind
	num  float64
	day  time.Time
	b    bool
	s    string
	ids  []string
}

func (v value) empty() bool {
	switch v.kind {
	case kindNone:
		return true
	case kindText:
		return v.s == ""
	case kindIDs:
		return len(v.ids) == 0
	}
	return false
}

// label renders v for grouping and search.
func (v value) label() string {
	switch v.kind {
	case kindNumber:
		return strconv.FormatFloat(v.num, 'f', -1, 64)
	case kindDate:
		return v.day.Format(time.DateOnly)
	case kindBool:
		return strconv.FormatBool(v.b)
	case kindText:
		return v.s
	case kindIDs:
		return strings.Join(v.ids, ",")
	}
	return ""
}

func calendarDay(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

func isDateType(t domain.PropertyType) bool {
	return t == domain.PropertyDate || t == domain.PropertyCreatedTime || t == domain.PropertyLastEditedTime
}

// typed converts a stored or filter value into the property's comparison
// domain. Unconvertible values are kindNone. A checkbox never set is false.
func typed(p domain.Property, raw any, now time.Time) value {
	if raw == nil {
		if p.Type == domain.PropertyCheckbox {
			return value{kind: kindBool}
		}
		return value{}
	}
	switch {
	case p.Type == domain.PropertyNumber:
		if f, ok := toNumber(raw); ok {
			return value{kind: kindNumber, num: f}
		}
	case isDateType(p.Type):
		if d, ok := toDay(raw, now); ok {
			return value{kind: kindDate, day: d}
		}
	case p.Type == domain.PropertyCheckbox:
		switch t := raw.(type) {
		case bool:
			return value{kind: kindBool, b: t}
		case string:
			if b, err := strconv.ParseBool(t); err == nil {
				return value{kind: kindBool, b: b}
			}
		}
	case p.Type == domain.PropertySelect:
		if id, ok := domain.SelectID(raw); ok {
			return value{kind: kindText, s: id}
		}
	case p.Type == domain.PropertyMultiSelect || p.Type == domain.PropertyRelation:
		if ids := domain.SelectIDs(raw); len(ids) > 0 {
			return value{kind: kindIDs, ids: ids}
		}
	default:
		switch t := raw.(type) {
		case string:
			return value{kind: kindText, s: t}
		case fmt.Stringer:
			return value{kind: kindText, s: t.String()}
		default:
			return value{kind: kindText, s: fmt.Sprint(t)}
		}
	}
	return value{}
}

func toNumber(raw any) (float64, bool) {
	switch t := raw.(type) {
	case float64:
		return t, true
	case float32:
		return float64(t), true
	case int:
		return float64(t), true
	case int64:
		return float64(t), true
	case json.Number:
		f, err := t.Float64()
		return f, err == nil
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(t), 64)
		return f, err == nil
	}
	return 0, false
}

func toDay(raw any, now time.Time) (time.Time, bool) {
	switch t := raw.(type) {
	case time.Time:
		return calendarDay(t), !t.IsZero()
	case *time.Time:
		if t == nil {
			return time.Time{}, false
		}
		return calendarDay(*t), true
	case string:
		if strings.EqualFold(strings.TrimSpace(t), domain.RelativeToday) {
			return calendarDay(now), true
		}
		d, err := form.ParseDate(t)
		if err != nil {
			return time.Time{}, false
		}
		return calendarDay(d), true
	}
	return time.Time{}, false
}

// compare orders two values of the same kind. ok is false when they are not
// comparable.
func compare(a, b value) (int, bool) {
	if a.kind != b.kind {
		return 0, false
	}
	switch a.kind {
	case kindNumber:
		return cmp.Compare(a.num, b.num), true
	case kindDate:
		return a.day.Compare(b.day), true
	case kindBool:
		switch {
		case a.b == b.b:
			return 0, true
		case !a.b:
			return -1, true
		}
		return 1, true
	case kindText:
		return strings.Compare(a.s, b.s), true
	case kindIDs:
		return slices.Compare(a.ids, b.ids), true
	}
	return 0, false
}

func equal(a, b value) bool {
	if a.kind == kindText && b.kind == kindText {
		return strings.EqualFold(a.s, b.s)
	}
	c, ok := compare(a, b)
	return ok && c == 0
}

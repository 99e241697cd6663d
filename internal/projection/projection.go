// Package projection computes what a view shows: the filtered, sorted and
// grouped records of a database. Every function is pure and deterministic.
package projection

import (
	"slices"
	"strings"
	"time"

	"second-brain/internal/domain"
)

// UngroupedKey is the group key of records without a value.
const UngroupedKey = ""

// Group is one bucket of a grouped view.
type Group struct {
	Key     string
	Label   string
	Option  *domain.SelectOption
	Records []domain.Record
}

type Result struct {
	Columns []domain.Property
	Records []domain.Record
	// Groups is empty unless the view groups by a property.
	Groups []Group
}

// Apply filters, sorts and groups records through view. now resolves the
// relative "today" filter value.
func Apply(records []domain.Record, props []domain.Property, view domain.View, now time.Time) Result {
	byID := PropertyMap(props)

	out := Filter(records, byID, view.Filters, now)
	out = Sort(out, byID, view.Sorts)

	res := Result{
		Columns: domain.VisibleProperties(props, &view),
		Records: out,
	}
	if groupBy := GroupProperty(view); groupBy != "" {
		if p, ok := byID[groupBy]; ok {
			res.Groups = GroupBy(out, p)
		}
	}
	return res
}

// GroupProperty returns the property a view groups by. Board views fall
// back to their column property.
func GroupProperty(view domain.View) string {
	if view.GroupBy != "" {
		return view.GroupBy
	}
	if view.Type == domain.ViewBoard || view.Type == domain.ViewKanban {
		return view.Config.GroupColumnProperty
	}
	return ""
}

// Filter keeps the records matching every filter. Filters on unknown
// properties or with unknown operators are ignored.
func Filter(records []domain.Record, props map[string]domain.Property, filters []domain.Filter, now time.Time) []domain.Record {
	active := make([]domain.Filter, 0, len(filters))
	for _, f := range filters {
		if _, ok := props[f.PropertyID]; ok && knownOperator(f.Operator) {
			active = append(active, f)
		}
	}

	out := make([]domain.Record, 0, len(records))
	for _, r := range records {
		keep := true
		for _, f := range active {
			if !Match(r, props[f.PropertyID], f, now) {
				keep = false
				break
			}
		}
		if keep {
			out = append(out, r)
		}
	}
	return out
}

func knownOperator(op domain.Operator) bool {
	switch op {
	case domain.OpEquals, domain.OpNotEquals, domain.OpContains, domain.OpNotContains,
		domain.OpIn, domain.OpNotIn, domain.OpLessThan, domain.OpGreaterThan,
		domain.OpLessThanOrEqual, domain.OpGreaterThanOrEqual,
		domain.OpIsEmpty, domain.OpIsNotEmpty:
		return true
	}
	return false
}

// Match evaluates one filter against a record.
func Match(r domain.Record, p domain.Property, f domain.Filter, now time.Time) bool {
	raw, _ := r.Value(p)
	v := typed(p, raw, now)

	switch f.Operator {
	case domain.OpIsEmpty:
		return v.empty()
	case domain.OpIsNotEmpty:
		return !v.empty()
	case domain.OpNotEquals:
		return !matchEquals(p, v, f.Value, now)
	case domain.OpNotContains:
		return !matchContains(p, v, f.Value, now)
	case domain.OpNotIn:
		return !matchIn(p, v, f.Value, now)
	}

	if v.empty() {
		return false
	}
	switch f.Operator {
	case domain.OpEquals:
		return matchEquals(p, v, f.Value, now)
	case domain.OpContains:
		return matchContains(p, v, f.Value, now)
	case domain.OpIn:
		return matchIn(p, v, f.Value, now)
	case domain.OpLessThan:
		return matchOrder(p, v, f.Value, now, func(c int) bool { return c < 0 })
	case domain.OpGreaterThan:
		return matchOrder(p, v, f.Value, now, func(c int) bool { return c > 0 })
	case domain.OpLessThanOrEqual:
		return matchOrder(p, v, f.Value, now, func(c int) bool { return c <= 0 })
	case domain.OpGreaterThanOrEqual:
		return matchOrder(p, v, f.Value, now, func(c int) bool { return c >= 0 })
	}
	return false
}

func matchEquals(p domain.Property, v value, want any, now time.Time) bool {
	if v.empty() {
		return false
	}
	if v.kind == kindIDs {
		return containsAny(v.ids, domain.SelectIDs(want))
	}
	return equal(v, typed(p, want, now))
}

func matchContains(p domain.Property, v value, want any, now time.Time) bool {
	if v.empty() {
		return false
	}
	switch v.kind {
	case kindIDs:
		return containsAny(v.ids, domain.SelectIDs(want))
	case kindText:
		w := typed(p, want, now)
		if p.Type == domain.PropertySelect {
			return equal(v, w)
		}
		return w.kind == kindText && strings.Contains(strings.ToLower(v.s), strings.ToLower(w.s))
	}
	return equal(v, typed(p, want, now))
}

func matchIn(p domain.Property, v value, want any, now time.Time) bool {
	if v.empty() {
		return false
	}
	candidates := asList(want)
	if v.kind == kindIDs {
		var ids []string
		for _, c := range candidates {
			ids = append(ids, domain.SelectIDs(c)...)
		}
		return containsAny(v.ids, ids)
	}
	for _, c := range candidates {
		if equal(v, typed(p, c, now)) {
			return true
		}
	}
	return false
}

func matchOrder(p domain.Property, v value, want any, now time.Time, accept func(int) bool) bool {
	c, ok := compare(v, typed(p, want, now))
	return ok && accept(c)
}

func asList(v any) []any {
	switch t := v.(type) {
	case nil:
		return nil
	case []any:
		return t
	case []string:
		out := make([]any, len(t))
		for i, s := range t {
			out[i] = s
		}
		return out
	case []float64:
		out := make([]any, len(t))
		for i, f := range t {
			out[i] = f
		}
		return out
	}
	return []any{v}
}

func containsAny(have, want []string) bool {
	for _, w := range want {
		if slices.Contains(have, w) {
			return true
		}
	}
	return false
}

// Sort orders records by sorts in priority order. The sort is stable and
// records missing a value come last regardless of direction.
func Sort(records []domain.Record, props map[string]domain.Property, sorts []domain.Sort) []domain.Record {
	out := slices.Clone(records)
	active := make([]domain.Sort, 0, len(sorts))
	for _, s := range sorts {
		if _, ok := props[s.PropertyID]; ok {
			active = append(active, s)
		}
	}
	if len(active) == 0 {
		return out
	}

	type keyed struct {
		rec  domain.Record
		vals []value
	}
	rows := make([]keyed, len(out))
	for i, r := range out {
		vals := make([]value, len(active))
		for j, s := range active {
			p := props[s.PropertyID]
			raw, _ := r.Value(p)
			vals[j] = sortKey(p, typed(p, raw, time.Time{}))
		}
		rows[i] = keyed{rec: r, vals: vals}
	}

	slices.SortStableFunc(rows, func(a, b keyed) int {
		for j, s := range active {
			va, vb := a.vals[j], b.vals[j]
			switch ea, eb := va.empty(), vb.empty(); {
			case ea && eb:
				continue
			case ea:
				return 1
			case eb:
				return -1
			}
			c, _ := compare(va, vb)
			if s.Direction == domain.SortDesc {
				c = -c
			}
			if c != 0 {
				return c
			}
		}
		return 0
	})

	for i := range rows {
		out[i] = rows[i].rec
	}
	return out
}

// sortKey ranks select values by option position so a sort follows the
// order the options are defined in.
func sortKey(p domain.Property, v value) value {
	if p.Type != domain.PropertySelect || v.kind != kindText {
		return v
	}
	idx := p.OptionIndex(v.s)
	if idx < 0 {
		idx = len(p.Config.SelectOptions)
	}
	return value{kind: kindNumber, num: float64(idx)}
}

// GroupBy partitions records by the value of p, keeping record order within
// each group. Select properties yield one group per option in option order,
// then unknown ids by first appearance. Other values group by first
// appearance. Multi-valued records appear in every matching group. The
// ungrouped bucket comes last and only when non-empty.
func GroupBy(records []domain.Record, p domain.Property) []Group {
	var groups []Group
	index := make(map[string]int)
	add := func(key, label string, opt *domain.SelectOption) int {
		if i, ok := index[key]; ok {
			return i
		}
		index[key] = len(groups)
		groups = append(groups, Group{Key: key, Label: label, Option: opt})
		return len(groups) - 1
	}

	if p.Type.HasOptions() {
		for _, o := range p.Config.SelectOptions {
			add(o.ID, o.Name, &o)
		}
	}

	var ungrouped []domain.Record
	for _, r := range records {
		raw, _ := r.Value(p)
		v := typed(p, raw, time.Time{})
		if v.empty() {
			ungrouped = append(ungrouped, r)
			continue
		}

		keys := []string{v.label()}
		if v.kind == kindIDs {
			keys = v.ids
		}
		for _, key := range keys {
			label := key
			var opt *domain.SelectOption
			if p.Type.HasOptions() {
				o := p.ResolveOption(key)
				label, opt = o.Name, &o
			}
			i := add(key, label, opt)
			groups[i].Records = append(groups[i].Records, r)
		}
	}

	if len(ungrouped) > 0 {
		groups = append(groups, Group{Key: UngroupedKey, Label: "No " + p.Name, Records: ungrouped})
	}
	return groups
}

// Search keeps records whose text-like values contain term, ignoring case.
// Select values match by option name.
func Search(records []domain.Record, props []domain.Property, term string) []domain.Record {
	term = strings.ToLower(strings.TrimSpace(term))
	if term == "" {
		return slices.Clone(records)
	}

	out := make([]domain.Record, 0, len(records))
	for _, r := range records {
		if matchesSearch(r, props, term) {
			out = append(out, r)
		}
	}
	return out
}

func matchesSearch(r domain.Record, props []domain.Property, term string) bool {
	for _, p := range props {
		raw, ok := r.Value(p)
		if !ok {
			continue
		}
		v := typed(p, raw, time.Time{})
		var texts []string
		switch {
		case p.Type.HasOptions():
			ids := v.ids
			if v.kind == kindText {
				ids = []string{v.s}
			}
			for _, id := range ids {
				texts = append(texts, p.ResolveOption(id).Name)
			}
		case v.kind == kindText, v.kind == kindNumber:
			texts = append(texts, v.label())
		}
		for _, s := range texts {
			if strings.Contains(strings.ToLower(s), term) {
				return true
			}
		}
	}
	return false
}

// PropertyMap indexes props by id.
func PropertyMap(props []domain.Property) map[string]domain.Property {
	m := make(map[string]domain.Property, len(props))
	for _, p := range props {
		m[p.ID] = p
	}
	return m
}

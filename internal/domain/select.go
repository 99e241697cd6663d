package domain

// SelectID canonicalizes one stored select value. Stored values are either a
// bare option id or an option object carrying an id.
func SelectID(v any) (string, bool) {
	switch t := v.(type) {
	case string:
		return t, t != ""
	case SelectOption:
		return t.ID, t.ID != ""
	case *SelectOption:
		if t == nil {
			return "", false
		}
		return t.ID, t.ID != ""
	case map[string]any:
		id, _ := t["id"].(string)
		return id, id != ""
	case map[string]string:
		id := t["id"]
		return id, id != ""
	}
	return "", false
}

// SelectIDs canonicalizes a stored multi-select value. A single value is
// accepted as a one-element list; empty and unrecognized entries are skipped.
func SelectIDs(v any) []string {
	var ids []string
	add := func(x any) {
		if id, ok := SelectID(x); ok {
			ids = append(ids, id)
		}
	}
	switch t := v.(type) {
	case nil:
	case []string:
		for _, s := range t {
			add(s)
		}
	case []any:
		for _, x := range t {
			add(x)
		}
	case []SelectOption:
		for _, o := range t {
			add(o)
		}
	case []map[string]any:
		for _, m := range t {
			add(m)
		}
	default:
		add(t)
	}
	return ids
}

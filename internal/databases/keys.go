package databases

import (
	"encoding/json"
	"net/url"
	"strconv"

	"second-brain/internal/domain"
	"second-brain/internal/query"
)

// Cache layout. Everything a database owns lives under DatabaseKey(id) so
// invalidating that prefix refreshes schema and records together.
var DatabasesKey = query.Key{"databases-list"}

func DatabaseKey(id string) query.Key {
	return query.Key{"databases", id}
}

func SchemaKey(id string) query.Key {
	return DatabaseKey(id).With("schema")
}

func PropertiesKey(id string) query.Key {
	return DatabaseKey(id).With("properties")
}

func ViewsKey(id string) query.Key {
	return DatabaseKey(id).With("views")
}

// RecordsPrefix covers every cached record page and record of a database.
func RecordsPrefix(id string) query.Key {
	return DatabaseKey(id).With("records")
}

func RecordsKey(id string, params RecordParams) query.Key {
	return RecordsPrefix(id).With("list", params.Encode())
}

func RecordKey(dbID, recordID string) query.Key {
	return RecordsPrefix(dbID).With("item", recordID)
}

// RecordParams selects a page of records.
type RecordParams struct {
	ViewID  string
	Search  string
	Filters []domain.Filter
	Sorts   []domain.Sort
	Page    int
	PerPage int
}

// Values renders params as query string values.
func (p RecordParams) Values() url.Values {
	v := url.Values{}
	if p.ViewID != "" {
		v.Set("viewId", p.ViewID)
	}
	if p.Search != "" {
		v.Set("search", p.Search)
	}
	if len(p.Filters) > 0 {
		b, _ := json.Marshal(p.Filters)
		v.Set("filters", string(b))
	}
	if len(p.Sorts) > 0 {
		b, _ := json.Marshal(p.Sorts)
		v.Set("sorts", string(b))
	}
	if p.Page > 0 {
		v.Set("page", strconv.Itoa(p.Page))
	}
	if p.PerPage > 0 {
		v.Set("perPage", strconv.Itoa(p.PerPage))
	}
	return v
}

// Encode is a stable representation used in cache keys.
func (p RecordParams) Encode() string {
	return p.Values().Encode()
}

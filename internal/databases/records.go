package databases

import (
	"context"
	"maps"
	"net/http"
	"net/url"
	"slices"

	"second-brain/internal/api"
	"second-brain/internal/domain"
	apperrors "second-brain/internal/errors"
	"second-brain/internal/form"
	"second-brain/internal/notify"
	"second-brain/internal/query"
)

type recordVars struct {
	id    string
	patch map[string]any
}

type bulkVars struct {
	ids       []string
	patch     map[string]any
	permanent bool
}

func (s *Service) Records(ctx context.Context, dbID string, params RecordParams) (domain.RecordPage, error) {
	return query.Fetch(ctx, s.cache, query.Query[domain.RecordPage]{
		Key: RecordsKey(dbID, params),
		Fn: func(ctx context.Context) (domain.RecordPage, error) {
			var out domain.RecordPage
			err := s.api.Do(ctx, http.MethodGet, path("databases", dbID, "records"), nil, &out, api.Query(params.Values()))
			return out, err
		},
	})
}

func (s *Service) Record(ctx context.Context, dbID, recordID string) (domain.Record, error) {
	return query.Fetch(ctx, s.cache, query.Query[domain.Record]{
		Key: RecordKey(dbID, recordID),
		Fn: func(ctx context.Context) (domain.Record, error) {
			var out domain.Record
			err := s.api.Do(ctx, http.MethodGet, path("databases", dbID, "records", recordID), nil, &out)
			return out, err
		},
	})
}

// CreateRecord validates values against the schema before sending them.
// Unknown properties, read-only properties, unknown select options and
// missing required values are rejected without a request.
func (s *Service) CreateRecord(ctx context.Context, dbID string, values map[string]any) (domain.Record, error) {
	props, err := s.schemaProperties(ctx, dbID)
	if err != nil {
		return domain.Record{}, err
	}
	if err := s.checkPayload(props, values, true); err != nil {
		return domain.Record{}, err
	}

	return query.Mutate(ctx, s.cache, query.Mutation[map[string]any, domain.Record]{
		Name: "createRecord",
		Fn: func(ctx context.Context, values map[string]any) (domain.Record, error) {
			var out domain.Record
			body := map[string]any{"properties": values}
			err := s.api.Do(ctx, http.MethodPost, path("databases", dbID, "records"), body, &out)
			return out, err
		},
		OnSuccess: func(rec domain.Record, _ map[string]any) {
			query.SetQueryData(s.cache, RecordKey(dbID, rec.ID), rec)
		},
		Invalidates:    func(map[string]any, domain.Record) []query.Key { return []query.Key{RecordsPrefix(dbID)} },
		SuccessMessage: "Record created",
	}, values)
}

// UpdateRecord merges patch into a record. A nil value clears a property.
// The cached record and every cached page holding it are patched at once.
// Concurrent writers are last-write-wins.
func (s *Service) UpdateRecord(ctx context.Context, dbID, recordID string, patch map[string]any) (domain.Record, error) {
	props, err := s.schemaProperties(ctx, dbID)
	if err != nil {
		return domain.Record{}, err
	}
	if err := s.checkPayload(props, patch, false); err != nil {
		return domain.Record{}, err
	}

	return query.Mutate(ctx, s.cache, query.Mutation[recordVars, domain.Record]{
		Name: "updateRecord",
		Fn: func(ctx context.Context, v recordVars) (domain.Record, error) {
			var out domain.Record
			body := map[string]any{"properties": v.patch}
			err := s.api.Do(ctx, http.MethodPut, path("databases", dbID, "records", v.id), body, &out)
			return out, err
		},
		OnMutate: func(v recordVars) func() {
			snap := s.cache.Snapshot(RecordsPrefix(dbID))
			s.patchCachedRecords(dbID, []string{v.id}, v.patch)
			return func() { s.cache.Restore(snap) }
		},
		OnSuccess: func(rec domain.Record, _ recordVars) {
			query.SetQueryData(s.cache, RecordKey(dbID, rec.ID), rec)
		},
		Invalidates: func(recordVars, domain.Record) []query.Key {
			return []query.Key{RecordsPrefix(dbID).With("list")}
		},
		SuccessMessage: "Record updated",
	}, recordVars{id: recordID, patch: patch})
}

// DeleteRecord moves a record to the trash, or removes it for good when
// permanent is set. It disappears from cached pages immediately.
func (s *Service) DeleteRecord(ctx context.Context, dbID, recordID string, permanent bool) error {
	_, err := query.Mutate(ctx, s.cache, query.Mutation[bulkVars, struct{}]{
		Name: "deleteRecord",
		Fn: func(ctx context.Context, v bulkVars) (struct{}, error) {
			var opts []api.RequestOption
			if v.permanent {
				opts = append(opts, api.Query(url.Values{"permanent": {"true"}}))
			}
			return struct{}{}, s.api.Do(ctx, http.MethodDelete, path("databases", dbID, "records", v.ids[0]), nil, nil, opts...)
		},
		OnMutate: func(v bulkVars) func() {
			snap := s.cache.Snapshot(RecordsPrefix(dbID))
			s.dropCachedRecords(dbID, v.ids)
			return func() { s.cache.Restore(snap) }
		},
		Invalidates:    func(bulkVars, struct{}) []query.Key { return []query.Key{RecordsPrefix(dbID)} },
		SuccessMessage: "Record deleted",
	}, bulkVars{ids: []string{recordID}, permanent: permanent})
	return err
}

// BulkUpdate applies one patch to several records.
func (s *Service) BulkUpdate(ctx context.Context, dbID string, recordIDs []string, patch map[string]any) error {
	if len(recordIDs) == 0 {
		return nil
	}
	props, err := s.schemaProperties(ctx, dbID)
	if err != nil {
		return err
	}
	if err := s.checkPayload(props, patch, false); err != nil {
		return err
	}

	_, err = query.Mutate(ctx, s.cache, query.Mutation[bulkVars, struct{}]{
		Name: "bulkUpdateRecords",
		Fn: func(ctx context.Context, v bulkVars) (struct{}, error) {
			body := map[string]any{"recordIds": v.ids, "properties": v.patch}
			return struct{}{}, s.api.Do(ctx, http.MethodPost, path("databases", dbID, "records", "bulk-update"), body, nil)
		},
		OnMutate: func(v bulkVars) func() {
			snap := s.cache.Snapshot(RecordsPrefix(dbID))
			s.patchCachedRecords(dbID, v.ids, v.patch)
			return func() { s.cache.Restore(snap) }
		},
		Invalidates:    func(bulkVars, struct{}) []query.Key { return []query.Key{RecordsPrefix(dbID)} },
		SuccessMessage: "Records updated",
	}, bulkVars{ids: recordIDs, patch: patch})
	return err
}

// BulkDelete deletes several records in one request.
func (s *Service) BulkDelete(ctx context.Context, dbID string, recordIDs []string, permanent bool) error {
	if len(recordIDs) == 0 {
		return nil
	}
	_, err := query.Mutate(ctx, s.cache, query.Mutation[bulkVars, struct{}]{
		Name: "bulkDeleteRecords",
		Fn: func(ctx context.Context, v bulkVars) (struct{}, error) {
			body := map[string]any{"recordIds": v.ids, "permanent": v.permanent}
			return struct{}{}, s.api.Do(ctx, http.MethodPost, path("databases", dbID, "records", "bulk-delete"), body, nil)
		},
		OnMutate: func(v bulkVars) func() {
			snap := s.cache.Snapshot(RecordsPrefix(dbID))
			s.dropCachedRecords(dbID, v.ids)
			return func() { s.cache.Restore(snap) }
		},
		Invalidates:    func(bulkVars, struct{}) []query.Key { return []query.Key{RecordsPrefix(dbID)} },
		SuccessMessage: "Records deleted",
	}, bulkVars{ids: recordIDs, permanent: permanent})
	return err
}

func (s *Service) checkPayload(props []domain.Property, values map[string]any, create bool) error {
	err := form.CheckPayload(props, values)
	if err == nil && create {
		if missing := form.MissingRequired(props, values); len(missing) > 0 {
			err = apperrors.Validation("Missing required values", missing)
		}
	}
	if err != nil {
		notify.Error(s.cache.Notifier(), apperrors.UserMessage(err))
	}
	return err
}

func (s *Service) patchCachedRecords(dbID string, ids []string, patch map[string]any) {
	apply := func(r domain.Record) domain.Record {
		if !slices.Contains(ids, r.ID) {
			return r
		}
		r.Properties = maps.Clone(r.Properties)
		r.Merge(patch)
		return r
	}
	query.UpdateMatching(s.cache, RecordsPrefix(dbID), func(_ query.Key, r domain.Record) domain.Record {
		return apply(r)
	})
	query.UpdateMatching(s.cache, RecordsPrefix(dbID), func(_ query.Key, page domain.RecordPage) domain.RecordPage {
		page.Records = slices.Clone(page.Records)
		for i := range page.Records {
			page.Records[i] = apply(page.Records[i])
		}
		return page
	})
}

func (s *Service) dropCachedRecords(dbID string, ids []string) {
	for _, id := range ids {
		s.cache.Remove(RecordKey(dbID, id))
	}
	query.UpdateMatching(s.cache, RecordsPrefix(dbID), func(_ query.Key, page domain.RecordPage) domain.RecordPage {
		kept := make([]domain.Record, 0, len(page.Records))
		for _, r := range page.Records {
			if !slices.Contains(ids, r.ID) {
				kept = append(kept, r)
			}
		}
		page.Total -= int64(len(page.Records) - len(kept))
		page.Records = kept
		return page
	})
}

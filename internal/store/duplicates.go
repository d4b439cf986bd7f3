package store

import (
	"context"
	"time"
)

// ==================== Duplicate Methods ====================

// CandidateFilter selects documents a draft may be compared against
type CandidateFilter struct {
	TenantID  string
	CompanyID *string
	ExcludeID string
	Since     time.Time
	Limit     int
}

// DuplicateCandidates returns live documents with a current revision,
// newest first, within the filter's company and lookback window.
func (s *Store) DuplicateCandidates(ctx context.Context, f CandidateFilter) ([]ProcessingDocument, error) {
	q := s.db.WithContext(ctx).
		Where("tenant_id = ? AND id <> ? AND current_revision_id IS NOT NULL", f.TenantID, f.ExcludeID)
	if f.CompanyID != nil && *f.CompanyID != "" {
		q = q.Where("company_id = ?", *f.CompanyID)
	}
	if !f.Since.IsZero() {
		q = q.Where("created_at >= ?", f.Since.UTC())
	}
	if f.Limit > 0 {
		q = q.Limit(f.Limit)
	}
	var docs []ProcessingDocument
	err := q.Order("created_at DESC, id DESC").Find(&docs).Error
	return docs, err
}

// UpdateDuplicateState writes the duplicate columns only while the document
// is still in one of the from statuses. It reports whether the row changed.
func (s *Store) UpdateDuplicateState(ctx context.Context, id string, from []DuplicateStatus, updates map[string]interface{}) (bool, error) {
	updates["updated_at"] = time.Now().UTC()
	res := s.db.WithContext(ctx).Model(&ProcessingDocument{}).
		Where("id = ? AND duplicate_status IN ?", id, from).
		Updates(updates)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

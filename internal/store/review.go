package store

import (
	"context"
	stderrors "errors"
	"time"

	"gorm.io/gorm"

	apperrors "github.com/gmsas95/docdesk/internal/errors"
)

// ==================== Review Queue Methods ====================

// ReviewFilter scopes the needs-review set
type ReviewFilter struct {
	TenantID string
	// CompanyID restricts to one company when set
	CompanyID string
	// CompanyIDs restricts to tenant-wide documents plus these companies
	CompanyIDs []string
}

// ReviewItem is the ordering key of one queue entry
type ReviewItem struct {
	ID        string
	CreatedAt time.Time
}

// needsReview builds the base query: a live document that is a suspected
// duplicate or has at least one DRAFT revision.
func (s *Store) needsReview(ctx context.Context, f ReviewFilter) *gorm.DB {
	q := s.db.WithContext(ctx).Model(&ProcessingDocument{}).
		Where("tenant_id = ? AND deleted_at IS NULL", f.TenantID).
		Where(s.db.
			Where("duplicate_status = ?", DuplicateSuspected).
			Or("EXISTS (SELECT 1 FROM document_revisions r WHERE r.processing_document_id = processing_documents.id AND r.status = ?)", RevisionDraft))
	if f.CompanyID != "" {
		q = q.Where("company_id = ?", f.CompanyID)
	}
	if len(f.CompanyIDs) > 0 {
		q = q.Where("company_id IS NULL OR company_id IN ?", f.CompanyIDs)
	}
	return q
}

// ReviewCount returns the size of the needs-review set
func (s *Store) ReviewCount(ctx context.Context, f ReviewFilter) (int64, error) {
	var n int64
	err := s.needsReview(ctx, f).Count(&n).Error
	return n, err
}

// ReviewHead returns the first limit items in (created_at DESC, id DESC) order
func (s *Store) ReviewHead(ctx context.Context, f ReviewFilter, limit int) ([]ReviewItem, error) {
	var items []ReviewItem
	err := s.needsReview(ctx, f).
		Select("id, created_at").
		Order("created_at DESC, id DESC").
		Limit(limit).
		Scan(&items).Error
	return items, err
}

// ReviewItemByID returns the ordering key of a document in the set
func (s *Store) ReviewItemByID(ctx context.Context, f ReviewFilter, id string) (*ReviewItem, error) {
	var item ReviewItem
	err := s.needsReview(ctx, f).
		Select("id, created_at").
		Where("id = ?", id).
		Take(&item).Error
	if stderrors.Is(err, gorm.ErrRecordNotFound) {
		return nil, apperrors.NotFound("document %s is not in the review queue", id)
	}
	if err != nil {
		return nil, err
	}
	return &item, nil
}

// ReviewCountBefore counts items strictly before key in the queue order
func (s *Store) ReviewCountBefore(ctx context.Context, f ReviewFilter, key ReviewItem) (int64, error) {
	var n int64
	err := s.needsReview(ctx, f).
		Where("created_at > ? OR (created_at = ? AND id > ?)", key.CreatedAt, key.CreatedAt, key.ID).
		Count(&n).Error
	return n, err
}

// ReviewPrev returns the item immediately before key, or nil
func (s *Store) ReviewPrev(ctx context.Context, f ReviewFilter, key ReviewItem) (*ReviewItem, error) {
	return reviewNeighbour(s.needsReview(ctx, f).
		Where("created_at > ? OR (created_at = ? AND id > ?)", key.CreatedAt, key.CreatedAt, key.ID).
		Order("created_at ASC, id ASC"))
}

// ReviewNext returns the item immediately after key, or nil
func (s *Store) ReviewNext(ctx context.Context, f ReviewFilter, key ReviewItem) (*ReviewItem, error) {
	return reviewNeighbour(s.needsReview(ctx, f).
		Where("created_at < ? OR (created_at = ? AND id < ?)", key.CreatedAt, key.CreatedAt, key.ID).
		Order("created_at DESC, id DESC"))
}

func reviewNeighbour(q *gorm.DB) (*ReviewItem, error) {
	var items []ReviewItem
	if err := q.Select("id, created_at").Limit(1).Scan(&items).Error; err != nil {
		return nil, err
	}
	if len(items) == 0 {
		return nil, nil
	}
	return &items[0], nil
}

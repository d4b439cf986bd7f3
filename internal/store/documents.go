package store

import (
	"context"
	stderrors "errors"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	apperrors "github.com/gmsas95/docdesk/internal/errors"
)

// ==================== Document Methods ====================

// CreateDocument inserts a document together with its page rows
func (s *Store) CreateDocument(ctx context.Context, doc *ProcessingDocument, pages []DocumentPage) error {
	db := s.db.WithContext(ctx)
	if err := db.Create(doc).Error; err != nil {
		return err
	}
	if len(pages) == 0 {
		return nil
	}
	for i := range pages {
		pages[i].ProcessingDocumentID = doc.ID
	}
	return db.Create(&pages).Error
}

// GetDocument retrieves a live document of a tenant
func (s *Store) GetDocument(ctx context.Context, tenantID, id string) (*ProcessingDocument, error) {
	var doc ProcessingDocument
	err := s.db.WithContext(ctx).
		Where("id = ? AND tenant_id = ?", id, tenantID).
		First(&doc).Error
	if stderrors.Is(err, gorm.ErrRecordNotFound) {
		return nil, apperrors.NotFound("document %s not found", id)
	}
	if err != nil {
		return nil, err
	}
	return &doc, nil
}

// GetDocumentForUpdate is GetDocument inside a transaction. SQLite
// serializes writers, so the row lock clause is only emitted by engines
// that support it.
func (s *Store) GetDocumentForUpdate(ctx context.Context, tenantID, id string) (*ProcessingDocument, error) {
	var doc ProcessingDocument
	q := s.db.WithContext(ctx)
	if q.Dialector.Name() != "sqlite" {
		q = q.Clauses(clause.Locking{Strength: "UPDATE"})
	}
	err := q.Where("id = ? AND tenant_id = ?", id, tenantID).First(&doc).Error
	if stderrors.Is(err, gorm.ErrRecordNotFound) {
		return nil, apperrors.NotFound("document %s not found", id)
	}
	if err != nil {
		return nil, err
	}
	return &doc, nil
}

// GetDocumentsUnscoped loads documents by id regardless of tenant and
// soft-delete state. Callers are responsible for scoping the result.
func (s *Store) GetDocumentsUnscoped(ctx context.Context, ids []string) ([]ProcessingDocument, error) {
	var docs []ProcessingDocument
	err := s.db.WithContext(ctx).Unscoped().Where("id IN ?", ids).Find(&docs).Error
	return docs, err
}

// ListChildren returns live documents split from parentID
func (s *Store) ListChildren(ctx context.Context, parentID string) ([]ProcessingDocument, error) {
	var docs []ProcessingDocument
	err := s.db.WithContext(ctx).
		Where("parent_id = ?", parentID).
		Order("page_from ASC").
		Find(&docs).Error
	return docs, err
}

// UpdateDocumentVersioned applies updates and bumps lock_version, but only
// when the stored version still equals expected. A lost race surfaces as
// Conflict, never as a silent overwrite.
func (s *Store) UpdateDocumentVersioned(ctx context.Context, id string, expected int64, updates map[string]interface{}) (int64, error) {
	if updates == nil {
		updates = map[string]interface{}{}
	}
	updates["lock_version"] = gorm.Expr("lock_version + 1")
	updates["updated_at"] = time.Now().UTC()

	res := s.db.WithContext(ctx).Model(&ProcessingDocument{}).
		Where("id = ? AND lock_version = ?", id, expected).
		Updates(updates)
	if res.Error != nil {
		return 0, res.Error
	}
	if res.RowsAffected == 0 {
		return 0, apperrors.Conflict("document %s changed since version %d", id, expected).
			WithDetail("expected_version", expected)
	}
	return expected + 1, nil
}

// UpdateDocumentFields updates columns without touching lock_version
func (s *Store) UpdateDocumentFields(ctx context.Context, id string, updates map[string]interface{}) error {
	updates["updated_at"] = time.Now().UTC()
	res := s.db.WithContext(ctx).Model(&ProcessingDocument{}).Where("id = ?", id).Updates(updates)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return apperrors.NotFound("document %s not found", id)
	}
	return nil
}

// SoftDeleteMerged marks sources as merged into target. Rows already deleted
// are left alone, so re-running the step is a no-op.
func (s *Store) SoftDeleteMerged(ctx context.Context, sourceIDs []string, targetID string, now time.Time) (int64, error) {
	res := s.db.WithContext(ctx).Model(&ProcessingDocument{}).
		Where("id IN ? AND deleted_at IS NULL", sourceIDs).
		Updates(map[string]interface{}{
			"deleted_at":      now,
			"merged_into_id":  targetID,
			"lock_version":    gorm.Expr("lock_version + 1"),
			"locked_by":       nil,
			"lock_expires_at": nil,
			"updated_at":      now,
		})
	return res.RowsAffected, res.Error
}

// RepointDuplicateLinks moves every live duplicate link aimed at one of
// fromIDs onto toID. Documents in fromIDs themselves are skipped.
func (s *Store) RepointDuplicateLinks(ctx context.Context, fromIDs []string, toID string) (int64, error) {
	res := s.db.WithContext(ctx).Model(&ProcessingDocument{}).
		Where("duplicate_of_id IN ? AND id NOT IN ?", fromIDs, fromIDs).
		Updates(map[string]interface{}{
			"duplicate_of_id": toID,
			"updated_at":      time.Now().UTC(),
		})
	return res.RowsAffected, res.Error
}

// FindByHashes returns live documents of a tenant whose file hash is in
// hashes, optionally restricted to one company.
func (s *Store) FindByHashes(ctx context.Context, tenantID string, companyID *string, hashes []string) ([]ProcessingDocument, error) {
	var docs []ProcessingDocument
	if len(hashes) == 0 {
		return docs, nil
	}
	q := s.db.WithContext(ctx).Where("tenant_id = ? AND file_hash IN ?", tenantID, hashes)
	if companyID != nil && *companyID != "" {
		q = q.Where("company_id = ?", *companyID)
	}
	err := q.Order("created_at ASC, id ASC").Find(&docs).Error
	return docs, err
}

// ClearExpiredLocks drops lock ownership of expired locks. The version is
// left unchanged: expiry is not a structural mutation.
func (s *Store) ClearExpiredLocks(ctx context.Context, now time.Time) (int64, error) {
	res := s.db.WithContext(ctx).Model(&ProcessingDocument{}).
		Where("locked_by IS NOT NULL AND lock_expires_at <= ?", now).
		Updates(map[string]interface{}{
			"locked_by":       nil,
			"lock_expires_at": nil,
		})
	return res.RowsAffected, res.Error
}

// RequeueReady is an update expression that sends a READY document back to
// QUEUED and leaves every other pipeline status alone
func RequeueReady() clause.Expr {
	return gorm.Expr("CASE WHEN pipeline_status = ? THEN ? ELSE pipeline_status END", PipelineReady, PipelineQueued)
}

// TransitionPipeline moves a document from one pipeline status to another.
// It reports whether the row was still in from.
func (s *Store) TransitionPipeline(ctx context.Context, id string, from, to PipelineStatus) (bool, error) {
	res := s.db.WithContext(ctx).Model(&ProcessingDocument{}).
		Where("id = ? AND pipeline_status = ?", id, from).
		Updates(map[string]interface{}{
			"pipeline_status": to,
			"updated_at":      time.Now().UTC(),
		})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

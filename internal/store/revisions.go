package store

import (
	"context"
	stderrors "errors"
	"time"

	"gorm.io/gorm"

	apperrors "github.com/gmsas95/docdesk/internal/errors"
)

// ==================== Revision Methods ====================

// CreateRevision inserts rev as the next revision of its document. Call it
// inside a transaction so that numbering and insert are atomic.
func (s *Store) CreateRevision(ctx context.Context, rev *DocumentRevision) error {
	var maxNumber int
	if err := s.db.WithContext(ctx).Model(&DocumentRevision{}).
		Where("processing_document_id = ?", rev.ProcessingDocumentID).
		Select("COALESCE(MAX(revision_number), 0)").
		Scan(&maxNumber).Error; err != nil {
		return err
	}
	rev.RevisionNumber = maxNumber + 1
	for i := range rev.LineItems {
		rev.LineItems[i].LineNo = i + 1
	}
	return s.db.WithContext(ctx).Create(rev).Error
}

// GetRevision loads one revision of a document with its line items
func (s *Store) GetRevision(ctx context.Context, documentID, revisionID string) (*DocumentRevision, error) {
	var rev DocumentRevision
	err := s.db.WithContext(ctx).
		Preload("LineItems", func(db *gorm.DB) *gorm.DB { return db.Order("line_no ASC") }).
		Where("id = ? AND processing_document_id = ?", revisionID, documentID).
		First(&rev).Error
	if stderrors.Is(err, gorm.ErrRecordNotFound) {
		return nil, apperrors.NotFound("revision %s not found", revisionID)
	}
	if err != nil {
		return nil, err
	}
	return &rev, nil
}

// ListRevisions returns every revision of a document, oldest first
func (s *Store) ListRevisions(ctx context.Context, documentID string) ([]DocumentRevision, error) {
	var revs []DocumentRevision
	err := s.db.WithContext(ctx).
		Preload("LineItems", func(db *gorm.DB) *gorm.DB { return db.Order("line_no ASC") }).
		Where("processing_document_id = ?", documentID).
		Order("revision_number ASC").
		Find(&revs).Error
	return revs, err
}

// LatestDraft returns the highest-numbered DRAFT revision, or nil
func (s *Store) LatestDraft(ctx context.Context, documentID string) (*DocumentRevision, error) {
	var rev DocumentRevision
	err := s.db.WithContext(ctx).
		Where("processing_document_id = ? AND status = ?", documentID, RevisionDraft).
		Order("revision_number DESC").
		First(&rev).Error
	if stderrors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &rev, nil
}

// GetRevisionsByIDs loads revisions by id, without line items
func (s *Store) GetRevisionsByIDs(ctx context.Context, ids []string) ([]DocumentRevision, error) {
	var revs []DocumentRevision
	if len(ids) == 0 {
		return revs, nil
	}
	err := s.db.WithContext(ctx).Where("id IN ?", ids).Find(&revs).Error
	return revs, err
}

// SupersedeApproved flips any APPROVED revision of the document other than
// exceptID to SUPERSEDED
func (s *Store) SupersedeApproved(ctx context.Context, documentID, exceptID string) (int64, error) {
	res := s.db.WithContext(ctx).Model(&DocumentRevision{}).
		Where("processing_document_id = ? AND status = ? AND id <> ?", documentID, RevisionApproved, exceptID).
		Updates(map[string]interface{}{
			"status":     RevisionSuperseded,
			"updated_at": time.Now().UTC(),
		})
	return res.RowsAffected, res.Error
}

// TransitionRevision moves a revision to status `to` only if it is
// currently in `from`. It reports whether the row changed.
func (s *Store) TransitionRevision(ctx context.Context, id string, from, to RevisionStatus, extra map[string]interface{}) (bool, error) {
	updates := map[string]interface{}{
		"status":     to,
		"updated_at": time.Now().UTC(),
	}
	for k, v := range extra {
		updates[k] = v
	}
	res := s.db.WithContext(ctx).Model(&DocumentRevision{}).
		Where("id = ? AND status = ?", id, from).
		Updates(updates)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

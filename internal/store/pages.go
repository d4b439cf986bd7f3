package store

import (
	"context"
	"fmt"
	"sort"
	"time"

	"gorm.io/gorm"
)

// ==================== Page Methods ====================

// ListPages returns the page rows of a document in page order
func (s *Store) ListPages(ctx context.Context, documentID string) ([]DocumentPage, error) {
	var pages []DocumentPage
	err := s.db.WithContext(ctx).
		Where("processing_document_id = ?", documentID).
		Order("page_number ASC").
		Find(&pages).Error
	return pages, err
}

// CountPages returns the number of live page rows of a document
func (s *Store) CountPages(ctx context.Context, documentID string) (int64, error) {
	var count int64
	err := s.db.WithContext(ctx).Model(&DocumentPage{}).
		Where("processing_document_id = ?", documentID).
		Count(&count).Error
	return count, err
}

// DeletePages removes the given page numbers of a document
func (s *Store) DeletePages(ctx context.Context, documentID string, pageNumbers []int) (int64, error) {
	res := s.db.WithContext(ctx).
		Where("processing_document_id = ? AND page_number IN ?", documentID, pageNumbers).
		Delete(&DocumentPage{})
	return res.RowsAffected, res.Error
}

// PageUpdate carries the per-page columns rewritten during a renumber
type PageUpdate struct {
	NewNumber   int
	Fingerprint string
}

// RenumberPages moves every page of a document to a new number in two
// phases. First all live numbers are negated, which vacates the positive
// range without ever colliding on (document, page_number). Then each page
// is moved from -old to its final number. mapping is keyed by old number
// and must cover every remaining page.
func (s *Store) RenumberPages(ctx context.Context, documentID string, mapping map[int]PageUpdate) error {
	db := s.db.WithContext(ctx)

	res := db.Model(&DocumentPage{}).
		Where("processing_document_id = ? AND page_number > 0", documentID).
		Update("page_number", gorm.Expr("-page_number"))
	if res.Error != nil {
		return fmt.Errorf("renumber phase one: %w", res.Error)
	}
	if int(res.RowsAffected) != len(mapping) {
		return fmt.Errorf("renumber phase one touched %d pages, mapping covers %d", res.RowsAffected, len(mapping))
	}

	olds := make([]int, 0, len(mapping))
	for old := range mapping {
		olds = append(olds, old)
	}
	sort.Ints(olds)

	now := time.Now().UTC()
	for _, old := range olds {
		upd := mapping[old]
		cols := map[string]interface{}{
			"page_number": upd.NewNumber,
			"updated_at":  now,
		}
		if upd.Fingerprint != "" {
			cols["image_fingerprint"] = upd.Fingerprint
		}
		res := db.Model(&DocumentPage{}).
			Where("processing_document_id = ? AND page_number = ?", documentID, -old).
			Updates(cols)
		if res.Error != nil {
			return fmt.Errorf("renumber page %d -> %d: %w", old, upd.NewNumber, res.Error)
		}
		if res.RowsAffected != 1 {
			return fmt.Errorf("renumber page %d -> %d: page not found", old, upd.NewNumber)
		}
	}
	return nil
}

// VerifyDensePages checks that page numbers of a document are exactly 1..want
func (s *Store) VerifyDensePages(ctx context.Context, documentID string, want int) error {
	var numbers []int
	if err := s.db.WithContext(ctx).Model(&DocumentPage{}).
		Where("processing_document_id = ?", documentID).
		Order("page_number ASC").
		Pluck("page_number", &numbers).Error; err != nil {
		return err
	}
	if len(numbers) != want {
		return fmt.Errorf("document %s has %d pages, expected %d", documentID, len(numbers), want)
	}
	for i, n := range numbers {
		if n != i+1 {
			return fmt.Errorf("document %s page sequence broken at position %d (found %d)", documentID, i+1, n)
		}
	}
	return nil
}

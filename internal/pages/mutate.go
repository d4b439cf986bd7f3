package pages

import (
	"context"

	"go.uber.org/zap"

	"github.com/gmsas95/docdesk/internal/audit"
	"github.com/gmsas95/docdesk/internal/idempotency"
	"github.com/gmsas95/docdesk/internal/pdfpages"
	"github.com/gmsas95/docdesk/internal/scope"
	"github.com/gmsas95/docdesk/internal/store"
)

// DeleteRequest removes pages from a locked document
type DeleteRequest struct {
	DocumentID      string
	PageNumbers     []int
	ExpectedVersion int64
	IdempotencyKey  string
}

type DeleteResult struct {
	DocumentID   string `json:"document_id"`
	PagesDeleted int    `json:"pages_deleted"`
	NewPageCount int    `json:"new_page_count"`
	LockVersion  int64  `json:"lock_version"`
}

// DeletePages removes the given pages. Survivors keep their relative order
// and are renumbered 1..N through the two-phase renumber.
func (s *Service) DeletePages(ctx context.Context, sc scope.Scope, req DeleteRequest) (*DeleteResult, error) {
	res, replayed, err := idempotency.Do(ctx, s.cache, idempotency.Request{
		TenantID: sc.TenantID,
		ActorID:  sc.ActorID,
		Endpoint: "pages.delete:" + req.DocumentID,
		Key:      req.IdempotencyKey,
	}, func(ctx context.Context) (*DeleteResult, error) {
		return s.deletePages(ctx, sc, req)
	})
	if replayed {
		s.metrics.RecordReplay("pages.delete")
	} else {
		s.metrics.RecordPageMutation("delete", err)
	}
	return res, err
}

func (s *Service) deletePages(ctx context.Context, sc scope.Scope, req DeleteRequest) (*DeleteResult, error) {
	doc, err := s.loadMutable(ctx, sc, req.DocumentID)
	if err != nil {
		return nil, err
	}
	plan, err := pdfpages.PlanDelete(doc.PageCount, req.PageNumbers)
	if err != nil {
		return nil, err
	}
	if err := s.locks.CheckHeld(doc, sc.ActorID, req.ExpectedVersion); err != nil {
		return nil, err
	}

	src, err := s.download(ctx, doc)
	if err != nil {
		return nil, err
	}
	out, err := pdfpages.Remove(src, plan.Removed)
	if err != nil {
		return nil, rewriteFailed(doc, err)
	}
	newKey := store.VersionKey(doc.TenantID, doc.ID, doc.LockVersion+1)
	if err := s.upload(ctx, newKey, out); err != nil {
		return nil, err
	}

	var version int64
	err = s.store.Transaction(ctx, func(tx *store.Store) error {
		version, err = tx.UpdateDocumentVersioned(ctx, doc.ID, req.ExpectedVersion, map[string]interface{}{
			"page_count":      len(plan.Order),
			"storage_key":     newKey,
			"file_size":       len(out),
			"pipeline_status": store.RequeueReady(),
		})
		if err != nil {
			return err
		}
		pages, err := tx.ListPages(ctx, doc.ID)
		if err != nil {
			return err
		}
		if _, err := tx.DeletePages(ctx, doc.ID, plan.Removed); err != nil {
			return err
		}
		if err := tx.RenumberPages(ctx, doc.ID, renumberMapping(doc.BaseKey(), pages, plan.Mapping())); err != nil {
			return err
		}
		return tx.VerifyDensePages(ctx, doc.ID, len(plan.Order))
	})
	if err != nil {
		return nil, err
	}

	s.record(ctx, sc, audit.PagesDeleted, doc.ID, map[string]interface{}{
		"pages":        plan.Removed,
		"lock_version": version,
	})
	s.logger.Info("Pages deleted",
		zap.String("document_id", doc.ID),
		zap.Ints("pages", plan.Removed),
		zap.Int("remaining", len(plan.Order)))

	return &DeleteResult{
		DocumentID:   doc.ID,
		PagesDeleted: len(plan.Removed),
		NewPageCount: len(plan.Order),
		LockVersion:  version,
	}, nil
}

// ReorderRequest permutes the pages of a locked document. NewOrder[i] is
// the current number of the page that should end up at position i+1.
type ReorderRequest struct {
	DocumentID      string
	NewOrder        []int
	ExpectedVersion int64
	IdempotencyKey  string
}

// PageMove maps one page's old number to its new number
type PageMove struct {
	From int `json:"from"`
	To   int `json:"to"`
}

type ReorderResult struct {
	DocumentID  string     `json:"document_id"`
	Reordered   bool       `json:"reordered"`
	PageMapping []PageMove `json:"page_mapping"`
	LockVersion int64      `json:"lock_version"`
}

// ReorderPages applies a permutation. The identity permutation is a no-op
// that leaves lock_version untouched.
func (s *Service) ReorderPages(ctx context.Context, sc scope.Scope, req ReorderRequest) (*ReorderResult, error) {
	res, replayed, err := idempotency.Do(ctx, s.cache, idempotency.Request{
		TenantID: sc.TenantID,
		ActorID:  sc.ActorID,
		Endpoint: "pages.reorder:" + req.DocumentID,
		Key:      req.IdempotencyKey,
	}, func(ctx context.Context) (*ReorderResult, error) {
		return s.reorderPages(ctx, sc, req)
	})
	if replayed {
		s.metrics.RecordReplay("pages.reorder")
	} else {
		s.metrics.RecordPageMutation("reorder", err)
	}
	return res, err
}

func (s *Service) reorderPages(ctx context.Context, sc scope.Scope, req ReorderRequest) (*ReorderResult, error) {
	doc, err := s.loadMutable(ctx, sc, req.DocumentID)
	if err != nil {
		return nil, err
	}
	plan, err := pdfpages.PlanReorder(doc.PageCount, req.NewOrder)
	if err != nil {
		return nil, err
	}
	if err := s.locks.CheckHeld(doc, sc.ActorID, req.ExpectedVersion); err != nil {
		return nil, err
	}

	moves := make([]PageMove, len(plan.Order))
	for newPos, old := range plan.Order {
		moves[newPos] = PageMove{From: old, To: newPos + 1}
	}
	if plan.IsIdentity() {
		return &ReorderResult{DocumentID: doc.ID, PageMapping: moves, LockVersion: doc.LockVersion}, nil
	}

	src, err := s.download(ctx, doc)
	if err != nil {
		return nil, err
	}
	out, err := pdfpages.Select(src, plan.Order)
	if err != nil {
		return nil, rewriteFailed(doc, err)
	}
	newKey := store.VersionKey(doc.TenantID, doc.ID, doc.LockVersion+1)
	if err := s.upload(ctx, newKey, out); err != nil {
		return nil, err
	}

	var version int64
	err = s.store.Transaction(ctx, func(tx *store.Store) error {
		version, err = tx.UpdateDocumentVersioned(ctx, doc.ID, req.ExpectedVersion, map[string]interface{}{
			"storage_key":     newKey,
			"file_size":       len(out),
			"pipeline_status": store.RequeueReady(),
		})
		if err != nil {
			return err
		}
		pages, err := tx.ListPages(ctx, doc.ID)
		if err != nil {
			return err
		}
		if err := tx.RenumberPages(ctx, doc.ID, renumberMapping(doc.BaseKey(), pages, plan.Mapping())); err != nil {
			return err
		}
		return tx.VerifyDensePages(ctx, doc.ID, doc.PageCount)
	})
	if err != nil {
		return nil, err
	}

	s.record(ctx, sc, audit.PagesReordered, doc.ID, map[string]interface{}{
		"order":        plan.Order,
		"lock_version": version,
	})
	s.logger.Info("Pages reordered",
		zap.String("document_id", doc.ID),
		zap.Ints("order", plan.Order))

	return &ReorderResult{
		DocumentID:  doc.ID,
		Reordered:   true,
		PageMapping: moves,
		LockVersion: version,
	}, nil
}

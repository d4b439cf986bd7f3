package pages

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/gmsas95/docdesk/internal/audit"
	apperrors "github.com/gmsas95/docdesk/internal/errors"
	"github.com/gmsas95/docdesk/internal/fingerprint"
	"github.com/gmsas95/docdesk/internal/idempotency"
	"github.com/gmsas95/docdesk/internal/pdfpages"
	"github.com/gmsas95/docdesk/internal/scope"
	"github.com/gmsas95/docdesk/internal/store"
)

// MergeRequest concatenates documents in the given order
type MergeRequest struct {
	DocumentIDs    []string
	FileName       string
	IdempotencyKey string
}

type MergeResult struct {
	MergedDocumentID       string                    `json:"merged_document_id"`
	PageCount              int                       `json:"page_count"`
	SourceDocumentsDeleted bool                      `json:"source_documents_deleted"`
	Document               *store.ProcessingDocument `json:"document"`
}

// Merge builds a new container document from the pages of every source, in
// caller order, then retires the sources. Sources need no lock.
func (s *Service) Merge(ctx context.Context, sc scope.Scope, req MergeRequest) (*MergeResult, error) {
	res, replayed, err := idempotency.Do(ctx, s.cache, idempotency.Request{
		TenantID: sc.TenantID,
		ActorID:  sc.ActorID,
		Endpoint: "documents.merge",
		Key:      req.IdempotencyKey,
	}, func(ctx context.Context) (*MergeResult, error) {
		return s.merge(ctx, sc, req)
	})
	if replayed {
		s.metrics.RecordReplay("documents.merge")
	} else {
		s.metrics.RecordPageMutation("merge", err)
	}
	return res, err
}

func (s *Service) merge(ctx context.Context, sc scope.Scope, req MergeRequest) (*MergeResult, error) {
	ids := req.DocumentIDs
	if len(ids) < 2 {
		return nil, apperrors.Validation("merge needs at least 2 documents, got %d", len(ids))
	}
	seen := make(map[string]bool, len(ids))
	for _, id := range ids {
		if id == "" {
			return nil, apperrors.Validation("document id must not be empty")
		}
		if seen[id] {
			return nil, apperrors.Validation("document %s listed twice", id)
		}
		seen[id] = true
	}

	rows, err := s.store.GetDocumentsUnscoped(ctx, ids)
	if err != nil {
		return nil, err
	}
	byID := make(map[string]*store.ProcessingDocument, len(rows))
	for i := range rows {
		byID[rows[i].ID] = &rows[i]
	}
	sources := make([]*store.ProcessingDocument, len(ids))
	for i, id := range ids {
		doc, ok := byID[id]
		if !ok {
			return nil, apperrors.NotFound("document %s not found", id)
		}
		sources[i] = doc
	}

	companyID, err := mergeCompany(sc, sources)
	if err != nil {
		return nil, err
	}
	if done, err := s.alreadyMerged(ctx, sc, sources); done != nil || err != nil {
		return done, err
	}
	for _, doc := range sources {
		if doc.DeletedAt.Valid {
			return nil, apperrors.InvalidState("document %s was already merged elsewhere", doc.ID)
		}
		if !doc.IsPDF() {
			return nil, apperrors.InvalidState("document %s is %s, only PDF documents can be merged", doc.ID, doc.MimeType)
		}
	}

	binaries := make([][]byte, len(sources))
	g, gctx := errgroup.WithContext(ctx)
	for i, doc := range sources {
		g.Go(func() error {
			data, err := s.download(gctx, doc)
			if err != nil {
				return err
			}
			binaries[i] = data
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	out, err := pdfpages.Concat(binaries)
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.CodeInvalidState, "source binaries cannot be merged")
	}

	container := &store.ProcessingDocument{
		ID:          uuid.NewString(),
		TenantID:    sc.TenantID,
		CompanyID:   companyID,
		FileName:    mergedFileName(req.FileName, sources[0]),
		MimeType:    pdfMime,
		FileSize:    int64(len(out)),
		FileHash:    fingerprint.FileHash(out),
		IsContainer: true,
		CreatedBy:   sc.ActorID,
	}
	container.StorageKey = store.VersionKey(container.TenantID, container.ID, 0)
	if err := s.upload(ctx, container.StorageKey, out); err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	var pages []store.DocumentPage
	err = s.store.Transaction(ctx, func(tx *store.Store) error {
		for _, doc := range sources {
			src, err := tx.ListPages(ctx, doc.ID)
			if err != nil {
				return err
			}
			if len(src) != doc.PageCount {
				return apperrors.Conflict("document %s changed during merge", doc.ID)
			}
			for _, p := range src {
				n := len(pages) + 1
				pages = append(pages, store.DocumentPage{
					PageNumber:       n,
					WidthPx:          p.WidthPx,
					HeightPx:         p.HeightPx,
					RotationDeg:      p.RotationDeg,
					ContentDigest:    p.ContentDigest,
					ImageFingerprint: fingerprint.Page(container.BaseKey(), n, p.ContentDigest),
				})
			}
		}
		container.PageCount = len(pages)
		if err := tx.CreateDocument(ctx, container, pages); err != nil {
			return err
		}
		deleted, err := tx.SoftDeleteMerged(ctx, ids, container.ID, now)
		if err != nil {
			return err
		}
		if int(deleted) != len(ids) {
			return apperrors.Conflict("%d of %d source documents were already merged", len(ids)-int(deleted), len(ids))
		}
		if _, err := tx.RepointDuplicateLinks(ctx, ids, container.ID); err != nil {
			return err
		}
		return tx.VerifyDensePages(ctx, container.ID, container.PageCount)
	})
	if err != nil {
		return nil, err
	}

	s.record(ctx, sc, audit.DocumentsMerged, container.ID, map[string]interface{}{
		"sources":    ids,
		"page_count": container.PageCount,
	})
	s.logger.Info("Documents merged",
		zap.String("document_id", container.ID),
		zap.Strings("sources", ids),
		zap.Int("pages", container.PageCount))

	return &MergeResult{
		MergedDocumentID:       container.ID,
		PageCount:              container.PageCount,
		SourceDocumentsDeleted: true,
		Document:               container,
	}, nil
}

// mergeCompany checks that every source is visible and that company-scoped
// sources agree. It returns the company of the container.
func mergeCompany(sc scope.Scope, sources []*store.ProcessingDocument) (*string, error) {
	var company *string
	for _, doc := range sources {
		if doc.TenantID != sc.TenantID {
			return nil, apperrors.Validation("document %s belongs to another tenant", doc.ID)
		}
		if !sc.AllowsCompany(doc.CompanyID) {
			return nil, apperrors.NotFound("document %s not found", doc.ID)
		}
		if doc.CompanyID == nil || *doc.CompanyID == "" {
			continue
		}
		if company != nil && *company != *doc.CompanyID {
			return nil, apperrors.Validation("documents belong to different companies (%s, %s)", *company, *doc.CompanyID)
		}
		company = doc.CompanyID
	}
	return company, nil
}

// alreadyMerged returns the existing container when every source was
// retired into the same live document, which makes a re-run a no-op.
func (s *Service) alreadyMerged(ctx context.Context, sc scope.Scope, sources []*store.ProcessingDocument) (*MergeResult, error) {
	var target string
	for _, doc := range sources {
		if !doc.DeletedAt.Valid || doc.MergedIntoID == nil {
			return nil, nil
		}
		if target != "" && target != *doc.MergedIntoID {
			return nil, nil
		}
		target = *doc.MergedIntoID
	}
	container, err := s.load(ctx, s.store, sc, target)
	if err != nil {
		return nil, err
	}
	return &MergeResult{
		MergedDocumentID:       container.ID,
		PageCount:              container.PageCount,
		SourceDocumentsDeleted: true,
		Document:               container,
	}, nil
}

func mergedFileName(name string, first *store.ProcessingDocument) string {
	if name != "" {
		return cleanFileName(name)
	}
	return "merged-" + cleanFileName(first.FileName)
}

// SplitRequest cuts a container into child documents
type SplitRequest struct {
	DocumentID      string
	Ranges          []pdfpages.Range
	ExpectedVersion int64
	IdempotencyKey  string
}

type SplitResult struct {
	DocumentID  string                     `json:"document_id"`
	LockVersion int64                      `json:"lock_version"`
	Children    []store.ProcessingDocument `json:"children"`
}

// Split creates one child document per range of a locked container. The
// container stays live and its version is bumped.
func (s *Service) Split(ctx context.Context, sc scope.Scope, req SplitRequest) (*SplitResult, error) {
	res, replayed, err := idempotency.Do(ctx, s.cache, idempotency.Request{
		TenantID: sc.TenantID,
		ActorID:  sc.ActorID,
		Endpoint: "documents.split:" + req.DocumentID,
		Key:      req.IdempotencyKey,
	}, func(ctx context.Context) (*SplitResult, error) {
		return s.split(ctx, sc, req)
	})
	if replayed {
		s.metrics.RecordReplay("documents.split")
	} else {
		s.metrics.RecordPageMutation("split", err)
	}
	return res, err
}

func (s *Service) split(ctx context.Context, sc scope.Scope, req SplitRequest) (*SplitResult, error) {
	doc, err := s.loadMutable(ctx, sc, req.DocumentID)
	if err != nil {
		return nil, err
	}
	if !doc.IsContainer {
		return nil, apperrors.InvalidState("document %s is not a container", doc.ID)
	}
	ranges, err := pdfpages.PlanSplit(doc.PageCount, req.Ranges)
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

	children := make([]store.ProcessingDocument, len(ranges))
	g, gctx := errgroup.WithContext(ctx)
	for i, r := range ranges {
		from, to := r.From, r.To
		child := store.ProcessingDocument{
			ID:        uuid.NewString(),
			TenantID:  doc.TenantID,
			CompanyID: doc.CompanyID,
			FileName:  doc.FileName,
			MimeType:  pdfMime,
			PageCount: r.Len(),
			ParentID:  &doc.ID,
			PageFrom:  &from,
			PageTo:    &to,
			CreatedBy: sc.ActorID,
		}
		child.StorageKey = store.VersionKey(child.TenantID, child.ID, 0)
		children[i] = child
		g.Go(func() error {
			out, err := pdfpages.Extract(src, r)
			if err != nil {
				return rewriteFailed(doc, err)
			}
			children[i].FileSize = int64(len(out))
			children[i].FileHash = fingerprint.FileHash(out)
			return s.upload(gctx, children[i].StorageKey, out)
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	var version int64
	err = s.store.Transaction(ctx, func(tx *store.Store) error {
		version, err = tx.UpdateDocumentVersioned(ctx, doc.ID, req.ExpectedVersion, nil)
		if err != nil {
			return err
		}
		pages, err := tx.ListPages(ctx, doc.ID)
		if err != nil {
			return err
		}
		if len(pages) != doc.PageCount {
			return apperrors.Conflict("document %s changed during split", doc.ID)
		}
		for i := range children {
			child := &children[i]
			var childPages []store.DocumentPage
			for _, p := range pages[*child.PageFrom-1 : *child.PageTo] {
				n := len(childPages) + 1
				childPages = append(childPages, store.DocumentPage{
					PageNumber:       n,
					WidthPx:          p.WidthPx,
					HeightPx:         p.HeightPx,
					RotationDeg:      p.RotationDeg,
					ContentDigest:    p.ContentDigest,
					ImageFingerprint: fingerprint.Page(child.BaseKey(), n, p.ContentDigest),
				})
			}
			if err := tx.CreateDocument(ctx, child, childPages); err != nil {
				return err
			}
			if err := tx.VerifyDensePages(ctx, child.ID, child.PageCount); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	childIDs := make([]string, len(children))
	for i := range children {
		childIDs[i] = children[i].ID
	}
	s.record(ctx, sc, audit.DocumentSplit, doc.ID, map[string]interface{}{
		"children":     childIDs,
		"lock_version": version,
	})
	s.logger.Info("Container split",
		zap.String("document_id", doc.ID),
		zap.Strings("children", childIDs))

	return &SplitResult{DocumentID: doc.ID, LockVersion: version, Children: children}, nil
}

// Package pages mutates the page structure of stored documents: ingest,
// delete, reorder, merge and split.
//
// Every mutation follows the same order. Input and lock are validated
// first; then the new binary is built in memory and uploaded under a fresh
// key; only then does one database transaction swap the storage key,
// rewrite the page table and bump lock_version. A failure before commit
// leaves the previous key and rows authoritative.
package pages

import (
	"context"
	stderrors "errors"

	"go.uber.org/zap"

	"github.com/gmsas95/docdesk/internal/audit"
	"github.com/gmsas95/docdesk/internal/blob"
	"github.com/gmsas95/docdesk/internal/duplicates"
	apperrors "github.com/gmsas95/docdesk/internal/errors"
	"github.com/gmsas95/docdesk/internal/fingerprint"
	"github.com/gmsas95/docdesk/internal/idempotency"
	"github.com/gmsas95/docdesk/internal/locking"
	"github.com/gmsas95/docdesk/internal/metrics"
	"github.com/gmsas95/docdesk/internal/pdfpages"
	"github.com/gmsas95/docdesk/internal/scope"
	"github.com/gmsas95/docdesk/internal/store"
)

const pdfMime = "application/pdf"

// Options carries the optional collaborators of a Service
type Options struct {
	Cache      *idempotency.Cache
	Duplicates *duplicates.Detector
	Metrics    *metrics.Metrics
	Audit      audit.Recorder
	Logger     *zap.Logger
}

// Service is the page manipulator bound to storage
type Service struct {
	store   *store.Store
	blobs   blob.Store
	locks   *locking.Manager
	cache   *idempotency.Cache
	dups    *duplicates.Detector
	metrics *metrics.Metrics
	audit   audit.Recorder
	logger  *zap.Logger
}

func NewService(st *store.Store, blobs blob.Store, locks *locking.Manager, opts Options) *Service {
	s := &Service{
		store:   st,
		blobs:   blobs,
		locks:   locks,
		cache:   opts.Cache,
		dups:    opts.Duplicates,
		metrics: opts.Metrics,
		audit:   opts.Audit,
		logger:  opts.Logger,
	}
	if s.audit == nil {
		s.audit = audit.Nop{}
	}
	if s.logger == nil {
		s.logger = zap.NewNop()
	}
	return s
}

// GetDocument returns a live document visible to the scope
func (s *Service) GetDocument(ctx context.Context, sc scope.Scope, id string) (*store.ProcessingDocument, error) {
	return s.load(ctx, s.store, sc, id)
}

// ListPages returns the page table of a document in page order
func (s *Service) ListPages(ctx context.Context, sc scope.Scope, id string) ([]store.DocumentPage, error) {
	if _, err := s.load(ctx, s.store, sc, id); err != nil {
		return nil, err
	}
	return s.store.ListPages(ctx, id)
}

// ListChildren returns the documents split out of a container
func (s *Service) ListChildren(ctx context.Context, sc scope.Scope, id string) ([]store.ProcessingDocument, error) {
	if _, err := s.load(ctx, s.store, sc, id); err != nil {
		return nil, err
	}
	return s.store.ListChildren(ctx, id)
}

// Download returns the current binary of a document
func (s *Service) Download(ctx context.Context, sc scope.Scope, id string) (*store.ProcessingDocument, []byte, error) {
	doc, err := s.load(ctx, s.store, sc, id)
	if err != nil {
		return nil, nil, err
	}
	data, err := s.download(ctx, doc)
	if err != nil {
		return nil, nil, err
	}
	return doc, data, nil
}

func (s *Service) load(ctx context.Context, st *store.Store, sc scope.Scope, id string) (*store.ProcessingDocument, error) {
	doc, err := st.GetDocument(ctx, sc.TenantID, id)
	if err != nil {
		return nil, err
	}
	if !sc.AllowsCompany(doc.CompanyID) {
		return nil, apperrors.NotFound("document %s not found", id)
	}
	return doc, nil
}

// loadMutable loads a document for a structural change
func (s *Service) loadMutable(ctx context.Context, sc scope.Scope, id string) (*store.ProcessingDocument, error) {
	doc, err := s.load(ctx, s.store, sc, id)
	if err != nil {
		return nil, err
	}
	if !doc.IsPDF() {
		return nil, apperrors.InvalidState("document %s is %s, only PDF documents can be page-edited", doc.ID, doc.MimeType)
	}
	return doc, nil
}

func (s *Service) download(ctx context.Context, doc *store.ProcessingDocument) ([]byte, error) {
	data, err := s.blobs.Download(ctx, doc.StorageKey)
	if err != nil {
		return nil, apperrors.Storage(err, "download document %s", doc.ID)
	}
	return data, nil
}

func (s *Service) upload(ctx context.Context, key string, data []byte) error {
	if err := s.blobs.Upload(ctx, key, data, pdfMime); err != nil {
		return apperrors.Storage(err, "upload %s", key)
	}
	return nil
}

// rewriteFailed classifies a pdfpages failure on a stored binary
func rewriteFailed(doc *store.ProcessingDocument, err error) error {
	if stderrors.Is(err, pdfpages.ErrUnreadable) {
		return apperrors.Wrap(err, apperrors.CodeInvalidState, "document "+doc.ID+" binary cannot be rewritten")
	}
	return err
}

// renumberMapping turns an old -> new page mapping into store updates,
// recomputing the fingerprint of every page whose number changed.
func renumberMapping(baseKey string, pages []store.DocumentPage, mapping map[int]int) map[int]store.PageUpdate {
	digests := make(map[int]string, len(pages))
	for _, p := range pages {
		digests[p.PageNumber] = p.ContentDigest
	}
	out := make(map[int]store.PageUpdate, len(mapping))
	for old, nn := range mapping {
		upd := store.PageUpdate{NewNumber: nn}
		if old != nn {
			upd.Fingerprint = fingerprint.Page(baseKey, nn, digests[old])
		}
		out[old] = upd
	}
	return out
}

func (s *Service) record(ctx context.Context, sc scope.Scope, name, documentID string, fields map[string]interface{}) {
	s.audit.Record(ctx, audit.Event{
		Name:       name,
		TenantID:   sc.TenantID,
		ActorID:    sc.ActorID,
		DocumentID: documentID,
		Fields:     fields,
	})
}

package pages

import (
	"context"
	"net/http"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/gmsas95/docdesk/internal/audit"
	"github.com/gmsas95/docdesk/internal/duplicates"
	apperrors "github.com/gmsas95/docdesk/internal/errors"
	"github.com/gmsas95/docdesk/internal/fingerprint"
	"github.com/gmsas95/docdesk/internal/pdfpages"
	"github.com/gmsas95/docdesk/internal/scope"
	"github.com/gmsas95/docdesk/internal/store"
)

// IngestRequest is one uploaded file
type IngestRequest struct {
	FileName string
	MimeType string
	Data     []byte
}

// IngestResult is the created document plus any exact duplicates that
// already existed. Duplicates never block the upload.
type IngestResult struct {
	Document   *store.ProcessingDocument `json:"document"`
	Pages      []store.DocumentPage      `json:"pages"`
	Duplicates *duplicates.ExactResult   `json:"duplicates,omitempty"`
}

// Ingest stores a new PDF and creates its document and page rows
func (s *Service) Ingest(ctx context.Context, sc scope.Scope, req IngestRequest) (*IngestResult, error) {
	if len(req.Data) == 0 {
		return nil, apperrors.Validation("file is empty")
	}
	mime := req.MimeType
	if mime == "" || mime == "application/octet-stream" {
		mime = http.DetectContentType(req.Data)
	}
	if i := strings.Index(mime, ";"); i >= 0 {
		mime = strings.TrimSpace(mime[:i])
	}
	if mime != pdfMime {
		return nil, apperrors.Validation("unsupported file type %q, expected %s", mime, pdfMime)
	}

	info, err := pdfpages.Inspect(req.Data)
	if err != nil {
		return nil, apperrors.Validation("file is not a readable PDF: %v", err)
	}
	if info.PageCount == 0 {
		return nil, apperrors.Validation("PDF has no pages")
	}

	hash := fingerprint.FileHash(req.Data)
	var dupes *duplicates.ExactResult
	if s.dups != nil {
		dupes, err = s.dups.CheckExact(ctx, sc, []string{hash}, sc.CompanyRef())
		if err != nil {
			return nil, err
		}
	}

	doc := &store.ProcessingDocument{
		ID:        uuid.NewString(),
		TenantID:  sc.TenantID,
		CompanyID: sc.CompanyRef(),
		FileName:  cleanFileName(req.FileName),
		MimeType:  mime,
		FileSize:  int64(len(req.Data)),
		FileHash:  hash,
		PageCount: info.PageCount,
		CreatedBy: sc.ActorID,
	}
	doc.StorageKey = store.VersionKey(doc.TenantID, doc.ID, 0)

	pages := make([]store.DocumentPage, info.PageCount)
	for i, p := range info.Pages {
		digest := fingerprint.OriginDigest(hash, p.Number, p.Width, p.Height)
		pages[i] = store.DocumentPage{
			PageNumber:       p.Number,
			WidthPx:          p.Width,
			HeightPx:         p.Height,
			ContentDigest:    digest,
			ImageFingerprint: fingerprint.Page(doc.BaseKey(), p.Number, digest),
		}
	}

	if err := s.upload(ctx, doc.StorageKey, req.Data); err != nil {
		return nil, err
	}
	if err := s.store.Transaction(ctx, func(tx *store.Store) error {
		return tx.CreateDocument(ctx, doc, pages)
	}); err != nil {
		return nil, err
	}

	s.record(ctx, sc, audit.DocumentIngested, doc.ID, map[string]interface{}{
		"file_name":  doc.FileName,
		"page_count": doc.PageCount,
		"file_hash":  hash,
	})
	fields := []zap.Field{
		zap.String("document_id", doc.ID),
		zap.Int("pages", doc.PageCount),
	}
	if dupes != nil && len(dupes.Duplicates) > 0 {
		fields = append(fields, zap.Int("exact_duplicates", len(dupes.Duplicates)))
	}
	s.logger.Info("Document ingested", fields...)

	return &IngestResult{Document: doc, Pages: pages, Duplicates: dupes}, nil
}

func cleanFileName(name string) string {
	name = filepath.Base(strings.ReplaceAll(name, "\\", "/"))
	if name == "." || name == "/" || name == "" {
		return "document.pdf"
	}
	return name
}

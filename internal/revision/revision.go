// Package revision manages the append-only extraction results of a
// document: DRAFT -> APPROVED | SUPERSEDED, APPROVED -> SUPERSEDED.
package revision

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/gmsas95/docdesk/internal/audit"
	apperrors "github.com/gmsas95/docdesk/internal/errors"
	"github.com/gmsas95/docdesk/internal/metrics"
	"github.com/gmsas95/docdesk/internal/scope"
	"github.com/gmsas95/docdesk/internal/store"
)

// Manager creates and transitions revisions
type Manager struct {
	store   *store.Store
	metrics *metrics.Metrics
	audit   audit.Recorder
	logger  *zap.Logger
}

func NewManager(st *store.Store, m *metrics.Metrics, rec audit.Recorder, logger *zap.Logger) *Manager {
	if rec == nil {
		rec = audit.Nop{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Manager{store: st, metrics: m, audit: rec, logger: logger}
}

// LineItem is one extracted line
type LineItem struct {
	Description string `json:"description"`
	Quantity    string `json:"quantity,omitempty"`
	UnitPrice   string `json:"unit_price,omitempty"`
	Amount      string `json:"amount,omitempty"`
}

// Input is the output of one extraction run
type Input struct {
	Category       string          `json:"category,omitempty"`
	Vendor         string          `json:"vendor,omitempty"`
	DocumentNumber string          `json:"document_number,omitempty"`
	DocumentDate   *time.Time      `json:"document_date,omitempty"`
	Currency       string          `json:"currency,omitempty"`
	Subtotal       string          `json:"subtotal,omitempty"`
	TaxAmount      string          `json:"tax_amount,omitempty"`
	TotalAmount    string          `json:"total_amount,omitempty"`
	Source         string          `json:"source,omitempty"`
	RawPayload     json.RawMessage `json:"raw_payload,omitempty"`
	LineItems      []LineItem      `json:"line_items,omitempty"`
}

func (m *Manager) loadDocument(ctx context.Context, st *store.Store, sc scope.Scope, documentID string) (*store.ProcessingDocument, error) {
	doc, err := st.GetDocument(ctx, sc.TenantID, documentID)
	if err != nil {
		return nil, err
	}
	if !sc.AllowsCompany(doc.CompanyID) {
		return nil, apperrors.NotFound("document %s not found", documentID)
	}
	return doc, nil
}

// Create appends a DRAFT revision numbered one past the current maximum
func (m *Manager) Create(ctx context.Context, sc scope.Scope, documentID string, in Input) (*store.DocumentRevision, error) {
	for i, li := range in.LineItems {
		if strings.TrimSpace(li.Description) == "" && li.Amount == "" {
			return nil, apperrors.Validation("line item %d is empty", i+1)
		}
	}

	rev := &store.DocumentRevision{
		ProcessingDocumentID: documentID,
		Status:               store.RevisionDraft,
		Category:             in.Category,
		Vendor:               in.Vendor,
		DocumentNumber:       in.DocumentNumber,
		DocumentDate:         in.DocumentDate,
		Currency:             in.Currency,
		Subtotal:             in.Subtotal,
		TaxAmount:            in.TaxAmount,
		TotalAmount:          in.TotalAmount,
		Source:               in.Source,
		RawPayload:           in.RawPayload,
		CreatedBy:            sc.ActorID,
	}
	for _, li := range in.LineItems {
		rev.LineItems = append(rev.LineItems, store.RevisionLineItem{
			Description: li.Description,
			Quantity:    li.Quantity,
			UnitPrice:   li.UnitPrice,
			Amount:      li.Amount,
		})
	}

	// Concurrent creates race for the same number; the loser retries.
	var err error
	for attempt := 0; attempt < createAttempts; attempt++ {
		err = m.store.Transaction(ctx, func(tx *store.Store) error {
			if _, err := m.loadDocument(ctx, tx, sc, documentID); err != nil {
				return err
			}
			return tx.CreateRevision(ctx, rev)
		})
		if err == nil || apperrors.IsAppError(err) || !isWriteRace(err) {
			break
		}
	}
	if err != nil {
		return nil, err
	}

	m.metrics.RecordRevisionEvent("created")
	m.audit.Record(ctx, audit.Event{
		Name:       audit.RevisionCreated,
		TenantID:   sc.TenantID,
		ActorID:    sc.ActorID,
		DocumentID: documentID,
		Fields:     map[string]interface{}{"revision_id": rev.ID, "revision_number": rev.RevisionNumber},
	})
	return rev, nil
}

// Approve makes revisionID the single APPROVED revision of its document.
// In one transaction the previously approved revision becomes SUPERSEDED,
// the target becomes APPROVED and the document points at it. Approving an
// already approved revision returns it unchanged.
func (m *Manager) Approve(ctx context.Context, sc scope.Scope, documentID, revisionID string) (*store.DocumentRevision, error) {
	var approved *store.DocumentRevision
	var alreadyApproved bool

	err := m.store.Transaction(ctx, func(tx *store.Store) error {
		if _, err := m.loadDocument(ctx, tx, sc, documentID); err != nil {
			return err
		}
		rev, err := tx.GetRevision(ctx, documentID, revisionID)
		if err != nil {
			return err
		}
		switch rev.Status {
		case store.RevisionApproved:
			approved, alreadyApproved = rev, true
			return nil
		case store.RevisionSuperseded:
			return apperrors.InvalidState("revision %s is superseded and cannot be approved", rev.ID)
		}

		if _, err := tx.SupersedeApproved(ctx, documentID, rev.ID); err != nil {
			return err
		}
		now := time.Now().UTC()
		ok, err := tx.TransitionRevision(ctx, rev.ID, store.RevisionDraft, store.RevisionApproved, map[string]interface{}{
			"approved_by": sc.ActorID,
			"approved_at": now,
		})
		if err != nil {
			return err
		}
		if !ok {
			return apperrors.Conflict("revision %s changed concurrently", rev.ID)
		}
		if err := tx.UpdateDocumentFields(ctx, documentID, map[string]interface{}{
			"current_revision_id": rev.ID,
		}); err != nil {
			return err
		}
		approved, err = tx.GetRevision(ctx, documentID, rev.ID)
		return err
	})
	if err != nil {
		if !apperrors.IsAppError(err) && isWriteRace(err) {
			return nil, apperrors.Conflict("another revision of document %s was approved concurrently", documentID)
		}
		return nil, err
	}
	if alreadyApproved {
		return approved, nil
	}

	m.metrics.RecordRevisionEvent("approved")
	m.audit.Record(ctx, audit.Event{
		Name:       audit.RevisionApproved,
		TenantID:   sc.TenantID,
		ActorID:    sc.ActorID,
		DocumentID: documentID,
		Fields:     map[string]interface{}{"revision_id": approved.ID, "revision_number": approved.RevisionNumber},
	})
	m.logger.Info("Revision approved",
		zap.String("document_id", documentID),
		zap.String("revision_id", approved.ID),
		zap.Int("revision_number", approved.RevisionNumber))
	return approved, nil
}

// Supersede discards a DRAFT revision without approving anything
func (m *Manager) Supersede(ctx context.Context, sc scope.Scope, documentID, revisionID string) (*store.DocumentRevision, error) {
	var out *store.DocumentRevision
	err := m.store.Transaction(ctx, func(tx *store.Store) error {
		if _, err := m.loadDocument(ctx, tx, sc, documentID); err != nil {
			return err
		}
		rev, err := tx.GetRevision(ctx, documentID, revisionID)
		if err != nil {
			return err
		}
		if rev.Status != store.RevisionDraft {
			return apperrors.InvalidState("revision %s is %s, only DRAFT revisions can be superseded", rev.ID, rev.Status)
		}
		ok, err := tx.TransitionRevision(ctx, rev.ID, store.RevisionDraft, store.RevisionSuperseded, nil)
		if err != nil {
			return err
		}
		if !ok {
			return apperrors.Conflict("revision %s changed concurrently", rev.ID)
		}
		out, err = tx.GetRevision(ctx, documentID, rev.ID)
		return err
	})
	if err != nil {
		return nil, err
	}

	m.metrics.RecordRevisionEvent("superseded")
	m.audit.Record(ctx, audit.Event{
		Name:       audit.RevisionWithdrawn,
		TenantID:   sc.TenantID,
		ActorID:    sc.ActorID,
		DocumentID: documentID,
		Fields:     map[string]interface{}{"revision_id": out.ID},
	})
	return out, nil
}

// List returns every revision of a document, oldest first
func (m *Manager) List(ctx context.Context, sc scope.Scope, documentID string) ([]store.DocumentRevision, error) {
	if _, err := m.loadDocument(ctx, m.store, sc, documentID); err != nil {
		return nil, err
	}
	return m.store.ListRevisions(ctx, documentID)
}

// Get returns one revision with its line items
func (m *Manager) Get(ctx context.Context, sc scope.Scope, documentID, revisionID string) (*store.DocumentRevision, error) {
	if _, err := m.loadDocument(ctx, m.store, sc, documentID); err != nil {
		return nil, err
	}
	return m.store.GetRevision(ctx, documentID, revisionID)
}

const createAttempts = 3

// isWriteRace recognises a lost race between two writers: a unique index
// violation, or SQLite refusing to upgrade a stale read transaction.
func isWriteRace(err error) bool {
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "unique constraint") ||
		strings.Contains(msg, "duplicate key") ||
		strings.Contains(msg, "database is locked") ||
		strings.Contains(msg, "sqlite_busy")
}

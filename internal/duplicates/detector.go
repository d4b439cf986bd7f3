// Package duplicates flags likely resubmissions. The exact check runs on
// whole-file hashes at upload; the fuzzy check compares a draft revision's
// header against recent documents once extraction has produced one.
// Neither check blocks anything, and only a human resolves a suspicion.
package duplicates

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/gmsas95/docdesk/internal/audit"
	apperrors "github.com/gmsas95/docdesk/internal/errors"
	"github.com/gmsas95/docdesk/internal/metrics"
	"github.com/gmsas95/docdesk/internal/scope"
	"github.com/gmsas95/docdesk/internal/store"
)

// Options configures a Detector
type Options struct {
	Threshold     float64
	LookbackDays  int
	MaxCandidates int
	Metrics       *metrics.Metrics
	Audit         audit.Recorder
	Logger        *zap.Logger
}

// Detector runs exact and fuzzy duplicate checks
type Detector struct {
	store   *store.Store
	opts    Options
	metrics *metrics.Metrics
	audit   audit.Recorder
	logger  *zap.Logger
}

func NewDetector(st *store.Store, opts Options) *Detector {
	if opts.Threshold <= 0 {
		opts.Threshold = 0.8
	}
	if opts.MaxCandidates <= 0 {
		opts.MaxCandidates = 200
	}
	d := &Detector{store: st, opts: opts, metrics: opts.Metrics, audit: opts.Audit, logger: opts.Logger}
	if d.audit == nil {
		d.audit = audit.Nop{}
	}
	if d.logger == nil {
		d.logger = zap.NewNop()
	}
	return d
}

// Match is one existing document sharing a file hash
type Match struct {
	Hash       string    `json:"hash"`
	DocumentID string    `json:"document_id"`
	FileName   string    `json:"file_name"`
	UploadedAt time.Time `json:"uploaded_at"`
}

// ExactResult lists existing documents per duplicated hash
type ExactResult struct {
	Duplicates      []Match  `json:"duplicates"`
	DuplicateHashes []string `json:"duplicate_hashes"`
}

// CheckExact finds live documents of the scope's tenant whose file hash is
// one of hashes. companyID narrows the search to one company; when nil the
// scope's own company, if any, is used. Documents the scope cannot see are
// never returned.
func (d *Detector) CheckExact(ctx context.Context, sc scope.Scope, hashes []string, companyID *string) (*ExactResult, error) {
	if len(hashes) == 0 {
		return nil, apperrors.Validation("at least one file hash is required")
	}
	if companyID == nil {
		companyID = sc.CompanyRef()
	}
	if !sc.AllowsCompany(companyID) {
		return nil, apperrors.Validation("company %s is outside the caller's scope", *companyID)
	}

	docs, err := d.store.FindByHashes(ctx, sc.TenantID, companyID, hashes)
	if err != nil {
		return nil, err
	}

	res := &ExactResult{Duplicates: []Match{}, DuplicateHashes: []string{}}
	seen := make(map[string]bool)
	for _, doc := range docs {
		if !sc.AllowsCompany(doc.CompanyID) {
			continue
		}
		res.Duplicates = append(res.Duplicates, Match{
			Hash:       doc.FileHash,
			DocumentID: doc.ID,
			FileName:   doc.FileName,
			UploadedAt: doc.CreatedAt,
		})
		if !seen[doc.FileHash] {
			seen[doc.FileHash] = true
			res.DuplicateHashes = append(res.DuplicateHashes, doc.FileHash)
		}
	}
	return res, nil
}

// Evaluation is the outcome of a fuzzy check
type Evaluation struct {
	DocumentID    string                `json:"document_id"`
	RevisionID    string                `json:"revision_id"`
	Status        store.DuplicateStatus `json:"duplicate_status"`
	DuplicateOfID *string               `json:"duplicate_of_id,omitempty"`
	Score         float64               `json:"score"`
	Reason        string                `json:"reason"`
	Fields        []FieldMatch          `json:"fields,omitempty"`
	Changed       bool                  `json:"changed"`
}

// Evaluate compares the document's latest DRAFT revision with the current
// revisions of recent documents in the same company. A best score at or
// above the threshold marks the document SUSPECTED. Only Resolve moves a
// document out of SUSPECTED: a re-evaluation that scores below the threshold
// refreshes score and reason but keeps the flag and its link. Documents a
// human already resolved are left untouched.
func (d *Detector) Evaluate(ctx context.Context, sc scope.Scope, documentID string) (*Evaluation, error) {
	doc, err := d.store.GetDocument(ctx, sc.TenantID, documentID)
	if err != nil {
		return nil, err
	}
	if !sc.AllowsCompany(doc.CompanyID) {
		return nil, apperrors.NotFound("document %s not found", documentID)
	}

	eval := &Evaluation{DocumentID: doc.ID, Status: doc.DuplicateStatus, DuplicateOfID: doc.DuplicateOfID, Score: doc.DuplicateScore, Reason: doc.DuplicateReason}
	if doc.DuplicateStatus == store.DuplicateConfirmed || doc.DuplicateStatus == store.DuplicateCleared {
		return eval, nil
	}

	draft, err := d.store.LatestDraft(ctx, doc.ID)
	if err != nil {
		return nil, err
	}
	if draft == nil {
		return nil, apperrors.InvalidState("document %s has no draft revision to compare", doc.ID)
	}
	eval.RevisionID = draft.ID

	best, bestDoc, err := d.bestCandidate(ctx, doc, FieldsOf(draft))
	if err != nil {
		return nil, err
	}

	updates := map[string]interface{}{}
	flagged := bestDoc != nil && best.Score >= d.opts.Threshold
	if flagged {
		eval.Status = store.DuplicateSuspected
		eval.DuplicateOfID = &bestDoc.ID
		eval.Score = best.Score
		eval.Reason = best.Reason
		eval.Fields = best.Fields
		updates["duplicate_status"] = store.DuplicateSuspected
		updates["duplicate_of_id"] = bestDoc.ID
		updates["duplicate_score"] = best.Score
		updates["duplicate_reason"] = best.Reason
	} else {
		if doc.DuplicateStatus == store.DuplicateNone {
			if bestDoc != nil {
				eval.Score = best.Score
				eval.Fields = best.Fields
			}
			return eval, nil
		}
		eval.Score = 0
		eval.Reason = "below threshold on re-evaluation: no candidate"
		if bestDoc != nil {
			eval.Score = best.Score
			eval.Reason = "below threshold on re-evaluation: " + best.Reason
			eval.Fields = best.Fields
		}
		updates["duplicate_score"] = eval.Score
		updates["duplicate_reason"] = eval.Reason
	}

	from := []store.DuplicateStatus{store.DuplicateSuspected}
	if flagged {
		from = append(from, store.DuplicateNone)
	}
	changed, err := d.store.UpdateDuplicateState(ctx, doc.ID, from, updates)
	if err != nil {
		return nil, err
	}
	if !changed {
		return nil, apperrors.Conflict("document %s was resolved concurrently", doc.ID)
	}
	eval.Changed = true

	if flagged {
		d.metrics.RecordDuplicateStatus(string(eval.Status))
		d.audit.Record(ctx, audit.Event{
			Name:       audit.DuplicateFlagged,
			TenantID:   sc.TenantID,
			ActorID:    sc.ActorID,
			DocumentID: doc.ID,
			Fields: map[string]interface{}{
				"duplicate_of_id": *eval.DuplicateOfID,
				"score":           eval.Score,
			},
		})
		d.logger.Info("Document flagged as suspected duplicate",
			zap.String("document_id", doc.ID),
			zap.String("duplicate_of_id", *eval.DuplicateOfID),
			zap.Float64("score", eval.Score))
	}
	return eval, nil
}

func (d *Detector) bestCandidate(ctx context.Context, doc *store.ProcessingDocument, draft Fields) (Comparison, *store.ProcessingDocument, error) {
	filter := store.CandidateFilter{
		TenantID:  doc.TenantID,
		CompanyID: doc.CompanyID,
		ExcludeID: doc.ID,
		Limit:     d.opts.MaxCandidates,
	}
	if d.opts.LookbackDays > 0 {
		filter.Since = time.Now().UTC().AddDate(0, 0, -d.opts.LookbackDays)
	}
	candidates, err := d.store.DuplicateCandidates(ctx, filter)
	if err != nil {
		return Comparison{}, nil, err
	}
	if len(candidates) == 0 {
		return Comparison{}, nil, nil
	}

	revIDs := make([]string, 0, len(candidates))
	byRev := make(map[string]*store.ProcessingDocument, len(candidates))
	for i := range candidates {
		id := *candidates[i].CurrentRevisionID
		revIDs = append(revIDs, id)
		byRev[id] = &candidates[i]
	}
	revs, err := d.store.GetRevisionsByIDs(ctx, revIDs)
	if err != nil {
		return Comparison{}, nil, err
	}

	var best Comparison
	var bestDoc *store.ProcessingDocument
	for i := range revs {
		c := Compare(draft, FieldsOf(&revs[i]))
		cand := byRev[revs[i].ID]
		// Ties go to the older document, the likelier original.
		if bestDoc == nil || c.Score > best.Score ||
			(c.Score == best.Score && cand.CreatedAt.Before(bestDoc.CreatedAt)) {
			best, bestDoc = c, cand
		}
	}
	return best, bestDoc, nil
}

// Resolve records a human decision on a SUSPECTED document. CONFIRMED keeps
// the duplicate link; CLEARED drops it but keeps score and reason.
func (d *Detector) Resolve(ctx context.Context, sc scope.Scope, documentID string, status store.DuplicateStatus) (*store.ProcessingDocument, error) {
	if status != store.DuplicateConfirmed && status != store.DuplicateCleared {
		return nil, apperrors.Validation("resolution must be CONFIRMED or CLEARED, got %q", status)
	}
	doc, err := d.store.GetDocument(ctx, sc.TenantID, documentID)
	if err != nil {
		return nil, err
	}
	if !sc.AllowsCompany(doc.CompanyID) {
		return nil, apperrors.NotFound("document %s not found", documentID)
	}
	if doc.DuplicateStatus != store.DuplicateSuspected {
		return nil, apperrors.InvalidState("document %s is %s, only SUSPECTED documents can be resolved", doc.ID, doc.DuplicateStatus)
	}

	updates := map[string]interface{}{"duplicate_status": status}
	if status == store.DuplicateCleared {
		updates["duplicate_of_id"] = nil
	}
	changed, err := d.store.UpdateDuplicateState(ctx, doc.ID, []store.DuplicateStatus{store.DuplicateSuspected}, updates)
	if err != nil {
		return nil, err
	}
	if !changed {
		return nil, apperrors.Conflict("document %s duplicate status changed concurrently", doc.ID)
	}

	d.metrics.RecordDuplicateStatus(string(status))
	d.audit.Record(ctx, audit.Event{
		Name:       audit.DuplicateResolved,
		TenantID:   sc.TenantID,
		ActorID:    sc.ActorID,
		DocumentID: doc.ID,
		Fields:     map[string]interface{}{"status": string(status)},
	})
	return d.store.GetDocument(ctx, sc.TenantID, doc.ID)
}

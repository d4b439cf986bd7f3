package store

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// PipelineStatus tracks a document through the external extraction pipeline
type PipelineStatus string

const (
	PipelineQueued     PipelineStatus = "QUEUED"
	PipelineProcessing PipelineStatus = "PROCESSING"
	PipelineReady      PipelineStatus = "READY"
	PipelineFailed     PipelineStatus = "FAILED"
)

// DuplicateStatus is the human-resolvable duplicate state of a document
type DuplicateStatus string

const (
	DuplicateNone      DuplicateStatus = "NONE"
	DuplicateSuspected DuplicateStatus = "SUSPECTED"
	DuplicateConfirmed DuplicateStatus = "CONFIRMED"
	DuplicateCleared   DuplicateStatus = "CLEARED"
)

// RevisionStatus is the lifecycle state of one extraction attempt
type RevisionStatus string

const (
	RevisionDraft      RevisionStatus = "DRAFT"
	RevisionApproved   RevisionStatus = "APPROVED"
	RevisionSuperseded RevisionStatus = "SUPERSEDED"
)

// ProcessingDocument is one physical multi-page artifact under review
type ProcessingDocument struct {
	ID        string  `gorm:"primaryKey" json:"id"`
	TenantID  string  `gorm:"index:idx_doc_tenant_hash,priority:1;not null" json:"tenant_id"`
	CompanyID *string `gorm:"index" json:"company_id,omitempty"`

	FileName   string `json:"file_name"`
	StorageKey string `json:"storage_key"`
	MimeType   string `json:"mime_type"`
	FileSize   int64  `json:"file_size"`
	FileHash   string `gorm:"index:idx_doc_tenant_hash,priority:2" json:"file_hash"`
	PageCount  int    `json:"page_count"`

	IsContainer bool    `json:"is_container"`
	ParentID    *string `gorm:"index" json:"parent_id,omitempty"`
	PageFrom    *int    `json:"page_from,omitempty"`
	PageTo      *int    `json:"page_to,omitempty"`

	PipelineStatus PipelineStatus `gorm:"not null;default:QUEUED" json:"pipeline_status"`

	DuplicateStatus DuplicateStatus `gorm:"not null;default:NONE;index" json:"duplicate_status"`
	DuplicateOfID   *string         `gorm:"index" json:"duplicate_of_id,omitempty"`
	DuplicateScore  float64         `json:"duplicate_score"`
	DuplicateReason string          `json:"duplicate_reason,omitempty"`

	CurrentRevisionID *string `json:"current_revision_id,omitempty"`

	LockVersion   int64      `gorm:"not null;default:0" json:"lock_version"`
	LockedBy      *string    `json:"locked_by,omitempty"`
	LockExpiresAt *time.Time `json:"lock_expires_at,omitempty"`

	MergedIntoID *string `gorm:"index" json:"merged_into_id,omitempty"`
	CreatedBy    string  `json:"created_by"`

	CreatedAt time.Time      `gorm:"index:idx_doc_review_order" json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"deleted_at,omitempty"`
}

// BaseKey is the stable storage prefix of the document. Binary versions are
// written beneath it, and page fingerprints are seeded from it.
func (d *ProcessingDocument) BaseKey() string {
	return BaseKey(d.TenantID, d.ID)
}

// IsPDF reports whether the stored binary can be page-manipulated
func (d *ProcessingDocument) IsPDF() bool {
	return d.MimeType == "application/pdf"
}

// LockHeldBy reports whether actorID holds an unexpired lock at now
func (d *ProcessingDocument) LockHeldBy(actorID string, now time.Time) bool {
	return d.LockedBy != nil && *d.LockedBy == actorID &&
		d.LockExpiresAt != nil && d.LockExpiresAt.After(now)
}

// LockHeldByOther reports whether someone other than actorID holds an unexpired lock
func (d *ProcessingDocument) LockHeldByOther(actorID string, now time.Time) bool {
	return d.LockedBy != nil && *d.LockedBy != actorID &&
		d.LockExpiresAt != nil && d.LockExpiresAt.After(now)
}

// DocumentPage is one page within a ProcessingDocument
type DocumentPage struct {
	ID                   string `gorm:"primaryKey" json:"id"`
	ProcessingDocumentID string `gorm:"uniqueIndex:idx_page_doc_number,priority:1;not null" json:"processing_document_id"`
	PageNumber           int    `gorm:"uniqueIndex:idx_page_doc_number,priority:2;not null" json:"page_number"`
	WidthPx              int    `json:"width_px"`
	HeightPx             int    `json:"height_px"`
	RotationDeg          int    `json:"rotation_deg"`
	// ContentDigest holds fingerprint.OriginDigest: the page's origin, not its
	// position. It travels with the row through reorders, merges and splits.
	ContentDigest    string    `json:"-"`
	ImageFingerprint string    `json:"image_fingerprint"`
	ImagePath        string    `json:"image_path,omitempty"`
	CreatedAt        time.Time `json:"created_at"`
	UpdatedAt        time.Time `json:"updated_at"`
}

// DocumentRevision is one immutable extraction attempt for a document
type DocumentRevision struct {
	ID                   string         `gorm:"primaryKey" json:"id"`
	ProcessingDocumentID string         `gorm:"uniqueIndex:idx_rev_doc_number,priority:1;not null" json:"processing_document_id"`
	RevisionNumber       int            `gorm:"uniqueIndex:idx_rev_doc_number,priority:2;not null" json:"revision_number"`
	Status               RevisionStatus `gorm:"not null;index" json:"status"`

	Category       string     `json:"category,omitempty"`
	Vendor         string     `json:"vendor,omitempty"`
	DocumentNumber string     `json:"document_number,omitempty"`
	DocumentDate   *time.Time `json:"document_date,omitempty"`
	Currency       string     `json:"currency,omitempty"`
	// Amounts are kept as decimal strings exactly as extracted
	Subtotal    string `json:"subtotal,omitempty"`
	TaxAmount   string `json:"tax_amount,omitempty"`
	TotalAmount string `json:"total_amount,omitempty"`

	Source     string          `json:"source,omitempty"`
	RawPayload json.RawMessage `gorm:"type:text" json:"raw_payload,omitempty"`

	CreatedBy  string     `json:"created_by"`
	ApprovedBy *string    `json:"approved_by,omitempty"`
	ApprovedAt *time.Time `json:"approved_at,omitempty"`
	CreatedAt  time.Time  `json:"created_at"`
	UpdatedAt  time.Time  `json:"updated_at"`

	LineItems []RevisionLineItem `gorm:"foreignKey:RevisionID" json:"line_items,omitempty"`
}

// RevisionLineItem is one ordered line of an extraction attempt
type RevisionLineItem struct {
	ID          string `gorm:"primaryKey" json:"id"`
	RevisionID  string `gorm:"uniqueIndex:idx_line_rev_no,priority:1;not null" json:"revision_id"`
	LineNo      int    `gorm:"uniqueIndex:idx_line_rev_no,priority:2;not null" json:"line_no"`
	Description string `json:"description"`
	Quantity    string `json:"quantity,omitempty"`
	UnitPrice   string `json:"unit_price,omitempty"`
	Amount      string `json:"amount,omitempty"`
}

// BeforeCreate hook for ProcessingDocument
func (d *ProcessingDocument) BeforeCreate(tx *gorm.DB) error {
	if d.ID == "" {
		d.ID = uuid.NewString()
	}
	if d.PipelineStatus == "" {
		d.PipelineStatus = PipelineQueued
	}
	if d.DuplicateStatus == "" {
		d.DuplicateStatus = DuplicateNone
	}
	if d.CreatedAt.IsZero() {
		d.CreatedAt = time.Now().UTC()
	}
	return nil
}

// BeforeCreate hook for DocumentPage
func (p *DocumentPage) BeforeCreate(tx *gorm.DB) error {
	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	return nil
}

// BeforeCreate hook for DocumentRevision
func (r *DocumentRevision) BeforeCreate(tx *gorm.DB) error {
	if r.ID == "" {
		r.ID = uuid.NewString()
	}
	if r.Status == "" {
		r.Status = RevisionDraft
	}
	return nil
}

// BeforeCreate hook for RevisionLineItem
func (l *RevisionLineItem) BeforeCreate(tx *gorm.DB) error {
	if l.ID == "" {
		l.ID = uuid.NewString()
	}
	return nil
}

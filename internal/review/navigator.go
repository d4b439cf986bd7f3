// Package review walks the needs-review queue with keyset cursors.
//
// The queue is every live document that is a suspected duplicate or has a
// DRAFT revision, ordered by (created_at DESC, id DESC). Positions are
// recomputed from the cursor on every call instead of cached as offsets, so
// inserts and removals elsewhere in the queue never shift the caller.
package review

import (
	"context"

	apperrors "github.com/gmsas95/docdesk/internal/errors"
	"github.com/gmsas95/docdesk/internal/scope"
	"github.com/gmsas95/docdesk/internal/store"
)

// Position is the navigator's answer. CurrentIndex is zero-based; PrevID
// and NextID are empty at the ends of the queue. CurrentInQueue is false
// when the cursor document has already left the queue, in which case
// CurrentIndex is where it would sit.
type Position struct {
	Total          int64  `json:"total"`
	CurrentIndex   int64  `json:"current_index"`
	CurrentID      string `json:"current_id,omitempty"`
	PrevID         string `json:"prev_id,omitempty"`
	NextID         string `json:"next_id,omitempty"`
	CurrentInQueue bool   `json:"current_in_queue"`
}

// Navigator answers start/navigate queries
type Navigator struct {
	store *store.Store
}

func NewNavigator(st *store.Store) *Navigator {
	return &Navigator{store: st}
}

// Filter narrows the queue. The scope's own company restrictions always
// apply on top.
type Filter struct {
	CompanyID string `json:"company_id,omitempty"`
}

func (n *Navigator) filter(sc scope.Scope, f Filter) (store.ReviewFilter, error) {
	rf := store.ReviewFilter{
		TenantID:   sc.TenantID,
		CompanyID:  sc.CompanyID,
		CompanyIDs: sc.CompanyIDs,
	}
	if f.CompanyID != "" {
		if !sc.AllowsCompany(&f.CompanyID) {
			return rf, apperrors.Validation("company %s is outside the caller's scope", f.CompanyID)
		}
		rf.CompanyID = f.CompanyID
	}
	return rf, nil
}

// Start returns the head of the queue: the first item as current and the
// second as next.
func (n *Navigator) Start(ctx context.Context, sc scope.Scope, f Filter) (*Position, error) {
	rf, err := n.filter(sc, f)
	if err != nil {
		return nil, err
	}
	total, err := n.store.ReviewCount(ctx, rf)
	if err != nil {
		return nil, err
	}
	head, err := n.store.ReviewHead(ctx, rf, 2)
	if err != nil {
		return nil, err
	}

	pos := &Position{Total: total}
	if len(head) > 0 {
		pos.CurrentID = head[0].ID
		pos.CurrentInQueue = true
	}
	if len(head) > 1 {
		pos.NextID = head[1].ID
	}
	return pos, nil
}

// Navigate positions the caller at currentID and returns its neighbours
func (n *Navigator) Navigate(ctx context.Context, sc scope.Scope, f Filter, currentID string) (*Position, error) {
	if currentID == "" {
		return nil, apperrors.Validation("current document id is required")
	}
	rf, err := n.filter(sc, f)
	if err != nil {
		return nil, err
	}

	// The cursor may have left the queue (just approved, say); its
	// ordering key still places it.
	doc, err := n.store.GetDocument(ctx, sc.TenantID, currentID)
	if err != nil {
		return nil, err
	}
	if !sc.AllowsCompany(doc.CompanyID) {
		return nil, apperrors.NotFound("document %s not found", currentID)
	}
	key := store.ReviewItem{ID: doc.ID, CreatedAt: doc.CreatedAt}
	inQueue := true
	if _, err := n.store.ReviewItemByID(ctx, rf, currentID); err != nil {
		if !apperrors.Is(err, apperrors.CodeNotFound) {
			return nil, err
		}
		inQueue = false
	}

	total, err := n.store.ReviewCount(ctx, rf)
	if err != nil {
		return nil, err
	}
	index, err := n.store.ReviewCountBefore(ctx, rf, key)
	if err != nil {
		return nil, err
	}
	prev, err := n.store.ReviewPrev(ctx, rf, key)
	if err != nil {
		return nil, err
	}
	next, err := n.store.ReviewNext(ctx, rf, key)
	if err != nil {
		return nil, err
	}

	pos := &Position{
		Total:          total,
		CurrentIndex:   index,
		CurrentID:      currentID,
		CurrentInQueue: inQueue,
	}
	if prev != nil {
		pos.PrevID = prev.ID
	}
	if next != nil {
		pos.NextID = next.ID
	}
	return pos, nil
}

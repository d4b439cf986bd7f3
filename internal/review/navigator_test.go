package review

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/gmsas95/docdesk/internal/errors"
	"github.com/gmsas95/docdesk/internal/scope"
	"github.com/gmsas95/docdesk/internal/store"
	"github.com/gmsas95/docdesk/internal/store/storetest"
)

var (
	base     = time.Date(2026, 1, 10, 12, 0, 0, 0, time.UTC)
	operator = scope.Scope{TenantID: "t1", ActorID: "op"}
)

type docOpts struct {
	company   *string
	draft     bool
	approved  bool
	suspected bool
	offset    time.Duration
	id        string
}

func seed(t *testing.T, st *store.Store, o docOpts) *store.ProcessingDocument {
	ctx := context.Background()
	doc := &store.ProcessingDocument{
		ID:        o.id,
		TenantID:  "t1",
		CompanyID: o.company,
		CreatedAt: base.Add(o.offset),
	}
	if o.suspected {
		doc.DuplicateStatus = store.DuplicateSuspected
	}
	require.NoError(t, st.CreateDocument(ctx, doc, nil))
	if o.approved {
		require.NoError(t, st.CreateRevision(ctx, &store.DocumentRevision{ProcessingDocumentID: doc.ID, Status: store.RevisionApproved}))
	}
	if o.draft {
		require.NoError(t, st.CreateRevision(ctx, &store.DocumentRevision{ProcessingDocumentID: doc.ID, Status: store.RevisionDraft}))
	}
	return doc
}

// seedFive creates five queue items, newest first, plus noise that must
// stay out of the queue.
func seedFive(t *testing.T, st *store.Store) []string {
	ids := make([]string, 5)
	for i := 0; i < 5; i++ {
		// item[0] is the newest
		doc := seed(t, st, docOpts{draft: i%2 == 0, suspected: i%2 == 1, offset: time.Duration(5-i) * time.Hour})
		ids[i] = doc.ID
	}
	seed(t, st, docOpts{approved: true, offset: 90 * time.Minute})
	seed(t, st, docOpts{offset: 10 * time.Hour})
	return ids
}

func TestStart(t *testing.T) {
	st := storetest.New(t)
	nav := NewNavigator(st)
	ids := seedFive(t, st)

	pos, err := nav.Start(context.Background(), operator, Filter{})
	require.NoError(t, err)
	assert.Equal(t, int64(5), pos.Total)
	assert.Equal(t, int64(0), pos.CurrentIndex)
	assert.Equal(t, ids[0], pos.CurrentID)
	assert.Equal(t, ids[1], pos.NextID)
	assert.Empty(t, pos.PrevID)
	assert.True(t, pos.CurrentInQueue)
}

func TestStart_EmptyQueue(t *testing.T) {
	st := storetest.New(t)
	pos, err := NewNavigator(st).Start(context.Background(), operator, Filter{})
	require.NoError(t, err)
	assert.Equal(t, int64(0), pos.Total)
	assert.Empty(t, pos.CurrentID)
	assert.Empty(t, pos.NextID)
}

func TestNavigate(t *testing.T) {
	st := storetest.New(t)
	nav := NewNavigator(st)
	ids := seedFive(t, st)
	ctx := context.Background()

	pos, err := nav.Navigate(ctx, operator, Filter{}, ids[2])
	require.NoError(t, err)
	assert.Equal(t, int64(5), pos.Total)
	assert.Equal(t, int64(2), pos.CurrentIndex)
	assert.Equal(t, ids[1], pos.PrevID)
	assert.Equal(t, ids[3], pos.NextID)

	pos, err = nav.Navigate(ctx, operator, Filter{}, ids[0])
	require.NoError(t, err)
	assert.Equal(t, int64(0), pos.CurrentIndex)
	assert.Empty(t, pos.PrevID)
	assert.Equal(t, ids[1], pos.NextID)

	pos, err = nav.Navigate(ctx, operator, Filter{}, ids[4])
	require.NoError(t, err)
	assert.Equal(t, int64(4), pos.CurrentIndex)
	assert.Equal(t, ids[3], pos.PrevID)
	assert.Empty(t, pos.NextID)
}

func TestNavigate_StableUnderInserts(t *testing.T) {
	st := storetest.New(t)
	nav := NewNavigator(st)
	ids := seedFive(t, st)
	ctx := context.Background()

	// a new item lands at the head of the queue
	fresh := seed(t, st, docOpts{draft: true, offset: 24 * time.Hour})

	pos, err := nav.Navigate(ctx, operator, Filter{}, ids[2])
	require.NoError(t, err)
	assert.Equal(t, int64(6), pos.Total)
	assert.Equal(t, int64(3), pos.CurrentIndex)
	assert.Equal(t, ids[1], pos.PrevID)
	assert.Equal(t, ids[3], pos.NextID)

	pos, err = nav.Navigate(ctx, operator, Filter{}, ids[0])
	require.NoError(t, err)
	assert.Equal(t, fresh.ID, pos.PrevID)
}

func TestNavigate_TiesBreakOnID(t *testing.T) {
	st := storetest.New(t)
	nav := NewNavigator(st)
	ctx := context.Background()

	seed(t, st, docOpts{id: "doc-a", draft: true})
	seed(t, st, docOpts{id: "doc-b", draft: true})
	seed(t, st, docOpts{id: "doc-c", draft: true})

	pos, err := nav.Navigate(ctx, operator, Filter{}, "doc-b")
	require.NoError(t, err)
	assert.Equal(t, int64(1), pos.CurrentIndex)
	assert.Equal(t, "doc-c", pos.PrevID)
	assert.Equal(t, "doc-a", pos.NextID)
}

func TestNavigate_CursorLeftQueue(t *testing.T) {
	st := storetest.New(t)
	nav := NewNavigator(st)
	ids := seedFive(t, st)
	ctx := context.Background()

	// ids[1] is only a suspected duplicate; clearing it drops it from the queue
	require.NoError(t, st.UpdateDocumentFields(ctx, ids[1], map[string]interface{}{"duplicate_status": store.DuplicateCleared}))

	pos, err := nav.Navigate(ctx, operator, Filter{}, ids[1])
	require.NoError(t, err)
	assert.False(t, pos.CurrentInQueue)
	assert.Equal(t, int64(4), pos.Total)
	assert.Equal(t, int64(1), pos.CurrentIndex)
	assert.Equal(t, ids[0], pos.PrevID)
	assert.Equal(t, ids[2], pos.NextID)
}

func TestNavigate_ApprovedWithNewerDraftNeedsReview(t *testing.T) {
	st := storetest.New(t)
	nav := NewNavigator(st)
	ctx := context.Background()

	doc := seed(t, st, docOpts{approved: true, draft: true})
	seed(t, st, docOpts{approved: true, offset: time.Hour})

	pos, err := nav.Start(ctx, operator, Filter{})
	require.NoError(t, err)
	assert.Equal(t, int64(1), pos.Total)
	assert.Equal(t, doc.ID, pos.CurrentID)
}

func TestCompanyScope(t *testing.T) {
	st := storetest.New(t)
	nav := NewNavigator(st)
	ctx := context.Background()
	c1, c2 := "c1", "c2"

	a := seed(t, st, docOpts{company: &c1, draft: true, offset: 3 * time.Hour})
	b := seed(t, st, docOpts{company: &c2, draft: true, offset: 2 * time.Hour})
	shared := seed(t, st, docOpts{draft: true, offset: time.Hour})

	pos, err := nav.Start(ctx, operator, Filter{CompanyID: "c1"})
	require.NoError(t, err)
	assert.Equal(t, int64(1), pos.Total)
	assert.Equal(t, a.ID, pos.CurrentID)

	restricted := scope.Scope{TenantID: "t1", ActorID: "x", CompanyIDs: []string{"c2"}}
	pos, err = nav.Start(ctx, restricted, Filter{})
	require.NoError(t, err)
	assert.Equal(t, int64(2), pos.Total)
	assert.Equal(t, b.ID, pos.CurrentID)
	assert.Equal(t, shared.ID, pos.NextID)

	_, err = nav.Start(ctx, restricted, Filter{CompanyID: "c1"})
	assert.True(t, apperrors.Is(err, apperrors.CodeValidation))

	_, err = nav.Navigate(ctx, restricted, Filter{}, a.ID)
	assert.True(t, apperrors.Is(err, apperrors.CodeNotFound))

	other := scope.Scope{TenantID: "t2", ActorID: "y"}
	pos, err = nav.Start(ctx, other, Filter{})
	require.NoError(t, err)
	assert.Equal(t, int64(0), pos.Total)
}

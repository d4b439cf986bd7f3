package revision

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/gmsas95/docdesk/internal/errors"
	"github.com/gmsas95/docdesk/internal/scope"
	"github.com/gmsas95/docdesk/internal/store"
	"github.com/gmsas95/docdesk/internal/store/storetest"
)

var reviewer = scope.Scope{TenantID: "t1", ActorID: "reviewer"}

func setupManager(t *testing.T) (*Manager, *store.Store, *store.ProcessingDocument) {
	st := storetest.New(t)
	doc := &store.ProcessingDocument{TenantID: "t1", FileName: "a.pdf"}
	require.NoError(t, st.CreateDocument(context.Background(), doc, nil))
	return NewManager(st, nil, nil, nil), st, doc
}

func countApproved(t *testing.T, st *store.Store, docID string) int {
	revs, err := st.ListRevisions(context.Background(), docID)
	require.NoError(t, err)
	n := 0
	for _, r := range revs {
		if r.Status == store.RevisionApproved {
			n++
		}
	}
	return n
}

func TestCreate_NumbersAndLineItems(t *testing.T) {
	m, _, doc := setupManager(t)
	ctx := context.Background()

	r1, err := m.Create(ctx, reviewer, doc.ID, Input{
		Vendor: "Acme",
		LineItems: []LineItem{
			{Description: "Paper", Amount: "10.00"},
			{Description: "Toner", Amount: "55.00"},
		},
	})
	require.NoError(t, err)
	assert.Equal(t, 1, r1.RevisionNumber)
	assert.Equal(t, store.RevisionDraft, r1.Status)
	assert.Equal(t, "reviewer", r1.CreatedBy)

	r2, err := m.Create(ctx, reviewer, doc.ID, Input{Vendor: "Acme Ltd"})
	require.NoError(t, err)
	assert.Equal(t, 2, r2.RevisionNumber)

	got, err := m.Get(ctx, reviewer, doc.ID, r1.ID)
	require.NoError(t, err)
	require.Len(t, got.LineItems, 2)
	assert.Equal(t, 1, got.LineItems[0].LineNo)
	assert.Equal(t, "Toner", got.LineItems[1].Description)
	assert.Equal(t, 2, got.LineItems[1].LineNo)
}

func TestCreate_Validation(t *testing.T) {
	m, _, doc := setupManager(t)
	ctx := context.Background()

	_, err := m.Create(ctx, reviewer, doc.ID, Input{LineItems: []LineItem{{}}})
	assert.True(t, apperrors.Is(err, apperrors.CodeValidation))

	_, err = m.Create(ctx, reviewer, "missing", Input{})
	assert.True(t, apperrors.Is(err, apperrors.CodeNotFound))
}

func TestApprove_SupersedesPrevious(t *testing.T) {
	m, st, doc := setupManager(t)
	ctx := context.Background()

	r1, err := m.Create(ctx, reviewer, doc.ID, Input{Vendor: "A"})
	require.NoError(t, err)
	r2, err := m.Create(ctx, reviewer, doc.ID, Input{Vendor: "B"})
	require.NoError(t, err)

	a1, err := m.Approve(ctx, reviewer, doc.ID, r1.ID)
	require.NoError(t, err)
	assert.Equal(t, store.RevisionApproved, a1.Status)
	require.NotNil(t, a1.ApprovedBy)
	assert.Equal(t, "reviewer", *a1.ApprovedBy)

	_, err = m.Approve(ctx, reviewer, doc.ID, r2.ID)
	require.NoError(t, err)

	revs, err := m.List(ctx, reviewer, doc.ID)
	require.NoError(t, err)
	require.Len(t, revs, 2)
	assert.Equal(t, store.RevisionSuperseded, revs[0].Status)
	assert.Equal(t, store.RevisionApproved, revs[1].Status)

	got, err := st.GetDocument(ctx, "t1", doc.ID)
	require.NoError(t, err)
	require.NotNil(t, got.CurrentRevisionID)
	assert.Equal(t, r2.ID, *got.CurrentRevisionID)

	// superseded revisions stay superseded
	_, err = m.Approve(ctx, reviewer, doc.ID, r1.ID)
	assert.True(t, apperrors.Is(err, apperrors.CodeInvalidState))
}

func TestApprove_IsIdempotent(t *testing.T) {
	m, st, doc := setupManager(t)
	ctx := context.Background()

	r1, err := m.Create(ctx, reviewer, doc.ID, Input{})
	require.NoError(t, err)
	_, err = m.Approve(ctx, reviewer, doc.ID, r1.ID)
	require.NoError(t, err)
	again, err := m.Approve(ctx, reviewer, doc.ID, r1.ID)
	require.NoError(t, err)
	assert.Equal(t, store.RevisionApproved, again.Status)
	assert.Equal(t, 1, countApproved(t, st, doc.ID))
}

func TestApprove_ConcurrentRace(t *testing.T) {
	m, st, doc := setupManager(t)
	ctx := context.Background()

	var ids []string
	for i := 0; i < 6; i++ {
		r, err := m.Create(ctx, reviewer, doc.ID, Input{})
		require.NoError(t, err)
		ids = append(ids, r.ID)
	}

	var wg sync.WaitGroup
	for round := 0; round < 3; round++ {
		for _, id := range ids {
			wg.Add(1)
			go func(id string) {
				defer wg.Done()
				_, err := m.Approve(ctx, reviewer, doc.ID, id)
				if err != nil {
					// losing a race is reported, never silently merged
					code := apperrors.GetCode(err)
					assert.Contains(t, []string{apperrors.CodeInvalidState, apperrors.CodeConflict}, code)
				}
			}(id)
		}
	}
	wg.Wait()

	assert.Equal(t, 1, countApproved(t, st, doc.ID))

	got, err := st.GetDocument(ctx, "t1", doc.ID)
	require.NoError(t, err)
	require.NotNil(t, got.CurrentRevisionID)
	revs, err := st.ListRevisions(ctx, doc.ID)
	require.NoError(t, err)
	for _, r := range revs {
		if r.Status == store.RevisionApproved {
			assert.Equal(t, r.ID, *got.CurrentRevisionID)
		}
	}
}

func TestSupersede(t *testing.T) {
	m, _, doc := setupManager(t)
	ctx := context.Background()

	r1, err := m.Create(ctx, reviewer, doc.ID, Input{})
	require.NoError(t, err)

	out, err := m.Supersede(ctx, reviewer, doc.ID, r1.ID)
	require.NoError(t, err)
	assert.Equal(t, store.RevisionSuperseded, out.Status)

	_, err = m.Supersede(ctx, reviewer, doc.ID, r1.ID)
	assert.True(t, apperrors.Is(err, apperrors.CodeInvalidState))

	_, err = m.Approve(ctx, reviewer, doc.ID, r1.ID)
	assert.True(t, apperrors.Is(err, apperrors.CodeInvalidState))
}

func TestCompanyScope(t *testing.T) {
	m, st, _ := setupManager(t)
	ctx := context.Background()
	company := "c1"
	doc := &store.ProcessingDocument{TenantID: "t1", CompanyID: &company}
	require.NoError(t, st.CreateDocument(ctx, doc, nil))

	outsider := scope.Scope{TenantID: "t1", ActorID: "x", CompanyIDs: []string{"c2"}}
	_, err := m.Create(ctx, outsider, doc.ID, Input{})
	assert.True(t, apperrors.Is(err, apperrors.CodeNotFound))
	_, err = m.List(ctx, outsider, doc.ID)
	assert.True(t, apperrors.Is(err, apperrors.CodeNotFound))
}

package pages

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/gmsas95/docdesk/internal/errors"
	"github.com/gmsas95/docdesk/internal/pdfpages"
	"github.com/gmsas95/docdesk/internal/pdfpages/pdftest"
	"github.com/gmsas95/docdesk/internal/scope"
	"github.com/gmsas95/docdesk/internal/store"
)

func TestMerge(t *testing.T) {
	f := setupService(t)
	ctx := context.Background()
	a := f.ingest(t, alice, pdftest.WidthsFrom(100, 2)...)
	b := f.ingest(t, alice, pdftest.WidthsFrom(300, 3)...)
	aDigests := f.pages(t, a.ID)
	bDigests := f.pages(t, b.ID)

	res, err := f.svc.Merge(ctx, alice, MergeRequest{DocumentIDs: []string{a.ID, b.ID}})
	require.NoError(t, err)
	assert.Equal(t, 5, res.PageCount)
	assert.True(t, res.SourceDocumentsDeleted)

	merged := f.reload(t, res.MergedDocumentID)
	assert.True(t, merged.IsContainer)
	assert.Equal(t, store.PipelineQueued, merged.PipelineStatus)
	assert.Equal(t, []int{100, 110, 300, 310, 320}, f.widths(t, merged.ID))
	f.assertDense(t, merged.ID)

	pages := f.pages(t, merged.ID)
	assert.Equal(t, aDigests[0].ContentDigest, pages[0].ContentDigest)
	assert.Equal(t, bDigests[2].ContentDigest, pages[4].ContentDigest)

	for _, id := range []string{a.ID, b.ID} {
		_, err := f.st.GetDocument(ctx, "t1", id)
		assert.True(t, apperrors.Is(err, apperrors.CodeNotFound))
	}
	rows, err := f.st.GetDocumentsUnscoped(ctx, []string{a.ID, b.ID})
	require.NoError(t, err)
	for _, row := range rows {
		assert.True(t, row.DeletedAt.Valid)
		require.NotNil(t, row.MergedIntoID)
		assert.Equal(t, merged.ID, *row.MergedIntoID)
	}
}

func TestMerge_RerunOnDeletedSourcesIsNoop(t *testing.T) {
	f := setupService(t)
	ctx := context.Background()
	a := f.ingest(t, alice, 100)
	b := f.ingest(t, alice, 200)

	first, err := f.svc.Merge(ctx, alice, MergeRequest{DocumentIDs: []string{a.ID, b.ID}})
	require.NoError(t, err)
	objects := f.blobs.Len()

	second, err := f.svc.Merge(ctx, alice, MergeRequest{DocumentIDs: []string{a.ID, b.ID}})
	require.NoError(t, err)
	assert.Equal(t, first.MergedDocumentID, second.MergedDocumentID)
	assert.Equal(t, objects, f.blobs.Len())

	var containers int64
	require.NoError(t, f.st.DB().Model(&store.ProcessingDocument{}).Where("is_container = ?", true).Count(&containers).Error)
	assert.Equal(t, int64(1), containers)
}

func TestMerge_RepointsDuplicateLinks(t *testing.T) {
	f := setupService(t)
	ctx := context.Background()
	a := f.ingest(t, alice, 100)
	b := f.ingest(t, alice, 200)
	c := f.ingest(t, alice, 300)
	require.NoError(t, f.st.UpdateDocumentFields(ctx, c.ID, map[string]interface{}{
		"duplicate_status": store.DuplicateSuspected,
		"duplicate_of_id":  a.ID,
	}))

	res, err := f.svc.Merge(ctx, alice, MergeRequest{DocumentIDs: []string{a.ID, b.ID}})
	require.NoError(t, err)

	got := f.reload(t, c.ID)
	require.NotNil(t, got.DuplicateOfID)
	assert.Equal(t, res.MergedDocumentID, *got.DuplicateOfID)
	assert.Equal(t, store.DuplicateSuspected, got.DuplicateStatus)
}

func TestMerge_Validation(t *testing.T) {
	f := setupService(t)
	ctx := context.Background()
	c1 := scope.Scope{TenantID: "t1", CompanyID: "c1", ActorID: "alice"}
	c2 := scope.Scope{TenantID: "t1", CompanyID: "c2", ActorID: "alice"}
	a := f.ingest(t, c1, 100)
	b := f.ingest(t, c2, 200)
	shared := f.ingest(t, alice, 300)
	foreign := f.ingest(t, scope.Scope{TenantID: "t2", ActorID: "eve"}, 400)
	objects := f.blobs.Len()

	_, err := f.svc.Merge(ctx, alice, MergeRequest{DocumentIDs: []string{a.ID}})
	assert.True(t, apperrors.Is(err, apperrors.CodeValidation))

	_, err = f.svc.Merge(ctx, alice, MergeRequest{DocumentIDs: []string{a.ID, a.ID}})
	assert.True(t, apperrors.Is(err, apperrors.CodeValidation))

	_, err = f.svc.Merge(ctx, alice, MergeRequest{DocumentIDs: []string{a.ID, b.ID}})
	assert.True(t, apperrors.Is(err, apperrors.CodeValidation))

	_, err = f.svc.Merge(ctx, alice, MergeRequest{DocumentIDs: []string{shared.ID, foreign.ID}})
	assert.True(t, apperrors.Is(err, apperrors.CodeValidation))

	_, err = f.svc.Merge(ctx, alice, MergeRequest{DocumentIDs: []string{shared.ID, "missing"}})
	assert.True(t, apperrors.Is(err, apperrors.CodeNotFound))

	assert.Equal(t, objects, f.blobs.Len())

	// a company-scoped source and a tenant-wide one merge into the company
	res, err := f.svc.Merge(ctx, c1, MergeRequest{DocumentIDs: []string{a.ID, shared.ID}})
	require.NoError(t, err)
	require.NotNil(t, res.Document.CompanyID)
	assert.Equal(t, "c1", *res.Document.CompanyID)
}

func TestMerge_StorageFailureLeavesSourcesLive(t *testing.T) {
	f := setupService(t)
	ctx := context.Background()
	a := f.ingest(t, alice, 100)
	b := f.ingest(t, alice, 200)
	f.blobs.FailUploads = true

	_, err := f.svc.Merge(ctx, alice, MergeRequest{DocumentIDs: []string{a.ID, b.ID}})
	assert.True(t, apperrors.Is(err, apperrors.CodeStorage))

	assert.Equal(t, a.ID, f.reload(t, a.ID).ID)
	assert.Equal(t, b.ID, f.reload(t, b.ID).ID)
}

func TestSplit(t *testing.T) {
	f := setupService(t)
	ctx := context.Background()
	a := f.ingest(t, alice, pdftest.WidthsFrom(100, 2)...)
	b := f.ingest(t, alice, pdftest.WidthsFrom(300, 3)...)
	merged, err := f.svc.Merge(ctx, alice, MergeRequest{DocumentIDs: []string{a.ID, b.ID}})
	require.NoError(t, err)
	containerPages := f.pages(t, merged.MergedDocumentID)

	v := f.lock(t, alice, merged.MergedDocumentID)
	res, err := f.svc.Split(ctx, alice, SplitRequest{
		DocumentID:      merged.MergedDocumentID,
		Ranges:          []pdfpages.Range{{From: 3, To: 5}, {From: 1, To: 2}},
		ExpectedVersion: v,
	})
	require.NoError(t, err)
	assert.Equal(t, v+1, res.LockVersion)
	require.Len(t, res.Children, 2)

	first, second := res.Children[0], res.Children[1]
	assert.Equal(t, 1, *first.PageFrom)
	assert.Equal(t, 2, *first.PageTo)
	assert.Equal(t, merged.MergedDocumentID, *second.ParentID)
	assert.Equal(t, []int{100, 110}, f.widths(t, first.ID))
	assert.Equal(t, []int{300, 310, 320}, f.widths(t, second.ID))
	f.assertDense(t, first.ID)
	f.assertDense(t, second.ID)
	assert.Equal(t, containerPages[2].ContentDigest, f.pages(t, second.ID)[0].ContentDigest)

	children, err := f.svc.ListChildren(ctx, alice, merged.MergedDocumentID)
	require.NoError(t, err)
	assert.Len(t, children, 2)

	container := f.reload(t, merged.MergedDocumentID)
	assert.Equal(t, 5, container.PageCount)
	f.assertDense(t, container.ID)
}

func TestSplit_Rejects(t *testing.T) {
	f := setupService(t)
	ctx := context.Background()
	plain := f.ingest(t, alice, pdftest.Widths(3)...)
	v := f.lock(t, alice, plain.ID)

	_, err := f.svc.Split(ctx, alice, SplitRequest{DocumentID: plain.ID, Ranges: []pdfpages.Range{{From: 1, To: 1}}, ExpectedVersion: v})
	assert.True(t, apperrors.Is(err, apperrors.CodeInvalidState))

	a := f.ingest(t, alice, 100, 110)
	b := f.ingest(t, alice, 200)
	merged, err := f.svc.Merge(ctx, alice, MergeRequest{DocumentIDs: []string{a.ID, b.ID}})
	require.NoError(t, err)
	id := merged.MergedDocumentID

	_, err = f.svc.Split(ctx, alice, SplitRequest{DocumentID: id, Ranges: []pdfpages.Range{{From: 1, To: 2}}, ExpectedVersion: 0})
	assert.True(t, apperrors.Is(err, apperrors.CodeConflict))

	cv := f.lock(t, alice, id)
	_, err = f.svc.Split(ctx, alice, SplitRequest{DocumentID: id, Ranges: []pdfpages.Range{{From: 1, To: 2}, {From: 2, To: 3}}, ExpectedVersion: cv})
	assert.True(t, apperrors.Is(err, apperrors.CodeValidation))
	_, err = f.svc.Split(ctx, alice, SplitRequest{DocumentID: id, Ranges: []pdfpages.Range{{From: 2, To: 4}}, ExpectedVersion: cv})
	assert.True(t, apperrors.Is(err, apperrors.CodeValidation))

	children, err := f.svc.ListChildren(ctx, alice, id)
	require.NoError(t, err)
	assert.Empty(t, children)
}

package locking

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/gmsas95/docdesk/internal/errors"
	"github.com/gmsas95/docdesk/internal/idempotency"
	"github.com/gmsas95/docdesk/internal/scope"
	"github.com/gmsas95/docdesk/internal/store"
	"github.com/gmsas95/docdesk/internal/store/storetest"
)

type clock struct{ t time.Time }

func (c *clock) now() time.Time          { return c.t }
func (c *clock) advance(d time.Duration) { c.t = c.t.Add(d) }

func setupManager(t *testing.T) (*Manager, *store.Store, *clock) {
	st := storetest.New(t)
	clk := &clock{t: time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)}
	cache := idempotency.NewCache(storetest.NewBadger(t), time.Hour, nil)
	m := NewManager(st, Options{TTL: 5 * time.Minute, Cache: cache, Now: clk.now})
	return m, st, clk
}

func seedDoc(t *testing.T, st *store.Store, company *string) *store.ProcessingDocument {
	doc := &store.ProcessingDocument{TenantID: "t1", CompanyID: company, FileName: "a.pdf", MimeType: "application/pdf"}
	require.NoError(t, st.CreateDocument(context.Background(), doc, nil))
	return doc
}

func version(v int64) *int64 { return &v }

var (
	alice = scope.Scope{TenantID: "t1", ActorID: "alice"}
	bob   = scope.Scope{TenantID: "t1", ActorID: "bob"}
)

func TestAcquire_Grants(t *testing.T) {
	m, st, clk := setupManager(t)
	doc := seedDoc(t, st, nil)

	res, err := m.Acquire(context.Background(), alice, AcquireRequest{DocumentID: doc.ID, ExpectedVersion: version(0)})
	require.NoError(t, err)
	assert.True(t, res.Granted)
	assert.Equal(t, int64(1), res.LockVersion)
	assert.Equal(t, "alice", res.LockedBy)
	assert.Equal(t, clk.t.Add(5*time.Minute), res.ExpiresAt)

	got, err := st.GetDocument(context.Background(), "t1", doc.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(1), got.LockVersion)
	require.NotNil(t, got.LockedBy)
	assert.Equal(t, "alice", *got.LockedBy)
}

func TestAcquire_StaleVersionConflicts(t *testing.T) {
	m, st, _ := setupManager(t)
	doc := seedDoc(t, st, nil)
	ctx := context.Background()

	_, err := m.Acquire(ctx, alice, AcquireRequest{DocumentID: doc.ID, ExpectedVersion: version(0)})
	require.NoError(t, err)

	// alice still holds it, but version 0 is stale now
	_, err = m.Acquire(ctx, alice, AcquireRequest{DocumentID: doc.ID, ExpectedVersion: version(0)})
	require.True(t, apperrors.Is(err, apperrors.CodeConflict))

	var appErr *apperrors.AppError
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, int64(1), appErr.Details["lock_version"])

	got, err := st.GetDocument(ctx, "t1", doc.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(1), got.LockVersion, "a refused acquire never bumps the version")
}

func TestAcquire_HeldByOther(t *testing.T) {
	m, st, clk := setupManager(t)
	doc := seedDoc(t, st, nil)
	ctx := context.Background()

	_, err := m.Acquire(ctx, alice, AcquireRequest{DocumentID: doc.ID})
	require.NoError(t, err)

	_, err = m.Acquire(ctx, bob, AcquireRequest{DocumentID: doc.ID, ExpectedVersion: version(1)})
	require.True(t, apperrors.Is(err, apperrors.CodeConflict))
	var appErr *apperrors.AppError
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, "alice", appErr.Details["locked_by"])

	// after expiry bob may take it over
	clk.advance(6 * time.Minute)
	res, err := m.Acquire(ctx, bob, AcquireRequest{DocumentID: doc.ID, ExpectedVersion: version(1)})
	require.NoError(t, err)
	assert.Equal(t, int64(2), res.LockVersion)
	assert.Equal(t, "bob", res.LockedBy)
}

func TestAcquire_HolderCanExtend(t *testing.T) {
	m, st, clk := setupManager(t)
	doc := seedDoc(t, st, nil)
	ctx := context.Background()

	_, err := m.Acquire(ctx, alice, AcquireRequest{DocumentID: doc.ID})
	require.NoError(t, err)
	clk.advance(time.Minute)

	res, err := m.Acquire(ctx, alice, AcquireRequest{DocumentID: doc.ID, ExpectedVersion: version(1)})
	require.NoError(t, err)
	assert.Equal(t, int64(2), res.LockVersion)
	assert.Equal(t, clk.t.Add(5*time.Minute), res.ExpiresAt)
}

func TestAcquire_IdempotentReplay(t *testing.T) {
	m, st, clk := setupManager(t)
	doc := seedDoc(t, st, nil)
	ctx := context.Background()
	req := AcquireRequest{DocumentID: doc.ID, ExpectedVersion: version(0), IdempotencyKey: "retry-abc"}

	first, err := m.Acquire(ctx, alice, req)
	require.NoError(t, err)
	clk.advance(time.Second)
	second, err := m.Acquire(ctx, alice, req)
	require.NoError(t, err)

	a, err := json.Marshal(first)
	require.NoError(t, err)
	b, err := json.Marshal(second)
	require.NoError(t, err)
	assert.Equal(t, string(a), string(b))

	got, err := st.GetDocument(ctx, "t1", doc.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(1), got.LockVersion, "only one version increment")
}

func TestAcquire_SameKeyOtherActorRunsAgain(t *testing.T) {
	m, st, _ := setupManager(t)
	doc := seedDoc(t, st, nil)
	ctx := context.Background()

	_, err := m.Acquire(ctx, alice, AcquireRequest{DocumentID: doc.ID, ExpectedVersion: version(0), IdempotencyKey: "k1"})
	require.NoError(t, err)

	res, err := m.Acquire(ctx, bob, AcquireRequest{DocumentID: doc.ID, ExpectedVersion: version(1), IdempotencyKey: "k1"})
	require.Error(t, err)
	assert.Nil(t, res)
	assert.True(t, apperrors.Is(err, apperrors.CodeConflict))

	got, err := st.GetDocument(ctx, "t1", doc.ID)
	require.NoError(t, err)
	require.NotNil(t, got.LockedBy)
	assert.Equal(t, "alice", *got.LockedBy)
	assert.Equal(t, int64(1), got.LockVersion)
}

func TestAcquire_NotFound(t *testing.T) {
	m, st, _ := setupManager(t)
	ctx := context.Background()

	_, err := m.Acquire(ctx, alice, AcquireRequest{DocumentID: "missing"})
	assert.True(t, apperrors.Is(err, apperrors.CodeNotFound))

	company := "c1"
	doc := seedDoc(t, st, &company)
	outsider := scope.Scope{TenantID: "t1", ActorID: "eve", CompanyID: "c2"}
	_, err = m.Acquire(ctx, outsider, AcquireRequest{DocumentID: doc.ID})
	assert.True(t, apperrors.Is(err, apperrors.CodeNotFound))

	_, err = m.Acquire(ctx, scope.Scope{TenantID: "t2", ActorID: "x"}, AcquireRequest{DocumentID: doc.ID})
	assert.True(t, apperrors.Is(err, apperrors.CodeNotFound))
}

func TestCheckHeld(t *testing.T) {
	m, st, clk := setupManager(t)
	doc := seedDoc(t, st, nil)
	ctx := context.Background()

	reload := func() *store.ProcessingDocument {
		d, err := st.GetDocument(ctx, "t1", doc.ID)
		require.NoError(t, err)
		return d
	}

	assert.True(t, apperrors.Is(m.CheckHeld(reload(), "alice", 0), apperrors.CodeConflict), "no lock at all")

	_, err := m.Acquire(ctx, alice, AcquireRequest{DocumentID: doc.ID})
	require.NoError(t, err)

	assert.NoError(t, m.CheckHeld(reload(), "alice", 1))
	assert.True(t, apperrors.Is(m.CheckHeld(reload(), "alice", 0), apperrors.CodeConflict))
	assert.True(t, apperrors.Is(m.CheckHeld(reload(), "bob", 1), apperrors.CodeConflict))

	clk.advance(5 * time.Minute)
	assert.True(t, apperrors.Is(m.CheckHeld(reload(), "alice", 1), apperrors.CodeConflict), "expired lock")
}

func TestSweep(t *testing.T) {
	m, st, clk := setupManager(t)
	doc := seedDoc(t, st, nil)
	ctx := context.Background()

	_, err := m.Acquire(ctx, alice, AcquireRequest{DocumentID: doc.ID})
	require.NoError(t, err)

	n, err := m.Sweep(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(0), n)

	clk.advance(10 * time.Minute)
	n, err = m.Sweep(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	got, err := st.GetDocument(ctx, "t1", doc.ID)
	require.NoError(t, err)
	assert.Nil(t, got.LockedBy)
	assert.Equal(t, int64(1), got.LockVersion)
}

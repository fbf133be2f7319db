package sync

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"coffee_pos/internal/ledger"
	"coffee_pos/internal/localstore"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeCommitter 按订单 id 预设提交结果。SweepOnce 串行处理，不需要加锁。
type fakeCommitter struct {
	failWith   map[string]error
	nextNumber int

	commits []string
	pushed  []string
}

func (f *fakeCommitter) Commit(_ context.Context, payload CommitPayload) (ledger.CommitResult, error) {
	f.commits = append(f.commits, payload.OrderID)
	if err, ok := f.failWith[payload.OrderID]; ok {
		return ledger.CommitResult{}, err
	}
	f.nextNumber++
	return ledger.CommitResult{OrderID: payload.OrderID, OrderNumber: f.nextNumber}, nil
}

func (f *fakeCommitter) PushCustomer(_ context.Context, orderID, _, _ string) error {
	f.pushed = append(f.pushed, orderID)
	return nil
}

type fakeProber struct{ online bool }

func (p fakeProber) Online(context.Context) bool { return p.online }

func newTestStore(t *testing.T) *localstore.Store {
	t.Helper()
	s, err := localstore.Open(filepath.Join(t.TempDir(), "terminal.db"))
	require.NoError(t, err)
	return s
}

func seedLocalOrder(t *testing.T, s *localstore.Store, name, phone string) localstore.Order {
	t.Helper()
	order, err := s.CreateOrder(context.Background(), localstore.Order{
		BusinessID:    "biz-1",
		CustomerName:  name,
		CustomerPhone: phone,
		IsPaid:        true,
		PaymentMethod: "cash",
	}, []localstore.Item{{MenuItemID: 1, Name: "latte", Quantity: 1, Price: 1400}})
	require.NoError(t, err)
	return order
}

func TestSweepOnceSyncsPending(t *testing.T) {
	store := newTestStore(t)
	o1 := seedLocalOrder(t, store, "Noa", "0521234567")
	o2 := seedLocalOrder(t, store, "", "")

	committer := &fakeCommitter{}
	s := New(store, committer, fakeProber{online: true}, 0, 0)

	synced := s.SweepOnce(context.Background())
	assert.Equal(t, 2, synced)
	assert.Len(t, committer.commits, 2)

	pending, err := store.Pending(context.Background())
	require.NoError(t, err)
	assert.Empty(t, pending)

	// 有客户字段的订单同步后回填远端，空的不推
	assert.Equal(t, []string{o1.ID}, committer.pushed)
	_ = o2

	// 没有 pending 时一轮是 no-op
	assert.Zero(t, s.SweepOnce(context.Background()))
}

func TestSweepOnceDuplicateIsSuccess(t *testing.T) {
	store := newTestStore(t)
	order := seedLocalOrder(t, store, "", "")

	// 远端说"已存在"：上一次未确认的提交其实成功了
	committer := &fakeCommitter{failWith: map[string]error{order.ID: ledger.ErrDuplicateOrder}}
	s := New(store, committer, fakeProber{online: true}, 0, 0)

	synced := s.SweepOnce(context.Background())
	assert.Equal(t, 1, synced)

	pending, err := store.Pending(context.Background())
	require.NoError(t, err)
	assert.Empty(t, pending)
}

func TestSweepOnceFailureKeepsPending(t *testing.T) {
	store := newTestStore(t)
	bad := seedLocalOrder(t, store, "", "")
	good := seedLocalOrder(t, store, "", "")

	committer := &fakeCommitter{failWith: map[string]error{bad.ID: errors.New("boom")}}
	s := New(store, committer, fakeProber{online: true}, 0, 3)

	// 坏单不挡好单
	synced := s.SweepOnce(context.Background())
	assert.Equal(t, 1, synced)

	pending, err := store.Pending(context.Background())
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, bad.ID, pending[0].ID)
	assert.Equal(t, 1, pending[0].SyncAttempts)
	assert.Equal(t, "boom", pending[0].LastSyncError)
	_ = good

	// 达到告警阈值后依然继续重试，不会放弃
	s.SweepOnce(context.Background())
	s.SweepOnce(context.Background())
	s.SweepOnce(context.Background())
	pending, err = store.Pending(context.Background())
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, 4, pending[0].SyncAttempts)
}

func TestSweepOnceOfflineSkips(t *testing.T) {
	store := newTestStore(t)
	seedLocalOrder(t, store, "", "")

	committer := &fakeCommitter{}
	s := New(store, committer, fakeProber{online: false}, 0, 0)

	assert.Zero(t, s.SweepOnce(context.Background()))
	assert.Empty(t, committer.commits)
}

func TestSweepOnceSingleFlight(t *testing.T) {
	store := newTestStore(t)
	seedLocalOrder(t, store, "", "")

	committer := &fakeCommitter{}
	s := New(store, committer, fakeProber{online: true}, 0, 0)

	// 上一轮仍在进行：新一轮直接让路
	s.inFlight.Store(true)
	assert.Zero(t, s.SweepOnce(context.Background()))
	assert.Empty(t, committer.commits)

	s.inFlight.Store(false)
	assert.Equal(t, 1, s.SweepOnce(context.Background()))
}

func TestSweepPayloadCarriesItems(t *testing.T) {
	store := newTestStore(t)
	order, err := store.CreateOrder(context.Background(), localstore.Order{
		BusinessID:    "biz-1",
		IsPaid:        true,
		PaymentMethod: "card",
	}, []localstore.Item{
		{MenuItemID: 1, Name: "latte", Quantity: 2, Price: 1400, CourseStage: 1},
		{MenuItemID: 2, Name: "cake", Quantity: 1, Price: 2200, CourseStage: 2, Notes: "no nuts"},
	})
	require.NoError(t, err)

	var got CommitPayload
	capture := committerFunc(func(_ context.Context, p CommitPayload) (ledger.CommitResult, error) {
		got = p
		return ledger.CommitResult{OrderID: p.OrderID, OrderNumber: 1}, nil
	})

	s := New(store, capture, fakeProber{online: true}, 0, 0)
	require.Equal(t, 1, s.SweepOnce(context.Background()))

	assert.Equal(t, order.ID, got.OrderID)
	assert.Equal(t, "biz-1", got.BusinessID)
	assert.True(t, got.IsPaid)
	assert.Equal(t, "card", got.PaymentMethod)
	require.Len(t, got.Items, 2)
	assert.Equal(t, "latte", got.Items[0].Name)
	assert.Equal(t, "no nuts", got.Items[1].Notes)
}

// committerFunc 让单个闭包充当 Committer。
type committerFunc func(ctx context.Context, payload CommitPayload) (ledger.CommitResult, error)

func (f committerFunc) Commit(ctx context.Context, payload CommitPayload) (ledger.CommitResult, error) {
	return f(ctx, payload)
}

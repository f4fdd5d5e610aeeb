package core

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/require"

	"ecomledger/core/events"
	"ecomledger/core/state"
	"ecomledger/crypto"
	"ecomledger/native/commerce"
	"ecomledger/storage"
)

func testHandle(b byte) crypto.Handle {
	var h crypto.Handle
	for i := range h {
		h[i] = b
	}
	return h
}

type widgetFlow struct {
	node       *Node
	recorder   *events.Recorder
	seller     crypto.Handle
	buyer      crypto.Handle
	product    crypto.Handle
	payment    crypto.Handle
	escrowAddr crypto.Handle
}

func newWidgetFlow(t *testing.T, db storage.Database) *widgetFlow {
	t.Helper()
	node, err := NewNode(db)
	require.NoError(t, err)
	var clock atomic.Int64
	clock.Store(1_700_000_000)
	node.SetNowFunc(func() int64 { return clock.Add(1) })
	rec := &events.Recorder{}
	node.SetEmitter(rec)

	ctx := context.Background()
	f := &widgetFlow{node: node, recorder: rec, seller: testHandle(0x11), buyer: testHandle(0x22)}
	require.NoError(t, node.ApplyGenesis(ctx, []Allocation{{Account: f.buyer, Amount: 5_000}}))

	_, f.product, err = node.CreateProduct(ctx, f.seller, commerce.ProductParams{Name: "Widget", Price: 500})
	require.NoError(t, err)
	_, list, err := node.AddToCart(ctx, f.buyer, commerce.CartParams{ProductName: "Widget", Quantity: 2, Seller: f.seller, Amount: 500})
	require.NoError(t, err)
	require.Equal(t, uint64(1000), list.TotalAmount)
	_, f.payment, err = node.CreatePayment(ctx, f.buyer, 1000, f.product, nil, nil)
	require.NoError(t, err)
	_, f.escrowAddr, err = node.CreateEscrow(ctx, f.seller, commerce.EscrowParams{
		Buyer: f.buyer, Seller: f.seller, Payment: f.payment, Product: f.product, Amount: 1000,
	})
	require.NoError(t, err)
	return f
}

func TestNodeSettlesWidgetPurchase(t *testing.T) {
	f := newWidgetFlow(t, storage.NewMemDB())
	ctx := context.Background()

	_, err := f.node.DepositEscrow(ctx, f.escrowAddr, f.buyer, 1000)
	require.NoError(t, err)
	esc, err := f.node.WithdrawEscrow(ctx, f.escrowAddr)
	require.NoError(t, err)
	require.Equal(t, commerce.EscrowTransferSuccess, esc.Status)

	seller, err := f.node.Balance(f.seller)
	require.NoError(t, err)
	require.Equal(t, uint64(1000), seller.Balance.Uint64())
	buyer, err := f.node.Balance(f.buyer)
	require.NoError(t, err)
	require.Equal(t, uint64(4000), buyer.Balance.Uint64())
	vault, err := f.node.Balance(esc.Vault)
	require.NoError(t, err)
	require.True(t, vault.Balance.IsZero())
	require.Equal(t, f.escrowAddr, vault.Authority)

	_, err = f.node.WithdrawEscrow(ctx, f.escrowAddr)
	require.ErrorIs(t, err, commerce.ErrFundsNotFound)

	order, _, err := f.node.CreateOrder(ctx, f.buyer, f.payment, nil)
	require.NoError(t, err)
	require.NotEqual(t, order.OrderID, order.TrackingID)
	payment, err := f.node.Payment(f.payment)
	require.NoError(t, err)
	require.Equal(t, commerce.PaymentSuccess, payment.Status)
	require.Equal(t, payment.PaymentID, order.PaymentID)
}

func TestNodeFailedDepositCommitsNothing(t *testing.T) {
	f := newWidgetFlow(t, storage.NewMemDB())
	ctx := context.Background()
	before := len(f.recorder.Events())

	_, err := f.node.DepositEscrow(ctx, f.escrowAddr, f.buyer, 999)
	require.ErrorIs(t, err, commerce.ErrEscrowError)
	require.Len(t, f.recorder.Events(), before, "rejected operations must not emit events")

	esc, err := f.node.Escrow(f.escrowAddr)
	require.NoError(t, err)
	require.Equal(t, commerce.EscrowSwapPending, esc.Status)
	require.False(t, esc.ReleaseFund)
	buyer, err := f.node.Balance(f.buyer)
	require.NoError(t, err)
	require.Equal(t, uint64(5000), buyer.Balance.Uint64())
}

func TestNodeConcurrentDepositsSettleOnce(t *testing.T) {
	f := newWidgetFlow(t, storage.NewMemDB())
	ctx := context.Background()

	const workers = 8
	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		successes int
	)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := f.node.DepositEscrow(ctx, f.escrowAddr, f.buyer, 1000)
			mu.Lock()
			defer mu.Unlock()
			if err == nil {
				successes++
			}
		}()
	}
	wg.Wait()
	require.Equal(t, 1, successes)

	buyer, err := f.node.Balance(f.buyer)
	require.NoError(t, err)
	require.Equal(t, uint64(4000), buyer.Balance.Uint64())
}

func TestNodeConcurrentWithdrawsPayOnce(t *testing.T) {
	f := newWidgetFlow(t, storage.NewMemDB())
	ctx := context.Background()
	_, err := f.node.DepositEscrow(ctx, f.escrowAddr, f.buyer, 1000)
	require.NoError(t, err)

	const workers = 8
	errs := make(chan error, workers)
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := f.node.WithdrawEscrow(ctx, f.escrowAddr)
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)
	successes := 0
	for err := range errs {
		if err == nil {
			successes++
			continue
		}
		if !errors.Is(err, commerce.ErrFundsNotFound) && !errors.Is(err, state.ErrWriteConflict) {
			require.Fail(t, "unexpected withdraw error", "%v", err)
		}
	}
	require.Equal(t, 1, successes)
	seller, err := f.node.Balance(f.seller)
	require.NoError(t, err)
	require.Equal(t, uint64(1000), seller.Balance.Uint64())
}

func TestNodeEventsFollowCommitOrder(t *testing.T) {
	f := newWidgetFlow(t, storage.NewMemDB())
	_, err := f.node.DepositEscrow(context.Background(), f.escrowAddr, f.buyer, 1000)
	require.NoError(t, err)

	var types []string
	for _, evt := range f.recorder.Events() {
		types = append(types, evt.Type)
	}
	require.Equal(t, []string{
		events.TypeMint,
		commerce.EventTypeProductCreated,
		commerce.EventTypeCartUpdated,
		commerce.EventTypePaymentCreated,
		commerce.EventTypeEscrowCreated,
		events.TypeTransfer,
		commerce.EventTypeEscrowDeposited,
	}, types)
}

func TestNodeGenesisAppliedOnce(t *testing.T) {
	node, err := NewNode(storage.NewMemDB())
	require.NoError(t, err)
	ctx := context.Background()
	require.Zero(t, node.Head().Height)
	require.NoError(t, node.ApplyGenesis(ctx, []Allocation{{Account: testHandle(1), Amount: 10}}))
	head := node.Head()
	require.Equal(t, uint64(1), head.Height)
	require.ErrorIs(t, node.ApplyGenesis(ctx, nil), ErrGenesisApplied)
	require.Equal(t, head, node.Head())
}

func TestNodeCancelledContext(t *testing.T) {
	node, err := NewNode(storage.NewMemDB())
	require.NoError(t, err)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, _, err = node.CreateProduct(ctx, testHandle(1), commerce.ProductParams{Name: "Widget"})
	require.ErrorIs(t, err, context.Canceled)
	refs, err := node.ListProducts(testHandle(1))
	require.NoError(t, err)
	require.Empty(t, refs)
}

func TestNodePersistsAcrossLevelDBReopen(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "ledger")
	db, err := storage.NewLevelDB(dir)
	require.NoError(t, err)
	f := newWidgetFlow(t, db)
	_, err = f.node.DepositEscrow(context.Background(), f.escrowAddr, f.buyer, 1000)
	require.NoError(t, err)
	db.Close()

	reopened, err := storage.NewLevelDB(dir)
	require.NoError(t, err)
	defer reopened.Close()
	node, err := NewNode(reopened)
	require.NoError(t, err)
	esc, err := node.Escrow(f.escrowAddr)
	require.NoError(t, err)
	require.Equal(t, commerce.EscrowFundsReceived, esc.Status)
	require.ErrorIs(t, node.ApplyGenesis(context.Background(), nil), ErrGenesisApplied)
}

type flakyWriteDB struct {
	*storage.MemDB
	failWrites atomic.Int32
	puts       atomic.Int32
}

func (d *flakyWriteDB) Put(key, value []byte) error {
	d.puts.Add(1)
	return d.MemDB.Put(key, value)
}

func (d *flakyWriteDB) Write(batch *storage.Batch) error {
	if d.failWrites.Load() > 0 {
		d.failWrites.Add(-1)
		return errors.New("disk full")
	}
	return d.MemDB.Write(batch)
}

func TestNodeGenesisMarkerCommitsWithMints(t *testing.T) {
	db := &flakyWriteDB{MemDB: storage.NewMemDB()}
	node, err := NewNode(db)
	require.NoError(t, err)
	ctx := context.Background()
	alloc := []Allocation{{Account: testHandle(1), Amount: 10}}
	db.puts.Store(0)

	db.failWrites.Store(1)
	require.Error(t, node.ApplyGenesis(ctx, alloc))
	marked, err := node.mgr.KVGet(genesisKey, nil)
	require.NoError(t, err)
	require.False(t, marked)
	acc, err := node.Balance(testHandle(1))
	require.NoError(t, err)
	require.True(t, acc.Balance.IsZero())

	require.NoError(t, node.ApplyGenesis(ctx, alloc))
	require.ErrorIs(t, node.ApplyGenesis(ctx, alloc), ErrGenesisApplied)
	require.Zero(t, db.puts.Load(), "genesis must not write outside the commit batch")

	reopened, err := NewNode(db)
	require.NoError(t, err)
	require.ErrorIs(t, reopened.ApplyGenesis(ctx, alloc), ErrGenesisApplied)
	acc, err = reopened.Balance(testHandle(1))
	require.NoError(t, err)
	require.Equal(t, uint64(10), acc.Balance.Uint64())
}

func TestNodeConcurrentGenesisMintsOnce(t *testing.T) {
	node, err := NewNode(storage.NewMemDB())
	require.NoError(t, err)
	alloc := []Allocation{{Account: testHandle(1), Amount: 10}}

	var (
		wg      sync.WaitGroup
		applied atomic.Int32
	)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := node.ApplyGenesis(context.Background(), alloc)
			if err == nil {
				applied.Add(1)
				return
			}
			if !errors.Is(err, ErrGenesisApplied) {
				t.Errorf("unexpected genesis error: %v", err)
			}
		}()
	}
	wg.Wait()
	require.Equal(t, int32(1), applied.Load())
	acc, err := node.Balance(testHandle(1))
	require.NoError(t, err)
	require.Equal(t, uint64(10), acc.Balance.Uint64())
}

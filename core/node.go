package core

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/holiman/uint256"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"ecomledger/core/events"
	"ecomledger/core/state"
	"ecomledger/crypto"
	"ecomledger/native/bank"
	"ecomledger/native/commerce"
	"ecomledger/observability/metrics"
	"ecomledger/observability/otel"
	"ecomledger/storage"
)

// DefaultConflictRetries bounds how often an operation is replayed after a
// commit conflict before the conflict is returned to the caller.
const DefaultConflictRetries = 3

var (
	ErrGenesisApplied = errors.New("node: genesis already applied")
	genesisKey        = []byte("genesis/applied")
)

// Allocation is a genesis custody balance.
type Allocation struct {
	Account crypto.Handle
	Amount  uint64
}

// Node runs every ledger operation inside its own state transaction. All
// records an operation touches are committed together or not at all, and
// events reach the emitter only after a successful commit.
type Node struct {
	mgr     *state.Manager
	emitter events.Emitter
	logger  *slog.Logger
	metrics *metrics.CommerceMetrics

	mu      sync.RWMutex
	nowFn   func() int64
	retries int
}

// NewNode opens the ledger over db, stamping or verifying the schema version.
func NewNode(db storage.Database) (*Node, error) {
	if db == nil {
		return nil, fmt.Errorf("node: database required")
	}
	mgr := state.NewManager(db)
	if err := mgr.EnsureStateVersion(); err != nil {
		return nil, err
	}
	if err := mgr.LoadHead(); err != nil {
		return nil, err
	}
	return &Node{
		mgr:     mgr,
		emitter: events.NoopEmitter{},
		logger:  slog.Default(),
		metrics: metrics.Commerce(),
		nowFn:   func() int64 { return time.Now().Unix() },
		retries: DefaultConflictRetries,
	}, nil
}

// SetEmitter configures where committed events are delivered.
func (n *Node) SetEmitter(emitter events.Emitter) {
	if emitter == nil {
		emitter = events.NoopEmitter{}
	}
	n.emitter = emitter
}

func (n *Node) SetLogger(logger *slog.Logger) {
	if logger == nil {
		logger = slog.Default()
	}
	n.logger = logger
}

// SetNowFunc overrides the clock. The clock is read once per operation.
func (n *Node) SetNowFunc(now func() int64) {
	n.mu.Lock()
	defer n.mu.Unlock()
	if now == nil {
		now = func() int64 { return time.Now().Unix() }
	}
	n.nowFn = now
}

// SetConflictRetries sets how many times a conflicting operation is replayed.
func (n *Node) SetConflictRetries(retries int) {
	n.mu.Lock()
	defer n.mu.Unlock()
	if retries < 0 {
		retries = 0
	}
	n.retries = retries
}

func (n *Node) now() int64 {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return n.nowFn()
}

func (n *Node) maxRetries() int {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return n.retries
}

type opFunc func(engine *commerce.Engine, ledger *bank.Ledger) error

func resultLabel(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, ErrGenesisApplied):
		return "already_applied"
	case errors.Is(err, state.ErrWriteConflict):
		return "conflict"
	case errors.Is(err, bank.ErrUnauthorized):
		return "unauthorized"
	}
	if kind := commerce.KindOf(err); kind != commerce.KindUnknown {
		return kind.String()
	}
	return "internal"
}

// execute binds a fresh engine and custody ledger to a new transaction, runs
// fn and commits. Conflicts are replayed from scratch so every attempt sees
// committed state.
func (n *Node) execute(ctx context.Context, op string, fn opFunc) error {
	return n.executeTxn(ctx, op, func(_ *state.Txn, engine *commerce.Engine, ledger *bank.Ledger) error {
		return fn(engine, ledger)
	})
}

// executeTxn is execute with the raw transaction exposed for metadata writes
// that must land in the same batch as the operation.
func (n *Node) executeTxn(ctx context.Context, op string, fn func(*state.Txn, *commerce.Engine, *bank.Ledger) error) error {
	ctx, span := otel.Tracer().Start(ctx, "ecom."+op)
	defer span.End()
	start := time.Now()

	var err error
	retries := n.maxRetries()
	for attempt := 0; ; attempt++ {
		if err = ctx.Err(); err != nil {
			break
		}
		buf := &events.Buffer{}
		txn := n.mgr.Begin()
		ledger := bank.NewLedger(txn)
		ledger.SetEmitter(buf)
		engine := commerce.NewEngine()
		engine.SetState(txn)
		engine.SetCustody(ledger)
		engine.SetEmitter(buf)
		now := n.now()
		engine.SetNowFunc(func() int64 { return now })

		if err = fn(txn, engine, ledger); err != nil {
			txn.Discard()
			break
		}
		writes := txn.Pending()
		if err = txn.Commit(); err == nil {
			buf.Flush(n.emitter)
			n.logger.Debug("operation committed", slog.String("operation", op), slog.Int("writes", writes), slog.Duration("elapsed", time.Since(start)))
			break
		}
		if !errors.Is(err, state.ErrWriteConflict) || attempt >= retries {
			break
		}
		n.metrics.IncConflict(op)
		n.logger.Debug("retrying after commit conflict", slog.String("operation", op), slog.Int("attempt", attempt+1))
	}

	result := resultLabel(err)
	n.metrics.ObserveOperation(op, result, time.Since(start))
	span.SetAttributes(attribute.String("ecom.result", result))
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		n.logger.Info("operation rejected",
			slog.String("operation", op),
			slog.String("result", result),
			slog.String("error", err.Error()))
		return err
	}
	return nil
}

// view runs fn against a transaction that is always discarded.
func (n *Node) view(fn opFunc) error {
	txn := n.mgr.Begin()
	defer txn.Discard()
	engine := commerce.NewEngine()
	engine.SetState(txn)
	ledger := bank.NewLedger(txn)
	engine.SetCustody(ledger)
	return fn(engine, ledger)
}

func (n *Node) CreateProduct(ctx context.Context, seller crypto.Handle, params commerce.ProductParams) (*commerce.Product, crypto.Handle, error) {
	var (
		product *commerce.Product
		addr    crypto.Handle
	)
	err := n.execute(ctx, "create_product", func(engine *commerce.Engine, _ *bank.Ledger) error {
		var err error
		product, addr, err = engine.CreateProduct(seller, params)
		return err
	})
	return product, addr, err
}

func (n *Node) AddToCart(ctx context.Context, buyer crypto.Handle, params commerce.CartParams) (*commerce.Cart, *commerce.CartList, error) {
	var (
		cart *commerce.Cart
		list *commerce.CartList
	)
	err := n.execute(ctx, "add_to_cart", func(engine *commerce.Engine, _ *bank.Ledger) error {
		var err error
		cart, list, err = engine.AddToCart(buyer, params)
		return err
	})
	return cart, list, err
}

func (n *Node) CreatePayment(ctx context.Context, payer crypto.Handle, amount uint64, product crypto.Handle, method *commerce.PaymentMethod, txSignature *string) (*commerce.Payment, crypto.Handle, error) {
	var (
		payment *commerce.Payment
		addr    crypto.Handle
	)
	err := n.execute(ctx, "create_payment", func(engine *commerce.Engine, _ *bank.Ledger) error {
		var err error
		payment, addr, err = engine.CreatePayment(payer, amount, product, method, txSignature)
		return err
	})
	return payment, addr, err
}

func (n *Node) CreateEscrow(ctx context.Context, owner crypto.Handle, params commerce.EscrowParams) (*commerce.Escrow, crypto.Handle, error) {
	var (
		escrow *commerce.Escrow
		addr   crypto.Handle
	)
	err := n.execute(ctx, "create_escrow", func(engine *commerce.Engine, _ *bank.Ledger) error {
		var err error
		escrow, addr, err = engine.CreateEscrow(owner, params)
		return err
	})
	return escrow, addr, err
}

func (n *Node) DepositEscrow(ctx context.Context, escrowAddr, caller crypto.Handle, amount uint64) (*commerce.Escrow, error) {
	var escrow *commerce.Escrow
	err := n.execute(ctx, "deposit_escrow", func(engine *commerce.Engine, _ *bank.Ledger) error {
		var err error
		escrow, err = engine.Deposit(escrowAddr, caller, amount)
		return err
	})
	if err == nil {
		n.metrics.ObserveEscrowValue("deposit", escrow.Amount)
	}
	return escrow, err
}

func (n *Node) WithdrawEscrow(ctx context.Context, escrowAddr crypto.Handle) (*commerce.Escrow, error) {
	var escrow *commerce.Escrow
	err := n.execute(ctx, "withdraw_escrow", func(engine *commerce.Engine, _ *bank.Ledger) error {
		var err error
		escrow, err = engine.Withdraw(escrowAddr)
		return err
	})
	if err == nil {
		n.metrics.ObserveEscrowValue("withdraw", escrow.Amount)
	}
	return escrow, err
}

func (n *Node) CreateOrder(ctx context.Context, signer, paymentAddr crypto.Handle, trackingID *commerce.ID) (*commerce.Order, crypto.Handle, error) {
	var (
		order *commerce.Order
		addr  crypto.Handle
	)
	err := n.execute(ctx, "create_order", func(engine *commerce.Engine, _ *bank.Ledger) error {
		var err error
		order, addr, err = engine.CreateOrder(signer, paymentAddr, trackingID)
		return err
	})
	return order, addr, err
}

func (n *Node) Product(addr crypto.Handle) (*commerce.Product, error) {
	var product *commerce.Product
	err := n.view(func(engine *commerce.Engine, _ *bank.Ledger) error {
		var err error
		product, err = engine.Product(addr)
		return err
	})
	return product, err
}

func (n *Node) ListProducts(seller crypto.Handle) ([]crypto.Handle, error) {
	var refs []crypto.Handle
	err := n.view(func(engine *commerce.Engine, _ *bank.Ledger) error {
		var err error
		refs, err = engine.ListProducts(seller)
		return err
	})
	return refs, err
}

func (n *Node) Cart(addr crypto.Handle) (*commerce.Cart, error) {
	var cart *commerce.Cart
	err := n.view(func(engine *commerce.Engine, _ *bank.Ledger) error {
		var err error
		cart, err = engine.Cart(addr)
		return err
	})
	return cart, err
}

func (n *Node) CartList(buyer crypto.Handle) (*commerce.CartList, error) {
	var list *commerce.CartList
	err := n.view(func(engine *commerce.Engine, _ *bank.Ledger) error {
		var err error
		list, err = engine.CartList(buyer)
		return err
	})
	return list, err
}

func (n *Node) Payment(addr crypto.Handle) (*commerce.Payment, error) {
	var payment *commerce.Payment
	err := n.view(func(engine *commerce.Engine, _ *bank.Ledger) error {
		var err error
		payment, err = engine.Payment(addr)
		return err
	})
	return payment, err
}

func (n *Node) Escrow(addr crypto.Handle) (*commerce.Escrow, error) {
	var escrow *commerce.Escrow
	err := n.view(func(engine *commerce.Engine, _ *bank.Ledger) error {
		var err error
		escrow, err = engine.Escrow(addr)
		return err
	})
	return escrow, err
}

func (n *Node) Order(addr crypto.Handle) (*commerce.Order, error) {
	var order *commerce.Order
	err := n.view(func(engine *commerce.Engine, _ *bank.Ledger) error {
		var err error
		order, err = engine.Order(addr)
		return err
	})
	return order, err
}

// Head reports the commitment over every write committed so far.
func (n *Node) Head() state.Head {
	return n.mgr.Head()
}

// Balance returns the custody account and its controlling authority.
func (n *Node) Balance(account crypto.Handle) (*bank.Account, error) {
	var acc *bank.Account
	err := n.view(func(_ *commerce.Engine, ledger *bank.Ledger) error {
		var err error
		acc, err = ledger.Account(account)
		return err
	})
	return acc, err
}

// ApplyGenesis mints the configured allocations exactly once per database.
// The mints and the applied marker commit in one batch; a concurrent caller
// conflicts on the marker and then observes it.
func (n *Node) ApplyGenesis(ctx context.Context, allocations []Allocation) error {
	var total uint256.Int
	err := n.executeTxn(ctx, "genesis", func(txn *state.Txn, _ *commerce.Engine, ledger *bank.Ledger) error {
		applied, err := txn.MetaGet(genesisKey, nil)
		if err != nil {
			return err
		}
		if applied {
			return ErrGenesisApplied
		}
		total.Clear()
		for _, alloc := range allocations {
			if err := ledger.Mint(alloc.Account, alloc.Amount); err != nil {
				return fmt.Errorf("genesis allocation for %s: %w", alloc.Account, err)
			}
			total.Add(&total, uint256.NewInt(alloc.Amount))
		}
		return txn.MetaPut(genesisKey, uint64(n.now()))
	})
	if err != nil {
		return err
	}
	n.logger.Info("genesis applied", slog.Int("allocations", len(allocations)), slog.String("total", total.Dec()))
	return nil
}

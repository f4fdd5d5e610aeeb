package commerce

import (
	"errors"
	"time"

	"ecomledger/core/events"
	"ecomledger/core/types"
	"ecomledger/crypto"
)

var (
	errNilState   = errors.New("commerce engine: state not configured")
	errNilCustody = errors.New("commerce engine: custody ledger not configured")
)

// Address derivation domains. Every record address is
// crypto.DeriveAddress(domain, owner, discriminator).
const (
	DomainProduct     = "product"
	DomainProductList = "product_list"
	DomainCart        = "cart"
	DomainCartList    = "cart_list"
	DomainPayment     = "payment"
	DomainEscrow      = "escrow"
	DomainEscrowVault = "escrow_vault"
	DomainOrder       = "order"
)

func ProductAddress(seller crypto.Handle, name string) (crypto.Handle, uint8) {
	return crypto.DeriveAddress(DomainProduct, seller, []byte(name))
}

func ProductsListAddress(seller crypto.Handle) (crypto.Handle, uint8) {
	return crypto.DeriveAddress(DomainProductList, seller, nil)
}

func CartAddress(buyer crypto.Handle, productName string) (crypto.Handle, uint8) {
	return crypto.DeriveAddress(DomainCart, buyer, []byte(productName))
}

func CartListAddress(buyer crypto.Handle) (crypto.Handle, uint8) {
	return crypto.DeriveAddress(DomainCartList, buyer, nil)
}

func PaymentAddress(payer crypto.Handle) (crypto.Handle, uint8) {
	return crypto.DeriveAddress(DomainPayment, payer, nil)
}

func EscrowAddress(owner crypto.Handle, productID ID) (crypto.Handle, uint8) {
	return crypto.DeriveAddress(DomainEscrow, owner, productID[:])
}

// VaultAddress is the custody account holding an escrow's funds. Its
// authority is the escrow address itself.
func VaultAddress(escrow crypto.Handle) crypto.Handle {
	addr, _ := crypto.DeriveAddress(DomainEscrowVault, escrow, nil)
	return addr
}

func OrderAddress(signer crypto.Handle) (crypto.Handle, uint8) {
	return crypto.DeriveAddress(DomainOrder, signer, nil)
}

type engineState interface {
	ProductGet(addr crypto.Handle) (*Product, bool, error)
	ProductPut(addr crypto.Handle, p *Product) error
	ProductsListGet(addr crypto.Handle) (*ProductsList, bool, error)
	ProductsListPut(addr crypto.Handle, l *ProductsList) error
	CartGet(addr crypto.Handle) (*Cart, bool, error)
	CartPut(addr crypto.Handle, c *Cart) error
	CartListGet(addr crypto.Handle) (*CartList, bool, error)
	CartListPut(addr crypto.Handle, l *CartList) error
	PaymentGet(addr crypto.Handle) (*Payment, bool, error)
	PaymentPut(addr crypto.Handle, p *Payment) error
	EscrowGet(addr crypto.Handle) (*Escrow, bool, error)
	EscrowPut(addr crypto.Handle, e *Escrow) error
	OrderGet(addr crypto.Handle) (*Order, bool, error)
	OrderPut(addr crypto.Handle, o *Order) error
}

// CustodyLedger is the value-transfer primitive. Transfer either moves the
// full amount or fails without side effects.
type CustodyLedger interface {
	Open(account, authority crypto.Handle) error
	Transfer(from, to, authority crypto.Handle, amount uint64) error
}

type engineEvent = commerceEvent

// Engine applies commerce operations against a state backend. One engine is
// bound to one state transaction; the caller commits or discards the
// transaction after each operation.
type Engine struct {
	state   engineState
	custody CustodyLedger
	emitter events.Emitter
	nowFn   func() int64
}

// NewEngine creates an engine with a no-op emitter and the wall clock.
func NewEngine() *Engine {
	return &Engine{
		emitter: events.NoopEmitter{},
		nowFn:   func() int64 { return time.Now().Unix() },
	}
}

// SetState configures the record store used by the engine.
func (e *Engine) SetState(state engineState) { e.state = state }

// SetCustody configures the value-transfer primitive.
func (e *Engine) SetCustody(custody CustodyLedger) { e.custody = custody }

// SetNowFunc overrides the time source. Passing nil restores the wall clock.
func (e *Engine) SetNowFunc(now func() int64) {
	if now == nil {
		e.nowFn = func() int64 { return time.Now().Unix() }
		return
	}
	e.nowFn = now
}

// SetEmitter configures the event emitter. Passing nil resets the emitter to
// a no-op implementation.
func (e *Engine) SetEmitter(emitter events.Emitter) {
	if emitter == nil {
		e.emitter = events.NoopEmitter{}
		return
	}
	e.emitter = emitter
}

func (e *Engine) emit(event *types.Event) {
	if e == nil || e.emitter == nil || event == nil {
		return
	}
	e.emitter.Emit(engineEvent{evt: event})
}

func (e *Engine) now() int64 {
	if e == nil || e.nowFn == nil {
		return time.Now().Unix()
	}
	return e.nowFn()
}

func (e *Engine) ready() error {
	if e == nil || e.state == nil {
		return errNilState
	}
	return nil
}

func (e *Engine) loadProduct(addr crypto.Handle) (*Product, error) {
	product, ok, err := e.state.ProductGet(addr)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, wrap(ErrAccountNotInitialized, "product %s", addr)
	}
	return product, nil
}

func (e *Engine) loadPayment(addr crypto.Handle) (*Payment, error) {
	payment, ok, err := e.state.PaymentGet(addr)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, wrap(ErrAccountNotInitialized, "payment %s", addr)
	}
	return payment, nil
}

func (e *Engine) loadEscrow(addr crypto.Handle) (*Escrow, error) {
	escrow, ok, err := e.state.EscrowGet(addr)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, wrap(ErrAccountNotInitialized, "escrow %s", addr)
	}
	return escrow, nil
}

// Product returns the product stored at addr.
func (e *Engine) Product(addr crypto.Handle) (*Product, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}
	return e.loadProduct(addr)
}

func (e *Engine) Payment(addr crypto.Handle) (*Payment, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}
	return e.loadPayment(addr)
}

func (e *Engine) Escrow(addr crypto.Handle) (*Escrow, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}
	return e.loadEscrow(addr)
}

func (e *Engine) Order(addr crypto.Handle) (*Order, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}
	order, ok, err := e.state.OrderGet(addr)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, wrap(ErrAccountNotInitialized, "order %s", addr)
	}
	return order, nil
}

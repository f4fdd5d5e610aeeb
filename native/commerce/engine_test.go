package commerce

import (
	"bytes"
	"errors"
	"fmt"
	"testing"

	"ecomledger/core/events"
	"ecomledger/crypto"
)

type mockState struct {
	products     map[crypto.Handle]*Product
	productLists map[crypto.Handle]*ProductsList
	carts        map[crypto.Handle]*Cart
	cartLists    map[crypto.Handle]*CartList
	payments     map[crypto.Handle]*Payment
	escrows      map[crypto.Handle]*Escrow
	orders       map[crypto.Handle]*Order
}

func newMockState() *mockState {
	return &mockState{
		products:     make(map[crypto.Handle]*Product),
		productLists: make(map[crypto.Handle]*ProductsList),
		carts:        make(map[crypto.Handle]*Cart),
		cartLists:    make(map[crypto.Handle]*CartList),
		payments:     make(map[crypto.Handle]*Payment),
		escrows:      make(map[crypto.Handle]*Escrow),
		orders:       make(map[crypto.Handle]*Order),
	}
}

func (m *mockState) ProductGet(addr crypto.Handle) (*Product, bool, error) {
	p, ok := m.products[addr]
	return p.Clone(), ok, nil
}

func (m *mockState) ProductPut(addr crypto.Handle, p *Product) error {
	if err := SanitizeProduct(p); err != nil {
		return err
	}
	m.products[addr] = p.Clone()
	return nil
}

func (m *mockState) ProductsListGet(addr crypto.Handle) (*ProductsList, bool, error) {
	l, ok := m.productLists[addr]
	return l.Clone(), ok, nil
}

func (m *mockState) ProductsListPut(addr crypto.Handle, l *ProductsList) error {
	m.productLists[addr] = l.Clone()
	return nil
}

func (m *mockState) CartGet(addr crypto.Handle) (*Cart, bool, error) {
	c, ok := m.carts[addr]
	return c.Clone(), ok, nil
}

func (m *mockState) CartPut(addr crypto.Handle, c *Cart) error {
	m.carts[addr] = c.Clone()
	return nil
}

func (m *mockState) CartListGet(addr crypto.Handle) (*CartList, bool, error) {
	l, ok := m.cartLists[addr]
	return l.Clone(), ok, nil
}

func (m *mockState) CartListPut(addr crypto.Handle, l *CartList) error {
	m.cartLists[addr] = l.Clone()
	return nil
}

func (m *mockState) PaymentGet(addr crypto.Handle) (*Payment, bool, error) {
	p, ok := m.payments[addr]
	return p.Clone(), ok, nil
}

func (m *mockState) PaymentPut(addr crypto.Handle, p *Payment) error {
	m.payments[addr] = p.Clone()
	return nil
}

func (m *mockState) EscrowGet(addr crypto.Handle) (*Escrow, bool, error) {
	e, ok := m.escrows[addr]
	return e.Clone(), ok, nil
}

func (m *mockState) EscrowPut(addr crypto.Handle, e *Escrow) error {
	m.escrows[addr] = e.Clone()
	return nil
}

func (m *mockState) OrderGet(addr crypto.Handle) (*Order, bool, error) {
	o, ok := m.orders[addr]
	return o.Clone(), ok, nil
}

func (m *mockState) OrderPut(addr crypto.Handle, o *Order) error {
	m.orders[addr] = o.Clone()
	return nil
}

type transferCall struct {
	from, to, authority crypto.Handle
	amount              uint64
}

type mockCustody struct {
	balances    map[crypto.Handle]uint64
	authorities map[crypto.Handle]crypto.Handle
	transfers   []transferCall
	failNext    error
}

func newMockCustody() *mockCustody {
	return &mockCustody{
		balances:    make(map[crypto.Handle]uint64),
		authorities: make(map[crypto.Handle]crypto.Handle),
	}
}

func (m *mockCustody) Open(account, authority crypto.Handle) error {
	m.authorities[account] = authority
	return nil
}

func (m *mockCustody) Transfer(from, to, authority crypto.Handle, amount uint64) error {
	if m.failNext != nil {
		err := m.failNext
		m.failNext = nil
		return err
	}
	owner, ok := m.authorities[from]
	if !ok {
		owner = from
	}
	if owner != authority {
		return fmt.Errorf("unauthorised transfer from %s", from)
	}
	if m.balances[from] < amount {
		return fmt.Errorf("%w: have %d want %d", ErrInsufficientFunds, m.balances[from], amount)
	}
	m.balances[from] -= amount
	m.balances[to] += amount
	m.transfers = append(m.transfers, transferCall{from: from, to: to, authority: authority, amount: amount})
	return nil
}

func newTestHandle(fill byte) crypto.Handle {
	var h crypto.Handle
	copy(h[:], bytes.Repeat([]byte{fill}, crypto.HandleLength))
	return h
}

type fixture struct {
	engine  *Engine
	state   *mockState
	custody *mockCustody
	events  *events.Buffer
	seller  crypto.Handle
	buyer   crypto.Handle
	clock   int64
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		state:   newMockState(),
		custody: newMockCustody(),
		events:  &events.Buffer{},
		seller:  newTestHandle(0x11),
		buyer:   newTestHandle(0x22),
		clock:   1_700_000_000,
	}
	f.engine = NewEngine()
	f.engine.SetState(f.state)
	f.engine.SetCustody(f.custody)
	f.engine.SetEmitter(f.events)
	f.engine.SetNowFunc(func() int64 { return f.clock })
	return f
}

// settle runs the Widget flow up to an escrow awaiting deposit.
func (f *fixture) settle(t *testing.T) (escrowAddr, paymentAddr crypto.Handle) {
	t.Helper()
	_, productAddr, err := f.engine.CreateProduct(f.seller, ProductParams{
		Name:       "Widget",
		Price:      500,
		Category:   CategoryElectronics,
		Division:   DivisionMobile,
		SellerName: "Acme",
	})
	if err != nil {
		t.Fatalf("create product: %v", err)
	}
	if _, _, err := f.engine.AddToCart(f.buyer, CartParams{ProductName: "Widget", Quantity: 2, Seller: f.seller, Amount: 500}); err != nil {
		t.Fatalf("add to cart: %v", err)
	}
	f.clock++
	_, paymentAddr, err = f.engine.CreatePayment(f.buyer, 1000, productAddr, nil, nil)
	if err != nil {
		t.Fatalf("create payment: %v", err)
	}
	_, escrowAddr, err = f.engine.CreateEscrow(f.seller, EscrowParams{
		Buyer:   f.buyer,
		Seller:  f.seller,
		Payment: paymentAddr,
		Product: productAddr,
		Amount:  1000,
	})
	if err != nil {
		t.Fatalf("create escrow: %v", err)
	}
	f.custody.balances[f.buyer] = 5_000
	return escrowAddr, paymentAddr
}

func TestEndToEndWidgetSettlement(t *testing.T) {
	f := newFixture(t)
	escrowAddr, paymentAddr := f.settle(t)

	list, err := f.engine.CartList(f.buyer)
	if err != nil {
		t.Fatalf("cart list: %v", err)
	}
	if list.TotalAmount != 1000 {
		t.Fatalf("expected cart total 1000, got %d", list.TotalAmount)
	}

	esc, err := f.engine.Deposit(escrowAddr, f.buyer, 1000)
	if err != nil {
		t.Fatalf("deposit: %v", err)
	}
	if esc.Status != EscrowFundsReceived || !esc.ReleaseFund {
		t.Fatalf("unexpected escrow after deposit: status=%s release=%v", esc.Status, esc.ReleaseFund)
	}
	payment := f.state.payments[paymentAddr]
	if payment.Status != PaymentSuccess {
		t.Fatalf("expected payment success, got %s", payment.Status)
	}
	vault := VaultAddress(escrowAddr)
	if f.custody.balances[vault] != 1000 || f.custody.balances[f.buyer] != 4000 {
		t.Fatalf("unexpected balances after deposit: vault=%d buyer=%d", f.custody.balances[vault], f.custody.balances[f.buyer])
	}

	f.clock += 60
	esc, err = f.engine.Withdraw(escrowAddr)
	if err != nil {
		t.Fatalf("withdraw: %v", err)
	}
	if esc.Status != EscrowTransferSuccess || !esc.ReleaseFund {
		t.Fatalf("unexpected escrow after withdraw: status=%s release=%v", esc.Status, esc.ReleaseFund)
	}
	if esc.UpdatedAt != f.clock {
		t.Fatalf("expected updatedAt %d, got %d", f.clock, esc.UpdatedAt)
	}
	if f.custody.balances[f.seller] != 1000 || f.custody.balances[vault] != 0 {
		t.Fatalf("unexpected balances after withdraw: seller=%d vault=%d", f.custody.balances[f.seller], f.custody.balances[vault])
	}

	if _, err := f.engine.Withdraw(escrowAddr); !errors.Is(err, ErrFundsNotFound) {
		t.Fatalf("expected FundsNotFound on second withdraw, got %v", err)
	}
	if len(f.custody.transfers) != 2 {
		t.Fatalf("expected exactly two transfers, got %d", len(f.custody.transfers))
	}
	deposit, withdraw := f.custody.transfers[0], f.custody.transfers[1]
	if deposit.from != f.buyer || deposit.to != vault || deposit.authority != f.buyer || deposit.amount != 1000 {
		t.Fatalf("unexpected deposit transfer: %+v", deposit)
	}
	if withdraw.from != vault || withdraw.to != f.seller || withdraw.authority != escrowAddr || withdraw.amount != 1000 {
		t.Fatalf("unexpected withdraw transfer: %+v", withdraw)
	}

	types := make([]string, 0)
	for _, evt := range f.events.Events() {
		types = append(types, evt.EventType())
	}
	want := []string{
		EventTypeProductCreated,
		EventTypeCartUpdated,
		EventTypePaymentCreated,
		EventTypeEscrowCreated,
		EventTypeEscrowDeposited,
		EventTypeEscrowWithdrawn,
	}
	if fmt.Sprint(types) != fmt.Sprint(want) {
		t.Fatalf("unexpected events: %v", types)
	}
}

func TestDepositRequiresPendingPayment(t *testing.T) {
	f := newFixture(t)
	escrowAddr, paymentAddr := f.settle(t)
	f.state.payments[paymentAddr].Status = PaymentFailed
	before := *f.state.escrows[escrowAddr]

	if _, err := f.engine.Deposit(escrowAddr, f.buyer, 1000); !errors.Is(err, ErrEscrowError) {
		t.Fatalf("expected EscrowError, got %v", err)
	}
	if len(f.custody.transfers) != 0 {
		t.Fatalf("no transfer expected, got %d", len(f.custody.transfers))
	}
	if *f.state.escrows[escrowAddr] != before {
		t.Fatalf("escrow mutated on failed deposit")
	}
	if f.state.payments[paymentAddr].Status != PaymentFailed {
		t.Fatalf("payment mutated on failed deposit")
	}
}

func TestDepositRejectsPartialAmountAndForeignCaller(t *testing.T) {
	f := newFixture(t)
	escrowAddr, _ := f.settle(t)

	if _, err := f.engine.Deposit(escrowAddr, f.buyer, 999); !errors.Is(err, ErrEscrowError) {
		t.Fatalf("expected EscrowError for partial deposit, got %v", err)
	}
	if _, err := f.engine.Deposit(escrowAddr, f.seller, 1000); !errors.Is(err, ErrEscrowError) {
		t.Fatalf("expected EscrowError for non-buyer deposit, got %v", err)
	}
	if len(f.custody.transfers) != 0 {
		t.Fatalf("no transfer expected")
	}
}

func TestDepositTransferFailureLeavesRecordsUntouched(t *testing.T) {
	f := newFixture(t)
	escrowAddr, paymentAddr := f.settle(t)
	f.custody.balances[f.buyer] = 10

	_, err := f.engine.Deposit(escrowAddr, f.buyer, 1000)
	if !errors.Is(err, ErrInsufficientFunds) {
		t.Fatalf("expected InsufficientFunds, got %v", err)
	}
	if f.state.payments[paymentAddr].Status != PaymentPending {
		t.Fatalf("payment status changed after failed transfer")
	}
	esc := f.state.escrows[escrowAddr]
	if esc.Status != EscrowSwapPending || esc.ReleaseFund {
		t.Fatalf("escrow changed after failed transfer: %+v", esc)
	}
}

func TestWithdrawRequiresSuccessfulSOLPayment(t *testing.T) {
	f := newFixture(t)
	escrowAddr, paymentAddr := f.settle(t)

	if _, err := f.engine.Withdraw(escrowAddr); !errors.Is(err, ErrInvalidPayment) {
		t.Fatalf("expected InvalidPayment before deposit, got %v", err)
	}

	if _, err := f.engine.Deposit(escrowAddr, f.buyer, 1000); err != nil {
		t.Fatalf("deposit: %v", err)
	}
	f.state.payments[paymentAddr].Method = MethodETH
	if _, err := f.engine.Withdraw(escrowAddr); !errors.Is(err, ErrInvalidPayment) {
		t.Fatalf("expected InvalidPayment for ETH payment, got %v", err)
	}
	if len(f.custody.transfers) != 1 {
		t.Fatalf("expected only the deposit transfer, got %d", len(f.custody.transfers))
	}
}

func TestWithdrawTransferFailureKeepsEscrowFunded(t *testing.T) {
	f := newFixture(t)
	escrowAddr, _ := f.settle(t)
	if _, err := f.engine.Deposit(escrowAddr, f.buyer, 1000); err != nil {
		t.Fatalf("deposit: %v", err)
	}
	f.custody.failNext = errors.New("custody unavailable")
	if _, err := f.engine.Withdraw(escrowAddr); err == nil {
		t.Fatalf("expected withdraw failure")
	}
	if f.state.escrows[escrowAddr].Status != EscrowFundsReceived {
		t.Fatalf("escrow status changed after failed withdraw")
	}
	if _, err := f.engine.Withdraw(escrowAddr); err != nil {
		t.Fatalf("retry withdraw: %v", err)
	}
}

func TestCreateEscrowChecks(t *testing.T) {
	f := newFixture(t)
	escrowAddr, paymentAddr := f.settle(t)
	esc := f.state.escrows[escrowAddr]

	_, _, err := f.engine.CreateEscrow(f.seller, EscrowParams{
		Buyer: f.buyer, Seller: f.seller, Payment: paymentAddr, Product: esc.Product, Amount: 1000,
	})
	if !errors.Is(err, ErrAccountAlreadyInitialized) {
		t.Fatalf("expected AccountAlreadyInitialized, got %v", err)
	}

	_, _, err = f.engine.CreateEscrow(f.buyer, EscrowParams{
		Buyer: f.buyer, Seller: f.seller, Payment: paymentAddr, Product: esc.Product, Amount: 1000,
	})
	if !errors.Is(err, ErrEscrowError) {
		t.Fatalf("expected EscrowError for non-owner, got %v", err)
	}

	other := newFixture(t)
	_, productAddr, err := other.engine.CreateProduct(other.seller, ProductParams{Name: "Widget", Price: 500})
	if err != nil {
		t.Fatalf("create product: %v", err)
	}
	_, payAddr, err := other.engine.CreatePayment(other.buyer, 1000, productAddr, nil, nil)
	if err != nil {
		t.Fatalf("create payment: %v", err)
	}
	_, _, err = other.engine.CreateEscrow(other.seller, EscrowParams{
		Buyer: other.buyer, Seller: other.seller, Payment: payAddr, Product: productAddr, Amount: 900,
	})
	if !errors.Is(err, ErrInvalidPayment) {
		t.Fatalf("expected InvalidPayment for amount mismatch, got %v", err)
	}
	_, _, err = other.engine.CreateEscrow(other.seller, EscrowParams{
		Buyer: other.buyer, Seller: other.seller, Payment: newTestHandle(0x99), Product: productAddr, Amount: 1000,
	})
	if !errors.Is(err, ErrAccountNotInitialized) {
		t.Fatalf("expected AccountNotInitialized for missing payment, got %v", err)
	}
}

func TestCreatePaymentOncePerPayer(t *testing.T) {
	f := newFixture(t)
	_, productAddr, err := f.engine.CreateProduct(f.seller, ProductParams{Name: "Widget", Price: 500})
	if err != nil {
		t.Fatalf("create product: %v", err)
	}
	sig := " 5VERv8NMvzbJMEkV8xnrLkEaWRtSz9CosKDYjCJjBRnbJLgp8uirBgmQpjKhoR4tjF3ZpRzrFmBV6UjKdiSZkQUW "
	payment, _, err := f.engine.CreatePayment(f.buyer, 1000, productAddr, nil, &sig)
	if err != nil {
		t.Fatalf("create payment: %v", err)
	}
	if payment.Status != PaymentPending || payment.Method != MethodSOL {
		t.Fatalf("unexpected payment defaults: %+v", payment)
	}
	if payment.TxSignature == "" || payment.TxSignature[0] == ' ' {
		t.Fatalf("expected trimmed tx signature, got %q", payment.TxSignature)
	}
	wantID, _ := GenerateID(f.buyer, f.clock)
	if payment.PaymentID != wantID {
		t.Fatalf("payment id not derived from payer and clock")
	}
	if _, _, err := f.engine.CreatePayment(f.buyer, 1000, productAddr, nil, nil); !errors.Is(err, ErrAccountAlreadyInitialized) {
		t.Fatalf("expected AccountAlreadyInitialized, got %v", err)
	}
	if _, _, err := f.engine.CreatePayment(f.seller, 0, productAddr, nil, nil); !errors.Is(err, ErrInvalidPayment) {
		t.Fatalf("expected InvalidPayment for zero amount, got %v", err)
	}
}

func TestCreateOrderDerivesIndependentTrackingID(t *testing.T) {
	f := newFixture(t)
	_, paymentAddr := f.settle(t)

	order, _, err := f.engine.CreateOrder(f.buyer, paymentAddr, nil)
	if err != nil {
		t.Fatalf("create order: %v", err)
	}
	if order.Status != OrderPlaced || order.Tracking != TrackingBooked {
		t.Fatalf("unexpected order state: %s/%s", order.Status, order.Tracking)
	}
	if order.TrackingID == order.OrderID {
		t.Fatalf("tracking id must not repeat order id")
	}
	if order.PaymentID != f.state.payments[paymentAddr].PaymentID {
		t.Fatalf("order does not reference payment id")
	}
	if order.CreatedAt != f.clock || order.UpdatedAt != f.clock {
		t.Fatalf("unexpected timestamps")
	}
	if _, _, err := f.engine.CreateOrder(f.buyer, paymentAddr, nil); !errors.Is(err, ErrAccountAlreadyInitialized) {
		t.Fatalf("expected AccountAlreadyInitialized, got %v", err)
	}

	supplied := ID{0x01, 0x02}
	order, _, err = f.engine.CreateOrder(f.seller, paymentAddr, &supplied)
	if err != nil {
		t.Fatalf("create order with tracking id: %v", err)
	}
	if order.TrackingID != supplied {
		t.Fatalf("expected supplied tracking id")
	}
	if _, _, err := f.engine.CreateOrder(newTestHandle(0x33), newTestHandle(0x44), nil); !errors.Is(err, ErrAccountNotInitialized) {
		t.Fatalf("expected AccountNotInitialized, got %v", err)
	}
}

func TestAddToCartAccumulatesRunningSum(t *testing.T) {
	f := newFixture(t)
	if _, _, err := f.engine.CreateProduct(f.seller, ProductParams{Name: "Widget", Price: 500}); err != nil {
		t.Fatalf("create product: %v", err)
	}
	if _, _, err := f.engine.CreateProduct(f.seller, ProductParams{Name: "Gadget", Price: 200}); err != nil {
		t.Fatalf("create product: %v", err)
	}
	steps := []struct {
		name  string
		qty   uint32
		amt   uint64
		total uint64
	}{
		{"Widget", 2, 500, 1000},
		{"Gadget", 3, 200, 1600},
		{"Widget", 1, 450, 2050},
	}
	for _, step := range steps {
		_, list, err := f.engine.AddToCart(f.buyer, CartParams{ProductName: step.name, Quantity: step.qty, Seller: f.seller, Amount: step.amt})
		if err != nil {
			t.Fatalf("add %s: %v", step.name, err)
		}
		if list.TotalAmount != step.total {
			t.Fatalf("after %s expected total %d, got %d", step.name, step.total, list.TotalAmount)
		}
	}
	list, err := f.engine.CartList(f.buyer)
	if err != nil {
		t.Fatalf("cart list: %v", err)
	}
	if list.Carts.Len() != 2 {
		t.Fatalf("expected two cart references, got %d", list.Carts.Len())
	}
	cartAddr, _ := CartAddress(f.buyer, "Widget")
	cart, err := f.engine.Cart(cartAddr)
	if err != nil {
		t.Fatalf("cart: %v", err)
	}
	if cart.Quantity != 3 || len(cart.Amounts) != 2 {
		t.Fatalf("unexpected cart line: qty=%d amounts=%v", cart.Quantity, cart.Amounts)
	}

	if _, _, err := f.engine.AddToCart(f.buyer, CartParams{ProductName: "Missing", Quantity: 1, Seller: f.seller, Amount: 1}); !errors.Is(err, ErrAccountNotInitialized) {
		t.Fatalf("expected AccountNotInitialized for unknown product, got %v", err)
	}
}

func TestCreateProductListCapacity(t *testing.T) {
	f := newFixture(t)
	for i := 0; i < MaxListLen; i++ {
		if _, _, err := f.engine.CreateProduct(f.seller, ProductParams{Name: fmt.Sprintf("item-%02d", i), Price: 1}); err != nil {
			t.Fatalf("create product %d: %v", i, err)
		}
	}
	_, addr, err := f.engine.CreateProduct(f.seller, ProductParams{Name: "overflow", Price: 1})
	if !errors.Is(err, ErrListFull) {
		t.Fatalf("expected ListFull, got %v", err)
	}
	if _, ok := f.state.products[addr]; ok {
		t.Fatalf("product must not be stored when the list is full")
	}
	listed, err := f.engine.ListProducts(f.seller)
	if err != nil {
		t.Fatalf("list products: %v", err)
	}
	if len(listed) != MaxListLen {
		t.Fatalf("expected %d products, got %d", MaxListLen, len(listed))
	}
	if _, _, err := f.engine.CreateProduct(f.seller, ProductParams{Name: "item-00", Price: 1}); !errors.Is(err, ErrAccountAlreadyInitialized) {
		t.Fatalf("expected AccountAlreadyInitialized for duplicate, got %v", err)
	}
}

func TestCreateProductDefaults(t *testing.T) {
	f := newFixture(t)
	product, addr, err := f.engine.CreateProduct(f.seller, ProductParams{
		Name:     "  Widget ",
		Price:    500,
		Category: CategoryGroceryAndKitchen,
		Division: DivisionLaptop,
	})
	if err != nil {
		t.Fatalf("create product: %v", err)
	}
	wantAddr, bump := ProductAddress(f.seller, "Widget")
	if addr != wantAddr || product.Bump != bump {
		t.Fatalf("product address not derived from seller and trimmed name")
	}
	if product.Quantity != DefaultProductQty || product.Stock != StockInStock || product.Rating != 0 {
		t.Fatalf("unexpected defaults: %+v", product)
	}
	if _, _, err := f.engine.CreateProduct(f.seller, ProductParams{Name: "   "}); !errors.Is(err, ErrInvalidArgument) {
		t.Fatalf("expected InvalidArgument for blank name, got %v", err)
	}
	listed, err := f.engine.ListProducts(newTestHandle(0x77))
	if err != nil || len(listed) != 0 {
		t.Fatalf("expected empty list for unknown seller, got %v %v", listed, err)
	}
}

func TestEngineRequiresState(t *testing.T) {
	engine := NewEngine()
	if _, _, err := engine.CreatePayment(newTestHandle(1), 1, newTestHandle(2), nil, nil); !errors.Is(err, errNilState) {
		t.Fatalf("expected errNilState, got %v", err)
	}
	engine.SetState(newMockState())
	if _, err := engine.Withdraw(newTestHandle(3)); !errors.Is(err, errNilCustody) {
		t.Fatalf("expected errNilCustody, got %v", err)
	}
}

func TestAddToCartRejectsSameNameFromOtherSeller(t *testing.T) {
	f := newFixture(t)
	rival := newTestHandle(0x0b)
	if _, _, err := f.engine.CreateProduct(f.seller, ProductParams{Name: "Widget", Price: 500}); err != nil {
		t.Fatalf("create product: %v", err)
	}
	f.clock++
	if _, _, err := f.engine.CreateProduct(rival, ProductParams{Name: "Widget", Price: 9}); err != nil {
		t.Fatalf("create rival product: %v", err)
	}
	if _, _, err := f.engine.AddToCart(f.buyer, CartParams{ProductName: "Widget", Quantity: 1, Seller: f.seller, Amount: 500}); err != nil {
		t.Fatalf("add to cart: %v", err)
	}
	_, _, err := f.engine.AddToCart(f.buyer, CartParams{ProductName: "Widget", Quantity: 1, Seller: rival, Amount: 9})
	if !errors.Is(err, ErrInvalidArgument) {
		t.Fatalf("expected InvalidArgument for foreign seller line, got %v", err)
	}

	cartAddr, _ := CartAddress(f.buyer, "Widget")
	cart := f.state.carts[cartAddr]
	if cart.Seller != f.seller || cart.Quantity != 1 || len(cart.Amounts) != 1 {
		t.Fatalf("cart mutated by rejected add: seller=%s qty=%d amounts=%v", cart.Seller, cart.Quantity, cart.Amounts)
	}
	list, err := f.engine.CartList(f.buyer)
	if err != nil {
		t.Fatalf("cart list: %v", err)
	}
	if list.TotalAmount != 500 {
		t.Fatalf("expected total 500, got %d", list.TotalAmount)
	}
}

func TestCreateEscrowRejectsPaymentFromAnotherPayer(t *testing.T) {
	f := newFixture(t)
	_, productAddr, err := f.engine.CreateProduct(f.seller, ProductParams{Name: "Widget", Price: 500})
	if err != nil {
		t.Fatalf("create product: %v", err)
	}
	payer := newTestHandle(0x33)
	_, foreignPayment, err := f.engine.CreatePayment(payer, 1000, productAddr, nil, nil)
	if err != nil {
		t.Fatalf("create payment: %v", err)
	}
	_, escrowAddr, err := f.engine.CreateEscrow(f.seller, EscrowParams{
		Buyer: f.buyer, Seller: f.seller, Payment: foreignPayment, Product: productAddr, Amount: 1000,
	})
	if !errors.Is(err, ErrInvalidPayment) {
		t.Fatalf("expected InvalidPayment for foreign payment, got %v", err)
	}
	if _, ok := f.state.escrows[escrowAddr]; ok {
		t.Fatalf("escrow persisted despite rejection")
	}
	if len(f.custody.authorities) != 0 {
		t.Fatalf("vault opened despite rejection")
	}
	if f.state.payments[foreignPayment].Status != PaymentPending {
		t.Fatalf("foreign payment status changed")
	}
}

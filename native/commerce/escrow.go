package commerce

import (
	"ecomledger/crypto"
)

// EscrowParams names the parties and records an escrow binds together.
type EscrowParams struct {
	Buyer   crypto.Handle
	Seller  crypto.Handle
	Payment crypto.Handle
	Product crypto.Handle
	Amount  uint64
}

// CreateEscrow opens an escrow for one of owner's products and the custody
// vault that will hold the buyer's funds. Only the product's seller may open
// it, and the amount must match the referenced payment.
func (e *Engine) CreateEscrow(owner crypto.Handle, params EscrowParams) (*Escrow, crypto.Handle, error) {
	if err := e.ready(); err != nil {
		return nil, crypto.Handle{}, err
	}
	if e.custody == nil {
		return nil, crypto.Handle{}, errNilCustody
	}
	product, err := e.loadProduct(params.Product)
	if err != nil {
		return nil, crypto.Handle{}, err
	}
	if product.Seller != owner {
		return nil, crypto.Handle{}, wrap(ErrEscrowError, "escrow creator %s does not own product %s", owner, params.Product)
	}
	if params.Seller != product.Seller {
		return nil, crypto.Handle{}, wrap(ErrEscrowError, "seller %s does not match product seller", params.Seller)
	}
	if params.Buyer.IsZero() || params.Buyer == params.Seller {
		return nil, crypto.Handle{}, wrap(ErrEscrowError, "buyer must be a distinct party")
	}
	addr, bump := EscrowAddress(owner, product.ProductID)
	if _, exists, err := e.state.EscrowGet(addr); err != nil {
		return nil, addr, err
	} else if exists {
		return nil, addr, wrap(ErrAccountAlreadyInitialized, "escrow for product %s", product.ProductID)
	}
	payment, err := e.loadPayment(params.Payment)
	if err != nil {
		return nil, addr, err
	}
	if buyerPayment, _ := PaymentAddress(params.Buyer); params.Payment != buyerPayment {
		return nil, addr, wrap(ErrInvalidPayment, "payment %s was not made by buyer %s", params.Payment, params.Buyer)
	}
	if payment.Product != params.Product {
		return nil, addr, wrap(ErrInvalidPayment, "payment %s is for a different product", params.Payment)
	}
	if params.Amount == 0 || params.Amount != payment.Amount {
		return nil, addr, wrap(ErrInvalidPayment, "escrow amount %d does not match payment amount %d", params.Amount, payment.Amount)
	}

	vault := VaultAddress(addr)
	if err := e.custody.Open(vault, addr); err != nil {
		return nil, addr, err
	}
	now := e.now()
	escrow := &Escrow{
		Owner:     owner,
		Buyer:     params.Buyer,
		Seller:    params.Seller,
		ProductID: product.ProductID,
		PaymentID: payment.PaymentID,
		Payment:   params.Payment,
		Product:   params.Product,
		Vault:     vault,
		Amount:    params.Amount,
		Timestamp: now,
		UpdatedAt: now,
		Status:    EscrowSwapPending,
		Bump:      bump,
	}
	if err := e.state.EscrowPut(addr, escrow); err != nil {
		return nil, addr, err
	}
	e.emit(NewEscrowCreatedEvent(addr, escrow))
	return escrow.Clone(), addr, nil
}

func checkDeposit(escrow *Escrow, payment *Payment, caller crypto.Handle, amount uint64) error {
	if caller != escrow.Buyer {
		return wrap(ErrEscrowError, "deposit must be authorised by the buyer")
	}
	if payment.Status != PaymentPending {
		return wrap(ErrEscrowError, "payment status %s, want Pending", payment.Status)
	}
	if escrow.ReleaseFund {
		return wrap(ErrEscrowError, "escrow already funded")
	}
	if amount != payment.Amount {
		return wrap(ErrEscrowError, "deposit %d must equal payment amount %d", amount, payment.Amount)
	}
	return nil
}

func checkWithdraw(escrow *Escrow, payment *Payment) error {
	if payment.Status != PaymentSuccess {
		return wrap(ErrInvalidPayment, "payment status %s, want Success", payment.Status)
	}
	if payment.Method != MethodSOL {
		return wrap(ErrInvalidPayment, "payment method %s cannot be settled", payment.Method)
	}
	// ReleaseFund is set once on deposit and never cleared; a withdrawn
	// escrow is recognised by its terminal status.
	if !escrow.ReleaseFund || escrow.Status != EscrowFundsReceived {
		return wrap(ErrFundsNotFound, "escrow status %s", escrow.Status)
	}
	return nil
}

// Deposit moves the payment amount from the buyer's custody account into the
// escrow vault. On success the payment is marked Success and the release
// flag is raised. A failed transfer leaves every record untouched.
func (e *Engine) Deposit(escrowAddr, caller crypto.Handle, amount uint64) (*Escrow, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}
	if e.custody == nil {
		return nil, errNilCustody
	}
	escrow, err := e.loadEscrow(escrowAddr)
	if err != nil {
		return nil, err
	}
	payment, err := e.loadPayment(escrow.Payment)
	if err != nil {
		return nil, err
	}
	if err := checkDeposit(escrow, payment, caller, amount); err != nil {
		return nil, err
	}
	if err := e.custody.Transfer(escrow.Buyer, escrow.Vault, caller, payment.Amount); err != nil {
		return nil, err
	}
	payment.Status = PaymentSuccess
	escrow.Status = EscrowFundsReceived
	escrow.ReleaseFund = true
	escrow.UpdatedAt = e.now()
	if err := e.state.PaymentPut(escrow.Payment, payment); err != nil {
		return nil, err
	}
	if err := e.state.EscrowPut(escrowAddr, escrow); err != nil {
		return nil, err
	}
	e.emit(NewEscrowDepositedEvent(escrowAddr, escrow))
	return escrow.Clone(), nil
}

// Withdraw releases the vault balance to the seller, signed by the escrow's
// own derived authority. It succeeds at most once per escrow.
func (e *Engine) Withdraw(escrowAddr crypto.Handle) (*Escrow, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}
	if e.custody == nil {
		return nil, errNilCustody
	}
	escrow, err := e.loadEscrow(escrowAddr)
	if err != nil {
		return nil, err
	}
	payment, err := e.loadPayment(escrow.Payment)
	if err != nil {
		return nil, err
	}
	if err := checkWithdraw(escrow, payment); err != nil {
		return nil, err
	}
	if err := e.custody.Transfer(escrow.Vault, escrow.Seller, escrowAddr, payment.Amount); err != nil {
		return nil, err
	}
	escrow.Status = EscrowTransferSuccess
	escrow.UpdatedAt = e.now()
	if err := e.state.EscrowPut(escrowAddr, escrow); err != nil {
		return nil, err
	}
	e.emit(NewEscrowWithdrawnEvent(escrowAddr, escrow))
	return escrow.Clone(), nil
}

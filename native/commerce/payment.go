package commerce

import (
	"strings"

	"ecomledger/crypto"
)

// CreatePayment opens the payer's payment record in Pending status. Each
// payer holds at most one payment. A nil method defaults to SOL.
func (e *Engine) CreatePayment(payer crypto.Handle, amount uint64, product crypto.Handle, method *PaymentMethod, txSignature *string) (*Payment, crypto.Handle, error) {
	if err := e.ready(); err != nil {
		return nil, crypto.Handle{}, err
	}
	addr, bump := PaymentAddress(payer)
	if _, exists, err := e.state.PaymentGet(addr); err != nil {
		return nil, addr, err
	} else if exists {
		return nil, addr, wrap(ErrAccountAlreadyInitialized, "payment for %s", payer)
	}
	if amount == 0 {
		return nil, addr, wrap(ErrInvalidPayment, "amount must be positive")
	}
	if _, err := e.loadProduct(product); err != nil {
		return nil, addr, err
	}
	chosen := MethodSOL
	if method != nil {
		chosen = *method
	}
	now := e.now()
	id, err := GenerateID(payer, now)
	if err != nil {
		return nil, addr, err
	}
	payment := &Payment{
		PaymentID: id,
		Amount:    amount,
		Product:   product,
		Method:    chosen,
		Status:    PaymentPending,
		Timestamp: now,
		Bump:      bump,
	}
	if txSignature != nil {
		payment.TxSignature = strings.TrimSpace(*txSignature)
	}
	if err := SanitizePayment(payment); err != nil {
		return nil, addr, err
	}
	if err := e.state.PaymentPut(addr, payment); err != nil {
		return nil, addr, err
	}
	e.emit(NewPaymentCreatedEvent(addr, payment))
	return payment.Clone(), addr, nil
}

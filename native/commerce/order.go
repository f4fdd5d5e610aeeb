package commerce

import (
	"ecomledger/crypto"
)

// CreateOrder books an order against an existing payment. When trackingID is
// nil a tracking identifier is derived in its own hash domain.
func (e *Engine) CreateOrder(signer, paymentAddr crypto.Handle, trackingID *ID) (*Order, crypto.Handle, error) {
	if err := e.ready(); err != nil {
		return nil, crypto.Handle{}, err
	}
	addr, bump := OrderAddress(signer)
	if _, exists, err := e.state.OrderGet(addr); err != nil {
		return nil, addr, err
	} else if exists {
		return nil, addr, wrap(ErrAccountAlreadyInitialized, "order for %s", signer)
	}
	payment, err := e.loadPayment(paymentAddr)
	if err != nil {
		return nil, addr, err
	}
	now := e.now()
	orderID, err := GenerateID(signer, now)
	if err != nil {
		return nil, addr, err
	}
	var tracking ID
	if trackingID != nil && !trackingID.IsZero() {
		tracking = *trackingID
	} else {
		tracking, err = GenerateTrackingID(signer, now)
		if err != nil {
			return nil, addr, err
		}
	}
	order := &Order{
		OrderID:    orderID,
		PaymentID:  payment.PaymentID,
		Payment:    paymentAddr,
		TrackingID: tracking,
		Status:     OrderPlaced,
		Tracking:   TrackingBooked,
		CreatedAt:  now,
		UpdatedAt:  now,
		Bump:       bump,
	}
	if err := e.state.OrderPut(addr, order); err != nil {
		return nil, addr, err
	}
	e.emit(NewOrderCreatedEvent(addr, order))
	return order.Clone(), addr, nil
}

package commerce

import (
	"strconv"

	"ecomledger/core/types"
	"ecomledger/crypto"
)

const (
	EventTypeProductCreated  = "commerce.product.created"
	EventTypeCartUpdated     = "commerce.cart.updated"
	EventTypePaymentCreated  = "commerce.payment.created"
	EventTypeEscrowCreated   = "commerce.escrow.created"
	EventTypeEscrowDeposited = "commerce.escrow.deposited"
	EventTypeEscrowWithdrawn = "commerce.escrow.withdrawn"
	EventTypeOrderCreated    = "commerce.order.created"
)

type commerceEvent struct {
	evt *types.Event
}

func (e commerceEvent) EventType() string {
	if e.evt == nil {
		return ""
	}
	return e.evt.Type
}

func (e commerceEvent) Event() *types.Event { return e.evt }

func NewProductCreatedEvent(addr crypto.Handle, p *Product) *types.Event {
	attrs := map[string]string{"address": addr.String()}
	if p != nil {
		attrs["productId"] = p.ProductID.String()
		attrs["seller"] = p.Seller.String()
		attrs["name"] = p.Name
		attrs["price"] = strconv.FormatUint(p.Price, 10)
		attrs["category"] = p.Category.String()
		attrs["division"] = p.Division.String()
	}
	return &types.Event{Type: EventTypeProductCreated, Attributes: attrs}
}

func NewCartUpdatedEvent(addr crypto.Handle, buyer crypto.Handle, c *Cart, total uint64) *types.Event {
	attrs := map[string]string{
		"address": addr.String(),
		"buyer":   buyer.String(),
		"total":   strconv.FormatUint(total, 10),
	}
	if c != nil {
		attrs["seller"] = c.Seller.String()
		attrs["productName"] = c.ProductName
		attrs["quantity"] = strconv.FormatUint(uint64(c.Quantity), 10)
	}
	return &types.Event{Type: EventTypeCartUpdated, Attributes: attrs}
}

func NewPaymentCreatedEvent(addr crypto.Handle, p *Payment) *types.Event {
	attrs := map[string]string{"address": addr.String()}
	if p != nil {
		attrs["paymentId"] = p.PaymentID.String()
		attrs["amount"] = strconv.FormatUint(p.Amount, 10)
		attrs["product"] = p.Product.String()
		attrs["method"] = p.Method.String()
	}
	return &types.Event{Type: EventTypePaymentCreated, Attributes: attrs}
}

// NewEscrowCreatedEvent returns the canonical payload for a newly opened
// escrow.
func NewEscrowCreatedEvent(addr crypto.Handle, e *Escrow) *types.Event {
	return newEscrowEvent(EventTypeEscrowCreated, addr, e)
}

// NewEscrowDepositedEvent is emitted once buyer funds reach the vault.
func NewEscrowDepositedEvent(addr crypto.Handle, e *Escrow) *types.Event {
	return newEscrowEvent(EventTypeEscrowDeposited, addr, e)
}

// NewEscrowWithdrawnEvent is emitted once vault funds reach the seller.
func NewEscrowWithdrawnEvent(addr crypto.Handle, e *Escrow) *types.Event {
	return newEscrowEvent(EventTypeEscrowWithdrawn, addr, e)
}

func NewOrderCreatedEvent(addr crypto.Handle, o *Order) *types.Event {
	attrs := map[string]string{"address": addr.String()}
	if o != nil {
		attrs["orderId"] = o.OrderID.String()
		attrs["paymentId"] = o.PaymentID.String()
		attrs["trackingId"] = o.TrackingID.String()
		attrs["status"] = o.Status.String()
		attrs["tracking"] = o.Tracking.String()
	}
	return &types.Event{Type: EventTypeOrderCreated, Attributes: attrs}
}

func newEscrowEvent(eventType string, addr crypto.Handle, e *Escrow) *types.Event {
	attrs := map[string]string{"address": addr.String()}
	if e == nil {
		return &types.Event{Type: eventType, Attributes: attrs}
	}
	attrs["buyer"] = e.Buyer.String()
	attrs["seller"] = e.Seller.String()
	attrs["paymentId"] = e.PaymentID.String()
	attrs["productId"] = e.ProductID.String()
	attrs["amount"] = strconv.FormatUint(e.Amount, 10)
	attrs["status"] = e.Status.String()
	attrs["releaseFund"] = strconv.FormatBool(e.ReleaseFund)
	attrs["updatedAt"] = strconv.FormatInt(e.UpdatedAt, 10)
	return &types.Event{Type: eventType, Attributes: attrs}
}

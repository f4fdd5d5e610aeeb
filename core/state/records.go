package state

import (
	"bytes"
	"fmt"

	ethcrypto "github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/rlp"

	"ecomledger/crypto"
	"ecomledger/native/commerce"
)

const (
	discriminatorLen = 8
	recordVersion    = byte(1)
)

var recordPrefix = []byte("commerce/record/")

type recordKind string

const (
	kindProduct      recordKind = "product"
	kindProductsList recordKind = "products_list"
	kindCart         recordKind = "cart"
	kindCartList     recordKind = "cart_list"
	kindPayment      recordKind = "payment"
	kindEscrow       recordKind = "escrow"
	kindOrder        recordKind = "order"
	kindCustody      recordKind = "custody_account"
)

// ErrRecordKind is returned when the bytes at an address belong to a
// different record type than the one requested.
type ErrRecordKind struct {
	Addr crypto.Handle
	Want string
}

func (e *ErrRecordKind) Error() string {
	return fmt.Sprintf("state: record at %s is not a %s", e.Addr, e.Want)
}

func (k recordKind) discriminator() []byte {
	return ethcrypto.Keccak256([]byte("record:" + string(k)))[:discriminatorLen]
}

func recordKey(addr crypto.Handle) []byte {
	buf := make([]byte, len(recordPrefix)+crypto.HandleLength)
	copy(buf, recordPrefix)
	copy(buf[len(recordPrefix):], addr[:])
	return buf
}

func encodeRecord(kind recordKind, value interface{}) ([]byte, error) {
	body, err := rlp.EncodeToBytes(value)
	if err != nil {
		return nil, fmt.Errorf("state: encode %s: %w", kind, err)
	}
	out := make([]byte, 0, discriminatorLen+1+len(body))
	out = append(out, kind.discriminator()...)
	out = append(out, recordVersion)
	return append(out, body...), nil
}

func decodeRecord(addr crypto.Handle, kind recordKind, data []byte, out interface{}) error {
	if len(data) < discriminatorLen+1 || !bytes.Equal(data[:discriminatorLen], kind.discriminator()) {
		return &ErrRecordKind{Addr: addr, Want: string(kind)}
	}
	if version := data[discriminatorLen]; version != recordVersion {
		return fmt.Errorf("state: %s at %s has unsupported version %d", kind, addr, version)
	}
	if err := rlp.DecodeBytes(data[discriminatorLen+1:], out); err != nil {
		return fmt.Errorf("state: decode %s at %s: %w", kind, addr, err)
	}
	return nil
}

func (t *Txn) getRecord(addr crypto.Handle, kind recordKind, out interface{}) (bool, error) {
	data, ok, err := t.get(recordKey(addr))
	if err != nil || !ok {
		return false, err
	}
	if err := decodeRecord(addr, kind, data, out); err != nil {
		return false, err
	}
	return true, nil
}

func (t *Txn) putRecord(addr crypto.Handle, kind recordKind, value interface{}) error {
	encoded, err := encodeRecord(kind, value)
	if err != nil {
		return err
	}
	return t.put(recordKey(addr), encoded)
}

// rlp has no signed integers; timestamps are stored as their two's
// complement bit pattern.
type storedPayment struct {
	PaymentID   commerce.ID
	Amount      uint64
	Product     crypto.Handle
	Method      uint8
	Status      uint8
	Timestamp   uint64
	TxSignature string
	Bump        uint8
}

type storedEscrow struct {
	Owner       crypto.Handle
	Buyer       crypto.Handle
	Seller      crypto.Handle
	ProductID   commerce.ID
	PaymentID   commerce.ID
	Payment     crypto.Handle
	Product     crypto.Handle
	Vault       crypto.Handle
	Amount      uint64
	ReleaseFund bool
	Timestamp   uint64
	UpdatedAt   uint64
	Status      uint8
	Bump        uint8
}

type storedOrder struct {
	OrderID    commerce.ID
	PaymentID  commerce.ID
	Payment    crypto.Handle
	TrackingID commerce.ID
	Status     uint8
	Tracking   uint8
	CreatedAt  uint64
	UpdatedAt  uint64
	Bump       uint8
}

func (t *Txn) ProductGet(addr crypto.Handle) (*commerce.Product, bool, error) {
	product := new(commerce.Product)
	ok, err := t.getRecord(addr, kindProduct, product)
	if err != nil || !ok {
		return nil, ok, err
	}
	if err := commerce.SanitizeProduct(product); err != nil {
		return nil, false, err
	}
	return product, true, nil
}

func (t *Txn) ProductPut(addr crypto.Handle, product *commerce.Product) error {
	if err := commerce.SanitizeProduct(product); err != nil {
		return err
	}
	return t.putRecord(addr, kindProduct, product)
}

func (t *Txn) ProductsListGet(addr crypto.Handle) (*commerce.ProductsList, bool, error) {
	list := new(commerce.ProductsList)
	ok, err := t.getRecord(addr, kindProductsList, list)
	if err != nil || !ok {
		return nil, ok, err
	}
	if list.Products.Len() > commerce.MaxListLen {
		return nil, false, fmt.Errorf("state: products list at %s exceeds capacity", addr)
	}
	return list, true, nil
}

func (t *Txn) ProductsListPut(addr crypto.Handle, list *commerce.ProductsList) error {
	if list == nil || list.Products.Len() > commerce.MaxListLen {
		return fmt.Errorf("state: products list exceeds capacity")
	}
	return t.putRecord(addr, kindProductsList, list)
}

func (t *Txn) CartGet(addr crypto.Handle) (*commerce.Cart, bool, error) {
	cart := new(commerce.Cart)
	ok, err := t.getRecord(addr, kindCart, cart)
	if err != nil || !ok {
		return nil, ok, err
	}
	if err := commerce.SanitizeCart(cart); err != nil {
		return nil, false, err
	}
	return cart, true, nil
}

func (t *Txn) CartPut(addr crypto.Handle, cart *commerce.Cart) error {
	if err := commerce.SanitizeCart(cart); err != nil {
		return err
	}
	return t.putRecord(addr, kindCart, cart)
}

func (t *Txn) CartListGet(addr crypto.Handle) (*commerce.CartList, bool, error) {
	list := new(commerce.CartList)
	ok, err := t.getRecord(addr, kindCartList, list)
	if err != nil || !ok {
		return nil, ok, err
	}
	if list.Carts.Len() > commerce.MaxListLen {
		return nil, false, fmt.Errorf("state: cart list at %s exceeds capacity", addr)
	}
	return list, true, nil
}

func (t *Txn) CartListPut(addr crypto.Handle, list *commerce.CartList) error {
	if list == nil || list.Carts.Len() > commerce.MaxListLen {
		return fmt.Errorf("state: cart list exceeds capacity")
	}
	return t.putRecord(addr, kindCartList, list)
}

func (t *Txn) PaymentGet(addr crypto.Handle) (*commerce.Payment, bool, error) {
	var stored storedPayment
	ok, err := t.getRecord(addr, kindPayment, &stored)
	if err != nil || !ok {
		return nil, ok, err
	}
	payment := &commerce.Payment{
		PaymentID:   stored.PaymentID,
		Amount:      stored.Amount,
		Product:     stored.Product,
		Method:      commerce.PaymentMethod(stored.Method),
		Status:      commerce.PaymentStatus(stored.Status),
		Timestamp:   int64(stored.Timestamp),
		TxSignature: stored.TxSignature,
		Bump:        stored.Bump,
	}
	if err := commerce.SanitizePayment(payment); err != nil {
		return nil, false, err
	}
	return payment, true, nil
}

func (t *Txn) PaymentPut(addr crypto.Handle, payment *commerce.Payment) error {
	if err := commerce.SanitizePayment(payment); err != nil {
		return err
	}
	return t.putRecord(addr, kindPayment, &storedPayment{
		PaymentID:   payment.PaymentID,
		Amount:      payment.Amount,
		Product:     payment.Product,
		Method:      uint8(payment.Method),
		Status:      uint8(payment.Status),
		Timestamp:   uint64(payment.Timestamp),
		TxSignature: payment.TxSignature,
		Bump:        payment.Bump,
	})
}

func (t *Txn) EscrowGet(addr crypto.Handle) (*commerce.Escrow, bool, error) {
	var stored storedEscrow
	ok, err := t.getRecord(addr, kindEscrow, &stored)
	if err != nil || !ok {
		return nil, ok, err
	}
	escrow := &commerce.Escrow{
		Owner:       stored.Owner,
		Buyer:       stored.Buyer,
		Seller:      stored.Seller,
		ProductID:   stored.ProductID,
		PaymentID:   stored.PaymentID,
		Payment:     stored.Payment,
		Product:     stored.Product,
		Vault:       stored.Vault,
		Amount:      stored.Amount,
		ReleaseFund: stored.ReleaseFund,
		Timestamp:   int64(stored.Timestamp),
		UpdatedAt:   int64(stored.UpdatedAt),
		Status:      commerce.EscrowStatus(stored.Status),
		Bump:        stored.Bump,
	}
	if err := commerce.SanitizeEscrow(escrow); err != nil {
		return nil, false, err
	}
	return escrow, true, nil
}

func (t *Txn) EscrowPut(addr crypto.Handle, escrow *commerce.Escrow) error {
	if err := commerce.SanitizeEscrow(escrow); err != nil {
		return err
	}
	return t.putRecord(addr, kindEscrow, &storedEscrow{
		Owner:       escrow.Owner,
		Buyer:       escrow.Buyer,
		Seller:      escrow.Seller,
		ProductID:   escrow.ProductID,
		PaymentID:   escrow.PaymentID,
		Payment:     escrow.Payment,
		Product:     escrow.Product,
		Vault:       escrow.Vault,
		Amount:      escrow.Amount,
		ReleaseFund: escrow.ReleaseFund,
		Timestamp:   uint64(escrow.Timestamp),
		UpdatedAt:   uint64(escrow.UpdatedAt),
		Status:      uint8(escrow.Status),
		Bump:        escrow.Bump,
	})
}

func (t *Txn) OrderGet(addr crypto.Handle) (*commerce.Order, bool, error) {
	var stored storedOrder
	ok, err := t.getRecord(addr, kindOrder, &stored)
	if err != nil || !ok {
		return nil, ok, err
	}
	order := &commerce.Order{
		OrderID:    stored.OrderID,
		PaymentID:  stored.PaymentID,
		Payment:    stored.Payment,
		TrackingID: stored.TrackingID,
		Status:     commerce.OrderStatus(stored.Status),
		Tracking:   commerce.TrackingStatus(stored.Tracking),
		CreatedAt:  int64(stored.CreatedAt),
		UpdatedAt:  int64(stored.UpdatedAt),
		Bump:       stored.Bump,
	}
	if err := commerce.SanitizeOrder(order); err != nil {
		return nil, false, err
	}
	return order, true, nil
}

func (t *Txn) OrderPut(addr crypto.Handle, order *commerce.Order) error {
	if err := commerce.SanitizeOrder(order); err != nil {
		return err
	}
	return t.putRecord(addr, kindOrder, &storedOrder{
		OrderID:    order.OrderID,
		PaymentID:  order.PaymentID,
		Payment:    order.Payment,
		TrackingID: order.TrackingID,
		Status:     uint8(order.Status),
		Tracking:   uint8(order.Tracking),
		CreatedAt:  uint64(order.CreatedAt),
		UpdatedAt:  uint64(order.UpdatedAt),
		Bump:       order.Bump,
	})
}

package commerce

import (
	"fmt"
	"strings"

	"ecomledger/crypto"
)

// Field limits enforced before any record is written.
const (
	MaxProductNameLen  = 50
	MaxSellerNameLen   = 50
	MaxDescriptionLen  = 300
	MaxImageURLLen     = 150
	MaxTxSignatureLen  = 100
	MaxListLen         = 40
	DefaultProductQty  = 100
	productNameMinimum = 1
)

// Category groups products for catalog presentation.
type Category uint8

const (
	CategoryElectronics Category = iota
	CategoryBeautyAndPersonalCare
	CategorySnacksAndDrinks
	CategoryHouseholdEssentials
	CategoryGroceryAndKitchen
)

var categoryNames = []string{"Electronics", "BeautyAndPersonalCare", "SnacksAndDrinks", "HouseholdEssentials", "GroceryAndKitchen"}

func (c Category) Valid() bool { return int(c) < len(categoryNames) }

func (c Category) String() string { return enumName(categoryNames, uint8(c)) }

// ParseCategory resolves a category from its name, case-insensitively.
func ParseCategory(raw string) (Category, error) {
	v, err := parseEnum(categoryNames, raw, "category")
	return Category(v), err
}

// Division narrows a product within its category.
type Division uint8

const (
	DivisionMobile Division = iota
	DivisionLaptop
	DivisionHeadphone
	DivisionSmartWatch
	DivisionComputerPeripherals
)

var divisionNames = []string{"Mobile", "Laptop", "Headphone", "SmartWatch", "ComputerPeripherals"}

func (d Division) Valid() bool { return int(d) < len(divisionNames) }

func (d Division) String() string { return enumName(divisionNames, uint8(d)) }

func ParseDivision(raw string) (Division, error) {
	v, err := parseEnum(divisionNames, raw, "division")
	return Division(v), err
}

// StockStatus reports product availability.
type StockStatus uint8

const (
	StockOutOfStock StockStatus = iota
	StockInStock
	StockRestoring
)

var stockNames = []string{"OutOfStock", "InStock", "Restoring"}

func (s StockStatus) Valid() bool { return int(s) < len(stockNames) }

func (s StockStatus) String() string { return enumName(stockNames, uint8(s)) }

// PaymentMethod is the asset a payment is denominated in.
type PaymentMethod uint8

const (
	MethodSOL PaymentMethod = iota
	MethodETH
	MethodBTC
	MethodUSDT
	MethodUSDC
)

var methodNames = []string{"SOL", "ETH", "BTC", "USDT", "USDC"}

func (m PaymentMethod) Valid() bool { return int(m) < len(methodNames) }

func (m PaymentMethod) String() string { return enumName(methodNames, uint8(m)) }

func ParsePaymentMethod(raw string) (PaymentMethod, error) {
	v, err := parseEnum(methodNames, raw, "payment method")
	return PaymentMethod(v), err
}

// PaymentStatus moves Pending -> Success or Pending -> Failed.
type PaymentStatus uint8

const (
	PaymentPending PaymentStatus = iota
	PaymentSuccess
	PaymentFailed
)

var paymentStatusNames = []string{"Pending", "Success", "Failed"}

func (s PaymentStatus) Valid() bool { return int(s) < len(paymentStatusNames) }

func (s PaymentStatus) String() string { return enumName(paymentStatusNames, uint8(s)) }

// EscrowStatus tracks settlement progress. The canonical path is
// SwapPending -> FundsReceived -> TransferSuccess; WaitingForSwap,
// SellerNotPaid, BuyerNotPaid, SwapSuccess and TransferFailed are retained
// as valid stored values.
type EscrowStatus uint8

const (
	EscrowWaitingForSwap EscrowStatus = iota
	EscrowSwapPending
	EscrowFundsReceived
	EscrowSellerNotPaid
	EscrowBuyerNotPaid
	EscrowSwapSuccess
	EscrowTransferSuccess
	EscrowTransferFailed
)

var escrowStatusNames = []string{"WaitingForSwap", "SwapPending", "FundsReceived", "SellerNotPaid", "BuyerNotPaid", "SwapSuccess", "TransferSuccess", "TransferFailed"}

func (s EscrowStatus) Valid() bool { return int(s) < len(escrowStatusNames) }

func (s EscrowStatus) String() string { return enumName(escrowStatusNames, uint8(s)) }

type OrderStatus uint8

const (
	OrderPending OrderStatus = iota
	OrderPlaced
	OrderFailed
	OrderReturned
)

var orderStatusNames = []string{"Pending", "Placed", "Failed", "Returned"}

func (s OrderStatus) Valid() bool { return int(s) < len(orderStatusNames) }

func (s OrderStatus) String() string { return enumName(orderStatusNames, uint8(s)) }

// TrackingStatus is advanced by the shipping collaborator after Booked.
type TrackingStatus uint8

const (
	TrackingWaitingForOrders TrackingStatus = iota
	TrackingBooked
	TrackingInTransit
	TrackingShipped
	TrackingOutForDelivery
	TrackingDelivered
)

var trackingNames = []string{"WaitingForOrders", "Booked", "InTransit", "Shipped", "OutForDelivery", "Delivered"}

func (s TrackingStatus) Valid() bool { return int(s) < len(trackingNames) }

func (s TrackingStatus) String() string { return enumName(trackingNames, uint8(s)) }

func enumName(names []string, v uint8) string {
	if int(v) < len(names) {
		return names[v]
	}
	return fmt.Sprintf("Unknown(%d)", v)
}

func parseEnum(names []string, raw, label string) (uint8, error) {
	trimmed := strings.TrimSpace(raw)
	for i, name := range names {
		if strings.EqualFold(name, trimmed) {
			return uint8(i), nil
		}
	}
	return 0, wrap(ErrInvalidArgument, "unknown %s %q", label, raw)
}

// Product is published once by a seller. Quantity, rating and stock are
// maintained by collaborators outside this package.
type Product struct {
	ProductID   ID
	Name        string
	Category    Category
	Division    Division
	Quantity    uint32
	Seller      crypto.Handle
	SellerName  string
	Description string
	ImageURL    string
	Price       uint64
	// Rating is stored in hundredths of a star.
	Rating uint16
	Stock  StockStatus
	Bump   uint8
}

func (p *Product) Clone() *Product {
	if p == nil {
		return nil
	}
	clone := *p
	return &clone
}

// ProductsList enumerates one seller's products.
type ProductsList struct {
	Products RefList
	Bump     uint8
}

func (l *ProductsList) Clone() *ProductsList {
	if l == nil {
		return nil
	}
	return &ProductsList{Products: l.Products.Clone(), Bump: l.Bump}
}

// Cart is one buyer's line for one product name. Amounts keeps every unit
// amount supplied by repeated additions.
type Cart struct {
	ProductID   ID
	ProductName string
	Quantity    uint32
	Seller      crypto.Handle
	ImageURL    string
	Stock       StockStatus
	Amounts     []uint64
	Bump        uint8
}

func (c *Cart) Clone() *Cart {
	if c == nil {
		return nil
	}
	clone := *c
	clone.Amounts = append([]uint64(nil), c.Amounts...)
	return &clone
}

// CartList enumerates a buyer's carts and the running cart total.
type CartList struct {
	Carts       RefList
	TotalAmount uint64
	Bump        uint8
}

func (l *CartList) Clone() *CartList {
	if l == nil {
		return nil
	}
	return &CartList{Carts: l.Carts.Clone(), TotalAmount: l.TotalAmount, Bump: l.Bump}
}

// AddAmount adds amount*quantity to the running total.
func (l *CartList) AddAmount(amount uint64, quantity uint32) error {
	if quantity != 0 && amount > ^uint64(0)/uint64(quantity) {
		return wrap(ErrInvalidPayment, "cart line %d x %d overflows", amount, quantity)
	}
	line := amount * uint64(quantity)
	if l.TotalAmount > ^uint64(0)-line {
		return wrap(ErrInvalidPayment, "cart total overflows")
	}
	l.TotalAmount += line
	return nil
}

// Payment records a buyer's intent to pay for a product.
type Payment struct {
	PaymentID ID
	Amount    uint64
	Product   crypto.Handle
	Method    PaymentMethod
	Status    PaymentStatus
	Timestamp int64
	// TxSignature optionally references an external transaction; empty means
	// none was supplied.
	TxSignature string
	Bump        uint8
}

func (p *Payment) Clone() *Payment {
	if p == nil {
		return nil
	}
	clone := *p
	return &clone
}

// Escrow holds a payment's value in a vault custody account controlled only
// by the escrow's own address.
type Escrow struct {
	Owner       crypto.Handle
	Buyer       crypto.Handle
	Seller      crypto.Handle
	ProductID   ID
	PaymentID   ID
	Payment     crypto.Handle
	Product     crypto.Handle
	Vault       crypto.Handle
	Amount      uint64
	ReleaseFund bool
	Timestamp   int64
	UpdatedAt   int64
	Status      EscrowStatus
	Bump        uint8
}

func (e *Escrow) Clone() *Escrow {
	if e == nil {
		return nil
	}
	clone := *e
	return &clone
}

// Order tracks fulfillment of a paid purchase.
type Order struct {
	OrderID    ID
	PaymentID  ID
	Payment    crypto.Handle
	TrackingID ID
	Status     OrderStatus
	Tracking   TrackingStatus
	CreatedAt  int64
	UpdatedAt  int64
	Bump       uint8
}

func (o *Order) Clone() *Order {
	if o == nil {
		return nil
	}
	clone := *o
	return &clone
}

func checkLen(field, value string, max int) error {
	if len(value) > max {
		return wrap(ErrInvalidArgument, "%s exceeds %d bytes", field, max)
	}
	return nil
}

// SanitizeProduct validates field bounds and enum tags.
func SanitizeProduct(p *Product) error {
	if p == nil {
		return wrap(ErrInvalidArgument, "nil product")
	}
	if len(strings.TrimSpace(p.Name)) < productNameMinimum {
		return wrap(ErrInvalidArgument, "product name required")
	}
	for _, check := range []struct {
		field string
		value string
		max   int
	}{
		{"product name", p.Name, MaxProductNameLen},
		{"seller name", p.SellerName, MaxSellerNameLen},
		{"description", p.Description, MaxDescriptionLen},
		{"image url", p.ImageURL, MaxImageURLLen},
	} {
		if err := checkLen(check.field, check.value, check.max); err != nil {
			return err
		}
	}
	if !p.Category.Valid() || !p.Division.Valid() || !p.Stock.Valid() {
		return wrap(ErrInvalidArgument, "invalid product enum tag")
	}
	return nil
}

func SanitizeCart(c *Cart) error {
	if c == nil {
		return wrap(ErrInvalidArgument, "nil cart")
	}
	if err := checkLen("product name", c.ProductName, MaxProductNameLen); err != nil {
		return err
	}
	if err := checkLen("image url", c.ImageURL, MaxImageURLLen); err != nil {
		return err
	}
	if len(c.Amounts) > MaxListLen {
		return wrap(ErrListFull, "cart amounts exceed %d entries", MaxListLen)
	}
	if !c.Stock.Valid() {
		return wrap(ErrInvalidArgument, "invalid stock status %d", c.Stock)
	}
	return nil
}

func SanitizePayment(p *Payment) error {
	if p == nil {
		return wrap(ErrInvalidArgument, "nil payment")
	}
	if err := checkLen("tx signature", p.TxSignature, MaxTxSignatureLen); err != nil {
		return err
	}
	if !p.Method.Valid() || !p.Status.Valid() {
		return wrap(ErrInvalidArgument, "invalid payment enum tag")
	}
	return nil
}

func SanitizeEscrow(e *Escrow) error {
	if e == nil {
		return wrap(ErrInvalidArgument, "nil escrow")
	}
	if !e.Status.Valid() {
		return wrap(ErrInvalidArgument, "invalid escrow status %d", e.Status)
	}
	return nil
}

func SanitizeOrder(o *Order) error {
	if o == nil {
		return wrap(ErrInvalidArgument, "nil order")
	}
	if !o.Status.Valid() || !o.Tracking.Valid() {
		return wrap(ErrInvalidArgument, "invalid order enum tag")
	}
	return nil
}

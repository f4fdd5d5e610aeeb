package modules

import (
	"ecomledger/crypto"
	"ecomledger/native/commerce"
)

type ProductResult struct {
	Address     string `json:"address"`
	ProductID   string `json:"productId"`
	Name        string `json:"name"`
	Category    string `json:"category"`
	Division    string `json:"division"`
	Quantity    uint32 `json:"quantity"`
	Seller      string `json:"seller"`
	SellerName  string `json:"sellerName"`
	Description string `json:"description"`
	ImageURL    string `json:"imageUrl"`
	Price       uint64 `json:"price"`
	Rating      uint16 `json:"rating"`
	Stock       string `json:"stock"`
}

type ProductsListResult struct {
	Seller   string   `json:"seller"`
	Products []string `json:"products"`
}

type CartResult struct {
	Address     string   `json:"address"`
	ProductID   string   `json:"productId"`
	ProductName string   `json:"productName"`
	Quantity    uint32   `json:"quantity"`
	Seller      string   `json:"seller"`
	ImageURL    string   `json:"imageUrl"`
	Stock       string   `json:"stock"`
	Amounts     []uint64 `json:"amounts"`
}

type CartListResult struct {
	Buyer       string   `json:"buyer"`
	Carts       []string `json:"carts"`
	TotalAmount uint64   `json:"totalAmount"`
}

type CartUpdateResult struct {
	Cart     *CartResult     `json:"cart"`
	CartList *CartListResult `json:"cartList"`
}

type PaymentResult struct {
	Address     string  `json:"address"`
	PaymentID   string  `json:"paymentId"`
	Amount      uint64  `json:"amount"`
	Product     string  `json:"product"`
	Method      string  `json:"method"`
	Status      string  `json:"status"`
	Timestamp   int64   `json:"timestamp"`
	TxSignature *string `json:"txSignature,omitempty"`
}

type EscrowResult struct {
	Address     string `json:"address"`
	Owner       string `json:"owner"`
	Buyer       string `json:"buyer"`
	Seller      string `json:"seller"`
	ProductID   string `json:"productId"`
	PaymentID   string `json:"paymentId"`
	Payment     string `json:"payment"`
	Product     string `json:"product"`
	Vault       string `json:"vault"`
	Amount      uint64 `json:"amount"`
	ReleaseFund bool   `json:"releaseFund"`
	Status      string `json:"status"`
	Timestamp   int64  `json:"timestamp"`
	UpdatedAt   int64  `json:"updatedAt"`
}

type OrderResult struct {
	Address    string `json:"address"`
	OrderID    string `json:"orderId"`
	PaymentID  string `json:"paymentId"`
	Payment    string `json:"payment"`
	TrackingID string `json:"trackingId"`
	Status     string `json:"status"`
	Tracking   string `json:"tracking"`
	CreatedAt  int64  `json:"createdAt"`
	UpdatedAt  int64  `json:"updatedAt"`
}

// BalanceResult reports a custody balance as a decimal string.
type BalanceResult struct {
	Account   string `json:"account"`
	Authority string `json:"authority"`
	Balance   string `json:"balance"`
}

// HeadResult is the ledger commitment after the latest commit.
type HeadResult struct {
	Height uint64 `json:"height"`
	Root   string `json:"root"`
}

func handleStrings(refs []crypto.Handle) []string {
	out := make([]string, len(refs))
	for i, ref := range refs {
		out[i] = ref.String()
	}
	return out
}

func formatProduct(addr crypto.Handle, p *commerce.Product) *ProductResult {
	return &ProductResult{
		Address:     addr.String(),
		ProductID:   p.ProductID.String(),
		Name:        p.Name,
		Category:    p.Category.String(),
		Division:    p.Division.String(),
		Quantity:    p.Quantity,
		Seller:      p.Seller.String(),
		SellerName:  p.SellerName,
		Description: p.Description,
		ImageURL:    p.ImageURL,
		Price:       p.Price,
		Rating:      p.Rating,
		Stock:       p.Stock.String(),
	}
}

func formatCart(addr crypto.Handle, c *commerce.Cart) *CartResult {
	return &CartResult{
		Address:     addr.String(),
		ProductID:   c.ProductID.String(),
		ProductName: c.ProductName,
		Quantity:    c.Quantity,
		Seller:      c.Seller.String(),
		ImageURL:    c.ImageURL,
		Stock:       c.Stock.String(),
		Amounts:     append([]uint64{}, c.Amounts...),
	}
}

func formatCartList(buyer crypto.Handle, l *commerce.CartList) *CartListResult {
	return &CartListResult{
		Buyer:       buyer.String(),
		Carts:       handleStrings(l.Carts.List()),
		TotalAmount: l.TotalAmount,
	}
}

func formatPayment(addr crypto.Handle, p *commerce.Payment) *PaymentResult {
	result := &PaymentResult{
		Address:   addr.String(),
		PaymentID: p.PaymentID.String(),
		Amount:    p.Amount,
		Product:   p.Product.String(),
		Method:    p.Method.String(),
		Status:    p.Status.String(),
		Timestamp: p.Timestamp,
	}
	if p.TxSignature != "" {
		sig := p.TxSignature
		result.TxSignature = &sig
	}
	return result
}

func formatEscrow(addr crypto.Handle, e *commerce.Escrow) *EscrowResult {
	return &EscrowResult{
		Address:     addr.String(),
		Owner:       e.Owner.String(),
		Buyer:       e.Buyer.String(),
		Seller:      e.Seller.String(),
		ProductID:   e.ProductID.String(),
		PaymentID:   e.PaymentID.String(),
		Payment:     e.Payment.String(),
		Product:     e.Product.String(),
		Vault:       e.Vault.String(),
		Amount:      e.Amount,
		ReleaseFund: e.ReleaseFund,
		Status:      e.Status.String(),
		Timestamp:   e.Timestamp,
		UpdatedAt:   e.UpdatedAt,
	}
}

func formatOrder(addr crypto.Handle, o *commerce.Order) *OrderResult {
	return &OrderResult{
		Address:    addr.String(),
		OrderID:    o.OrderID.String(),
		PaymentID:  o.PaymentID.String(),
		Payment:    o.Payment.String(),
		TrackingID: o.TrackingID.String(),
		Status:     o.Status.String(),
		Tracking:   o.Tracking.String(),
		CreatedAt:  o.CreatedAt,
		UpdatedAt:  o.UpdatedAt,
	}
}

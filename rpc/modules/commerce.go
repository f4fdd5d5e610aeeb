package modules

import (
	"bytes"
	"context"
	"encoding/json"
	"strings"

	"ecomledger/core"
	"ecomledger/crypto"
	"ecomledger/native/commerce"
)

// CommerceModule exposes the ledger operations and record lookups over RPC.
// Mutating calls receive the signer recovered from the request envelope.
type CommerceModule struct {
	node *core.Node
}

func NewCommerceModule(node *core.Node) *CommerceModule {
	return &CommerceModule{node: node}
}

type createProductParams struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	Price       uint64 `json:"price"`
	Category    string `json:"category"`
	Division    string `json:"division"`
	SellerName  string `json:"sellerName"`
	ImageURL    string `json:"imageUrl"`
}

type addToCartParams struct {
	ProductName string        `json:"productName"`
	Quantity    uint32        `json:"quantity"`
	Seller      crypto.Handle `json:"seller"`
	ImageURL    string        `json:"imageUrl"`
	Amount      uint64        `json:"amount"`
}

type createPaymentParams struct {
	Amount      uint64        `json:"amount"`
	Product     crypto.Handle `json:"product"`
	Method      *string       `json:"method,omitempty"`
	TxSignature *string       `json:"txSignature,omitempty"`
}

type createEscrowParams struct {
	Buyer   crypto.Handle `json:"buyer"`
	Seller  crypto.Handle `json:"seller"`
	Payment crypto.Handle `json:"payment"`
	Product crypto.Handle `json:"product"`
	Amount  uint64        `json:"amount"`
}

type depositEscrowParams struct {
	Escrow crypto.Handle `json:"escrow"`
	Amount uint64        `json:"amount"`
}

type withdrawEscrowParams struct {
	Escrow crypto.Handle `json:"escrow"`
}

type createOrderParams struct {
	Payment    crypto.Handle `json:"payment"`
	TrackingID *commerce.ID  `json:"trackingId,omitempty"`
}

type addressParams struct {
	Address crypto.Handle `json:"address"`
}

type sellerParams struct {
	Seller crypto.Handle `json:"seller"`
}

type buyerParams struct {
	Buyer crypto.Handle `json:"buyer"`
}

type accountParams struct {
	Account crypto.Handle `json:"account"`
}

func decodeParams(raw json.RawMessage, out interface{}) *ModuleError {
	if len(raw) == 0 {
		return invalidParams("parameter object required", nil)
	}
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.DisallowUnknownFields()
	if err := dec.Decode(out); err != nil {
		return invalidParams("invalid parameter object", err.Error())
	}
	return nil
}

func (m *CommerceModule) ready() *ModuleError {
	if m == nil || m.node == nil {
		return errModuleOffline
	}
	return nil
}

func (m *CommerceModule) CreateProduct(ctx context.Context, signer crypto.Handle, raw json.RawMessage) (*ProductResult, *ModuleError) {
	if err := m.ready(); err != nil {
		return nil, err
	}
	var params createProductParams
	if err := decodeParams(raw, &params); err != nil {
		return nil, err
	}
	var (
		category commerce.Category
		division commerce.Division
		err      error
	)
	// Omitted enums fall back to the first variant.
	if strings.TrimSpace(params.Category) != "" {
		if category, err = commerce.ParseCategory(params.Category); err != nil {
			return nil, invalidParams(err.Error(), nil)
		}
	}
	if strings.TrimSpace(params.Division) != "" {
		if division, err = commerce.ParseDivision(params.Division); err != nil {
			return nil, invalidParams(err.Error(), nil)
		}
	}
	product, addr, err := m.node.CreateProduct(ctx, signer, commerce.ProductParams{
		Name:        params.Name,
		Description: params.Description,
		Price:       params.Price,
		Category:    category,
		Division:    division,
		SellerName:  params.SellerName,
		ImageURL:    params.ImageURL,
	})
	if err != nil {
		return nil, fromError(err)
	}
	return formatProduct(addr, product), nil
}

func (m *CommerceModule) AddToCart(ctx context.Context, signer crypto.Handle, raw json.RawMessage) (*CartUpdateResult, *ModuleError) {
	if err := m.ready(); err != nil {
		return nil, err
	}
	var params addToCartParams
	if err := decodeParams(raw, &params); err != nil {
		return nil, err
	}
	cart, list, err := m.node.AddToCart(ctx, signer, commerce.CartParams{
		ProductName: params.ProductName,
		Quantity:    params.Quantity,
		Seller:      params.Seller,
		ImageURL:    params.ImageURL,
		Amount:      params.Amount,
	})
	if err != nil {
		return nil, fromError(err)
	}
	addr, _ := commerce.CartAddress(signer, cart.ProductName)
	return &CartUpdateResult{Cart: formatCart(addr, cart), CartList: formatCartList(signer, list)}, nil
}

func (m *CommerceModule) CreatePayment(ctx context.Context, signer crypto.Handle, raw json.RawMessage) (*PaymentResult, *ModuleError) {
	if err := m.ready(); err != nil {
		return nil, err
	}
	var params createPaymentParams
	if err := decodeParams(raw, &params); err != nil {
		return nil, err
	}
	var method *commerce.PaymentMethod
	if params.Method != nil {
		parsed, err := commerce.ParsePaymentMethod(*params.Method)
		if err != nil {
			return nil, invalidParams(err.Error(), nil)
		}
		method = &parsed
	}
	payment, addr, err := m.node.CreatePayment(ctx, signer, params.Amount, params.Product, method, params.TxSignature)
	if err != nil {
		return nil, fromError(err)
	}
	return formatPayment(addr, payment), nil
}

func (m *CommerceModule) CreateEscrow(ctx context.Context, signer crypto.Handle, raw json.RawMessage) (*EscrowResult, *ModuleError) {
	if err := m.ready(); err != nil {
		return nil, err
	}
	var params createEscrowParams
	if err := decodeParams(raw, &params); err != nil {
		return nil, err
	}
	escrow, addr, err := m.node.CreateEscrow(ctx, signer, commerce.EscrowParams{
		Buyer:   params.Buyer,
		Seller:  params.Seller,
		Payment: params.Payment,
		Product: params.Product,
		Amount:  params.Amount,
	})
	if err != nil {
		return nil, fromError(err)
	}
	return formatEscrow(addr, escrow), nil
}

func (m *CommerceModule) DepositEscrow(ctx context.Context, signer crypto.Handle, raw json.RawMessage) (*EscrowResult, *ModuleError) {
	if err := m.ready(); err != nil {
		return nil, err
	}
	var params depositEscrowParams
	if err := decodeParams(raw, &params); err != nil {
		return nil, err
	}
	escrow, err := m.node.DepositEscrow(ctx, params.Escrow, signer, params.Amount)
	if err != nil {
		return nil, fromError(err)
	}
	return formatEscrow(params.Escrow, escrow), nil
}

// WithdrawEscrow may be submitted by any signer; the vault authority is the
// escrow itself and the destination is always the recorded seller.
func (m *CommerceModule) WithdrawEscrow(ctx context.Context, _ crypto.Handle, raw json.RawMessage) (*EscrowResult, *ModuleError) {
	if err := m.ready(); err != nil {
		return nil, err
	}
	var params withdrawEscrowParams
	if err := decodeParams(raw, &params); err != nil {
		return nil, err
	}
	escrow, err := m.node.WithdrawEscrow(ctx, params.Escrow)
	if err != nil {
		return nil, fromError(err)
	}
	return formatEscrow(params.Escrow, escrow), nil
}

func (m *CommerceModule) CreateOrder(ctx context.Context, signer crypto.Handle, raw json.RawMessage) (*OrderResult, *ModuleError) {
	if err := m.ready(); err != nil {
		return nil, err
	}
	var params createOrderParams
	if err := decodeParams(raw, &params); err != nil {
		return nil, err
	}
	order, addr, err := m.node.CreateOrder(ctx, signer, params.Payment, params.TrackingID)
	if err != nil {
		return nil, fromError(err)
	}
	return formatOrder(addr, order), nil
}

func (m *CommerceModule) GetProduct(raw json.RawMessage) (*ProductResult, *ModuleError) {
	if err := m.ready(); err != nil {
		return nil, err
	}
	var params addressParams
	if err := decodeParams(raw, &params); err != nil {
		return nil, err
	}
	product, err := m.node.Product(params.Address)
	if err != nil {
		return nil, fromError(err)
	}
	return formatProduct(params.Address, product), nil
}

func (m *CommerceModule) ListProducts(raw json.RawMessage) (*ProductsListResult, *ModuleError) {
	if err := m.ready(); err != nil {
		return nil, err
	}
	var params sellerParams
	if err := decodeParams(raw, &params); err != nil {
		return nil, err
	}
	refs, err := m.node.ListProducts(params.Seller)
	if err != nil {
		return nil, fromError(err)
	}
	return &ProductsListResult{Seller: params.Seller.String(), Products: handleStrings(refs)}, nil
}

func (m *CommerceModule) GetCart(raw json.RawMessage) (*CartResult, *ModuleError) {
	if err := m.ready(); err != nil {
		return nil, err
	}
	var params addressParams
	if err := decodeParams(raw, &params); err != nil {
		return nil, err
	}
	cart, err := m.node.Cart(params.Address)
	if err != nil {
		return nil, fromError(err)
	}
	return formatCart(params.Address, cart), nil
}

func (m *CommerceModule) GetCartList(raw json.RawMessage) (*CartListResult, *ModuleError) {
	if err := m.ready(); err != nil {
		return nil, err
	}
	var params buyerParams
	if err := decodeParams(raw, &params); err != nil {
		return nil, err
	}
	list, err := m.node.CartList(params.Buyer)
	if err != nil {
		return nil, fromError(err)
	}
	return formatCartList(params.Buyer, list), nil
}

func (m *CommerceModule) GetPayment(raw json.RawMessage) (*PaymentResult, *ModuleError) {
	if err := m.ready(); err != nil {
		return nil, err
	}
	var params addressParams
	if err := decodeParams(raw, &params); err != nil {
		return nil, err
	}
	payment, err := m.node.Payment(params.Address)
	if err != nil {
		return nil, fromError(err)
	}
	return formatPayment(params.Address, payment), nil
}

func (m *CommerceModule) GetEscrow(raw json.RawMessage) (*EscrowResult, *ModuleError) {
	if err := m.ready(); err != nil {
		return nil, err
	}
	var params addressParams
	if err := decodeParams(raw, &params); err != nil {
		return nil, err
	}
	escrow, err := m.node.Escrow(params.Address)
	if err != nil {
		return nil, fromError(err)
	}
	return formatEscrow(params.Address, escrow), nil
}

func (m *CommerceModule) GetOrder(raw json.RawMessage) (*OrderResult, *ModuleError) {
	if err := m.ready(); err != nil {
		return nil, err
	}
	var params addressParams
	if err := decodeParams(raw, &params); err != nil {
		return nil, err
	}
	order, err := m.node.Order(params.Address)
	if err != nil {
		return nil, fromError(err)
	}
	return formatOrder(params.Address, order), nil
}

func (m *CommerceModule) Balance(raw json.RawMessage) (*BalanceResult, *ModuleError) {
	if err := m.ready(); err != nil {
		return nil, err
	}
	var params accountParams
	if err := decodeParams(raw, &params); err != nil {
		return nil, err
	}
	account, err := m.node.Balance(params.Account)
	if err != nil {
		return nil, fromError(err)
	}
	return &BalanceResult{
		Account:   params.Account.String(),
		Authority: account.Authority.String(),
		Balance:   account.Balance.Dec(),
	}, nil
}

// Head takes no parameters.
func (m *CommerceModule) Head(json.RawMessage) (*HeadResult, *ModuleError) {
	if err := m.ready(); err != nil {
		return nil, err
	}
	head := m.node.Head()
	return &HeadResult{Height: head.Height, Root: head.Root.Hex()}, nil
}

package commerce

import (
	"strings"

	"ecomledger/crypto"
)

// CartParams describes one add-to-cart request.
type CartParams struct {
	ProductName string
	Quantity    uint32
	Seller      crypto.Handle
	ImageURL    string
	Amount      uint64
}

// AddToCart creates the buyer's cart line for a product on first use and
// appends to it afterwards. The buyer's cart list gains the cart reference
// once and its total grows by amount*quantity on every call.
func (e *Engine) AddToCart(buyer crypto.Handle, params CartParams) (*Cart, *CartList, error) {
	if err := e.ready(); err != nil {
		return nil, nil, err
	}
	name := strings.TrimSpace(params.ProductName)
	if params.Quantity == 0 {
		return nil, nil, wrap(ErrInvalidArgument, "quantity must be positive")
	}
	if params.Amount == 0 {
		return nil, nil, wrap(ErrInvalidPayment, "amount must be positive")
	}
	productAddr, _ := ProductAddress(params.Seller, name)
	product, err := e.loadProduct(productAddr)
	if err != nil {
		return nil, nil, err
	}

	cartAddr, cartBump := CartAddress(buyer, name)
	cart, exists, err := e.state.CartGet(cartAddr)
	if err != nil {
		return nil, nil, err
	}
	if exists && (cart.Seller != params.Seller || cart.ProductID != product.ProductID) {
		return nil, nil, wrap(ErrInvalidArgument, "cart %s holds %q from seller %s", cartAddr, name, cart.Seller)
	}
	if !exists {
		cart = &Cart{
			ProductID:   product.ProductID,
			ProductName: name,
			Seller:      params.Seller,
			ImageURL:    strings.TrimSpace(params.ImageURL),
			Stock:       product.Stock,
			Bump:        cartBump,
		}
	}
	if len(cart.Amounts) >= MaxListLen {
		return nil, nil, wrap(ErrListFull, "cart %s holds %d amounts", cartAddr, len(cart.Amounts))
	}
	if cart.Quantity > ^uint32(0)-params.Quantity {
		return nil, nil, wrap(ErrInvalidArgument, "cart quantity overflows")
	}
	cart.Quantity += params.Quantity
	cart.Amounts = append(cart.Amounts, params.Amount)
	if err := SanitizeCart(cart); err != nil {
		return nil, nil, err
	}

	listAddr, listBump := CartListAddress(buyer)
	list, ok, err := e.state.CartListGet(listAddr)
	if err != nil {
		return nil, nil, err
	}
	if !ok {
		list = &CartList{Bump: listBump}
	}
	if !list.Carts.Contains(cartAddr) {
		if err := list.Carts.Append(cartAddr); err != nil {
			return nil, nil, err
		}
	}
	if err := list.AddAmount(params.Amount, params.Quantity); err != nil {
		return nil, nil, err
	}

	if err := e.state.CartPut(cartAddr, cart); err != nil {
		return nil, nil, err
	}
	if err := e.state.CartListPut(listAddr, list); err != nil {
		return nil, nil, err
	}
	e.emit(NewCartUpdatedEvent(cartAddr, buyer, cart, list.TotalAmount))
	return cart.Clone(), list.Clone(), nil
}

// CartList returns the buyer's cart list, or an empty list when the buyer has
// never added to a cart.
func (e *Engine) CartList(buyer crypto.Handle) (*CartList, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}
	addr, bump := CartListAddress(buyer)
	list, ok, err := e.state.CartListGet(addr)
	if err != nil {
		return nil, err
	}
	if !ok {
		return &CartList{Bump: bump}, nil
	}
	return list, nil
}

// Cart returns the cart stored at addr.
func (e *Engine) Cart(addr crypto.Handle) (*Cart, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}
	cart, ok, err := e.state.CartGet(addr)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, wrap(ErrAccountNotInitialized, "cart %s", addr)
	}
	return cart, nil
}

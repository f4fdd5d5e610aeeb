package commerce

import (
	"strings"

	"ecomledger/crypto"
)

// ProductParams describes a new listing.
type ProductParams struct {
	Name        string
	Description string
	Price       uint64
	Category    Category
	Division    Division
	SellerName  string
	ImageURL    string
}

// CreateProduct publishes a product under the seller's handle and appends it
// to the seller's products list, creating the list on first use. A full list
// aborts the whole operation.
func (e *Engine) CreateProduct(seller crypto.Handle, params ProductParams) (*Product, crypto.Handle, error) {
	if err := e.ready(); err != nil {
		return nil, crypto.Handle{}, err
	}
	name := strings.TrimSpace(params.Name)
	addr, bump := ProductAddress(seller, name)
	if _, exists, err := e.state.ProductGet(addr); err != nil {
		return nil, addr, err
	} else if exists {
		return nil, addr, wrap(ErrAccountAlreadyInitialized, "product %q already listed by %s", name, seller)
	}
	now := e.now()
	id, err := GenerateID(seller, now)
	if err != nil {
		return nil, addr, err
	}
	product := &Product{
		ProductID:   id,
		Name:        name,
		Category:    params.Category,
		Division:    params.Division,
		Quantity:    DefaultProductQty,
		Seller:      seller,
		SellerName:  strings.TrimSpace(params.SellerName),
		Description: params.Description,
		ImageURL:    strings.TrimSpace(params.ImageURL),
		Price:       params.Price,
		Stock:       StockInStock,
		Bump:        bump,
	}
	if err := SanitizeProduct(product); err != nil {
		return nil, addr, err
	}

	listAddr, listBump := ProductsListAddress(seller)
	list, ok, err := e.state.ProductsListGet(listAddr)
	if err != nil {
		return nil, addr, err
	}
	if !ok {
		list = &ProductsList{Bump: listBump}
	}
	if err := list.Products.Append(addr); err != nil {
		return nil, addr, err
	}

	if err := e.state.ProductPut(addr, product); err != nil {
		return nil, addr, err
	}
	if err := e.state.ProductsListPut(listAddr, list); err != nil {
		return nil, addr, err
	}
	e.emit(NewProductCreatedEvent(addr, product))
	return product.Clone(), addr, nil
}

// ListProducts returns the seller's product addresses in listing order. A
// seller without products has an empty list.
func (e *Engine) ListProducts(seller crypto.Handle) ([]crypto.Handle, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}
	addr, _ := ProductsListAddress(seller)
	list, ok, err := e.state.ProductsListGet(addr)
	if err != nil {
		return nil, err
	}
	if !ok {
		return []crypto.Handle{}, nil
	}
	return list.Products.List(), nil
}

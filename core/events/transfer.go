package events

import (
	"strconv"

	"ecomledger/core/types"
	"ecomledger/crypto"
)

const (
	// TypeTransfer is emitted for every custody balance movement.
	TypeTransfer = "custody.transfer"
	// TypeMint is emitted for genesis allocations.
	TypeMint = "custody.mint"
)

type Transfer struct {
	From      crypto.Handle
	To        crypto.Handle
	Authority crypto.Handle
	Amount    uint64
}

func (Transfer) EventType() string { return TypeTransfer }

func (e Transfer) Event() *types.Event {
	return &types.Event{Type: TypeTransfer, Attributes: map[string]string{
		"from":      e.From.String(),
		"to":        e.To.String(),
		"authority": e.Authority.String(),
		"amount":    strconv.FormatUint(e.Amount, 10),
	}}
}

type Mint struct {
	Account crypto.Handle
	Amount  uint64
}

func (Mint) EventType() string { return TypeMint }

func (e Mint) Event() *types.Event {
	return &types.Event{Type: TypeMint, Attributes: map[string]string{
		"account": e.Account.String(),
		"amount":  strconv.FormatUint(e.Amount, 10),
	}}
}

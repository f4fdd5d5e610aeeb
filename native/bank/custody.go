package bank

import (
	"errors"
	"fmt"

	"github.com/holiman/uint256"

	"ecomledger/core/events"
	"ecomledger/crypto"
	"ecomledger/native/commerce"
)

var (
	// ErrUnauthorized is returned when a transfer is signed by an authority
	// other than the source account's.
	ErrUnauthorized = errors.New("custody: unauthorised transfer")
	ErrZeroAmount   = errors.New("custody: amount must be positive")
	ErrNilStore     = errors.New("custody: store not configured")
)

// Account is a custody balance controlled by a single authority. Actor
// accounts are implicit: an account that was never opened is empty and is
// controlled by its own handle.
type Account struct {
	Authority crypto.Handle
	Balance   *uint256.Int
}

func (a *Account) Clone() *Account {
	if a == nil {
		return nil
	}
	out := &Account{Authority: a.Authority, Balance: new(uint256.Int)}
	if a.Balance != nil {
		out.Balance.Set(a.Balance)
	}
	return out
}

type store interface {
	AccountGet(account crypto.Handle) (*Account, bool, error)
	AccountPut(account crypto.Handle, acc *Account) error
}

// Ledger moves value between custody accounts. It satisfies
// commerce.CustodyLedger.
type Ledger struct {
	store   store
	emitter events.Emitter
}

func NewLedger(s store) *Ledger {
	return &Ledger{store: s, emitter: events.NoopEmitter{}}
}

// SetEmitter configures the event emitter. Passing nil resets it to a no-op.
func (l *Ledger) SetEmitter(emitter events.Emitter) {
	if emitter == nil {
		l.emitter = events.NoopEmitter{}
		return
	}
	l.emitter = emitter
}

func (l *Ledger) load(account crypto.Handle) (*Account, error) {
	if l == nil || l.store == nil {
		return nil, ErrNilStore
	}
	acc, ok, err := l.store.AccountGet(account)
	if err != nil {
		return nil, err
	}
	if !ok {
		return &Account{Authority: account, Balance: new(uint256.Int)}, nil
	}
	if acc.Balance == nil {
		acc.Balance = new(uint256.Int)
	}
	return acc, nil
}

// Open creates account under authority. Reopening with the same authority
// is a no-op; any other authority is rejected.
func (l *Ledger) Open(account, authority crypto.Handle) error {
	if l == nil || l.store == nil {
		return ErrNilStore
	}
	existing, ok, err := l.store.AccountGet(account)
	if err != nil {
		return err
	}
	if ok {
		if existing.Authority != authority {
			return fmt.Errorf("%w: account %s already controlled by %s", ErrUnauthorized, account, existing.Authority)
		}
		return nil
	}
	return l.store.AccountPut(account, &Account{Authority: authority, Balance: new(uint256.Int)})
}

// Balance returns the account's balance; unknown accounts hold zero.
func (l *Ledger) Balance(account crypto.Handle) (*uint256.Int, error) {
	acc, err := l.load(account)
	if err != nil {
		return nil, err
	}
	return acc.Balance, nil
}

// Account returns the account state, materialising implicit accounts.
func (l *Ledger) Account(account crypto.Handle) (*Account, error) {
	return l.load(account)
}

// Mint credits amount to account. Only genesis allocation uses it.
func (l *Ledger) Mint(account crypto.Handle, amount uint64) error {
	if amount == 0 {
		return ErrZeroAmount
	}
	acc, err := l.load(account)
	if err != nil {
		return err
	}
	sum, overflow := new(uint256.Int).AddOverflow(acc.Balance, uint256.NewInt(amount))
	if overflow {
		return fmt.Errorf("custody: balance overflow for %s", account)
	}
	acc.Balance = sum
	if err := l.store.AccountPut(account, acc); err != nil {
		return err
	}
	l.emitter.Emit(events.Mint{Account: account, Amount: amount})
	return nil
}

// Transfer moves amount from one account to another. authority must control
// the source account. Either the full amount moves or nothing changes.
func (l *Ledger) Transfer(from, to, authority crypto.Handle, amount uint64) error {
	if amount == 0 {
		return ErrZeroAmount
	}
	if from == to {
		return fmt.Errorf("custody: source and destination are both %s", from)
	}
	src, err := l.load(from)
	if err != nil {
		return err
	}
	if src.Authority != authority {
		return fmt.Errorf("%w: %s does not control %s", ErrUnauthorized, authority, from)
	}
	dst, err := l.load(to)
	if err != nil {
		return err
	}
	value := uint256.NewInt(amount)
	if src.Balance.Lt(value) {
		return fmt.Errorf("%w: %s holds %s, need %d", commerce.ErrInsufficientFunds, from, src.Balance.Dec(), amount)
	}
	credited, overflow := new(uint256.Int).AddOverflow(dst.Balance, value)
	if overflow {
		return fmt.Errorf("custody: balance overflow for %s", to)
	}
	src.Balance = new(uint256.Int).Sub(src.Balance, value)
	dst.Balance = credited
	if err := l.store.AccountPut(from, src); err != nil {
		return err
	}
	if err := l.store.AccountPut(to, dst); err != nil {
		return err
	}
	l.emitter.Emit(events.Transfer{From: from, To: to, Authority: authority, Amount: amount})
	return nil
}

package bank

import (
	"errors"
	"testing"

	"ecomledger/crypto"
	"ecomledger/native/commerce"
)

type memStore struct {
	accounts map[crypto.Handle]*Account
}

func newMemStore() *memStore {
	return &memStore{accounts: make(map[crypto.Handle]*Account)}
}

func (m *memStore) AccountGet(account crypto.Handle) (*Account, bool, error) {
	acc, ok := m.accounts[account]
	return acc.Clone(), ok, nil
}

func (m *memStore) AccountPut(account crypto.Handle, acc *Account) error {
	m.accounts[account] = acc.Clone()
	return nil
}

func handle(b byte) crypto.Handle {
	var h crypto.Handle
	for i := range h {
		h[i] = b
	}
	return h
}

func TestTransferMovesFullAmount(t *testing.T) {
	store := newMemStore()
	ledger := NewLedger(store)
	alice, bob := handle(1), handle(2)
	if err := ledger.Mint(alice, 100); err != nil {
		t.Fatalf("mint: %v", err)
	}
	if err := ledger.Transfer(alice, bob, alice, 40); err != nil {
		t.Fatalf("transfer: %v", err)
	}
	aliceBal, _ := ledger.Balance(alice)
	bobBal, _ := ledger.Balance(bob)
	if aliceBal.Uint64() != 60 || bobBal.Uint64() != 40 {
		t.Fatalf("unexpected balances: alice=%s bob=%s", aliceBal, bobBal)
	}
	acc, err := ledger.Account(bob)
	if err != nil {
		t.Fatalf("account: %v", err)
	}
	if acc.Authority != bob {
		t.Fatalf("implicit account must be self-controlled")
	}
}

func TestTransferInsufficientFundsLeavesBalances(t *testing.T) {
	store := newMemStore()
	ledger := NewLedger(store)
	alice, bob := handle(1), handle(2)
	if err := ledger.Mint(alice, 10); err != nil {
		t.Fatalf("mint: %v", err)
	}
	err := ledger.Transfer(alice, bob, alice, 11)
	if !errors.Is(err, commerce.ErrInsufficientFunds) {
		t.Fatalf("expected InsufficientFunds, got %v", err)
	}
	bal, _ := ledger.Balance(alice)
	if bal.Uint64() != 10 {
		t.Fatalf("balance changed: %s", bal)
	}
	if _, ok := store.accounts[bob]; ok {
		t.Fatalf("destination must not be created on failure")
	}
}

func TestVaultRequiresEscrowAuthority(t *testing.T) {
	ledger := NewLedger(newMemStore())
	buyer, seller, escrow, vault := handle(1), handle(2), handle(3), handle(4)
	if err := ledger.Open(vault, escrow); err != nil {
		t.Fatalf("open: %v", err)
	}
	if err := ledger.Open(vault, escrow); err != nil {
		t.Fatalf("reopen with same authority: %v", err)
	}
	if err := ledger.Open(vault, buyer); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("expected ErrUnauthorized on foreign reopen, got %v", err)
	}
	if err := ledger.Mint(buyer, 50); err != nil {
		t.Fatalf("mint: %v", err)
	}
	if err := ledger.Transfer(buyer, vault, buyer, 50); err != nil {
		t.Fatalf("deposit: %v", err)
	}
	if err := ledger.Transfer(vault, seller, seller, 50); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("expected ErrUnauthorized, got %v", err)
	}
	if err := ledger.Transfer(vault, seller, escrow, 50); err != nil {
		t.Fatalf("release: %v", err)
	}
	sellerBal, _ := ledger.Balance(seller)
	if sellerBal.Uint64() != 50 {
		t.Fatalf("seller balance %s", sellerBal)
	}
}

func TestTransferRejectsZeroAndSelf(t *testing.T) {
	ledger := NewLedger(newMemStore())
	a := handle(9)
	if err := ledger.Transfer(a, handle(8), a, 0); !errors.Is(err, ErrZeroAmount) {
		t.Fatalf("expected ErrZeroAmount, got %v", err)
	}
	if err := ledger.Transfer(a, a, a, 1); err == nil {
		t.Fatalf("expected self-transfer rejection")
	}
	if err := NewLedger(nil).Open(a, a); !errors.Is(err, ErrNilStore) {
		t.Fatalf("expected ErrNilStore, got %v", err)
	}
}

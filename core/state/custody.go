package state

import (
	"fmt"

	"github.com/holiman/uint256"

	"ecomledger/crypto"
	"ecomledger/native/bank"
)

var custodyPrefix = []byte("custody/account/")

func custodyKey(account crypto.Handle) []byte {
	buf := make([]byte, len(custodyPrefix)+crypto.HandleLength)
	copy(buf, custodyPrefix)
	copy(buf[len(custodyPrefix):], account[:])
	return buf
}

type storedAccount struct {
	Authority crypto.Handle
	Balance   [32]byte
}

// AccountGet loads a custody account.
func (t *Txn) AccountGet(account crypto.Handle) (*bank.Account, bool, error) {
	data, ok, err := t.get(custodyKey(account))
	if err != nil || !ok {
		return nil, ok, err
	}
	var stored storedAccount
	if err := decodeRecord(account, kindCustody, data, &stored); err != nil {
		return nil, false, err
	}
	return &bank.Account{
		Authority: stored.Authority,
		Balance:   new(uint256.Int).SetBytes32(stored.Balance[:]),
	}, true, nil
}

// AccountPut stores a custody account.
func (t *Txn) AccountPut(account crypto.Handle, acc *bank.Account) error {
	if acc == nil {
		return fmt.Errorf("state: nil custody account")
	}
	stored := storedAccount{Authority: acc.Authority}
	if acc.Balance != nil {
		stored.Balance = acc.Balance.Bytes32()
	}
	encoded, err := encodeRecord(kindCustody, &stored)
	if err != nil {
		return err
	}
	return t.put(custodyKey(account), encoded)
}

package commerce

import (
	"errors"
	"fmt"
)

// ErrorKind is the stable symbolic name carried by every commerce error.
type ErrorKind uint8

const (
	KindUnknown ErrorKind = iota
	KindInvalidPayment
	KindInsufficientFunds
	KindAccountNotInitialized
	KindAccountAlreadyInitialized
	KindFundsNotFound
	KindEscrowError
	KindInvalidIdentifier
	KindListFull
	KindInvalidArgument

	// Inherited from the broader marketplace program template. Nothing in
	// this package returns them; they exist so clients share one taxonomy.
	KindDAONotActive
	KindProposalNotFound
	KindProposalNotActive
	KindProposalAlreadyExecuted
	KindProposalExpired
	KindProposalVotingThresholdNotMet
	KindProposalAlreadyCanceled
	KindProposalNotCancelable
	KindMemberNotFound
	KindMemberAlreadyExists
	KindInsufficientStake
	KindStakeLocked
	KindTreasuryWithdrawalFailed
	KindTreasuryDepositFailed
	KindAlreadyVoted
	KindVotingNotAllowed
	KindMemberNotActive
	KindCannotDelegateToSelf
	KindAlreadyDelegated
	KindInvalidOrganization
)

var kindNames = map[ErrorKind]string{
	KindUnknown:                       "Unknown",
	KindInvalidPayment:                "InvalidPayment",
	KindInsufficientFunds:             "InsufficientFunds",
	KindAccountNotInitialized:         "AccountNotInitialized",
	KindAccountAlreadyInitialized:     "AccountAlreadyInitialized",
	KindFundsNotFound:                 "FundsNotFound",
	KindEscrowError:                   "EscrowError",
	KindInvalidIdentifier:             "InvalidIdentifier",
	KindListFull:                      "ListFull",
	KindInvalidArgument:               "InvalidArgument",
	KindDAONotActive:                  "DAONotActive",
	KindProposalNotFound:              "ProposalNotFound",
	KindProposalNotActive:             "ProposalNotActive",
	KindProposalAlreadyExecuted:       "ProposalAlreadyExecuted",
	KindProposalExpired:               "ProposalExpired",
	KindProposalVotingThresholdNotMet: "ProposalVotingThresholdNotMet",
	KindProposalAlreadyCanceled:       "ProposalAlreadyCanceled",
	KindProposalNotCancelable:         "ProposalNotCancelable",
	KindMemberNotFound:                "MemberNotFound",
	KindMemberAlreadyExists:           "MemberAlreadyExists",
	KindInsufficientStake:             "InsufficientStake",
	KindStakeLocked:                   "StakeLocked",
	KindTreasuryWithdrawalFailed:      "TreasuryWithdrawalFailed",
	KindTreasuryDepositFailed:         "TreasuryDepositFailed",
	KindAlreadyVoted:                  "AlreadyVoted",
	KindVotingNotAllowed:              "VotingNotAllowed",
	KindMemberNotActive:               "MemberNotActive",
	KindCannotDelegateToSelf:          "CannotDelegateToSelf",
	KindAlreadyDelegated:              "AlreadyDelegated",
	KindInvalidOrganization:           "InvalidOrganization",
}

func (k ErrorKind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return fmt.Sprintf("ErrorKind(%d)", uint8(k))
}

// Error pairs a symbolic kind with a human-readable message.
type Error struct {
	Kind ErrorKind
	Msg  string
}

func (e *Error) Error() string {
	if e.Msg == "" {
		return e.Kind.String()
	}
	return e.Kind.String() + ": " + e.Msg
}

// Is matches any *Error with the same kind so wrapped sentinels compare
// equal regardless of message.
func (e *Error) Is(target error) bool {
	var other *Error
	if !errors.As(target, &other) {
		return false
	}
	return other.Kind == e.Kind
}

var (
	ErrInvalidPayment            = &Error{Kind: KindInvalidPayment, Msg: "payment details are invalid"}
	ErrInsufficientFunds         = &Error{Kind: KindInsufficientFunds, Msg: "not enough funds to complete the transaction"}
	ErrAccountNotInitialized     = &Error{Kind: KindAccountNotInitialized, Msg: "the account has not been initialized"}
	ErrAccountAlreadyInitialized = &Error{Kind: KindAccountAlreadyInitialized, Msg: "the account is already initialized"}
	// ErrFundsNotFound is returned once escrowed funds have already been
	// released to the seller. The name is historical.
	ErrFundsNotFound     = &Error{Kind: KindFundsNotFound, Msg: "escrowed funds already released"}
	ErrEscrowError       = &Error{Kind: KindEscrowError, Msg: "escrow precondition failed"}
	ErrInvalidIdentifier = &Error{Kind: KindInvalidIdentifier, Msg: "identifier digest too short"}
	ErrListFull          = &Error{Kind: KindListFull, Msg: "aggregate list capacity exceeded"}
	ErrInvalidArgument   = &Error{Kind: KindInvalidArgument, Msg: "invalid argument"}
)

func wrap(kind *Error, format string, args ...any) error {
	return fmt.Errorf("%w: %s", kind, fmt.Sprintf(format, args...))
}

// KindOf extracts the commerce kind carried by err, or KindUnknown.
func KindOf(err error) ErrorKind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindUnknown
}

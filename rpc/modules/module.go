package modules

import (
	"context"
	"errors"
	"net/http"

	"ecomledger/core/state"
	"ecomledger/native/bank"
	"ecomledger/native/commerce"
)

const (
	codeInvalidParams = -32602
	codeServerError   = -32000
	codeUnauthorized  = -32001
	codeConflict      = -32030
	codeCancelled     = -32031
)

// Commerce error kinds map onto a fixed block of codes so clients can switch
// on the number without parsing messages.
const (
	CodeInvalidPayment            = -32040
	CodeInsufficientFunds         = -32041
	CodeAccountNotInitialized     = -32042
	CodeAccountAlreadyInitialized = -32043
	CodeFundsNotFound             = -32044
	CodeEscrowError               = -32045
	CodeInvalidIdentifier         = -32046
	CodeListFull                  = -32047
	CodeInvalidArgument           = -32048
	CodeCommerceOther             = -32049
)

type ModuleError struct {
	HTTPStatus int
	Code       int
	Message    string
	Data       interface{}
}

func (e *ModuleError) Error() string {
	if e == nil {
		return ""
	}
	return e.Message
}

var errModuleOffline = &ModuleError{HTTPStatus: http.StatusServiceUnavailable, Code: codeServerError, Message: "commerce module not available"}

func invalidParams(message string, data interface{}) *ModuleError {
	return &ModuleError{HTTPStatus: http.StatusBadRequest, Code: codeInvalidParams, Message: message, Data: data}
}

// CodeForKind returns the JSON-RPC code of a commerce error kind.
func CodeForKind(kind commerce.ErrorKind) int {
	switch kind {
	case commerce.KindInvalidPayment:
		return CodeInvalidPayment
	case commerce.KindInsufficientFunds:
		return CodeInsufficientFunds
	case commerce.KindAccountNotInitialized:
		return CodeAccountNotInitialized
	case commerce.KindAccountAlreadyInitialized:
		return CodeAccountAlreadyInitialized
	case commerce.KindFundsNotFound:
		return CodeFundsNotFound
	case commerce.KindEscrowError:
		return CodeEscrowError
	case commerce.KindInvalidIdentifier:
		return CodeInvalidIdentifier
	case commerce.KindListFull:
		return CodeListFull
	case commerce.KindInvalidArgument:
		return CodeInvalidArgument
	default:
		return CodeCommerceOther
	}
}

// fromError translates a node error into its wire form. Commerce errors carry
// the symbolic kind as message and the full text as data.
func fromError(err error) *ModuleError {
	if err == nil {
		return nil
	}
	switch {
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return &ModuleError{HTTPStatus: http.StatusRequestTimeout, Code: codeCancelled, Message: "request cancelled", Data: err.Error()}
	case errors.Is(err, state.ErrWriteConflict):
		return &ModuleError{HTTPStatus: http.StatusConflict, Code: codeConflict, Message: "write conflict, retry the request", Data: err.Error()}
	case errors.Is(err, bank.ErrUnauthorized):
		return &ModuleError{HTTPStatus: http.StatusForbidden, Code: codeUnauthorized, Message: "custody authority mismatch", Data: err.Error()}
	case errors.Is(err, bank.ErrZeroAmount):
		return invalidParams("amount must be greater than zero", err.Error())
	}
	if kind := commerce.KindOf(err); kind != commerce.KindUnknown {
		status := http.StatusUnprocessableEntity
		if kind == commerce.KindAccountNotInitialized {
			status = http.StatusNotFound
		}
		return &ModuleError{HTTPStatus: status, Code: CodeForKind(kind), Message: kind.String(), Data: err.Error()}
	}
	return &ModuleError{HTTPStatus: http.StatusInternalServerError, Code: codeServerError, Message: err.Error()}
}

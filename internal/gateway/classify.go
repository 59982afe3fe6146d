// Package gateway wraps every outbound node call with classification,
// retry, backoff and a total retry budget.
package gateway

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/url"
	"syscall"

	"github.com/ethereum/go-ethereum/rpc"
)

// Error codes attached to node and contract failures.
const (
	CodeNetworkError       = "NETWORK_ERROR"
	CodeConnReset          = "ECONNRESET"
	CodeConnRefused        = "ECONNREFUSED"
	CodeTimeout            = "TIMEOUT"
	CodeServerError        = "SERVER_ERROR"
	CodeUnknown            = "UNKNOWN_ERROR"
	CodeInvalidArgument    = "INVALID_ARGUMENT"
	CodeMissingArgument    = "MISSING_ARGUMENT"
	CodeUnexpectedArgument = "UNEXPECTED_ARGUMENT"
	CodeNotImplemented     = "NOT_IMPLEMENTED"
	CodeCallException      = "CALL_EXCEPTION"
	CodeBadData            = "BAD_DATA"
)

// Class selects how a failed call is retried.
type Class int

const (
	ClassDefault Class = iota
	ClassQuick
	ClassPermanent
)

func (c Class) String() string {
	switch c {
	case ClassQuick:
		return "quick"
	case ClassPermanent:
		return "permanent"
	default:
		return "default"
	}
}

var quickRetryCodes = map[string]struct{}{
	CodeNetworkError: {},
	CodeConnReset:    {},
	CodeConnRefused:  {},
	CodeTimeout:      {},
}

var permanentContractCodes = map[string]struct{}{
	CodeInvalidArgument:    {},
	CodeMissingArgument:    {},
	CodeUnexpectedArgument: {},
	CodeNotImplemented:     {},
	CodeCallException:      {},
	CodeBadData:            {},
}

// CodedError attaches an explicit code to a transport failure.
type CodedError struct {
	Code string
	Err  error
}

func (e *CodedError) Error() string {
	return fmt.Sprintf("%s: %v", e.Code, e.Err)
}

func (e *CodedError) Unwrap() error { return e.Err }

// ContractError is a contract-read failure detected before or after the
// node round trip (bad arguments, revert, undecodable result).
type ContractError struct {
	Code   string
	Method string
	Err    error
}

func (e *ContractError) Error() string {
	return fmt.Sprintf("contract call %s: %s: %v", e.Method, e.Code, e.Err)
}

func (e *ContractError) Unwrap() error { return e.Err }

// Code derives the error code of a failed call.
func Code(err error) string {
	if err == nil {
		return ""
	}
	var ce *ContractError
	if errors.As(err, &ce) {
		return ce.Code
	}
	var coded *CodedError
	if errors.As(err, &coded) {
		return coded.Code
	}
	switch {
	case errors.Is(err, syscall.ECONNRESET):
		return CodeConnReset
	case errors.Is(err, syscall.ECONNREFUSED):
		return CodeConnRefused
	case errors.Is(err, context.DeadlineExceeded):
		return CodeTimeout
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		if netErr.Timeout() {
			return CodeTimeout
		}
		return CodeNetworkError
	}
	var urlErr *url.Error
	if errors.As(err, &urlErr) || errors.Is(err, io.ErrUnexpectedEOF) || errors.Is(err, io.EOF) {
		return CodeNetworkError
	}
	var httpErr rpc.HTTPError
	if errors.As(err, &httpErr) {
		return CodeServerError
	}
	var rpcErr rpc.Error
	if errors.As(err, &rpcErr) {
		return CodeServerError
	}
	return CodeUnknown
}

// Classify maps an error to its retry class.
func Classify(err error) Class {
	if IsPermanent(err) {
		return ClassPermanent
	}
	if _, ok := quickRetryCodes[Code(err)]; ok {
		return ClassQuick
	}
	return ClassDefault
}

// IsPermanent reports whether err is a contract-read failure that a retry
// cannot fix.
func IsPermanent(err error) bool {
	var ce *ContractError
	if !errors.As(err, &ce) {
		return false
	}
	_, ok := permanentContractCodes[ce.Code]
	return ok
}

package gateway

import (
	"context"
	"errors"
	"fmt"
	"net"
	"syscall"
	"testing"

	"github.com/ethereum/go-ethereum/rpc"
)

type jsonRPCError struct {
	code int
	msg  string
}

func (e *jsonRPCError) Error() string  { return e.msg }
func (e *jsonRPCError) ErrorCode() int { return e.code }

func TestClassify(t *testing.T) {
	tests := []struct {
		name      string
		err       error
		wantCode  string
		wantClass Class
	}{
		{"conn reset", fmt.Errorf("post: %w", &net.OpError{Op: "read", Net: "tcp", Err: syscall.ECONNRESET}), CodeConnReset, ClassQuick},
		{"conn refused", &net.OpError{Op: "dial", Net: "tcp", Err: syscall.ECONNREFUSED}, CodeConnRefused, ClassQuick},
		{"deadline", fmt.Errorf("call: %w", context.DeadlineExceeded), CodeTimeout, ClassQuick},
		{"coded network", &CodedError{Code: CodeNetworkError, Err: errors.New("socket hang up")}, CodeNetworkError, ClassQuick},
		{"dns", &net.DNSError{Err: "no such host", Name: "node"}, CodeNetworkError, ClassQuick},
		{"http 503", rpc.HTTPError{StatusCode: 503, Status: "503 Service Unavailable"}, CodeServerError, ClassDefault},
		{"json-rpc error", &jsonRPCError{code: -32000, msg: "header not found"}, CodeServerError, ClassDefault},
		{"plain", errors.New("boom"), CodeUnknown, ClassDefault},
		{"revert", &ContractError{Code: CodeCallException, Method: "symbol", Err: errors.New("execution reverted")}, CodeCallException, ClassPermanent},
		{"bad data", fmt.Errorf("read: %w", &ContractError{Code: CodeBadData, Method: "name", Err: errors.New("x")}), CodeBadData, ClassPermanent},
		{"not implemented", &ContractError{Code: CodeNotImplemented, Method: "foo", Err: errors.New("x")}, CodeNotImplemented, ClassPermanent},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Code(tt.err); got != tt.wantCode {
				t.Fatalf("Code() = %s, want %s", got, tt.wantCode)
			}
			if got := Classify(tt.err); got != tt.wantClass {
				t.Fatalf("Classify() = %s, want %s", got, tt.wantClass)
			}
		})
	}
}

func TestCodeNil(t *testing.T) {
	if Code(nil) != "" {
		t.Fatalf("nil error should have no code")
	}
}

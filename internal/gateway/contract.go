package gateway

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/rpc"
)

// ContractCaller executes a read-only contract call at a block (nil means
// latest).
type ContractCaller interface {
	Call(ctx context.Context, to common.Address, data []byte, blockNumber *uint64) (hexutil.Bytes, error)
}

// RetryableContract exposes view methods of one contract through the
// exponential-backoff retry loop.
type RetryableContract struct {
	address common.Address
	abi     *abi.ABI
	caller  ContractCaller
	retry   *Retrier
}

// NewRetryableContract binds a contract address to its interface.
func NewRetryableContract(address common.Address, contractABI *abi.ABI, caller ContractCaller, retry *Retrier) *RetryableContract {
	return &RetryableContract{
		address: address,
		abi:     contractABI,
		caller:  caller,
		retry:   retry,
	}
}

// Address returns the bound contract address.
func (c *RetryableContract) Address() common.Address { return c.address }

// Read calls a view method and returns its unpacked outputs.
func (c *RetryableContract) Read(ctx context.Context, method string, blockNumber *uint64, args ...any) ([]any, error) {
	return CallWithBackoff(ctx, c.retry, method, func(ctx context.Context) ([]any, error) {
		return c.read(ctx, method, blockNumber, args...)
	})
}

func (c *RetryableContract) read(ctx context.Context, method string, blockNumber *uint64, args ...any) ([]any, error) {
	m, ok := c.abi.Methods[method]
	if !ok {
		return nil, &ContractError{Code: CodeNotImplemented, Method: method, Err: fmt.Errorf("method not in interface")}
	}
	data, err := c.abi.Pack(method, args...)
	if err != nil {
		code := CodeInvalidArgument
		switch {
		case len(args) < len(m.Inputs):
			code = CodeMissingArgument
		case len(args) > len(m.Inputs):
			code = CodeUnexpectedArgument
		}
		return nil, &ContractError{Code: code, Method: method, Err: err}
	}

	out, err := c.caller.Call(ctx, c.address, data, blockNumber)
	if err != nil {
		if isRevert(err) {
			return nil, &ContractError{Code: CodeCallException, Method: method, Err: err}
		}
		return nil, err
	}
	if len(out) == 0 {
		return nil, &ContractError{Code: CodeBadData, Method: method, Err: errors.New("empty call result")}
	}
	values, err := c.abi.Unpack(method, out)
	if err != nil {
		return nil, &ContractError{Code: CodeBadData, Method: method, Err: err}
	}
	if len(values) == 0 {
		return nil, &ContractError{Code: CodeBadData, Method: method, Err: errors.New("no outputs")}
	}
	return values, nil
}

// ReadString reads a method returning a single string.
func (c *RetryableContract) ReadString(ctx context.Context, method string, blockNumber *uint64, args ...any) (string, error) {
	out, err := c.Read(ctx, method, blockNumber, args...)
	if err != nil {
		return "", err
	}
	s, ok := out[0].(string)
	if !ok {
		return "", badOutput(method, out[0])
	}
	return s, nil
}

// ReadUint8 reads a method returning a single uint8.
func (c *RetryableContract) ReadUint8(ctx context.Context, method string, blockNumber *uint64, args ...any) (uint8, error) {
	out, err := c.Read(ctx, method, blockNumber, args...)
	if err != nil {
		return 0, err
	}
	v, ok := out[0].(uint8)
	if !ok {
		return 0, badOutput(method, out[0])
	}
	return v, nil
}

// ReadBigInt reads a method returning a single uint256.
func (c *RetryableContract) ReadBigInt(ctx context.Context, method string, blockNumber *uint64, args ...any) (*big.Int, error) {
	out, err := c.Read(ctx, method, blockNumber, args...)
	if err != nil {
		return nil, err
	}
	v, ok := out[0].(*big.Int)
	if !ok {
		return nil, badOutput(method, out[0])
	}
	return v, nil
}

// ReadAddress reads a method returning a single address.
func (c *RetryableContract) ReadAddress(ctx context.Context, method string, blockNumber *uint64, args ...any) (common.Address, error) {
	out, err := c.Read(ctx, method, blockNumber, args...)
	if err != nil {
		return common.Address{}, err
	}
	v, ok := out[0].(common.Address)
	if !ok {
		return common.Address{}, badOutput(method, out[0])
	}
	return v, nil
}

func badOutput(method string, v any) error {
	return &ContractError{Code: CodeBadData, Method: method, Err: fmt.Errorf("unexpected output type %T", v)}
}

func isRevert(err error) bool {
	var rpcErr rpc.Error
	if !errors.As(err, &rpcErr) {
		return false
	}
	if rpcErr.ErrorCode() == 3 {
		return true
	}
	return strings.Contains(strings.ToLower(rpcErr.Error()), "revert")
}

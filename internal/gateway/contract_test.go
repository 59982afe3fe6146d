package gateway

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"math/big"
	"testing"
	"time"

	"github.com/devblac/block-fetcher/internal/chain"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
)

type fakeCaller struct {
	calls  int
	out    hexutil.Bytes
	errs   []error
	blocks []*uint64
}

func (f *fakeCaller) Call(_ context.Context, _ common.Address, _ []byte, blockNumber *uint64) (hexutil.Bytes, error) {
	f.calls++
	f.blocks = append(f.blocks, blockNumber)
	if len(f.errs) > 0 {
		err := f.errs[0]
		f.errs = f.errs[1:]
		return nil, err
	}
	return f.out, nil
}

func quietRetrier() *Retrier {
	r := NewRetrier(Policy{
		DefaultTimeout:  time.Millisecond,
		QuickTimeout:    time.Millisecond,
		MaxTotalTimeout: time.Minute,
		ContractBackoff: time.Second,
	}, slog.New(slog.NewTextHandler(io.Discard, nil)), nil)
	r.sleep = func(context.Context, time.Duration) error { return nil }
	return r
}

func TestContractReadString(t *testing.T) {
	abis := chain.MustLoadABIs()
	out, err := abis.ERC20.Methods["symbol"].Outputs.Pack("USDC")
	if err != nil {
		t.Fatalf("pack: %v", err)
	}
	caller := &fakeCaller{out: out, errs: []error{errors.New("temporary")}}
	c := NewRetryableContract(common.HexToAddress("0x01"), &abis.ERC20, caller, quietRetrier())

	got, err := c.ReadString(context.Background(), "symbol", nil)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if got != "USDC" {
		t.Fatalf("symbol = %q", got)
	}
	if caller.calls != 2 {
		t.Fatalf("calls = %d, want 2 (one retry)", caller.calls)
	}
}

func TestContractReadAtBlock(t *testing.T) {
	abis := chain.MustLoadABIs()
	out, _ := abis.ERC20.Methods["balanceOf"].Outputs.Pack(big.NewInt(500))
	caller := &fakeCaller{out: out}
	c := NewRetryableContract(common.HexToAddress("0x01"), &abis.ERC20, caller, quietRetrier())

	block := uint64(77)
	got, err := c.ReadBigInt(context.Background(), "balanceOf", &block, common.HexToAddress("0x02"))
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if got.Int64() != 500 {
		t.Fatalf("balance = %s", got)
	}
	if caller.blocks[0] == nil || *caller.blocks[0] != 77 {
		t.Fatalf("block tag not forwarded")
	}
}

func TestContractPermanentErrors(t *testing.T) {
	abis := chain.MustLoadABIs()

	tests := []struct {
		name     string
		method   string
		args     []any
		caller   *fakeCaller
		wantCode string
	}{
		{"unknown method", "totalSupply", nil, &fakeCaller{}, CodeNotImplemented},
		{"missing argument", "balanceOf", nil, &fakeCaller{}, CodeMissingArgument},
		{"unexpected argument", "symbol", []any{common.Address{}}, &fakeCaller{}, CodeUnexpectedArgument},
		{"invalid argument", "balanceOf", []any{"not-an-address"}, &fakeCaller{}, CodeInvalidArgument},
		{"revert", "symbol", nil, &fakeCaller{errs: []error{&jsonRPCError{code: 3, msg: "execution reverted"}}}, CodeCallException},
		{"empty result", "symbol", nil, &fakeCaller{out: hexutil.Bytes{}}, CodeBadData},
		{"garbage result", "symbol", nil, &fakeCaller{out: hexutil.Bytes{0x01, 0x02}}, CodeBadData},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := NewRetryableContract(common.HexToAddress("0x01"), &abis.ERC20, tt.caller, quietRetrier())
			_, err := c.Read(context.Background(), tt.method, nil, tt.args...)
			var ce *ContractError
			if !errors.As(err, &ce) {
				t.Fatalf("expected ContractError, got %v", err)
			}
			if ce.Code != tt.wantCode {
				t.Fatalf("code = %s, want %s", ce.Code, tt.wantCode)
			}
			if tt.caller.calls > 1 {
				t.Fatalf("permanent error retried %d times", tt.caller.calls)
			}
		})
	}
}

// Package trace extracts deployed contracts and base-asset value movements
// from callTracer output.
package trace

import (
	"bytes"
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/devblac/block-fetcher/internal/chain"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
)

// Result is what a single transaction's call tree yields.
type Result struct {
	ContractAddresses []*chain.ContractAddress
	Transfers         []*chain.Transfer
	Error             string
	RevertReason      string
}

// Walker walks call trees. It is safe for concurrent use.
type Walker struct {
	addrs          chain.Addresses
	transferFromTo abi.Method
	forceDeploy    abi.Method
}

func NewWalker(abis *chain.ABIs, addrs chain.Addresses) *Walker {
	return &Walker{
		addrs:          addrs.WithDefaults(),
		transferFromTo: abis.L2BaseToken.Methods["transferFromTo"],
		forceDeploy:    abis.ContractDeployer.Methods["forceDeployOnAddresses"],
	}
}

type walk struct {
	base      common.Address
	tx        *chain.Transaction
	timestamp time.Time
	result    *Result
	system    []*chain.Transfer
	valued    []*chain.Transfer
}

// Walk visits root depth-first in call order. Base-asset transfers decoded
// from system-contract calls take precedence over value-carrying frames; the
// two are never mixed within one transaction.
func (w *Walker) Walk(root *chain.TraceCall, tx *chain.Transaction, timestamp time.Time) (*Result, error) {
	st := &walk{base: w.addrs.BaseToken, tx: tx, timestamp: timestamp, result: &Result{}}
	if root != nil {
		st.result.Error = root.Error
		st.result.RevertReason = root.RevertReason
		if err := w.visit(root, st); err != nil {
			return nil, err
		}
	}

	if len(st.system) > 0 {
		st.result.Transfers = st.system
	} else {
		st.result.Transfers = st.valued
	}
	for i, t := range st.result.Transfers {
		t.LogIndex = uint(i + 1)
	}

	deployments, err := w.upgradeDeployments(tx)
	if err != nil {
		return nil, err
	}
	for _, addr := range deployments {
		st.addContract(addr)
	}
	return st.result, nil
}

func (w *Walker) visit(call *chain.TraceCall, st *walk) error {
	kind := strings.ToLower(call.Type)
	if (kind == "create" || kind == "create2") && call.Error == "" {
		st.addContract(call.To)
	}

	if call.Error == "" {
		t, err := w.systemTransfer(call, st)
		if err != nil {
			return err
		}
		if t != nil {
			st.system = append(st.system, t)
		}
	}

	if call.Error == "" && kind != "delegatecall" && kind != "staticcall" {
		value, err := callValue(call)
		if err != nil {
			return err
		}
		if !value.IsZero() {
			t := st.newTransfer(call.From, call.To, value.ToBig())
			t.Type = chain.TransferTypeTransfer
			st.valued = append(st.valued, t)
		}
	}

	for i := range call.Calls {
		if err := w.visit(&call.Calls[i], st); err != nil {
			return err
		}
	}
	return nil
}

// systemTransfer decodes a transferFromTo call on the base-token contract.
func (w *Walker) systemTransfer(call *chain.TraceCall, st *walk) (*chain.Transfer, error) {
	if call.To != w.addrs.BaseToken || len(call.Input) < 4 || !bytes.Equal(call.Input[:4], w.transferFromTo.ID) {
		return nil, nil
	}
	args, err := w.transferFromTo.Inputs.Unpack(call.Input[4:])
	if err != nil {
		return nil, fmt.Errorf("decode transferFromTo: %w", err)
	}
	from, ok1 := args[0].(common.Address)
	to, ok2 := args[1].(common.Address)
	amount, ok3 := args[2].(*big.Int)
	if !ok1 || !ok2 || !ok3 {
		return nil, fmt.Errorf("decode transferFromTo: unexpected argument types")
	}

	t := st.newTransfer(from, to, amount)
	switch {
	case t.To == w.addrs.FeeCollector:
		t.Type = chain.TransferTypeFee
		t.IsFeeOrRefund = true
	case t.From == w.addrs.FeeCollector:
		t.Type = chain.TransferTypeRefund
		t.IsFeeOrRefund = true
	default:
		t.Type = chain.TransferTypeTransfer
	}
	return t, nil
}

// upgradeDeployments lists the contracts a protocol upgrade transaction
// force-deploys. Such upgrades produce no create frames.
func (w *Walker) upgradeDeployments(tx *chain.Transaction) ([]common.Address, error) {
	if tx == nil || tx.From != w.addrs.UpgradeCaller || tx.To == nil || *tx.To != w.addrs.ContractDeployer {
		return nil, nil
	}
	if len(tx.Input) < 4 || !bytes.Equal(tx.Input[:4], w.forceDeploy.ID) {
		return nil, nil
	}
	vals, err := w.forceDeploy.Inputs.Unpack(tx.Input[4:])
	if err != nil {
		return nil, fmt.Errorf("decode forceDeployOnAddresses: %w", err)
	}
	var deployments []chain.ForceDeployment
	if err := w.forceDeploy.Inputs.Copy(&deployments, vals); err != nil {
		return nil, fmt.Errorf("decode forceDeployOnAddresses: %w", err)
	}
	out := make([]common.Address, 0, len(deployments))
	for _, d := range deployments {
		out = append(out, d.NewAddress)
	}
	return out, nil
}

func (st *walk) addContract(addr common.Address) {
	c := &chain.ContractAddress{
		Address:  addr,
		LogIndex: uint(len(st.result.ContractAddresses) + 1),
	}
	if st.tx != nil {
		c.BlockNumber = uint64(st.tx.BlockNumber)
		c.TransactionHash = st.tx.Hash
		c.CreatorAddress = st.tx.From
	}
	st.result.ContractAddresses = append(st.result.ContractAddresses, c)
}

func (st *walk) newTransfer(from, to common.Address, amount *big.Int) *chain.Transfer {
	t := &chain.Transfer{
		From:         from,
		To:           to,
		TokenAddress: st.base,
		TokenType:    chain.TokenTypeBase,
		Amount:       amount,
		Timestamp:    st.timestamp,
	}
	if st.tx != nil {
		t.BlockNumber = uint64(st.tx.BlockNumber)
		t.TransactionHash = st.tx.Hash
		t.TransactionIndex = uint(st.tx.TransactionIndex)
	}
	return t
}

// callValue reads a frame's native value. A value outside uint256 is a
// malformed trace.
func callValue(call *chain.TraceCall) (*uint256.Int, error) {
	if call.Value == nil {
		return new(uint256.Int), nil
	}
	raw := call.Value.ToInt()
	if raw.Sign() < 0 {
		return nil, fmt.Errorf("negative value %s in %s call from %s", raw, call.Type, call.From.Hex())
	}
	v, overflow := uint256.FromBig(raw)
	if overflow {
		return nil, fmt.Errorf("value %s in %s call from %s overflows uint256", raw, call.Type, call.From.Hex())
	}
	return v, nil
}

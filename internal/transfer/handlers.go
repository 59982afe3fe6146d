package transfer

import (
	"context"
	"math/big"

	"github.com/devblac/block-fetcher/internal/chain"
	"github.com/devblac/block-fetcher/internal/eventlog"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
)

type deps struct {
	abis   *chain.ABIs
	addrs  chain.Addresses
	assets AssetResolver
}

func (d deps) parse(contract *abi.ABI, name string, lg *types.Log) (*eventlog.Event, error) {
	ev := contract.Events[name]
	return eventlog.ParseEvent(&ev, lg)
}

func (d deps) tokenType(token common.Address) chain.TokenType {
	if d.addrs.IsBaseToken(token) {
		return chain.TokenTypeBase
	}
	return chain.TokenTypeERC20
}

func newTransfer(lg *types.Log, ec *Context) *chain.Transfer {
	block := ec.BlockNumber
	if block == 0 {
		block = lg.BlockNumber
	}
	return &chain.Transfer{
		BlockNumber:      block,
		TransactionHash:  lg.TxHash,
		TransactionIndex: lg.TxIndex,
		LogIndex:         lg.Index,
		Timestamp:        ec.timestamp(),
	}
}

func transferArgs(ev *eventlog.Event) (from, to common.Address, value *big.Int, err error) {
	if from, err = ev.Address("from"); err != nil {
		return
	}
	if to, err = ev.Address("to"); err != nil {
		return
	}
	value, err = ev.BigInt("value")
	return
}

// erc721TransferHandler handles Transfer logs with an indexed token id.
type erc721TransferHandler struct{ deps }

func (h erc721TransferHandler) Matches(lg *types.Log, _ *chain.Receipt) bool {
	return len(lg.Topics) == 4
}

func (h erc721TransferHandler) Extract(_ context.Context, lg *types.Log, ec *Context) (*chain.Transfer, error) {
	ev, err := h.parse(&h.abis.ERC721, "Transfer", lg)
	if err != nil {
		return nil, err
	}
	from, err := ev.Address("from")
	if err != nil {
		return nil, err
	}
	to, err := ev.Address("to")
	if err != nil {
		return nil, err
	}
	tokenID, err := ev.BigInt("tokenId")
	if err != nil {
		return nil, err
	}

	t := newTransfer(lg, ec)
	t.From, t.To = from, to
	t.TokenAddress = lg.Address
	t.TokenType = chain.TokenTypeERC721
	t.Type = chain.TransferTypeTransfer
	if from == chain.ZeroAddress {
		t.Type = chain.TransferTypeMint
		t.From = to
	}
	t.Fields = map[string]string{"tokenId": tokenID.String()}
	return t, nil
}

// deployerMintHandler handles tokens minted by their constructor in a
// contract-deployer transaction, including the variant without indexed
// arguments.
type deployerMintHandler struct{ deps }

func (h deployerMintHandler) Matches(lg *types.Log, receipt *chain.Receipt) bool {
	if receipt == nil || receipt.ToAddress() != h.addrs.ContractDeployer {
		return false
	}
	if len(lg.Topics) == 1 {
		return true
	}
	return len(lg.Topics) == 3 && lg.Topics[1] == (common.Hash{})
}

func (h deployerMintHandler) Extract(_ context.Context, lg *types.Log, ec *Context) (*chain.Transfer, error) {
	contract := &h.abis.ERC20
	if len(lg.Topics) == 1 {
		contract = &h.abis.TransferNoIndexes
	}
	ev, err := h.parse(contract, "Transfer", lg)
	if err != nil {
		return nil, err
	}
	_, to, value, err := transferArgs(ev)
	if err != nil {
		return nil, err
	}

	t := newTransfer(lg, ec)
	t.From, t.To = to, to
	t.Amount = value
	t.TokenAddress = lg.Address
	t.TokenType = chain.TokenTypeERC20
	t.Type = chain.TransferTypeMint
	return t, nil
}

// defaultTransferHandler handles ERC20 and base-asset Transfer logs.
// Base-asset logs are skipped when the transaction has a trace, since the
// trace walker already reconstructs those transfers.
type defaultTransferHandler struct{ deps }

func (h defaultTransferHandler) Matches(lg *types.Log, _ *chain.Receipt) bool {
	return len(lg.Topics) == 3
}

func (h defaultTransferHandler) Extract(_ context.Context, lg *types.Log, ec *Context) (*chain.Transfer, error) {
	if h.addrs.IsBaseToken(lg.Address) && ec.HasTrace {
		return nil, nil
	}
	ev, err := h.parse(&h.abis.ERC20, "Transfer", lg)
	if err != nil {
		return nil, err
	}
	from, to, value, err := transferArgs(ev)
	if err != nil {
		return nil, err
	}

	t := newTransfer(lg, ec)
	t.From, t.To = from, to
	t.Amount = value
	t.TokenAddress = lg.Address
	t.TokenType = h.tokenType(lg.Address)
	switch {
	case to == h.addrs.FeeCollector:
		t.Type = chain.TransferTypeFee
		t.IsFeeOrRefund = true
	case from == h.addrs.FeeCollector && ec.Details != nil:
		t.Type = chain.TransferTypeRefund
		t.IsFeeOrRefund = true
	default:
		t.Type = chain.TransferTypeTransfer
	}
	return t, nil
}

// baseMintHandler handles base-asset deposits from the settlement layer.
type baseMintHandler struct{ deps }

func (h baseMintHandler) Matches(lg *types.Log, _ *chain.Receipt) bool {
	return h.addrs.IsBaseToken(lg.Address)
}

func (h baseMintHandler) Extract(_ context.Context, lg *types.Log, ec *Context) (*chain.Transfer, error) {
	ev, err := h.parse(&h.abis.L2BaseToken, "Mint", lg)
	if err != nil {
		return nil, err
	}
	account, err := ev.Address("account")
	if err != nil {
		return nil, err
	}
	amount, err := ev.BigInt("amount")
	if err != nil {
		return nil, err
	}

	t := newTransfer(lg, ec)
	t.From, t.To = account, account
	t.Amount = amount
	t.TokenAddress = h.addrs.BaseToken
	t.TokenType = chain.TokenTypeBase
	t.Type = chain.TransferTypeDeposit
	return t, nil
}

// baseWithdrawalHandler handles base-asset withdrawals to the settlement
// layer.
type baseWithdrawalHandler struct{ deps }

func (h baseWithdrawalHandler) Matches(lg *types.Log, _ *chain.Receipt) bool {
	return h.addrs.IsBaseToken(lg.Address)
}

func (h baseWithdrawalHandler) Extract(_ context.Context, lg *types.Log, ec *Context) (*chain.Transfer, error) {
	ev, err := h.parse(&h.abis.L2BaseToken, "Withdrawal", lg)
	if err != nil {
		return nil, err
	}
	sender, err := ev.Address("_l2Sender")
	if err != nil {
		return nil, err
	}
	receiver, err := ev.Address("_l1Receiver")
	if err != nil {
		return nil, err
	}
	amount, err := ev.BigInt("_amount")
	if err != nil {
		return nil, err
	}

	t := newTransfer(lg, ec)
	t.From, t.To = sender, receiver
	t.Amount = amount
	t.TokenAddress = h.addrs.BaseToken
	t.TokenType = chain.TokenTypeBase
	t.Type = chain.TransferTypeWithdrawal
	return t, nil
}

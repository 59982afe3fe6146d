package transfer

import (
	"context"
	"fmt"
	"math/big"

	"github.com/devblac/block-fetcher/internal/chain"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
)

// Asset router payloads: deposits carry (originalCaller, receiver,
// originToken, amount, erc20Metadata), withdrawals (amount, l1Receiver,
// l2Token).
var (
	depositAssetData    = mustArguments("address", "address", "address", "uint256", "bytes")
	withdrawalAssetData = mustArguments("uint256", "address", "address")
)

func mustArguments(types ...string) abi.Arguments {
	args := make(abi.Arguments, 0, len(types))
	for _, name := range types {
		t, err := abi.NewType(name, "", nil)
		if err != nil {
			panic(err)
		}
		args = append(args, abi.Argument{Type: t})
	}
	return args
}

func (d deps) bridgedToken(token common.Address) common.Address {
	if token == chain.ZeroAddress {
		return d.addrs.BaseToken
	}
	return token
}

// finalizeDepositHandler handles the legacy shared-bridge deposit log.
type finalizeDepositHandler struct{ deps }

func (h finalizeDepositHandler) Matches(*types.Log, *chain.Receipt) bool { return true }

func (h finalizeDepositHandler) Extract(_ context.Context, lg *types.Log, ec *Context) (*chain.Transfer, error) {
	ev, err := h.parse(&h.abis.L2Bridge, "FinalizeDeposit", lg)
	if err != nil {
		return nil, err
	}
	sender, err := ev.Address("l1Sender")
	if err != nil {
		return nil, err
	}
	receiver, err := ev.Address("l2Receiver")
	if err != nil {
		return nil, err
	}
	l2Token, err := ev.Address("l2Token")
	if err != nil {
		return nil, err
	}
	amount, err := ev.BigInt("amount")
	if err != nil {
		return nil, err
	}

	token := h.bridgedToken(l2Token)
	t := newTransfer(lg, ec)
	t.From, t.To = sender, receiver
	t.Amount = amount
	t.TokenAddress = token
	t.TokenType = h.tokenType(token)
	t.Type = chain.TransferTypeDeposit
	return t, nil
}

// withdrawalInitiatedHandler handles the legacy shared-bridge withdrawal log.
type withdrawalInitiatedHandler struct{ deps }

func (h withdrawalInitiatedHandler) Matches(*types.Log, *chain.Receipt) bool { return true }

func (h withdrawalInitiatedHandler) Extract(_ context.Context, lg *types.Log, ec *Context) (*chain.Transfer, error) {
	ev, err := h.parse(&h.abis.L2Bridge, "WithdrawalInitiated", lg)
	if err != nil {
		return nil, err
	}
	sender, err := ev.Address("l2Sender")
	if err != nil {
		return nil, err
	}
	receiver, err := ev.Address("l1Receiver")
	if err != nil {
		return nil, err
	}
	l2Token, err := ev.Address("l2Token")
	if err != nil {
		return nil, err
	}
	amount, err := ev.BigInt("amount")
	if err != nil {
		return nil, err
	}

	token := h.bridgedToken(l2Token)
	t := newTransfer(lg, ec)
	t.From, t.To = sender, receiver
	t.Amount = amount
	t.TokenAddress = token
	t.TokenType = h.tokenType(token)
	t.Type = chain.TransferTypeWithdrawal
	return t, nil
}

// assetRouterDepositHandler handles the asset-router deposit log.
type assetRouterDepositHandler struct{ deps }

func (h assetRouterDepositHandler) Matches(*types.Log, *chain.Receipt) bool { return true }

func (h assetRouterDepositHandler) Extract(ctx context.Context, lg *types.Log, ec *Context) (*chain.Transfer, error) {
	ev, err := h.parse(&h.abis.L2AssetRouter, "DepositFinalizedAssetRouter", lg)
	if err != nil {
		return nil, err
	}
	assetID, err := ev.Hash("assetId")
	if err != nil {
		return nil, err
	}
	data, err := ev.Bytes("assetData")
	if err != nil {
		return nil, err
	}
	values, err := depositAssetData.Unpack(data)
	if err != nil {
		return nil, fmt.Errorf("decode deposit asset data: %w", err)
	}
	sender, ok1 := values[0].(common.Address)
	receiver, ok2 := values[1].(common.Address)
	amount, ok3 := values[3].(*big.Int)
	if !ok1 || !ok2 || !ok3 {
		return nil, fmt.Errorf("decode deposit asset data: unexpected types")
	}

	token, err := h.resolve(ctx, assetID, chain.ZeroAddress)
	if err != nil {
		return nil, err
	}
	t := newTransfer(lg, ec)
	t.From, t.To = sender, receiver
	t.Amount = amount
	t.TokenAddress = token
	t.TokenType = h.tokenType(token)
	t.Type = chain.TransferTypeDeposit
	return t, nil
}

// assetRouterWithdrawalHandler handles the asset-router withdrawal log.
type assetRouterWithdrawalHandler struct{ deps }

func (h assetRouterWithdrawalHandler) Matches(*types.Log, *chain.Receipt) bool { return true }

func (h assetRouterWithdrawalHandler) Extract(ctx context.Context, lg *types.Log, ec *Context) (*chain.Transfer, error) {
	ev, err := h.parse(&h.abis.L2AssetRouter, "WithdrawalInitiatedAssetRouter", lg)
	if err != nil {
		return nil, err
	}
	sender, err := ev.Address("l2Sender")
	if err != nil {
		return nil, err
	}
	assetID, err := ev.Hash("assetId")
	if err != nil {
		return nil, err
	}
	data, err := ev.Bytes("assetData")
	if err != nil {
		return nil, err
	}
	values, err := withdrawalAssetData.Unpack(data)
	if err != nil {
		return nil, fmt.Errorf("decode withdrawal asset data: %w", err)
	}
	amount, ok1 := values[0].(*big.Int)
	receiver, ok2 := values[1].(common.Address)
	l2Token, ok3 := values[2].(common.Address)
	if !ok1 || !ok2 || !ok3 {
		return nil, fmt.Errorf("decode withdrawal asset data: unexpected types")
	}

	token, err := h.resolve(ctx, assetID, l2Token)
	if err != nil {
		return nil, err
	}
	t := newTransfer(lg, ec)
	t.From, t.To = sender, receiver
	t.Amount = amount
	t.TokenAddress = token
	t.TokenType = h.tokenType(token)
	t.Type = chain.TransferTypeWithdrawal
	return t, nil
}

// resolve looks the asset up in the native token vault, falling back to
// the token carried in the payload and then to the base asset.
func (d deps) resolve(ctx context.Context, assetID common.Hash, fallback common.Address) (common.Address, error) {
	if d.assets != nil {
		token, err := d.assets.TokenAddressByAssetID(ctx, assetID)
		if err != nil {
			return common.Address{}, err
		}
		if token != chain.ZeroAddress {
			return token, nil
		}
	}
	return d.bridgedToken(fallback), nil
}

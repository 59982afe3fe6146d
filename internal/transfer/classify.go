package transfer

import "github.com/devblac/block-fetcher/internal/chain"

// ClassifyFeeAndRefund rewrites the base-asset deposit paid to the fee
// collector as the fee and the last later deposit as the refund.
// Settlement-layer-originated transactions are left untouched.
func ClassifyFeeAndRefund(transfers []*chain.Transfer, ec *Context, addrs chain.Addresses) {
	if ec != nil && ec.Details != nil && ec.Details.IsL1Originated {
		return
	}

	var fee *chain.Transfer
	var nonFee []*chain.Transfer
	for _, t := range transfers {
		if t.Type != chain.TransferTypeDeposit || t.TokenAddress != addrs.BaseToken {
			continue
		}
		if t.To == addrs.FeeCollector {
			if fee == nil {
				fee = t
			}
			continue
		}
		nonFee = append(nonFee, t)
	}
	if fee == nil {
		return
	}

	fee.Type = chain.TransferTypeFee
	fee.IsFeeOrRefund = true
	switch {
	case len(nonFee) > 0:
		fee.From = nonFee[0].From
	case ec != nil && ec.Receipt != nil:
		fee.From = ec.Receipt.From
	}

	var refund *chain.Transfer
	for _, t := range nonFee {
		if t.LogIndex > fee.LogIndex {
			refund = t
		}
	}
	if refund == nil {
		return
	}
	refund.Type = chain.TransferTypeRefund
	refund.IsFeeOrRefund = true
	refund.From = addrs.FeeCollector
}

// MarkInternal flags base-asset transfers that do not mirror the
// transaction's own sender and recipient. Without a receipt every base-asset
// transfer is internal.
func MarkInternal(transfers []*chain.Transfer, receipt *chain.Receipt, addrs chain.Addresses) {
	for _, t := range transfers {
		t.IsInternal = isInternal(t, receipt, addrs)
	}
}

func isInternal(t *chain.Transfer, receipt *chain.Receipt, addrs chain.Addresses) bool {
	if t.Type != chain.TransferTypeTransfer || t.TokenAddress != addrs.BaseToken {
		return false
	}
	if receipt == nil {
		return true
	}
	return t.From != receipt.From || t.To != receipt.ToAddress()
}

// Reindex assigns log indexes 1..N in slice order.
func Reindex(transfers []*chain.Transfer) {
	for i, t := range transfers {
		t.LogIndex = uint(i + 1)
	}
}

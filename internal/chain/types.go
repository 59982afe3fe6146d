package chain

import (
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/core/types"
)

// Block is the eth_getBlockByNumber payload with transaction hashes only.
type Block struct {
	Number        hexutil.Uint64  `json:"number"`
	Hash          common.Hash     `json:"hash"`
	ParentHash    common.Hash     `json:"parentHash"`
	Timestamp     hexutil.Uint64  `json:"timestamp"`
	Miner         common.Address  `json:"miner"`
	GasLimit      hexutil.Uint64  `json:"gasLimit"`
	GasUsed       hexutil.Uint64  `json:"gasUsed"`
	BaseFeePerGas *hexutil.Big    `json:"baseFeePerGas,omitempty"`
	L1BatchNumber *hexutil.Uint64 `json:"l1BatchNumber,omitempty"`
	Transactions  []common.Hash   `json:"transactions"`
}

// Time returns the block timestamp.
func (b *Block) Time() time.Time {
	return time.Unix(int64(b.Timestamp), 0).UTC()
}

// BlockDetails is the zks_getBlockDetails payload.
type BlockDetails struct {
	Number          uint64         `json:"number"`
	L1BatchNumber   uint64         `json:"l1BatchNumber"`
	Timestamp       uint64         `json:"timestamp"`
	L1TxCount       uint64         `json:"l1TxCount"`
	L2TxCount       uint64         `json:"l2TxCount"`
	RootHash        *common.Hash   `json:"rootHash,omitempty"`
	Status          string         `json:"status"`
	CommitTxHash    *common.Hash   `json:"commitTxHash,omitempty"`
	ProveTxHash     *common.Hash   `json:"proveTxHash,omitempty"`
	ExecuteTxHash   *common.Hash   `json:"executeTxHash,omitempty"`
	OperatorAddress common.Address `json:"operatorAddress"`
}

// Transaction is the eth_getTransactionByHash payload. Error and RevertReason
// are filled from the call trace for failed transactions.
type Transaction struct {
	Hash             common.Hash     `json:"hash"`
	BlockNumber      hexutil.Uint64  `json:"blockNumber"`
	BlockHash        common.Hash     `json:"blockHash"`
	TransactionIndex hexutil.Uint    `json:"transactionIndex"`
	From             common.Address  `json:"from"`
	To               *common.Address `json:"to"`
	Value            *hexutil.Big    `json:"value"`
	Nonce            hexutil.Uint64  `json:"nonce"`
	Gas              hexutil.Uint64  `json:"gas"`
	GasPrice         *hexutil.Big    `json:"gasPrice,omitempty"`
	Input            hexutil.Bytes   `json:"input"`
	Type             hexutil.Uint64  `json:"type"`
	ChainID          *hexutil.Big    `json:"chainId,omitempty"`
	ReceiptStatus    uint64          `json:"receiptStatus"`
	Error            string          `json:"error,omitempty"`
	RevertReason     string          `json:"revertReason,omitempty"`
}

// TransactionDetails is the zks_getTransactionDetails payload.
type TransactionDetails struct {
	IsL1Originated   bool           `json:"isL1Originated"`
	Status           string         `json:"status"`
	Fee              *hexutil.Big   `json:"fee,omitempty"`
	GasPerPubdata    *hexutil.Big   `json:"gasPerPubdata,omitempty"`
	InitiatorAddress common.Address `json:"initiatorAddress"`
	ReceivedAt       time.Time      `json:"receivedAt"`
}

// Receipt is the eth_getTransactionReceipt payload.
type Receipt struct {
	TransactionHash   common.Hash     `json:"transactionHash"`
	TransactionIndex  hexutil.Uint    `json:"transactionIndex"`
	BlockHash         common.Hash     `json:"blockHash"`
	BlockNumber       hexutil.Uint64  `json:"blockNumber"`
	From              common.Address  `json:"from"`
	To                *common.Address `json:"to"`
	ContractAddress   *common.Address `json:"contractAddress"`
	CumulativeGasUsed hexutil.Uint64  `json:"cumulativeGasUsed"`
	GasUsed           hexutil.Uint64  `json:"gasUsed"`
	EffectiveGasPrice *hexutil.Big    `json:"effectiveGasPrice,omitempty"`
	Status            hexutil.Uint64  `json:"status"`
	Type              hexutil.Uint64  `json:"type"`
	Logs              []*types.Log    `json:"logs"`
}

// ToAddress returns the receipt recipient or the zero address for creations.
func (r *Receipt) ToAddress() common.Address {
	if r == nil || r.To == nil {
		return ZeroAddress
	}
	return *r.To
}

// TraceCall is one frame of a callTracer result.
type TraceCall struct {
	Type         string         `json:"type"`
	From         common.Address `json:"from"`
	To           common.Address `json:"to"`
	Value        *hexutil.Big   `json:"value,omitempty"`
	Gas          hexutil.Uint64 `json:"gas"`
	GasUsed      hexutil.Uint64 `json:"gasUsed"`
	Input        hexutil.Bytes  `json:"input"`
	Output       hexutil.Bytes  `json:"output,omitempty"`
	Error        string         `json:"error,omitempty"`
	RevertReason string         `json:"revertReason,omitempty"`
	Calls        []TraceCall    `json:"calls,omitempty"`
}

// BlockTrace is one entry of a debug_traceBlockByNumber result.
type BlockTrace struct {
	TxHash common.Hash `json:"txHash"`
	Result *TraceCall  `json:"result"`
	Error  string      `json:"error,omitempty"`
}

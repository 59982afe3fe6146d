package chain

import (
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/core/types"
)

// TokenType classifies the asset moved by a transfer.
type TokenType string

const (
	TokenTypeBase   TokenType = "BASETOKEN"
	TokenTypeERC20  TokenType = "ERC20"
	TokenTypeERC721 TokenType = "ERC721"
)

// TransferType is the canonical kind of a value movement.
type TransferType string

const (
	TransferTypeDeposit    TransferType = "deposit"
	TransferTypeTransfer   TransferType = "transfer"
	TransferTypeWithdrawal TransferType = "withdrawal"
	TransferTypeFee        TransferType = "fee"
	TransferTypeMint       TransferType = "mint"
	TransferTypeRefund     TransferType = "refund"
)

// Transfer is the canonical value-transfer record.
type Transfer struct {
	From             common.Address    `json:"from"`
	To               common.Address    `json:"to"`
	TokenAddress     common.Address    `json:"tokenAddress"`
	TokenType        TokenType         `json:"tokenType"`
	Amount           *big.Int          `json:"amount,omitempty"`
	Type             TransferType      `json:"type"`
	IsFeeOrRefund    bool              `json:"isFeeOrRefund"`
	IsInternal       bool              `json:"isInternal"`
	BlockNumber      uint64            `json:"blockNumber"`
	TransactionHash  common.Hash       `json:"transactionHash"`
	TransactionIndex uint              `json:"transactionIndex"`
	LogIndex         uint              `json:"logIndex"`
	Timestamp        time.Time         `json:"timestamp"`
	Fields           map[string]string `json:"fields,omitempty"`
}

// ContractAddress is a contract created or force-deployed by a transaction.
type ContractAddress struct {
	Address         common.Address `json:"address"`
	BlockNumber     uint64         `json:"blockNumber"`
	TransactionHash common.Hash    `json:"transactionHash"`
	CreatorAddress  common.Address `json:"creatorAddress"`
	LogIndex        uint           `json:"logIndex"`
	Bytecode        hexutil.Bytes  `json:"bytecode,omitempty"`
	IsEvmLike       bool           `json:"isEvmLike,omitempty"`
}

// Token is the metadata of a newly observed token contract.
type Token struct {
	L2Address       common.Address  `json:"l2Address"`
	L1Address       *common.Address `json:"l1Address,omitempty"`
	Symbol          string          `json:"symbol"`
	Decimals        uint8           `json:"decimals"`
	Name            string          `json:"name"`
	Type            TokenType       `json:"type"`
	BlockNumber     uint64          `json:"blockNumber"`
	TransactionHash common.Hash     `json:"transactionHash"`
	LogIndex        uint            `json:"logIndex"`
}

// Balance is a resolved balance of one address for one token at a block.
type Balance struct {
	Address      common.Address `json:"address"`
	TokenAddress common.Address `json:"tokenAddress"`
	BlockNumber  uint64         `json:"blockNumber"`
	Balance      *big.Int       `json:"balance"`
	TokenType    TokenType      `json:"tokenType"`
}

// NftItem is the resolved owner and metadata of one ERC721 token.
type NftItem struct {
	Owner        common.Address `json:"owner"`
	TokenAddress common.Address `json:"tokenAddress"`
	TokenID      string         `json:"tokenId"`
	Name         string         `json:"name,omitempty"`
	Description  string         `json:"description,omitempty"`
	ImageURL     string         `json:"imageUrl,omitempty"`
	MetadataURL  string         `json:"metadataUrl,omitempty"`
}

// TransactionData is the normalized dataset of one transaction.
type TransactionData struct {
	Transaction        *Transaction       `json:"transaction"`
	TransactionReceipt *Receipt           `json:"transactionReceipt"`
	ContractAddresses  []*ContractAddress `json:"contractAddresses"`
	Tokens             []*Token           `json:"tokens"`
	Transfers          []*Transfer        `json:"transfers"`
}

// BlockData is the normalized dataset of one block.
type BlockData struct {
	Block           *Block             `json:"block"`
	BlockDetails    *BlockDetails      `json:"blockDetails,omitempty"`
	Transactions    []*TransactionData `json:"transactions"`
	Logs            []*types.Log       `json:"logs,omitempty"`
	Transfers       []*Transfer        `json:"transfers,omitempty"`
	ChangedBalances []*Balance         `json:"changedBalances"`
	NftItems        []*NftItem         `json:"nftItems,omitempty"`
}

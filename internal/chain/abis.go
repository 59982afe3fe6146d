package chain

import (
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
)

// Event topics recognized by the extraction pipeline.
var (
	TopicTransfer                       = common.HexToHash("0xddf252ad1be2c89b69c2b068fc378daa952ba7f163c4a11628f55a4df523b3ef")
	TopicBridgeInitialization           = common.HexToHash("0xe6b2ac4004ee4493db8844da5db69722d2128345671818c3c41928655a83fb2c")
	TopicBridgeInitialize               = common.HexToHash("0x81e8e92e5873539605a102eddae7ed06d19bea042099a437cbc3644415eb7404")
	TopicFinalizeDeposit                = common.HexToHash("0xb84fba9af218da60d299dc177abd5805e7ac541d2673cbee7808c10017874f63")
	TopicWithdrawalInitiated            = common.HexToHash("0x2fc3848834aac8e883a2d2a17a7514dc4f2d3dd268089df9b9f5d918259ef3b0")
	TopicMint                           = common.HexToHash("0x0f6798a560793a54c3bcfe86a93cde1e73087d944c0ea20544137d4121396885")
	TopicWithdrawal                     = common.HexToHash("0x2717ead6b9200dd235aad468c9809ea400fe33ac69b5bfaa6d3e90fc922b6398")
	TopicDepositFinalizedAssetRouter    = common.HexToHash("0x44eb9a840094a49b3cd0a5205042598a1c08c4e87bafb5760bc2d8efa170c541")
	TopicWithdrawalInitiatedAssetRouter = common.HexToHash("0x55362fc62473cb1255e770af5d5e02ba6ee5bc7ed6969c30eb11ca31b92384dc")
)

const erc20ABI = `[
	{"type":"event","name":"Transfer","inputs":[
		{"name":"from","type":"address","indexed":true},
		{"name":"to","type":"address","indexed":true},
		{"name":"value","type":"uint256","indexed":false}]},
	{"type":"function","name":"name","stateMutability":"view","inputs":[],"outputs":[{"name":"","type":"string"}]},
	{"type":"function","name":"symbol","stateMutability":"view","inputs":[],"outputs":[{"name":"","type":"string"}]},
	{"type":"function","name":"decimals","stateMutability":"view","inputs":[],"outputs":[{"name":"","type":"uint8"}]},
	{"type":"function","name":"balanceOf","stateMutability":"view","inputs":[{"name":"account","type":"address"}],"outputs":[{"name":"","type":"uint256"}]}
]`

const erc721ABI = `[
	{"type":"event","name":"Transfer","inputs":[
		{"name":"from","type":"address","indexed":true},
		{"name":"to","type":"address","indexed":true},
		{"name":"tokenId","type":"uint256","indexed":true}]},
	{"type":"function","name":"tokenURI","stateMutability":"view","inputs":[{"name":"tokenId","type":"uint256"}],"outputs":[{"name":"","type":"string"}]}
]`

const transferNoIndexesABI = `[
	{"type":"event","name":"Transfer","inputs":[
		{"name":"from","type":"address","indexed":false},
		{"name":"to","type":"address","indexed":false},
		{"name":"value","type":"uint256","indexed":false}]}
]`

const l2StandardERC20ABI = `[
	{"type":"event","name":"BridgeInitialization","inputs":[
		{"name":"l1Token","type":"address","indexed":true},
		{"name":"name","type":"string","indexed":false},
		{"name":"symbol","type":"string","indexed":false},
		{"name":"decimals","type":"uint8","indexed":false}]},
	{"type":"event","name":"BridgeInitialize","inputs":[
		{"name":"l1Token","type":"address","indexed":true},
		{"name":"name","type":"string","indexed":false},
		{"name":"symbol","type":"string","indexed":false},
		{"name":"decimals","type":"uint8","indexed":false}]}
]`

const l2BridgeABI = `[
	{"type":"event","name":"FinalizeDeposit","inputs":[
		{"name":"l1Sender","type":"address","indexed":true},
		{"name":"l2Receiver","type":"address","indexed":true},
		{"name":"l2Token","type":"address","indexed":true},
		{"name":"amount","type":"uint256","indexed":false}]},
	{"type":"event","name":"WithdrawalInitiated","inputs":[
		{"name":"l2Sender","type":"address","indexed":true},
		{"name":"l1Receiver","type":"address","indexed":true},
		{"name":"l2Token","type":"address","indexed":true},
		{"name":"amount","type":"uint256","indexed":false}]}
]`

const l2AssetRouterABI = `[
	{"type":"event","name":"DepositFinalizedAssetRouter","inputs":[
		{"name":"chainId","type":"uint256","indexed":true},
		{"name":"assetId","type":"bytes32","indexed":true},
		{"name":"assetData","type":"bytes","indexed":false}]},
	{"type":"event","name":"WithdrawalInitiatedAssetRouter","inputs":[
		{"name":"chainId","type":"uint256","indexed":false},
		{"name":"l2Sender","type":"address","indexed":true},
		{"name":"assetId","type":"bytes32","indexed":true},
		{"name":"assetData","type":"bytes","indexed":false}]}
]`

const l2BaseTokenABI = `[
	{"type":"event","name":"Mint","inputs":[
		{"name":"account","type":"address","indexed":true},
		{"name":"amount","type":"uint256","indexed":false}]},
	{"type":"event","name":"Withdrawal","inputs":[
		{"name":"_l2Sender","type":"address","indexed":true},
		{"name":"_l1Receiver","type":"address","indexed":true},
		{"name":"_amount","type":"uint256","indexed":false}]},
	{"type":"function","name":"transferFromTo","stateMutability":"nonpayable","inputs":[
		{"name":"_from","type":"address"},
		{"name":"_to","type":"address"},
		{"name":"_amount","type":"uint256"}],"outputs":[]}
]`

const nativeTokenVaultABI = `[
	{"type":"function","name":"tokenAddress","stateMutability":"view","inputs":[{"name":"assetId","type":"bytes32"}],"outputs":[{"name":"","type":"address"}]}
]`

const contractDeployerABI = `[
	{"type":"function","name":"forceDeployOnAddresses","stateMutability":"payable","inputs":[
		{"name":"_deployments","type":"tuple[]","components":[
			{"name":"bytecodeHash","type":"bytes32"},
			{"name":"newAddress","type":"address"},
			{"name":"callConstructor","type":"bool"},
			{"name":"value","type":"uint256"},
			{"name":"input","type":"bytes"}]}],"outputs":[]}
]`

// ABIs is the read-only contract interface table. It is built once at
// startup and shared by reference.
type ABIs struct {
	ERC20             abi.ABI
	ERC721            abi.ABI
	TransferNoIndexes abi.ABI
	L2StandardERC20   abi.ABI
	L2Bridge          abi.ABI
	L2AssetRouter     abi.ABI
	L2BaseToken       abi.ABI
	NativeTokenVault  abi.ABI
	ContractDeployer  abi.ABI
}

// ForceDeployment is one entry of a forceDeployOnAddresses call.
type ForceDeployment struct {
	BytecodeHash    [32]byte
	NewAddress      common.Address
	CallConstructor bool
	Value           *big.Int
	Input           []byte
}

// LoadABIs parses the built-in contract interfaces.
func LoadABIs() (*ABIs, error) {
	out := &ABIs{}
	for _, def := range []struct {
		name string
		json string
		dst  *abi.ABI
	}{
		{"erc20", erc20ABI, &out.ERC20},
		{"erc721", erc721ABI, &out.ERC721},
		{"transfer_no_indexes", transferNoIndexesABI, &out.TransferNoIndexes},
		{"l2_standard_erc20", l2StandardERC20ABI, &out.L2StandardERC20},
		{"l2_bridge", l2BridgeABI, &out.L2Bridge},
		{"l2_asset_router", l2AssetRouterABI, &out.L2AssetRouter},
		{"l2_base_token", l2BaseTokenABI, &out.L2BaseToken},
		{"native_token_vault", nativeTokenVaultABI, &out.NativeTokenVault},
		{"contract_deployer", contractDeployerABI, &out.ContractDeployer},
	} {
		parsed, err := abi.JSON(strings.NewReader(def.json))
		if err != nil {
			return nil, fmt.Errorf("parse %s abi: %w", def.name, err)
		}
		*def.dst = parsed
	}
	return out, nil
}

// MustLoadABIs is LoadABIs for package-level initialization and tests.
func MustLoadABIs() *ABIs {
	a, err := LoadABIs()
	if err != nil {
		panic(err)
	}
	return a
}

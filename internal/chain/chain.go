// Package chain holds the ledger data model shared by the fetcher packages:
// node responses, canonical output records, reserved system addresses and
// the read-only ABI table.
package chain

import "github.com/ethereum/go-ethereum/common"

// Reserved system addresses.
var (
	BaseTokenAddress             = common.HexToAddress("0x000000000000000000000000000000000000800a")
	BootloaderAddress            = common.HexToAddress("0x0000000000000000000000000000000000008001")
	ContractDeployerAddress      = common.HexToAddress("0x0000000000000000000000000000000000008006")
	ProtocolUpgradeCallerAddress = common.HexToAddress("0x0000000000000000000000000000000000008007")
	NativeTokenVaultAddress      = common.HexToAddress("0x0000000000000000000000000000000000010004")
	EthL1Address                 = common.HexToAddress("0x0000000000000000000000000000000000000001")
	ZeroAddress                  = common.Address{}
)

// Addresses is the set of well-known contracts the extraction pipeline keys on.
// Zero fields fall back to the reserved system addresses.
type Addresses struct {
	BaseToken        common.Address
	FeeCollector     common.Address
	ContractDeployer common.Address
	UpgradeCaller    common.Address
	NativeTokenVault common.Address
	L2ERC20Bridge    common.Address
	EthL1            common.Address
}

// DefaultAddresses returns the reserved system addresses.
func DefaultAddresses() Addresses {
	return Addresses{
		BaseToken:        BaseTokenAddress,
		FeeCollector:     BootloaderAddress,
		ContractDeployer: ContractDeployerAddress,
		UpgradeCaller:    ProtocolUpgradeCallerAddress,
		NativeTokenVault: NativeTokenVaultAddress,
		EthL1:            EthL1Address,
	}
}

// WithDefaults fills unset addresses.
func (a Addresses) WithDefaults() Addresses {
	d := DefaultAddresses()
	if a.BaseToken == ZeroAddress {
		a.BaseToken = d.BaseToken
	}
	if a.FeeCollector == ZeroAddress {
		a.FeeCollector = d.FeeCollector
	}
	if a.ContractDeployer == ZeroAddress {
		a.ContractDeployer = d.ContractDeployer
	}
	if a.UpgradeCaller == ZeroAddress {
		a.UpgradeCaller = d.UpgradeCaller
	}
	if a.NativeTokenVault == ZeroAddress {
		a.NativeTokenVault = d.NativeTokenVault
	}
	if a.EthL1 == ZeroAddress {
		a.EthL1 = d.EthL1
	}
	return a
}

// IsBaseToken reports whether addr is the base asset contract.
func (a Addresses) IsBaseToken(addr common.Address) bool {
	return addr == a.BaseToken
}

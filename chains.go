// Package x402 holds the data model shared by the BLE payment engine: payment
// requirements, signed authorizations, device metadata, settlement results, the
// static network table and the error taxonomy.
package x402

import (
	"fmt"
	"math/big"
	"strings"
)

const (
	// SchemeExact is the only payment scheme the peripherals speak.
	SchemeExact = "exact"

	// DefaultResource is the resource identifier stamped on every requirement.
	DefaultResource = "https://x402ble.io"

	// DefaultMimeType is the mime type stamped on every requirement.
	DefaultMimeType = "application/json"

	// DefaultTimeoutSeconds is the authorization validity window.
	DefaultTimeoutSeconds = 300

	// DomainVersion is the EIP-712 domain version of the USDC contracts.
	DomainVersion = "2"
)

// ChainConfig contains chain-specific configuration for USDC.
type ChainConfig struct {
	// NetworkID is the x402 protocol network identifier (e.g., "base").
	NetworkID string

	// ChainID is the EVM chain id used in the EIP-712 domain.
	ChainID int64

	// USDCAddress is the official Circle USDC contract address.
	USDCAddress string

	// Decimals is the number of decimal places for USDC (always 6).
	Decimals uint8

	// EIP3009Name is the EIP-712 domain "name" and the asset display name.
	EIP3009Name string

	// EIP3009Version is the EIP-712 domain "version".
	EIP3009Version string
}

// ChainIDBig returns the chain id as a *big.Int.
func (c ChainConfig) ChainIDBig() *big.Int {
	return big.NewInt(c.ChainID)
}

var (
	// BaseMainnet is the configuration for Base mainnet.
	BaseMainnet = ChainConfig{
		NetworkID:      "base",
		ChainID:        8453,
		USDCAddress:    "0x833589fCD6eDb6E08f4c7C32D4f71b54bdA02913",
		Decimals:       6,
		EIP3009Name:    "USD Coin",
		EIP3009Version: DomainVersion,
	}

	// BaseSepolia is the configuration for Base Sepolia testnet.
	BaseSepolia = ChainConfig{
		NetworkID:      "base-sepolia",
		ChainID:        84532,
		USDCAddress:    "0x036CbD53842c5426634e7929541eC2318f3dCF7e",
		Decimals:       6,
		EIP3009Name:    "USDC",
		EIP3009Version: DomainVersion,
	}
)

// network -> chain id -> asset. Both hops are static.
var (
	networkChainIDs = map[string]int64{
		BaseMainnet.NetworkID: BaseMainnet.ChainID,
		BaseSepolia.NetworkID: BaseSepolia.ChainID,
	}

	chainAssets = map[int64]ChainConfig{
		BaseMainnet.ChainID: BaseMainnet,
		BaseSepolia.ChainID: BaseSepolia,
	}
)

// LookupChain resolves a network identifier through the static table.
// An unknown network is an error, never a default.
func LookupChain(network string) (ChainConfig, error) {
	chainID, ok := networkChainIDs[network]
	if !ok {
		return ChainConfig{}, fmt.Errorf("%w: %q", ErrUnsupportedNetwork, network)
	}
	chain, ok := chainAssets[chainID]
	if !ok {
		return ChainConfig{}, fmt.Errorf("%w: no USDC for chain id %d", ErrUnsupportedNetwork, chainID)
	}
	return chain, nil
}

// SupportedNetworks lists the networks in the table.
func SupportedNetworks() []string {
	return []string{BaseMainnet.NetworkID, BaseSepolia.NetworkID}
}

// NewPaymentRequirement builds the requirement announced by a 402:// notification.
// Asset, display name and version come from the network table.
//
// Default values:
//   - Scheme: "exact"
//   - Resource: "https://x402ble.io"
//   - MimeType: "application/json"
//   - MaxTimeoutSeconds: 300
func NewPaymentRequirement(network, payTo, price string) (PaymentRequirement, error) {
	chain, err := LookupChain(network)
	if err != nil {
		return PaymentRequirement{}, err
	}
	if strings.TrimSpace(payTo) == "" {
		return PaymentRequirement{}, fmt.Errorf("payTo: cannot be empty")
	}
	amount, ok := new(big.Int).SetString(price, 10)
	if !ok || amount.Sign() < 0 {
		return PaymentRequirement{}, fmt.Errorf("%w: %q", ErrInvalidAmount, price)
	}

	return PaymentRequirement{
		Scheme:            SchemeExact,
		Network:           network,
		MaxAmountRequired: amount.String(),
		Asset:             chain.USDCAddress,
		PayTo:             payTo,
		Resource:          DefaultResource,
		MimeType:          DefaultMimeType,
		MaxTimeoutSeconds: DefaultTimeoutSeconds,
		Extra: map[string]interface{}{
			"name":    chain.EIP3009Name,
			"version": chain.EIP3009Version,
		},
	}, nil
}

package evm

import (
	"crypto/ecdsa"
	"encoding/hex"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/math"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/signer/core/apitypes"
	"github.com/x4pay/x402-ble-go"
)

// EIP3009Authorization represents the parameters for EIP-3009 transferWithAuthorization.
type EIP3009Authorization struct {
	From        common.Address
	To          common.Address
	Value       *big.Int
	ValidAfter  *big.Int
	ValidBefore *big.Int
	Nonce       common.Hash
}

// Domain is the EIP-712 domain of a USDC contract.
type Domain struct {
	Name              string
	Version           string
	ChainID           *big.Int
	VerifyingContract common.Address
}

// ParseAuthorization converts the wire form of an authorization into typed values.
func ParseAuthorization(a x402.EVMAuthorization) (*EIP3009Authorization, error) {
	if !common.IsHexAddress(a.From) {
		return nil, fmt.Errorf("invalid from address %q", a.From)
	}
	if !common.IsHexAddress(a.To) {
		return nil, fmt.Errorf("invalid to address %q", a.To)
	}

	value, ok := new(big.Int).SetString(a.Value, 10)
	if !ok || value.Sign() < 0 {
		return nil, fmt.Errorf("%w: value %q", x402.ErrInvalidAmount, a.Value)
	}
	validAfter, ok := new(big.Int).SetString(a.ValidAfter, 10)
	if !ok {
		return nil, fmt.Errorf("invalid validAfter %q", a.ValidAfter)
	}
	validBefore, ok := new(big.Int).SetString(a.ValidBefore, 10)
	if !ok {
		return nil, fmt.Errorf("invalid validBefore %q", a.ValidBefore)
	}

	nonce, err := hex.DecodeString(strings.TrimPrefix(a.Nonce, "0x"))
	if err != nil || len(nonce) != common.HashLength {
		return nil, fmt.Errorf("invalid nonce %q: want 32 bytes of hex", a.Nonce)
	}

	return &EIP3009Authorization{
		From:        common.HexToAddress(a.From),
		To:          common.HexToAddress(a.To),
		Value:       value,
		ValidAfter:  validAfter,
		ValidBefore: validBefore,
		Nonce:       common.BytesToHash(nonce),
	}, nil
}

// TypedData builds the EIP-712 TransferWithAuthorization document.
func TypedData(domain Domain, auth *EIP3009Authorization) apitypes.TypedData {
	return apitypes.TypedData{
		Types: apitypes.Types{
			"EIP712Domain": []apitypes.Type{
				{Name: "name", Type: "string"},
				{Name: "version", Type: "string"},
				{Name: "chainId", Type: "uint256"},
				{Name: "verifyingContract", Type: "address"},
			},
			"TransferWithAuthorization": []apitypes.Type{
				{Name: "from", Type: "address"},
				{Name: "to", Type: "address"},
				{Name: "value", Type: "uint256"},
				{Name: "validAfter", Type: "uint256"},
				{Name: "validBefore", Type: "uint256"},
				{Name: "nonce", Type: "bytes32"},
			},
		},
		PrimaryType: "TransferWithAuthorization",
		Domain: apitypes.TypedDataDomain{
			Name:              domain.Name,
			Version:           domain.Version,
			ChainId:           (*math.HexOrDecimal256)(domain.ChainID),
			VerifyingContract: domain.VerifyingContract.Hex(),
		},
		Message: apitypes.TypedDataMessage{
			"from":        auth.From.Hex(),
			"to":          auth.To.Hex(),
			"value":       (*math.HexOrDecimal256)(auth.Value),
			"validAfter":  (*math.HexOrDecimal256)(auth.ValidAfter),
			"validBefore": (*math.HexOrDecimal256)(auth.ValidBefore),
			"nonce":       auth.Nonce.Hex(),
		},
	}
}

// Digest computes keccak256("\x19\x01" || domainSeparator || messageHash).
func Digest(domain Domain, auth *EIP3009Authorization) ([]byte, error) {
	typedData := TypedData(domain, auth)

	domainSeparator, err := typedData.HashStruct("EIP712Domain", typedData.Domain.Map())
	if err != nil {
		return nil, fmt.Errorf("failed to hash domain: %w", err)
	}

	messageHash, err := typedData.HashStruct(typedData.PrimaryType, typedData.Message)
	if err != nil {
		return nil, fmt.Errorf("failed to hash message: %w", err)
	}

	rawData := append([]byte{0x19, 0x01}, append(domainSeparator, messageHash...)...)
	return crypto.Keccak256(rawData), nil
}

// SignTransferAuthorization signs an EIP-3009 transferWithAuthorization using EIP-712.
// The signature is 0x-prefixed hex with v in {27, 28}.
func SignTransferAuthorization(privateKey *ecdsa.PrivateKey, domain Domain, auth *EIP3009Authorization) (string, error) {
	digest, err := Digest(domain, auth)
	if err != nil {
		return "", x402.NewPaymentError(x402.ErrCodeSigningFailed, "failed to hash authorization", err)
	}

	signature, err := crypto.Sign(digest, privateKey)
	if err != nil {
		return "", x402.NewPaymentError(x402.ErrCodeSigningFailed, "failed to sign authorization", err)
	}

	// Adjust v value for Ethereum (27 or 28)
	signature[64] += 27

	return "0x" + hex.EncodeToString(signature), nil
}

// RecoverSigner returns the address that produced signature over the
// authorization's EIP-712 digest.
func RecoverSigner(domain Domain, auth *EIP3009Authorization, signature string) (common.Address, error) {
	digest, err := Digest(domain, auth)
	if err != nil {
		return common.Address{}, err
	}

	sig, err := common.ParseHexOrString(signature)
	if err != nil {
		return common.Address{}, fmt.Errorf("invalid signature encoding: %w", err)
	}
	if len(sig) != crypto.SignatureLength {
		return common.Address{}, fmt.Errorf("invalid signature length %d", len(sig))
	}

	// Convert the V value of the signature if necessary (27/28 → 0/1)
	sig = append([]byte(nil), sig...)
	if sig[64] == 27 || sig[64] == 28 {
		sig[64] -= 27
	}

	pubkey, err := crypto.SigToPub(digest, sig)
	if err != nil {
		return common.Address{}, fmt.Errorf("failed to recover public key: %w", err)
	}
	return crypto.PubkeyToAddress(*pubkey), nil
}

// DomainFor resolves the EIP-712 domain for a payment requirement: name and
// version from Extra, chain id from the network table, the asset as the
// verifying contract.
func DomainFor(req *x402.PaymentRequirement) (Domain, error) {
	chain, err := x402.LookupChain(req.Network)
	if err != nil {
		return Domain{}, err
	}

	name := req.ExtraString("name")
	if name == "" {
		name = chain.EIP3009Name
	}
	version := req.ExtraString("version")
	if version == "" {
		version = chain.EIP3009Version
	}
	asset := req.Asset
	if asset == "" {
		asset = chain.USDCAddress
	}
	if !common.IsHexAddress(asset) {
		return Domain{}, fmt.Errorf("invalid asset address %q", asset)
	}

	return Domain{
		Name:              name,
		Version:           version,
		ChainID:           chain.ChainIDBig(),
		VerifyingContract: common.HexToAddress(asset),
	}, nil
}

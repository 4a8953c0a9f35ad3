package transport

import (
	"crypto/ecdsa"
	"encoding/json"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	ethmath "github.com/ethereum/go-ethereum/common/math"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/signer/core/apitypes"

	"perpbench/internal/config"
)

// Signer holds the wallet key used to authorize every action sent to the
// venue. Every mutating request is signed as an EIP-712 "Agent" message over
// the action's connection id, the phantom-domain scheme the venue's L1
// signing uses in place of Polymarket's maker/taker order typed data.
type Signer struct {
	privateKey   *ecdsa.PrivateKey
	address      common.Address
	vaultAddress common.Address
	chainID      *big.Int
}

// NewSigner builds a Signer from wallet configuration.
func NewSigner(cfg config.WalletConfig) (*Signer, error) {
	keyHex := cfg.PrivateKey
	if len(keyHex) >= 2 && keyHex[:2] == "0x" {
		keyHex = keyHex[2:]
	}

	privateKey, err := crypto.HexToECDSA(keyHex)
	if err != nil {
		return nil, fmt.Errorf("parse private key: %w", err)
	}

	address := crypto.PubkeyToAddress(privateKey.PublicKey)

	vault := address
	if cfg.VaultAddress != "" {
		vault = common.HexToAddress(cfg.VaultAddress)
	}

	return &Signer{
		privateKey:   privateKey,
		address:      address,
		vaultAddress: vault,
		chainID:      big.NewInt(1337), // venue's signing chain id is fixed regardless of network_label
	}, nil
}

// Address returns the signer's wallet address.
func (s *Signer) Address() common.Address { return s.address }

// VaultAddress returns the account the signer is trading on behalf of (equal
// to Address when no vault/sub-account is configured).
func (s *Signer) VaultAddress() common.Address { return s.vaultAddress }

// SignAction signs an arbitrary action payload (already marshaled to its
// canonical form) under the venue's Agent phantom-domain scheme and returns
// the 65-byte [R || S || V] signature, hex-encoded with a 0x prefix.
func (s *Signer) SignAction(action any, nonce int64) (string, error) {
	connectionID, err := connectionIDOf(action, nonce)
	if err != nil {
		return "", fmt.Errorf("connection id: %w", err)
	}

	typedData := apitypes.TypedData{
		Types: apitypes.Types{
			"EIP712Domain": {
				{Name: "name", Type: "string"},
				{Name: "version", Type: "string"},
				{Name: "chainId", Type: "uint256"},
				{Name: "verifyingContract", Type: "address"},
			},
			"Agent": {
				{Name: "source", Type: "string"},
				{Name: "connectionId", Type: "bytes32"},
			},
		},
		PrimaryType: "Agent",
		Domain: apitypes.TypedDataDomain{
			Name:              "Exchange",
			Version:           "1",
			ChainId:           (*ethmath.HexOrDecimal256)(new(big.Int).Set(s.chainID)),
			VerifyingContract: "0x0000000000000000000000000000000000000000",
		},
		Message: apitypes.TypedDataMessage{
			"source":       "a",
			"connectionId": connectionID.Bytes(),
		},
	}

	hash, _, err := apitypes.TypedDataAndHash(typedData)
	if err != nil {
		return "", fmt.Errorf("typed data hash: %w", err)
	}

	sig, err := crypto.Sign(hash, s.privateKey)
	if err != nil {
		return "", fmt.Errorf("sign typed data: %w", err)
	}
	if sig[64] < 27 {
		sig[64] += 27
	}

	return "0x" + common.Bytes2Hex(sig), nil
}

// connectionIDOf hashes the JSON-canonicalized action together with its
// nonce, standing in for the venue's msgpack-encoded action hash: both
// schemes exist only to bind a signature to one specific action payload, and
// JSON marshaling is deterministic for the plain structs this package signs.
func connectionIDOf(action any, nonce int64) (common.Hash, error) {
	body, err := json.Marshal(action)
	if err != nil {
		return common.Hash{}, err
	}
	body = append(body, []byte(fmt.Sprintf(":%d", nonce))...)
	return crypto.Keccak256Hash(body), nil
}

package transport

import (
	"encoding/hex"
	"testing"

	"github.com/ethereum/go-ethereum/crypto"

	"perpbench/internal/config"
)

func hexPrivateKey(t *testing.T) string {
	t.Helper()
	key, err := crypto.GenerateKey()
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	return "0x" + hex.EncodeToString(crypto.FromECDSA(key))
}

func TestNewSignerDefaultsVaultToAddress(t *testing.T) {
	t.Parallel()

	s, err := NewSigner(config.WalletConfig{PrivateKey: hexPrivateKey(t)})
	if err != nil {
		t.Fatalf("NewSigner: %v", err)
	}
	if s.VaultAddress() != s.Address() {
		t.Errorf("VaultAddress = %s, want %s", s.VaultAddress(), s.Address())
	}
}

func TestSignActionIsDeterministicForSameNonce(t *testing.T) {
	t.Parallel()

	s, err := NewSigner(config.WalletConfig{PrivateKey: hexPrivateKey(t)})
	if err != nil {
		t.Fatalf("NewSigner: %v", err)
	}

	action := map[string]any{"type": "order", "coin": "ETH"}

	sig1, err := s.SignAction(action, 42)
	if err != nil {
		t.Fatalf("SignAction: %v", err)
	}
	sig2, err := s.SignAction(action, 42)
	if err != nil {
		t.Fatalf("SignAction: %v", err)
	}
	if sig1 != sig2 {
		t.Errorf("expected identical signatures for identical action+nonce, got %s != %s", sig1, sig2)
	}

	sig3, err := s.SignAction(action, 43)
	if err != nil {
		t.Fatalf("SignAction: %v", err)
	}
	if sig1 == sig3 {
		t.Error("expected different signatures for different nonces")
	}
}

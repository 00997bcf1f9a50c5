package utils

import (
	"errors"
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/accounts"
	"github.com/ethereum/go-ethereum/common/hexutil"
	gethcrypto "github.com/ethereum/go-ethereum/crypto"
)

var ErrSignatureMismatch = errors.New("signature does not match address")

// LoginMessage is the text a wallet signs to prove it controls address.
func LoginMessage(address, nonce string) string {
	return fmt.Sprintf("Sign in to RepairCoin\nAddress: %s\nNonce: %s", address, nonce)
}

// VerifySignature checks an EIP-191 personal_sign signature over message.
func VerifySignature(address, message, signatureHex string) error {
	want, err := NormalizeAddress(address)
	if err != nil {
		return err
	}
	sig, err := hexutil.Decode(strings.TrimSpace(signatureHex))
	if err != nil {
		return fmt.Errorf("decode signature: %w", err)
	}
	if len(sig) != gethcrypto.SignatureLength {
		return fmt.Errorf("signature must be %d bytes", gethcrypto.SignatureLength)
	}
	// Wallets emit v as 27/28; go-ethereum expects 0/1.
	if sig[gethcrypto.RecoveryIDOffset] >= 27 {
		sig[gethcrypto.RecoveryIDOffset] -= 27
	}
	pub, err := gethcrypto.SigToPub(accounts.TextHash([]byte(message)), sig)
	if err != nil {
		return fmt.Errorf("recover signer: %w", err)
	}
	got := strings.ToLower(gethcrypto.PubkeyToAddress(*pub).Hex())
	if got != want {
		return ErrSignatureMismatch
	}
	return nil
}

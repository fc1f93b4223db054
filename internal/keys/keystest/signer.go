// Package keystest provides a wallet-side signer for tests that need real signatures.
package keystest

import (
	"context"
	"crypto/sha256"
	"testing"

	ec "github.com/bsv-blockchain/go-sdk/primitives/ec"
	"github.com/bsv-blockchain/go-sdk/wallet"
	"github.com/stretchr/testify/require"

	"paymail-bridge/internal/keys"
)

// Signer plays the role of a BRC-100 wallet holding one identity key.
type Signer struct {
	priv   *ec.PrivateKey
	wallet *wallet.ProtoWallet
}

// NewSigner creates a signer with a fresh random identity key.
func NewSigner(t testing.TB) *Signer {
	t.Helper()
	priv, err := ec.NewPrivateKey()
	require.NoError(t, err)
	w, err := wallet.NewProtoWallet(wallet.ProtoWalletArgs{
		Type:       wallet.ProtoWalletArgsTypePrivateKey,
		PrivateKey: priv,
	})
	require.NoError(t, err)
	return &Signer{priv: priv, wallet: w}
}

// IdentityKey returns the signer's compressed public key as hex.
func (s *Signer) IdentityKey() string {
	return s.priv.PubKey().ToDERHex()
}

// Sign signs data for protocol/keyID with "anyone" as the counterparty, the way a
// wallet signs requests addressed to the bridge.
func (s *Signer) Sign(t testing.TB, data []byte, protocol keys.Protocol, keyID string) []byte {
	t.Helper()
	res, err := s.wallet.CreateSignature(context.Background(), wallet.CreateSignatureArgs{
		EncryptionArgs: wallet.EncryptionArgs{
			ProtocolID: wallet.Protocol{
				SecurityLevel: wallet.SecurityLevel(protocol.SecurityLevel),
				Protocol:      protocol.Name,
			},
			KeyID:        keyID,
			Counterparty: wallet.Counterparty{Type: wallet.CounterpartyTypeAnyone},
		},
		Data: data,
	}, "")
	require.NoError(t, err)
	return res.Signature.Serialize()
}

// SignMessage produces a plain DER ECDSA signature over sha256(message).
func (s *Signer) SignMessage(t testing.TB, message []byte) []byte {
	t.Helper()
	digest := sha256.Sum256(message)
	sig, err := s.priv.Sign(digest[:])
	require.NoError(t, err)
	return sig.Serialize()
}

// OwnPaymentKey derives, on the recipient side, the public key a sender derived for
// this signer with protocol/keyID. It must equal the key the bridge issued.
func (s *Signer) OwnPaymentKey(t testing.TB, protocol keys.Protocol, keyID, senderIdentityKey string) string {
	t.Helper()
	sender, err := keys.ParsePublicKey(senderIdentityKey)
	require.NoError(t, err)
	pub, err := wallet.NewKeyDeriver(s.priv).DerivePublicKey(wallet.Protocol{
		SecurityLevel: wallet.SecurityLevel(protocol.SecurityLevel),
		Protocol:      protocol.Name,
	}, keyID, wallet.Counterparty{Type: wallet.CounterpartyTypeOther, Counterparty: sender}, true)
	require.NoError(t, err)
	return pub.ToDERHex()
}

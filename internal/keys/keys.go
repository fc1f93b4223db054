// Package keys is the bridge's signature and key-derivation capability. It wraps the
// go-sdk "anyone" wallet: signatures are verified with the caller's identity key as
// the counterparty, and payment keys are derived for a recipient identity key.
package keys

import (
	"context"
	"crypto/sha256"
	"errors"
	"fmt"

	ec "github.com/bsv-blockchain/go-sdk/primitives/ec"
	"github.com/bsv-blockchain/go-sdk/script"
	"github.com/bsv-blockchain/go-sdk/transaction/template/p2pkh"
	"github.com/bsv-blockchain/go-sdk/wallet"
)

// ErrInvalidKey is returned when a public key string cannot be parsed.
var ErrInvalidKey = errors.New("invalid public key")

// VerifyRequest is a signature produced by Counterparty over Data for Protocol/KeyID.
type VerifyRequest struct {
	Data         []byte
	Signature    []byte
	Protocol     Protocol
	KeyID        string
	Counterparty string
}

// Destination is a derived payment key and its P2PKH locking script, both hex.
type Destination struct {
	PublicKey string
	Script    string
}

// Provider is the cryptographic capability used by the guard, the registry and
// the destination issuer.
type Provider interface {
	VerifySignature(ctx context.Context, req VerifyRequest) (bool, error)
	VerifyMessage(message, signature []byte, identityKey string) (bool, error)
	DeriveDestination(protocol Protocol, keyID, counterparty string) (Destination, error)
	IdentityKey() string
	AddressFor(identityKey string) (string, error)
}

// SDKProvider implements Provider with go-sdk primitives.
type SDKProvider struct {
	verifier *wallet.ProtoWallet
	deriver  *wallet.KeyDeriver
	mainnet  bool
}

// NewSDKProvider builds the provider around the well-known "anyone" key.
func NewSDKProvider(mainnet bool) (*SDKProvider, error) {
	verifier, err := wallet.NewProtoWallet(wallet.ProtoWalletArgs{Type: wallet.ProtoWalletArgsTypeAnyone})
	if err != nil {
		return nil, fmt.Errorf("create anyone wallet: %w", err)
	}
	return &SDKProvider{
		verifier: verifier,
		deriver:  wallet.NewKeyDeriver(nil),
		mainnet:  mainnet,
	}, nil
}

// IdentityKey is the bridge's deriving identity, recorded as senderIdentityKey.
func (p *SDKProvider) IdentityKey() string {
	return p.deriver.IdentityKeyHex()
}

// VerifySignature reports whether req.Signature is a valid signature over req.Data.
// A signature that does not parse is reported as invalid, not as an error.
func (p *SDKProvider) VerifySignature(ctx context.Context, req VerifyRequest) (bool, error) {
	counterparty, err := ParsePublicKey(req.Counterparty)
	if err != nil {
		return false, err
	}
	sig, err := ec.ParseSignature(req.Signature)
	if err != nil {
		return false, nil
	}
	res, err := p.verifier.VerifySignature(ctx, wallet.VerifySignatureArgs{
		EncryptionArgs: wallet.EncryptionArgs{
			ProtocolID: toWalletProtocol(req.Protocol),
			KeyID:      req.KeyID,
			Counterparty: wallet.Counterparty{
				Type:         wallet.CounterpartyTypeOther,
				Counterparty: counterparty,
			},
		},
		Data:      req.Data,
		Signature: sig,
	}, "")
	if err != nil {
		return false, fmt.Errorf("verify signature: %w", err)
	}
	return res.Valid, nil
}

// VerifyMessage checks a plain ECDSA signature (DER) by identityKey over sha256(message).
func (p *SDKProvider) VerifyMessage(message, signature []byte, identityKey string) (bool, error) {
	pub, err := ParsePublicKey(identityKey)
	if err != nil {
		return false, err
	}
	sig, err := ec.ParseSignature(signature)
	if err != nil {
		return false, nil
	}
	digest := sha256.Sum256(message)
	return sig.Verify(digest[:], pub), nil
}

// DeriveDestination derives the payment key owned by counterparty for protocol/keyID.
func (p *SDKProvider) DeriveDestination(protocol Protocol, keyID, counterparty string) (Destination, error) {
	recipient, err := ParsePublicKey(counterparty)
	if err != nil {
		return Destination{}, err
	}
	derived, err := p.deriver.DerivePublicKey(toWalletProtocol(protocol), keyID, wallet.Counterparty{
		Type:         wallet.CounterpartyTypeOther,
		Counterparty: recipient,
	}, false)
	if err != nil {
		return Destination{}, fmt.Errorf("derive public key: %w", err)
	}
	lock, err := LockingScript(derived, p.mainnet)
	if err != nil {
		return Destination{}, err
	}
	return Destination{PublicKey: derived.ToDERHex(), Script: lock}, nil
}

// AddressFor returns the base58 P2PKH address of identityKey.
func (p *SDKProvider) AddressFor(identityKey string) (string, error) {
	pub, err := ParsePublicKey(identityKey)
	if err != nil {
		return "", err
	}
	addr, err := script.NewAddressFromPublicKey(pub, p.mainnet)
	if err != nil {
		return "", fmt.Errorf("address from public key: %w", err)
	}
	return addr.AddressString, nil
}

// LockingScript returns the hex P2PKH locking script paying pub.
func LockingScript(pub *ec.PublicKey, mainnet bool) (string, error) {
	addr, err := script.NewAddressFromPublicKey(pub, mainnet)
	if err != nil {
		return "", fmt.Errorf("address from public key: %w", err)
	}
	lock, err := p2pkh.Lock(addr)
	if err != nil {
		return "", fmt.Errorf("p2pkh lock: %w", err)
	}
	return lock.String(), nil
}

// ParsePublicKey parses a hex (DER compressed or uncompressed) public key.
func ParsePublicKey(s string) (*ec.PublicKey, error) {
	if s == "" {
		return nil, ErrInvalidKey
	}
	pub, err := ec.PublicKeyFromString(s)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidKey, err)
	}
	return pub, nil
}

func toWalletProtocol(p Protocol) wallet.Protocol {
	return wallet.Protocol{
		SecurityLevel: wallet.SecurityLevel(p.SecurityLevel),
		Protocol:      p.Name,
	}
}

package handler

import (
	"strings"

	"paymail-bridge/internal/alias/service"
	"paymail-bridge/internal/auth"
	"paymail-bridge/internal/keys"
	dErrors "paymail-bridge/pkg/domain-errors"
)

// RegisterRequest is the body of POST /api/brc-100/register. Signature is the DER
// signature over sha256(alias), hex encoded or as a byte array.
type RegisterRequest struct {
	Alias       string         `json:"alias"`
	IdentityKey string         `json:"identityKey"`
	Signature   keys.Bytes     `json:"signature"`
	ProtocolID  *keys.Protocol `json:"protocolID,omitempty"`
	KeyID       string         `json:"keyID,omitempty"`
}

func (r *RegisterRequest) Normalize() {
	r.Alias = strings.TrimSpace(r.Alias)
	r.IdentityKey = strings.TrimSpace(r.IdentityKey)
}

func (r *RegisterRequest) Validate() error {
	if r.Alias == "" {
		return dErrors.New(dErrors.CodeValidation, "alias is required")
	}
	if r.IdentityKey == "" {
		return dErrors.New(dErrors.CodeValidation, "Identity key is required")
	}
	if len(r.Signature) == 0 {
		return dErrors.New(dErrors.CodeValidation, "signature is required")
	}
	return nil
}

func (r *RegisterRequest) Command() service.RegisterCommand {
	return service.RegisterCommand{
		Alias:       r.Alias,
		IdentityKey: r.IdentityKey,
		Signature:   r.Signature,
		ProtocolID:  r.ProtocolID,
		KeyID:       r.KeyID,
	}
}

// RegisterIdentityKeyRequest is the body of POST /api/brc-100/register-identity-key.
type RegisterIdentityKeyRequest struct {
	IdentityKey string `json:"identityKey"`
}

func (r *RegisterIdentityKeyRequest) Normalize() {
	r.IdentityKey = strings.TrimSpace(r.IdentityKey)
}

func (r *RegisterIdentityKeyRequest) Validate() error {
	if r.IdentityKey == "" {
		return dErrors.New(dErrors.CodeValidation, "Identity key is required")
	}
	return nil
}

// DeleteAliasRequest is a signed envelope naming the alias to delete.
type DeleteAliasRequest struct {
	auth.Envelope
	Alias string `json:"alias"`
}

func (r *DeleteAliasRequest) Normalize() {
	r.Envelope.Normalize()
	r.Alias = strings.TrimSpace(r.Alias)
}

func (r *DeleteAliasRequest) Validate() error {
	if err := r.Envelope.Validate(); err != nil {
		return err
	}
	if r.Alias == "" {
		return dErrors.New(dErrors.CodeValidation, "Invalid alias format")
	}
	return nil
}

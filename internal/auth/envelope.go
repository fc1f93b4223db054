package auth

import (
	"strings"

	"paymail-bridge/internal/keys"
	dErrors "paymail-bridge/pkg/domain-errors"
)

// Envelope is the signed part of every identity-scoped request body.
type Envelope struct {
	Data        keys.Bytes    `json:"data"`
	IdentityKey string        `json:"identityKey"`
	ProtocolID  keys.Protocol `json:"protocolID"`
	KeyID       string        `json:"keyID"`
	Signature   keys.Bytes    `json:"signature"`
}

func (e *Envelope) Normalize() {
	e.IdentityKey = strings.TrimSpace(e.IdentityKey)
	e.KeyID = strings.TrimSpace(e.KeyID)
}

// Validate rejects envelopes missing a field the guard needs.
func (e *Envelope) Validate() error {
	if e.IdentityKey == "" {
		return dErrors.New(dErrors.CodeValidation, "Identity key is required")
	}
	if e.KeyID == "" {
		return dErrors.New(dErrors.CodeValidation, "keyID is required")
	}
	if len(e.Data) == 0 {
		return dErrors.New(dErrors.CodeValidation, "data is required")
	}
	if len(e.Signature) == 0 {
		return dErrors.New(dErrors.CodeValidation, "signature is required")
	}
	if err := e.ProtocolID.Validate(); err != nil {
		return dErrors.Wrap(err, dErrors.CodeValidation, "invalid protocolID")
	}
	return nil
}

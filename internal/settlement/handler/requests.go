package handler

import (
	"strings"

	dErrors "paymail-bridge/pkg/domain-errors"
)

// TxRequest is the body of the raw transaction endpoint.
type TxRequest struct {
	Hex       string         `json:"hex"`
	Reference string         `json:"reference"`
	Metadata  map[string]any `json:"metadata"`
}

func (r *TxRequest) Normalize() {
	r.Hex = strings.TrimSpace(r.Hex)
	r.Reference = strings.TrimSpace(r.Reference)
}

func (r *TxRequest) Validate() error {
	if r.Hex == "" {
		return dErrors.New(dErrors.CodeValidation, "hex is required")
	}
	return validateReference(r.Reference)
}

// BeefRequest is the body of the BEEF endpoint.
type BeefRequest struct {
	Beef      string         `json:"beef"`
	Reference string         `json:"reference"`
	Metadata  map[string]any `json:"metadata"`
}

func (r *BeefRequest) Normalize() {
	r.Beef = strings.TrimSpace(r.Beef)
	r.Reference = strings.TrimSpace(r.Reference)
}

func (r *BeefRequest) Validate() error {
	if r.Beef == "" {
		return dErrors.New(dErrors.CodeValidation, "beef is required")
	}
	return validateReference(r.Reference)
}

func validateReference(reference string) error {
	if reference == "" {
		return dErrors.New(dErrors.CodeValidation, "reference is required")
	}
	return nil
}

package handler

import (
	dErrors "paymail-bridge/pkg/domain-errors"
)

// IssueRequest is the body of the destination endpoints.
type IssueRequest struct {
	Satoshis uint64 `json:"satoshis"`
}

func (r *IssueRequest) Validate() error {
	if r.Satoshis == 0 {
		return dErrors.New(dErrors.CodeValidation, "satoshis must be a positive integer")
	}
	return nil
}

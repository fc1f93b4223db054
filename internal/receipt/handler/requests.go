package handler

import (
	dErrors "paymail-bridge/pkg/domain-errors"
	strutil "paymail-bridge/pkg/platform/strings"
)

// AcknowledgeRequest is the body of POST /api/brc-100/ack.
type AcknowledgeRequest struct {
	TxIDs []string `json:"txids"`
}

func (r *AcknowledgeRequest) Normalize() {
	r.TxIDs = strutil.DedupeAndTrimLower(r.TxIDs)
}

func (r *AcknowledgeRequest) Validate() error {
	if len(r.TxIDs) == 0 {
		return dErrors.New(dErrors.CodeValidation, "txids must be a non-empty array")
	}
	return nil
}

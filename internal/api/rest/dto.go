package rest

import "encoding/json"

// InitializeRequest is the body of POST /ledger/initialize
type InitializeRequest struct {
	Name   string `json:"name" binding:"required"`
	Symbol string `json:"symbol" binding:"required"`
}

// MintRequest is the body of POST /tokens
type MintRequest struct {
	TokenID  string          `json:"token_id" binding:"required"`
	Owner    string          `json:"owner" binding:"required"`
	Balance  string          `json:"balance" binding:"required"`
	Slot     json.RawMessage `json:"slot" binding:"required"`
	Metadata json.RawMessage `json:"metadata" binding:"required"`
	TxID     string          `json:"tx_id" binding:"required"`
}

// BurnRequest is the body of POST /tokens/:token_id/burn. An empty amount
// burns the whole token record.
type BurnRequest struct {
	Owner  string `json:"owner" binding:"required"`
	Amount string `json:"amount"`
	TxID   string `json:"tx_id" binding:"required"`
}

// PayloadRequest carries an opaque operation payload plus the transaction
// ID used for idempotency. It covers the ticket lifecycle, trade, and
// distribution endpoints whose payload shape the ledger validates itself.
type PayloadRequest struct {
	Payload json.RawMessage `json:"payload" binding:"required"`
	TxID    string          `json:"tx_id" binding:"required"`
}

// EvidenceRequest is the body of POST /evidence
type EvidenceRequest struct {
	EvidenceID string          `json:"evidence_id" binding:"required"`
	Document   json.RawMessage `json:"document" binding:"required"`
	TxID       string          `json:"tx_id" binding:"required"`
}

// VerifyEvidenceRequest is the body of POST /evidence/:evidence_id/verify
type VerifyEvidenceRequest struct {
	Document json.RawMessage `json:"document" binding:"required"`
}

// SetOrgAdminRequest is the body of POST /admins
type SetOrgAdminRequest struct {
	Org    string   `json:"org" binding:"required"`
	Admins []string `json:"admins" binding:"required"`
}

// SuccessResponse is the uniform response for mutating operations
type SuccessResponse struct {
	Success bool `json:"success"`
}

// VerifyEvidenceResponse reports whether a document matches its stored hash
type VerifyEvidenceResponse struct {
	Valid bool `json:"valid"`
}

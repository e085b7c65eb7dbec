package domain

import (
	"fmt"
	"strconv"
	"strings"
)

// TicketStatus represents the lifecycle state carried in TicketData.status
type TicketStatus int

const (
	TicketStatusMinted    TicketStatus = 0
	TicketStatusIssued    TicketStatus = 1
	TicketStatusCheckedIn TicketStatus = 2
	TicketStatusUsed      TicketStatus = 3
	TicketStatusExpired   TicketStatus = 4
)

// Terminal reports whether a status admits no further transitions
func (s TicketStatus) Terminal() bool {
	return s == TicketStatusUsed || s == TicketStatusExpired
}

// StockBatch is a provenance-tagged fragment of a token's balance.
// Amounts are decimal strings, same convention as quantity columns in
// multi-edition token indexing.
type StockBatch struct {
	StockBatchNumber string `json:"stock_batch_number"`
	Amount           string `json:"amount"`
}

// Metadata holds per-token presentation fields
type Metadata struct {
	TokenURL    string `json:"token_url"`
	Description string `json:"description"`
}

// NFT is the primary token record: one per (token, owner, organization).
// Balance is the currently spendable value; TotalBalance the historical
// maximum ever held. StockBatches records which provenance batches compose
// the current balance.
type NFT struct {
	TokenID      string       `json:"token_id"`
	Owner        string       `json:"owner"`
	Org          string       `json:"org"`
	Balance      string       `json:"balance"`
	TotalBalance string       `json:"total_balance"`
	Metadata     Metadata     `json:"metadata"`
	StockBatches []StockBatch `json:"stockBatchNumber"`
	// Slot is populated on the read path only; sub-records are stored
	// separately so high-churn fields are not rewritten with the primary.
	Slot *Slot `json:"slot,omitempty"`
}

// AdditionalInformation groups the mutable slot sub-records
type AdditionalInformation struct {
	TicketData      map[string]any   `json:"TicketData"`
	PriceInfo       []map[string]any `json:"PriceInfo"`
	TicketCheckData []map[string]any `json:"TicketCheckData"`
	StockInfo       map[string]any   `json:"StockInfo"`
}

// Slot is the nested product descriptor of a token. BasicInformation is
// immutable after mint; AdditionalInformation holds the per-ticket state.
type Slot struct {
	BasicInformation      map[string]any        `json:"BasicInformation"`
	AdditionalInformation AdditionalInformation `json:"AdditionalInformation"`
}

// TokenIndex is the genesis record written once at mint; OwnerOf, SlotOf
// and TokenURI resolve through it after the token has been split across
// owners.
type TokenIndex struct {
	TokenID string `json:"token_id"`
	Owner   string `json:"owner"`
	Org     string `json:"org"`
}

// Order is stored verbatim after preset validation; StockBatchInfo drives
// refund conservation checks.
type Order struct {
	OrderID        string       `json:"order_id"`
	TokenID        string       `json:"token_id"`
	SellerID       string       `json:"seller_id"`
	BuyerID        string       `json:"buyer_id"`
	Amount         string       `json:"amount"`
	OrderTime      string       `json:"order_time"`
	StockBatchInfo []StockBatch `json:"stock_batch_info"`
}

// Evidence is a content-addressed record of an opaque payload hash
type Evidence struct {
	Hash      string `json:"hash"`
	Submitter string `json:"submitter"`
	StoredAt  string `json:"stored_at"`
}

// CreditLine records a line of credit granted to a merchant by an issuer
type CreditLine struct {
	Account    string `json:"account"`
	MerchantID string `json:"merchant_id"`
	IssuerID   string `json:"issuer_id"`
	Amount     string `json:"amount"`
	UpdatedAt  string `json:"updated_at"`
}

// PaymentRecord is one entry in the payment flow log
type PaymentRecord struct {
	MerchantID              string `json:"merchant_id"`
	Account                 string `json:"account"`
	Amount                  string `json:"amount"`
	TransactionSerialNumber string `json:"transaction_serial_number"`
	CreatedAt               string `json:"created_at"`
}

// ParseAmount parses a non-negative decimal string amount.
// All value fields cross the contract boundary as strings; this is the
// single normalization point for them.
func ParseAmount(s string) (int64, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, fmt.Errorf("amount should not be empty")
	}
	v, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid amount %q", s)
	}
	if v < 0 {
		return 0, fmt.Errorf("amount must not be negative: %s", s)
	}
	return v, nil
}

// FormatAmount renders an amount back to its canonical string form
func FormatAmount(v int64) string {
	return strconv.FormatInt(v, 10)
}

// BatchTotal sums the batch amounts of a stock batch list
func BatchTotal(batches []StockBatch) (int64, error) {
	var total int64
	for _, b := range batches {
		v, err := ParseAmount(b.Amount)
		if err != nil {
			return 0, fmt.Errorf("stock batch %s: %w", b.StockBatchNumber, err)
		}
		total += v
	}
	return total, nil
}

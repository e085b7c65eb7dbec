// Package keys builds the composite-key namespace for all ledger records.
// Every entity kind gets one constructor so key shapes live in one place
// instead of ad hoc string joins at call sites.
package keys

import (
	"fmt"
	"strings"
)

// sep separates the kind tag and segments inside a serialized key. U+0000
// never appears in well-formed segments, so partial keys are natural
// range-scan prefixes of full keys.
const sep = "\x00"

// Kind tags one entity namespace
type Kind string

const (
	KindNFT        Kind = "nft"
	KindTokenIndex Kind = "token"
	KindRegistry   Kind = "orgadmin"
	KindTx         Kind = "tx"
	KindTrade      Kind = "trade"
	KindOrder      Kind = "order"
	KindRefund     Kind = "refund"
	KindCredit     Kind = "credit"
	KindPayment    Kind = "payment"
	KindEvidence   Kind = "evidence"
	KindMeta       Kind = "contractmeta"
)

// Slot sub-record suffixes. Sub-records are keyed by the token key plus
// one of these, so each can be rewritten without touching the others.
const (
	SubBasicInfo  = "basicinfo"
	SubPriceInfo  = "priceinfo"
	SubCheckData  = "checkdata"
	SubTicketData = "ticketdata"
	SubStockInfo  = "stockinfo"
)

// SlotSubs lists the sub-record suffixes in their canonical order
var SlotSubs = []string{SubBasicInfo, SubPriceInfo, SubCheckData, SubTicketData, SubStockInfo}

// Key is a typed composite key
type Key struct {
	Kind     Kind
	Segments []string
}

// String serializes the key. A key with fewer segments serializes to a
// strict prefix of keys with more, which is what List relies on.
func (k Key) String() string {
	var b strings.Builder
	b.WriteString(sep)
	b.WriteString(string(k.Kind))
	b.WriteString(sep)
	for _, s := range k.Segments {
		b.WriteString(s)
		b.WriteString(sep)
	}
	return b.String()
}

// Valid rejects keys whose segments would collide with the separator
func (k Key) Valid() error {
	if k.Kind == "" {
		return fmt.Errorf("key kind is empty")
	}
	if strings.Contains(string(k.Kind), sep) {
		return fmt.Errorf("key kind contains separator")
	}
	for i, s := range k.Segments {
		if s == "" {
			return fmt.Errorf("key segment %d is empty", i)
		}
		for _, r := range s {
			if r < 0x20 {
				return fmt.Errorf("key segment %d contains control character", i)
			}
		}
	}
	return nil
}

// Parse reverses String. It accepts only fully-delimited keys.
func Parse(s string) (Key, error) {
	if !strings.HasPrefix(s, sep) || !strings.HasSuffix(s, sep) {
		return Key{}, fmt.Errorf("malformed key %q", s)
	}
	parts := strings.Split(strings.Trim(s, sep), sep)
	if len(parts) == 0 || parts[0] == "" {
		return Key{}, fmt.Errorf("malformed key %q", s)
	}
	k := Key{Kind: Kind(parts[0])}
	if len(parts) > 1 {
		k.Segments = parts[1:]
	}
	return k, nil
}

// Token is the primary record key: one per (token, owner, organization)
func Token(tokenID, owner, org string) Key {
	return Key{Kind: KindNFT, Segments: []string{tokenID, owner, org}}
}

// TokenPrefix scans all owner-scoped records (and sub-records) of a token
func TokenPrefix(tokenID string) Key {
	return Key{Kind: KindNFT, Segments: []string{tokenID}}
}

// AllTokens scans every record in the nft namespace
func AllTokens() Key {
	return Key{Kind: KindNFT}
}

// TokenSub addresses one slot sub-record of a token
func TokenSub(tokenID, owner, org, sub string) Key {
	return Key{Kind: KindNFT, Segments: []string{tokenID, owner, org, sub}}
}

// IsTokenPrimary reports whether a parsed nft-kind key addresses a primary
// record rather than a slot sub-record.
func IsTokenPrimary(k Key) bool {
	return k.Kind == KindNFT && len(k.Segments) == 3
}

// TokenIndex is the genesis record key written once at mint
func TokenIndex(tokenID string) Key {
	return Key{Kind: KindTokenIndex, Segments: []string{tokenID}}
}

// Registry is the single org-admin registry record
func Registry() Key {
	return Key{Kind: KindRegistry}
}

// Tx marks a consumed transaction idempotency token
func Tx(uuid string) Key {
	return Key{Kind: KindTx, Segments: []string{uuid}}
}

// Trade marks a consumed trade number
func Trade(tradeNo string) Key {
	return Key{Kind: KindTrade, Segments: []string{tradeNo}}
}

func Order(orderID string) Key {
	return Key{Kind: KindOrder, Segments: []string{orderID}}
}

// Refund keys refunds under their originating order so prior refunds are
// one prefix scan away.
func Refund(orderID, refundID string) Key {
	return Key{Kind: KindRefund, Segments: []string{orderID, refundID}}
}

func RefundPrefix(orderID string) Key {
	return Key{Kind: KindRefund, Segments: []string{orderID}}
}

// Credit keys a credit line by account within a merchant
func Credit(account, merchantID string) Key {
	return Key{Kind: KindCredit, Segments: []string{account, merchantID}}
}

func Payment(serial string) Key {
	return Key{Kind: KindPayment, Segments: []string{serial}}
}

func Evidence(evidenceID string) Key {
	return Key{Kind: KindEvidence, Segments: []string{evidenceID}}
}

// Meta is the contract metadata record written by Initialize
func Meta() Key {
	return Key{Kind: KindMeta}
}

// Package token implements the token ledger core: entity lifecycle and
// provenance-tracked value accounting. Every mutation is read-modify-write
// over the latest committed record; conservation of value across split,
// burn and credit operations is enforced here.
package token

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/seatrail/ticket-ledger/internal/domain"
	"github.com/seatrail/ticket-ledger/internal/keys"
	"github.com/seatrail/ticket-ledger/internal/store"
)

// Ledger performs token-record bookkeeping on a ledger KV
type Ledger struct {
	kv store.KV
}

func New(kv store.KV) *Ledger {
	return &Ledger{kv: kv}
}

// Index returns the genesis index record of a token, or a not-found error
func (l *Ledger) Index(ctx context.Context, tokenID string) (*domain.TokenIndex, error) {
	raw, err := l.kv.Get(ctx, keys.TokenIndex(tokenID))
	if err != nil {
		return nil, err
	}
	if raw == nil {
		return nil, domain.NewNotFound("token %s does not exist", tokenID)
	}
	var idx domain.TokenIndex
	if err := json.Unmarshal(raw, &idx); err != nil {
		return nil, fmt.Errorf("corrupt token index %s: %w", tokenID, err)
	}
	return &idx, nil
}

// Exists reports whether any record of the token has been minted
func (l *Ledger) Exists(ctx context.Context, tokenID string) (bool, error) {
	raw, err := l.kv.Get(ctx, keys.TokenIndex(tokenID))
	if err != nil {
		return false, err
	}
	return raw != nil, nil
}

// Primary reads the owner-scoped primary record without slot sub-records.
// Returns (nil, nil) when absent.
func (l *Ledger) Primary(ctx context.Context, tokenID, owner, org string) (*domain.NFT, error) {
	raw, err := l.kv.Get(ctx, keys.Token(tokenID, owner, org))
	if err != nil {
		return nil, err
	}
	if raw == nil {
		return nil, nil
	}
	var nft domain.NFT
	if err := json.Unmarshal(raw, &nft); err != nil {
		return nil, fmt.Errorf("corrupt token record %s/%s: %w", tokenID, owner, err)
	}
	return &nft, nil
}

func (l *Ledger) writePrimary(ctx context.Context, nft *domain.NFT) error {
	raw, err := json.Marshal(nft)
	if err != nil {
		return err
	}
	return l.kv.Put(ctx, keys.Token(nft.TokenID, nft.Owner, nft.Org), raw)
}

// Mint creates a token: genesis index, primary record and the five slot
// sub-records. Fails if the token id was ever minted.
func (l *Ledger) Mint(ctx context.Context, tokenID, owner, org string, balance int64, meta domain.Metadata, slot *domain.Slot) (*domain.NFT, error) {
	if tokenID == "" {
		return nil, fmt.Errorf("token_id should not be empty")
	}
	if owner == "" {
		return nil, fmt.Errorf("owner should not be empty")
	}
	if balance <= 0 {
		return nil, domain.NewInvariant("mint balance must be positive, got %d", balance)
	}
	exists, err := l.Exists(ctx, tokenID)
	if err != nil {
		return nil, err
	}
	if exists {
		return nil, domain.NewConflict("token %s already minted", tokenID)
	}

	idx := domain.TokenIndex{TokenID: tokenID, Owner: owner, Org: org}
	rawIdx, err := json.Marshal(idx)
	if err != nil {
		return nil, err
	}
	if err := l.kv.Put(ctx, keys.TokenIndex(tokenID), rawIdx); err != nil {
		return nil, err
	}

	nft := &domain.NFT{
		TokenID:      tokenID,
		Owner:        owner,
		Org:          org,
		Balance:      domain.FormatAmount(balance),
		TotalBalance: domain.FormatAmount(balance),
		Metadata:     meta,
		StockBatches: []domain.StockBatch{},
	}
	if err := l.writePrimary(ctx, nft); err != nil {
		return nil, err
	}
	if err := l.writeSlot(ctx, tokenID, owner, org, slot); err != nil {
		return nil, err
	}

	read := *nft
	read.Slot = slot
	return &read, nil
}

func (l *Ledger) writeSlot(ctx context.Context, tokenID, owner, org string, slot *domain.Slot) error {
	subs := map[string]any{
		keys.SubBasicInfo:  slot.BasicInformation,
		keys.SubTicketData: slot.AdditionalInformation.TicketData,
		keys.SubPriceInfo:  slot.AdditionalInformation.PriceInfo,
		keys.SubCheckData:  slot.AdditionalInformation.TicketCheckData,
		keys.SubStockInfo:  slot.AdditionalInformation.StockInfo,
	}
	for _, sub := range keys.SlotSubs {
		raw, err := json.Marshal(subs[sub])
		if err != nil {
			return err
		}
		if err := l.kv.Put(ctx, keys.TokenSub(tokenID, owner, org, sub), raw); err != nil {
			return err
		}
	}
	return nil
}

// Burn removes value from an owner-scoped record. A nil amount deletes the
// record, its sub-records, and, when no owner-scoped records remain, the
// genesis index. A partial burn debits balance and stock batches
// oldest-first.
func (l *Ledger) Burn(ctx context.Context, tokenID, owner, org string, amount *int64) error {
	nft, err := l.Primary(ctx, tokenID, owner, org)
	if err != nil {
		return err
	}
	if nft == nil {
		return domain.NewNotFound("token %s does not exist for owner %s", tokenID, owner)
	}

	if amount == nil {
		if err := l.kv.Delete(ctx, keys.Token(tokenID, owner, org)); err != nil {
			return err
		}
		for _, sub := range keys.SlotSubs {
			if err := l.kv.Delete(ctx, keys.TokenSub(tokenID, owner, org, sub)); err != nil {
				return err
			}
		}
		remaining, err := l.kv.List(ctx, keys.TokenPrefix(tokenID))
		if err != nil {
			return err
		}
		for _, e := range remaining {
			if keys.IsTokenPrimary(e.Key) {
				return nil
			}
		}
		return l.kv.Delete(ctx, keys.TokenIndex(tokenID))
	}

	if *amount <= 0 {
		return domain.NewInvariant("burn amount must be positive, got %d", *amount)
	}
	balance, err := domain.ParseAmount(nft.Balance)
	if err != nil {
		return err
	}
	if *amount > balance {
		return domain.NewInvariant("burn amount %d exceeds balance %d of token %s", *amount, balance, tokenID)
	}
	nft.Balance = domain.FormatAmount(balance - *amount)
	nft.StockBatches, err = debitBatchesOldestFirst(nft.StockBatches, *amount)
	if err != nil {
		return err
	}
	return l.writePrimary(ctx, nft)
}

// debitBatchesOldestFirst consumes up to amount from the batch list in
// order. Batches may cover less than the full balance (issuer value has no
// provenance), so running out of batch value is not an error.
func debitBatchesOldestFirst(batches []domain.StockBatch, amount int64) ([]domain.StockBatch, error) {
	remaining := amount
	out := make([]domain.StockBatch, 0, len(batches))
	for _, b := range batches {
		v, err := domain.ParseAmount(b.Amount)
		if err != nil {
			return nil, err
		}
		if remaining >= v {
			remaining -= v
			continue
		}
		if remaining > 0 {
			v -= remaining
			remaining = 0
		}
		out = append(out, domain.StockBatch{StockBatchNumber: b.StockBatchNumber, Amount: domain.FormatAmount(v)})
	}
	return out, nil
}

// CheckSplit validates a split's preconditions without moving value.
// Callers sequencing a split after other writes run it first so a
// doomed split rejects before anything is committed.
func (l *Ledger) CheckSplit(ctx context.Context, tokenID, fromOwner, toOwner, org string, amount int64) error {
	if toOwner == "" {
		return fmt.Errorf("to should not be empty")
	}
	if fromOwner == toOwner {
		return domain.NewInvariant("cannot split token %s to its own owner %s", tokenID, toOwner)
	}
	if amount <= 0 {
		return domain.NewInvariant("split amount must be positive, got %d", amount)
	}
	src, err := l.Primary(ctx, tokenID, fromOwner, org)
	if err != nil {
		return err
	}
	if src == nil {
		return domain.NewNotFound("token %s does not exist for owner %s", tokenID, fromOwner)
	}
	srcBalance, err := domain.ParseAmount(src.Balance)
	if err != nil {
		return err
	}
	if amount > srcBalance {
		return domain.NewInvariant("split amount %d exceeds balance %d of token %s", amount, srcBalance, tokenID)
	}
	return nil
}

// Split transfers amount from one owner-scoped record to another,
// provenance-tagged with batch. The destination record is created with
// deep-copied slot sub-records on first transfer, topped up afterwards.
// Total value across source and destination is conserved.
func (l *Ledger) Split(ctx context.Context, tokenID, fromOwner, toOwner, org string, amount int64, batch string) error {
	if err := l.CheckSplit(ctx, tokenID, fromOwner, toOwner, org, amount); err != nil {
		return err
	}
	src, err := l.Primary(ctx, tokenID, fromOwner, org)
	if err != nil {
		return err
	}
	srcBalance, err := domain.ParseAmount(src.Balance)
	if err != nil {
		return err
	}

	dst, err := l.Primary(ctx, tokenID, toOwner, org)
	if err != nil {
		return err
	}

	src.Balance = domain.FormatAmount(srcBalance - amount)
	src.StockBatches, err = debitNamedBatch(src.StockBatches, batch, amount)
	if err != nil {
		return err
	}

	if dst == nil {
		dst = &domain.NFT{
			TokenID:      tokenID,
			Owner:        toOwner,
			Org:          org,
			Balance:      domain.FormatAmount(amount),
			TotalBalance: domain.FormatAmount(amount),
			Metadata:     src.Metadata,
			StockBatches: []domain.StockBatch{{StockBatchNumber: batch, Amount: domain.FormatAmount(amount)}},
		}
		if err := l.copySlot(ctx, tokenID, fromOwner, toOwner, org); err != nil {
			return err
		}
	} else {
		dstBalance, err := domain.ParseAmount(dst.Balance)
		if err != nil {
			return err
		}
		dstTotal, err := domain.ParseAmount(dst.TotalBalance)
		if err != nil {
			return err
		}
		newBalance := dstBalance + amount
		dst.Balance = domain.FormatAmount(newBalance)
		if newBalance > dstTotal {
			dst.TotalBalance = domain.FormatAmount(newBalance)
		}
		dst.StockBatches = creditBatch(dst.StockBatches, batch, amount)
	}

	if err := l.writePrimary(ctx, src); err != nil {
		return err
	}
	return l.writePrimary(ctx, dst)
}

// debitNamedBatch consumes amount from the named batch first, then
// oldest-first across the rest.
func debitNamedBatch(batches []domain.StockBatch, batch string, amount int64) ([]domain.StockBatch, error) {
	remaining := amount
	out := make([]domain.StockBatch, 0, len(batches))
	for _, b := range batches {
		if b.StockBatchNumber != batch || remaining == 0 {
			out = append(out, b)
			continue
		}
		v, err := domain.ParseAmount(b.Amount)
		if err != nil {
			return nil, err
		}
		if remaining >= v {
			remaining -= v
			continue
		}
		out = append(out, domain.StockBatch{StockBatchNumber: b.StockBatchNumber, Amount: domain.FormatAmount(v - remaining)})
		remaining = 0
	}
	if remaining == 0 {
		return out, nil
	}
	return debitBatchesOldestFirst(out, remaining)
}

func creditBatch(batches []domain.StockBatch, batch string, amount int64) []domain.StockBatch {
	for i, b := range batches {
		if b.StockBatchNumber == batch {
			v, err := domain.ParseAmount(b.Amount)
			if err != nil {
				continue
			}
			batches[i].Amount = domain.FormatAmount(v + amount)
			return batches
		}
	}
	return append(batches, domain.StockBatch{StockBatchNumber: batch, Amount: domain.FormatAmount(amount)})
}

func (l *Ledger) copySlot(ctx context.Context, tokenID, fromOwner, toOwner, org string) error {
	for _, sub := range keys.SlotSubs {
		raw, err := l.kv.Get(ctx, keys.TokenSub(tokenID, fromOwner, org, sub))
		if err != nil {
			return err
		}
		if raw == nil {
			return domain.NewNotFound("%s of token %s does not exist", sub, tokenID)
		}
		if err := l.kv.Put(ctx, keys.TokenSub(tokenID, toOwner, org, sub), raw); err != nil {
			return err
		}
	}
	return nil
}

// CreditBatch adds refunded value back to an owner-scoped record under a
// provenance batch.
func (l *Ledger) CreditBatch(ctx context.Context, tokenID, owner, org, batch string, amount int64) error {
	if amount <= 0 {
		return domain.NewInvariant("credit amount must be positive, got %d", amount)
	}
	nft, err := l.Primary(ctx, tokenID, owner, org)
	if err != nil {
		return err
	}
	if nft == nil {
		return domain.NewNotFound("token %s does not exist for owner %s", tokenID, owner)
	}
	balance, err := domain.ParseAmount(nft.Balance)
	if err != nil {
		return err
	}
	total, err := domain.ParseAmount(nft.TotalBalance)
	if err != nil {
		return err
	}
	newBalance := balance + amount
	nft.Balance = domain.FormatAmount(newBalance)
	if newBalance > total {
		nft.TotalBalance = domain.FormatAmount(newBalance)
	}
	nft.StockBatches = creditBatch(nft.StockBatches, batch, amount)
	return l.writePrimary(ctx, nft)
}

// checkBatchDebit validates a named-batch debit against a primary record
func checkBatchDebit(nft *domain.NFT, tokenID, batch string, amount int64) error {
	if amount <= 0 {
		return domain.NewInvariant("debit amount must be positive, got %d", amount)
	}
	var held int64
	found := false
	for _, b := range nft.StockBatches {
		if b.StockBatchNumber == batch {
			v, err := domain.ParseAmount(b.Amount)
			if err != nil {
				return err
			}
			held = v
			found = true
			break
		}
	}
	if !found {
		return domain.NewNotFound("stock batch %s of token %s does not exist", batch, tokenID)
	}
	if amount > held {
		return domain.NewInvariant("debit amount %d exceeds batch %s amount %d", amount, batch, held)
	}
	balance, err := domain.ParseAmount(nft.Balance)
	if err != nil {
		return err
	}
	if amount > balance {
		return domain.NewInvariant("debit amount %d exceeds balance %d of token %s", amount, balance, tokenID)
	}
	return nil
}

// CheckDebitBatch validates a named-batch debit without applying it
func (l *Ledger) CheckDebitBatch(ctx context.Context, tokenID, owner, org, batch string, amount int64) error {
	nft, err := l.Primary(ctx, tokenID, owner, org)
	if err != nil {
		return err
	}
	if nft == nil {
		return domain.NewNotFound("token %s does not exist for owner %s", tokenID, owner)
	}
	return checkBatchDebit(nft, tokenID, batch, amount)
}

// DebitBatch removes value from one named provenance batch, failing if the
// batch does not carry enough.
func (l *Ledger) DebitBatch(ctx context.Context, tokenID, owner, org, batch string, amount int64) error {
	nft, err := l.Primary(ctx, tokenID, owner, org)
	if err != nil {
		return err
	}
	if nft == nil {
		return domain.NewNotFound("token %s does not exist for owner %s", tokenID, owner)
	}
	if err := checkBatchDebit(nft, tokenID, batch, amount); err != nil {
		return err
	}
	balance, err := domain.ParseAmount(nft.Balance)
	if err != nil {
		return err
	}
	nft.Balance = domain.FormatAmount(balance - amount)
	nft.StockBatches, err = debitNamedBatch(nft.StockBatches, batch, amount)
	if err != nil {
		return err
	}
	return l.writePrimary(ctx, nft)
}

// BatchAmount returns the value currently held under one provenance batch
func (l *Ledger) BatchAmount(ctx context.Context, tokenID, owner, org, batch string) (int64, error) {
	nft, err := l.Primary(ctx, tokenID, owner, org)
	if err != nil {
		return 0, err
	}
	if nft == nil {
		return 0, domain.NewNotFound("token %s does not exist for owner %s", tokenID, owner)
	}
	for _, b := range nft.StockBatches {
		if b.StockBatchNumber == batch {
			return domain.ParseAmount(b.Amount)
		}
	}
	return 0, nil
}

// ReadNFT assembles the full logical token: primary record plus the five
// slot sub-records. A missing sub-record fails naming the missing key.
func (l *Ledger) ReadNFT(ctx context.Context, tokenID, owner, org string) (*domain.NFT, error) {
	nft, err := l.Primary(ctx, tokenID, owner, org)
	if err != nil {
		return nil, err
	}
	if nft == nil {
		return nil, domain.NewNotFound("token %s does not exist for owner %s", tokenID, owner)
	}
	slot, err := l.ReadSlot(ctx, tokenID, owner, org)
	if err != nil {
		return nil, err
	}
	nft.Slot = slot
	return nft, nil
}

// ReadSlot recomposes the nested slot object from its sub-records
func (l *Ledger) ReadSlot(ctx context.Context, tokenID, owner, org string) (*domain.Slot, error) {
	var slot domain.Slot
	targets := map[string]any{
		keys.SubBasicInfo:  &slot.BasicInformation,
		keys.SubTicketData: &slot.AdditionalInformation.TicketData,
		keys.SubPriceInfo:  &slot.AdditionalInformation.PriceInfo,
		keys.SubCheckData:  &slot.AdditionalInformation.TicketCheckData,
		keys.SubStockInfo:  &slot.AdditionalInformation.StockInfo,
	}
	for _, sub := range keys.SlotSubs {
		raw, err := l.kv.Get(ctx, keys.TokenSub(tokenID, owner, org, sub))
		if err != nil {
			return nil, err
		}
		if raw == nil {
			return nil, domain.NewNotFound("%s of token %s does not exist", sub, tokenID)
		}
		if err := json.Unmarshal(raw, targets[sub]); err != nil {
			return nil, fmt.Errorf("corrupt %s of token %s: %w", sub, tokenID, err)
		}
	}
	return &slot, nil
}

// GetSub reads one raw slot sub-record
func (l *Ledger) GetSub(ctx context.Context, tokenID, owner, org, sub string) ([]byte, error) {
	raw, err := l.kv.Get(ctx, keys.TokenSub(tokenID, owner, org, sub))
	if err != nil {
		return nil, err
	}
	if raw == nil {
		return nil, domain.NewNotFound("%s of token %s does not exist", sub, tokenID)
	}
	return raw, nil
}

// PutSub rewrites one slot sub-record
func (l *Ledger) PutSub(ctx context.Context, tokenID, owner, org, sub string, value any) error {
	raw, err := json.Marshal(value)
	if err != nil {
		return err
	}
	return l.kv.Put(ctx, keys.TokenSub(tokenID, owner, org, sub), raw)
}

// Primaries lists every primary record in the ledger
func (l *Ledger) Primaries(ctx context.Context) ([]*domain.NFT, error) {
	entries, err := l.kv.List(ctx, keys.AllTokens())
	if err != nil {
		return nil, err
	}
	out := make([]*domain.NFT, 0, len(entries))
	for _, e := range entries {
		if !keys.IsTokenPrimary(e.Key) {
			continue
		}
		var nft domain.NFT
		if err := json.Unmarshal(e.Value, &nft); err != nil {
			return nil, fmt.Errorf("corrupt token record %v: %w", e.Key.Segments, err)
		}
		out = append(out, &nft)
	}
	return out, nil
}

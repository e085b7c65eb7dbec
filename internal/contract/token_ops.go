package contract

import (
	"context"
	"encoding/json"
	"fmt"

	"go.uber.org/zap"

	"github.com/seatrail/ticket-ledger/internal/domain"
	"github.com/seatrail/ticket-ledger/internal/logger"
	"github.com/seatrail/ticket-ledger/internal/presets"
)

// Mint creates a token for an owner within the caller's organization. The
// slot payload is validated against the product preset; balance is a
// positive decimal string.
func (c *Contract) Mint(ctx context.Context, tokenID, owner, balance, slotJSON, metadataJSON, txID string) (*domain.NFT, error) {
	caller, err := c.gate(ctx)
	if err != nil {
		return nil, err
	}
	if owner == "" {
		return nil, fmt.Errorf("owner should not be empty")
	}

	amount, err := domain.ParseAmount(balance)
	if err != nil {
		return nil, err
	}
	if amount <= 0 {
		return nil, domain.NewInvariant("mint balance must be positive, got %s", balance)
	}

	var candidate map[string]any
	if err := json.Unmarshal([]byte(slotJSON), &candidate); err != nil {
		return nil, fmt.Errorf("slot is not valid JSON: %w", err)
	}
	if err := presets.Slot.Validate(candidate); err != nil {
		return nil, domain.NewValidation(err)
	}
	var slot domain.Slot
	if err := json.Unmarshal([]byte(slotJSON), &slot); err != nil {
		return nil, fmt.Errorf("slot is not valid JSON: %w", err)
	}

	var md domain.Metadata
	if metadataJSON != "" {
		if err := json.Unmarshal([]byte(metadataJSON), &md); err != nil {
			return nil, fmt.Errorf("metadata is not valid JSON: %w", err)
		}
	}

	exists, err := c.tokens.Exists(ctx, tokenID)
	if err != nil {
		return nil, err
	}
	if exists {
		return nil, domain.NewConflict("token %s already minted", tokenID)
	}

	if err := c.guard.ConsumeTx(ctx, txID); err != nil {
		return nil, err
	}
	nft, err := c.tokens.Mint(ctx, tokenID, owner, caller.Org, amount, md, &slot)
	if err != nil {
		return nil, err
	}
	logger.Info("token minted",
		zap.String("token_id", tokenID),
		zap.String("owner", owner),
		zap.String("org", caller.Org),
		zap.String("balance", balance))
	return nft, nil
}

// Burn removes value from an owner-scoped record. An empty amount burns
// the record fully, deleting it and its sub-records.
func (c *Contract) Burn(ctx context.Context, tokenID, owner, amount, txID string) error {
	caller, err := c.gate(ctx)
	if err != nil {
		return err
	}
	if owner == "" {
		return fmt.Errorf("owner should not be empty")
	}

	var partial *int64
	if amount != "" {
		v, err := domain.ParseAmount(amount)
		if err != nil {
			return err
		}
		partial = &v
	}

	nft, err := c.tokens.Primary(ctx, tokenID, owner, caller.Org)
	if err != nil {
		return err
	}
	if nft == nil {
		return domain.NewNotFound("token %s does not exist for owner %s", tokenID, owner)
	}

	if err := c.guard.ConsumeTx(ctx, txID); err != nil {
		return err
	}
	if err := c.tokens.Burn(ctx, tokenID, owner, caller.Org, partial); err != nil {
		return err
	}
	logger.Info("token burned",
		zap.String("token_id", tokenID),
		zap.String("owner", owner),
		zap.String("amount", amount))
	return nil
}

// ReadTicket assembles the full logical token for an owner within an
// organization.
func (c *Contract) ReadTicket(ctx context.Context, tokenID, owner, org string) (*domain.NFT, error) {
	if _, err := c.readMeta(ctx); err != nil {
		return nil, err
	}
	return c.tokens.ReadNFT(ctx, tokenID, owner, org)
}

// Package guard gates every mutating contract operation: per-organization
// admin authorization and duplicate-submission suppression.
package guard

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/seatrail/ticket-ledger/internal/domain"
	"github.com/seatrail/ticket-ledger/internal/identity"
	"github.com/seatrail/ticket-ledger/internal/keys"
	"github.com/seatrail/ticket-ledger/internal/store"
)

// Guard consults the org-admin registry and the idempotency markers
type Guard struct {
	kv store.KV
}

func New(kv store.KV) *Guard {
	return &Guard{kv: kv}
}

// registry maps organization id to its admin identity fragments
type registry map[string][]string

type marker struct {
	ConsumedAt string `json:"consumed_at"`
	By         string `json:"by,omitempty"`
}

func (g *Guard) loadRegistry(ctx context.Context) (registry, error) {
	raw, err := g.kv.Get(ctx, keys.Registry())
	if err != nil {
		return nil, err
	}
	reg := make(registry)
	if raw == nil {
		return reg, nil
	}
	if err := json.Unmarshal(raw, &reg); err != nil {
		return nil, fmt.Errorf("corrupt org-admin registry: %w", err)
	}
	return reg, nil
}

func (g *Guard) saveRegistry(ctx context.Context, reg registry) error {
	raw, err := json.Marshal(reg)
	if err != nil {
		return err
	}
	return g.kv.Put(ctx, keys.Registry(), raw)
}

// RequireAdmin extracts the caller and fails unless the caller's org is
// registered with the caller's identity listed as an admin. This runs
// before any state mutation of every mutating operation.
func (g *Guard) RequireAdmin(ctx context.Context) (identity.Caller, error) {
	caller, err := identity.FromContext(ctx)
	if err != nil {
		return identity.Caller{}, domain.NewUnauthorized("no caller identity")
	}
	reg, err := g.loadRegistry(ctx)
	if err != nil {
		return identity.Caller{}, err
	}
	admins, ok := reg[caller.Org]
	if !ok {
		return identity.Caller{}, domain.NewUnauthorized("organization %s is not registered", caller.Org)
	}
	for _, admin := range admins {
		if admin == caller.ID {
			return caller, nil
		}
	}
	return identity.Caller{}, domain.NewUnauthorized("%s is not an admin of organization %s", caller.ID, caller.Org)
}

// SetOrgAdmin replaces the admin list of an organization. Gated by the
// same admin check, except when the registry is still empty: the first
// call bootstraps the registry.
func (g *Guard) SetOrgAdmin(ctx context.Context, org string, admins []string) error {
	if org == "" {
		return fmt.Errorf("org should not be empty")
	}
	if len(admins) == 0 {
		return fmt.Errorf("admins should not be empty")
	}
	reg, err := g.loadRegistry(ctx)
	if err != nil {
		return err
	}
	if len(reg) > 0 {
		if _, err := g.RequireAdmin(ctx); err != nil {
			return err
		}
	}
	reg[org] = admins
	return g.saveRegistry(ctx, reg)
}

// GetOrgAdmins returns the admin list of an organization
func (g *Guard) GetOrgAdmins(ctx context.Context, org string) ([]string, error) {
	if org == "" {
		return nil, fmt.Errorf("org should not be empty")
	}
	reg, err := g.loadRegistry(ctx)
	if err != nil {
		return nil, err
	}
	admins, ok := reg[org]
	if !ok {
		return nil, domain.NewNotFound("organization %s is not registered", org)
	}
	return admins, nil
}

func (g *Guard) consume(ctx context.Context, key keys.Key, label, id string) error {
	existing, err := g.kv.Get(ctx, key)
	if err != nil {
		return err
	}
	if existing != nil {
		return domain.NewConflict("%s %s already processed", label, id)
	}
	caller, _ := identity.FromContext(ctx)
	raw, err := json.Marshal(marker{
		ConsumedAt: time.Now().UTC().Format(time.RFC3339),
		By:         caller.ID,
	})
	if err != nil {
		return err
	}
	return g.kv.Put(ctx, key, raw)
}

// ConsumeTx records a transaction token, failing if it was seen before.
// Tokens must be well-formed UUIDs.
func (g *Guard) ConsumeTx(ctx context.Context, txID string) error {
	if txID == "" {
		return fmt.Errorf("uuid should not be empty")
	}
	if _, err := uuid.Parse(txID); err != nil {
		return fmt.Errorf("invalid uuid %q", txID)
	}
	return g.consume(ctx, keys.Tx(txID), "transaction", txID)
}

// ConsumeTrade records a trade number, failing if it was seen before
func (g *Guard) ConsumeTrade(ctx context.Context, tradeNo string) error {
	if tradeNo == "" {
		return fmt.Errorf("trade_no should not be empty")
	}
	return g.consume(ctx, keys.Trade(tradeNo), "trade number", tradeNo)
}

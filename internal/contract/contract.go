// Package contract implements the ticket-ledger operations. Every
// mutating operation is gated by the org-admin guard and a transaction
// idempotency token before any state is written; validation and
// business-rule checks precede writes so a failed call leaves the ledger
// unchanged.
package contract

import (
	"context"
	"encoding/json"
	"fmt"

	"go.uber.org/zap"

	"github.com/seatrail/ticket-ledger/internal/domain"
	"github.com/seatrail/ticket-ledger/internal/guard"
	"github.com/seatrail/ticket-ledger/internal/identity"
	"github.com/seatrail/ticket-ledger/internal/keys"
	"github.com/seatrail/ticket-ledger/internal/logger"
	"github.com/seatrail/ticket-ledger/internal/store"
	"github.com/seatrail/ticket-ledger/internal/token"
)

// Contract ties the guard, the token ledger core and the workflow
// operations together over one ledger KV.
type Contract struct {
	kv     store.KV
	guard  *guard.Guard
	tokens *token.Ledger
}

// meta is the contract metadata record written by Initialize
type meta struct {
	Name   string `json:"name"`
	Symbol string `json:"symbol"`
}

func New(kv store.KV) *Contract {
	return &Contract{
		kv:     kv,
		guard:  guard.New(kv),
		tokens: token.New(kv),
	}
}

// Initialize writes the contract metadata and registers the caller's
// organization with the caller as its first admin. Fails if already
// initialized.
func (c *Contract) Initialize(ctx context.Context, name, symbol string) error {
	if name == "" {
		return fmt.Errorf("name should not be empty")
	}
	if symbol == "" {
		return fmt.Errorf("symbol should not be empty")
	}
	caller, err := identity.FromContext(ctx)
	if err != nil {
		return domain.NewUnauthorized("no caller identity")
	}
	existing, err := c.kv.Get(ctx, keys.Meta())
	if err != nil {
		return err
	}
	if existing != nil {
		return domain.NewConflict("contract already initialized")
	}
	raw, err := json.Marshal(meta{Name: name, Symbol: symbol})
	if err != nil {
		return err
	}
	if err := c.kv.Put(ctx, keys.Meta(), raw); err != nil {
		return err
	}
	if err := c.guard.SetOrgAdmin(ctx, caller.Org, []string{caller.ID}); err != nil {
		return err
	}
	logger.Info("contract initialized",
		zap.String("name", name),
		zap.String("symbol", symbol),
		zap.String("org", caller.Org))
	return nil
}

func (c *Contract) readMeta(ctx context.Context) (*meta, error) {
	raw, err := c.kv.Get(ctx, keys.Meta())
	if err != nil {
		return nil, err
	}
	if raw == nil {
		return nil, domain.ErrNotInitialized
	}
	var m meta
	if err := json.Unmarshal(raw, &m); err != nil {
		return nil, fmt.Errorf("corrupt contract metadata: %w", err)
	}
	return &m, nil
}

// gate runs the entry checks of every mutating operation: initialization,
// then admin authorization. The idempotency token is consumed separately,
// after an operation's own read checks and right before its first write,
// so a rejected call leaves no marker behind.
func (c *Contract) gate(ctx context.Context) (identity.Caller, error) {
	if _, err := c.readMeta(ctx); err != nil {
		return identity.Caller{}, err
	}
	return c.guard.RequireAdmin(ctx)
}

// Name returns the contract name
func (c *Contract) Name(ctx context.Context) (string, error) {
	m, err := c.readMeta(ctx)
	if err != nil {
		return "", err
	}
	return m.Name, nil
}

// Symbol returns the contract symbol
func (c *Contract) Symbol(ctx context.Context) (string, error) {
	m, err := c.readMeta(ctx)
	if err != nil {
		return "", err
	}
	return m.Symbol, nil
}

// TotalSupply sums the spendable balance across every owner-scoped record.
// Splits conserve value, so this equals minted minus burned value.
func (c *Contract) TotalSupply(ctx context.Context) (string, error) {
	if _, err := c.readMeta(ctx); err != nil {
		return "", err
	}
	primaries, err := c.tokens.Primaries(ctx)
	if err != nil {
		return "", err
	}
	var total int64
	for _, nft := range primaries {
		v, err := domain.ParseAmount(nft.Balance)
		if err != nil {
			return "", err
		}
		total += v
	}
	return domain.FormatAmount(total), nil
}

// OwnerOf returns the genesis owner of a token
func (c *Contract) OwnerOf(ctx context.Context, tokenID string) (string, error) {
	if _, err := c.readMeta(ctx); err != nil {
		return "", err
	}
	idx, err := c.tokens.Index(ctx, tokenID)
	if err != nil {
		return "", err
	}
	return idx.Owner, nil
}

// SlotOf returns the slot of the genesis record of a token
func (c *Contract) SlotOf(ctx context.Context, tokenID string) (*domain.Slot, error) {
	if _, err := c.readMeta(ctx); err != nil {
		return nil, err
	}
	idx, err := c.tokens.Index(ctx, tokenID)
	if err != nil {
		return nil, err
	}
	return c.tokens.ReadSlot(ctx, tokenID, idx.Owner, idx.Org)
}

// TokenURI returns the metadata token_url of the genesis record
func (c *Contract) TokenURI(ctx context.Context, tokenID string) (string, error) {
	if _, err := c.readMeta(ctx); err != nil {
		return "", err
	}
	idx, err := c.tokens.Index(ctx, tokenID)
	if err != nil {
		return "", err
	}
	nft, err := c.tokens.Primary(ctx, tokenID, idx.Owner, idx.Org)
	if err != nil {
		return "", err
	}
	if nft == nil {
		return "", domain.NewNotFound("token %s does not exist for owner %s", tokenID, idx.Owner)
	}
	return nft.Metadata.TokenURL, nil
}

// BalanceOfValue returns the spendable balance of an owner-scoped record
func (c *Contract) BalanceOfValue(ctx context.Context, tokenID, owner, org string) (string, error) {
	if _, err := c.readMeta(ctx); err != nil {
		return "", err
	}
	nft, err := c.tokens.Primary(ctx, tokenID, owner, org)
	if err != nil {
		return "", err
	}
	if nft == nil {
		return "", domain.NewNotFound("token %s does not exist for owner %s", tokenID, owner)
	}
	return nft.Balance, nil
}

// SetOrgAdmin replaces the admin list for an organization
func (c *Contract) SetOrgAdmin(ctx context.Context, org string, admins []string) error {
	if _, err := c.readMeta(ctx); err != nil {
		return err
	}
	return c.guard.SetOrgAdmin(ctx, org, admins)
}

// GetOrgAdmins returns the admin list for an organization
func (c *Contract) GetOrgAdmins(ctx context.Context, org string) ([]string, error) {
	if _, err := c.readMeta(ctx); err != nil {
		return nil, err
	}
	return c.guard.GetOrgAdmins(ctx, org)
}

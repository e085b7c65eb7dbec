package contract

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/seatrail/ticket-ledger/internal/domain"
)

func TestMintTicket(t *testing.T) {
	ctx := adminCtx()
	c := newTestContract(t)

	nft, err := c.Mint(ctx, "1", "Alice", "100", testSlotJSON, `{"token_url": "https://t/1"}`, uuid.NewString())
	require.NoError(t, err)
	assert.Equal(t, "1", nft.TokenID)
	assert.Equal(t, "Alice", nft.Owner)
	assert.Equal(t, "org1", nft.Org)
	assert.Equal(t, "100", nft.Balance)
	assert.Equal(t, "https://t/1", nft.Metadata.TokenURL)
	require.NotNil(t, nft.Slot)
	assert.Equal(t, "100", nft.Slot.AdditionalInformation.StockInfo["available_total_num"])

	_, err = c.Mint(ctx, "1", "Bob", "10", testSlotJSON, "", uuid.NewString())
	require.Error(t, err)
	assert.Equal(t, domain.CodeConflict, domain.CodeOf(err))
	assert.ErrorContains(t, err, "token 1 already minted")
}

func TestMintTicketRejectsMalformedSlot(t *testing.T) {
	ctx := adminCtx()
	c := newTestContract(t)

	// Missing required product field
	_, err := c.Mint(ctx, "1", "Alice", "100", `{
		"BasicInformation": {"ticket_type": "day-pass", "ticket_name": "Park Day Pass"},
		"AdditionalInformation": {
			"TicketData": {"status": 0},
			"PriceInfo": [],
			"TicketCheckData": [],
			"StockInfo": {
				"purchase_begin_time": "a", "purchase_end_time": "b",
				"stock_enter_begin_time": "c", "stock_enter_end_time": "d",
				"total_num": "100", "available_total_num": "100"
			}
		}
	}`, "", uuid.NewString())
	require.Error(t, err)
	assert.Equal(t, domain.CodeValidation, domain.CodeOf(err))
	assert.Contains(t, err.Error(), "must have required property 'product_id'")

	// Undeclared field
	_, err = c.Mint(ctx, "1", "Alice", "100", `{
		"BasicInformation": {
			"ticket_type": "day-pass", "ticket_name": "Park Day Pass",
			"product_id": "p1", "surprise": true
		},
		"AdditionalInformation": {
			"TicketData": {"status": 0},
			"PriceInfo": [],
			"TicketCheckData": [],
			"StockInfo": {
				"purchase_begin_time": "a", "purchase_end_time": "b",
				"stock_enter_begin_time": "c", "stock_enter_end_time": "d",
				"total_num": "100", "available_total_num": "100"
			}
		}
	}`, "", uuid.NewString())
	require.Error(t, err)
	assert.Equal(t, domain.CodeValidation, domain.CodeOf(err))
	assert.Contains(t, err.Error(), "must NOT have additional properties")

	// A validation failure consumes nothing: the token can still be minted
	mintTicket(t, c, "1", "Alice", "100")
}

func TestMintTicketValidation(t *testing.T) {
	ctx := adminCtx()
	c := newTestContract(t)

	_, err := c.Mint(ctx, "1", "", "100", testSlotJSON, "", uuid.NewString())
	require.EqualError(t, err, "owner should not be empty")

	_, err = c.Mint(ctx, "1", "Alice", "0", testSlotJSON, "", uuid.NewString())
	assert.Equal(t, domain.CodeInvariant, domain.CodeOf(err))

	_, err = c.Mint(ctx, "1", "Alice", "ten", testSlotJSON, "", uuid.NewString())
	require.Error(t, err)

	_, err = c.Mint(ctx, "1", "Alice", "100", "{", "", uuid.NewString())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "slot is not valid JSON")
}

func TestBurnTicket(t *testing.T) {
	ctx := adminCtx()
	c := newTestContract(t)
	mintTicket(t, c, "1", "Alice", "100")

	// Partial burn debits balance
	require.NoError(t, c.Burn(ctx, "1", "Alice", "30", uuid.NewString()))
	balance, err := c.BalanceOfValue(ctx, "1", "Alice", "org1")
	require.NoError(t, err)
	assert.Equal(t, "70", balance)

	// Full burn removes the record entirely
	require.NoError(t, c.Burn(ctx, "1", "Alice", "", uuid.NewString()))
	_, err = c.ReadTicket(ctx, "1", "Alice", "org1")
	assert.Equal(t, domain.CodeNotFound, domain.CodeOf(err))

	err = c.Burn(ctx, "1", "Alice", "", uuid.NewString())
	assert.Equal(t, domain.CodeNotFound, domain.CodeOf(err))
}

func TestReadTicket(t *testing.T) {
	ctx := adminCtx()
	c := newTestContract(t)
	mintTicket(t, c, "1", "Alice", "100")

	nft, err := c.ReadTicket(ctx, "1", "Alice", "org1")
	require.NoError(t, err)
	require.NotNil(t, nft.Slot)
	assert.Equal(t, float64(0), nft.Slot.AdditionalInformation.TicketData["status"])
	assert.Empty(t, nft.Slot.AdditionalInformation.TicketCheckData)
}

func TestMutationRequiresAdmin(t *testing.T) {
	c := newTestContract(t)

	txID := uuid.NewString()
	for name, call := range map[string]func(ctx context.Context) error{
		"mint": func(ctx context.Context) error {
			_, err := c.Mint(ctx, "1", "Alice", "100", testSlotJSON, "", txID)
			return err
		},
		"burn": func(ctx context.Context) error {
			return c.Burn(ctx, "1", "Alice", "", txID)
		},
		"store order": func(ctx context.Context) error {
			return c.StoreOrder(ctx, "{}", txID)
		},
	} {
		err := call(context.Background())
		assert.Equal(t, domain.CodeUnauthorized, domain.CodeOf(err), "%s without caller", name)

		err = call(callerCtx("org1", "mallory"))
		assert.Equal(t, domain.CodeUnauthorized, domain.CodeOf(err), "%s as non-admin", name)

		err = call(callerCtx("org9", "admin"))
		assert.Equal(t, domain.CodeUnauthorized, domain.CodeOf(err), "%s from unregistered org", name)
	}

	// Rejected calls left no idempotency marker behind
	_, err := c.Mint(adminCtx(), "1", "Alice", "100", testSlotJSON, "", txID)
	require.NoError(t, err)
}

func TestIdempotency(t *testing.T) {
	ctx := adminCtx()
	c := newTestContract(t)

	txID := uuid.NewString()
	mintTicket(t, c, "1", "Alice", "100")

	require.NoError(t, c.Burn(ctx, "1", "Alice", "10", txID))
	err := c.Burn(ctx, "1", "Alice", "10", txID)
	require.Error(t, err)
	assert.Equal(t, domain.CodeConflict, domain.CodeOf(err))
	assert.Contains(t, err.Error(), "already processed")

	// The duplicate was rejected before any write
	balance, err := c.BalanceOfValue(ctx, "1", "Alice", "org1")
	require.NoError(t, err)
	assert.Equal(t, "90", balance)

	err = c.Burn(ctx, "1", "Alice", "10", "not-a-uuid")
	require.EqualError(t, err, `invalid uuid "not-a-uuid"`)
	err = c.Burn(ctx, "1", "Alice", "10", "")
	require.EqualError(t, err, "uuid should not be empty")
}

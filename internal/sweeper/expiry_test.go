package sweeper

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/alitto/pond/v2"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/seatrail/ticket-ledger/internal/contract"
	"github.com/seatrail/ticket-ledger/internal/identity"
	"github.com/seatrail/ticket-ledger/internal/store"
	"github.com/seatrail/ticket-ledger/internal/token"
)

func sweeperCtx() context.Context {
	return identity.WithCaller(context.Background(), identity.Caller{Org: "org1", ID: "sweeper"})
}

func slotJSON(enterEnd string) string {
	return fmt.Sprintf(`{
		"BasicInformation": {
			"ticket_type": "day-pass",
			"ticket_name": "Park Day Pass",
			"product_id": "p1"
		},
		"AdditionalInformation": {
			"TicketData": {"status": 0},
			"PriceInfo": [],
			"TicketCheckData": [],
			"StockInfo": {
				"purchase_begin_time": "2020-01-01 00:00:00",
				"purchase_end_time": %q,
				"stock_enter_begin_time": "2020-01-01 00:00:00",
				"stock_enter_end_time": %q,
				"total_num": "10",
				"available_total_num": "10"
			}
		}
	}`, enterEnd, enterEnd)
}

func newTestSweeper(t *testing.T) (*ticketExpirySweeper, *contract.Contract, *token.Ledger) {
	t.Helper()
	kv := store.NewMemory()
	c := contract.New(kv)
	require.NoError(t, c.Initialize(sweeperCtx(), "Park Tickets", "TICKET"))

	tokens := token.New(kv)
	s := NewTicketExpirySweeper(&ExpiryConfig{
		Interval:       time.Millisecond,
		BatchSize:      10,
		WorkerPoolSize: 2,
		Caller:         identity.Caller{Org: "org1", ID: "sweeper"},
	}, tokens, c).(*ticketExpirySweeper)
	return s, c, tokens
}

func ticketStatus(t *testing.T, c *contract.Contract, tokenID, owner string) float64 {
	t.Helper()
	nft, err := c.ReadTicket(sweeperCtx(), tokenID, owner, "org1")
	require.NoError(t, err)
	status, ok := nft.Slot.AdditionalInformation.TicketData["status"].(float64)
	require.True(t, ok)
	return status
}

func TestSweepCycleExpiresClosedWindows(t *testing.T) {
	ctx := sweeperCtx()
	s, c, _ := newTestSweeper(t)

	past := time.Now().UTC().Add(-24 * time.Hour).Format(time.RFC3339)
	future := time.Now().UTC().Add(24 * time.Hour).Format(time.RFC3339)

	_, err := c.Mint(ctx, "1", "Alice", "10", slotJSON(past), "", uuid.NewString())
	require.NoError(t, err)
	_, err = c.Mint(ctx, "2", "Bob", "10", slotJSON(future), "", uuid.NewString())
	require.NoError(t, err)

	// A ticket already used stays untouched even with a closed window
	_, err = c.Mint(ctx, "3", "Carol", "10", slotJSON(past), "", uuid.NewString())
	require.NoError(t, err)
	require.NoError(t, c.UpdateIssueTickets(ctx, "3", "Carol",
		`{"ticket_id": "T-3", "issue_time": "2020-01-01 09:00:00", "status": 1}`, uuid.NewString()))
	require.NoError(t, c.VerifyTicket(ctx, "3", "Carol", `{
		"VerifyStatus": {"status": 3},
		"VerifyInfo": {"account": "gate", "check_time": "2020-01-01 10:00:00", "check_type": "entry"}
	}`, uuid.NewString()))

	s.pool = pond.NewPool(s.config.WorkerPoolSize, pond.WithQueueSize(s.config.BatchSize), pond.WithContext(ctx))
	require.NoError(t, s.runSweepCycle(ctx))

	assert.Equal(t, float64(4), ticketStatus(t, c, "1", "Alice"))
	assert.Equal(t, float64(0), ticketStatus(t, c, "2", "Bob"))
	assert.Equal(t, float64(3), ticketStatus(t, c, "3", "Carol"))
}

func TestSweepCycleIsRerunSafe(t *testing.T) {
	ctx := sweeperCtx()
	s, c, _ := newTestSweeper(t)

	past := time.Now().UTC().Add(-time.Hour).Format("2006-01-02 15:04:05")
	_, err := c.Mint(ctx, "1", "Alice", "10", slotJSON(past), "", uuid.NewString())
	require.NoError(t, err)

	for i := 0; i < 2; i++ {
		s.pool = pond.NewPool(s.config.WorkerPoolSize, pond.WithQueueSize(s.config.BatchSize), pond.WithContext(ctx))
		require.NoError(t, s.runSweepCycle(ctx))
	}
	assert.Equal(t, float64(4), ticketStatus(t, c, "1", "Alice"))
}

func TestStartStop(t *testing.T) {
	s, c, _ := newTestSweeper(t)
	ctx := sweeperCtx()

	past := time.Now().UTC().Add(-time.Hour).Format(time.RFC3339)
	_, err := c.Mint(ctx, "1", "Alice", "10", slotJSON(past), "", uuid.NewString())
	require.NoError(t, err)

	done := make(chan error, 1)
	go func() {
		done <- s.Start(context.Background())
	}()

	// Give the loop a couple of cycles before stopping
	require.Eventually(t, func() bool {
		nft, err := c.ReadTicket(ctx, "1", "Alice", "org1")
		if err != nil {
			return false
		}
		status, _ := nft.Slot.AdditionalInformation.TicketData["status"].(float64)
		return status == 4
	}, 5*time.Second, 10*time.Millisecond)

	stopCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, s.Stop(stopCtx))
	require.NoError(t, <-done)
}

func TestParseWindowTime(t *testing.T) {
	got, err := parseWindowTime("2026-06-30T23:59:59Z")
	require.NoError(t, err)
	assert.Equal(t, 2026, got.Year())

	got, err = parseWindowTime("2026-06-30 23:59:59")
	require.NoError(t, err)
	assert.Equal(t, 30, got.Day())

	_, err = parseWindowTime("30/06/2026")
	require.EqualError(t, err, `unrecognized time format "30/06/2026"`)
}

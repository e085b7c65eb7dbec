package contract

import (
	"fmt"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/seatrail/ticket-ledger/internal/domain"
)

// distribute moves amount from a distributor to a seller so the seller
// holds value under a named stock batch.
func distribute(t *testing.T, c *Contract, tokenID, from, to, amount, batch string) {
	t.Helper()
	payload := fmt.Sprintf(`{
		"token_id": %q, "from": %q, "to": %q,
		"amount": %q, "stock_batch_number": %q
	}`, tokenID, from, to, amount, batch)
	require.NoError(t, c.DistributionOrder(adminCtx(), payload, uuid.NewString()))
}

func TestStoreOrder(t *testing.T) {
	ctx := adminCtx()
	c := newTestContract(t)
	mintTicket(t, c, "1", "Distributor", "100")
	distribute(t, c, "1", "Distributor", "Seller", "50", "b1")

	order := `{
		"order_id": "o1", "trade_no": "tr-1",
		"token_id": "1", "seller_id": "Seller", "buyer_id": "Buyer",
		"amount": "30", "price": "15000", "order_time": "2026-05-03 12:00:00",
		"stock_batch_info": [{"stock_batch_number": "b1", "amount": "30"}]
	}`
	require.NoError(t, c.StoreOrder(ctx, order, uuid.NewString()))

	// The seller's token was debited under the order's batch
	balance, err := c.BalanceOfValue(ctx, "1", "Seller", "org1")
	require.NoError(t, err)
	assert.Equal(t, "20", balance)

	stored, err := c.ReadOrder(ctx, "o1")
	require.NoError(t, err)
	assert.Equal(t, "Buyer", stored["buyer_id"])
	assert.Equal(t, "30", stored["amount"])

	err = c.StoreOrder(ctx, order, uuid.NewString())
	require.Error(t, err)
	assert.Equal(t, domain.CodeConflict, domain.CodeOf(err))
	assert.ErrorContains(t, err, "order o1 already stored")
}

func TestStoreOrderBatchTotalMismatch(t *testing.T) {
	ctx := adminCtx()
	c := newTestContract(t)
	mintTicket(t, c, "1", "Distributor", "100")
	distribute(t, c, "1", "Distributor", "Seller", "50", "b1")

	err := c.StoreOrder(ctx, `{
		"order_id": "o1",
		"token_id": "1", "seller_id": "Seller", "buyer_id": "Buyer",
		"amount": "30", "order_time": "2026-05-03 12:00:00",
		"stock_batch_info": [{"stock_batch_number": "b1", "amount": "20"}]
	}`, uuid.NewString())
	require.Error(t, err)
	assert.Equal(t, domain.CodeInvariant, domain.CodeOf(err))
	assert.ErrorContains(t, err, "stock_batch_info total 20 does not match order amount 30")

	// Nothing was debited
	balance, err := c.BalanceOfValue(ctx, "1", "Seller", "org1")
	require.NoError(t, err)
	assert.Equal(t, "50", balance)
}

func TestStoreOrderUnknownBatch(t *testing.T) {
	ctx := adminCtx()
	c := newTestContract(t)
	mintTicket(t, c, "1", "Distributor", "100")
	distribute(t, c, "1", "Distributor", "Seller", "50", "b1")

	err := c.StoreOrder(ctx, `{
		"order_id": "o1",
		"token_id": "1", "seller_id": "Seller", "buyer_id": "Buyer",
		"amount": "10", "order_time": "2026-05-03 12:00:00",
		"stock_batch_info": [{"stock_batch_number": "b9", "amount": "10"}]
	}`, uuid.NewString())
	require.Error(t, err)
	assert.Equal(t, domain.CodeNotFound, domain.CodeOf(err))
}

func TestStoreOrderMultiBatchFailureLeavesStateUntouched(t *testing.T) {
	ctx := adminCtx()
	c := newTestContract(t)
	mintTicket(t, c, "1", "Distributor", "100")
	distribute(t, c, "1", "Distributor", "Seller", "50", "b1")

	// The second batch is unknown, so the whole order must reject with the
	// first batch still intact
	txID := uuid.NewString()
	err := c.StoreOrder(ctx, `{
		"order_id": "o1",
		"token_id": "1", "seller_id": "Seller", "buyer_id": "Buyer",
		"amount": "20", "order_time": "2026-05-03 12:00:00",
		"stock_batch_info": [
			{"stock_batch_number": "b1", "amount": "10"},
			{"stock_batch_number": "b9", "amount": "10"}
		]
	}`, txID)
	require.Error(t, err)
	assert.Equal(t, domain.CodeNotFound, domain.CodeOf(err))
	assert.ErrorContains(t, err, "stock batch b9 of token 1 does not exist")

	balance, err := c.BalanceOfValue(ctx, "1", "Seller", "org1")
	require.NoError(t, err)
	assert.Equal(t, "50", balance)
	_, err = c.ReadOrder(ctx, "o1")
	assert.Equal(t, domain.CodeNotFound, domain.CodeOf(err))

	// A repeated batch number is checked against its cumulative total
	err = c.StoreOrder(ctx, `{
		"order_id": "o2",
		"token_id": "1", "seller_id": "Seller", "buyer_id": "Buyer",
		"amount": "60", "order_time": "2026-05-03 12:00:00",
		"stock_batch_info": [
			{"stock_batch_number": "b1", "amount": "30"},
			{"stock_batch_number": "b1", "amount": "30"}
		]
	}`, uuid.NewString())
	require.Error(t, err)
	assert.Equal(t, domain.CodeInvariant, domain.CodeOf(err))
	assert.ErrorContains(t, err, "debit amount 60 exceeds batch b1 amount 50")

	balance, err = c.BalanceOfValue(ctx, "1", "Seller", "org1")
	require.NoError(t, err)
	assert.Equal(t, "50", balance)

	// The rejected order consumed no idempotency marker
	require.NoError(t, c.StoreOrder(ctx, `{
		"order_id": "o1",
		"token_id": "1", "seller_id": "Seller", "buyer_id": "Buyer",
		"amount": "20", "order_time": "2026-05-03 12:00:00",
		"stock_batch_info": [{"stock_batch_number": "b1", "amount": "20"}]
	}`, txID))
}

func storeOrder(t *testing.T, c *Contract, orderID, seller, amount, batch string) {
	t.Helper()
	order := fmt.Sprintf(`{
		"order_id": %q,
		"token_id": "1", "seller_id": %q, "buyer_id": "Buyer",
		"amount": %q, "order_time": "2026-05-03 12:00:00",
		"stock_batch_info": [{"stock_batch_number": %q, "amount": %q}]
	}`, orderID, seller, amount, batch, amount)
	require.NoError(t, c.StoreOrder(adminCtx(), order, uuid.NewString()))
}

func TestStoreRefund(t *testing.T) {
	ctx := adminCtx()
	c := newTestContract(t)
	mintTicket(t, c, "1", "Distributor", "100")
	distribute(t, c, "1", "Distributor", "Seller", "50", "b1")
	storeOrder(t, c, "o1", "Seller", "30", "b1")

	refund := `{
		"refund_id": "r1", "order_id": "o1",
		"token_id": "1", "owner": "Seller",
		"amount": "20", "refund_time": "2026-05-04 12:00:00",
		"stock_batch_info": [{"stock_batch_number": "b1", "amount": "20"}]
	}`
	require.NoError(t, c.StoreRefund(ctx, refund, uuid.NewString()))

	// The refunded value is credited back under the same batch
	balance, err := c.BalanceOfValue(ctx, "1", "Seller", "org1")
	require.NoError(t, err)
	assert.Equal(t, "40", balance)

	err = c.StoreRefund(ctx, refund, uuid.NewString())
	require.Error(t, err)
	assert.Equal(t, domain.CodeConflict, domain.CodeOf(err))
	assert.ErrorContains(t, err, "refund r1 already stored")
}

func TestStoreRefundCeiling(t *testing.T) {
	ctx := adminCtx()
	c := newTestContract(t)
	mintTicket(t, c, "1", "Distributor", "100")
	distribute(t, c, "1", "Distributor", "Seller", "50", "b1")
	storeOrder(t, c, "o1", "Seller", "30", "b1")

	// First refund within the order's debit
	require.NoError(t, c.StoreRefund(ctx, `{
		"refund_id": "r1", "order_id": "o1",
		"token_id": "1", "owner": "Seller",
		"amount": "20", "refund_time": "2026-05-04 12:00:00",
		"stock_batch_info": [{"stock_batch_number": "b1", "amount": "20"}]
	}`, uuid.NewString()))

	// Cumulative refunds may not exceed what o1 debited for b1
	err := c.StoreRefund(ctx, `{
		"refund_id": "r2", "order_id": "o1",
		"token_id": "1", "owner": "Seller",
		"amount": "20", "refund_time": "2026-05-05 12:00:00",
		"stock_batch_info": [{"stock_batch_number": "b1", "amount": "20"}]
	}`, uuid.NewString())
	require.Error(t, err)
	assert.Equal(t, domain.CodeInvariant, domain.CodeOf(err))
	assert.ErrorContains(t, err, "refund amount for batch b1 exceeds debited amount 30")

	// The remainder is still refundable
	require.NoError(t, c.StoreRefund(ctx, `{
		"refund_id": "r3", "order_id": "o1",
		"token_id": "1", "owner": "Seller",
		"amount": "10", "refund_time": "2026-05-05 12:00:00",
		"stock_batch_info": [{"stock_batch_number": "b1", "amount": "10"}]
	}`, uuid.NewString()))
}

func TestStoreRefundMissingOwnerLeavesStateUntouched(t *testing.T) {
	ctx := adminCtx()
	c := newTestContract(t)
	mintTicket(t, c, "1", "Distributor", "100")
	distribute(t, c, "1", "Distributor", "Seller", "50", "b1")
	storeOrder(t, c, "o1", "Seller", "30", "b1")

	txID := uuid.NewString()
	err := c.StoreRefund(ctx, `{
		"refund_id": "r1", "order_id": "o1",
		"token_id": "1", "owner": "Ghost",
		"amount": "20", "refund_time": "2026-05-04 12:00:00",
		"stock_batch_info": [{"stock_batch_number": "b1", "amount": "20"}]
	}`, txID)
	require.Error(t, err)
	assert.Equal(t, domain.CodeNotFound, domain.CodeOf(err))
	assert.ErrorContains(t, err, "token 1 does not exist for owner Ghost")

	// No refund record was written and no marker consumed: the same
	// refund id and transaction still go through against the real owner
	require.NoError(t, c.StoreRefund(ctx, `{
		"refund_id": "r1", "order_id": "o1",
		"token_id": "1", "owner": "Seller",
		"amount": "20", "refund_time": "2026-05-04 12:00:00",
		"stock_batch_info": [{"stock_batch_number": "b1", "amount": "20"}]
	}`, txID))
	balance, err := c.BalanceOfValue(ctx, "1", "Seller", "org1")
	require.NoError(t, err)
	assert.Equal(t, "40", balance)
}

func TestStoreRefundUnknownOrder(t *testing.T) {
	ctx := adminCtx()
	c := newTestContract(t)
	mintTicket(t, c, "1", "Distributor", "100")

	err := c.StoreRefund(ctx, `{
		"refund_id": "r1", "order_id": "o9",
		"token_id": "1", "owner": "Seller",
		"amount": "10", "refund_time": "2026-05-04 12:00:00",
		"stock_batch_info": [{"stock_batch_number": "b1", "amount": "10"}]
	}`, uuid.NewString())
	require.Error(t, err)
	assert.Equal(t, domain.CodeNotFound, domain.CodeOf(err))
	assert.ErrorContains(t, err, "order o9 does not exist")
}

func TestDistributionOrder(t *testing.T) {
	ctx := adminCtx()
	c := newTestContract(t)
	mintTicket(t, c, "1", "Distributor", "100")

	distribute(t, c, "1", "Distributor", "Seller", "40", "b1")

	// Full deduction without a ratio
	nft, err := c.ReadTicket(ctx, "1", "Distributor", "org1")
	require.NoError(t, err)
	assert.Equal(t, "60", nft.Balance)
	assert.Equal(t, "60", nft.Slot.AdditionalInformation.StockInfo["available_total_num"])

	seller, err := c.ReadTicket(ctx, "1", "Seller", "org1")
	require.NoError(t, err)
	assert.Equal(t, "40", seller.Balance)
	require.Len(t, seller.StockBatches, 1)
	assert.Equal(t, "b1", seller.StockBatches[0].StockBatchNumber)
}

func TestDistributionOrderWithRatio(t *testing.T) {
	ctx := adminCtx()
	c := newTestContract(t)
	mintTicket(t, c, "1", "Distributor", "100")

	payload := `{
		"token_id": "1", "from": "Distributor", "to": "Seller",
		"amount": "96", "available_ratio": "0.2", "stock_batch_number": "b1"
	}`

	// With ratio 0.2 the immediate deduction is 96 - floor(96*0.2) = 77
	require.NoError(t, c.UpdateStockInfo(ctx, "1", "Distributor",
		`{"available_total_num": "20"}`, uuid.NewString()))
	err := c.DistributionOrder(ctx, payload, uuid.NewString())
	require.Error(t, err)
	assert.Equal(t, domain.CodeInvariant, domain.CodeOf(err))
	assert.ErrorContains(t, err, "deduction 77 exceeds available_total_num 20")

	require.NoError(t, c.UpdateStockInfo(ctx, "1", "Distributor",
		`{"available_total_num": "80"}`, uuid.NewString()))
	require.NoError(t, c.DistributionOrder(ctx, payload, uuid.NewString()))

	nft, err := c.ReadTicket(ctx, "1", "Distributor", "org1")
	require.NoError(t, err)
	assert.Equal(t, "3", nft.Slot.AdditionalInformation.StockInfo["available_total_num"])
	assert.Equal(t, "4", nft.Balance)

	balance, err := c.BalanceOfValue(ctx, "1", "Seller", "org1")
	require.NoError(t, err)
	assert.Equal(t, "96", balance)
}

func TestDistributionOrderValidation(t *testing.T) {
	ctx := adminCtx()
	c := newTestContract(t)
	mintTicket(t, c, "1", "Distributor", "100")

	err := c.DistributionOrder(ctx, `{
		"token_id": "1", "from": "Distributor", "to": "Seller",
		"amount": "10", "available_ratio": "1.0", "stock_batch_number": "b1"
	}`, uuid.NewString())
	require.Error(t, err)
	assert.ErrorContains(t, err, "available_ratio must be in [0, 1), got 1.0")

	err = c.DistributionOrder(ctx, `{
		"token_id": "1", "from": "Distributor", "amount": "10", "stock_batch_number": "b1"
	}`, uuid.NewString())
	require.EqualError(t, err, "to should not be empty")

	err = c.DistributionOrder(ctx, `{
		"token_id": "1", "from": "Distributor", "to": "Seller",
		"amount": "0", "stock_batch_number": "b1"
	}`, uuid.NewString())
	assert.Equal(t, domain.CodeInvariant, domain.CodeOf(err))
}

func TestDistributionOrderFailureLeavesStateUntouched(t *testing.T) {
	ctx := adminCtx()
	c := newTestContract(t)
	// Balance 50 but the slot advertises available_total_num 100, so the
	// availability check alone cannot reject an over-balance distribution
	mintTicket(t, c, "1", "Distributor", "50")

	txID := uuid.NewString()
	err := c.DistributionOrder(ctx, `{
		"token_id": "1", "from": "Distributor", "to": "Seller",
		"amount": "60", "stock_batch_number": "b1"
	}`, txID)
	require.Error(t, err)
	assert.Equal(t, domain.CodeInvariant, domain.CodeOf(err))
	assert.ErrorContains(t, err, "split amount 60 exceeds balance 50")

	// Neither the stock decrement nor any value movement was committed
	nft, err := c.ReadTicket(ctx, "1", "Distributor", "org1")
	require.NoError(t, err)
	assert.Equal(t, "100", nft.Slot.AdditionalInformation.StockInfo["available_total_num"])
	assert.Equal(t, "50", nft.Balance)
	_, err = c.BalanceOfValue(ctx, "1", "Seller", "org1")
	assert.Equal(t, domain.CodeNotFound, domain.CodeOf(err))

	// The rejected call consumed no idempotency marker
	require.NoError(t, c.DistributionOrder(ctx, `{
		"token_id": "1", "from": "Distributor", "to": "Seller",
		"amount": "40", "stock_batch_number": "b1"
	}`, txID))
}

func TestDistributionRefund(t *testing.T) {
	ctx := adminCtx()
	c := newTestContract(t)
	mintTicket(t, c, "1", "Distributor", "100")
	distribute(t, c, "1", "Distributor", "Seller", "40", "b1")

	// Seller returns 15 of batch b1 to the distributor
	require.NoError(t, c.DistributionRefund(ctx, `{
		"token_id": "1", "from": "Seller", "to": "Distributor",
		"amount": "15", "stock_batch_number": "b1"
	}`, uuid.NewString()))

	sellerBalance, err := c.BalanceOfValue(ctx, "1", "Seller", "org1")
	require.NoError(t, err)
	assert.Equal(t, "25", sellerBalance)

	nft, err := c.ReadTicket(ctx, "1", "Distributor", "org1")
	require.NoError(t, err)
	assert.Equal(t, "75", nft.Balance)
	assert.Equal(t, "75", nft.Slot.AdditionalInformation.StockInfo["available_total_num"])
}

func TestDistributionRefundFailureLeavesStateUntouched(t *testing.T) {
	ctx := adminCtx()
	c := newTestContract(t)
	mintTicket(t, c, "1", "Distributor", "100")
	distribute(t, c, "1", "Distributor", "Seller", "40", "b1")

	txID := uuid.NewString()
	err := c.DistributionRefund(ctx, `{
		"token_id": "1", "from": "Ghost", "to": "Distributor",
		"amount": "15", "stock_batch_number": "b1"
	}`, txID)
	require.Error(t, err)
	assert.Equal(t, domain.CodeNotFound, domain.CodeOf(err))
	assert.ErrorContains(t, err, "token 1 does not exist for owner Ghost")

	// The distributor's availability was not credited
	nft, err := c.ReadTicket(ctx, "1", "Distributor", "org1")
	require.NoError(t, err)
	assert.Equal(t, "60", nft.Slot.AdditionalInformation.StockInfo["available_total_num"])
	assert.Equal(t, "60", nft.Balance)

	// and the marker is still free for the corrected refund
	require.NoError(t, c.DistributionRefund(ctx, `{
		"token_id": "1", "from": "Seller", "to": "Distributor",
		"amount": "15", "stock_batch_number": "b1"
	}`, txID))
}

func TestActivateTickets(t *testing.T) {
	ctx := adminCtx()
	c := newTestContract(t)
	mintTicket(t, c, "1", "Distributor", "100")
	distribute(t, c, "1", "Distributor", "Seller", "50", "b1")

	require.NoError(t, c.ActivateTickets(ctx, `{
		"token_id": "1", "owner": "Seller", "batch_id": "b1",
		"periods": 1, "total_periods": 2, "amount": "30"
	}`, uuid.NewString()))

	balance, err := c.BalanceOfValue(ctx, "1", "Seller", "org1")
	require.NoError(t, err)
	assert.Equal(t, "20", balance)

	// The final period must consume the batch exactly
	err = c.ActivateTickets(ctx, `{
		"token_id": "1", "owner": "Seller", "batch_id": "b1",
		"periods": 2, "total_periods": 2, "amount": "10"
	}`, uuid.NewString())
	require.Error(t, err)
	assert.Equal(t, domain.CodeInvariant, domain.CodeOf(err))
	assert.ErrorContains(t, err, "final period must reconcile batch b1 to zero, 10 remains")

	require.NoError(t, c.ActivateTickets(ctx, `{
		"token_id": "1", "owner": "Seller", "batch_id": "b1",
		"periods": 2, "total_periods": 2, "amount": "20"
	}`, uuid.NewString()))

	balance, err = c.BalanceOfValue(ctx, "1", "Seller", "org1")
	require.NoError(t, err)
	assert.Equal(t, "0", balance)
}

func TestActivateTicketsValidation(t *testing.T) {
	ctx := adminCtx()
	c := newTestContract(t)
	mintTicket(t, c, "1", "Distributor", "100")
	distribute(t, c, "1", "Distributor", "Seller", "50", "b1")

	err := c.ActivateTickets(ctx, `{
		"token_id": "1", "owner": "Seller", "periods": 1, "total_periods": 2, "amount": "10"
	}`, uuid.NewString())
	require.Error(t, err)
	assert.ErrorContains(t, err, "batch_id and periods are required")

	err = c.ActivateTickets(ctx, `{
		"token_id": "1", "owner": "Seller", "batch_id": "b1",
		"periods": 3, "total_periods": 2, "amount": "10"
	}`, uuid.NewString())
	require.Error(t, err)
	assert.ErrorContains(t, err, "periods 3 exceeds total_periods 2")

	err = c.ActivateTickets(ctx, `{
		"token_id": "1", "owner": "Seller", "batch_id": "b1",
		"periods": 1, "total_periods": 2, "amount": "60"
	}`, uuid.NewString())
	require.Error(t, err)
	assert.ErrorContains(t, err, "activation amount 60 exceeds batch b1 amount 50")
}

func TestTradeNoDedupe(t *testing.T) {
	ctx := adminCtx()
	c := newTestContract(t)
	mintTicket(t, c, "1", "Distributor", "100")
	distribute(t, c, "1", "Distributor", "Seller", "50", "b1")
	storeOrder(t, c, "o0", "Seller", "5", "b1")

	order := `{
		"order_id": "o1", "trade_no": "tr-1",
		"token_id": "1", "seller_id": "Seller", "buyer_id": "Buyer",
		"amount": "10", "order_time": "2026-05-03 12:00:00",
		"stock_batch_info": [{"stock_batch_number": "b1", "amount": "10"}]
	}`
	require.NoError(t, c.StoreOrder(ctx, order, uuid.NewString()))

	// The same upstream trade number cannot back a second order
	err := c.StoreOrder(ctx, `{
		"order_id": "o2", "trade_no": "tr-1",
		"token_id": "1", "seller_id": "Seller", "buyer_id": "Buyer",
		"amount": "10", "order_time": "2026-05-03 12:00:00",
		"stock_batch_info": [{"stock_batch_number": "b1", "amount": "10"}]
	}`, uuid.NewString())
	require.Error(t, err)
	assert.Equal(t, domain.CodeConflict, domain.CodeOf(err))
	assert.Contains(t, err.Error(), "trade number tr-1 already processed")
}

package contract

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"strconv"

	"go.uber.org/zap"

	"github.com/seatrail/ticket-ledger/internal/domain"
	"github.com/seatrail/ticket-ledger/internal/keys"
	"github.com/seatrail/ticket-ledger/internal/logger"
	"github.com/seatrail/ticket-ledger/internal/presets"
)

func decodeBatchInfo(v any) ([]domain.StockBatch, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	var batches []domain.StockBatch
	if err := json.Unmarshal(raw, &batches); err != nil {
		return nil, fmt.Errorf("invalid stock_batch_info: %w", err)
	}
	return batches, nil
}

// StoreOrder validates and stores an order, debiting the seller's token by
// each stock-batch entry. The batch entries must sum to the order amount.
func (c *Contract) StoreOrder(ctx context.Context, orderJSON, txID string) error {
	caller, err := c.gate(ctx)
	if err != nil {
		return err
	}
	payload, err := decodePayload(orderJSON, presets.Order)
	if err != nil {
		return err
	}
	var ord domain.Order
	if err := json.Unmarshal([]byte(orderJSON), &ord); err != nil {
		return fmt.Errorf("payload is not valid JSON: %w", err)
	}

	amount, err := domain.ParseAmount(ord.Amount)
	if err != nil {
		return err
	}
	batchTotal, err := domain.BatchTotal(ord.StockBatchInfo)
	if err != nil {
		return err
	}
	if batchTotal != amount {
		return domain.NewInvariant("stock_batch_info total %d does not match order amount %d", batchTotal, amount)
	}

	existing, err := c.kv.Get(ctx, keys.Order(ord.OrderID))
	if err != nil {
		return err
	}
	if existing != nil {
		return domain.NewConflict("order %s already stored", ord.OrderID)
	}

	// Every batch debit must be satisfiable before the first one is
	// applied, so a failed order leaves the seller's token untouched.
	// Repeated batch numbers are checked cumulatively.
	debits := make(map[string]int64, len(ord.StockBatchInfo))
	for _, b := range ord.StockBatchInfo {
		v, err := domain.ParseAmount(b.Amount)
		if err != nil {
			return err
		}
		debits[b.StockBatchNumber] += v
		if err := c.tokens.CheckDebitBatch(ctx, ord.TokenID, ord.SellerID, caller.Org, b.StockBatchNumber, debits[b.StockBatchNumber]); err != nil {
			return err
		}
	}

	if err := c.guard.ConsumeTx(ctx, txID); err != nil {
		return err
	}
	if tradeNo, ok := payload["trade_no"].(string); ok && tradeNo != "" {
		if err := c.guard.ConsumeTrade(ctx, tradeNo); err != nil {
			return err
		}
	}

	for _, b := range ord.StockBatchInfo {
		v, err := domain.ParseAmount(b.Amount)
		if err != nil {
			return err
		}
		if err := c.tokens.DebitBatch(ctx, ord.TokenID, ord.SellerID, caller.Org, b.StockBatchNumber, v); err != nil {
			return err
		}
	}

	raw, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	if err := c.kv.Put(ctx, keys.Order(ord.OrderID), raw); err != nil {
		return err
	}
	logger.Info("order stored",
		zap.String("order_id", ord.OrderID),
		zap.String("token_id", ord.TokenID),
		zap.String("seller_id", ord.SellerID),
		zap.Int64("amount", amount))
	return nil
}

// ReadOrder returns a stored order payload
func (c *Contract) ReadOrder(ctx context.Context, orderID string) (map[string]any, error) {
	if _, err := c.readMeta(ctx); err != nil {
		return nil, err
	}
	if orderID == "" {
		return nil, fmt.Errorf("order_id should not be empty")
	}
	raw, err := c.kv.Get(ctx, keys.Order(orderID))
	if err != nil {
		return nil, err
	}
	if raw == nil {
		return nil, domain.NewNotFound("order %s does not exist", orderID)
	}
	var order map[string]any
	if err := json.Unmarshal(raw, &order); err != nil {
		return nil, fmt.Errorf("corrupt order %s: %w", orderID, err)
	}
	return order, nil
}

// loadOrder reads a stored order into its typed form
func (c *Contract) loadOrder(ctx context.Context, orderID string) (*domain.Order, error) {
	raw, err := c.kv.Get(ctx, keys.Order(orderID))
	if err != nil {
		return nil, err
	}
	if raw == nil {
		return nil, domain.NewNotFound("order %s does not exist", orderID)
	}
	var ord domain.Order
	if err := json.Unmarshal(raw, &ord); err != nil {
		return nil, fmt.Errorf("corrupt order %s: %w", orderID, err)
	}
	return &ord, nil
}

// refundedPerBatch sums prior refunds of an order, keyed by batch number
func (c *Contract) refundedPerBatch(ctx context.Context, orderID string) (map[string]int64, error) {
	entries, err := c.kv.List(ctx, keys.RefundPrefix(orderID))
	if err != nil {
		return nil, err
	}
	totals := make(map[string]int64)
	for _, e := range entries {
		var refund map[string]any
		if err := json.Unmarshal(e.Value, &refund); err != nil {
			return nil, fmt.Errorf("corrupt refund record: %w", err)
		}
		batches, err := decodeBatchInfo(refund["stock_batch_info"])
		if err != nil {
			return nil, err
		}
		for _, b := range batches {
			v, err := domain.ParseAmount(b.Amount)
			if err != nil {
				return nil, err
			}
			totals[b.StockBatchNumber] += v
		}
	}
	return totals, nil
}

// StoreRefund validates and stores a refund, crediting the token's stock
// batches. Per batch, cumulative refunds may never exceed what the
// originating order debited.
func (c *Contract) StoreRefund(ctx context.Context, refundJSON, txID string) error {
	caller, err := c.gate(ctx)
	if err != nil {
		return err
	}
	payload, err := decodePayload(refundJSON, presets.Refund)
	if err != nil {
		return err
	}
	refundID := payload["refund_id"].(string)
	orderID := payload["order_id"].(string)
	tokenID := payload["token_id"].(string)
	owner := payload["owner"].(string)

	ord, err := c.loadOrder(ctx, orderID)
	if err != nil {
		return err
	}
	ordered := make(map[string]int64, len(ord.StockBatchInfo))
	for _, b := range ord.StockBatchInfo {
		v, err := domain.ParseAmount(b.Amount)
		if err != nil {
			return err
		}
		ordered[b.StockBatchNumber] += v
	}

	existing, err := c.kv.Get(ctx, keys.Refund(orderID, refundID))
	if err != nil {
		return err
	}
	if existing != nil {
		return domain.NewConflict("refund %s already stored", refundID)
	}

	refundBatches, err := decodeBatchInfo(payload["stock_batch_info"])
	if err != nil {
		return err
	}
	refunded, err := c.refundedPerBatch(ctx, orderID)
	if err != nil {
		return err
	}
	for _, b := range refundBatches {
		v, err := domain.ParseAmount(b.Amount)
		if err != nil {
			return err
		}
		if v <= 0 {
			return domain.NewInvariant("credit amount must be positive, got %d", v)
		}
		if refunded[b.StockBatchNumber]+v > ordered[b.StockBatchNumber] {
			return domain.NewInvariant("refund amount for batch %s exceeds debited amount %d",
				b.StockBatchNumber, ordered[b.StockBatchNumber])
		}
	}

	// The credited record must exist before the marker is consumed
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

	for _, b := range refundBatches {
		v, err := domain.ParseAmount(b.Amount)
		if err != nil {
			return err
		}
		if err := c.tokens.CreditBatch(ctx, tokenID, owner, caller.Org, b.StockBatchNumber, v); err != nil {
			return err
		}
	}

	raw, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	if err := c.kv.Put(ctx, keys.Refund(orderID, refundID), raw); err != nil {
		return err
	}
	logger.Info("refund stored",
		zap.String("refund_id", refundID),
		zap.String("order_id", orderID),
		zap.String("token_id", tokenID))
	return nil
}

type distributionRequest struct {
	TokenID          string `json:"token_id"`
	From             string `json:"from"`
	To               string `json:"to"`
	Amount           string `json:"amount"`
	AvailableRatio   string `json:"available_ratio"`
	StockBatchNumber string `json:"stock_batch_number"`
}

func parseDistribution(payloadJSON string) (*distributionRequest, int64, float64, error) {
	var req distributionRequest
	if err := json.Unmarshal([]byte(payloadJSON), &req); err != nil {
		return nil, 0, 0, fmt.Errorf("payload is not valid JSON: %w", err)
	}
	if req.TokenID == "" {
		return nil, 0, 0, fmt.Errorf("token_id should not be empty")
	}
	if req.From == "" {
		return nil, 0, 0, fmt.Errorf("from should not be empty")
	}
	if req.To == "" {
		return nil, 0, 0, fmt.Errorf("to should not be empty")
	}
	if req.StockBatchNumber == "" {
		return nil, 0, 0, fmt.Errorf("stock_batch_number should not be empty")
	}
	amount, err := domain.ParseAmount(req.Amount)
	if err != nil {
		return nil, 0, 0, err
	}
	if amount <= 0 {
		return nil, 0, 0, domain.NewInvariant("distribution amount must be positive, got %s", req.Amount)
	}
	ratio := 0.0
	if req.AvailableRatio != "" {
		ratio, err = strconv.ParseFloat(req.AvailableRatio, 64)
		if err != nil {
			return nil, 0, 0, fmt.Errorf("invalid available_ratio %q", req.AvailableRatio)
		}
		if ratio < 0 || ratio >= 1 {
			return nil, 0, 0, domain.NewInvariant("available_ratio must be in [0, 1), got %s", req.AvailableRatio)
		}
	}
	return &req, amount, ratio, nil
}

// stockDeduction is the immediate deduction from available_total_num.
// With a zero ratio the full amount is deducted. With a positive ratio the
// credit portion amount*ratio is rounded down, so the immediate deduction
// never under-counts.
func stockDeduction(amount int64, ratio float64) int64 {
	if ratio == 0 {
		return amount
	}
	credit := int64(math.Floor(float64(amount) * ratio))
	return amount - credit
}

func (c *Contract) readAvailable(ctx context.Context, tokenID, owner, org string) (map[string]any, int64, error) {
	stockInfo, err := c.readSubMap(ctx, tokenID, owner, org, keys.SubStockInfo)
	if err != nil {
		return nil, 0, err
	}
	s, ok := stockInfo["available_total_num"].(string)
	if !ok {
		return nil, 0, domain.NewNotFound("available_total_num of token %s does not exist", tokenID)
	}
	available, err := domain.ParseAmount(s)
	if err != nil {
		return nil, 0, err
	}
	return stockInfo, available, nil
}

// DistributionOrder transfers value from a sender's owner-scoped token to
// a receiver's, creating the receiver's record by split-mint when absent.
// With available_ratio > 0 only the non-credit portion is deducted from
// the sender's available_total_num; the remainder is a credit exposure
// tracked outside this record.
func (c *Contract) DistributionOrder(ctx context.Context, payloadJSON, txID string) error {
	caller, err := c.gate(ctx)
	if err != nil {
		return err
	}
	req, amount, ratio, err := parseDistribution(payloadJSON)
	if err != nil {
		return err
	}

	stockInfo, available, err := c.readAvailable(ctx, req.TokenID, req.From, caller.Org)
	if err != nil {
		return err
	}
	deduction := stockDeduction(amount, ratio)
	if deduction > available {
		return domain.NewInvariant("deduction %d exceeds available_total_num %d", deduction, available)
	}
	// The split must be known to succeed before the stock decrement
	// commits and the marker is consumed
	if err := c.tokens.CheckSplit(ctx, req.TokenID, req.From, req.To, caller.Org, amount); err != nil {
		return err
	}

	if err := c.guard.ConsumeTx(ctx, txID); err != nil {
		return err
	}

	stockInfo["available_total_num"] = domain.FormatAmount(available - deduction)
	if err := c.tokens.PutSub(ctx, req.TokenID, req.From, caller.Org, keys.SubStockInfo, stockInfo); err != nil {
		return err
	}
	if err := c.tokens.Split(ctx, req.TokenID, req.From, req.To, caller.Org, amount, req.StockBatchNumber); err != nil {
		return err
	}
	logger.Info("distribution order",
		zap.String("token_id", req.TokenID),
		zap.String("from", req.From),
		zap.String("to", req.To),
		zap.Int64("amount", amount),
		zap.Int64("deduction", deduction))
	return nil
}

// DistributionRefund reverses a distribution: value moves back from the
// receiver to the sender and the sender's available_total_num is credited
// by the same ratio-adjusted deduction.
func (c *Contract) DistributionRefund(ctx context.Context, payloadJSON, txID string) error {
	caller, err := c.gate(ctx)
	if err != nil {
		return err
	}
	req, amount, ratio, err := parseDistribution(payloadJSON)
	if err != nil {
		return err
	}

	stockInfo, available, err := c.readAvailable(ctx, req.TokenID, req.To, caller.Org)
	if err != nil {
		return err
	}
	if err := c.tokens.CheckSplit(ctx, req.TokenID, req.From, req.To, caller.Org, amount); err != nil {
		return err
	}

	if err := c.guard.ConsumeTx(ctx, txID); err != nil {
		return err
	}

	if err := c.tokens.Split(ctx, req.TokenID, req.From, req.To, caller.Org, amount, req.StockBatchNumber); err != nil {
		return err
	}
	deduction := stockDeduction(amount, ratio)
	stockInfo["available_total_num"] = domain.FormatAmount(available + deduction)
	if err := c.tokens.PutSub(ctx, req.TokenID, req.To, caller.Org, keys.SubStockInfo, stockInfo); err != nil {
		return err
	}
	logger.Info("distribution refund",
		zap.String("token_id", req.TokenID),
		zap.String("from", req.From),
		zap.String("to", req.To),
		zap.Int64("amount", amount))
	return nil
}

type activationRequest struct {
	TokenID      string `json:"token_id"`
	Owner        string `json:"owner"`
	BatchID      string `json:"batch_id"`
	Periods      int    `json:"periods"`
	TotalPeriods int    `json:"total_periods"`
	Amount       string `json:"amount"`
}

// ActivateTickets applies one installment of a schedule against a batch's
// outstanding value. On the final period the batch balance must reconcile
// to zero.
func (c *Contract) ActivateTickets(ctx context.Context, payloadJSON, txID string) error {
	caller, err := c.gate(ctx)
	if err != nil {
		return err
	}
	var req activationRequest
	if err := json.Unmarshal([]byte(payloadJSON), &req); err != nil {
		return fmt.Errorf("payload is not valid JSON: %w", err)
	}
	if req.BatchID == "" || req.Periods == 0 {
		return domain.NewInvariant("batch_id and periods are required")
	}
	if req.TotalPeriods < req.Periods {
		return domain.NewInvariant("periods %d exceeds total_periods %d", req.Periods, req.TotalPeriods)
	}
	if req.Owner == "" {
		return fmt.Errorf("owner should not be empty")
	}
	amount, err := domain.ParseAmount(req.Amount)
	if err != nil {
		return err
	}
	if amount <= 0 {
		return domain.NewInvariant("activation amount must be positive, got %s", req.Amount)
	}

	held, err := c.tokens.BatchAmount(ctx, req.TokenID, req.Owner, caller.Org, req.BatchID)
	if err != nil {
		return err
	}
	if amount > held {
		return domain.NewInvariant("activation amount %d exceeds batch %s amount %d", amount, req.BatchID, held)
	}
	if req.Periods == req.TotalPeriods && held != amount {
		return domain.NewInvariant("final period must reconcile batch %s to zero, %d remains", req.BatchID, held-amount)
	}

	if err := c.guard.ConsumeTx(ctx, txID); err != nil {
		return err
	}
	if err := c.tokens.DebitBatch(ctx, req.TokenID, req.Owner, caller.Org, req.BatchID, amount); err != nil {
		return err
	}
	logger.Info("tickets activated",
		zap.String("token_id", req.TokenID),
		zap.String("batch_id", req.BatchID),
		zap.Int("periods", req.Periods),
		zap.Int64("amount", amount))
	return nil
}

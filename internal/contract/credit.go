package contract

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/seatrail/ticket-ledger/internal/domain"
	"github.com/seatrail/ticket-ledger/internal/keys"
	"github.com/seatrail/ticket-ledger/internal/logger"
)

type creditRequest struct {
	Account    string `json:"account"`
	MerchantID string `json:"merchant_id"`
	IssuerID   string `json:"issuer_id"`
	Amount     string `json:"amount"`
}

// StoreCreditInfo records or overwrites the credit line an issuer extends
// to a merchant account. Repeated calls replace the amount outright.
func (c *Contract) StoreCreditInfo(ctx context.Context, creditJSON, txID string) error {
	if _, err := c.gate(ctx); err != nil {
		return err
	}
	var req creditRequest
	if err := json.Unmarshal([]byte(creditJSON), &req); err != nil {
		return fmt.Errorf("payload is not valid JSON: %w", err)
	}
	if req.Account == "" {
		return fmt.Errorf("account should not be empty")
	}
	if req.MerchantID == "" {
		return fmt.Errorf("merchant_id should not be empty")
	}
	if req.IssuerID == "" {
		return fmt.Errorf("issuer_id should not be empty")
	}
	amount, err := domain.ParseAmount(req.Amount)
	if err != nil {
		return err
	}
	if amount < 0 {
		return domain.NewInvariant("credit amount must not be negative, got %s", req.Amount)
	}

	if err := c.guard.ConsumeTx(ctx, txID); err != nil {
		return err
	}

	line := domain.CreditLine{
		Account:    req.Account,
		MerchantID: req.MerchantID,
		IssuerID:   req.IssuerID,
		Amount:     domain.FormatAmount(amount),
	}
	if err := c.writeCredit(ctx, &line); err != nil {
		return err
	}
	logger.Info("credit line stored",
		zap.String("account", req.Account),
		zap.String("merchant_id", req.MerchantID),
		zap.Int64("amount", amount))
	return nil
}

// ReadCreditInfo returns the credit line for an account/merchant pair.
func (c *Contract) ReadCreditInfo(ctx context.Context, account, merchantID string) (*domain.CreditLine, error) {
	if _, err := c.readMeta(ctx); err != nil {
		return nil, err
	}
	if account == "" {
		return nil, fmt.Errorf("account should not be empty")
	}
	if merchantID == "" {
		return nil, fmt.Errorf("merchant_id should not be empty")
	}
	return c.readCredit(ctx, account, merchantID)
}

func (c *Contract) readCredit(ctx context.Context, account, merchantID string) (*domain.CreditLine, error) {
	raw, err := c.kv.Get(ctx, keys.Credit(account, merchantID))
	if err != nil {
		return nil, err
	}
	if raw == nil {
		return nil, domain.NewNotFound("credit line of account %s with merchant %s does not exist", account, merchantID)
	}
	var line domain.CreditLine
	if err := json.Unmarshal(raw, &line); err != nil {
		return nil, fmt.Errorf("corrupt credit line: %w", err)
	}
	return &line, nil
}

func (c *Contract) writeCredit(ctx context.Context, line *domain.CreditLine) error {
	line.UpdatedAt = time.Now().UTC().Format(time.RFC3339)
	raw, err := json.Marshal(line)
	if err != nil {
		return err
	}
	return c.kv.Put(ctx, keys.Credit(line.Account, line.MerchantID), raw)
}

type transferCreditRequest struct {
	FromAccount string `json:"from_account"`
	ToAccount   string `json:"to_account"`
	MerchantID  string `json:"merchant_id"`
	Amount      string `json:"amount"`
	TradeNo     string `json:"trade_no"`
}

// TransferCredit moves credit between two existing lines of the same
// merchant. Both lines must already be stored; the source must cover the
// amount. The trade number dedupes retries across operations.
func (c *Contract) TransferCredit(ctx context.Context, transferJSON, txID string) error {
	if _, err := c.gate(ctx); err != nil {
		return err
	}
	var req transferCreditRequest
	if err := json.Unmarshal([]byte(transferJSON), &req); err != nil {
		return fmt.Errorf("payload is not valid JSON: %w", err)
	}
	if req.FromAccount == "" {
		return fmt.Errorf("from_account should not be empty")
	}
	if req.ToAccount == "" {
		return fmt.Errorf("to_account should not be empty")
	}
	if req.MerchantID == "" {
		return fmt.Errorf("merchant_id should not be empty")
	}
	if req.TradeNo == "" {
		return fmt.Errorf("trade_no should not be empty")
	}
	if req.FromAccount == req.ToAccount {
		return domain.NewInvariant("cannot transfer credit from %s to itself", req.FromAccount)
	}
	amount, err := domain.ParseAmount(req.Amount)
	if err != nil {
		return err
	}
	if amount <= 0 {
		return domain.NewInvariant("transfer amount must be positive, got %s", req.Amount)
	}

	from, err := c.readCredit(ctx, req.FromAccount, req.MerchantID)
	if err != nil {
		return err
	}
	to, err := c.readCredit(ctx, req.ToAccount, req.MerchantID)
	if err != nil {
		return err
	}
	fromAmount, err := domain.ParseAmount(from.Amount)
	if err != nil {
		return err
	}
	toAmount, err := domain.ParseAmount(to.Amount)
	if err != nil {
		return err
	}
	if amount > fromAmount {
		return domain.NewInvariant("transfer amount %d exceeds credit %d of account %s", amount, fromAmount, req.FromAccount)
	}

	if err := c.guard.ConsumeTx(ctx, txID); err != nil {
		return err
	}
	if err := c.guard.ConsumeTrade(ctx, req.TradeNo); err != nil {
		return err
	}

	from.Amount = domain.FormatAmount(fromAmount - amount)
	to.Amount = domain.FormatAmount(toAmount + amount)
	if err := c.writeCredit(ctx, from); err != nil {
		return err
	}
	if err := c.writeCredit(ctx, to); err != nil {
		return err
	}
	logger.Info("credit transferred",
		zap.String("from_account", req.FromAccount),
		zap.String("to_account", req.ToAccount),
		zap.String("merchant_id", req.MerchantID),
		zap.Int64("amount", amount))
	return nil
}

type paymentRequest struct {
	MerchantID              string `json:"merchant_id"`
	Account                 string `json:"account"`
	Amount                  string `json:"amount"`
	TransactionSerialNumber string `json:"transaction_serial_number"`
}

// PaymentFlow records a settlement against an account's credit line. The
// serial number is the idempotency handle shared with upstream payment
// systems, so it is consumed like a trade number.
func (c *Contract) PaymentFlow(ctx context.Context, paymentJSON, txID string) error {
	if _, err := c.gate(ctx); err != nil {
		return err
	}
	var req paymentRequest
	if err := json.Unmarshal([]byte(paymentJSON), &req); err != nil {
		return fmt.Errorf("payload is not valid JSON: %w", err)
	}
	if req.MerchantID == "" {
		return fmt.Errorf("merchant_id should not be empty")
	}
	if req.Account == "" {
		return fmt.Errorf("account should not be empty")
	}
	if req.TransactionSerialNumber == "" {
		return fmt.Errorf("transaction_serial_number should not be empty")
	}
	amount, err := domain.ParseAmount(req.Amount)
	if err != nil {
		return err
	}
	if amount <= 0 {
		return domain.NewInvariant("payment amount must be positive, got %s", req.Amount)
	}

	line, err := c.readCredit(ctx, req.Account, req.MerchantID)
	if err != nil {
		return err
	}
	lineAmount, err := domain.ParseAmount(line.Amount)
	if err != nil {
		return err
	}

	if err := c.guard.ConsumeTx(ctx, txID); err != nil {
		return err
	}
	if err := c.guard.ConsumeTrade(ctx, req.TransactionSerialNumber); err != nil {
		return err
	}

	line.Amount = domain.FormatAmount(lineAmount + amount)
	if err := c.writeCredit(ctx, line); err != nil {
		return err
	}

	record := domain.PaymentRecord{
		MerchantID:              req.MerchantID,
		Account:                 req.Account,
		Amount:                  domain.FormatAmount(amount),
		TransactionSerialNumber: req.TransactionSerialNumber,
		CreatedAt:               time.Now().UTC().Format(time.RFC3339),
	}
	raw, err := json.Marshal(record)
	if err != nil {
		return err
	}
	if err := c.kv.Put(ctx, keys.Payment(req.TransactionSerialNumber), raw); err != nil {
		return err
	}
	logger.Info("payment recorded",
		zap.String("merchant_id", req.MerchantID),
		zap.String("account", req.Account),
		zap.String("serial", req.TransactionSerialNumber),
		zap.Int64("amount", amount))
	return nil
}

// ReadPayment returns a stored payment record by serial number.
func (c *Contract) ReadPayment(ctx context.Context, serial string) (*domain.PaymentRecord, error) {
	if _, err := c.readMeta(ctx); err != nil {
		return nil, err
	}
	if serial == "" {
		return nil, fmt.Errorf("transaction_serial_number should not be empty")
	}
	raw, err := c.kv.Get(ctx, keys.Payment(serial))
	if err != nil {
		return nil, err
	}
	if raw == nil {
		return nil, domain.NewNotFound("payment %s does not exist", serial)
	}
	var record domain.PaymentRecord
	if err := json.Unmarshal(raw, &record); err != nil {
		return nil, fmt.Errorf("corrupt payment record: %w", err)
	}
	return &record, nil
}

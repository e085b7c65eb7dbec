package contract

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/seatrail/ticket-ledger/internal/domain"
)

func storeCredit(t *testing.T, c *Contract, account, merchantID, amount string) {
	t.Helper()
	require.NoError(t, c.StoreCreditInfo(adminCtx(), `{
		"account": "`+account+`", "merchant_id": "`+merchantID+`",
		"issuer_id": "issuer-1", "amount": "`+amount+`"
	}`, uuid.NewString()))
}

func TestStoreCreditInfo(t *testing.T) {
	ctx := adminCtx()
	c := newTestContract(t)

	storeCredit(t, c, "acct-1", "m1", "1000")

	line, err := c.ReadCreditInfo(ctx, "acct-1", "m1")
	require.NoError(t, err)
	assert.Equal(t, "acct-1", line.Account)
	assert.Equal(t, "m1", line.MerchantID)
	assert.Equal(t, "issuer-1", line.IssuerID)
	assert.Equal(t, "1000", line.Amount)
	assert.NotEmpty(t, line.UpdatedAt)

	// Repeated stores replace the amount outright
	storeCredit(t, c, "acct-1", "m1", "500")
	line, err = c.ReadCreditInfo(ctx, "acct-1", "m1")
	require.NoError(t, err)
	assert.Equal(t, "500", line.Amount)

	_, err = c.ReadCreditInfo(ctx, "acct-9", "m1")
	require.Error(t, err)
	assert.Equal(t, domain.CodeNotFound, domain.CodeOf(err))
	assert.ErrorContains(t, err, "credit line of account acct-9 with merchant m1 does not exist")
}

func TestStoreCreditInfoValidation(t *testing.T) {
	ctx := adminCtx()
	c := newTestContract(t)

	err := c.StoreCreditInfo(ctx, `{"merchant_id": "m1", "issuer_id": "i1", "amount": "10"}`, uuid.NewString())
	require.EqualError(t, err, "account should not be empty")
	err = c.StoreCreditInfo(ctx, `{"account": "a1", "issuer_id": "i1", "amount": "10"}`, uuid.NewString())
	require.EqualError(t, err, "merchant_id should not be empty")
	err = c.StoreCreditInfo(ctx, `{"account": "a1", "merchant_id": "m1", "amount": "10"}`, uuid.NewString())
	require.EqualError(t, err, "issuer_id should not be empty")
	err = c.StoreCreditInfo(ctx, `{"account": "a1", "merchant_id": "m1", "issuer_id": "i1", "amount": "x"}`, uuid.NewString())
	require.Error(t, err)
}

func TestTransferCredit(t *testing.T) {
	ctx := adminCtx()
	c := newTestContract(t)
	storeCredit(t, c, "acct-1", "m1", "1000")
	storeCredit(t, c, "acct-2", "m1", "200")

	require.NoError(t, c.TransferCredit(ctx, `{
		"from_account": "acct-1", "to_account": "acct-2",
		"merchant_id": "m1", "amount": "300", "trade_no": "tr-10"
	}`, uuid.NewString()))

	from, err := c.ReadCreditInfo(ctx, "acct-1", "m1")
	require.NoError(t, err)
	assert.Equal(t, "700", from.Amount)
	to, err := c.ReadCreditInfo(ctx, "acct-2", "m1")
	require.NoError(t, err)
	assert.Equal(t, "500", to.Amount)

	// Insufficient credit
	err = c.TransferCredit(ctx, `{
		"from_account": "acct-2", "to_account": "acct-1",
		"merchant_id": "m1", "amount": "501", "trade_no": "tr-11"
	}`, uuid.NewString())
	require.Error(t, err)
	assert.Equal(t, domain.CodeInvariant, domain.CodeOf(err))
	assert.ErrorContains(t, err, "transfer amount 501 exceeds credit 500 of account acct-2")

	// Both lines must exist
	err = c.TransferCredit(ctx, `{
		"from_account": "acct-1", "to_account": "acct-9",
		"merchant_id": "m1", "amount": "10", "trade_no": "tr-12"
	}`, uuid.NewString())
	assert.Equal(t, domain.CodeNotFound, domain.CodeOf(err))

	// Trade numbers dedupe retries
	err = c.TransferCredit(ctx, `{
		"from_account": "acct-1", "to_account": "acct-2",
		"merchant_id": "m1", "amount": "1", "trade_no": "tr-10"
	}`, uuid.NewString())
	require.Error(t, err)
	assert.Equal(t, domain.CodeConflict, domain.CodeOf(err))
}

func TestTransferCreditValidation(t *testing.T) {
	ctx := adminCtx()
	c := newTestContract(t)
	storeCredit(t, c, "acct-1", "m1", "1000")

	err := c.TransferCredit(ctx, `{
		"from_account": "acct-1", "to_account": "acct-1",
		"merchant_id": "m1", "amount": "10", "trade_no": "tr-1"
	}`, uuid.NewString())
	require.Error(t, err)
	assert.ErrorContains(t, err, "cannot transfer credit from acct-1 to itself")

	err = c.TransferCredit(ctx, `{
		"from_account": "acct-1", "to_account": "acct-2",
		"merchant_id": "m1", "amount": "0", "trade_no": "tr-1"
	}`, uuid.NewString())
	assert.Equal(t, domain.CodeInvariant, domain.CodeOf(err))

	err = c.TransferCredit(ctx, `{
		"from_account": "acct-1", "to_account": "acct-2",
		"merchant_id": "m1", "amount": "10"
	}`, uuid.NewString())
	require.EqualError(t, err, "trade_no should not be empty")
}

func TestPaymentFlow(t *testing.T) {
	ctx := adminCtx()
	c := newTestContract(t)
	storeCredit(t, c, "acct-1", "m1", "1000")

	require.NoError(t, c.PaymentFlow(ctx, `{
		"merchant_id": "m1", "account": "acct-1",
		"amount": "250", "transaction_serial_number": "psn-1"
	}`, uuid.NewString()))

	line, err := c.ReadCreditInfo(ctx, "acct-1", "m1")
	require.NoError(t, err)
	assert.Equal(t, "1250", line.Amount)

	record, err := c.ReadPayment(ctx, "psn-1")
	require.NoError(t, err)
	assert.Equal(t, "m1", record.MerchantID)
	assert.Equal(t, "acct-1", record.Account)
	assert.Equal(t, "250", record.Amount)
	assert.Equal(t, "psn-1", record.TransactionSerialNumber)
	assert.NotEmpty(t, record.CreatedAt)

	// The serial number is shared with upstream settlement and dedupes
	// retries
	err = c.PaymentFlow(ctx, `{
		"merchant_id": "m1", "account": "acct-1",
		"amount": "250", "transaction_serial_number": "psn-1"
	}`, uuid.NewString())
	require.Error(t, err)
	assert.Equal(t, domain.CodeConflict, domain.CodeOf(err))

	line, err = c.ReadCreditInfo(ctx, "acct-1", "m1")
	require.NoError(t, err)
	assert.Equal(t, "1250", line.Amount)

	_, err = c.ReadPayment(ctx, "psn-9")
	assert.Equal(t, domain.CodeNotFound, domain.CodeOf(err))
}

func TestPaymentFlowRequiresCreditLine(t *testing.T) {
	ctx := adminCtx()
	c := newTestContract(t)

	err := c.PaymentFlow(ctx, `{
		"merchant_id": "m1", "account": "acct-1",
		"amount": "250", "transaction_serial_number": "psn-1"
	}`, uuid.NewString())
	require.Error(t, err)
	assert.Equal(t, domain.CodeNotFound, domain.CodeOf(err))
}

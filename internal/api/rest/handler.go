package rest

import (
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/seatrail/ticket-ledger/internal/contract"
	"github.com/seatrail/ticket-ledger/internal/identity"
)

// Handler defines the interface for REST API handlers
type Handler interface {
	// Initialize sets the ledger name and symbol and registers the caller
	// as the first organization admin
	// POST /api/v1/ledger/initialize
	Initialize(c *gin.Context)

	// GetLedgerInfo returns name, symbol and total supply
	// GET /api/v1/ledger
	GetLedgerInfo(c *gin.Context)

	// MintTicket mints a new ticket token
	// POST /api/v1/tokens
	MintTicket(c *gin.Context)

	// BurnTicket burns a ticket token, fully or partially
	// POST /api/v1/tokens/:token_id/burn
	BurnTicket(c *gin.Context)

	// GetToken returns token-level facts resolved through the token index
	// GET /api/v1/tokens/:token_id
	GetToken(c *gin.Context)

	// GetTicket returns the owner-scoped ticket record with its slot
	// GET /api/v1/tokens/:token_id/owners/:owner
	GetTicket(c *gin.Context)

	// IssueTickets moves minted tickets to issued
	// POST /api/v1/tokens/:token_id/owners/:owner/issue
	IssueTickets(c *gin.Context)

	// VerifyTicket records a check-in or use event
	// POST /api/v1/tokens/:token_id/owners/:owner/verify
	VerifyTicket(c *gin.Context)

	// TimerUpdate applies a scheduler-driven status transition
	// POST /api/v1/tokens/:token_id/owners/:owner/timer
	TimerUpdate(c *gin.Context)

	// UpdateStockInfo merges stock window fields
	// POST /api/v1/tokens/:token_id/owners/:owner/stock-info
	UpdateStockInfo(c *gin.Context)

	// UpdatePriceInfo merges distributor pricing entries
	// POST /api/v1/tokens/:token_id/owners/:owner/price-info
	UpdatePriceInfo(c *gin.Context)

	// StoreOrder stores a sale order and debits the seller's batches
	// POST /api/v1/orders
	StoreOrder(c *gin.Context)

	// GetOrder returns a stored order
	// GET /api/v1/orders/:order_id
	GetOrder(c *gin.Context)

	// StoreRefund stores a refund against an order
	// POST /api/v1/refunds
	StoreRefund(c *gin.Context)

	// DistributionOrder moves value down the distribution chain
	// POST /api/v1/distributions/orders
	DistributionOrder(c *gin.Context)

	// DistributionRefund reverses a distribution
	// POST /api/v1/distributions/refunds
	DistributionRefund(c *gin.Context)

	// ActivateTickets settles one installment against a stock batch
	// POST /api/v1/activations
	ActivateTickets(c *gin.Context)

	// StoreCredit stores or overwrites a credit line
	// POST /api/v1/credits
	StoreCredit(c *gin.Context)

	// GetCredit returns a credit line
	// GET /api/v1/credits/:account/:merchant_id
	GetCredit(c *gin.Context)

	// TransferCredit moves credit between accounts of a merchant
	// POST /api/v1/credits/transfer
	TransferCredit(c *gin.Context)

	// PaymentFlow records a settlement
	// POST /api/v1/payments
	PaymentFlow(c *gin.Context)

	// GetPayment returns a payment record by serial number
	// GET /api/v1/payments/:serial
	GetPayment(c *gin.Context)

	// StoreEvidence stores the canonical hash of a document
	// POST /api/v1/evidence
	StoreEvidence(c *gin.Context)

	// VerifyEvidence checks a document against its stored hash
	// POST /api/v1/evidence/:evidence_id/verify
	VerifyEvidence(c *gin.Context)

	// SetOrgAdmins registers the admin list of an organization
	// POST /api/v1/admins
	SetOrgAdmins(c *gin.Context)

	// GetOrgAdmins returns the admin list of an organization
	// GET /api/v1/admins/:org
	GetOrgAdmins(c *gin.Context)

	// HealthCheck returns the health status of the API
	// GET /health
	HealthCheck(c *gin.Context)
}

// handler implements the Handler interface
type handler struct {
	debug    bool
	contract *contract.Contract
}

// NewHandler creates a new REST API handler
func NewHandler(debug bool, contract *contract.Contract) Handler {
	return &handler{
		debug:    debug,
		contract: contract,
	}
}

func (h *handler) Initialize(c *gin.Context) {
	var req InitializeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondValidationError(c, fmt.Sprintf("Invalid request body: %v", err))
		return
	}

	if err := h.contract.Initialize(c.Request.Context(), req.Name, req.Symbol); err != nil {
		respondLedgerError(c, err)
		return
	}

	c.JSON(http.StatusCreated, SuccessResponse{Success: true})
}

func (h *handler) GetLedgerInfo(c *gin.Context) {
	ctx := c.Request.Context()
	name, err := h.contract.Name(ctx)
	if err != nil {
		respondLedgerError(c, err)
		return
	}
	symbol, err := h.contract.Symbol(ctx)
	if err != nil {
		respondLedgerError(c, err)
		return
	}
	totalSupply, err := h.contract.TotalSupply(ctx)
	if err != nil {
		respondLedgerError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"name":         name,
		"symbol":       symbol,
		"total_supply": totalSupply,
	})
}

func (h *handler) MintTicket(c *gin.Context) {
	var req MintRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondValidationError(c, fmt.Sprintf("Invalid request body: %v", err))
		return
	}

	nft, err := h.contract.Mint(c.Request.Context(),
		req.TokenID, req.Owner, req.Balance,
		string(req.Slot), string(req.Metadata), req.TxID)
	if err != nil {
		respondLedgerError(c, err)
		return
	}

	c.JSON(http.StatusCreated, nft)
}

func (h *handler) BurnTicket(c *gin.Context) {
	tokenID := c.Param("token_id")
	var req BurnRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondValidationError(c, fmt.Sprintf("Invalid request body: %v", err))
		return
	}

	if err := h.contract.Burn(c.Request.Context(), tokenID, req.Owner, req.Amount, req.TxID); err != nil {
		respondLedgerError(c, err)
		return
	}

	c.JSON(http.StatusOK, SuccessResponse{Success: true})
}

func (h *handler) GetToken(c *gin.Context) {
	tokenID := c.Param("token_id")
	ctx := c.Request.Context()

	owner, err := h.contract.OwnerOf(ctx, tokenID)
	if err != nil {
		respondLedgerError(c, err)
		return
	}
	slot, err := h.contract.SlotOf(ctx, tokenID)
	if err != nil {
		respondLedgerError(c, err)
		return
	}
	uri, err := h.contract.TokenURI(ctx, tokenID)
	if err != nil {
		respondLedgerError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"token_id": tokenID,
		"owner":    owner,
		"slot":     slot,
		"uri":      uri,
	})
}

func (h *handler) GetTicket(c *gin.Context) {
	caller, err := identity.FromContext(c.Request.Context())
	if err != nil {
		respondBadRequest(c, "Caller identity is required")
		return
	}

	nft, err := h.contract.ReadTicket(c.Request.Context(),
		c.Param("token_id"), c.Param("owner"), caller.Org)
	if err != nil {
		respondLedgerError(c, err)
		return
	}

	c.JSON(http.StatusOK, nft)
}

func (h *handler) IssueTickets(c *gin.Context) {
	h.payloadOp(c, func(payload, txID string) error {
		return h.contract.UpdateIssueTickets(c.Request.Context(),
			c.Param("token_id"), c.Param("owner"), payload, txID)
	})
}

func (h *handler) VerifyTicket(c *gin.Context) {
	h.payloadOp(c, func(payload, txID string) error {
		return h.contract.VerifyTicket(c.Request.Context(),
			c.Param("token_id"), c.Param("owner"), payload, txID)
	})
}

func (h *handler) TimerUpdate(c *gin.Context) {
	h.payloadOp(c, func(payload, txID string) error {
		return h.contract.TimerUpdateTickets(c.Request.Context(),
			c.Param("token_id"), c.Param("owner"), payload, txID)
	})
}

func (h *handler) UpdateStockInfo(c *gin.Context) {
	h.payloadOp(c, func(payload, txID string) error {
		return h.contract.UpdateStockInfo(c.Request.Context(),
			c.Param("token_id"), c.Param("owner"), payload, txID)
	})
}

func (h *handler) UpdatePriceInfo(c *gin.Context) {
	h.payloadOp(c, func(payload, txID string) error {
		return h.contract.UpdatePriceInfo(c.Request.Context(),
			c.Param("token_id"), c.Param("owner"), payload, txID)
	})
}

func (h *handler) StoreOrder(c *gin.Context) {
	h.payloadOp(c, func(payload, txID string) error {
		return h.contract.StoreOrder(c.Request.Context(), payload, txID)
	})
}

func (h *handler) GetOrder(c *gin.Context) {
	order, err := h.contract.ReadOrder(c.Request.Context(), c.Param("order_id"))
	if err != nil {
		respondLedgerError(c, err)
		return
	}
	c.JSON(http.StatusOK, order)
}

func (h *handler) StoreRefund(c *gin.Context) {
	h.payloadOp(c, func(payload, txID string) error {
		return h.contract.StoreRefund(c.Request.Context(), payload, txID)
	})
}

func (h *handler) DistributionOrder(c *gin.Context) {
	h.payloadOp(c, func(payload, txID string) error {
		return h.contract.DistributionOrder(c.Request.Context(), payload, txID)
	})
}

func (h *handler) DistributionRefund(c *gin.Context) {
	h.payloadOp(c, func(payload, txID string) error {
		return h.contract.DistributionRefund(c.Request.Context(), payload, txID)
	})
}

func (h *handler) ActivateTickets(c *gin.Context) {
	h.payloadOp(c, func(payload, txID string) error {
		return h.contract.ActivateTickets(c.Request.Context(), payload, txID)
	})
}

func (h *handler) StoreCredit(c *gin.Context) {
	h.payloadOp(c, func(payload, txID string) error {
		return h.contract.StoreCreditInfo(c.Request.Context(), payload, txID)
	})
}

func (h *handler) GetCredit(c *gin.Context) {
	line, err := h.contract.ReadCreditInfo(c.Request.Context(),
		c.Param("account"), c.Param("merchant_id"))
	if err != nil {
		respondLedgerError(c, err)
		return
	}
	c.JSON(http.StatusOK, line)
}

func (h *handler) TransferCredit(c *gin.Context) {
	h.payloadOp(c, func(payload, txID string) error {
		return h.contract.TransferCredit(c.Request.Context(), payload, txID)
	})
}

func (h *handler) PaymentFlow(c *gin.Context) {
	h.payloadOp(c, func(payload, txID string) error {
		return h.contract.PaymentFlow(c.Request.Context(), payload, txID)
	})
}

func (h *handler) GetPayment(c *gin.Context) {
	record, err := h.contract.ReadPayment(c.Request.Context(), c.Param("serial"))
	if err != nil {
		respondLedgerError(c, err)
		return
	}
	c.JSON(http.StatusOK, record)
}

func (h *handler) StoreEvidence(c *gin.Context) {
	var req EvidenceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondValidationError(c, fmt.Sprintf("Invalid request body: %v", err))
		return
	}

	if err := h.contract.StoreEvidence(c.Request.Context(),
		req.EvidenceID, string(req.Document), req.TxID); err != nil {
		respondLedgerError(c, err)
		return
	}

	c.JSON(http.StatusCreated, SuccessResponse{Success: true})
}

func (h *handler) VerifyEvidence(c *gin.Context) {
	var req VerifyEvidenceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondValidationError(c, fmt.Sprintf("Invalid request body: %v", err))
		return
	}

	valid, err := h.contract.VerifyEvidence(c.Request.Context(),
		c.Param("evidence_id"), string(req.Document))
	if err != nil {
		respondLedgerError(c, err)
		return
	}

	c.JSON(http.StatusOK, VerifyEvidenceResponse{Valid: valid})
}

func (h *handler) SetOrgAdmins(c *gin.Context) {
	var req SetOrgAdminRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondValidationError(c, fmt.Sprintf("Invalid request body: %v", err))
		return
	}

	if err := h.contract.SetOrgAdmin(c.Request.Context(), req.Org, req.Admins); err != nil {
		respondLedgerError(c, err)
		return
	}

	c.JSON(http.StatusOK, SuccessResponse{Success: true})
}

func (h *handler) GetOrgAdmins(c *gin.Context) {
	admins, err := h.contract.GetOrgAdmins(c.Request.Context(), c.Param("org"))
	if err != nil {
		respondLedgerError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"admins": admins})
}

// HealthCheck returns the health status of the API
func (h *handler) HealthCheck(c *gin.Context) {
	c.JSON(200, gin.H{
		"status":  "ok",
		"service": "ticket-ledger-api",
	})
}

// payloadOp binds the shared payload envelope and runs one ledger
// operation against it
func (h *handler) payloadOp(c *gin.Context, op func(payload, txID string) error) {
	var req PayloadRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondValidationError(c, fmt.Sprintf("Invalid request body: %v", err))
		return
	}

	if err := op(string(req.Payload), req.TxID); err != nil {
		respondLedgerError(c, err)
		return
	}

	c.JSON(http.StatusOK, SuccessResponse{Success: true})
}

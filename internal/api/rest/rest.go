package rest

import (
	"github.com/gin-gonic/gin"

	"github.com/seatrail/ticket-ledger/internal/api/middleware"
)

// SetupRoutes configures all REST API routes. Every ledger route requires
// an authenticated caller: reads resolve records within the caller's
// organization and writes are further gated by the on-ledger admin
// registry.
func SetupRoutes(router *gin.Engine, handler Handler, authCfg middleware.AuthConfig) {
	// Health check endpoint (no auth, no version prefix)
	router.GET("/health", handler.HealthCheck)

	v1 := router.Group("/api/v1", middleware.Auth(authCfg))
	{
		// Ledger lifecycle and token-level facts
		v1.POST("/ledger/initialize", handler.Initialize)
		v1.GET("/ledger", handler.GetLedgerInfo)

		// Token endpoints
		v1.POST("/tokens", handler.MintTicket)
		v1.GET("/tokens/:token_id", handler.GetToken)
		v1.POST("/tokens/:token_id/burn", handler.BurnTicket)

		// Owner-scoped ticket records and lifecycle operations
		v1.GET("/tokens/:token_id/owners/:owner", handler.GetTicket)
		v1.POST("/tokens/:token_id/owners/:owner/issue", handler.IssueTickets)
		v1.POST("/tokens/:token_id/owners/:owner/verify", handler.VerifyTicket)
		v1.POST("/tokens/:token_id/owners/:owner/timer", handler.TimerUpdate)
		v1.POST("/tokens/:token_id/owners/:owner/stock-info", handler.UpdateStockInfo)
		v1.POST("/tokens/:token_id/owners/:owner/price-info", handler.UpdatePriceInfo)

		// Trade endpoints
		v1.POST("/orders", handler.StoreOrder)
		v1.GET("/orders/:order_id", handler.GetOrder)
		v1.POST("/refunds", handler.StoreRefund)

		// Distribution endpoints
		v1.POST("/distributions/orders", handler.DistributionOrder)
		v1.POST("/distributions/refunds", handler.DistributionRefund)
		v1.POST("/activations", handler.ActivateTickets)

		// Credit and payment endpoints
		v1.POST("/credits", handler.StoreCredit)
		v1.GET("/credits/:account/:merchant_id", handler.GetCredit)
		v1.POST("/credits/transfer", handler.TransferCredit)
		v1.POST("/payments", handler.PaymentFlow)
		v1.GET("/payments/:serial", handler.GetPayment)

		// Evidence endpoints
		v1.POST("/evidence", handler.StoreEvidence)
		v1.POST("/evidence/:evidence_id/verify", handler.VerifyEvidence)

		// Organization admin registry
		v1.POST("/admins", handler.SetOrgAdmins)
		v1.GET("/admins/:org", handler.GetOrgAdmins)
	}
}

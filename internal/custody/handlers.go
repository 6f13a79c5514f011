package custody

import (
	"github.com/gin-gonic/gin"
	"github.com/ksred/optix-api/pkg/response"
)

// GinHandlers contains HTTP handlers for ledger account endpoints
type GinHandlers struct {
	ledger *Ledger
}

func NewGinHandlers(ledger *Ledger) *GinHandlers {
	return &GinHandlers{
		ledger: ledger,
	}
}

// DepositRequest funds the caller's ledger account. This endpoint stands in
// for the external value-transfer rail.
type DepositRequest struct {
	Amount uint64 `json:"amount"`
}

func (h *GinHandlers) DepositHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		clientID := c.GetString("clientID")
		if clientID == "" {
			response.Unauthorized(c, "missing client identity")
			return
		}

		var req DepositRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			response.BadRequest(c, err.Error())
			return
		}

		account, err := h.ledger.Deposit(clientID, req.Amount)
		response.Handle(c, account, err)
	}
}

func (h *GinHandlers) BalanceHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		clientID := c.GetString("clientID")
		if clientID == "" {
			response.Unauthorized(c, "missing client identity")
			return
		}

		balance, err := h.ledger.BalanceOf(clientID)
		response.Handle(c, gin.H{"client_id": clientID, "balance": balance}, err)
	}
}

package httpapi

import (
	"crypto/subtle"
	"errors"
	"io"
	"net/http"

	"github.com/MarkoPoloResearchLab/starpoints/pkg/points"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

const (
	errorInvalidPurchase = "userId, amount and price are required"
	errorPaymentFailed   = "Failed to create payment"
	errorGeneric         = "Failed"
	errorUnauthorized    = "Unauthorized"
)

type buyPointsRequest struct {
	UserID userIDField `json:"userId"`
	Amount int64       `json:"amount"`
	Price  int64       `json:"price"`
}

type buyPointsResponse struct {
	Success    bool   `json:"success"`
	InvoiceURL string `json:"invoiceUrl"`
}

func (handler *httpHandler) handleBuyPoints(ctx *gin.Context) {
	var request buyPointsRequest
	if err := ctx.ShouldBindJSON(&request); err != nil {
		ctx.JSON(http.StatusBadRequest, gin.H{"error": errorInvalidPurchase})
		return
	}
	userID, err := request.UserID.parse()
	if err != nil {
		ctx.JSON(http.StatusBadRequest, gin.H{"error": errorUserIDRequired})
		return
	}
	amount, err := points.NewPointsAmount(request.Amount)
	if err != nil {
		ctx.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	price, err := points.NewStarsPrice(request.Price)
	if err != nil {
		ctx.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	invoice, err := handler.invoices.CreateInvoice(ctx.Request.Context(), userID, amount, price)
	switch {
	case err == nil:
		ctx.JSON(http.StatusOK, buyPointsResponse{Success: true, InvoiceURL: invoice.URL})
	case errors.Is(err, points.ErrGateway):
		handler.logger.Warn("invoice link failed", zap.Int64("user_id", userID.Int64()), zap.Error(err))
		ctx.JSON(http.StatusBadGateway, gin.H{"error": errorPaymentFailed})
	case errors.Is(err, points.ErrInvalidPayload):
		ctx.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	default:
		handler.logger.Error("invoice creation failed", zap.Int64("user_id", userID.Int64()), zap.Error(err))
		ctx.JSON(http.StatusInternalServerError, gin.H{"error": errorGeneric})
	}
}

// handleWebhook answers 200 for anything it will not act on so Telegram stops redelivering it.
// Only failures worth a retry get a 500.
func (handler *httpHandler) handleWebhook(ctx *gin.Context) {
	if !handler.webhookAuthorized(ctx.GetHeader(headerSecret)) {
		ctx.JSON(http.StatusUnauthorized, gin.H{"error": errorUnauthorized})
		return
	}
	raw, err := io.ReadAll(io.LimitReader(ctx.Request.Body, maxUpdateBody))
	if err != nil {
		ctx.JSON(http.StatusBadRequest, gin.H{"error": errorGeneric})
		return
	}
	event, err := handler.decode(raw)
	if err != nil {
		handler.logger.Warn("dropping undecodable update", zap.Error(err))
		ctx.JSON(http.StatusOK, gin.H{"ok": true})
		return
	}
	if err := handler.processor.Process(ctx.Request.Context(), event); err != nil {
		handler.logger.Error("update processing failed", zap.String("kind", string(event.Kind)), zap.Error(err))
		ctx.JSON(http.StatusInternalServerError, gin.H{"error": "Error"})
		return
	}
	ctx.JSON(http.StatusOK, gin.H{"ok": true})
}

func (handler *httpHandler) webhookAuthorized(presented string) bool {
	if handler.cfg.WebhookSecret == "" {
		return true
	}
	return subtle.ConstantTimeCompare([]byte(presented), []byte(handler.cfg.WebhookSecret)) == 1
}

// Package httpapi exposes the points game over HTTP for the web app and the Telegram webhook.
package httpapi

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/MarkoPoloResearchLab/starpoints/pkg/points"
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

const (
	routeHealth   = "/healthz"
	routeClaim    = "/api/claim-daily"
	routeBuy      = "/api/buy-points"
	routeWebhook  = "/api/telegram-webhook"
	headerSecret  = "X-Telegram-Bot-Api-Secret-Token"
	maxUpdateBody = 1 << 20
)

var errMissingDependency = errors.New("httpapi: missing dependency")

// ClaimLedger is the daily-claim surface used by the claim routes.
type ClaimLedger interface {
	CheckEligibility(ctx context.Context, userID points.UserID) (points.Eligibility, error)
	Claim(ctx context.Context, userID points.UserID, displayName string) (points.ClaimResult, error)
}

// InvoiceIssuer mints Stars invoices.
type InvoiceIssuer interface {
	CreateInvoice(ctx context.Context, userID points.UserID, amount points.PointsAmount, price points.StarsPrice) (points.Invoice, error)
}

// EventProcessor consumes decoded webhook events.
type EventProcessor interface {
	Process(ctx context.Context, event points.Event) error
}

// Pinger reports backing store health.
type Pinger interface {
	Ping(ctx context.Context) error
}

// UpdateDecoder turns a raw webhook body into an event.
type UpdateDecoder func(raw []byte) (points.Event, error)

// Config controls cross-origin access and webhook authentication.
type Config struct {
	AllowedOrigins []string
	WebhookSecret  string
}

// Dependencies are the collaborators behind the routes.
type Dependencies struct {
	Claims    ClaimLedger
	Invoices  InvoiceIssuer
	Processor EventProcessor
	Decode    UpdateDecoder
	Health    Pinger
	Logger    *zap.Logger
}

type httpHandler struct {
	claims    ClaimLedger
	invoices  InvoiceIssuer
	processor EventProcessor
	decode    UpdateDecoder
	health    Pinger
	logger    *zap.Logger
	cfg       Config
}

// NewRouter wires the HTTP routes.
func NewRouter(cfg Config, deps Dependencies) (*gin.Engine, error) {
	if deps.Claims == nil || deps.Invoices == nil || deps.Processor == nil || deps.Decode == nil {
		return nil, fmt.Errorf("%w: claims, invoices, processor and decoder are required", errMissingDependency)
	}
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	handler := &httpHandler{
		claims:    deps.Claims,
		invoices:  deps.Invoices,
		processor: deps.Processor,
		decode:    deps.Decode,
		health:    deps.Health,
		logger:    logger,
		cfg:       cfg,
	}
	return setupRouter(cfg, handler), nil
}

func setupRouter(cfg Config, handler *httpHandler) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())
	corsConfig := cors.Config{
		AllowMethods: []string{"GET", "POST", "OPTIONS"},
		AllowHeaders: []string{"Content-Type", "Origin", "Accept"},
		MaxAge:       12 * time.Hour,
	}
	if len(cfg.AllowedOrigins) == 0 || containsWildcard(cfg.AllowedOrigins) {
		corsConfig.AllowAllOrigins = true
	} else {
		corsConfig.AllowOrigins = cfg.AllowedOrigins
	}
	router.Use(cors.New(corsConfig))

	router.GET(routeHealth, handler.handleHealth)

	router.GET(routeClaim, handler.handleClaimStatus)
	router.POST(routeClaim, handler.handleClaim)
	router.POST(routeBuy, handler.handleBuyPoints)
	router.POST(routeWebhook, handler.handleWebhook)

	return router
}

func (handler *httpHandler) handleHealth(ctx *gin.Context) {
	if handler.health != nil {
		if err := handler.health.Ping(ctx.Request.Context()); err != nil {
			handler.logger.Warn("health check failed", zap.Error(err))
			ctx.JSON(http.StatusServiceUnavailable, gin.H{"status": "unavailable"})
			return
		}
	}
	ctx.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func containsWildcard(origins []string) bool {
	for _, origin := range origins {
		if origin == "*" {
			return true
		}
	}
	return false
}

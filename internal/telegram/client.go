// Package telegram talks to the Telegram Bot API and decodes its webhook updates.
package telegram

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/MarkoPoloResearchLab/starpoints/pkg/points"
	"github.com/go-resty/resty/v2"
	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"go.uber.org/zap"
)

const (
	// DefaultAPIBaseURL is the public Bot API endpoint.
	DefaultAPIBaseURL = "https://api.telegram.org"
	defaultTimeout    = 10 * time.Second
	redactedToken     = "<redacted>"

	methodCreateInvoiceLink      = "createInvoiceLink"
	methodAnswerPreCheckoutQuery = "answerPreCheckoutQuery"
	methodRefundStarPayment      = "refundStarPayment"
	methodSendMessage            = "sendMessage"
	methodSetWebhook             = "setWebhook"
	methodDeleteWebhook          = "deleteWebhook"
	methodGetWebhookInfo         = "getWebhookInfo"
)

var errMissingToken = errors.New("bot token is required")

// ClientConfig configures a Bot API client.
type ClientConfig struct {
	Token   string
	BaseURL string
	Timeout time.Duration
}

// Client is a Bot API client implementing points.Gateway and points.MessageSender.
type Client struct {
	http   *resty.Client
	token  string
	logger *zap.Logger
}

// NewClient builds a Client. A nil logger disables call logging.
func NewClient(config ClientConfig, logger *zap.Logger) (*Client, error) {
	token := strings.TrimSpace(config.Token)
	if token == "" {
		return nil, errMissingToken
	}
	baseURL := strings.TrimRight(strings.TrimSpace(config.BaseURL), "/")
	if baseURL == "" {
		baseURL = DefaultAPIBaseURL
	}
	timeout := config.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	httpClient := resty.New().
		SetBaseURL(baseURL).
		SetTimeout(timeout).
		SetHeader("Content-Type", "application/json")
	return &Client{http: httpClient, token: token, logger: logger}, nil
}

type labeledPrice struct {
	Label  string `json:"label"`
	Amount int64  `json:"amount"`
}

type createInvoiceLinkRequest struct {
	Title         string         `json:"title"`
	Description   string         `json:"description"`
	Payload       string         `json:"payload"`
	ProviderToken string         `json:"provider_token"`
	Currency      string         `json:"currency"`
	Prices        []labeledPrice `json:"prices"`
}

type answerPreCheckoutQueryRequest struct {
	PreCheckoutQueryID string `json:"pre_checkout_query_id"`
	OK                 bool   `json:"ok"`
	ErrorMessage       string `json:"error_message,omitempty"`
}

type refundStarPaymentRequest struct {
	UserID                  int64  `json:"user_id"`
	TelegramPaymentChargeID string `json:"telegram_payment_charge_id"`
}

type webAppInfo struct {
	URL string `json:"url"`
}

type inlineKeyboardButton struct {
	Text   string      `json:"text"`
	WebApp *webAppInfo `json:"web_app,omitempty"`
}

type inlineKeyboardMarkup struct {
	InlineKeyboard [][]inlineKeyboardButton `json:"inline_keyboard"`
}

type sendMessageRequest struct {
	ChatID      int64                 `json:"chat_id"`
	Text        string                `json:"text"`
	ParseMode   string                `json:"parse_mode,omitempty"`
	ReplyMarkup *inlineKeyboardMarkup `json:"reply_markup,omitempty"`
}

// WebhookConfig describes a setWebhook call.
type WebhookConfig struct {
	URL                string   `json:"url"`
	SecretToken        string   `json:"secret_token,omitempty"`
	AllowedUpdates     []string `json:"allowed_updates,omitempty"`
	DropPendingUpdates bool     `json:"drop_pending_updates,omitempty"`
}

type deleteWebhookRequest struct {
	DropPendingUpdates bool `json:"drop_pending_updates,omitempty"`
}

// CreateInvoiceLink mints a Stars invoice link.
func (client *Client) CreateInvoiceLink(ctx context.Context, request points.InvoiceLinkRequest) (string, error) {
	prices := make([]labeledPrice, 0, len(request.Prices))
	for _, price := range request.Prices {
		prices = append(prices, labeledPrice{Label: price.Label, Amount: price.Amount})
	}
	var link string
	err := client.call(ctx, methodCreateInvoiceLink, createInvoiceLinkRequest{
		Title:       request.Title,
		Description: request.Description,
		Payload:     request.Payload,
		Currency:    request.Currency,
		Prices:      prices,
	}, &link)
	if err != nil {
		return "", err
	}
	return link, nil
}

// AnswerPreCheckoutQuery approves or rejects a checkout.
func (client *Client) AnswerPreCheckoutQuery(ctx context.Context, queryID string, ok bool, errorMessage string) error {
	return client.call(ctx, methodAnswerPreCheckoutQuery, answerPreCheckoutQueryRequest{
		PreCheckoutQueryID: queryID,
		OK:                 ok,
		ErrorMessage:       errorMessage,
	}, nil)
}

// RefundStarPayment returns the Stars of one payment to the user.
func (client *Client) RefundStarPayment(ctx context.Context, userID points.UserID, chargeID points.ChargeID) error {
	return client.call(ctx, methodRefundStarPayment, refundStarPaymentRequest{
		UserID:                  userID.Int64(),
		TelegramPaymentChargeID: chargeID.String(),
	}, nil)
}

// SendMessage delivers a chat message, with an optional web app button.
func (client *Client) SendMessage(ctx context.Context, message points.Message) error {
	request := sendMessageRequest{
		ChatID:    message.ChatID,
		Text:      message.Text,
		ParseMode: message.ParseMode,
	}
	if message.WebAppButton != nil {
		request.ReplyMarkup = &inlineKeyboardMarkup{
			InlineKeyboard: [][]inlineKeyboardButton{{
				{Text: message.WebAppButton.Text, WebApp: &webAppInfo{URL: message.WebAppButton.URL}},
			}},
		}
	}
	return client.call(ctx, methodSendMessage, request, nil)
}

// SetWebhook registers the webhook endpoint.
func (client *Client) SetWebhook(ctx context.Context, config WebhookConfig) error {
	return client.call(ctx, methodSetWebhook, config, nil)
}

// DeleteWebhook removes the webhook endpoint.
func (client *Client) DeleteWebhook(ctx context.Context, dropPendingUpdates bool) error {
	return client.call(ctx, methodDeleteWebhook, deleteWebhookRequest{DropPendingUpdates: dropPendingUpdates}, nil)
}

// GetWebhookInfo reports the current webhook registration.
func (client *Client) GetWebhookInfo(ctx context.Context) (tgbotapi.WebhookInfo, error) {
	var info tgbotapi.WebhookInfo
	if err := client.call(ctx, methodGetWebhookInfo, struct{}{}, &info); err != nil {
		return tgbotapi.WebhookInfo{}, err
	}
	return info, nil
}

func (client *Client) call(ctx context.Context, method string, body any, result any) error {
	started := time.Now()
	response, err := client.http.R().
		SetContext(ctx).
		SetBody(body).
		Post(fmt.Sprintf("/bot%s/%s", client.token, method))
	if err != nil {
		description := client.redact(err.Error())
		client.logger.Warn("bot api transport failure", zap.String("method", method), zap.String("error", description))
		return &points.GatewayError{Method: method, Description: description, Err: errors.New(description)}
	}

	var envelope tgbotapi.APIResponse
	if decodeErr := json.Unmarshal(response.Body(), &envelope); decodeErr != nil {
		client.logger.Warn("bot api undecodable response", zap.String("method", method), zap.Int("status", response.StatusCode()))
		return &points.GatewayError{
			Method:      method,
			Code:        response.StatusCode(),
			Description: http.StatusText(response.StatusCode()),
			Err:         decodeErr,
		}
	}
	client.logger.Debug("bot api call",
		zap.String("method", method),
		zap.Bool("ok", envelope.Ok),
		zap.Int("status", response.StatusCode()),
		zap.Duration("elapsed", time.Since(started)),
	)
	if !envelope.Ok {
		return &points.GatewayError{Method: method, Code: envelope.ErrorCode, Description: envelope.Description}
	}
	if result == nil {
		return nil
	}
	if err := json.Unmarshal(envelope.Result, result); err != nil {
		return &points.GatewayError{Method: method, Description: "unexpected result shape", Err: err}
	}
	return nil
}

func (client *Client) redact(text string) string {
	return strings.ReplaceAll(text, client.token, redactedToken)
}

var (
	_ points.Gateway       = (*Client)(nil)
	_ points.MessageSender = (*Client)(nil)
)

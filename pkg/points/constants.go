package points

import "time"

const (
	// DailyClaimPoints is the fixed award for a successful daily claim.
	DailyClaimPoints PointsAmount = 100
	// ClaimCooldown is the sliding window anchored to the last successful claim.
	ClaimCooldown = 24 * time.Hour
	// StarsCurrency is the Telegram Stars currency code.
	StarsCurrency = "XTR"

	// MaxStarsPrice is the largest single invoice price the gateway accepts.
	MaxStarsPrice int64 = 10000
	maxPayloadBytes       = 128
	maxClaimAttempts      = 3

	invoiceTitleFormat       = "%s Points"
	invoiceDescriptionFormat = "Get %s points instantly!"
	invoicePriceLabel        = "Points Package"

	operationCheckEligibility = "check_eligibility"
	operationClaim            = "claim"
	operationCreateInvoice    = "create_invoice"
	operationPreCheckout      = "pre_checkout"
	operationSettle           = "settle"
	operationRefund           = "refund"
	operationCommand          = "command"
	operationNotify           = "notify"

	operationStatusOK        = "ok"
	operationStatusError     = "error"
	operationStatusDuplicate = "duplicate"
	operationStatusDenied    = "denied"
	operationStatusWarning   = "warning"
	operationStatusDropped   = "dropped"

	// CommandRefund asks for a refund of one receipt.
	CommandRefund = "/refund"
	// CommandStart greets the user with the web app button.
	CommandStart = "/start"
	// CommandHelp lists the available commands.
	CommandHelp = "/help"
)

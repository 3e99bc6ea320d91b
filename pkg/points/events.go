package points

import "strings"

// EventKind classifies a decoded gateway update.
type EventKind string

// Supported event kinds.
const (
	EventIgnored     EventKind = "ignored"
	EventPreCheckout EventKind = "pre_checkout"
	EventPayment     EventKind = "payment"
	EventCommand     EventKind = "command"
)

// Event is one decoded webhook update. Exactly one payload pointer matches Kind.
type Event struct {
	Kind        EventKind
	PreCheckout *PreCheckoutEvent
	Payment     *PaymentEvent
	Command     *CommandEvent
}

// PreCheckoutEvent asks whether a checkout may proceed.
type PreCheckoutEvent struct {
	QueryID     string
	From        UserID
	Payload     string
	TotalAmount int64
	Currency    string
}

// PaymentEvent reports a settled payment.
type PaymentEvent struct {
	ChargeID         string
	ProviderChargeID string
	Payer            UserID
	ChatID           int64
	Payload          string
	TotalAmount      int64
	Currency         string
}

// CommandEvent is a user-issued chat command.
type CommandEvent struct {
	Name     string
	Argument string
	From     UserID
	ChatID   int64
}

// ParseCommand splits "/name@bot argument" into a known command name and its first argument.
func ParseCommand(text string) (string, string, bool) {
	fields := strings.Fields(text)
	if len(fields) == 0 || !strings.HasPrefix(fields[0], "/") {
		return "", "", false
	}
	name := fields[0]
	if at := strings.IndexByte(name, '@'); at >= 0 {
		name = name[:at]
	}
	switch name {
	case CommandRefund, CommandStart, CommandHelp:
	default:
		return "", "", false
	}
	argument := ""
	if len(fields) > 1 {
		argument = fields[1]
	}
	return name, argument, true
}

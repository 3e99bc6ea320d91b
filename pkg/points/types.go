package points

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
)

// UserID identifies a Telegram user.
type UserID struct {
	value int64
}

// ChargeID is the gateway-issued reference for one settled payment.
type ChargeID struct {
	value string
}

// InvoiceID identifies a pending invoice session.
type InvoiceID struct {
	value uuid.UUID
}

// PointsAmount is a strictly positive number of points.
type PointsAmount int64

// StarsPrice is a strictly positive price in Telegram Stars.
type StarsPrice int64

// NewUserID validates a user id.
func NewUserID(raw int64) (UserID, error) {
	if raw <= 0 {
		return UserID{}, fmt.Errorf("%w: must be greater than zero", ErrInvalidUserID)
	}
	return UserID{value: raw}, nil
}

// ParseUserID parses a decimal user id.
func ParseUserID(raw string) (UserID, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return UserID{}, fmt.Errorf("%w: empty value", ErrInvalidUserID)
	}
	parsed, err := strconv.ParseInt(trimmed, 10, 64)
	if err != nil {
		return UserID{}, fmt.Errorf("%w: %q is not a number", ErrInvalidUserID, trimmed)
	}
	return NewUserID(parsed)
}

// Int64 returns the numeric identifier.
func (id UserID) Int64() int64 {
	return id.value
}

// String returns the decimal identifier.
func (id UserID) String() string {
	return strconv.FormatInt(id.value, 10)
}

// IsZero reports whether the id is unset.
func (id UserID) IsZero() bool {
	return id.value == 0
}

// NewChargeID validates and normalizes a charge id.
func NewChargeID(raw string) (ChargeID, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return ChargeID{}, fmt.Errorf("%w: empty value", ErrInvalidChargeID)
	}
	return ChargeID{value: trimmed}, nil
}

// String returns the normalized charge id.
func (id ChargeID) String() string {
	return id.value
}

// IsZero reports whether the id is unset.
func (id ChargeID) IsZero() bool {
	return id.value == ""
}

// NewInvoiceID returns a random invoice id.
func NewInvoiceID() InvoiceID {
	return InvoiceID{value: uuid.New()}
}

// ParseInvoiceID validates a textual invoice id.
func ParseInvoiceID(raw string) (InvoiceID, error) {
	parsed, err := uuid.Parse(strings.TrimSpace(raw))
	if err != nil {
		return InvoiceID{}, fmt.Errorf("%w: %v", ErrInvalidInvoiceID, err)
	}
	return InvoiceID{value: parsed}, nil
}

// String returns the canonical uuid form.
func (id InvoiceID) String() string {
	if id.IsZero() {
		return ""
	}
	return id.value.String()
}

// IsZero reports whether the id is unset.
func (id InvoiceID) IsZero() bool {
	return id.value == uuid.Nil
}

// NewPointsAmount validates a points amount.
func NewPointsAmount(raw int64) (PointsAmount, error) {
	if raw <= 0 {
		return 0, fmt.Errorf("%w: must be greater than zero", ErrInvalidPointsAmount)
	}
	return PointsAmount(raw), nil
}

// Int64 returns the raw amount.
func (amount PointsAmount) Int64() int64 {
	return int64(amount)
}

// NewStarsPrice validates a price against the gateway bounds.
func NewStarsPrice(raw int64) (StarsPrice, error) {
	if raw <= 0 {
		return 0, fmt.Errorf("%w: must be greater than zero", ErrInvalidStarsPrice)
	}
	if raw > MaxStarsPrice {
		return 0, fmt.Errorf("%w: must not exceed %d", ErrInvalidStarsPrice, MaxStarsPrice)
	}
	return StarsPrice(raw), nil
}

// Int64 returns the raw price.
func (price StarsPrice) Int64() int64 {
	return int64(price)
}

// Countdown is a remaining duration rounded up to the whole minute.
type Countdown struct {
	Hours   int64
	Minutes int64
}

// NewCountdown rounds remaining up to the minute and splits it into hours and minutes.
func NewCountdown(remaining time.Duration) Countdown {
	if remaining <= 0 {
		return Countdown{}
	}
	totalMinutes := int64(math.Ceil(remaining.Minutes()))
	return Countdown{Hours: totalMinutes / 60, Minutes: totalMinutes % 60}
}

// String renders the countdown as "23h 5m".
func (countdown Countdown) String() string {
	return fmt.Sprintf("%dh %dm", countdown.Hours, countdown.Minutes)
}

// ClaimRecord is the last successful daily claim of a user.
type ClaimRecord struct {
	UserID      UserID
	LastClaimAt time.Time
	DisplayName string
	ClaimCount  int64
}

// PendingInvoice is the last invoice session requested by a user.
type PendingInvoice struct {
	InvoiceID InvoiceID
	UserID    UserID
	Amount    PointsAmount
	Price     StarsPrice
	CreatedAt time.Time
}

// Receipt is one settled payment, the refund authorization source.
type Receipt struct {
	ChargeID  ChargeID
	UserID    UserID
	Amount    PointsAmount
	Price     StarsPrice
	Payload   string
	SettledAt time.Time
}

// Eligibility describes whether a user may claim right now.
type Eligibility struct {
	Eligible    bool
	HasClaimed  bool
	LastClaimAt time.Time
	NextClaimAt time.Time
	Remaining   Countdown
}

// ClaimResult describes a successful daily claim.
type ClaimResult struct {
	PointsAwarded PointsAmount
	ClaimedAt     time.Time
	NextClaimAt   time.Time
	ClaimCount    int64
}

// Invoice is a minted payable link.
type Invoice struct {
	InvoiceID InvoiceID
	URL       string
	Payload   string
}

// Settlement describes the outcome of a successful-payment event.
type Settlement struct {
	Receipt   Receipt
	Duplicate bool
}

func evaluateEligibility(record ClaimRecord, now time.Time) Eligibility {
	nextClaimAt := record.LastClaimAt.Add(ClaimCooldown)
	eligibility := Eligibility{
		Eligible:    !now.Before(nextClaimAt),
		HasClaimed:  true,
		LastClaimAt: record.LastClaimAt,
		NextClaimAt: nextClaimAt,
	}
	if !eligibility.Eligible {
		eligibility.Remaining = NewCountdown(nextClaimAt.Sub(now))
	}
	return eligibility
}

func formatThousands(value int64) string {
	raw := strconv.FormatInt(value, 10)
	sign := ""
	if strings.HasPrefix(raw, "-") {
		sign, raw = "-", raw[1:]
	}
	if len(raw) <= 3 {
		return sign + raw
	}
	var builder strings.Builder
	leading := len(raw) % 3
	if leading > 0 {
		builder.WriteString(raw[:leading])
	}
	for index := leading; index < len(raw); index += 3 {
		if builder.Len() > 0 {
			builder.WriteByte(',')
		}
		builder.WriteString(raw[index : index+3])
	}
	return sign + builder.String()
}

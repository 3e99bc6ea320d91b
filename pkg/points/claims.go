package points

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
)

// ClaimService enforces the daily claim cooldown over a ClaimStore.
type ClaimService struct {
	store    ClaimStore
	notifier Notifier
	nowFn    func() time.Time
	logger   OperationLogger
}

// NewClaimService wires a ClaimService.
func NewClaimService(store ClaimStore, notifier Notifier, now func() time.Time, options ...ServiceOption) (*ClaimService, error) {
	if store == nil {
		return nil, fmt.Errorf("%w: claim store dependency is nil", ErrInvalidServiceConfig)
	}
	if notifier == nil {
		return nil, fmt.Errorf("%w: notifier dependency is nil", ErrInvalidServiceConfig)
	}
	if now == nil {
		return nil, fmt.Errorf("%w: clock dependency is nil", ErrInvalidServiceConfig)
	}
	resolved := applyOptions(options)
	return &ClaimService{store: store, notifier: notifier, nowFn: now, logger: resolved.logger}, nil
}

// CheckEligibility reports whether the user may claim now. It never mutates state.
func (service *ClaimService) CheckEligibility(ctx context.Context, userID UserID) (Eligibility, error) {
	record, err := service.store.GetClaim(ctx, userID)
	if errors.Is(err, ErrClaimNotFound) {
		return Eligibility{Eligible: true}, nil
	}
	if err != nil {
		return Eligibility{}, err
	}
	return evaluateEligibility(record, service.now()), nil
}

// Claim awards DailyClaimPoints when the cooldown has elapsed.
func (service *ClaimService) Claim(ctx context.Context, userID UserID, displayName string) (ClaimResult, error) {
	result, err := service.claim(ctx, userID, strings.TrimSpace(displayName))
	entry := OperationLog{
		Operation: operationClaim,
		UserID:    userID,
		Amount:    result.PointsAwarded,
		Detail:    displayName,
		Error:     err,
	}
	if errors.Is(err, ErrAlreadyClaimed) {
		entry.Status = operationStatusDenied
	}
	logOperation(ctx, service.logger, entry)
	if err != nil {
		return ClaimResult{}, err
	}
	service.notifier.Notify(ctx, claimedMessage(userID, result.PointsAwarded))
	return result, nil
}

func (service *ClaimService) claim(ctx context.Context, userID UserID, displayName string) (ClaimResult, error) {
	if userID.IsZero() {
		return ClaimResult{}, fmt.Errorf("%w: missing user", ErrInvalidUserID)
	}
	for attempt := 0; attempt < maxClaimAttempts; attempt++ {
		now := service.now()
		var expectedLastClaimAt time.Time
		var claimCount int64
		record, err := service.store.GetClaim(ctx, userID)
		switch {
		case errors.Is(err, ErrClaimNotFound):
		case err != nil:
			return ClaimResult{}, err
		default:
			eligibility := evaluateEligibility(record, now)
			if !eligibility.Eligible {
				return ClaimResult{}, &AlreadyClaimedError{
					LastClaimAt: eligibility.LastClaimAt,
					NextClaimAt: eligibility.NextClaimAt,
					Remaining:   eligibility.Remaining,
				}
			}
			expectedLastClaimAt = record.LastClaimAt
			claimCount = record.ClaimCount
			if displayName == "" {
				displayName = record.DisplayName
			}
		}
		next := ClaimRecord{
			UserID:      userID,
			LastClaimAt: now,
			DisplayName: displayName,
			ClaimCount:  claimCount + 1,
		}
		swapped, err := service.store.CompareAndSwapClaim(ctx, expectedLastClaimAt, next)
		if err != nil {
			return ClaimResult{}, err
		}
		if swapped {
			return ClaimResult{
				PointsAwarded: DailyClaimPoints,
				ClaimedAt:     now,
				NextClaimAt:   now.Add(ClaimCooldown),
				ClaimCount:    next.ClaimCount,
			}, nil
		}
	}
	return ClaimResult{}, ErrClaimContention
}

func (service *ClaimService) now() time.Time {
	return service.nowFn().UTC().Truncate(time.Millisecond)
}

package httpapi

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/MarkoPoloResearchLab/starpoints/pkg/points"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

const (
	errorUserIDRequired  = "User ID required"
	errorAlreadyClaimed  = "Already claimed"
	errorClaimFailed     = "Failed to process claim"
	errorClaimContention = "Claim already in progress"
	messageCanClaim      = "You can claim your daily reward!"
)

// userIDField accepts a Telegram user id sent either as a JSON number or a string.
type userIDField string

func (field *userIDField) UnmarshalJSON(data []byte) error {
	trimmed := bytes.TrimSpace(data)
	if bytes.Equal(trimmed, []byte("null")) {
		*field = ""
		return nil
	}
	if len(trimmed) > 0 && trimmed[0] == '"' {
		var text string
		if err := json.Unmarshal(trimmed, &text); err != nil {
			return err
		}
		*field = userIDField(text)
		return nil
	}
	var number json.Number
	if err := json.Unmarshal(trimmed, &number); err != nil {
		return err
	}
	*field = userIDField(number.String())
	return nil
}

func (field userIDField) parse() (points.UserID, error) {
	return points.ParseUserID(strings.TrimSpace(string(field)))
}

type claimRequest struct {
	UserID   userIDField `json:"userId"`
	Username string      `json:"username"`
}

type claimStatusResponse struct {
	CanClaim         bool   `json:"canClaim"`
	Message          string `json:"message"`
	LastClaimTime    *int64 `json:"lastClaimTime,omitempty"`
	NextClaimTime    *int64 `json:"nextClaimTime,omitempty"`
	HoursRemaining   *int64 `json:"hoursRemaining,omitempty"`
	MinutesRemaining *int64 `json:"minutesRemaining,omitempty"`
}

type claimResponse struct {
	Success       bool   `json:"success"`
	Points        int64  `json:"points"`
	NextClaimTime int64  `json:"nextClaimTime"`
	Message       string `json:"message"`
}

type alreadyClaimedResponse struct {
	Error            string `json:"error"`
	Message          string `json:"message"`
	NextClaimTime    int64  `json:"nextClaimTime"`
	HoursRemaining   int64  `json:"hoursRemaining"`
	MinutesRemaining int64  `json:"minutesRemaining"`
}

func (handler *httpHandler) handleClaimStatus(ctx *gin.Context) {
	userID, err := userIDField(ctx.Query("userId")).parse()
	if err != nil {
		ctx.JSON(http.StatusBadRequest, gin.H{"error": errorUserIDRequired})
		return
	}
	eligibility, err := handler.claims.CheckEligibility(ctx.Request.Context(), userID)
	if err != nil {
		handler.logger.Error("claim status failed", zap.Int64("user_id", userID.Int64()), zap.Error(err))
		ctx.JSON(http.StatusInternalServerError, gin.H{"error": errorClaimFailed})
		return
	}
	if eligibility.Eligible {
		ctx.JSON(http.StatusOK, claimStatusResponse{CanClaim: true, Message: messageCanClaim})
		return
	}
	lastClaim := eligibility.LastClaimAt.UnixMilli()
	nextClaim := eligibility.NextClaimAt.UnixMilli()
	hours := eligibility.Remaining.Hours
	minutes := eligibility.Remaining.Minutes
	ctx.JSON(http.StatusOK, claimStatusResponse{
		CanClaim:         false,
		Message:          fmt.Sprintf("Next claim in %s", eligibility.Remaining),
		LastClaimTime:    &lastClaim,
		NextClaimTime:    &nextClaim,
		HoursRemaining:   &hours,
		MinutesRemaining: &minutes,
	})
}

func (handler *httpHandler) handleClaim(ctx *gin.Context) {
	var request claimRequest
	if err := ctx.ShouldBindJSON(&request); err != nil {
		ctx.JSON(http.StatusBadRequest, gin.H{"error": errorUserIDRequired})
		return
	}
	userID, err := request.UserID.parse()
	if err != nil {
		ctx.JSON(http.StatusBadRequest, gin.H{"error": errorUserIDRequired})
		return
	}

	result, err := handler.claims.Claim(ctx.Request.Context(), userID, strings.TrimSpace(request.Username))
	var alreadyClaimed *points.AlreadyClaimedError
	switch {
	case err == nil:
		ctx.JSON(http.StatusOK, claimResponse{
			Success:       true,
			Points:        result.PointsAwarded.Int64(),
			NextClaimTime: result.NextClaimAt.UnixMilli(),
			Message:       fmt.Sprintf("You received %d points!", result.PointsAwarded.Int64()),
		})
	case errors.As(err, &alreadyClaimed):
		ctx.JSON(http.StatusBadRequest, alreadyClaimedResponse{
			Error:            errorAlreadyClaimed,
			Message:          fmt.Sprintf("You already claimed today! Come back in %s", alreadyClaimed.Remaining),
			NextClaimTime:    alreadyClaimed.NextClaimAt.UnixMilli(),
			HoursRemaining:   alreadyClaimed.Remaining.Hours,
			MinutesRemaining: alreadyClaimed.Remaining.Minutes,
		})
	case errors.Is(err, points.ErrClaimContention):
		ctx.JSON(http.StatusConflict, gin.H{"error": errorClaimContention})
	default:
		handler.logger.Error("claim failed", zap.Int64("user_id", userID.Int64()), zap.Error(err))
		ctx.JSON(http.StatusInternalServerError, gin.H{"error": errorClaimFailed})
	}
}

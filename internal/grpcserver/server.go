// Package grpcserver exposes the points ledgers over gRPC.
package grpcserver

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/MarkoPoloResearchLab/starpoints/pkg/points"
	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/status"
)

const (
	errorInvalidUserID    = "invalid_user_id"
	errorInvalidChargeID  = "invalid_charge_id"
	errorInvalidAmount    = "invalid_points_amount"
	errorInvalidPrice     = "invalid_stars_price"
	errorInvalidPayload   = "invalid_invoice_payload"
	errorAlreadyClaimed   = "already_claimed"
	errorClaimContention  = "claim_contention"
	errorReceiptNotFound  = "receipt_not_found"
	errorGatewayFailure   = "gateway_error"
	errorServiceMisconfig = "service_misconfigured"
)

var errMissingDependency = errors.New("grpcserver: missing dependency")

// ClaimLedger is the daily-claim surface served over gRPC.
type ClaimLedger interface {
	CheckEligibility(ctx context.Context, userID points.UserID) (points.Eligibility, error)
	Claim(ctx context.Context, userID points.UserID, displayName string) (points.ClaimResult, error)
}

// InvoiceIssuer mints Stars invoices.
type InvoiceIssuer interface {
	CreateInvoice(ctx context.Context, userID points.UserID, amount points.PointsAmount, price points.StarsPrice) (points.Invoice, error)
}

// ReceiptReader looks up live receipts.
type ReceiptReader interface {
	GetReceipt(ctx context.Context, chargeID points.ChargeID) (points.Receipt, error)
}

// PointsServiceServer exposes the points ledgers over gRPC.
type PointsServiceServer struct {
	claims   ClaimLedger
	invoices InvoiceIssuer
	receipts ReceiptReader
}

// NewPointsServiceServer constructs a gRPC server for the points services.
func NewPointsServiceServer(claims ClaimLedger, invoices InvoiceIssuer, receipts ReceiptReader) (*PointsServiceServer, error) {
	if claims == nil || invoices == nil || receipts == nil {
		return nil, errMissingDependency
	}
	return &PointsServiceServer{claims: claims, invoices: invoices, receipts: receipts}, nil
}

func (service *PointsServiceServer) CheckEligibility(ctx context.Context, request *EligibilityRequest) (*EligibilityResponse, error) {
	userID, err := points.NewUserID(request.UserID)
	if err != nil {
		return nil, mapToGRPCError(err)
	}
	eligibility, err := service.claims.CheckEligibility(ctx, userID)
	if err != nil {
		return nil, mapToGRPCError(err)
	}
	return &EligibilityResponse{
		CanClaim:         eligibility.Eligible,
		HasClaimed:       eligibility.HasClaimed,
		LastClaimUnixMs:  unixMillis(eligibility.LastClaimAt),
		NextClaimUnixMs:  unixMillis(eligibility.NextClaimAt),
		HoursRemaining:   eligibility.Remaining.Hours,
		MinutesRemaining: eligibility.Remaining.Minutes,
	}, nil
}

func (service *PointsServiceServer) Claim(ctx context.Context, request *ClaimRequest) (*ClaimResponse, error) {
	userID, err := points.NewUserID(request.UserID)
	if err != nil {
		return nil, mapToGRPCError(err)
	}
	result, err := service.claims.Claim(ctx, userID, request.DisplayName)
	if err != nil {
		return nil, mapToGRPCError(err)
	}
	return &ClaimResponse{
		PointsAwarded:   result.PointsAwarded.Int64(),
		ClaimedAtUnixMs: result.ClaimedAt.UnixMilli(),
		NextClaimUnixMs: result.NextClaimAt.UnixMilli(),
		ClaimCount:      result.ClaimCount,
	}, nil
}

func (service *PointsServiceServer) CreateInvoice(ctx context.Context, request *CreateInvoiceRequest) (*CreateInvoiceResponse, error) {
	userID, err := points.NewUserID(request.UserID)
	if err != nil {
		return nil, mapToGRPCError(err)
	}
	amount, err := points.NewPointsAmount(request.Amount)
	if err != nil {
		return nil, mapToGRPCError(err)
	}
	price, err := points.NewStarsPrice(request.Price)
	if err != nil {
		return nil, mapToGRPCError(err)
	}
	invoice, err := service.invoices.CreateInvoice(ctx, userID, amount, price)
	if err != nil {
		return nil, mapToGRPCError(err)
	}
	return &CreateInvoiceResponse{
		InvoiceID:  invoice.InvoiceID.String(),
		InvoiceURL: invoice.URL,
		Payload:    invoice.Payload,
	}, nil
}

func (service *PointsServiceServer) GetReceipt(ctx context.Context, request *GetReceiptRequest) (*ReceiptResponse, error) {
	chargeID, err := points.NewChargeID(request.ChargeID)
	if err != nil {
		return nil, mapToGRPCError(err)
	}
	receipt, err := service.receipts.GetReceipt(ctx, chargeID)
	if err != nil {
		return nil, mapToGRPCError(err)
	}
	return &ReceiptResponse{
		ChargeID:        receipt.ChargeID.String(),
		UserID:          receipt.UserID.Int64(),
		Amount:          receipt.Amount.Int64(),
		Price:           receipt.Price.Int64(),
		Payload:         receipt.Payload,
		SettledAtUnixMs: receipt.SettledAt.UnixMilli(),
	}, nil
}

// Register adds the points service and a serving health status to server.
func Register(server *grpc.Server, service PointsService) *health.Server {
	server.RegisterService(&ServiceDesc, service)
	healthServer := health.NewServer()
	healthServer.SetServingStatus(ServiceName, healthpb.HealthCheckResponse_SERVING)
	healthpb.RegisterHealthServer(server, healthServer)
	return healthServer
}

// LoggingInterceptor logs every points RPC with its status code and latency.
func LoggingInterceptor(logger *zap.Logger) grpc.UnaryServerInterceptor {
	if logger == nil {
		logger = zap.NewNop()
	}
	return func(ctx context.Context, request any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		started := time.Now()
		response, err := handler(ctx, request)
		code := status.Code(err)
		fields := []zap.Field{
			zap.String("method", info.FullMethod),
			zap.String("code", code.String()),
			zap.Duration("elapsed", time.Since(started)),
		}
		if code == codes.Internal || code == codes.Unknown {
			logger.Error("rpc failed", append(fields, zap.Error(err))...)
		} else {
			logger.Debug("rpc", fields...)
		}
		return response, err
	}
}

func unixMillis(value time.Time) int64 {
	if value.IsZero() {
		return 0
	}
	return value.UnixMilli()
}

func mapToGRPCError(source error) error {
	if errors.Is(source, points.ErrInvalidUserID) {
		return status.Error(codes.InvalidArgument, errorInvalidUserID)
	}
	if errors.Is(source, points.ErrInvalidChargeID) {
		return status.Error(codes.InvalidArgument, errorInvalidChargeID)
	}
	if errors.Is(source, points.ErrInvalidPointsAmount) {
		return status.Error(codes.InvalidArgument, errorInvalidAmount)
	}
	if errors.Is(source, points.ErrInvalidStarsPrice) {
		return status.Error(codes.InvalidArgument, errorInvalidPrice)
	}
	if errors.Is(source, points.ErrInvalidPayload) {
		return status.Error(codes.InvalidArgument, errorInvalidPayload)
	}
	var alreadyClaimed *points.AlreadyClaimedError
	if errors.As(source, &alreadyClaimed) {
		return status.Error(codes.FailedPrecondition, fmt.Sprintf("%s: next_claim_unix_ms=%d", errorAlreadyClaimed, alreadyClaimed.NextClaimAt.UnixMilli()))
	}
	if errors.Is(source, points.ErrClaimContention) {
		return status.Error(codes.Aborted, errorClaimContention)
	}
	if errors.Is(source, points.ErrReceiptNotFound) {
		return status.Error(codes.NotFound, errorReceiptNotFound)
	}
	if errors.Is(source, points.ErrGateway) {
		return status.Error(codes.Unavailable, errorGatewayFailure)
	}
	if errors.Is(source, points.ErrInvalidServiceConfig) {
		return status.Error(codes.FailedPrecondition, errorServiceMisconfig)
	}
	return status.Error(codes.Internal, source.Error())
}

package grpcserver

import (
	"context"

	"google.golang.org/grpc"
)

// ServiceName is the fully-qualified gRPC service name.
const ServiceName = "points.v1.PointsService"

const (
	methodCheckEligibility = "CheckEligibility"
	methodClaim            = "Claim"
	methodCreateInvoice    = "CreateInvoice"
	methodGetReceipt       = "GetReceipt"
)

// EligibilityRequest asks whether a user may claim now.
type EligibilityRequest struct {
	UserID int64 `json:"userId"`
}

// EligibilityResponse reports the claim cooldown. Times are Unix milliseconds, zero when unset.
type EligibilityResponse struct {
	CanClaim         bool  `json:"canClaim"`
	HasClaimed       bool  `json:"hasClaimed"`
	LastClaimUnixMs  int64 `json:"lastClaimUnixMs,omitempty"`
	NextClaimUnixMs  int64 `json:"nextClaimUnixMs,omitempty"`
	HoursRemaining   int64 `json:"hoursRemaining"`
	MinutesRemaining int64 `json:"minutesRemaining"`
}

// ClaimRequest claims the daily reward.
type ClaimRequest struct {
	UserID      int64  `json:"userId"`
	DisplayName string `json:"displayName,omitempty"`
}

// ClaimResponse describes a successful claim.
type ClaimResponse struct {
	PointsAwarded   int64 `json:"pointsAwarded"`
	ClaimedAtUnixMs int64 `json:"claimedAtUnixMs"`
	NextClaimUnixMs int64 `json:"nextClaimUnixMs"`
	ClaimCount      int64 `json:"claimCount"`
}

// CreateInvoiceRequest asks for a Stars invoice link.
type CreateInvoiceRequest struct {
	UserID int64 `json:"userId"`
	Amount int64 `json:"amount"`
	Price  int64 `json:"price"`
}

// CreateInvoiceResponse carries the payable link.
type CreateInvoiceResponse struct {
	InvoiceID  string `json:"invoiceId"`
	InvoiceURL string `json:"invoiceUrl"`
	Payload    string `json:"payload"`
}

// GetReceiptRequest looks up a live receipt.
type GetReceiptRequest struct {
	ChargeID string `json:"chargeId"`
}

// ReceiptResponse is a settled, unrefunded payment.
type ReceiptResponse struct {
	ChargeID        string `json:"chargeId"`
	UserID          int64  `json:"userId"`
	Amount          int64  `json:"amount"`
	Price           int64  `json:"price"`
	Payload         string `json:"payload"`
	SettledAtUnixMs int64  `json:"settledAtUnixMs"`
}

// PointsService is the server-side contract of points.v1.PointsService.
type PointsService interface {
	CheckEligibility(ctx context.Context, request *EligibilityRequest) (*EligibilityResponse, error)
	Claim(ctx context.Context, request *ClaimRequest) (*ClaimResponse, error)
	CreateInvoice(ctx context.Context, request *CreateInvoiceRequest) (*CreateInvoiceResponse, error)
	GetReceipt(ctx context.Context, request *GetReceiptRequest) (*ReceiptResponse, error)
}

// ServiceDesc describes points.v1.PointsService for grpc.Server.RegisterService.
var ServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*PointsService)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: methodCheckEligibility, Handler: unaryHandler(methodCheckEligibility, PointsService.CheckEligibility)},
		{MethodName: methodClaim, Handler: unaryHandler(methodClaim, PointsService.Claim)},
		{MethodName: methodCreateInvoice, Handler: unaryHandler(methodCreateInvoice, PointsService.CreateInvoice)},
		{MethodName: methodGetReceipt, Handler: unaryHandler(methodGetReceipt, PointsService.GetReceipt)},
	},
	Streams: []grpc.StreamDesc{},
}

func fullMethod(method string) string {
	return "/" + ServiceName + "/" + method
}

func unaryHandler[Request any, Response any](method string, call func(PointsService, context.Context, *Request) (*Response, error)) func(server any, ctx context.Context, decode func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	return func(server any, ctx context.Context, decode func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
		request := new(Request)
		if err := decode(request); err != nil {
			return nil, err
		}
		service := server.(PointsService)
		if interceptor == nil {
			return call(service, ctx, request)
		}
		info := &grpc.UnaryServerInfo{Server: server, FullMethod: fullMethod(method)}
		handler := func(ctx context.Context, request any) (any, error) {
			return call(service, ctx, request.(*Request))
		}
		return interceptor(ctx, request, info, handler)
	}
}

// Client calls points.v1.PointsService with the JSON codec.
type Client struct {
	conn grpc.ClientConnInterface
}

// NewClient wraps an established connection.
func NewClient(conn grpc.ClientConnInterface) *Client {
	return &Client{conn: conn}
}

func (client *Client) CheckEligibility(ctx context.Context, request *EligibilityRequest) (*EligibilityResponse, error) {
	response := new(EligibilityResponse)
	if err := client.invoke(ctx, methodCheckEligibility, request, response); err != nil {
		return nil, err
	}
	return response, nil
}

func (client *Client) Claim(ctx context.Context, request *ClaimRequest) (*ClaimResponse, error) {
	response := new(ClaimResponse)
	if err := client.invoke(ctx, methodClaim, request, response); err != nil {
		return nil, err
	}
	return response, nil
}

func (client *Client) CreateInvoice(ctx context.Context, request *CreateInvoiceRequest) (*CreateInvoiceResponse, error) {
	response := new(CreateInvoiceResponse)
	if err := client.invoke(ctx, methodCreateInvoice, request, response); err != nil {
		return nil, err
	}
	return response, nil
}

func (client *Client) GetReceipt(ctx context.Context, request *GetReceiptRequest) (*ReceiptResponse, error) {
	response := new(ReceiptResponse)
	if err := client.invoke(ctx, methodGetReceipt, request, response); err != nil {
		return nil, err
	}
	return response, nil
}

func (client *Client) invoke(ctx context.Context, method string, request any, response any) error {
	return client.conn.Invoke(ctx, fullMethod(method), request, response, grpc.CallContentSubtype(CodecName))
}

var (
	_ PointsService = (*PointsServiceServer)(nil)
	_ PointsService = (*Client)(nil)
)

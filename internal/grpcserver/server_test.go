package grpcserver

import (
	"context"
	"errors"
	"net"
	"strings"
	"testing"
	"time"

	"github.com/MarkoPoloResearchLab/starpoints/internal/store/memstore"
	"github.com/MarkoPoloResearchLab/starpoints/pkg/points"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/connectivity"
	"google.golang.org/grpc/credentials/insecure"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/status"
	"google.golang.org/grpc/test/bufconn"
)

const (
	bufconnSize     = 1 << 20
	testUserID      = int64(4242)
	testInvoiceLink = "https://t.me/$invoice"
)

var testNow = time.Date(2025, time.March, 3, 12, 0, 0, 0, time.UTC)

type discardNotifier struct{}

func (discardNotifier) Notify(context.Context, points.Message) {}

type stubGateway struct {
	err error
}

func (gateway stubGateway) CreateInvoiceLink(context.Context, points.InvoiceLinkRequest) (string, error) {
	if gateway.err != nil {
		return "", gateway.err
	}
	return testInvoiceLink, nil
}

func (stubGateway) AnswerPreCheckoutQuery(context.Context, string, bool, string) error {
	return nil
}

func (stubGateway) RefundStarPayment(context.Context, points.UserID, points.ChargeID) error {
	return nil
}

type harness struct {
	client *Client
	conn   *grpc.ClientConn
	store  *memstore.Store
}

func startServer(test *testing.T, gateway points.Gateway) *harness {
	test.Helper()
	store := memstore.New()
	clock := func() time.Time { return testNow }
	claims, err := points.NewClaimService(store, discardNotifier{}, clock)
	if err != nil {
		test.Fatalf("claim service: %v", err)
	}
	invoices, err := points.NewInvoiceService(store, gateway, clock)
	if err != nil {
		test.Fatalf("invoice service: %v", err)
	}
	service, err := NewPointsServiceServer(claims, invoices, store)
	if err != nil {
		test.Fatalf("points server: %v", err)
	}

	listener := bufconn.Listen(bufconnSize)
	grpcServer := grpc.NewServer(grpc.UnaryInterceptor(LoggingInterceptor(nil)))
	Register(grpcServer, service)
	go func() {
		if serveErr := grpcServer.Serve(listener); serveErr != nil {
			test.Logf("gRPC server error: %v", serveErr)
		}
	}()

	dialer := func(context.Context, string) (net.Conn, error) {
		return listener.Dial()
	}
	conn, err := grpc.NewClient("passthrough:///bufnet", grpc.WithContextDialer(dialer), grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		test.Fatalf("gRPC client init failed: %v", err)
	}
	conn.Connect()
	waitCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	for state := conn.GetState(); state != connectivity.Ready; state = conn.GetState() {
		if !conn.WaitForStateChange(waitCtx, state) {
			test.Fatalf("gRPC client failed to connect: %v", waitCtx.Err())
		}
	}
	test.Cleanup(func() {
		grpcServer.Stop()
		_ = conn.Close()
	})
	return &harness{client: NewClient(conn), conn: conn, store: store}
}

func TestClaimRoundTrip(test *testing.T) {
	harness := startServer(test, stubGateway{})
	ctx := context.Background()

	eligibility, err := harness.client.CheckEligibility(ctx, &EligibilityRequest{UserID: testUserID})
	if err != nil {
		test.Fatalf("check eligibility: %v", err)
	}
	if !eligibility.CanClaim || eligibility.HasClaimed {
		test.Fatalf("new user should be eligible, got %+v", eligibility)
	}

	claim, err := harness.client.Claim(ctx, &ClaimRequest{UserID: testUserID, DisplayName: "ada"})
	if err != nil {
		test.Fatalf("claim: %v", err)
	}
	if claim.PointsAwarded != points.DailyClaimPoints.Int64() || claim.ClaimCount != 1 {
		test.Fatalf("unexpected claim %+v", claim)
	}
	if claim.NextClaimUnixMs != testNow.Add(points.ClaimCooldown).UnixMilli() {
		test.Fatalf("unexpected next claim %d", claim.NextClaimUnixMs)
	}

	_, err = harness.client.Claim(ctx, &ClaimRequest{UserID: testUserID})
	if status.Code(err) != codes.FailedPrecondition || !strings.HasPrefix(status.Convert(err).Message(), errorAlreadyClaimed) {
		test.Fatalf("expected already_claimed, got %v", err)
	}

	eligibility, err = harness.client.CheckEligibility(ctx, &EligibilityRequest{UserID: testUserID})
	if err != nil {
		test.Fatalf("check eligibility: %v", err)
	}
	if eligibility.CanClaim || eligibility.HoursRemaining != 24 || eligibility.MinutesRemaining != 0 {
		test.Fatalf("unexpected cooldown %+v", eligibility)
	}
}

func TestCreateInvoiceAndReceipts(test *testing.T) {
	harness := startServer(test, stubGateway{})
	ctx := context.Background()

	invoice, err := harness.client.CreateInvoice(ctx, &CreateInvoiceRequest{UserID: testUserID, Amount: 1000, Price: 50})
	if err != nil {
		test.Fatalf("create invoice: %v", err)
	}
	if invoice.InvoiceURL != testInvoiceLink || invoice.InvoiceID == "" || invoice.Payload == "" {
		test.Fatalf("unexpected invoice %+v", invoice)
	}

	_, err = harness.client.GetReceipt(ctx, &GetReceiptRequest{ChargeID: "stxMissing"})
	if status.Code(err) != codes.NotFound {
		test.Fatalf("expected NotFound, got %v", err)
	}

	chargeID, err := points.NewChargeID("stxSettled")
	if err != nil {
		test.Fatalf("charge id: %v", err)
	}
	userID, err := points.NewUserID(testUserID)
	if err != nil {
		test.Fatalf("user id: %v", err)
	}
	if _, err := harness.store.InsertReceiptIfAbsent(ctx, points.Receipt{
		ChargeID:  chargeID,
		UserID:    userID,
		Amount:    1000,
		Price:     50,
		Payload:   invoice.Payload,
		SettledAt: testNow,
	}); err != nil {
		test.Fatalf("insert receipt: %v", err)
	}
	receipt, err := harness.client.GetReceipt(ctx, &GetReceiptRequest{ChargeID: "stxSettled"})
	if err != nil {
		test.Fatalf("get receipt: %v", err)
	}
	if receipt.UserID != testUserID || receipt.Amount != 1000 || receipt.SettledAtUnixMs != testNow.UnixMilli() {
		test.Fatalf("unexpected receipt %+v", receipt)
	}
}

func TestInvalidArgumentsAndGatewayFailures(test *testing.T) {
	harness := startServer(test, stubGateway{err: &points.GatewayError{Method: "createInvoiceLink", Code: 400, Description: "Bad Request"}})
	ctx := context.Background()
	testCases := []struct {
		name     string
		call     func() error
		wantCode codes.Code
		wantMsg  string
	}{
		{
			name: "zero user",
			call: func() error {
				_, err := harness.client.Claim(ctx, &ClaimRequest{})
				return err
			},
			wantCode: codes.InvalidArgument,
			wantMsg:  errorInvalidUserID,
		},
		{
			name: "price above cap",
			call: func() error {
				_, err := harness.client.CreateInvoice(ctx, &CreateInvoiceRequest{UserID: testUserID, Amount: 10, Price: points.MaxStarsPrice + 1})
				return err
			},
			wantCode: codes.InvalidArgument,
			wantMsg:  errorInvalidPrice,
		},
		{
			name: "blank charge",
			call: func() error {
				_, err := harness.client.GetReceipt(ctx, &GetReceiptRequest{ChargeID: " "})
				return err
			},
			wantCode: codes.InvalidArgument,
			wantMsg:  errorInvalidChargeID,
		},
		{
			name: "gateway down",
			call: func() error {
				_, err := harness.client.CreateInvoice(ctx, &CreateInvoiceRequest{UserID: testUserID, Amount: 10, Price: 1})
				return err
			},
			wantCode: codes.Unavailable,
			wantMsg:  errorGatewayFailure,
		},
	}
	for _, testCase := range testCases {
		err := testCase.call()
		if status.Code(err) != testCase.wantCode || status.Convert(err).Message() != testCase.wantMsg {
			test.Fatalf("%s: expected %s %q, got %v", testCase.name, testCase.wantCode, testCase.wantMsg, err)
		}
	}
}

func TestHealthServiceUsesProtoCodec(test *testing.T) {
	harness := startServer(test, stubGateway{})
	response, err := healthpb.NewHealthClient(harness.conn).Check(context.Background(), &healthpb.HealthCheckRequest{Service: ServiceName})
	if err != nil {
		test.Fatalf("health check: %v", err)
	}
	if response.GetStatus() != healthpb.HealthCheckResponse_SERVING {
		test.Fatalf("unexpected health status %s", response.GetStatus())
	}
}

func TestMapToGRPCErrorFallsBackToInternal(test *testing.T) {
	err := mapToGRPCError(points.WrapError("memstore", "claim", "get", errors.New("boom")))
	if status.Code(err) != codes.Internal {
		test.Fatalf("expected Internal, got %v", err)
	}
	if status.Code(mapToGRPCError(points.ErrClaimContention)) != codes.Aborted {
		test.Fatalf("expected Aborted for contention")
	}
}

func TestNewPointsServiceServerRequiresDependencies(test *testing.T) {
	if _, err := NewPointsServiceServer(nil, nil, nil); !errors.Is(err, errMissingDependency) {
		test.Fatalf("expected errMissingDependency, got %v", err)
	}
}

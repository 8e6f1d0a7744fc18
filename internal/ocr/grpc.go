package ocr

import (
	"context"
	"errors"
	"image"
	"log/slog"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/keepalive"
	"google.golang.org/protobuf/types/known/structpb"
	"google.golang.org/protobuf/types/known/wrapperspb"

	apperrors "github.com/gamewatcher/watcher/internal/errors"
	"github.com/gamewatcher/watcher/internal/resilience"
	"github.com/gamewatcher/watcher/internal/trace"
)

// GRPCClient calls an external OCR service. Requests carry the PNG-encoded region
// as a BytesValue; responses are a Struct with "text" and "confidence" fields.
type GRPCClient struct {
	conn    *grpc.ClientConn
	breaker *resilience.Breaker
	retry   resilience.RetryConfig
	scale   float64
}

// NewGRPCClient connects lazily to addr. Extra dial options are appended after
// the defaults.
func NewGRPCClient(cfg Config, opts ...grpc.DialOption) (*GRPCClient, error) {
	dial := []grpc.DialOption{
		grpc.WithTransportCredentials(insecure.NewCredentials()),
		grpc.WithKeepaliveParams(keepalive.ClientParameters{
			Time:                DefaultKeepaliveTime,
			Timeout:             DefaultKeepaliveTimeout,
			PermitWithoutStream: true,
		}),
		grpc.WithChainUnaryInterceptor(trace.UnaryClientInterceptor()),
	}
	conn, err := grpc.NewClient(cfg.Addr, append(dial, opts...)...)
	if err != nil {
		return nil, apperrors.Wrapf(err, apperrors.CodeConfigInvalid, "ocr address %q", cfg.Addr)
	}

	breaker := resilience.New("ocr", resilience.DefaultConfig()).WithHook(func(name string, from, to resilience.State) {
		slog.Warn("ocr circuit breaker state change", "from", from, "to", to)
	})
	return &GRPCClient{
		conn:    conn,
		breaker: breaker,
		retry:   resilience.DefaultRetryConfig(),
		scale:   cfg.Scale,
	}, nil
}

// Close closes the gRPC connection
func (c *GRPCClient) Close() error {
	return c.conn.Close()
}

// Breaker exposes the client's circuit breaker state for status reporting.
func (c *GRPCClient) Breaker() *resilience.Breaker { return c.breaker }

// ExtractText performs OCR on an image
func (c *GRPCClient) ExtractText(ctx context.Context, img image.Image) (Result, error) {
	data, err := EncodePNG(Prepare(img, c.scale))
	if err != nil {
		return Result{}, err
	}
	req := wrapperspb.Bytes(data)

	resp, err := resilience.ExecuteWithResult(c.breaker, func() (*structpb.Struct, error) {
		out := &structpb.Struct{}
		err := resilience.Retry(ctx, c.retry, func() error {
			return c.conn.Invoke(ctx, ExtractTextMethod, req, out)
		})
		return out, err
	})
	if errors.Is(err, resilience.ErrOpen) {
		return Result{}, apperrors.Wrap(err, apperrors.CodeOCRUnavailable, "ocr service circuit open")
	}
	if err != nil {
		return Result{}, apperrors.FromGRPCError(err)
	}
	return parseResult(resp), nil
}

// Healthy runs the standard gRPC health check against the service.
func (c *GRPCClient) Healthy(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, HealthCheckTimeout)
	defer cancel()
	resp, err := healthpb.NewHealthClient(c.conn).Check(ctx, &healthpb.HealthCheckRequest{})
	if err != nil {
		return apperrors.FromGRPCError(err)
	}
	if resp.GetStatus() != healthpb.HealthCheckResponse_SERVING {
		return apperrors.Newf(apperrors.CodeOCRUnavailable, "ocr service status %s", resp.GetStatus())
	}
	return nil
}

func parseResult(s *structpb.Struct) Result {
	fields := s.GetFields()
	return Result{
		Text:       fields["text"].GetStringValue(),
		Confidence: fields["confidence"].GetNumberValue(),
	}
}

package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/miradorstack/mirador-risk/internal/models"
	"github.com/miradorstack/mirador-risk/internal/repo"
	"github.com/miradorstack/mirador-risk/internal/services"
	"github.com/miradorstack/mirador-risk/internal/utils"
)

// Analyzer is the domain surface exposed over gRPC.
type Analyzer interface {
	Analyze(ctx context.Context, snapshot models.MetricsSnapshot) (models.RiskAssessment, error)
	AnalyzeURL(ctx context.Context, rawURL string) (models.RiskAssessment, error)
}

// URLField is the request field naming the metrics endpoint for AnalyzeURL.
const URLField = "api_url"

type riskEngineServer struct {
	analyzer Analyzer
	logger   *slog.Logger
}

// NewRiskEngineServer adapts an Analyzer to the RiskEngine gRPC service.
func NewRiskEngineServer(analyzer Analyzer, logger *slog.Logger) RiskEngineServer {
	if logger == nil {
		logger = slog.Default()
	}
	return &riskEngineServer{analyzer: analyzer, logger: logger}
}

func (s *riskEngineServer) Analyze(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	if req == nil {
		return nil, status.Error(codes.InvalidArgument, "request cannot be nil")
	}
	snapshot, err := FromProtoSnapshot(req)
	if err != nil {
		return nil, status.Error(codes.InvalidArgument, err.Error())
	}
	assessment, err := s.analyzer.Analyze(ctx, snapshot)
	if err != nil {
		return nil, s.statusError("analyze", err)
	}
	return ToProtoAssessment(assessment)
}

func (s *riskEngineServer) AnalyzeURL(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	if req == nil {
		return nil, status.Error(codes.InvalidArgument, "request cannot be nil")
	}
	rawURL := req.GetFields()[URLField].GetStringValue()
	if rawURL == "" {
		return nil, status.Errorf(codes.InvalidArgument, "%s is required", URLField)
	}
	assessment, err := s.analyzer.AnalyzeURL(ctx, rawURL)
	if err != nil {
		return nil, s.statusError("analyze url", err)
	}
	return ToProtoAssessment(assessment)
}

func (s *riskEngineServer) statusError(op string, err error) error {
	code := StatusCode(err)
	if code == codes.Internal {
		s.logger.Error(op+" failed", slog.Any("error", err))
	}
	return status.Error(code, err.Error())
}

// StatusCode maps domain errors onto gRPC status codes.
func StatusCode(err error) codes.Code {
	var validationErr *models.ValidationError
	var fetchErr *repo.FetchError
	switch {
	case err == nil:
		return codes.OK
	case errors.As(err, &fetchErr):
		return codes.Unavailable
	case errors.As(err, &validationErr), errors.Is(err, repo.ErrInvalidURL):
		return codes.InvalidArgument
	case errors.Is(err, services.ErrNoFetcher), errors.Is(err, utils.ErrNotConfigured):
		return codes.FailedPrecondition
	case errors.Is(err, context.DeadlineExceeded):
		return codes.DeadlineExceeded
	case errors.Is(err, context.Canceled):
		return codes.Canceled
	default:
		return codes.Internal
	}
}

// FromProtoSnapshot decodes a Struct into a snapshot, enforcing the same rules as the JSON API.
func FromProtoSnapshot(s *structpb.Struct) (models.MetricsSnapshot, error) {
	if s == nil {
		return models.MetricsSnapshot{}, &models.ValidationError{Err: fmt.Errorf("snapshot is nil")}
	}
	data, err := json.Marshal(s.AsMap())
	if err != nil {
		return models.MetricsSnapshot{}, &models.ValidationError{Err: err}
	}
	return models.DecodeSnapshot(data)
}

// ToProtoSnapshot encodes a snapshot as a Struct.
func ToProtoSnapshot(snapshot models.MetricsSnapshot) (*structpb.Struct, error) {
	return toStruct(snapshot)
}

// ToProtoAssessment encodes an assessment as a Struct using its JSON field names.
func ToProtoAssessment(assessment models.RiskAssessment) (*structpb.Struct, error) {
	out, err := toStruct(assessment)
	if err != nil {
		return nil, status.Errorf(codes.Internal, "encode assessment: %v", err)
	}
	return out, nil
}

// FromProtoAssessment decodes a Struct produced by ToProtoAssessment.
func FromProtoAssessment(s *structpb.Struct) (models.RiskAssessment, error) {
	var assessment models.RiskAssessment
	if s == nil {
		return assessment, fmt.Errorf("assessment is nil")
	}
	data, err := json.Marshal(s.AsMap())
	if err != nil {
		return assessment, err
	}
	if err := json.Unmarshal(data, &assessment); err != nil {
		return assessment, fmt.Errorf("decode assessment: %w", err)
	}
	return assessment, nil
}

func toStruct(v any) (*structpb.Struct, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	var fields map[string]any
	if err := json.Unmarshal(data, &fields); err != nil {
		return nil, err
	}
	return structpb.NewStruct(fields)
}

// Client calls a remote risk engine over gRPC using domain types.
type Client struct {
	rpc RiskEngineClient
}

// NewClient wraps an established connection.
func NewClient(cc grpc.ClientConnInterface) *Client {
	return &Client{rpc: NewRiskEngineClient(cc)}
}

// Analyze sends snapshot to the remote engine.
func (c *Client) Analyze(ctx context.Context, snapshot models.MetricsSnapshot) (models.RiskAssessment, error) {
	req, err := ToProtoSnapshot(snapshot)
	if err != nil {
		return models.RiskAssessment{}, err
	}
	resp, err := c.rpc.Analyze(ctx, req)
	if err != nil {
		return models.RiskAssessment{}, err
	}
	return FromProtoAssessment(resp)
}

// AnalyzeURL asks the remote engine to fetch and assess rawURL.
func (c *Client) AnalyzeURL(ctx context.Context, rawURL string) (models.RiskAssessment, error) {
	req, err := structpb.NewStruct(map[string]any{URLField: rawURL})
	if err != nil {
		return models.RiskAssessment{}, err
	}
	resp, err := c.rpc.AnalyzeURL(ctx, req)
	if err != nil {
		return models.RiskAssessment{}, err
	}
	return FromProtoAssessment(resp)
}

package api

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/structpb"
)

// ServiceName is the fully qualified gRPC service name of the risk engine.
const ServiceName = "mirador.risk.v1.RiskEngine"

const (
	analyzeMethod    = "/" + ServiceName + "/Analyze"
	analyzeURLMethod = "/" + ServiceName + "/AnalyzeURL"
)

// RiskEngineServer is the server API for the RiskEngine service. Requests and responses are
// google.protobuf.Struct values carrying the JSON shapes served by the HTTP gateway.
type RiskEngineServer interface {
	Analyze(context.Context, *structpb.Struct) (*structpb.Struct, error)
	AnalyzeURL(context.Context, *structpb.Struct) (*structpb.Struct, error)
}

// RegisterRiskEngineServer attaches srv to the gRPC service registrar.
func RegisterRiskEngineServer(s grpc.ServiceRegistrar, srv RiskEngineServer) {
	s.RegisterService(&RiskEngineServiceDesc, srv)
}

func analyzeHandler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	in := new(structpb.Struct)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(RiskEngineServer).Analyze(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: analyzeMethod}
	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		return srv.(RiskEngineServer).Analyze(ctx, req.(*structpb.Struct))
	}
	return interceptor(ctx, in, info, handler)
}

func analyzeURLHandler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	in := new(structpb.Struct)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(RiskEngineServer).AnalyzeURL(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: analyzeURLMethod}
	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		return srv.(RiskEngineServer).AnalyzeURL(ctx, req.(*structpb.Struct))
	}
	return interceptor(ctx, in, info, handler)
}

// RiskEngineServiceDesc describes the RiskEngine service for grpc.Server registration.
var RiskEngineServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*RiskEngineServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "Analyze", Handler: analyzeHandler},
		{MethodName: "AnalyzeURL", Handler: analyzeURLHandler},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "mirador/risk/v1/risk_engine.proto",
}

// RiskEngineClient is the client API for the RiskEngine service.
type RiskEngineClient interface {
	Analyze(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error)
	AnalyzeURL(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error)
}

type riskEngineClient struct {
	cc grpc.ClientConnInterface
}

// NewRiskEngineClient wraps a client connection.
func NewRiskEngineClient(cc grpc.ClientConnInterface) RiskEngineClient {
	return &riskEngineClient{cc: cc}
}

func (c *riskEngineClient) Analyze(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error) {
	out := new(structpb.Struct)
	if err := c.cc.Invoke(ctx, analyzeMethod, in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *riskEngineClient) AnalyzeURL(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error) {
	out := new(structpb.Struct)
	if err := c.cc.Invoke(ctx, analyzeURLMethod, in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

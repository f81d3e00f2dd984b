package api

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"

	"duckweb/internal/httpapi"
)

// gRPC names of the backtest service.
const (
	BacktestServiceName = "duckweb.v1.BacktestService"
	RunSweepMethod      = "/" + BacktestServiceName + "/RunSweep"
)

// BacktestRunner executes a parameterised backtest. *httpapi.Server
// implements it.
type BacktestRunner interface {
	RunBacktest(ctx context.Context, p httpapi.BacktestParams) (httpapi.BacktestJSON, error)
}

// BacktestService exposes the risk-reward sweep over gRPC. Requests and
// responses are structpb.Struct values carrying the same fields as the JSON
// API.
type BacktestService struct {
	runner BacktestRunner
	log    *slog.Logger
}

// NewBacktestService creates a BacktestService backed by runner.
func NewBacktestService(runner BacktestRunner, log *slog.Logger) *BacktestService {
	if log == nil {
		log = slog.Default()
	}
	return &BacktestService{runner: runner, log: log}
}

// RegisterGRPC registers the service on the given gRPC server instance.
func (s *BacktestService) RegisterGRPC(gs *grpc.Server) {
	gs.RegisterService(&BacktestServiceDesc, s)
}

// RunSweep runs one backtest request.
func (s *BacktestService) RunSweep(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	var p httpapi.BacktestParams
	if err := FromStruct(req, &p); err != nil {
		return nil, status.Errorf(codes.InvalidArgument, "decoding request: %v", err)
	}
	resp, err := s.runner.RunBacktest(ctx, p)
	if err != nil {
		return nil, status.Error(grpcCode(err), err.Error())
	}
	out, err := ToStruct(resp)
	if err != nil {
		return nil, status.Errorf(codes.Internal, "encoding response: %v", err)
	}
	return out, nil
}

func grpcCode(err error) codes.Code {
	switch httpapi.ErrorStatus(err) {
	case http.StatusBadRequest:
		return codes.InvalidArgument
	case http.StatusNotFound:
		return codes.NotFound
	}
	if code := status.FromContextError(err).Code(); code != codes.Unknown {
		return code
	}
	return codes.Internal
}

// ---------------------------------------------------------------------------
// Service descriptor
// ---------------------------------------------------------------------------

// backtestServer is the handler type checked by grpc.Server.RegisterService.
type backtestServer interface {
	RunSweep(context.Context, *structpb.Struct) (*structpb.Struct, error)
}

var _ backtestServer = (*BacktestService)(nil)

func runSweepHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(structpb.Struct)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(backtestServer).RunSweep(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: RunSweepMethod}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(backtestServer).RunSweep(ctx, req.(*structpb.Struct))
	}
	return interceptor(ctx, in, info, handler)
}

// BacktestServiceDesc describes duckweb.v1.BacktestService.
var BacktestServiceDesc = grpc.ServiceDesc{
	ServiceName: BacktestServiceName,
	HandlerType: (*backtestServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "RunSweep", Handler: runSweepHandler},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "duckweb/v1/backtest.proto",
}

// ---------------------------------------------------------------------------
// Struct conversion
// ---------------------------------------------------------------------------

// ToStruct converts v to a structpb.Struct through its JSON encoding.
func ToStruct(v any) (*structpb.Struct, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	var m map[string]any
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("%T is not a JSON object: %w", v, err)
	}
	return structpb.NewStruct(m)
}

// FromStruct decodes s into dst through its JSON encoding.
func FromStruct(s *structpb.Struct, dst any) error {
	data, err := json.Marshal(s.AsMap())
	if err != nil {
		return err
	}
	return json.Unmarshal(data, dst)
}

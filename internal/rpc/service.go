// Package rpc exposes the chart pipeline over gRPC. Messages are
// google.protobuf.Struct values whose fields mirror the HTTP chart API, so
// the service is registered from a hand-written descriptor.
package rpc

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/encoding/protojson"
	"google.golang.org/protobuf/types/known/structpb"

	"intraview/internal/chart"
	"intraview/internal/prefs"
	"intraview/internal/query"
)

const (
	// ServiceName is the fully qualified gRPC service name.
	ServiceName = "intraview.v1.ChartService"

	buildSeriesMethod = "/" + ServiceName + "/BuildSeries"
	watchPrefsMethod  = "/" + ServiceName + "/WatchPrefs"
)

// ChartServer is implemented by Service.
type ChartServer interface {
	BuildSeries(context.Context, *structpb.Struct) (*structpb.Struct, error)
	WatchPrefs(*structpb.Struct, grpc.ServerStreamingServer[structpb.Struct]) error
}

// ServiceDesc describes intraview.v1.ChartService.
var ServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*ChartServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "BuildSeries", Handler: buildSeriesHandler},
	},
	Streams: []grpc.StreamDesc{
		{StreamName: "WatchPrefs", Handler: watchPrefsHandler, ServerStreams: true},
	},
	Metadata: "intraview/v1/chart.proto",
}

func buildSeriesHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(structpb.Struct)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(ChartServer).BuildSeries(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: buildSeriesMethod}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(ChartServer).BuildSeries(ctx, req.(*structpb.Struct))
	}
	return interceptor(ctx, in, info, handler)
}

func watchPrefsHandler(srv any, stream grpc.ServerStream) error {
	in := new(structpb.Struct)
	if err := stream.RecvMsg(in); err != nil {
		return err
	}
	return srv.(ChartServer).WatchPrefs(in, &grpc.GenericServerStream[structpb.Struct, structpb.Struct]{ServerStream: stream})
}

// SeriesRequest is the BuildSeries request body. Either Columns/Rows or
// FilePath (with an optional Query) supplies the table.
type SeriesRequest struct {
	FilePath  string          `json:"file_path,omitempty"`
	Query     string          `json:"query,omitempty"`
	Columns   []string        `json:"columns"`
	Rows      [][]chart.Value `json:"rows"`
	X         string          `json:"x,omitempty"`
	Y         string          `json:"y,omitempty"`
	MaxPoints int             `json:"max_points,omitempty"`
}

// QueryRunner runs file queries for requests that name a file.
type QueryRunner interface {
	Run(ctx context.Context, req query.Request) (*query.Result, error)
}

// Service implements ChartServer.
type Service struct {
	Runner    QueryRunner
	Prefs     *prefs.Store
	MaxPoints int
	log       *slog.Logger
}

// NewService creates a chart service. runner and pf may be nil; requests
// that need them fail with Unavailable.
func NewService(runner QueryRunner, pf *prefs.Store, maxPoints int, log *slog.Logger) *Service {
	if maxPoints <= 0 {
		maxPoints = chart.DefaultMaxPoints
	}
	if log == nil {
		log = slog.Default()
	}
	return &Service{Runner: runner, Prefs: pf, MaxPoints: maxPoints, log: log}
}

// Register registers the service on gs.
func (s *Service) Register(gs *grpc.Server) {
	gs.RegisterService(&ServiceDesc, s)
}

// BuildSeries binds the request table to two axes and returns the
// downsampled series.
func (s *Service) BuildSeries(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	var req SeriesRequest
	if err := fromStruct(in, &req); err != nil {
		return nil, status.Errorf(codes.InvalidArgument, "decoding request: %v", err)
	}

	var t chart.Table
	switch {
	case req.Columns != nil || req.Rows != nil:
		t = chart.Table{Columns: req.Columns, Rows: req.Rows}
	case req.FilePath != "":
		if s.Runner == nil {
			return nil, status.Error(codes.Unavailable, "file queries not configured")
		}
		res, err := s.Runner.Run(ctx, query.Request{FilePath: req.FilePath, SQL: req.Query})
		if err != nil {
			return nil, toStatus(err)
		}
		t = res.Table
	default:
		return nil, status.Error(codes.InvalidArgument, "either columns or file_path required")
	}

	series, err := chart.BuildNamed(t, req.X, req.Y, req.MaxPoints, s.MaxPoints)
	if err != nil {
		return nil, toStatus(err)
	}

	out, err := toStruct(series)
	if err != nil {
		return nil, status.Errorf(codes.Internal, "encoding series: %v", err)
	}
	return out, nil
}

// WatchPrefs streams preference changes until the client goes away.
func (s *Service) WatchPrefs(_ *structpb.Struct, stream grpc.ServerStreamingServer[structpb.Struct]) error {
	if s.Prefs == nil {
		return status.Error(codes.Unavailable, "preferences not configured")
	}
	subID, ch := s.Prefs.Subscribe(64)
	defer s.Prefs.Unsubscribe(subID)

	s.log.Info("grpc prefs watcher subscribed", "subID", subID)

	ctx := stream.Context()
	for {
		select {
		case <-ctx.Done():
			s.log.Info("grpc prefs watcher disconnected", "subID", subID)
			return nil
		case ev, ok := <-ch:
			if !ok {
				return nil
			}
			msg, err := toStruct(ev)
			if err != nil {
				return status.Errorf(codes.Internal, "encoding event: %v", err)
			}
			if err := stream.Send(msg); err != nil {
				return err
			}
		}
	}
}

// NewServer returns a gRPC server with request logging and s registered.
func NewServer(s *Service, opts ...grpc.ServerOption) *grpc.Server {
	opts = append(opts, grpc.ChainUnaryInterceptor(loggingInterceptor(s.log)))
	gs := grpc.NewServer(opts...)
	s.Register(gs)
	return gs
}

func loggingInterceptor(log *slog.Logger) grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		start := time.Now()
		resp, err := handler(ctx, req)
		log.Info("grpc request",
			"method", info.FullMethod,
			"code", status.Code(err).String(),
			"duration", time.Since(start),
		)
		return resp, err
	}
}

// toStatus maps pipeline and query errors onto gRPC codes.
func toStatus(err error) error {
	code := codes.Internal
	switch {
	case chart.IsPrecondition(err),
		errors.Is(err, chart.ErrNotEnoughPoints),
		errors.Is(err, query.ErrOutsideDataDir),
		errors.Is(err, query.ErrUnsupportedFile),
		errors.Is(err, query.ErrInvalidQuery):
		code = codes.InvalidArgument
	case errors.Is(err, query.ErrFileNotFound):
		code = codes.NotFound
	case errors.Is(err, query.ErrQueryTimeout), errors.Is(err, context.DeadlineExceeded):
		code = codes.DeadlineExceeded
	case errors.Is(err, context.Canceled):
		code = codes.Canceled
	}
	return status.Error(code, err.Error())
}

// toStruct converts v to a Struct through its JSON form.
func toStruct(v any) (*structpb.Struct, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	out := &structpb.Struct{}
	if err := protojson.Unmarshal(data, out); err != nil {
		return nil, fmt.Errorf("converting to struct: %w", err)
	}
	return out, nil
}

// fromStruct decodes a Struct into v through its JSON form.
func fromStruct(in *structpb.Struct, v any) error {
	if in == nil {
		in = &structpb.Struct{}
	}
	data, err := protojson.Marshal(in)
	if err != nil {
		return err
	}
	return json.Unmarshal(data, v)
}

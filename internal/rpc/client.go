package rpc

import (
	"context"
	"fmt"
	"io"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/protobuf/types/known/structpb"

	"intraview/internal/chart"
	"intraview/internal/prefs"
)

// Client calls a remote ChartService.
type Client struct {
	cc   grpc.ClientConnInterface
	conn *grpc.ClientConn
}

// Dial connects to addr without transport security.
func Dial(addr string, opts ...grpc.DialOption) (*Client, error) {
	opts = append([]grpc.DialOption{grpc.WithTransportCredentials(insecure.NewCredentials())}, opts...)
	conn, err := grpc.NewClient(addr, opts...)
	if err != nil {
		return nil, fmt.Errorf("connecting to %s: %w", addr, err)
	}
	return &Client{cc: conn, conn: conn}, nil
}

// NewClient wraps an existing connection. Close is then the caller's job.
func NewClient(cc grpc.ClientConnInterface) *Client {
	return &Client{cc: cc}
}

// Close closes a connection opened by Dial.
func (c *Client) Close() error {
	if c.conn == nil {
		return nil
	}
	return c.conn.Close()
}

// BuildSeries sends req and decodes the series.
func (c *Client) BuildSeries(ctx context.Context, req SeriesRequest, opts ...grpc.CallOption) (*chart.Series, error) {
	in, err := toStruct(req)
	if err != nil {
		return nil, fmt.Errorf("encoding request: %w", err)
	}
	out := new(structpb.Struct)
	if err := c.cc.Invoke(ctx, buildSeriesMethod, in, out, opts...); err != nil {
		return nil, err
	}
	var series chart.Series
	if err := fromStruct(out, &series); err != nil {
		return nil, fmt.Errorf("decoding series: %w", err)
	}
	return &series, nil
}

// WatchPrefs calls fn for every preference change until ctx is cancelled
// or the stream ends.
func (c *Client) WatchPrefs(ctx context.Context, fn func(prefs.Event)) error {
	stream, err := c.cc.NewStream(ctx, &ServiceDesc.Streams[0], watchPrefsMethod)
	if err != nil {
		return fmt.Errorf("starting stream: %w", err)
	}
	if err := stream.SendMsg(&structpb.Struct{}); err != nil {
		return fmt.Errorf("sending request: %w", err)
	}
	if err := stream.CloseSend(); err != nil {
		return fmt.Errorf("closing send: %w", err)
	}
	for {
		msg := new(structpb.Struct)
		err := stream.RecvMsg(msg)
		if err == io.EOF {
			return nil
		}
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("receiving event: %w", err)
		}
		var ev prefs.Event
		if err := fromStruct(msg, &ev); err != nil {
			return fmt.Errorf("decoding event: %w", err)
		}
		fn(ev)
	}
}

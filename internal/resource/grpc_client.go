package resource

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	pb "github.com/ChuLiYu/adaptive-queue/api/proto/v1"
	"github.com/ChuLiYu/adaptive-queue/pkg/types"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/wrapperspb"
)

// GrpcClient is a Client talking to a remote resource service.
type GrpcClient struct {
	rpc     pb.ResourceServiceClient
	limits  Limits
	timeout time.Duration // per request, 0 disables
}

var _ Client = (*GrpcClient)(nil)

// NewGrpcClient wraps an established connection. limits should match the
// server's configuration.
func NewGrpcClient(conn grpc.ClientConnInterface, limits Limits, timeout time.Duration) *GrpcClient {
	return &GrpcClient{
		rpc:     pb.NewResourceServiceClient(conn),
		limits:  limits,
		timeout: timeout,
	}
}

func (c *GrpcClient) Limits() Limits { return c.limits }

func (c *GrpcClient) Create(ctx context.Context, kind types.ResourceKind, items []types.Resource) ([]types.Resource, error) {
	var resp pb.ResourcesResponse
	if err := c.call(ctx, c.rpc.Create, pb.ResourcesRequest{Kind: kind, Items: items}, &resp); err != nil {
		return nil, err
	}
	return resp.Items, nil
}

func (c *GrpcClient) Update(ctx context.Context, kind types.ResourceKind, items []types.Resource) ([]types.Resource, error) {
	var resp pb.ResourcesResponse
	if err := c.call(ctx, c.rpc.Update, pb.ResourcesRequest{Kind: kind, Items: items}, &resp); err != nil {
		return nil, err
	}
	return resp.Items, nil
}

func (c *GrpcClient) RetrieveDatapoints(ctx context.Context, query types.DatapointsQuery, limit int) (*types.Datapoints, error) {
	var resp types.Datapoints
	if err := c.call(ctx, c.rpc.RetrieveDatapoints, pb.RetrieveDatapointsRequest{Query: query, Limit: limit}, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

type unaryCall func(context.Context, *wrapperspb.BytesValue, ...grpc.CallOption) (*wrapperspb.BytesValue, error)

func (c *GrpcClient) call(ctx context.Context, fn unaryCall, req, resp any) error {
	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	in, err := pb.Encode(req)
	if err != nil {
		return err
	}
	out, err := fn(ctx, in)
	if err != nil {
		return FromStatus(err)
	}
	return pb.Decode(out, resp)
}

// ============================================================================
// Error mapping between APIError and gRPC status
// ============================================================================

var codeToGRPC = map[int]codes.Code{
	CodeBadRequest: codes.InvalidArgument,
	CodeNotFound:   codes.NotFound,
	CodeConflict:   codes.AlreadyExists,
	CodeInternal:   codes.Internal,
}

// ToStatus converts err into a gRPC status error. An APIError travels as a
// JSON detail so FromStatus can rebuild it, duplicates included.
func ToStatus(err error) error {
	if err == nil {
		return nil
	}
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		switch {
		case errors.Is(err, context.Canceled):
			return status.Error(codes.Canceled, err.Error())
		case errors.Is(err, context.DeadlineExceeded):
			return status.Error(codes.DeadlineExceeded, err.Error())
		}
		return status.Error(codes.Internal, err.Error())
	}

	code, ok := codeToGRPC[apiErr.Code]
	if !ok {
		code = codes.Unknown
	}
	st := status.New(code, apiErr.Message)
	payload, merr := json.Marshal(apiErr)
	if merr != nil {
		return st.Err()
	}
	if detailed, derr := st.WithDetails(wrapperspb.Bytes(payload)); derr == nil {
		st = detailed
	}
	return st.Err()
}

// FromStatus recovers the APIError carried by a status error. Other errors are
// wrapped as is.
func FromStatus(err error) error {
	st, ok := status.FromError(err)
	if !ok {
		return err
	}
	for _, d := range st.Details() {
		b, ok := d.(*wrapperspb.BytesValue)
		if !ok {
			continue
		}
		var apiErr APIError
		if json.Unmarshal(b.GetValue(), &apiErr) == nil && apiErr.Code != 0 {
			return &apiErr
		}
	}
	switch st.Code() {
	case codes.DeadlineExceeded:
		return fmt.Errorf("resource service: %w", context.DeadlineExceeded)
	case codes.Canceled:
		return fmt.Errorf("resource service: %w", context.Canceled)
	}
	return fmt.Errorf("resource service: %w", err)
}

package server

import (
	"context"
	"log/slog"
	"time"

	pb "github.com/ChuLiYu/adaptive-queue/api/proto/v1"
	"github.com/ChuLiYu/adaptive-queue/internal/resource"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/wrapperspb"
)

// Server implements the gRPC ResourceService on top of a resource.Client,
// normally the in-memory resource.Store.
type Server struct {
	pb.UnimplementedResourceServiceServer

	backend resource.Client
	logger  *slog.Logger
}

// NewServer creates a new gRPC server instance.
func NewServer(backend resource.Client) *Server {
	return &Server{
		backend: backend,
		logger:  slog.Default().With("component", "resource-server"),
	}
}

// Register attaches the service to a grpc.Server.
func (s *Server) Register(gs *grpc.Server) {
	pb.RegisterResourceServiceServer(gs, s)
}

// Create handles resource creation.
func (s *Server) Create(ctx context.Context, in *wrapperspb.BytesValue) (*wrapperspb.BytesValue, error) {
	var req pb.ResourcesRequest
	if err := pb.Decode(in, &req); err != nil {
		return nil, status.Error(codes.InvalidArgument, err.Error())
	}

	start := time.Now()
	items, err := s.backend.Create(ctx, req.Kind, req.Items)
	s.logger.Debug("Create", "kind", req.Kind, "items", len(req.Items), "duration", time.Since(start), "error", err)
	if err != nil {
		return nil, resource.ToStatus(err)
	}
	return pb.Encode(pb.ResourcesResponse{Items: items})
}

// Update handles resource updates.
func (s *Server) Update(ctx context.Context, in *wrapperspb.BytesValue) (*wrapperspb.BytesValue, error) {
	var req pb.ResourcesRequest
	if err := pb.Decode(in, &req); err != nil {
		return nil, status.Error(codes.InvalidArgument, err.Error())
	}

	start := time.Now()
	items, err := s.backend.Update(ctx, req.Kind, req.Items)
	s.logger.Debug("Update", "kind", req.Kind, "items", len(req.Items), "duration", time.Since(start), "error", err)
	if err != nil {
		return nil, resource.ToStatus(err)
	}
	return pb.Encode(pb.ResourcesResponse{Items: items})
}

// RetrieveDatapoints returns one page of datapoints.
func (s *Server) RetrieveDatapoints(ctx context.Context, in *wrapperspb.BytesValue) (*wrapperspb.BytesValue, error) {
	var req pb.RetrieveDatapointsRequest
	if err := pb.Decode(in, &req); err != nil {
		return nil, status.Error(codes.InvalidArgument, err.Error())
	}

	start := time.Now()
	dps, err := s.backend.RetrieveDatapoints(ctx, req.Query, req.Limit)
	s.logger.Debug("RetrieveDatapoints",
		"series", req.Query.Identifier(),
		"start", req.Query.Start,
		"end", req.Query.End,
		"limit", req.Limit,
		"points", dps.Len(),
		"duration", time.Since(start),
		"error", err,
	)
	if err != nil {
		return nil, resource.ToStatus(err)
	}
	return pb.Encode(dps)
}

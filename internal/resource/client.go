// Package resource is the narrow collaborator the consumer jobs talk to:
// create and update resources, and fetch one page of datapoints. Store is the
// in-memory implementation served by `adaptiveq serve`; GrpcClient reaches it
// over the network; RateLimited throttles either.
package resource

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/ChuLiYu/adaptive-queue/pkg/types"
)

// Limits are the per-request maxima of the resource service.
type Limits struct {
	Create              int // resources per create/update call
	Datapoints          int // raw points per retrieve call
	DatapointsAggregate int // aggregate buckets per retrieve call
}

// DefaultLimits matches the hosted service.
func DefaultLimits() Limits {
	return Limits{Create: 1000, Datapoints: 100000, DatapointsAggregate: 10000}
}

// Client issues one request and returns the parsed response.
type Client interface {
	Create(ctx context.Context, kind types.ResourceKind, items []types.Resource) ([]types.Resource, error)
	Update(ctx context.Context, kind types.ResourceKind, items []types.Resource) ([]types.Resource, error)
	// RetrieveDatapoints returns at most limit points inside [Start, End),
	// plus the neighbouring points when IncludeOutsidePoints is set.
	RetrieveDatapoints(ctx context.Context, query types.DatapointsQuery, limit int) (*types.Datapoints, error)
	Limits() Limits
}

// HTTP-style status codes carried by APIError.
const (
	CodeBadRequest = 400
	CodeNotFound   = 404
	CodeConflict   = 409
	CodeInternal   = 500
)

// APIError is a failure reported by the resource service.
type APIError struct {
	Code       int      `json:"code"`
	Message    string   `json:"message"`
	Duplicated []string `json:"duplicated,omitempty"` // external IDs that already exist
}

func (e *APIError) Error() string {
	msg := fmt.Sprintf("resource api error %d: %s", e.Code, e.Message)
	if len(e.Duplicated) > 0 {
		msg += " (duplicated: " + strings.Join(e.Duplicated, ", ") + ")"
	}
	return msg
}

// DuplicatedIDs returns the conflicting external IDs if err is a duplicate
// conflict.
func DuplicatedIDs(err error) ([]string, bool) {
	var apiErr *APIError
	if !errors.As(err, &apiErr) || len(apiErr.Duplicated) == 0 {
		return nil, false
	}
	return apiErr.Duplicated, true
}

func badRequest(format string, args ...any) *APIError {
	return &APIError{Code: CodeBadRequest, Message: fmt.Sprintf(format, args...)}
}

func notFound(format string, args ...any) *APIError {
	return &APIError{Code: CodeNotFound, Message: fmt.Sprintf(format, args...)}
}

package v1

import (
	"encoding/json"
	"fmt"

	"github.com/ChuLiYu/adaptive-queue/pkg/types"
	"google.golang.org/protobuf/types/known/wrapperspb"
)

// ResourcesRequest is the body of Create and Update.
type ResourcesRequest struct {
	Kind  types.ResourceKind `json:"kind"`
	Items []types.Resource   `json:"items"`
}

// ResourcesResponse is the reply of Create and Update.
type ResourcesResponse struct {
	Items []types.Resource `json:"items"`
}

// RetrieveDatapointsRequest is the body of RetrieveDatapoints. Limit caps the
// number of points inside [start, end) returned by one call.
type RetrieveDatapointsRequest struct {
	Query types.DatapointsQuery `json:"query"`
	Limit int                   `json:"limit"`
}

// Encode wraps v as a JSON envelope.
func Encode(v any) (*wrapperspb.BytesValue, error) {
	body, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("encode %T: %w", v, err)
	}
	return wrapperspb.Bytes(body), nil
}

// Decode unwraps a JSON envelope into v.
func Decode(msg *wrapperspb.BytesValue, v any) error {
	if msg == nil {
		return fmt.Errorf("decode %T: empty message", v)
	}
	if err := json.Unmarshal(msg.GetValue(), v); err != nil {
		return fmt.Errorf("decode %T: %w", v, err)
	}
	return nil
}

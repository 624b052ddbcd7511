package api

import (
	"encoding/json"

	"github.com/rmax-ai/gfs/pkg/feature"
	"github.com/rmax-ai/gfs/pkg/transform"
)

// HealthResponse is the body of GET /v1/health.
type HealthResponse struct {
	Status  string `json:"status"`
	Version string `json:"version,omitempty"`
}

// ResourceResponse wraps a stored resource with its id and kind so clients
// can decode it without guessing.
type ResourceResponse struct {
	ID       feature.ResourceID `json:"id"`
	Kind     feature.Kind       `json:"kind"`
	Resource json.RawMessage    `json:"resource"`
}

// ResourceListResponse is returned by GET /v1/resources?kind=.
type ResourceListResponse struct {
	Kind feature.Kind         `json:"kind"`
	IDs  []feature.ResourceID `json:"ids"`
}

// RegisterResponse is returned by POST /v1/resources.
type RegisterResponse struct {
	ID     feature.ResourceID `json:"id"`
	Status string             `json:"status"`
}

// LineageResponse lists the nodes of a registered transformation's plan,
// parents first.
type LineageResponse struct {
	TransformationID feature.ResourceID       `json:"transformation_id"`
	Nodes            []transform.LineageEntry `json:"nodes"`
}

// ErrorResponse is the body of every non-2xx reply.
type ErrorResponse struct {
	Error  string `json:"error"`
	Reason string `json:"reason,omitempty"`
}

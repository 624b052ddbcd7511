package client

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/rmax-ai/gfs/pkg/feature"
	"github.com/rmax-ai/gfs/pkg/store"
)

// Status represents the health check response.
type Status struct {
	// Status is the health status string (e.g. "ok").
	Status string `json:"status"`
	// Version is the daemon version.
	Version string `json:"version"`
}

type resourceEnvelope struct {
	ID       feature.ResourceID `json:"id"`
	Kind     feature.Kind       `json:"kind"`
	Resource json.RawMessage    `json:"resource"`
}

type resourceList struct {
	Kind feature.Kind         `json:"kind"`
	IDs  []feature.ResourceID `json:"ids"`
}

type registerResult struct {
	ID     feature.ResourceID `json:"id"`
	Status string             `json:"status"`
}

// LineageNode is one node of a transformation plan.
type LineageNode struct {
	ID      int    `json:"id"`
	Kind    string `json:"kind"`
	Parents []int  `json:"parents"`
}

// Lineage is a transformation's plan, parents before children.
type Lineage struct {
	TransformationID feature.ResourceID `json:"transformation_id"`
	Nodes            []LineageNode      `json:"nodes"`
}

// APIError is a non-2xx reply from the daemon. 404s unwrap to
// store.ErrNotFound and 5xx to store.ErrBackend.
type APIError struct {
	StatusCode int
	Code       string `json:"error"`
	Reason     string `json:"reason,omitempty"`
}

func (e *APIError) Error() string {
	if e.Reason != "" {
		return fmt.Sprintf("gfs api: %d %s: %s", e.StatusCode, e.Code, e.Reason)
	}
	return fmt.Sprintf("gfs api: %d %s", e.StatusCode, e.Code)
}

func (e *APIError) Unwrap() error {
	switch {
	case e.StatusCode == http.StatusNotFound:
		return store.ErrNotFound
	case e.StatusCode >= 500:
		return store.ErrBackend
	}
	return nil
}

package api

import (
	"github.com/rmax-ai/topolord/pkg/dot"
	"github.com/rmax-ai/topolord/pkg/hierarchy"
	"github.com/rmax-ai/topolord/pkg/index"
)

// ResolveResponse is returned by GET /v1/resolve
type ResolveResponse struct {
	Level     hierarchy.Level   `json:"level"`
	ID        string            `json:"id"`
	Ancestors []hierarchy.Entry `json:"ancestors"`
}

// ResolveNodeResponse is returned by GET /v1/resolve-node
type ResolveNodeResponse struct {
	Mapping     dot.NodeIDMapping `json:"mapping"`
	TargetLevel hierarchy.Level   `json:"target_level"`
	TargetID    string            `json:"target_id"`
}

// ValidateResponse is returned by GET /v1/validate
type ValidateResponse struct {
	Issues  []index.Issue   `json:"issues"`
	Skipped []index.Skipped `json:"skipped"`
}

// InvalidateRequest matches the POST /v1/cache/invalidate body. An empty
// key flushes the whole cache.
type InvalidateRequest struct {
	Key string `json:"key"`
}

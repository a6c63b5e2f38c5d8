// Package mcp exposes the topology navigator as Model Context Protocol
// tools, so agents can render, lay out and resolve the hierarchy.
package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/rmax-ai/topolord/pkg/hierarchy"
	"github.com/rmax-ai/topolord/pkg/index"
	"github.com/rmax-ai/topolord/pkg/navigator"
	"github.com/rmax-ai/topolord/pkg/store"
)

// Views is the navigator surface the tools call. Both *navigator.Loader
// and *client.Client satisfy it.
type Views interface {
	navigator.ViewSource
	Validate(ctx context.Context) ([]index.Issue, []index.Skipped, error)
}

// Server adapts the navigator to the Model Context Protocol.
type Server struct {
	mcpServer *server.MCPServer
	views     Views
	docs      store.DocumentStore
}

// NewServer creates a new MCP server instance. docs backs the
// topolord://documents resource and may be nil when only a remote daemon
// is available.
func NewServer(views Views, docs store.DocumentStore, version string) *Server {
	if version == "" {
		version = "dev"
	}
	s := &Server{
		mcpServer: server.NewMCPServer("topolord", version),
		views:     views,
		docs:      docs,
	}
	s.registerResources()
	s.registerTools()
	s.registerPrompts()
	return s
}

// Serve starts the MCP server on stdio.
func (s *Server) Serve() error {
	return server.ServeStdio(s.mcpServer)
}

// --- Resources ---

func (s *Server) registerResources() {
	if s.docs == nil {
		return
	}
	s.mcpServer.AddResource(mcp.NewResource(
		"topolord://documents",
		"Topology Documents",
		mcp.WithResourceDescription("Every stored hierarchy document with its id, type and last update"),
		mcp.WithMIMEType("application/json"),
	), s.handleReadDocuments)
}

// --- Tools ---

func levelArgs(opts ...mcp.ToolOption) []mcp.ToolOption {
	return append(opts,
		mcp.WithString("level", mcp.Required(), mcp.Description("One of all, sites, racks, equipment, server-details")),
		mcp.WithString("id", mcp.Description("Selected entity id at that level; not needed for 'all'")),
	)
}

func (s *Server) registerTools() {
	s.mcpServer.AddTool(mcp.NewTool("render_level", levelArgs(
		mcp.WithDescription("Render one hierarchy level as Graphviz DOT text with its node identity map."),
		mcp.WithString("format", mcp.Description("'dot' (default) for DOT text only, 'json' for the full view")),
	)...), s.handleRenderLevel)

	s.mcpServer.AddTool(mcp.NewTool("layout_level", levelArgs(
		mcp.WithDescription("Compute the 3D layout (node positions, bundled links, camera) of one hierarchy level."),
	)...), s.handleLayoutLevel)

	s.mcpServer.AddTool(mcp.NewTool("resolve_ancestors", levelArgs(
		mcp.WithDescription("Resolve the site/rack trail that leads to an entity. Orphans return a partial trail."),
	)...), s.handleResolveAncestors)

	s.mcpServer.AddTool(mcp.NewTool(
		"validate_references",
		mcp.WithDescription("List documents whose siteId, rackId or serverId does not resolve, plus unparseable documents."),
	), s.handleValidate)
}

// --- Prompts ---

func (s *Server) registerPrompts() {
	s.mcpServer.AddPrompt(mcp.NewPrompt(
		"topolord-aware",
		mcp.WithPromptDescription("Explains the topology hierarchy and how the tools navigate it"),
	), s.handleGetPrompt)
}

// --- Handlers ---

func parseLevel(request mcp.CallToolRequest) (hierarchy.Level, string, error) {
	level, err := hierarchy.ParseLevel(mcp.ParseString(request, "level", ""))
	if err != nil {
		return "", "", err
	}
	return level, strings.TrimSpace(mcp.ParseString(request, "id", "")), nil
}

func jsonResult(v any) (*mcp.CallToolResult, error) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to marshal result: %w", err)
	}
	return mcp.NewToolResultText(string(data)), nil
}

func toolError(err error) *mcp.CallToolResult {
	switch {
	case errors.Is(err, navigator.ErrNotFound):
		return mcp.NewToolResultError(fmt.Sprintf("not found: %v", err))
	case errors.Is(err, navigator.ErrInvalidLevel):
		return mcp.NewToolResultError(fmt.Sprintf("invalid request: %v", err))
	}
	return mcp.NewToolResultError(fmt.Sprintf("data unavailable: %v", err))
}

func (s *Server) handleRenderLevel(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	level, id, err := parseLevel(request)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	v, err := s.views.View(ctx, level, id)
	if err != nil {
		return toolError(err), nil
	}
	if mcp.ParseString(request, "format", "dot") == "json" {
		return jsonResult(v)
	}

	text := v.Graph.Text
	if len(v.Warnings) > 0 {
		text += "\n// warnings:\n//   " + strings.Join(v.Warnings, "\n//   ") + "\n"
	}
	return mcp.NewToolResultText(text), nil
}

func (s *Server) handleLayoutLevel(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	level, id, err := parseLevel(request)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	v, err := s.views.View(ctx, level, id)
	if err != nil {
		return toolError(err), nil
	}
	return jsonResult(v.Scene)
}

func (s *Server) handleResolveAncestors(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	level, id, err := parseLevel(request)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	entries, err := s.views.Ancestors(ctx, level, id)
	if err != nil {
		return toolError(err), nil
	}
	if entries == nil {
		entries = []hierarchy.Entry{}
	}
	return jsonResult(entries)
}

func (s *Server) handleValidate(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	issues, skipped, err := s.views.Validate(ctx)
	if err != nil {
		return toolError(err), nil
	}
	return jsonResult(map[string]any{"issues": issues, "skipped": skipped})
}

type documentSummary struct {
	ID        string `json:"id"`
	Type      string `json:"type"`
	UpdatedAt string `json:"updated_at,omitempty"`
}

func (s *Server) handleReadDocuments(ctx context.Context, request mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
	docs, err := s.docs.ListAll(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list documents: %w", err)
	}

	out := make([]documentSummary, 0, len(docs))
	for _, d := range docs {
		sum := documentSummary{ID: d.ID, Type: string(d.Type)}
		if !d.UpdatedAt.IsZero() {
			sum.UpdatedAt = d.UpdatedAt.Format("2006-01-02T15:04:05Z07:00")
		}
		out = append(out, sum)
	}

	data, err := json.MarshalIndent(out, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to marshal documents: %w", err)
	}

	return []mcp.ResourceContents{
		mcp.TextResourceContents{
			URI:      request.Params.URI,
			MIMEType: "application/json",
			Text:     string(data),
		},
	}, nil
}

func (s *Server) handleGetPrompt(ctx context.Context, request mcp.GetPromptRequest) (*mcp.GetPromptResult, error) {
	name := request.Params.Name
	if name != "topolord-aware" {
		return nil, fmt.Errorf("prompt not found: %s", name)
	}

	promptText := `You are exploring a data center topology with topolord.

Levels, from the top:
- all: every site and the WAN links between them.
- sites: the racks of one site, with the equipment mounted in each.
- racks: the servers of one rack and their ports.
- equipment: the rack holding one device.
- server-details: slots, OS and applications of one server.

Documents only name their parent (siteId, rackId, serverId). Use
'resolve_ancestors' to find where an entity lives, 'render_level' to see a
level as DOT, 'layout_level' for 3D positions, and 'validate_references'
to find broken parent links.
`

	return mcp.NewGetPromptResult(
		"topolord-aware",
		[]mcp.PromptMessage{
			mcp.NewPromptMessage(mcp.RoleUser, mcp.NewTextContent(promptText)),
		},
	), nil
}

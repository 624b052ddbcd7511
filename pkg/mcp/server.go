// Package mcp exposes the feature registry to agents over the Model
// Context Protocol.
package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/rmax-ai/gfs/pkg/client"
	"github.com/rmax-ai/gfs/pkg/feature"
)

const entitiesURI = "gfs://entities"

// Server adapts gfs-d to the Model Context Protocol.
type Server struct {
	mcpServer *server.MCPServer
	apiClient *client.Client
}

// NewServer creates a new MCP server instance backed by the daemon at apiURL.
func NewServer(apiURL, version string) *Server {
	s := &Server{
		mcpServer: server.NewMCPServer("gfs", version),
		apiClient: client.NewClient(apiURL),
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
	s.mcpServer.AddResource(mcp.NewResource(
		entitiesURI,
		"Registered Entities",
		mcp.WithResourceDescription("Every vertex and edge entity in the feature registry"),
		mcp.WithMIMEType("application/json"),
	), s.handleReadEntities)
}

// --- Tools ---

func (s *Server) registerTools() {
	s.mcpServer.AddTool(mcp.NewTool(
		"get_resource",
		mcp.WithDescription("Fetch one registry resource by id, e.g. 'Entity/Reviewer/' or 'Field/Reviewer/overall/'."),
		mcp.WithString("id", mcp.Required(), mcp.Description("Resource id: Kind/name/variant, or Field/entity/name/variant")),
	), s.handleGetResource)

	s.mcpServer.AddTool(mcp.NewTool(
		"entity_fields",
		mcp.WithDescription("List the fields bound to an entity, with their value types."),
		mcp.WithString("entity", mcp.Required(), mcp.Description("Entity name, e.g. 'Reviewer'")),
	), s.handleEntityFields)

	s.mcpServer.AddTool(mcp.NewTool(
		"transformation_lineage",
		mcp.WithDescription("Show the plan behind a registered transformation, parents before children."),
		mcp.WithString("id", mcp.Required(), mcp.Description("Transformation id, e.g. 'Transformation/scaled/v1'")),
	), s.handleLineage)
}

// --- Prompts ---

func (s *Server) registerPrompts() {
	s.mcpServer.AddPrompt(mcp.NewPrompt(
		"gfs-aware",
		mcp.WithPromptDescription("Explains gfs concepts (entities, fields, views, transformations)"),
	), s.handleGetPrompt)
}

// --- Handlers ---

func (s *Server) handleReadEntities(ctx context.Context, request mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
	entities, err := s.apiClient.ListEntities(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch entities: %w", err)
	}

	data, err := json.MarshalIndent(entities, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to marshal entities: %w", err)
	}

	return []mcp.ResourceContents{
		mcp.TextResourceContents{
			URI:      request.Params.URI,
			MIMEType: "application/json",
			Text:     string(data),
		},
	}, nil
}

func (s *Server) handleGetResource(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id := feature.ResourceID(mcp.ParseString(request, "id", ""))
	if _, err := feature.ParseID(id); err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	res, err := s.apiClient.GetResource(ctx, id)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("API error: %v", err)), nil
	}
	data, err := json.MarshalIndent(res, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to marshal %s: %w", id, err)
	}
	return mcp.NewToolResultText(string(data)), nil
}

func (s *Server) handleEntityFields(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	entity := mcp.ParseString(request, "entity", "")
	if entity == "" {
		return mcp.NewToolResultError("entity is required"), nil
	}

	fields, err := s.apiClient.FieldsOf(ctx, entity)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("API error: %v", err)), nil
	}
	if len(fields) == 0 {
		return mcp.NewToolResultText(fmt.Sprintf("No fields registered for %s.", entity)), nil
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Fields of %s:\n", entity)
	for _, f := range fields {
		fmt.Fprintf(&b, "- %s: %s", f.ResourceID(), f.ValueType)
		if f.IsDerived() {
			fmt.Fprintf(&b, " (derived by %s)", f.TransformationID)
		}
		b.WriteString("\n")
	}
	return mcp.NewToolResultText(b.String()), nil
}

func (s *Server) handleLineage(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id := feature.ResourceID(mcp.ParseString(request, "id", ""))
	l, err := s.apiClient.Lineage(ctx, id)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("API error: %v", err)), nil
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Plan of %s (%d nodes):\n", l.TransformationID, len(l.Nodes))
	for _, n := range l.Nodes {
		fmt.Fprintf(&b, "- #%d %s", n.ID, n.Kind)
		if len(n.Parents) > 0 {
			fmt.Fprintf(&b, " <- %v", n.Parents)
		}
		b.WriteString("\n")
	}
	return mcp.NewToolResultText(b.String()), nil
}

func (s *Server) handleGetPrompt(ctx context.Context, request mcp.GetPromptRequest) (*mcp.GetPromptResult, error) {
	name := request.Params.Name
	if name != "gfs-aware" {
		return nil, fmt.Errorf("prompt not found: %s", name)
	}

	promptText := `You are working with gfs, a graph feature store.

Concepts:
- Entity: a vertex type (e.g. 'Reviewer') or an edge type between two vertex entities (e.g. 'rates').
- Field: a typed attribute of exactly one entity. Fields with a transformation id are derived.
- Feature view: a table view selects fields of one entity; a topology view selects connectivity.
- Graph: a named set of entities.
- Transformation: the recorded plan that produced derived fields and topologies.

Resource ids look like 'Kind/name/variant'; field ids are 'Field/entity/name/variant'.
Read gfs://entities first, then use 'entity_fields' and 'get_resource' to inspect the schema.
Use 'transformation_lineage' to explain where a derived field came from.
`

	return mcp.NewGetPromptResult(
		"gfs-aware",
		[]mcp.PromptMessage{
			mcp.NewPromptMessage(mcp.RoleUser, mcp.NewTextContent(promptText)),
		},
	), nil
}

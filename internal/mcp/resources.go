package mcp

import (
	"context"
	"encoding/json"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
)

func registerDirectoryResource(s *server.MCPServer, h *handlers) {
	resource := mcp.NewResource(
		"gremio://directory",
		"Union Directory",
		mcp.WithResourceDescription("Slug and name of every tracked union, sorted by name."),
		mcp.WithMIMEType("application/json"),
	)

	s.AddResource(resource, func(ctx context.Context, req mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
		dir := h.in.View().Directory()
		payload := map[string]interface{}{
			"unions": dir,
			"count":  len(dir),
		}
		data, _ := json.MarshalIndent(payload, "", "  ")
		return []mcp.ResourceContents{
			mcp.TextResourceContents{URI: req.Params.URI, MIMEType: "application/json", Text: string(data)},
		}, nil
	})
}

func registerConfigResource(s *server.MCPServer, h *handlers) {
	resource := mcp.NewResource(
		"gremio://config",
		"Application Config",
		mcp.WithResourceDescription("News sources, custom fields, event categories and prompt overrides of this deployment. The API key is never included."),
		mcp.WithMIMEType("application/json"),
	)

	s.AddResource(resource, func(ctx context.Context, req mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
		cfg := *h.in.AppConfig()
		cfg.GeminiAPIKey = ""
		data, _ := json.MarshalIndent(cfg, "", "  ")
		return []mcp.ResourceContents{
			mcp.TextResourceContents{URI: req.Params.URI, MIMEType: "application/json", Text: string(data)},
		}, nil
	})
}

// Package mcp exposes the gremio flows as Model Context Protocol tools.
//
// Tools cover listing the tracked unions, investigating and refreshing a
// union, analyzing a news link, bulk updates and deletion. The directory and
// the application config are published as resources. Handlers run
// concurrently; the entity view does its own locking and only one bulk
// update may run at a time.
package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"
	"sync/atomic"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"go.uber.org/zap"

	"github.com/hurttlocker/gremio/internal/batch"
	"github.com/hurttlocker/gremio/internal/ingest"
	"github.com/hurttlocker/gremio/internal/model"
)

// ServerConfig holds configuration for the MCP server.
type ServerConfig struct {
	Ingester *ingest.Ingester
	Version  string // version string for MCP server info
	Logger   *zap.Logger
}

// ErrBulkRunning is returned when a bulk update is requested while another
// one is in progress.
var ErrBulkRunning = errors.New("a bulk update is already running")

type handlers struct {
	in   *ingest.Ingester
	log  *zap.Logger
	bulk atomic.Bool
}

// NewServer creates a configured MCP server with all gremio tools and
// resources.
func NewServer(cfg ServerConfig) *server.MCPServer {
	ver := cfg.Version
	if ver == "" {
		ver = "dev"
	}
	log := cfg.Logger
	if log == nil {
		log = zap.NewNop()
	}

	s := server.NewMCPServer(
		"Gremio",
		ver,
		server.WithToolCapabilities(false),
		server.WithResourceCapabilities(true, false),
	)

	h := &handlers{in: cfg.Ingester, log: log}
	registerListTool(s, h)
	registerInvestigateTool(s, h)
	registerRefreshTool(s, h)
	registerAnalyzeLinkTool(s, h)
	registerBulkUpdateTool(s, h)
	registerDeleteTool(s, h)

	registerDirectoryResource(s, h)
	registerConfigResource(s, h)
	return s
}

// ServeStdio serves s on stdin/stdout until ctx is done.
func ServeStdio(ctx context.Context, s *server.MCPServer) error {
	return server.NewStdioServer(s).Listen(ctx, os.Stdin, os.Stdout)
}

// --- Tools ---

// unionSummary is the compact listing row.
type unionSummary struct {
	Slug       string `json:"slug"`
	Name       string `json:"nombre"`
	Leader     string `json:"lider,omitempty"`
	HQ         string `json:"sede,omitempty"`
	Events     int    `json:"acciones"`
	Agreements int    `json:"paritarias"`
}

func registerListTool(s *server.MCPServer, h *handlers) {
	tool := mcp.NewTool("gremio_list",
		mcp.WithDescription("List the tracked unions with their leader, headquarters and record counts. Optionally filter by a case-insensitive substring of the name or slug."),
		mcp.WithReadOnlyHintAnnotation(true),
		mcp.WithDestructiveHintAnnotation(false),
		mcp.WithString("query",
			mcp.Description("Substring to match against name or slug. Empty = all unions."),
		),
	)

	s.AddTool(tool, func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		query := strings.ToLower(strings.TrimSpace(req.GetString("query", "")))

		out := make([]unionSummary, 0)
		for _, e := range h.in.View().Entities() {
			if query != "" && !strings.Contains(strings.ToLower(e.Name), query) && !strings.Contains(e.Slug, query) {
				continue
			}
			row := unionSummary{
				Slug:       e.Slug,
				Name:       e.Name,
				HQ:         e.Profile.Headquarters,
				Events:     len(e.Events),
				Agreements: len(e.Agreements),
			}
			if len(e.Leadership) > 0 {
				row.Leader = e.Leadership[0].Name
			}
			out = append(out, row)
		}
		return jsonResult(out)
	})
}

func registerInvestigateTool(s *server.MCPServer, h *handlers) {
	tool := mcp.NewTool("gremio_investigate",
		mcp.WithDescription("Research a union by name with web search and return the resulting record. A union that is already tracked is reconciled into its stored record. Set save=true to persist."),
		mcp.WithString("name",
			mcp.Required(),
			mcp.Description("Union name, e.g. 'Unión Obrera Metalúrgica'"),
		),
		mcp.WithBoolean("save",
			mcp.Description("Persist the result (default: false)"),
		),
	)

	s.AddTool(tool, func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		name, err := req.RequireString("name")
		if err != nil || strings.TrimSpace(name) == "" {
			return mcp.NewToolResultError("name is required"), nil
		}
		d, err := h.in.Investigate(ctx, name)
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("investigate error: %v", err)), nil
		}
		return h.finish(ctx, d, req.GetBool("save", false))
	})
}

func registerRefreshTool(s *server.MCPServer, h *handlers) {
	tool := mcp.NewTool("gremio_refresh",
		mcp.WithDescription("Re-investigate a tracked union. Without a section the whole profile is refreshed (events are kept); with a section only that part is updated. Set save=true to persist."),
		mcp.WithString("slug",
			mcp.Required(),
			mcp.Description("Slug of the tracked union"),
		),
		mcp.WithString("section",
			mcp.Description("Only refresh this section"),
			mcp.Enum(string(ingest.SectionLeadership), string(ingest.SectionAgreements), string(ingest.SectionEvents)),
		),
		mcp.WithBoolean("save",
			mcp.Description("Persist the result (default: false)"),
		),
	)

	s.AddTool(tool, func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		slug, err := req.RequireString("slug")
		if err != nil || slug == "" {
			return mcp.NewToolResultError("slug is required"), nil
		}

		var d *ingest.Draft
		if raw := req.GetString("section", ""); raw != "" {
			section, err := ingest.ParseSection(raw)
			if err != nil {
				return mcp.NewToolResultError(err.Error()), nil
			}
			d, err = h.in.RefreshSection(ctx, slug, section)
			if err != nil {
				return mcp.NewToolResultError(fmt.Sprintf("refresh error: %v", err)), nil
			}
		} else {
			d, err = h.in.Refresh(ctx, slug)
			if err != nil {
				return mcp.NewToolResultError(fmt.Sprintf("refresh error: %v", err)), nil
			}
		}
		return h.finish(ctx, d, req.GetBool("save", false))
	})
}

func registerAnalyzeLinkTool(s *server.MCPServer, h *handlers) {
	tool := mcp.NewTool("gremio_analyze_link",
		mcp.WithDescription("Read a news article, identify the union it is about and extract events or a wage agreement. Returns the merged record; set save=true to persist."),
		mcp.WithString("url",
			mcp.Required(),
			mcp.Description("Article URL"),
		),
		mcp.WithBoolean("save",
			mcp.Description("Persist the result (default: false)"),
		),
	)

	s.AddTool(tool, func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		url, err := req.RequireString("url")
		if err != nil || strings.TrimSpace(url) == "" {
			return mcp.NewToolResultError("url is required"), nil
		}
		d, err := h.in.AnalyzeLink(ctx, url)
		if err != nil {
			var failed *model.AnalysisFailedError
			if errors.As(err, &failed) {
				return mcp.NewToolResultError(failed.Error()), nil
			}
			return mcp.NewToolResultError(fmt.Sprintf("analyze error: %v", err)), nil
		}
		return h.finish(ctx, d, req.GetBool("save", false))
	})
}

func registerBulkUpdateTool(s *server.MCPServer, h *handlers) {
	tool := mcp.NewTool("gremio_bulk_update",
		mcp.WithDescription("Re-investigate every tracked union in order, saving each one as it completes. Slow: unions are processed one at a time with a pause between them. Only one bulk update may run at a time."),
		mcp.WithDestructiveHintAnnotation(false),
	)

	s.AddTool(tool, func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		if !h.bulk.CompareAndSwap(false, true) {
			return mcp.NewToolResultError(ErrBulkRunning.Error()), nil
		}
		defer h.bulk.Store(false)

		report, err := h.in.BulkRefresh(ctx, func(p batch.Progress) {
			h.log.Info("bulk update progress", zap.Int("index", p.Index), zap.Int("total", p.Total), zap.String("name", p.Name))
		})
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("bulk update error: %v", err)), nil
		}
		return jsonResult(report)
	})
}

func registerDeleteTool(s *server.MCPServer, h *handlers) {
	tool := mcp.NewTool("gremio_delete",
		mcp.WithDescription("Delete a tracked union permanently."),
		mcp.WithDestructiveHintAnnotation(true),
		mcp.WithString("slug",
			mcp.Required(),
			mcp.Description("Slug of the union to delete"),
		),
	)

	s.AddTool(tool, func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		slug, err := req.RequireString("slug")
		if err != nil || slug == "" {
			return mcp.NewToolResultError("slug is required"), nil
		}
		if _, ok := h.in.View().Get(slug); !ok {
			return mcp.NewToolResultError(fmt.Sprintf("unknown union %q", slug)), nil
		}
		if err := h.in.Delete(ctx, slug); err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("delete error: %v", err)), nil
		}
		return mcp.NewToolResultText(fmt.Sprintf("Deleted %s", slug)), nil
	})
}

// --- Helpers ---

// draftResult is what single-entity tools return.
type draftResult struct {
	*ingest.Draft
	Saved bool `json:"saved"`
}

func (h *handlers) finish(ctx context.Context, d *ingest.Draft, save bool) (*mcp.CallToolResult, error) {
	out := draftResult{Draft: d}
	if save {
		if err := h.in.Save(ctx, d.Entity); err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("save error: %v", err)), nil
		}
		out.Saved = true
	}
	return jsonResult(out)
}

func jsonResult(v any) (*mcp.CallToolResult, error) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("encoding result: %v", err)), nil
	}
	return mcp.NewToolResultText(string(data)), nil
}

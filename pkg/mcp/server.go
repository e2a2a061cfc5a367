// Package mcp exposes read-only PocketLLM diagnostics as Model Context
// Protocol tools over stdio.
package mcp

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/goccy/go-json"

	"github.com/pocketllm/pocketllm/pkg/models"
)

// CacheStatter reports the query cache with a caller-chosen top-N size.
type CacheStatter interface {
	Stats(ctx context.Context, top int) (models.CacheStats, error)
}

// AdminStatter builds the dashboard summary.
type AdminStatter interface {
	Collect(ctx context.Context) (models.AdminStats, error)
}

// EndpointResolver lists the inference endpoint candidates.
type EndpointResolver interface {
	Resolve() []models.EndpointCandidate
}

// AttemptQuerier searches the dispatch audit log.
type AttemptQuerier interface {
	Query(ctx context.Context, opts models.AuditQueryOpts) ([]models.AttemptRecord, error)
}

// Deps are the data sources behind the tools. Nil sources make their tools
// report "not configured".
type Deps struct {
	Cache     CacheStatter
	Admin     AdminStatter
	Endpoints EndpointResolver
	Audit     AttemptQuerier
}

// Server is a minimal MCP server that communicates over stdio using JSON-RPC 2.0.
type Server struct {
	deps    Deps
	version string
	logger  *slog.Logger
}

// New creates a new MCP Server.
func New(deps Deps, version string, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{deps: deps, version: version, logger: logger}
}

// Run reads JSON-RPC requests from r line-by-line and writes responses to w.
// It blocks until r is closed or ctx is cancelled.
func (s *Server) Run(ctx context.Context, r io.Reader, w io.Writer) error {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 1024*1024), 1024*1024)

	for scanner.Scan() {
		if err := ctx.Err(); err != nil {
			return err
		}

		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}

		var req Request
		if err := json.Unmarshal(line, &req); err != nil {
			s.writeResponse(w, errorResponse(nil, CodeParseError, "parse error"))
			continue
		}

		start := time.Now()
		resp := s.dispatch(ctx, &req)
		s.logger.Debug("mcp request", "method", req.Method, "duration", time.Since(start))
		if resp == nil || req.IsNotification() {
			continue
		}
		s.writeResponse(w, resp)
	}
	return scanner.Err()
}

func (s *Server) dispatch(ctx context.Context, req *Request) *Response {
	switch req.Method {
	case "initialize":
		return resultResponse(req.ID, InitializeResult{
			ProtocolVersion: ProtocolVersion,
			ServerInfo:      ServerInfo{Name: "pocketllm", Version: s.version},
			Capabilities:    map[string]any{"tools": map[string]any{}},
		})
	case "ping":
		return resultResponse(req.ID, map[string]any{})
	case "tools/list":
		return resultResponse(req.ID, ToolsListResult{Tools: allTools})
	case "tools/call":
		return s.handleToolsCall(ctx, req)
	default:
		if req.IsNotification() {
			return nil
		}
		return errorResponse(req.ID, CodeMethodNotFound, fmt.Sprintf("unknown method: %s", req.Method))
	}
}

func (s *Server) handleToolsCall(ctx context.Context, req *Request) *Response {
	var params ToolCallParams
	if err := json.Unmarshal(req.Params, &params); err != nil {
		return errorResponse(req.ID, CodeInvalidParams, "invalid params")
	}

	handler, ok := toolHandlers[params.Name]
	if !ok {
		return resultResponse(req.ID, errorResult(fmt.Sprintf("unknown tool: %s", params.Name)))
	}
	return resultResponse(req.ID, handler(ctx, s, params.Arguments))
}

func (s *Server) writeResponse(w io.Writer, resp *Response) {
	data, err := json.Marshal(resp)
	if err != nil {
		s.logger.Error("mcp: marshal response", "error", err)
		return
	}
	data = append(data, '\n')
	if _, err := w.Write(data); err != nil {
		s.logger.Error("mcp: write response", "error", err)
	}
}

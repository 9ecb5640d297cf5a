package mcp

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/academe-ai/academe/internal/answer"
	"github.com/academe-ai/academe/internal/store"
	"github.com/academe-ai/academe/internal/telemetry"
	"github.com/academe-ai/academe/pkg/version"
)

// answerer is the slice of the orchestrator the server uses.
type answerer interface {
	Ask(ctx context.Context, userID, query string, opts ...answer.AskOption) (*answer.Answer, error)
	Rate(ctx context.Context, userID, query string, rating int, comment string, citations []answer.Citation) error
	Stats(ctx context.Context, userID string, since time.Time) (*answer.StudyStats, error)
	Summarize(ctx context.Context, userID, docID string) (string, error)
}

// ingestService is the slice of the ingestion pipeline the server uses.
type ingestService interface {
	Upload(ctx context.Context, userID, title, sourcePath, content string) (string, error)
	Status(ctx context.Context, docID string) (*store.Document, error)
	Delete(ctx context.Context, docID string) error
}

// documentLister lists a user's documents.
type documentLister interface {
	ListDocuments(ctx context.Context, userID string) ([]*store.Document, error)
}

// Server bridges AI clients with the question-answering core.
type Server struct {
	mcp     *mcp.Server
	answers answerer
	ingest  ingestService
	docs    documentLister
	logger  *slog.Logger

	metrics *telemetry.Metrics
	mu      sync.RWMutex
}

// ToolInfo describes a registered tool.
type ToolInfo struct {
	Name        string
	Description string
}

// NewServer creates the MCP server and registers its tools.
func NewServer(answers answerer, ing ingestService, docs documentLister, logger *slog.Logger) (*Server, error) {
	if answers == nil {
		return nil, errors.New("answer orchestrator is required")
	}
	if ing == nil {
		return nil, errors.New("ingest service is required")
	}
	if docs == nil {
		return nil, errors.New("document store is required")
	}
	if logger == nil {
		logger = slog.Default()
	}

	s := &Server{
		answers: answers,
		ingest:  ing,
		docs:    docs,
		logger:  logger,
	}

	s.mcp = mcp.NewServer(
		&mcp.Implementation{
			Name:    "Academe",
			Version: version.Version,
		},
		nil, // capabilities are inferred from registered tools/resources
	)
	s.registerTools()
	return s, nil
}

// SetMetrics attaches the local metrics collector. When set, a
// study_metrics resource exposes the current snapshot.
func (s *Server) SetMetrics(m *telemetry.Metrics) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.metrics = m
	if m != nil {
		s.registerMetricsResource()
	}
}

// MCPServer returns the underlying SDK server instance.
func (s *Server) MCPServer() *mcp.Server {
	return s.mcp
}

// Info returns the server name and version.
func (s *Server) Info() (name, ver string) {
	return "Academe", version.Version
}

// ListTools returns all registered tools.
func (s *Server) ListTools() []ToolInfo {
	tools := make([]ToolInfo, len(toolDefs))
	for i, d := range toolDefs {
		tools[i] = ToolInfo{Name: d.name, Description: d.description}
	}
	return tools
}

// Serve runs the server on the given transport until the context is
// cancelled. Only stdio is supported.
func (s *Server) Serve(ctx context.Context, transport string) error {
	s.logger.Info("mcp_server_starting",
		slog.String("transport", transport))

	switch transport {
	case "stdio":
		err := s.mcp.Run(ctx, &mcp.StdioTransport{})
		if err != nil && !errors.Is(err, context.Canceled) {
			s.logger.Error("mcp_server_stopped",
				slog.String("error", err.Error()))
			return err
		}
		s.logger.Info("mcp_server_stopped")
		return nil
	default:
		return fmt.Errorf("unknown transport: %s (supported: stdio)", transport)
	}
}

// registerMetricsResource exposes the telemetry snapshot as a resource.
func (s *Server) registerMetricsResource() {
	s.mcp.AddResource(
		&mcp.Resource{
			Name:        "study_metrics",
			URI:         "academe://metrics",
			Description: "Local answer-quality metrics for this session",
			MIMEType:    "application/json",
		},
		func(ctx context.Context, req *mcp.ReadResourceRequest) (*mcp.ReadResourceResult, error) {
			s.mu.RLock()
			m := s.metrics
			s.mu.RUnlock()
			if m == nil {
				return nil, NewInvalidParamsError("metrics are not enabled")
			}
			data, err := json.MarshalIndent(m.Snapshot(), "", "  ")
			if err != nil {
				return nil, MapError(err)
			}
			return &mcp.ReadResourceResult{
				Contents: []*mcp.ResourceContents{
					{
						URI:      "academe://metrics",
						MIMEType: "application/json",
						Text:     string(data),
					},
				},
			}, nil
		},
	)
}

// generateRequestID creates a short unique request ID for log correlation.
func generateRequestID() string {
	b := make([]byte, 4)
	_, _ = rand.Read(b)
	return hex.EncodeToString(b)
}

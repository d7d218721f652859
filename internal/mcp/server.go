// Package mcp exposes PingMem as an MCP stdio server. Each tool maps
// 1:1 onto a core operation; typed input and output structs define the
// schemas and errors cross the boundary as error envelopes.
package mcp

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/ping-mem/pingmem/internal/config"
	"github.com/ping-mem/pingmem/internal/embed"
	"github.com/ping-mem/pingmem/internal/evolution"
	"github.com/ping-mem/pingmem/internal/extract"
	"github.com/ping-mem/pingmem/internal/graph"
	"github.com/ping-mem/pingmem/internal/ingest"
	"github.com/ping-mem/pingmem/internal/lineage"
	"github.com/ping-mem/pingmem/internal/search"
	"github.com/ping-mem/pingmem/internal/session"
	"github.com/ping-mem/pingmem/internal/store"
	"github.com/ping-mem/pingmem/pkg/version"
)

// Server bridges MCP clients with the memory and knowledge engines.
type Server struct {
	mcp *mcp.Server

	engine     *search.Engine
	vectors    store.VectorStore
	graph      *graph.Store
	embedder   embed.Embedder
	extractor  *extract.Extractor
	inferencer *extract.Inferencer
	lineage    *lineage.Engine
	evolution  *evolution.Engine
	pipeline   *ingest.Pipeline
	sessions   *session.Manager
	cfg        *config.Config
	logger     *slog.Logger
}

// Deps carries the engines the server serves. All fields are required
// except Logger.
type Deps struct {
	Engine     *search.Engine
	Vectors    store.VectorStore
	Graph      *graph.Store
	Embedder   embed.Embedder
	Extractor  *extract.Extractor
	Inferencer *extract.Inferencer
	Lineage    *lineage.Engine
	Evolution  *evolution.Engine
	Pipeline   *ingest.Pipeline
	Sessions   *session.Manager
	Config     *config.Config
	Logger     *slog.Logger
}

// NewServer creates the MCP server and registers all tools.
func NewServer(d Deps) (*Server, error) {
	switch {
	case d.Engine == nil:
		return nil, fmt.Errorf("search engine is required")
	case d.Vectors == nil:
		return nil, fmt.Errorf("vector store is required")
	case d.Graph == nil:
		return nil, fmt.Errorf("graph store is required")
	case d.Embedder == nil:
		return nil, fmt.Errorf("embedder is required")
	case d.Pipeline == nil:
		return nil, fmt.Errorf("ingest pipeline is required")
	case d.Sessions == nil:
		return nil, fmt.Errorf("session manager is required")
	}
	if d.Extractor == nil {
		d.Extractor = extract.NewExtractor()
	}
	if d.Inferencer == nil {
		d.Inferencer = extract.NewInferencer()
	}
	if d.Lineage == nil {
		d.Lineage = lineage.NewEngine(d.Graph)
	}
	if d.Evolution == nil {
		d.Evolution = evolution.NewEngine(graph.NewTemporalStore(d.Graph, true))
	}
	if d.Config == nil {
		d.Config = config.Default()
	}
	if d.Logger == nil {
		d.Logger = slog.Default()
	}

	s := &Server{
		engine:     d.Engine,
		vectors:    d.Vectors,
		graph:      d.Graph,
		embedder:   d.Embedder,
		extractor:  d.Extractor,
		inferencer: d.Inferencer,
		lineage:    d.Lineage,
		evolution:  d.Evolution,
		pipeline:   d.Pipeline,
		sessions:   d.Sessions,
		cfg:        d.Config,
		logger:     d.Logger,
	}

	s.mcp = mcp.NewServer(
		&mcp.Implementation{
			Name:    "PingMem",
			Version: version.Version,
		},
		nil,
	)
	s.registerTools()
	return s, nil
}

// MCPServer returns the underlying SDK server.
func (s *Server) MCPServer() *mcp.Server { return s.mcp }

func (s *Server) registerTools() {
	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        "context_save",
		Description: "Persist a memory across sessions. Optionally mines entities and relationships from it into the knowledge graph so later graph and lineage queries can find it.",
	}, s.handleContextSave)

	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        "context_search",
		Description: "Semantic search over saved memories using embedding similarity. Use context_hybrid_search when keyword or graph evidence should also count.",
	}, s.handleContextSearch)

	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        "context_hybrid_search",
		Description: "Hybrid search over saved memories: semantic, keyword (BM25) and graph rankings fused with weighted reciprocal rank fusion.",
	}, s.handleHybridSearch)

	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        "context_query_relationships",
		Description: "Explore the knowledge graph around an entity: neighbors, relationships and hop-bounded paths.",
	}, s.handleQueryRelationships)

	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        "context_get_lineage",
		Description: "Trace where an entity came from (upstream) and what derives from it (downstream) over directed graph edges.",
	}, s.handleGetLineage)

	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        "context_query_evolution",
		Description: "Return the version timeline of an entity: when it was created, each update, and deletion if any, within an optional time window.",
	}, s.handleQueryEvolution)

	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        "codebase_ingest",
		Description: "Scan a project tree and index its code chunks, files and commits. Unchanged trees are a no-op; use forceReingest to override.",
	}, s.handleCodebaseIngest)

	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        "codebase_verify",
		Description: "Check whether the stored index for a project still matches its current tree hash.",
	}, s.handleCodebaseVerify)

	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        "codebase_search",
		Description: "Semantic search over ingested code chunks, filterable by project, file path and chunk type.",
	}, s.handleCodebaseSearch)

	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        "codebase_timeline",
		Description: "List commit and file events of an ingested project, newest first.",
	}, s.handleCodebaseTimeline)

	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        "project_delete",
		Description: "Remove everything indexed for a project: vectors, graph entities and relationships, the manifest, and its session logs.",
	}, s.handleProjectDelete)

	s.logger.Info("mcp tools registered", slog.Int("count", 11))
}

// Serve runs the server over stdio until the context is cancelled.
func (s *Server) Serve(ctx context.Context) error {
	s.logger.Info("starting mcp server", slog.String("transport", "stdio"))
	err := s.mcp.Run(ctx, &mcp.StdioTransport{})
	if err != nil && err != context.Canceled {
		s.logger.Error("mcp server stopped", slog.String("error", err.Error()))
		return err
	}
	s.logger.Info("mcp server stopped")
	return nil
}

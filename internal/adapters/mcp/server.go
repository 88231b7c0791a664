package mcpadapter

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/kirillkom/lessons-learned/internal/core/domain"
	"github.com/kirillkom/lessons-learned/internal/core/ports"
)

const (
	serverName    = "lessons-learned"
	serverVersion = "1.0.0"

	maxWaitSeconds = 120
	pollInterval   = 500 * time.Millisecond
)

// Server exposes the solution search to MCP clients over stdio.
type Server struct {
	mcp       *server.MCPServer
	searches  ports.SolutionSearchService
	knowledge ports.KnowledgeIngestor
	logger    *slog.Logger
	poll      time.Duration
}

func NewServer(searches ports.SolutionSearchService, knowledge ports.KnowledgeIngestor) (*Server, error) {
	if searches == nil {
		return nil, errors.New("solution search service is required")
	}
	s := &Server{
		searches:  searches,
		knowledge: knowledge,
		logger:    slog.Default(),
		poll:      pollInterval,
	}
	s.mcp = server.NewMCPServer(serverName, serverVersion, server.WithToolCapabilities(false))
	s.registerTools()
	return s, nil
}

func (s *Server) MCPServer() *server.MCPServer {
	return s.mcp
}

// ServeStdio blocks until stdin is closed.
func (s *Server) ServeStdio() error {
	return server.ServeStdio(s.mcp)
}

func (s *Server) registerTools() {
	s.mcp.AddTool(mcp.NewTool("submit_solution_search",
		mcp.WithDescription("Search past quality incidents, the document knowledge base and the web for solutions to a problem. Optionally waits for the search to finish."),
		mcp.WithString("problem_description", mcp.Required(), mcp.Description("Problem description, 10-1000 characters")),
		mcp.WithString("department", mcp.Required(), mcp.Description("Department reporting the problem")),
		mcp.WithString("severity", mcp.Required(), mcp.Enum("low", "medium", "high", "critical")),
		mcp.WithString("reporter_name", mcp.Required(), mcp.Description("Name of the person reporting")),
		mcp.WithArray("keywords", mcp.Description("Additional keywords"), mcp.WithStringItems()),
		mcp.WithArray("search_sources", mcp.Description("Subset of database, rag, web"), mcp.WithStringItems()),
		mcp.WithNumber("min_relevance_score", mcp.Description("Relevance threshold within [0,1], default 0.3")),
		mcp.WithNumber("wait_seconds", mcp.Description("Seconds to wait for completion, 0 returns immediately")),
	), s.handleSubmit)

	s.mcp.AddTool(mcp.NewTool("get_solution_search",
		mcp.WithDescription("Fetch a solution search with its status, ranked results and summary."),
		mcp.WithString("search_id", mcp.Required()),
	), s.handleGet)

	s.mcp.AddTool(mcp.NewTool("refine_solution_search",
		mcp.WithDescription("Narrow the results of a completed search without running the sources again."),
		mcp.WithString("search_id", mcp.Required()),
		mcp.WithArray("additional_keywords", mcp.WithStringItems()),
		mcp.WithArray("exclude_sources", mcp.WithStringItems()),
		mcp.WithNumber("min_relevance_score"),
		mcp.WithString("department_filter"),
	), s.handleRefine)

	s.mcp.AddTool(mcp.NewTool("save_solution_result",
		mcp.WithDescription("Save one result of a completed search with optional notes."),
		mcp.WithString("search_id", mcp.Required()),
		mcp.WithString("result_id", mcp.Required(), mcp.Description("Result id or exact title")),
		mcp.WithString("notes"),
		mcp.WithString("is_helpful", mcp.Enum("yes", "no", "maybe")),
	), s.handleSave)

	s.mcp.AddTool(mcp.NewTool("search_statistics",
		mcp.WithDescription("Totals of searches by status and department, plus knowledge base size."),
	), s.handleStatistics)
}

func (s *Server) handleSubmit(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	searchReq := domain.SearchRequest{
		ProblemDescription: req.GetString("problem_description", ""),
		Department:         req.GetString("department", ""),
		Severity:           domain.Severity(req.GetString("severity", "")),
		ReporterName:       req.GetString("reporter_name", ""),
		Keywords:           req.GetStringSlice("keywords", nil),
	}
	if raw := req.GetStringSlice("search_sources", nil); raw != nil {
		searchReq.Sources = make([]domain.Source, 0, len(raw))
		for _, source := range raw {
			searchReq.Sources = append(searchReq.Sources, domain.Source(source))
		}
	}
	if threshold, ok := numberArgument(req, "min_relevance_score"); ok {
		searchReq.MinRelevanceScore = &threshold
	}

	record, err := s.searches.Submit(ctx, searchReq)
	if err != nil {
		return toolError(err), nil
	}
	s.logger.Info("mcp_search_submitted", "search_id", record.ID)

	wait := int(req.GetFloat("wait_seconds", 0))
	if wait > maxWaitSeconds {
		wait = maxWaitSeconds
	}
	if wait > 0 {
		record, err = s.awaitTerminal(ctx, record.ID, time.Duration(wait)*time.Second)
		if err != nil {
			return toolError(err), nil
		}
	}
	return jsonResult(record)
}

// awaitTerminal polls the record until it completes or fails. When the wait runs
// out, the latest snapshot is returned.
func (s *Server) awaitTerminal(ctx context.Context, id string, wait time.Duration) (*domain.SearchRecord, error) {
	ctx, cancel := context.WithTimeout(ctx, wait)
	defer cancel()

	ticker := time.NewTicker(s.poll)
	defer ticker.Stop()

	var last *domain.SearchRecord
	for {
		record, err := s.searches.Get(ctx, id)
		switch {
		case err == nil:
			last = record
			if record.Status.Terminal() {
				return record, nil
			}
		case last == nil || !errors.Is(err, context.DeadlineExceeded):
			return nil, err
		}

		select {
		case <-ctx.Done():
			if last == nil {
				return nil, ctx.Err()
			}
			return last, nil
		case <-ticker.C:
		}
	}
}

func (s *Server) handleGet(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, err := req.RequireString("search_id")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	record, err := s.searches.Get(ctx, id)
	if err != nil {
		return toolError(err), nil
	}
	return jsonResult(record)
}

func (s *Server) handleRefine(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, err := req.RequireString("search_id")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	refine := domain.RefineRequest{
		AdditionalKeywords: req.GetStringSlice("additional_keywords", nil),
		DepartmentFilter:   req.GetString("department_filter", ""),
	}
	for _, source := range req.GetStringSlice("exclude_sources", nil) {
		refine.ExcludeSources = append(refine.ExcludeSources, domain.Source(source))
	}
	if threshold, ok := numberArgument(req, "min_relevance_score"); ok {
		refine.MinRelevanceScore = &threshold
	}

	result, err := s.searches.Refine(ctx, id, refine)
	if err != nil {
		return toolError(err), nil
	}
	return jsonResult(result)
}

func (s *Server) handleSave(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, err := req.RequireString("search_id")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	resultID, err := req.RequireString("result_id")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	saved, err := s.searches.SaveResult(ctx, id, domain.SaveResultRequest{
		ResultID: resultID,
		Notes:    req.GetString("notes", ""),
		Helpful:  domain.Helpfulness(req.GetString("is_helpful", "")),
	})
	if err != nil {
		return toolError(err), nil
	}
	return jsonResult(saved)
}

type statisticsOutput struct {
	Searches  domain.SearchStatistics `json:"searches"`
	Knowledge *domain.KnowledgeStats  `json:"knowledge,omitempty"`
}

func (s *Server) handleStatistics(ctx context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	stats, err := s.searches.Statistics(ctx)
	if err != nil {
		return toolError(err), nil
	}
	out := statisticsOutput{Searches: stats}
	if s.knowledge != nil {
		kb, err := s.knowledge.Stats(ctx)
		if err != nil {
			s.logger.Warn("mcp_knowledge_stats_failed", "error", err)
		} else {
			out.Knowledge = &kb
		}
	}
	return jsonResult(out)
}

func numberArgument(req mcp.CallToolRequest, name string) (float64, bool) {
	raw, ok := req.GetArguments()[name]
	if !ok || raw == nil {
		return 0, false
	}
	v, ok := raw.(float64)
	return v, ok
}

func jsonResult(payload any) (*mcp.CallToolResult, error) {
	raw, err := json.MarshalIndent(payload, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("marshal tool result: %w", err)
	}
	return mcp.NewToolResultText(string(raw)), nil
}

// toolError reports domain failures as tool errors so the client model can react.
func toolError(err error) *mcp.CallToolResult {
	switch {
	case domain.IsKind(err, domain.ErrInvalidInput),
		domain.IsKind(err, domain.ErrSearchNotFound),
		domain.IsKind(err, domain.ErrResultNotFound),
		domain.IsKind(err, domain.ErrSearchNotCompleted),
		domain.IsKind(err, domain.ErrTemporary):
		return mcp.NewToolResultError(err.Error())
	default:
		slog.Error("mcp_tool_failed", "error", err)
		return mcp.NewToolResultError("internal error")
	}
}

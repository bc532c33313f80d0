package main

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/goccy/go-json"
	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/rs/zerolog"

	"github.com/matthewjhunter/onboard"
)

const serverVersion = "0.1.0"

// server is the onboard MCP server.
type server struct {
	engine *onboard.Engine
	log    zerolog.Logger
	poller *poller // non-nil when --poll is enabled
}

func newServer(engine *onboard.Engine, log zerolog.Logger) *server {
	return &server{engine: engine, log: log}
}

// mcpServer builds the SDK server with every tool registered.
func (s *server) mcpServer() *mcp.Server {
	srv := mcp.NewServer(&mcp.Implementation{Name: "onboard", Version: serverVersion}, nil)

	mcp.AddTool(srv, &mcp.Tool{
		Name:        "recommendations_get",
		Description: "Rank recent items against the reader's interest profile. Returns item IDs, titles, URLs, sources, and scores, plus the rec_id of the served batch.",
	}, s.handleRecommendations)

	mcp.AddTool(srv, &mcp.Tool{
		Name:        "topics_list",
		Description: "List the strongest topics in the reader's interest histogram with long and short-term weights.",
	}, s.handleTopics)

	mcp.AddTool(srv, &mcp.Tool{
		Name:        "profile_get",
		Description: "Get the magnitudes of the short and long-term interest vectors. Zero means no signal yet.",
	}, s.handleProfile)

	mcp.AddTool(srv, &mcp.Tool{
		Name:        "click_record",
		Description: "Record that the reader opened a link. Updates topics and the interest profile.",
	}, s.handleClick)

	mcp.AddTool(srv, &mcp.Tool{
		Name:        "feedback_send",
		Description: "Send explicit up or down feedback on an item, nudging the weights of its topics.",
	}, s.handleFeedback)

	mcp.AddTool(srv, &mcp.Tool{
		Name:        "jobs_list",
		Description: "List the maintenance jobs that job_run accepts.",
	}, s.handleJobsList)

	mcp.AddTool(srv, &mcp.Tool{
		Name:        "job_run",
		Description: "Run one maintenance job (e.g. ingest-feeds, embed-refresh, decay-sweep) and report how many records it processed.",
	}, s.handleJobRun)

	mcp.AddTool(srv, &mcp.Tool{
		Name:        "discover_get",
		Description: "Summarize stored data: counts, top sources, profile magnitudes, top topics, and a preview of recommendations that is not logged as served.",
	}, s.handleDiscover)

	if s.poller != nil {
		mcp.AddTool(srv, &mcp.Tool{
			Name:        "poll_now",
			Description: "Run an immediate ingest and embed cycle instead of waiting for the next poll.",
		}, s.handlePollNow)
	}

	return srv
}

// run serves MCP over stdin/stdout until ctx is cancelled or the client
// disconnects.
func (s *server) run(ctx context.Context) error {
	s.log.Info().Bool("poll", s.poller != nil).Msg("onboard-mcp starting")
	return s.mcpServer().Run(ctx, &mcp.StdioTransport{})
}

func (s *server) handleRecommendations(ctx context.Context, _ *mcp.CallToolRequest, in recommendationsInput) (*mcp.CallToolResult, any, error) {
	recs, err := s.engine.Recommend(ctx, intOr(in.Limit, 20), time.Now())
	if err != nil {
		return mcpError("recommend: %v", err), nil, nil
	}
	return mcpJSON(recs), nil, nil
}

func (s *server) handleTopics(ctx context.Context, _ *mcp.CallToolRequest, in topicsInput) (*mcp.CallToolResult, any, error) {
	topics, err := s.engine.Topics(ctx, intOr(in.TopK, 20))
	if err != nil {
		return mcpError("topics: %v", err), nil, nil
	}
	if topics == nil {
		topics = []onboard.Topic{}
	}
	return mcpJSON(topics), nil, nil
}

func (s *server) handleProfile(ctx context.Context, _ *mcp.CallToolRequest, _ emptyInput) (*mcp.CallToolResult, any, error) {
	p, err := s.engine.Profile(ctx, time.Now())
	if err != nil {
		return mcpError("profile: %v", err), nil, nil
	}
	return mcpJSON(p), nil, nil
}

func (s *server) handleClick(ctx context.Context, _ *mcp.CallToolRequest, in clickInput) (*mcp.CallToolResult, any, error) {
	res, err := s.engine.RecordClick(ctx, onboard.Click{
		URL:      in.URL,
		Title:    strOr(in.Title),
		SourceID: strOr(in.SourceID),
		At:       time.Now(),
	})
	if errors.Is(err, onboard.ErrInvalidURL) {
		return mcpError("url must be an absolute http(s) link: %q", in.URL), nil, nil
	}
	if err != nil {
		return mcpError("record click: %v", err), nil, nil
	}
	return mcpJSON(res), nil, nil
}

func (s *server) handleFeedback(ctx context.Context, _ *mcp.CallToolRequest, in feedbackInput) (*mcp.CallToolResult, any, error) {
	if in.ItemID == "" {
		return mcpError("item_id is required"), nil, nil
	}
	n, err := s.engine.Feedback(ctx, in.ItemID, in.Signal)
	if errors.Is(err, onboard.ErrInvalidSignal) {
		return mcpError("signal must be up or down, got %q", in.Signal), nil, nil
	}
	if err != nil {
		return mcpError("feedback: %v", err), nil, nil
	}
	return mcpText("Adjusted %d topics for %s.", n, in.ItemID), nil, nil
}

func (s *server) handleJobsList(_ context.Context, _ *mcp.CallToolRequest, _ emptyInput) (*mcp.CallToolResult, any, error) {
	type job struct {
		Name        string `json:"name"`
		Description string `json:"description"`
	}
	var out []job
	for _, name := range s.engine.JobNames() {
		out = append(out, job{Name: name, Description: s.engine.JobDescription(name)})
	}
	return mcpJSON(out), nil, nil
}

func (s *server) handleJobRun(ctx context.Context, _ *mcp.CallToolRequest, in jobInput) (*mcp.CallToolResult, any, error) {
	res, err := s.engine.RunJob(ctx, in.Name, time.Now())
	if errors.Is(err, onboard.ErrUnknownJob) {
		return mcpError("unknown job %q; call jobs_list", in.Name), nil, nil
	}
	if err != nil {
		return mcpError("%v", err), nil, nil
	}
	return mcpJSON(res), nil, nil
}

func (s *server) handleDiscover(ctx context.Context, _ *mcp.CallToolRequest, in discoverInput) (*mcp.CallToolResult, any, error) {
	rep, err := s.engine.Discover(ctx, intOr(in.Limit, 10), time.Now())
	if err != nil {
		return mcpError("discover: %v", err), nil, nil
	}
	return mcpJSON(rep), nil, nil
}

func (s *server) handlePollNow(ctx context.Context, _ *mcp.CallToolRequest, _ emptyInput) (*mcp.CallToolResult, any, error) {
	results, err := s.poller.poll(ctx)
	if err != nil {
		return mcpError("poll: %v", err), nil, nil
	}
	return mcpJSON(results), nil, nil
}

func mcpText(format string, args ...any) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{&mcp.TextContent{Text: fmt.Sprintf(format, args...)}},
	}
}

func mcpJSON(data any) *mcp.CallToolResult {
	b, err := json.MarshalIndent(data, "", "  ")
	if err != nil {
		return mcpError("marshal result: %v", err)
	}
	return &mcp.CallToolResult{
		Content: []mcp.Content{&mcp.TextContent{Text: string(b)}},
	}
}

func mcpError(format string, args ...any) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{&mcp.TextContent{Text: fmt.Sprintf(format, args...)}},
		IsError: true,
	}
}

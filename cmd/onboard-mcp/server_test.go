package main

import (
	"context"
	"encoding/json"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/rs/zerolog"

	"github.com/matthewjhunter/onboard"
)

var testImpl = &mcp.Implementation{Name: "onboard-test", Version: "0.1.0"}

// axisEmbedder puts golang texts on one axis and everything else on another.
type axisEmbedder struct{}

func (axisEmbedder) Embed(_ context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, text := range texts {
		v := make([]float32, 384)
		if strings.Contains(strings.ToLower(text), "golang") {
			v[0] = 1
		} else {
			v[1] = 1
		}
		out[i] = v
	}
	return out, nil
}

func (axisEmbedder) Model() string { return "axis" }

func newTestServer(t *testing.T) *server {
	t.Helper()
	noExplore := 0.0
	engine, err := onboard.NewEngine(onboard.EngineConfig{
		DBPath:   filepath.Join(t.TempDir(), "test.db"),
		Embedder: axisEmbedder{},
		Offline:  true,
		Epsilon:  &noExplore,
	})
	if err != nil {
		t.Fatalf("NewEngine: %v", err)
	}
	t.Cleanup(func() { engine.Close() })
	return newServer(engine, zerolog.Nop())
}

func mcpSession(t *testing.T, s *server) *mcp.ClientSession {
	t.Helper()
	serverT, clientT := mcp.NewInMemoryTransports()
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go func() { _ = s.mcpServer().Run(ctx, serverT) }()

	client := mcp.NewClient(testImpl, nil)
	session, err := client.Connect(ctx, clientT, nil)
	if err != nil {
		t.Fatalf("client connect: %v", err)
	}
	t.Cleanup(func() { session.Close() })
	return session
}

func callTool(t *testing.T, session *mcp.ClientSession, name string, args any) (string, bool) {
	t.Helper()
	result, err := session.CallTool(context.Background(), &mcp.CallToolParams{
		Name:      name,
		Arguments: args,
	})
	if err != nil {
		t.Fatalf("CallTool(%s): %v", name, err)
	}
	if len(result.Content) == 0 {
		t.Fatalf("CallTool(%s): empty content", name)
	}
	tc, ok := result.Content[0].(*mcp.TextContent)
	if !ok {
		t.Fatalf("CallTool(%s): expected TextContent", name)
	}
	return tc.Text, result.IsError
}

func mustCall(t *testing.T, session *mcp.ClientSession, name string, args any) string {
	t.Helper()
	text, isErr := callTool(t, session, name, args)
	if isErr {
		t.Fatalf("%s returned tool error: %s", name, text)
	}
	return text
}

func TestToolsList(t *testing.T) {
	session := mcpSession(t, newTestServer(t))

	res, err := session.ListTools(context.Background(), nil)
	if err != nil {
		t.Fatalf("ListTools: %v", err)
	}
	names := make(map[string]bool)
	for _, tool := range res.Tools {
		names[tool.Name] = true
	}
	for _, want := range []string{"recommendations_get", "topics_list", "profile_get", "click_record", "feedback_send", "job_run", "jobs_list", "discover_get"} {
		if !names[want] {
			t.Errorf("missing tool %s", want)
		}
	}
	if names["poll_now"] {
		t.Error("poll_now should only be registered with a poller")
	}
}

func TestClickEmbedRecommend(t *testing.T) {
	session := mcpSession(t, newTestServer(t))

	text := mustCall(t, session, "click_record", map[string]any{
		"url":   "https://example.com/golang-errors",
		"title": "Golang error wrapping",
	})
	var click onboard.ClickResult
	if err := json.Unmarshal([]byte(text), &click); err != nil {
		t.Fatalf("unmarshal click: %v", err)
	}
	if !click.Recorded || click.ItemID == "" {
		t.Errorf("click = %+v", click)
	}

	mustCall(t, session, "click_record", map[string]any{"url": "https://example.com/bread", "title": "Bread baking"})

	text = mustCall(t, session, "job_run", map[string]any{"name": "embed-refresh"})
	var job onboard.JobResult
	if err := json.Unmarshal([]byte(text), &job); err != nil {
		t.Fatal(err)
	}
	if job.Processed != 2 {
		t.Errorf("embed-refresh processed %d, want 2", job.Processed)
	}

	text = mustCall(t, session, "recommendations_get", map[string]any{"limit": 5})
	var recs onboard.Recommendations
	if err := json.Unmarshal([]byte(text), &recs); err != nil {
		t.Fatal(err)
	}
	if len(recs.Items) != 2 || recs.RecID == "" {
		t.Errorf("recommendations = %+v", recs)
	}

	text = mustCall(t, session, "topics_list", map[string]any{"top_k": 3})
	var topics []onboard.Topic
	if err := json.Unmarshal([]byte(text), &topics); err != nil {
		t.Fatal(err)
	}
	if len(topics) != 3 {
		t.Errorf("topics = %+v, want 3", topics)
	}

	text = mustCall(t, session, "feedback_send", map[string]any{"item_id": click.ItemID, "signal": "up"})
	if !strings.Contains(text, "Adjusted") {
		t.Errorf("feedback text = %s", text)
	}
}

func TestToolErrors(t *testing.T) {
	session := mcpSession(t, newTestServer(t))

	tests := []struct {
		tool string
		args map[string]any
		want string
	}{
		{"click_record", map[string]any{"url": "mailto:someone@example.com"}, "absolute"},
		{"feedback_send", map[string]any{"item_id": "abc", "signal": "sideways"}, "up or down"},
		{"feedback_send", map[string]any{"item_id": "", "signal": "up"}, "item_id"},
		{"job_run", map[string]any{"name": "not-a-job"}, "unknown job"},
	}
	for _, tt := range tests {
		text, isErr := callTool(t, session, tt.tool, tt.args)
		if !isErr {
			t.Errorf("%s(%v) should be a tool error, got %s", tt.tool, tt.args, text)
			continue
		}
		if !strings.Contains(text, tt.want) {
			t.Errorf("%s error = %q, want mention of %q", tt.tool, text, tt.want)
		}
	}
}

func TestProfileAndDiscover(t *testing.T) {
	session := mcpSession(t, newTestServer(t))

	text := mustCall(t, session, "profile_get", map[string]any{})
	var p onboard.Profile
	if err := json.Unmarshal([]byte(text), &p); err != nil {
		t.Fatal(err)
	}
	if p.Magnitudes.Short != 0 || p.Magnitudes.Long != 0 {
		t.Errorf("fresh profile = %+v", p.Magnitudes)
	}

	text = mustCall(t, session, "discover_get", map[string]any{})
	var rep onboard.DiscoverReport
	if err := json.Unmarshal([]byte(text), &rep); err != nil {
		t.Fatal(err)
	}
	if rep.Stats.Items != 0 {
		t.Errorf("stats = %+v", rep.Stats)
	}

	text = mustCall(t, session, "jobs_list", map[string]any{})
	if !strings.Contains(text, "decay-sweep") {
		t.Errorf("jobs_list = %s", text)
	}
}

func TestPollNow(t *testing.T) {
	s := newTestServer(t)
	s.poller = newPoller(s.engine, time.Hour, zerolog.Nop())
	session := mcpSession(t, s)

	text := mustCall(t, session, "poll_now", map[string]any{})
	var results []onboard.JobResult
	if err := json.Unmarshal([]byte(text), &results); err != nil {
		t.Fatal(err)
	}
	if len(results) != 2 || results[0].Job != "ingest-feeds" || results[1].Job != "embed-refresh" {
		t.Errorf("poll results = %+v", results)
	}
}

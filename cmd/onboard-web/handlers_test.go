package main

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/goccy/go-json"
	"github.com/golang-jwt/jwt/v5"
	"github.com/rs/zerolog"

	"github.com/matthewjhunter/onboard"
)

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

func newTestServer(t *testing.T, secret string) *httptest.Server {
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
	srv := httptest.NewServer(newRouter(engine, []byte(secret), zerolog.Nop()))
	t.Cleanup(func() {
		srv.Close()
		engine.Close()
	})
	return srv
}

func doRequest(t *testing.T, method, url, body, token string) (int, []byte) {
	t.Helper()
	var rdr io.Reader
	if body != "" {
		rdr = strings.NewReader(body)
	}
	req, err := http.NewRequest(method, url, rdr)
	if err != nil {
		t.Fatal(err)
	}
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, url, err)
	}
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatal(err)
	}
	return resp.StatusCode, data
}

func decode(t *testing.T, data []byte, v any) {
	t.Helper()
	if err := json.Unmarshal(data, v); err != nil {
		t.Fatalf("decode %s: %v", data, err)
	}
}

func TestHealthz(t *testing.T) {
	srv := newTestServer(t, "")
	status, body := doRequest(t, "GET", srv.URL+"/healthz", "", "")
	if status != http.StatusOK {
		t.Fatalf("status = %d", status)
	}
	if !strings.Contains(string(body), `"ok"`) {
		t.Errorf("body = %s", body)
	}
}

func TestClicksThenRecommendations(t *testing.T) {
	srv := newTestServer(t, "")

	status, body := doRequest(t, "POST", srv.URL+"/api/clicks",
		`{"url":"https://example.com/golang-tips?utm_source=x","title":"Golang tips for services","source_id":"rss"}`, "")
	if status != http.StatusOK {
		t.Fatalf("click status = %d: %s", status, body)
	}
	var click struct {
		OK       bool   `json:"ok"`
		ItemID   string `json:"item_id"`
		Recorded bool   `json:"recorded"`
		Updated  int    `json:"updated"`
	}
	decode(t, body, &click)
	if !click.OK || click.ItemID == "" || !click.Recorded || click.Updated == 0 {
		t.Errorf("click response = %+v", click)
	}

	status, body = doRequest(t, "POST", srv.URL+"/api/clicks",
		`{"url":"https://example.com/sourdough","title":"Sourdough starter basics","clicked_at":"2024-01-02T03:04:05Z"}`, "")
	if status != http.StatusOK {
		t.Fatalf("second click status = %d: %s", status, body)
	}

	status, body = doRequest(t, "POST", srv.URL+"/api/jobs/embed-refresh", "", "")
	if status != http.StatusOK {
		t.Fatalf("embed-refresh status = %d: %s", status, body)
	}
	var job onboard.JobResult
	decode(t, body, &job)
	if job.Job != "embed-refresh" || job.Processed != 2 {
		t.Errorf("job = %+v", job)
	}

	status, body = doRequest(t, "GET", srv.URL+"/api/recommendations?limit=5", "", "")
	if status != http.StatusOK {
		t.Fatalf("recommendations status = %d: %s", status, body)
	}
	var recs recommendationsResponse
	decode(t, body, &recs)
	if recs.RecID == "" || recs.GeneratedAt.IsZero() {
		t.Errorf("missing batch metadata: %s", body)
	}
	if len(recs.Items) != 2 {
		t.Fatalf("items = %d, want 2", len(recs.Items))
	}
	for _, it := range recs.Items {
		if it.Score != round6(it.Score) {
			t.Errorf("score %v not rounded", it.Score)
		}
	}

	status, body = doRequest(t, "GET", srv.URL+"/api/recommendations?limit=1", "", "")
	if status != http.StatusOK {
		t.Fatal(status)
	}
	decode(t, body, &recs)
	if len(recs.Items) != 1 {
		t.Errorf("limit=1 returned %d items", len(recs.Items))
	}
}

func TestClick_BadRequests(t *testing.T) {
	srv := newTestServer(t, "")

	tests := []struct {
		name string
		body string
	}{
		{"malformed", `{"url":`},
		{"no host", `{"url":"mailto:someone@example.com"}`},
		{"empty", `{}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			status, body := doRequest(t, "POST", srv.URL+"/api/clicks", tt.body, "")
			if status != http.StatusBadRequest {
				t.Errorf("status = %d, want 400: %s", status, body)
			}
		})
	}
}

func TestFeedback(t *testing.T) {
	srv := newTestServer(t, "")

	_, body := doRequest(t, "POST", srv.URL+"/api/clicks",
		`{"url":"https://example.com/golang-tips","title":"Golang concurrency patterns"}`, "")
	var click struct {
		ItemID string `json:"item_id"`
	}
	decode(t, body, &click)

	status, body := doRequest(t, "POST", srv.URL+"/api/feedback",
		`{"item_id":"`+click.ItemID+`","signal":"down"}`, "")
	if status != http.StatusOK {
		t.Fatalf("status = %d: %s", status, body)
	}
	var fb struct {
		OK      bool `json:"ok"`
		Updated int  `json:"updated"`
	}
	decode(t, body, &fb)
	if !fb.OK || fb.Updated == 0 {
		t.Errorf("feedback = %+v", fb)
	}

	status, _ = doRequest(t, "POST", srv.URL+"/api/feedback", `{"item_id":"`+click.ItemID+`","signal":"meh"}`, "")
	if status != http.StatusBadRequest {
		t.Errorf("invalid signal status = %d, want 400", status)
	}
	status, _ = doRequest(t, "POST", srv.URL+"/api/feedback", `{"signal":"up"}`, "")
	if status != http.StatusBadRequest {
		t.Errorf("missing item_id status = %d, want 400", status)
	}
	status, _ = doRequest(t, "POST", srv.URL+"/api/feedback", `not json`, "")
	if status != http.StatusBadRequest {
		t.Errorf("malformed body status = %d, want 400", status)
	}
}

func TestInterest(t *testing.T) {
	srv := newTestServer(t, "")

	doRequest(t, "POST", srv.URL+"/api/clicks",
		`{"url":"https://example.com/k8s","title":"Kubernetes operators explained"}`, "")

	status, body := doRequest(t, "GET", srv.URL+"/api/interest?topics=2", "", "")
	if status != http.StatusOK {
		t.Fatalf("status = %d: %s", status, body)
	}
	var resp interestResponse
	decode(t, body, &resp)
	if len(resp.Topics) != 2 {
		t.Fatalf("topics = %+v, want 2", resp.Topics)
	}
	if resp.Topics[0].WtLong <= 0 {
		t.Errorf("top topic weight = %v", resp.Topics[0].WtLong)
	}
}

func TestJobs(t *testing.T) {
	srv := newTestServer(t, "")

	status, body := doRequest(t, "GET", srv.URL+"/api/jobs", "", "")
	if status != http.StatusOK {
		t.Fatalf("status = %d", status)
	}
	var list []jobInfo
	decode(t, body, &list)
	if len(list) == 0 || list[0].Description == "" {
		t.Errorf("job list = %+v", list)
	}

	status, _ = doRequest(t, "POST", srv.URL+"/api/jobs/not-a-job", "", "")
	if status != http.StatusNotFound {
		t.Errorf("unknown job status = %d, want 404", status)
	}
}

func TestDiscover(t *testing.T) {
	srv := newTestServer(t, "")

	status, body := doRequest(t, "GET", srv.URL+"/api/discover", "", "")
	if status != http.StatusOK {
		t.Fatalf("status = %d: %s", status, body)
	}
	var rep onboard.DiscoverReport
	decode(t, body, &rep)
	if rep.Stats.Items != 0 {
		t.Errorf("stats = %+v", rep.Stats)
	}
}

func TestBearerAuth(t *testing.T) {
	secret := "test-secret-of-reasonable-length"
	srv := newTestServer(t, secret)
	clickBody := `{"url":"https://example.com/a","title":"A"}`

	sign := func(method jwt.SigningMethod) string {
		tok, err := jwt.NewWithClaims(method, jwt.MapClaims{
			"sub": "tester",
			"exp": time.Now().Add(time.Hour).Unix(),
		}).SignedString([]byte(secret))
		if err != nil {
			t.Fatal(err)
		}
		return tok
	}

	if status, _ := doRequest(t, "POST", srv.URL+"/api/clicks", clickBody, ""); status != http.StatusUnauthorized {
		t.Errorf("no token status = %d, want 401", status)
	}
	if status, _ := doRequest(t, "POST", srv.URL+"/api/clicks", clickBody, "garbage"); status != http.StatusUnauthorized {
		t.Errorf("garbage token status = %d, want 401", status)
	}
	if status, _ := doRequest(t, "POST", srv.URL+"/api/clicks", clickBody, sign(jwt.SigningMethodHS512)); status != http.StatusUnauthorized {
		t.Errorf("HS512 token status = %d, want 401", status)
	}

	expired, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"exp": time.Now().Add(-time.Hour).Unix(),
	}).SignedString([]byte(secret))
	if err != nil {
		t.Fatal(err)
	}
	if status, _ := doRequest(t, "POST", srv.URL+"/api/clicks", clickBody, expired); status != http.StatusUnauthorized {
		t.Errorf("expired token status = %d, want 401", status)
	}

	if status, body := doRequest(t, "POST", srv.URL+"/api/clicks", clickBody, sign(jwt.SigningMethodHS256)); status != http.StatusOK {
		t.Errorf("valid token status = %d: %s", status, body)
	}

	// Reads stay open.
	if status, _ := doRequest(t, "GET", srv.URL+"/api/recommendations", "", ""); status != http.StatusOK {
		t.Errorf("GET without token status = %d, want 200", status)
	}
}

func TestMetricsEndpoint(t *testing.T) {
	srv := newTestServer(t, "")
	doRequest(t, "GET", srv.URL+"/healthz", "", "")

	status, body := doRequest(t, "GET", srv.URL+"/metrics", "", "")
	if status != http.StatusOK {
		t.Fatalf("status = %d", status)
	}
	if !strings.Contains(string(body), "onboard_http_requests_total") {
		t.Error("metrics output missing request counter")
	}
}

package main

import (
	"errors"
	"math"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/goccy/go-json"
	"github.com/rs/zerolog"

	"github.com/matthewjhunter/onboard"
)

const maxBodyBytes = 1 << 20

// handlers holds dependencies for all HTTP handler methods.
type handlers struct {
	engine *onboard.Engine
	log    zerolog.Logger
}

// --- Request and response types ---

type recItem struct {
	ItemID      string     `json:"item_id"`
	URL         string     `json:"url"`
	Title       string     `json:"title"`
	Score       float64    `json:"score"`
	Source      string     `json:"source"`
	PublishedAt *time.Time `json:"published_at"`
}

type recommendationsResponse struct {
	GeneratedAt time.Time `json:"generated_at"`
	RecID       string    `json:"rec_id"`
	Items       []recItem `json:"items"`
}

type feedbackRequest struct {
	ItemID string `json:"item_id"`
	Signal string `json:"signal"`
}

type clickRequest struct {
	URL       string     `json:"url"`
	Title     string     `json:"title"`
	SourceID  string     `json:"source_id"`
	ClickedAt *time.Time `json:"clicked_at"`
}

type topicEntry struct {
	Token   string  `json:"token"`
	WtLong  float64 `json:"wt_long"`
	WtShort float64 `json:"wt_short"`
}

type interestResponse struct {
	Magnitudes onboard.Magnitudes `json:"magnitudes"`
	Topics     []topicEntry       `json:"topics"`
}

type jobInfo struct {
	Name        string `json:"name"`
	Description string `json:"description"`
}

// --- Helpers ---

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]any{"ok": false, "error": msg})
}

// decodeBody reads a JSON request body into v, rejecting oversized or
// malformed payloads.
func decodeBody(w http.ResponseWriter, r *http.Request, v any) error {
	body := http.MaxBytesReader(w, r.Body, maxBodyBytes)
	defer body.Close()
	return json.NewDecoder(body).Decode(v)
}

// parseIntParam reads a positive integer query parameter, returning
// defaultVal when absent or invalid.
func parseIntParam(r *http.Request, name string, defaultVal int) int {
	s := r.URL.Query().Get(name)
	if s == "" {
		return defaultVal
	}
	v, err := strconv.Atoi(s)
	if err != nil || v <= 0 {
		return defaultVal
	}
	return v
}

func round6(x float64) float64 {
	return math.Round(x*1e6) / 1e6
}

// --- Handlers ---

func (h *handlers) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *handlers) handleRecommendations(w http.ResponseWriter, r *http.Request) {
	limit := parseIntParam(r, "limit", 20)
	recs, err := h.engine.Recommend(r.Context(), limit, time.Now())
	if err != nil {
		h.log.Error().Err(err).Msg("recommend failed")
		writeError(w, http.StatusInternalServerError, "failed to compute recommendations")
		return
	}

	resp := recommendationsResponse{
		GeneratedAt: recs.GeneratedAt,
		RecID:       recs.RecID,
		Items:       make([]recItem, 0, len(recs.Items)),
	}
	for _, it := range recs.Items {
		resp.Items = append(resp.Items, recItem{
			ItemID:      it.ItemID,
			URL:         it.URL,
			Title:       it.Title,
			Score:       round6(it.Score),
			Source:      it.Source,
			PublishedAt: it.PublishedAt,
		})
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *handlers) handleFeedback(w http.ResponseWriter, r *http.Request) {
	var req feedbackRequest
	if err := decodeBody(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if strings.TrimSpace(req.ItemID) == "" {
		writeError(w, http.StatusBadRequest, "item_id is required")
		return
	}

	n, err := h.engine.Feedback(r.Context(), req.ItemID, req.Signal)
	if errors.Is(err, onboard.ErrInvalidSignal) {
		writeError(w, http.StatusBadRequest, `signal must be "up" or "down"`)
		return
	}
	if err != nil {
		h.log.Error().Err(err).Str("item_id", req.ItemID).Msg("feedback failed")
		writeError(w, http.StatusInternalServerError, "failed to apply feedback")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"ok": true, "updated": n})
}

func (h *handlers) handleClick(w http.ResponseWriter, r *http.Request) {
	var req clickRequest
	if err := decodeBody(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	click := onboard.Click{URL: req.URL, Title: req.Title, SourceID: req.SourceID, At: time.Now()}
	if req.ClickedAt != nil && !req.ClickedAt.IsZero() {
		click.At = *req.ClickedAt
	}

	res, err := h.engine.RecordClick(r.Context(), click)
	if errors.Is(err, onboard.ErrInvalidURL) {
		writeError(w, http.StatusBadRequest, "url must be an absolute http(s) link")
		return
	}
	if err != nil {
		h.log.Error().Err(err).Str("url", req.URL).Msg("record click failed")
		writeError(w, http.StatusInternalServerError, "failed to record click")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"ok":       true,
		"item_id":  res.ItemID,
		"recorded": res.Recorded,
		"updated":  res.Updated,
	})
}

func (h *handlers) handleInterest(w http.ResponseWriter, r *http.Request) {
	k := parseIntParam(r, "topics", 20)

	profile, err := h.engine.Profile(r.Context(), time.Now())
	if err != nil {
		h.log.Error().Err(err).Msg("profile failed")
		writeError(w, http.StatusInternalServerError, "failed to load profile")
		return
	}
	topics, err := h.engine.Topics(r.Context(), k)
	if err != nil {
		h.log.Error().Err(err).Msg("topics failed")
		writeError(w, http.StatusInternalServerError, "failed to load topics")
		return
	}

	resp := interestResponse{
		Magnitudes: onboard.Magnitudes{
			Short: round6(profile.Magnitudes.Short),
			Long:  round6(profile.Magnitudes.Long),
		},
		Topics: make([]topicEntry, 0, len(topics)),
	}
	for _, t := range topics {
		resp.Topics = append(resp.Topics, topicEntry{Token: t.Token, WtLong: round6(t.WtLong), WtShort: round6(t.WtShort)})
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *handlers) handleDiscover(w http.ResponseWriter, r *http.Request) {
	limit := parseIntParam(r, "limit", 10)
	rep, err := h.engine.Discover(r.Context(), limit, time.Now())
	if err != nil {
		h.log.Error().Err(err).Msg("discover failed")
		writeError(w, http.StatusInternalServerError, "failed to build report")
		return
	}
	writeJSON(w, http.StatusOK, rep)
}

func (h *handlers) handleJobList(w http.ResponseWriter, r *http.Request) {
	names := h.engine.JobNames()
	out := make([]jobInfo, 0, len(names))
	for _, name := range names {
		out = append(out, jobInfo{Name: name, Description: h.engine.JobDescription(name)})
	}
	writeJSON(w, http.StatusOK, out)
}

func (h *handlers) handleJobRun(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	res, err := h.engine.RunJob(r.Context(), name, time.Now())
	if errors.Is(err, onboard.ErrUnknownJob) {
		writeError(w, http.StatusNotFound, "unknown job: "+name)
		return
	}
	if err != nil {
		h.log.Error().Err(err).Str("job", name).Msg("job failed")
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, res)
}

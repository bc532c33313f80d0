package jobs

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"
	_ "modernc.org/sqlite"

	"github.com/matthewjhunter/onboard/internal/bookmarks"
	"github.com/matthewjhunter/onboard/internal/config"
	"github.com/matthewjhunter/onboard/internal/storage"
	"github.com/matthewjhunter/onboard/internal/urltools"
)

// FeedFetcher pulls every registered feed into the items table.
type FeedFetcher interface {
	FetchAllFeeds(ctx context.Context) (int, error)
}

// IngestFeeds registers the configured feeds and fetches all of them.
// Processed counts new items.
type IngestFeeds struct {
	Store   storage.Store
	Fetcher FeedFetcher
	Feeds   []config.FeedConfig
	Log     zerolog.Logger
}

func (j *IngestFeeds) Name() string { return NameIngestFeeds }
func (j *IngestFeeds) Description() string {
	return "fetch RSS/Atom feeds into items"
}

func (j *IngestFeeds) Run(ctx context.Context, _ time.Time) (Result, error) {
	for _, f := range j.Feeds {
		if f.URL == "" {
			continue
		}
		name := f.Name
		if name == "" {
			name = f.URL
		}
		if _, err := j.Store.AddFeed(f.URL, name); err != nil {
			j.Log.Warn().Err(err).Str("url", f.URL).Msg("failed to register feed")
		}
	}
	n, err := j.Fetcher.FetchAllFeeds(ctx)
	return Result{Processed: n}, err
}

// IngestBookmarks flattens a bookmarks export into items tagged as
// bookmarks. Existing items keep their data but gain a title and source
// when theirs are empty. Processed counts bookmarks seen.
type IngestBookmarks struct {
	Store storage.Store
	Path  string
}

func (j *IngestBookmarks) Name() string { return NameIngestBookmarks }
func (j *IngestBookmarks) Description() string {
	return "load a bookmarks JSON export into items"
}

func (j *IngestBookmarks) Run(context.Context, time.Time) (Result, error) {
	if j.Path == "" {
		return Result{}, errors.New("bookmarks.path is not configured")
	}
	marks, err := bookmarks.FlattenFile(j.Path)
	if err != nil {
		return Result{}, err
	}
	for i, b := range marks {
		_, err := j.Store.AddItem(&storage.Item{
			ItemID: b.ItemID,
			URL:    b.URL,
			Title:  b.Title,
			Source: storage.SourceBookmark,
		})
		if err != nil {
			return Result{Processed: i}, err
		}
	}
	return Result{Processed: len(marks)}, nil
}

// SyncClicks mirrors a link tracker's CLICK_EVENTS table into click_events.
// A missing tracking database or table syncs nothing.
type SyncClicks struct {
	Store storage.Store
	// TrackingDB is the path of the tracker's SQLite file.
	TrackingDB string
	// Location interprets timestamps written without a zone.
	Location *time.Location
	Log      zerolog.Logger
}

func (j *SyncClicks) Name() string { return NameSyncClicks }
func (j *SyncClicks) Description() string {
	return "import click events from the link tracker database"
}

type trackedClick struct {
	ts     any
	widget sql.NullString
	link   sql.NullString
}

func (j *SyncClicks) Run(ctx context.Context, _ time.Time) (Result, error) {
	if j.TrackingDB == "" {
		return Result{}, nil
	}
	if _, err := os.Stat(j.TrackingDB); err != nil {
		j.Log.Debug().Str("path", j.TrackingDB).Msg("tracking database not found")
		return Result{}, nil
	}

	rows, err := j.readTracked(ctx)
	if err != nil {
		j.Log.Warn().Err(err).Str("path", j.TrackingDB).Msg("failed to read tracking database")
		return Result{}, nil
	}

	loc := j.Location
	if loc == nil {
		loc = time.Local
	}

	synced := 0
	for _, r := range rows {
		ts, ok := parseTrackedTime(r.ts, loc)
		if !ok {
			continue
		}
		canon, id := urltools.CanonicalID(r.link.String)
		if canon == "" {
			continue
		}
		var title string
		item, err := j.Store.GetItem(id)
		if err != nil {
			return Result{Processed: synced}, err
		}
		if item != nil {
			title = item.Title
		}
		_, err = j.Store.AddClick(&storage.ClickEvent{
			UserID:    storage.DefaultUserID,
			SourceID:  r.widget.String,
			ItemID:    id,
			URL:       canon,
			Title:     title,
			ClickedAt: ts,
		})
		if err != nil {
			return Result{Processed: synced}, err
		}
		synced++
	}
	return Result{Processed: synced}, nil
}

func (j *SyncClicks) readTracked(ctx context.Context) ([]trackedClick, error) {
	db, err := sql.Open("sqlite", "file:"+j.TrackingDB+"?mode=ro")
	if err != nil {
		return nil, err
	}
	defer db.Close()

	rows, err := db.QueryContext(ctx, "SELECT TIMESTAMP, WIDGET_ID, LINK FROM CLICK_EVENTS ORDER BY TIMESTAMP DESC")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []trackedClick
	for rows.Next() {
		var r trackedClick
		if err := rows.Scan(&r.ts, &r.widget, &r.link); err != nil {
			return nil, fmt.Errorf("failed to scan click event: %w", err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

var trackedLayouts = []string{
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05.999999999",
	"2006-01-02T15:04",
	"2006-01-02 15:04",
	"2006-01-02",
}

// parseTrackedTime accepts unix seconds (integer or float) or an ISO-8601
// string. Zoneless strings are read in loc.
func parseTrackedTime(v any, loc *time.Location) (time.Time, bool) {
	switch t := v.(type) {
	case int64:
		return time.Unix(t, 0).UTC(), true
	case float64:
		return time.Unix(int64(t), 0).UTC(), true
	case time.Time:
		return t.UTC(), true
	case []byte:
		return parseTrackedString(string(t), loc)
	case string:
		return parseTrackedString(t, loc)
	}
	return time.Time{}, false
}

func parseTrackedString(s string, loc *time.Location) (time.Time, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, false
	}
	if ts, err := time.Parse(time.RFC3339Nano, s); err == nil {
		return ts.UTC().Truncate(time.Second), true
	}
	for _, layout := range trackedLayouts {
		if ts, err := time.ParseInLocation(layout, s, loc); err == nil {
			return ts.UTC().Truncate(time.Second), true
		}
	}
	// Numeric text stored in a TEXT column.
	if f, err := strconv.ParseFloat(s, 64); err == nil {
		return time.Unix(int64(f), 0).UTC(), true
	}
	return time.Time{}, false
}

package storage

import (
	"database/sql"
	"fmt"
	"strings"
	"time"

	_ "modernc.org/sqlite"
)

// DefaultUserID is the single implicit identity recorded on click events.
const DefaultUserID = "default"

// Source tags for items created outside of feed ingestion.
const (
	SourceBookmark = "bookmark"
	SourceClick    = "click"
)

// deleteBatchSize keeps IN (...) lists under SQLite's bound-parameter limit.
const deleteBatchSize = 500

type SQLiteStore struct {
	db *sql.DB
}

var _ Store = (*SQLiteStore)(nil)

type Item struct {
	ItemID         string
	URL            string
	Title          string
	Source         string
	PublishedAt    *time.Time
	VecID          string
	ContentHash    string
	LastEmbeddedAt *time.Time
}

type ClickEvent struct {
	ID        int64
	UserID    string
	SourceID  string
	ItemID    string
	URL       string
	Title     string
	ClickedAt time.Time
}

type Topic struct {
	Token       string
	WtLong      float64
	WtShort     float64
	LastUpdated *time.Time
}

type RecLog struct {
	ItemID string
	Score  float64
}

type Feed struct {
	ID           int64
	Name         string
	URL          string
	ETag         string
	LastModified string
	LastFetched  *time.Time
	LastError    *string
	Enabled      bool
}

type Stats struct {
	Items         int
	EmbeddedItems int
	Bookmarks     int
	Clicks        int
	Topics        int
	RecLogs       int
	SourceCounts  map[string]int
}

// NewSQLiteStore creates a new database connection and initializes the schema
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// A single connection serializes writers; SQLite would otherwise
	// return SQLITE_BUSY under the web server.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec("PRAGMA journal_mode = WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to enable WAL: %w", err)
	}
	// The vector store may share this file through its own connection.
	if _, err := db.Exec("PRAGMA busy_timeout = 5000"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to set busy timeout: %w", err)
	}

	if _, err := db.Exec(Schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	// Migrations for databases created before these columns existed.
	migrations := []string{
		"ALTER TABLE items ADD COLUMN content_hash TEXT",
		"ALTER TABLE items ADD COLUMN last_embedded_at INTEGER",
		"ALTER TABLE rec_logs ADD COLUMN clicked INTEGER NOT NULL DEFAULT 0",
	}
	for _, m := range migrations {
		db.Exec(m) // ignore "duplicate column" errors
	}

	return &SQLiteStore{db: db}, nil
}

// Close closes the database connection
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// DB exposes the underlying handle for read-only reporting queries.
func (s *SQLiteStore) DB() *sql.DB {
	return s.db
}

// --- items ---

// AddItem inserts an item if its id is new. Returns true when a row was
// written. Existing rows get an empty title or source filled in.
func (s *SQLiteStore) AddItem(item *Item) (bool, error) {
	result, err := s.db.Exec(
		`INSERT INTO items (item_id, url, title, source, published_at)
		 VALUES (?, ?, ?, ?, ?)
		 ON CONFLICT(item_id) DO NOTHING`,
		item.ItemID, item.URL, item.Title, item.Source, unixOrNil(item.PublishedAt),
	)
	if err != nil {
		return false, fmt.Errorf("failed to add item: %w", err)
	}
	n, _ := result.RowsAffected()
	if n > 0 {
		return true, nil
	}

	_, err = s.db.Exec(
		`UPDATE items
		    SET title = CASE WHEN (title IS NULL OR title = '') THEN ? ELSE title END,
		        source = CASE WHEN (source IS NULL OR source = '') THEN ? ELSE source END
		  WHERE item_id = ?`,
		item.Title, item.Source, item.ItemID,
	)
	if err != nil {
		return false, fmt.Errorf("failed to backfill item: %w", err)
	}
	return false, nil
}

// UpsertItem writes every column of item except the embedding bookkeeping.
func (s *SQLiteStore) UpsertItem(item *Item) error {
	_, err := s.db.Exec(
		`INSERT INTO items (item_id, url, title, source, published_at)
		 VALUES (?, ?, ?, ?, ?)
		 ON CONFLICT(item_id) DO UPDATE SET
		   url = excluded.url,
		   title = excluded.title,
		   source = excluded.source,
		   published_at = COALESCE(excluded.published_at, items.published_at)`,
		item.ItemID, item.URL, item.Title, item.Source, unixOrNil(item.PublishedAt),
	)
	if err != nil {
		return fmt.Errorf("failed to upsert item: %w", err)
	}
	return nil
}

const itemColumns = `item_id, url, COALESCE(title, ''), COALESCE(source, ''), published_at,
	COALESCE(vec_id, ''), COALESCE(content_hash, ''), last_embedded_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanItem(r rowScanner) (Item, error) {
	var it Item
	var published, embedded sql.NullInt64
	err := r.Scan(&it.ItemID, &it.URL, &it.Title, &it.Source, &published,
		&it.VecID, &it.ContentHash, &embedded)
	it.PublishedAt = fromUnix(published)
	it.LastEmbeddedAt = fromUnix(embedded)
	return it, err
}

// GetItem returns the item, or nil when it does not exist.
func (s *SQLiteStore) GetItem(itemID string) (*Item, error) {
	it, err := scanItem(s.db.QueryRow("SELECT "+itemColumns+" FROM items WHERE item_id = ?", itemID))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get item %s: %w", itemID, err)
	}
	return &it, nil
}

// GetItems loads the given items keyed by id. Unknown ids are absent.
func (s *SQLiteStore) GetItems(itemIDs []string) (map[string]Item, error) {
	out := make(map[string]Item, len(itemIDs))
	for _, chunk := range chunkStrings(itemIDs, deleteBatchSize) {
		rows, err := s.db.Query(
			"SELECT "+itemColumns+" FROM items WHERE item_id IN ("+placeholders(len(chunk))+")",
			stringArgs(chunk)...,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to get items: %w", err)
		}
		for rows.Next() {
			it, err := scanItem(rows)
			if err != nil {
				rows.Close()
				return nil, fmt.Errorf("failed to scan item: %w", err)
			}
			out[it.ItemID] = it
		}
		err = rows.Err()
		rows.Close()
		if err != nil {
			return nil, err
		}
	}
	return out, nil
}

// GetItemIDsBySource returns ids of items with the given source tag,
// optionally only those with a vector.
func (s *SQLiteStore) GetItemIDsBySource(source string, embeddedOnly bool) ([]string, error) {
	query := "SELECT item_id FROM items WHERE source = ?"
	if embeddedOnly {
		query += " AND vec_id IS NOT NULL"
	}
	query += " ORDER BY item_id"
	return s.queryStrings(query, source)
}

// GetCandidateItems returns embedded items published at or after
// publishedSince, or undated, newest first.
func (s *SQLiteStore) GetCandidateItems(publishedSince time.Time, limit int) ([]Item, error) {
	rows, err := s.db.Query(
		`SELECT `+itemColumns+` FROM items
		  WHERE vec_id IS NOT NULL
		    AND (published_at IS NULL OR published_at >= ?)
		  ORDER BY COALESCE(published_at, 0) DESC, item_id
		  LIMIT ?`,
		publishedSince.Unix(), limit,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to get candidate items: %w", err)
	}
	return collectItems(rows)
}

// GetRecentlyEmbeddedIDs returns ids of embedded items, most recently
// embedded first.
func (s *SQLiteStore) GetRecentlyEmbeddedIDs(limit int) ([]string, error) {
	return s.queryStrings(
		"SELECT item_id FROM items WHERE vec_id IS NOT NULL ORDER BY COALESCE(last_embedded_at, 0) DESC, rowid DESC LIMIT ?",
		limit,
	)
}

// GetItemsNeedingEmbedding returns items without a vector id or embed time.
// A non-positive limit returns all of them.
func (s *SQLiteStore) GetItemsNeedingEmbedding(limit int) ([]Item, error) {
	query := "SELECT " + itemColumns + " FROM items WHERE vec_id IS NULL OR last_embedded_at IS NULL ORDER BY item_id"
	var args []any
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}
	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to get unembedded items: %w", err)
	}
	return collectItems(rows)
}

// MarkItemEmbedded records a successful vector upsert.
func (s *SQLiteStore) MarkItemEmbedded(itemID, vecID, contentHash string, at time.Time) error {
	_, err := s.db.Exec(
		"UPDATE items SET vec_id = ?, content_hash = ?, last_embedded_at = ? WHERE item_id = ?",
		vecID, contentHash, at.Unix(), itemID,
	)
	if err != nil {
		return fmt.Errorf("failed to mark item embedded: %w", err)
	}
	return nil
}

// GetItemTitles returns every non-empty item title.
func (s *SQLiteStore) GetItemTitles() ([]string, error) {
	return s.queryStrings("SELECT title FROM items WHERE title IS NOT NULL AND title != '' ORDER BY item_id")
}

func collectItems(rows *sql.Rows) ([]Item, error) {
	defer rows.Close()
	var items []Item
	for rows.Next() {
		it, err := scanItem(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan item: %w", err)
		}
		items = append(items, it)
	}
	return items, rows.Err()
}

// --- click events ---

// AddClick appends a click event. Returns false when an identical
// (user, item, timestamp) event was already recorded.
func (s *SQLiteStore) AddClick(ev *ClickEvent) (bool, error) {
	userID := ev.UserID
	if userID == "" {
		userID = DefaultUserID
	}
	result, err := s.db.Exec(
		`INSERT INTO click_events (user_id, source_id, item_id, url, title, clicked_at)
		 VALUES (?, ?, ?, ?, ?, ?)
		 ON CONFLICT(user_id, item_id, clicked_at) DO NOTHING`,
		userID, nullString(ev.SourceID), ev.ItemID, ev.URL, ev.Title, ev.ClickedAt.Unix(),
	)
	if err != nil {
		return false, fmt.Errorf("failed to add click: %w", err)
	}
	n, _ := result.RowsAffected()
	if n > 0 {
		ev.ID, _ = result.LastInsertId()
	}
	return n > 0, nil
}

const clickColumns = `id, user_id, COALESCE(source_id, ''), item_id, COALESCE(url, ''), COALESCE(title, ''), clicked_at`

func (s *SQLiteStore) queryClicks(query string, args ...any) ([]ClickEvent, error) {
	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query clicks: %w", err)
	}
	defer rows.Close()

	var clicks []ClickEvent
	for rows.Next() {
		var c ClickEvent
		var at int64
		if err := rows.Scan(&c.ID, &c.UserID, &c.SourceID, &c.ItemID, &c.URL, &c.Title, &at); err != nil {
			return nil, fmt.Errorf("failed to scan click: %w", err)
		}
		c.ClickedAt = time.Unix(at, 0).UTC()
		clicks = append(clicks, c)
	}
	return clicks, rows.Err()
}

// GetClicksSince returns clicks at or after since, newest first.
func (s *SQLiteStore) GetClicksSince(since time.Time) ([]ClickEvent, error) {
	return s.queryClicks(
		"SELECT "+clickColumns+" FROM click_events WHERE clicked_at >= ? ORDER BY clicked_at DESC, id DESC",
		since.Unix(),
	)
}

// GetAllClicks returns every click, oldest first.
func (s *SQLiteStore) GetAllClicks() ([]ClickEvent, error) {
	return s.queryClicks("SELECT " + clickColumns + " FROM click_events ORDER BY clicked_at ASC, id ASC")
}

// GetClicksMissingItems returns one click per clicked item id that has no
// items row.
func (s *SQLiteStore) GetClicksMissingItems() ([]ClickEvent, error) {
	return s.queryClicks(
		`SELECT ` + clickColumns + ` FROM click_events
		  WHERE id IN (
		    SELECT MAX(ce.id) FROM click_events ce
		      LEFT JOIN items i ON i.item_id = ce.item_id
		     WHERE i.item_id IS NULL
		     GROUP BY ce.item_id)
		  ORDER BY id`,
	)
}

// CountClicksBySource counts clicks since the given time per non-empty
// source id.
func (s *SQLiteStore) CountClicksBySource(since time.Time) (map[string]int, error) {
	rows, err := s.db.Query(
		`SELECT source_id, COUNT(*) FROM click_events
		  WHERE clicked_at >= ? AND source_id IS NOT NULL AND source_id != ''
		  GROUP BY source_id`,
		since.Unix(),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to count clicks by source: %w", err)
	}
	defer rows.Close()

	counts := make(map[string]int)
	for rows.Next() {
		var src string
		var n int
		if err := rows.Scan(&src, &n); err != nil {
			return nil, fmt.Errorf("failed to scan source count: %w", err)
		}
		counts[src] = n
	}
	return counts, rows.Err()
}

// --- topics ---

// BumpTopics adds dLong and dShort to each token's weights, inserting
// missing tokens, and sets last_updated to at. Runs in one transaction.
func (s *SQLiteStore) BumpTopics(tokens []string, dLong, dShort float64, at time.Time) (int, error) {
	if len(tokens) == 0 {
		return 0, nil
	}
	tx, err := s.db.Begin()
	if err != nil {
		return 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.Prepare(
		`INSERT INTO topics (token, wt_long, wt_short, last_updated)
		 VALUES (?, ?, ?, ?)
		 ON CONFLICT(token) DO UPDATE SET
		   wt_long = wt_long + excluded.wt_long,
		   wt_short = wt_short + excluded.wt_short,
		   last_updated = excluded.last_updated`,
	)
	if err != nil {
		return 0, fmt.Errorf("failed to prepare topic upsert: %w", err)
	}
	defer stmt.Close()

	for _, tok := range tokens {
		if _, err := stmt.Exec(tok, dLong, dShort, at.Unix()); err != nil {
			return 0, fmt.Errorf("failed to bump topic %q: %w", tok, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("failed to commit topic bumps: %w", err)
	}
	return len(tokens), nil
}

func (s *SQLiteStore) queryTopics(query string, args ...any) ([]Topic, error) {
	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query topics: %w", err)
	}
	defer rows.Close()

	var out []Topic
	for rows.Next() {
		var tp Topic
		var last sql.NullInt64
		if err := rows.Scan(&tp.Token, &tp.WtLong, &tp.WtShort, &last); err != nil {
			return nil, fmt.Errorf("failed to scan topic: %w", err)
		}
		tp.LastUpdated = fromUnix(last)
		out = append(out, tp)
	}
	return out, rows.Err()
}

// GetTopTopics returns topics ordered by wt_long + wt_short descending.
func (s *SQLiteStore) GetTopTopics(limit int) ([]Topic, error) {
	return s.queryTopics(
		"SELECT token, wt_long, wt_short, last_updated FROM topics ORDER BY (wt_long + wt_short) DESC, token LIMIT ?",
		limit,
	)
}

// GetAllTopics returns every topic row.
func (s *SQLiteStore) GetAllTopics() ([]Topic, error) {
	return s.queryTopics("SELECT token, wt_long, wt_short, last_updated FROM topics ORDER BY token")
}

// UpdateTopicWeights overwrites the weights and last_updated of each topic
// in a single transaction.
func (s *SQLiteStore) UpdateTopicWeights(topics []Topic) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.Prepare("UPDATE topics SET wt_long = ?, wt_short = ?, last_updated = ? WHERE token = ?")
	if err != nil {
		return fmt.Errorf("failed to prepare topic update: %w", err)
	}
	defer stmt.Close()

	for _, tp := range topics {
		if _, err := stmt.Exec(tp.WtLong, tp.WtShort, unixOrNil(tp.LastUpdated), tp.Token); err != nil {
			return fmt.Errorf("failed to update topic %q: %w", tp.Token, err)
		}
	}
	return tx.Commit()
}

// DeleteTopics removes the given tokens in batches and returns the number
// of rows deleted.
func (s *SQLiteStore) DeleteTopics(tokens []string) (int, error) {
	deleted := 0
	for _, chunk := range chunkStrings(tokens, deleteBatchSize) {
		result, err := s.db.Exec(
			"DELETE FROM topics WHERE token IN ("+placeholders(len(chunk))+")",
			stringArgs(chunk)...,
		)
		if err != nil {
			return deleted, fmt.Errorf("failed to delete topics: %w", err)
		}
		n, _ := result.RowsAffected()
		deleted += int(n)
	}
	return deleted, nil
}

// --- model params ---

// SetModelParam upserts a model parameter.
func (s *SQLiteStore) SetModelParam(key, val string) error {
	_, err := s.db.Exec(
		"INSERT INTO model_params (key, val) VALUES (?, ?) ON CONFLICT(key) DO UPDATE SET val = excluded.val",
		key, val,
	)
	if err != nil {
		return fmt.Errorf("failed to set model param %s: %w", key, err)
	}
	return nil
}

// GetModelParams returns the values for the requested keys. A nil keys
// slice returns every parameter.
func (s *SQLiteStore) GetModelParams(keys []string) (map[string]string, error) {
	out := make(map[string]string)
	if keys == nil {
		rows, err := s.db.Query("SELECT key, COALESCE(val, '') FROM model_params")
		if err != nil {
			return nil, fmt.Errorf("failed to get model params: %w", err)
		}
		return out, scanPairs(rows, out)
	}
	for _, chunk := range chunkStrings(keys, deleteBatchSize) {
		rows, err := s.db.Query(
			"SELECT key, COALESCE(val, '') FROM model_params WHERE key IN ("+placeholders(len(chunk))+")",
			stringArgs(chunk)...,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to get model params: %w", err)
		}
		if err := scanPairs(rows, out); err != nil {
			return nil, err
		}
	}
	return out, nil
}

func scanPairs(rows *sql.Rows, out map[string]string) error {
	defer rows.Close()
	for rows.Next() {
		var k, v string
		if err := rows.Scan(&k, &v); err != nil {
			return fmt.Errorf("failed to scan model param: %w", err)
		}
		out[k] = v
	}
	return rows.Err()
}

// --- recommendation logs ---

// LogRecommendations writes one row per served item under recID.
func (s *SQLiteStore) LogRecommendations(recID string, servedAt time.Time, entries []RecLog) error {
	if len(entries) == 0 {
		return nil
	}
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.Prepare(
		`INSERT INTO rec_logs (rec_id, item_id, score, served_at, clicked)
		 VALUES (?, ?, ?, ?, 0)
		 ON CONFLICT(rec_id, item_id) DO NOTHING`,
	)
	if err != nil {
		return fmt.Errorf("failed to prepare rec log insert: %w", err)
	}
	defer stmt.Close()

	for _, e := range entries {
		if _, err := stmt.Exec(recID, e.ItemID, e.Score, servedAt.Unix()); err != nil {
			return fmt.Errorf("failed to log recommendation: %w", err)
		}
	}
	return tx.Commit()
}

// GetRecentlyServed reports which of itemIDs were served at or after since.
func (s *SQLiteStore) GetRecentlyServed(itemIDs []string, since time.Time) (map[string]bool, error) {
	out := make(map[string]bool)
	for _, chunk := range chunkStrings(itemIDs, deleteBatchSize) {
		args := append(stringArgs(chunk), since.Unix())
		ids, err := s.queryStrings(
			"SELECT DISTINCT item_id FROM rec_logs WHERE item_id IN ("+placeholders(len(chunk))+") AND served_at >= ?",
			args...,
		)
		if err != nil {
			return nil, err
		}
		for _, id := range ids {
			out[id] = true
		}
	}
	return out, nil
}

// MarkRecommendationClicked flags the most recent serving of itemID as
// clicked. Returns false when the item was never served.
func (s *SQLiteStore) MarkRecommendationClicked(itemID string) (bool, error) {
	result, err := s.db.Exec(
		`UPDATE rec_logs SET clicked = 1
		  WHERE rowid = (SELECT rowid FROM rec_logs WHERE item_id = ? ORDER BY served_at DESC LIMIT 1)`,
		itemID,
	)
	if err != nil {
		return false, fmt.Errorf("failed to mark recommendation clicked: %w", err)
	}
	n, _ := result.RowsAffected()
	return n > 0, nil
}

// --- feeds ---

// AddFeed adds a feed, or returns the id of the existing feed with that URL.
func (s *SQLiteStore) AddFeed(url, name string) (int64, error) {
	_, err := s.db.Exec(
		"INSERT INTO feeds (url, name) VALUES (?, ?) ON CONFLICT(url) DO UPDATE SET name = excluded.name",
		url, name,
	)
	if err != nil {
		return 0, fmt.Errorf("failed to add feed: %w", err)
	}
	var id int64
	if err := s.db.QueryRow("SELECT id FROM feeds WHERE url = ?", url).Scan(&id); err != nil {
		return 0, fmt.Errorf("failed to look up feed: %w", err)
	}
	return id, nil
}

// GetAllFeeds returns all enabled feeds
func (s *SQLiteStore) GetAllFeeds() ([]Feed, error) {
	rows, err := s.db.Query("SELECT id, name, url, etag, last_modified, last_fetched, last_error, enabled FROM feeds WHERE enabled = 1 ORDER BY id")
	if err != nil {
		return nil, fmt.Errorf("failed to get feeds: %w", err)
	}
	defer rows.Close()

	var feeds []Feed
	for rows.Next() {
		var f Feed
		var etag, lastMod, lastErr sql.NullString
		var fetched sql.NullInt64
		if err := rows.Scan(&f.ID, &f.Name, &f.URL, &etag, &lastMod, &fetched, &lastErr, &f.Enabled); err != nil {
			return nil, fmt.Errorf("failed to scan feed: %w", err)
		}
		f.ETag = etag.String
		f.LastModified = lastMod.String
		f.LastFetched = fromUnix(fetched)
		if lastErr.Valid {
			f.LastError = &lastErr.String
		}
		feeds = append(feeds, f)
	}
	return feeds, rows.Err()
}

// UpdateFeedError records a fetch error for a feed.
func (s *SQLiteStore) UpdateFeedError(feedID int64, errMsg string) error {
	_, err := s.db.Exec("UPDATE feeds SET last_error = ? WHERE id = ?", errMsg, feedID)
	if err != nil {
		return fmt.Errorf("failed to update feed error: %w", err)
	}
	return nil
}

// ClearFeedError clears the last error and updates last_fetched for a feed.
func (s *SQLiteStore) ClearFeedError(feedID int64) error {
	_, err := s.db.Exec("UPDATE feeds SET last_error = NULL, last_fetched = ? WHERE id = ?", time.Now().Unix(), feedID)
	if err != nil {
		return fmt.Errorf("failed to clear feed error: %w", err)
	}
	return nil
}

// UpdateFeedCacheHeaders stores the HTTP cache headers from the last successful fetch.
func (s *SQLiteStore) UpdateFeedCacheHeaders(feedID int64, etag, lastModified string) error {
	_, err := s.db.Exec("UPDATE feeds SET etag = ?, last_modified = ? WHERE id = ?", etag, lastModified, feedID)
	if err != nil {
		return fmt.Errorf("failed to update feed cache headers: %w", err)
	}
	return nil
}

// --- stats ---

// GetStats returns table counts and the per-source item histogram.
func (s *SQLiteStore) GetStats() (*Stats, error) {
	st := &Stats{SourceCounts: make(map[string]int)}
	counts := []struct {
		query string
		dest  *int
	}{
		{"SELECT COUNT(*) FROM items", &st.Items},
		{"SELECT COUNT(*) FROM items WHERE vec_id IS NOT NULL", &st.EmbeddedItems},
		{"SELECT COUNT(*) FROM items WHERE source = 'bookmark'", &st.Bookmarks},
		{"SELECT COUNT(*) FROM click_events", &st.Clicks},
		{"SELECT COUNT(*) FROM topics", &st.Topics},
		{"SELECT COUNT(*) FROM rec_logs", &st.RecLogs},
	}
	for _, c := range counts {
		if err := s.db.QueryRow(c.query).Scan(c.dest); err != nil {
			return nil, fmt.Errorf("failed to count (%s): %w", c.query, err)
		}
	}

	rows, err := s.db.Query("SELECT COALESCE(source, ''), COUNT(*) FROM items GROUP BY COALESCE(source, '')")
	if err != nil {
		return nil, fmt.Errorf("failed to count items by source: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var src string
		var n int
		if err := rows.Scan(&src, &n); err != nil {
			return nil, fmt.Errorf("failed to scan source count: %w", err)
		}
		st.SourceCounts[src] = n
	}
	return st, rows.Err()
}

// --- helpers ---

func (s *SQLiteStore) queryStrings(query string, args ...any) ([]string, error) {
	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("query failed: %w", err)
	}
	defer rows.Close()
	var out []string
	for rows.Next() {
		var v string
		if err := rows.Scan(&v); err != nil {
			return nil, fmt.Errorf("scan failed: %w", err)
		}
		out = append(out, v)
	}
	return out, rows.Err()
}

func placeholders(n int) string {
	if n <= 0 {
		return ""
	}
	return strings.Repeat("?,", n-1) + "?"
}

func stringArgs(ss []string) []any {
	args := make([]any, len(ss))
	for i, s := range ss {
		args[i] = s
	}
	return args
}

func chunkStrings(ss []string, size int) [][]string {
	var out [][]string
	for len(ss) > 0 {
		n := size
		if n > len(ss) {
			n = len(ss)
		}
		out = append(out, ss[:n])
		ss = ss[n:]
	}
	return out
}

func unixOrNil(t *time.Time) any {
	if t == nil {
		return nil
	}
	return t.Unix()
}

func fromUnix(v sql.NullInt64) *time.Time {
	if !v.Valid {
		return nil
	}
	t := time.Unix(v.Int64, 0).UTC()
	return &t
}

func nullString(s string) any {
	if s == "" {
		return nil
	}
	return s
}

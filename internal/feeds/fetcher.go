package feeds

import (
	"context"
	"encoding/xml"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/mmcdole/gofeed"
	"github.com/rs/zerolog"

	"github.com/matthewjhunter/onboard/internal/storage"
	"github.com/matthewjhunter/onboard/internal/urltools"
)

const (
	userAgent       = "OnboardBot/1.0"
	perFeedTimeout  = 30 * time.Second
	maxFeedBodySize = 10 << 20
)

type Fetcher struct {
	parser *gofeed.Parser
	client *http.Client
	store  storage.Store
	log    zerolog.Logger
}

// OPML structures for parsing
type OPML struct {
	XMLName xml.Name `xml:"opml"`
	Body    OPMLBody `xml:"body"`
}

type OPMLBody struct {
	Outlines []OPMLOutline `xml:"outline"`
}

type OPMLOutline struct {
	Text     string        `xml:"text,attr"`
	Title    string        `xml:"title,attr"`
	Type     string        `xml:"type,attr"`
	XMLURL   string        `xml:"xmlUrl,attr"`
	HTMLURL  string        `xml:"htmlUrl,attr"`
	Outlines []OPMLOutline `xml:"outline"`
}

// NewFetcher creates a new feed fetcher
func NewFetcher(store storage.Store, log zerolog.Logger) *Fetcher {
	parser := gofeed.NewParser()
	parser.UserAgent = userAgent
	return &Fetcher{
		parser: parser,
		client: &http.Client{},
		store:  store,
		log:    log,
	}
}

// FetchResult holds the outcome of a conditional feed fetch.
type FetchResult struct {
	Feed         *gofeed.Feed // nil when NotModified is true
	ETag         string       // ETag from response (empty if absent)
	LastModified string       // Last-Modified from response (empty if absent)
	NotModified  bool         // true when server returned 304
}

// FetchFeed fetches and parses a single feed using conditional HTTP requests.
// Stored ETag and Last-Modified values are sent as If-None-Match and
// If-Modified-Since. A 304 response skips parsing and returns NotModified.
func (f *Fetcher) FetchFeed(ctx context.Context, feed storage.Feed) (*FetchResult, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, feed.URL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request for %s: %w", feed.URL, err)
	}
	req.Header.Set("User-Agent", userAgent)
	if feed.ETag != "" {
		req.Header.Set("If-None-Match", feed.ETag)
	}
	if feed.LastModified != "" {
		req.Header.Set("If-Modified-Since", feed.LastModified)
	}

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch feed %s: %w", feed.URL, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotModified {
		return &FetchResult{NotModified: true}, nil
	}

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("feed %s returned status %d", feed.URL, resp.StatusCode)
	}

	parsed, err := f.parser.Parse(io.LimitReader(resp.Body, maxFeedBodySize))
	if err != nil {
		return nil, fmt.Errorf("failed to parse feed %s: %w", feed.URL, err)
	}

	return &FetchResult{
		Feed:         parsed,
		ETag:         resp.Header.Get("ETag"),
		LastModified: resp.Header.Get("Last-Modified"),
	}, nil
}

// ImportOPML registers every feed listed in an OPML file, including those
// nested in folders. Returns the number of feeds registered.
func (f *Fetcher) ImportOPML(opmlPath string) (int, error) {
	data, err := os.ReadFile(opmlPath)
	if err != nil {
		return 0, fmt.Errorf("failed to read OPML file: %w", err)
	}

	var opml OPML
	if err := xml.Unmarshal(data, &opml); err != nil {
		return 0, fmt.Errorf("failed to parse OPML: %w", err)
	}

	added := 0
	for _, o := range flattenOutlines(opml.Body.Outlines) {
		if _, err := f.store.AddFeed(o.XMLURL, o.name()); err != nil {
			f.log.Warn().Err(err).Str("url", o.XMLURL).Msg("failed to add feed")
			continue
		}
		added++
	}
	f.log.Info().Int("feeds", added).Str("path", opmlPath).Msg("imported OPML")
	return added, nil
}

// flattenOutlines returns the feed outlines (those with an xmlUrl) in
// document order, descending into folders.
func flattenOutlines(outlines []OPMLOutline) []OPMLOutline {
	var out []OPMLOutline
	for _, o := range outlines {
		if o.XMLURL != "" {
			out = append(out, o)
		}
		out = append(out, flattenOutlines(o.Outlines)...)
	}
	return out
}

// name picks the outline's display name: title, then text, then the URL.
func (o OPMLOutline) name() string {
	for _, s := range []string{o.Title, o.Text} {
		if s = strings.TrimSpace(s); s != "" {
			return s
		}
	}
	return o.XMLURL
}

// itemFromEntry maps a feed entry onto an item. Returns nil for entries
// without a usable link.
func itemFromEntry(source string, entry *gofeed.Item) *storage.Item {
	link := entry.Link
	if link == "" && len(entry.Links) > 0 {
		link = entry.Links[0]
	}
	canon, id := urltools.CanonicalID(link)
	if canon == "" {
		return nil
	}

	published := entry.PublishedParsed
	if published == nil {
		published = entry.UpdatedParsed
	}
	return &storage.Item{
		ItemID:      id,
		URL:         canon,
		Title:       strings.TrimSpace(entry.Title),
		Source:      source,
		PublishedAt: published,
	}
}

// StoreItems writes a feed's entries into items, tagged with source. Links
// are canonicalized and entries without a link are skipped. Returns the
// number of new items.
func (f *Fetcher) StoreItems(source string, feed *gofeed.Feed) (int, error) {
	stored := 0
	for _, entry := range feed.Items {
		item := itemFromEntry(source, entry)
		if item == nil {
			continue
		}
		inserted, err := f.store.AddItem(item)
		if err != nil {
			return stored, err
		}
		if inserted {
			stored++
		}
	}
	return stored, nil
}

// FetchAllFeeds fetches every registered feed in turn and stores new
// entries. A failing feed records its error and does not stop the cycle.
// Returns the number of new items.
func (f *Fetcher) FetchAllFeeds(ctx context.Context) (int, error) {
	feeds, err := f.store.GetAllFeeds()
	if err != nil {
		return 0, fmt.Errorf("failed to get feeds: %w", err)
	}

	var downloaded, notModified, errored, total int
	for _, feed := range feeds {
		if ctx.Err() != nil {
			return total, ctx.Err()
		}
		log := f.log.With().Str("feed", feed.Name).Logger()

		feedCtx, cancel := context.WithTimeout(ctx, perFeedTimeout)
		result, err := f.FetchFeed(feedCtx, feed)
		cancel()
		if err != nil {
			errored++
			log.Warn().Err(err).Msg("failed to fetch feed")
			if uerr := f.store.UpdateFeedError(feed.ID, err.Error()); uerr != nil {
				log.Warn().Err(uerr).Msg("failed to record feed error")
			}
			continue
		}

		if result.NotModified {
			notModified++
		} else {
			downloaded++
			stored, err := f.StoreItems(feed.Name, result.Feed)
			if err != nil {
				log.Warn().Err(err).Msg("error storing feed items")
			}
			total += stored
			log.Debug().Int("new_items", stored).Msg("feed fetched")

			if result.ETag != "" || result.LastModified != "" {
				if err := f.store.UpdateFeedCacheHeaders(feed.ID, result.ETag, result.LastModified); err != nil {
					log.Warn().Err(err).Msg("failed to store cache headers")
				}
			}
		}

		if err := f.store.ClearFeedError(feed.ID); err != nil {
			log.Warn().Err(err).Msg("failed to update last_fetched")
		}
	}

	f.log.Info().
		Int("feeds", len(feeds)).
		Int("downloaded", downloaded).
		Int("not_modified", notModified).
		Int("errored", errored).
		Int("new_items", total).
		Msg("feed cycle complete")
	return total, nil
}

package storage

import "time"

// Store defines the storage interface for onboard's relational data.
type Store interface {
	Close() error

	// Items
	AddItem(item *Item) (bool, error)
	UpsertItem(item *Item) error
	GetItem(itemID string) (*Item, error)
	GetItems(itemIDs []string) (map[string]Item, error)
	GetItemIDsBySource(source string, embeddedOnly bool) ([]string, error)
	GetCandidateItems(publishedSince time.Time, limit int) ([]Item, error)
	GetItemsNeedingEmbedding(limit int) ([]Item, error)
	GetRecentlyEmbeddedIDs(limit int) ([]string, error)
	MarkItemEmbedded(itemID, vecID, contentHash string, at time.Time) error
	GetItemTitles() ([]string, error)

	// Click events
	AddClick(ev *ClickEvent) (bool, error)
	GetClicksSince(since time.Time) ([]ClickEvent, error)
	GetAllClicks() ([]ClickEvent, error)
	GetClicksMissingItems() ([]ClickEvent, error)
	CountClicksBySource(since time.Time) (map[string]int, error)

	// Topics
	BumpTopics(tokens []string, dLong, dShort float64, at time.Time) (int, error)
	GetTopTopics(limit int) ([]Topic, error)
	GetAllTopics() ([]Topic, error)
	UpdateTopicWeights(topics []Topic) error
	DeleteTopics(tokens []string) (int, error)

	// Model params
	SetModelParam(key, val string) error
	GetModelParams(keys []string) (map[string]string, error)

	// Recommendation logs
	LogRecommendations(recID string, servedAt time.Time, entries []RecLog) error
	GetRecentlyServed(itemIDs []string, since time.Time) (map[string]bool, error)
	MarkRecommendationClicked(itemID string) (bool, error)

	// Feeds
	AddFeed(url, name string) (int64, error)
	GetAllFeeds() ([]Feed, error)
	UpdateFeedError(feedID int64, errMsg string) error
	ClearFeedError(feedID int64) error
	UpdateFeedCacheHeaders(feedID int64, etag, lastModified string) error

	// Stats
	GetStats() (*Stats, error)
}

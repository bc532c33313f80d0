package ranking

import (
	"context"
	"math"
	"math/rand/v2"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/matthewjhunter/onboard/internal/interest"
	"github.com/matthewjhunter/onboard/internal/storage"
	"github.com/matthewjhunter/onboard/internal/vecmath"
	"github.com/matthewjhunter/onboard/internal/vectorstore"
)

type memVectors map[string][]float32

func (m memVectors) Upsert(_ context.Context, id string, vec []float32, _ map[string]string) (string, error) {
	m[id] = vec
	return id, nil
}

func (m memVectors) GetVectorsForItems(_ context.Context, ids []string) map[string][]float32 {
	out := make(map[string][]float32)
	for _, id := range ids {
		if v, ok := m[id]; ok {
			out[id] = v
		}
	}
	return out
}

func (m memVectors) Query(context.Context, []float32, int) ([]vectorstore.Match, error) {
	return nil, nil
}

func (m memVectors) Close() error { return nil }

func oneHot(i int) []float32 {
	v := vecmath.Zero(vecmath.Dim)
	v[i] = 1
	return v
}

type fixture struct {
	store  *storage.SQLiteStore
	vecs   memVectors
	engine *Engine
}

func newFixture(t *testing.T, params Params) *fixture {
	t.Helper()
	store, err := storage.NewSQLiteStore(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("NewSQLiteStore: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	vecs := memVectors{}
	svc := interest.NewService(store, vecs, nil, interest.DefaultParams(), zerolog.Nop())
	return &fixture{
		store:  store,
		vecs:   vecs,
		engine: NewEngine(store, vecs, svc, params, zerolog.Nop(), WithExplorer(NoExplore{})),
	}
}

func (f *fixture) add(t *testing.T, id, source string, v []float32, published *time.Time) {
	t.Helper()
	if _, err := f.store.AddItem(&storage.Item{ItemID: id, URL: "https://example.com/" + id, Title: "title " + id, Source: source, PublishedAt: published}); err != nil {
		t.Fatal(err)
	}
	if v != nil {
		f.vecs[id] = v
		f.store.MarkItemEmbedded(id, id, "", time.Now())
	}
}

func TestScoreItems_ClickedItemRanksFirst(t *testing.T) {
	params := DefaultParams()
	params.Epsilon = 0
	f := newFixture(t, params)
	now := time.Now().UTC().Truncate(time.Second)

	f.add(t, "i1", "", oneHot(0), nil)
	f.add(t, "i2", "", oneHot(1), nil)
	f.add(t, "i3", "", oneHot(2), nil)
	f.store.AddClick(&storage.ClickEvent{ItemID: "i1", ClickedAt: now.Add(-time.Minute)})

	got, err := f.engine.ScoreItems(context.Background(), []string{"i1", "i2", "i3"}, now)
	if err != nil {
		t.Fatalf("ScoreItems: %v", err)
	}
	if len(got) != 3 {
		t.Fatalf("got %d items, want 3", len(got))
	}
	if got[0].ItemID != "i1" {
		t.Errorf("first = %s, want i1", got[0].ItemID)
	}
	// Orthogonal items sit at cosine 0, i.e. 0.5 on the unit scale.
	want := params.WLong*0.5 + params.WShort*0.5
	if math.Abs(got[2].Score-want) > 1e-6 {
		t.Errorf("orthogonal score = %v, want %v", got[2].Score, want)
	}
	if got[0].URL != "https://example.com/i1" || got[0].Title != "title i1" {
		t.Errorf("metadata not carried: %+v", got[0])
	}
}

func TestScoreItems_SkipsItemsWithoutVectors(t *testing.T) {
	f := newFixture(t, DefaultParams())
	f.add(t, "has", "", oneHot(0), nil)
	f.add(t, "none", "", nil, nil)

	got, err := f.engine.ScoreItems(context.Background(), []string{"none", "has", "unknown", "has"}, time.Now())
	if err != nil {
		t.Fatalf("ScoreItems: %v", err)
	}
	if len(got) != 1 || got[0].ItemID != "has" {
		t.Errorf("got %+v, want only 'has'", got)
	}
}

func TestScoreItems_Empty(t *testing.T) {
	f := newFixture(t, DefaultParams())
	got, err := f.engine.ScoreItems(context.Background(), nil, time.Now())
	if err != nil || len(got) != 0 {
		t.Errorf("ScoreItems(nil) = %v, %v", got, err)
	}
}

func TestScoreItems_ShownPenaltyAndPriors(t *testing.T) {
	params := DefaultParams()
	f := newFixture(t, params)
	now := time.Now().UTC().Truncate(time.Second)

	f.add(t, "shown", "hn", oneHot(0), nil)
	f.add(t, "fresh", "hn", oneHot(1), nil)
	f.add(t, "liked", "lobsters", oneHot(2), nil)
	f.store.LogRecommendations("r1", now.Add(-time.Hour), []storage.RecLog{{ItemID: "shown", Score: 1}})
	f.store.SetModelParam("source:lobsters", "0.1")
	f.store.SetModelParam("source:broken", "not-a-number")

	got, err := f.engine.ScoreItems(context.Background(), []string{"shown", "fresh", "liked"}, now)
	if err != nil {
		t.Fatalf("ScoreItems: %v", err)
	}
	scores := map[string]float64{}
	for _, it := range got {
		scores[it.ItemID] = it.Score
	}
	if math.Abs(scores["fresh"]-scores["shown"]-0.12) > 1e-9 {
		t.Errorf("shown penalty: fresh=%v shown=%v", scores["fresh"], scores["shown"])
	}
	if math.Abs(scores["liked"]-scores["fresh"]-params.WSrc*0.1) > 1e-9 {
		t.Errorf("source prior: liked=%v fresh=%v", scores["liked"], scores["fresh"])
	}
	if got[0].ItemID != "liked" || got[2].ItemID != "shown" {
		t.Errorf("order = %s, %s, %s", got[0].ItemID, got[1].ItemID, got[2].ItemID)
	}
}

func TestScoreItems_ShownOutsideWindow(t *testing.T) {
	f := newFixture(t, DefaultParams())
	now := time.Now().UTC()
	f.add(t, "a", "", oneHot(0), nil)
	f.add(t, "b", "", oneHot(1), nil)
	f.store.LogRecommendations("r1", now.Add(-48*time.Hour), []storage.RecLog{{ItemID: "a"}})

	got, _ := f.engine.ScoreItems(context.Background(), []string{"a", "b"}, now)
	if got[0].Score != got[1].Score {
		t.Errorf("servings older than 24h should not penalize: %v vs %v", got[0].Score, got[1].Score)
	}
}

func TestScoreItems_Freshness(t *testing.T) {
	params := DefaultParams()
	f := newFixture(t, params)
	now := time.Now().UTC().Truncate(time.Second)
	threeDays := now.Add(-72 * time.Hour)

	f.add(t, "now", "", oneHot(0), &now)
	f.add(t, "old", "", oneHot(1), &threeDays)
	f.add(t, "undated", "", oneHot(2), nil)

	got, _ := f.engine.ScoreItems(context.Background(), []string{"now", "old", "undated"}, now)
	scores := map[string]float64{}
	for _, it := range got {
		scores[it.ItemID] = it.Score
	}
	base := scores["undated"]
	if math.Abs(scores["now"]-base-params.WTime) > 1e-9 {
		t.Errorf("fresh item bonus = %v, want %v", scores["now"]-base, params.WTime)
	}
	if math.Abs(scores["old"]-base-params.WTime*0.5) > 1e-6 {
		t.Errorf("one half-life bonus = %v, want %v", scores["old"]-base, params.WTime*0.5)
	}
}

func TestEpsilonGreedy_BoostsLowerHalf(t *testing.T) {
	items := []ScoredItem{
		{ItemID: "a", Score: 0.9},
		{ItemID: "b", Score: 0.8},
		{ItemID: "c", Score: 0.7},
		{ItemID: "d", Score: 0.6},
	}
	for seed := uint64(1); seed <= 20; seed++ {
		g := NewEpsilonGreedy(1, 0.01, rand.New(rand.NewPCG(seed, seed)))
		out := g.Explore(items)

		boosted := -1
		for i, it := range out {
			if it.Explored {
				if boosted != -1 {
					t.Fatal("more than one item boosted")
				}
				boosted = i
			}
		}
		if boosted < 2 {
			t.Fatalf("seed %d: boosted index %d, want lower half", seed, boosted)
		}
		if math.Abs(out[boosted].Score-(items[boosted].Score+0.01)) > 1e-12 {
			t.Errorf("boost = %v", out[boosted].Score-items[boosted].Score)
		}
	}
	for _, it := range items {
		if it.Explored {
			t.Error("input slice was modified")
		}
	}
}

func TestEpsilonGreedy_SingleItem(t *testing.T) {
	g := NewEpsilonGreedy(1, 0.01, rand.New(rand.NewPCG(7, 7)))
	out := g.Explore([]ScoredItem{{ItemID: "only", Score: 0.5}})
	if !out[0].Explored || math.Abs(out[0].Score-0.51) > 1e-12 {
		t.Errorf("single item should be eligible: %+v", out[0])
	}
}

func TestEpsilonGreedy_ZeroEpsilon(t *testing.T) {
	g := NewEpsilonGreedy(0, 0.01, nil)
	out := g.Explore([]ScoredItem{{ItemID: "a", Score: 1}, {ItemID: "b", Score: 0}})
	for _, it := range out {
		if it.Explored {
			t.Error("epsilon 0 must never explore")
		}
	}
}

func TestScoreItems_ExplorationResorts(t *testing.T) {
	params := DefaultParams()
	params.ExploreBoost = 1
	f := newFixture(t, params)
	f.engine.explorer = NewEpsilonGreedy(1, 1, rand.New(rand.NewPCG(3, 3)))
	f.add(t, "a", "", oneHot(0), nil)
	f.add(t, "b", "", oneHot(1), nil)
	f.store.AddClick(&storage.ClickEvent{ItemID: "a", ClickedAt: time.Now()})

	got, err := f.engine.ScoreItems(context.Background(), []string{"a", "b"}, time.Now())
	if err != nil {
		t.Fatalf("ScoreItems: %v", err)
	}
	if got[0].ItemID != "b" || !got[0].Explored {
		t.Errorf("boosted item should be re-sorted to the top: %+v", got)
	}
}

func TestScoreItems_FutureDateCapsFreshness(t *testing.T) {
	params := DefaultParams()
	params.Epsilon = 0
	f := newFixture(t, params)
	now := time.Now().UTC().Truncate(time.Second)
	future := now.Add(30 * 24 * time.Hour)
	current := now

	f.add(t, "future", "", oneHot(0), &future)
	f.add(t, "current", "", oneHot(1), &current)

	got, err := f.engine.ScoreItems(context.Background(), []string{"future", "current"}, now)
	if err != nil {
		t.Fatalf("ScoreItems: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("got %d items, want 2", len(got))
	}
	// Empty profile: both cosines map to 0.5 and freshness tops out at 1.
	want := params.WLong*0.5 + params.WShort*0.5 + params.WTime
	for _, it := range got {
		if math.Abs(it.Score-want) > 1e-9 {
			t.Errorf("%s score = %v, want %v", it.ItemID, it.Score, want)
		}
	}
}

package interest

import (
	"context"
	"errors"
	"math"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/matthewjhunter/onboard/internal/extract"
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

type stubExtractor struct {
	text  string
	calls int
}

func (s *stubExtractor) Extract(_ context.Context, url string) extract.Result {
	s.calls++
	return extract.Result{Title: url, Text: s.text}
}

func oneHot(i int) []float32 {
	v := vecmath.Zero(vecmath.Dim)
	v[i] = 1
	return v
}

func newTestStore(t *testing.T) *storage.SQLiteStore {
	t.Helper()
	store, err := storage.NewSQLiteStore(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("NewSQLiteStore: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return store
}

func addEmbedded(t *testing.T, store *storage.SQLiteStore, vecs memVectors, id, source string, v []float32) {
	t.Helper()
	if _, err := store.AddItem(&storage.Item{ItemID: id, URL: "https://example.com/" + id, Title: id, Source: source}); err != nil {
		t.Fatal(err)
	}
	vecs[id] = v
	if err := store.MarkItemEmbedded(id, id, "", time.Now()); err != nil {
		t.Fatal(err)
	}
}

func TestComputeProfiles_Empty(t *testing.T) {
	svc := NewService(newTestStore(t), memVectors{}, nil, DefaultParams(), zerolog.Nop())
	p, err := svc.ComputeProfiles(context.Background(), time.Now())
	if err != nil {
		t.Fatalf("ComputeProfiles: %v", err)
	}
	if len(p.Short) != vecmath.Dim || len(p.Long) != vecmath.Dim {
		t.Errorf("vector widths = %d/%d", len(p.Short), len(p.Long))
	}
	if p.Magnitudes.Short != 0 || p.Magnitudes.Long != 0 {
		t.Errorf("empty history should give zero magnitudes: %+v", p.Magnitudes)
	}
}

func TestComputeProfiles_BookmarksOnlyFeedLong(t *testing.T) {
	store := newTestStore(t)
	vecs := memVectors{}
	addEmbedded(t, store, vecs, "b1", storage.SourceBookmark, oneHot(0))
	addEmbedded(t, store, vecs, "b2", storage.SourceBookmark, oneHot(1))

	svc := NewService(store, vecs, nil, DefaultParams(), zerolog.Nop())
	p, err := svc.ComputeProfiles(context.Background(), time.Now())
	if err != nil {
		t.Fatalf("ComputeProfiles: %v", err)
	}
	if p.Magnitudes.Long <= 0 {
		t.Errorf("long magnitude = %v, want > 0", p.Magnitudes.Long)
	}
	if p.Magnitudes.Short != 0 {
		t.Errorf("short magnitude = %v, want 0", p.Magnitudes.Short)
	}
}

func TestComputeProfiles_SingleClick(t *testing.T) {
	store := newTestStore(t)
	vecs := memVectors{}
	now := time.Now().UTC().Truncate(time.Second)
	addEmbedded(t, store, vecs, "i1", "rss", oneHot(3))
	store.AddClick(&storage.ClickEvent{ItemID: "i1", ClickedAt: now})

	svc := NewService(store, vecs, nil, DefaultParams(), zerolog.Nop())
	p, err := svc.ComputeProfiles(context.Background(), now)
	if err != nil {
		t.Fatalf("ComputeProfiles: %v", err)
	}
	if math.Abs(float64(p.Short[3])-1) > 1e-6 || math.Abs(float64(p.Long[3])-1) > 1e-6 {
		t.Errorf("single click should point both vectors at the item: %v %v", p.Short[3], p.Long[3])
	}
	if math.Abs(p.Magnitudes.Short-1) > 1e-6 {
		t.Errorf("short magnitude = %v, want 1", p.Magnitudes.Short)
	}
}

func TestComputeProfiles_NewestFirstOrder(t *testing.T) {
	store := newTestStore(t)
	vecs := memVectors{}
	now := time.Now().UTC().Truncate(time.Second)
	addEmbedded(t, store, vecs, "recent", "rss", oneHot(0))
	addEmbedded(t, store, vecs, "older", "rss", oneHot(1))
	store.AddClick(&storage.ClickEvent{ItemID: "recent", ClickedAt: now})
	store.AddClick(&storage.ClickEvent{ItemID: "older", ClickedAt: now.Add(-time.Hour)})

	params := DefaultParams()
	svc := NewService(store, vecs, nil, params, zerolog.Nop())
	p, err := svc.ComputeProfiles(context.Background(), now)
	if err != nil {
		t.Fatalf("ComputeProfiles: %v", err)
	}

	// Replay by hand: recent first, then older.
	want := vecmath.Zero(vecmath.Dim)
	want = vecmath.Blend(want, oneHot(0), params.BaseClickWt)
	aOlder := params.BaseClickWt * math.Exp(-math.Ln2*(1.0/24)/params.HalfLifeShortDays)
	want = vecmath.Blend(want, oneHot(1), aOlder)

	if math.Abs(float64(p.Short[0]-want[0])) > 1e-4 || math.Abs(float64(p.Short[1]-want[1])) > 1e-4 {
		t.Errorf("short = (%v, %v), want (%v, %v)", p.Short[0], p.Short[1], want[0], want[1])
	}
	// Folding oldest first would leave the two components equal.
	if p.Short[0] <= p.Short[1] {
		t.Errorf("newest-first fold should favour the recent item: %v vs %v", p.Short[0], p.Short[1])
	}
}

func TestComputeProfiles_SkipsMissingVectorsAndChunks(t *testing.T) {
	store := newTestStore(t)
	vecs := memVectors{}
	now := time.Now().UTC().Truncate(time.Second)
	addEmbedded(t, store, vecs, "has", "rss", oneHot(7))
	for i := 0; i < 5; i++ {
		store.AddClick(&storage.ClickEvent{ItemID: "ghost", ClickedAt: now.Add(-time.Duration(i) * time.Minute)})
	}
	store.AddClick(&storage.ClickEvent{ItemID: "has", ClickedAt: now.Add(-10 * time.Minute)})

	params := DefaultParams()
	params.ChunkSize = 2
	svc := NewService(store, vecs, nil, params, zerolog.Nop())
	p, err := svc.ComputeProfiles(context.Background(), now)
	if err != nil {
		t.Fatalf("ComputeProfiles: %v", err)
	}
	if p.Short[7] < 0.99 {
		t.Errorf("the embedded click should define the profile: %v", p.Short[7])
	}
}

func TestComputeProfiles_NilVectorStore(t *testing.T) {
	store := newTestStore(t)
	store.AddClick(&storage.ClickEvent{ItemID: "x", ClickedAt: time.Now()})
	svc := NewService(store, nil, nil, DefaultParams(), zerolog.Nop())
	p, err := svc.ComputeProfiles(context.Background(), time.Now())
	if err != nil {
		t.Fatalf("ComputeProfiles: %v", err)
	}
	if p.Magnitudes.Long != 0 {
		t.Errorf("no vectors should mean zero profile")
	}
}

func TestUpdateFromClick(t *testing.T) {
	store := newTestStore(t)
	store.AddItem(&storage.Item{ItemID: "a", URL: "https://example.com/a", Title: "Rust kernel modules"})
	ext := &stubExtractor{text: "Writing drivers with rust bindings"}

	svc := NewService(store, nil, ext, DefaultParams(), zerolog.Nop())
	ts := time.Date(2026, 5, 1, 0, 0, 0, 0, time.UTC)
	n, err := svc.UpdateFromClick(context.Background(), "a", ts)
	if err != nil {
		t.Fatalf("UpdateFromClick: %v", err)
	}
	// rust, kernel, modules, writing, drivers, bindings
	if n != 6 {
		t.Errorf("updated %d tokens, want 6", n)
	}
	if ext.calls != 1 {
		t.Errorf("extractor called %d times", ext.calls)
	}

	all, _ := store.GetAllTopics()
	byTok := map[string]storage.Topic{}
	for _, tp := range all {
		byTok[tp.Token] = tp
	}
	rust := byTok["rust"]
	if math.Abs(rust.WtLong-0.3) > 1e-9 || math.Abs(rust.WtShort-1.0) > 1e-9 {
		t.Errorf("rust weights = %v/%v, want 0.3/1.0", rust.WtLong, rust.WtShort)
	}

	// A second click accumulates.
	svc.UpdateFromClick(context.Background(), "a", ts.Add(time.Hour))
	top, _ := store.GetTopTopics(1)
	if math.Abs(top[0].WtShort-2.0) > 1e-9 {
		t.Errorf("accumulated short weight = %v, want 2", top[0].WtShort)
	}
	if !top[0].LastUpdated.Equal(ts.Add(time.Hour)) {
		t.Errorf("last_updated = %v", top[0].LastUpdated)
	}
}

func TestUpdateFromClick_UnknownItem(t *testing.T) {
	svc := NewService(newTestStore(t), nil, nil, DefaultParams(), zerolog.Nop())
	n, err := svc.UpdateFromClick(context.Background(), "missing", time.Now())
	if err != nil || n != 0 {
		t.Errorf("UpdateFromClick = %d, %v; want 0, nil", n, err)
	}
}

func TestSeedFromBookmark(t *testing.T) {
	store := newTestStore(t)
	store.AddItem(&storage.Item{ItemID: "bm", URL: "u1", Title: "Postgres indexing deep dive", Source: storage.SourceBookmark})
	store.AddItem(&storage.Item{ItemID: "rss", URL: "u2", Title: "Unrelated rss item", Source: "rss"})

	svc := NewService(store, nil, nil, DefaultParams(), zerolog.Nop())
	n, err := svc.SeedFromBookmark("bm", time.Now())
	if err != nil {
		t.Fatalf("SeedFromBookmark: %v", err)
	}
	if n != 4 {
		t.Errorf("seeded %d tokens, want 4", n)
	}
	top, _ := store.GetAllTopics()
	for _, tp := range top {
		// max(0.05, 0.3*0.2) = 0.06
		if math.Abs(tp.WtLong-0.06) > 1e-9 || tp.WtShort != 0 {
			t.Errorf("%s weights = %v/%v, want 0.06/0", tp.Token, tp.WtLong, tp.WtShort)
		}
	}

	if n, _ := svc.SeedFromBookmark("rss", time.Now()); n != 0 {
		t.Errorf("non-bookmark item seeded %d tokens", n)
	}
	if n, _ := svc.SeedFromBookmark("missing", time.Now()); n != 0 {
		t.Errorf("missing item seeded %d tokens", n)
	}
}

func TestSeedFromBookmark_MinimumBump(t *testing.T) {
	store := newTestStore(t)
	store.AddItem(&storage.Item{ItemID: "bm", URL: "u1", Title: "compilers", Source: storage.SourceBookmark})
	params := DefaultParams()
	params.BetaLong = 0.1
	svc := NewService(store, nil, nil, params, zerolog.Nop())
	svc.SeedFromBookmark("bm", time.Now())
	top, _ := store.GetAllTopics()
	if len(top) != 1 || math.Abs(top[0].WtLong-0.05) > 1e-9 {
		t.Errorf("topics = %+v, want compilers at 0.05", top)
	}
}

func TestApplyFeedback(t *testing.T) {
	store := newTestStore(t)
	store.AddItem(&storage.Item{ItemID: "a", URL: "u", Title: "Distributed consensus"})
	store.LogRecommendations("rec", time.Now(), []storage.RecLog{{ItemID: "a", Score: 0.5}})
	svc := NewService(store, nil, nil, DefaultParams(), zerolog.Nop())

	if _, err := svc.ApplyFeedback("a", "meh", time.Now()); !errors.Is(err, ErrInvalidSignal) {
		t.Errorf("err = %v, want ErrInvalidSignal", err)
	}

	n, err := svc.ApplyFeedback("a", "up", time.Now())
	if err != nil || n != 2 {
		t.Fatalf("ApplyFeedback up = %d, %v", n, err)
	}
	svc.ApplyFeedback("a", "down", time.Now())
	top, _ := store.GetAllTopics()
	for _, tp := range top {
		if math.Abs(tp.WtLong) > 1e-9 || math.Abs(tp.WtShort) > 1e-9 {
			t.Errorf("up then down should cancel: %+v", tp)
		}
	}

	if ok, _ := store.MarkRecommendationClicked("a"); !ok {
		t.Error("served row should still exist")
	}
}

func TestGetTopics(t *testing.T) {
	store := newTestStore(t)
	store.BumpTopics([]string{"low"}, 0.1, 0.1, time.Now())
	store.BumpTopics([]string{"high"}, 1, 1, time.Now())
	svc := NewService(store, nil, nil, DefaultParams(), zerolog.Nop())
	got, err := svc.GetTopics(1)
	if err != nil {
		t.Fatalf("GetTopics: %v", err)
	}
	if len(got) != 1 || got[0].Token != "high" {
		t.Errorf("GetTopics = %+v", got)
	}
}

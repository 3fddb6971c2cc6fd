package offline

import (
	"context"
	"errors"
	"net/http"
	"reflect"
	"testing"

	"github.com/hqtran/keyseek/models"
)

func singleFrameCatalog() []Video {
	return []Video{
		{
			ID:        "v-bike",
			Title:     "person riding a bicycle in the park",
			Objects:   []string{"bicycle", "person"},
			Keyframes: []Keyframe{{ID: "v-bike_kf_1", TimestampMS: 5000}},
		},
		{
			ID:        "v-boat",
			Title:     "fishing boats on the river at dawn",
			Objects:   []string{"boat"},
			Keyframes: []Keyframe{{ID: "v-boat_kf_1", TimestampMS: 7000}},
		},
	}
}

func newTestEngine(t *testing.T, videos []Video) *Engine {
	t.Helper()
	e, err := NewEngine(Config{Catalog: videos})
	if err != nil {
		t.Fatalf("NewEngine: %v", err)
	}
	return e
}

func TestBicycleQueryNarrowsToSingleMatch(t *testing.T) {
	e := newTestEngine(t, singleFrameCatalog())
	ctx := context.Background()

	sess, err := e.CreateSession(ctx)
	if err != nil {
		t.Fatalf("CreateSession: %v", err)
	}
	resp, err := e.QueryText(ctx, sess.SessionID, models.QueryRequest{TextQuery: "bicycle"})
	if err != nil {
		t.Fatalf("QueryText: %v", err)
	}
	if len(resp.Results) != 1 {
		t.Fatalf("got %d results, want exactly the matching keyframe", len(resp.Results))
	}
	if resp.Results[0].VideoID != "v-bike" {
		t.Fatalf("matched %s, want v-bike", resp.Results[0].VideoID)
	}
}

func TestEmptyQueryRejectedWithoutSideEffects(t *testing.T) {
	e := newTestEngine(t, singleFrameCatalog())
	ctx := context.Background()
	sess, _ := e.CreateSession(ctx)

	_, err := e.QueryText(ctx, sess.SessionID, models.QueryRequest{})
	var apiErr *models.APIError
	if !errors.As(err, &apiErr) || apiErr.StatusCode != http.StatusUnprocessableEntity {
		t.Fatalf("want 422 APIError, got %v", err)
	}

	hist, err := e.History(ctx, sess.SessionID)
	if err != nil {
		t.Fatalf("History: %v", err)
	}
	if len(hist.Queries) != 0 {
		t.Fatalf("rejected query must not be recorded, history has %d entries", len(hist.Queries))
	}
}

func TestOrderingDescendingWithStableTies(t *testing.T) {
	videos := []Video{
		{ID: "weak", Title: "river", Keyframes: []Keyframe{{ID: "weak_1"}}},
		{ID: "tie-a", Title: "river boat", Keyframes: []Keyframe{{ID: "tie-a_1"}}},
		{ID: "strong", Title: "river boat dawn", Keyframes: []Keyframe{{ID: "strong_1"}}},
		{ID: "tie-b", Title: "boat dawn", Keyframes: []Keyframe{{ID: "tie-b_1"}}},
	}
	e := newTestEngine(t, videos)
	sess, _ := e.CreateSession(context.Background())

	resp, err := e.QueryText(context.Background(), sess.SessionID, models.QueryRequest{TextQuery: "river boat dawn"})
	if err != nil {
		t.Fatalf("QueryText: %v", err)
	}
	var order []string
	for _, r := range resp.Results {
		order = append(order, r.VideoID)
	}
	// tie-a and tie-b both score 2; catalog insertion order breaks the tie.
	want := []string{"strong", "tie-a", "tie-b", "weak"}
	if !reflect.DeepEqual(order, want) {
		t.Fatalf("order = %v, want %v", order, want)
	}
	for i, r := range resp.Results {
		if r.Rank != i+1 {
			t.Fatalf("rank[%d] = %d", i, r.Rank)
		}
		if r.Score < 0 || r.Score > 1 {
			t.Fatalf("score out of [0,1]: %v", r.Score)
		}
	}
}

func TestObjectsAndLocationFilters(t *testing.T) {
	e := newTestEngine(t, singleFrameCatalog())
	sess, _ := e.CreateSession(context.Background())

	resp, err := e.QueryText(context.Background(), sess.SessionID, models.QueryRequest{TextQuery: "objects: bicycle,person"})
	if err != nil {
		t.Fatalf("QueryText: %v", err)
	}
	if len(resp.Results) != 1 || resp.Results[0].VideoID != "v-bike" {
		t.Fatalf("object filter results: %+v", resp.Results)
	}
}

func TestNoMatchFallsBackToDemoSlice(t *testing.T) {
	e := newTestEngine(t, singleFrameCatalog())
	sess, _ := e.CreateSession(context.Background())

	resp, err := e.QueryText(context.Background(), sess.SessionID, models.QueryRequest{TextQuery: "zzzunmatched"})
	if err != nil {
		t.Fatalf("QueryText: %v", err)
	}
	if len(resp.Results) != 2 {
		t.Fatalf("fallback should surface the demo slice, got %d results", len(resp.Results))
	}
}

func TestHistoryRecordsQueries(t *testing.T) {
	e := newTestEngine(t, singleFrameCatalog())
	ctx := context.Background()
	sess, _ := e.CreateSession(ctx)

	if _, err := e.QueryText(ctx, sess.SessionID, models.QueryRequest{TextQuery: "bicycle"}); err != nil {
		t.Fatalf("QueryText: %v", err)
	}
	if _, err := e.QueryImage(ctx, sess.SessionID, models.QueryRequest{Image: "aGVsbG8=", TextQuery: "boat"}); err != nil {
		t.Fatalf("QueryImage: %v", err)
	}

	hist, err := e.History(ctx, sess.SessionID)
	if err != nil {
		t.Fatalf("History: %v", err)
	}
	if len(hist.Queries) != 2 {
		t.Fatalf("history length = %d, want 2", len(hist.Queries))
	}
	if hist.Queries[0].TextQuery != "bicycle" {
		t.Fatalf("first history entry = %+v", hist.Queries[0])
	}
}

func TestSampleCatalogSearchable(t *testing.T) {
	e := newTestEngine(t, nil) // falls back to the embedded sample set
	sess, _ := e.CreateSession(context.Background())

	resp, err := e.QueryText(context.Background(), sess.SessionID, models.QueryRequest{TextQuery: "cycling location: ho chi minh"})
	if err != nil {
		t.Fatalf("QueryText: %v", err)
	}
	if len(resp.Results) == 0 {
		t.Fatal("sample catalog should match a cycling query")
	}
	if resp.Results[0].VideoID != "L23_V015" {
		t.Fatalf("location bonus should rank L23_V015 first, got %s", resp.Results[0].VideoID)
	}
	if resp.Results[0].FrameNumber == 0 {
		t.Fatal("frame numbers should be derived from keyframe timestamps")
	}
}

func TestBleveModeRanksAndFallsBack(t *testing.T) {
	e, err := NewEngine(Config{Catalog: singleFrameCatalog(), Mode: ModeBleve})
	if err != nil {
		t.Fatalf("NewEngine(bleve): %v", err)
	}
	sess, _ := e.CreateSession(context.Background())

	resp, err := e.QueryText(context.Background(), sess.SessionID, models.QueryRequest{TextQuery: "bicycle"})
	if err != nil {
		t.Fatalf("QueryText: %v", err)
	}
	if len(resp.Results) == 0 || resp.Results[0].VideoID != "v-bike" {
		t.Fatalf("bleve ranking: %+v", resp.Results)
	}
	for _, r := range resp.Results {
		if r.Score < 0 || r.Score > 1 {
			t.Fatalf("bleve score not normalized: %v", r.Score)
		}
	}
}

func TestParseQuery(t *testing.T) {
	p := parseQuery("person riding location: ho chi minh, objects: bicycle, person")
	if p.Location != "ho chi minh" {
		t.Fatalf("location = %q", p.Location)
	}
	if !reflect.DeepEqual(p.Objects, []string{"bicycle", "person"}) {
		t.Fatalf("objects = %v", p.Objects)
	}
	if !reflect.DeepEqual(p.Terms, []string{"person", "riding"}) {
		t.Fatalf("terms = %v", p.Terms)
	}
}

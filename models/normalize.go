package models

import (
	"encoding/json"
	"fmt"
	"math"
)

// DefaultFPS is assumed whenever an item carries no frame rate of its own.
const DefaultFPS = 30

// DecodeMetadata resolves the API's metadata field, which arrives either as
// a JSON object or as a JSON-encoded string containing one. Anything
// unparseable yields an empty map rather than an error: metadata is
// best-effort presentation data.
func DecodeMetadata(raw json.RawMessage) map[string]any {
	out := map[string]any{}
	if len(raw) == 0 {
		return out
	}
	if raw[0] == '"' {
		var inner string
		if err := json.Unmarshal(raw, &inner); err != nil {
			return out
		}
		raw = json.RawMessage(inner)
	}
	_ = json.Unmarshal(raw, &out)
	return out
}

// FrameForTimestamp converts a keyframe timestamp in milliseconds to a frame
// index at the given frame rate.
func FrameForTimestamp(tsMS int64, fps float64) int {
	if fps <= 0 {
		fps = DefaultFPS
	}
	return int(math.Floor(float64(tsMS) / 1000.0 * fps))
}

// TimestampForFrame is the inverse of FrameForTimestamp. The round trip is
// exact to within one frame interval (1000/fps milliseconds).
func TimestampForFrame(frame int, fps float64) int64 {
	if fps <= 0 {
		fps = DefaultFPS
	}
	return int64(math.Floor(float64(frame) / fps * 1000.0))
}

// DisplayScore renders an API score in [0,1] the way the result cards show
// it: scaled by 100 with three decimals.
func DisplayScore(score float64) string {
	return fmt.Sprintf("%.3f", score*100)
}

// Normalize converts a wire result into the canonical client shape. It is
// the single place where metadata ambiguity and the frame/timestamp
// derivation rule are resolved; consumers never touch raw metadata.
func Normalize(r QueryResult) ResultItem {
	meta := DecodeMetadata(r.Metadata)

	item := ResultItem{
		ID:          r.KeyframeID,
		VideoID:     r.VideoID,
		Thumbnail:   r.ImageURL,
		FrameNumber: r.FrameNumber,
		TimestampMS: r.TimestampMS,
		FPS:         metaFloat(meta, "fps", DefaultFPS),
		Score:       r.Score,
		Rank:        r.Rank,
		Metadata:    meta,
	}

	item.Title = metaString(meta, "title")
	if item.Title == "" {
		item.Title = r.VideoID
	}
	item.Description = metaString(meta, "text")
	if item.Description == "" {
		item.Description = metaString(meta, "description")
	}
	if item.Thumbnail == "" {
		item.Thumbnail = metaString(meta, "thumbnail_url")
	}
	item.DurationSec = metaFloat(meta, "duration", 0)
	item.Tags = metaStrings(meta, "keyword")
	if item.Tags == nil {
		item.Tags = metaStrings(meta, "tags")
	}

	// frame_number and timestamp_ms are mutually derivable; fill in
	// whichever side the API omitted.
	if item.TimestampMS == 0 && item.FrameNumber > 0 {
		item.TimestampMS = TimestampForFrame(item.FrameNumber, item.FPS)
	} else if item.FrameNumber == 0 && item.TimestampMS > 0 {
		item.FrameNumber = FrameForTimestamp(item.TimestampMS, item.FPS)
	}
	return item
}

// NormalizeAll preserves the API's ordering; results are never re-sorted
// client-side.
func NormalizeAll(rs []QueryResult) []ResultItem {
	items := make([]ResultItem, 0, len(rs))
	for _, r := range rs {
		items = append(items, Normalize(r))
	}
	return items
}

func metaString(meta map[string]any, key string) string {
	if v, ok := meta[key].(string); ok {
		return v
	}
	return ""
}

func metaFloat(meta map[string]any, key string, def float64) float64 {
	switch v := meta[key].(type) {
	case float64:
		if v > 0 {
			return v
		}
	case int:
		if v > 0 {
			return float64(v)
		}
	case json.Number:
		if f, err := v.Float64(); err == nil && f > 0 {
			return f
		}
	}
	return def
}

func metaStrings(meta map[string]any, key string) []string {
	raw, ok := meta[key].([]any)
	if !ok {
		return nil
	}
	var out []string
	for _, v := range raw {
		if s, ok := v.(string); ok {
			out = append(out, s)
		}
	}
	return out
}

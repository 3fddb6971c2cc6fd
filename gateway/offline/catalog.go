package offline

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"
)

// Video is one catalog entry. Keyframes may be listed explicitly; otherwise
// a small set is synthesized at fixed offsets, the way the demo dataset did.
type Video struct {
	ID           string     `json:"id"`
	Title        string     `json:"title"`
	Description  string     `json:"description,omitempty"`
	Tags         []string   `json:"tags,omitempty"`
	Category     string     `json:"category,omitempty"`
	Location     string     `json:"location,omitempty"`
	Objects      []string   `json:"objects,omitempty"`
	ASRText      string     `json:"asr_text,omitempty"`
	DurationSec  float64    `json:"duration_sec,omitempty"`
	FPS          float64    `json:"fps,omitempty"`
	ThumbnailURL string     `json:"thumbnail_url,omitempty"`
	VideoURL     string     `json:"video_url,omitempty"`
	WatchURL     string     `json:"watch_url,omitempty"`
	Keyframes    []Keyframe `json:"keyframes,omitempty"`
}

type Keyframe struct {
	ID          string `json:"id"`
	TimestampMS int64  `json:"timestamp_ms"`
	ImageURL    string `json:"image_url,omitempty"`
}

// searchText is the flattened haystack the naive scorer matches against.
func (v Video) searchText() string {
	parts := []string{v.Title, v.Description, strings.Join(v.Tags, " "), v.Category,
		v.Location, strings.Join(v.Objects, " "), v.ASRText}
	return strings.ToLower(strings.Join(parts, " "))
}

// synthesized keyframe offsets, seconds from start.
var defaultKeyframeOffsets = []int64{5, 15, 30}

func (v Video) keyframes() []Keyframe {
	if len(v.Keyframes) > 0 {
		return v.Keyframes
	}
	kfs := make([]Keyframe, 0, len(defaultKeyframeOffsets))
	for i, sec := range defaultKeyframeOffsets {
		if v.DurationSec > 0 && float64(sec) > v.DurationSec {
			sec = int64(v.DurationSec)
		}
		kfs = append(kfs, Keyframe{
			ID:          fmt.Sprintf("%s_kf_%d", v.ID, i+1),
			TimestampMS: sec * 1000,
			ImageURL:    v.ThumbnailURL,
		})
	}
	return kfs
}

// LoadCatalog reads a JSON array of videos from disk.
func LoadCatalog(path string) ([]Video, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read catalog: %w", err)
	}
	var videos []Video
	if err := json.Unmarshal(b, &videos); err != nil {
		return nil, fmt.Errorf("parse catalog %s: %w", path, err)
	}
	return videos, nil
}

// SampleCatalog is the embedded demo set used when no catalog file is
// configured.
func SampleCatalog() []Video {
	return []Video{
		{
			ID:          "L23_V015",
			Title:       "Stage 15 finale - sprint into the final kilometres",
			Description: "Cycling race coverage, riders contest the bunch sprint",
			Tags:        []string{"cycling", "race", "sports"},
			Category:    "sports",
			Location:    "ho chi minh",
			Objects:     []string{"bicycle", "person"},
			ASRText:     "ở góc quay này thì khá rõ là người đã về trước",
			DurationSec: 370,
			WatchURL:    "https://youtube.com/watch?v=6dJAWIYPpYs",
			Keyframes: []Keyframe{
				{ID: "L23_V015_F074", TimestampMS: 363000},
			},
		},
		{
			ID:          "L23_V016",
			Title:       "Military zone seven riders miss out in the sprint",
			Description: "Final sprint decided on the line",
			Tags:        []string{"cycling", "sprint"},
			Category:    "sports",
			Location:    "tp.hcm",
			Objects:     []string{"bicycle", "person", "helmet"},
			DurationSec: 412,
			Keyframes: []Keyframe{
				{ID: "L23_V016_F057", TimestampMS: 281000},
			},
		},
		{
			ID:          "L21_V001",
			Title:       "Evening news bulletin - flood relief update",
			Description: "Studio anchor presents flood relief coverage",
			Tags:        []string{"news", "weather"},
			Category:    "news",
			Location:    "hue",
			Objects:     []string{"person", "desk"},
			DurationSec: 1800,
		},
		{
			ID:          "L21_V008",
			Title:       "Street food tour through the old quarter",
			Description: "Walking tour past food stalls at night",
			Tags:        []string{"food", "travel"},
			Category:    "lifestyle",
			Location:    "ha noi",
			Objects:     []string{"person", "motorbike", "table"},
			DurationSec: 645,
		},
		{
			ID:          "L22_V003",
			Title:       "Container port operations at dawn",
			Description: "Cranes load container ships at the harbour",
			Tags:        []string{"industry", "logistics"},
			Category:    "documentary",
			Location:    "hai phong",
			Objects:     []string{"crane", "ship", "container"},
			DurationSec: 920,
		},
	}
}

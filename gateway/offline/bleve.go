package offline

import (
	"strings"

	"github.com/blevesearch/bleve"
)

// bleveIndex ranks catalog entries with full-text scoring instead of the
// naive term counter. Scores are normalized against the best hit so the rest
// of the pipeline keeps working in [0,1].
type bleveIndex struct {
	idx bleve.Index
}

type indexedVideo struct {
	Title       string `json:"title"`
	Description string `json:"description"`
	Tags        string `json:"tags"`
	Category    string `json:"category"`
	Location    string `json:"location"`
	Objects     string `json:"objects"`
	ASRText     string `json:"asr_text"`
}

func newBleveIndex(videos []Video) (*bleveIndex, error) {
	mapping := bleve.NewIndexMapping()
	idx, err := bleve.NewMemOnly(mapping)
	if err != nil {
		return nil, err
	}
	for _, v := range videos {
		doc := indexedVideo{
			Title:       v.Title,
			Description: v.Description,
			Tags:        strings.Join(v.Tags, " "),
			Category:    v.Category,
			Location:    v.Location,
			Objects:     strings.Join(v.Objects, " "),
			ASRText:     v.ASRText,
		}
		if err := idx.Index(v.ID, doc); err != nil {
			return nil, err
		}
	}
	return &bleveIndex{idx: idx}, nil
}

type bleveHit struct {
	id    string
	score float64
}

func (b *bleveIndex) search(q string, k int) ([]bleveHit, error) {
	query := bleve.NewQueryStringQuery(q)
	req := bleve.NewSearchRequestOptions(query, k, 0, false)
	res, err := b.idx.Search(req)
	if err != nil {
		return nil, err
	}
	var out []bleveHit
	for _, h := range res.Hits {
		out = append(out, bleveHit{id: h.ID, score: h.Score})
	}
	return out, nil
}

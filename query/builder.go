// Package query assembles the retrieval API request from the tabbed form's
// independent input channels.
package query

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/hqtran/keyseek/models"
)

// ErrEmptyQuery is returned when every channel is blank; nothing is sent.
var ErrEmptyQuery = errors.New("at least one search field must be provided")

// ValidationError scopes a rejection to the offending form field.
type ValidationError struct {
	Field string
	Msg   string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Msg)
}

// Fields carries the raw form inputs before shaping.
type Fields struct {
	Text    string
	OCRText string
	ASRText string
	ODJSON  string
	// Image is the uploaded payload, base64-encoded, possibly still
	// carrying a data-URL prefix.
	Image string
	// ImageQuery is a textual description for the image channel.
	ImageQuery string
}

// Build merges the channels into one QueryRequest. Textual channels are
// concatenated, in input order, into a single unified text query; object
// names extracted from the detection JSON are appended with the
// "objects: a,b,c" syntax. The raw od_json is forwarded unchanged alongside
// the unified text.
func Build(f Fields) (models.QueryRequest, error) {
	var req models.QueryRequest

	parts := make([]string, 0, 4)
	for _, s := range []string{f.Text, f.OCRText, f.ASRText} {
		if t := strings.TrimSpace(s); t != "" {
			parts = append(parts, t)
		}
	}

	if od := strings.TrimSpace(f.ODJSON); od != "" {
		names, err := objectNames(od)
		if err != nil {
			return models.QueryRequest{}, &ValidationError{Field: "od_json", Msg: err.Error()}
		}
		req.ODJSON = od
		if len(names) > 0 {
			parts = append(parts, "objects: "+strings.Join(names, ","))
		}
	}

	if len(parts) > 0 {
		req.TextQuery = strings.Join(parts, " ")
	}
	req.OCRText = strings.TrimSpace(f.OCRText)
	req.ASRText = strings.TrimSpace(f.ASRText)
	req.ImageQuery = strings.TrimSpace(f.ImageQuery)

	if img := strings.TrimSpace(f.Image); img != "" {
		payload, err := stripDataURL(img)
		if err != nil {
			return models.QueryRequest{}, &ValidationError{Field: "image", Msg: err.Error()}
		}
		req.Image = payload
	}

	if req.IsEmpty() {
		return models.QueryRequest{}, ErrEmptyQuery
	}
	return req, nil
}

// objectNames accepts either a bare array of detections or an object with an
// "objects" array, each element carrying a "name".
func objectNames(odJSON string) ([]string, error) {
	var parsed any
	if err := json.Unmarshal([]byte(odJSON), &parsed); err != nil {
		return nil, fmt.Errorf("invalid object detection JSON: %w", err)
	}

	var detections []any
	switch v := parsed.(type) {
	case []any:
		detections = v
	case map[string]any:
		detections, _ = v["objects"].([]any)
	}

	var names []string
	for _, d := range detections {
		obj, ok := d.(map[string]any)
		if !ok {
			continue
		}
		if name, ok := obj["name"].(string); ok && name != "" {
			names = append(names, name)
		}
	}
	return names, nil
}

// stripDataURL removes a "data:<mime>;base64," prefix if present. The
// remainder must be non-empty, valid base64; transport expects the bare
// payload.
func stripDataURL(s string) (string, error) {
	if strings.HasPrefix(s, "data:") {
		idx := strings.Index(s, ",")
		if idx < 0 {
			return "", errors.New("malformed data URL")
		}
		s = s[idx+1:]
	}
	if s == "" {
		return "", errors.New("empty image payload")
	}
	if _, err := base64.StdEncoding.DecodeString(s); err != nil {
		if _, err := base64.RawStdEncoding.DecodeString(s); err != nil {
			return "", errors.New("image payload is not valid base64")
		}
	}
	return s, nil
}

package models

import "fmt"

// APIError is the normalized form of every transport or retrieval API
// failure: the upstream detail string plus the HTTP status, or status 0 when
// the request never produced a response.
type APIError struct {
	Detail     string `json:"detail"`
	StatusCode int    `json:"status_code"`
}

func (e *APIError) Error() string {
	if e.StatusCode == 0 {
		return e.Detail
	}
	return fmt.Sprintf("API error %d: %s", e.StatusCode, e.Detail)
}

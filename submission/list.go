// Package submission curates the frame list a user assembles while
// searching: (video_id, frame_idx) pairs collected from results or entered
// by hand, exportable as CSV.
package submission

import (
	"encoding/csv"
	"errors"
	"io"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"
)

var (
	ErrNotFound      = errors.New("entry not found")
	ErrNegativeFrame = errors.New("frame index must be non-negative")
	ErrEmptyVideoID  = errors.New("video id must not be empty")
)

// Entry is one curated frame reference.
type Entry struct {
	ID         string    `json:"id"`
	VideoID    string    `json:"video_id"`
	FrameIdx   int       `json:"frame_idx"`
	VideoTitle string    `json:"video_title,omitempty"`
	AddedAt    time.Time `json:"added_at"`
}

// List is one user's curation list. Entries keep insertion order; edits
// touch only the frame index.
type List struct {
	mu      sync.Mutex
	entries []Entry
}

func NewList() *List {
	return &List{}
}

// Add appends an entry for a known video.
func (l *List) Add(videoID string, frameIdx int, title string) (Entry, error) {
	if videoID == "" {
		return Entry{}, ErrEmptyVideoID
	}
	if frameIdx < 0 {
		return Entry{}, ErrNegativeFrame
	}
	e := Entry{
		ID:         uuid.NewString(),
		VideoID:    videoID,
		FrameIdx:   frameIdx,
		VideoTitle: title,
		AddedAt:    time.Now().UTC(),
	}
	l.mu.Lock()
	l.entries = append(l.entries, e)
	l.mu.Unlock()
	return e, nil
}

// AddManual records a frame index with no video attached; the entry gets a
// synthetic video id so the export stays one flat table.
func (l *List) AddManual(frameIdx int) (Entry, error) {
	return l.Add("manual-"+uuid.NewString()[:8], frameIdx, "Manual Entry")
}

// EditFrame replaces the frame index of the identified entry.
func (l *List) EditFrame(id string, frameIdx int) (Entry, error) {
	if frameIdx < 0 {
		return Entry{}, ErrNegativeFrame
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	for i := range l.entries {
		if l.entries[i].ID == id {
			l.entries[i].FrameIdx = frameIdx
			return l.entries[i], nil
		}
	}
	return Entry{}, ErrNotFound
}

func (l *List) Remove(id string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	for i := range l.entries {
		if l.entries[i].ID == id {
			l.entries = append(l.entries[:i], l.entries[i+1:]...)
			return nil
		}
	}
	return ErrNotFound
}

func (l *List) Clear() {
	l.mu.Lock()
	l.entries = nil
	l.mu.Unlock()
}

// Entries returns a copy in insertion order.
func (l *List) Entries() []Entry {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]Entry, len(l.entries))
	copy(out, l.entries)
	return out
}

func (l *List) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.entries)
}

// ExportCSV writes the list as CSV with a header row:
// video_id, frame_idx, video_title, added_at.
func (l *List) ExportCSV(w io.Writer) error {
	cw := csv.NewWriter(w)
	if err := cw.Write([]string{"video_id", "frame_idx", "video_title", "added_at"}); err != nil {
		return err
	}
	for _, e := range l.Entries() {
		rec := []string{
			e.VideoID,
			strconv.Itoa(e.FrameIdx),
			e.VideoTitle,
			e.AddedAt.Format(time.RFC3339),
		}
		if err := cw.Write(rec); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// ExportFilename is the suggested download name, dated like
// video_frames_2026-08-28.csv.
func ExportFilename(now time.Time) string {
	return "video_frames_" + now.Format("2006-01-02") + ".csv"
}

// Manager hands out one list per session id.
type Manager struct {
	mu    sync.Mutex
	lists map[string]*List
}

func NewManager() *Manager {
	return &Manager{lists: make(map[string]*List)}
}

func (m *Manager) For(sessionID string) *List {
	m.mu.Lock()
	defer m.mu.Unlock()
	l, ok := m.lists[sessionID]
	if !ok {
		l = NewList()
		m.lists[sessionID] = l
	}
	return l
}

// Forget drops a session's list.
func (m *Manager) Forget(sessionID string) {
	m.mu.Lock()
	delete(m.lists, sessionID)
	m.mu.Unlock()
}

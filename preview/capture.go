// Package preview holds the timing rules of the frame-capture widget: where
// to seek a player for a keyframe and which frame index the current playback
// position corresponds to.
package preview

import (
	"math"
	"net/url"
	"strconv"
	"strings"

	"github.com/hqtran/keyseek/models"
)

// SeekSeconds is the whole-second position a player is seeked to for a
// keyframe timestamp.
func SeekSeconds(timestampMS int64) int64 {
	if timestampMS < 0 {
		return 0
	}
	return timestampMS / 1000
}

// FrameIndex maps a playback position to a discrete frame at the given rate.
func FrameIndex(positionSec, fps float64) int {
	if fps <= 0 {
		fps = models.DefaultFPS
	}
	return int(math.Floor(positionSec * fps))
}

// Capture models one open/seek cycle of the preview modal. The first
// position report after opening captures automatically, exactly once; the
// user's explicit stop always overwrites.
type Capture struct {
	fps          float64
	autoCaptured bool
	frame        int
	positionSec  float64
	taken        bool
}

func NewCapture(fps float64) *Capture {
	if fps <= 0 {
		fps = models.DefaultFPS
	}
	return &Capture{fps: fps}
}

// Auto records the frame at the seeked position unless this cycle has
// already auto-captured. It reports whether the capture was taken.
func (c *Capture) Auto(positionSec float64) bool {
	if c.autoCaptured {
		return false
	}
	c.autoCaptured = true
	c.set(positionSec)
	return true
}

// Stop is the manual "stop & get frame" action; it overwrites whatever was
// captured earlier in the cycle.
func (c *Capture) Stop(positionSec float64) {
	c.set(positionSec)
}

// Reopen starts a new cycle, re-arming the one-shot auto capture.
func (c *Capture) Reopen() {
	c.autoCaptured = false
	c.taken = false
	c.frame = 0
	c.positionSec = 0
}

// Frame returns the captured frame index and whether anything has been
// captured this cycle.
func (c *Capture) Frame() (int, bool) {
	return c.frame, c.taken
}

// Position returns the playback position of the last capture, in seconds.
func (c *Capture) Position() float64 {
	return c.positionSec
}

func (c *Capture) set(positionSec float64) {
	c.positionSec = positionSec
	c.frame = FrameIndex(positionSec, c.fps)
	c.taken = true
}

// EmbedURL converts a "watch?v=" URL into an embeddable player URL starting
// at the keyframe. Non-watch URLs come back unchanged apart from the start
// parameter.
func EmbedURL(watchURL string, timestampMS int64) string {
	if watchURL == "" {
		return ""
	}
	start := strconv.FormatInt(SeekSeconds(timestampMS), 10)
	if strings.Contains(watchURL, "watch?v=") {
		embed := strings.Replace(watchURL, "watch?v=", "embed/", 1)
		if i := strings.IndexByte(embed, '&'); i >= 0 {
			embed = embed[:i]
		}
		return embed + "?start=" + start
	}
	u, err := url.Parse(watchURL)
	if err != nil {
		return watchURL
	}
	q := u.Query()
	q.Set("start", start)
	u.RawQuery = q.Encode()
	return u.String()
}

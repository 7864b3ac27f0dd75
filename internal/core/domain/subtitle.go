package domain

import (
	"regexp"
	"strconv"
	"strings"
)

// TranscriptSegment is one timed span of speech, serialised one JSON object
// per line in transcript/segments.jsonl.
type TranscriptSegment struct {
	StartMS int64  `json:"start_ms"`
	EndMS   int64  `json:"end_ms"`
	Text    string `json:"text"`
	Speaker string `json:"speaker,omitempty"`
}

// Subtitle cue timing: HH:MM:SS[,.]MMM --> HH:MM:SS[,.]MMM.
// Both SRT comma and VTT dot separators are accepted.
var cueTimeRe = regexp.MustCompile(
	`(\d{1,2}):(\d{2}):(\d{2})[,.](\d{1,3})\s*-->\s*(\d{1,2}):(\d{2}):(\d{2})[,.](\d{1,3})`)

// ParseSubtitles parses SRT or VTT content into transcript segments.
// Numeric block headers, the WEBVTT preamble, and blank lines are
// tolerated; unparseable blocks are skipped.
func ParseSubtitles(content string) []TranscriptSegment {
	content = strings.ReplaceAll(content, "\r\n", "\n")
	blocks := strings.Split(content, "\n\n")

	var segments []TranscriptSegment
	for _, block := range blocks {
		lines := strings.Split(strings.TrimSpace(block), "\n")
		if len(lines) == 0 {
			continue
		}

		// Find the timing line; anything before it (cue numbers, WEBVTT
		// header, NOTE lines) is ignored.
		timeIdx := -1
		var m []string
		for i, line := range lines {
			if m = cueTimeRe.FindStringSubmatch(line); m != nil {
				timeIdx = i
				break
			}
		}
		if timeIdx < 0 || timeIdx == len(lines)-1 {
			continue
		}

		text := strings.TrimSpace(strings.Join(lines[timeIdx+1:], " "))
		if text == "" {
			continue
		}

		segments = append(segments, TranscriptSegment{
			StartMS: cueMillis(m[1], m[2], m[3], m[4]),
			EndMS:   cueMillis(m[5], m[6], m[7], m[8]),
			Text:    text,
		})
	}
	return segments
}

// cueMillis converts matched H/M/S/MS capture groups to integer milliseconds.
func cueMillis(h, m, s, ms string) int64 {
	hours, _ := strconv.ParseInt(h, 10, 64)
	mins, _ := strconv.ParseInt(m, 10, 64)
	secs, _ := strconv.ParseInt(s, 10, 64)
	// Pad fractional part: "5" means 500ms in VTT-style short fractions.
	for len(ms) < 3 {
		ms += "0"
	}
	millis, _ := strconv.ParseInt(ms, 10, 64)
	return ((hours*60+mins)*60+secs)*1000 + millis
}

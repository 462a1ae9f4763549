package transcript

import (
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"

	"meetsync/internal/queue"
)

// UnknownSpeaker labels segments that carry no speaker field.
const UnknownSpeaker = "Unknown_Speaker"

// ErrNoSegments is returned when the payload has neither segments nor a
// plain text body.
var ErrNoSegments = errors.New("transcript has no segments")

var (
	speakerKeys = []string{"speaker", "speaker_id", "speaker_label", "speaker_name"}
	textKeys    = []string{"text", "transcript", "utterance"}
	startKeys   = []string{"start", "start_time", "timestamp"}
	endKeys     = []string{"end", "end_time"}
	bodyKeys    = []string{"text", "transcript", "full_text"}
)

// Clean parses a raw transcript payload into merged speaker blocks.
func Clean(raw []byte) ([]queue.Block, error) {
	var payload any
	if err := json.Unmarshal(raw, &payload); err != nil {
		return nil, fmt.Errorf("decode transcript: %w", err)
	}
	segments, ok := findSegments(payload)
	if !ok || len(segments) == 0 {
		if body := plainBody(payload); body != "" {
			return []queue.Block{{Speaker: UnknownSpeaker, Text: body}}, nil
		}
		return nil, ErrNoSegments
	}

	blocks := make([]queue.Block, 0, len(segments))
	for _, item := range segments {
		segment, ok := item.(map[string]any)
		if !ok {
			continue
		}
		speaker := firstString(segment, speakerKeys)
		if speaker == "" {
			speaker = UnknownSpeaker
		}
		text := strings.TrimSpace(firstString(segment, textKeys))
		if text == "" {
			continue
		}
		start := firstNumber(segment, startKeys)
		end := firstNumber(segment, endKeys)

		if n := len(blocks); n > 0 && blocks[n-1].Speaker == speaker {
			blocks[n-1].Text += " " + text
			blocks[n-1].End = end
			continue
		}
		blocks = append(blocks, queue.Block{Speaker: speaker, Text: text, Start: start, End: end})
	}
	if len(blocks) == 0 {
		return nil, ErrNoSegments
	}
	return blocks, nil
}

// Speakers returns the distinct speaker slots in sorted order.
func Speakers(blocks []queue.Block) []string {
	seen := make(map[string]struct{}, 4)
	for _, block := range blocks {
		seen[block.Speaker] = struct{}{}
	}
	slots := make([]string, 0, len(seen))
	for slot := range seen {
		slots = append(slots, slot)
	}
	sort.Strings(slots)
	return slots
}

func findSegments(value any) ([]any, bool) {
	switch v := value.(type) {
	case map[string]any:
		if segments, ok := v["segments"].([]any); ok {
			return segments, true
		}
		keys := make([]string, 0, len(v))
		for key := range v {
			keys = append(keys, key)
		}
		sort.Strings(keys)
		for _, key := range keys {
			if found, ok := findSegments(v[key]); ok {
				return found, true
			}
		}
	case []any:
		for _, item := range v {
			if found, ok := findSegments(item); ok {
				return found, true
			}
		}
	}
	return nil, false
}

func plainBody(value any) string {
	obj, ok := value.(map[string]any)
	if !ok {
		return ""
	}
	for _, key := range bodyKeys {
		switch v := obj[key].(type) {
		case string:
			if text := strings.TrimSpace(v); text != "" {
				return text
			}
		case map[string]any:
			if text, ok := v["text"].(string); ok && strings.TrimSpace(text) != "" {
				return strings.TrimSpace(text)
			}
		}
	}
	return ""
}

func firstString(segment map[string]any, keys []string) string {
	for _, key := range keys {
		switch v := segment[key].(type) {
		case string:
			if v != "" {
				return v
			}
		case float64:
			return fmt.Sprintf("%g", v)
		}
	}
	return ""
}

func firstNumber(segment map[string]any, keys []string) float64 {
	for _, key := range keys {
		switch v := segment[key].(type) {
		case float64:
			return v
		case json.Number:
			if f, err := v.Float64(); err == nil {
				return f
			}
		}
	}
	return 0
}

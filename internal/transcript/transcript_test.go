package transcript_test

import (
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"meetsync/internal/queue"
	"meetsync/internal/transcript"
)

func TestCleanMergesConsecutiveSpeakers(t *testing.T) {
	raw := []byte(`{
		"id": "job-1",
		"result": {
			"segments": [
				{"speaker": "SPEAKER_00", "text": " Hello there. ", "start": 0.5, "end": 2.0},
				{"speaker": "SPEAKER_00", "text": "Welcome.", "start": 2.1, "end": 3.0},
				{"speaker_id": "SPEAKER_01", "transcript": "Thanks.", "start_time": 65.2, "end_time": 66.0},
				{"speaker": "SPEAKER_01", "text": "   ", "start": 66.0, "end": 67.0},
				{"text": "Who said this?", "timestamp": 70}
			]
		}
	}`)

	blocks, err := transcript.Clean(raw)
	require.NoError(t, err)
	require.Len(t, blocks, 3)

	require.Equal(t, "SPEAKER_00", blocks[0].Speaker)
	require.Equal(t, "Hello there. Welcome.", blocks[0].Text)
	require.Equal(t, 0.5, blocks[0].Start)
	require.Equal(t, 3.0, blocks[0].End)

	require.Equal(t, "SPEAKER_01", blocks[1].Speaker)
	require.Equal(t, 65.2, blocks[1].Start)

	require.Equal(t, transcript.UnknownSpeaker, blocks[2].Speaker)
	require.Equal(t, 70.0, blocks[2].Start)
}

func TestCleanFallsBackToPlainText(t *testing.T) {
	blocks, err := transcript.Clean([]byte(`{"full_text": "just words"}`))
	require.NoError(t, err)
	require.Len(t, blocks, 1)
	require.Equal(t, "just words", blocks[0].Text)

	_, err = transcript.Clean([]byte(`{"status": "completed"}`))
	require.True(t, errors.Is(err, transcript.ErrNoSegments))

	_, err = transcript.Clean([]byte(`not json`))
	require.Error(t, err)
}

func TestFormatAppliesMapping(t *testing.T) {
	blocks := []queue.Block{
		{Speaker: "SPEAKER_00", Text: "Morning all.", Start: 5},
		{Speaker: "SPEAKER_01", Text: "Hi.", Start: 125.9},
	}
	got := transcript.Format(blocks, map[string]string{"SPEAKER_00": "Alex"})
	want := "[00:05] Alex: Morning all.\n\n[02:05] SPEAKER_01: Hi."
	require.Equal(t, want, got)
}

func TestStamp(t *testing.T) {
	require.Equal(t, "[00:00]", transcript.Stamp(-3))
	require.Equal(t, "[01:01]", transcript.Stamp(61.99))
	require.Equal(t, "[75:00]", transcript.Stamp(4500))
}

func TestExcerptKeepsEdgesOfLongTranscripts(t *testing.T) {
	blocks := make([]queue.Block, 0, 50)
	for i := 0; i < 50; i++ {
		speaker := "SPEAKER_00"
		if i%2 == 1 {
			speaker = "SPEAKER_01"
		}
		blocks = append(blocks, queue.Block{Speaker: speaker, Text: "line", Start: float64(i * 60)})
	}
	excerpt := transcript.Excerpt(blocks)
	require.Contains(t, excerpt, "[00:00] SPEAKER_00")
	require.Contains(t, excerpt, "[49:00] SPEAKER_01")
	require.NotContains(t, excerpt, "[25:00]")
	require.Equal(t, 40, strings.Count(excerpt, ": line"))

	short := transcript.Excerpt(blocks[:3])
	require.NotContains(t, short, "START OF TRANSCRIPT")
}

func TestRenderHTMLEscapesMarkup(t *testing.T) {
	blocks := []queue.Block{{Speaker: "SPEAKER_00", Text: "use <b>bold</b> and *stars*", Start: 0}}
	html, err := transcript.RenderHTML("Weekly Sync", blocks, map[string]string{"SPEAKER_00": "Sam"})
	require.NoError(t, err)
	require.Contains(t, html, "<h1>Weekly Sync</h1>")
	require.Contains(t, html, "<strong>[00:00] Sam:</strong>")
	require.Contains(t, html, "&lt;b&gt;bold&lt;/b&gt;")
	require.Contains(t, html, "*stars*")
}

func TestSpeakersSorted(t *testing.T) {
	blocks := []queue.Block{{Speaker: "SPEAKER_01"}, {Speaker: "SPEAKER_00"}, {Speaker: "SPEAKER_01"}}
	require.Equal(t, []string{"SPEAKER_00", "SPEAKER_01"}, transcript.Speakers(blocks))
}

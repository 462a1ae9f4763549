package transcript

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/yuin/goldmark"

	"meetsync/internal/queue"
)

const (
	excerptThreshold = 40
	excerptEdge      = 20
)

// Stamp renders seconds as [MM:SS]. Minutes are not wrapped into hours.
func Stamp(seconds float64) string {
	if seconds < 0 {
		seconds = 0
	}
	total := int(seconds)
	return fmt.Sprintf("[%02d:%02d]", total/60, total%60)
}

// Lines renders one "[MM:SS] Speaker: text" line per block, relabelling
// speakers found in mapping.
func Lines(blocks []queue.Block, mapping map[string]string) []string {
	lines := make([]string, 0, len(blocks))
	for _, block := range blocks {
		lines = append(lines, fmt.Sprintf("%s %s: %s", Stamp(block.Start), label(block.Speaker, mapping), block.Text))
	}
	return lines
}

// Format renders the whole transcript with blank lines between blocks.
func Format(blocks []queue.Block, mapping map[string]string) string {
	return strings.Join(Lines(blocks, mapping), "\n\n")
}

// Excerpt returns the transcript text used for speaker identification. Long
// transcripts keep only their first and last blocks.
func Excerpt(blocks []queue.Block) string {
	lines := Lines(blocks, nil)
	if len(lines) <= excerptThreshold {
		return strings.Join(lines, "\n\n")
	}
	var b strings.Builder
	b.WriteString("--- START OF TRANSCRIPT ---\n")
	b.WriteString(strings.Join(lines[:excerptEdge], "\n\n"))
	b.WriteString("\n\n... [Transcript truncated] ...\n\n")
	b.WriteString(strings.Join(lines[len(lines)-excerptEdge:], "\n\n"))
	b.WriteString("\n--- END OF TRANSCRIPT ---")
	return b.String()
}

// RenderHTML renders the transcript as an HTML document with a title heading
// and one paragraph per block.
func RenderHTML(title string, blocks []queue.Block, mapping map[string]string) (string, error) {
	var md strings.Builder
	if title = strings.TrimSpace(title); title != "" {
		md.WriteString("# ")
		md.WriteString(escapeMarkdown(title))
		md.WriteString("\n\n")
	}
	for _, block := range blocks {
		fmt.Fprintf(&md, "**%s %s:** %s\n\n",
			Stamp(block.Start),
			escapeMarkdown(label(block.Speaker, mapping)),
			escapeMarkdown(block.Text),
		)
	}
	var buf bytes.Buffer
	if err := goldmark.Convert([]byte(md.String()), &buf); err != nil {
		return "", fmt.Errorf("render transcript: %w", err)
	}
	return buf.String(), nil
}

func label(slot string, mapping map[string]string) string {
	if name := strings.TrimSpace(mapping[slot]); name != "" {
		return name
	}
	return slot
}

var markdownEscaper = strings.NewReplacer(
	`\`, `\\`,
	"*", `\*`,
	"_", `\_`,
	"`", "\\`",
	"[", `\[`,
	"]", `\]`,
	"<", `\<`,
	">", `\>`,
	"#", `\#`,
)

func escapeMarkdown(text string) string {
	return markdownEscaper.Replace(text)
}

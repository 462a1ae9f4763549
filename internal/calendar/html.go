package calendar

import (
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// PlainText reduces an HTML event description to readable text. Input
// without markup is returned trimmed.
func PlainText(description string) string {
	description = strings.TrimSpace(description)
	if description == "" || !strings.ContainsAny(description, "<&") {
		return description
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(description))
	if err != nil {
		return description
	}
	doc.Find("br").ReplaceWithHtml("\n")
	doc.Find("p, div, li").Each(func(_ int, s *goquery.Selection) {
		s.AppendHtml("\n")
	})
	lines := strings.Split(doc.Text(), "\n")
	kept := make([]string, 0, len(lines))
	for _, line := range lines {
		line = strings.Join(strings.Fields(line), " ")
		if line != "" {
			kept = append(kept, line)
		}
	}
	return strings.Join(kept, "\n")
}

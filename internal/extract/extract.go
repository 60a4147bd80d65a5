// Package extract parses fetched HTML into post summaries, full post
// bodies, and pagination links. Extraction is heuristic: every selector
// miss yields a zero value, never an error.
package extract

import (
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"

	"github.com/scrapeworks/blogwatch/internal/scrape"
)

// DefaultExcerptLength bounds generated excerpts when no length is configured.
const DefaultExcerptLength = 200

// Extractor holds extraction tunables.
type Extractor struct {
	excerptLength int
}

// New builds an Extractor. excerptLength <= 0 selects the default.
func New(excerptLength int) *Extractor {
	if excerptLength <= 0 {
		excerptLength = DefaultExcerptLength
	}
	return &Extractor{excerptLength: excerptLength}
}

// dateLayouts are tried in order when parsing <time> and meta values.
var dateLayouts = []string{
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02",
	"January 2, 2006",
	"Jan 2, 2006",
	"2 January 2006",
}

func parseDate(raw string) *time.Time {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil
	}
	for _, layout := range dateLayouts {
		if ts, err := time.Parse(layout, raw); err == nil {
			return &ts
		}
	}
	return nil
}

// excerpt returns a bounded prefix of content, cut at the last word boundary.
func (e *Extractor) excerpt(content string) string {
	if content == "" {
		return ""
	}
	runes := []rune(content)
	if len(runes) <= e.excerptLength {
		return content
	}
	cut := string(runes[:e.excerptLength])
	if idx := strings.LastIndex(cut, " "); idx > 0 {
		cut = cut[:idx]
	}
	return cut + "..."
}

// collapseText flattens a selection into readable plain text: paragraph
// texts joined by newlines when paragraphs exist, the whole selection's
// text otherwise.
func collapseText(sel *goquery.Selection) string {
	paragraphs := sel.Find("p")
	if paragraphs.Length() > 0 {
		var parts []string
		paragraphs.Each(func(_ int, p *goquery.Selection) {
			if text := normalizeSpace(p.Text()); text != "" {
				parts = append(parts, text)
			}
		})
		if len(parts) > 0 {
			return strings.Join(parts, "\n")
		}
	}
	return normalizeSpace(sel.Text())
}

func normalizeSpace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

func extractImages(sel *goquery.Selection, baseURL string) []string {
	var images []string
	sel.Find("img[src]").Each(func(_ int, img *goquery.Selection) {
		src, _ := img.Attr("src")
		if resolved := scrape.ResolveURL(baseURL, src); resolved != "" {
			images = append(images, resolved)
		}
	})
	return images
}

func parseDocument(html string) (*goquery.Document, error) {
	return goquery.NewDocumentFromReader(strings.NewReader(html))
}

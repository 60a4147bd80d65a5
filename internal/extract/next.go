package extract

import (
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/scrapeworks/blogwatch/internal/scrape"
)

// nextStrategy locates the "next page" anchor. Attribute-based strategies
// run before the slower text scan.
type nextStrategy struct {
	name string
	find func(doc *goquery.Document) *goquery.Selection
}

var nextStrategies = []nextStrategy{
	{
		name: "rel=next",
		find: func(doc *goquery.Document) *goquery.Selection {
			return doc.Find(`a[rel="next"]`).First()
		},
	},
	{
		name: "next class",
		find: func(doc *goquery.Document) *goquery.Selection {
			return doc.Find(`a[class*="next"], a[class*="Next"]`).First()
		},
	},
	{
		name: "next aria-label",
		find: func(doc *goquery.Document) *goquery.Selection {
			return doc.Find(`a[aria-label*="next" i], a[title*="next" i]`).First()
		},
	},
}

var nextTextPattern = regexp.MustCompile(`(?i)(\bnext\b|→|»)`)

// nextLink returns the absolute URL of the next listing page, or "" when
// pagination ends here.
func (e *Extractor) nextLink(doc *goquery.Document, pageURL string) string {
	for _, strategy := range nextStrategies {
		link := strategy.find(doc)
		if link.Length() == 0 {
			continue
		}
		href, ok := link.Attr("href")
		if !ok {
			continue
		}
		if resolved := scrape.ResolveURL(pageURL, href); resolved != "" {
			return resolved
		}
	}

	// Fallback: anchors whose visible text says "next".
	found := ""
	doc.Find("a[href]").EachWithBreak(func(_ int, link *goquery.Selection) bool {
		if !nextTextPattern.MatchString(normalizeSpace(link.Text())) {
			return true
		}
		href, _ := link.Attr("href")
		if strings.HasPrefix(href, "#") {
			return true
		}
		if resolved := scrape.ResolveURL(pageURL, href); resolved != "" {
			found = resolved
			return false
		}
		return true
	})
	return found
}

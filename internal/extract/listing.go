package extract

import (
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html"

	"github.com/scrapeworks/blogwatch/internal/scrape"
)

// containerStrategy locates candidate post containers on a listing page.
// Strategies are tried in order; the first one yielding containers wins.
type containerStrategy struct {
	name string
	find func(doc *goquery.Document) []*goquery.Selection
}

var containerStrategies = []containerStrategy{
	{
		name: "article elements",
		find: func(doc *goquery.Document) []*goquery.Selection {
			return collectSelections(doc.Find("article"))
		},
	},
	{
		name: "post-like class containers",
		find: func(doc *goquery.Document) []*goquery.Selection {
			return collectSelections(doc.Find(
				`div[class*="post"], div[class*="entry"], div[class*="article"]`,
			))
		},
	},
	{
		name: "heading parents",
		find: func(doc *goquery.Document) []*goquery.Selection {
			seen := map[*html.Node]struct{}{}
			var out []*goquery.Selection
			doc.Find("h2, h3").Each(func(_ int, heading *goquery.Selection) {
				parent := heading.Closest("div, section")
				if parent.Length() == 0 {
					return
				}
				node := parent.Get(0)
				if _, dup := seen[node]; dup {
					return
				}
				seen[node] = struct{}{}
				out = append(out, parent)
			})
			return out
		},
	},
}

var readMorePatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)read\s*more`),
	regexp.MustCompile(`(?i)continue\s*reading`),
	regexp.MustCompile(`(?i)full\s*(article|post|story)`),
	regexp.MustCompile(`(?i)learn\s*more`),
}

// navigationPathMarkers identify links that lead to index pages rather than
// individual posts.
var navigationPathMarkers = []string{"/page/", "/category/", "/tag/", "/author/", "?page="}

// Listing extracts post summaries and the next-page link from a listing
// page. Summaries without a title and without a post URL are dropped here;
// everything else is best-effort.
func (e *Extractor) Listing(htmlContent, pageURL string) ([]scrape.Summary, string) {
	doc, err := parseDocument(htmlContent)
	if err != nil {
		return nil, ""
	}

	var containers []*goquery.Selection
	for _, strategy := range containerStrategies {
		if containers = strategy.find(doc); len(containers) > 0 {
			break
		}
	}

	var summaries []scrape.Summary
	for _, container := range containers {
		summary := e.summaryFromContainer(container, pageURL)
		if summary.Title == "" && summary.PostURL == "" {
			continue
		}
		summaries = append(summaries, summary)
	}

	return summaries, e.nextLink(doc, pageURL)
}

func (e *Extractor) summaryFromContainer(container *goquery.Selection, baseURL string) scrape.Summary {
	summary := scrape.Summary{}

	titleElem := container.Find("h1, h2, h3, h4").First()
	if titleElem.Length() > 0 {
		if link := titleElem.Find("a").First(); link.Length() > 0 {
			summary.Title = normalizeSpace(link.Text())
			if href, ok := link.Attr("href"); ok {
				summary.PostURL = scrape.ResolveURL(baseURL, href)
			}
		} else {
			summary.Title = normalizeSpace(titleElem.Text())
		}
	}

	if summary.PostURL == "" {
		summary.PostURL = readMoreLink(container, baseURL)
	}
	if summary.PostURL == "" {
		summary.PostURL = firstContentLink(container, baseURL)
	}

	if author := container.Find(`span[class*="author"], div[class*="author"], a[class*="author"], a[rel="author"]`).First(); author.Length() > 0 {
		summary.Author = normalizeSpace(author.Text())
	}

	if timeElem := container.Find("time").First(); timeElem.Length() > 0 {
		raw, ok := timeElem.Attr("datetime")
		if !ok || raw == "" {
			raw = timeElem.Text()
		}
		summary.PublishedAt = parseDate(raw)
	}

	content := ""
	if excerptElem := container.Find(`div[class*="excerpt"], div[class*="summary"], p[class*="excerpt"], p[class*="summary"], div[class*="description"]`).First(); excerptElem.Length() > 0 {
		content = normalizeSpace(excerptElem.Text())
	} else {
		content = collapseText(container)
	}
	summary.Excerpt = e.excerpt(content)
	summary.Images = extractImages(container, baseURL)

	return summary
}

func readMoreLink(container *goquery.Selection, baseURL string) string {
	found := ""
	container.Find("a[href]").EachWithBreak(func(_ int, link *goquery.Selection) bool {
		text := normalizeSpace(link.Text())
		for _, pattern := range readMorePatterns {
			if pattern.MatchString(text) {
				if href, ok := link.Attr("href"); ok {
					if resolved := scrape.ResolveURL(baseURL, href); resolved != "" {
						found = resolved
						return false
					}
				}
			}
		}
		return true
	})
	return found
}

func firstContentLink(container *goquery.Selection, baseURL string) string {
	found := ""
	container.Find("a[href]").EachWithBreak(func(_ int, link *goquery.Selection) bool {
		href, _ := link.Attr("href")
		if href == "" || strings.HasPrefix(href, "#") {
			return true
		}
		lower := strings.ToLower(href)
		for _, marker := range navigationPathMarkers {
			if strings.Contains(lower, marker) {
				return true
			}
		}
		if resolved := scrape.ResolveURL(baseURL, href); resolved != "" {
			found = resolved
			return false
		}
		return true
	})
	return found
}

func collectSelections(sel *goquery.Selection) []*goquery.Selection {
	var out []*goquery.Selection
	sel.Each(func(_ int, s *goquery.Selection) {
		out = append(out, s)
	})
	return out
}

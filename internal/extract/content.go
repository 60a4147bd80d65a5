package extract

import (
	"time"

	"github.com/PuerkitoBio/goquery"

	"github.com/scrapeworks/blogwatch/internal/scrape"
)

// contentStrategy locates the main content region of a post page.
type contentStrategy struct {
	name string
	find func(doc *goquery.Document) *goquery.Selection
}

var contentStrategies = []contentStrategy{
	{
		name: "article element",
		find: func(doc *goquery.Document) *goquery.Selection {
			return doc.Find("article").First()
		},
	},
	{
		name: "content class containers",
		find: func(doc *goquery.Document) *goquery.Selection {
			return doc.Find(`div[class*="entry-content"], div[class*="post-body"], div[class*="content"]`).First()
		},
	},
	{
		name: "main element",
		find: func(doc *goquery.Document) *goquery.Selection {
			return doc.Find("main").First()
		},
	},
	{
		name: "content id",
		find: func(doc *goquery.Document) *goquery.Selection {
			return doc.Find(`div[id*="content"], div[id*="main"]`).First()
		},
	},
	{
		name: "body",
		find: func(doc *goquery.Document) *goquery.Selection {
			return doc.Find("body")
		},
	},
}

// Content extracts a post's full body from its own page. Every field is
// best-effort; a page that defeats all heuristics produces an empty FullPost.
func (e *Extractor) Content(htmlContent, pageURL string) scrape.FullPost {
	doc, err := parseDocument(htmlContent)
	if err != nil {
		return scrape.FullPost{}
	}
	doc.Find("script, style, noscript").Remove()

	post := scrape.FullPost{
		Title:       extractTitle(doc),
		Author:      extractAuthor(doc),
		PublishedAt: extractPublishedAt(doc),
	}

	var region *goquery.Selection
	for _, strategy := range contentStrategies {
		if sel := strategy.find(doc); sel.Length() > 0 {
			region = sel
			break
		}
	}
	if region != nil {
		post.Content = collapseText(region)
		post.Images = extractImages(region, pageURL)
	}
	post.Excerpt = e.excerpt(post.Content)

	return post
}

func extractTitle(doc *goquery.Document) string {
	if h1 := doc.Find("h1").First(); h1.Length() > 0 {
		if title := normalizeSpace(h1.Text()); title != "" {
			return title
		}
	}
	if titleTag := doc.Find("title").First(); titleTag.Length() > 0 {
		if title := normalizeSpace(titleTag.Text()); title != "" {
			return title
		}
	}
	if og := doc.Find(`meta[property="og:title"]`).First(); og.Length() > 0 {
		if content, ok := og.Attr("content"); ok {
			return normalizeSpace(content)
		}
	}
	return ""
}

func extractAuthor(doc *goquery.Document) string {
	if meta := doc.Find(`meta[name="author"], meta[property="article:author"]`).First(); meta.Length() > 0 {
		if content, ok := meta.Attr("content"); ok && normalizeSpace(content) != "" {
			return normalizeSpace(content)
		}
	}
	if elem := doc.Find(`span[class*="author"], div[class*="author"], a[rel="author"]`).First(); elem.Length() > 0 {
		return normalizeSpace(elem.Text())
	}
	return ""
}

func extractPublishedAt(doc *goquery.Document) *time.Time {
	if timeElem := doc.Find("time").First(); timeElem.Length() > 0 {
		raw, ok := timeElem.Attr("datetime")
		if !ok || raw == "" {
			raw = timeElem.Text()
		}
		if ts := parseDate(raw); ts != nil {
			return ts
		}
	}
	if meta := doc.Find(`meta[property="article:published_time"]`).First(); meta.Length() > 0 {
		if content, ok := meta.Attr("content"); ok {
			return parseDate(content)
		}
	}
	return nil
}

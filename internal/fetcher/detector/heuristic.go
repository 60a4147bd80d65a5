// Package detector decides when a page needs a headless re-fetch.
package detector

import (
	"bytes"

	"github.com/scrapeworks/blogwatch/internal/scrape"
)

// Heuristic flags listing fetches whose HTML was clearly rendered
// client-side. A blog listing that comes back as an app shell yields no
// posts and no next link from a plain HTTP fetch, so it is worth the cost
// of a browser render.
type Heuristic struct {
	BodyLengthThreshold int
}

// NewHeuristic creates a new detector. threshold is the body length in
// bytes under which high script density counts as an app shell.
func NewHeuristic(threshold int) *Heuristic {
	if threshold == 0 {
		threshold = 2048
	}
	return &Heuristic{BodyLengthThreshold: threshold}
}

// shellMarkers are matched against the lowercased body. They cover the SPA
// frameworks commonly serving blog frontends plus the noscript fallback
// text such pages ship.
var shellMarkers = [][]byte{
	[]byte("__next_data__"),
	[]byte(`<div id="__next"`),
	[]byte("window.__nuxt__"),
	[]byte(`id="___gatsby"`),
	[]byte("data-reactroot"),
	[]byte(`<div id="root"></div>`),
	[]byte(`<div id="app"></div>`),
	[]byte("enable javascript"),
}

// ShouldPromote decides whether a headless fetch is required.
func (h *Heuristic) ShouldPromote(resp scrape.FetchResponse) bool {
	if resp.StatusCode != 200 {
		return false
	}
	if len(resp.Body) == 0 {
		return true
	}
	body := bytes.ToLower(resp.Body)

	if len(body) < h.BodyLengthThreshold && scriptShare(body) >= 25 {
		return true
	}
	for _, marker := range shellMarkers {
		if bytes.Contains(body, marker) {
			return true
		}
	}
	// A listing with scripts but not a single link cannot paginate or point
	// at posts; assume the list is injected client-side.
	if bytes.Contains(body, []byte("<script")) && !bytes.Contains(body, []byte("<a ")) {
		return true
	}
	return false
}

// scriptShare returns the percentage of the (already lowercased) body
// covered by script tags and their contents.
func scriptShare(body []byte) int {
	total := len(body)
	if total == 0 {
		return 0
	}

	var (
		openTag  = []byte("<script")
		closeTag = []byte("</script>")
	)
	coverage := 0
	pos := 0

	for {
		relStart := bytes.Index(body[pos:], openTag)
		if relStart == -1 {
			break
		}
		start := pos + relStart

		tagClose := bytes.IndexByte(body[start:], '>')
		if tagClose == -1 {
			// Treat the rest of the document as part of the malformed script.
			coverage += total - start
			break
		}
		contentStart := start + tagClose + 1

		relEnd := bytes.Index(body[contentStart:], closeTag)
		var next int
		if relEnd == -1 {
			// Script tag never closes; count the rest.
			next = total
		} else {
			next = contentStart + relEnd + len(closeTag)
		}

		coverage += next - start
		pos = next
	}

	return coverage * 100 / total
}

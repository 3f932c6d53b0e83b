package fetch

import (
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// mainContentSelectors is the cascade tried in order when isolating the
// meaningful part of a page. Corporate sites are templated enough that one
// of these usually hits.
var mainContentSelectors = []string{
	"article", "main", ".main-content", ".entry-content", ".post-content", ".page-content",
	"[role='main']",
	".content", "#content",
}

// boilerplateSelector matches chrome that never carries company facts.
const boilerplateSelector = "script, style, nav, footer, header, aside, form, iframe, noscript, svg, .sidebar, #sidebar, .ad, .advertisement, .popup, .modal, .cookie-banner, .cookie-consent, .newsletter-signup"

var collapseNewlines = regexp.MustCompile(`(\n\s*){2,}`)
var collapseSpaces = regexp.MustCompile(`[ \t]+`)

// ExtractText reduces raw HTML to title plus main-content text. A page with
// no extractable text returns empty text, not an error; about pages built
// entirely from images are common and the caller decides what to do.
func ExtractText(html string) (title, text string, err error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return "", "", err
	}

	title = extractTitle(doc)

	doc.Find(boilerplateSelector).Remove()

	var b strings.Builder
	for _, selector := range mainContentSelectors {
		doc.Find(selector).Each(func(_ int, s *goquery.Selection) {
			appendBlockText(&b, s)
		})
		if b.Len() > 0 {
			break
		}
	}
	if b.Len() == 0 {
		doc.Find("body").Each(func(_ int, s *goquery.Selection) {
			appendBlockText(&b, s)
		})
	}

	text = collapseSpaces.ReplaceAllString(b.String(), " ")
	text = collapseNewlines.ReplaceAllString(text, "\n")
	text = strings.TrimSpace(text)

	return title, text, nil
}

// appendBlockText walks block-level elements so paragraph boundaries survive
// the flattening.
func appendBlockText(b *strings.Builder, s *goquery.Selection) {
	s.Find("p, h1, h2, h3, h4, h5, h6, li, blockquote, pre, td").Each(func(_ int, item *goquery.Selection) {
		t := strings.TrimSpace(item.Text())
		if t == "" {
			return
		}
		b.WriteString(t)
		b.WriteString("\n\n")
	})
}

// extractTitle tries head title, then og:title, then the first h1.
func extractTitle(doc *goquery.Document) string {
	if title := strings.TrimSpace(doc.Find("head title").First().Text()); title != "" {
		return title
	}
	if ogTitle, ok := doc.Find("meta[property='og:title']").Attr("content"); ok {
		if t := strings.TrimSpace(ogTitle); t != "" {
			return t
		}
	}
	return strings.TrimSpace(doc.Find("h1").First().Text())
}

// ExtractLinks returns the href of every anchor in the document along with
// its anchor text, in document order. Keys are the raw attribute values;
// resolution against the base URL is the crawler's job.
func ExtractLinks(html string) ([]Link, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil, err
	}

	var links []Link
	doc.Find("a[href]").Each(func(_ int, s *goquery.Selection) {
		href, ok := s.Attr("href")
		if !ok {
			return
		}
		href = strings.TrimSpace(href)
		if href == "" {
			return
		}
		links = append(links, Link{
			Href: href,
			Text: strings.Join(strings.Fields(s.Text()), " "),
		})
	})
	return links, nil
}

// Link is one anchor found in a page.
type Link struct {
	Href string // Raw href attribute
	Text string // Whitespace-collapsed anchor text
}

package discovery

import (
	"encoding/xml"
	"strings"
)

// sitemapDoc decodes either a <urlset> or a <sitemapindex> root; the
// XMLName records which one was found.
type sitemapDoc struct {
	XMLName  xml.Name
	URLs     []sitemapLoc `xml:"url"`
	Sitemaps []sitemapLoc `xml:"sitemap"`
}

type sitemapLoc struct {
	Loc string `xml:"loc"`
}

// parseSitemap returns the page URLs and, for a sitemap index, the child
// sitemap URLs found in an XML document.
func parseSitemap(body string) (pages []string, children []string, err error) {
	var doc sitemapDoc
	if err := xml.Unmarshal([]byte(body), &doc); err != nil {
		return nil, nil, err
	}

	switch doc.XMLName.Local {
	case "urlset":
		for _, u := range doc.URLs {
			if loc := strings.TrimSpace(u.Loc); loc != "" {
				pages = append(pages, loc)
			}
		}
	case "sitemapindex":
		for _, s := range doc.Sitemaps {
			if loc := strings.TrimSpace(s.Loc); loc != "" {
				children = append(children, loc)
			}
		}
	}

	return pages, children, nil
}

package discovery

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"prospect/internal/core"
	"prospect/internal/fetch"
)

func page(links ...string) string {
	var b strings.Builder
	b.WriteString("<html><body><main>")
	for _, l := range links {
		fmt.Fprintf(&b, `<a href=%q>%s</a>`, l, l)
	}
	b.WriteString("</main></body></html>")
	return b.String()
}

func discoverySite(t *testing.T) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	var ts *httptest.Server

	mux.HandleFunc("/robots.txt", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprintf(w, "User-agent: *\nDisallow: /admin\nSitemap: %s/sitemap.xml\n", ts.URL)
	})
	mux.HandleFunc("/sitemap.xml", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/xml")
		fmt.Fprintf(w, `<?xml version="1.0"?>
<urlset><url><loc>%s/pricing</loc></url><url><loc>%s/team</loc></url></urlset>`, ts.URL, ts.URL)
	})
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		switch r.URL.Path {
		case "/":
			fmt.Fprint(w, page("/about", "/services", "/brochure.pdf", "/login", "https://elsewhere.example.com/"))
		case "/about":
			fmt.Fprint(w, page("/services", "/about/history"))
		default:
			fmt.Fprint(w, page())
		}
	})

	ts = httptest.NewServer(mux)
	t.Cleanup(ts.Close)
	return ts
}

func TestDiscoverCombinesSources(t *testing.T) {
	ts := discoverySite(t)
	d := New(fetch.NewClient())

	res, err := d.Discover(context.Background(), ts.URL)
	if err != nil {
		t.Fatalf("Discover: %v", err)
	}

	byURL := make(map[string]core.PageCandidate)
	for _, c := range res.Candidates {
		byURL[c.URL] = c
	}
	for _, path := range []string{"/pricing", "/team", "/about", "/services", "/about/history"} {
		if _, ok := byURL[ts.URL+path]; !ok {
			t.Errorf("missing candidate %s", path)
		}
	}
	if res.SitemapPages != 2 {
		t.Errorf("SitemapPages = %d, want 2", res.SitemapPages)
	}
	if res.RobotsBlocked {
		t.Error("homepage should not be robots-blocked")
	}

	// Sitemap entries outrank the crawl.
	if got := byURL[ts.URL+"/pricing"].Source; got != core.SourceSitemap {
		t.Errorf("/pricing source = %s", got)
	}
	if first := res.Candidates[0].Source; first != core.SourceSitemap {
		t.Errorf("first candidate source = %s, want sitemap", first)
	}

	// Assets, transactional chrome, and other hosts are dropped.
	for u := range byURL {
		if strings.HasSuffix(u, ".pdf") || strings.Contains(u, "/login") || strings.Contains(u, "elsewhere") {
			t.Errorf("unwanted candidate survived: %s", u)
		}
	}

	if res.Anchors[ts.URL+"/about"] == "" {
		t.Error("no anchor text recorded for /about")
	}
}

func TestDiscoverRobotsBlockedIsAdvisory(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/robots.txt", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, "User-agent: *\nDisallow: /\n")
	})
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		fmt.Fprint(w, page("/about"))
	})
	ts := httptest.NewServer(mux)
	defer ts.Close()

	res, err := New(fetch.NewClient()).Discover(context.Background(), ts.URL)
	if err != nil {
		t.Fatalf("Discover: %v", err)
	}
	if !res.RobotsBlocked {
		t.Error("RobotsBlocked not set")
	}
	if len(res.Candidates) == 0 {
		t.Error("crawl should continue despite the disallow")
	}
}

func TestDiscoverUnreachableHomepage(t *testing.T) {
	ts := httptest.NewServer(http.NotFoundHandler())
	ts.Close()

	_, err := New(fetch.NewClient()).Discover(context.Background(), ts.URL)
	if core.KindOf(err) != core.KindHomepageUnreachable {
		t.Fatalf("error kind = %v, want HomepageUnreachable", core.KindOf(err))
	}
}

func TestDiscoverSlowSitemapKeepsHomepage(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/robots.txt", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, "User-agent: *\n")
	})
	mux.HandleFunc("/sitemap.xml", func(w http.ResponseWriter, r *http.Request) {
		// Sit on the connection past the discovery deadline.
		<-r.Context().Done()
	})
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		fmt.Fprint(w, page("/about", "/services"))
	})
	ts := httptest.NewServer(mux)
	defer ts.Close()

	d := New(fetch.NewClient(), WithDeadline(300*time.Millisecond))
	res, err := d.Discover(context.Background(), ts.URL)
	if err != nil {
		t.Fatalf("deadline spent on sitemaps must not fail discovery: %v", err)
	}
	if !res.Truncated {
		t.Error("Truncated not set")
	}

	byURL := make(map[string]bool)
	for _, c := range res.Candidates {
		byURL[c.URL] = true
	}
	if !byURL[ts.URL] {
		t.Error("homepage missing from candidates")
	}
	if !byURL[ts.URL+"/about"] || !byURL[ts.URL+"/services"] {
		t.Errorf("homepage links missing from candidates: %v", res.Candidates)
	}
}

func TestDiscoverCandidateCapTruncates(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		links := make([]string, 20)
		for i := range links {
			links[i] = fmt.Sprintf("%s-%d", r.URL.Path, i)
		}
		fmt.Fprint(w, page(links...))
	})
	ts := httptest.NewServer(mux)
	defer ts.Close()

	res, err := New(fetch.NewClient(), WithMaxCandidates(5)).Discover(context.Background(), ts.URL)
	if err != nil {
		t.Fatalf("Discover: %v", err)
	}
	if len(res.Candidates) > 5 {
		t.Errorf("candidates = %d, want at most 5", len(res.Candidates))
	}
	if !res.Truncated {
		t.Error("Truncated not set")
	}
}

func TestNormalize(t *testing.T) {
	cases := []struct {
		in, want string
		wantErr  bool
	}{
		{in: "acme.example", want: "https://acme.example"},
		{in: "HTTP://ACME.example/About", want: "http://acme.example/About"},
		{in: "https://acme.example:443/x", want: "https://acme.example/x"},
		{in: "https://acme.example/x#team", want: "https://acme.example/x"},
		{in: "https://user:pw@acme.example/", want: "https://acme.example/"},
		{in: "not a url \x00", wantErr: true},
		{in: "", wantErr: true},
	}
	for _, tc := range cases {
		got, err := Normalize(tc.in)
		if tc.wantErr {
			if err == nil {
				t.Errorf("Normalize(%q) expected error, got %q", tc.in, got)
			}
			continue
		}
		if err != nil {
			t.Errorf("Normalize(%q): %v", tc.in, err)
			continue
		}
		if got != tc.want {
			t.Errorf("Normalize(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}

func TestSameSite(t *testing.T) {
	if !SameSite("www.acme.example", "acme.example") {
		t.Error("www prefix should not break site identity")
	}
	if SameSite("acme.example", "other.example") {
		t.Error("different hosts reported as same site")
	}
}

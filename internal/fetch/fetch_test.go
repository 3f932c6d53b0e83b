package fetch

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"prospect/internal/core"
)

func TestGetHappyPath(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if ua := r.Header.Get("User-Agent"); !strings.Contains(ua, "Mozilla") {
			t.Errorf("unexpected User-Agent %q", ua)
		}
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		fmt.Fprint(w, "<html><head><title>Acme</title></head><body><main><p>We make anvils.</p></main></body></html>")
	}))
	defer srv.Close()

	client := NewClient(WithHTTPClient(srv.Client()))
	res, err := client.Get(context.Background(), srv.URL)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Status != http.StatusOK {
		t.Errorf("status = %d, want 200", res.Status)
	}
	if !strings.Contains(res.Body, "anvils") {
		t.Errorf("body missing content: %q", res.Body)
	}
	if !IsHTML(res.ContentType) {
		t.Errorf("content type %q should count as HTML", res.ContentType)
	}
}

func TestGetBodyCapExceeded(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		fmt.Fprint(w, strings.Repeat("x", 4096))
	}))
	defer srv.Close()

	client := NewClient(WithHTTPClient(srv.Client()), WithBodyCap(1024))
	_, err := client.Get(context.Background(), srv.URL)
	if core.KindOf(err) != core.KindFetchBodyCapExceed {
		t.Fatalf("kind = %q, want %q", core.KindOf(err), core.KindFetchBodyCapExceed)
	}
}

func TestGetStatusError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "forbidden", http.StatusForbidden)
	}))
	defer srv.Close()

	client := NewClient(WithHTTPClient(srv.Client()))
	_, err := client.Get(context.Background(), srv.URL)
	if core.KindOf(err) != core.KindFetchHTTPStatus {
		t.Fatalf("kind = %q, want %q", core.KindOf(err), core.KindFetchHTTPStatus)
	}
	if Retryable(err) {
		t.Error("403 should not be retryable")
	}
	if got := StatusOf(err); got != http.StatusForbidden {
		t.Errorf("StatusOf = %d, want %d", got, http.StatusForbidden)
	}
}

func TestGetTimeout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(500 * time.Millisecond)
	}))
	defer srv.Close()

	client := NewClient(WithHTTPClient(srv.Client()), WithTimeout(50*time.Millisecond))
	_, err := client.Get(context.Background(), srv.URL)
	if core.KindOf(err) != core.KindFetchTimeout {
		t.Fatalf("kind = %q, want %q", core.KindOf(err), core.KindFetchTimeout)
	}
	if !Retryable(err) {
		t.Error("timeout should be retryable")
	}
}

func TestGetNetworkError(t *testing.T) {
	client := NewClient(WithTimeout(2 * time.Second))
	_, err := client.Get(context.Background(), "http://127.0.0.1:1/") // nothing listens on port 1
	if core.KindOf(err) != core.KindFetchNetworkError {
		t.Fatalf("kind = %q, want %q", core.KindOf(err), core.KindFetchNetworkError)
	}
	if !Retryable(err) {
		t.Error("network errors should be retryable")
	}
}

func TestRetryableByStatus(t *testing.T) {
	tests := []struct {
		status    int
		retryable bool
	}{
		{429, false},
		{500, true},
		{502, true},
		{503, true},
		{403, false},
		{404, false},
		{410, false},
	}
	for _, tt := range tests {
		err := core.E(core.KindFetchHTTPStatus, "http://x rejected the request",
			&StatusError{URL: "http://x", Status: tt.status})
		if got := Retryable(err); got != tt.retryable {
			t.Errorf("status %d: retryable = %v, want %v", tt.status, got, tt.retryable)
		}
	}
}

func TestIsHTML(t *testing.T) {
	tests := []struct {
		contentType string
		want        bool
	}{
		{"text/html", true},
		{"text/html; charset=utf-8", true},
		{"application/xhtml+xml", true},
		{"", true},
		{"application/pdf", false},
		{"image/png", false},
		{"application/json", false},
	}
	for _, tt := range tests {
		if got := IsHTML(tt.contentType); got != tt.want {
			t.Errorf("IsHTML(%q) = %v, want %v", tt.contentType, got, tt.want)
		}
	}
}

func TestExtractTextRemovesBoilerplate(t *testing.T) {
	html := `<html><head><title>Acme Corp | Home</title></head><body>
		<nav><a href="/about">About</a><a href="/pricing">Pricing</a></nav>
		<script>analytics.track()</script>
		<main>
			<h1>Industrial anvils since 1910</h1>
			<p>Acme builds drop-forged anvils for working blacksmiths.</p>
		</main>
		<footer>Copyright Acme Corp</footer>
	</body></html>`

	title, text, err := ExtractText(html)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if title != "Acme Corp | Home" {
		t.Errorf("title = %q", title)
	}
	if !strings.Contains(text, "drop-forged anvils") {
		t.Errorf("text missing main content: %q", text)
	}
	if strings.Contains(text, "analytics") || strings.Contains(text, "Copyright") {
		t.Errorf("boilerplate survived extraction: %q", text)
	}
}

func TestExtractTextTitleFallbacks(t *testing.T) {
	tests := []struct {
		name  string
		html  string
		title string
	}{
		{"og title", `<html><head><meta property="og:title" content="Acme OG"></head><body><p>x</p></body></html>`, "Acme OG"},
		{"h1 fallback", `<html><body><h1>Acme H1</h1><p>x</p></body></html>`, "Acme H1"},
		{"no title", `<html><body><p>x</p></body></html>`, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			title, _, err := ExtractText(tt.html)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if title != tt.title {
				t.Errorf("title = %q, want %q", title, tt.title)
			}
		})
	}
}

func TestExtractLinks(t *testing.T) {
	html := `<html><body>
		<a href="/about">About  Us</a>
		<a href="https://other.example.com/x">External</a>
		<a href="">empty</a>
		<a href="/contact">Contact</a>
	</body></html>`

	links, err := ExtractLinks(html)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(links) != 3 {
		t.Fatalf("got %d links, want 3", len(links))
	}
	if links[0].Href != "/about" || links[0].Text != "About Us" {
		t.Errorf("first link = %+v", links[0])
	}
}

func TestPoolFetchAll(t *testing.T) {
	var inFlight, peak int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		cur := atomic.AddInt32(&inFlight, 1)
		for {
			p := atomic.LoadInt32(&peak)
			if cur <= p || atomic.CompareAndSwapInt32(&peak, p, cur) {
				break
			}
		}
		time.Sleep(20 * time.Millisecond)
		atomic.AddInt32(&inFlight, -1)

		w.Header().Set("Content-Type", "text/html")
		fmt.Fprintf(w, "<html><head><title>%s</title></head><body><main><p>page %s</p></main></body></html>", r.URL.Path, r.URL.Path)
	}))
	defer srv.Close()

	urls := make([]string, 12)
	for i := range urls {
		urls[i] = fmt.Sprintf("%s/page-%d", srv.URL, i)
	}

	client := NewClient(WithHTTPClient(srv.Client()))
	pool := NewPool(client, WithParallelism(3))

	var progressCalls int
	pages, errs := pool.FetchAll(context.Background(), urls, func(done, total int, url string, err error) {
		progressCalls++
		if total != 12 {
			t.Errorf("total = %d, want 12", total)
		}
	})

	if len(errs) != 0 {
		t.Fatalf("unexpected errors: %v", errs)
	}
	if len(pages) != 12 {
		t.Fatalf("got %d pages, want 12", len(pages))
	}
	if progressCalls != 12 {
		t.Errorf("progress calls = %d, want 12", progressCalls)
	}
	if p := atomic.LoadInt32(&peak); p > 3 {
		t.Errorf("peak concurrency = %d, want <= 3", p)
	}
}

func TestPoolRetriesTransientOnce(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) == 1 {
			http.Error(w, "try again", http.StatusServiceUnavailable)
			return
		}
		w.Header().Set("Content-Type", "text/html")
		fmt.Fprint(w, "<html><head><title>ok</title></head><body><main><p>recovered</p></main></body></html>")
	}))
	defer srv.Close()

	client := NewClient(WithHTTPClient(srv.Client()))
	pool := NewPool(client, WithRetryDelay(time.Millisecond))

	pages, errs := pool.FetchAll(context.Background(), []string{srv.URL}, nil)
	if len(errs) != 0 {
		t.Fatalf("unexpected errors: %v", errs)
	}
	if len(pages) != 1 || !strings.Contains(pages[0].Text, "recovered") {
		t.Fatalf("pages = %+v", pages)
	}
	if got := atomic.LoadInt32(&calls); got != 2 {
		t.Errorf("server calls = %d, want 2", got)
	}
}

func TestPoolDoesNotRetryClientErrors(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		http.Error(w, "gone", http.StatusGone)
	}))
	defer srv.Close()

	client := NewClient(WithHTTPClient(srv.Client()))
	pool := NewPool(client, WithRetryDelay(time.Millisecond))

	pages, errs := pool.FetchAll(context.Background(), []string{srv.URL}, nil)
	if len(pages) != 0 || len(errs) != 1 {
		t.Fatalf("pages = %d, errs = %d", len(pages), len(errs))
	}
	if core.KindOf(errs[0].Err) != core.KindFetchHTTPStatus {
		t.Errorf("kind = %q", core.KindOf(errs[0].Err))
	}
	if got := atomic.LoadInt32(&calls); got != 1 {
		t.Errorf("server calls = %d, want 1", got)
	}
}

func TestPoolDoesNotRetryRateLimit(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		http.Error(w, "slow down", http.StatusTooManyRequests)
	}))
	defer srv.Close()

	client := NewClient(WithHTTPClient(srv.Client()))
	pool := NewPool(client, WithRetryDelay(time.Millisecond))

	pages, errs := pool.FetchAll(context.Background(), []string{srv.URL}, nil)
	if len(pages) != 0 || len(errs) != 1 {
		t.Fatalf("pages = %d, errs = %d", len(pages), len(errs))
	}
	if Retryable(errs[0].Err) {
		t.Error("429 should not be retryable")
	}
	if got := StatusOf(errs[0].Err); got != http.StatusTooManyRequests {
		t.Errorf("StatusOf = %d, want %d", got, http.StatusTooManyRequests)
	}
	if got := atomic.LoadInt32(&calls); got != 1 {
		t.Errorf("server calls = %d, want 1", got)
	}
}

func TestPoolSkipsNonHTML(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/pdf")
		fmt.Fprint(w, "%PDF-1.4")
	}))
	defer srv.Close()

	client := NewClient(WithHTTPClient(srv.Client()))
	pool := NewPool(client)

	pages, errs := pool.FetchAll(context.Background(), []string{srv.URL}, nil)
	if len(pages) != 0 {
		t.Fatalf("non-HTML page should not produce content: %+v", pages)
	}
	if len(errs) != 1 || !strings.Contains(errs[0].Err.Error(), "non-HTML") {
		t.Fatalf("errs = %+v", errs)
	}
}

func TestPoolCancellation(t *testing.T) {
	block := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-block:
		case <-r.Context().Done():
		}
	}))
	defer srv.Close()
	defer close(block)

	urls := make([]string, 6)
	for i := range urls {
		urls[i] = fmt.Sprintf("%s/page-%d", srv.URL, i)
	}

	client := NewClient(WithHTTPClient(srv.Client()), WithTimeout(10*time.Second))
	pool := NewPool(client, WithParallelism(2), WithRetryDelay(time.Millisecond))

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(50 * time.Millisecond)
		cancel()
	}()

	start := time.Now()
	pages, errs := pool.FetchAll(ctx, urls, nil)
	elapsed := time.Since(start)

	if elapsed > 3*time.Second {
		t.Fatalf("cancellation took %v, want prompt return", elapsed)
	}
	if len(pages)+len(errs) != len(urls) {
		t.Errorf("settled %d of %d pages", len(pages)+len(errs), len(urls))
	}
}

// Package fetch retrieves the current text of a tracked URL over HTTP.
//
// Bodies are decoded to UTF-8 from the charset announced by the server (or
// sniffed from an HTML meta tag). When a CSS selector is configured and the
// response is HTML, only the text of the matching elements is returned.
package fetch

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html/charset"
)

// Config configures the fetcher.
type Config struct {
	Timeout   time.Duration // HTTP timeout. Default: 30s.
	MaxBytes  int64         // Max response body size. Default: 10MB.
	UserAgent string

	// Proxy is an explicit proxy URL. Empty means the HTTPS_PROXY/HTTP_PROXY
	// environment variables decide.
	Proxy string

	// Selector narrows HTML responses to the text of matching elements.
	Selector string
}

func (c *Config) defaults() {
	if c.Timeout <= 0 {
		c.Timeout = 30 * time.Second
	}
	if c.MaxBytes <= 0 {
		c.MaxBytes = 10 * 1024 * 1024
	}
	if c.UserAgent == "" {
		c.UserAgent = "sitediff/1.0"
	}
}

// ErrTooLarge reports a body over Config.MaxBytes. The page is never
// returned cut short.
var ErrTooLarge = errors.New("response body exceeds max_body_bytes")

// Fetcher performs HTTP GETs for tracked URLs.
type Fetcher struct {
	client *http.Client
	config Config
}

// New creates a Fetcher. It fails only on an unparseable proxy URL.
func New(cfg Config) (*Fetcher, error) {
	cfg.defaults()

	proxy := http.ProxyFromEnvironment
	if cfg.Proxy != "" {
		u, err := url.Parse(cfg.Proxy)
		if err != nil || u.Host == "" {
			return nil, fmt.Errorf("invalid proxy %q", cfg.Proxy)
		}
		proxy = http.ProxyURL(u)
	}

	transport := http.DefaultTransport.(*http.Transport).Clone()
	transport.Proxy = proxy

	return &Fetcher{
		client: &http.Client{
			Timeout:   cfg.Timeout,
			Transport: transport,
			CheckRedirect: func(req *http.Request, via []*http.Request) error {
				if len(via) >= 5 {
					return fmt.Errorf("too many redirects (%d)", len(via))
				}
				return nil
			},
		},
		config: cfg,
	}, nil
}

// Fetch returns the current text at rawURL. Transport errors and non-2xx
// responses are errors.
func (f *Fetcher) Fetch(ctx context.Context, rawURL string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return "", fmt.Errorf("new request: %w", err)
	}
	req.Header.Set("User-Agent", f.config.UserAgent)

	resp, err := f.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("http get: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", fmt.Errorf("http %d", resp.StatusCode)
	}

	// One byte past the limit tells a full body from a cut one.
	raw, err := io.ReadAll(io.LimitReader(resp.Body, f.config.MaxBytes+1))
	if err != nil {
		return "", fmt.Errorf("read body: %w", err)
	}
	if int64(len(raw)) > f.config.MaxBytes {
		return "", fmt.Errorf("%w (%d bytes)", ErrTooLarge, f.config.MaxBytes)
	}

	contentType := resp.Header.Get("Content-Type")
	body, err := charset.NewReader(bytes.NewReader(raw), contentType)
	if err != nil {
		return "", fmt.Errorf("decode body: %w", err)
	}
	data, err := io.ReadAll(body)
	if err != nil {
		return "", fmt.Errorf("decode body: %w", err)
	}
	text := strings.ToValidUTF8(string(data), "�")

	if f.config.Selector != "" && isHTML(contentType) {
		return selectText(text, f.config.Selector)
	}
	return text, nil
}

// selectText returns the trimmed text of each element matching selector,
// one element per line.
func selectText(page, selector string) (string, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(page))
	if err != nil {
		return "", fmt.Errorf("parse html: %w", err)
	}

	var b strings.Builder
	doc.Find(selector).Each(func(_ int, s *goquery.Selection) {
		for _, line := range strings.Split(s.Text(), "\n") {
			line = strings.TrimSpace(line)
			if line == "" {
				continue
			}
			b.WriteString(line)
			b.WriteByte('\n')
		}
	})
	return b.String(), nil
}

func isHTML(contentType string) bool {
	ct := strings.ToLower(contentType)
	return strings.Contains(ct, "text/html") || strings.Contains(ct, "application/xhtml")
}

package webtools

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
	"golang.org/x/net/html/charset"
)

const (
	maxParagraphs  = 10
	defaultTimeout = 7 * time.Second
	maxBodyBytes   = 5 << 20
)

// ErrNoContent means the page had no paragraph text.
var ErrNoContent = errors.New("no extractable paragraph text")

// Fetcher reads the main text of web pages.
type Fetcher struct {
	client *http.Client
}

// NewFetcher builds a fetcher whose requests time out after timeout (7s when zero).
func NewFetcher(timeout time.Duration) *Fetcher {
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return &Fetcher{client: &http.Client{Timeout: timeout}}
}

// FetchLinkContent returns the first paragraphs of the page at url, one per line.
func (f *Fetcher) FetchLinkContent(ctx context.Context, url string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "", fmt.Errorf("invalid url %q: %w", url, err)
	}
	req.Header.Set("User-Agent", "lecture-rag/1.0")

	resp, err := f.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("failed to fetch %s: %w", url, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("failed to fetch %s: status %d", url, resp.StatusCode)
	}

	body, err := charset.NewReader(io.LimitReader(resp.Body, maxBodyBytes), resp.Header.Get("Content-Type"))
	if err != nil {
		return "", fmt.Errorf("failed to decode %s: %w", url, err)
	}
	doc, err := html.Parse(body)
	if err != nil {
		return "", fmt.Errorf("failed to parse %s: %w", url, err)
	}

	paragraphs := collectParagraphs(doc, maxParagraphs)
	if len(paragraphs) == 0 {
		return "", ErrNoContent
	}
	log.Debug().Str("url", url).Int("paragraphs", len(paragraphs)).Msg("Fetched link content")
	return strings.Join(paragraphs, "\n"), nil
}

// collectParagraphs returns the trimmed text of up to limit non-empty <p> elements in document order.
func collectParagraphs(root *html.Node, limit int) []string {
	var out []string
	var walk func(n *html.Node)
	walk = func(n *html.Node) {
		if len(out) >= limit {
			return
		}
		if n.Type == html.ElementNode {
			switch n.DataAtom {
			case atom.Script, atom.Style, atom.Noscript:
				return
			case atom.P:
				if text := strings.Join(strings.Fields(nodeText(n)), " "); text != "" {
					out = append(out, text)
				}
				return
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(root)
	return out
}

func nodeText(n *html.Node) string {
	var sb strings.Builder
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.TextNode {
			sb.WriteString(n.Data)
			sb.WriteByte(' ')
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(n)
	return sb.String()
}

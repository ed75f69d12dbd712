package tools

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"
	"unicode/utf8"

	"golang.org/x/net/html"
)

const fetchUserAgent = "Firefox/90.0 (Windows NT 10.0; Win64; x64; rv:90.0) Gecko/20100101 Firefox/90.0"

// maxFetchBytes bounds how much page text is handed back to the model.
const maxFetchBytes = 64 * 1024

// WebFetch is the builtin get_web_content capability: fetch a URL and
// return its visible text so the model can summarize it.
type WebFetch struct {
	client *http.Client
}

// NewWebFetch builds the capability with a bounded request timeout.
func NewWebFetch() *WebFetch {
	return &WebFetch{client: &http.Client{Timeout: 30 * time.Second}}
}

func (w *WebFetch) Schema() Schema {
	return Schema{
		Name:        "get_web_content",
		Description: "Fetch a web page by URL and return its text content",
		Params: map[string]Param{
			"url": {Type: TypeString, Description: "the page URL", Required: true},
		},
	}
}

func (w *WebFetch) Execute(ctx context.Context, args map[string]any) (string, error) {
	url := args["url"].(string)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "", err
	}
	req.Header.Set("User-Agent", fetchUserAgent)

	resp, err := w.client.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Sprintf("failed to fetch page: status %d", resp.StatusCode), nil
	}

	doc, err := html.Parse(resp.Body)
	if err != nil {
		return "", fmt.Errorf("parse html: %w", err)
	}

	text := extractText(doc)
	if len(text) > maxFetchBytes {
		cut := maxFetchBytes
		// Back up to a rune boundary so the tail stays valid UTF-8.
		for cut > 0 && !utf8.RuneStart(text[cut]) {
			cut--
		}
		text = text[:cut]
	}
	return text, nil
}

// extractText walks the parse tree collecting visible text, skipping script
// and style subtrees.
func extractText(n *html.Node) string {
	var sb strings.Builder
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode && (n.Data == "script" || n.Data == "style") {
			return
		}
		if n.Type == html.TextNode {
			if trimmed := strings.TrimSpace(n.Data); trimmed != "" {
				sb.WriteString(trimmed)
				sb.WriteByte('\n')
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(n)
	return strings.TrimSpace(sb.String())
}

// Package webfetch backs the optional web_fetch built-in: a plain
// HTTP GET (no browser rendering) followed by readability extraction
// and markdown conversion, gated behind Config.Tools.WebFetchEnabled.
package webfetch

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	htmltomd "github.com/JohannesKaufmann/html-to-markdown/v2"
	readability "github.com/go-shiori/go-readability"
)

const defaultMaxLength = 10000
const userAgent = "Mozilla/5.0 (compatible; pith-agent/1.0; +https://github.com/pith-agent/pith)"

var httpClient = &http.Client{Timeout: 30 * time.Second}

// Fetch retrieves urlStr, extracts its readable content, and renders it
// as markdown, truncated to maxLength characters (0 uses the default).
func Fetch(ctx context.Context, urlStr string, maxLength int) (string, error) {
	if err := validateURLSafety(urlStr); err != nil {
		return "", err
	}
	if maxLength <= 0 {
		maxLength = defaultMaxLength
	}

	parsedURL, err := url.Parse(urlStr)
	if err != nil {
		return "", fmt.Errorf("invalid URL: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, urlStr, nil)
	if err != nil {
		return "", fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Accept", "text/html,application/xhtml+xml")

	resp, err := httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("fetch %s: %w", urlStr, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("fetch %s: HTTP %d", urlStr, resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, 5*1024*1024))
	if err != nil {
		return "", fmt.Errorf("read response body: %w", err)
	}
	bodyStr := string(body)

	contentType := resp.Header.Get("Content-Type")
	if !strings.Contains(contentType, "text/html") && !strings.Contains(contentType, "application/xhtml") {
		if len(bodyStr) > maxLength {
			bodyStr = bodyStr[:maxLength]
		}
		return bodyStr, nil
	}

	article, err := readability.FromReader(strings.NewReader(bodyStr), parsedURL)
	if err != nil {
		return "", fmt.Errorf("parse page: %w", err)
	}

	markdown, mdErr := htmltomd.ConvertString(article.Content)
	extracted := article.TextContent
	if mdErr == nil && strings.TrimSpace(markdown) != "" {
		extracted = markdown
	}

	return formatArticle(article.Title, article.Byline, article.SiteName, urlStr, extracted, maxLength), nil
}

func formatArticle(title, byline, siteName, urlStr, body string, maxLength int) string {
	var out strings.Builder
	fmt.Fprintf(&out, "Title: %s\n", title)
	if byline != "" {
		fmt.Fprintf(&out, "Author: %s\n", byline)
	}
	if siteName != "" {
		fmt.Fprintf(&out, "Site: %s\n", siteName)
	}
	fmt.Fprintf(&out, "URL: %s\n\n---\n\n", urlStr)
	out.WriteString(body)

	content := out.String()
	if len(content) > maxLength {
		content = content[:maxLength] + "\n\n[content truncated]"
	}
	return content
}

package util

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"

	"github.com/temoto/robotstxt"
)

// GetDomainFromURL returns scheme://host of urlString.
func GetDomainFromURL(urlString string) (string, error) {
	parsedURL, err := url.Parse(urlString)
	if err != nil {
		return "", err
	}
	if parsedURL.Scheme == "" || parsedURL.Host == "" {
		return "", fmt.Errorf("url %q has no scheme or host", urlString)
	}
	return parsedURL.Scheme + "://" + parsedURL.Host, nil
}

func FetchRobotsTXT(ctx context.Context, client *http.Client, domain, userAgent string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, domain+"/robots.txt", nil)
	if err != nil {
		return "", err
	}
	req.Header.Set("User-Agent", userAgent)

	resp, err := client.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	// A missing robots.txt allows everything.
	if resp.StatusCode == http.StatusNotFound {
		return "", nil
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, 512*1024))
	if err != nil {
		return "", err
	}

	return string(body), nil
}

func IsAllowedByRobotsTXT(robotsTXTContent, URL, agent string) bool {
	robots, err := robotstxt.FromString(robotsTXTContent)
	if err != nil {
		// if we cant parse robots.txt, assume its allowed
		return true
	}

	parsedURL, err := url.Parse(URL)
	if err != nil {
		// assume not allowed if we cant parse url
		return false
	}

	path := parsedURL.Path
	if path == "" {
		path = "/"
	}
	return robots.TestAgent(path, agent)
}

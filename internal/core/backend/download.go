package backend

import (
	"context"
	"fmt"
	"io"
	"mime"
	"net/http"
	"os"
	"path/filepath"
)

// Download fetches a cited source into dir and returns the written path.
// The file name comes from Content-Disposition when the service sends one.
func (c *Client) Download(ctx context.Context, sourceID, dir string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.DownloadURL(sourceID), nil)
	if err != nil {
		return "", fmt.Errorf("create request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("download %s: %w", sourceID, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if err := checkStatus(resp); err != nil {
		return "", err
	}

	name := filenameFrom(resp.Header.Get("Content-Disposition"), sourceID)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", fmt.Errorf("create download directory: %w", err)
	}
	dest := filepath.Join(dir, name)

	f, err := os.Create(dest)
	if err != nil {
		return "", fmt.Errorf("create %s: %w", dest, err)
	}
	n, err := io.Copy(f, resp.Body)
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		_ = os.Remove(dest)
		return "", fmt.Errorf("write %s: %w", dest, err)
	}

	c.log.Info("source downloaded", "source", sourceID, "path", dest, "bytes", n)
	return dest, nil
}

// filenameFrom picks a safe local name. Only the base name is kept so a
// hostile header cannot escape dir.
func filenameFrom(disposition, sourceID string) string {
	if disposition != "" {
		if _, params, err := mime.ParseMediaType(disposition); err == nil {
			if name := filepath.Base(params["filename"]); validName(name) {
				return name
			}
		}
	}
	if name := filepath.Base(filepath.FromSlash(sourceID)); validName(name) {
		return name
	}
	return "download"
}

func validName(name string) bool {
	return name != "" && name != "." && name != ".." && name != string(filepath.Separator)
}

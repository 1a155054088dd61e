package viewmodel

import (
	"bytes"
	"context"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"io"
	"net/http"
	"net/url"

	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/webp"
)

// MaxIconBytes is the largest icon body DownloadIcon accepts.
const MaxIconBytes = 4 << 20

func checkIconURL(rawURL string) (*url.URL, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("invalid icon url: %w", err)
	}
	if (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return nil, fmt.Errorf("unsupported icon url %q", rawURL)
	}
	return u, nil
}

// DownloadIcon fetches rawURL and decodes it. The raw bytes are only returned
// together with a decoded image, so callers never cache a body that is
// truncated or not an image.
func DownloadIcon(ctx context.Context, hc *http.Client, rawURL string) ([]byte, string, image.Image, error) {
	u, err := checkIconURL(rawURL)
	if err != nil {
		return nil, "", nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, "", nil, err
	}
	resp, err := hc.Do(req)
	if err != nil {
		return nil, "", nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, "", nil, fmt.Errorf("unexpected status: %s", resp.Status)
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, MaxIconBytes+1))
	if err != nil {
		return nil, "", nil, err
	}
	if len(data) > MaxIconBytes {
		return nil, "", nil, fmt.Errorf("icon larger than %d bytes", MaxIconBytes)
	}

	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, "", nil, fmt.Errorf("failed to decode icon: %w", err)
	}
	return data, resp.Header.Get("Content-Type"), img, nil
}

package nft

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// DefaultIPFSGateway serves ipfs:// URIs over HTTP.
const DefaultIPFSGateway = "https://ipfs.io/ipfs/"

// maxMetadataBytes bounds the size of a metadata document.
const maxMetadataBytes = 1 << 20

// Metadata is the subset of the ERC721 metadata JSON schema that is kept.
type Metadata struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	Image       string `json:"image"`
}

// HTTPFetcher fetches metadata documents over HTTP.
type HTTPFetcher struct {
	client  *http.Client
	gateway string
}

func NewHTTPFetcher(gateway string, timeout time.Duration) *HTTPFetcher {
	if gateway == "" {
		gateway = DefaultIPFSGateway
	}
	if timeout <= 0 {
		timeout = 8 * time.Second
	}
	return &HTTPFetcher{client: &http.Client{Timeout: timeout}, gateway: gateway}
}

// Fetch loads the document at uri. The image URI is rewritten to the
// gateway when it uses the ipfs scheme.
func (f *HTTPFetcher) Fetch(ctx context.Context, uri string) (*Metadata, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, f.resolve(uri), nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")
	resp, err := f.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("metadata fetch returned status %d", resp.StatusCode)
	}

	var md Metadata
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxMetadataBytes)).Decode(&md); err != nil {
		return nil, fmt.Errorf("decode metadata: %w", err)
	}
	md.Image = f.resolve(md.Image)
	return &md, nil
}

func (f *HTTPFetcher) resolve(uri string) string {
	if rest, ok := strings.CutPrefix(uri, "ipfs://"); ok {
		return f.gateway + rest
	}
	return uri
}

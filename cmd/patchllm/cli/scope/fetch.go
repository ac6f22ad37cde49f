package scope

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

const fetchTimeout = 15 * time.Second

// maxRemoteSize caps fetched bodies at 4 MiB; a remote page larger than
// that will never fit a context budget anyway.
const maxRemoteSize = 4 << 20

// ErrFetchFailed indicates the remote address could not be retrieved.
var ErrFetchFailed = errors.New("remote fetch failed")

// HTTPFetcher retrieves remote scope content over HTTP(S). It satisfies Fetcher.
type HTTPFetcher struct {
	// Client defaults to an http.Client with a 15s timeout when nil.
	Client *http.Client
}

// Fetch GETs the address and returns the body.
func (f *HTTPFetcher) Fetch(ctx context.Context, address string) ([]byte, error) {
	if !strings.HasPrefix(address, "http://") && !strings.HasPrefix(address, "https://") {
		address = "https://" + address
	}
	client := f.Client
	if client == nil {
		client = &http.Client{Timeout: fetchTimeout}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, address, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrFetchFailed, err)
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrFetchFailed, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: HTTP %d from %s", ErrFetchFailed, resp.StatusCode, address)
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, maxRemoteSize))
	if err != nil {
		return nil, fmt.Errorf("%w: reading body: %v", ErrFetchFailed, err)
	}
	return body, nil
}

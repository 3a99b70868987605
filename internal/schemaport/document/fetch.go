package document

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/schemaport/schemaport/internal/schemaport/core"
)

// maxDocumentSize bounds how many bytes a fetched document may occupy.
const maxDocumentSize = 32 << 20 // 32 MiB

var fetchClient = &http.Client{Timeout: 60 * time.Second}

// Fetch downloads an export document from a URL (the "recipe" flow) and parses
// it. The only requirement on the remote side is that the bytes parse as a
// supported document version.
func Fetch(ctx context.Context, url string) (*core.ExportFile, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := fetchClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetching document: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("fetching document: status %d", resp.StatusCode)
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxDocumentSize))
	if err != nil {
		return nil, fmt.Errorf("reading document body: %w", err)
	}

	return Parse(data)
}

package catalog

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"time"
)

// Provider supplies the immutable course catalog, called once at bootstrap
type Provider interface {
	FetchCatalog(ctx context.Context) ([]*CourseRef, error)
}

// FileProvider reads the catalog from a local JSON file
type FileProvider struct {
	Path string
}

var _ Provider = &FileProvider{}

// NewFileProvider .
func NewFileProvider(path string) *FileProvider {
	return &FileProvider{Path: path}
}

// FetchCatalog implement Provider
func (fp *FileProvider) FetchCatalog(ctx context.Context) ([]*CourseRef, error) {
	data, err := os.ReadFile(fp.Path)
	if err != nil {
		return nil, fmt.Errorf("failed to read catalog file: %w", err)
	}
	var courses []*CourseRef
	if err := json.Unmarshal(data, &courses); err != nil {
		return nil, fmt.Errorf("failed to decode catalog file: %w", err)
	}
	return courses, nil
}

// HTTPProvider fetches the catalog from the content service
type HTTPProvider struct {
	baseURL string
	client  *http.Client
}

var _ Provider = &HTTPProvider{}

// NewHTTPProvider .
func NewHTTPProvider(baseURL string, timeout time.Duration) *HTTPProvider {
	return &HTTPProvider{
		baseURL: baseURL,
		client:  &http.Client{Timeout: timeout},
	}
}

// FetchCatalog implement Provider
func (hp *HTTPProvider) FetchCatalog(ctx context.Context) ([]*CourseRef, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, hp.baseURL+"/api/courses", nil)
	if err != nil {
		return nil, err
	}
	res, err := hp.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch catalog: %w", err)
	}
	defer res.Body.Close()

	if res.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("failed to fetch catalog: status %d", res.StatusCode)
	}
	var courses []*CourseRef
	if err := json.NewDecoder(res.Body).Decode(&courses); err != nil {
		return nil, fmt.Errorf("failed to decode catalog: %w", err)
	}
	return courses, nil
}

// GetProvider create a catalog provider from given source
func GetProvider(source, path, baseURL string, timeout time.Duration) (Provider, error) {
	switch source {
	case "file":
		return NewFileProvider(path), nil
	case "remote":
		return NewHTTPProvider(baseURL, timeout), nil
	}
	return nil, fmt.Errorf("Unsupported catalog source: %s", source)
}

// Package hub downloads pretrained tokenizer and encoder files from the
// HuggingFace model registry into a local cache directory.
package hub

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/rs/zerolog"
	"github.com/schollz/progressbar/v3"
)

// DefaultBaseURL is the HuggingFace file endpoint.
const DefaultBaseURL = "https://huggingface.co"

// DefaultFiles are the files a BERT-style repo needs for tokenization.
var DefaultFiles = []string{"vocab.txt", "tokenizer.json"}

// DefaultONNXFile is the exported encoder fetched for the onnx provider.
const DefaultONNXFile = "model.onnx"

// ErrMissingFile is returned when the registry has no file of that name.
var ErrMissingFile = errors.New("pretrained file not found")

// Client fetches files from a HuggingFace-compatible endpoint.
type Client struct {
	BaseURL  string
	HTTP     *http.Client
	Progress io.Writer
	Logger   zerolog.Logger
}

// NewClient returns a client for DefaultBaseURL with progress written to
// stderr.
func NewClient(logger zerolog.Logger) *Client {
	return &Client{BaseURL: DefaultBaseURL, HTTP: http.DefaultClient, Progress: os.Stderr, Logger: logger}
}

// Dir is the cache directory for repo under cacheDir.
func Dir(cacheDir, repo string) string {
	return filepath.Join(cacheDir, strings.ReplaceAll(repo, "/", "--"))
}

// Fetch downloads files of repo into the cache once and returns the repo's
// cache directory. Files already present are not downloaded again.
func (c *Client) Fetch(ctx context.Context, repo string, files []string, cacheDir string) (string, error) {
	if repo == "" {
		return "", fmt.Errorf("pretrained repo name is required")
	}
	dir := Dir(cacheDir, repo)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("failed to create cache dir %s: %w", dir, err)
	}
	for _, name := range files {
		dst := filepath.Join(dir, name)
		if fi, err := os.Stat(dst); err == nil && fi.Size() > 0 {
			c.Logger.Debug().Str("file", dst).Msg("pretrained file cached")
			continue
		}
		url := fmt.Sprintf("%s/%s/resolve/main/%s", strings.TrimRight(c.BaseURL, "/"), repo, name)
		if err := c.download(ctx, dst, url, name); err != nil {
			return "", err
		}
		c.Logger.Info().Str("repo", repo).Str("file", name).Msg("downloaded pretrained file")
	}
	return dir, nil
}

func (c *Client) download(ctx context.Context, outputPath, url, name string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}
	httpClient := c.HTTP
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	resp, err := httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to get file: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return fmt.Errorf("%w: %s", ErrMissingFile, url)
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unexpected status code: %d", resp.StatusCode)
	}

	if err := os.MkdirAll(filepath.Dir(outputPath), 0o755); err != nil {
		return fmt.Errorf("failed to create dir for %s: %w", outputPath, err)
	}
	// write to a temp file so an interrupted download never looks cached
	tmp := outputPath + ".part"
	out, err := os.Create(tmp)
	if err != nil {
		return fmt.Errorf("failed to create file %s: %w", tmp, err)
	}

	progress := c.Progress
	if progress == nil {
		progress = io.Discard
	}
	bar := progressbar.NewOptions64(resp.ContentLength,
		progressbar.OptionSetWriter(progress),
		progressbar.OptionSetDescription("downloading "+name),
		progressbar.OptionShowBytes(true),
		progressbar.OptionClearOnFinish(),
	)
	_, copyErr := io.Copy(io.MultiWriter(out, bar), resp.Body)
	closeErr := out.Close()
	_ = bar.Finish()
	if copyErr != nil {
		os.Remove(tmp)
		return fmt.Errorf("failed to write to file %s: %w", outputPath, copyErr)
	}
	if closeErr != nil {
		os.Remove(tmp)
		return fmt.Errorf("failed to close file %s: %w", outputPath, closeErr)
	}
	return os.Rename(tmp, outputPath)
}

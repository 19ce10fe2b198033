package scraper

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/traintracker-data/internal/common/logger"
)

const defaultAPIKeyHeader = "api_key"

type DownloaderConfig struct {
	APIKeyHeader string
	APIKey       string
	Timeout      time.Duration
}

type HTTPDownloader struct {
	client       *http.Client
	logger       logger.Logger
	apiKeyHeader string
	apiKey       string
}

func NewHTTPDownloader(cfg DownloaderConfig, logger logger.Logger) *HTTPDownloader {
	header := cfg.APIKeyHeader
	if header == "" {
		header = defaultAPIKeyHeader
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 5 * time.Minute
	}
	return &HTTPDownloader{
		client:       &http.Client{Timeout: timeout},
		logger:       logger,
		apiKeyHeader: header,
		apiKey:       cfg.APIKey,
	}
}

// EnsureSnapshot makes sure a static archive exists at destPath, downloading
// it when missing or when refresh is set.
func (d *HTTPDownloader) EnsureSnapshot(ctx context.Context, url, destPath string, refresh bool) error {
	if !refresh {
		_, err := os.Stat(destPath)
		if err == nil {
			d.logger.Debug("Using existing static snapshot", "path", destPath)
			return nil
		}
		if !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("checking %s: %w", destPath, err)
		}
	}
	if url == "" {
		return fmt.Errorf("static snapshot %s is missing and no download URL is configured", destPath)
	}
	return d.Download(ctx, url, destPath)
}

// Download fetches url into destPath through a temp file in the same
// directory, so a failed download never replaces a good snapshot.
func (d *HTTPDownloader) Download(ctx context.Context, url string, destPath string) error {
	destDir := filepath.Dir(destPath)
	if err := os.MkdirAll(destDir, 0755); err != nil {
		return fmt.Errorf("creating destination directory: %w", err)
	}

	tempFile, err := os.CreateTemp(destDir, "gtfs_download_*.tmp")
	if err != nil {
		return fmt.Errorf("creating temp file: %w", err)
	}
	tempPath := tempFile.Name()
	defer os.Remove(tempPath)

	d.logger.Info("Starting download", "url", url, "dest", destPath)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		tempFile.Close()
		return fmt.Errorf("creating request: %w", err)
	}
	if d.apiKey != "" {
		req.Header.Set(d.apiKeyHeader, d.apiKey)
	}
	req.Header.Set("Cache-Control", "no-cache")

	resp, err := d.client.Do(req)
	if err != nil {
		tempFile.Close()
		return fmt.Errorf("executing request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		tempFile.Close()
		return fmt.Errorf("unexpected status code: %d", resp.StatusCode)
	}

	written, err := d.copyWithProgress(tempFile, resp.Body, resp.ContentLength)
	closeErr := tempFile.Close()
	if err != nil {
		return fmt.Errorf("downloading file: %w", err)
	}
	if closeErr != nil {
		return fmt.Errorf("closing temp file: %w", closeErr)
	}

	if err := os.Rename(tempPath, destPath); err != nil {
		return fmt.Errorf("moving file to destination: %w", err)
	}

	d.logger.Info("Download completed",
		"url", url,
		"dest", destPath,
		"size_bytes", written)

	return nil
}

func (d *HTTPDownloader) copyWithProgress(dst io.Writer, src io.Reader, totalSize int64) (int64, error) {
	buf := make([]byte, 32*1024)
	var written int64
	lastLog := time.Now()

	for {
		nr, readErr := src.Read(buf)
		if nr > 0 {
			nw, err := dst.Write(buf[:nr])
			if err != nil {
				return written, err
			}
			if nr != nw {
				return written, io.ErrShortWrite
			}
			written += int64(nw)

			if time.Since(lastLog) > 5*time.Second && totalSize > 0 {
				d.logger.Debug("Download progress",
					"progress_percent", fmt.Sprintf("%.1f", float64(written)/float64(totalSize)*100),
					"bytes_downloaded", written,
					"total_bytes", totalSize)
				lastLog = time.Now()
			}
		}
		if readErr == io.EOF {
			return written, nil
		}
		if readErr != nil {
			return written, readErr
		}
	}
}

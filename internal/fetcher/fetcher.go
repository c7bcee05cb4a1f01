// Package fetcher downloads vendor lead files over HTTP and FTP and parses
// CSV and XLSX payloads.
package fetcher

import (
	"context"
	"io"
	"os"
	"strings"

	"github.com/rotisserie/eris"
)

// Fetcher defines the interface for downloading remote data.
type Fetcher interface {
	// Download fetches the URL and returns the response body.
	Download(ctx context.Context, url string) (io.ReadCloser, error)

	// DownloadToFile fetches the URL and writes it to the given path. Returns bytes written.
	DownloadToFile(ctx context.Context, url string, path string) (int64, error)
}

// Open returns a reader for a lead-file source: an http(s) URL, an ftp URL,
// or a local file path.
func Open(ctx context.Context, source string) (io.ReadCloser, error) {
	switch {
	case strings.HasPrefix(source, "http://"), strings.HasPrefix(source, "https://"):
		return NewHTTPFetcher(HTTPOptions{}).Download(ctx, source)
	case strings.HasPrefix(source, "ftp://"):
		return NewFTPFetcher(FTPOptions{}).Download(ctx, source)
	default:
		f, err := os.Open(source)
		if err != nil {
			return nil, eris.Wrapf(err, "fetcher: open %s", source)
		}
		return f, nil
	}
}

// FetchToFile downloads a remote source to the given local path, or returns
// the source unchanged when it is already a local file. XLSX parsing needs a
// file on disk.
func FetchToFile(ctx context.Context, source string, path string) (string, error) {
	switch {
	case strings.HasPrefix(source, "http://"), strings.HasPrefix(source, "https://"):
		if _, err := NewHTTPFetcher(HTTPOptions{}).DownloadToFile(ctx, source, path); err != nil {
			return "", err
		}
		return path, nil
	case strings.HasPrefix(source, "ftp://"):
		if _, err := NewFTPFetcher(FTPOptions{}).DownloadToFile(ctx, source, path); err != nil {
			return "", err
		}
		return path, nil
	default:
		if _, err := os.Stat(source); err != nil {
			return "", eris.Wrapf(err, "fetcher: stat %s", source)
		}
		return source, nil
	}
}

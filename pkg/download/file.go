// pkg/download/file.go - streams package files from the shop to local storage.

package download

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"

	"github.com/windowsadmins/cimianshop/pkg/logging"
	"github.com/windowsadmins/cimianshop/pkg/progress"
)

// DownloadFile writes url to dest, reporting bytes transferred through onProgress.
// A partially written file is removed on failure. There is no retry.
func (f *Fetcher) DownloadFile(ctx context.Context, url, dest string, creds Credentials, onProgress progress.Func) error {
	if url == "" {
		return fmt.Errorf("invalid parameters: url cannot be empty")
	}
	if err := os.MkdirAll(filepath.Dir(dest), 0755); err != nil {
		return fmt.Errorf("failed to create directory structure: %w", err)
	}

	logging.Info("Starting download", "url", url, "destination", dest)

	resp, err := f.request(ctx, f.files, creds).SetDoNotParseResponse(true).Get(url)
	if err != nil {
		return &Error{Kind: ErrTransport, Message: err.Error(), Err: err}
	}
	body := resp.RawBody()
	defer body.Close()

	switch code := resp.StatusCode(); {
	case code == 401 || code == 403:
		return &Error{Kind: ErrAuthRequired, Message: fmt.Sprintf("download of %s requires authentication", url)}
	case code < 200 || code > 299:
		return fmt.Errorf("unexpected HTTP status code: %d", code)
	}

	total, _ := strconv.ParseInt(resp.Header().Get("Content-Length"), 10, 64)

	out, err := os.Create(dest)
	if err != nil {
		return fmt.Errorf("failed to open destination file: %w", err)
	}

	reader := progress.NewProgressReader(body, total, onProgress)
	if _, err := io.Copy(out, reader); err != nil {
		out.Close()
		os.Remove(dest)
		return fmt.Errorf("failed to write downloaded data: %w", err)
	}
	if err := out.Close(); err != nil {
		os.Remove(dest)
		return fmt.Errorf("failed to close destination file: %w", err)
	}

	logging.Info("Download completed successfully", "file", dest, "bytes", reader.Done())
	return nil
}

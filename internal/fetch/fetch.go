// Package fetch resolves point cloud references to local files,
// downloading remote ones into a working directory.
package fetch

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
)

// ErrRetrieval is returned when a resource cannot be fetched or stored.
var ErrRetrieval = errors.New("retrieval failed")

// Fetcher downloads remote files into Dir.
type Fetcher struct {
	Client *http.Client
	Dir    string
}

// New returns a Fetcher writing into dir with a client tuned for large single-file downloads.
func New(dir string, timeout time.Duration) *Fetcher {
	return &Fetcher{
		Client: &http.Client{
			Transport: &http.Transport{
				TLSNextProto:    make(map[string]func(string, *tls.Conn) http.RoundTripper),
				MaxIdleConns:    10,
				IdleConnTimeout: 30 * time.Second,
				Proxy:           http.ProxyFromEnvironment,
			},
			Timeout: timeout,
		},
		Dir: dir,
	}
}

// IsRemote reports whether ref is an http(s) URL.
func IsRemote(ref string) bool {
	return strings.HasPrefix(ref, "http://") || strings.HasPrefix(ref, "https://")
}

// LocalPath returns where ref is (or would be) stored locally.
func (f *Fetcher) LocalPath(ref string) (string, error) {
	if !IsRemote(ref) {
		return ref, nil
	}
	u, err := url.Parse(ref)
	if err != nil {
		return "", fmt.Errorf("%w: %s: %v", ErrRetrieval, ref, err)
	}
	name := path.Base(u.Path)
	if name == "" || name == "/" || name == "." {
		return "", fmt.Errorf("%w: %s: URL has no file name", ErrRetrieval, ref)
	}
	return filepath.Join(f.Dir, name), nil
}

// Which resolves ref to a local file path. Existing local files are returned
// untouched; a URL maps to its base name inside Dir and is downloaded when
// missing and download is true.
func (f *Fetcher) Which(ctx context.Context, ref string, download bool) (string, error) {
	local, err := f.LocalPath(ref)
	if err != nil {
		return "", err
	}

	if info, err := os.Stat(local); err == nil && !info.IsDir() && info.Size() > 0 {
		log.Debug().Str("ref", ref).Str("path", local).Msg("Using cached file")
		return local, nil
	}

	if !IsRemote(ref) {
		return "", fmt.Errorf("%w: %s: file not found", ErrRetrieval, ref)
	}
	if !download {
		return "", fmt.Errorf("%w: %s: not present locally and download disabled", ErrRetrieval, ref)
	}

	if err := f.download(ctx, ref, local); err != nil {
		return "", err
	}
	return local, nil
}

// WhichAll resolves every reference in order.
func (f *Fetcher) WhichAll(ctx context.Context, refs []string, download bool) ([]string, error) {
	paths := make([]string, 0, len(refs))
	for _, ref := range refs {
		p, err := f.Which(ctx, ref, download)
		if err != nil {
			return nil, err
		}
		paths = append(paths, p)
	}
	return paths, nil
}

func (f *Fetcher) download(ctx context.Context, ref, dest string) error {
	client := f.Client
	if client == nil {
		client = http.DefaultClient
	}

	log.Info().Str("url", ref).Str("path", dest).Msg("Downloading point cloud...")
	start := time.Now()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, ref, nil)
	if err != nil {
		return fmt.Errorf("%w: %s: %v", ErrRetrieval, ref, err)
	}

	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %s: %v", ErrRetrieval, ref, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("%w: %s: status %d", ErrRetrieval, ref, resp.StatusCode)
	}

	if err := os.MkdirAll(filepath.Dir(dest), 0755); err != nil {
		return fmt.Errorf("%w: %v", ErrRetrieval, err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(dest), "."+filepath.Base(dest)+".*.part")
	if err != nil {
		return fmt.Errorf("%w: %v", ErrRetrieval, err)
	}
	tmpName := tmp.Name()
	defer func() { _ = os.Remove(tmpName) }()

	n, err := io.Copy(tmp, resp.Body)
	if closeErr := tmp.Close(); err == nil {
		err = closeErr
	}
	if err != nil {
		return fmt.Errorf("%w: %s: writing %s: %v", ErrRetrieval, ref, dest, err)
	}
	if resp.ContentLength > 0 && n != resp.ContentLength {
		return fmt.Errorf("%w: %s: short download %d of %d bytes", ErrRetrieval, ref, n, resp.ContentLength)
	}

	if err := os.Rename(tmpName, dest); err != nil {
		return fmt.Errorf("%w: %v", ErrRetrieval, err)
	}

	log.Info().
		Str("path", dest).
		Int64("bytes", n).
		Dur("duration", time.Since(start)).
		Msg("Download finished")
	return nil
}

package actions

import (
	"archive/tar"
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/ulikunitz/xz"

	"github.com/atomikpanda/nixup/internal/action"
)

func init() {
	action.Register("fetch-nix", func() action.Action { return &FetchNix{} })
}

// FetchNix downloads the Nix release tarball and unpacks it into a scratch
// directory under /nix. The release artifacts are `.tar.xz`; the download
// streams through the xz decoder straight into extraction, so nothing but
// the unpacked tree ever touches disk.
type FetchNix struct {
	URL  string `json:"url"`
	Dest string `json:"dest"`
}

func (a *FetchNix) Tag() string { return "fetch-nix" }

func (a *FetchNix) Describe() string {
	return fmt.Sprintf("Fetch `%s` and unpack it to `%s`", a.URL, a.Dest)
}

func (a *FetchNix) Explain() []string {
	return []string{"Downloads the Nix binary distribution from the release server"}
}

func (a *FetchNix) Execute(ctx context.Context) error {
	// An earlier interrupted run may have left a complete unpack behind.
	if entries, err := os.ReadDir(a.Dest); err == nil && len(entries) > 0 {
		if _, err := findUnpackedRoot(a.Dest); err == nil {
			return nil
		}
		// Partial unpack: start over.
		if err := os.RemoveAll(a.Dest); err != nil {
			return fmt.Errorf("clear partial unpack %s: %w", a.Dest, err)
		}
	}
	if err := os.MkdirAll(a.Dest, 0o755); err != nil {
		return fmt.Errorf("create scratch directory %s: %w", a.Dest, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, a.URL, nil)
	if err != nil {
		return fmt.Errorf("build request for %s: %w", a.URL, err)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return fmt.Errorf("fetch %s: %w", a.URL, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("fetch %s: HTTP %d", a.URL, resp.StatusCode)
	}

	xzr, err := xz.NewReader(resp.Body)
	if err != nil {
		return fmt.Errorf("open xz stream from %s: %w", a.URL, err)
	}
	if err := untar(a.Dest, tar.NewReader(xzr)); err != nil {
		return fmt.Errorf("unpack %s: %w", a.URL, err)
	}
	return nil
}

func (a *FetchNix) Revert(ctx context.Context) error {
	if err := os.RemoveAll(a.Dest); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("remove %s: %w", a.Dest, err)
	}
	return nil
}

// untar extracts tr into dest, rejecting entries that escape it.
func untar(dest string, tr *tar.Reader) error {
	for {
		hdr, err := tr.Next()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return err
		}

		name := filepath.Clean(hdr.Name)
		if name == ".." || strings.HasPrefix(name, "../") || filepath.IsAbs(name) {
			return fmt.Errorf("tarball entry escapes destination: %q", hdr.Name)
		}
		target := filepath.Join(dest, name)

		switch hdr.Typeflag {
		case tar.TypeDir:
			if err := os.MkdirAll(target, fs.FileMode(hdr.Mode)); err != nil {
				return err
			}
		case tar.TypeReg:
			if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
				return err
			}
			f, err := os.OpenFile(target, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, fs.FileMode(hdr.Mode))
			if err != nil {
				return err
			}
			if _, err := io.Copy(f, tr); err != nil {
				f.Close()
				return err
			}
			if err := f.Close(); err != nil {
				return err
			}
		case tar.TypeSymlink:
			if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
				return err
			}
			if err := os.Symlink(hdr.Linkname, target); err != nil && !errors.Is(err, fs.ErrExist) {
				return err
			}
		case tar.TypeLink:
			if err := os.Link(filepath.Join(dest, filepath.Clean(hdr.Linkname)), target); err != nil && !errors.Is(err, fs.ErrExist) {
				return err
			}
		default:
			// Character devices etc. do not appear in Nix release tarballs.
		}
	}
}

// findUnpackedRoot locates the `nix-<version>-<triple>` directory the
// tarball unpacks to.
func findUnpackedRoot(dest string) (string, error) {
	entries, err := os.ReadDir(dest)
	if err != nil {
		return "", err
	}
	for _, e := range entries {
		if e.IsDir() && strings.HasPrefix(e.Name(), "nix-") {
			return filepath.Join(dest, e.Name()), nil
		}
	}
	return "", fmt.Errorf("no nix-* directory under %s", dest)
}

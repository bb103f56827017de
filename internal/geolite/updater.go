package geolite

import (
	"archive/tar"
	"compress/gzip"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/charmbracelet/log"
	"golang.org/x/sync/singleflight"
)

const (
	maxMindDownloadURL = "https://download.maxmind.com/app/geoip_download"
	countryEdition     = "GeoLite2-Country"
	userAgent          = "ipcollector-geolite-updater/1.0"
)

// ErrNoLicenseKey indicates that no MaxMind license key has been configured.
var ErrNoLicenseKey = errors.New("geolite: license key is not configured")

// Updater downloads the GeoLite2-Country edition and loads it into a Reader.
type Updater struct {
	LicenseKey string
	Dest       string
	BaseURL    string
	Client     *http.Client

	group singleflight.Group
}

func NewUpdater(licenseKey, dest string) *Updater {
	return &Updater{
		LicenseKey: strings.TrimSpace(licenseKey),
		Dest:       dest,
		BaseURL:    maxMindDownloadURL,
		Client:     &http.Client{Timeout: 2 * time.Minute},
	}
}

// EnsureDatabase downloads the database when Dest does not exist yet and loads
// it into reader. It returns true when a download happened.
func (u *Updater) EnsureDatabase(ctx context.Context, reader *Reader) (bool, error) {
	if _, err := os.Stat(u.Dest); err == nil {
		return false, reader.Reload(u.Dest)
	}
	return u.Update(ctx, reader)
}

// Update downloads the current edition regardless of what is on disk.
func (u *Updater) Update(ctx context.Context, reader *Reader) (bool, error) {
	result, err, _ := u.group.Do("update", func() (interface{}, error) {
		if u.LicenseKey == "" {
			return false, ErrNoLicenseKey
		}
		if err := u.download(ctx); err != nil {
			return false, err
		}
		if reader != nil {
			if err := reader.Reload(u.Dest); err != nil {
				return false, err
			}
		}
		return true, nil
	})
	if err != nil {
		return false, err
	}

	updated, _ := result.(bool)
	return updated, nil
}

func (u *Updater) download(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.downloadURL(), nil)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)

	client := u.Client
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("download %s: %w", countryEdition, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return fmt.Errorf("download %s: unexpected status %d: %s", countryEdition, resp.StatusCode, strings.TrimSpace(string(body)))
	}

	gzipReader, err := gzip.NewReader(resp.Body)
	if err != nil {
		return fmt.Errorf("%s: open gzip: %w", countryEdition, err)
	}
	defer gzipReader.Close()

	tarReader := tar.NewReader(gzipReader)
	wanted := countryEdition + ".mmdb"
	for {
		header, err := tarReader.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return fmt.Errorf("%s: read tar: %w", countryEdition, err)
		}
		if header.Typeflag != tar.TypeReg || filepath.Base(header.Name) != wanted {
			continue
		}

		if err := writeToFile(u.Dest, tarReader); err != nil {
			return fmt.Errorf("%s: write file: %w", countryEdition, err)
		}
		log.Info("GeoLite database downloaded", "path", u.Dest)
		return nil
	}

	return fmt.Errorf("%s: mmdb file not found in archive", countryEdition)
}

func (u *Updater) downloadURL() string {
	base := u.BaseURL
	if base == "" {
		base = maxMindDownloadURL
	}
	return fmt.Sprintf("%s?edition_id=%s&license_key=%s&suffix=tar.gz", base, countryEdition, u.LicenseKey)
}

func writeToFile(destPath string, data io.Reader) error {
	if err := os.MkdirAll(filepath.Dir(destPath), 0o755); err != nil {
		return fmt.Errorf("create dir: %w", err)
	}

	tmpFile, err := os.CreateTemp(filepath.Dir(destPath), "geolite-*.mmdb")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	defer func() {
		_ = os.Remove(tmpFile.Name())
	}()

	if _, err := io.Copy(tmpFile, data); err != nil {
		tmpFile.Close()
		return fmt.Errorf("copy data: %w", err)
	}
	if err := tmpFile.Close(); err != nil {
		return fmt.Errorf("close temp file: %w", err)
	}

	if err := os.Rename(tmpFile.Name(), destPath); err != nil {
		return fmt.Errorf("replace file: %w", err)
	}
	return nil
}

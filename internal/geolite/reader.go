package geolite

import (
	"fmt"
	"net"
	"sync"

	"github.com/charmbracelet/log"
	"github.com/oschwald/geoip2-golang"
)

const unknownCountry = "N/A"

// Reader resolves IPs to ISO country codes from a GeoLite2-Country database.
// A Reader without a database answers "N/A" for every address.
type Reader struct {
	mu sync.RWMutex
	db *geoip2.Reader
}

// Open loads the database at path. An empty path yields an empty Reader.
func Open(path string) (*Reader, error) {
	r := &Reader{}
	if path == "" {
		return r, nil
	}
	if err := r.Reload(path); err != nil {
		return r, err
	}
	return r, nil
}

func FromBytes(data []byte) (*Reader, error) {
	db, err := geoip2.FromBytes(data)
	if err != nil {
		return nil, fmt.Errorf("geolite: parse database: %w", err)
	}
	return &Reader{db: db}, nil
}

// Reload swaps in the database at path, closing the previous one.
func (r *Reader) Reload(path string) error {
	db, err := geoip2.Open(path)
	if err != nil {
		return fmt.Errorf("geolite: open %s: %w", path, err)
	}

	r.mu.Lock()
	previous := r.db
	r.db = db
	r.mu.Unlock()

	if previous != nil {
		if err := previous.Close(); err != nil {
			log.Warn("Failed to close previous GeoLite database", "error", err)
		}
	}
	log.Info("GeoLite country database loaded", "path", path)
	return nil
}

func (r *Reader) Available() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.db != nil
}

func (r *Reader) CountryCode(ipAddress string) string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if r.db == nil {
		return unknownCountry
	}

	ip := net.ParseIP(ipAddress)
	if ip == nil {
		return unknownCountry
	}

	record, err := r.db.Country(ip)
	if err != nil || record.Country.IsoCode == "" {
		return unknownCountry
	}
	return record.Country.IsoCode
}

func (r *Reader) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.db == nil {
		return nil
	}
	err := r.db.Close()
	r.db = nil
	return err
}

// Package geoip resolves client IPs to country/location info (spec's
// GeoIP external collaborator contract, §6). Two implementations share
// one interface: a local MaxMind MMDB reader and a remote HTTP lookup,
// chosen by New based on configuration (spec §9 design notes: capability
// traits with in-process and remote variants).
package geoip

import (
	"errors"
	"net"
	"net/http"
	"encoding/json"
	"fmt"
	"time"

	"github.com/oschwald/geoip2-golang"
)

// ErrNotInitialized is returned by a Resolver whose backing database (or
// remote endpoint) was never configured.
var ErrNotInitialized = errors.New("geoip: resolver not initialized")

// Location is the resolved connection info attached to a session at
// login. A lookup failure degrades to a zeroed Location rather than
// failing the login (spec §7 propagation policy).
type Location struct {
	CountryCode uint8 // ISO-3166 numeric-ish code used by the Bancho wire format
	Continent   string
	Country     string
	Region      string
	City        string
	Latitude    float64
	Longitude   float64
	Timezone    string
}

// Resolver resolves a client IP to a Location.
type Resolver interface {
	Lookup(ip net.IP) (Location, error)
	Close() error
}

// New picks a local MMDB-backed resolver when dbPath is set, otherwise a
// remote HTTP resolver when remoteURL is set, otherwise a resolver that
// always degrades to a zero Location (matching "GeoIP database not
// initialized" in spec §7's error taxonomy, treated as non-fatal).
func New(dbPath, remoteURL string) (Resolver, error) {
	if dbPath != "" {
		return newLocal(dbPath)
	}
	if remoteURL != "" {
		return newRemote(remoteURL), nil
	}
	return noop{}, nil
}

type noop struct{}

func (noop) Lookup(net.IP) (Location, error) { return Location{}, ErrNotInitialized }
func (noop) Close() error                    { return nil }

type local struct {
	db *geoip2.Reader
}

func newLocal(path string) (*local, error) {
	db, err := geoip2.Open(path)
	if err != nil {
		return nil, fmt.Errorf("geoip: open database %s: %w", path, err)
	}
	return &local{db: db}, nil
}

func (l *local) Lookup(ip net.IP) (Location, error) {
	rec, err := l.db.City(ip)
	if err != nil {
		return Location{}, fmt.Errorf("geoip: lookup %s: %w", ip, err)
	}
	loc := Location{
		CountryCode: countryCode(rec.Country.IsoCode),
		Continent:   rec.Continent.Names["en"],
		Country:     rec.Country.Names["en"],
		City:        rec.City.Names["en"],
		Latitude:    rec.Location.Latitude,
		Longitude:   rec.Location.Longitude,
		Timezone:    rec.Location.TimeZone,
	}
	if len(rec.Subdivisions) > 0 {
		loc.Region = rec.Subdivisions[0].Names["en"]
	}
	return loc, nil
}

func (l *local) Close() error { return l.db.Close() }

type remote struct {
	baseURL string
	client  *http.Client
}

func newRemote(baseURL string) *remote {
	return &remote{baseURL: baseURL, client: &http.Client{Timeout: 2 * time.Second}}
}

func (r *remote) Lookup(ip net.IP) (Location, error) {
	resp, err := r.client.Get(r.baseURL + "/geoip/" + ip.String())
	if err != nil {
		return Location{}, fmt.Errorf("geoip: remote lookup %s: %w", ip, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return Location{}, fmt.Errorf("geoip: remote lookup %s: status %d", ip, resp.StatusCode)
	}
	var loc Location
	if err := json.NewDecoder(resp.Body).Decode(&loc); err != nil {
		return Location{}, fmt.Errorf("geoip: decode remote response: %w", err)
	}
	return loc, nil
}

func (r *remote) Close() error { return nil }

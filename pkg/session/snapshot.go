// Package session captures the authentication artifacts of a logged-in
// browsing context, persists them, and replays them into fresh contexts so
// scenarios can skip the login form.
package session

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"golang.org/x/net/publicsuffix"

	"github.com/entrhq/uisync/pkg/driver"
)

// DefaultTTL is how long a snapshot stays usable after capture.
const DefaultTTL = 24 * time.Hour

// DefaultCookieFragments are the name fragments that mark authentication cookies.
var DefaultCookieFragments = []string{"session", "auth-token", "user-token"}

var (
	// ErrNoSnapshot is returned by stores that hold no snapshot.
	ErrNoSnapshot = errors.New("session: no snapshot stored")

	// ErrExpired is returned when applying a snapshot older than the TTL.
	ErrExpired = errors.New("session: snapshot expired")
)

// Snapshot is the persisted authentication state of a context. Its JSON form
// is {cookies, localStorage, sessionStorage, timestamp} with the timestamp in
// epoch milliseconds.
type Snapshot struct {
	Cookies        []driver.Cookie   `json:"cookies"`
	LocalStorage   map[string]string `json:"localStorage"`
	SessionStorage map[string]string `json:"sessionStorage"`
	Timestamp      int64             `json:"timestamp"`
}

// CapturedAt returns the capture time.
func (s Snapshot) CapturedAt() time.Time {
	return time.UnixMilli(s.Timestamp)
}

// Age returns how old the snapshot is at now.
func (s Snapshot) Age(now time.Time) time.Duration {
	return now.Sub(s.CapturedAt())
}

// Valid reports whether the snapshot is younger than ttl at now.
func (s Snapshot) Valid(now time.Time, ttl time.Duration) bool {
	return s.Timestamp > 0 && s.Age(now) < ttl
}

// Marshal encodes the snapshot in its persisted form.
func (s Snapshot) Marshal() ([]byte, error) {
	if s.LocalStorage == nil {
		s.LocalStorage = map[string]string{}
	}
	if s.SessionStorage == nil {
		s.SessionStorage = map[string]string{}
	}
	if s.Cookies == nil {
		s.Cookies = []driver.Cookie{}
	}
	return json.MarshalIndent(s, "", "  ")
}

// Unmarshal decodes a persisted snapshot. A payload without a timestamp is
// rejected since it can never be validated against the TTL.
func Unmarshal(data []byte) (Snapshot, error) {
	var s Snapshot
	if err := json.Unmarshal(data, &s); err != nil {
		return Snapshot{}, fmt.Errorf("failed to decode snapshot: %w", err)
	}
	if s.Timestamp <= 0 {
		return Snapshot{}, errors.New("failed to decode snapshot: missing timestamp")
	}
	return s, nil
}

// FilterCookies keeps cookies whose name contains any of fragments. When
// site is not empty, cookies must also belong to the same registrable domain
// (public suffix plus one label) as site.
func FilterCookies(cookies []driver.Cookie, fragments []string, site string) []driver.Cookie {
	siteRoot := registrableDomain(site)

	out := make([]driver.Cookie, 0, len(cookies))
	for _, c := range cookies {
		if !nameMatches(c.Name, fragments) {
			continue
		}
		if siteRoot != "" && registrableDomain(c.Domain) != siteRoot {
			continue
		}
		out = append(out, c)
	}
	return out
}

func nameMatches(name string, fragments []string) bool {
	for _, f := range fragments {
		if f != "" && strings.Contains(name, f) {
			return true
		}
	}
	return false
}

func registrableDomain(host string) string {
	host = strings.TrimPrefix(strings.ToLower(strings.TrimSpace(host)), ".")
	if host == "" {
		return ""
	}
	root, err := publicsuffix.EffectiveTLDPlusOne(host)
	if err != nil {
		// localhost, bare IPs and single-label hosts have no public suffix.
		return host
	}
	return root
}

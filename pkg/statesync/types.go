package statesync

import (
	"context"
	"errors"
	"strings"

	"github.com/entrhq/uisync/pkg/driver"
)

// ErrCannotProceed is wrapped by every authentication failure. Scenarios that
// need a logged-in account stop immediately when they see it.
var ErrCannotProceed = errors.New("failed to login, cannot proceed with test")

// State is the authentication state of one scenario's browsing context.
type State int

const (
	StateUnknown State = iota
	StateChecked
	StateLoginInFlight
	StateAuthenticated
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateUnknown:
		return "unknown"
	case StateChecked:
		return "checked"
	case StateLoginInFlight:
		return "login-in-flight"
	case StateAuthenticated:
		return "authenticated"
	case StateFailed:
		return "failed"
	default:
		return "invalid"
	}
}

// Credentials identify the test account.
type Credentials struct {
	Username   string
	Password   string
	RememberMe bool
}

// LoginOutcome classifies a login attempt.
type LoginOutcome int

const (
	// LoginSucceeded means the form navigated away from the login page.
	LoginSucceeded LoginOutcome = iota

	// LoginRejected means the site showed an error banner.
	LoginRejected

	// LoginIndeterminate means neither happened within the login timeout.
	LoginIndeterminate
)

func (o LoginOutcome) String() string {
	switch o {
	case LoginSucceeded:
		return "succeeded"
	case LoginRejected:
		return "rejected"
	default:
		return "indeterminate"
	}
}

// LoginResult is what an Authenticator observed.
type LoginResult struct {
	Outcome LoginOutcome
	Message string
}

// Authenticator performs a credentialed login on page.
type Authenticator interface {
	Login(ctx context.Context, page driver.Page, creds Credentials) (LoginResult, error)
}

// FavoriteEntry is one row of the favorites list. ID is stable per event;
// Title is for humans and is not unique.
type FavoriteEntry struct {
	ID    string
	Title string
}

// RemoveOutcome reports what a removal found.
type RemoveOutcome int

const (
	Removed RemoveOutcome = iota

	// NotFound means the entry was no longer visible. Not an error.
	NotFound
)

func (o RemoveOutcome) String() string {
	if o == NotFound {
		return "not-found"
	}
	return "removed"
}

// FavoritesBoard is the live, server-backed favorites list of the account.
type FavoritesBoard interface {
	// Refresh reloads the list from the server.
	Refresh(ctx context.Context) error
	Count(ctx context.Context) (int, error)
	Entries(ctx context.Context) ([]FavoriteEntry, error)
	Remove(ctx context.Context, entry FavoriteEntry) (RemoveOutcome, error)
}

// CleanupReport summarises ResetSharedState.
type CleanupReport struct {
	Found     int
	Issued    int
	NotFound  int
	Failed    int
	Remaining int
	Converged bool
}

// TitleMatches reports whether two favorite titles refer to the same event.
// Titles are truncated differently on different pages, so either may be a
// substring of the other.
func TitleMatches(a, b string) bool {
	a, b = strings.TrimSpace(a), strings.TrimSpace(b)
	a = strings.TrimSuffix(a, "...")
	b = strings.TrimSuffix(b, "...")
	if a == "" || b == "" {
		return false
	}
	return strings.Contains(a, b) || strings.Contains(b, a)
}

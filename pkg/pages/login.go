package pages

import (
	"context"
	"fmt"
	"strings"

	"github.com/entrhq/uisync/pkg/driver"
	"github.com/entrhq/uisync/pkg/locator"
	"github.com/entrhq/uisync/pkg/session"
	"github.com/entrhq/uisync/pkg/statesync"
)

const loginPathFragment = "/login/"

var onLoginForm = locator.URLContains(loginPathFragment)

var (
	loginLink     = locator.Selectors(`a:has-text("Вхід")`, `a:has-text("Login")`)
	emailInput    = locator.Selectors(`input[aria-label="Електронна пошта"]`, `input[type="email"]`, `input[name="email"]`, `input[name="login"]`)
	passwordInput = locator.Selectors(`input[aria-label="Пароль"]`, `input[type="password"]`)
	submitButton  = locator.Selectors(`button[type="submit"]:has-text("Увійти")`, `button:has-text("Увійти")`, `button:has-text("Log in")`)
	rememberMe    = locator.Selectors(`input[type="checkbox"][name="remember"]`, `.remember-checkbox`)
	loginError    = locator.Selectors(`.error-message`, `.login-error`, `[class*="error"]`)
	logoutButton  = locator.Selectors(`button:has-text("Вихід")`, `button:has-text("Logout")`)
)

// LoggedInIndicators returns the elements that only render for a logged-in
// account. Any one of them is enough. The last entry is a fallback for
// headers without those elements: off the login form, no login link, and an
// authentication cookie in the jar.
func LoggedInIndicators() locator.Chain {
	chain := locator.Selectors(
		`a:has-text("Депозит")`,
		`[class*="user-menu"]`,
		`[class*="account"]`,
		`.user-balance`,
		`button:has-text("Вихід")`,
		`button:has-text("Logout")`,
	)

	parts := []locator.Strategy{locator.URLLacks(loginPathFragment)}
	for _, s := range loginLink {
		parts = append(parts, locator.Not(s))
	}
	cookies := make([]locator.Strategy, 0, len(session.DefaultCookieFragments))
	for _, f := range session.DefaultCookieFragments {
		cookies = append(cookies, locator.CookiePresent(f))
	}
	parts = append(parts, locator.AnyOf(cookies...))

	return append(chain, locator.All(parts...))
}

// LoginPage drives the credential form.
type LoginPage struct {
	Surface
}

var _ statesync.Authenticator = (*LoginPage)(nil)

// NewLoginPage returns a login page on s.
func NewLoginPage(s Surface) *LoginPage { return &LoginPage{Surface: s} }

// Open follows the header login link unless page is already on the form.
func (l *LoginPage) Open(ctx context.Context) error {
	if _, on, _ := onLoginForm.Resolve(ctx, l.Page); on {
		_, err := l.find(ctx, emailInput, l.Timeouts.Medium)
		return err
	}
	if err := l.click(ctx, loginLink, l.Timeouts.Medium); err != nil {
		return fmt.Errorf("failed to open login form: %w", err)
	}
	if err := l.WaitForLoad(ctx); err != nil {
		return err
	}

	urlCtx, cancel := driver.WithTimeout(ctx, l.Timeouts.Medium)
	defer cancel()
	if err := l.Page.WaitForURL(urlCtx, func(u string) bool { return strings.Contains(u, loginPathFragment) }); err != nil {
		return fmt.Errorf("login form did not open: %w", err)
	}
	_, err := l.find(ctx, emailInput, l.Timeouts.Medium)
	return err
}

// Login submits creds on page and classifies what happened: leaving the
// login URL is success, an error banner is a rejection, and neither within
// the medium timeout is indeterminate.
func (l *LoginPage) Login(ctx context.Context, page driver.Page, creds statesync.Credentials) (statesync.LoginResult, error) {
	lp := &LoginPage{Surface: l.on(page)}
	if err := lp.Open(ctx); err != nil {
		return statesync.LoginResult{}, err
	}

	if err := lp.fill(ctx, emailInput, creds.Username); err != nil {
		return statesync.LoginResult{}, fmt.Errorf("failed to enter e-mail: %w", err)
	}
	if err := lp.fill(ctx, passwordInput, creds.Password); err != nil {
		return statesync.LoginResult{}, fmt.Errorf("failed to enter password: %w", err)
	}
	if creds.RememberMe {
		lp.checkRememberMe(ctx)
	}
	if err := lp.click(ctx, submitButton, lp.Timeouts.Short); err != nil {
		return statesync.LoginResult{}, fmt.Errorf("failed to submit login form: %w", err)
	}

	return lp.outcome(ctx), nil
}

func (l *LoginPage) fill(ctx context.Context, chain locator.Chain, value string) error {
	el, err := l.find(ctx, chain, l.Timeouts.Medium)
	if err != nil {
		return err
	}
	return el.Fill(ctx, value)
}

func (l *LoginPage) checkRememberMe(ctx context.Context) {
	el, _, err := rememberMe.Resolve(ctx, l.Page)
	if err != nil {
		l.Logger.Debugf("remember-me checkbox not found: %v", err)
		return
	}
	if _, checked, _ := el.Attribute(ctx, "checked"); checked {
		return
	}
	if err := el.Click(ctx); err != nil {
		l.Logger.Debugf("could not tick remember-me: %v", err)
	}
}

func (l *LoginPage) outcome(ctx context.Context) statesync.LoginResult {
	res := statesync.LoginResult{Outcome: statesync.LoginIndeterminate}
	err := l.until(ctx, func(ctx context.Context) (bool, error) {
		if _, on, _ := onLoginForm.Resolve(ctx, l.Page); !on {
			res = statesync.LoginResult{Outcome: statesync.LoginSucceeded}
			return true, nil
		}
		el, _, err := loginError.Resolve(ctx, l.Page)
		if err != nil {
			return false, err
		}
		msg, _ := el.Text(ctx)
		res = statesync.LoginResult{Outcome: statesync.LoginRejected, Message: strings.TrimSpace(msg)}
		return true, nil
	}, l.Timeouts.Medium)
	if err != nil {
		l.Logger.Warnf("login outcome unknown: %v", err)
	}
	return res
}

// IsLoggedIn reports whether any logged-in indicator is on the page.
func (l *LoginPage) IsLoggedIn(ctx context.Context) (bool, error) {
	return LoggedInIndicators().Any(ctx, l.Page)
}

// Logout clicks the header logout button.
func (l *LoginPage) Logout(ctx context.Context) error {
	if err := l.click(ctx, logoutButton, l.Timeouts.Short); err != nil {
		return fmt.Errorf("failed to log out: %w", err)
	}
	return l.WaitForLoad(ctx)
}

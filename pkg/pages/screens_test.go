package pages

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/entrhq/uisync/pkg/driver"
	"github.com/entrhq/uisync/pkg/driver/drivertest"
	"github.com/entrhq/uisync/pkg/statesync"
)

type loginFixture struct {
	page     *drivertest.Page
	email    *drivertest.Node
	password *drivertest.Node
	remember *drivertest.Node
	banner   *drivertest.Node
}

// newLoginFixture serves a login form that accepts the password "secret",
// shows an error banner for anything else, or ignores the submit entirely
// when silent is set.
func newLoginFixture(silent bool) *loginFixture {
	f := &loginFixture{
		page:     drivertest.NewContext().NewFakePage(),
		email:    &drivertest.Node{Visible: true},
		password: &drivertest.Node{Visible: true},
		remember: &drivertest.Node{Visible: true, Attrs: map[string]string{}},
		banner:   &drivertest.Node{Text: "  Невірний пароль "},
	}
	p := f.page
	p.SetURL(testBase + "/uk/")
	p.Set(`a:has-text("Вхід")`, &drivertest.Node{Visible: true, OnClick: func() error {
		p.SetURL(testBase + "/uk/login/")
		return nil
	}})
	p.Set(`input[aria-label="Електронна пошта"]`, f.email)
	p.Set(`input[aria-label="Пароль"]`, f.password)
	p.Set(`input[type="checkbox"][name="remember"]`, f.remember)
	p.Set(`.error-message`, f.banner)
	f.remember.OnClick = func() error {
		f.remember.Attrs["checked"] = ""
		return nil
	}
	p.Set(`button[type="submit"]:has-text("Увійти")`, &drivertest.Node{Visible: true, OnClick: func() error {
		switch {
		case silent:
		case f.password.Value == "secret":
			p.SetURL(testBase + "/uk/")
			p.Set(`button:has-text("Вихід")`, &drivertest.Node{Visible: true})
		default:
			f.banner.Visible = true
		}
		return nil
	}})
	return f
}

func TestLogin(t *testing.T) {
	tests := []struct {
		name     string
		password string
		silent   bool
		want     statesync.LoginOutcome
		message  string
	}{
		{"accepted", "secret", false, statesync.LoginSucceeded, ""},
		{"rejected", "wrong", false, statesync.LoginRejected, "Невірний пароль"},
		{"no reaction", "secret", true, statesync.LoginIndeterminate, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newLoginFixture(tt.silent)
			login := NewLoginPage(testSurface(f.page))

			res, err := login.Login(context.Background(), f.page, statesync.Credentials{
				Username:   "qa@example.com",
				Password:   tt.password,
				RememberMe: true,
			})
			require.NoError(t, err)
			assert.Equal(t, tt.want, res.Outcome)
			assert.Equal(t, tt.message, res.Message)
			assert.Equal(t, "qa@example.com", f.email.Value)
			assert.Contains(t, f.remember.Attrs, "checked")
		})
	}
}

func TestLoginIndicators(t *testing.T) {
	f := newLoginFixture(false)
	lp := NewLoginPage(testSurface(f.page))
	ctx := context.Background()

	ok, err := lp.IsLoggedIn(ctx)
	require.NoError(t, err)
	assert.False(t, ok)

	_, err = lp.Login(ctx, f.page, statesync.Credentials{Username: "u", Password: "secret"})
	require.NoError(t, err)

	ok, err = lp.IsLoggedIn(ctx)
	require.NoError(t, err)
	assert.True(t, ok)
	require.NoError(t, lp.Logout(ctx))
}

func TestLoginIndicatorFallback(t *testing.T) {
	ctx := context.Background()
	tests := []struct {
		name      string
		url       string
		loginLink bool
		cookie    string
		want      bool
	}{
		{"session cookie and no login link", testBase + "/uk/live/", false, "sessionid", true},
		{"login link still shown", testBase + "/uk/live/", true, "sessionid", false},
		{"on the login form", testBase + "/uk/login/", false, "user-token", false},
		{"no auth cookie", testBase + "/uk/live/", false, "_ga", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			bc := drivertest.NewContext()
			p := bc.NewFakePage()
			p.SetURL(tt.url)
			p.Set(`a:has-text("Login")`, &drivertest.Node{Visible: tt.loginLink})
			bc.SetCookies(driver.Cookie{Name: tt.cookie, Value: "v", Domain: "site.test"})

			ok, err := NewLoginPage(testSurface(p)).IsLoggedIn(ctx)
			require.NoError(t, err)
			assert.Equal(t, tt.want, ok)
		})
	}
}

func TestLoginWithoutForm(t *testing.T) {
	p := drivertest.NewContext().NewFakePage()
	_, err := NewLoginPage(testSurface(p)).Login(context.Background(), p, statesync.Credentials{Username: "u", Password: "p"})
	assert.ErrorContains(t, err, "failed to open login form")
}

func newSettingsFixture() *drivertest.Page {
	p := drivertest.NewContext().NewFakePage()
	p.SetURL(testBase + "/uk/")
	p.Set(languageDropdown, &drivertest.Node{Visible: true})
	p.Set(`div[data-role="option-en"]`, &drivertest.Node{Visible: true, OnClick: func() error {
		p.SetURL(testBase + "/en/personal-office/settings/")
		p.Set(pageTitle, &drivertest.Node{Visible: true, Text: "Settings"})
		return nil
	}})
	p.Set(pageTitle, &drivertest.Node{Visible: true, Text: "Налаштування"})
	for _, label := range []string{"Language", "Theme", "Мова", "Тема"} {
		p.Set(`*:has-text("`+label+`")`, &drivertest.Node{Visible: true})
	}
	p.Set(themeSwitcher(ThemeDark), &drivertest.Node{Visible: true, Attrs: map[string]string{"class": "switcher active"}})
	p.Set(themeSwitcher(ThemeLight), &drivertest.Node{Visible: true, Attrs: map[string]string{"class": "switcher"}})
	return p
}

func TestSettingsLanguage(t *testing.T) {
	p := newSettingsFixture()
	settings := NewSettingsPage(testSurface(p))
	ctx := context.Background()

	require.NoError(t, settings.Open(ctx))
	assert.Equal(t, []string{testBase + "/uk/personal-office/settings/"}, p.Navigations)
	assert.Equal(t, Ukrainian, settings.Language())
	require.NoError(t, settings.VerifyLanguage(ctx, Ukrainian))

	lang, err := settings.ToggleLanguage(ctx)
	require.NoError(t, err)
	assert.Equal(t, English, lang)
	require.NoError(t, settings.VerifyLanguage(ctx, English))
	assert.Error(t, settings.VerifyLanguage(ctx, Ukrainian))
}

func TestSettingsTheme(t *testing.T) {
	p := newSettingsFixture()
	background := "rgb(255, 255, 255)"
	p.EvalFunc = func(string, any) (any, error) {
		return map[string]any{"bodyClasses": "page theme-light", "backgroundColor": background}, nil
	}
	settings := NewSettingsPage(testSurface(p))
	ctx := context.Background()

	active, err := settings.ActiveTheme(ctx)
	require.NoError(t, err)
	assert.Equal(t, ThemeDark, active)

	target, err := settings.ToggleTheme(ctx)
	require.NoError(t, err)
	assert.Equal(t, ThemeLight, target)

	info, err := settings.VerifyTheme(ctx)
	require.NoError(t, err)
	assert.False(t, info.Dark())

	background = "transparent"
	_, err = settings.VerifyTheme(ctx)
	assert.ErrorContains(t, err, "not an rgb colour")
}

func newChannelFixture(title string) (*drivertest.Page, *drivertest.Node) {
	ch := DefaultChannel()
	main := drivertest.NewContext().NewFakePage()
	main.Set(`a[href="`+ch.Link+`"]`, &drivertest.Node{Visible: true})

	popup := drivertest.NewPage()
	popup.SetURL(ch.Link)
	popup.SetTitle(title)
	popup.Set(`h1:has-text("Favbet UA")`, &drivertest.Node{Visible: true})
	popup.Set(`*:has-text("@favbetua")`, &drivertest.Node{Visible: true})
	popup.Set(`*:has-text("Офіційний ютуб-канал компанії Favbet")`, &drivertest.Node{Visible: true})
	search := &drivertest.Node{Visible: true}
	popup.Set(`input[name="search_query"]`, search)
	popup.Set(`button[aria-label="Search"]`, &drivertest.Node{Visible: true, OnClick: func() error {
		popup.Set(`a:has-text("FAVBET | Support Those Who Support Us: ENGLAND")`, &drivertest.Node{Visible: true})
		return nil
	}})
	main.Popup = popup
	return main, search
}

func TestChannel(t *testing.T) {
	main, search := newChannelFixture("Favbet UA - YouTube")
	ctx := context.Background()

	tab, err := NewChannelPage(testSurface(main), DefaultChannel()).Follow(ctx)
	require.NoError(t, err)
	require.NoError(t, tab.Verify(ctx))

	query := "FAVBET | Support Those Who Support Us: ENGLAND | 2022 FIFA World Cup"
	require.NoError(t, tab.FindVideo(ctx, query, "FAVBET | Support Those Who Support Us: ENGLAND"))

	assert.Equal(t, query, search.Value)
	assert.NoError(t, tab.Close())
}

func TestChannelWrongTitle(t *testing.T) {
	main, _ := newChannelFixture("Some Other Channel - YouTube")
	ctx := context.Background()

	tab, err := NewChannelPage(testSurface(main), DefaultChannel()).Follow(ctx)
	require.NoError(t, err)
	assert.ErrorContains(t, tab.Verify(ctx), "wrong channel")
}

func TestChannelPopupMissing(t *testing.T) {
	main, _ := newChannelFixture("x")
	main.Popup = nil
	_, err := NewChannelPage(testSurface(main), DefaultChannel()).Follow(context.Background())
	assert.ErrorContains(t, err, "new tab")
}

func bonusEval(count map[string]any, wagering map[string]any) (func(string, any) (any, error), *[]string) {
	var calls []string
	return func(_ string, arg any) (any, error) {
		path, _ := arg.(string)
		calls = append(calls, path)
		switch path {
		case BonusCountPath:
			return count, nil
		case BonusWageringPath:
			return wagering, nil
		}
		return nil, errors.New("unexpected path")
	}, &calls
}

func okResponse(data any) map[string]any {
	return map[string]any{"status": 200.0, "statusText": "OK", "ok": true, "data": data}
}

func countData(n float64) map[string]any {
	return map[string]any{"response": map[string]any{"response": map[string]any{"bonusCount": n}}}
}

func TestBonusesFetch(t *testing.T) {
	p := drivertest.NewContext().NewFakePage()
	eval, calls := bonusEval(okResponse(countData(2)), okResponse(map[string]any{
		"response": []any{
			map[string]any{"bonusId": "b1", "value": "25.5", "wageringRequired": 100.0, "validUntil": "2025-01-01"},
			map[string]any{"id": 7.0, "type": "freebet"},
		},
	}))
	p.EvalFunc = eval

	report, err := NewBonusesAPI(testSurface(p)).Fetch(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{BonusCountPath, BonusWageringPath}, *calls)
	assert.Equal(t, 2, report.Total)
	assert.Equal(t, []Bonus{
		{ID: "b1", Type: "bonus", Amount: 25.5, Currency: "UAH", Status: "active", Wagering: 100, ExpiryDate: "2025-01-01"},
		{ID: "7", Type: "freebet", Currency: "UAH", Status: "active"},
	}, report.Bonuses)
	assert.NoError(t, ValidateBonuses(report.Bonuses))
}

func TestBonusesFetchWithoutBonuses(t *testing.T) {
	p := drivertest.NewContext().NewFakePage()
	eval, calls := bonusEval(okResponse(countData(0)), nil)
	p.EvalFunc = eval

	report, err := NewBonusesAPI(testSurface(p)).Fetch(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{BonusCountPath}, *calls)
	assert.Empty(t, report.Bonuses)
	assert.NotNil(t, report.Bonuses)
}

func TestBonusesFetchPlaceholders(t *testing.T) {
	p := drivertest.NewContext().NewFakePage()
	eval, _ := bonusEval(okResponse(countData(2)), map[string]any{"status": 500.0, "statusText": "Internal Server Error", "ok": false, "data": "oops"})
	p.EvalFunc = eval

	report, err := NewBonusesAPI(testSurface(p)).Fetch(context.Background())
	require.NoError(t, err)
	require.Len(t, report.Bonuses, 2)
	assert.Equal(t, "bonus_2", report.Bonuses[1].ID)
	assert.False(t, report.Wagering.OK)
}

func TestBonusesFetchRejectedCount(t *testing.T) {
	p := drivertest.NewContext().NewFakePage()
	eval, _ := bonusEval(map[string]any{"status": 401.0, "statusText": "Unauthorized", "ok": false, "data": "denied"}, nil)
	p.EvalFunc = eval

	_, err := NewBonusesAPI(testSurface(p)).Fetch(context.Background())
	assert.ErrorContains(t, err, "401 Unauthorized")
}

func TestBonusesFetchNetworkError(t *testing.T) {
	p := drivertest.NewContext().NewFakePage()
	eval, _ := bonusEval(map[string]any{"error": "Failed to fetch"}, nil)
	p.EvalFunc = eval

	_, err := NewBonusesAPI(testSurface(p)).Fetch(context.Background())
	assert.ErrorContains(t, err, "Failed to fetch")
}

func TestNormalizeBonusesRejectsBadRecords(t *testing.T) {
	bonuses, err := NormalizeBonuses([]any{
		"not an object",
		map[string]any{"amount": "lots"},
		map[string]any{"amount": true},
	})
	require.Error(t, err)
	assert.Len(t, bonuses, 2)
	assert.ErrorContains(t, err, "bonus 0 is string")
	assert.ErrorContains(t, err, `amount is not a number: "lots"`)
}

func TestValidateBonuses(t *testing.T) {
	err := ValidateBonuses([]Bonus{
		{ID: "ok", Amount: 1},
		{},
		{ID: "neg", Amount: -1, Wagering: -2},
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "index 1 missing both id and type")
	assert.Contains(t, err.Error(), "index 2 has invalid amount")
	assert.Contains(t, err.Error(), "index 2 has invalid wagering")
}

package pages

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"strings"

	"github.com/entrhq/uisync/pkg/driver"
	"github.com/entrhq/uisync/pkg/locator"
)

// Language is a site locale as it appears in URLs.
type Language string

const (
	Ukrainian Language = "uk"
	English   Language = "en"
)

// Opposite returns the other supported language.
func (l Language) Opposite() Language {
	if l == English {
		return Ukrainian
	}
	return English
}

// Theme is a colour scheme.
type Theme string

const (
	ThemeLight Theme = "light"
	ThemeAuto  Theme = "auto"
	ThemeDark  Theme = "dark"
)

const (
	settingsPathFragment = "/personal-office/settings/"
	languageDropdown     = `[data-role="settings-language"]`
	pageTitle            = `[data-role="account_pageTitle_text"]`
)

// settingsLabels are the texts a settings page shows in each language.
var settingsLabels = map[Language]struct {
	title, language, theme string
}{
	English:   {"Settings", "Language", "Theme"},
	Ukrainian: {"Налаштування", "Мова", "Тема"},
}

var rgbColor = regexp.MustCompile(`rgb\(\d+,\s*\d+,\s*\d+\)`)

const themeScript = `() => ({
  bodyClasses: document.body.className,
  backgroundColor: window.getComputedStyle(document.body).backgroundColor,
})`

// ThemeInfo is what the document body reports about the applied theme.
type ThemeInfo struct {
	BodyClasses     string `json:"bodyClasses"`
	BackgroundColor string `json:"backgroundColor"`
}

// Dark reports whether the body carries a dark class.
func (t ThemeInfo) Dark() bool { return strings.Contains(t.BodyClasses, "dark") }

// SettingsPage is the account settings screen.
type SettingsPage struct {
	Surface
}

// NewSettingsPage returns a settings page on s.
func NewSettingsPage(s Surface) *SettingsPage { return &SettingsPage{Surface: s} }

// Language returns the locale of the current URL, defaulting to English
// when the URL carries neither.
func (p *SettingsPage) Language() Language {
	if strings.Contains(p.Page.URL(), "/uk/") {
		return Ukrainian
	}
	return English
}

// Open navigates to the settings page in the current language.
func (p *SettingsPage) Open(ctx context.Context) error {
	path := "/" + string(p.Language()) + settingsPathFragment
	if err := p.Surface.Open(ctx, path); err != nil {
		return err
	}
	urlCtx, cancel := driver.WithTimeout(ctx, p.Timeouts.Medium)
	defer cancel()
	if err := p.Page.WaitForURL(urlCtx, func(u string) bool { return strings.Contains(u, settingsPathFragment) }); err != nil {
		return fmt.Errorf("settings page did not open: %w", err)
	}
	return nil
}

// ToggleLanguage switches between Ukrainian and English and returns the
// language it switched to once the URL reflects it.
func (p *SettingsPage) ToggleLanguage(ctx context.Context) (Language, error) {
	target := p.Language().Opposite()
	p.Logger.Infof("switching language to %s", target)

	if err := p.Page.Locate(languageDropdown).Click(ctx); err != nil {
		return "", fmt.Errorf("failed to open language menu: %w", err)
	}
	option := fmt.Sprintf(`div[data-role="option-%s"]`, target)
	if err := p.Page.Locate(option).Click(ctx); err != nil {
		return "", fmt.Errorf("failed to pick %s: %w", target, err)
	}

	fragment := "/" + string(target) + "/"
	urlCtx, cancel := driver.WithTimeout(ctx, p.Timeouts.Medium)
	defer cancel()
	if err := p.Page.WaitForURL(urlCtx, func(u string) bool { return strings.Contains(u, fragment) }); err != nil {
		return "", fmt.Errorf("language did not change to %s: %w", target, err)
	}
	return target, nil
}

// VerifyLanguage waits until the page title and labels are in lang.
func (p *SettingsPage) VerifyLanguage(ctx context.Context, lang Language) error {
	labels, ok := settingsLabels[lang]
	if !ok {
		return fmt.Errorf("unsupported language %q", lang)
	}

	title := p.Page.Locate(pageTitle).First()
	err := p.until(ctx, func(ctx context.Context) (bool, error) {
		text, err := title.Text(ctx)
		if err != nil {
			return false, err
		}
		if !strings.Contains(text, labels.title) {
			return false, fmt.Errorf("page title is %q, want %q", strings.TrimSpace(text), labels.title)
		}
		return true, nil
	}, p.Timeouts.Medium)
	if err != nil {
		return fmt.Errorf("settings title: %w", err)
	}

	for _, label := range []string{labels.language, labels.theme} {
		chain := locator.Selectors(fmt.Sprintf(`*:has-text(%q)`, label))
		if _, err := p.find(ctx, chain, p.Timeouts.Medium); err != nil {
			return fmt.Errorf("label %q: %w", label, err)
		}
	}
	return nil
}

func themeSwitcher(t Theme) string {
	return fmt.Sprintf(`[data-role="settings-color-scheme-switcher-%s"]`, t)
}

// ActiveTheme returns the switcher that is marked active, or ThemeAuto when
// neither light nor dark is.
func (p *SettingsPage) ActiveTheme(ctx context.Context) (Theme, error) {
	for _, t := range []Theme{ThemeDark, ThemeLight} {
		class, _, err := p.Page.Locate(themeSwitcher(t)).First().Attribute(ctx, "class")
		if err != nil {
			return "", fmt.Errorf("failed to read %s switcher: %w", t, err)
		}
		if strings.Contains(class, "active") {
			return t, nil
		}
	}
	return ThemeAuto, nil
}

// ToggleTheme selects light when dark is active and dark otherwise.
func (p *SettingsPage) ToggleTheme(ctx context.Context) (Theme, error) {
	current, err := p.ActiveTheme(ctx)
	if err != nil {
		return "", err
	}
	target := ThemeDark
	if current == ThemeDark {
		target = ThemeLight
	}
	p.Logger.Infof("switching theme from %s to %s", current, target)
	if err := p.Page.Locate(themeSwitcher(target)).Click(ctx); err != nil {
		return "", fmt.Errorf("failed to select %s theme: %w", target, err)
	}
	return target, nil
}

// AppliedTheme reads the body's classes and computed background.
func (p *SettingsPage) AppliedTheme(ctx context.Context) (ThemeInfo, error) {
	res, err := p.Page.Evaluate(ctx, themeScript, nil)
	if err != nil {
		return ThemeInfo{}, fmt.Errorf("failed to read theme: %w", err)
	}
	var info ThemeInfo
	if err := remarshal(res, &info); err != nil {
		return ThemeInfo{}, fmt.Errorf("failed to read theme: %w", err)
	}
	return info, nil
}

// VerifyTheme waits until the body has theme classes and an rgb background.
func (p *SettingsPage) VerifyTheme(ctx context.Context) (ThemeInfo, error) {
	var info ThemeInfo
	err := p.until(ctx, func(ctx context.Context) (bool, error) {
		var err error
		info, err = p.AppliedTheme(ctx)
		if err != nil {
			return false, err
		}
		if !rgbColor.MatchString(info.BackgroundColor) {
			return false, fmt.Errorf("background %q is not an rgb colour", info.BackgroundColor)
		}
		if info.BodyClasses == "" {
			return false, fmt.Errorf("body has no theme classes")
		}
		return true, nil
	}, p.Timeouts.Medium)
	if err != nil {
		return info, fmt.Errorf("theme not applied: %w", err)
	}
	p.Logger.Infof("theme applied: dark=%v background=%s", info.Dark(), info.BackgroundColor)
	return info, nil
}

// remarshal converts a decoded script result into v.
func remarshal(src, v any) error {
	data, err := json.Marshal(src)
	if err != nil {
		return err
	}
	return json.Unmarshal(data, v)
}

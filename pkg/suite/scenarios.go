package suite

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/entrhq/uisync/pkg/pages"
	"github.com/entrhq/uisync/pkg/statesync"
)

// Builtin returns the shipped scenarios in run order.
func Builtin() []Scenario {
	return []Scenario{
		FavoritesScenario{},
		SettingsScenario{},
		ChannelScenario{Channel: pages.DefaultChannel()},
		BonusesScenario{},
	}
}

var liveSection = regexp.MustCompile(`(?i)/(live|sports)`)

// FavoritesScenario adds live events to favorites, removes one and checks
// the removal survives a reload.
type FavoritesScenario struct{}

func (FavoritesScenario) Name() string       { return "favorites-management" }
func (FavoritesScenario) RequiresAuth() bool { return true }

// Prepare empties the favorites list. A list that does not fully clear is
// logged and the scenario still runs.
func (FavoritesScenario) Prepare(ctx context.Context, env *Env) error {
	if err := pages.NewLivePage(env.Surface).Open(ctx); err != nil {
		env.Logger.Warnf("could not open live page before cleanup: %v", err)
	}
	board := pages.NewFavoritesPage(env.Surface)

	report, err := env.Sync.ResetSharedState(ctx, board)
	env.Cleanup = &report
	if err != nil {
		env.Console.Warningf("failed to clear favorites before test: %v", err)
		return nil
	}
	if !report.Converged {
		env.Console.Warningf("favorites not fully cleared: %d remaining", report.Remaining)
		return nil
	}
	env.Console.Verbosef("cleared %d favorite(s) before test", report.Found)
	return nil
}

func (FavoritesScenario) Run(ctx context.Context, env *Env) error {
	live := pages.NewLivePage(env.Surface)
	board := pages.NewFavoritesPage(env.Surface)

	if err := env.Step("Navigate to Live section", func() error {
		if err := live.Open(ctx); err != nil {
			return err
		}
		if u := env.Page.URL(); !liveSection.MatchString(u) {
			return fmt.Errorf("not on a live page: %s", u)
		}
		return nil
	}); err != nil {
		return err
	}

	var added []string
	if err := env.Step("Add several items to favorites", func() error {
		if err := live.WaitForEvents(ctx); err != nil {
			return err
		}
		n, err := live.EventCount(ctx)
		if err != nil {
			return err
		}
		if n == 0 {
			return errors.New("no live events available")
		}
		env.Console.Infof("Found %d live events", n)

		added, err = live.AddFavorites(ctx, env.Config.Favorites.Count)
		if err != nil {
			return err
		}
		if len(added) == 0 {
			return errors.New("no events were added to favorites")
		}
		env.Console.Infof("Added %d items to favorites", len(added))
		return nil
	}); err != nil {
		return err
	}

	if err := env.Step("Navigate to favorites page", func() error {
		if err := board.Open(ctx); err != nil {
			return err
		}
		if u := env.Page.URL(); !strings.Contains(u, "/favorites") {
			return fmt.Errorf("not on the favorites page: %s", u)
		}
		return nil
	}); err != nil {
		return err
	}

	if err := env.Step("Verify favorited items are present", func() error {
		return env.Sync.VerifyCount(ctx, board, len(added), env.Config.Timeouts.Long)
	}); err != nil {
		return err
	}

	var removed statesync.FavoriteEntry
	if err := env.Step("Remove one item from favorites", func() error {
		entries, err := board.Entries(ctx)
		if err != nil {
			return err
		}
		if len(entries) == 0 {
			return errors.New("favorites list is empty")
		}
		removed = entries[0]
		outcome, err := board.Remove(ctx, removed)
		if err != nil {
			return err
		}
		if outcome != statesync.Removed {
			return fmt.Errorf("could not remove %q: %s", removed.Title, outcome)
		}
		env.Console.Infof("Removed item: %s", removed.Title)
		return nil
	}); err != nil {
		return err
	}

	return env.Step("Refresh page and verify item is removed", func() error {
		if err := board.Refresh(ctx); err != nil {
			return err
		}
		return env.Sync.VerifyAbsent(ctx, board, removed.Title, env.Config.Timeouts.Medium)
	})
}

// SettingsScenario flips the language and the colour scheme.
type SettingsScenario struct{}

func (SettingsScenario) Name() string       { return "settings-integration" }
func (SettingsScenario) RequiresAuth() bool { return true }

func (SettingsScenario) Run(ctx context.Context, env *Env) error {
	settings := pages.NewSettingsPage(env.Surface)

	if err := env.Step("Navigate to Settings page", func() error {
		return settings.Open(ctx)
	}); err != nil {
		return err
	}

	var lang pages.Language
	if err := env.Step("Change language", func() error {
		var err error
		lang, err = settings.ToggleLanguage(ctx)
		return err
	}); err != nil {
		return err
	}

	if err := env.Step("Verify language change", func() error {
		return settings.VerifyLanguage(ctx, lang)
	}); err != nil {
		return err
	}

	if err := env.Step("Change theme", func() error {
		theme, err := settings.ToggleTheme(ctx)
		if err == nil {
			env.Console.Verbosef("switched theme to %s", theme)
		}
		return err
	}); err != nil {
		return err
	}

	return env.Step("Verify theme change", func() error {
		info, err := settings.VerifyTheme(ctx)
		if err != nil {
			return err
		}
		env.Console.Infof("Theme info: dark=%v, background=%s", info.Dark(), info.BackgroundColor)
		return nil
	})
}

// ChannelScenario follows the footer link to the video channel.
type ChannelScenario struct {
	Channel pages.Channel
}

func (ChannelScenario) Name() string       { return "video-channel-integration" }
func (ChannelScenario) RequiresAuth() bool { return true }

func (s ChannelScenario) Run(ctx context.Context, env *Env) error {
	var tab *pages.ChannelTab
	if err := env.Step("Navigate to video channel", func() error {
		var err error
		tab, err = pages.NewChannelPage(env.Surface, s.Channel).Follow(ctx)
		return err
	}); err != nil {
		return err
	}
	defer func() {
		if err := tab.Close(); err != nil {
			env.Logger.Debugf("failed to close channel tab: %v", err)
		}
	}()

	if err := env.Step("Verify correct channel is opened", func() error {
		return tab.Verify(ctx)
	}); err != nil {
		return err
	}

	return env.Step("Check for specific video", func() error {
		return tab.FindVideo(ctx, env.Config.Video.Query, env.Config.Video.Match)
	})
}

// BonusesScenario reads the account's bonuses through the site's API.
type BonusesScenario struct{}

func (BonusesScenario) Name() string       { return "bonuses-api" }
func (BonusesScenario) RequiresAuth() bool { return true }

func (BonusesScenario) Run(ctx context.Context, env *Env) error {
	api := pages.NewBonusesAPI(env.Surface)

	var report pages.BonusReport
	if err := env.Step("Fetch bonuses", func() error {
		var err error
		report, err = api.Fetch(ctx)
		return err
	}); err != nil {
		return err
	}

	return env.Step("Validate bonuses", func() error {
		if err := pages.ValidateBonuses(report.Bonuses); err != nil {
			return err
		}
		env.Console.Infof("Found %d bonuses", len(report.Bonuses))
		for _, b := range report.Bonuses {
			env.Console.Verbosef("%s %s: %.2f %s (%s)", b.ID, b.Type, b.Amount, b.Currency, b.Status)
		}
		return nil
	})
}

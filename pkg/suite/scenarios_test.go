package suite

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/entrhq/uisync/pkg/driver/drivertest"
	"github.com/entrhq/uisync/pkg/pages"
	"github.com/entrhq/uisync/pkg/statesync"
)

func TestBuiltinScenarios(t *testing.T) {
	var names []string
	for _, s := range Builtin() {
		names = append(names, s.Name())
		assert.True(t, s.RequiresAuth(), s.Name())
	}
	assert.Equal(t, []string{
		"favorites-management",
		"settings-integration",
		"video-channel-integration",
		"bonuses-api",
	}, names)

	_, ok := Builtin()[0].(Preparer)
	assert.True(t, ok, "favorites scenario must reset the list first")
}

func TestFavoritesScenario(t *testing.T) {
	site := newFakeSite("Dynamo Kyiv - Shakhtar", "Real - Barcelona", "Lakers - Celtics", "Nadal - Federer")
	// left over from an earlier run
	site.favorite("event-id-103")

	cfg := testConfig(t)
	launcher := &drivertest.Launcher{Setup: site.setup}
	r, _ := newTestRunner(t, cfg, launcher, statesync.Credentials{})

	summary, err := r.Run(context.Background(), []Scenario{FavoritesScenario{}})
	require.NoError(t, err)

	res := summary.Results[0]
	require.Equal(t, StatusPassed, res.Status, res.Error)

	require.NotNil(t, res.Cleanup)
	assert.Equal(t, 1, res.Cleanup.Found)
	assert.True(t, res.Cleanup.Converged)

	var steps []string
	for _, s := range res.Steps {
		steps = append(steps, s.Name)
	}
	assert.Equal(t, []string{
		"Navigate to Live section",
		"Add several items to favorites",
		"Navigate to favorites page",
		"Verify favorited items are present",
		"Remove one item from favorites",
		"Refresh page and verify item is removed",
	}, steps)

	assert.Equal(t, []string{"Real - Barcelona", "Lakers - Celtics"}, site.favorites())
}

func TestFavoritesScenarioWithoutLiveEvents(t *testing.T) {
	site := newFakeSite()
	cfg := testConfig(t)
	launcher := &drivertest.Launcher{Setup: func(p *drivertest.Page) {
		site.setup(p)
		p.Set(".no-events", &drivertest.Node{Visible: true})
	}}
	r, _ := newTestRunner(t, cfg, launcher, statesync.Credentials{})

	summary, err := r.Run(context.Background(), []Scenario{FavoritesScenario{}})
	require.NoError(t, err)

	res := summary.Results[0]
	assert.Equal(t, StatusFailed, res.Status)
	assert.Equal(t, "Add several items to favorites: no live events available", res.Error)
}

func bonusEval(countStatus int, bonuses []any) func(string, any) (any, error) {
	return func(script string, arg any) (any, error) {
		switch arg {
		case pages.BonusCountPath:
			if countStatus != 200 {
				return map[string]any{"status": float64(countStatus), "statusText": "Unauthorized", "ok": false, "data": "denied"}, nil
			}
			return map[string]any{"status": 200.0, "statusText": "OK", "ok": true, "data": map[string]any{
				"response": map[string]any{"response": map[string]any{"bonusCount": float64(len(bonuses))}},
			}}, nil
		case pages.BonusWageringPath:
			return map[string]any{"status": 200.0, "statusText": "OK", "ok": true, "data": map[string]any{
				"response": bonuses,
			}}, nil
		}
		return nil, nil
	}
}

func TestBonusesScenario(t *testing.T) {
	cfg := testConfig(t)
	launcher := &drivertest.Launcher{Setup: func(p *drivertest.Page) {
		loggedIn(p)
		p.EvalFunc = bonusEval(200, []any{
			map[string]any{"bonusId": "b-1", "bonusType": "freebet", "value": 50.0},
			map[string]any{"id": "b-2", "type": "cashback", "amount": "12.5", "currency": "EUR"},
		})
	}}
	r, out := newTestRunner(t, cfg, launcher, statesync.Credentials{})

	summary, err := r.Run(context.Background(), []Scenario{BonusesScenario{}})
	require.NoError(t, err)

	res := summary.Results[0]
	require.Equal(t, StatusPassed, res.Status, res.Error)
	require.Len(t, res.Steps, 2)
	assert.Contains(t, out.String(), "Found 2 bonuses")
	assert.Contains(t, out.String(), "b-2 cashback: 12.50 EUR (active)")
}

func TestBonusesScenarioRejected(t *testing.T) {
	cfg := testConfig(t)
	launcher := &drivertest.Launcher{Setup: func(p *drivertest.Page) {
		loggedIn(p)
		p.EvalFunc = bonusEval(401, nil)
	}}
	r, _ := newTestRunner(t, cfg, launcher, statesync.Credentials{})

	summary, err := r.Run(context.Background(), []Scenario{BonusesScenario{}})
	require.NoError(t, err)

	res := summary.Results[0]
	assert.Equal(t, StatusFailed, res.Status)
	assert.Contains(t, res.Error, "Fetch bonuses: bonus count returned 401")
	require.Len(t, res.Steps, 1)
}

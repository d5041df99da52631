package roddriver

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/entrhq/uisync/pkg/driver"
)

func TestContextResolve(t *testing.T) {
	tests := []struct {
		name   string
		base   string
		target string
		want   string
	}{
		{"no base", "", "/uk/live/", "/uk/live/"},
		{"relative path", "https://www.example.ua", "/uk/live/", "https://www.example.ua/uk/live/"},
		{"absolute target", "https://www.example.ua", "https://other.test/x", "https://other.test/x"},
		{"base with path", "https://www.example.ua/uk/", "favorites/", "https://www.example.ua/uk/favorites/"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := &Context{opts: driver.ContextOptions{BaseURL: tt.base}}
			assert.Equal(t, tt.want, c.resolve(tt.target))
		})
	}
}

func TestMapError(t *testing.T) {
	assert.Nil(t, mapError(nil))
	assert.ErrorIs(t, mapError(context.DeadlineExceeded), driver.ErrTimeout)

	other := errors.New("cdp failure")
	assert.Equal(t, other, mapError(other))
}

// Runs against a local Chrome. Enable with UISYNC_BROWSER=1.
func TestRodAgainstFixture(t *testing.T) {
	if testing.Short() || os.Getenv("UISYNC_BROWSER") == "" {
		t.Skip("skipping live browser test")
	}

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		_, _ = w.Write([]byte(`<html><head><title>Rod</title></head><body>
<a href="/login/">Вхід</a><a href="/help">Help</a>
<div data-role="event-id-7">Event<svg data-role="event-favorite-star-icon" style="width:10px;height:10px"></svg></div>
</body></html>`))
	}))
	defer srv.Close()

	l, err := Launch(Options{Headless: true})
	require.NoError(t, err)
	defer l.Close()

	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	bc, err := l.NewContext(ctx, driver.ContextOptions{BaseURL: srv.URL})
	require.NoError(t, err)
	require.NoError(t, bc.AddInitScript(ctx, `window.localStorage.setItem("k", "v")`))

	page, err := bc.NewPage(ctx)
	require.NoError(t, err)
	require.NoError(t, page.Navigate(ctx, "/"))

	n, err := page.Locate(`a:has-text("Вхід"), a:has-text("Login")`).Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	n, err = page.Locate(`[data-role^="event-id-"]`).Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	v, err := page.Evaluate(ctx, `() => window.localStorage.getItem("k")`, nil)
	require.NoError(t, err)
	assert.Equal(t, "v", v)

	short, cancelShort := context.WithTimeout(ctx, 300*time.Millisecond)
	defer cancelShort()
	assert.ErrorIs(t, page.Locate(".missing").WaitFor(short, driver.StateVisible), driver.ErrTimeout)
}

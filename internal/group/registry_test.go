package group

import (
	"context"
	"net/http"
	"testing"

	"github.com/stretchr/testify/require"
)

func staticFetch(value any) FetchFunc {
	return func(context.Context, ...string) (any, error) { return value, nil }
}

func TestRegisterResolveAndList(t *testing.T) {
	r := NewRegistry()
	require.NoError(t, r.Register(Group{Name: "weather", Fetch: staticFetch(1)}))
	require.NoError(t, r.Register(Group{Name: "Agenda", Fetch: staticFetch(2)}))

	g, ok := r.Resolve("WEATHER")
	require.True(t, ok, "resolve should be case-insensitive")
	require.Equal(t, "weather", g.Name)

	g, ok = r.Resolve("agenda")
	require.True(t, ok)
	require.Equal(t, "agenda", g.Name, "names are normalised on register")

	require.Equal(t, []string{"agenda", "weather"}, r.Names())
}

func TestRegisterRejectsInvalidGroups(t *testing.T) {
	r := NewRegistry()
	require.Error(t, r.Register(Group{Name: "", Fetch: staticFetch(1)}))
	require.Error(t, r.Register(Group{Name: "../etc", Fetch: staticFetch(1)}))
	require.Error(t, r.Register(Group{Name: "nofetch"}))

	require.NoError(t, r.Register(Group{Name: "weather", Fetch: staticFetch(1)}))
	require.Error(t, r.Register(Group{Name: "Weather", Fetch: staticFetch(1)}), "duplicate registration should fail")
}

func TestMustRegisterPanics(t *testing.T) {
	r := NewRegistry()
	require.Panics(t, func() { r.MustRegister(Group{Name: "broken"}) })
}

func TestResolveOnNilRegistry(t *testing.T) {
	var r *Registry
	_, ok := r.Resolve("weather")
	require.False(t, ok)
	require.Empty(t, r.Names())
}

func TestFetchErrorDefaults(t *testing.T) {
	err := NewFetchError("no such room")
	require.Equal(t, http.StatusNotFound, err.Code)
	require.Equal(t, http.StatusBadGateway, err.WithCode(http.StatusBadGateway).Code)
	require.Contains(t, err.Error(), "no such room")

	formatted := Errorf(http.StatusTeapot, "upstream said %d", 418)
	require.Equal(t, "upstream said 418", formatted.Message)
	require.Equal(t, http.StatusTeapot, formatted.Code)
}

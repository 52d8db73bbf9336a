package fetchkind

import (
	"errors"
	"net/http"
	"net/url"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/any-hub/stalecache/internal/group"
)

func TestExpandPlaceholders(t *testing.T) {
	cases := []struct {
		name     string
		template string
		args     []string
		want     string
	}{
		{"key alias", "https://api.local/weather/{key}", []string{"paris"}, "https://api.local/weather/paris"},
		{"indexed", "/rooms/{0}/week/{1}", []string{"b12", "42"}, "/rooms/b12/week/42"},
		{"missing arg", "/rooms/{0}/week/{1}", []string{"b12"}, "/rooms/b12/week/"},
		{"unknown placeholder kept", "/q?f={format}&id={0}", []string{"7"}, "/q?f={format}&id=7"},
		{"unterminated", "/x/{0", []string{"7"}, "/x/{0"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			require.Equal(t, tc.want, Expand(tc.template, tc.args, nil))
		})
	}
}

func TestExpandEscapes(t *testing.T) {
	got := Expand("/search/{key}", []string{"new york/ny"}, url.PathEscape)
	require.Equal(t, "/search/new%20york%2Fny", got)
}

func TestExtract(t *testing.T) {
	body := []byte(`{"current":{"temp":20,"wind":3},"list":[1,2]}`)

	raw, err := Extract(body, "")
	require.NoError(t, err)
	require.JSONEq(t, string(body), string(raw))

	raw, err = Extract(body, "current.temp")
	require.NoError(t, err)
	require.Equal(t, "20", string(raw))

	raw, err = Extract(body, "list")
	require.NoError(t, err)
	require.Equal(t, "[1,2]", string(raw))

	_, err = Extract(body, "missing")
	var fetchErr *group.FetchError
	require.True(t, errors.As(err, &fetchErr))
	require.Equal(t, http.StatusNotFound, fetchErr.Code)

	_, err = Extract([]byte("<html>"), "")
	require.True(t, errors.As(err, &fetchErr))
	require.Equal(t, http.StatusBadGateway, fetchErr.Code)
}

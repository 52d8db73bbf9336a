package file

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/any-hub/stalecache/internal/fetchkind"
	"github.com/any-hub/stalecache/internal/group"
)

func TestFileKindReadsTemplatePath(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "paris.json"), []byte(`{"temp":20,"unit":"c"}`), 0o644))

	fetch, err := Build(fetchkind.Spec{Name: "weather", Upstream: filepath.Join(dir, "{key}.json"), Select: "temp"})
	require.NoError(t, err)

	payload, err := fetch(context.Background(), "paris")
	require.NoError(t, err)
	require.Equal(t, "20", string(payload.(json.RawMessage)))
}

func TestFileKindMissingFile(t *testing.T) {
	fetch, err := Build(fetchkind.Spec{Name: "weather", Upstream: filepath.Join(t.TempDir(), "{key}.json")})
	require.NoError(t, err)

	_, err = fetch(context.Background(), "nowhere")
	var fetchErr *group.FetchError
	require.True(t, errors.As(err, &fetchErr))
	require.Equal(t, http.StatusNotFound, fetchErr.Code)
}

func TestFileKindRejectsTraversal(t *testing.T) {
	fetch, err := Build(fetchkind.Spec{Name: "weather", Upstream: filepath.Join(t.TempDir(), "{key}.json")})
	require.NoError(t, err)

	_, err = fetch(context.Background(), "../secret")
	var fetchErr *group.FetchError
	require.True(t, errors.As(err, &fetchErr))
	require.Equal(t, http.StatusBadRequest, fetchErr.Code)
}

func TestFileKindIsRegistered(t *testing.T) {
	kind, ok := fetchkind.Resolve("file")
	require.True(t, ok)
	require.Error(t, kind.ValidateUpstream(" "))
}

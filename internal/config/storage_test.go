package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"switchyard/internal/api"
)

func TestRouteStore_SaveLoadDelete(t *testing.T) {
	store := NewRouteStore(t.TempDir())
	off := false
	r := RouteConfig{ID: "orders/intake", From: "memory:orders", To: []string{"log:orders"}, AutoStartup: &off}

	require.NoError(t, store.Save(r))
	_, err := os.Stat(filepath.Join(store.Dir(), "orders_intake.yaml"))
	require.NoError(t, err)

	loaded, err := store.Load("orders/intake")
	require.NoError(t, err)
	assert.True(t, r.Equal(loaded))

	all, err := store.LoadAll()
	require.NoError(t, err)
	assert.Len(t, all, 1)

	require.NoError(t, store.Delete("orders/intake"))
	_, err = store.Load("orders/intake")
	assert.True(t, api.IsNotFound(err))
	assert.True(t, api.IsNotFound(store.Delete("orders/intake")))
}

func TestRouteStore_MissingDirectory(t *testing.T) {
	all, err := NewRouteStore(filepath.Join(t.TempDir(), "nope")).LoadAll()
	require.NoError(t, err)
	assert.Empty(t, all)
}

func TestRouteStore_ParseError(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, RoutesDir, "bad.yaml"), "id: [unterminated\n")

	_, err := NewRouteStore(dir).LoadAll()
	var ce *ConfigurationError
	require.True(t, errors.As(err, &ce))
	assert.Equal(t, ErrorTypeParse, ce.ErrorType)
}

func TestSanitizeFilename(t *testing.T) {
	tests := map[string]string{
		"simple":        "simple",
		"a/b":           "a_b",
		"with spaces ":  "with_spaces",
		"a..b":          "a_b",
		"__x__":         "x",
		"???":           "unnamed",
		"memory:orders": "memory_orders",
	}
	for in, want := range tests {
		assert.Equal(t, want, sanitizeFilename(in), in)
	}
}

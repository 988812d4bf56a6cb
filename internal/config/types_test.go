package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDiffRoutes(t *testing.T) {
	off := false
	before := []RouteConfig{
		{ID: "keep", From: "memory:a"},
		{ID: "change", From: "memory:b", To: []string{"log:x"}},
		{ID: "drop", From: "memory:c"},
		{ID: "toggle", From: "memory:d"},
	}
	after := []RouteConfig{
		{ID: "keep", From: "memory:a"},
		{ID: "change", From: "memory:b", To: []string{"log:y"}},
		{ID: "toggle", From: "memory:d", AutoStartup: &off},
		{ID: "new", From: "memory:e"},
	}

	d := DiffRoutes(before, after)
	assert.Equal(t, []RouteConfig{{ID: "new", From: "memory:e"}}, d.Added)
	assert.Equal(t, []RouteConfig{{ID: "drop", From: "memory:c"}}, d.Removed)
	assert.Len(t, d.Changed, 2)
	assert.Equal(t, "change", d.Changed[0].ID)
	assert.Equal(t, "toggle", d.Changed[1].ID)
	assert.False(t, d.IsEmpty())

	assert.True(t, DiffRoutes(before, before).IsEmpty())
}

func TestRouteConfig_AutoStartupDefaultsToTrue(t *testing.T) {
	on := true
	assert.True(t, RouteConfig{}.IsAutoStartup())
	assert.True(t, RouteConfig{}.Equal(RouteConfig{AutoStartup: &on}))
}

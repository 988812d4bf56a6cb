package supervising

import (
	"testing"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/stretchr/testify/assert"
)

func delays(b backoff.BackOff, n int) []time.Duration {
	out := make([]time.Duration, 0, n)
	for i := 0; i < n; i++ {
		out = append(out, b.NextBackOff())
	}
	return out
}

func TestBackOffConfig_NewBackOff(t *testing.T) {
	tests := []struct {
		name string
		cfg  BackOffConfig
		want []time.Duration
	}{
		{
			name: "fixed delay",
			cfg:  BackOffConfig{Delay: 10 * time.Millisecond, Multiplier: 1},
			want: []time.Duration{10 * time.Millisecond, 10 * time.Millisecond, 10 * time.Millisecond},
		},
		{
			name: "max attempts",
			cfg:  BackOffConfig{Delay: 10 * time.Millisecond, MaxAttempts: 2},
			want: []time.Duration{10 * time.Millisecond, 10 * time.Millisecond, backoff.Stop},
		},
		{
			name: "multiplier capped by max delay",
			cfg:  BackOffConfig{Delay: 10 * time.Millisecond, Multiplier: 2, MaxDelay: 30 * time.Millisecond},
			want: []time.Duration{10 * time.Millisecond, 20 * time.Millisecond, 30 * time.Millisecond},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, delays(tt.cfg.NewBackOff(), len(tt.want)))
		})
	}
}

func TestBackOffConfig_Merge(t *testing.T) {
	base := BackOffConfig{Delay: time.Second, MaxAttempts: 5, Multiplier: 1}
	got := base.merge(BackOffConfig{MaxAttempts: 1, MaxDelay: time.Minute})
	assert.Equal(t, BackOffConfig{Delay: time.Second, MaxAttempts: 1, MaxDelay: time.Minute, Multiplier: 1}, got)
	assert.Equal(t, base, base.merge(BackOffConfig{}))
}

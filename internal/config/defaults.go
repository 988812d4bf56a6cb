package config

import "time"

const (
	DefaultName         = "switchyard"
	DefaultAdminAddress = "localhost:8090"
)

// Default returns the configuration used when no file overrides it.
func Default() Config {
	return Config{
		Name:        DefaultName,
		AutoStartup: true,
		Shutdown: ShutdownConfig{
			Timeout:      45 * time.Second,
			PollInterval: time.Second,
			ReverseOrder: true,
		},
		Pool: PoolConfig{Capacity: 100},
		Supervising: SupervisingConfig{
			BackOff: BackOffConfig{Delay: 2 * time.Second, Multiplier: 1},
		},
		Admin: AdminConfig{Address: DefaultAdminAddress},
	}
}

package config

const (
	defaultSeatName     = "seat0"
	defaultDRMDevice    = "/dev/dri/card0"
	defaultLockPath     = "~/.local/state/legate/legated.lock"
	defaultLogDir       = "~/.local/state/legate/logs"
	defaultLogLevel     = "info"
	defaultLogFormat    = "console"
	defaultWatchDevices = true
)

// Default returns a Config populated with repository defaults.
func Default() Config {
	return Config{
		Seat: Seat{
			Name:      defaultSeatName,
			DRMDevice: defaultDRMDevice,
		},
		Daemon: Daemon{
			LockPath:     defaultLockPath,
			WatchDevices: defaultWatchDevices,
		},
		Logging: Logging{
			Level:  defaultLogLevel,
			Format: defaultLogFormat,
			Dir:    defaultLogDir,
		},
	}
}

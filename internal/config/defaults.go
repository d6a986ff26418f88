package config

const (
	defaultDataDir         = "~/.local/share/quorum"
	defaultAPIBind         = "127.0.0.1:7985"
	defaultLogFormat       = "console"
	defaultLogLevel        = "info"
	defaultMaxAssignees    = 256
	defaultMaxMessageBytes = 4096
	defaultGroupRole       = 1
	defaultRetryInterval   = 30
	defaultMaxAttempts     = 5
	defaultRequestTimeout  = 10
	defaultPageSize        = 10
	defaultMaxPageSize     = 100
)

// Default returns a Config populated with repository defaults.
func Default() Config {
	return Config{
		Paths: Paths{
			DataDir: defaultDataDir,
			APIBind: defaultAPIBind,
		},
		Logging: Logging{
			Format: defaultLogFormat,
			Level:  defaultLogLevel,
		},
		Approval: Approval{
			MaxAssignees:     defaultMaxAssignees,
			MaxMessageBytes:  defaultMaxMessageBytes,
			DefaultGroupRole: defaultGroupRole,
		},
		Fanout: Fanout{
			RetryInterval:  defaultRetryInterval,
			MaxAttempts:    defaultMaxAttempts,
			RequestTimeout: defaultRequestTimeout,
		},
		Query: Query{
			PageSize:    defaultPageSize,
			MaxPageSize: defaultMaxPageSize,
		},
	}
}

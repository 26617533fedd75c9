package config

const (
	defaultStagingDir             = "~/.local/share/gantry/staging"
	defaultOutputDir              = "~/.local/share/gantry/output"
	defaultLogDir                 = "~/.local/share/gantry/logs"
	defaultAPIBind                = "127.0.0.1:7410"
	defaultWorkers                = 2
	defaultQueuePollInterval      = 5
	defaultStageTimeout           = 1800
	defaultHeartbeatInterval      = 15
	defaultHeartbeatTimeout       = 120
	defaultMaxAttempts            = 3
	defaultRetryBackoffSeconds    = 30
	defaultRetryBackoffCapSeconds = 900
	defaultBatchMaxConcurrent     = 2
	defaultRefSyncIntervalHours   = 24
	defaultNotifyRequestTimeout   = 10
	defaultLogLevel               = "info"
	defaultLogFormat              = "console"
)

// Default returns a Config populated with repository defaults.
func Default() Config {
	return Config{
		Paths: Paths{
			StagingDir: defaultStagingDir,
			OutputDir:  defaultOutputDir,
			LogDir:     defaultLogDir,
			APIBind:    defaultAPIBind,
		},
		Workflow: Workflow{
			Workers:                defaultWorkers,
			QueuePollInterval:      defaultQueuePollInterval,
			StageTimeout:           defaultStageTimeout,
			HeartbeatInterval:      defaultHeartbeatInterval,
			HeartbeatTimeout:       defaultHeartbeatTimeout,
			MaxAttempts:            defaultMaxAttempts,
			RetryBackoffSeconds:    defaultRetryBackoffSeconds,
			RetryBackoffCapSeconds: defaultRetryBackoffCapSeconds,
			BatchMaxConcurrent:     defaultBatchMaxConcurrent,
		},
		ReferenceData: ReferenceData{
			SyncIntervalHours: defaultRefSyncIntervalHours,
		},
		Notifications: Notifications{
			RequestTimeout: defaultNotifyRequestTimeout,
			Queue:          true,
			Errors:         true,
		},
		Logging: Logging{
			Level:  defaultLogLevel,
			Format: defaultLogFormat,
		},
	}
}

package config

import (
	"fmt"
	"os"
	"strings"
)

func (c *Config) normalize() error {
	if err := c.normalizePaths(); err != nil {
		return err
	}
	c.normalizeTrackers()
	c.normalizeWorkflow()
	c.normalizeReferenceData()
	c.normalizeNotifications()
	c.normalizeLogging()
	return nil
}

func (c *Config) normalizePaths() error {
	var err error
	if c.Paths.StagingDir, err = expandPath(c.Paths.StagingDir); err != nil {
		return fmt.Errorf("paths.staging_dir: %w", err)
	}
	if c.Paths.OutputDir, err = expandPath(c.Paths.OutputDir); err != nil {
		return fmt.Errorf("paths.output_dir: %w", err)
	}
	if c.Paths.LogDir, err = expandPath(c.Paths.LogDir); err != nil {
		return fmt.Errorf("paths.log_dir: %w", err)
	}
	c.Paths.APIBind = strings.TrimSpace(c.Paths.APIBind)
	if c.Paths.APIBind == "" {
		c.Paths.APIBind = defaultAPIBind
	}
	c.Paths.APIToken = strings.TrimSpace(c.Paths.APIToken)
	return nil
}

func (c *Config) normalizeTrackers() {
	for i := range c.Trackers {
		tracker := &c.Trackers[i]
		tracker.Name = strings.ToLower(strings.TrimSpace(tracker.Name))
		tracker.BaseURL = strings.TrimRight(strings.TrimSpace(tracker.BaseURL), "/")
		tracker.AnnounceURL = strings.TrimSpace(tracker.AnnounceURL)
		tracker.NamingStyle = strings.ToLower(strings.TrimSpace(tracker.NamingStyle))
		if tracker.NamingStyle == "" {
			tracker.NamingStyle = "dotted"
		}
		if tracker.APIKey == "" {
			envKey := "GANTRY_TRACKER_" + strings.ToUpper(tracker.Name) + "_API_KEY"
			if value, ok := os.LookupEnv(envKey); ok {
				tracker.APIKey = strings.TrimSpace(value)
			}
		}
	}
}

func (c *Config) normalizeWorkflow() {
	if c.Workflow.Workers <= 0 {
		c.Workflow.Workers = defaultWorkers
	}
	if c.Workflow.QueuePollInterval <= 0 {
		c.Workflow.QueuePollInterval = defaultQueuePollInterval
	}
	if c.Workflow.StageTimeout <= 0 {
		c.Workflow.StageTimeout = defaultStageTimeout
	}
	if c.Workflow.HeartbeatInterval <= 0 {
		c.Workflow.HeartbeatInterval = defaultHeartbeatInterval
	}
	if c.Workflow.HeartbeatTimeout <= 0 {
		c.Workflow.HeartbeatTimeout = defaultHeartbeatTimeout
	}
	if c.Workflow.MaxAttempts <= 0 {
		c.Workflow.MaxAttempts = defaultMaxAttempts
	}
	if c.Workflow.RetryBackoffSeconds <= 0 {
		c.Workflow.RetryBackoffSeconds = defaultRetryBackoffSeconds
	}
	if c.Workflow.RetryBackoffCapSeconds <= 0 {
		c.Workflow.RetryBackoffCapSeconds = defaultRetryBackoffCapSeconds
	}
	if c.Workflow.BatchMaxConcurrent <= 0 {
		c.Workflow.BatchMaxConcurrent = defaultBatchMaxConcurrent
	}
}

func (c *Config) normalizeReferenceData() {
	if c.ReferenceData.SyncIntervalHours <= 0 {
		c.ReferenceData.SyncIntervalHours = defaultRefSyncIntervalHours
	}
	tags := make([]string, 0, len(c.ReferenceData.RequiredTags))
	seen := make(map[string]struct{}, len(c.ReferenceData.RequiredTags))
	for _, tag := range c.ReferenceData.RequiredTags {
		normalized := strings.ToLower(strings.TrimSpace(tag))
		if normalized == "" {
			continue
		}
		if _, exists := seen[normalized]; exists {
			continue
		}
		seen[normalized] = struct{}{}
		tags = append(tags, normalized)
	}
	c.ReferenceData.RequiredTags = tags
}

func (c *Config) normalizeNotifications() {
	c.Notifications.NtfyTopic = strings.TrimSpace(c.Notifications.NtfyTopic)
	if c.Notifications.RequestTimeout <= 0 {
		c.Notifications.RequestTimeout = defaultNotifyRequestTimeout
	}
}

func (c *Config) normalizeLogging() {
	c.Logging.Format = strings.ToLower(strings.TrimSpace(c.Logging.Format))
	switch c.Logging.Format {
	case "", "console":
		c.Logging.Format = "console"
	case "json":
	default:
		c.Logging.Format = "console"
	}
	c.Logging.Level = strings.ToLower(strings.TrimSpace(c.Logging.Level))
	if c.Logging.Level == "" {
		c.Logging.Level = defaultLogLevel
	}
}

package config

import (
	"errors"
	"fmt"
	"strings"
)

// Validate ensures the configuration is usable.
func (c *Config) Validate() error {
	if err := c.validatePaths(); err != nil {
		return err
	}
	if err := c.validateTrackers(); err != nil {
		return err
	}
	if err := c.validateWorkflow(); err != nil {
		return err
	}
	return nil
}

func (c *Config) validatePaths() error {
	if strings.TrimSpace(c.Paths.StagingDir) == "" {
		return errors.New("paths.staging_dir must be set")
	}
	if strings.TrimSpace(c.Paths.LogDir) == "" {
		return errors.New("paths.log_dir must be set")
	}
	return nil
}

func (c *Config) validateTrackers() error {
	seen := make(map[string]struct{}, len(c.Trackers))
	for i, tracker := range c.Trackers {
		if tracker.Name == "" {
			return fmt.Errorf("trackers[%d].name must be set", i)
		}
		if tracker.BaseURL == "" {
			return fmt.Errorf("trackers[%d].base_url must be set", i)
		}
		if _, dup := seen[tracker.Name]; dup {
			return fmt.Errorf("trackers[%d].name %q is declared twice", i, tracker.Name)
		}
		seen[tracker.Name] = struct{}{}
		switch tracker.NamingStyle {
		case "dotted", "spaced":
		default:
			return fmt.Errorf("trackers[%d].naming_style must be \"dotted\" or \"spaced\"", i)
		}
	}
	return nil
}

func (c *Config) validateWorkflow() error {
	if c.Workflow.Workers > 32 {
		return errors.New("workflow.workers must be 32 or fewer")
	}
	if c.Workflow.HeartbeatTimeout <= c.Workflow.HeartbeatInterval {
		return errors.New("workflow.heartbeat_timeout must exceed workflow.heartbeat_interval")
	}
	if c.Workflow.RetryBackoffCapSeconds < c.Workflow.RetryBackoffSeconds {
		return errors.New("workflow.retry_backoff_cap_seconds must be at least workflow.retry_backoff_seconds")
	}
	return nil
}

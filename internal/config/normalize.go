package config

import (
	"regexp"
	"runtime"
	"strings"
)

var bitratePattern = regexp.MustCompile(`^\d+k?$`)

func (c *Config) normalize() error {
	c.Audio.Bitrate = strings.ToLower(strings.TrimSpace(c.Audio.Bitrate))
	if c.Audio.Bitrate == "" {
		c.Audio.Bitrate = defaultBitrate
	}
	if c.Audio.SampleRate <= 0 {
		c.Audio.SampleRate = defaultSampleRate
	}
	if c.Audio.Channels <= 0 {
		c.Audio.Channels = defaultChannels
	}
	if c.Audio.Cores <= 0 {
		c.Audio.Cores = SafeCoreDefault()
	}
	if c.Audio.Cores > runtime.NumCPU() {
		c.Audio.Cores = runtime.NumCPU()
	}

	if c.Limits.DiskMarginMB <= 0 {
		c.Limits.DiskMarginMB = defaultDiskMarginMB
	}
	if c.Limits.TaskTimeoutSeconds <= 0 {
		c.Limits.TaskTimeoutSeconds = defaultTaskTimeoutSeconds
	}
	if c.Limits.MemoryCheckTasks <= 0 {
		c.Limits.MemoryCheckTasks = defaultMemoryCheckTasks
	}

	if c.Cache.RetentionDays <= 0 {
		c.Cache.RetentionDays = defaultRetentionDays
	}

	c.Output.Template = strings.TrimSpace(c.Output.Template)
	if c.Output.Template == "" {
		c.Output.Template = defaultOutputTemplate
	}
	c.Output.ChapterTitles = strings.ToLower(strings.TrimSpace(c.Output.ChapterTitles))
	if c.Output.ChapterTitles == "" {
		c.Output.ChapterTitles = defaultChapterTitles
	}

	c.Validation.Level = strings.ToLower(strings.TrimSpace(c.Validation.Level))
	if c.Validation.Level == "" {
		c.Validation.Level = defaultValidationLevel
	}

	c.Notifications.NtfyTopic = strings.TrimSpace(c.Notifications.NtfyTopic)
	if c.Notifications.RequestTimeoutSeconds <= 0 {
		c.Notifications.RequestTimeoutSeconds = defaultNtfyTimeoutSecs
	}

	c.Logging.Format = strings.ToLower(strings.TrimSpace(c.Logging.Format))
	if c.Logging.Format == "" {
		c.Logging.Format = defaultLogFormat
	}
	c.Logging.Level = strings.ToLower(strings.TrimSpace(c.Logging.Level))
	if c.Logging.Level == "" {
		c.Logging.Level = defaultLogLevel
	}

	for _, field := range []*string{&c.Cache.Root, &c.Logging.Dir} {
		if strings.TrimSpace(*field) == "" {
			continue
		}
		expanded, err := expandPath(*field)
		if err != nil {
			return err
		}
		*field = expanded
	}
	return nil
}

package config

import (
	"errors"
	"fmt"
	"strings"
)

var validationLevels = map[string]struct{}{
	"lax":    {},
	"normal": {},
	"strict": {},
}

var chapterTitleModes = map[string]struct{}{
	"auto":     {},
	"filename": {},
	"generic":  {},
}

// Validate checks the configuration for values the pipeline cannot run with.
func (c *Config) Validate() error {
	var problems []string

	if !bitratePattern.MatchString(c.Audio.Bitrate) {
		problems = append(problems, fmt.Sprintf("audio.bitrate %q is not a valid bitrate (use e.g. \"128k\")", c.Audio.Bitrate))
	}
	if c.Audio.SampleRate < 8000 || c.Audio.SampleRate > 192000 {
		problems = append(problems, fmt.Sprintf("audio.sample_rate %d is outside 8000..192000", c.Audio.SampleRate))
	}
	if c.Audio.Channels < 1 || c.Audio.Channels > 8 {
		problems = append(problems, fmt.Sprintf("audio.channels %d is outside 1..8", c.Audio.Channels))
	}
	if c.Limits.MemoryLimitMB < 0 {
		problems = append(problems, "limits.memory_limit_mb cannot be negative")
	}
	if _, ok := validationLevels[c.Validation.Level]; !ok {
		problems = append(problems, fmt.Sprintf("validation.level %q must be lax, normal, or strict", c.Validation.Level))
	}
	if _, ok := chapterTitleModes[c.Output.ChapterTitles]; !ok {
		problems = append(problems, fmt.Sprintf("output.chapter_titles %q must be auto, filename, or generic", c.Output.ChapterTitles))
	}
	switch c.Logging.Format {
	case "console", "json":
	default:
		problems = append(problems, fmt.Sprintf("logging.format %q must be console or json", c.Logging.Format))
	}

	if len(problems) > 0 {
		return errors.New("invalid configuration: " + strings.Join(problems, "; "))
	}
	return nil
}

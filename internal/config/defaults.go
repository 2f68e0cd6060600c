package config

import (
	"os"
	"runtime"
)

const (
	defaultBitrate            = "128k"
	defaultSampleRate         = 44100
	defaultChannels           = 2
	defaultDiskMarginMB       = 500
	defaultTaskTimeoutSeconds = 300
	defaultMemoryCheckTasks   = 5
	defaultRetentionDays      = 30
	defaultOutputTemplate     = "{title}"
	defaultChapterTitles      = "auto"
	defaultValidationLevel    = "normal"
	defaultNtfyTimeoutSecs    = 10
	defaultLogFormat          = "console"
	defaultLogLevel           = "info"
	defaultLogDir             = "~/.local/share/audiobookmaker/logs"
)

// Default returns a Config populated with repository defaults.
func Default() Config {
	return Config{
		Audio: Audio{
			Bitrate:    defaultBitrate,
			SampleRate: defaultSampleRate,
			Channels:   defaultChannels,
			Cores:      SafeCoreDefault(),
		},
		Limits: Limits{
			DiskMarginMB:       defaultDiskMarginMB,
			TaskTimeoutSeconds: defaultTaskTimeoutSeconds,
			MemoryCheckTasks:   defaultMemoryCheckTasks,
		},
		Cache: Cache{
			Root:          os.TempDir(),
			RetentionDays: defaultRetentionDays,
		},
		Output: Output{
			Template:      defaultOutputTemplate,
			ChapterTitles: defaultChapterTitles,
		},
		Validation: Validation{
			Level: defaultValidationLevel,
		},
		Notifications: Notifications{
			RequestTimeoutSeconds: defaultNtfyTimeoutSecs,
		},
		Logging: Logging{
			Format: defaultLogFormat,
			Level:  defaultLogLevel,
			Dir:    defaultLogDir,
		},
	}
}

// SafeCoreDefault caps the worker count so a default run does not saturate
// the machine.
func SafeCoreDefault() int {
	cores := runtime.NumCPU()
	if cores < 1 {
		return 1
	}
	if cores > 4 {
		return 4
	}
	return cores
}

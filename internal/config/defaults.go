package config

const (
	defaultDataDir               = "~/.local/share/lectern"
	defaultWorkDir               = "~/.local/share/lectern/work"
	defaultLogDir                = "~/.local/share/lectern/logs"
	defaultAPIBind               = "127.0.0.1:7512"
	defaultMaxFileMiB            = 16
	defaultFFmpegBinary          = "ffmpeg"
	defaultFFprobeBinary         = "ffprobe"
	defaultChunkSeconds          = 300
	defaultWhisperBaseURL        = "https://api.openai.com/v1"
	defaultWhisperModel          = "whisper-1"
	defaultWhisperTimeoutSeconds = 300
	defaultLLMBaseURL            = "https://openrouter.ai/api/v1/chat/completions"
	defaultLLMModel              = "google/gemini-3-flash-preview"
	defaultLLMReferer            = "https://github.com/lectern/lectern"
	defaultLLMTitle              = "Lectern Study Content"
	defaultLLMTimeoutSeconds     = 120
	defaultLogFormat             = "console"
	defaultLogLevel              = "info"
)

func defaultAllowedExtensions() []string {
	return []string{"wav", "mp3", "ogg", "flac", "aac"}
}

// Default returns a Config populated with repository defaults.
func Default() Config {
	return Config{
		Paths: Paths{
			DataDir: defaultDataDir,
			WorkDir: defaultWorkDir,
			LogDir:  defaultLogDir,
			APIBind: defaultAPIBind,
		},
		Upload: Upload{
			MaxFileMiB:        defaultMaxFileMiB,
			AllowedExtensions: defaultAllowedExtensions(),
		},
		Transcoder: Transcoder{
			FFmpegBinary:  defaultFFmpegBinary,
			FFprobeBinary: defaultFFprobeBinary,
		},
		Segmenter: Segmenter{
			ChunkSeconds: defaultChunkSeconds,
		},
		Whisper: Whisper{
			BaseURL:        defaultWhisperBaseURL,
			Model:          defaultWhisperModel,
			TimeoutSeconds: defaultWhisperTimeoutSeconds,
		},
		LLM: LLM{
			BaseURL:        defaultLLMBaseURL,
			Model:          defaultLLMModel,
			Referer:        defaultLLMReferer,
			Title:          defaultLLMTitle,
			TimeoutSeconds: defaultLLMTimeoutSeconds,
		},
		Logging: Logging{
			Format: defaultLogFormat,
			Level:  defaultLogLevel,
		},
	}
}

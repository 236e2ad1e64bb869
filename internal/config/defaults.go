package config

const (
	defaultDataDir                 = "~/.local/share/vidsurvey"
	defaultClipDir                 = "~/.local/share/vidsurvey/clips"
	defaultWorkDir                 = "~/.local/share/vidsurvey/work"
	defaultLogDir                  = "~/.local/share/vidsurvey/logs"
	defaultAPIBind                 = "127.0.0.1:7590"
	defaultFFmpegBinary            = "ffmpeg"
	defaultFFprobeBinary           = "ffprobe"
	defaultVideoCodec              = "libx264"
	defaultAudioCodec              = "aac"
	defaultContainer               = "mp4"
	defaultTranscodeConcurrency    = 4
	defaultTranscodeTimeoutSeconds = 300
	defaultInferenceCommand        = "python3"
	defaultInferenceTimeoutSeconds = 600
	defaultInferenceMaxOutputBytes = 4 << 20
	defaultUploadMaxBytes          = 100 << 20
	defaultUploadMaxClips          = 20
	defaultLogFormat               = "console"
	defaultLogLevel                = "info"
	defaultNtfyTimeoutSeconds      = 10
)

// Default returns a Config populated with repository defaults.
func Default() Config {
	return Config{
		Paths: Paths{
			DataDir: defaultDataDir,
			ClipDir: defaultClipDir,
			WorkDir: defaultWorkDir,
			LogDir:  defaultLogDir,
			APIBind: defaultAPIBind,
		},
		Transcode: Transcode{
			FFmpegBinary:   defaultFFmpegBinary,
			FFprobeBinary:  defaultFFprobeBinary,
			VideoCodec:     defaultVideoCodec,
			AudioCodec:     defaultAudioCodec,
			Container:      defaultContainer,
			Concurrency:    defaultTranscodeConcurrency,
			TimeoutSeconds: defaultTranscodeTimeoutSeconds,
			ValidateOutput: true,
		},
		Inference: Inference{
			Command:        defaultInferenceCommand,
			TimeoutSeconds: defaultInferenceTimeoutSeconds,
			MaxOutputBytes: defaultInferenceMaxOutputBytes,
		},
		Upload: Upload{
			MaxBytes: defaultUploadMaxBytes,
			MaxClips: defaultUploadMaxClips,
		},
		Logging: Logging{
			Format: defaultLogFormat,
			Level:  defaultLogLevel,
		},
		Notifications: Notifications{
			RequestTimeoutSeconds: defaultNtfyTimeoutSeconds,
		},
	}
}

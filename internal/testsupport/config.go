package testsupport

import (
	"os"
	"path/filepath"
	"testing"

	"vidsurvey/internal/config"
)

// ConfigOption allows callers to customize the generated test configuration.
type ConfigOption func(*configBuilder)

type configBuilder struct {
	t       testing.TB
	baseDir string
	cfg     *config.Config
}

// NewConfig produces a config seeded with unique temp directories per test.
// It defaults common fields and applies any provided options.
func NewConfig(t testing.TB, opts ...ConfigOption) *config.Config {
	t.Helper()

	base := t.TempDir()
	cfgVal := config.Default()
	cfgVal.Paths.DataDir = filepath.Join(base, "data")
	cfgVal.Paths.ClipDir = filepath.Join(base, "clips")
	cfgVal.Paths.WorkDir = filepath.Join(base, "work")
	cfgVal.Paths.LogDir = filepath.Join(base, "logs")
	cfgVal.Paths.APIBind = "127.0.0.1:0"
	cfgVal.Transcode.Concurrency = 2
	cfgVal.Transcode.TimeoutSeconds = 10
	cfgVal.Inference.TimeoutSeconds = 10

	builder := &configBuilder{
		t:       t,
		baseDir: base,
		cfg:     &cfgVal,
	}

	for _, opt := range opts {
		opt(builder)
	}

	return builder.cfg
}

// WithAPIToken sets the bearer token on the test config.
func WithAPIToken(token string) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Paths.APIToken = token
	}
}

// WithUploadLimit caps the accepted multipart request size.
func WithUploadLimit(maxBytes int64) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Upload.MaxBytes = maxBytes
	}
}

// WithInferenceScript writes body as an executable shell script and
// configures it as the inference command.
func WithInferenceScript(body string) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Inference.Command = WriteScript(b.t, filepath.Join(b.baseDir, "bin"), "engine", body)
		b.cfg.Inference.Args = nil
	}
}

// WithTranscodeScripts configures stub ffmpeg and ffprobe executables.
func WithTranscodeScripts(ffmpeg, ffprobe string) ConfigOption {
	return func(b *configBuilder) {
		binDir := filepath.Join(b.baseDir, "bin")
		b.cfg.Transcode.FFmpegBinary = WriteScript(b.t, binDir, "ffmpeg", ffmpeg)
		if ffprobe == "" {
			b.cfg.Transcode.ValidateOutput = false
			return
		}
		b.cfg.Transcode.FFprobeBinary = WriteScript(b.t, binDir, "ffprobe", ffprobe)
	}
}

// WithStubbedBinaries writes stub executables for the provided names and
// prepends them to PATH. If names is empty, the default vidsurvey external
// binaries are stubbed.
func WithStubbedBinaries(names ...string) ConfigOption {
	return func(b *configBuilder) {
		if len(names) == 0 {
			names = []string{"ffmpeg", "ffprobe", "python3"}
		}
		binDir := filepath.Join(b.baseDir, "bin")
		for _, name := range names {
			WriteScript(b.t, binDir, name, "exit 0\n")
		}

		oldPath := os.Getenv("PATH")
		if err := os.Setenv("PATH", binDir+string(os.PathListSeparator)+oldPath); err != nil {
			b.t.Fatalf("set PATH: %v", err)
		}
		b.t.Cleanup(func() {
			_ = os.Setenv("PATH", oldPath)
		})
	}
}

// BaseDir returns the root temp directory backing the generated config.
func BaseDir(cfg *config.Config) string {
	return filepath.Dir(cfg.Paths.DataDir)
}

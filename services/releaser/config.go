package releaser

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

const (
	uploaderCLI = "cli"
	uploaderSDK = "sdk"

	defaultRepository   = "vitalvas/oneauth"
	defaultBuildinfoPkg = "github.com/vitalvas/oneauth/internal/buildinfo"
	defaultTestURL      = "https://github-build-artifacts.vitalvas.dev/{{.Repository}}/{{.Version}}/"
	defaultReleaseURL   = "https://oneauth-files.vitalvas.dev/release/{{.Version}}/"
)

// Config is the immutable run configuration, read once from the environment.
type Config struct {
	CI            bool
	RefName       string
	RunID         string
	SHA           string
	Repository    string
	DefaultBranch string

	WorkDir      string
	BuildDir     string
	BuildinfoPkg string
	// SourceDateEpoch replaces the clock for development versions when non-zero.
	SourceDateEpoch time.Time

	Uploader string
	Test     Channel
	Release  Channel

	MetricsFile    string
	PushgatewayURL string
	NATSURL        string
}

// LoadConfig reads the configuration from the process environment.
func LoadConfig() (Config, error) {
	cfg := Config{}

	cfg.CI = os.Getenv("GITHUB_ACTIONS") != ""
	cfg.RefName = strings.TrimSpace(os.Getenv("GITHUB_REF_NAME"))
	cfg.RunID = strings.TrimSpace(os.Getenv("GITHUB_RUN_ID"))
	cfg.SHA = strings.TrimSpace(os.Getenv("GITHUB_SHA"))
	cfg.Repository = strings.Trim(getEnv("GITHUB_REPOSITORY", defaultRepository), "/")
	cfg.DefaultBranch = getEnv("RELEASE_DEFAULT_BRANCH", "master")

	cfg.WorkDir = getEnv("RELEASE_WORK_DIR", ".")
	cfg.BuildDir = getEnv("RELEASE_BUILD_DIR", "build")
	if !filepath.IsAbs(cfg.BuildDir) {
		cfg.BuildDir = filepath.Join(cfg.WorkDir, cfg.BuildDir)
	}
	if err := checkBuildDir(cfg.WorkDir, cfg.BuildDir); err != nil {
		return Config{}, fmt.Errorf("invalid RELEASE_BUILD_DIR: %w", err)
	}
	cfg.BuildinfoPkg = getEnv("RELEASE_BUILDINFO_PKG", defaultBuildinfoPkg)

	if epoch := strings.TrimSpace(os.Getenv("SOURCE_DATE_EPOCH")); epoch != "" {
		secs, err := strconv.ParseInt(epoch, 10, 64)
		if err != nil || secs <= 0 {
			return Config{}, fmt.Errorf("invalid SOURCE_DATE_EPOCH: %q", epoch)
		}
		cfg.SourceDateEpoch = time.Unix(secs, 0).UTC()
	}

	cfg.Uploader = strings.ToLower(getEnv("RELEASE_UPLOADER", uploaderCLI))
	switch cfg.Uploader {
	case uploaderCLI, uploaderSDK:
	default:
		return Config{}, fmt.Errorf("invalid RELEASE_UPLOADER: %q (want %s or %s)", cfg.Uploader, uploaderCLI, uploaderSDK)
	}

	cfg.Test = Channel{
		Name:        ChannelTest,
		Bucket:      getEnv("UPLOAD_BUCKET", "vv-github-build-artifacts"),
		KeyPrefix:   cfg.Repository + "/",
		URLTemplate: getEnv("RELEASE_TEST_URL", defaultTestURL),
	}
	cfg.Release = Channel{
		Name:        ChannelRelease,
		Bucket:      getEnv("RELEASE_BUCKET", "oneauth-files.vitalvas.dev"),
		KeyPrefix:   "release/",
		URLTemplate: getEnv("RELEASE_RELEASE_URL", defaultReleaseURL),
	}
	for _, ch := range []Channel{cfg.Test, cfg.Release} {
		if _, err := ch.RemotePrefix(cfg.Repository, "v0.0.0"); err != nil {
			return Config{}, fmt.Errorf("invalid %s channel url template: %w", ch.Name, err)
		}
	}

	cfg.MetricsFile = os.Getenv("RELEASE_METRICS_FILE")
	cfg.PushgatewayURL = os.Getenv("PUSHGATEWAY_URL")
	cfg.NATSURL = os.Getenv("NATS_URL")

	return cfg, nil
}

// Channel returns the release channel for a run.
func (c Config) Channel(release bool) Channel {
	if release {
		return c.Release
	}
	return c.Test
}

// Publishes reports whether update manifests should be uploaded: only the default
// branch and release tags move a channel forward.
func (c Config) Publishes(v VersionInfo) bool {
	if v.Release {
		return true
	}
	return c.RefName != "" && c.RefName == c.DefaultBranch
}

// checkBuildDir rejects a build directory that is the work directory or one of its
// ancestors, since every run removes the build directory first.
func checkBuildDir(workDir, buildDir string) error {
	if buildDir == "" {
		return errors.New("build directory is required")
	}
	absWork, err := filepath.Abs(workDir)
	if err != nil {
		return err
	}
	absBuild, err := filepath.Abs(buildDir)
	if err != nil {
		return err
	}
	rel, err := filepath.Rel(absBuild, absWork)
	if err != nil {
		return err
	}
	if rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return nil
	}
	return fmt.Errorf("%s contains the work directory %s", absBuild, absWork)
}

func getEnv(key, def string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return def
}

package releaser

import (
	"context"
	"strconv"
	"strings"
	"time"

	"github.com/go-git/go-git/v5"

	"relmake/pkg/proc"
)

const (
	releaseRefPrefix = "v"
	devVersionPrefix = "v0.0."
)

// VersionInfo is stamped into every binary and manifest of a run.
type VersionInfo struct {
	Version string
	Commit  string
	Release bool
}

// Channel names the release channel this version publishes to.
func (v VersionInfo) Channel() string {
	if v.Release {
		return ChannelRelease
	}
	return ChannelTest
}

// ResolveVersion derives the version from the CI ref. A ref starting with "v" is a
// release and is used verbatim; anything else gets a development version built from the
// run id or, outside CI, from the build time.
func ResolveVersion(cfg Config, now time.Time) VersionInfo {
	if strings.HasPrefix(cfg.RefName, releaseRefPrefix) {
		return VersionInfo{Version: cfg.RefName, Release: true}
	}

	if cfg.RunID != "" {
		return VersionInfo{Version: devVersionPrefix + cfg.RunID}
	}

	if !cfg.SourceDateEpoch.IsZero() {
		now = cfg.SourceDateEpoch
	}
	return VersionInfo{Version: devVersionPrefix + strconv.FormatInt(now.Unix(), 10)}
}

// ResolveCommit returns GITHUB_SHA when set, otherwise the HEAD commit of the
// repository containing cfg.WorkDir. It returns "" when no commit can be found.
func ResolveCommit(ctx context.Context, cfg Config, runner proc.Runner) string {
	if cfg.SHA != "" {
		return cfg.SHA
	}

	if commit, err := headCommit(cfg.WorkDir); err == nil {
		return commit
	}

	if runner == nil {
		return ""
	}
	commit, err := proc.Output(ctx, runner, proc.Cmd{
		Name: "git",
		Args: []string{"rev-parse", "HEAD"},
		Dir:  cfg.WorkDir,
	})
	if err != nil {
		return ""
	}
	return commit
}

func headCommit(dir string) (string, error) {
	if dir == "" {
		dir = "."
	}
	repo, err := git.PlainOpenWithOptions(dir, &git.PlainOpenOptions{DetectDotGit: true})
	if err != nil {
		return "", err
	}
	head, err := repo.Head()
	if err != nil {
		return "", err
	}
	return head.Hash().String(), nil
}

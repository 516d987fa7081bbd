package releaser

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"relmake/pkg/proc"
)

// BuildError reports a compiler invocation that failed or wrote to stderr.
type BuildError struct {
	Target   string
	Platform Platform
	Err      error
}

func (e *BuildError) Error() string {
	return fmt.Sprintf("build %s for %s: %v", e.Target, e.Platform, e.Err)
}

func (e *BuildError) Unwrap() error {
	return e.Err
}

// ldflags strips debug info and stamps version and commit into the buildinfo package.
func ldflags(buildinfoPkg string, v VersionInfo) string {
	flags := []string{"-w", "-s", fmt.Sprintf(`-X "%s.Version=%s"`, buildinfoPkg, v.Version)}
	if v.Commit != "" {
		flags = append(flags, fmt.Sprintf(`-X "%s.Commit=%s"`, buildinfoPkg, v.Commit))
	}
	return strings.Join(flags, " ")
}

func binaryPath(buildDir string, job Job) string {
	return filepath.Join(buildDir, job.Platform.OS, job.Platform.Arch, job.Target.Name+job.Platform.exeSuffix())
}

func cgoValue(enabled bool) string {
	if enabled {
		return "1"
	}
	return "0"
}

// compile builds job and returns the path of the produced binary.
func compile(ctx context.Context, runner proc.Runner, cfg Config, v VersionInfo, job Job) (string, error) {
	output := binaryPath(cfg.BuildDir, job)
	if err := os.MkdirAll(filepath.Dir(output), 0o755); err != nil {
		return "", fmt.Errorf("create output dir: %w", err)
	}

	absOutput, err := filepath.Abs(output)
	if err != nil {
		return "", err
	}

	pkg := "./" + filepath.ToSlash(filepath.Clean(job.Target.Dir))
	res, err := runner.Run(ctx, proc.Cmd{
		Name: "go",
		Args: []string{"build", "-ldflags", ldflags(cfg.BuildinfoPkg, v), "-o", absOutput, pkg},
		Env: []string{
			"CGO_ENABLED=" + cgoValue(job.CGOEnabled),
			"GOOS=" + job.Platform.OS,
			"GOARCH=" + job.Platform.Arch,
		},
		Dir: cfg.WorkDir,
	})
	if err == nil {
		err = res.Err()
	}
	if err != nil {
		return "", &BuildError{Target: job.Target.Name, Platform: job.Platform, Err: err}
	}
	return output, nil
}

// hostPlatform asks the toolchain for its native GOOS/GOARCH.
func hostPlatform(ctx context.Context, runner proc.Runner, workDir string) (Platform, error) {
	out, err := proc.Output(ctx, runner, proc.Cmd{
		Name: "go",
		Args: []string{"env", "GOOS", "GOARCH"},
		Dir:  workDir,
	})
	if err != nil {
		return Platform{}, fmt.Errorf("go env: %w", err)
	}
	fields := strings.Fields(out)
	if len(fields) != 2 {
		return Platform{}, fmt.Errorf("go env: unexpected output %q", out)
	}
	return Platform{OS: fields[0], Arch: fields[1]}, nil
}

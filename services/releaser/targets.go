package releaser

import (
	"fmt"
	"slices"
)

// AllApps selects every declared target.
const AllApps = "all"

// MatrixEntry is one explicit cross-compilation combination.
type MatrixEntry struct {
	Platform   Platform
	CGOEnabled bool
}

// BuildTarget is an application the orchestrator knows how to build.
//
// A target with Platforms only builds on a host listed there, for that host.
// A target without Platforms builds every Matrix entry (or the host, if Matrix is empty).
type BuildTarget struct {
	Name      string
	Dir       string
	Platforms []Platform
	Matrix    []MatrixEntry
}

// Job is a single compiler invocation.
type Job struct {
	Target     BuildTarget
	Platform   Platform
	CGOEnabled bool
}

// DefaultTargets returns the applications released from this repository.
func DefaultTargets() []BuildTarget {
	return []BuildTarget{
		{
			Name: "oneauth",
			Dir:  "cmd/oneauth",
			Platforms: []Platform{
				{OS: "darwin", Arch: "amd64"},
				{OS: "darwin", Arch: "arm64"},
				{OS: "linux", Arch: "amd64"},
			},
		},
		{
			Name: "oneauth-server",
			Dir:  "cmd/server",
			Matrix: []MatrixEntry{
				{Platform: Platform{OS: "linux", Arch: "amd64"}, CGOEnabled: false},
			},
		},
		{
			Name: "oneauth-ssh-test-server",
			Dir:  "cmd/ssh-test-server",
			Matrix: []MatrixEntry{
				{Platform: Platform{OS: "linux", Arch: "amd64"}, CGOEnabled: false},
			},
		},
	}
}

// TargetNames lists the names accepted by the --app flag, "all" first.
func TargetNames(targets []BuildTarget) []string {
	names := make([]string, 0, len(targets)+1)
	names = append(names, AllApps)
	for _, t := range targets {
		names = append(names, t.Name)
	}
	return names
}

// SelectTargets filters targets by app, which is "all" or a declared name.
func SelectTargets(targets []BuildTarget, app string) ([]BuildTarget, error) {
	if app == "" || app == AllApps {
		return targets, nil
	}
	for _, t := range targets {
		if t.Name == app {
			return []BuildTarget{t}, nil
		}
	}
	return nil, fmt.Errorf("unknown app %q (choose from %v)", app, TargetNames(targets))
}

// Jobs returns the builds this target needs on host. ci restricts matrix targets to CIPlatform.
func (t BuildTarget) Jobs(host Platform, ci bool) []Job {
	if len(t.Platforms) > 0 {
		if !slices.Contains(t.Platforms, host) {
			return nil
		}
		return []Job{{Target: t, Platform: host, CGOEnabled: true}}
	}

	if ci && host != CIPlatform {
		return nil
	}

	if len(t.Matrix) == 0 {
		return []Job{{Target: t, Platform: host, CGOEnabled: true}}
	}

	jobs := make([]Job, 0, len(t.Matrix))
	for _, entry := range t.Matrix {
		jobs = append(jobs, Job{Target: t, Platform: entry.Platform, CGOEnabled: entry.CGOEnabled})
	}
	return jobs
}

package releaser

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"
	"testing"

	"relmake/pkg/proc"
)

// fakeRunner answers the commands the releaser issues without touching the toolchain.
type fakeRunner struct {
	mu    sync.Mutex
	host  string
	calls []proc.Cmd
	// buildStderr maps a package path ("./cmd/server") to compiler stderr output.
	buildStderr map[string]string
	// awsStderr maps a local file base name to aws CLI stderr output.
	awsStderr map[string]string
}

func newFakeRunner(host string) *fakeRunner {
	return &fakeRunner{host: host}
}

func (f *fakeRunner) Run(_ context.Context, c proc.Cmd) (proc.Result, error) {
	f.mu.Lock()
	f.calls = append(f.calls, c)
	f.mu.Unlock()

	res := proc.Result{Cmd: c}
	switch {
	case c.Name == "go" && len(c.Args) > 0 && c.Args[0] == "env":
		goos, goarch, _ := strings.Cut(f.host, "/")
		res.Stdout = []byte(goos + "\n" + goarch + "\n")
	case c.Name == "go" && len(c.Args) > 0 && c.Args[0] == "build":
		pkg := c.Args[len(c.Args)-1]
		if msg, ok := f.buildStderr[pkg]; ok {
			res.Stderr = []byte(msg)
			res.ExitCode = 1
			return res, nil
		}
		out := argAfter(c.Args, "-o")
		if out == "" {
			return res, errors.New("go build without -o")
		}
		if err := os.MkdirAll(filepath.Dir(out), 0o755); err != nil {
			return res, err
		}
		body := fmt.Sprintf("binary %s %s", pkg, strings.Join(c.Env, " "))
		if err := os.WriteFile(out, []byte(body), 0o755); err != nil {
			return res, err
		}
	case c.Name == "git":
		res.Stderr = []byte("fatal: not a git repository")
		res.ExitCode = 128
	case c.Name == "aws":
		local := c.Args[len(c.Args)-2]
		if msg, ok := f.awsStderr[filepath.Base(local)]; ok {
			res.Stderr = []byte(msg)
			res.ExitCode = 1
		}
	default:
		return res, fmt.Errorf("unexpected command %s", c)
	}
	return res, nil
}

func (f *fakeRunner) builds() []proc.Cmd {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []proc.Cmd
	for _, c := range f.calls {
		if c.Name == "go" && c.Args[0] == "build" {
			out = append(out, c)
		}
	}
	return out
}

func (f *fakeRunner) built() []string {
	var pkgs []string
	for _, c := range f.builds() {
		pkgs = append(pkgs, c.Args[len(c.Args)-1])
	}
	return pkgs
}

func argAfter(args []string, flag string) string {
	i := slices.Index(args, flag)
	if i < 0 || i+1 >= len(args) {
		return ""
	}
	return args[i+1]
}

// fakeUploader records destinations and fails on a chosen file.
type fakeUploader struct {
	failOn string
	locals []string
	dsts   []Destination
}

func (u *fakeUploader) Upload(_ context.Context, local string, dst Destination) error {
	if u.failOn != "" && filepath.Base(local) == u.failOn {
		return &UploadError{Local: local, Remote: dst.URL(), Err: errors.New("access denied")}
	}
	u.locals = append(u.locals, local)
	u.dsts = append(u.dsts, dst)
	return nil
}

type publishedEvent struct {
	subject string
	event   ReleaseEvent
}

type fakePublisher struct {
	events []publishedEvent
}

func (p *fakePublisher) Publish(_ context.Context, subj string, v any) error {
	ev, ok := v.(ReleaseEvent)
	if !ok {
		return fmt.Errorf("unexpected payload %T", v)
	}
	p.events = append(p.events, publishedEvent{subject: subj, event: ev})
	return nil
}

func testConfig(t *testing.T) Config {
	t.Helper()
	dir := t.TempDir()
	return Config{
		SHA:           "0123456789abcdef0123456789abcdef01234567",
		Repository:    defaultRepository,
		DefaultBranch: "master",
		WorkDir:       dir,
		BuildDir:      filepath.Join(dir, "build"),
		BuildinfoPkg:  defaultBuildinfoPkg,
		Uploader:      uploaderCLI,
		Test: Channel{
			Name:        ChannelTest,
			Bucket:      "vv-github-build-artifacts",
			KeyPrefix:   defaultRepository + "/",
			URLTemplate: defaultTestURL,
		},
		Release: Channel{
			Name:        ChannelRelease,
			Bucket:      "oneauth-files.vitalvas.dev",
			KeyPrefix:   "release/",
			URLTemplate: defaultReleaseURL,
		},
	}
}

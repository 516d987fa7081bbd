// Package buildinfo holds version data stamped into relmake at link time with
// -ldflags "-X relmake/pkg/buildinfo.Version=... -X relmake/pkg/buildinfo.Commit=...".
package buildinfo

var (
	Version = "v0.0.0-dev"
	Commit  string
)

// FormattedVersion returns Version followed by the first eight characters of Commit
// when a full commit id is known.
func FormattedVersion() string {
	if len(Commit) < 8 {
		return Version
	}
	return Version + "-" + Commit[:8]
}

package releaser

import (
	"path"
	"strings"

	"relmake/pkg/render"
	gos3 "relmake/pkg/s3"
)

// Release channel names.
const (
	ChannelTest    = "test"
	ChannelRelease = "release"
)

// Channel is where a run publishes: the bucket root, and the public URL the
// self-update client reads it back from.
type Channel struct {
	Name        string
	Bucket      string
	KeyPrefix   string
	URLTemplate string
}

// Destination is a fully resolved object location.
type Destination struct {
	Bucket string
	Key    string
}

// URL returns the s3:// form understood by the aws CLI.
func (d Destination) URL() string {
	return gos3.URL(d.Bucket, d.Key)
}

// Destination resolves a key relative to the channel root.
func (c Channel) Destination(key string) Destination {
	return Destination{
		Bucket: c.Bucket,
		Key:    path.Join(strings.TrimSuffix(c.KeyPrefix, "/"), key),
	}
}

// RemotePrefix renders the base URL written into update manifests. It always ends in "/"
// so the client can resolve manifest names against it.
func (c Channel) RemotePrefix(repository, version string) (string, error) {
	out, err := render.String(c.URLTemplate, struct {
		Repository string
		Version    string
		Channel    string
	}{repository, version, c.Name})
	if err != nil {
		return "", err
	}
	if !strings.HasSuffix(out, "/") {
		out += "/"
	}
	return out, nil
}

package releaser

import (
	"encoding/json"
	"fmt"
	"os"
)

// ArtifactManifest describes one compiled binary. The self-update client reads it from
// <remote_prefix><name>_<os>_<arch>_manifest.json and ignores the signing fields.
type ArtifactManifest struct {
	Name             string `json:"name"`
	Version          string `json:"version"`
	SHA256           string `json:"sha256"`
	Commit           string `json:"commit,omitempty"`
	SigningPublicKey string `json:"signing_public_key,omitempty"`
	Signature        string `json:"signature,omitempty"`
}

// SigningBytes marshals the manifest without its signing fields. The signature covers
// exactly these bytes.
func (m ArtifactManifest) SigningBytes() ([]byte, error) {
	clone := m
	clone.SigningPublicKey = ""
	clone.Signature = ""
	return json.Marshal(clone)
}

// UpdateManifest tells the self-update client which version is current on a channel and
// where its per-platform manifests live.
type UpdateManifest struct {
	Name         string `json:"name"`
	Version      string `json:"version"`
	RemotePrefix string `json:"remote_prefix"`
}

func archiveName(name string, p Platform) string {
	return fmt.Sprintf("%s_%s_%s.gz", name, p.OS, p.Arch)
}

func artifactManifestName(name string, p Platform) string {
	return fmt.Sprintf("%s_%s_%s_manifest.json", name, p.OS, p.Arch)
}

func updateManifestName(name string) string {
	return name + "_update_manifest.json"
}

func writeJSON(path string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshal %s: %w", path, err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	return nil
}

package releaser

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

const summaryFileName = "release.yaml"

// Summary records what a run built and where it sent it. It is written next to the
// artifacts and never uploaded.
type Summary struct {
	RunID            string            `yaml:"run_id"`
	CreatedAt        time.Time         `yaml:"created_at"`
	Version          string            `yaml:"version"`
	Commit           string            `yaml:"commit,omitempty"`
	Release          bool              `yaml:"release"`
	Channel          string            `yaml:"channel"`
	CI               bool              `yaml:"ci"`
	Host             Platform          `yaml:"host"`
	SigningKey       string            `yaml:"signing_public_key,omitempty"`
	SigningRecipient string            `yaml:"signing_recipient,omitempty"`
	Artifacts        []ArtifactSummary `yaml:"artifacts"`
	UpdateManifests  []string          `yaml:"update_manifests,omitempty"`
	Uploads          []UploadRecord    `yaml:"uploads,omitempty"`
	Uploaded         bool              `yaml:"uploaded"`
}

// ArtifactSummary describes one built binary and its packaged files.
type ArtifactSummary struct {
	Name     string `yaml:"name"`
	OS       string `yaml:"os"`
	Arch     string `yaml:"arch"`
	SHA256   string `yaml:"sha256"`
	Size     int64  `yaml:"size"`
	Archive  string `yaml:"archive"`
	Manifest string `yaml:"manifest"`
	Signed   bool   `yaml:"signed,omitempty"`
}

// UploadRecord is one planned or completed upload.
type UploadRecord struct {
	Local  string `yaml:"local"`
	Remote string `yaml:"remote"`
}

// Apps lists the distinct application names in build order.
func (s *Summary) Apps() []string {
	var apps []string
	seen := map[string]bool{}
	for _, a := range s.Artifacts {
		if !seen[a.Name] {
			seen[a.Name] = true
			apps = append(apps, a.Name)
		}
	}
	return apps
}

func writeSummary(path string, s *Summary) error {
	data, err := yaml.Marshal(s)
	if err != nil {
		return fmt.Errorf("marshal summary: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write summary: %w", err)
	}
	return nil
}

// ReadSummary loads a summary written by a previous run.
func ReadSummary(path string) (*Summary, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var s Summary
	if err := yaml.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("unmarshal summary: %w", err)
	}
	return &s, nil
}

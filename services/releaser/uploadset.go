package releaser

// UploadEntry maps a local file to a key relative to the channel root.
type UploadEntry struct {
	Local string `yaml:"local"`
	Key   string `yaml:"key"`
}

// UploadSet accumulates files to upload in the order they were produced.
// Adding a local path twice keeps its first position and the latest key.
type UploadSet struct {
	entries []UploadEntry
	index   map[string]int
}

// Add records local for upload to key.
func (u *UploadSet) Add(local, key string) {
	if u.index == nil {
		u.index = make(map[string]int)
	}
	if i, ok := u.index[local]; ok {
		u.entries[i].Key = key
		return
	}
	u.index[local] = len(u.entries)
	u.entries = append(u.entries, UploadEntry{Local: local, Key: key})
}

// Len returns the number of pending uploads.
func (u *UploadSet) Len() int {
	return len(u.entries)
}

// Entries returns a copy of the pending uploads in insertion order.
func (u *UploadSet) Entries() []UploadEntry {
	out := make([]UploadEntry, len(u.entries))
	copy(out, u.entries)
	return out
}

package releaser

// Platform is a GOOS/GOARCH pair.
type Platform struct {
	OS   string `yaml:"os"`
	Arch string `yaml:"arch"`
}

// CIPlatform is the only host that builds matrix targets under CI. Every CI runner
// sees the same matrix, so building it elsewhere would publish duplicates.
var CIPlatform = Platform{OS: "linux", Arch: "amd64"}

func (p Platform) String() string {
	return p.OS + "/" + p.Arch
}

func (p Platform) exeSuffix() string {
	if p.OS == "windows" {
		return ".exe"
	}
	return ""
}

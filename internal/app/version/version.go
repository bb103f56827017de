package version

// Default values are overridden at build time via -ldflags.
// Keep these lower-case so ldflags can set them without exporting internals.
var (
	buildVersion = "dev"
	builtAt      = "unknown"
)

// Info represents the running build metadata.
type Info struct {
	BuildVersion string `json:"buildVersion"`
	BuiltAt      string `json:"builtAt"`
}

func Get() Info {
	return Info{
		BuildVersion: buildVersion,
		BuiltAt:      builtAt,
	}
}

func String() string {
	return buildVersion + " (" + builtAt + ")"
}

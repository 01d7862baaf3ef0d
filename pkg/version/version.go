package version

// Version is replaced at build time with -ldflags "-X github.com/c9s/qrhawkes/pkg/version.Version=..."
var Version = "v0.1.0-dev"

var VersionGitRef = "dev"

package parley

// Version is the release of the parley module and CLI. Release builds override it with
// -ldflags "-X github.com/aretw0/parley.Version=...".
var Version = "0.1.0-dev"

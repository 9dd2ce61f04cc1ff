package baton

// Version is the release version, set at build time with
// -ldflags "-X github.com/aretw0/baton.Version=...".
var Version = "dev"

package main

var (
	// Version is the version of the binary
	Version string
	// GitCommit is the commit hash of the binary
	GitCommit string
	// BuildDate is the date when the binary was built.
	BuildDate string
)

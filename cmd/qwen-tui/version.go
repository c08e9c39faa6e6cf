package main

// Set via -ldflags at release build time.
var (
	version = "dev"
	commit  = "unknown"
)

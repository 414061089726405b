// Package version holds build metadata for httpkit and the default
// User-Agent derived from it.
//
// Version and GitCommit are set at compile time via -ldflags:
//
//	go build -ldflags "-X github.com/kbukum/httpkit/version.Version=v1.2.3"
package version

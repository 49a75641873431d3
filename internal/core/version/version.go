// Package version provides information about the build version of the service.
package version

// SnapshotSchema is the batch snapshot layout version. Snapshots written with a
// different value are discarded on resume
const SnapshotSchema = 3

// BuildInfo holds version information about the service build.
type BuildInfo struct {
	Service        string `json:"service"`
	Version        string `json:"version"`
	Commit         string `json:"commit"`
	Date           string `json:"date"`
	SnapshotSchema int    `json:"snapshot_schema"`
}

// Info returns the build information for service. The version, commit, and date
// variables are intended to be set at build time using -ldflags.
func Info(service string) BuildInfo {
	// Set via -ldflags "-X 'detention/internal/core/version.version=v0.0.1'
	// -X 'detention/internal/core/version.commit=abcd' -X 'detention/internal/core/version.date=2025-09-02'"
	return BuildInfo{
		Service:        service,
		Version:        version,
		Commit:         commit,
		Date:           date,
		SnapshotSchema: SnapshotSchema,
	}
}

var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

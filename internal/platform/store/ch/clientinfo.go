package ch

import (
	"os"
	"runtime"
	"runtime/debug"
	"strings"

	"github.com/ClickHouse/clickhouse-go/v2"
)

// BuildClientInfo tags queries in system.query_log with the binary, its role
// (api or batch), the go version, the vcs revision and the host. Blank values are skipped
func BuildClientInfo(role, tag string) clickhouse.ClientInfo {
	host, _ := os.Hostname()
	pairs := [][2]string{
		{"detention", tag},
		{"role", role},
		{"go", runtime.Version()},
		{"commit", revision()},
		{"host", host},
	}
	var info clickhouse.ClientInfo
	for _, p := range pairs {
		v := strings.TrimSpace(p[1])
		if v == "" {
			continue
		}
		info.Products = append(info.Products, struct{ Name, Version string }{p[0], v})
	}
	return info
}

func revision() string {
	bi, ok := debug.ReadBuildInfo()
	if !ok {
		return ""
	}
	for _, s := range bi.Settings {
		if s.Key == "vcs.revision" {
			return s.Value[:min(7, len(s.Value))]
		}
	}
	return ""
}

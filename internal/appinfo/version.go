/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

// Package appinfo provides build information of the lab binaries.
package appinfo

import (
	"debug/buildinfo"
	"regexp"
	"runtime/debug"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

// ModulePath is the path of the Go module both lab binaries are built from.
const ModulePath = "github.com/acronis/grpc-backpressure-lab"

// PrometheusVersionLabel is a constant label added to every metric exported by the lab.
const PrometheusVersionLabel = "hello_lab_version"

const develVersion = "v0.0.0"

// AddPrometheusVersionLabel returns a copy of the passed labels with the version label added.
func AddPrometheusVersionLabel(labels prometheus.Labels) prometheus.Labels {
	labelsCopy := make(prometheus.Labels, len(labels)+1)
	for k, v := range labels {
		labelsCopy[k] = v
	}
	labelsCopy[PrometheusVersionLabel] = GetVersion()
	return labelsCopy
}

var (
	version     string
	versionOnce sync.Once
)

// GetVersion returns the version of the module the running binary was built from.
func GetVersion() string {
	versionOnce.Do(func() {
		if buildInfo, ok := debug.ReadBuildInfo(); ok {
			version = extractVersion(buildInfo, ModulePath)
		}
		if version == "" || version == "(devel)" {
			version = develVersion
		}
	})
	return version
}

// extractVersion looks for the module either as the main one (binaries are built from it)
// or among the dependencies (it's imported as a library). "moduleName/vX" paths are matched as well.
func extractVersion(buildInfo *buildinfo.BuildInfo, modName string) string {
	if buildInfo == nil {
		return ""
	}
	re := regexp.MustCompile(`^` + regexp.QuoteMeta(modName) + `(/v[0-9]+)?$`)
	if re.MatchString(buildInfo.Main.Path) {
		return buildInfo.Main.Version
	}
	for _, dep := range buildInfo.Deps {
		if re.MatchString(dep.Path) {
			return dep.Version
		}
	}
	return ""
}

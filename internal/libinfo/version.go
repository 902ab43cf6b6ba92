/*
Copyright © 2024 Acronis International GmbH.

Released under MIT license.
*/

// Package libinfo provides the name and the version of the proxy.
package libinfo

import (
	"debug/buildinfo"
	"regexp"
	"runtime/debug"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

// ServiceName is shown in the root API response.
const ServiceName = "MusicBrainz API Proxy"

const modulePath = "github.com/musicranker/mbproxy"

const defaultVersion = "1.0.0"

// PrometheusVersionLabel is a const label added to the HTTP metrics.
const PrometheusVersionLabel = "mbproxy_version"

// version may be set at build time: -ldflags "-X github.com/musicranker/mbproxy/internal/libinfo.version=1.2.0".
var version string
var versionOnce sync.Once

// AddPrometheusVersionLabel returns a copy of labels with the version label added.
func AddPrometheusVersionLabel(labels prometheus.Labels) prometheus.Labels {
	labelsCopy := make(prometheus.Labels, len(labels)+1)
	for k, v := range labels {
		labelsCopy[k] = v
	}
	labelsCopy[PrometheusVersionLabel] = GetVersion()
	return labelsCopy
}

// GetVersion returns the version of the proxy.
func GetVersion() string {
	versionOnce.Do(initVersion)
	return version
}

func initVersion() {
	if version != "" {
		return
	}
	if buildInfo, ok := debug.ReadBuildInfo(); ok {
		version = extractVersion(buildInfo, modulePath)
	}
	if version == "" {
		version = defaultVersion
	}
}

// extractVersion returns the version of the module from the build info.
// The module is either the main one (binary built with "go install module@version")
// or a dependency (the proxy packages are imported by another module), optionally with a major version suffix.
func extractVersion(buildInfo *buildinfo.BuildInfo, modPath string) string {
	if buildInfo == nil {
		return ""
	}
	re, err := regexp.Compile(`^` + regexp.QuoteMeta(modPath) + `(/v[0-9]+)?$`)
	if err != nil {
		return "" // should never happen
	}
	if re.MatchString(buildInfo.Main.Path) && buildInfo.Main.Version != "(devel)" {
		return buildInfo.Main.Version
	}
	for _, dep := range buildInfo.Deps {
		if re.MatchString(dep.Path) {
			return dep.Version
		}
	}
	return ""
}

/*
Copyright © 2024 Acronis International GmbH.

Released under MIT license.
*/

package libinfo

import (
	"debug/buildinfo"
	"runtime/debug"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"
)

func TestExtractVersion(t *testing.T) {
	tests := []struct {
		name        string
		buildInfo   *buildinfo.BuildInfo
		expectedVer string
	}{
		{
			name:        "main module installed with version",
			buildInfo:   &buildinfo.BuildInfo{Main: debug.Module{Path: modulePath, Version: "v1.4.0"}},
			expectedVer: "v1.4.0",
		},
		{
			name:        "main module built from sources",
			buildInfo:   &buildinfo.BuildInfo{Main: debug.Module{Path: modulePath, Version: "(devel)"}},
			expectedVer: "",
		},
		{
			name: "dependency",
			buildInfo: &buildinfo.BuildInfo{
				Main: debug.Module{Path: "example.com/frontend-bff"},
				Deps: []*debug.Module{{Path: modulePath, Version: "v1.2.3"}},
			},
			expectedVer: "v1.2.3",
		},
		{
			name: "dependency, v2",
			buildInfo: &buildinfo.BuildInfo{
				Deps: []*debug.Module{{Path: modulePath + "/v2", Version: "v2.0.0"}},
			},
			expectedVer: "v2.0.0",
		},
		{
			name: "module with similar path",
			buildInfo: &buildinfo.BuildInfo{
				Deps: []*debug.Module{{Path: modulePath + "-client", Version: "v1.0.0"}},
			},
			expectedVer: "",
		},
		{
			name:        "nil build info",
			expectedVer: "",
		},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			require.Equal(t, tt.expectedVer, extractVersion(tt.buildInfo, modulePath))
		})
	}
}

func TestAddPrometheusVersionLabel(t *testing.T) {
	labels := prometheus.Labels{"service": "mbproxy"}
	got := AddPrometheusVersionLabel(labels)
	require.Equal(t, prometheus.Labels{"service": "mbproxy", PrometheusVersionLabel: GetVersion()}, got)
	require.Len(t, labels, 1)
	require.NotEmpty(t, GetVersion())
}

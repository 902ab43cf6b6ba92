/*
Copyright © 2024 Acronis International GmbH.

Released under MIT license.
*/

package config

import (
	"bytes"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestViperAdapter_SetFromReader(t *testing.T) {
	for _, dt := range []DataType{DataTypeYAML, DataTypeJSON} {
		t.Run(string(dt), func(t *testing.T) {
			data := testUpstreamsConfigYAML
			if dt == DataTypeJSON {
				data = testUpstreamsConfigJSON
			}
			va := NewViperAdapter()
			require.NoError(t, va.SetFromReader(bytes.NewBufferString(data), dt))

			baseURL, err := va.GetString("upstreams.musicbrainz.baseURL")
			require.NoError(t, err)
			require.Equal(t, "https://musicbrainz.org/ws/2", baseURL)

			interval, err := va.GetDuration("upstreams.musicbrainz.minInterval")
			require.NoError(t, err)
			require.Equal(t, 1100*time.Millisecond, interval)

			require.True(t, va.IsSet("upstreams.coverArt.baseURL"))
			require.False(t, va.IsSet("upstreams.coverArt.minInterval"))
		})
	}
}

func TestViperAdapter_BindEnv(t *testing.T) {
	t.Setenv("MUSICBRAINZ_USER_AGENT", "MusicRanker/1.0.0 (ops@example.com)")

	va := NewViperAdapter()
	va.UseEnvVars("MBPROXY")
	va.SetDefault("upstreams.musicbrainz.userAgent", "mbproxy")
	require.NoError(t, va.BindEnv("upstreams.musicbrainz.userAgent", "MUSICBRAINZ_USER_AGENT"))

	ua, err := va.GetString("upstreams.musicbrainz.userAgent")
	require.NoError(t, err)
	require.Equal(t, "MusicRanker/1.0.0 (ops@example.com)", ua)

	// Prefixed variable takes precedence over the bound alias.
	t.Setenv("MBPROXY_UPSTREAMS_MUSICBRAINZ_USERAGENT", "MusicRanker/2.0.0")
	ua, err = va.GetString("upstreams.musicbrainz.userAgent")
	require.NoError(t, err)
	require.Equal(t, "MusicRanker/2.0.0", ua)
}

func TestViperAdapter_GetStringFromSet(t *testing.T) {
	va := NewViperAdapter()
	va.Set("cache.tier.kind", "Redis")

	kind, err := va.GetStringFromSet("cache.tier.kind", []string{"none", "redis", "disk"}, true)
	require.NoError(t, err)
	require.Equal(t, "redis", kind)

	_, err = va.GetStringFromSet("cache.tier.kind", []string{"none", "redis", "disk"}, false)
	require.EqualError(t, err, `cache.tier.kind: unknown value "Redis", should be one of [none redis disk]`)
}

func TestViperAdapter_GetStringSlice(t *testing.T) {
	va := NewViperAdapter()
	va.Set("comma", "/health, /metrics,,/debug/*")
	va.Set("list", []interface{}{"/health", "/metrics"})

	got, err := va.GetStringSlice("comma")
	require.NoError(t, err)
	require.Equal(t, []string{"/health", "/metrics", "/debug/*"}, got)

	got, err = va.GetStringSlice("list")
	require.NoError(t, err)
	require.Equal(t, []string{"/health", "/metrics"}, got)

	got, err = va.GetStringSlice("missing")
	require.NoError(t, err)
	require.Empty(t, got)
}

func TestViperAdapter_GetByteSize(t *testing.T) {
	tests := []struct {
		name    string
		value   interface{}
		want    ByteSize
		wantErr string
	}{
		{name: "string", value: "10M", want: 10 * 1024 * 1024},
		{name: "k8s string", value: "1Ki", want: 1024},
		{name: "int", value: 2048, want: 2048},
		{name: "negative int", value: -1, wantErr: "size: negative value is not allowed: -1"},
		{name: "bad type", value: []int{1}, wantErr: "size: unsupported type for byte size: []int"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			va := NewViperAdapter()
			va.Set("size", tt.value)
			got, err := va.GetByteSize("size")
			if tt.wantErr != "" {
				require.EqualError(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			require.Equal(t, tt.want, got)
		})
	}
}

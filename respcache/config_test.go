/*
Copyright © 2024 Acronis International GmbH.

Released under MIT license.
*/

package respcache

import (
	"bytes"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/musicranker/mbproxy/config"
)

func TestConfig(t *testing.T) {
	tests := []struct {
		name    string
		yaml    string
		want    func(c *Config)
		wantErr string
	}{
		{
			name: "defaults",
			yaml: "cache: {}",
			want: func(c *Config) {
				require.Equal(t, DefaultTTL, time.Duration(c.TTL))
				require.Equal(t, DefaultMaxEntries, c.MaxEntries)
				require.Equal(t, DefaultSweepInterval, time.Duration(c.SweepInterval))
				require.Equal(t, TierNone, c.Tier)
				require.Equal(t, DefaultDiskPath, c.Disk.Path)
			},
		},
		{
			name: "disk tier",
			yaml: "cache:\n  ttl: 30m\n  maxEntries: 500\n  tier: Disk\n  disk:\n    path: /var/lib/mbproxy\n",
			want: func(c *Config) {
				require.Equal(t, 30*time.Minute, time.Duration(c.TTL))
				require.Equal(t, 500, c.MaxEntries)
				require.Equal(t, TierDisk, c.Tier)
				require.Equal(t, "/var/lib/mbproxy", c.Disk.Path)
			},
		},
		{
			name:    "unknown tier",
			yaml:    "cache:\n  tier: memcached\n",
			wantErr: `cache.tier: unknown value "memcached", should be one of [none redis disk]`,
		},
		{
			name:    "zero ttl",
			yaml:    "cache:\n  ttl: 0s\n",
			wantErr: "cache.ttl: must be positive",
		},
		{
			name:    "negative max entries",
			yaml:    "cache:\n  maxEntries: -1\n",
			wantErr: "cache.maxEntries: must be positive",
		},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			cfg := NewConfig()
			err := config.NewDefaultLoader("").LoadFromReader(bytes.NewBufferString(tt.yaml), config.DataTypeYAML, cfg)
			if tt.wantErr != "" {
				require.EqualError(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			tt.want(cfg)
		})
	}
}

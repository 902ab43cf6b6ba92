/*
Copyright © 2024 Acronis International GmbH.

Released under MIT license.
*/

package config

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/spf13/cast"
	"github.com/spf13/viper"
)

// ViperAdapter is the viper-backed configuration source. It's also the DataProvider of the root section.
type ViperAdapter struct {
	viperSection
}

// NewViperAdapter returns an empty source.
func NewViperAdapter() *ViperAdapter {
	return &ViperAdapter{viperSection{v: viper.New()}}
}

// UseEnvVars makes every key readable from <PREFIX>_<KEY> with dots turned into underscores,
// so "cache.ttl" may come from MBPROXY_CACHE_TTL.
func (va *ViperAdapter) UseEnvVars(prefix string) {
	va.v.SetEnvPrefix(prefix)
	va.v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	va.v.AutomaticEnv()
}

// BindEnv maps key to unprefixed environment variables. The first one set wins,
// and a variable found through UseEnvVars still takes precedence.
func (va *ViperAdapter) BindEnv(key string, envVarNames ...string) error {
	return va.v.BindEnv(append([]string{key}, envVarNames...)...)
}

// Set overrides key regardless of any other source.
func (va *ViperAdapter) Set(key string, value interface{}) {
	va.v.Set(key, value)
}

// IsSet reports whether key has a value in any source.
func (va *ViperAdapter) IsSet(key string) bool {
	return va.v.IsSet(key)
}

// SetFromFile reads the configuration file at path.
func (va *ViperAdapter) SetFromFile(path string, dataType DataType) error {
	va.v.SetConfigType(string(dataType))
	va.v.SetConfigFile(path)
	return va.v.ReadInConfig()
}

// SetFromReader reads configuration data from reader.
func (va *ViperAdapter) SetFromReader(reader io.Reader, dataType DataType) error {
	va.v.SetConfigType(string(dataType))
	return va.v.ReadConfig(reader)
}

// Section returns a DataProvider whose keys are relative to prefix.
func (va *ViperAdapter) Section(prefix string) DataProvider {
	return &viperSection{v: va.v, prefix: strings.Trim(prefix, ".")}
}

type viperSection struct {
	v      *viper.Viper
	prefix string
}

var _ DataProvider = (*viperSection)(nil)

func (s *viperSection) fullKey(key string) string {
	switch {
	case s.prefix == "":
		return key
	case key == "":
		return s.prefix
	default:
		return s.prefix + "." + key
	}
}

func (s *viperSection) get(key string) interface{} {
	return s.v.Get(s.fullKey(key))
}

func (s *viperSection) SetDefault(key string, value interface{}) {
	s.v.SetDefault(s.fullKey(key), value)
}

func (s *viperSection) WrapKeyErr(key string, err error) error {
	return WrapKeyErr(s.fullKey(key), err)
}

func (s *viperSection) GetBool(key string) (bool, error) {
	res, err := cast.ToBoolE(s.get(key))
	return res, s.WrapKeyErr(key, err)
}

func (s *viperSection) GetInt(key string) (int, error) {
	res, err := cast.ToIntE(s.get(key))
	return res, s.WrapKeyErr(key, err)
}

func (s *viperSection) GetString(key string) (string, error) {
	res, err := cast.ToStringE(s.get(key))
	return res, s.WrapKeyErr(key, err)
}

func (s *viperSection) GetStringFromSet(key string, set []string, ignoreCase bool) (string, error) {
	str, err := s.GetString(key)
	if err != nil {
		return "", err
	}
	for _, allowed := range set {
		if str == allowed || (ignoreCase && strings.EqualFold(str, allowed)) {
			return allowed, nil
		}
	}
	return "", s.WrapKeyErr(key, fmt.Errorf("unknown value %q, should be one of %v", str, set))
}

// GetStringSlice also accepts a comma-separated string, which is how lists come from env vars.
func (s *viperSection) GetStringSlice(key string) ([]string, error) {
	switch val := s.get(key).(type) {
	case nil:
		return nil, nil
	case string:
		var res []string
		for _, item := range strings.Split(val, ",") {
			if item = strings.TrimSpace(item); item != "" {
				res = append(res, item)
			}
		}
		return res, nil
	default:
		res, err := cast.ToStringSliceE(val)
		return res, s.WrapKeyErr(key, err)
	}
}

// GetDuration reads "1m30s"-like strings. Plain numbers are nanoseconds.
func (s *viperSection) GetDuration(key string) (time.Duration, error) {
	val := s.get(key)
	if val == nil {
		return 0, nil
	}
	res, err := cast.ToDurationE(val)
	return res, s.WrapKeyErr(key, err)
}

// GetByteSize reads integers as well as "10M" or "1Gi" strings.
func (s *viperSection) GetByteSize(key string) (ByteSize, error) {
	switch val := s.get(key).(type) {
	case nil:
		return 0, nil
	case ByteSize:
		return val, nil
	case string:
		if val == "" {
			return 0, nil
		}
		res, err := parseByteSizeFromString(val)
		return res, s.WrapKeyErr(key, err)
	default:
		num, err := cast.ToInt64E(val)
		if err != nil {
			return 0, s.WrapKeyErr(key, fmt.Errorf("unsupported type for byte size: %T", val))
		}
		if num < 0 {
			return 0, s.WrapKeyErr(key, fmt.Errorf("negative value is not allowed: %d", num))
		}
		return ByteSize(num), nil
	}
}

func (s *viperSection) UnmarshalKey(key string, rawVal interface{}, opts ...DecoderConfigOption) error {
	viperOpts := make([]viper.DecoderConfigOption, 0, len(opts))
	for _, opt := range opts {
		viperOpts = append(viperOpts, viper.DecoderConfigOption(opt))
	}
	return s.WrapKeyErr(key, s.v.UnmarshalKey(s.fullKey(key), rawVal, viperOpts...))
}

package config

import (
	"encoding/json"
	"fmt"
	"reflect"
	"strconv"
	"strings"
	"time"

	"github.com/go-viper/mapstructure/v2"
)

// Duration is a timeout or backoff from planify.yaml. It accepts Go
// duration strings ("90s", "1m30s") and bare numbers, which are seconds.
type Duration time.Duration

func (d Duration) Duration() time.Duration { return time.Duration(d) }

func parseDuration(s string) (Duration, error) {
	s = strings.TrimSpace(s)
	if n, err := strconv.ParseFloat(s, 64); err == nil {
		return secondsDuration(n)
	}
	v, err := time.ParseDuration(s)
	if err != nil {
		return 0, fmt.Errorf("invalid duration %q", s)
	}
	if v < 0 {
		return 0, fmt.Errorf("negative duration %q", s)
	}
	return Duration(v), nil
}

func secondsDuration(n float64) (Duration, error) {
	if n < 0 {
		return 0, fmt.Errorf("negative duration %vs", n)
	}
	return Duration(n * float64(time.Second)), nil
}

func (d *Duration) UnmarshalText(text []byte) error {
	v, err := parseDuration(string(text))
	if err != nil {
		return err
	}
	*d = v
	return nil
}

func (d Duration) MarshalText() ([]byte, error) { return []byte(d.Duration().String()), nil }

func (d Duration) MarshalJSON() ([]byte, error) { return json.Marshal(d.Duration().String()) }

func (d Duration) MarshalYAML() (any, error) { return d.Duration().String(), nil }

var durationType = reflect.TypeOf(Duration(0))

// durationHook decodes YAML numbers into Duration as seconds. Without it
// mapstructure would store "timeout: 120" as 120ns.
func durationHook(_ reflect.Type, to reflect.Type, data any) (any, error) {
	if to != durationType {
		return data, nil
	}
	switch v := data.(type) {
	case int:
		return secondsDuration(float64(v))
	case int64:
		return secondsDuration(float64(v))
	case uint64:
		return secondsDuration(float64(v))
	case float64:
		return secondsDuration(v)
	}
	return data, nil
}

// decodeHook is used by Load when unmarshaling into Config.
func decodeHook() mapstructure.DecodeHookFunc {
	return mapstructure.ComposeDecodeHookFunc(
		durationHook,
		mapstructure.StringToSliceHookFunc(","),
		mapstructure.TextUnmarshallerHookFunc(),
	)
}

// Secret holds a credential. Every printed or serialized form is
// "[REDACTED]"; only Value returns the real string.
type Secret string

const redacted = "[REDACTED]"

func (s Secret) Value() string { return string(s) }

func (s Secret) IsSet() bool { return s != "" }

func (s Secret) String() string {
	if !s.IsSet() {
		return ""
	}
	return redacted
}

func (s Secret) GoString() string { return "Secret(" + redacted + ")" }

func (s Secret) MarshalJSON() ([]byte, error) { return json.Marshal(s.String()) }

func (s Secret) MarshalText() ([]byte, error) { return []byte(s.String()), nil }

func (s Secret) MarshalYAML() (any, error) { return s.String(), nil }

// UnmarshalText stores text as is. Keys arrive from planify.yaml or from
// OPENAI_API_KEY and ANTHROPIC_API_KEY.
func (s *Secret) UnmarshalText(text []byte) error {
	*s = Secret(text)
	return nil
}

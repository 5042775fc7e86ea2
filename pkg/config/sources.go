package config

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/samber/lo"
	"github.com/spf13/viper"
)

var (
	ErrNoSources     = errors.New("no sources configured")
	ErrInvalidSource = errors.New("invalid source")
)

// Source describes one rig. Immutable after startup.
type Source struct {
	ID           string `mapstructure:"id" yaml:"id"`
	Port         int    `mapstructure:"port" yaml:"port"`
	DriverName   string `mapstructure:"driverName" yaml:"driverName"`
	DeviceID     string `mapstructure:"deviceId" yaml:"deviceId"`
	IndividualID string `mapstructure:"individualId" yaml:"individualId,omitempty"`
}

// ParseSourceSpec parses id:port:driver:device[:individual]
func ParseSourceSpec(spec string) (Source, error) {
	parts := strings.Split(spec, ":")
	if len(parts) < 4 || len(parts) > 5 {
		return Source{}, fmt.Errorf("%w: %q (want id:port:driver:device[:individual])",
			ErrInvalidSource, spec)
	}
	port, err := strconv.Atoi(parts[1])
	if err != nil {
		return Source{}, fmt.Errorf("%w: %q: port: %w", ErrInvalidSource, spec, err)
	}
	s := Source{ID: parts[0], Port: port, DriverName: parts[2], DeviceID: parts[3]}
	if len(parts) == 5 {
		s.IndividualID = parts[4]
	}
	return s, nil
}

// LoadSources resolves the configured sources. Sources given as flags take
// precedence over the "sources" key of the config file.
func LoadSources(v *viper.Viper, specs []string) ([]Source, error) {
	var ret []Source
	if len(specs) > 0 {
		for _, spec := range specs {
			s, err := ParseSourceSpec(spec)
			if err != nil {
				return nil, err
			}
			ret = append(ret, s)
		}
	} else if v != nil && v.IsSet("sources") {
		if err := v.UnmarshalKey("sources", &ret); err != nil {
			return nil, fmt.Errorf("error reading sources: %w", err)
		}
	}
	if err := ValidateSources(ret); err != nil {
		return nil, err
	}
	return ret, nil
}

// ValidateSources checks for an empty list, empty ids, port range and
// duplicate ids/ports.
func ValidateSources(sources []Source) error {
	if len(sources) == 0 {
		return ErrNoSources
	}
	for i, s := range sources {
		if s.ID == "" {
			return fmt.Errorf("%w: entry %d has no id", ErrInvalidSource, i)
		}
		if s.Port < 1 || s.Port > 65535 {
			return fmt.Errorf("%w: %s: port %d out of range", ErrInvalidSource, s.ID, s.Port)
		}
	}
	if dup := lo.FindDuplicatesBy(sources, func(s Source) string { return s.ID }); len(dup) > 0 {
		return fmt.Errorf("%w: duplicate id %s", ErrInvalidSource, dup[0].ID)
	}
	if dup := lo.FindDuplicatesBy(sources, func(s Source) int { return s.Port }); len(dup) > 0 {
		return fmt.Errorf("%w: duplicate port %d", ErrInvalidSource, dup[0].Port)
	}
	return nil
}

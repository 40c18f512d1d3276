package main

import (
	"errors"
	"fmt"
	"io"
	"reflect"
	"strings"
	"time"

	"github.com/alecthomas/kong"
	"gopkg.in/yaml.v3"
)

var durationType = reflect.TypeOf(time.Duration(0))

// yamlConfig is a kong.ConfigurationLoader reading flag values from a YAML
// document. Keys are flag names with dashes or underscores:
//
//	server: ftp.example.com
//	remote: /var/www
//	local: ./public
//	workers: 4
//	retry: 2
//	retry_delay: 10s
//
// Integer durations are seconds.
func yamlConfig(r io.Reader) (kong.Resolver, error) {
	values := map[string]any{}
	if err := yaml.NewDecoder(r).Decode(&values); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("config: %w", err)
	}

	var f kong.ResolverFunc = func(_ *kong.Context, _ *kong.Path, flag *kong.Flag) (any, error) {
		raw, ok := values[flag.Name]
		if !ok {
			raw, ok = values[strings.ReplaceAll(flag.Name, "-", "_")]
		}
		if !ok || raw == nil {
			return nil, nil
		}
		return coerce(raw, flag.Target.Type()), nil
	}
	return f, nil
}

// coerce adapts YAML scalars to what kong's mappers expect for target.
func coerce(raw any, target reflect.Type) any {
	switch {
	case target == durationType:
		if n, ok := raw.(int); ok {
			return (time.Duration(n) * time.Second).String()
		}
	case target.Kind() == reflect.String:
		if _, ok := raw.(string); !ok {
			return fmt.Sprint(raw)
		}
	}
	return raw
}

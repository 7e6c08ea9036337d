// Package config provides the per-daemon Config structs and a reflect-driven
// env-tag unmarshaler modeled on R2Northstar-Atlas's
// pkg/atlas.Config.UnmarshalEnv: each field's `env:"NAME=default"` struct tag
// names the environment variable and its default value.
package config

import (
	"fmt"
	"net"
	"reflect"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// Unmarshal fills the fields of cfg (a pointer to a struct) from es, a list
// of "KEY=VALUE" strings such as os.Environ() or the output of
// github.com/hashicorp/go-envparse. Every exported field must carry an
// `env:"KEY=default"` tag; KEY with no default means the field keeps its
// Go zero value when unset.
func Unmarshal(cfg any, es []string) error {
	em := map[string]string{}
	for _, e := range es {
		if k, v, ok := strings.Cut(e, "="); ok {
			em[k] = v
		}
	}

	cv := reflect.ValueOf(cfg)
	if cv.Kind() != reflect.Ptr || cv.Elem().Kind() != reflect.Struct {
		return fmt.Errorf("config: Unmarshal requires a pointer to a struct")
	}
	cv = cv.Elem()

	for _, ctf := range reflect.VisibleFields(cv.Type()) {
		tag, ok := ctf.Tag.Lookup("env")
		if !ok {
			continue
		}
		key, def, _ := strings.Cut(tag, "=")

		val := def
		if v, exists := em[key]; exists && v != "" {
			val = v
		}

		fv := cv.FieldByIndex(ctf.Index)
		if err := setField(fv, val); err != nil {
			return fmt.Errorf("config: env %s: %w", key, err)
		}
	}
	return nil
}

func setField(fv reflect.Value, val string) error {
	switch v := fv.Addr().Interface().(type) {
	case *string:
		*v = val
	case *int:
		if val == "" {
			*v = 0
			return nil
		}
		n, err := strconv.Atoi(val)
		if err != nil {
			return err
		}
		*v = n
	case *bool:
		if val == "" {
			*v = false
			return nil
		}
		b, err := strconv.ParseBool(val)
		if err != nil {
			return err
		}
		*v = b
	case *[]string:
		if val == "" {
			*v = nil
			return nil
		}
		*v = strings.Split(val, ",")
	case *time.Duration:
		if val == "" {
			*v = 0
			return nil
		}
		d, err := time.ParseDuration(val)
		if err != nil {
			return err
		}
		*v = d
	case *zerolog.Level:
		if val == "" {
			*v = zerolog.InfoLevel
			return nil
		}
		l, err := zerolog.ParseLevel(val)
		if err != nil {
			return err
		}
		*v = l
	case *[]*net.IPNet:
		if val == "" {
			*v = nil
			return nil
		}
		var nets []*net.IPNet
		for _, part := range strings.Split(val, ",") {
			_, ipnet, err := net.ParseCIDR(strings.TrimSpace(part))
			if err != nil {
				return fmt.Errorf("parse CIDR %q: %w", part, err)
			}
			nets = append(nets, ipnet)
		}
		*v = nets
	default:
		return fmt.Errorf("unhandled config field type %T", v)
	}
	return nil
}

// Package config provides the integer/string settings consumed by the ECS
// core and its tooling. Settings come from TOML or YAML files, from the
// environment, or from an in-memory map, and are addressed by dotted keys
// such as "ecs.chunk_size".
package config

import (
	"strings"

	"github.com/spf13/cast"
)

// Keys understood by the hako packages.
const (
	KeyChunkSize  = "ecs.chunk_size"
	KeyExpandSize = "ecs.expand_size"
	KeyWorkers    = "task.workers"
	KeyLogLevel   = "log.level"
)

// Source is the read side consumed by the registry and the task pool.
type Source interface {
	GetInt(key string, def int) int
}

// Values is a Source backed by a map. Keys may be stored flat
// ("ecs.chunk_size") or nested ({"ecs": {"chunk_size": 16}}).
type Values map[string]any

var _ Source = Values(nil)

// Get returns the raw value stored under key.
func (v Values) Get(key string) (any, bool) {
	if raw, ok := v[key]; ok {
		return raw, true
	}
	parts := strings.Split(key, ".")
	var cur any = map[string]any(v)
	for _, part := range parts {
		m, ok := asMap(cur)
		if !ok {
			return nil, false
		}
		cur, ok = m[part]
		if !ok {
			return nil, false
		}
	}
	return cur, true
}

// GetInt returns the value under key coerced to int, or def when the key is
// missing or cannot be coerced.
func (v Values) GetInt(key string, def int) int {
	raw, ok := v.Get(key)
	if !ok {
		return def
	}
	n, err := cast.ToIntE(raw)
	if err != nil {
		return def
	}
	return n
}

// GetString returns the value under key coerced to string, or def.
func (v Values) GetString(key, def string) string {
	raw, ok := v.Get(key)
	if !ok {
		return def
	}
	s, err := cast.ToStringE(raw)
	if err != nil || s == "" {
		return def
	}
	return s
}

// Flatten returns a copy of v where every nested map is expanded into
// dotted keys.
func (v Values) Flatten() Values {
	out := make(Values, len(v))
	flattenInto(out, "", map[string]any(v))
	return out
}

// Merge combines sources left to right; later sources win per key.
func Merge(sources ...Values) Values {
	out := Values{}
	for _, src := range sources {
		for k, val := range src.Flatten() {
			out[k] = val
		}
	}
	return out
}

func flattenInto(out Values, prefix string, m map[string]any) {
	for k, val := range m {
		key := k
		if prefix != "" {
			key = prefix + "." + k
		}
		if nested, ok := asMap(val); ok {
			flattenInto(out, key, nested)
			continue
		}
		out[key] = val
	}
}

func asMap(v any) (map[string]any, bool) {
	switch m := v.(type) {
	case map[string]any:
		return m, true
	case Values:
		return m, true
	case map[any]any:
		out := make(map[string]any, len(m))
		for k, val := range m {
			out[cast.ToString(k)] = val
		}
		return out, true
	default:
		return nil, false
	}
}

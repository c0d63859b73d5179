package strategy

import (
	"encoding/json"
	"strconv"
	"strings"

	"gorm.io/datatypes"

	"propdesk/internal/models"
)

// Params is a strategy's numeric parameter map.
type Params map[string]float64

func (p Params) Float(key string, fallback float64) float64 {
	if v, ok := p[key]; ok {
		return v
	}
	return fallback
}

func (p Params) Int(key string, fallback int) int {
	if v, ok := p[key]; ok && v >= 1 {
		return int(v)
	}
	return fallback
}

func (p Params) Clone() Params {
	out := make(Params, len(p))
	for k, v := range p {
		out[k] = v
	}
	return out
}

// JSON encodes the map for storage.
func (p Params) JSON() datatypes.JSON {
	raw, err := json.Marshal(p)
	if err != nil {
		return datatypes.JSON(`{}`)
	}
	return datatypes.JSON(raw)
}

// ParseParams decodes a stored map, skipping non-numeric values.
func ParseParams(raw []byte) Params {
	out := Params{}
	if len(raw) == 0 {
		return out
	}
	m := map[string]any{}
	if err := json.Unmarshal(raw, &m); err != nil {
		return out
	}
	for k, v := range m {
		if f, ok := toFloat(v); ok {
			out[k] = f
		}
	}
	return out
}

// MergeParams layers evaluator defaults, then config defaults for the
// strategy type, then the stored params.
func MergeParams(ev Evaluator, defaults map[string]any, t models.StrategyType, stored []byte) Params {
	base := Params{}
	if ev != nil {
		base = ev.DefaultParams().Clone()
	}
	if raw, ok := lookupDefaults(defaults, t); ok {
		for k, v := range raw {
			if strings.EqualFold(k, "enabled") {
				continue
			}
			if f, ok := toFloat(v); ok {
				base[k] = f
			}
		}
	}
	for k, v := range ParseParams(stored) {
		base[k] = v
	}
	return base
}

// Viper lowercases map keys, so strategy types are matched case-insensitively.
func lookupDefaults(defaults map[string]any, t models.StrategyType) (map[string]any, bool) {
	if len(defaults) == 0 {
		return nil, false
	}
	raw, ok := defaults[strings.ToLower(string(t))]
	if !ok {
		raw, ok = defaults[string(t)]
	}
	if !ok {
		return nil, false
	}
	m, ok := raw.(map[string]any)
	return m, ok
}

func toFloat(v any) (float64, bool) {
	switch x := v.(type) {
	case float64:
		return x, true
	case float32:
		return float64(x), true
	case int:
		return float64(x), true
	case int64:
		return float64(x), true
	case int32:
		return float64(x), true
	case json.Number:
		f, err := x.Float64()
		return f, err == nil
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(x), 64)
		return f, err == nil
	}
	return 0, false
}

package program

import (
	"errors"
	"fmt"

	"github.com/rs/zerolog/log"
	"gopkg.in/yaml.v3"

	"github.com/dokzlo13/lightcycle/internal/color"
	"github.com/dokzlo13/lightcycle/internal/solar"
)

var (
	// ErrUnknownType is returned for a program whose type tag is missing or not recognized.
	ErrUnknownType = errors.New("unknown program type")
)

// Decode builds a program from a generic map, as produced by YAML, JSON or Lua tables.
// The "type" field selects the variant. A missing "index" is reported as -1.
func Decode(m map[string]any) (Indexed, error) {
	out := Indexed{Index: -1}
	if v, ok := m["index"]; ok {
		idx, ok := toInt(v)
		if !ok {
			return out, fmt.Errorf("program index %v is not an integer", v)
		}
		out.Index = idx
	}

	tag, _ := m["type"].(string)
	switch Kind(tag) {
	case KindScene:
		out.Program = decodeScene(m)
	case KindManual:
		out.Program = decodeManual(m)
	case KindDynamic:
		out.Program = DecodeDynamic(m)
	default:
		return out, fmt.Errorf("%w: %q", ErrUnknownType, tag)
	}
	return out, nil
}

// DecodeList decodes programs in order. Entries without an index get their position.
func DecodeList(entries []map[string]any) (List, error) {
	list := make(List, 0, len(entries))
	for i, e := range entries {
		p, err := Decode(e)
		if err != nil {
			return nil, fmt.Errorf("program %d: %w", i, err)
		}
		if p.Index < 0 {
			p.Index = i
		}
		list = append(list, p)
	}
	return list, nil
}

// DecodeDynamic reads the curve name and tuning parameters. The type tag is not required.
func DecodeDynamic(m map[string]any) Dynamic {
	d := Dynamic{}
	d.Name, _ = m["name"].(string)
	d.Params = solar.Params{
		MaxColorTemp:  intField(m, "max_color_temp"),
		MinColorTemp:  intField(m, "min_color_temp"),
		MaxBrightness: intField(m, "max_brightness"),
		MinBrightness: intField(m, "min_brightness"),
	}
	return d
}

func decodeScene(m map[string]any) Scene {
	switch v := m["scene_id"].(type) {
	case string:
		return Scene{SceneID: v}
	case nil:
		return Scene{}
	default:
		return Scene{SceneID: fmt.Sprint(v)}
	}
}

func decodeManual(m map[string]any) Manual {
	p := Manual{}
	p.Brightness = optInt(m, "brightness")
	p.ColorTemperature = optInt(m, "color_temperature")

	switch c := m["color"].(type) {
	case nil:
	case string:
		if rgb, err := color.Decode(c); err == nil {
			p.Color = &rgb
		} else {
			log.Debug().Str("color", c).Msg("Ignoring invalid program color")
		}
	case map[string]any:
		r, okR := toInt(c["r"])
		g, okG := toInt(c["g"])
		b, okB := toInt(c["b"])
		if okR && okG && okB {
			p.Color = &color.RGB{R: r, G: g, B: b}
		} else {
			log.Debug().Interface("color", c).Msg("Ignoring incomplete program color")
		}
	}
	return p
}

// optInt returns a pointer to an integer field, or nil if absent or not an integer.
func optInt(m map[string]any, key string) *int {
	v, ok := m[key]
	if !ok || v == nil {
		return nil
	}
	n, ok := toInt(v)
	if !ok {
		log.Debug().Str("field", key).Interface("value", v).Msg("Ignoring non-integer program value")
		return nil
	}
	return &n
}

func intField(m map[string]any, key string) int {
	if p := optInt(m, key); p != nil {
		return *p
	}
	return 0
}

func toInt(v any) (int, bool) {
	switch n := v.(type) {
	case int:
		return n, true
	case int64:
		return int(n), true
	case float64:
		if n != float64(int(n)) {
			return 0, false
		}
		return int(n), true
	}
	return 0, false
}

// UnmarshalYAML decodes one program entry.
func (p *Indexed) UnmarshalYAML(value *yaml.Node) error {
	var m map[string]any
	if err := value.Decode(&m); err != nil {
		return err
	}
	decoded, err := Decode(m)
	if err != nil {
		return fmt.Errorf("line %d: %w", value.Line, err)
	}
	*p = decoded
	return nil
}

// UnmarshalYAML decodes a program list, filling missing indices with positions.
func (l *List) UnmarshalYAML(value *yaml.Node) error {
	var entries []map[string]any
	if err := value.Decode(&entries); err != nil {
		return err
	}
	list, err := DecodeList(entries)
	if err != nil {
		return fmt.Errorf("line %d: %w", value.Line, err)
	}
	*l = list
	return nil
}

// UnmarshalYAML decodes a dynamic program definition.
func (d *Dynamic) UnmarshalYAML(value *yaml.Node) error {
	var m map[string]any
	if err := value.Decode(&m); err != nil {
		return err
	}
	*d = DecodeDynamic(m)
	return nil
}

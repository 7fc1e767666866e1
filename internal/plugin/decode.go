package plugin

import (
	"github.com/go-viper/mapstructure/v2"
)

// DecodeConfig decodes an opaque plugin config mapping into a typed config
// struct. Unknown keys are rejected so that typos in pipeline documents
// surface at load time instead of silently configuring nothing.
func DecodeConfig(cfg map[string]any, out any) error {
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           out,
		ErrorUnused:      true,
		WeaklyTypedInput: true,
		DecodeHook: mapstructure.ComposeDecodeHookFunc(
			mapstructure.StringToTimeDurationHookFunc(),
		),
	})
	if err != nil {
		return Configf("building config decoder: %v", err)
	}
	if err := dec.Decode(cfg); err != nil {
		return &ConfigError{Err: err}
	}
	return nil
}

package lammps

import (
	"reflect"
	"strings"

	"github.com/go-viper/mapstructure/v2"

	"github.com/potflow/lmprun/internal/operr"
)

// Config holds the resolved task options. Produced once per invocation by
// NormalizeConfig and immutable afterwards.
type Config struct {
	// Command invokes the LAMMPS engine; driver and log flags are appended.
	Command string `mapstructure:"command"`
	// TeacherModel, when set, injects a teacher model for knowledge
	// distillation. The caller must then supply exactly one student model.
	TeacherModel *ModelSource `mapstructure:"teacher_model_path"`
	// ShuffleModels randomizes the model order on the pair_style line so no
	// fixed model anchors the simulation.
	ShuffleModels bool `mapstructure:"shuffle_models"`
	// Impl selects the model format: tensorflow models are pre-frozen and
	// symlinked, pytorch checkpoints are frozen during staging.
	Impl string `mapstructure:"impl"`
	// Head selects a sub-model when a pytorch checkpoint holds multiple
	// task heads.
	Head string `mapstructure:"head"`
}

// NormalizeConfig validates raw against the recognized option set and
// fills defaults. Keys starting with "_" are dropped; any other
// unrecognized key, wrong-typed value, or unknown impl is a fatal error.
func NormalizeConfig(raw map[string]any) (*Config, error) {
	trimmed := make(map[string]any, len(raw))
	for k, v := range raw {
		if strings.HasPrefix(k, "_") {
			continue
		}
		trimmed[k] = v
	}

	cfg := Config{
		Command: DefaultCommand,
		Impl:    ImplTensorFlow,
	}

	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:      &cfg,
		ErrorUnused: true,
		DecodeHook:  modelSourceFromString,
	})
	if err != nil {
		return nil, err
	}
	if err := dec.Decode(trimmed); err != nil {
		return nil, operr.Fatalf("invalid config: %w", err)
	}

	if cfg.Impl != ImplTensorFlow && cfg.Impl != ImplPyTorch {
		return nil, operr.Fatalf("invalid config: impl must be %q or %q, got %q",
			ImplTensorFlow, ImplPyTorch, cfg.Impl)
	}

	return &cfg, nil
}

// modelSourceFromString lets teacher_model_path be given as a plain path
// string; the {name, content} mapping form decodes into the struct as-is.
func modelSourceFromString(from reflect.Type, to reflect.Type, data any) (any, error) {
	if from.Kind() != reflect.String {
		return data, nil
	}
	if to != reflect.TypeOf(ModelSource{}) && to != reflect.TypeOf(&ModelSource{}) {
		return data, nil
	}
	return &ModelSource{Path: data.(string)}, nil
}

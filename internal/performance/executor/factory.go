package executor

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/wesleyorama2/pacer/internal/logging"
)

// NewStrategy creates the strategy selected by cfg.Type.
//
// Supported types:
//   - "fixed" - Fixed worker count, admission as fast as the workers go
//   - "constant-speed" - Fixed worker count, admission limited to a rate
//   - "ramp-up-down" - Worker count moves through five phases
//   - "custom-profile" - Worker count and rate follow a profile
func NewStrategy(cfg Config, logger *zap.SugaredLogger) (Strategy, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	cfg = cfg.withDefaults()

	switch cfg.Type {
	case TypeFixed:
		return newFixed(cfg.Threads), nil
	case TypeConstantSpeed:
		return newConstantSpeed(cfg.Threads, cfg.Speed), nil
	case TypeRampUpDown:
		return newRampUpDown(*cfg.Ramp, cfg.Threads, logging.OrDefault(logger)), nil
	case TypeCustomProfile:
		return newCustomProfile(cfg.Profile), nil
	default:
		return nil, fmt.Errorf("unknown generator type: %s", cfg.Type)
	}
}

// IsValidGeneratorType returns true if the type names a strategy.
func IsValidGeneratorType(generatorType string) bool {
	switch Type(generatorType) {
	case TypeFixed, TypeConstantSpeed, TypeRampUpDown, TypeCustomProfile:
		return true
	default:
		return false
	}
}

// GetSupportedGenerators returns a list of all supported strategy types.
func GetSupportedGenerators() []Type {
	return []Type{
		TypeFixed,
		TypeConstantSpeed,
		TypeRampUpDown,
		TypeCustomProfile,
	}
}

// GeneratorDescription provides documentation for a strategy type.
type GeneratorDescription struct {
	Type        Type
	Name        string
	Description string
	UseCases    []string
}

// GetGeneratorDescription returns documentation for a strategy type.
func GetGeneratorDescription(generatorType Type) *GeneratorDescription {
	switch generatorType {
	case TypeFixed:
		return &GeneratorDescription{
			Type:        TypeFixed,
			Name:        "Fixed",
			Description: "Runs a fixed number of workers. A new task is admitted whenever the admission queue has room (closed model).",
			UseCases: []string{
				"Basic load testing",
				"Determining max throughput for N concurrent workers",
				"Sending an exact number of messages",
			},
		}
	case TypeConstantSpeed:
		return &GeneratorDescription{
			Type:        TypeConstantSpeed,
			Name:        "Constant Speed",
			Description: "Runs a fixed number of workers and admits at most the configured number of tasks per second.",
			UseCases: []string{
				"SLA validation (e.g., system must handle 100 messages/s)",
				"Soak testing at a predictable rate",
			},
		}
	case TypeRampUpDown:
		return &GeneratorDescription{
			Type:        TypeRampUpDown,
			Name:        "Ramp Up Down",
			Description: "Holds a pre level, steps the worker count up to the main level, holds it, then steps down to the post level.",
			UseCases: []string{
				"Finding the breaking point of a system",
				"Observing recovery after peak load",
			},
		}
	case TypeCustomProfile:
		return &GeneratorDescription{
			Type:        TypeCustomProfile,
			Name:        "Custom Profile",
			Description: "Sets the worker count and rate from a profile keyed by run progress. Optionally replays the profile.",
			UseCases: []string{
				"Replaying recorded production traffic shapes",
				"Testing auto-scaling behavior",
			},
		}
	default:
		return nil
	}
}

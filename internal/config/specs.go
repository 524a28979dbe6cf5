package config

import (
	"fmt"
	"os"
	"regexp"

	"github.com/melih/lighthouse-up/internal/core/domain"
	"github.com/melih/lighthouse-up/internal/core/wait"
	"gopkg.in/yaml.v3"
)

type specsFile struct {
	Containers []domain.ContainerSpec `yaml:"containers"`
}

// LoadSpecs parses and validates the container definitions in path.
func LoadSpecs(path string) ([]domain.ContainerSpec, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read container config: %w", err)
	}
	return ParseSpecs(data)
}

// ParseSpecs parses and validates YAML container definitions. Declaration order
// is preserved.
func ParseSpecs(data []byte) ([]domain.ContainerSpec, error) {
	var f specsFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse container config: %w", err)
	}
	if len(f.Containers) == 0 {
		return nil, fmt.Errorf("%w: no containers defined", domain.ErrInvalidSpec)
	}
	if err := Validate(f.Containers); err != nil {
		return nil, err
	}
	return f.Containers, nil
}

// Validate checks every spec on its own and that names and aliases are unique
// across the batch.
func Validate(specs []domain.ContainerSpec) error {
	seen := make(map[string]string)
	claim := func(ref, owner string) error {
		if other, ok := seen[ref]; ok {
			return fmt.Errorf("%w: %q is used by both %s and %s", domain.ErrInvalidSpec, ref, other, owner)
		}
		seen[ref] = owner
		return nil
	}
	for _, spec := range specs {
		if err := validateSpec(spec); err != nil {
			return fmt.Errorf("container %q: %w", spec.Name, err)
		}
		if err := claim(spec.Name, spec.Name); err != nil {
			return err
		}
		if spec.Alias != "" && spec.Alias != spec.Name {
			if err := claim(spec.Alias, spec.Name); err != nil {
				return err
			}
		}
	}
	return nil
}

func validateSpec(spec domain.ContainerSpec) error {
	if spec.Name == "" {
		return fmt.Errorf("%w: name is required", domain.ErrInvalidSpec)
	}
	if spec.Image == "" {
		return fmt.Errorf("%w: image is required", domain.ErrInvalidSpec)
	}
	if spec.Cmd != nil {
		if err := spec.Cmd.Validate(); err != nil {
			return err
		}
	}
	if _, err := domain.ParsePortSpecs(spec.Ports); err != nil {
		return err
	}

	w := spec.Wait
	if w == nil {
		return nil
	}
	if w.Time < 0 || w.Shutdown < 0 || w.Settle < 0 {
		return fmt.Errorf("%w: wait durations must not be negative", domain.ErrInvalidSpec)
	}
	if probe := w.HTTPProbe(); probe != nil && probe.Status != "" {
		if _, err := wait.ParseStatusRange(probe.Status); err != nil {
			return err
		}
	}
	for _, pattern := range []string{w.Log, w.Fail} {
		if pattern == "" {
			continue
		}
		if _, err := regexp.Compile(pattern); err != nil {
			return fmt.Errorf("%w: pattern %q: %v", domain.ErrInvalidSpec, pattern, err)
		}
	}
	return nil
}

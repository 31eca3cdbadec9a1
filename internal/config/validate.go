// CUE schema validation code
package config

import (
	_ "embed"
	"fmt"
	"os"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	"cuelang.org/go/encoding/yaml"
)

//go:embed schema.cue
var schemaSource string

// ValidateWithCue validates a YAML configuration file against the embedded
// CUE schema.
func ValidateWithCue(configFile string) error {
	data, err := os.ReadFile(configFile)
	if err != nil {
		return fmt.Errorf("cannot read YAML config: %w", err)
	}
	return validateYAML(configFile, data)
}

func validateYAML(name string, data []byte) error {
	ctx := cuecontext.New()

	schema := ctx.CompileString(schemaSource, cue.Filename("schema.cue"))
	if err := schema.Err(); err != nil {
		return fmt.Errorf("cannot compile CUE schema: %w", err)
	}

	file, err := yaml.Extract(name, data)
	if err != nil {
		return &FieldError{Field: name, Reason: fmt.Sprintf("cannot parse YAML: %v", err)}
	}
	configVal := ctx.BuildFile(file)
	if err := configVal.Err(); err != nil {
		return &FieldError{Field: name, Reason: fmt.Sprintf("cannot build YAML value: %v", err)}
	}

	final := schema.LookupPath(cue.ParsePath("#Config")).Unify(configVal)
	if err := final.Validate(cue.Concrete(true)); err != nil {
		return &FieldError{Field: name, Reason: fmt.Sprintf("schema validation failed: %v", err)}
	}
	return nil
}

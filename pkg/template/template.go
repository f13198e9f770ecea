// Package template loads named instance templates from a source (local
// directory or S3 bucket), copies their resource trees into the coordination
// store, and drives subsystem initializers from the copied scripts.
//
// A template is a directory holding a descriptor (template.yaml) and a tree
// of resource files. The descriptor declares, in order, which subsystems to
// initialize and which scripts each one consumes. Initialization reads script
// bytes back from the coordination store, not from the source: the copied
// tree is the canonical input, so every process in the fleet initializes from
// identical bytes regardless of which source it was configured with.
package template

import (
	"errors"
	"fmt"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

// Sentinel errors returned by the template manager and sources.
var (
	// ErrTemplateNotFound is returned when no template with the requested
	// id exists. Fatal to a bootstrap attempt; operator-fixable.
	ErrTemplateNotFound = errors.New("unable to locate template")

	// ErrUnknownSubsystem is returned by Initialize when a descriptor names
	// a subsystem with no registered loader.
	ErrUnknownSubsystem = errors.New("no loader registered for subsystem")

	// ErrInvalidDescriptor is returned for descriptors that fail validation.
	ErrInvalidDescriptor = errors.New("invalid template descriptor")
)

// Descriptor file names probed at the template root, in order.
var descriptorNames = []string{"template.yaml", "template.yml", "template.json"}

var validate = validator.New()

// Initializer names one subsystem and the scripts it loads, in order.
type Initializer struct {
	Subsystem string   `yaml:"subsystem" json:"subsystem" validate:"required"`
	Scripts   []string `yaml:"scripts" json:"scripts" validate:"required,min=1,dive,required"`
}

// Descriptor is the parsed template.yaml at a template root.
//
// The declared initializer order is the execution order: subsystems
// initialize one after another, and within a subsystem scripts load one
// after another.
type Descriptor struct {
	ID           string        `yaml:"id" json:"id" validate:"required"`
	Name         string        `yaml:"name" json:"name" validate:"required"`
	Initializers []Initializer `yaml:"initializers" json:"initializers" validate:"dive"`
}

// ParseDescriptor decodes and validates a descriptor document. JSON
// descriptors parse through the same path since JSON is a YAML subset.
func ParseDescriptor(data []byte) (*Descriptor, error) {
	var d Descriptor
	if err := yaml.Unmarshal(data, &d); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidDescriptor, err)
	}
	if err := validate.Struct(&d); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidDescriptor, err)
	}
	return &d, nil
}

// Template is a loaded, validated template: its descriptor plus the sorted
// relative paths of every file in its tree (descriptor included).
type Template struct {
	ID           string
	Name         string
	Initializers []Initializer
	Files        []string
}

// ScriptCount returns the total number of initializer scripts.
func (t *Template) ScriptCount() int {
	n := 0
	for _, init := range t.Initializers {
		n += len(init.Scripts)
	}
	return n
}

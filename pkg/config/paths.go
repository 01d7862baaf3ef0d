package config

import (
	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

// Paths accepts either a single path or a list of paths.
type Paths []string

func (p *Paths) UnmarshalYAML(node *yaml.Node) error {
	switch node.Kind {
	case yaml.ScalarNode:
		var path string
		if err := node.Decode(&path); err != nil {
			return err
		}
		*p = Paths{path}

	case yaml.SequenceNode:
		var paths []string
		if err := node.Decode(&paths); err != nil {
			return err
		}
		*p = paths

	default:
		return errors.Errorf("line %d: expecting a path or a list of paths", node.Line)
	}

	return nil
}

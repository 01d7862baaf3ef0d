package config

import (
	"os"
	"strings"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"

	"github.com/c9s/qrhawkes/pkg/hawkes"
	"github.com/c9s/qrhawkes/pkg/simulation"
)

const defaultInitialCoeff = 0.1

type DataConfig struct {
	Inputs Paths `json:"inputs" yaml:"inputs"`

	// NumNodes is required when a file does not contain a jump of every node.
	NumNodes int `json:"numNodes,omitempty" yaml:"numNodes,omitempty"`

	// EndTime of every realization. Zero uses the last timestamp.
	EndTime float64 `json:"endTime,omitempty" yaml:"endTime,omitempty"`
}

type StoreConfig struct {
	Driver string `json:"driver" yaml:"driver"`
	Path   string `json:"path,omitempty" yaml:"path,omitempty"`
	Name   string `json:"name" yaml:"name"`
}

type FitConfig struct {
	Model hawkes.ModelConfig `json:"model" yaml:"model"`
	Data  DataConfig         `json:"data" yaml:"data"`
	Fit   hawkes.FitSettings `json:"fit" yaml:"fit"`

	// InitialCoeff is the starting value of every coefficient.
	InitialCoeff float64 `json:"initialCoeff,omitempty" yaml:"initialCoeff,omitempty"`

	Penalization *hawkes.PenalizationParams `json:"penalization,omitempty" yaml:"penalization,omitempty"`
	Store        *StoreConfig               `json:"store,omitempty" yaml:"store,omitempty"`
}

type SimulationConfig struct {
	Simulator simulation.Simulator `json:"process" yaml:"process"`

	Realizations int    `json:"realizations" yaml:"realizations"`
	Seed         int64  `json:"seed" yaml:"seed"`
	Output       string `json:"output,omitempty" yaml:"output,omitempty"`
}

func readYAML(path string, v interface{}) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}

	if err := yaml.Unmarshal(data, v); err != nil {
		return errors.Wrapf(err, "parse %s", path)
	}
	return nil
}

func LoadFitConfig(path string) (*FitConfig, error) {
	var c FitConfig
	if err := readYAML(path, &c); err != nil {
		return nil, err
	}

	if err := c.SetDefaultValues(); err != nil {
		return nil, err
	}

	return &c, nil
}

// SetDefaultValues normalizes the model kind and fills unspecified fields.
func (c *FitConfig) SetDefaultValues() error {
	switch kind := strings.ToLower(c.Model.Kind); kind {
	case "", "default", "leastsq":
		c.Model.Kind = hawkes.KindLeastSquares
	case "loglik":
		c.Model.Kind = hawkes.KindLogLikelihood
	case hawkes.KindLeastSquares, hawkes.KindLogLikelihood, hawkes.KindModulated:
		c.Model.Kind = kind
	default:
		return errors.Wrapf(hawkes.ErrUnknownKind, "%q", c.Model.Kind)
	}

	if len(c.Model.Decays) == 0 {
		return errors.New("model.decays is required")
	}

	if err := c.Model.Decays.Validate(); err != nil {
		return err
	}

	if c.Model.NumBaselines > 0 && c.Model.Kind != hawkes.KindLeastSquares {
		return errors.Errorf("periodic baselines are only supported by %s", hawkes.KindLeastSquares)
	}

	c.Model.Options.SetDefaultValues()
	c.Fit.SetDefaultValues()

	if c.InitialCoeff <= 0 {
		c.InitialCoeff = defaultInitialCoeff
	}

	if c.Penalization != nil {
		c.Penalization.SetDefaultValues()
	}

	if c.Store != nil {
		if c.Store.Driver == "" {
			c.Store.Driver = "memory"
		}

		if c.Store.Name == "" {
			c.Store.Name = c.Model.Kind
		}
	}

	return nil
}

func LoadSimulationConfig(path string) (*SimulationConfig, error) {
	var c SimulationConfig
	if err := readYAML(path, &c); err != nil {
		return nil, err
	}

	if c.Realizations <= 0 {
		c.Realizations = 1
	}

	if c.Simulator.Scenario == "" {
		c.Simulator.Scenario = simulation.ScenarioRandom
	}

	if c.Simulator.MaxState == 0 {
		c.Simulator.MaxState = 1
	}

	if err := c.Simulator.Validate(); err != nil {
		return nil, err
	}

	return &c, nil
}

package cmd

import (
	"strconv"
	"strings"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"

	"github.com/c9s/qrhawkes/pkg/events"
	"github.com/c9s/qrhawkes/pkg/hawkes"
)

func loadRealizations(paths []string, numNodes int, endTime float64) ([]*events.Realization, error) {
	var rs []*events.Realization
	for _, path := range paths {
		r, err := events.ReadFile(path, numNodes, endTime)
		if err != nil {
			return nil, errors.Wrapf(err, "read %s", path)
		}

		log.Infof("loaded %s: %d nodes, %d jumps, end time %v", path, r.NumNodes(), r.NumJumps(), r.EndTime)
		rs = append(rs, r)
	}

	return rs, nil
}

// loadModel builds a model from config and computes its weights on the
// realizations read from data.
func loadModel(config hawkes.ModelConfig, paths []string, numNodes int, endTime float64) (hawkes.Model, error) {
	model, err := hawkes.NewModel(config)
	if err != nil {
		return nil, err
	}

	rs, err := loadRealizations(paths, numNodes, endTime)
	if err != nil {
		return nil, err
	}

	if err := model.SetDataList(rs); err != nil {
		return nil, err
	}

	if err := model.ComputeWeights(); err != nil {
		return nil, err
	}

	return model, nil
}

// parseCoeffs reads a comma separated coefficient list. A single value is
// repeated n times.
func parseCoeffs(s string, n int) ([]float64, error) {
	fields := strings.Split(s, ",")
	coeffs := make([]float64, 0, len(fields))
	for _, f := range fields {
		v, err := strconv.ParseFloat(strings.TrimSpace(f), 64)
		if err != nil {
			return nil, errors.Wrapf(err, "invalid coefficient %q", f)
		}
		coeffs = append(coeffs, v)
	}

	if len(coeffs) == 1 && n > 1 {
		for len(coeffs) < n {
			coeffs = append(coeffs, coeffs[0])
		}
	}

	if len(coeffs) != n {
		return nil, errors.Wrapf(hawkes.ErrCoeffsLength, "got %d coefficients, the model has %d", len(coeffs), n)
	}

	return coeffs, nil
}

package events

import (
	"github.com/pkg/errors"
	"github.com/valyala/fastjson"
)

// ParseJSON reads a realization encoded as
//
//	{"timestamps": [[0.31, 0.93], [0.12]], "endTime": 5.65, "states": [0, 1, 0, 1]}
//
// numNodes > 0 pads the realization with empty nodes, endTime > 0 overrides
// the encoded end time.
func ParseJSON(payload []byte, numNodes int, endTime float64) (*Realization, error) {
	var parser fastjson.Parser
	val, err := parser.ParseBytes(payload)
	if err != nil {
		return nil, errors.Wrap(err, "failed to parse realization")
	}

	if !val.Exists("timestamps") {
		return nil, errors.Wrap(ErrNoNodes, "timestamps are missing")
	}

	nodes, err := val.Get("timestamps").Array()
	if err != nil {
		return nil, errors.Wrap(err, "timestamps")
	}

	if numNodes <= 0 {
		numNodes = len(nodes)
	}

	if len(nodes) > numNodes {
		return nil, errors.Errorf("got %d nodes, expected at most %d", len(nodes), numNodes)
	}

	timestamps := make([][]float64, numNodes)
	for i := range timestamps {
		timestamps[i] = []float64{}
	}

	for i, node := range nodes {
		values, err := node.Array()
		if err != nil {
			return nil, errors.Wrapf(err, "timestamps of node %d", i)
		}

		for k, v := range values {
			t, err := v.Float64()
			if err != nil {
				return nil, errors.Wrapf(err, "node %d jump %d", i, k)
			}
			timestamps[i] = append(timestamps[i], t)
		}
	}

	if endTime <= 0 && val.Exists("endTime") {
		if endTime, err = val.Get("endTime").Float64(); err != nil {
			return nil, errors.Wrap(err, "endTime")
		}
	}

	r, err := New(timestamps, endTime)
	if err != nil {
		return nil, err
	}

	if !val.Exists("states") {
		return r, nil
	}

	values, err := val.Get("states").Array()
	if err != nil {
		return nil, errors.Wrap(err, "states")
	}

	states := make([]int, len(values))
	for k, v := range values {
		if states[k], err = v.Int(); err != nil {
			return nil, errors.Wrapf(err, "state %d", k)
		}
	}

	return r.WithStates(states)
}

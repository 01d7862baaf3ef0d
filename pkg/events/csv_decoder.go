package events

import (
	"strconv"
	"strings"

	"github.com/pkg/errors"
)

var (
	ErrNotEnoughColumns   = errors.New("not enough columns")
	ErrInvalidNodeFormat  = errors.New("cannot parse node index")
	ErrInvalidTimeFormat  = errors.New("cannot parse timestamp")
	ErrInvalidStateFormat = errors.New("cannot parse state")
)

// CsvJump is one decoded row. Node is NoOwner for the row carrying the
// initial state of the observation.
type CsvJump struct {
	Node     int
	Time     float64
	State    int
	HasState bool
}

// CSVJumpDecoder is an extension point for CSVJumpReader to support custom
// file formats. It returns nil for rows that should be skipped.
type CSVJumpDecoder func(row []string, index int) (*CsvJump, error)

// DefaultCSVJumpDecoder decodes "node,time[,state]" rows. A non-numeric first
// row is taken as a header and skipped.
func DefaultCSVJumpDecoder(row []string, index int) (*CsvJump, error) {
	if len(row) < 2 {
		return nil, ErrNotEnoughColumns
	}

	node, err := strconv.Atoi(strings.TrimSpace(row[0]))
	if err != nil {
		if index == 0 {
			return nil, nil
		}
		return nil, ErrInvalidNodeFormat
	}

	if node < NoOwner {
		return nil, ErrInvalidNodeFormat
	}

	t, err := strconv.ParseFloat(strings.TrimSpace(row[1]), 64)
	if err != nil {
		return nil, ErrInvalidTimeFormat
	}

	jump := &CsvJump{Node: node, Time: t}
	if len(row) > 2 && strings.TrimSpace(row[2]) != "" {
		s, err := strconv.Atoi(strings.TrimSpace(row[2]))
		if err != nil || s < 0 {
			return nil, ErrInvalidStateFormat
		}
		jump.State = s
		jump.HasState = true
	}

	return jump, nil
}

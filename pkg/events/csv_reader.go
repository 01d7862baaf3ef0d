package events

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/pkg/errors"
)

// CSVJumpReader assembles a Realization from CSV rows.
type CSVJumpReader struct {
	csv     *csv.Reader
	decoder CSVJumpDecoder
}

func NewCSVJumpReader(csv *csv.Reader) *CSVJumpReader {
	csv.FieldsPerRecord = -1
	return &CSVJumpReader{
		csv:     csv,
		decoder: DefaultCSVJumpDecoder,
	}
}

func NewCSVJumpReaderWithDecoder(csv *csv.Reader, decoder CSVJumpDecoder) *CSVJumpReader {
	csv.FieldsPerRecord = -1
	return &CSVJumpReader{
		csv:     csv,
		decoder: decoder,
	}
}

// Read reads the next row.
func (r *CSVJumpReader) Read(i int) (*CsvJump, error) {
	rec, err := r.csv.Read()
	if err != nil {
		return nil, err
	}

	return r.decoder(rec, i)
}

// ReadAll reads every row and builds the realization. numNodes <= 0 infers
// the node count from the largest index seen, endTime <= 0 uses the last
// jump time. Rows may come in any order. When any row carries a state, every
// jump row must carry one and the state path follows merged time order.
func (r *CSVJumpReader) ReadAll(numNodes int, endTime float64) (*Realization, error) {
	var (
		jumps        []CsvJump
		initialState int
		withStates   bool
		maxNode      = -1
	)

	for i := 0; ; i++ {
		jump, err := r.Read(i)
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, errors.Wrapf(err, "row %d", i)
		}
		if jump == nil {
			continue
		}

		if jump.Node == NoOwner {
			initialState = jump.State
			withStates = withStates || jump.HasState
			continue
		}

		withStates = withStates || jump.HasState
		if jump.Node > maxNode {
			maxNode = jump.Node
		}
		jumps = append(jumps, *jump)
	}

	if numNodes <= 0 {
		numNodes = maxNode + 1
	}

	if numNodes <= 0 {
		return nil, ErrNoNodes
	}

	if maxNode >= numNodes {
		return nil, errors.Errorf("node index %d out of range for %d nodes", maxNode, numNodes)
	}

	sort.SliceStable(jumps, func(a, b int) bool {
		if jumps[a].Time != jumps[b].Time {
			return jumps[a].Time < jumps[b].Time
		}
		return jumps[a].Node < jumps[b].Node
	})

	timestamps := make([][]float64, numNodes)
	for i := range timestamps {
		timestamps[i] = []float64{}
	}

	var states []int
	if withStates {
		states = make([]int, 0, len(jumps)+1)
		states = append(states, initialState)
	}

	for _, jump := range jumps {
		timestamps[jump.Node] = append(timestamps[jump.Node], jump.Time)
		if withStates {
			if !jump.HasState {
				return nil, errors.Wrapf(ErrState, "jump of node %d at %v has no state", jump.Node, jump.Time)
			}
			states = append(states, jump.State)
		}
	}

	realization, err := New(timestamps, endTime)
	if err != nil {
		return nil, err
	}

	if withStates {
		return realization.WithStates(states)
	}

	return realization, nil
}

// WriteCSV writes r in the format DefaultCSVJumpDecoder reads back.
func WriteCSV(w io.Writer, r *Realization) error {
	tl, err := NewTimeline(r, maxStateOf(r))
	if err != nil {
		return err
	}

	writer := csv.NewWriter(w)
	header := []string{"node", "time"}
	if r.States != nil {
		header = append(header, "state")
	}

	if err := writer.Write(header); err != nil {
		return err
	}

	if r.States != nil {
		if err := writer.Write([]string{strconv.Itoa(NoOwner), "0", strconv.Itoa(r.States[0])}); err != nil {
			return err
		}
	}

	for k := 1; k < tl.Len(); k++ {
		row := []string{
			strconv.Itoa(tl.Owners[k]),
			strconv.FormatFloat(tl.Times[k], 'g', -1, 64),
		}
		if r.States != nil {
			row = append(row, fmt.Sprintf("%d", tl.States[k]))
		}
		if err := writer.Write(row); err != nil {
			return err
		}
	}

	writer.Flush()
	return writer.Error()
}

func maxStateOf(r *Realization) int {
	m := 1
	for _, s := range r.States {
		if s+1 > m {
			m = s + 1
		}
	}
	return m
}

// ReadFile reads a realization from a CSV file, or from a JSON file when
// the path ends with .json.
func ReadFile(path string, numNodes int, endTime float64) (*Realization, error) {
	if strings.EqualFold(filepath.Ext(path), ".json") {
		payload, err := os.ReadFile(path)
		if err != nil {
			return nil, err
		}

		r, err := ParseJSON(payload, numNodes, endTime)
		if err != nil {
			return nil, errors.Wrapf(err, "read %s", path)
		}
		return r, nil
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	r, err := NewCSVJumpReader(csv.NewReader(f)).ReadAll(numNodes, endTime)
	if err != nil {
		return nil, errors.Wrapf(err, "read %s", path)
	}
	return r, nil
}

// WriteFile writes r to a CSV file.
func WriteFile(path string, r *Realization) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}

	if err := WriteCSV(f, r); err != nil {
		_ = f.Close()
		return err
	}

	return f.Close()
}

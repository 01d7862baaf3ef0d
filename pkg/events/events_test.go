package events

import (
	"bytes"
	"encoding/csv"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNew(t *testing.T) {
	tests := []struct {
		name       string
		timestamps [][]float64
		endTime    float64
		err        error
	}{
		{name: "ok", timestamps: [][]float64{{0.1, 0.5}, {0.2}}, endTime: 1},
		{name: "end time equals last jump", timestamps: [][]float64{{0.1, 1}}, endTime: 1},
		{name: "empty node", timestamps: [][]float64{{}, {0.3}}, endTime: 1},
		{name: "no nodes", timestamps: [][]float64{}, endTime: 1, err: ErrNoNodes},
		{name: "unsorted", timestamps: [][]float64{{0.5, 0.1}}, endTime: 1, err: ErrUnsorted},
		{name: "duplicate time in node", timestamps: [][]float64{{0.1, 0.5, 0.5}, {0.5}}, endTime: 1, err: ErrUnsorted},
		{name: "negative", timestamps: [][]float64{{-0.5}}, endTime: 1, err: ErrUnsorted},
		{name: "end time too early", timestamps: [][]float64{{0.5, 2}}, endTime: 1, err: ErrEndTime},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r, err := New(tt.timestamps, tt.endTime)
			if tt.err != nil {
				assert.ErrorIs(t, err, tt.err)
				return
			}
			if assert.NoError(t, err) {
				assert.Equal(t, len(tt.timestamps), r.NumNodes())
			}
		})
	}
}

func TestNew_DefaultEndTime(t *testing.T) {
	r, err := New([][]float64{{0.1, 0.7}, {1.3}}, 0)
	if assert.NoError(t, err) {
		assert.Equal(t, 1.3, r.EndTime)
		assert.Equal(t, 3, r.NumJumps())
		assert.Equal(t, []int{2, 1}, r.JumpsPerNode())
	}
}

func TestRealization_WithStates(t *testing.T) {
	r, err := New([][]float64{{0.1, 0.7}, {1.3}}, 2)
	if !assert.NoError(t, err) {
		return
	}

	_, err = r.WithStates([]int{0, 1})
	assert.ErrorIs(t, err, ErrState)

	_, err = r.WithStates([]int{0, 1, -1, 2})
	assert.ErrorIs(t, err, ErrState)

	withStates, err := r.WithStates([]int{0, 1, 2, 1})
	if assert.NoError(t, err) {
		assert.NoError(t, withStates.ValidateStates(3))
		assert.ErrorIs(t, withStates.ValidateStates(2), ErrState)
		assert.Nil(t, r.States)
	}
}

func TestNewTimeline(t *testing.T) {
	r, err := New([][]float64{{0.5, 1.5}, {1.0, 1.5}}, 2)
	if !assert.NoError(t, err) {
		return
	}

	r, err = r.WithStates([]int{1, 0, 2, 1, 0})
	if !assert.NoError(t, err) {
		return
	}

	tl, err := NewTimeline(r, 3)
	if !assert.NoError(t, err) {
		return
	}

	assert.Equal(t, []float64{0, 0.5, 1.0, 1.5, 1.5}, tl.Times)
	assert.Equal(t, []int{NoOwner, 0, 1, 0, 1}, tl.Owners)
	assert.Equal(t, []int{1, 0, 2, 1, 0}, tl.States)
	assert.Equal(t, 5, tl.Len())
	assert.Equal(t, 4, tl.NumJumps())
	assert.Equal(t, 1.0, tl.IntervalEnd(1))
	assert.Equal(t, 2.0, tl.IntervalEnd(4))
	assert.Equal(t, [][]int{{1, 3}, {2, 4}}, tl.JumpIndices())

	_, err = NewTimeline(r, 2)
	assert.ErrorIs(t, err, ErrState)

	_, err = NewTimeline(r, 0)
	assert.ErrorIs(t, err, ErrState)
}

func TestNewPeriodicTimeline(t *testing.T) {
	r, err := New([][]float64{{0.5, 1.5}, {1.0}}, 2.5)
	if !assert.NoError(t, err) {
		return
	}

	tl, err := NewPeriodicTimeline(r, 2, 2)
	if !assert.NoError(t, err) {
		return
	}

	assert.Equal(t, []float64{0, 0.5, 1.0, 1.0, 1.5, 2.0}, tl.Times)
	assert.Equal(t, []int{NoOwner, 0, NoOwner, 1, 0, NoOwner}, tl.Owners)
	assert.Equal(t, []int{0, 0, 1, 1, 1, 0}, tl.States)
	assert.Equal(t, 2, tl.MaxState)
	assert.Equal(t, 3, tl.NumJumps())

	_, err = NewPeriodicTimeline(r, 0, 2)
	assert.Error(t, err)

	_, err = NewPeriodicTimeline(r, 2, 0)
	assert.Error(t, err)
}

func TestDefaultCSVJumpDecoder(t *testing.T) {
	tests := []struct {
		name  string
		give  string
		index int
		want  *CsvJump
		err   error
	}{
		{name: "jump", give: "1,0.25", index: 1, want: &CsvJump{Node: 1, Time: 0.25}},
		{name: "jump with state", give: "0,1.5,2", index: 3, want: &CsvJump{Node: 0, Time: 1.5, State: 2, HasState: true}},
		{name: "initial state", give: "-1,0,3", index: 0, want: &CsvJump{Node: NoOwner, State: 3, HasState: true}},
		{name: "header", give: "node,time", index: 0, want: nil},
		{name: "not enough columns", give: "1", index: 1, err: ErrNotEnoughColumns},
		{name: "invalid node", give: "a,1", index: 2, err: ErrInvalidNodeFormat},
		{name: "invalid time", give: "1,b", index: 2, err: ErrInvalidTimeFormat},
		{name: "invalid state", give: "1,2,x", index: 2, err: ErrInvalidStateFormat},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := DefaultCSVJumpDecoder(strings.Split(tt.give, ","), tt.index)
			if tt.err != nil {
				assert.ErrorIs(t, err, tt.err)
				return
			}
			assert.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestCSVJumpReader_ReadAll(t *testing.T) {
	data := "node,time,state\n-1,0,1\n1,0.8,0\n0,0.2,2\n0,1.1,1\n"
	r, err := NewCSVJumpReader(csv.NewReader(strings.NewReader(data))).ReadAll(0, 2)
	if !assert.NoError(t, err) {
		return
	}

	assert.Equal(t, [][]float64{{0.2, 1.1}, {0.8}}, r.Timestamps)
	assert.Equal(t, []int{1, 2, 0, 1}, r.States)
	assert.Equal(t, 2.0, r.EndTime)

	var buf bytes.Buffer
	if assert.NoError(t, WriteCSV(&buf, r)) {
		back, err := NewCSVJumpReader(csv.NewReader(&buf)).ReadAll(2, 2)
		if assert.NoError(t, err) {
			assert.Equal(t, r, back)
		}
	}
}

func TestCSVJumpReader_ReadAllWithoutStates(t *testing.T) {
	data := "0,0.5\n2,0.1\n"
	r, err := NewCSVJumpReader(csv.NewReader(strings.NewReader(data))).ReadAll(0, 0)
	if assert.NoError(t, err) {
		assert.Equal(t, [][]float64{{0.5}, {}, {0.1}}, r.Timestamps)
		assert.Nil(t, r.States)
		assert.Equal(t, 0.5, r.EndTime)
	}

	_, err = NewCSVJumpReader(csv.NewReader(strings.NewReader(data))).ReadAll(2, 0)
	assert.Error(t, err)

	_, err = NewCSVJumpReader(csv.NewReader(strings.NewReader("0,0.5,1\n1,0.7\n"))).ReadAll(0, 0)
	assert.ErrorIs(t, err, ErrState)
}

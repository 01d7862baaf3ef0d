package simulation

import (
	"fmt"
	"io"

	"github.com/wcharczuk/go-chart/v2"

	"github.com/c9s/qrhawkes/pkg/events"
)

// countingSeries returns the step function t -> number of timestamps <= t on [0, endTime].
func countingSeries(name string, ts []float64, endTime float64) chart.ContinuousSeries {
	x := make([]float64, 0, 2*len(ts)+2)
	y := make([]float64, 0, 2*len(ts)+2)

	x, y = append(x, 0), append(y, 0)
	for k, t := range ts {
		x, y = append(x, t), append(y, float64(k))
		x, y = append(x, t), append(y, float64(k+1))
	}
	x, y = append(x, endTime), append(y, float64(len(ts)))

	return chart.ContinuousSeries{Name: name, XValues: x, YValues: y}
}

func stateSeries(tl *events.Timeline) chart.ContinuousSeries {
	s := chart.ContinuousSeries{
		Name:  "state",
		YAxis: chart.YAxisSecondary,
		Style: chart.Style{StrokeDashArray: []float64{4, 2}},
	}

	for k := 0; k < tl.Len(); k++ {
		if k > 0 {
			s.XValues = append(s.XValues, tl.Times[k])
			s.YValues = append(s.YValues, float64(tl.States[k-1]))
		}
		s.XValues = append(s.XValues, tl.Times[k])
		s.YValues = append(s.YValues, float64(tl.States[k]))
	}

	s.XValues = append(s.XValues, tl.EndTime)
	s.YValues = append(s.YValues, float64(tl.States[tl.Len()-1]))
	return s
}

func valueFormatter(v interface{}) string {
	if vf, isFloat := v.(float64); isFloat {
		return fmt.Sprintf("%.2f", vf)
	}
	return ""
}

// DrawCountingProcess plots the counting process of every node. A state
// path that visits more than one state is drawn on the secondary axis.
func DrawCountingProcess(title string, r *events.Realization, maxState int) (*chart.Chart, error) {
	if r.NumJumps() == 0 {
		return nil, fmt.Errorf("realization %q has no jumps to draw", title)
	}

	c := &chart.Chart{
		Title: title,
		XAxis: chart.XAxis{Name: "time", ValueFormatter: valueFormatter},
		YAxis: chart.YAxis{Name: "jumps", ValueFormatter: chart.IntValueFormatter},
	}

	for i, ts := range r.Timestamps {
		c.Series = append(c.Series, countingSeries(fmt.Sprintf("node %d", i), ts, r.EndTime))
	}

	if r.States != nil {
		tl, err := events.NewTimeline(r, maxState)
		if err != nil {
			return nil, err
		}

		visited := map[int]struct{}{}
		for _, q := range tl.States {
			visited[q] = struct{}{}
		}

		if len(visited) > 1 {
			c.YAxisSecondary = chart.YAxis{Name: "state", ValueFormatter: chart.IntValueFormatter}
			c.Series = append(c.Series, stateSeries(tl))
		}
	}

	c.Elements = []chart.Renderable{chart.LegendLeft(c)}
	return c, nil
}

// RenderPNG draws the counting process of r as a PNG image.
func RenderPNG(w io.Writer, title string, r *events.Realization, maxState int) error {
	c, err := DrawCountingProcess(title, r, maxState)
	if err != nil {
		return err
	}

	return c.Render(chart.PNG, w)
}

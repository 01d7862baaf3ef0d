package hawkes

import "fmt"

// Layout maps model parameters to positions in the flat coefficient vector.
//
// The vector starts with the baselines of every node (Baselines values per
// node), followed by the adjacency alpha[i][j][u] in row-major order, then,
// for modulated models only, Modulators values per node.
type Layout struct {
	Nodes      int `msgpack:"nodes"`
	Decays     int `msgpack:"decays"`
	Baselines  int `msgpack:"baselines"`
	Modulators int `msgpack:"modulators"`
}

func (l Layout) NumCoeffs() int {
	return l.Nodes*l.Baselines + l.Nodes*l.Nodes*l.Decays + l.Nodes*l.Modulators
}

func (l Layout) Baseline(i, q int) int {
	return i*l.Baselines + q
}

func (l Layout) Alpha(i, j, u int) int {
	return l.Nodes*l.Baselines + i*l.Nodes*l.Decays + j*l.Decays + u
}

func (l Layout) Modulator(i, q int) int {
	return l.Nodes*l.Baselines + l.Nodes*l.Nodes*l.Decays + i*l.Modulators + q
}

// AlphaRow returns the slice bounds of the adjacency row of node i.
func (l Layout) AlphaRow(i int) (from, to int) {
	from = l.Alpha(i, 0, 0)
	return from, from + l.Nodes*l.Decays
}

// BlockWidth is the width of the per-node Hessian block: the node's
// baselines followed by its adjacency row.
func (l Layout) BlockWidth() int {
	return l.Baselines + l.Nodes*l.Decays
}

// BlockCoeff maps column c of node i's block to its coefficient index.
func (l Layout) BlockCoeff(i, c int) int {
	if c < l.Baselines {
		return l.Baseline(i, c)
	}
	return l.Alpha(i, 0, 0) + c - l.Baselines
}

// HessianSize is the length of the row-per-coefficient Hessian output.
func (l Layout) HessianSize() int {
	return (l.Nodes*l.Baselines + l.Nodes*l.Nodes*l.Decays) * l.BlockWidth()
}

// Label names coefficient c, e.g. "mu[1]", "mu[1,2]", "alpha[0,1,2]" or
// "f[1,0]".
func (l Layout) Label(c int) string {
	baselines := l.Nodes * l.Baselines
	alphas := l.Nodes * l.Nodes * l.Decays

	switch {
	case c < 0 || c >= l.NumCoeffs():
		return fmt.Sprintf("#%d", c)

	case c < baselines:
		if l.Baselines == 1 {
			return fmt.Sprintf("mu[%d]", c)
		}
		return fmt.Sprintf("mu[%d,%d]", c/l.Baselines, c%l.Baselines)

	case c < baselines+alphas:
		c -= baselines
		i, rest := c/(l.Nodes*l.Decays), c%(l.Nodes*l.Decays)
		return fmt.Sprintf("alpha[%d,%d,%d]", i, rest/l.Decays, rest%l.Decays)
	}

	c -= baselines + alphas
	return fmt.Sprintf("f[%d,%d]", c/l.Modulators, c%l.Modulators)
}

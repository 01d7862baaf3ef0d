package style

import (
	"bytes"
	"testing"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/stretchr/testify/assert"
)

func TestNewTable_Plain(t *testing.T) {
	var buf bytes.Buffer
	tw := NewTable(&buf, "evaluation", true, "key", "value")
	tw.AppendRow(table.Row{"loss", 2.94})
	tw.Render()

	out := buf.String()
	assert.Contains(t, out, "evaluation")
	assert.Contains(t, out, "loss")
	assert.Contains(t, out, "2.94")
	assert.NotContains(t, out, "\x1b[")
}

func TestStatus(t *testing.T) {
	assert.Contains(t, Status(true, "converged"), "converged")
	assert.Contains(t, Status(false, "failure"), "failure")
}

package style

import (
	"github.com/fatih/color"
)

var (
	okColor   = color.New(color.FgHiGreen, color.Bold)
	failColor = color.New(color.FgHiRed, color.Bold)
)

// Status renders a success or failure label.
func Status(ok bool, label string) string {
	if ok {
		return okColor.Sprint(label)
	}
	return failColor.Sprint(label)
}

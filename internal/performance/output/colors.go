package output

import (
	"github.com/fatih/color"
)

// ColorScheme defines the colors used for different elements of the report.
type ColorScheme struct {
	Title    *color.Color
	Rule     *color.Color
	Label    *color.Color
	Value    *color.Color
	Stage    *color.Color
	Latency  *color.Color
	Good     *color.Color
	Warn     *color.Color
	Bad      *color.Color
	Dim      *color.Color
	Progress *color.Color
}

// DefaultColorScheme returns the default color scheme. Colors are always
// emitted; callers decide whether the writer supports them.
func DefaultColorScheme() *ColorScheme {
	scheme := &ColorScheme{
		Title:    color.New(color.Bold),
		Rule:     color.New(color.FgCyan),
		Label:    color.New(color.Bold),
		Value:    color.New(color.FgCyan),
		Stage:    color.New(color.FgMagenta),
		Latency:  color.New(color.FgBlue),
		Good:     color.New(color.FgGreen, color.Bold),
		Warn:     color.New(color.FgYellow, color.Bold),
		Bad:      color.New(color.FgRed, color.Bold),
		Dim:      color.New(color.Faint),
		Progress: color.New(color.FgGreen),
	}
	for _, c := range scheme.all() {
		c.EnableColor()
	}
	return scheme
}

// NoColorScheme returns a color scheme with all colors disabled
func NoColorScheme() *ColorScheme {
	scheme := DefaultColorScheme()
	for _, c := range scheme.all() {
		c.DisableColor()
	}
	return scheme
}

func (s *ColorScheme) all() []*color.Color {
	return []*color.Color{
		s.Title, s.Rule, s.Label, s.Value, s.Stage, s.Latency,
		s.Good, s.Warn, s.Bad, s.Dim, s.Progress,
	}
}

// forRate picks good/warn/bad for a failure rate.
func (s *ColorScheme) forRate(rate float64) *color.Color {
	switch {
	case rate > 0.05:
		return s.Bad
	case rate > 0.01:
		return s.Warn
	default:
		return s.Good
	}
}

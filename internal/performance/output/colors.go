package output

import (
	"github.com/fatih/color"
)

// Palette defines the colors used by the console output.
type Palette struct {
	Title     *color.Color
	Rule      *color.Color
	Label     *color.Color
	Value     *color.Color
	Phase     *color.Color
	Latency   *color.Color
	Dim       *color.Color
	Good      *color.Color
	Warn      *color.Color
	Bad       *color.Color
	Highlight *color.Color
}

// DefaultPalette returns the default palette. Colors are forced on
// regardless of the global color setting.
func DefaultPalette() *Palette {
	p := &Palette{
		Title:     color.New(color.Bold),
		Rule:      color.New(color.FgCyan),
		Label:     color.New(color.Bold),
		Value:     color.New(color.FgCyan),
		Phase:     color.New(color.FgMagenta),
		Latency:   color.New(color.FgBlue),
		Dim:       color.New(color.Faint),
		Good:      color.New(color.FgGreen),
		Warn:      color.New(color.FgYellow),
		Bad:       color.New(color.FgRed),
		Highlight: color.New(color.FgMagenta, color.Bold),
	}
	for _, c := range p.all() {
		c.EnableColor()
	}
	return p
}

// NoColorPalette returns a palette with all colors disabled.
func NoColorPalette() *Palette {
	p := DefaultPalette()
	for _, c := range p.all() {
		c.DisableColor()
	}
	return p
}

func (p *Palette) all() []*color.Color {
	return []*color.Color{
		p.Title, p.Rule, p.Label, p.Value, p.Phase, p.Latency,
		p.Dim, p.Good, p.Warn, p.Bad, p.Highlight,
	}
}

// rate picks the color of an error rate.
func (p *Palette) rate(errorRate float64) *color.Color {
	switch {
	case errorRate > 0.05:
		return p.Bad
	case errorRate > 0.01:
		return p.Warn
	default:
		return p.Good
	}
}

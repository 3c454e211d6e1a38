// Package view renders token sequences with the span that just changed
// highlighted.
package view

import (
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/fwessels/ppstep"
	"github.com/muesli/termenv"
)

// Color modes accepted by New.
const (
	ColorAuto   = "auto"
	ColorAlways = "always"
	ColorNever  = "never"
)

type Renderer struct {
	kinds    map[ppstep.Kind]lipgloss.Style
	fallback lipgloss.Style
	notice   lipgloss.Style
	errStyle lipgloss.Style
}

// New returns a renderer for w. color is one of ColorAuto, ColorAlways or
// ColorNever; auto follows what w supports.
func New(w io.Writer, color string) (*Renderer, error) {
	lr := lipgloss.NewRenderer(w)
	switch color {
	case "", ColorAuto:
	case ColorAlways:
		lr.SetColorProfile(termenv.ANSI)
	case ColorNever:
		lr.SetColorProfile(termenv.Ascii)
	default:
		return nil, fmt.Errorf("unknown color mode %q", color)
	}

	return &Renderer{
		kinds: map[ppstep.Kind]lipgloss.Style{
			ppstep.KindLexed:     lr.NewStyle().Bold(true),
			ppstep.KindCall:      lr.NewStyle().Foreground(lipgloss.Color("4")).Bold(true),
			ppstep.KindExpanded:  lr.NewStyle().Foreground(lipgloss.Color("2")).Bold(true),
			ppstep.KindRescanned: lr.NewStyle().Foreground(lipgloss.Color("6")).Bold(true),
		},
		fallback: lr.NewStyle().Foreground(lipgloss.Color("3")).Underline(true),
		notice:   lr.NewStyle().Faint(true),
		errStyle: lr.NewStyle().Foreground(lipgloss.Color("1")).Bold(true),
	}, nil
}

// Render joins full with single spaces and styles the tokens in
// [start,end) for kind. An out-of-range span is clamped.
func (r *Renderer) Render(full ppstep.Sequence, start, end int, kind ppstep.Kind) string {
	return r.render(full, start, end, r.kinds[kind])
}

// Entry renders a history entry. Entries whose span could not be located
// are styled as warnings.
func (r *Renderer) Entry(e ppstep.Entry) string {
	if e.Fallback {
		return r.render(e.Tokens, e.Start, e.End, r.fallback)
	}
	return r.Render(e.Tokens, e.Start, e.End, e.Kind)
}

func (r *Renderer) render(full ppstep.Sequence, start, end int, style lipgloss.Style) string {
	start = clamp(start, 0, len(full))
	end = clamp(end, start, len(full))

	parts := make([]string, 0, 3)
	if start > 0 {
		parts = append(parts, full[:start].String())
	}
	if end > start {
		parts = append(parts, style.Render(full[start:end].String()))
	}
	if end < len(full) {
		parts = append(parts, full[end:].String())
	}
	return strings.Join(parts, " ")
}

// Notice styles an informational line.
func (r *Renderer) Notice(s string) string { return r.notice.Render(s) }

// Error styles an error line.
func (r *Renderer) Error(s string) string { return r.errStyle.Render(s) }

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

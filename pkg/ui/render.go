package ui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/glamour"
	"github.com/charmbracelet/lipgloss"
	"github.com/go-go-golems/plotchat/pkg/chart"
	"github.com/go-go-golems/plotchat/pkg/conversation"
	"github.com/rs/zerolog/log"
)

const (
	defaultWidth   = 80
	sparklineWidth = 40
)

// Renderer turns rendered stream entries into terminal text, one visual
// treatment per entry as decided by conversation.Classify.
type Renderer struct {
	width int
	style string
	md    *glamour.TermRenderer
	// markdown output keyed by content, reset on resize
	cache map[string]string
}

type RendererOption func(*Renderer)

// WithStyle picks a glamour style (auto, dark, light, notty, ...).
func WithStyle(style string) RendererOption {
	return func(r *Renderer) {
		r.style = style
	}
}

func WithWidth(width int) RendererOption {
	return func(r *Renderer) {
		if width > 0 {
			r.width = width
		}
	}
}

func NewRenderer(options ...RendererOption) *Renderer {
	r := &Renderer{
		width: defaultWidth,
		style: "auto",
	}
	for _, o := range options {
		o(r)
	}
	r.reset()
	return r
}

// NewPlainRenderer leaves markdown unstyled, for pipes and line mode.
func NewPlainRenderer() *Renderer {
	return NewRenderer(WithStyle("notty"))
}

func (r *Renderer) Width() int {
	return r.width
}

func (r *Renderer) SetWidth(width int) {
	if width <= 0 || width == r.width {
		return
	}
	r.width = width
	r.reset()
}

func (r *Renderer) reset() {
	r.cache = map[string]string{}

	styleOpt := glamour.WithAutoStyle()
	if r.style != "" && r.style != "auto" {
		styleOpt = glamour.WithStandardStyle(r.style)
	}
	md, err := glamour.NewTermRenderer(styleOpt, glamour.WithWordWrap(r.contentWidth()))
	if err != nil {
		log.Debug().Err(err).Msg("markdown renderer unavailable, rendering plain text")
		md = nil
	}
	r.md = md
}

func (r *Renderer) contentWidth() int {
	w := r.width - 4
	if w < 20 {
		return 20
	}
	return w
}

// RenderStream renders all entries separated by blank lines. spinnerView is
// shown in place of the loading indicator.
func (r *Renderer) RenderStream(entries []conversation.Entry, spinnerView string) string {
	parts := make([]string, 0, len(entries))
	for _, e := range entries {
		parts = append(parts, r.RenderEntry(e, spinnerView))
	}
	return strings.Join(parts, "\n\n")
}

func (r *Renderer) RenderEntry(e conversation.Entry, spinnerView string) string {
	switch conversation.Classify(e) {
	case conversation.TreatmentUserBubble:
		return r.renderUser(e.Content)
	case conversation.TreatmentChartPlot:
		return r.renderChart(e.Content)
	case conversation.TreatmentLoadingIndicator:
		return loadingStyle.Render(strings.TrimSpace(spinnerView + " thinking…"))
	default:
		return r.renderAssistant(e.Content)
	}
}

func (r *Renderer) renderUser(content string) string {
	bubble := userBubbleStyle.MaxWidth(r.contentWidth()).Render(content)
	return lipgloss.PlaceHorizontal(r.width, lipgloss.Right, bubble)
}

func (r *Renderer) renderAssistant(content string) string {
	if out, ok := r.cache[content]; ok {
		return out
	}
	out := content
	if r.md != nil {
		rendered, err := r.md.Render(content)
		if err != nil {
			log.Debug().Err(err).Msg("could not render markdown")
		} else {
			out = strings.Trim(rendered, "\n")
		}
	}
	out = assistantStyle.Render(out)
	r.cache[content] = out
	return out
}

func (r *Renderer) renderChart(content string) string {
	p, err := chart.Parse(content)
	if err != nil {
		log.Debug().Err(err).Msg("malformed chart payload")
		return chartErrorStyle.Render(fmt.Sprintf("chart unavailable: %v", err))
	}

	s := p.Summary()
	title := s.Title
	if title == "" {
		title = "Chart"
	}
	lines := []string{chartTitleStyle.Render(title)}
	if s.XTitle != "" || s.YTitle != "" {
		lines = append(lines, fmt.Sprintf("x: %s  y: %s", orDash(s.XTitle), orDash(s.YTitle)))
	}
	for _, t := range s.Traces {
		lines = append(lines, "• "+t.String())
	}
	if series := p.Series(); len(series) > 0 {
		lines = append(lines, chart.Sparkline(series, sparklineWidth))
	}
	return chartCardStyle.Render(strings.Join(lines, "\n"))
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}

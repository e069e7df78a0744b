package ui

import (
	"strings"
	"testing"

	"github.com/go-go-golems/plotchat/pkg/conversation"
	"github.com/stretchr/testify/assert"
)

func newTestRenderer() *Renderer {
	return NewRenderer(WithStyle("notty"), WithWidth(60))
}

func TestRenderEntryPerTreatment(t *testing.T) {
	r := newTestRenderer()

	user := r.RenderEntry(conversation.NewUserEntry("plot revenue"), "")
	assert.Contains(t, user, "plot revenue")

	assistant := r.RenderEntry(conversation.NewAssistantEntry("Here is **your** chart."), "")
	assert.Contains(t, assistant, "your")

	loading := r.RenderEntry(conversation.NewPlaceholderEntry(), "*")
	assert.Contains(t, loading, "* thinking")

	c := r.RenderEntry(conversation.NewChartEntry(`{
		"data": [{"type": "bar", "name": "revenue", "x": ["jan", "feb", "mar"], "y": [1, 5, 3]}],
		"layout": {"title": {"text": "Revenue"}, "xaxis": {"title": "month"}}
	}`), "")
	assert.Contains(t, c, "Revenue")
	assert.Contains(t, c, "x: month  y: -")
	assert.Contains(t, c, `bar "revenue" (3 points)`)
	assert.Contains(t, c, "█")
}

func TestRenderMalformedChartShowsErrorCard(t *testing.T) {
	r := newTestRenderer()
	out := r.RenderEntry(conversation.NewChartEntry(`{"data": "nope"}`), "")
	assert.Contains(t, out, "chart unavailable")
}

func TestRenderChartWithExtremeRange(t *testing.T) {
	r := newTestRenderer()
	var out string
	assert.NotPanics(t, func() {
		out = r.RenderEntry(conversation.NewChartEntry(`{"data":[{"type":"scatter","y":[-1e308,0,1e308]}],"layout":{"title":"big"}}`), "")
	})
	assert.Contains(t, out, "big")
}

func TestRenderUnknownRoleFallsBackToAssistant(t *testing.T) {
	r := newTestRenderer()
	e := conversation.Entry{Role: "system", Content: "be brief"}
	assert.Equal(t, r.RenderEntry(conversation.NewAssistantEntry("be brief"), ""), r.RenderEntry(e, ""))
}

func TestRenderStreamKeepsOrder(t *testing.T) {
	r := newTestRenderer()
	out := r.RenderStream([]conversation.Entry{
		conversation.NewUserEntry("first question"),
		conversation.NewAssistantEntry("first answer"),
		conversation.NewUserEntry("second question"),
	}, "")

	i1 := strings.Index(out, "first question")
	i2 := strings.Index(out, "first answer")
	i3 := strings.Index(out, "second question")
	assert.True(t, i1 >= 0 && i1 < i2 && i2 < i3, out)
}

func TestSetWidthResetsCache(t *testing.T) {
	r := newTestRenderer()
	_ = r.RenderEntry(conversation.NewAssistantEntry("cached"), "")
	assert.Len(t, r.cache, 1)

	r.SetWidth(100)
	assert.Equal(t, 100, r.Width())
	assert.Empty(t, r.cache)
}

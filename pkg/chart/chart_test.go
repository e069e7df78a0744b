package chart

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const funPayload = `{
  "data": [{"type": "scatter", "name": "fun", "x": [0, 1, 2, 3], "y": [1, 2, 4, 7]}],
  "layout": {"title": {"text": "Fun over time"}, "xaxis": {"title": "day"}, "yaxis": {"title": {"text": "fun"}}}
}`

func TestParseValidPayload(t *testing.T) {
	p, err := Parse(funPayload)
	require.NoError(t, err)

	s := p.Summary()
	assert.Equal(t, "Fun over time", s.Title)
	assert.Equal(t, "day", s.XTitle)
	assert.Equal(t, "fun", s.YTitle)
	require.Len(t, s.Traces, 1)
	assert.Equal(t, Trace{Type: "scatter", Name: "fun", Points: 4}, s.Traces[0])
	assert.Equal(t, []float64{1, 2, 4, 7}, p.Series())
}

func TestParseKeepsRawPayload(t *testing.T) {
	p, err := Parse(`{"data":[{"x":[1]}],"layout":{"title":"t","custom":{"k":1}}}`)
	require.NoError(t, err)
	assert.JSONEq(t, `[{"x":[1]}]`, string(p.Data))
	assert.JSONEq(t, `{"title":"t","custom":{"k":1}}`, string(p.Layout))
	assert.Equal(t, "t", p.Summary().Title)
	// trace type defaults to scatter
	assert.Equal(t, "scatter", p.Summary().Traces[0].Type)
}

func TestParseMalformedPayloads(t *testing.T) {
	cases := map[string]string{
		"empty":          "",
		"not json":       "a chart of fun",
		"array":          `[1, 2, 3]`,
		"missing data":   `{"layout": {}}`,
		"missing layout": `{"data": []}`,
		"null data":      `{"data": null, "layout": {}}`,
		"data object":    `{"data": {"x": [1]}, "layout": {}}`,
		"layout array":   `{"data": [], "layout": []}`,
	}
	for name, content := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := Parse(content)
			assert.Error(t, err)
		})
	}
}

func TestSeriesSkipsNonNumeric(t *testing.T) {
	p, err := Parse(`{"data":[{"y":["a","b"]},{"type":"pie","values":[3,1]}],"layout":{}}`)
	require.NoError(t, err)
	assert.Equal(t, []float64{3, 1}, p.Series())
	assert.Equal(t, "pie", p.Summary().Traces[1].Type)
	assert.Equal(t, 2, p.Summary().Traces[1].Points)
}

func TestSparkline(t *testing.T) {
	assert.Equal(t, "", Sparkline(nil, 10))
	assert.Equal(t, "▁▁▁", Sparkline([]float64{5, 5, 5}, 10))
	assert.Equal(t, "▁█", Sparkline([]float64{0, 1}, 10))
	assert.Equal(t, 4, len([]rune(Sparkline([]float64{1, 2, 3, 4, 5, 6, 7, 8}, 4))))
}

func TestSparklineExtremeRange(t *testing.T) {
	var out string
	require.NotPanics(t, func() {
		out = Sparkline([]float64{-1e308, 0, 1e308}, 10)
	})
	assert.Equal(t, "▁▄█", out)

	require.NotPanics(t, func() {
		out = Sparkline([]float64{math.Inf(-1), 1, 2, math.NaN(), math.Inf(1)}, 10)
	})
	assert.Equal(t, 5, len([]rune(out)))
}

func TestTraceString(t *testing.T) {
	assert.Equal(t, `bar "unnamed" (3 points)`, Trace{Type: "bar", Points: 3}.String())
}

// Package chart reads the plot payloads carried by chart entries. Payloads
// follow the plotly figure shape: a "data" array of traces and a "layout"
// object. They are kept verbatim for pass-through and decoded loosely for
// terminal summaries.
package chart

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/pkg/errors"
)

type Payload struct {
	Data   json.RawMessage `json:"data"`
	Layout json.RawMessage `json:"layout"`

	traces []map[string]interface{}
	layout map[string]interface{}
}

// Parse validates content as a chart payload. Both data and layout must be
// present; data must be an array and layout an object.
func Parse(content string) (*Payload, error) {
	if strings.TrimSpace(content) == "" {
		return nil, errors.New("empty chart payload")
	}

	p := &Payload{}
	if err := json.Unmarshal([]byte(content), p); err != nil {
		return nil, errors.Wrap(err, "chart payload is not a JSON object")
	}
	if isMissing(p.Data) {
		return nil, errors.New("chart payload has no data field")
	}
	if isMissing(p.Layout) {
		return nil, errors.New("chart payload has no layout field")
	}
	if err := json.Unmarshal(p.Data, &p.traces); err != nil {
		return nil, errors.Wrap(err, "chart data must be an array of traces")
	}
	if err := json.Unmarshal(p.Layout, &p.layout); err != nil {
		return nil, errors.Wrap(err, "chart layout must be an object")
	}
	return p, nil
}

func isMissing(raw json.RawMessage) bool {
	return len(raw) == 0 || bytes.Equal(bytes.TrimSpace(raw), []byte("null"))
}

type Trace struct {
	Type   string
	Name   string
	Points int
}

type Summary struct {
	Title  string
	XTitle string
	YTitle string
	Traces []Trace
}

func (p *Payload) Summary() Summary {
	s := Summary{
		Title:  titleText(p.layout["title"]),
		XTitle: axisTitle(p.layout, "xaxis"),
		YTitle: axisTitle(p.layout, "yaxis"),
	}
	for _, t := range p.traces {
		tr := Trace{Type: "scatter", Points: pointCount(t)}
		if typ, ok := t["type"].(string); ok && typ != "" {
			tr.Type = typ
		}
		if name, ok := t["name"].(string); ok {
			tr.Name = name
		}
		s.Traces = append(s.Traces, tr)
	}
	return s
}

func (t Trace) String() string {
	name := t.Name
	if name == "" {
		name = "unnamed"
	}
	return fmt.Sprintf("%s %q (%d points)", t.Type, name, t.Points)
}

// Series returns the numeric y values of the first trace that has any.
func (p *Payload) Series() []float64 {
	for _, t := range p.traces {
		for _, key := range []string{"y", "values"} {
			if vs := numbers(t[key]); len(vs) > 0 {
				return vs
			}
		}
	}
	return nil
}

// titleText accepts both title forms plotly allows: a plain string or an
// object with a text field.
func titleText(v interface{}) string {
	switch t := v.(type) {
	case string:
		return t
	case map[string]interface{}:
		if s, ok := t["text"].(string); ok {
			return s
		}
	}
	return ""
}

func axisTitle(layout map[string]interface{}, axis string) string {
	a, ok := layout[axis].(map[string]interface{})
	if !ok {
		return ""
	}
	return titleText(a["title"])
}

func pointCount(trace map[string]interface{}) int {
	n := 0
	for _, key := range []string{"x", "y", "values", "z"} {
		if vs, ok := trace[key].([]interface{}); ok && len(vs) > n {
			n = len(vs)
		}
	}
	return n
}

func numbers(v interface{}) []float64 {
	vs, ok := v.([]interface{})
	if !ok {
		return nil
	}
	ret := make([]float64, 0, len(vs))
	for _, x := range vs {
		f, ok := x.(float64)
		if !ok {
			return nil
		}
		ret = append(ret, f)
	}
	return ret
}

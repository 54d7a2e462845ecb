package monitoring

import (
	"bytes"
	"fmt"
	"time"

	"github.com/wcharczuk/go-chart/v2"
	"github.com/wcharczuk/go-chart/v2/drawing"
)

// RenderBucketChart renders buckets as a PNG sparkline: one stroked time
// series, no legend, sized for embedding in a dashboard card rather than a
// full report page.
func RenderBucketChart(title string, buckets []Bucket) ([]byte, error) {
	if len(buckets) < 2 {
		return nil, fmt.Errorf("need at least 2 buckets to render %q, got %d", title, len(buckets))
	}

	xValues := make([]time.Time, len(buckets))
	yValues := make([]float64, len(buckets))
	for i, b := range buckets {
		t, err := parseBucketLabel(b.Label)
		if err != nil {
			return nil, err
		}
		xValues[i] = t
		yValues[i] = float64(b.Count)
	}

	span := xValues[len(xValues)-1].Sub(xValues[0])
	xFormat := "02 Jan"
	if span < 48*time.Hour {
		xFormat = "15:04"
	}

	series := chart.TimeSeries{
		Name: title,
		Style: chart.Style{
			StrokeColor: drawing.ColorFromHex("2563eb"),
			StrokeWidth: 2.0,
		},
		XValues: xValues,
		YValues: yValues,
	}

	graph := chart.Chart{
		Title:  title,
		Width:  600,
		Height: 200,
		Background: chart.Style{
			Padding: chart.Box{Top: 30, Left: 10, Right: 20, Bottom: 10},
		},
		XAxis: chart.XAxis{
			TickPosition: chart.TickPositionBetweenTicks,
			ValueFormatter: func(v interface{}) string {
				if f, ok := v.(float64); ok {
					return chart.TimeFromFloat64(f).Format(xFormat)
				}
				return ""
			},
		},
		YAxis: chart.YAxis{
			ValueFormatter: func(v interface{}) string {
				if f, ok := v.(float64); ok {
					return fmt.Sprintf("%.0f", f)
				}
				return ""
			},
		},
		Series: []chart.Series{series},
	}

	var buf bytes.Buffer
	if err := graph.Render(chart.PNG, &buf); err != nil {
		return nil, fmt.Errorf("chart render failed: %w", err)
	}
	return buf.Bytes(), nil
}

func parseBucketLabel(label string) (time.Time, error) {
	if t, err := time.Parse("2006-01-02T15", label); err == nil {
		return t, nil
	}
	return time.Parse("2006-01-02", label)
}

package tui

import (
	"fmt"
	"time"

	tslc "github.com/NimbleMarkets/ntcharts/linechart/timeserieslinechart"
	"github.com/charmbracelet/lipgloss"

	"github.com/jask/despacho/internal/api"
)

const dailyChartHeight = 10

var chartStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#FAB387"))

// renderDailyChart plots finalized orders per day of the current month.
func renderDailyChart(points []api.DailyPoint, width int) string {
	if len(points) == 0 {
		return "(sem dados no mês)"
	}
	if width < 20 {
		width = 20
	}
	var (
		dates  []time.Time
		values []float64
		maxVal float64
	)
	for _, p := range points {
		d, err := time.Parse(time.DateOnly, p.Date)
		if err != nil {
			continue
		}
		dates = append(dates, d)
		values = append(values, float64(p.Quantity))
		maxVal = max(maxVal, float64(p.Quantity))
	}
	if len(dates) == 0 {
		return "(sem dados no mês)"
	}
	if maxVal == 0 {
		maxVal = 1
	}
	start, end := dates[0], dates[len(dates)-1]
	if !end.After(start) {
		end = start.AddDate(0, 0, 1)
	}

	chart := tslc.New(width, dailyChartHeight)
	chart.SetStyle(chartStyle)
	chart.SetTimeRange(start, end)
	chart.SetViewTimeRange(start, end)
	chart.SetYRange(0, maxVal)
	chart.SetViewYRange(0, maxVal)
	chart.Model.XLabelFormatter = func(_ int, v float64) string {
		return time.Unix(int64(v), 0).UTC().Format("02")
	}
	chart.Model.YLabelFormatter = func(_ int, v float64) string {
		return fmt.Sprintf("%.0f", v)
	}
	for i, d := range dates {
		chart.Push(tslc.TimePoint{Time: d, Value: values[i]})
	}
	chart.DrawBraille()
	return chart.View()
}

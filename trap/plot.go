package trap

import (
	"fmt"
	"net/http"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/opts"
)

// plot renders the armed profile as an HTML line chart, both ramp
// directions on a shared time axis
func (h HTTPSweep) plot(w http.ResponseWriter, r *http.Request) {
	p := h.ctl.Profile()
	if p == nil {
		http.Error(w, "no profile armed, preview first", http.StatusNotFound)
		return
	}
	x := make([]string, len(p.Times))
	closing := make([]opts.LineData, len(p.Closing))
	opening := make([]opts.LineData, len(p.Opening))
	for i, t := range p.Times {
		x[i] = fmt.Sprintf("%g", t)
		closing[i] = opts.LineData{Value: p.Closing[i]}
		opening[i] = opts.LineData{Value: p.Opening[i]}
	}
	line := charts.NewLine()
	line.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{PageTitle: "Trap voltage profile", Width: "900px", Height: "500px"}),
		charts.WithTitleOpts(opts.Title{
			Title:    "Trap voltage profile",
			Subtitle: fmt.Sprintf("%d steps, %gs dwell", p.StepCount(), p.Dwell),
		}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true)}),
		charts.WithXAxisOpts(opts.XAxis{Name: "time (s)"}),
		charts.WithYAxisOpts(opts.YAxis{Name: "voltage (V)"}),
		charts.WithLegendOpts(opts.Legend{Show: opts.Bool(true)}),
	)
	line.SetXAxis(x).
		AddSeries("closing", closing).
		AddSeries("opening", opening).
		SetSeriesOptions(charts.WithLineChartOpts(opts.LineChart{Smooth: opts.Bool(false)}))
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := line.Render(w); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}

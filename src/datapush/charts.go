package datapush

import (
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strconv"

	"FlightDelayInsight/src/processor"
	"FlightDelayInsight/src/utils"

	"github.com/wcharczuk/go-chart/v2"
	"github.com/wcharczuk/go-chart/v2/drawing"
)

// 图表文件名
const (
	ChartHourlyDelay  = "hourly_delay.png"
	ChartWeatherShare = "hourly_weather_share.png"
	ChartLateAirShare = "hourly_late_aircraft_share.png"
	ChartAirlines     = "airlines_mean_delay.png"
	ChartAirports     = "airports_mean_delay.png"
	ChartHubVsNonHub  = "hub_vs_nonhub.png"
	ChartDelayScatter = "delay_by_hour_scatter.png"
)

const (
	maxScatterPoints = 5000
	chartWidth       = 1024
	chartHeight      = 480
	maxBarWidth      = 40
)

// renderer 生成一张图, ok=false 表示数据不足, 跳过
type renderer func(path string) (ok bool, err error)

// RenderCharts 绘制报表图表, 返回生成的文件
// 少于2个数据点的图不绘制
func RenderCharts(dir string, r processor.Report) ([]string, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("创建输出目录失败: %w", err)
	}

	charts := []struct {
		name string
		fn   renderer
	}{
		{ChartHourlyDelay, func(p string) (bool, error) { return hourlyDelayChart(p, r) }},
		{ChartWeatherShare, func(p string) (bool, error) {
			return hourlyShareChart(p, r.Hourly, utils.ColHasWeather, "Weather delay share by departure hour")
		}},
		{ChartLateAirShare, func(p string) (bool, error) {
			return hourlyShareChart(p, r.Hourly, utils.ColHasLateAir, "Late aircraft delay share by departure hour")
		}},
		{ChartAirlines, func(p string) (bool, error) {
			return groupBarChart(p, "Airlines by mean arrival delay", r.Airlines, nil)
		}},
		{ChartAirports, func(p string) (bool, error) {
			return groupBarChart(p, "Origin airports by mean arrival delay", r.Airports, nil)
		}},
		{ChartHubVsNonHub, func(p string) (bool, error) {
			return groupBarChart(p, "Hub vs non-hub mean arrival delay", r.HubVsNonHub, hubLabel)
		}},
		{ChartDelayScatter, func(p string) (bool, error) { return scatterChart(p, r) }},
	}

	var written []string
	for _, c := range charts {
		path := filepath.Join(dir, c.name)
		ok, err := c.fn(path)
		if err != nil {
			return written, fmt.Errorf("绘制 %s 失败: %w", c.name, err)
		}
		if ok {
			written = append(written, path)
		}
	}
	return written, nil
}

func hourlyDelayChart(path string, r processor.Report) (bool, error) {
	xs, means := hourlyValues(r.Hourly, func(g processor.GroupSummary) float64 { return g.MeanDelay })
	_, medians := hourlyValues(r.Hourly, func(g processor.GroupSummary) float64 { return g.MedianDelay })
	if len(xs) < 2 {
		return false, nil
	}

	series := []chart.Series{
		lineSeries("mean", xs, means, chart.ColorBlue),
		lineSeries("median", xs, medians, chart.ColorAlternateGreen),
	}
	if trend, ok := trendSeries(r.Trend, xs[0], xs[len(xs)-1]); ok {
		series = append(series, trend)
	}
	return true, renderChart(path, "Arrival delay by departure hour", "departure hour", "minutes", series)
}

func hourlyShareChart(path string, groups []processor.GroupSummary, col, title string) (bool, error) {
	if len(groups) == 0 {
		return false, nil
	}
	if _, ok := groups[0].Shares[col]; !ok {
		return false, nil
	}
	xs, shares := hourlyValues(groups, func(g processor.GroupSummary) float64 { return g.Shares[col] * 100 })
	if len(xs) < 2 {
		return false, nil
	}
	series := []chart.Series{lineSeries(processor.ShareName(col), xs, shares, chart.ColorOrange)}
	return true, renderChart(path, title, "departure hour", "% of flights", series)
}

// hourlyValues 小时 -> 值, 跳过NaN
func hourlyValues(groups []processor.GroupSummary, value func(processor.GroupSummary) float64) (xs, ys []float64) {
	for _, g := range groups {
		h, err := strconv.Atoi(g.Key)
		v := value(g)
		if err != nil || !utils.IsFinite(v) {
			continue
		}
		xs = append(xs, float64(h))
		ys = append(ys, v)
	}
	return xs, ys
}

func lineSeries(name string, xs, ys []float64, c drawing.Color) chart.ContinuousSeries {
	return chart.ContinuousSeries{
		Name:    name,
		XValues: xs,
		YValues: ys,
		Style:   chart.Style{StrokeColor: c, StrokeWidth: 2},
	}
}

// trendSeries 回归直线的两个端点
func trendSeries(res processor.Result[processor.Trend], x0, x1 float64) (chart.ContinuousSeries, bool) {
	t, ok := res.Value()
	if !ok || x0 == x1 {
		return chart.ContinuousSeries{}, false
	}
	s := lineSeries("OLS trend", []float64{x0, x1},
		[]float64{t.Intercept + t.Slope*x0, t.Intercept + t.Slope*x1}, chart.ColorRed)
	s.Style.StrokeDashArray = []float64{6, 4}
	return s, true
}

func scatterChart(path string, r processor.Report) (bool, error) {
	df := r.Flights
	if df.Err != nil || !utils.HasColumn(df, utils.ColDepHour) || !utils.HasColumn(df, utils.ColArrDelay) {
		return false, nil
	}
	hours := df.Col(utils.ColDepHour).Float()
	delays := df.Col(utils.ColArrDelay).Float()

	// 点太多时等间隔抽样
	step := 1
	if len(hours) > maxScatterPoints {
		step = int(math.Ceil(float64(len(hours)) / maxScatterPoints))
	}
	var xs, ys []float64
	lo, hi := math.Inf(1), math.Inf(-1)
	for i := 0; i < len(hours); i += step {
		if !utils.IsFinite(hours[i]) || !utils.IsFinite(delays[i]) {
			continue
		}
		xs = append(xs, hours[i])
		ys = append(ys, delays[i])
		lo, hi = math.Min(lo, hours[i]), math.Max(hi, hours[i])
	}
	if len(xs) < 2 || lo == hi {
		return false, nil
	}

	series := []chart.Series{chart.ContinuousSeries{
		Name:    "flights",
		XValues: xs,
		YValues: ys,
		Style: chart.Style{
			StrokeWidth: chart.Disabled,
			DotWidth:    2,
			DotColor:    chart.ColorAlternateGray,
		},
	}}
	if trend, ok := trendSeries(r.Trend, lo, hi); ok {
		series = append(series, trend)
	}
	return true, renderChart(path, "Arrival delay vs departure hour", "departure hour", "minutes", series)
}

func renderChart(path, title, xName, yName string, series []chart.Series) error {
	ymin, ymax := math.Inf(1), math.Inf(-1)
	for _, s := range series {
		if cs, ok := s.(chart.ContinuousSeries); ok {
			for _, v := range cs.YValues {
				ymin, ymax = math.Min(ymin, v), math.Max(ymax, v)
			}
		}
	}

	graph := chart.Chart{
		Title:  title,
		Width:  chartWidth,
		Height: chartHeight,
		Background: chart.Style{
			Padding: chart.Box{Top: 40, Left: 20, Right: 20, Bottom: 20},
		},
		XAxis:  chart.XAxis{Name: xName},
		YAxis:  chart.YAxis{Name: yName, Range: paddedRange(ymin, ymax)},
		Series: series,
	}
	graph.Elements = []chart.Renderable{chart.Legend(&graph)}
	return writePNG(path, func(f *os.File) error { return graph.Render(chart.PNG, f) })
}

// paddedRange 所有值相同时上下各留1个单位, 避免零宽坐标轴
func paddedRange(lo, hi float64) *chart.ContinuousRange {
	if !utils.IsFinite(lo) || !utils.IsFinite(hi) {
		return &chart.ContinuousRange{Min: 0, Max: 1}
	}
	if lo == hi {
		return &chart.ContinuousRange{Min: lo - 1, Max: hi + 1}
	}
	pad := (hi - lo) * 0.05
	return &chart.ContinuousRange{Min: lo - pad, Max: hi + pad}
}

func hubLabel(key string) string {
	if key == "true" {
		return "hub"
	}
	return "non-hub"
}

func groupBarChart(path, title string, groups []processor.GroupSummary, label func(string) string) (bool, error) {
	var bars []chart.Value
	lo, hi := 0.0, 0.0
	for _, g := range groups {
		if !utils.IsFinite(g.MeanDelay) {
			continue
		}
		name := g.Key
		if label != nil {
			name = label(g.Key)
		}
		bars = append(bars, chart.Value{Label: name, Value: g.MeanDelay})
		lo, hi = math.Min(lo, g.MeanDelay), math.Max(hi, g.MeanDelay)
	}
	if len(bars) < 2 {
		return false, nil
	}
	if lo == hi {
		hi = lo + 1
	}
	barWidth := chartWidth / (2 * len(bars))
	if barWidth > maxBarWidth {
		barWidth = maxBarWidth
	}

	graph := chart.BarChart{
		Title:  title,
		Width:  chartWidth,
		Height: chartHeight,
		Background: chart.Style{
			Padding: chart.Box{Top: 40},
		},
		BarWidth:     barWidth,
		YAxis:        chart.YAxis{Name: "minutes", Range: &chart.ContinuousRange{Min: lo, Max: hi}},
		UseBaseValue: lo < 0,
		BaseValue:    0,
		Bars:         bars,
	}
	return true, writePNG(path, func(f *os.File) error { return graph.Render(chart.PNG, f) })
}

func writePNG(path string, render func(f *os.File) error) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("创建图片文件失败: %w", err)
	}
	if err := render(f); err != nil {
		f.Close()
		os.Remove(path)
		return err
	}
	return f.Close()
}

package datapush

import (
	"fmt"
	"math"

	"FlightDelayInsight/src/processor"

	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

// 统计不适用时的展示文字, 与0值区分
const notApplicable = "n/a"

var printer = message.NewPrinter(language.English)

// FormatCount 千分位整数, 如 1,234,567
func FormatCount(n int) string {
	return printer.Sprintf("%d", n)
}

// FormatFloat NaN/Inf 显示为 n/a
func FormatFloat(v float64, decimals int) string {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return notApplicable
	}
	return printer.Sprintf(fmt.Sprintf("%%.%df", decimals), v)
}

// FormatPct 0-1 的占比转为百分比
func FormatPct(share float64) string {
	if math.IsNaN(share) || math.IsInf(share, 0) {
		return notApplicable
	}
	return fmt.Sprintf("%.1f%%", share*100)
}

// FormatOptional 缺省值显示为 n/a
func FormatOptional(o processor.Optional, decimals int) string {
	if !o.Valid {
		return notApplicable
	}
	return FormatFloat(o.Value, decimals)
}

// FormatResult 不适用时显示 "n/a (原因)"
func FormatResult[T any](r processor.Result[T], format func(T) string) string {
	v, ok := r.Value()
	if !ok {
		return fmt.Sprintf("%s (%s)", notApplicable, r.Reason())
	}
	return format(v)
}

// FormatTrend 斜率/截距/R²
func FormatTrend(t processor.Trend) string {
	return fmt.Sprintf("slope %s min/h, intercept %s min, R² %s, n=%s",
		FormatFloat(t.Slope, 3), FormatFloat(t.Intercept, 2), FormatOptional(t.R2, 3), FormatCount(t.N))
}

// FormatAnova F/η²/p
func FormatAnova(a processor.Anova) string {
	p := notApplicable
	if a.PValue.Valid {
		p = formatPValue(a.PValue.Value)
	}
	return fmt.Sprintf("F(%d, %d) = %s, η² = %s, p = %s",
		a.DfBetween, a.DfWithin, FormatFloat(a.F, 2), FormatFloat(a.EtaSq, 4), p)
}

func formatPValue(p float64) string {
	if p < 1e-4 {
		return "< 0.0001"
	}
	return fmt.Sprintf("%.4f", p)
}

// SummaryRows 概览指标的 (指标, 值) 行, 控制台和Excel共用
func SummaryRows(r processor.Report, description string) [][]string {
	corr := func(v float64) string { return FormatFloat(v, 3) }
	threshold := notApplicable
	if r.Hub.Airports > 0 {
		threshold = FormatFloat(r.Hub.Threshold, 1)
	}
	return [][]string{
		{"Filters", description},
		{"Rows after filters", FormatCount(r.RowsFiltered)},
		{"Rows after winsorization", FormatCount(r.RowsWinsorized)},
		{"Winsorization p", fmt.Sprintf("%g%%", processor.ClampWinsorPct(r.Params.WinsorPct))},
		{"Missing ARRIVAL_DELAY", fmt.Sprintf("%.2f%%", r.Before.MissingArrPct)},
		{"Missing DEPARTURE_DELAY", fmt.Sprintf("%.2f%%", r.Before.MissingDepPct)},
		{"Airlines", FormatCount(r.KPIs.Carriers)},
		{"Origin airports", FormatCount(r.KPIs.Origins)},
		{"Late share (>15 min)", optionalPct(r.KPIs.LateShare)},
		{"Mean arrival delay (min)", FormatOptional(r.KPIs.MeanArrDelay, 2)},
		{"Mean departure delay (min)", FormatOptional(r.KPIs.MeanDepDelay, 2)},
		{"Hub quantile", fmt.Sprintf("%g", r.Hub.Quantile)},
		{"Hub threshold (flights)", threshold},
		{"Hub airports", FormatCount(len(r.Hub.Hubs))},
		{"Trend", FormatResult(r.Trend, FormatTrend)},
		{"Controlled trend", FormatResult(r.Controlled, FormatTrend)},
		{"ANOVA by hour", FormatResult(r.Anova, FormatAnova)},
		{"Corr(dep, arr)", FormatResult(r.DepArrCorr, corr)},
		{"Corr(hour, arr)", FormatResult(r.HourArrCorr, corr)},
	}
}

func optionalPct(o processor.Optional) string {
	if !o.Valid {
		return notApplicable
	}
	return FormatPct(o.Value)
}

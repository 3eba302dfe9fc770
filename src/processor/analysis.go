package processor

import (
	"fmt"

	"FlightDelayInsight/src/config"
	"FlightDelayInsight/src/utils"

	"github.com/go-gota/gota/dataframe"
)

// Params 一次分析的参数
type Params struct {
	Selection          Selection
	WinsorPct          float64
	HubQuantile        float64
	MinFlightsAirline  int
	MinFlightsAirport  int
	MinFlightsRoute    int
	MinFlightsHubTable int
	TopN               int
	GroupBy            GroupKey
}

// DefaultParams 默认参数
func DefaultParams() Params {
	return Params{
		HubQuantile:        0.8,
		MinFlightsAirline:  500,
		MinFlightsAirport:  800,
		MinFlightsRoute:    100,
		MinFlightsHubTable: 500,
		TopN:               15,
		GroupBy:            GroupHour,
	}
}

// ParamsFromConfig 由配置生成分析参数
func ParamsFromConfig(cfg *config.Config) (Params, error) {
	key, err := ParseGroupKey(cfg.Analysis.GroupBy)
	if err != nil {
		return Params{}, err
	}
	return Params{
		WinsorPct:          cfg.Analysis.WinsorPct,
		HubQuantile:        cfg.Analysis.HubQuantile,
		MinFlightsAirline:  cfg.Analysis.MinFlightsAirline,
		MinFlightsAirport:  cfg.Analysis.MinFlightsAirport,
		MinFlightsRoute:    cfg.Analysis.MinFlightsRoute,
		MinFlightsHubTable: cfg.Analysis.MinFlightsHubTable,
		TopN:               cfg.Analysis.TopN,
		GroupBy:            key,
	}, nil
}

// Report 分析结果
type Report struct {
	Params Params
	Caps   Capabilities

	// Flights 过滤、截尾并标记枢纽后的子集
	Flights        dataframe.DataFrame
	RowsFiltered   int
	RowsWinsorized int
	Before         KPIs // 截尾前, 用于缺失率
	KPIs           KPIs
	Hub            HubInfo

	Hourly      []GroupSummary
	Grouped     []GroupSummary // 按 Params.GroupBy
	Airlines    []GroupSummary // 已按最少航班数筛选并排序
	Airports    []GroupSummary
	HubAirports []GroupSummary
	Routes      []GroupSummary
	HubVsNonHub []GroupSummary

	Trend       Result[Trend]
	Controlled  Result[Trend]
	Anova       Result[Anova]
	DepArrCorr  Result[float64]
	HourArrCorr Result[float64]

	Warnings []string
}

// Analyze 过滤 -> 截尾 -> 枢纽标记 -> 分组汇总 -> 统计
// 各项统计相互独立, 任意一项不适用不影响其它项
func Analyze(df dataframe.DataFrame, p Params, caps Capabilities) Report {
	r := Report{Params: p, Caps: caps}

	// 1. 过滤
	filtered := ApplyFilters(df, p.Selection)
	r.RowsFiltered = filtered.Nrow()
	r.Before = Overview(filtered)

	// 2. 截尾
	filtered = Winsorize(filtered, p.WinsorPct)
	r.RowsWinsorized = filtered.Nrow()

	// 3. 枢纽标记, 每次子集变化都重新计算
	q := p.HubQuantile
	if q <= 0 || q > 1 {
		q = 0.8
	}
	filtered, r.Hub = HubFlag(filtered, q)
	r.Flights = filtered
	r.KPIs = Overview(filtered)

	// 4. 分组汇总
	summarize := func(key GroupKey) []GroupSummary {
		groups, err := Summarize(filtered, key)
		if err != nil {
			r.Warnings = append(r.Warnings, fmt.Sprintf("%s summary skipped: %v", key, err))
			return nil
		}
		return groups
	}
	r.Hourly = summarize(GroupHour)
	if p.GroupBy == "" || p.GroupBy == GroupHour {
		r.Grouped = r.Hourly
	} else {
		r.Grouped = summarize(p.GroupBy)
	}
	if utils.HasColumn(filtered, utils.ColAirline) {
		r.Airlines = TopByMeanDelay(summarize(GroupCarrier), p.MinFlightsAirline, p.TopN)
	}
	if utils.HasColumn(filtered, utils.ColOrigin) {
		origins := summarize(GroupOrigin)
		r.Airports = TopByMeanDelay(origins, p.MinFlightsAirport, p.TopN)
		r.HubAirports = TopByMeanDelay(origins, p.MinFlightsHubTable, p.TopN)
		r.HubVsNonHub = summarize(GroupHub)
		if utils.HasColumn(filtered, utils.ColDestination) {
			r.Routes = TopByMeanDelay(summarize(GroupRoute), p.MinFlightsRoute, p.TopN)
		}
	}

	// 5. 统计
	r.Trend = LinearTrend(filtered)
	r.Controlled = ControlledTrend(filtered)
	r.Anova = AnovaByHour(filtered, caps)
	r.DepArrCorr = Correlation(filtered, utils.ColDepDelay, utils.ColArrDelay)
	r.HourArrCorr = Correlation(filtered, utils.ColDepHour, utils.ColArrDelay)
	return r
}

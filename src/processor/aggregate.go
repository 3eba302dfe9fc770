package processor

import (
	"fmt"
	"math"
	"sort"
	"strconv"

	"FlightDelayInsight/src/utils"

	"github.com/go-gota/gota/dataframe"
	"github.com/go-gota/gota/series"
	"gonum.org/v1/gonum/stat"
)

// GroupKey 分组维度
type GroupKey string

const (
	GroupHour        GroupKey = "hour"
	GroupCarrier     GroupKey = "carrier"
	GroupOrigin      GroupKey = "origin"
	GroupDestination GroupKey = "destination"
	GroupHub         GroupKey = "hub"
	GroupRoute       GroupKey = utils.ColRoute
)

// GroupKeys 全部分组维度
var GroupKeys = []GroupKey{GroupHour, GroupCarrier, GroupOrigin, GroupDestination, GroupHub, GroupRoute}

// ParseGroupKey 解析命令行/配置中的分组维度
func ParseGroupKey(s string) (GroupKey, error) {
	for _, k := range GroupKeys {
		if string(k) == s {
			return k, nil
		}
	}
	return "", fmt.Errorf("未知的分组维度: %q", s)
}

// Columns 分组依赖的列; route 依赖出发和到达两列
func (k GroupKey) Columns() []string {
	switch k {
	case GroupHour:
		return []string{utils.ColDepHour}
	case GroupCarrier:
		return []string{utils.ColAirline}
	case GroupOrigin:
		return []string{utils.ColOrigin}
	case GroupDestination:
		return []string{utils.ColDestination}
	case GroupHub:
		return []string{utils.ColIsHub}
	case GroupRoute:
		return []string{utils.ColOrigin, utils.ColDestination}
	}
	return nil
}

// GroupSummary 单个分组的统计
type GroupSummary struct {
	Key         string
	Flights     int
	MeanDelay   float64 // 平均到达延误(分钟), 无有效值时为NaN
	MedianDelay float64
	Shares      map[string]float64 // 布尔标记列 -> 占比(0-1)
}

// Summarize 按维度统计航班数、平均/中位到达延误及各标记占比
// 小时按数值升序, 其它维度按代码排序; 只输出实际出现的分组, 键缺失的行不计入
func Summarize(df dataframe.DataFrame, key GroupKey) ([]GroupSummary, error) {
	cols := key.Columns()
	if cols == nil {
		return nil, fmt.Errorf("未知的分组维度: %q", key)
	}
	for _, c := range append(cols, utils.ColArrDelay) {
		if !utils.HasColumn(df, c) {
			return nil, fmt.Errorf("列 %s 不存在", c)
		}
	}
	if df.Nrow() == 0 {
		return []GroupSummary{}, nil
	}

	keys := rowKeys(df, key)
	delays := df.Col(utils.ColArrDelay).Float()

	var shareCols []string
	shareVals := make(map[string][]float64)
	for _, c := range utils.ShareColumns {
		if utils.HasColumn(df, c) {
			shareCols = append(shareCols, c)
			shareVals[c] = df.Col(c).Float()
		}
	}

	type acc struct {
		n      int
		delays []float64
		sums   map[string]float64
	}
	groups := make(map[string]*acc)
	for i, k := range keys {
		if utils.IsMissingKey(k) {
			continue
		}
		g, ok := groups[k]
		if !ok {
			g = &acc{sums: make(map[string]float64, len(shareCols))}
			groups[k] = g
		}
		g.n++
		if utils.IsFinite(delays[i]) {
			g.delays = append(g.delays, delays[i])
		}
		for _, c := range shareCols {
			if v := shareVals[c][i]; utils.IsFinite(v) {
				g.sums[c] += v
			}
		}
	}

	out := make([]GroupSummary, 0, len(groups))
	for k, g := range groups {
		s := GroupSummary{
			Key:         k,
			Flights:     g.n,
			MeanDelay:   math.NaN(),
			MedianDelay: math.NaN(),
			Shares:      make(map[string]float64, len(shareCols)),
		}
		if len(g.delays) > 0 {
			sort.Float64s(g.delays)
			s.MeanDelay = stat.Mean(g.delays, nil)
			s.MedianDelay = median(g.delays)
		}
		for _, c := range shareCols {
			s.Shares[c] = g.sums[c] / float64(g.n)
		}
		out = append(out, s)
	}

	sortGroups(out, key)
	return out, nil
}

func rowKeys(df dataframe.DataFrame, key GroupKey) []string {
	switch key {
	case GroupHour:
		hours := df.Col(utils.ColDepHour).Float()
		keys := make([]string, len(hours))
		for i, h := range hours {
			keys[i] = strconv.Itoa(int(h))
		}
		return keys
	case GroupRoute:
		origins := df.Col(utils.ColOrigin).Records()
		dests := df.Col(utils.ColDestination).Records()
		keys := make([]string, len(origins))
		for i := range origins {
			if utils.IsMissingKey(origins[i]) || utils.IsMissingKey(dests[i]) {
				continue
			}
			keys[i] = RouteKey(origins[i], dests[i])
		}
		return keys
	default:
		return df.Col(key.Columns()[0]).Records()
	}
}

// RouteKey 航线键 "JFK-LAX"
func RouteKey(origin, dest string) string {
	return origin + "-" + dest
}

func sortGroups(groups []GroupSummary, key GroupKey) {
	if key == GroupHour {
		sort.Slice(groups, func(i, j int) bool {
			a, _ := strconv.Atoi(groups[i].Key)
			b, _ := strconv.Atoi(groups[j].Key)
			return a < b
		})
		return
	}
	sort.Slice(groups, func(i, j int) bool { return groups[i].Key < groups[j].Key })
}

// median 输入需已排序
func median(sorted []float64) float64 {
	n := len(sorted)
	if n == 0 {
		return math.NaN()
	}
	if n%2 == 1 {
		return sorted[n/2]
	}
	return (sorted[n/2-1] + sorted[n/2]) / 2
}

// TopByMeanDelay 航班数不少于 minFlights 的分组中平均延误最高的 n 个
// n <= 0 时不截断
func TopByMeanDelay(groups []GroupSummary, minFlights, n int) []GroupSummary {
	var out []GroupSummary
	for _, g := range groups {
		if g.Flights >= minFlights && utils.IsFinite(g.MeanDelay) {
			out = append(out, g)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].MeanDelay != out[j].MeanDelay {
			return out[i].MeanDelay > out[j].MeanDelay
		}
		return out[i].Key < out[j].Key
	})
	if n > 0 && len(out) > n {
		out = out[:n]
	}
	return out
}

// SummaryFrame 分组结果转为DataFrame, 便于导出csv/xlsx
// 小时分组的键列为整数 dep_hour, 其它维度为字符串
func SummaryFrame(groups []GroupSummary, key GroupKey) dataframe.DataFrame {
	n := len(groups)
	flights := make([]int, n)
	means := make([]float64, n)
	medians := make([]float64, n)
	for i, g := range groups {
		flights[i] = g.Flights
		means[i] = g.MeanDelay
		medians[i] = g.MedianDelay
	}

	var keyCol series.Series
	if key == GroupHour {
		hours := make([]int, n)
		for i, g := range groups {
			hours[i], _ = strconv.Atoi(g.Key)
		}
		keyCol = series.New(hours, series.Int, utils.ColDepHour)
	} else {
		keys := make([]string, n)
		for i, g := range groups {
			keys[i] = g.Key
		}
		keyCol = series.New(keys, series.String, string(key))
	}

	cols := []series.Series{
		keyCol,
		series.New(flights, series.Int, "flights"),
		series.New(means, series.Float, "mean_arr_delay"),
		series.New(medians, series.Float, "median_arr_delay"),
	}
	for _, c := range utils.ShareColumns {
		if n == 0 || !hasShare(groups, c) {
			continue
		}
		shares := make([]float64, n)
		for i, g := range groups {
			shares[i] = g.Shares[c]
		}
		cols = append(cols, series.New(shares, series.Float, ShareName(c)))
	}
	return dataframe.New(cols...)
}

func hasShare(groups []GroupSummary, col string) bool {
	for _, g := range groups {
		if _, ok := g.Shares[col]; ok {
			return true
		}
	}
	return false
}

// ShareName 标记列对应的占比列名, 如 is_late_15 -> late_15_share
func ShareName(col string) string {
	switch col {
	case utils.ColLate15:
		return "late_15_share"
	case utils.ColHasWeather:
		return "weather_share"
	case utils.ColHasLateAir:
		return "late_aircraft_share"
	}
	return col + "_share"
}

// KPIs 当前子集的概览指标
type KPIs struct {
	Flights       int
	LateShare     Optional // 到达延误>15分钟的占比
	MeanArrDelay  Optional
	MeanDepDelay  Optional
	Carriers      int
	Origins       int
	MissingArrPct float64 // 缺失占比(%)
	MissingDepPct float64
}

// Overview 计算概览指标, 空表时各项为0或缺省
func Overview(df dataframe.DataFrame) KPIs {
	k := KPIs{Flights: df.Nrow()}
	if df.Nrow() == 0 {
		return k
	}

	if utils.HasColumn(df, utils.ColLate15) {
		k.LateShare = Some(stat.Mean(df.Col(utils.ColLate15).Float(), nil))
	}
	if vals := utils.FiniteValues(df, utils.ColArrDelay); len(vals) > 0 {
		k.MeanArrDelay = Some(stat.Mean(vals, nil))
	}
	if vals := utils.FiniteValues(df, utils.ColDepDelay); len(vals) > 0 {
		k.MeanDepDelay = Some(stat.Mean(vals, nil))
	}
	k.Carriers = distinct(df, utils.ColAirline)
	k.Origins = distinct(df, utils.ColOrigin)
	k.MissingArrPct = missingPct(df, utils.ColArrDelay)
	k.MissingDepPct = missingPct(df, utils.ColDepDelay)
	return k
}

func distinct(df dataframe.DataFrame, col string) int {
	if !utils.HasColumn(df, col) {
		return 0
	}
	seen := make(map[string]struct{})
	for _, v := range df.Col(col).Records() {
		if !utils.IsMissingKey(v) {
			seen[v] = struct{}{}
		}
	}
	return len(seen)
}

// missingPct 列不存在时视为全部缺失
func missingPct(df dataframe.DataFrame, col string) float64 {
	if df.Nrow() == 0 {
		return 0
	}
	if !utils.HasColumn(df, col) {
		return 100
	}
	missing := 0
	for _, v := range df.Col(col).Float() {
		if !utils.IsFinite(v) {
			missing++
		}
	}
	return float64(missing) / float64(df.Nrow()) * 100
}

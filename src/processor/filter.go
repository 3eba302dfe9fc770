package processor

import (
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"

	"FlightDelayInsight/src/utils"

	"github.com/go-gota/gota/dataframe"
	"github.com/go-gota/gota/series"
	"gonum.org/v1/gonum/stat"
)

// Selection 过滤条件, 空切片表示不限制
// 不同维度之间是 AND, 同一维度内是 OR
type Selection struct {
	Months       []int
	Carriers     []string
	Origins      []string
	Destinations []string
}

// IsEmpty 没有任何限制
func (s Selection) IsEmpty() bool {
	return len(s.Months) == 0 && len(s.Carriers) == 0 &&
		len(s.Origins) == 0 && len(s.Destinations) == 0
}

// ApplyFilters 按选择条件过滤航班, 返回新表
// 限制了某个维度但表中没有该列时, 没有任何行能满足条件
func ApplyFilters(df dataframe.DataFrame, sel Selection) dataframe.DataFrame {
	if sel.IsEmpty() || df.Nrow() == 0 {
		return df
	}

	if len(sel.Months) > 0 {
		if !utils.HasColumn(df, utils.ColMonth) {
			return emptyLike(df)
		}
		df = df.Filter(dataframe.F{
			Colname:    utils.ColMonth,
			Comparator: series.CompFunc,
			Comparando: func(el series.Element) bool {
				v := el.Float()
				return !el.IsNA() && v == math.Trunc(v) && utils.Contains(sel.Months, int(v))
			},
		})
	}

	dims := []struct {
		col    string
		values []string
	}{
		{utils.ColAirline, sel.Carriers},
		{utils.ColOrigin, sel.Origins},
		{utils.ColDestination, sel.Destinations},
	}
	for _, d := range dims {
		if len(d.values) == 0 || df.Nrow() == 0 {
			continue
		}
		if !utils.HasColumn(df, d.col) {
			return emptyLike(df)
		}
		values := d.values
		df = df.Filter(dataframe.F{
			Colname:    d.col,
			Comparator: series.CompFunc,
			Comparando: func(el series.Element) bool {
				return !el.IsNA() && utils.Contains(values, el.String())
			},
		})
	}
	return df
}

// emptyLike 同结构的空表
func emptyLike(df dataframe.DataFrame) dataframe.DataFrame {
	return df.Subset([]int{})
}

// ClampWinsorPct 限制在 [0,10]
func ClampWinsorPct(pct float64) float64 {
	if math.IsNaN(pct) || pct < 0 {
		return 0
	}
	if pct > 10 {
		return 10
	}
	return pct
}

// Winsorize 将到达/起飞延误分别截断到当前子集的 [p, 100-p] 百分位
// p=0 时原样返回; NA 保持 NA
func Winsorize(df dataframe.DataFrame, pct float64) dataframe.DataFrame {
	pct = ClampWinsorPct(pct)
	if pct == 0 || df.Nrow() == 0 {
		return df
	}

	for _, col := range []string{utils.ColArrDelay, utils.ColDepDelay} {
		lo, hi, ok := winsorBounds(df, col, pct/100)
		if !ok {
			continue
		}
		vals := df.Col(col).Float()
		clipped := make([]float64, len(vals))
		for i, v := range vals {
			switch {
			case !utils.IsFinite(v):
				clipped[i] = math.NaN()
			case v < lo:
				clipped[i] = lo
			case v > hi:
				clipped[i] = hi
			default:
				clipped[i] = v
			}
		}
		df = df.Mutate(series.New(clipped, series.Float, col))
	}
	return df
}

// winsorBounds 经验分位数(取样本值), 重复截断结果不变
func winsorBounds(df dataframe.DataFrame, col string, q float64) (lo, hi float64, ok bool) {
	vals := utils.FiniteValues(df, col)
	if len(vals) == 0 {
		return 0, 0, false
	}
	sort.Float64s(vals)
	lo = stat.Quantile(q, stat.Empirical, vals, nil)
	hi = stat.Quantile(1-q, stat.Empirical, vals, nil)
	return lo, hi, true
}

// HubInfo 枢纽判定结果
type HubInfo struct {
	Quantile  float64
	Threshold float64  // 航班量阈值
	Hubs      []string // 按代码排序
	Airports  int      // 出发机场数
}

// HubFlag 按当前子集的出发机场航班量标记枢纽
// 航班量 >= 各机场航班量的 q 分位数(线性插值) 即为枢纽
// 出发机场缺失的行不参与计数, 也不是枢纽; 没有出发机场列时原样返回
func HubFlag(df dataframe.DataFrame, q float64) (dataframe.DataFrame, HubInfo) {
	info := HubInfo{Quantile: q}
	if !utils.HasColumn(df, utils.ColOrigin) {
		return df, info
	}

	origins := df.Col(utils.ColOrigin).Records()
	counts := make(map[string]int)
	for _, o := range origins {
		if utils.IsMissingKey(o) {
			continue
		}
		counts[o]++
	}
	info.Airports = len(counts)
	if len(counts) == 0 {
		return df.Mutate(series.New(make([]bool, len(origins)), series.Bool, utils.ColIsHub)), info
	}

	volumes := make([]float64, 0, len(counts))
	for _, c := range counts {
		volumes = append(volumes, float64(c))
	}
	info.Threshold = LinearQuantile(volumes, q)

	for code, c := range counts {
		if float64(c) >= info.Threshold {
			info.Hubs = append(info.Hubs, code)
		}
	}
	sort.Strings(info.Hubs)

	flags := make([]bool, len(origins))
	for i, o := range origins {
		c, ok := counts[o]
		flags[i] = ok && float64(c) >= info.Threshold
	}
	return df.Mutate(series.New(flags, series.Bool, utils.ColIsHub)), info
}

// LinearQuantile 排序后在 q*(n-1) 处线性插值
func LinearQuantile(values []float64, q float64) float64 {
	if len(values) == 0 {
		return math.NaN()
	}
	if q < 0 {
		q = 0
	}
	if q > 1 {
		q = 1
	}
	sorted := make([]float64, len(values))
	copy(sorted, values)
	sort.Float64s(sorted)

	index := q * float64(len(sorted)-1)
	lower := int(math.Floor(index))
	upper := int(math.Ceil(index))
	if lower == upper {
		return sorted[lower]
	}
	weight := index - float64(lower)
	return sorted[lower]*(1-weight) + sorted[upper]*weight
}

// Labeler 代码 -> 展示名称
type Labeler interface {
	Label(code string) string
}

// Describe 当前过滤条件的可读描述, lookup 可为 nil
func Describe(sel Selection, airlines, airports Labeler) string {
	label := func(l Labeler, codes []string) string {
		if len(codes) == 0 {
			return "all"
		}
		out := make([]string, len(codes))
		for i, c := range codes {
			if l != nil {
				out[i] = l.Label(c)
			} else {
				out[i] = c
			}
		}
		return strings.Join(out, ", ")
	}

	months := "all"
	if len(sel.Months) > 0 {
		ms := make([]string, len(sel.Months))
		for i, m := range sel.Months {
			ms[i] = strconv.Itoa(m)
		}
		months = strings.Join(ms, ", ")
	}

	return fmt.Sprintf("Months: %s | Airlines: %s | Origins: %s | Destinations: %s",
		months,
		label(airlines, sel.Carriers),
		label(airports, sel.Origins),
		label(airports, sel.Destinations))
}

package processor

import (
	"fmt"
	"sort"
	"strconv"

	"FlightDelayInsight/src/utils"

	"github.com/go-gota/gota/dataframe"
	"gonum.org/v1/gonum/stat"
	"gonum.org/v1/gonum/stat/distuv"
)

// Trend 到达延误对起飞小时的一元线性回归
type Trend struct {
	Slope     float64 // 分钟/小时
	Intercept float64
	R2        Optional // SStot=0 时缺省
	N         int      // 参与拟合的观测数
}

// Anova 按起飞小时分组的单因素方差分析
type Anova struct {
	F         float64
	EtaSq     float64 // SSb/(SSb+SSw)
	PValue    Optional
	SSB       float64
	SSW       float64
	DfBetween int
	DfWithin  int
	Groups    int
}

// 统计不适用的原因
const (
	reasonEmpty        = "no observations"
	reasonFewPairs     = "fewer than 2 valid observations"
	reasonFewX         = "fewer than 2 distinct departure hours"
	reasonFewGroups    = "fewer than 2 departure-hour groups"
	reasonNoWithinDf   = "no within-group degrees of freedom"
	reasonNoWithinVar  = "no within-group variance"
	reasonNotFinite    = "coefficient is not finite"
	reasonMissingField = "missing field: %s"
)

// guard 单个统计出现panic时转为不适用, 不影响其它统计
func guard[T any](name string, fn func() Result[T]) (res Result[T]) {
	defer func() {
		if r := recover(); r != nil {
			res = NotApplicable[T](fmt.Sprintf("%s failed: %v", name, r))
		}
	}()
	return fn()
}

func missingField(df dataframe.DataFrame, cols ...string) (string, bool) {
	for _, c := range cols {
		if !utils.HasColumn(df, c) {
			return fmt.Sprintf(reasonMissingField, c), true
		}
	}
	return "", false
}

// LinearTrend 到达延误 ~ 起飞小时 的普通最小二乘拟合
func LinearTrend(df dataframe.DataFrame) Result[Trend] {
	return guard("linear trend", func() Result[Trend] {
		if df.Nrow() == 0 {
			return NotApplicable[Trend](reasonEmpty)
		}
		if reason, missing := missingField(df, utils.ColDepHour, utils.ColArrDelay); missing {
			return NotApplicable[Trend](reason)
		}
		return FitTrend(df.Col(utils.ColDepHour).Float(), df.Col(utils.ColArrDelay).Float())
	})
}

// ControlledTrend 先减去(月份, 星期)单元内的平均到达延误, 再对残差拟合
// 有效观测少于2个的单元不参与拟合
func ControlledTrend(df dataframe.DataFrame) Result[Trend] {
	return guard("controlled trend", func() Result[Trend] {
		if df.Nrow() == 0 {
			return NotApplicable[Trend](reasonEmpty)
		}
		if reason, missing := missingField(df, utils.ColDepHour, utils.ColArrDelay, utils.ColMonth, utils.ColDayOfWeek); missing {
			return NotApplicable[Trend](reason)
		}

		x := df.Col(utils.ColDepHour).Float()
		y := df.Col(utils.ColArrDelay).Float()
		months := df.Col(utils.ColMonth).Float()
		days := df.Col(utils.ColDayOfWeek).Float()

		type cell struct{ month, day float64 }
		type acc struct {
			sum float64
			n   int
		}
		cells := make(map[cell]*acc)
		keys := make([]cell, len(y))
		valid := make([]bool, len(y))
		for i := range y {
			if !utils.IsFinite(x[i]) || !utils.IsFinite(y[i]) ||
				!utils.IsFinite(months[i]) || !utils.IsFinite(days[i]) {
				continue
			}
			keys[i] = cell{months[i], days[i]}
			valid[i] = true
			a, ok := cells[keys[i]]
			if !ok {
				a = &acc{}
				cells[keys[i]] = a
			}
			a.sum += y[i]
			a.n++
		}

		var xs, resid []float64
		for i := range y {
			if !valid[i] {
				continue
			}
			a := cells[keys[i]]
			if a.n < 2 {
				continue
			}
			xs = append(xs, x[i])
			resid = append(resid, y[i]-a.sum/float64(a.n))
		}
		return FitTrend(xs, resid)
	})
}

// FitTrend 只使用x、y都有限的观测; 需要至少2个观测和2个不同的x
func FitTrend(x, y []float64) Result[Trend] {
	var xs, ys []float64
	distinct := make(map[float64]struct{})
	for i := range x {
		if i >= len(y) || !utils.IsFinite(x[i]) || !utils.IsFinite(y[i]) {
			continue
		}
		xs = append(xs, x[i])
		ys = append(ys, y[i])
		distinct[x[i]] = struct{}{}
	}
	if len(xs) < 2 {
		return NotApplicable[Trend](reasonFewPairs)
	}
	if len(distinct) < 2 {
		return NotApplicable[Trend](reasonFewX)
	}

	intercept, slope := stat.LinearRegression(xs, ys, nil, false)
	if !utils.IsFinite(slope) || !utils.IsFinite(intercept) {
		return NotApplicable[Trend](reasonNotFinite)
	}

	meanY := stat.Mean(ys, nil)
	var ssRes, ssTot float64
	for i := range xs {
		pred := intercept + slope*xs[i]
		ssRes += (ys[i] - pred) * (ys[i] - pred)
		ssTot += (ys[i] - meanY) * (ys[i] - meanY)
	}

	t := Trend{Slope: slope, Intercept: intercept, N: len(xs), R2: None()}
	if ssTot != 0 {
		t.R2 = Some(1 - ssRes/ssTot)
	}
	return Applicable(t)
}

// AnovaByHour 以起飞小时分组对到达延误做单因素方差分析
// caps.PValue 为 false 时不给出 p 值
func AnovaByHour(df dataframe.DataFrame, caps Capabilities) Result[Anova] {
	return guard("anova", func() Result[Anova] {
		if df.Nrow() == 0 {
			return NotApplicable[Anova](reasonEmpty)
		}
		if reason, missing := missingField(df, utils.ColDepHour, utils.ColArrDelay); missing {
			return NotApplicable[Anova](reason)
		}

		hours := df.Col(utils.ColDepHour).Float()
		delays := df.Col(utils.ColArrDelay).Float()
		groups := make(map[int][]float64)
		for i := range delays {
			if !utils.IsFinite(hours[i]) || !utils.IsFinite(delays[i]) {
				continue
			}
			h := int(hours[i])
			groups[h] = append(groups[h], delays[i])
		}
		return OneWayAnova(groupValues(groups), caps)
	})
}

// groupValues 按小时顺序输出各组
func groupValues(groups map[int][]float64) [][]float64 {
	keys := make([]int, 0, len(groups))
	for k := range groups {
		keys = append(keys, k)
	}
	sort.Ints(keys)
	out := make([][]float64, len(keys))
	for i, k := range keys {
		out[i] = groups[k]
	}
	return out
}

// OneWayAnova 单因素方差分析
// SSb = Σ nᵢ(ȳᵢ-ȳ)², SSw = Σ Σ (y-ȳᵢ)², F = (SSb/(k-1)) / (SSw/(N-k))
func OneWayAnova(groups [][]float64, caps Capabilities) Result[Anova] {
	var (
		all []float64
		k   int
	)
	for _, g := range groups {
		if len(g) == 0 {
			continue
		}
		k++
		all = append(all, g...)
	}
	if k < 2 {
		return NotApplicable[Anova](reasonFewGroups)
	}
	n := len(all)
	dfb, dfw := k-1, n-k
	if dfw <= 0 {
		return NotApplicable[Anova](reasonNoWithinDf)
	}

	grand := stat.Mean(all, nil)
	var ssb, ssw float64
	for _, g := range groups {
		if len(g) == 0 {
			continue
		}
		m := stat.Mean(g, nil)
		ssb += float64(len(g)) * (m - grand) * (m - grand)
		for _, v := range g {
			ssw += (v - m) * (v - m)
		}
	}
	if ssw <= 0 {
		return NotApplicable[Anova](reasonNoWithinVar)
	}

	a := Anova{
		SSB:       ssb,
		SSW:       ssw,
		DfBetween: dfb,
		DfWithin:  dfw,
		Groups:    k,
		F:         (ssb / float64(dfb)) / (ssw / float64(dfw)),
		EtaSq:     ssb / (ssb + ssw),
		PValue:    None(),
	}
	if caps.PValue {
		p := distuv.F{D1: float64(dfb), D2: float64(dfw)}.Survival(a.F)
		if utils.IsFinite(p) {
			a.PValue = Some(p)
		}
	}
	return Applicable(a)
}

// Correlation 两个数值列的皮尔逊相关系数, 只使用两列都有值的行
func Correlation(df dataframe.DataFrame, colX, colY string) Result[float64] {
	return guard("correlation", func() Result[float64] {
		if df.Nrow() == 0 {
			return NotApplicable[float64](reasonEmpty)
		}
		if reason, missing := missingField(df, colX, colY); missing {
			return NotApplicable[float64](reason)
		}

		x := df.Col(colX).Float()
		y := df.Col(colY).Float()
		var xs, ys []float64
		for i := range x {
			if utils.IsFinite(x[i]) && utils.IsFinite(y[i]) {
				xs = append(xs, x[i])
				ys = append(ys, y[i])
			}
		}
		if len(xs) < 2 {
			return NotApplicable[float64](reasonFewPairs)
		}
		r := stat.Correlation(xs, ys, nil)
		if !utils.IsFinite(r) {
			return NotApplicable[float64](reasonNotFinite)
		}
		return Applicable(r)
	})
}

// HourLabel 小时分组键的展示形式, 如 "07:00"
func HourLabel(key string) string {
	h, err := strconv.Atoi(key)
	if err != nil {
		return key
	}
	return fmt.Sprintf("%02d:00", h)
}

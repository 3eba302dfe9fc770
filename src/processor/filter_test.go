package processor

import (
	"math"
	"testing"

	"FlightDelayInsight/src/datasource/file"
	"FlightDelayInsight/src/utils"

	"github.com/go-gota/gota/dataframe"
	"github.com/go-gota/gota/series"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// sampleFlights 12 条航班, 覆盖不同月份/航司/机场
func sampleFlights() dataframe.DataFrame {
	return dataframe.New(
		series.New([]float64{1, 1, 1, 2, 2, 2, 3, 3, 3, 1, 2, 3}, series.Float, utils.ColMonth),
		series.New([]float64{1, 2, 3, 4, 5, 6, 7, 1, 2, 3, 4, 5}, series.Float, utils.ColDayOfWeek),
		series.New([]string{"AA", "AA", "DL", "DL", "UA", "UA", "AA", "DL", "UA", "AA", "DL", "UA"}, series.String, utils.ColAirline),
		series.New([]string{"ATL", "ATL", "ATL", "ATL", "ATL", "ORD", "ORD", "ORD", "JFK", "JFK", "SFO", "ATL"}, series.String, utils.ColOrigin),
		series.New([]string{"LAX", "JFK", "LAX", "ORD", "SFO", "ATL", "LAX", "JFK", "ATL", "LAX", "ATL", "LAX"}, series.String, utils.ColDestination),
		series.New([]int{6, 7, 8, 9, 12, 13, 15, 17, 18, 20, 21, 23}, series.Int, utils.ColDepHour),
		series.New([]float64{-10, 2, 5, 30, -3, 8, 45, 12, 300, 20, -40, 60}, series.Float, utils.ColDepDelay),
		series.New([]float64{-15, 0, 4, 25, -8, 10, 50, 16, 280, 18, -50, 70}, series.Float, utils.ColArrDelay),
		series.New([]bool{false, false, false, true, false, false, true, true, true, true, false, true}, series.Bool, utils.ColLate15),
		series.New([]bool{false, false, false, false, false, false, true, false, true, false, false, false}, series.Bool, utils.ColHasWeather),
		series.New([]bool{false, false, false, true, false, false, false, true, true, false, false, true}, series.Bool, utils.ColHasLateAir),
	)
}

func TestApplyFiltersEmptySelectionIsNoop(t *testing.T) {
	df := sampleFlights()
	out := ApplyFilters(df, Selection{})
	assert.Equal(t, df.Records(), out.Records())
}

func TestApplyFiltersAndAcrossOrWithin(t *testing.T) {
	df := sampleFlights()

	out := ApplyFilters(df, Selection{Carriers: []string{"AA", "DL"}})
	assert.Equal(t, 8, out.Nrow())

	out = ApplyFilters(df, Selection{Months: []int{1}, Carriers: []string{"AA", "DL"}})
	assert.Equal(t, 4, out.Nrow())
	for _, m := range out.Col(utils.ColMonth).Float() {
		assert.Equal(t, 1.0, m)
	}

	out = ApplyFilters(df, Selection{Months: []int{1}, Carriers: []string{"AA"}, Origins: []string{"ATL"}, Destinations: []string{"LAX"}})
	require.Equal(t, 1, out.Nrow())
	assert.Equal(t, -15.0, out.Col(utils.ColArrDelay).Float()[0])

	out = ApplyFilters(df, Selection{Origins: []string{"BOS"}})
	assert.Equal(t, 0, out.Nrow())
	assert.Equal(t, df.Names(), out.Names())
}

func TestApplyFiltersMissingColumn(t *testing.T) {
	df := hourDelayFrame([]int{1, 2}, []float64{5, 6})
	out := ApplyFilters(df, Selection{Carriers: []string{"AA"}})
	assert.Equal(t, 0, out.Nrow())
}

func TestWinsorizeClipsAndIsIdempotent(t *testing.T) {
	df := sampleFlights()

	once := Winsorize(df, 10)
	arr := once.Col(utils.ColArrDelay).Float()
	assert.Equal(t, 70.0, maxOf(arr))
	assert.Equal(t, -15.0, minOf(arr))
	dep := once.Col(utils.ColDepDelay).Float()
	assert.Equal(t, 60.0, maxOf(dep))
	assert.Equal(t, -10.0, minOf(dep))

	twice := Winsorize(once, 10)
	assert.Equal(t, once.Records(), twice.Records())

	// 原表不变
	assert.Equal(t, 280.0, maxOf(df.Col(utils.ColArrDelay).Float()))
}

func TestWinsorizeZeroAndNA(t *testing.T) {
	df := sampleFlights()
	assert.Equal(t, df.Records(), Winsorize(df, 0).Records())

	withNA := dataframe.New(
		series.New([]float64{1, math.NaN(), 2, 3, 4, 5, 6, 7, 8, 9, 100}, series.Float, utils.ColArrDelay),
	)
	out := Winsorize(withNA, 10)
	vals := out.Col(utils.ColArrDelay).Float()
	assert.True(t, math.IsNaN(vals[1]))
	assert.Equal(t, 1.0, vals[0])
	assert.Equal(t, 9.0, vals[10])
}

func TestClampWinsorPct(t *testing.T) {
	assert.Equal(t, 0.0, ClampWinsorPct(-1))
	assert.Equal(t, 10.0, ClampWinsorPct(25))
	assert.Equal(t, 2.5, ClampWinsorPct(2.5))
}

func TestHubFlag(t *testing.T) {
	df := sampleFlights()

	out, info := HubFlag(df, 0.8)
	// 航班量: ATL 6, ORD 3, JFK 2, SFO 1 -> 0.8 分位 = 3 + 0.4*3 = 4.2
	assert.InDelta(t, 4.2, info.Threshold, 1e-12)
	assert.Equal(t, []string{"ATL"}, info.Hubs)
	assert.Equal(t, 4, info.Airports)

	assertHubsAboveThreshold(t, out, info)

	// 子集变化后重新计算
	shrunk := ApplyFilters(df, Selection{Origins: []string{"ORD", "JFK", "SFO"}})
	out, info = HubFlag(shrunk, 0.8)
	assert.Equal(t, []string{"ORD"}, info.Hubs)
	assertHubsAboveThreshold(t, out, info)
}

func assertHubsAboveThreshold(t *testing.T, df dataframe.DataFrame, info HubInfo) {
	t.Helper()
	counts := make(map[string]int)
	origins := df.Col(utils.ColOrigin).Records()
	for _, o := range origins {
		if !utils.IsMissingKey(o) {
			counts[o]++
		}
	}
	flags, err := df.Col(utils.ColIsHub).Bool()
	require.NoError(t, err)
	for i, hub := range flags {
		if utils.IsMissingKey(origins[i]) {
			assert.False(t, hub)
			continue
		}
		if hub {
			assert.GreaterOrEqual(t, float64(counts[origins[i]]), info.Threshold)
		} else {
			assert.Less(t, float64(counts[origins[i]]), info.Threshold)
		}
	}
}

// missingOriginFlights 出发机场为空或NA的行
func missingOriginFlights() dataframe.DataFrame {
	return dataframe.New(
		series.New([]string{"AA", "AA", "DL", "DL", "UA"}, series.String, utils.ColAirline),
		series.New([]string{"JFK", "", "", "NaN", "ORD"}, series.String, utils.ColOrigin),
		series.New([]string{"LAX", "LAX", "ATL", "ATL", ""}, series.String, utils.ColDestination),
		series.New([]int{6, 7, 8, 9, 12}, series.Int, utils.ColDepHour),
		series.New([]float64{5, 10, 20, 30, 40}, series.Float, utils.ColArrDelay),
	)
}

func TestHubFlagSkipsMissingOrigin(t *testing.T) {
	out, info := HubFlag(missingOriginFlights(), 0.8)
	// 只有 JFK 1, ORD 1 两个机场 -> 阈值 1
	assert.Equal(t, 2, info.Airports)
	assert.InDelta(t, 1.0, info.Threshold, 1e-12)
	assert.Equal(t, []string{"JFK", "ORD"}, info.Hubs)

	flags, err := out.Col(utils.ColIsHub).Bool()
	require.NoError(t, err)
	assert.Equal(t, []bool{true, false, false, false, true}, flags)
	assertHubsAboveThreshold(t, out, info)

	// 全部缺失时没有枢纽, 列长度仍与行数一致
	allMissing := missingOriginFlights().Subset([]int{1, 2, 3})
	out, info = HubFlag(allMissing, 0.8)
	assert.Zero(t, info.Airports)
	assert.Empty(t, info.Hubs)
	assert.Equal(t, 3, out.Col(utils.ColIsHub).Len())
}

func TestHubFlagWithoutOrigin(t *testing.T) {
	df := hourDelayFrame([]int{1}, []float64{2})
	out, info := HubFlag(df, 0.8)
	assert.False(t, utils.HasColumn(out, utils.ColIsHub))
	assert.Empty(t, info.Hubs)
}

func TestLinearQuantile(t *testing.T) {
	assert.Equal(t, 2.0, LinearQuantile([]float64{3, 1, 2}, 0.5))
	assert.InDelta(t, 1.5, LinearQuantile([]float64{1, 2}, 0.5), 1e-12)
	assert.Equal(t, 5.0, LinearQuantile([]float64{5}, 0.8))
	assert.True(t, math.IsNaN(LinearQuantile(nil, 0.5)))
}

func TestDescribe(t *testing.T) {
	airlines := file.NewLookup(map[string]string{"AA": "American Airlines Inc."})
	airports := file.NewLookup(map[string]string{"JFK": "John F. Kennedy International Airport"})

	got := Describe(Selection{}, airlines, airports)
	assert.Equal(t, "Months: all | Airlines: all | Origins: all | Destinations: all", got)

	got = Describe(Selection{Months: []int{1, 7}, Carriers: []string{"AA", "ZZ"}, Origins: []string{"JFK"}}, airlines, airports)
	assert.Equal(t, "Months: 1, 7 | Airlines: AA - American Airlines Inc., ZZ | Origins: JFK - John F. Kennedy International Airport | Destinations: all", got)

	got = Describe(Selection{Destinations: []string{"LAX"}}, nil, nil)
	assert.Contains(t, got, "Destinations: LAX")
}

func maxOf(vals []float64) float64 {
	m := math.Inf(-1)
	for _, v := range vals {
		if v > m {
			m = v
		}
	}
	return m
}

func minOf(vals []float64) float64 {
	m := math.Inf(1)
	for _, v := range vals {
		if v < m {
			m = v
		}
	}
	return m
}

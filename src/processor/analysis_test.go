package processor

import (
	"testing"

	"FlightDelayInsight/src/config"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func smallParams() Params {
	p := DefaultParams()
	p.MinFlightsAirline = 1
	p.MinFlightsAirport = 1
	p.MinFlightsRoute = 1
	p.MinFlightsHubTable = 1
	p.TopN = 2
	return p
}

func TestAnalyzeFullPipeline(t *testing.T) {
	r := Analyze(sampleFlights(), smallParams(), Capabilities{PValue: true})

	assert.Equal(t, 12, r.RowsFiltered)
	assert.Equal(t, 12, r.RowsWinsorized)
	assert.Equal(t, []string{"ATL"}, r.Hub.Hubs)
	assert.Equal(t, 12, r.KPIs.Flights)
	assert.Empty(t, r.Warnings)

	assert.Len(t, r.Hourly, 12)
	assert.Equal(t, r.Hourly, r.Grouped)
	require.Len(t, r.Airlines, 2)
	assert.Equal(t, "UA", r.Airlines[0].Key)
	assert.Len(t, r.Airports, 2)
	assert.Len(t, r.Routes, 2)
	assert.Len(t, r.HubVsNonHub, 2)

	assert.True(t, r.Trend.Ok(), r.Trend.Reason())
	assert.True(t, r.Controlled.Ok(), r.Controlled.Reason())
	assert.True(t, r.DepArrCorr.Ok())
	assert.True(t, r.HourArrCorr.Ok())

	// 每个小时只有一个航班, 方差分析不适用, 其它统计不受影响
	assert.False(t, r.Anova.Ok())
	assert.Equal(t, reasonNoWithinDf, r.Anova.Reason())
}

func TestAnalyzeSelectionAndGroupBy(t *testing.T) {
	p := smallParams()
	p.Selection = Selection{Months: []int{1}}
	p.GroupBy = GroupCarrier

	r := Analyze(sampleFlights(), p, Capabilities{})
	assert.Equal(t, 4, r.RowsFiltered)
	require.NotEmpty(t, r.Grouped)
	assert.Equal(t, "AA", r.Grouped[0].Key)
	total := 0
	for _, g := range r.Grouped {
		total += g.Flights
	}
	assert.Equal(t, 4, total)
}

func TestAnalyzeWinsorizeKeepsRows(t *testing.T) {
	p := smallParams()
	p.WinsorPct = 10

	r := Analyze(sampleFlights(), p, Capabilities{})
	assert.Equal(t, r.RowsFiltered, r.RowsWinsorized)
	require.True(t, r.Before.MeanArrDelay.Valid)
	require.True(t, r.KPIs.MeanArrDelay.Valid)
	assert.Less(t, r.KPIs.MeanArrDelay.Value, r.Before.MeanArrDelay.Value)
}

func TestAnalyzeEmptySubset(t *testing.T) {
	p := smallParams()
	p.Selection = Selection{Origins: []string{"BOS"}}

	r := Analyze(sampleFlights(), p, Capabilities{PValue: true})
	assert.Zero(t, r.RowsFiltered)
	assert.Empty(t, r.Hourly)
	assert.Empty(t, r.Airlines)
	assert.Equal(t, reasonEmpty, r.Trend.Reason())
	assert.Equal(t, reasonEmpty, r.Anova.Reason())
	assert.Equal(t, reasonEmpty, r.DepArrCorr.Reason())
}

func TestAnalyzeWithoutOptionalColumns(t *testing.T) {
	df := hourDelayFrame([]int{1, 1, 2, 2, 3, 3}, []float64{1, 3, 4, 6, 9, 11})

	r := Analyze(df, smallParams(), Capabilities{PValue: true})
	assert.Empty(t, r.Warnings)
	assert.Empty(t, r.Airlines)
	assert.Empty(t, r.Hub.Hubs)
	assert.True(t, r.Trend.Ok())
	assert.True(t, r.Anova.Ok())
	assert.False(t, r.Controlled.Ok())
	assert.False(t, r.DepArrCorr.Ok())
}

func TestParamsFromConfig(t *testing.T) {
	cfg := &config.Config{}
	cfg.ApplyDefaults()
	cfg.Analysis.WinsorPct = 2
	cfg.Analysis.GroupBy = "origin"

	p, err := ParamsFromConfig(cfg)
	require.NoError(t, err)
	assert.Equal(t, 2.0, p.WinsorPct)
	assert.Equal(t, GroupOrigin, p.GroupBy)
	assert.Equal(t, 500, p.MinFlightsAirline)
	assert.Equal(t, 0.8, p.HubQuantile)

	cfg.Analysis.GroupBy = "tail"
	_, err = ParamsFromConfig(cfg)
	assert.Error(t, err)
}

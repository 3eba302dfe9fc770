package file

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"FlightDelayInsight/src/config"
	"FlightDelayInsight/src/utils"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
)

const flightsCSV = `YEAR,MONTH,DAY_OF_WEEK,AIRLINE,ORIGIN_AIRPORT,DESTINATION_AIRPORT,SCHEDULED_DEPARTURE,DEPARTURE_DELAY,ARRIVAL_DELAY,WEATHER_DELAY,LATE_AIRCRAFT_DELAY,CANCELLED,DIVERTED
2015,1,4,AA,JFK,LAX,0005,-3,-10,,,0,0
2015,1,4,AA,JFK,LAX,1430,25,30,0,20,0,0
2015,1,4,DL,ATL,JFK,2359,5,16,4,,0,0
2015,1,5,DL,ATL,JFK,0700,,,,,1,0
2015,1,5,UA,ORD,SFO,0800,10,,,,0,1
2015,1,5,UA,ORD,SFO,0900,abc,12,,,0,0
2015,1,5,UA,ORD,SFO,,10,12,,,0,0
2015,1,6,UA,ORD,SFO,2400,10,-1,,,0,0
`

func writeTemp(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func TestLoadFlightsCleansAndDerives(t *testing.T) {
	path := writeTemp(t, "flights.csv", flightsCSV)

	df, stats, err := LoadFlights(path, 0, nil, "")
	require.NoError(t, err)

	assert.Equal(t, 8, stats.RawRows)
	assert.Equal(t, 1, stats.Cancelled)
	assert.Equal(t, 1, stats.Diverted)
	assert.Equal(t, 1, stats.Incomplete)
	assert.Equal(t, 5, stats.Kept)
	assert.Equal(t, 5, df.Nrow())

	// YEAR 未映射, 不保留
	assert.False(t, utils.HasColumn(df, "YEAR"))

	hours, err := df.Col(utils.ColDepHour).Int()
	require.NoError(t, err)
	assert.Equal(t, []int{0, 14, 23, 9, 23}, hours)

	late, err := df.Col(utils.ColLate15).Bool()
	require.NoError(t, err)
	assert.Equal(t, []bool{false, true, true, false, false}, late)

	weather, err := df.Col(utils.ColHasWeather).Bool()
	require.NoError(t, err)
	assert.Equal(t, []bool{false, false, true, false, false}, weather)

	lateAir, err := df.Col(utils.ColHasLateAir).Bool()
	require.NoError(t, err)
	assert.Equal(t, []bool{false, true, false, false, false}, lateAir)

	// 数值解析失败保留行, 值为NA
	assert.True(t, df.Col(utils.ColDepDelay).Elem(3).IsNA())
}

func TestLoadFlightsRowLimit(t *testing.T) {
	path := writeTemp(t, "flights.csv", flightsCSV)

	_, stats, err := LoadFlights(path, 3, nil, "")
	require.NoError(t, err)
	assert.Equal(t, 3, stats.RawRows)
	assert.Equal(t, 3, stats.Kept)
}

func TestLoadFlightsOptionalColumns(t *testing.T) {
	path := writeTemp(t, "minimal.csv", "SCHEDULED_DEPARTURE,ARRIVAL_DELAY\n0930,20\n1015,-5\n")

	df, stats, err := LoadFlights(path, 0, nil, "")
	require.NoError(t, err)
	assert.Equal(t, 2, stats.Kept)
	assert.True(t, utils.HasColumn(df, utils.ColLate15))
	assert.False(t, utils.HasColumn(df, utils.ColHasWeather))
	assert.False(t, utils.HasColumn(df, utils.ColHasLateAir))
}

func TestLoadFlightsColumnMapping(t *testing.T) {
	path := writeTemp(t, "renamed.csv", "CRS_DEP_TIME,ARR_DELAY,CARRIER\n0600,30,AA\n")
	dcfg := config.NewDataConfig()
	dcfg.SetColumn(utils.ColSchedDep, "CRS_DEP_TIME")
	dcfg.SetColumn(utils.ColArrDelay, "ARR_DELAY")
	dcfg.SetColumn(utils.ColAirline, "CARRIER")

	df, _, err := LoadFlights(path, 0, dcfg, "")
	require.NoError(t, err)
	assert.Equal(t, []string{"AA"}, df.Col(utils.ColAirline).Records())
	hours, err := df.Col(utils.ColDepHour).Int()
	require.NoError(t, err)
	assert.Equal(t, []int{6}, hours)
}

func TestLoadFlightsMissingMappedColumn(t *testing.T) {
	path := writeTemp(t, "renamed.csv", "SCHEDULED_DEPARTURE,ARRIVAL_DELAY\n0600,30\n")
	dcfg := config.NewDataConfig()
	dcfg.SetColumn(utils.ColArrDelay, "ARR_DELAY")

	_, _, err := LoadFlights(path, 0, dcfg, "")
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrMissingColumn))
	assert.Contains(t, err.Error(), "ARRIVAL_DELAY(表头 ARR_DELAY)")
}

func TestLoadFlightsFailures(t *testing.T) {
	missing := writeTemp(t, "missing.csv", "MONTH,ARRIVAL_DELAY\n1,5\n")
	_, _, err := LoadFlights(missing, 0, nil, "")
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrMissingColumn))
	assert.Contains(t, err.Error(), utils.ColSchedDep)

	empty := writeTemp(t, "empty.csv", "SCHEDULED_DEPARTURE,ARRIVAL_DELAY\n")
	_, _, err = LoadFlights(empty, 0, nil, "")
	assert.True(t, errors.Is(err, ErrEmptySource))

	_, _, err = LoadFlights(filepath.Join(t.TempDir(), "none.csv"), 0, nil, "")
	assert.Error(t, err)

	_, _, err = LoadFlights(writeTemp(t, "flights.parquet", "x"), 0, nil, "")
	assert.True(t, errors.Is(err, ErrUnsupported))
}

func TestLoadFlightsAllRowsDropped(t *testing.T) {
	path := writeTemp(t, "cancelled.csv", "SCHEDULED_DEPARTURE,ARRIVAL_DELAY,CANCELLED\n0600,,1\n0700,,1\n")

	df, stats, err := LoadFlights(path, 0, nil, "")
	require.NoError(t, err)
	assert.Equal(t, 0, df.Nrow())
	assert.Equal(t, 2, stats.Cancelled)
	assert.True(t, utils.HasColumn(df, utils.ColDepHour))
}

func TestLoadFlightsXLSX(t *testing.T) {
	path := filepath.Join(t.TempDir(), "flights.xlsx")
	f := excelize.NewFile()
	rows := [][]interface{}{
		{"2015年航班明细"},
		{"AIRLINE", "SCHEDULED_DEPARTURE", "ARRIVAL_DELAY", "CANCELLED"},
		{"AA", "0630", "12", "0"},
		{"DL", "1845", "40", "0"},
		{"UA", "2000", "", "1"},
	}
	for i, row := range rows {
		cell, _ := excelize.CoordinatesToCellName(1, i+1)
		require.NoError(t, f.SetSheetRow("Sheet1", cell, &row))
	}
	require.NoError(t, f.SaveAs(path))
	require.NoError(t, f.Close())

	dcfg := config.NewDataConfig()
	dcfg.HeaderRow = 1

	df, stats, err := LoadFlights(path, 0, dcfg, "Sheet1")
	require.NoError(t, err)
	assert.Equal(t, 3, stats.RawRows)
	assert.Equal(t, 2, df.Nrow())
	assert.Equal(t, []string{"AA", "DL"}, df.Col(utils.ColAirline).Records())

	_, _, err = LoadFlights(path, 0, dcfg, "missing")
	assert.Error(t, err)
}

func TestDepartureHour(t *testing.T) {
	assert.Equal(t, 0, DepartureHour(5))
	assert.Equal(t, 14, DepartureHour(1459))
	assert.Equal(t, 23, DepartureHour(2400))
	assert.Equal(t, 0, DepartureHour(-30))
}

func TestLoadLookup(t *testing.T) {
	path := writeTemp(t, "airlines.csv", "IATA_CODE,AIRLINE\nAA,American Airlines Inc.\nDL,\"Delta Air Lines, Inc.\"\n")

	lk, err := LoadLookup(path, LookupCodeColumn, AirlineNameColumn)
	require.NoError(t, err)
	assert.Equal(t, 2, lk.Len())
	assert.Equal(t, "Delta Air Lines, Inc.", lk.Name("DL"))
	assert.Equal(t, "ZZ", lk.Name("ZZ"))
	assert.Equal(t, "AA - American Airlines Inc.", lk.Label("AA"))
	assert.Equal(t, "ZZ", lk.Label("ZZ"))

	_, err = LoadLookup(path, LookupCodeColumn, AirportNameColumn)
	assert.True(t, errors.Is(err, ErrMissingColumn))
}

func TestEnsureFlightsFile(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/flights.csv" {
			http.NotFound(w, r)
			return
		}
		w.Write([]byte(flightsCSV))
	}))
	defer srv.Close()

	path := filepath.Join(t.TempDir(), "data", "flights.csv")
	ctx := context.Background()

	downloaded, err := EnsureFlightsFile(ctx, srv.URL+"/flights.csv", path)
	require.NoError(t, err)
	assert.True(t, downloaded)
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(string(data), "YEAR,MONTH"))

	// 已存在时不重复下载
	downloaded, err = EnsureFlightsFile(ctx, srv.URL+"/flights.csv", path)
	require.NoError(t, err)
	assert.False(t, downloaded)

	other := filepath.Join(t.TempDir(), "flights.csv")
	_, err = EnsureFlightsFile(ctx, srv.URL+"/gone.csv", other)
	assert.Error(t, err)
	_, statErr := os.Stat(other)
	assert.True(t, os.IsNotExist(statErr))

	_, err = EnsureFlightsFile(ctx, "", other)
	assert.Error(t, err)
}

func TestFileMonitorReportsWrites(t *testing.T) {
	dir := t.TempDir()
	monitor, err := NewFileMonitor(dir)
	require.NoError(t, err)
	defer monitor.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	changed := make(chan string, 4)
	go monitor.Watch(ctx, func(name string) { changed <- name })

	path := filepath.Join(dir, "flights.csv")
	require.NoError(t, os.WriteFile(path, []byte(flightsCSV), 0644))

	select {
	case name := <-changed:
		assert.Equal(t, "flights.csv", filepath.Base(name))
	case <-time.After(5 * time.Second):
		t.Fatal("no change reported")
	}
}

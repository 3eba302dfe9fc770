package utils

import (
	"fmt"
	"math"

	"github.com/go-gota/gota/dataframe"
	"github.com/xuri/excelize/v2"
)

// 航班表的标准列名
const (
	ColMonth       = "MONTH"
	ColDayOfWeek   = "DAY_OF_WEEK"
	ColAirline     = "AIRLINE"
	ColOrigin      = "ORIGIN_AIRPORT"
	ColDestination = "DESTINATION_AIRPORT"
	ColSchedDep    = "SCHEDULED_DEPARTURE"
	ColDepDelay    = "DEPARTURE_DELAY"
	ColArrDelay    = "ARRIVAL_DELAY"
	ColWeather     = "WEATHER_DELAY"
	ColLateAir     = "LATE_AIRCRAFT_DELAY"
	ColCancelled   = "CANCELLED"
	ColDiverted    = "DIVERTED"
)

// 派生列
const (
	ColDepHour    = "dep_hour"
	ColLate15     = "is_late_15"
	ColHasWeather = "has_weather_delay"
	ColHasLateAir = "has_late_aircraft_delay"
	ColIsHub      = "is_hub"
	ColRoute      = "route"

	LateThreshold = 15.0 // 到达延误超过15分钟记为晚到
	MaxDepHour    = 23
)

// ShareColumns 参与占比统计的布尔列
var ShareColumns = []string{ColLate15, ColHasWeather, ColHasLateAir}

func Contains[T comparable](slice []T, item T) bool {
	for _, v := range slice {
		if v == item {
			return true
		}
	}
	return false
}

// IsMissingKey 分组键为空或NA(gota 记作 "NaN")
func IsMissingKey(s string) bool {
	return s == "" || s == "NaN"
}

// 辅助函数：判断DataFrame是否有某列
func HasColumn(df dataframe.DataFrame, name string) bool {
	for _, n := range df.Names() {
		if n == name {
			return true
		}
	}
	return false
}

// IsFinite 非NaN且非Inf
func IsFinite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}

// FiniteValues 取出某列的有限数值, 列不存在时返回nil
func FiniteValues(df dataframe.DataFrame, col string) []float64 {
	if !HasColumn(df, col) {
		return nil
	}
	raw := df.Col(col).Float()
	out := make([]float64, 0, len(raw))
	for _, v := range raw {
		if IsFinite(v) {
			out = append(out, v)
		}
	}
	return out
}

// WriteFrameSheet 将DataFrame写入工作簿的指定sheet(不存在则新建)
func WriteFrameSheet(f *excelize.File, sheetName string, df dataframe.DataFrame) error {
	if _, err := f.NewSheet(sheetName); err != nil {
		return fmt.Errorf("创建sheet %s 失败: %w", sheetName, err)
	}

	// 写入列名
	colNames := df.Names()
	header := make([]interface{}, len(colNames))
	for i, name := range colNames {
		header[i] = name
	}
	if err := f.SetSheetRow(sheetName, "A1", &header); err != nil {
		return fmt.Errorf("写入表头失败: %w", err)
	}

	// 写入数据, NaN 留空
	for rowIdx := 0; rowIdx < df.Nrow(); rowIdx++ {
		row := make([]interface{}, len(colNames))
		for colIdx := range colNames {
			elem := df.Elem(rowIdx, colIdx)
			if elem.IsNA() {
				row[colIdx] = nil
				continue
			}
			row[colIdx] = elem.Val()
		}
		cell, _ := excelize.CoordinatesToCellName(1, rowIdx+2)
		if err := f.SetSheetRow(sheetName, cell, &row); err != nil {
			return fmt.Errorf("写入第%d行失败: %w", rowIdx+1, err)
		}
	}
	return nil
}

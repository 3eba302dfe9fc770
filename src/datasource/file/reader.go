// reader.go
package file

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"strings"

	"FlightDelayInsight/src/config"
	"FlightDelayInsight/src/utils"

	"github.com/go-gota/gota/dataframe"
	"github.com/go-gota/gota/series"
	"github.com/tealeg/xlsx"
)

var (
	ErrMissingColumn = errors.New("缺少必需列")
	ErrEmptySource   = errors.New("数据源没有数据行")
	ErrUnsupported   = errors.New("不支持的文件类型")
)

// 缺少其一即加载失败
var requiredColumns = []string{utils.ColArrDelay, utils.ColSchedDep}

// 需要转为数值的列, 解析失败记为NA
var numericColumns = map[string]bool{
	utils.ColMonth:     true,
	utils.ColDayOfWeek: true,
	utils.ColSchedDep:  true,
	utils.ColDepDelay:  true,
	utils.ColArrDelay:  true,
	utils.ColWeather:   true,
	utils.ColLateAir:   true,
	utils.ColCancelled: true,
	utils.ColDiverted:  true,
}

// LoadStats 加载过程统计
type LoadStats struct {
	RawRows    int // 读取的原始行数
	Cancelled  int // 取消航班
	Diverted   int // 备降航班
	Incomplete int // 缺少到达延误或计划起飞时间
	Kept       int
}

// LoadFlights 读取航班明细并清洗
// 参数:
//
//	path: csv/txt/xlsx 文件路径
//	rowLimit: 最多读取的数据行数, 0 表示全部
//	dcfg: 列映射, nil 时使用默认表头
//	sheet: xlsx 工作表名, 为空取第一个
func LoadFlights(path string, rowLimit int, dcfg *config.DataConfig, sheet string) (dataframe.DataFrame, LoadStats, error) {
	var stats LoadStats
	if dcfg == nil {
		dcfg = config.NewDataConfig()
	}

	// 1. 读取原始记录
	var (
		records [][]string
		err     error
	)
	switch strings.ToLower(filepath.Ext(path)) {
	case ".csv", ".txt":
		records, err = readDelimited(path, rowLimit)
	case ".xlsx":
		records, err = readSheet(path, sheet, dcfg.HeaderRow, rowLimit)
	default:
		err = fmt.Errorf("%w: %s", ErrUnsupported, path)
	}
	if err != nil {
		return dataframe.DataFrame{}, stats, err
	}

	// 2. 表头映射为标准列名并校验必需列
	records, err = canonicalize(records, dcfg)
	if err != nil {
		return dataframe.DataFrame{}, stats, fmt.Errorf("%s: %w", path, err)
	}
	if len(records) <= 1 {
		return dataframe.DataFrame{}, stats, fmt.Errorf("%s: %w", path, ErrEmptySource)
	}

	// 3. 构建DataFrame, 数值列解析失败为NA
	types := make(map[string]series.Type)
	for _, name := range records[0] {
		if numericColumns[name] {
			types[name] = series.Float
		}
	}
	df := dataframe.LoadRecords(records,
		dataframe.DetectTypes(false),
		dataframe.DefaultType(series.String),
		dataframe.WithTypes(types),
	)
	if df.Err != nil {
		return dataframe.DataFrame{}, stats, fmt.Errorf("构建航班表失败: %w", df.Err)
	}
	stats.RawRows = df.Nrow()

	// 4. 清洗与派生列
	df = cleanFlights(df, &stats)
	df = DeriveColumns(df)
	stats.Kept = df.Nrow()
	return df, stats, nil
}

// readDelimited 按行读取逗号分隔文件, 仅读取前 rowLimit 行数据
func readDelimited(path string, rowLimit int) ([][]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("打开文件失败: %w", err)
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.FieldsPerRecord = -1
	r.LazyQuotes = true

	header, err := r.Read()
	if err == io.EOF {
		return nil, fmt.Errorf("%s: %w", path, ErrEmptySource)
	}
	if err != nil {
		return nil, fmt.Errorf("读取表头失败: %w", err)
	}
	header[0] = strings.TrimPrefix(header[0], "\ufeff")

	records := [][]string{header}
	for rowLimit <= 0 || len(records)-1 < rowLimit {
		row, err := r.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("读取第%d行失败: %w", len(records), err)
		}
		records = append(records, fitRow(row, len(header)))
	}
	return records, nil
}

// readSheet 读取xlsx工作表, headerRow 之前的行忽略
func readSheet(path, sheetName string, headerRow, rowLimit int) ([][]string, error) {
	// 1. 使用tealeg/xlsx打开Excel文件
	xlFile, err := xlsx.OpenFile(path)
	if err != nil {
		return nil, fmt.Errorf("xlsx open file false: %w", err)
	}
	if len(xlFile.Sheets) == 0 {
		return nil, fmt.Errorf("excel文件中没有工作表: %s", path)
	}

	// 2. 定位工作表
	sheet := xlFile.Sheets[0]
	if sheetName != "" {
		s, ok := xlFile.Sheet[sheetName]
		if !ok {
			return nil, fmt.Errorf("工作表 %s 不存在", sheetName)
		}
		sheet = s
	}
	if len(sheet.Rows) <= headerRow {
		return nil, fmt.Errorf("%s: %w", path, ErrEmptySource)
	}

	// 3. 标题行 + 数据行
	var header []string
	for _, cell := range sheet.Rows[headerRow].Cells {
		header = append(header, strings.TrimSpace(cell.Value))
	}
	records := [][]string{header}
	for _, row := range sheet.Rows[headerRow+1:] {
		if rowLimit > 0 && len(records)-1 >= rowLimit {
			break
		}
		if row == nil {
			continue
		}
		values := make([]string, 0, len(row.Cells))
		for _, cell := range row.Cells {
			values = append(values, cell.Value)
		}
		records = append(records, fitRow(values, len(header)))
	}
	return records, nil
}

// fitRow 补齐或截断到表头长度
func fitRow(row []string, n int) []string {
	if len(row) == n {
		return row
	}
	out := make([]string, n)
	copy(out, row)
	return out
}

// canonicalize 只保留能映射到标准列名的列
func canonicalize(records [][]string, dcfg *config.DataConfig) ([][]string, error) {
	if len(records) == 0 {
		return nil, ErrEmptySource
	}
	toCanonical := dcfg.SourceToCanonical()

	var (
		keep  []int
		names []string
	)
	for i, h := range records[0] {
		name, ok := toCanonical[strings.TrimSpace(h)]
		if !ok || utils.Contains(names, name) {
			continue
		}
		keep = append(keep, i)
		names = append(names, name)
	}

	var missing []string
	for _, col := range requiredColumns {
		if !utils.Contains(names, col) {
			if src := dcfg.GetColumn(col); src != col {
				col = fmt.Sprintf("%s(表头 %s)", col, src)
			}
			missing = append(missing, col)
		}
	}
	if len(missing) > 0 {
		return nil, fmt.Errorf("%w: %s", ErrMissingColumn, strings.Join(missing, ", "))
	}

	out := make([][]string, len(records))
	out[0] = names
	for r := 1; r < len(records); r++ {
		row := make([]string, len(keep))
		for j, idx := range keep {
			row[j] = strings.TrimSpace(records[r][idx])
		}
		out[r] = row
	}
	return out, nil
}

// cleanFlights 剔除取消/备降航班及关键字段缺失的记录
func cleanFlights(df dataframe.DataFrame, stats *LoadStats) dataframe.DataFrame {
	isZero := func(el series.Element) bool {
		return !el.IsNA() && el.Float() == 0
	}
	notNA := func(el series.Element) bool {
		return !el.IsNA()
	}

	// 1. 取消航班
	if utils.HasColumn(df, utils.ColCancelled) {
		before := df.Nrow()
		df = filterRows(df, dataframe.F{Colname: utils.ColCancelled, Comparator: series.CompFunc, Comparando: isZero})
		stats.Cancelled = before - df.Nrow()
	}

	// 2. 备降航班
	if utils.HasColumn(df, utils.ColDiverted) {
		before := df.Nrow()
		df = filterRows(df, dataframe.F{Colname: utils.ColDiverted, Comparator: series.CompFunc, Comparando: isZero})
		stats.Diverted = before - df.Nrow()
	}

	// 3. 到达延误/计划起飞缺失
	before := df.Nrow()
	df = filterRows(df,
		dataframe.F{Colname: utils.ColArrDelay, Comparator: series.CompFunc, Comparando: notNA},
		dataframe.F{Colname: utils.ColSchedDep, Comparator: series.CompFunc, Comparando: notNA},
	)
	stats.Incomplete = before - df.Nrow()
	return df
}

// filterRows 多个条件同时满足的行, 空表直接返回
func filterRows(df dataframe.DataFrame, filters ...dataframe.F) dataframe.DataFrame {
	if df.Nrow() == 0 {
		return df
	}
	return df.FilterAggregation(dataframe.And, filters...)
}

// DeriveColumns 添加 dep_hour 及延误标记列
// 天气/晚到飞机延误列不存在时不生成对应标记
func DeriveColumns(df dataframe.DataFrame) dataframe.DataFrame {
	n := df.Nrow()

	// 1. 计划起飞 HHMM -> 小时, 限制在 [0,23]
	sched := df.Col(utils.ColSchedDep).Float()
	hours := make([]int, n)
	for i, v := range sched {
		hours[i] = DepartureHour(v)
	}
	df = df.Mutate(series.New(hours, series.Int, utils.ColDepHour))

	// 2. 到达延误超过15分钟
	arr := df.Col(utils.ColArrDelay).Float()
	late := make([]bool, n)
	for i, v := range arr {
		late[i] = v > utils.LateThreshold
	}
	df = df.Mutate(series.New(late, series.Bool, utils.ColLate15))

	// 3. 原因标记, NA 视为 0
	flags := map[string]string{
		utils.ColWeather: utils.ColHasWeather,
		utils.ColLateAir: utils.ColHasLateAir,
	}
	for _, src := range []string{utils.ColWeather, utils.ColLateAir} {
		if !utils.HasColumn(df, src) {
			continue
		}
		vals := df.Col(src).Float()
		flag := make([]bool, n)
		for i, v := range vals {
			flag[i] = !math.IsNaN(v) && v > 0
		}
		df = df.Mutate(series.New(flag, series.Bool, flags[src]))
	}
	return df
}

// DepartureHour HHMM 整除100后限制在 [0,23]
func DepartureHour(hhmm float64) int {
	if math.IsNaN(hhmm) || hhmm < 0 {
		return 0
	}
	h := int(math.Floor(hhmm / 100))
	if h > utils.MaxDepHour {
		return utils.MaxDepHour
	}
	return h
}

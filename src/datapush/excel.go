package datapush

import (
	"fmt"
	"os"
	"path/filepath"

	"FlightDelayInsight/src/processor"
	"FlightDelayInsight/src/utils"

	"github.com/go-gota/gota/dataframe"
	"github.com/go-gota/gota/series"
	"github.com/xuri/excelize/v2"
)

// Excel 报表的sheet名
const (
	SheetSummary  = "Summary"
	SheetHourly   = "Hourly"
	SheetGrouped  = "Grouped"
	SheetAirlines = "Airlines"
	SheetAirports = "Airports"
	SheetHubs     = "Hubs"
	SheetRoutes   = "Routes"
)

type sheet struct {
	name string
	df   dataframe.DataFrame
}

// WriteWorkbook 将报表写入一个xlsx, 每张表一个sheet
func WriteWorkbook(path string, r processor.Report, description string, airlines, airports processor.Labeler) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("创建输出目录失败: %w", err)
	}

	f := excelize.NewFile()
	defer f.Close()

	sheets := []sheet{
		{SheetSummary, summaryFrame(SummaryRows(r, description))},
		{SheetHourly, processor.SummaryFrame(r.Hourly, processor.GroupHour)},
	}
	if r.Params.GroupBy != "" && r.Params.GroupBy != processor.GroupHour {
		sheets = append(sheets, sheet{SheetGrouped, processor.SummaryFrame(r.Grouped, r.Params.GroupBy)})
	}
	sheets = append(sheets,
		sheet{SheetAirlines, withNames(processor.SummaryFrame(r.Airlines, processor.GroupCarrier), string(processor.GroupCarrier), airlines)},
		sheet{SheetAirports, withNames(processor.SummaryFrame(r.Airports, processor.GroupOrigin), string(processor.GroupOrigin), airports)},
		sheet{SheetHubs, hubFrame(r, airports)},
		sheet{SheetRoutes, processor.SummaryFrame(r.Routes, processor.GroupRoute)},
	)

	for _, s := range sheets {
		if s.df.Err != nil {
			return fmt.Errorf("生成 %s 表失败: %w", s.name, s.df.Err)
		}
		if err := utils.WriteFrameSheet(f, s.name, s.df); err != nil {
			return err
		}
	}

	// 新建文件自带的 Sheet1
	if err := f.DeleteSheet("Sheet1"); err != nil {
		return fmt.Errorf("删除默认sheet失败: %w", err)
	}
	if idx, err := f.GetSheetIndex(SheetSummary); err == nil {
		f.SetActiveSheet(idx)
	}
	_ = f.SetColWidth(SheetSummary, "A", "A", 28)
	_ = f.SetColWidth(SheetSummary, "B", "B", 80)

	if err := f.SaveAs(path); err != nil {
		return fmt.Errorf("保存Excel文件失败: %w", err)
	}
	return nil
}

func summaryFrame(rows [][]string) dataframe.DataFrame {
	metrics := make([]string, len(rows))
	values := make([]string, len(rows))
	for i, row := range rows {
		metrics[i] = row[0]
		values[i] = row[1]
	}
	return dataframe.New(
		series.New(metrics, series.String, "metric"),
		series.New(values, series.String, "value"),
	)
}

// withNames 在代码列后追加名称列
func withNames(df dataframe.DataFrame, keyCol string, labeler processor.Labeler) dataframe.DataFrame {
	if labeler == nil || df.Err != nil || !utils.HasColumn(df, keyCol) {
		return df
	}
	codes := df.Col(keyCol).Records()
	names := make([]string, len(codes))
	for i, code := range codes {
		names[i] = labeler.Label(code)
	}
	return df.Mutate(series.New(names, series.String, "name"))
}

// hubFrame 枢纽机场表, 带 is_hub 标记
func hubFrame(r processor.Report, airports processor.Labeler) dataframe.DataFrame {
	df := withNames(processor.SummaryFrame(r.HubAirports, processor.GroupOrigin), string(processor.GroupOrigin), airports)
	if df.Err != nil {
		return df
	}
	flags := make([]bool, len(r.HubAirports))
	for i, g := range r.HubAirports {
		flags[i] = utils.Contains(r.Hub.Hubs, g.Key)
	}
	return df.Mutate(series.New(flags, series.Bool, utils.ColIsHub))
}

package datapush

import (
	"fmt"
	"os"
	"path/filepath"

	"FlightDelayInsight/src/processor"

	"github.com/go-gota/gota/dataframe"
)

// 导出的csv文件名
const (
	FlightsCSV = "flights_filtered.csv"
	HourlyCSV  = "hourly_summary_filtered.csv"
	RoutesCSV  = "top_routes_filtered.csv"
)

// WriteCSVs 导出当前子集明细、小时汇总和航线排行, 返回写入的文件
func WriteCSVs(dir string, r processor.Report) ([]string, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("创建输出目录失败: %w", err)
	}

	exports := []sheet{
		{FlightsCSV, r.Flights},
		{HourlyCSV, processor.SummaryFrame(r.Hourly, processor.GroupHour)},
		{RoutesCSV, processor.SummaryFrame(r.Routes, processor.GroupRoute)},
	}

	var written []string
	for _, e := range exports {
		if e.df.Err != nil {
			return written, fmt.Errorf("生成 %s 失败: %w", e.name, e.df.Err)
		}
		path := filepath.Join(dir, e.name)
		if err := writeCSV(path, e.df); err != nil {
			return written, err
		}
		written = append(written, path)
	}
	return written, nil
}

func writeCSV(path string, df dataframe.DataFrame) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("创建文件 %s 失败: %w", path, err)
	}
	if err := df.WriteCSV(f); err != nil {
		f.Close()
		return fmt.Errorf("写入 %s 失败: %w", path, err)
	}
	return f.Close()
}

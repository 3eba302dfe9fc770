package main

import (
	"flag"
	"fmt"
	"io"
	"strconv"
	"strings"

	"FlightDelayInsight/src/config"
	"FlightDelayInsight/src/processor"
)

// options 命令行参数, 未指定的项使用配置文件
type options struct {
	configDir    string
	configFile   string
	dataConfig   string
	months       string
	carriers     string
	origins      string
	destinations string
	groupBy      string
	winsor       float64
	rows         int
	excel        string
	csv          bool
	charts       bool
	quiet        bool
}

func newFlagSet(name string, out io.Writer) (*flag.FlagSet, *options) {
	o := &options{}
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	fs.SetOutput(out)
	fs.StringVar(&o.configDir, "config", "./config", "配置文件目录")
	fs.StringVar(&o.configFile, "config-file", "config.json", "配置文件名")
	fs.StringVar(&o.dataConfig, "data-config", "dataconfig.json", "列映射配置文件名")
	fs.StringVar(&o.months, "months", "", "月份, 逗号分隔, 如 1,2,12")
	fs.StringVar(&o.carriers, "carriers", "", "航司代码, 逗号分隔")
	fs.StringVar(&o.origins, "origins", "", "出发机场代码, 逗号分隔")
	fs.StringVar(&o.destinations, "destinations", "", "到达机场代码, 逗号分隔")
	fs.StringVar(&o.groupBy, "group", "", "分组维度: hour|carrier|origin|destination|hub|route")
	fs.Float64Var(&o.winsor, "winsor", -1, "缩尾百分位 p (0-10), 负数表示使用配置")
	fs.IntVar(&o.rows, "rows", -1, "最多读取的行数, 0 表示全部, 负数表示使用配置")
	fs.StringVar(&o.excel, "excel", "", "报表xlsx文件名")
	fs.BoolVar(&o.csv, "csv", false, "导出csv")
	fs.BoolVar(&o.charts, "charts", false, "输出图表")
	fs.BoolVar(&o.quiet, "quiet", false, "不在终端输出报表")
	return fs, o
}

// apply 命令行覆盖配置
func (o *options) apply(cfg *config.Config) (processor.Params, error) {
	if o.rows >= 0 {
		cfg.RowLimit = o.rows
	}
	if o.winsor >= 0 {
		cfg.Analysis.WinsorPct = o.winsor
	}
	if o.groupBy != "" {
		cfg.Analysis.GroupBy = o.groupBy
	}
	if o.excel != "" {
		cfg.Output.Excel = o.excel
	}
	if o.csv {
		cfg.Output.CSV = true
	}
	if o.charts {
		cfg.Output.Charts = true
	}
	if err := cfg.Validate(); err != nil {
		return processor.Params{}, err
	}

	params, err := processor.ParamsFromConfig(cfg)
	if err != nil {
		return processor.Params{}, err
	}
	params.Selection, err = o.selection()
	if err != nil {
		return processor.Params{}, err
	}
	return params, nil
}

func (o *options) selection() (processor.Selection, error) {
	months, err := parseMonths(o.months)
	if err != nil {
		return processor.Selection{}, err
	}
	return processor.Selection{
		Months:       months,
		Carriers:     splitCodes(o.carriers),
		Origins:      splitCodes(o.origins),
		Destinations: splitCodes(o.destinations),
	}, nil
}

// splitCodes 逗号分隔, 去空白并转大写
func splitCodes(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		part = strings.ToUpper(strings.TrimSpace(part))
		if part != "" {
			out = append(out, part)
		}
	}
	return out
}

// parseMonths 月份需在 1-12
func parseMonths(s string) ([]int, error) {
	var months []int
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		m, err := strconv.Atoi(part)
		if err != nil || m < 1 || m > 12 {
			return nil, fmt.Errorf("无效的月份: %q", part)
		}
		months = append(months, m)
	}
	return months, nil
}

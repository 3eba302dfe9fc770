package service

import (
	"context"
	"fmt"
	"io"
	"path/filepath"
	"sync"
	"time"

	"FlightDelayInsight/src/config"
	"FlightDelayInsight/src/datapush"
	"FlightDelayInsight/src/datasource/file"
	"FlightDelayInsight/src/processor"
	"FlightDelayInsight/src/storage"

	"github.com/go-gota/gota/dataframe"
)

// Dashboard 串联 加载(带缓存) -> 分析 -> 输出
type Dashboard struct {
	cfg    *config.Config
	dcfg   *config.DataConfig
	logger *storage.Logger
	cache  *storage.TableCache
	caps   processor.Capabilities
	out    io.Writer

	refreshMu sync.Mutex // 串行化 Refresh, 避免同时写输出文件

	mu        sync.RWMutex
	airlines  file.Lookup
	airports  file.Lookup
	lastStats file.LoadStats
}

// New out 为控制台报表的输出, nil 时不输出
func New(cfg *config.Config, dcfg *config.DataConfig, logger *storage.Logger, out io.Writer) *Dashboard {
	d := &Dashboard{
		cfg:    cfg,
		dcfg:   dcfg,
		logger: logger,
		cache:  storage.NewTableCache(logger),
		caps:   processor.DetectCapabilities(cfg.Analysis.PValue),
		out:    out,
	}
	if !d.caps.PValue && cfg.Analysis.PValue {
		logger.Warning("F分布不可用, ANOVA 不输出p值")
	}
	d.LoadLookups()
	return d
}

// Cache 数据表缓存
func (d *Dashboard) Cache() *storage.TableCache { return d.cache }

// Capabilities 启动时探测到的统计能力
func (d *Dashboard) Capabilities() processor.Capabilities { return d.caps }

// LoadLookups 读取航司/机场代码表, 缺失时只显示代码
func (d *Dashboard) LoadLookups() {
	airlines, err := file.LoadLookup(d.cfg.AirlinesPath(), file.LookupCodeColumn, file.AirlineNameColumn)
	if err != nil {
		d.logger.Warning("航司代码表不可用: " + err.Error())
	}
	airports, err := file.LoadLookup(d.cfg.AirportsPath(), file.LookupCodeColumn, file.AirportNameColumn)
	if err != nil {
		d.logger.Warning("机场代码表不可用: " + err.Error())
	}

	d.mu.Lock()
	d.airlines, d.airports = airlines, airports
	d.mu.Unlock()
}

func (d *Dashboard) lookups() (file.Lookup, file.Lookup) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.airlines, d.airports
}

// LastStats 最近一次从文件加载时的清洗统计
func (d *Dashboard) LastStats() file.LoadStats {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.lastStats
}

// flightsPath 缓存键统一使用绝对路径, 与文件监控上报的路径一致
func (d *Dashboard) flightsPath() string {
	return absPath(d.cfg.FlightsPath())
}

// Flights 返回清洗后的航班表, 文件缺失且配置了下载地址时先下载
func (d *Dashboard) Flights(ctx context.Context) (dataframe.DataFrame, error) {
	path := d.flightsPath()
	if d.cfg.FlightsURL != "" {
		downloaded, err := file.EnsureFlightsFile(ctx, d.cfg.FlightsURL, path)
		if err != nil {
			return dataframe.DataFrame{}, err
		}
		if downloaded {
			d.logger.Info("已下载航班文件: " + path)
		}
	}
	return d.cache.Get(storage.CacheKey{Path: path, RowLimit: d.cfg.RowLimit}, d.load)
}

func (d *Dashboard) load(key storage.CacheKey) (dataframe.DataFrame, error) {
	t1 := time.Now()
	df, stats, err := file.LoadFlights(key.Path, key.RowLimit, d.dcfg, d.cfg.SheetName)
	if err != nil {
		return df, err
	}
	d.mu.Lock()
	d.lastStats = stats
	d.mu.Unlock()

	d.logger.Info(fmt.Sprintf("加载航班 %s: 原始%d行, 取消%d, 备降%d, 缺失%d, 保留%d (耗时%v)",
		filepath.Base(key.Path), stats.RawRows, stats.Cancelled, stats.Diverted, stats.Incomplete, stats.Kept, time.Since(t1)))
	return df, nil
}

// Run 加载并分析
func (d *Dashboard) Run(ctx context.Context, params processor.Params) (processor.Report, error) {
	df, err := d.Flights(ctx)
	if err != nil {
		return processor.Report{}, err
	}

	t1 := time.Now()
	report := processor.Analyze(df, params, d.caps)
	d.logger.Info(fmt.Sprintf("分析完成: 过滤后%d行 (耗时%v)", report.RowsFiltered, time.Since(t1)))
	for _, w := range report.Warnings {
		d.logger.Warning(w)
	}
	return report, nil
}

// Describe 当前过滤条件的可读描述
func (d *Dashboard) Describe(sel processor.Selection) string {
	airlines, airports := d.lookups()
	return processor.Describe(sel, airlines, airports)
}

// Publish 按配置输出控制台报表、xlsx、csv 和图表, 返回写入的文件
func (d *Dashboard) Publish(r processor.Report) ([]string, error) {
	airlines, airports := d.lookups()
	description := processor.Describe(r.Params.Selection, airlines, airports)

	if d.out != nil {
		datapush.NewConsole(d.out, airlines, airports).Render(r, description)
	}

	var written []string
	if d.cfg.Output.Excel != "" {
		path := filepath.Join(d.cfg.Output.Dir, d.cfg.Output.Excel)
		if err := datapush.WriteWorkbook(path, r, description, airlines, airports); err != nil {
			return written, err
		}
		written = append(written, path)
	}
	if d.cfg.Output.CSV {
		files, err := datapush.WriteCSVs(d.cfg.Output.Dir, r)
		written = append(written, files...)
		if err != nil {
			return written, err
		}
	}
	if d.cfg.Output.Charts {
		files, err := datapush.RenderCharts(d.cfg.Output.Dir, r)
		written = append(written, files...)
		if err != nil {
			return written, err
		}
	}

	for _, f := range written {
		d.logger.Debug("已输出: " + f)
	}
	return written, nil
}

// Refresh Run + Publish, 供定时任务和文件变化时调用
func (d *Dashboard) Refresh(ctx context.Context, params processor.Params) error {
	d.refreshMu.Lock()
	defer d.refreshMu.Unlock()

	report, err := d.Run(ctx, params)
	if err != nil {
		return err
	}
	_, err = d.Publish(report)
	return err
}

// FileChanged 数据目录中文件变化: 航班文件使缓存失效, 代码表重新读取
// 返回是否需要刷新报表
func (d *Dashboard) FileChanged(path string) bool {
	abs := absPath(path)
	switch abs {
	case d.flightsPath():
		d.cache.Invalidate(abs)
		return true
	case absPath(d.cfg.AirlinesPath()), absPath(d.cfg.AirportsPath()):
		d.logger.Info("代码表已变化, 重新读取: " + abs)
		d.LoadLookups()
		return true
	}
	return false
}

func absPath(p string) string {
	if abs, err := filepath.Abs(p); err == nil {
		return abs
	}
	return p
}

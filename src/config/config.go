package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/joho/godotenv"
)

// Config 结构体定义了应用程序的配置结构
type Config struct {
	DataDir      string `json:"data_dir"`      // 数据文件目录
	FlightsFile  string `json:"flights_file"`  // 航班明细文件(csv/xlsx)
	AirlinesFile string `json:"airlines_file"` // 航司代码表
	AirportsFile string `json:"airports_file"` // 机场代码表
	FlightsURL   string `json:"flights_url"`   // 航班文件缺失时的下载地址
	SheetName    string `json:"sheet_name"`    // xlsx数据源的工作表
	RowLimit     int    `json:"row_limit"`     // 读取的最大行数, 0 表示全部
	LogName      string `json:"log_name"`
	LogMaxSize   string `json:"log_max_size"`
	LogLevel     string `json:"log_level"` // DEBUG/INFO/WARNING/ERROR/FATAL

	Analysis struct {
		WinsorPct          float64 `json:"winsor_pct"`            // 缩尾百分位 p (0-10)
		HubQuantile        float64 `json:"hub_quantile"`          // 枢纽分位数
		MinFlightsAirline  int     `json:"min_flights_airline"`   // 航司排行最少航班数
		MinFlightsAirport  int     `json:"min_flights_airport"`   // 机场排行最少航班数
		MinFlightsRoute    int     `json:"min_flights_route"`     // 航线排行最少航班数
		MinFlightsHubTable int     `json:"min_flights_hub_table"` // 枢纽表最少航班数
		TopN               int     `json:"top_n"`
		PValue             bool    `json:"p_value"`   // 是否计算ANOVA p值
		GroupBy            string  `json:"group_by"` // 默认分组维度
	} `json:"analysis"`

	Output struct {
		Dir    string `json:"dir"`
		Excel  string `json:"excel"` // 报表xlsx文件名, 为空则不导出
		CSV    bool   `json:"csv"`
		Charts bool   `json:"charts"`
	} `json:"output"`

	Watch struct {
		RefreshInterval Duration `json:"refresh_interval"` // 定时刷新间隔
		PidFile         string   `json:"pid_file"`
	} `json:"watch"`
}

// 配置文件未给出时的默认值
const (
	DefaultFlightsURL = "https://github.com/jellevanwees/individuele-opdracht-Jelle-van-Wees/releases/download/v1.0/flights.csv"
	DefaultWinsorPct  = 1.0
)

// DataConfig 数据列映射配置
type DataConfig struct {
	Columns   map[string]string `json:"columns"`    // 标准列名 -> 源文件表头
	HeaderRow int               `json:"header_row"` // xlsx 标题行(从0开始)
}

var (
	once               sync.Once
	instance           *Config
	dataConfigInstance *DataConfig
	mu                 sync.RWMutex
)

// LoadConfig 加载配置(进程内只加载一次)
func LoadConfig(jsonFolder, jsonFile, dataJsonFile string) (*Config, *DataConfig, error) {
	var err error
	once.Do(func() {
		instance, dataConfigInstance, err = loadConfigs(jsonFolder, jsonFile, dataJsonFile)
	})
	return instance, dataConfigInstance, err
}

func loadConfigs(jsonFolder, jsonFile, dataJsonFile string) (*Config, *DataConfig, error) {
	configFile := filepath.Join(jsonFolder, jsonFile)
	dataConfigFile := filepath.Join(jsonFolder, dataJsonFile)

	// .env 可选, 不存在时忽略
	envFile := filepath.Join(jsonFolder, ".env")
	if err := godotenv.Load(envFile); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, nil, fmt.Errorf("读取.env失败: %w", err)
	}

	configData, err := readFile(configFile)
	if err != nil {
		return nil, nil, fmt.Errorf("读取配置文件失败: %w", err)
	}

	// 数据配置文件缺失时使用默认列映射
	dataConfigData, err := readFile(dataConfigFile)
	if err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			return nil, nil, fmt.Errorf("读取数据配置文件失败: %w", err)
		}
		dataConfigData = []byte("{}")
	}

	cfgChan := make(chan *Config, 1)
	dcfgChan := make(chan *DataConfig, 1)
	errChan := make(chan error, 2)

	go parseConfig(configData, cfgChan, errChan)
	go parseDataConfig(dataConfigData, dcfgChan, errChan)

	cfg, dcfg, err := waitForResults(cfgChan, dcfgChan, errChan)
	if err != nil {
		return nil, nil, err
	}

	if err := cfg.applyEnv(); err != nil {
		return nil, nil, err
	}
	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, nil, err
	}
	dcfg.applyEnv()
	if err := dcfg.Validate(); err != nil {
		return nil, nil, err
	}

	return cfg, dcfg, nil
}

func readFile(filePath string) ([]byte, error) {
	data, err := os.ReadFile(filePath)
	if err != nil {
		return nil, fmt.Errorf("无法读取文件 %s: %w", filePath, err)
	}
	return data, nil
}

func parseConfig(data []byte, resultChan chan<- *Config, errChan chan<- error) {
	var cfg Config
	// 以下默认值可被配置文件显式覆盖为空/0/false
	cfg.Analysis.PValue = true
	cfg.Analysis.WinsorPct = DefaultWinsorPct
	cfg.FlightsURL = DefaultFlightsURL
	if err := json.Unmarshal(data, &cfg); err != nil {
		errChan <- fmt.Errorf("解析Config失败: %w", err)
		return
	}
	resultChan <- &cfg
}

func parseDataConfig(data []byte, resultChan chan<- *DataConfig, errChan chan<- error) {
	dcfg := NewDataConfig()
	if err := json.Unmarshal(data, dcfg); err != nil {
		errChan <- fmt.Errorf("解析DataConfig失败: %w", err)
		return
	}
	resultChan <- dcfg
}

func waitForResults(
	cfgChan <-chan *Config,
	dcfgChan <-chan *DataConfig,
	errChan <-chan error,
) (*Config, *DataConfig, error) {
	var (
		cfg  *Config
		dcfg *DataConfig
		errs []error
	)

	for i := 0; i < 2; i++ {
		select {
		case c := <-cfgChan:
			cfg = c
		case d := <-dcfgChan:
			dcfg = d
		case err := <-errChan:
			errs = append(errs, err)
		}
	}

	if len(errs) > 0 {
		return nil, nil, combineErrors(errs)
	}

	if cfg == nil || dcfg == nil {
		return nil, nil, fmt.Errorf("部分配置未加载成功")
	}

	return cfg, dcfg, nil
}

func combineErrors(errs []error) error {
	if len(errs) == 0 {
		return nil
	}
	if len(errs) == 1 {
		return errs[0]
	}
	return fmt.Errorf("配置加载遇到多个错误: %w", errors.Join(errs...))
}

// applyEnv 环境变量覆盖配置项
func (c *Config) applyEnv() error {
	if v := os.Getenv("FLIGHTS_DATA_DIR"); v != "" {
		c.DataDir = v
	}
	if v := os.Getenv("FLIGHTS_URL"); v != "" {
		c.FlightsURL = v
	}
	if v := os.Getenv("FLIGHTS_LOG_LEVEL"); v != "" {
		c.LogLevel = v
	}
	if v := os.Getenv("FLIGHTS_ROW_LIMIT"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("FLIGHTS_ROW_LIMIT 不是整数: %w", err)
		}
		c.RowLimit = n
	}
	if v := os.Getenv("FLIGHTS_WINSOR_PCT"); v != "" {
		p, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return fmt.Errorf("FLIGHTS_WINSOR_PCT 不是数字: %w", err)
		}
		c.Analysis.WinsorPct = p
	}
	return nil
}

// ApplyDefaults 为未配置的字段填充默认值
func (c *Config) ApplyDefaults() {
	if c.DataDir == "" {
		c.DataDir = "./data"
	}
	if c.FlightsFile == "" {
		c.FlightsFile = "flights.csv"
	}
	if c.AirlinesFile == "" {
		c.AirlinesFile = "airlines.csv"
	}
	if c.AirportsFile == "" {
		c.AirportsFile = "airports.csv"
	}
	if c.LogName == "" {
		c.LogName = "app.log"
	}
	if c.LogLevel == "" {
		c.LogLevel = "INFO"
	}
	if c.LogMaxSize == "" {
		c.LogMaxSize = "10 * 1024 * 1024"
	}
	if c.Analysis.HubQuantile == 0 {
		c.Analysis.HubQuantile = 0.8
	}
	if c.Analysis.MinFlightsAirline == 0 {
		c.Analysis.MinFlightsAirline = 500
	}
	if c.Analysis.MinFlightsAirport == 0 {
		c.Analysis.MinFlightsAirport = 800
	}
	if c.Analysis.MinFlightsRoute == 0 {
		c.Analysis.MinFlightsRoute = 100
	}
	if c.Analysis.MinFlightsHubTable == 0 {
		c.Analysis.MinFlightsHubTable = 500
	}
	if c.Analysis.TopN == 0 {
		c.Analysis.TopN = 15
	}
	if c.Analysis.GroupBy == "" {
		c.Analysis.GroupBy = "hour"
	}
	if c.Output.Dir == "" {
		c.Output.Dir = "./output"
	}
	if c.Watch.RefreshInterval == 0 {
		c.Watch.RefreshInterval = Duration(10 * time.Minute)
	}
	if c.Watch.PidFile == "" {
		c.Watch.PidFile = "dashboard.pid"
	}
}

// Validate 校验配置取值范围
func (c *Config) Validate() error {
	if c.RowLimit < 0 {
		return fmt.Errorf("row_limit 不能为负数: %d", c.RowLimit)
	}
	if c.Analysis.WinsorPct < 0 || c.Analysis.WinsorPct > 10 {
		return fmt.Errorf("winsor_pct 超出范围[0,10]: %v", c.Analysis.WinsorPct)
	}
	if c.Analysis.HubQuantile <= 0 || c.Analysis.HubQuantile > 1 {
		return fmt.Errorf("hub_quantile 超出范围(0,1]: %v", c.Analysis.HubQuantile)
	}
	return nil
}

// FlightsPath 航班文件完整路径
func (c *Config) FlightsPath() string { return filepath.Join(c.DataDir, c.FlightsFile) }

// AirlinesPath 航司代码表完整路径
func (c *Config) AirlinesPath() string { return filepath.Join(c.DataDir, c.AirlinesFile) }

// AirportsPath 机场代码表完整路径
func (c *Config) AirportsPath() string { return filepath.Join(c.DataDir, c.AirportsFile) }

// Duration 是time.Duration的自定义包装类型
// 用于支持JSON序列化和反序列化
type Duration time.Duration

// UnmarshalJSON 实现json.Unmarshaler接口
// 用于从JSON字符串解析Duration
func (d *Duration) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	dur, err := time.ParseDuration(s)
	if err != nil {
		return err
	}
	*d = Duration(dur)
	return nil
}

// MarshalJSON 实现json.Marshaler接口
// 用于将Duration序列化为JSON字符串
func (d Duration) MarshalJSON() ([]byte, error) {
	return json.Marshal(time.Duration(d).String())
}

// NewDataConfig 返回带默认列映射的数据配置
func NewDataConfig() *DataConfig {
	cols := make(map[string]string, len(defaultColumns))
	for k, v := range defaultColumns {
		cols[k] = v
	}
	return &DataConfig{Columns: cols}
}

// 2015 美国航班数据集的原始表头
var defaultColumns = map[string]string{
	"MONTH":               "MONTH",
	"DAY_OF_WEEK":         "DAY_OF_WEEK",
	"AIRLINE":             "AIRLINE",
	"ORIGIN_AIRPORT":      "ORIGIN_AIRPORT",
	"DESTINATION_AIRPORT": "DESTINATION_AIRPORT",
	"SCHEDULED_DEPARTURE": "SCHEDULED_DEPARTURE",
	"DEPARTURE_DELAY":     "DEPARTURE_DELAY",
	"ARRIVAL_DELAY":       "ARRIVAL_DELAY",
	"WEATHER_DELAY":       "WEATHER_DELAY",
	"LATE_AIRCRAFT_DELAY": "LATE_AIRCRAFT_DELAY",
	"CANCELLED":           "CANCELLED",
	"DIVERTED":            "DIVERTED",
}

// GetColumn 返回标准列对应的源表头, 未配置时返回标准列名本身
func (dc *DataConfig) GetColumn(colName string) string {
	mu.RLock()
	defer mu.RUnlock()
	if v, ok := dc.Columns[colName]; ok && v != "" {
		return v
	}
	return colName
}

func (dc *DataConfig) SetColumn(colName, value string) {
	mu.Lock()
	defer mu.Unlock()
	if dc.Columns == nil {
		dc.Columns = make(map[string]string)
	}
	dc.Columns[colName] = value
}

// applyEnv FLIGHTS_COLUMN_<标准列名> 覆盖列映射, 如 FLIGHTS_COLUMN_ARRIVAL_DELAY=ARR_DELAY
func (dc *DataConfig) applyEnv() {
	for canonical := range defaultColumns {
		if v := os.Getenv("FLIGHTS_COLUMN_" + canonical); v != "" {
			dc.SetColumn(canonical, v)
		}
	}
}

// Validate 不同标准列不能映射到同一个源表头
func (dc *DataConfig) Validate() error {
	mu.RLock()
	defer mu.RUnlock()
	if dc.HeaderRow < 0 {
		return fmt.Errorf("header_row 不能为负数: %d", dc.HeaderRow)
	}
	seen := make(map[string]string, len(dc.Columns))
	for canonical, source := range dc.Columns {
		source = strings.TrimSpace(source)
		if source == "" {
			continue
		}
		if other, ok := seen[source]; ok {
			a, b := other, canonical
			if a > b {
				a, b = b, a
			}
			return fmt.Errorf("列 %s 和 %s 映射到同一个源表头 %q", a, b, source)
		}
		seen[source] = canonical
	}
	return nil
}

// SourceToCanonical 源表头 -> 标准列名
func (dc *DataConfig) SourceToCanonical() map[string]string {
	mu.RLock()
	defer mu.RUnlock()
	out := make(map[string]string, len(dc.Columns))
	for canonical, source := range dc.Columns {
		if source == "" {
			continue
		}
		out[source] = canonical
	}
	return out
}

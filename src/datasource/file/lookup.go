package file

import (
	"fmt"
	"os"
	"strings"

	"FlightDelayInsight/src/utils"

	"github.com/go-gota/gota/dataframe"
	"github.com/go-gota/gota/series"
)

// 代码表的默认列名
const (
	LookupCodeColumn  = "IATA_CODE"
	AirlineNameColumn = "AIRLINE"
	AirportNameColumn = "AIRPORT"
)

// Lookup 代码 -> 名称
type Lookup struct {
	names map[string]string
}

// NewLookup 由现成的映射创建
func NewLookup(names map[string]string) Lookup {
	return Lookup{names: names}
}

// LoadLookup 读取代码表csv
// 参数:
//
//	codeCol: 代码列, 如 IATA_CODE
//	nameCol: 名称列, 如 AIRLINE / AIRPORT
func LoadLookup(path, codeCol, nameCol string) (Lookup, error) {
	f, err := os.Open(path)
	if err != nil {
		return Lookup{}, fmt.Errorf("打开代码表失败: %w", err)
	}
	defer f.Close()

	df := dataframe.ReadCSV(f,
		dataframe.DetectTypes(false),
		dataframe.DefaultType(series.String),
		dataframe.WithLazyQuotes(true),
	)
	if df.Err != nil {
		return Lookup{}, fmt.Errorf("解析代码表 %s 失败: %w", path, df.Err)
	}
	for _, col := range []string{codeCol, nameCol} {
		if !utils.HasColumn(df, col) {
			return Lookup{}, fmt.Errorf("%s: %w: %s", path, ErrMissingColumn, col)
		}
	}

	codes := df.Col(codeCol).Records()
	labels := df.Col(nameCol).Records()
	names := make(map[string]string, len(codes))
	for i, code := range codes {
		code = strings.TrimSpace(code)
		if code == "" {
			continue
		}
		names[code] = strings.TrimSpace(labels[i])
	}
	return Lookup{names: names}, nil
}

// Name 查不到时返回代码本身
func (l Lookup) Name(code string) string {
	if name, ok := l.names[code]; ok && name != "" {
		return name
	}
	return code
}

// Label 形如 "AA - American Airlines Inc."
func (l Lookup) Label(code string) string {
	name := l.Name(code)
	if name == code {
		return code
	}
	return code + " - " + name
}

// Len 代码数量
func (l Lookup) Len() int {
	return len(l.names)
}

package storage

import (
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/go-gota/gota/dataframe"
)

// CacheKey 缓存键: 文件路径 + 行数上限
type CacheKey struct {
	Path     string
	RowLimit int
}

// fileIdentity 文件身份(修改时间+大小), 变化即视为新文件
type fileIdentity struct {
	modTime time.Time
	size    int64
}

type cacheEntry struct {
	identity fileIdentity
	table    dataframe.DataFrame
}

// LoadFunc 缓存未命中时的加载函数
type LoadFunc func(key CacheKey) (dataframe.DataFrame, error)

// TableCache 已加载航班表的缓存
type TableCache struct {
	mu      sync.Mutex
	entries map[CacheKey]cacheEntry
	logger  *Logger
}

// NewTableCache 创建缓存, logger 可为 nil
func NewTableCache(logger *Logger) *TableCache {
	return &TableCache{
		entries: make(map[CacheKey]cacheEntry),
		logger:  logger,
	}
}

// Get 返回缓存的数据表, 文件变化或未命中时调用 load 重新加载
// 同一路径切换行数上限时, 其它上限的缓存会被移除
func (c *TableCache) Get(key CacheKey, load LoadFunc) (dataframe.DataFrame, error) {
	identity, err := statIdentity(key.Path)
	if err != nil {
		return dataframe.DataFrame{}, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if entry, ok := c.entries[key]; ok {
		if entry.identity == identity {
			c.log(DEBUG, fmt.Sprintf("缓存命中: %s (limit=%d)", key.Path, key.RowLimit))
			return entry.table, nil
		}
		c.log(INFO, fmt.Sprintf("文件已变化, 重新加载: %s", key.Path))
		delete(c.entries, key)
	}

	// 1. 移除同一文件其它行数上限的缓存
	for k := range c.entries {
		if k.Path == key.Path && k.RowLimit != key.RowLimit {
			delete(c.entries, k)
		}
	}

	// 2. 加载并写入缓存
	c.log(DEBUG, fmt.Sprintf("缓存未命中: %s (limit=%d)", key.Path, key.RowLimit))
	table, err := load(key)
	if err != nil {
		return dataframe.DataFrame{}, err
	}
	c.entries[key] = cacheEntry{identity: identity, table: table}
	return table, nil
}

// Invalidate 移除指定文件的全部缓存
func (c *TableCache) Invalidate(path string) int {
	c.mu.Lock()
	defer c.mu.Unlock()

	removed := 0
	for k := range c.entries {
		if k.Path == path {
			delete(c.entries, k)
			removed++
		}
	}
	if removed > 0 {
		c.log(INFO, fmt.Sprintf("缓存失效: %s (%d项)", path, removed))
	}
	return removed
}

// Purge 清空缓存
func (c *TableCache) Purge() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = make(map[CacheKey]cacheEntry)
	c.log(INFO, "缓存已清空")
}

// Len 当前缓存条目数
func (c *TableCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

func (c *TableCache) log(level LogLevel, msg string) {
	if c.logger != nil {
		c.logger.Log(level, msg)
	}
}

func statIdentity(path string) (fileIdentity, error) {
	info, err := os.Stat(path)
	if err != nil {
		return fileIdentity{}, fmt.Errorf("无法读取文件信息 %s: %w", path, err)
	}
	return fileIdentity{modTime: info.ModTime(), size: info.Size()}, nil
}

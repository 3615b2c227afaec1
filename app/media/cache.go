package media

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/patrickmn/go-cache"
)

// CachedInspector 为检测结果加一层内存缓存，本地文件按大小和修改时间区分版本
type CachedInspector struct {
	next  Inspector
	cache *cache.Cache
}

// NewCachedInspector 创建带缓存的检测器
func NewCachedInspector(next Inspector, ttl time.Duration) *CachedInspector {
	if ttl <= 0 {
		ttl = 10 * time.Minute
	}
	return &CachedInspector{
		next:  next,
		cache: cache.New(ttl, 2*ttl),
	}
}

// Inspect 命中缓存时直接返回，否则调用下层检测器并缓存成功结果
func (c *CachedInspector) Inspect(ctx context.Context, locator string) (Info, error) {
	key := cacheKey(locator)
	if cached, found := c.cache.Get(key); found {
		return cached.(Info), nil
	}

	info, err := c.next.Inspect(ctx, locator)
	if err != nil {
		return Info{}, err
	}

	c.cache.Set(key, info, cache.DefaultExpiration)
	return info, nil
}

func cacheKey(locator string) string {
	stat, err := os.Stat(locator)
	if err != nil {
		return locator
	}
	return fmt.Sprintf("%s|%d|%d", locator, stat.Size(), stat.ModTime().UnixNano())
}

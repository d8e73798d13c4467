package service

import (
	"context"
	"crypto/md5"
	"encoding/hex"
	"encoding/json"
	"time"

	"sashosting/plane/internal/db/cache"
	"sashosting/plane/internal/metrics"

	"go.uber.org/zap"
)

/* 响应缓存键与有效期 */
const (
	KeyPluginList      = "sas_api_plugin_list"
	KeyThemeList       = "sas_api_theme_list"
	KeyCoreList        = "sas_api_core_list"
	KeySiteHealth      = "sas_api_site_health_status"
	PrefixPagesList    = "sas_api_pages_list_"
	PrefixPostsList    = "sas_api_posts_list_"
	TTLInventory       = 5 * time.Minute
	TTLSiteHealth      = 10 * time.Minute
	TTLContentListings = 5 * time.Minute
)

/*
ResponseCache 响应缓存
功能：缓存的是序列化后的完整响应字节，命中时原样返回，不会出现部分过期的数据
*/
type ResponseCache struct {
	store  cache.Store
	logger *zap.Logger
}

/* NewResponseCache 创建响应缓存 */
func NewResponseCache(store cache.Store) *ResponseCache {
	return &ResponseCache{
		store:  store,
		logger: zap.L().Named("resp-cache"),
	}
}

/*
ParamKey 以参数序列化结果的 md5 生成缓存键
示例：ParamKey(PrefixPagesList, id, page, perPage)
*/
func ParamKey(prefix string, params ...any) string {
	b, _ := json.Marshal(params)
	sum := md5.Sum(b)
	return prefix + hex.EncodeToString(sum[:])
}

/*
Remember 读取缓存，未命中时计算并写入
功能：compute 返回的值经 JSON 序列化后存储；计算出错时不写缓存。
读取失败视为未命中，写入失败只记录日志。
*/
func (c *ResponseCache) Remember(ctx context.Context, endpoint, key string, ttl time.Duration, compute func(ctx context.Context) (any, error)) ([]byte, error) {
	raw, ok, err := c.store.Get(ctx, key)
	if err != nil {
		c.logger.Warn("读取响应缓存失败", zap.String("key", key), zap.Error(err))
	}
	if ok {
		metrics.ResponseCache.WithLabelValues(endpoint, "hit").Inc()
		return raw, nil
	}
	metrics.ResponseCache.WithLabelValues(endpoint, "miss").Inc()

	v, err := compute(ctx)
	if err != nil {
		return nil, err
	}
	body, err := marshalNoEscape(v)
	if err != nil {
		return nil, err
	}
	if err := c.store.Set(ctx, key, body, ttl); err != nil {
		c.logger.Warn("写入响应缓存失败", zap.String("key", key), zap.Error(err))
	}
	return body, nil
}

/* Invalidate 删除指定缓存 */
func (c *ResponseCache) Invalidate(ctx context.Context, keys ...string) {
	if err := c.store.Delete(ctx, keys...); err != nil {
		c.logger.Warn("删除响应缓存失败", zap.Strings("keys", keys), zap.Error(err))
	}
}

/* InvalidatePrefix 删除指定前缀下的全部缓存 */
func (c *ResponseCache) InvalidatePrefix(ctx context.Context, prefix string) {
	n, err := c.store.DeletePrefix(ctx, prefix)
	if err != nil {
		c.logger.Warn("按前缀删除响应缓存失败", zap.String("prefix", prefix), zap.Error(err))
		return
	}
	c.logger.Debug("响应缓存已清除", zap.String("prefix", prefix), zap.Int("count", n))
}

/*
RegisterInvalidation 登记缓存失效回调
功能：插件启停清除插件列表与站点健康；主题切换清除主题列表与站点健康；
核心更新清除核心信息与站点健康；保存内容清除全部页面、文章列表缓存
*/
func RegisterInvalidation(bus *EventBus, c *ResponseCache) {
	pluginChanged := func(ctx context.Context, _ Event) {
		c.Invalidate(ctx, KeyPluginList, KeySiteHealth)
	}
	bus.On(EventPluginActivated, "cache.plugin_list", pluginChanged)
	bus.On(EventPluginDeactivated, "cache.plugin_list", pluginChanged)

	bus.On(EventThemeSwitched, "cache.theme_list", func(ctx context.Context, _ Event) {
		c.Invalidate(ctx, KeyThemeList, KeySiteHealth)
	})
	bus.On(EventCoreUpdated, "cache.core", func(ctx context.Context, _ Event) {
		c.Invalidate(ctx, KeyCoreList, KeySiteHealth)
	})
	bus.On(EventPostSaved, "cache.content_lists", func(ctx context.Context, _ Event) {
		c.InvalidatePrefix(ctx, PrefixPagesList)
		c.InvalidatePrefix(ctx, PrefixPostsList)
	})
}

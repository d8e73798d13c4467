package service

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
)

/* 生命周期事件名 */
const (
	EventPluginActivated   = "activated_plugin"
	EventPluginDeactivated = "deactivated_plugin"
	EventThemeSwitched     = "switch_theme"
	EventCoreUpdated       = "core_updated"
	EventPostSaved         = "save_post"
	EventLogout            = "logout"
	EventConfigReloaded    = "config.reloaded"
)

/* KnownEvents 回调入口接受的事件 */
var KnownEvents = map[string]bool{
	EventPluginActivated:   true,
	EventPluginDeactivated: true,
	EventThemeSwitched:     true,
	EventCoreUpdated:       true,
	EventPostSaved:         true,
	EventLogout:            true,
	EventConfigReloaded:    true,
}

/*
Event 生命周期事件
功能：Data 为事件附带数据（插件文件、文章 ID、用户 ID 等），由各监听器自行解释
*/
type Event struct {
	Name      string
	Data      map[string]any
	Timestamp time.Time
}

/* EventHandler 事件监听器 */
type EventHandler func(ctx context.Context, ev Event)

type registration struct {
	name    string
	handler EventHandler
}

/*
EventBus 生命周期回调表
功能：显式登记 事件 → 回调 列表，由宿主适配层通过 Publish 触发。
分发为同步执行，Publish 返回时所有回调已完成；单个回调 panic 不影响其余回调。
*/
type EventBus struct {
	mu       sync.RWMutex
	handlers map[string][]registration
	logger   *zap.Logger
}

/* NewEventBus 创建回调表 */
func NewEventBus() *EventBus {
	return &EventBus{
		handlers: make(map[string][]registration),
		logger:   zap.L().Named("events"),
	}
}

/* On 登记回调，name 用于日志定位 */
func (b *EventBus) On(event, name string, h EventHandler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.handlers[event] = append(b.handlers[event], registration{name: name, handler: h})
	b.logger.Debug("事件回调已登记", zap.String("event", event), zap.String("handler", name))
}

/* Handlers 返回某事件已登记的回调名（按登记顺序） */
func (b *EventBus) Handlers(event string) []string {
	b.mu.RLock()
	defer b.mu.RUnlock()
	names := make([]string, 0, len(b.handlers[event]))
	for _, r := range b.handlers[event] {
		names = append(names, r.name)
	}
	return names
}

/* Publish 同步分发事件，返回执行的回调数 */
func (b *EventBus) Publish(ctx context.Context, ev Event) int {
	if ev.Timestamp.IsZero() {
		ev.Timestamp = time.Now()
	}

	b.mu.RLock()
	regs := append([]registration(nil), b.handlers[ev.Name]...)
	b.mu.RUnlock()

	for _, r := range regs {
		b.dispatch(ctx, ev, r)
	}
	return len(regs)
}

/* dispatch 执行单个回调（含 panic 恢复） */
func (b *EventBus) dispatch(ctx context.Context, ev Event, r registration) {
	defer func() {
		if rec := recover(); rec != nil {
			b.logger.Error("事件回调 panic",
				zap.String("event", ev.Name),
				zap.String("handler", r.name),
				zap.Any("panic", rec))
		}
	}()
	r.handler(ctx, ev)
}

// Package schedule 负责在配置的时刻前打开下单窗口。
package schedule

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// TimeLayout 是触发时刻的配置格式。
const TimeLayout = "15:04:05"

// DefaultPollInterval 轮询当前时间的间隔。
const DefaultPollInterval = 66 * time.Millisecond

// ErrWindowMissed 表示启动时窗口已经结束。
var ErrWindowMissed = errors.New("trigger window already closed")

// Window 是半开区间 [Start, End)。
type Window struct {
	Start time.Time
	End   time.Time
}

// NewWindow 以 now 所在日期（now 的时区）解析 HH:MM:SS，End 为该时刻，Start 为提前 lead。
func NewWindow(now time.Time, clock string, lead time.Duration) (Window, error) {
	t, err := time.Parse(TimeLayout, clock)
	if err != nil {
		return Window{}, fmt.Errorf("parse trigger time %q: %w", clock, err)
	}
	if lead < 0 {
		return Window{}, fmt.Errorf("lead must be >= 0, got %s", lead)
	}
	y, m, d := now.Date()
	end := time.Date(y, m, d, t.Hour(), t.Minute(), t.Second(), 0, now.Location())
	return Window{Start: end.Add(-lead), End: end}, nil
}

// Contains 判断 t 是否落在窗口内。
func (w Window) Contains(t time.Time) bool {
	return !t.Before(w.Start) && t.Before(w.End)
}

// Trigger 周期性检查时间，直到窗口打开。
type Trigger struct {
	Window   Window
	Clock    Clock
	Interval time.Duration
}

// Wait 阻塞直到当前时间进入窗口。窗口已过返回 ErrWindowMissed，ctx 取消返回 ctx.Err()。
func (tr Trigger) Wait(ctx context.Context) error {
	clock := tr.Clock
	if clock == nil {
		clock = Local
	}
	interval := tr.Interval
	if interval <= 0 {
		interval = DefaultPollInterval
	}

	check := func() (bool, error) {
		now := clock.Now()
		if tr.Window.Contains(now) {
			return true, nil
		}
		if !now.Before(tr.Window.End) {
			return false, ErrWindowMissed
		}
		return false, nil
	}
	if ok, err := check(); ok || err != nil {
		return err
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if ok, err := check(); ok || err != nil {
				return err
			}
		}
	}
}

// Until 返回距离窗口打开的剩余时间（已打开返回 0）。
func (w Window) Until(now time.Time) time.Duration {
	if !now.Before(w.Start) {
		return 0
	}
	return w.Start.Sub(now)
}

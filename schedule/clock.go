package schedule

import "time"

// Clock 抽象时间便于测试。
type Clock interface {
	Now() time.Time
}

type realClock struct{}

func (realClock) Now() time.Time { return time.Now() }

// Local 使用本地墙钟时间。
var Local Clock = realClock{}

// ClockFunc 让普通函数满足 Clock。
type ClockFunc func() time.Time

func (f ClockFunc) Now() time.Time { return f() }

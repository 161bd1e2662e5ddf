package run

import (
	"time"

	"github.com/John-Robertt/ordersheet/internal/config"
	"github.com/John-Robertt/ordersheet/internal/domain"
)

// Observer 把运行进度从执行流程中解耦出来。
//
// 约束：
// - run 包只发事件，不做任何输出（stdout 只留给报告 JSON）
// - 实现必须并发安全：OnRowDone 可能来自多个 goroutine
type Observer interface {
	// OnStart 在 Execute 开始时调用。
	OnStart(eff config.EffectiveConfig)
	// OnPhaseDone 在 read/exec/write 阶段结束或就绪时调用。
	OnPhaseDone(name string, fields map[string]any, dur time.Duration)
	// OnRowDone 在一行处理完成时调用；idx 是完成序号（1..total），不是行号。
	OnRowDone(idx, total int, res domain.RowResult, dur time.Duration)
}

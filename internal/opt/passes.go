// Package opt 实现 IR 上的优化遍和遍管理器
package opt

import (
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/tangzhangming/reactor/internal/ir"
	"github.com/tangzhangming/reactor/internal/logging"
)

// ============================================================================
// 优化 Pass 接口
// ============================================================================

// Pass 优化 Pass 接口
type Pass interface {
	Name() string
	Run(fn *ir.Function) bool // 返回是否有修改
}

// ============================================================================
// Pass 管理器
// ============================================================================

// PassManager Pass 管理器
type PassManager struct {
	passes []Pass
	stats  PassStats
}

// PassStats Pass 统计信息
type PassStats struct {
	PassesRun      int
	TotalChanges   int
	PerPassChanges map[string]int
}

// NewPassManager 创建 Pass 管理器
func NewPassManager() *PassManager {
	return &PassManager{
		stats: PassStats{PerPassChanges: make(map[string]int)},
	}
}

// AddPass 添加 Pass
func (pm *PassManager) AddPass(p Pass) {
	pm.passes = append(pm.passes, p)
}

// Passes 按执行顺序返回 Pass 名称
func (pm *PassManager) Passes() []string {
	names := make([]string, len(pm.passes))
	for i, p := range pm.passes {
		names[i] = p.Name()
	}
	return names
}

// Run 按顺序运行所有 Pass 一次，返回是否有修改
func (pm *PassManager) Run(fn *ir.Function) bool {
	changed := false
	for _, p := range pm.passes {
		pm.stats.PassesRun++
		if p.Run(fn) {
			changed = true
			pm.stats.TotalChanges++
			pm.stats.PerPassChanges[p.Name()]++
		}
	}
	logging.L().Debug("opt: pipeline finished",
		zap.String("function", fn.Name),
		zap.Int("blocks", len(fn.Blocks)),
		zap.Int("instructions", fn.NumInstructions()),
		zap.Bool("changed", changed))
	return changed
}

// RunUntilFixed 运行 Pass 直到不再有改变
func (pm *PassManager) RunUntilFixed(fn *ir.Function, maxIters int) {
	for i := 0; i < maxIters; i++ {
		if !pm.Run(fn) {
			break
		}
	}
}

// Stats 获取统计信息
func (pm *PassManager) Stats() PassStats {
	return pm.stats
}

// ============================================================================
// 预置 Pipeline
// ============================================================================

// DefaultPipeline 默认的 Pass 顺序
var DefaultPipeline = []string{
	"instcombine",
	"simplifycfg",
	"licm",
	"dce",
	"cse",
	"reassociate",
	"sroa",
	"sccp",
}

var registry = map[string]func() Pass{
	"instcombine": func() Pass { return NewInstCombinePass() },
	"simplifycfg": func() Pass { return NewSimplifyCFGPass() },
	"licm":        func() Pass { return NewLICMPass() },
	"dce":         func() Pass { return NewDCEPass() },
	"cse":         func() Pass { return NewCSEPass() },
	"reassociate": func() Pass { return NewReassociatePass() },
	"sroa":        func() Pass { return NewSROAPass() },
	"sccp":        func() Pass { return NewSCCPPass() },
}

// Lookup 按名称创建 Pass
func Lookup(name string) (Pass, error) {
	mk, ok := registry[name]
	if !ok {
		return nil, fmt.Errorf("opt: unknown pass %q (known: %s)", name, strings.Join(DefaultPipeline, ", "))
	}
	return mk(), nil
}

// NewPipeline 按名称顺序创建 Pipeline；names 为空时使用默认顺序
func NewPipeline(names []string) (*PassManager, error) {
	if len(names) == 0 {
		names = DefaultPipeline
	}
	pm := NewPassManager()
	for _, name := range names {
		p, err := Lookup(name)
		if err != nil {
			return nil, err
		}
		pm.AddPass(p)
	}
	return pm, nil
}

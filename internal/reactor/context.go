// context.go - 代码生成会话
//
// Context 持有一个编译单元、当前函数和插入位置。后端的状态不可重入，
// 所以同一时刻进程里只能有一个活动的 Context：NewContext 获取进程级互斥锁，
// Close 释放，锁在整个会话期间一直持有（从构建函数到生成例程）。
//
// 会话状态（模块、函数、插入块、控制流作用域栈）都放在 Context 上，
// 只有互斥锁和一次性初始化是进程级的。

package reactor

import (
	"errors"
	"fmt"
	"sync"

	"go.uber.org/multierr"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/tangzhangming/reactor/internal/config"
	"github.com/tangzhangming/reactor/internal/ir"
	"github.com/tangzhangming/reactor/internal/jit"
	"github.com/tangzhangming/reactor/internal/logging"
	"github.com/tangzhangming/reactor/internal/opt"
	"github.com/tangzhangming/reactor/internal/routine"
)

var (
	// ErrRoutineAlreadyAcquired 一个会话只能生成一个例程
	ErrRoutineAlreadyAcquired = errors.New("reactor: routine already acquired for this context")

	// ErrNoFunction 会话中还没有创建函数
	ErrNoFunction = errors.New("reactor: no function under construction")

	// ErrClosed 会话已经关闭
	ErrClosed = errors.New("reactor: context closed")
)

// ============================================================================
// 进程级状态
// ============================================================================

var (
	// sessionMu 串行化所有会话
	sessionMu sync.Mutex

	backendOnce sync.Once

	settingsMu sync.RWMutex
	settings   *config.Config

	pipelineOnce sync.Once
	pipeline     *opt.PassManager
	pipelineErr  error
)

// Configure 设置之后创建的会话使用的配置
// 在第一次 NewContext 之前调用时，后端初始化也使用这份配置。
func Configure(cfg *config.Config) {
	if cfg == nil {
		cfg = config.Default()
	}
	settingsMu.Lock()
	settings = cfg
	settingsMu.Unlock()
	jit.SetNativeStackSize(cfg.NativeStackSize)
}

// Settings 当前配置
func Settings() *config.Config {
	settingsMu.RLock()
	defer settingsMu.RUnlock()
	if settings == nil {
		return config.Default()
	}
	return settings
}

// initBackend 进程中第一次创建会话时执行一次
func initBackend() {
	settingsMu.Lock()
	if settings == nil {
		cfg, err := config.Load()
		if err != nil {
			logging.L().Warn("reactor: falling back to default config", zap.Error(err))
			cfg = config.Default()
		}
		settings = cfg
	}
	cfg := settings
	settingsMu.Unlock()

	// 调用方没有设置日志记录器时按配置创建
	if !logging.L().Core().Enabled(zapcore.ErrorLevel) {
		if err := logging.Init(cfg); err != nil {
			logging.L().Warn("reactor: bad log config", zap.Error(err))
		}
	}
	jit.SetNativeStackSize(cfg.NativeStackSize)

	host := jit.HostFeatures()
	logging.L().Debug("reactor: backend initialized",
		zap.Bool("sse41", host.SSE41),
		zap.Bool("avx2", host.AVX2),
		zap.Error(jit.HostSupported()))
}

// sharedPipeline 懒加载的共享优化流水线
// 会话被 sessionMu 串行化，流水线不需要自己的锁。
func sharedPipeline(cfg *config.Config) (*opt.PassManager, error) {
	pipelineOnce.Do(func() {
		pipeline, pipelineErr = opt.NewPipeline(cfg.Passes)
	})
	return pipeline, pipelineErr
}

// ============================================================================
// 会话
// ============================================================================

// Option 会话选项
type Option func(*Context)

// WithFeatures 按指定的 CPU 特性生成代码（测试回退路径用）
func WithFeatures(f jit.Features) Option {
	return func(c *Context) { c.features = f }
}

// WithConfig 本会话使用的配置
func WithConfig(cfg *config.Config) Option {
	return func(c *Context) { c.cfg = cfg }
}

// Context 代码生成会话
type Context struct {
	module *ir.Module
	fn     *ir.Function
	cursor *ir.Block
	scopes []*scope

	cfg      *config.Config
	features jit.Features

	acquired bool
	closed   bool
	stats    jit.Stats
}

// NewContext 开始一个会话，阻塞直到没有其他活动会话
func NewContext(opts ...Option) *Context {
	sessionMu.Lock()
	backendOnce.Do(initBackend)

	c := &Context{
		module:   ir.NewModule("reactor"),
		cfg:      Settings(),
		features: jit.HostFeatures(),
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// Close 结束会话并释放进程级锁，可以重复调用
func (c *Context) Close() {
	if c.closed {
		return
	}
	c.closed = true
	c.module, c.fn, c.cursor, c.scopes = nil, nil, nil, nil
	sessionMu.Unlock()
}

// Config 会话使用的配置
func (c *Context) Config() *config.Config {
	return c.cfg
}

// Features 生成代码时假定的 CPU 特性
func (c *Context) Features() jit.Features {
	return c.features
}

// Module 编译单元
func (c *Context) Module() *ir.Module {
	return c.module
}

// Function 当前函数
func (c *Context) Function() *ir.Function {
	return c.fn
}

// Stats 上一次 Acquire 的编译统计
func (c *Context) Stats() jit.Stats {
	return c.stats
}

// CreateFunction 在编译单元中创建函数，插入位置移到入口块
func (c *Context) CreateFunction(name string, ret ir.Type, params []ir.Type) *ir.Function {
	c.live()
	c.fn = c.module.AddFunction(name, ret, params)
	c.cursor = c.fn.Entry()
	return c.fn
}

// Arg 当前函数的第 i 个参数
func (c *Context) Arg(i int) *ir.Value {
	return c.function().Param(i)
}

// InsertBlock 当前插入块
func (c *Context) InsertBlock() *ir.Block {
	return c.cursor
}

// SetInsertBlock 把插入位置移到 b 的末尾
func (c *Context) SetInsertBlock(b *ir.Block) {
	c.cursor = b
}

// CreateBasicBlock 创建新的基本块（不移动插入位置）
func (c *Context) CreateBasicBlock() *ir.Block {
	return c.function().NewBlock()
}

func (c *Context) live() {
	if c.closed {
		panic(ErrClosed)
	}
}

func (c *Context) function() *ir.Function {
	c.live()
	if c.fn == nil {
		panic(ErrNoFunction)
	}
	return c.fn
}

// emit 在插入块末尾追加一个值
func (c *Context) emit(op ir.Op, t ir.Type, args ...*ir.Value) *ir.Value {
	c.function()
	if c.cursor.Terminated() {
		panic(fmt.Sprintf("reactor: emitting %s into terminated block %s", op, c.cursor))
	}
	return c.cursor.NewValue(op, t, args...)
}

// ============================================================================
// 生成例程
// ============================================================================

// Acquire 完成当前函数并生成例程
// 返回的例程已经 Bind 一次，调用方用完后 Unbind。失败时返回 nil 和错误，
// 调用方应当跳过加速路径；Debug 配置下不支持的输入直接 panic。
func (c *Context) Acquire(name string, runOptimizations bool) (*routine.Routine, error) {
	if c.closed {
		return nil, ErrClosed
	}
	if c.acquired {
		return nil, ErrRoutineAlreadyAcquired
	}
	if c.fn == nil {
		return nil, ErrNoFunction
	}
	if len(c.scopes) > 0 {
		return nil, fmt.Errorf("%w: %d control-flow scopes still open (innermost %s)", ErrScopeMismatch, len(c.scopes), c.scopes[len(c.scopes)-1].kind)
	}
	c.acquired = true
	if name != "" {
		c.fn.Name = name
	}
	c.terminate()

	if err := ir.Verify(c.fn); err != nil {
		return nil, c.fail(err)
	}
	if runOptimizations {
		if err := c.Optimize(); err != nil {
			return nil, c.fail(err)
		}
		if err := ir.Verify(c.fn); err != nil {
			return nil, c.fail(fmt.Errorf("after optimization: %w", err))
		}
	}
	c.dumpIR()

	mm := jit.NewRoutineMemoryManager(c.cfg.Debug)
	opts := jit.DefaultOptions(jit.NativeStackSize())
	opts.Features = c.features
	engine := jit.NewEngine(mm, opts)
	stats, err := engine.Compile(c.fn)
	c.stats = stats
	if err != nil {
		mm.Discard()
		return nil, c.fail(err)
	}
	r := mm.TakeRoutine()
	r.Bind()
	c.dumpAsm(r)

	logging.L().Debug("reactor: routine acquired",
		zap.String("name", c.fn.Name),
		zap.Int("code", stats.CodeBytes),
		zap.Int("instructions", c.fn.NumInstructions()))
	return r, nil
}

// terminate 补全没有终止指令的块
// 插入块落空时返回零值（或 ret void），其余未终止的块不可达。
func (c *Context) terminate() {
	for _, b := range c.fn.Blocks {
		if b.Terminated() {
			continue
		}
		if b != c.cursor {
			b.SetUnreachable()
			continue
		}
		if c.fn.Ret.IsVoid() {
			b.SetRet(nil)
			continue
		}
		zero := b.NewValue(ir.OpConst, c.fn.Ret)
		if c.fn.Ret.IsVector() {
			zero.Lanes = make([]uint64, c.fn.Ret.NumLanes())
		}
		b.SetRet(zero)
	}
}

// fail 记录失败；Debug 下不支持的构造直接 panic
func (c *Context) fail(err error) error {
	if c.cfg.Debug && (errors.Is(err, jit.ErrUnsupported) || errors.Is(err, ir.ErrInvalid)) {
		panic(err)
	}
	fields := []zap.Field{zap.String("function", c.fn.Name)}
	for _, e := range multierr.Errors(err) {
		fields = append(fields, zap.NamedError("error", e))
	}
	logging.L().Error("reactor: failed to generate routine", fields...)
	return err
}

// Optimize 对当前函数运行一次共享的优化流水线
func (c *Context) Optimize() error {
	pm, err := sharedPipeline(c.cfg)
	if err != nil {
		return err
	}
	pm.Run(c.function())
	return nil
}

func (c *Context) dumpIR() {
	if c.cfg.Dump.IR {
		logging.L().Info("reactor: IR", zap.String("function", c.fn.Name), zap.String("ir", c.fn.String()))
	}
	if c.cfg.Dump.LLVM {
		text, err := ir.DumpFunctionLLVM(c.fn)
		if err != nil {
			logging.L().Warn("reactor: LLVM export failed", zap.Error(err))
			return
		}
		logging.L().Info("reactor: LLVM", zap.String("function", c.fn.Name), zap.String("llvm", text))
	}
}

func (c *Context) dumpAsm(r *routine.Routine) {
	if !c.cfg.Dump.Asm {
		return
	}
	code := r.Code()
	if c.stats.CodeBytes < len(code) {
		code = code[:c.stats.CodeBytes]
	}
	logging.L().Info("reactor: disassembly",
		zap.String("function", c.fn.Name),
		zap.String("asm", jit.Disassemble(code, uint64(r.Entry()))))
}

// rxprobe - 检查当前主机上的代码生成
//
// 用法:
//   rxprobe [options]
//
// 生成一组小例程并执行，和期望结果对比后打印表格。任何一个结果不一致
// 时退出码为 1。

package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/pterm/pterm"

	"github.com/tangzhangming/reactor/internal/config"
	"github.com/tangzhangming/reactor/internal/jit"
	"github.com/tangzhangming/reactor/internal/logging"
	"github.com/tangzhangming/reactor/internal/reactor"
)

var (
	configPath = flag.String("config", "", "配置文件路径（默认查找 reactor.toml）")
	dumpIR     = flag.Bool("dump-ir", false, "打印优化后的 IR")
	dumpLLVM   = flag.Bool("dump-llvm", false, "打印等价的 LLVM 汇编")
	dumpAsm    = flag.Bool("dump-asm", false, "打印生成代码的反汇编")
	noOpt      = flag.Bool("no-opt", false, "跳过优化流水线")
)

func main() {
	flag.Parse()

	cfg, err := loadConfig()
	if err != nil {
		pterm.Error.Println(err)
		os.Exit(2)
	}
	if err := logging.Init(cfg); err != nil {
		pterm.Error.Println(err)
		os.Exit(2)
	}
	defer logging.Sync()
	reactor.Configure(cfg)

	if err := jit.HostSupported(); err != nil {
		pterm.Warning.Printfln("host cannot run generated code: %v", err)
		os.Exit(2)
	}
	host := jit.HostFeatures()
	pterm.Info.Printfln("sse4.1=%v avx2=%v optimize=%v", host.SSE41, host.AVX2, cfg.Optimize)

	rows := pterm.TableData{{"Routine", "Code", "Result", "Status"}}
	failed := 0
	for _, p := range probes {
		res := p.run()
		status := pterm.Green("ok")
		switch {
		case res.err != nil:
			status = pterm.Red("error")
			res.got = res.err.Error()
			failed++
		case res.got != res.want:
			status = pterm.Red("mismatch, want " + res.want)
			failed++
		}
		code := "-"
		if res.size > 0 {
			code = fmt.Sprintf("%d B", res.size)
		}
		rows = append(rows, []string{p.name, code, res.got, status})
	}
	if err := pterm.DefaultTable.WithHasHeader().WithData(rows).Render(); err != nil {
		pterm.Error.Println(err)
	}

	if failed > 0 {
		pterm.Error.Printfln("%d of %d probes failed", failed, len(probes))
		os.Exit(1)
	}
	pterm.Success.Printfln("all %d probes passed", len(probes))
}

// loadConfig 读取配置并叠加命令行选项
func loadConfig() (*config.Config, error) {
	var (
		cfg *config.Config
		err error
	)
	if *configPath != "" {
		cfg, err = config.LoadConfig(*configPath)
	} else {
		cfg, err = config.Load()
	}
	if err != nil {
		return nil, err
	}
	cfg.Dump.IR = cfg.Dump.IR || *dumpIR
	cfg.Dump.LLVM = cfg.Dump.LLVM || *dumpLLVM
	cfg.Dump.Asm = cfg.Dump.Asm || *dumpAsm
	if *noOpt {
		cfg.Optimize = false
	}
	if (cfg.Dump.IR || cfg.Dump.LLVM || cfg.Dump.Asm) && cfg.Log.Level != "debug" {
		// dump 走 Info 级别
		cfg.Log.Level = "info"
	}
	return cfg, nil
}

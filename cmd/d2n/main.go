package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/John-Robertt/D2N/internal/app/run"
	"github.com/John-Robertt/D2N/internal/config"
	"github.com/John-Robertt/D2N/internal/domain"
	"github.com/John-Robertt/D2N/internal/infra/fsx"
)

func main() {
	args := os.Args[1:]
	if len(args) == 0 || isHelp(args[0]) {
		printUsage()
		return
	}

	switch args[0] {
	case "run":
		if code := runCmd(args[1:]); code != 0 {
			os.Exit(code)
		}
	default:
		fmt.Fprintf(os.Stderr, "未知命令：%q\n\n", args[0])
		printUsage()
		os.Exit(2)
	}
}

func runCmd(args []string) int {
	for _, a := range args {
		if isHelp(a) {
			printRunUsage()
			return 0
		}
	}

	ra, err := parseRunArgs(args)
	if err != nil {
		fmt.Fprintf(os.Stderr, "参数错误：%v\n\n", err)
		printRunUsage()
		return 2
	}

	cwd, err := os.Getwd()
	if err != nil {
		fmt.Fprintf(os.Stderr, "读取当前目录失败：%v\n", err)
		return 1
	}

	eff, err := config.LoadEffective(cwd, config.CLIArgs{
		Category: ra.Category,
		In:       ra.In,
		InSet:    ra.InSet,
		Out:      ra.Out,
		OutSet:   ra.OutSet,
		Raw:      ra.Raw,
		RawSet:   ra.RawSet,
		Tool:     ra.Tool,
		ToolSet:  ra.ToolSet,
	})
	if err != nil {
		// 配置错误是运行级 fatal：在任何受试者处理之前终止。
		rr := reportForConfigError(ra, err)
		emitReport(rr)
		return 2
	}

	progressW, interactive := pickProgressWriter()
	var obs run.Observer
	var ui *progressUI
	if interactive {
		ui = newProgressUI(progressW)
		obs = ui
	}

	rr := run.ExecuteWithObserver(context.Background(), eff, obs)
	if ui != nil {
		ui.Stop()
	}

	code := 0
	if err := writeReportFile(eff.Out, rr); err != nil {
		fmt.Fprintf(os.Stderr, "写入 report.json 失败：%v\n", err)
		code = 1
	}

	emitReport(rr)
	if interactive {
		emitLocations(progressW, eff)
	}
	if rr.Summary.Failed > 0 {
		code = 1
	}
	return code
}

type runArgs struct {
	Category string

	In      string
	InSet   bool
	Out     string
	OutSet  bool
	Raw     string
	RawSet  bool
	Tool    string
	ToolSet bool
}

func parseRunArgs(args []string) (runArgs, error) {
	ra := runArgs{}

	set := func(dst *string, dstSet *bool, name, v string) error {
		if v == "" {
			return fmt.Errorf("%s 需要一个值", name)
		}
		*dst = v
		*dstSet = true
		return nil
	}

	for i := 0; i < len(args); i++ {
		a := args[i]
		var dst *string
		var dstSet *bool
		var name string

		switch {
		case a == "--in" || strings.HasPrefix(a, "--in="):
			dst, dstSet, name = &ra.In, &ra.InSet, "--in"
		case a == "--out" || strings.HasPrefix(a, "--out="):
			dst, dstSet, name = &ra.Out, &ra.OutSet, "--out"
		case a == "--raw" || strings.HasPrefix(a, "--raw="):
			dst, dstSet, name = &ra.Raw, &ra.RawSet, "--raw"
		case a == "--tool" || strings.HasPrefix(a, "--tool="):
			dst, dstSet, name = &ra.Tool, &ra.ToolSet, "--tool"
		case strings.HasPrefix(a, "-"):
			return runArgs{}, fmt.Errorf("未知参数 %q", a)
		default:
			if ra.Category != "" {
				return runArgs{}, fmt.Errorf("重复的 category：%q 与 %q", ra.Category, a)
			}
			ra.Category = a
			continue
		}

		if eq := strings.IndexByte(a, '='); eq >= 0 {
			if err := set(dst, dstSet, name, a[eq+1:]); err != nil {
				return runArgs{}, err
			}
			continue
		}
		if i+1 >= len(args) {
			return runArgs{}, fmt.Errorf("%s 需要一个值", name)
		}
		i++
		if err := set(dst, dstSet, name, args[i]); err != nil {
			return runArgs{}, err
		}
	}

	return ra, nil
}

func isHelp(s string) bool {
	return s == "-h" || s == "--help" || s == "help"
}

func printUsage() {
	fmt.Fprint(os.Stdout, `用法：
  d2n run <category> [--in DIR] [--out DIR] [--raw DIR] [--tool PATH]

命令：
  run    按 category 批量处理受试者（convert|check|params|collect）

使用 "d2n run --help" 查看详细说明。
`)
}

func printRunUsage() {
	fmt.Fprint(os.Stdout, `用法：
  d2n run <category> [--in DIR] [--out DIR] [--raw DIR] [--tool PATH]

category：
  convert  逐受试者调用外部工具做整目录转换（已有输出的受试者跳过）
  check    convert + 从文本 sidecar 核对 Name/Age/Gender，导出表格
  params   check 字段 + TR/TE；解析系列号、按系列二次转换并读取体素几何
  collect  把每个受试者的主卷收集到 <out>/collected/（不调用转换工具）

参数：
  --in    输入根目录（包含 sub-xxxx 子目录）
  --out   输出根目录（每个已处理受试者一个子目录）
  --raw   原始 DICOM 根目录（params 必需）
  --tool  外部转换工具路径
  -h, --help  显示帮助

未显式给出的参数从 <cwd>/d2n.json 读取；CLI 优先于配置文件。
`)
}

func emitReport(rr domain.RunReport) {
	if isTTY(os.Stdout) {
		fmt.Fprintf(os.Stdout, "完成：processed=%d skipped=%d failed=%d\n",
			rr.Summary.Processed, rr.Summary.Skipped, rr.Summary.Failed,
		)
		if rr.Summary.Failed > 0 {
			for _, it := range rr.Items {
				if it.Status != domain.StatusFailed {
					continue
				}
				key := it.Subject
				if key == "" {
					key = "<run>"
				}
				fmt.Fprintf(os.Stderr, "%s %s: %s\n", key, it.ErrorCode, it.ErrorMsg)
			}
		}
		return
	}

	// stdout 非 TTY：stdout 必须且仅输出一个 RunReport JSON（日志/摘要走 stderr）。
	enc := json.NewEncoder(os.Stdout)
	_ = enc.Encode(rr)
	fmt.Fprintf(os.Stderr, "完成：processed=%d skipped=%d failed=%d\n",
		rr.Summary.Processed, rr.Summary.Skipped, rr.Summary.Failed,
	)
}

func reportForConfigError(ra runArgs, err error) domain.RunReport {
	now := time.Now().UTC()
	rr := domain.RunReport{
		Category:   ra.Category,
		StartedAt:  now,
		FinishedAt: now,
		Items: []domain.SubjectResult{{
			Subject:    "",
			Status:     domain.StatusFailed,
			ErrorCode:  config.Code(err),
			ErrorMsg:   err.Error(),
			Candidates: []string{},
		}},
	}
	rr.Finalize()
	return rr
}

func writeReportFile(outRoot string, rr domain.RunReport) error {
	b, err := json.MarshalIndent(rr, "", "  ")
	if err != nil {
		return err
	}
	b = append(b, '\n')
	return fsx.WriteFileAtomicReplace(filepath.Join(outRoot, "logs"), "report.json", b)
}

func isTTY(f *os.File) bool {
	fi, err := f.Stat()
	if err != nil {
		return false
	}
	return fi.Mode()&os.ModeCharDevice != 0
}

func pickProgressWriter() (io.Writer, bool) {
	// 进度输出只在交互终端启用；默认走 stderr（不污染 stdout JSON）。
	if isTTY(os.Stderr) {
		return os.Stderr, true
	}
	// 某些环境（例如仅重定向 stderr）下，stdout 仍是 TTY：退化输出到 stdout。
	if isTTY(os.Stdout) {
		return os.Stdout, true
	}
	return nil, false
}

func emitLocations(w io.Writer, eff config.EffectiveConfig) {
	// 这两行用于降低“完成后不知道产物在哪”的摩擦，且不影响 stdout JSON 契约。
	if w == nil {
		return
	}
	fmt.Fprintf(w, "logs: %s\n", filepath.Join(eff.Out, "logs"))
	fmt.Fprintf(w, "out: %s\n", eff.Out)
}

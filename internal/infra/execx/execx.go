package execx

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"strings"

	"github.com/John-Robertt/D2N/internal/domain"
)

// ToolError 表示环境级调用失败（工具不存在、无执行权限等）。
// 按契约它是运行级 fatal：与工具自身的非零退出码（ConvResult.ExitStatus）严格区分。
type ToolError struct {
	Tool string
	Err  error
}

func (e *ToolError) Error() string {
	return fmt.Sprintf("无法调用转换工具 %q：%v", e.Tool, e.Err)
}

func (e *ToolError) Unwrap() error { return e.Err }

func IsToolError(err error) bool {
	var e *ToolError
	return errors.As(err, &e)
}

// Invoke 同步调用外部转换工具，阻塞到进程退出。
//
// - 命令行完全由 opts.Args 决定（这里不做任何参数拼装）
// - logPath 非空时：预创建日志文件，第一行写入完整命令行（审计/复现不变量），
//   随后把工具的 stdout+stderr 追加到同一文件
// - 工具非零退出不是 error：原样放进 ConvResult 由调用方归类记录
// - 只有环境级失败（进程起不来）才返回 *ToolError
func Invoke(ctx context.Context, tool string, opts domain.ConvOptions, inDir, outDir, logPath string) (domain.ConvResult, error) {
	args := opts.Args(inDir, outDir)
	cmd := exec.CommandContext(ctx, platformTool(tool), args...)

	if logPath != "" {
		if err := os.MkdirAll(filepath.Dir(logPath), 0o755); err != nil {
			return domain.ConvResult{}, &ToolError{Tool: tool, Err: err}
		}
		logf, err := os.OpenFile(logPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return domain.ConvResult{}, &ToolError{Tool: tool, Err: err}
		}
		defer logf.Close()

		if _, err := fmt.Fprintln(logf, CommandLine(tool, args)); err != nil {
			return domain.ConvResult{}, &ToolError{Tool: tool, Err: err}
		}
		cmd.Stdout = logf
		cmd.Stderr = logf
	}

	if err := cmd.Run(); err != nil {
		var ee *exec.ExitError
		if errors.As(err, &ee) {
			return domain.ConvResult{ExitStatus: ee.ExitCode(), OutDir: outDir}, nil
		}
		return domain.ConvResult{}, &ToolError{Tool: tool, Err: err}
	}
	return domain.ConvResult{ExitStatus: 0, OutDir: outDir}, nil
}

// CommandLine 渲染可复现的命令行文本（日志第一行 / 报错展示共用同一实现）。
func CommandLine(tool string, args []string) string {
	parts := make([]string, 0, 1+len(args))
	parts = append(parts, quoteIfNeeded(tool))
	for _, a := range args {
		parts = append(parts, quoteIfNeeded(a))
	}
	return strings.Join(parts, " ")
}

func quoteIfNeeded(s string) string {
	if strings.ContainsAny(s, " \t") {
		return fmt.Sprintf("%q", s)
	}
	return s
}

// platformTool 选择平台合适的可执行形态：Windows 下补 .exe 后缀（若未带扩展名）。
func platformTool(tool string) string {
	if runtime.GOOS != "windows" {
		return tool
	}
	if filepath.Ext(tool) != "" {
		return tool
	}
	return tool + ".exe"
}

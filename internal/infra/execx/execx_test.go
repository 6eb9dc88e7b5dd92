package execx

import (
	"context"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"

	"github.com/John-Robertt/D2N/internal/domain"
)

// fakeTool 写一个可执行的 shell 脚本充当外部转换工具。
func fakeTool(t *testing.T, body string) string {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("伪工具是 shell 脚本，Windows 下跳过")
	}
	path := filepath.Join(t.TempDir(), "fake-conv")
	script := "#!/bin/sh\n" + body + "\n"
	if err := os.WriteFile(path, []byte(script), 0o755); err != nil {
		t.Fatalf("写伪工具失败：%v", err)
	}
	return path
}

func TestInvoke_LogFirstLineIsCommand(t *testing.T) {
	tool := fakeTool(t, `echo converting...`)
	dir := t.TempDir()
	inDir := filepath.Join(dir, "in")
	outDir := filepath.Join(dir, "out")
	logPath := filepath.Join(dir, "logs", "convert.log")

	yes := true
	opts := domain.ConvOptions{Layout: true, Compress: true, Precise: true, TextSidecar: &yes}

	res, err := Invoke(context.Background(), tool, opts, inDir, outDir, logPath)
	if err != nil {
		t.Fatalf("调用失败：%v", err)
	}
	if res.ExitStatus != 0 {
		t.Fatalf("期望退出码 0，实际 %d", res.ExitStatus)
	}

	data, err := os.ReadFile(logPath)
	if err != nil {
		t.Fatalf("读日志失败：%v", err)
	}
	lines := strings.Split(string(data), "\n")
	want := CommandLine(tool, opts.Args(inDir, outDir))
	if lines[0] != want {
		t.Fatalf("日志第一行必须是完整命令行：\n得到 %q\n期望 %q", lines[0], want)
	}
	if !strings.Contains(string(data), "converting...") {
		t.Fatalf("工具输出应追加到日志：%q", data)
	}
}

func TestInvoke_NonzeroExitIsNotError(t *testing.T) {
	tool := fakeTool(t, `exit 3`)

	res, err := Invoke(context.Background(), tool, domain.ConvOptions{}, "in", "out", "")
	if err != nil {
		t.Fatalf("非零退出不应是 error：%v", err)
	}
	if res.ExitStatus != 3 {
		t.Fatalf("期望退出码 3，实际 %d", res.ExitStatus)
	}
}

func TestInvoke_MissingToolIsToolError(t *testing.T) {
	missing := filepath.Join(t.TempDir(), "no-such-tool")

	_, err := Invoke(context.Background(), missing, domain.ConvOptions{}, "in", "out", "")
	if !IsToolError(err) {
		t.Fatalf("期望 *ToolError，实际 %v", err)
	}
}

func TestCommandLineQuoting(t *testing.T) {
	got := CommandLine("/opt/conv tool", []string{"-o", "/data/out dir", "/data/in"})
	want := `"/opt/conv tool" -o "/data/out dir" /data/in`
	if got != want {
		t.Fatalf("命令行渲染不对：\n得到 %q\n期望 %q", got, want)
	}
}

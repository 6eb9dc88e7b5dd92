package scan

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/John-Robertt/D2N/internal/domain"
)

func mkdir(t *testing.T, path string) {
	t.Helper()
	if err := os.MkdirAll(path, 0o755); err != nil {
		t.Fatalf("创建目录失败：%v", err)
	}
}

func TestSubjects_PatternAndOrder(t *testing.T) {
	root := t.TempDir()

	mkdir(t, filepath.Join(root, "sub-0002"))
	mkdir(t, filepath.Join(root, "sub-0001"))
	mkdir(t, filepath.Join(root, "logs"))     // 非 sub-* 目录忽略
	mkdir(t, filepath.Join(root, "subject"))  // 前缀不完整忽略
	mkdir(t, filepath.Join(root, "sub-"))     // 空 id 忽略
	if err := os.WriteFile(filepath.Join(root, "sub-0003"), []byte("x"), 0o644); err != nil {
		t.Fatalf("写入文件失败：%v", err) // 同名文件不是受试者
	}

	got, err := Subjects(root)
	if err != nil {
		t.Fatalf("不期望错误：%v", err)
	}
	if len(got) != 2 || got[0] != "sub-0001" || got[1] != "sub-0002" {
		t.Fatalf("期望 [sub-0001 sub-0002]，实际 %v", got)
	}
}

func TestShouldProcess_Gate(t *testing.T) {
	out := t.TempDir()

	if !ShouldProcess(out, domain.Subject("sub-0001")) {
		t.Fatalf("输出不存在时必须处理")
	}

	mkdir(t, filepath.Join(out, "sub-0001"))
	if ShouldProcess(out, domain.Subject("sub-0001")) {
		t.Fatalf("输出目录已存在时必须跳过")
	}
}

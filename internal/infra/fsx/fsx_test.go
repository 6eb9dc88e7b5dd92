package fsx

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestWriteFileAtomicNoOverwrite(t *testing.T) {
	dir := t.TempDir()

	if err := WriteFileAtomicNoOverwrite(dir, "a.csv", []byte("x,y\n")); err != nil {
		t.Fatalf("首次写入失败：%v", err)
	}
	data, err := os.ReadFile(filepath.Join(dir, "a.csv"))
	if err != nil || string(data) != "x,y\n" {
		t.Fatalf("读回失败：%v %q", err, data)
	}

	err = WriteFileAtomicNoOverwrite(dir, "a.csv", []byte("other\n"))
	if !errors.Is(err, os.ErrExist) {
		t.Fatalf("重复写入应返回 os.ErrExist，实际 %v", err)
	}
	data, _ = os.ReadFile(filepath.Join(dir, "a.csv"))
	if string(data) != "x,y\n" {
		t.Fatalf("拒绝覆盖后原内容不应改变：%q", data)
	}
}

func TestWriteFileAtomicNoOverwrite_DirConflict(t *testing.T) {
	dir := t.TempDir()
	if err := os.Mkdir(filepath.Join(dir, "a.csv"), 0o755); err != nil {
		t.Fatalf("准备目录失败：%v", err)
	}
	err := WriteFileAtomicNoOverwrite(dir, "a.csv", []byte("x"))
	if !IsPathTypeConflict(err) {
		t.Fatalf("目标是目录应报类型冲突，实际 %v", err)
	}
}

func TestWriteFileAtomicReplace(t *testing.T) {
	dir := t.TempDir()
	if err := WriteFileAtomicReplace(dir, "report.json", []byte("{}")); err != nil {
		t.Fatalf("首次写入失败：%v", err)
	}
	if err := WriteFileAtomicReplace(dir, "report.json", []byte(`{"v":2}`)); err != nil {
		t.Fatalf("覆盖写入失败：%v", err)
	}
	data, _ := os.ReadFile(filepath.Join(dir, "report.json"))
	if string(data) != `{"v":2}` {
		t.Fatalf("覆盖后内容不对：%q", data)
	}
}

func TestWriteLeavesNoTempFiles(t *testing.T) {
	dir := t.TempDir()
	if err := WriteFileAtomicReplace(dir, "f", []byte("data")); err != nil {
		t.Fatalf("写入失败：%v", err)
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatalf("读目录失败：%v", err)
	}
	for _, e := range entries {
		if strings.Contains(e.Name(), ".tmp-") {
			t.Fatalf("残留临时文件：%q", e.Name())
		}
	}
}

func TestCopyFileNoOverwrite(t *testing.T) {
	src := filepath.Join(t.TempDir(), "src.nii.gz")
	if err := os.WriteFile(src, []byte("payload"), 0o644); err != nil {
		t.Fatalf("准备源文件失败：%v", err)
	}
	dst := filepath.Join(t.TempDir(), "collected")

	if err := CopyFileNoOverwrite(src, dst, "sub-0001.nii.gz"); err != nil {
		t.Fatalf("复制失败：%v", err)
	}
	data, err := os.ReadFile(filepath.Join(dst, "sub-0001.nii.gz"))
	if err != nil || string(data) != "payload" {
		t.Fatalf("复制内容不对：%v %q", err, data)
	}

	err = CopyFileNoOverwrite(src, dst, "sub-0001.nii.gz")
	if !errors.Is(err, os.ErrExist) {
		t.Fatalf("重复收集应返回 os.ErrExist，实际 %v", err)
	}
}

func TestEnsureDir(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "a", "b")
	if err := EnsureDir(dir); err != nil {
		t.Fatalf("创建失败：%v", err)
	}
	if err := EnsureDir(dir); err != nil {
		t.Fatalf("已存在时应幂等：%v", err)
	}

	file := filepath.Join(t.TempDir(), "f")
	if err := os.WriteFile(file, nil, 0o644); err != nil {
		t.Fatalf("准备文件失败：%v", err)
	}
	if err := EnsureDir(file); !IsPathTypeConflict(err) {
		t.Fatalf("路径是文件应报类型冲突，实际 %v", err)
	}
}

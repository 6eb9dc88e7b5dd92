package series

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

func TestResolve_Unique(t *testing.T) {
	root := t.TempDir()
	mkdir(t, filepath.Join(root, "Study_20260831", "S005_T1w"))
	mkdir(t, filepath.Join(root, "Study_20260831", "S006_FLAIR"))

	m := Resolve(root, "5", "")
	if m.Kind != domain.SeriesUnique {
		t.Fatalf("期望 unique，实际 %q（%+v）", m.Kind, m)
	}
	if filepath.Base(m.Path) != "S005_T1w" {
		t.Fatalf("命中路径不对：%q", m.Path)
	}
}

func TestResolve_NoMaster(t *testing.T) {
	root := t.TempDir()
	mkdir(t, filepath.Join(root, "misc"))

	m := Resolve(root, "5", "")
	if m.Kind != domain.SeriesNoMaster {
		t.Fatalf("期望 no_master，实际 %q", m.Kind)
	}
}

func TestResolve_MultipleMaster(t *testing.T) {
	root := t.TempDir()
	mkdir(t, filepath.Join(root, "Study_A"))
	mkdir(t, filepath.Join(root, "study_b")) // 容器识别大小写不敏感

	m := Resolve(root, "5", "")
	if m.Kind != domain.SeriesMultipleMaster {
		t.Fatalf("期望 multiple_master（硬停止），实际 %q", m.Kind)
	}
	if len(m.Candidates) != 2 {
		t.Fatalf("期望带回 2 个容器候选，实际 %v", m.Candidates)
	}
}

func TestResolve_NotFound(t *testing.T) {
	root := t.TempDir()
	mkdir(t, filepath.Join(root, "Study_1", "S001_loc"))

	m := Resolve(root, "7", "")
	if m.Kind != domain.SeriesNotFound {
		t.Fatalf("期望 not_found，实际 %q", m.Kind)
	}
}

func TestResolve_SubstringOverMatch(t *testing.T) {
	// 子串匹配刻意宽松："2" 同时命中 S002_series 与 S020_series，
	// 这是记录在案的歧义：必须报 multiple，绝不挑一个。
	root := t.TempDir()
	mkdir(t, filepath.Join(root, "Study_1", "S002_series"))
	mkdir(t, filepath.Join(root, "Study_1", "S020_series"))

	m := Resolve(root, "2", "")
	if m.Kind != domain.SeriesMultiple {
		t.Fatalf("期望 multiple，实际 %q", m.Kind)
	}
	if len(m.Candidates) != 2 || m.Candidates[0] != "S002_series" || m.Candidates[1] != "S020_series" {
		t.Fatalf("候选不对（需排序）：%v", m.Candidates)
	}
}

func TestResolve_UniqueOnlyWhenExactlyOneNameContains(t *testing.T) {
	// "S002_series" 里 '2' 出现两次，但它仍只是一个候选：
	// 判定基于“包含该子串的目录个数”，不是出现次数。
	root := t.TempDir()
	mkdir(t, filepath.Join(root, "Study_1", "S001_series"))
	mkdir(t, filepath.Join(root, "Study_1", "S002_series"))

	m := Resolve(root, "2", "")
	if m.Kind != domain.SeriesUnique {
		t.Fatalf("期望 unique，实际 %q（%+v）", m.Kind, m)
	}
	if filepath.Base(m.Path) != "S002_series" {
		t.Fatalf("命中路径不对：%q", m.Path)
	}
}

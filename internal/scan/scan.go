package scan

import (
	"os"
	"path/filepath"
	"sort"

	"github.com/John-Robertt/D2N/internal/domain"
)

// Subjects 枚举 root 下的受试者目录（只看第一层，不递归）。
//
// 规则（硬约束）：
// - 只接受目录，且目录名必须匹配 sub-<id>（domain.ParseSubject）
// - 不匹配的条目静默忽略（输入根下允许混放 logs/ 等辅助目录）
// - 输出按字典序排序：受试者的处理顺序与平台目录序无关
func Subjects(root string) ([]domain.Subject, error) {
	entries, err := os.ReadDir(filepath.Clean(root))
	if err != nil {
		return nil, err
	}

	subs := make([]domain.Subject, 0, len(entries))
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		s, ok := domain.ParseSubject(e.Name())
		if !ok {
			continue
		}
		subs = append(subs, s)
	}

	sort.Slice(subs, func(i, j int) bool { return subs[i] < subs[j] })
	return subs, nil
}

// ShouldProcess 是幂等闸门：当且仅当 <outRoot>/<subject> 目录尚不存在时返回 true。
//
// 这是唯一的重跑安全机制：对同一个输出根重复运行，只处理新增受试者，
// 已有输出一个字节都不碰。无副作用（只做 stat，不创建）。
func ShouldProcess(outRoot string, subject domain.Subject) bool {
	fi, err := os.Stat(filepath.Join(outRoot, string(subject)))
	if err != nil {
		return true
	}
	return !fi.IsDir()
}

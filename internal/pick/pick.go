package pick

import (
	"sort"
	"strings"
)

// Selection 的三种结果。歧义绝不靠猜：Ambiguous 由上层跳过并记录
// （“拿不准就什么都不动”是全局策略）。
const (
	Selected  = "selected"
	NoneFound = "none"
	Ambiguous = "ambiguous"
)

type Selection struct {
	Kind       string
	Name       string
	Candidates []string
}

// Primary 在候选文件名里选出唯一主文件。
//
// 规则：先剔除名字包含任一排除子串的候选（例如已知的替代对比度标记 "_PSIR"），
// 剩 0 个 => NoneFound；剩 1 个 => Selected；多于 1 个 => Ambiguous（带回候选）。
func Primary(candidates []string, excludePatterns []string) Selection {
	kept := make([]string, 0, len(candidates))
	for _, name := range candidates {
		if containsAny(name, excludePatterns) {
			continue
		}
		kept = append(kept, name)
	}
	sort.Strings(kept)

	switch len(kept) {
	case 0:
		return Selection{Kind: NoneFound}
	case 1:
		return Selection{Kind: Selected, Name: kept[0]}
	default:
		return Selection{Kind: Ambiguous, Candidates: kept}
	}
}

func containsAny(name string, subs []string) bool {
	for _, s := range subs {
		if s != "" && strings.Contains(name, s) {
			return true
		}
	}
	return false
}

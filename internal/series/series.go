package series

import (
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/John-Robertt/D2N/internal/domain"
)

// DefaultMasterMarker 是主系列容器目录名的识别子串（大小写不敏感）。
// 原始数据导出的受试者树第一层恰好有一个这样的容器，系列子目录都在它下面。
const DefaultMasterMarker = "Study"

// Resolve 在受试者原始数据树里解析 seriesNumber 对应的唯一系列目录。
//
// 算法（固定，两步）：
// 1) 列出 root 第一层里名字包含 marker 的目录：0 个 => no_master；
//    多于 1 个 => multiple_master（硬停止：后续搜索只相对唯一容器有定义）
// 2) 在唯一容器内列出名字包含 seriesNumber 子串的目录：
//    0 => not_found；1 => unique；多 => multiple（带回候选）
//
// 子串匹配刻意宽松：系列号互为前缀时会过匹配（"2" 同时命中 S002/S020）。
// 这是记录在案的歧义，交给 multiple 结果呈现，不在这里做数值归一“修复”。
func Resolve(root, seriesNumber, marker string) domain.SeriesMatch {
	if marker == "" {
		marker = DefaultMasterMarker
	}

	masters := subdirsContaining(root, marker, false)
	switch len(masters) {
	case 0:
		return domain.SeriesMatch{Kind: domain.SeriesNoMaster}
	case 1:
		// 继续
	default:
		return domain.SeriesMatch{Kind: domain.SeriesMultipleMaster, Candidates: masters}
	}

	container := filepath.Join(root, masters[0])
	hits := subdirsContaining(container, seriesNumber, true)
	switch len(hits) {
	case 0:
		return domain.SeriesMatch{Kind: domain.SeriesNotFound}
	case 1:
		return domain.SeriesMatch{Kind: domain.SeriesUnique, Path: filepath.Join(container, hits[0])}
	default:
		return domain.SeriesMatch{Kind: domain.SeriesMultiple, Candidates: hits}
	}
}

// subdirsContaining 列出 dir 第一层名字包含 sub 的子目录名（排序保证结果稳定）。
// caseSensitive=false 时大小写不敏感（容器识别）；系列号匹配保持大小写敏感原样。
func subdirsContaining(dir, sub string, caseSensitive bool) []string {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil
	}

	needle := sub
	if !caseSensitive {
		needle = strings.ToLower(sub)
	}

	names := make([]string, 0, len(entries))
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		name := e.Name()
		hay := name
		if !caseSensitive {
			hay = strings.ToLower(name)
		}
		if strings.Contains(hay, needle) {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	return names
}

package sidecar

import (
	"os"
	"path/filepath"
	"sort"
	"strings"
	"unicode"

	"github.com/John-Robertt/D2N/internal/domain"
)

// ExtractFields 从文本 sidecar 提取请求的标签字段。
//
// 规则（固定）：
// - 整个文本按空白切分为有序 token 序列
// - 对每个标签做大小写不敏感的首次匹配；值是紧邻的下一个 token
// - 标签多次出现只用第一次；标签是最后一个 token（没有值）按缺失处理
// - 缺失 => domain.NotFound 哨兵；绝不缺列、绝不报错
//
// 特例：
// - Age 的值要去掉一个前导补位 '0' 与一个尾部单位字母（"034Y"→"34"）；
//   过短的 token 不做猜测，按缺失处理（决策见 DESIGN.md）
// - Gender 的值原样使用
func ExtractFields(text string, labels []string) domain.SidecarRecord {
	toks := strings.Fields(text)

	rec := make(domain.SidecarRecord, len(labels))
	for _, label := range labels {
		name := domain.FieldName(label)
		val, ok := findValue(toks, label)
		if ok && strings.EqualFold(name, "Age") {
			val, ok = trimAge(val)
		}
		if !ok {
			rec[name] = domain.NotFound(label)
			continue
		}
		rec[name] = val
	}
	return rec
}

func findValue(toks []string, label string) (string, bool) {
	for i, t := range toks {
		if !strings.EqualFold(t, label) {
			continue
		}
		if i+1 >= len(toks) {
			return "", false
		}
		return toks[i+1], true
	}
	return "", false
}

// trimAge 去掉年龄 token 的前导 '0' 补位与尾部单位字母。
// 原始 token 不足 3 个字符视为畸形，按缺失处理（不接受部分值）。
func trimAge(tok string) (string, bool) {
	if len(tok) < 3 {
		return "", false
	}
	s := tok
	if s[0] == '0' {
		s = s[1:]
	}
	if r := rune(s[len(s)-1]); unicode.IsLetter(r) {
		s = s[:len(s)-1]
	}
	if s == "" {
		return "", false
	}
	return s, true
}

// SeriesNumberFromJSON 从 JSON sidecar 的 token 流里取 "SeriesNumber": 的下一个
// token（去掉尾部逗号）。协议就只消费这一个字段，所以按 token 扫描而不是解析整个 JSON：
// 对不完整/非标准的 sidecar 也能工作（与文本 sidecar 的容错策略一致）。
func SeriesNumberFromJSON(text string) (string, bool) {
	toks := strings.Fields(text)
	for i, t := range toks {
		if !strings.EqualFold(t, `"SeriesNumber":`) {
			continue
		}
		if i+1 >= len(toks) {
			return "", false
		}
		v := strings.TrimSuffix(toks[i+1], ",")
		if v == "" {
			return "", false
		}
		return v, true
	}
	return "", false
}

// FirstWithSuffix 返回 dir 下第一个（字典序）以 suffix 结尾的普通文件。
//
// 一个受试者可能产出多个 sidecar 候选：契约规定只读第一个。
// 这里用排序消除平台目录序差异，让“第一个”在任何文件系统上都一致。
func FirstWithSuffix(dir, suffix string) (string, bool, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return "", false, err
	}

	names := make([]string, 0, len(entries))
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		if strings.HasSuffix(strings.ToLower(e.Name()), strings.ToLower(suffix)) {
			names = append(names, e.Name())
		}
	}
	if len(names) == 0 {
		return "", false, nil
	}
	sort.Strings(names)
	return filepath.Join(dir, names[0]), true, nil
}

package domain

import (
	"regexp"
	"strings"
)

// Subject 是一个受试者的唯一主键（规范化后形如 sub-0001）。
//
// 约束：要么得到唯一 Subject，要么失败；宁可跳过，也不允许把别人的数据当成它的。
type Subject string

var subjectRE = regexp.MustCompile(`^sub-[A-Za-z0-9]+$`)

// ParseSubject 校验并解析受试者目录名。
// 输入必须已经是 sub-<id> 的形态（目录名本身，不带路径）。
func ParseSubject(s string) (Subject, bool) {
	s = strings.TrimSpace(s)
	if !subjectRE.MatchString(s) {
		return "", false
	}
	return Subject(s), true
}

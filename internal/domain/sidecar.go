package domain

import "strings"

// 文本 sidecar 的标签集合（显式数据，不散落在控制流里）。
// 标签以 ':' 结尾；值是标签后紧邻的一个 token。
var (
	LabelsIdentity = []string{"Name:", "Age:", "Gender:"}
	LabelsParams   = []string{"Name:", "Age:", "Gender:", "TR:", "TE:"}
)

// SidecarRecord 是文本 sidecar 提取结果：字段名（去掉冒号的标签）→ 值。
//
// 不变量：每个被请求的字段都有值——要么是提取出的 token，
// 要么是 NotFound 哨兵；绝不缺列。
type SidecarRecord map[string]string

// FieldName 把标签（"Name:"）还原为字段名（"Name"）。
func FieldName(label string) string {
	return strings.TrimSuffix(label, ":")
}

// NotFound 返回字段缺失时的哨兵值（对外表格 schema 的一部分，保持英文）。
func NotFound(label string) string {
	return FieldName(label) + " not found"
}

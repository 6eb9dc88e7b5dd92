package domain

// SeriesMatch 的五种结果（每次解析恰好一种）。
const (
	SeriesUnique         = "unique"          // 唯一命中
	SeriesNoMaster       = "no_master"       // 找不到主系列容器
	SeriesMultipleMaster = "multiple_master" // 主系列容器不唯一（硬停止：后续搜索未定义）
	SeriesNotFound       = "not_found"       // 容器内没有任何名字包含该系列号的条目
	SeriesMultiple       = "multiple"        // 多个条目命中（子串匹配刻意宽松，可能过匹配）
)

// SeriesMatch 是系列解析的结果。
//
// 约束：
// - Kind==SeriesUnique 时 Path 非空，Candidates 为空
// - 多候选类结果（multiple_master/multiple）必须带回 Candidates，供报告区分展示
type SeriesMatch struct {
	Kind       string
	Path       string
	Candidates []string
}

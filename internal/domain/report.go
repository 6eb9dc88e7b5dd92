package domain

import (
	"encoding/json"
	"sort"
	"time"
)

const (
	StatusProcessed = "processed"
	StatusSkipped   = "skipped"
	StatusFailed    = "failed"
)

const (
	ErrCodeToolFailed         = "tool_failed"
	ErrCodeSidecarMissing     = "sidecar_missing"
	ErrCodeSeriesFieldMissing = "series_field_missing"
	ErrCodeMasterMissing      = "master_series_missing"
	ErrCodeMasterMultiple     = "master_series_multiple"
	ErrCodeSeriesNotFound     = "series_not_found"
	ErrCodeSeriesAmbiguous    = "series_ambiguous"
	ErrCodeVolumeMissing      = "volume_missing"
	ErrCodeVolumeAmbiguous    = "volume_ambiguous"
	ErrCodeGeometryFailed     = "geometry_failed"
	ErrCodeIOFailed           = "io_failed"
	ErrCodeConfigNotFound     = "config_not_found"
	ErrCodeConfigInvalid      = "config_invalid"
	ErrCodeConfigMissingInput = "config_missing_input"
)

// RunReport 是对外稳定输出（logs/report.json / stdout JSON）的结构。
type RunReport struct {
	In       string `json:"in"`
	Out      string `json:"out"`
	Category string `json:"category"`

	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at"`

	Summary ReportSummary   `json:"summary"`
	Items   []SubjectResult `json:"items"`
}

type ReportSummary struct {
	Processed int `json:"processed"`
	Skipped   int `json:"skipped"`
	Failed    int `json:"failed"`
}

// SubjectResult 是每个受试者的唯一结果条目（每个被发现的受试者恰好一条）。
//
// Fields 只在 processed 时携带该流程声明的列值（列名→值）；
// failed 的“失败原因铺满所有数据列”由 report 层的唯一映射完成，不在各分支重复。
type SubjectResult struct {
	Subject string `json:"subject"`

	Status    string `json:"status"`
	ErrorCode string `json:"error_code"`
	ErrorMsg  string `json:"error_msg"`

	// Candidates 在歧义类失败（master_series_multiple/series_ambiguous/volume_ambiguous）
	// 时带回候选名，帮助用户逐个排查。
	Candidates []string `json:"candidates"`

	Fields map[string]string `json:"fields,omitempty"`
}

// Finalize 做三件事：
// 1) 时间统一为 UTC（确保 JSON 为 RFC3339 且后缀 Z）
// 2) items 稳定排序：按 subject 字典序；subject=="" 的合成条目排在最后
// 3) summary 由 items 计算得出
func (r *RunReport) Finalize() {
	r.StartedAt = r.StartedAt.UTC()
	r.FinishedAt = r.FinishedAt.UTC()

	sort.SliceStable(r.Items, func(i, j int) bool {
		a := r.Items[i].Subject
		b := r.Items[j].Subject
		if a == "" && b == "" {
			return false
		}
		if a == "" {
			return false
		}
		if b == "" {
			return true
		}
		return a < b
	})

	var s ReportSummary
	for _, it := range r.Items {
		switch it.Status {
		case StatusProcessed:
			s.Processed++
		case StatusSkipped:
			s.Skipped++
		case StatusFailed:
			s.Failed++
		}
	}
	r.Summary = s
}

// MarshalJSON 仅用于集中约束输出的稳定性（避免未来不小心引入非确定字段）。
// 当前只是透传 encoding/json 的默认行为。
func (r RunReport) MarshalJSON() ([]byte, error) {
	type Alias RunReport
	return json.Marshal(Alias(r))
}

package report

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/John-Robertt/D2N/internal/config"
	"github.com/John-Robertt/D2N/internal/domain"
	"github.com/John-Robertt/D2N/internal/infra/fsx"
)

// 表格导出的列 schema（固定外部契约；列名不翻译）。
var (
	columnsCheck  = []string{"subj_ID", "DICOM_Name", "DICOM_Age", "DICOM_Gender"}
	columnsParams = []string{"subj_ID", "DICOM_Name", "DICOM_Age", "DICOM_Gender", "TR", "TE", "image_dim", "voxel_dim", "num_vols"}
)

// Columns 返回 category 的表格列；没有表格的流程（convert/collect）返回 nil。
func Columns(category string) []string {
	switch category {
	case config.CategoryCheck:
		return append([]string(nil), columnsCheck...)
	case config.CategoryParams:
		return append([]string(nil), columnsParams...)
	default:
		return nil
	}
}

// Summary 是一次运行的摘要日志：头块 + 每个受试者一行，逐行落盘。
//
// 约束：
// - 单写者（运行是严格串行的），打开一次、运行结束关闭
// - 文件名只带日期（同日重跑追加到同一文件）；明细表格则带日期+时间——
//   两者粒度不同是有意保留的既有行为
type Summary struct {
	Path string
	f    *os.File
}

// OpenSummary 在 <outRoot>/logs 下以追加模式打开当日摘要日志。
func OpenSummary(outRoot, category string, now time.Time) (*Summary, error) {
	dir := filepath.Join(outRoot, "logs")
	if err := fsx.EnsureDir(dir); err != nil {
		return nil, err
	}
	path := filepath.Join(dir, fmt.Sprintf("summary_%s_%s.log", category, now.Format("20060102")))
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, err
	}
	return &Summary{Path: path, f: f}, nil
}

// Header 写入本次运行的头块（key:value 行）。
func (s *Summary) Header(eff config.EffectiveConfig, subjects int, now time.Time) error {
	var b bytes.Buffer
	fmt.Fprintf(&b, "date: %s\n", now.Format("2006-01-02"))
	fmt.Fprintf(&b, "time: %s\n", now.Format("15:04:05"))
	fmt.Fprintf(&b, "category: %s\n", eff.Category)
	fmt.Fprintf(&b, "in: %s\n", eff.In)
	fmt.Fprintf(&b, "out: %s\n", eff.Out)
	if eff.Raw != "" {
		fmt.Fprintf(&b, "raw: %s\n", eff.Raw)
	}
	fmt.Fprintf(&b, "tool: %s\n", eff.Tool)
	fmt.Fprintf(&b, "subjects: %d\n", subjects)
	_, err := s.f.Write(b.Bytes())
	return err
}

// Line 追加一行受试者结果。os.File 的 Write 即落盘（无用户态缓冲），
// 运行中途被杀也不会丢已完成受试者的记录。
func (s *Summary) Line(subject domain.Subject, text string) error {
	_, err := fmt.Fprintf(s.f, "%s: %s\n", subject, text)
	return err
}

func (s *Summary) Close() error {
	if s.f == nil {
		return nil
	}
	err := s.f.Close()
	s.f = nil
	return err
}

// TablePath 返回明细表格的导出路径：日期+时间粒度，保证同日重跑不互相覆盖。
func TablePath(outRoot, category string, now time.Time) string {
	name := fmt.Sprintf("%s_%s.csv", category, now.Format("20060102_150405"))
	return filepath.Join(outRoot, "logs", name)
}

// WriteTable 把本次运行的表格一次性导出（原子写、不覆盖）。
//
// 不变量：
// - skipped 条目不产生行（只出现在摘要日志里）
// - 每行每列都有值（矩形表格）：processed 用字段值或 "skipped" 哨兵补位，
//   failed 的失败原因铺满所有数据列——统一在 rowFor 做，不在各分支重复
func WriteTable(outRoot, category string, cols []string, items []domain.SubjectResult, now time.Time) (string, error) {
	if len(cols) == 0 {
		return "", nil
	}

	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	if err := w.Write(cols); err != nil {
		return "", err
	}
	for _, it := range items {
		if it.Status == domain.StatusSkipped || it.Subject == "" {
			continue
		}
		if err := w.Write(rowFor(cols, it)); err != nil {
			return "", err
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return "", err
	}

	path := TablePath(outRoot, category, now)
	if err := fsx.WriteFileAtomicNoOverwrite(filepath.Dir(path), filepath.Base(path), buf.Bytes()); err != nil {
		return "", err
	}
	return path, nil
}

// rowFor 是唯一的结果→行映射：失败铺满数据列、缺字段补哨兵都只在这里做一次。
func rowFor(cols []string, it domain.SubjectResult) []string {
	row := make([]string, len(cols))
	for i, col := range cols {
		if i == 0 {
			row[i] = it.Subject
			continue
		}
		if it.Status == domain.StatusFailed {
			row[i] = it.ErrorMsg
			continue
		}
		if v, ok := it.Fields[col]; ok && v != "" {
			row[i] = v
			continue
		}
		row[i] = "skipped"
	}
	return row
}

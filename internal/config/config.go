package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

const (
	// ErrCodeNotFound 表示无参运行但 cwd 下没有 d2n.json。
	ErrCodeNotFound = "config_not_found"
	// ErrCodeInvalid 表示配置文件/参数无法解析，或字段不合法（路径不存在、category 非法等）。
	ErrCodeInvalid = "config_invalid"
	// ErrCodeMissingInput 表示必填输入缺失（in/out/tool 未给出）。
	ErrCodeMissingInput = "config_missing_input"
)

// 四种流程（category）。非法 category 是运行级配置错误，不进入任何受试者处理。
const (
	CategoryConvert = "convert"
	CategoryCheck   = "check"
	CategoryParams  = "params"
	CategoryCollect = "collect"
)

// DefaultExcludeSuffixes 是主卷选择的默认排除子串（已知的替代对比度标记）。
var DefaultExcludeSuffixes = []string{"_PSIR"}

// CLIArgs 包含 CLI 暴露的入口参数，并保留“是否显式指定”的信息，
// 以保证覆盖优先级可实现（CLI > 配置文件 > 默认值）。
type CLIArgs struct {
	Category string

	In      string
	InSet   bool
	Out     string
	OutSet  bool
	Raw     string
	RawSet  bool
	Tool    string
	ToolSet bool
}

// FileConfig 对应 d2n.json 的解析结构。
type FileConfig struct {
	In              string   `json:"in"`
	Out             string   `json:"out"`
	Raw             string   `json:"raw"`
	Tool            string   `json:"tool"`
	Category        string   `json:"category"`
	ExcludeSuffixes []string `json:"exclude_suffixes"`
}

// EffectiveConfig 是合并并校验后的最终配置（实现层直接消费，不再做二次默认/优先级判断）。
//
// 不变量：所有路径均为 clean + absolute；In/Tool 存在；Out 已创建；
// category==params 时 Raw 存在。
type EffectiveConfig struct {
	Category string

	In   string
	Out  string
	Raw  string
	Tool string

	ExcludeSuffixes []string
}

// Error 是配置阶段的结构化错误（带 error_code）。
type Error struct {
	Code string
	Path string
	Err  error
}

func (e *Error) Error() string {
	switch e.Code {
	case ErrCodeNotFound:
		return fmt.Sprintf("%s：未找到配置文件 %q", e.Code, e.Path)
	case ErrCodeMissingInput:
		return fmt.Sprintf("%s：缺少必填输入 %s", e.Code, e.Path)
	case ErrCodeInvalid:
		if e.Err != nil {
			return fmt.Sprintf("%s：%v", e.Code, e.Err)
		}
		return fmt.Sprintf("%s：配置 %q 无效", e.Code, e.Path)
	default:
		if e.Err != nil {
			return fmt.Sprintf("%s：%v", e.Code, e.Err)
		}
		return e.Code
	}
}

func (e *Error) Unwrap() error { return e.Err }

// Code 从 error 中提取 error_code；若不是 *Error 则返回空串。
func Code(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return ""
}

// LoadEffective 读取 <cwd>/d2n.json（可选），与 CLI 参数合并并做全部校验。
//
// 覆盖优先级（固定）：
// - category：CLI 位置参数 > config（CLI 为空且 config 也为空 => 错误）
// - in/out/raw/tool：CLI > config
// - exclude_suffixes：仅由 config 控制；未指定时使用 DefaultExcludeSuffixes
//
// 校验（全部在任何受试者处理之前完成）：
// - category 必须是 convert|check|params|collect
// - in 必须是已存在的目录；tool 必须是已存在的文件
// - out 不存在则创建（创建输出根是准备工作，不属于受试者处理）
// - category==params 时 raw 必须是已存在的目录
func LoadEffective(cwd string, cli CLIArgs) (EffectiveConfig, error) {
	cwdAbs, err := filepath.Abs(cwd)
	if err != nil {
		return EffectiveConfig{}, &Error{Code: ErrCodeInvalid, Path: cwd, Err: err}
	}

	cfgPath := filepath.Join(cwdAbs, "d2n.json")
	fc, exists, err := readFileConfig(cfgPath)
	if err != nil {
		return EffectiveConfig{}, &Error{Code: ErrCodeInvalid, Path: cfgPath, Err: err}
	}

	category := strings.TrimSpace(cli.Category)
	if category == "" {
		category = strings.TrimSpace(fc.Category)
	}
	if err := validateCategory(category); err != nil {
		return EffectiveConfig{}, &Error{Code: ErrCodeInvalid, Path: cfgPath, Err: err}
	}

	in := pickPath(cli.In, cli.InSet, fc.In)
	out := pickPath(cli.Out, cli.OutSet, fc.Out)
	raw := pickPath(cli.Raw, cli.RawSet, fc.Raw)
	tool := pickPath(cli.Tool, cli.ToolSet, fc.Tool)

	// 必填输入缺失：若 CLI 与配置都没给、且配置文件也不存在，归类为 not_found 更可操作。
	if in == "" || out == "" || tool == "" {
		if !exists && !cli.InSet && !cli.OutSet && !cli.ToolSet {
			return EffectiveConfig{}, &Error{Code: ErrCodeNotFound, Path: cfgPath, Err: os.ErrNotExist}
		}
		return EffectiveConfig{}, &Error{Code: ErrCodeMissingInput, Path: missingNames(in, out, tool)}
	}

	in = absCleanFrom(cwdAbs, in)
	out = absCleanFrom(cwdAbs, out)
	tool = absCleanFrom(cwdAbs, tool)
	if raw != "" {
		raw = absCleanFrom(cwdAbs, raw)
	}

	if err := mustBeDir(in); err != nil {
		return EffectiveConfig{}, &Error{Code: ErrCodeInvalid, Path: in, Err: fmt.Errorf("输入根目录无效：%w", err)}
	}
	if err := mustBeFile(tool); err != nil {
		return EffectiveConfig{}, &Error{Code: ErrCodeInvalid, Path: tool, Err: fmt.Errorf("转换工具无效：%w", err)}
	}
	if category == CategoryParams {
		if raw == "" {
			return EffectiveConfig{}, &Error{Code: ErrCodeMissingInput, Path: "raw"}
		}
		if err := mustBeDir(raw); err != nil {
			return EffectiveConfig{}, &Error{Code: ErrCodeInvalid, Path: raw, Err: fmt.Errorf("原始数据根目录无效：%w", err)}
		}
	}
	if err := os.MkdirAll(out, 0o755); err != nil {
		return EffectiveConfig{}, &Error{Code: ErrCodeInvalid, Path: out, Err: fmt.Errorf("创建输出根目录失败：%w", err)}
	}

	excl := fc.ExcludeSuffixes
	if excl == nil {
		excl = DefaultExcludeSuffixes
	}

	return EffectiveConfig{
		Category:        category,
		In:              in,
		Out:             out,
		Raw:             raw,
		Tool:            tool,
		ExcludeSuffixes: append([]string(nil), excl...),
	}, nil
}

func validateCategory(c string) error {
	switch c {
	case CategoryConvert, CategoryCheck, CategoryParams, CategoryCollect:
		return nil
	case "":
		return fmt.Errorf("category 不能为空")
	default:
		return fmt.Errorf("category 只能是 convert、check、params 或 collect，实际是 %q", c)
	}
}

func pickPath(cliVal string, cliSet bool, fileVal string) string {
	if cliSet && strings.TrimSpace(cliVal) != "" {
		return strings.TrimSpace(cliVal)
	}
	return strings.TrimSpace(fileVal)
}

func missingNames(in, out, tool string) string {
	miss := make([]string, 0, 3)
	if in == "" {
		miss = append(miss, "in")
	}
	if out == "" {
		miss = append(miss, "out")
	}
	if tool == "" {
		miss = append(miss, "tool")
	}
	return strings.Join(miss, ",")
}

func mustBeDir(p string) error {
	fi, err := os.Stat(p)
	if err != nil {
		return err
	}
	if !fi.IsDir() {
		return fmt.Errorf("%q 不是目录", p)
	}
	return nil
}

func mustBeFile(p string) error {
	fi, err := os.Stat(p)
	if err != nil {
		return err
	}
	if fi.IsDir() {
		return fmt.Errorf("%q 是目录，不是可执行文件", p)
	}
	return nil
}

// absCleanFrom 以 base 为基准，把 p 变为 clean + absolute。
// - p 若已是绝对路径：直接 Clean
// - p 若是相对路径：Join(base, p) 后 Clean
func absCleanFrom(base, p string) string {
	p = filepath.Clean(strings.TrimSpace(p))
	if p == "" {
		return ""
	}
	if filepath.IsAbs(p) {
		return p
	}
	return filepath.Clean(filepath.Join(base, p))
}

// readFileConfig 读取并解析 JSON 配置文件。
// 返回值 exists 表示该文件是否存在（不存在不算错误）。
func readFileConfig(path string) (fc FileConfig, exists bool, err error) {
	b, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return FileConfig{}, false, nil
		}
		return FileConfig{}, false, err
	}
	if err := json.Unmarshal(b, &fc); err != nil {
		return FileConfig{}, true, err
	}
	return fc, true, nil
}

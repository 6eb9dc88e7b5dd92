package domain

// DefaultNameTemplate 是输出文件名模板的最终默认值（转换工具的 -f 参数）。
const DefaultNameTemplate = "%f_%p_%s"

// ConvOptions 是一次外部转换调用的完整选项（不可变；构造一次，完全决定命令行）。
//
// 约束：
// - 布尔选项在命令行上渲染为字面 y/n（转换工具的固定外部契约）
// - TextSidecar 为 nil 时不输出 -t（该参数在协议里是可选的）
// - Series 为空串时不输出 -n（仅第二遍按系列转换时设置）
type ConvOptions struct {
	Layout   bool // -b：按结构化布局组织输出
	Compress bool // -z：压缩输出
	Precise  bool // -p：使用精确数值

	TextSidecar *bool // -t：生成文本 sidecar（可选参数）

	NameTemplate string // -f：输出名模板；空串使用 DefaultNameTemplate
	Series       string // -n：目标系列号（原样传递 sidecar 提取到的 token）
}

// Args 把选项序列化为外部工具的参数序列（不含工具路径本身）。
// 这是唯一的序列化点：任何地方都不允许手拼 y/n 标志。
func (o ConvOptions) Args(inDir, outDir string) []string {
	args := make([]string, 0, 14)
	args = append(args, "-b", yn(o.Layout), "-z", yn(o.Compress), "-p", yn(o.Precise))
	if o.TextSidecar != nil {
		args = append(args, "-t", yn(*o.TextSidecar))
	}
	if o.Series != "" {
		args = append(args, "-n", o.Series)
	}
	tmpl := o.NameTemplate
	if tmpl == "" {
		tmpl = DefaultNameTemplate
	}
	args = append(args, "-f", tmpl, "-o", outDir, inDir)
	return args
}

func yn(b bool) string {
	if b {
		return "y"
	}
	return "n"
}

// ConvResult 是一次外部转换的结果。
// 非零退出码不是 Go 层面的 error：由调用方归类为 tool_failed 并记录。
type ConvResult struct {
	ExitStatus int
	OutDir     string
}

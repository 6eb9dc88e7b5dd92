package run

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/John-Robertt/D2N/internal/config"
	"github.com/John-Robertt/D2N/internal/domain"
	"github.com/John-Robertt/D2N/internal/infra/execx"
	"github.com/John-Robertt/D2N/internal/infra/fsx"
	"github.com/John-Robertt/D2N/internal/infra/niix"
	"github.com/John-Robertt/D2N/internal/pick"
	"github.com/John-Robertt/D2N/internal/report"
	"github.com/John-Robertt/D2N/internal/scan"
	"github.com/John-Robertt/D2N/internal/series"
	"github.com/John-Robertt/D2N/internal/sidecar"
)

// Execute 执行一次 run，并返回对外稳定的 RunReport。
// 该函数尽量把错误“降级”为受试者级失败（单个失败不影响其他受试者）；
// 只有配置错误（入口校验）与环境级工具失败会中止整个运行。
func Execute(ctx context.Context, eff config.EffectiveConfig) domain.RunReport {
	return ExecuteWithObserver(ctx, eff, nil)
}

// ExecuteWithObserver 与 Execute 相同，但允许传入 Observer 以输出进度/阶段信息（由上层决定是否启用）。
//
// 处理是严格串行的：受试者按字典序一个一个来。外部工具占了绝大部分墙钟时间，
// 且不保证对共享工作目录可重入，所以这里不做任何并发。
func ExecuteWithObserver(ctx context.Context, eff config.EffectiveConfig, obs Observer) domain.RunReport {
	started := time.Now().UTC()

	if obs != nil {
		obs.OnStart(eff)
	}

	rr := domain.RunReport{
		In:        eff.In,
		Out:       eff.Out,
		Category:  eff.Category,
		StartedAt: started,
		Items:     make([]domain.SubjectResult, 0, 128),
	}

	scanStarted := time.Now()
	subjects, err := scan.Subjects(eff.In)
	if err != nil {
		rr.Items = append(rr.Items, syntheticFailed(domain.ErrCodeIOFailed, fmt.Sprintf("枚举受试者失败：%v", err)))
		rr.FinishedAt = time.Now().UTC()
		rr.Finalize()
		return rr
	}
	scanDur := time.Since(scanStarted)

	sum, err := report.OpenSummary(eff.Out, eff.Category, started)
	if err != nil {
		rr.Items = append(rr.Items, syntheticFailed(domain.ErrCodeIOFailed, fmt.Sprintf("打开摘要日志失败：%v", err)))
		rr.FinishedAt = time.Now().UTC()
		rr.Finalize()
		return rr
	}
	defer sum.Close()
	if err := sum.Header(eff, len(subjects), started); err != nil {
		rr.Items = append(rr.Items, syntheticFailed(domain.ErrCodeIOFailed, fmt.Sprintf("写入摘要头块失败：%v", err)))
	}

	if obs != nil {
		obs.OnPhaseDone("scan", map[string]any{
			"subjects": len(subjects),
		}, scanDur)
	}

	for i, id := range subjects {
		oneStarted := time.Now()
		res, fatal := processOne(ctx, eff, id)
		_ = sum.Line(id, summaryText(res))
		rr.Items = append(rr.Items, res)
		if obs != nil {
			obs.OnSubjectDone(i+1, len(subjects), id, res, time.Since(oneStarted))
		}
		if fatal != nil {
			// 环境级失败（工具起不来）：继续处理其余受试者只会重复同一个错误，中止。
			rr.Items = append(rr.Items, syntheticFailed(domain.ErrCodeToolFailed, fatal.Error()))
			break
		}
	}

	if path, err := report.WriteTable(eff.Out, eff.Category, report.Columns(eff.Category), rr.Items, started); err != nil {
		rr.Items = append(rr.Items, syntheticFailed(domain.ErrCodeIOFailed, fmt.Sprintf("导出表格失败：%v", err)))
	} else if path != "" && obs != nil {
		obs.OnPhaseDone("table", map[string]any{"path": path}, 0)
	}

	rr.FinishedAt = time.Now().UTC()
	rr.Finalize()
	return rr
}

// processOne 处理一个受试者，返回其唯一结果条目。
// 第二个返回值非 nil 表示环境级失败（整个运行须中止）。
func processOne(ctx context.Context, eff config.EffectiveConfig, id domain.Subject) (domain.SubjectResult, error) {
	switch eff.Category {
	case config.CategoryConvert:
		return convertOne(ctx, eff, id)
	case config.CategoryCheck:
		return checkOne(ctx, eff, id)
	case config.CategoryParams:
		return paramsOne(ctx, eff, id)
	case config.CategoryCollect:
		return collectOne(eff, id), nil
	default:
		// LoadEffective 已校验过 category；走到这里是编程错误。
		return failedResult(id, domain.ErrCodeConfigInvalid, fmt.Sprintf("未知 category：%q", eff.Category), nil), nil
	}
}

// convertOne 是 convert 流程：幂等闸门 + 第一遍整目录转换。
func convertOne(ctx context.Context, eff config.EffectiveConfig, id domain.Subject) (domain.SubjectResult, error) {
	if !scan.ShouldProcess(eff.Out, id) {
		return skippedResult(id, "输出已存在"), nil
	}

	res, _, fatal := firstPass(ctx, eff, id)
	return res, fatal
}

// checkOne 是 check 流程：第一遍转换 + 文本 sidecar 的身份字段核对。
func checkOne(ctx context.Context, eff config.EffectiveConfig, id domain.Subject) (domain.SubjectResult, error) {
	if !scan.ShouldProcess(eff.Out, id) {
		return skippedResult(id, "输出已存在"), nil
	}

	res, outDir, fatal := firstPass(ctx, eff, id)
	if fatal != nil || res.Status != domain.StatusProcessed {
		return res, fatal
	}

	rec, fail := readTextSidecar(outDir, domain.LabelsIdentity, id)
	if fail != nil {
		return *fail, nil
	}

	res.Fields = map[string]string{
		"DICOM_Name":   rec["Name"],
		"DICOM_Age":    rec["Age"],
		"DICOM_Gender": rec["Gender"],
	}
	return res, nil
}

// paramsOne 是 params 流程：第一遍转换、元数据提取、系列解析、
// 第二遍按系列转换、几何读取。失败分支各自有不可混淆的归类与消息。
func paramsOne(ctx context.Context, eff config.EffectiveConfig, id domain.Subject) (domain.SubjectResult, error) {
	if !scan.ShouldProcess(eff.Out, id) {
		return skippedResult(id, "输出已存在"), nil
	}

	res, outDir, fatal := firstPass(ctx, eff, id)
	if fatal != nil || res.Status != domain.StatusProcessed {
		return res, fatal
	}

	rec, failRes := readTextSidecar(outDir, domain.LabelsParams, id)
	if failRes != nil {
		return *failRes, nil
	}

	// 主卷选择：排除已知替代对比度标记后必须唯一。
	vols, err := listVolumes(outDir)
	if err != nil {
		return failedResult(id, domain.ErrCodeIOFailed, fmt.Sprintf("读取输出目录失败：%v", err), nil), nil
	}
	sel := pick.Primary(vols, eff.ExcludeSuffixes)
	switch sel.Kind {
	case pick.NoneFound:
		return failedResult(id, domain.ErrCodeVolumeMissing, "未找到主卷（输出目录没有 .nii/.nii.gz 候选）", nil), nil
	case pick.Ambiguous:
		return failedResult(id, domain.ErrCodeVolumeAmbiguous, "主卷候选不唯一，拒绝猜测", sel.Candidates), nil
	}

	// JSON sidecar 只为这一个字段存在：系列号。
	jsonPath := filepath.Join(outDir, volumeBase(sel.Name)+".json")
	jb, err := os.ReadFile(jsonPath)
	if err != nil {
		if os.IsNotExist(err) {
			return failedResult(id, domain.ErrCodeSidecarMissing, fmt.Sprintf("主卷 %s 没有对应的 JSON sidecar", sel.Name), nil), nil
		}
		return failedResult(id, domain.ErrCodeIOFailed, fmt.Sprintf("读取 JSON sidecar 失败：%v", err), nil), nil
	}
	seriesNum, ok := sidecar.SeriesNumberFromJSON(string(jb))
	if !ok {
		return failedResult(id, domain.ErrCodeSeriesFieldMissing, "JSON sidecar 中没有 SeriesNumber 字段", nil), nil
	}

	// 系列解析：五种结果各自独立呈现（任何两类失败不允许共用一条消息）。
	m := series.Resolve(filepath.Join(eff.Raw, string(id)), seriesNum, series.DefaultMasterMarker)
	switch m.Kind {
	case domain.SeriesNoMaster:
		return failedResult(id, domain.ErrCodeMasterMissing, "原始数据树中没有主系列容器", nil), nil
	case domain.SeriesMultipleMaster:
		return failedResult(id, domain.ErrCodeMasterMultiple, "原始数据树中主系列容器不唯一", m.Candidates), nil
	case domain.SeriesNotFound:
		return failedResult(id, domain.ErrCodeSeriesNotFound, fmt.Sprintf("主容器内没有名字包含系列号 %s 的目录", seriesNum), nil), nil
	case domain.SeriesMultiple:
		return failedResult(id, domain.ErrCodeSeriesAmbiguous, fmt.Sprintf("系列号 %s 命中多个目录（子串匹配过宽）", seriesNum), m.Candidates), nil
	}

	// 第二遍：只转换解析出的那个系列，产物放进独立子目录，避免与第一遍产物混淆。
	seriesOut := filepath.Join(outDir, "series_"+seriesNum)
	if err := fsx.EnsureDir(seriesOut); err != nil {
		return failedResult(id, domain.ErrCodeIOFailed, fmt.Sprintf("创建系列输出目录失败：%v", err), nil), nil
	}
	opts := domain.ConvOptions{Layout: true, Compress: true, Precise: true, Series: seriesNum}
	cr, err := execx.Invoke(ctx, eff.Tool, opts, m.Path, seriesOut, filepath.Join(outDir, "series_convert.log"))
	if err != nil {
		return failedResult(id, domain.ErrCodeToolFailed, err.Error(), nil), err
	}
	if cr.ExitStatus != 0 {
		return failedResult(id, domain.ErrCodeToolFailed, fmt.Sprintf("第二遍（按系列）转换退出码 %d", cr.ExitStatus), nil), nil
	}

	svols, err := listVolumes(seriesOut)
	if err != nil {
		return failedResult(id, domain.ErrCodeIOFailed, fmt.Sprintf("读取系列输出目录失败：%v", err), nil), nil
	}
	ssel := pick.Primary(svols, nil)
	switch ssel.Kind {
	case pick.NoneFound:
		return failedResult(id, domain.ErrCodeVolumeMissing, "第二遍转换没有产出卷", nil), nil
	case pick.Ambiguous:
		return failedResult(id, domain.ErrCodeVolumeAmbiguous, "第二遍转换产出多个卷，拒绝猜测", ssel.Candidates), nil
	}

	geom, err := niix.ReadGeometry(filepath.Join(seriesOut, ssel.Name))
	if err != nil {
		return failedResult(id, domain.ErrCodeGeometryFailed, fmt.Sprintf("读取卷几何失败：%v", err), nil), nil
	}

	res.Fields = map[string]string{
		"DICOM_Name":   rec["Name"],
		"DICOM_Age":    rec["Age"],
		"DICOM_Gender": rec["Gender"],
		"TR":           rec["TR"],
		"TE":           rec["TE"],
		"image_dim":    fmt.Sprintf("%d x %d x %d", geom.Dim[0], geom.Dim[1], geom.Dim[2]),
		"voxel_dim":    fmt.Sprintf("%g x %g x %g", geom.Pix[0], geom.Pix[1], geom.Pix[2]),
		"num_vols":     strconv.Itoa(geom.Vols),
	}
	return res, nil
}

// collectOne 是 collect 流程：不调用转换工具，只把每个受试者的主卷
// 复制到 <out>/collected/。拿不准（无候选/多候选）一律跳过并记录，不做破坏性动作。
func collectOne(eff config.EffectiveConfig, id domain.Subject) domain.SubjectResult {
	outDir := filepath.Join(eff.Out, string(id))
	fi, err := os.Stat(outDir)
	if err != nil || !fi.IsDir() {
		return skippedWithCode(id, domain.ErrCodeVolumeMissing, "受试者没有输出目录，无可收集的卷")
	}

	vols, err := listVolumes(outDir)
	if err != nil {
		return failedResult(id, domain.ErrCodeIOFailed, fmt.Sprintf("读取输出目录失败：%v", err), nil)
	}
	sel := pick.Primary(vols, eff.ExcludeSuffixes)
	switch sel.Kind {
	case pick.NoneFound:
		return skippedWithCode(id, domain.ErrCodeVolumeMissing, "排除后没有剩余候选卷")
	case pick.Ambiguous:
		res := skippedWithCode(id, domain.ErrCodeVolumeAmbiguous, "候选卷不唯一，拒绝猜测")
		res.Candidates = sel.Candidates
		return res
	}

	dstName := string(id) + volumeExt(sel.Name)
	err = fsx.CopyFileNoOverwrite(filepath.Join(outDir, sel.Name), filepath.Join(eff.Out, "collected"), dstName)
	if err != nil {
		if errors.Is(err, os.ErrExist) {
			return skippedResult(id, "已收集")
		}
		return failedResult(id, domain.ErrCodeIOFailed, fmt.Sprintf("复制主卷失败：%v", err), nil)
	}

	res := okResult(id)
	res.Fields = map[string]string{"collected": dstName}
	return res
}

// firstPass 执行第一遍整目录转换（convert/check/params 共用）。
// 返回的 res.Status==processed 表示可以继续后续阶段。
func firstPass(ctx context.Context, eff config.EffectiveConfig, id domain.Subject) (domain.SubjectResult, string, error) {
	inDir := filepath.Join(eff.In, string(id))
	outDir := filepath.Join(eff.Out, string(id))

	if err := fsx.EnsureDir(outDir); err != nil {
		return failedResult(id, domain.ErrCodeIOFailed, fmt.Sprintf("创建输出目录失败：%v", err), nil), outDir, nil
	}

	text := true
	opts := domain.ConvOptions{Layout: true, Compress: true, Precise: true, TextSidecar: &text}
	logPath := filepath.Join(outDir, "convert.log")
	cr, err := execx.Invoke(ctx, eff.Tool, opts, inDir, outDir, logPath)
	if err != nil {
		return failedResult(id, domain.ErrCodeToolFailed, err.Error(), nil), outDir, err
	}
	if cr.ExitStatus != 0 {
		return failedResult(id, domain.ErrCodeToolFailed,
			fmt.Sprintf("转换工具退出码 %d（日志：%s）", cr.ExitStatus, logPath), nil), outDir, nil
	}
	return okResult(id), outDir, nil
}

// readTextSidecar 读取受试者输出目录下第一个文本 sidecar 并提取字段。
// 字段缺失不是错误（哨兵值进表格）；文件缺失/读不到才是失败。
func readTextSidecar(outDir string, labels []string, id domain.Subject) (domain.SidecarRecord, *domain.SubjectResult) {
	path, ok, err := sidecar.FirstWithSuffix(outDir, ".txt")
	if err != nil {
		r := failedResult(id, domain.ErrCodeIOFailed, fmt.Sprintf("查找文本 sidecar 失败：%v", err), nil)
		return nil, &r
	}
	if !ok {
		r := failedResult(id, domain.ErrCodeSidecarMissing, "未找到文本 sidecar（*.txt）", nil)
		return nil, &r
	}
	b, err := os.ReadFile(path)
	if err != nil {
		r := failedResult(id, domain.ErrCodeIOFailed, fmt.Sprintf("读取文本 sidecar 失败：%v", err), nil)
		return nil, &r
	}
	return sidecar.ExtractFields(string(b), labels), nil
}

// listVolumes 列出 dir 里的卷文件名（.nii/.nii.gz，仅第一层，排序）。
func listVolumes(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		low := strings.ToLower(e.Name())
		if strings.HasSuffix(low, ".nii") || strings.HasSuffix(low, ".nii.gz") {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)
	return names, nil
}

// volumeBase 去掉卷文件名的扩展名（".nii.gz" 按一个整体处理）。
func volumeBase(name string) string {
	low := strings.ToLower(name)
	if strings.HasSuffix(low, ".nii.gz") {
		return name[:len(name)-len(".nii.gz")]
	}
	return strings.TrimSuffix(name, filepath.Ext(name))
}

func volumeExt(name string) string {
	return name[len(volumeBase(name)):]
}

func okResult(id domain.Subject) domain.SubjectResult {
	return domain.SubjectResult{
		Subject:    string(id),
		Status:     domain.StatusProcessed,
		Candidates: []string{},
	}
}

func skippedResult(id domain.Subject, msg string) domain.SubjectResult {
	return domain.SubjectResult{
		Subject:    string(id),
		Status:     domain.StatusSkipped,
		ErrorMsg:   msg,
		Candidates: []string{},
	}
}

func skippedWithCode(id domain.Subject, code, msg string) domain.SubjectResult {
	r := skippedResult(id, msg)
	r.ErrorCode = code
	return r
}

func failedResult(id domain.Subject, code, msg string, candidates []string) domain.SubjectResult {
	if candidates == nil {
		candidates = []string{}
	}
	return domain.SubjectResult{
		Subject:    string(id),
		Status:     domain.StatusFailed,
		ErrorCode:  code,
		ErrorMsg:   msg,
		Candidates: candidates,
	}
}

func syntheticFailed(code, msg string) domain.SubjectResult {
	return domain.SubjectResult{
		Subject:    "",
		Status:     domain.StatusFailed,
		ErrorCode:  code,
		ErrorMsg:   msg,
		Candidates: []string{},
	}
}

// summaryText 渲染摘要日志里的一行结果文本。
func summaryText(res domain.SubjectResult) string {
	switch res.Status {
	case domain.StatusProcessed:
		return "完成"
	case domain.StatusSkipped:
		if res.ErrorMsg != "" {
			return "跳过：" + res.ErrorMsg
		}
		return "跳过"
	default:
		if len(res.Candidates) > 0 {
			return fmt.Sprintf("失败（%s）：%s；候选：%s", res.ErrorCode, res.ErrorMsg, strings.Join(res.Candidates, ", "))
		}
		return fmt.Sprintf("失败（%s）：%s", res.ErrorCode, res.ErrorMsg)
	}
}

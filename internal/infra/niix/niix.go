package niix

import (
	"compress/gzip"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"strings"
)

// Geometry 是一个已转换卷的体素几何（只取 NIfTI-1 头里的两个字段，不读像素数据）。
type Geometry struct {
	Dim  [3]int     // 体素网格尺寸 X/Y/Z
	Pix  [3]float64 // 体素间距（单位由数据决定，通常 mm）
	Vols int        // 第四维体积数；三维卷为 1
}

// NIfTI-1 固定头：348 字节；dim 在偏移 40（8×int16），pixdim 在偏移 76（8×float32），
// magic 在偏移 344（"n+1\0" 单文件 / "ni1\0" 头+数据分离）。
const headerSize = 348

var ErrNotNIfTI = errors.New("不是 NIfTI-1 文件（magic 不匹配）")

// ReadGeometry 读取 .nii / .nii.gz 的头并返回几何信息。
//
// - 两种字节序都接受：以 sizeof_hdr==348 判定
// - 只消费头部 348 字节；像素数据与 affine 一概不碰（超出本系统职责）
func ReadGeometry(path string) (Geometry, error) {
	f, err := os.Open(path)
	if err != nil {
		return Geometry{}, err
	}
	defer f.Close()

	var r io.Reader = f
	if strings.HasSuffix(strings.ToLower(path), ".gz") {
		gz, err := gzip.NewReader(f)
		if err != nil {
			return Geometry{}, fmt.Errorf("解压 %q 失败：%w", path, err)
		}
		defer gz.Close()
		r = gz
	}

	hdr := make([]byte, headerSize)
	if _, err := io.ReadFull(r, hdr); err != nil {
		return Geometry{}, fmt.Errorf("读取 NIfTI 头失败（%q）：%w", path, err)
	}
	return decodeHeader(hdr)
}

func decodeHeader(hdr []byte) (Geometry, error) {
	if m := string(hdr[344:347]); m != "n+1" && m != "ni1" {
		return Geometry{}, ErrNotNIfTI
	}

	var order binary.ByteOrder = binary.LittleEndian
	if order.Uint32(hdr[0:4]) != headerSize {
		order = binary.BigEndian
		if order.Uint32(hdr[0:4]) != headerSize {
			return Geometry{}, fmt.Errorf("NIfTI 头 sizeof_hdr 非法（期望 %d）", headerSize)
		}
	}

	dim := func(i int) int {
		return int(int16(order.Uint16(hdr[40+2*i : 42+2*i])))
	}
	pixdim := func(i int) float64 {
		return float64(math.Float32frombits(order.Uint32(hdr[76+4*i : 80+4*i])))
	}

	ndim := dim(0)
	if ndim < 1 || ndim > 7 {
		return Geometry{}, fmt.Errorf("NIfTI 维度数非法：%d", ndim)
	}

	g := Geometry{Vols: 1}
	for i := 0; i < 3; i++ {
		d := 1
		if i < ndim {
			d = dim(i + 1)
		}
		if d < 1 {
			return Geometry{}, fmt.Errorf("NIfTI dim[%d] 非法：%d", i+1, d)
		}
		g.Dim[i] = d
		g.Pix[i] = pixdim(i + 1)
	}
	if ndim >= 4 {
		if v := dim(4); v > 0 {
			g.Vols = v
		}
	}
	return g, nil
}

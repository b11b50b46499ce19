package ffkit

import (
	"fmt"
	"strconv"
	"strings"
)

type (
	// CropKeyframe 时间索引的裁剪关键帧，关键帧之间线性插值
	CropKeyframe struct {
		Time   float64
		X      float64
		Y      float64
		Width  float64
		Height float64
	}
	// SpeedSegment 源时间区间与倍速
	SpeedSegment struct {
		Start float64
		End   float64
		Speed float64
	}
	// Range 源时间的可见范围
	Range struct {
		Start float64
		End   float64
	}
	// ClipParams 单片段编码参数
	ClipParams struct {
		Crop         []CropKeyframe
		Segments     []SpeedSegment
		Trim         *Range
		TargetFPS    int
		OutWidth     int
		OutHeight    int
		IncludeAudio bool
	}

	// Transition 多片段拼接过渡
	Transition struct {
		Type     string  `json:"type"`
		Duration float64 `json:"duration"`
	}

	// OverlayWindow 高亮覆盖启用的时间窗口，椭圆参数为窗口中点的插值结果
	OverlayWindow struct {
		Start   float64
		End     float64
		CenterX float64
		CenterY float64
		RadiusX float64
		RadiusY float64
		Opacity float64
	}
	// OverlayParams 高亮覆盖趟编码参数
	OverlayParams struct {
		Effect  string
		Windows []OverlayWindow
	}
)

const (
	TransitionCut  = "cut"
	TransitionFade = "fade"

	// DefaultTransitionDuration 过渡边界预算
	DefaultTransitionDuration = 0.5

	EffectBrightnessBoost = "brightness_boost"
	EffectDarkOverlay     = "dark_overlay"
	EffectOriginal        = "original"
)

func f(v float64) string { return strconv.FormatFloat(v, 'f', -1, 64) }

// BuildClipArgs 构造单片段编码命令参数：裁剪 → 修剪/变速 → 缩放归一化
func (e Encoder) BuildClipArgs(input, output string, p ClipParams) []string {
	args := []string{"-hide_banner", "-y", "-i", input}

	var chains []string
	label := "[0:v]"

	if crop := cropFilter(p.Crop); crop != "" {
		chains = append(chains, label+crop+"[vc]")
		label = "[vc]"
	}

	segs := visibleSegments(p.Segments, p.Trim)
	needComplex := len(segs) > 1 || (len(segs) == 1 && segs[0].Speed != 1) || p.Trim != nil

	if needComplex {
		v, a := segmentChains(label, segs, p.IncludeAudio)
		chains = append(chains, v...)
		chains = append(chains, a...)
		label = "[vseg]"
	}

	post := fmt.Sprintf("scale=%d:%d,fps=%d,setsar=1", p.OutWidth, p.OutHeight, p.TargetFPS)
	chains = append(chains, label+post+"[vout]")

	args = append(args, "-filter_complex", strings.Join(chains, ";"))
	args = append(args, "-map", "[vout]")
	if p.IncludeAudio {
		if needComplex {
			args = append(args, "-map", "[aseg]")
		} else {
			args = append(args, "-map", "0:a?")
		}
	} else {
		args = append(args, "-an")
	}
	args = append(args,
		"-c:v", "libx264", "-preset", "fast", "-crf", "20",
		"-pix_fmt", "yuv420p",
	)
	if p.IncludeAudio {
		args = append(args, "-c:a", "aac")
	}
	return append(args, output)
}

// cropFilter 静态裁剪直接取值，动态裁剪生成分段线性表达式
func cropFilter(keys []CropKeyframe) string {
	switch len(keys) {
	case 0:
		return ""
	case 1:
		k := keys[0]
		return fmt.Sprintf("crop=%s:%s:%s:%s", f(k.Width), f(k.Height), f(k.X), f(k.Y))
	}
	static := true
	for _, k := range keys[1:] {
		if k.X != keys[0].X || k.Y != keys[0].Y || k.Width != keys[0].Width || k.Height != keys[0].Height {
			static = false
			break
		}
	}
	if static {
		k := keys[0]
		return fmt.Sprintf("crop=%s:%s:%s:%s", f(k.Width), f(k.Height), f(k.X), f(k.Y))
	}
	pick := func(k CropKeyframe, dim string) float64 {
		switch dim {
		case "x":
			return k.X
		case "y":
			return k.Y
		case "w":
			return k.Width
		default:
			return k.Height
		}
	}
	expr := func(dim string) string {
		pts := make([]point, 0, len(keys))
		for _, k := range keys {
			pts = append(pts, point{t: k.Time, v: pick(k, dim)})
		}
		return piecewiseExpr(pts)
	}
	// 宽高取偶数避免编码器报错
	return fmt.Sprintf("crop=w='floor((%s)/2)*2':h='floor((%s)/2)*2':x='%s':y='%s'",
		expr("w"), expr("h"), expr("x"), expr("y"))
}

type point struct{ t, v float64 }

// piecewiseExpr 生成关于 t 的分段线性插值表达式，端点外钳制
func piecewiseExpr(pts []point) string {
	if len(pts) == 1 {
		return f(pts[0].v)
	}
	last := pts[len(pts)-1]
	expr := f(last.v)
	for i := len(pts) - 2; i >= 0; i-- {
		a, b := pts[i], pts[i+1]
		var seg string
		if b.t == a.t {
			seg = f(a.v)
		} else {
			seg = fmt.Sprintf("%s+(%s)*(t-%s)/%s", f(a.v), f(b.v-a.v), f(a.t), f(b.t-a.t))
		}
		expr = fmt.Sprintf("if(lt(t,%s),%s,%s)", f(b.t), seg, expr)
	}
	return fmt.Sprintf("if(lt(t,%s),%s,%s)", f(pts[0].t), f(pts[0].v), expr)
}

// visibleSegments 将分段模型裁剪到可见范围
func visibleSegments(segs []SpeedSegment, trim *Range) []SpeedSegment {
	if len(segs) == 0 {
		return nil
	}
	out := make([]SpeedSegment, 0, len(segs))
	for _, s := range segs {
		if trim != nil {
			if s.End <= trim.Start || s.Start >= trim.End {
				continue
			}
			if s.Start < trim.Start {
				s.Start = trim.Start
			}
			if s.End > trim.End {
				s.End = trim.End
			}
		}
		if s.Speed <= 0 {
			s.Speed = 1
		}
		out = append(out, s)
	}
	return out
}

// segmentChains 每个可见段独立 trim/变速后 concat
func segmentChains(vin string, segs []SpeedSegment, audio bool) (video, aud []string) {
	if len(segs) == 0 {
		return nil, nil
	}
	if len(segs) > 1 {
		video = append(video, fmt.Sprintf("%ssplit=%d%s", vin, len(segs), splitLabels("vs", len(segs))))
	} else {
		video = append(video, vin+"null[vs0]")
	}
	var vparts, aparts []string
	for i, s := range segs {
		video = append(video, fmt.Sprintf("[vs%d]trim=start=%s:end=%s,setpts=(PTS-STARTPTS)/%s[vp%d]",
			i, f(s.Start), f(s.End), f(s.Speed), i))
		vparts = append(vparts, fmt.Sprintf("[vp%d]", i))
		if audio {
			aud = append(aud, fmt.Sprintf("[0:a]atrim=start=%s:end=%s,asetpts=PTS-STARTPTS,%s[ap%d]",
				f(s.Start), f(s.End), atempoChain(s.Speed), i))
			aparts = append(aparts, fmt.Sprintf("[ap%d]", i))
		}
	}
	video = append(video, fmt.Sprintf("%sconcat=n=%d:v=1:a=0[vseg]", strings.Join(vparts, ""), len(segs)))
	if audio {
		aud = append(aud, fmt.Sprintf("%sconcat=n=%d:v=0:a=1[aseg]", strings.Join(aparts, ""), len(segs)))
	}
	return video, aud
}

func splitLabels(prefix string, n int) string {
	var b strings.Builder
	for i := 0; i < n; i++ {
		fmt.Fprintf(&b, "[%s%d]", prefix, i)
	}
	return b.String()
}

// atempoChain atempo 单级仅支持 0.5~2.0，超出范围时级联
func atempoChain(speed float64) string {
	var parts []string
	for speed > 2.0 {
		parts = append(parts, "atempo=2.0")
		speed /= 2.0
	}
	for speed < 0.5 {
		parts = append(parts, "atempo=0.5")
		speed /= 0.5
	}
	parts = append(parts, "atempo="+f(speed))
	return strings.Join(parts, ",")
}

// BuildConcatArgs 多片段拼接：硬切走 concat，fade 走 xfade/acrossfade 链
// durations 为各输入的有效时长，用于计算 xfade 偏移
func (e Encoder) BuildConcatArgs(inputs []string, output string, durations []float64, tr Transition, fps int, audio bool) []string {
	args := []string{"-hide_banner", "-y"}
	for _, in := range inputs {
		args = append(args, "-i", in)
	}

	var fc string
	switch {
	case len(inputs) == 1:
		fc = "[0:v]null[vout]"
		if audio {
			fc += ";[0:a]anull[aout]"
		}
	case tr.Type == TransitionFade && tr.Duration > 0:
		fc = xfadeChain(len(inputs), durations, tr.Duration, audio)
	default:
		var parts []string
		for i := range inputs {
			if audio {
				parts = append(parts, fmt.Sprintf("[%d:v][%d:a]", i, i))
			} else {
				parts = append(parts, fmt.Sprintf("[%d:v]", i))
			}
		}
		a := 0
		if audio {
			a = 1
		}
		fc = fmt.Sprintf("%sconcat=n=%d:v=1:a=%d[vout]", strings.Join(parts, ""), len(inputs), a)
		if audio {
			fc = strings.Replace(fc, "[vout]", "[vout][aout]", 1)
		}
	}

	args = append(args, "-filter_complex", fc, "-map", "[vout]")
	if audio {
		args = append(args, "-map", "[aout]", "-c:a", "aac")
	} else {
		args = append(args, "-an")
	}
	args = append(args,
		"-r", strconv.Itoa(fps),
		"-c:v", "libx264", "-preset", "fast", "-crf", "20",
		"-pix_fmt", "yuv420p",
	)
	return append(args, output)
}

// xfadeChain 级联 xfade，每级 offset 为前序累计时长减去已消耗的过渡预算
func xfadeChain(n int, durations []float64, d float64, audio bool) string {
	var b strings.Builder
	prevV, prevA := "[0:v]", "[0:a]"
	offset := 0.0
	for i := 1; i < n; i++ {
		offset += durations[i-1] - d
		outV := fmt.Sprintf("[vx%d]", i)
		if i == n-1 {
			outV = "[vout]"
		}
		fmt.Fprintf(&b, "%s[%d:v]xfade=transition=fade:duration=%s:offset=%s%s;",
			prevV, i, f(d), f(offset), outV)
		prevV = outV
		if audio {
			outA := fmt.Sprintf("[ax%d]", i)
			if i == n-1 {
				outA = "[aout]"
			}
			fmt.Fprintf(&b, "%s[%d:a]acrossfade=d=%s%s;", prevA, i, f(d), outA)
			prevA = outA
		}
	}
	return strings.TrimSuffix(b.String(), ";")
}

// BuildOverlayArgs 高亮覆盖趟：效果仅在启用窗口内生效
// dark_overlay 以窗口中点椭圆为中心做暗角，brightness_boost 在椭圆内提亮
func (e Encoder) BuildOverlayArgs(input, output string, p OverlayParams) []string {
	args := []string{"-hide_banner", "-y", "-i", input}

	var filters []string
	for _, w := range p.Windows {
		enable := fmt.Sprintf("enable='between(t,%s,%s)'", f(w.Start), f(w.End))
		switch p.Effect {
		case EffectDarkOverlay:
			filters = append(filters, fmt.Sprintf("vignette=x0=%s:y0=%s:%s", f(w.CenterX), f(w.CenterY), enable))
		case EffectBrightnessBoost:
			filters = append(filters, boostFilter(w, enable))
		}
	}
	if len(filters) > 0 {
		args = append(args, "-vf", strings.Join(filters, ","))
	}
	args = append(args,
		"-c:v", "libx264", "-preset", "fast", "-crf", "20",
		"-pix_fmt", "yuv420p",
		"-c:a", "copy",
	)
	return append(args, output)
}

// boostFilter 椭圆内亮度提升：geq 按归一化椭圆距离提亮，椭圆外像素原样保留
// 半径缺失时退化为全帧 eq 提亮
func boostFilter(w OverlayWindow, enable string) string {
	if w.RadiusX <= 0 || w.RadiusY <= 0 {
		return fmt.Sprintf("eq=brightness=0.18:saturation=1.15:%s", enable)
	}
	dist := fmt.Sprintf("pow((X-%s)/%s,2)+pow((Y-%s)/%s,2)",
		f(w.CenterX), f(w.RadiusX), f(w.CenterY), f(w.RadiusY))
	return fmt.Sprintf("geq=lum='clip(lum(X,Y)*(1+0.35*lt(%s,1)),0,255)':cb='cb(X,Y)':cr='cr(X,Y)':%s",
		dist, enable)
}

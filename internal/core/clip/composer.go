package clip

import (
	"github.com/clipworks/reframe/internal/core/timeline"
)

// AspectRatio 项目级目标宽高比
type AspectRatio struct {
	W int `json:"w"`
	H int `json:"h"`
}

func (a AspectRatio) Ratio() float64 {
	if a.H == 0 {
		return 16.0 / 9.0
	}
	return float64(a.W) / float64(a.H)
}

// ExportableClip 单个片段解析后的可导出变换参数，时间轴已转为时间索引
type ExportableClip struct {
	ClipID    string                                        `json:"clip_id"`
	AssetID   string                                        `json:"asset_id"`
	Duration  float64                                       `json:"duration"`
	Framerate float64                                       `json:"framerate"`
	Version   int                                           `json:"version"`
	Crop      []timeline.TimedKeyframe[timeline.CropData]   `json:"crop"`
	Highlight []timeline.TimedKeyframe[timeline.HighlightData] `json:"highlight,omitempty"`
	Segments  []Segment                                     `json:"segments"`
	Trim      *TrimRange                                    `json:"trim,omitempty"`
	// EffectiveDuration 折算后的输出时长
	EffectiveDuration float64 `json:"effective_duration"`
	// Start/End 多片段拼接输出中的累计起止时间
	Start float64 `json:"start"`
	End   float64 `json:"end"`
}

// Composer 将实时编辑状态/持久化状态解析为导出计划
type Composer struct {
	Aspect AspectRatio
}

// Resolve 解析单个片段
// 时间转换使用该片段自身的帧率；从未构图的片段合成居中默认裁剪，
// 并在 t=0 与 t=duration 放置两枚相同的边界关键帧
func (c Composer) Resolve(w *WorkingClip) ExportableClip {
	out := ExportableClip{
		ClipID:            w.ID,
		AssetID:           w.AssetID,
		Duration:          w.Duration,
		Framerate:         w.Framerate,
		Version:           w.Version,
		Segments:          append([]Segment(nil), w.Segments.Items...),
		Trim:              w.Segments.TrimRange(),
		EffectiveDuration: w.Segments.EffectiveDuration(),
	}
	if w.Crop.Empty() {
		d := c.defaultCrop(w)
		out.Crop = []timeline.TimedKeyframe[timeline.CropData]{
			{Time: 0, Data: d},
			{Time: w.Duration, Data: d},
		}
	} else {
		out.Crop = w.Crop.ExportTimeBased(w.Framerate)
	}
	if !w.Highlight.Empty() {
		out.Highlight = w.Highlight.ExportTimeBased(w.Framerate)
	}
	return out
}

// ResolveAll 解析多片段拼接计划
// selectedID 对应的片段使用 live 内存态，其余片段使用各自的持久化状态；
// 保证输入 N 个片段必得 N 个结果且顺序不变，单片段编辑不得丢弃其余片段
func (c Composer) ResolveAll(clips []*WorkingClip, selectedID string, live *WorkingClip) []ExportableClip {
	out := make([]ExportableClip, 0, len(clips))
	var offset float64
	for _, w := range clips {
		src := w
		if live != nil && w.ID == selectedID {
			src = live
		}
		e := c.Resolve(src)
		e.Start = offset
		e.End = offset + e.EffectiveDuration
		offset = e.End
		out = append(out, e)
	}
	return out
}

// defaultCrop 依据源尺寸与目标宽高比合成居中裁剪
func (c Composer) defaultCrop(w *WorkingClip) timeline.CropData {
	srcW, srcH := float64(w.Width), float64(w.Height)
	if srcW <= 0 || srcH <= 0 {
		srcW, srcH = 1920, 1080
	}
	ratio := c.Aspect.Ratio()
	cw, ch := srcW, srcW/ratio
	if ch > srcH {
		ch = srcH
		cw = srcH * ratio
	}
	return timeline.CropData{
		X:      (srcW - cw) / 2,
		Y:      (srcH - ch) / 2,
		Width:  cw,
		Height: ch,
	}
}

package timeline

import (
	"errors"
	"math"
	"sort"
)

var (
	// ErrNoKeyframes 空时间轴上执行插值
	ErrNoKeyframes = errors.New("timeline: no keyframes")
	// ErrFrameOutOfRange 帧号为负或超出片段帧数
	ErrFrameOutOfRange = errors.New("timeline: frame out of range")
)

// Timeline 帧索引关键帧时间轴，Keys 始终按帧号升序且帧号唯一
type Timeline[T Data[T]] struct {
	Keys []Keyframe[T] `json:"keyframes"`
}

// Crop 画面重构图时间轴
type Crop = Timeline[CropData]

// Highlight 高亮椭圆时间轴
type Highlight = Timeline[HighlightData]

// AddOrUpdate 新增或覆盖 frame 处的关键帧，保持有序
func (t *Timeline[T]) AddOrUpdate(frame int, data T, origin Origin) error {
	if frame < 0 {
		return ErrFrameOutOfRange
	}
	idx := sort.Search(len(t.Keys), func(i int) bool { return t.Keys[i].Frame >= frame })
	if idx < len(t.Keys) && t.Keys[idx].Frame == frame {
		t.Keys[idx].Data = data
		t.Keys[idx].Origin = origin
		return nil
	}
	kf := Keyframe[T]{Frame: frame, Data: data, Origin: origin}
	t.Keys = append(t.Keys, Keyframe[T]{})
	copy(t.Keys[idx+1:], t.Keys[idx:])
	t.Keys[idx] = kf
	return nil
}

// Remove 删除 frame 处的关键帧，不存在时静默返回
func (t *Timeline[T]) Remove(frame int) {
	idx := sort.Search(len(t.Keys), func(i int) bool { return t.Keys[i].Frame >= frame })
	if idx < len(t.Keys) && t.Keys[idx].Frame == frame {
		t.Keys = append(t.Keys[:idx], t.Keys[idx+1:]...)
	}
}

// DeleteRange 删除 [startFrame, endFrame] 闭区间内的所有关键帧
// 不做任何边界自愈，调用方负责事后补回 Permanent 边界关键帧
func (t *Timeline[T]) DeleteRange(startFrame, endFrame int) {
	out := t.Keys[:0]
	for _, kf := range t.Keys {
		if kf.Frame >= startFrame && kf.Frame <= endFrame {
			continue
		}
		out = append(out, kf)
	}
	t.Keys = out
}

// Interpolate 返回 frame 处的插值结果
// 两侧最近关键帧间线性插值，越界处钳制到端点值
func (t *Timeline[T]) Interpolate(frame float64) (T, error) {
	var zero T
	if len(t.Keys) == 0 {
		return zero, ErrNoKeyframes
	}
	first := t.Keys[0]
	last := t.Keys[len(t.Keys)-1]
	if frame <= float64(first.Frame) {
		return first.Data, nil
	}
	if frame >= float64(last.Frame) {
		return last.Data, nil
	}
	idx := sort.Search(len(t.Keys), func(i int) bool { return float64(t.Keys[i].Frame) >= frame })
	prev, next := t.Keys[idx-1], t.Keys[idx]
	if next.Frame == prev.Frame {
		return prev.Data, nil
	}
	ratio := (frame - float64(prev.Frame)) / float64(next.Frame-prev.Frame)
	return prev.Data.Lerp(next.Data, ratio), nil
}

// At 按帧号查找关键帧，tol 为帧容差（半帧查找用 0.5）
func (t *Timeline[T]) At(frame float64, tol float64) (Keyframe[T], bool) {
	for _, kf := range t.Keys {
		if math.Abs(float64(kf.Frame)-frame) <= tol {
			return kf, true
		}
	}
	return Keyframe[T]{}, false
}

// FirstInRange 返回帧号落在 [startFrame, endFrame] 内的第一个关键帧
func (t *Timeline[T]) FirstInRange(startFrame, endFrame float64) (Keyframe[T], bool) {
	for _, kf := range t.Keys {
		f := float64(kf.Frame)
		if f >= startFrame-0.5 && f <= endFrame+0.5 {
			return kf, true
		}
	}
	return Keyframe[T]{}, false
}

func (t *Timeline[T]) Empty() bool { return len(t.Keys) == 0 }

func (t *Timeline[T]) Len() int { return len(t.Keys) }

// First 首个关键帧，空时间轴返回 false
func (t *Timeline[T]) First() (Keyframe[T], bool) {
	if len(t.Keys) == 0 {
		return Keyframe[T]{}, false
	}
	return t.Keys[0], true
}

// Last 末个关键帧，空时间轴返回 false
func (t *Timeline[T]) Last() (Keyframe[T], bool) {
	if len(t.Keys) == 0 {
		return Keyframe[T]{}, false
	}
	return t.Keys[len(t.Keys)-1], true
}

// ExportTimeBased 按给定帧率转为时间索引形式，仅在编码边界调用
func (t *Timeline[T]) ExportTimeBased(framerate float64) []TimedKeyframe[T] {
	out := make([]TimedKeyframe[T], 0, len(t.Keys))
	for _, kf := range t.Keys {
		out = append(out, TimedKeyframe[T]{
			Time: FrameToTime(kf.Frame, framerate),
			Data: kf.Data,
		})
	}
	return out
}

// FrameToTime 帧号转秒
func FrameToTime(frame int, framerate float64) float64 {
	if framerate <= 0 {
		return 0
	}
	return float64(frame) / framerate
}

// TimeToFrame 秒转最近帧号
func TimeToFrame(t float64, framerate float64) int {
	return int(math.Round(t * framerate))
}

package clip

import (
	"errors"
	"math"
)

// boundaryEps 时间切点匹配容差（秒）
const boundaryEps = 1e-6

var (
	ErrBadBoundary     = errors.New("clip: boundary outside (0, duration) or duplicated")
	ErrBoundaryMissing = errors.New("clip: no split at given time")
	ErrBadSegmentIndex = errors.New("clip: segment index out of range")
	ErrBadSpeed        = errors.New("clip: speed multiplier must be positive")
	ErrInteriorTrim    = errors.New("clip: only the first or last segment can be trimmed")
	// ErrTrimmedSegment 修剪段的切点被锁定，需先取消修剪
	ErrTrimmedSegment = errors.New("clip: segment is trimmed, detrim before changing its boundaries")
	// ErrBoundaryInvariant 非空时间轴的可见首末帧缺少 Permanent 关键帧
	ErrBoundaryInvariant = errors.New("clip: permanent boundary keyframe missing")
)

// Segment 单一倍速的连续时间区间，时间均为源时间（秒）
type Segment struct {
	Start     float64 `json:"start"`
	End       float64 `json:"end"`
	Speed     float64 `json:"speed"`
	IsTrimmed bool    `json:"is_trimmed"`
}

// TrimRange 由边缘修剪段推导出的可见范围
type TrimRange struct {
	Start float64 `json:"start"`
	End   float64 `json:"end"`
}

// Segments 将片段时间轴按切点划分为若干段
// 不变量：Items 连续覆盖 [0, Duration]，切点有序且包含 0 与 Duration
type Segments struct {
	Duration float64   `json:"duration"`
	Items    []Segment `json:"items"`
}

// NewSegments 创建仅含单一原速段的划分
func NewSegments(duration float64) Segments {
	return Segments{
		Duration: duration,
		Items:    []Segment{{Start: 0, End: duration, Speed: 1}},
	}
}

// Boundaries 返回全部切点，含 0 与 Duration
func (s *Segments) Boundaries() []float64 {
	out := make([]float64, 0, len(s.Items)+1)
	for _, seg := range s.Items {
		out = append(out, seg.Start)
	}
	return append(out, s.Duration)
}

// Split 在 atTime 处切分所在段，新段继承原段倍速
// 修剪段内禁止切分：切分会把修剪状态带进内部段并挪动可见边界
func (s *Segments) Split(atTime float64) error {
	if atTime <= boundaryEps || atTime >= s.Duration-boundaryEps {
		return ErrBadBoundary
	}
	for i, seg := range s.Items {
		if math.Abs(seg.Start-atTime) < boundaryEps {
			return ErrBadBoundary
		}
		if atTime > seg.Start && atTime < seg.End {
			if seg.IsTrimmed {
				return ErrTrimmedSegment
			}
			left := seg
			left.End = atTime
			right := seg
			right.Start = atTime
			items := make([]Segment, 0, len(s.Items)+1)
			items = append(items, s.Items[:i]...)
			items = append(items, left, right)
			items = append(items, s.Items[i+1:]...)
			s.Items = items
			return nil
		}
	}
	return ErrBadBoundary
}

// RemoveSplit 移除 atTime 处的切点，合并左右两段，合并段倍速取左段
// 任一侧为修剪段时拒绝合并：合并会丢失修剪状态且不经过边界帧协调，
// 调用方走 WorkingClip.RemoveSegmentSplit 先取消修剪
func (s *Segments) RemoveSplit(atTime float64) error {
	for i := 1; i < len(s.Items); i++ {
		if math.Abs(s.Items[i].Start-atTime) < boundaryEps {
			left, right := s.Items[i-1], s.Items[i]
			if left.IsTrimmed || right.IsTrimmed {
				return ErrTrimmedSegment
			}
			merged := Segment{
				Start: left.Start,
				End:   right.End,
				Speed: left.Speed,
			}
			items := make([]Segment, 0, len(s.Items)-1)
			items = append(items, s.Items[:i-1]...)
			items = append(items, merged)
			items = append(items, s.Items[i+1:]...)
			s.Items = items
			return nil
		}
	}
	return ErrBoundaryMissing
}

// SetSpeed 调整指定段的倍速
func (s *Segments) SetSpeed(segmentIndex int, multiplier float64) error {
	if segmentIndex < 0 || segmentIndex >= len(s.Items) {
		return ErrBadSegmentIndex
	}
	if multiplier <= 0 {
		return ErrBadSpeed
	}
	s.Items[segmentIndex].Speed = multiplier
	return nil
}

// TrimRange 返回当前可见范围，无修剪时返回 nil
func (s *Segments) TrimRange() *TrimRange {
	if len(s.Items) == 0 {
		return nil
	}
	tr := TrimRange{Start: 0, End: s.Duration}
	trimmed := false
	if s.Items[0].IsTrimmed {
		tr.Start = s.Items[0].End
		trimmed = true
	}
	if last := s.Items[len(s.Items)-1]; last.IsTrimmed && len(s.Items) > 1 {
		tr.End = last.Start
		trimmed = true
	}
	if !trimmed {
		return nil
	}
	return &tr
}

// VisibleRange 可见范围的起止时间，无修剪时为 [0, Duration]
func (s *Segments) VisibleRange() (float64, float64) {
	if tr := s.TrimRange(); tr != nil {
		return tr.Start, tr.End
	}
	return 0, s.Duration
}

// EffectiveDuration 可见范围内各段按倍速折算后的输出时长
func (s *Segments) EffectiveDuration() float64 {
	start, end := s.VisibleRange()
	var total float64
	for _, seg := range s.Items {
		a := math.Max(seg.Start, start)
		b := math.Min(seg.End, end)
		if b <= a {
			continue
		}
		total += (b - a) / seg.Speed
	}
	return total
}

// isEdge 判断索引是否为首段或末段
func (s *Segments) isEdge(i int) (first, last bool) {
	return i == 0, i == len(s.Items)-1
}

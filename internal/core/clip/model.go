package clip

import (
	"math"

	"github.com/clipworks/reframe/internal/core/timeline"
	"github.com/ixugo/goddd/pkg/orm"
)

// WorkingClip 可编辑单元：源资产引用 + 画面重构/高亮时间轴 + 分段变速修剪模型
// 版本号在片段已渲染过之后的每次变换保存时递增（写时复制快照），
// 进行中的渲染始终引用提交时捕获的版本
type WorkingClip struct {
	ID        string  `gorm:"primaryKey" json:"id"`
	ProjectID string  `gorm:"index" json:"project_id"`
	AssetID   string  `gorm:"index" json:"asset_id"`
	Name      string  `json:"name"`
	Duration  float64 `json:"duration"`
	Framerate float64 `json:"framerate"`
	Width     int     `json:"width"`
	Height    int     `json:"height"`

	Version int `json:"version"`
	// Rendered 标记当前版本是否已被渲染引用，引用后的下一次变换保存触发版本递增
	Rendered bool `json:"rendered"`

	Crop      timeline.Crop      `gorm:"serializer:json" json:"crop"`
	Highlight timeline.Highlight `gorm:"serializer:json" json:"highlight"`
	Segments  Segments           `gorm:"serializer:json" json:"segments"`

	CreatedAt orm.Time `json:"created_at"`
	UpdatedAt orm.Time `json:"updated_at"`
}

func (*WorkingClip) TableName() string {
	return "working_clips"
}

// FrameCount 片段总帧数
func (w *WorkingClip) FrameCount() int {
	return timeline.TimeToFrame(w.Duration, w.Framerate)
}

// VisibleFrameRange 当前可见范围对应的首末帧号
func (w *WorkingClip) VisibleFrameRange() (int, int) {
	start, end := w.Segments.VisibleRange()
	return timeline.TimeToFrame(start, w.Framerate), timeline.TimeToFrame(end, w.Framerate)
}

// SetCropKeyframe 写入画面重构关键帧，帧号越界时报错
// 首个关键帧写入时同时在可见首末帧建立 Permanent 边界帧
func (w *WorkingClip) SetCropKeyframe(frame int, data timeline.CropData, origin timeline.Origin) error {
	if frame < 0 || frame > w.FrameCount() {
		return timeline.ErrFrameOutOfRange
	}
	wasEmpty := w.Crop.Empty()
	if err := w.Crop.AddOrUpdate(frame, data, origin); err != nil {
		return err
	}
	if wasEmpty {
		sf, ef := w.VisibleFrameRange()
		seedBoundaries(&w.Crop, sf, ef)
	}
	return nil
}

// SetHighlightKeyframe 写入高亮关键帧，帧号越界时报错
func (w *WorkingClip) SetHighlightKeyframe(frame int, data timeline.HighlightData, origin timeline.Origin) error {
	if frame < 0 || frame > w.FrameCount() {
		return timeline.ErrFrameOutOfRange
	}
	wasEmpty := w.Highlight.Empty()
	if err := w.Highlight.AddOrUpdate(frame, data, origin); err != nil {
		return err
	}
	if wasEmpty {
		sf, ef := w.VisibleFrameRange()
		seedBoundaries(&w.Highlight, sf, ef)
	}
	return nil
}

// seedBoundaries 在可见首末帧补齐 Permanent 边界帧，已有关键帧时仅提升其 Origin
func seedBoundaries[T timeline.Data[T]](tl *timeline.Timeline[T], startFrame, endFrame int) {
	for _, frame := range []int{startFrame, endFrame} {
		data, _ := tl.Interpolate(float64(frame))
		_ = tl.AddOrUpdate(frame, data, timeline.OriginPermanent)
	}
}

// ToggleTrim 切换首段或末段的修剪状态并同步时间轴边界关键帧
func (w *WorkingClip) ToggleTrim(segmentIndex int) error {
	if segmentIndex < 0 || segmentIndex >= len(w.Segments.Items) {
		return ErrBadSegmentIndex
	}
	first, last := w.Segments.isEdge(segmentIndex)
	if !first && !last {
		return ErrInteriorTrim
	}
	seg := &w.Segments.Items[segmentIndex]
	if seg.IsTrimmed {
		if first {
			return w.DetrimStart()
		}
		return w.DetrimEnd()
	}

	// 首段的内沿是其 end，末段的内沿是其 start
	boundaryTime := seg.End
	if last && !first {
		boundaryTime = seg.Start
	}

	coordinateTrim(&w.Crop, *seg, boundaryTime, first, w.Framerate)
	if !w.Highlight.Empty() {
		coordinateTrim(&w.Highlight, *seg, boundaryTime, first, w.Framerate)
	}
	seg.IsTrimmed = true
	return w.checkBoundaryKeyframes()
}

// RemoveSegmentSplit 移除切点并合并左右两段
// 切点是修剪边缘段的内沿时先取消修剪，让边界 Permanent 帧随可见范围一起恢复
func (w *WorkingClip) RemoveSegmentSplit(atTime float64) error {
	if items := w.Segments.Items; len(items) > 1 {
		if items[0].IsTrimmed && math.Abs(items[0].End-atTime) < boundaryEps {
			if err := w.DetrimStart(); err != nil {
				return err
			}
		}
		if last := items[len(items)-1]; last.IsTrimmed && math.Abs(last.Start-atTime) < boundaryEps {
			if err := w.DetrimEnd(); err != nil {
				return err
			}
		}
	}
	if err := w.Segments.RemoveSplit(atTime); err != nil {
		return err
	}
	return w.checkBoundaryKeyframes()
}

// DetrimStart 取消首段修剪，可见起点恢复到 0
func (w *WorkingClip) DetrimStart() error {
	if len(w.Segments.Items) == 0 || !w.Segments.Items[0].IsTrimmed {
		return nil
	}
	seg := &w.Segments.Items[0]
	oldBoundary := timeline.TimeToFrame(seg.End, w.Framerate)
	restoreBoundary(&w.Crop, 0, oldBoundary)
	if !w.Highlight.Empty() {
		restoreBoundary(&w.Highlight, 0, oldBoundary)
	}
	seg.IsTrimmed = false
	return w.checkBoundaryKeyframes()
}

// DetrimEnd 取消末段修剪，可见终点恢复到 Duration
func (w *WorkingClip) DetrimEnd() error {
	n := len(w.Segments.Items)
	if n == 0 || !w.Segments.Items[n-1].IsTrimmed {
		return nil
	}
	seg := &w.Segments.Items[n-1]
	oldBoundary := timeline.TimeToFrame(seg.Start, w.Framerate)
	endFrame := w.FrameCount()
	restoreBoundary(&w.Crop, endFrame, oldBoundary)
	if !w.Highlight.Empty() {
		restoreBoundary(&w.Highlight, endFrame, oldBoundary)
	}
	seg.IsTrimmed = false
	return w.checkBoundaryKeyframes()
}

// coordinateTrim 修剪协调：保留边界数据、清空修剪区内关键帧、回插 Permanent 边界帧
// 保留值查找顺序：内沿插值 → 外沿插值 → 段内既有关键帧（半帧容差）→ 内沿插值兜底，
// 该链条保证永远能取到一个值
func coordinateTrim[T timeline.Data[T]](tl *timeline.Timeline[T], seg Segment, boundaryTime float64, first bool, framerate float64) {
	if tl.Empty() {
		return
	}
	boundaryFrame := timeline.TimeToFrame(boundaryTime, framerate)

	farTime := seg.Start
	if !first {
		farTime = seg.End
	}

	preserved, err := tl.Interpolate(float64(boundaryFrame))
	if err != nil {
		if far, ferr := tl.Interpolate(farTime * framerate); ferr == nil {
			preserved = far
		} else if kf, ok := tl.FirstInRange(seg.Start*framerate, seg.End*framerate); ok {
			preserved = kf.Data
		} else {
			preserved, _ = tl.Interpolate(float64(boundaryFrame))
		}
	}

	segStart := timeline.TimeToFrame(seg.Start, framerate)
	segEnd := timeline.TimeToFrame(seg.End, framerate)
	if first {
		tl.DeleteRange(segStart, boundaryFrame-1)
	} else {
		tl.DeleteRange(boundaryFrame+1, segEnd)
	}
	_ = tl.AddOrUpdate(boundaryFrame, preserved, timeline.OriginPermanent)
}

// restoreBoundary 取消修剪的镜像操作：在恢复后的边界帧补回 Permanent 关键帧，
// 旧边界上的 Permanent 帧降级为 User 帧以保留其数据
func restoreBoundary[T timeline.Data[T]](tl *timeline.Timeline[T], boundaryFrame, oldBoundaryFrame int) {
	if tl.Empty() {
		return
	}
	var data T
	if kf, ok := tl.At(float64(boundaryFrame), 0.5); ok {
		data = kf.Data
	} else {
		data, _ = tl.Interpolate(float64(boundaryFrame))
	}
	if kf, ok := tl.At(float64(oldBoundaryFrame), 0.5); ok && kf.Origin == timeline.OriginPermanent && kf.Frame != boundaryFrame {
		_ = tl.AddOrUpdate(kf.Frame, kf.Data, timeline.OriginUser)
	}
	_ = tl.AddOrUpdate(boundaryFrame, data, timeline.OriginPermanent)
}

// checkBoundaryKeyframes 校验不变量：非空时间轴在当前可见首末帧必须各有一个 Permanent 帧
func (w *WorkingClip) checkBoundaryKeyframes() error {
	startFrame, endFrame := w.VisibleFrameRange()
	if err := checkPermanentAt(&w.Crop, startFrame, endFrame); err != nil {
		return err
	}
	return checkPermanentAt(&w.Highlight, startFrame, endFrame)
}

func checkPermanentAt[T timeline.Data[T]](tl *timeline.Timeline[T], startFrame, endFrame int) error {
	if tl.Empty() {
		return nil
	}
	for _, frame := range []int{startFrame, endFrame} {
		kf, ok := tl.At(float64(frame), 0.5)
		if !ok || kf.Origin != timeline.OriginPermanent {
			return ErrBoundaryInvariant
		}
	}
	return nil
}

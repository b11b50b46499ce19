package timeline

// Origin 标记关键帧来源
// Permanent 为裁剪可见范围首尾的边界关键帧，任何修剪操作后必须存在
type Origin string

const (
	OriginPermanent Origin = "permanent"
	OriginUser      Origin = "user"
)

// CropData 画面重构图矩形，单位为源视频像素
type CropData struct {
	X      float64 `json:"x"`
	Y      float64 `json:"y"`
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

// Lerp 线性插值到 other，t 取值 [0,1]
func (d CropData) Lerp(other CropData, t float64) CropData {
	return CropData{
		X:      d.X + (other.X-d.X)*t,
		Y:      d.Y + (other.Y-d.Y)*t,
		Width:  d.Width + (other.Width-d.Width)*t,
		Height: d.Height + (other.Height-d.Height)*t,
	}
}

// HighlightData 椭圆高亮区域
type HighlightData struct {
	X       float64 `json:"x"`
	Y       float64 `json:"y"`
	RadiusX float64 `json:"radius_x"`
	RadiusY float64 `json:"radius_y"`
	Opacity float64 `json:"opacity"`
	Color   string  `json:"color"`
	// FromDetection 表示该关键帧由外部目标检测结果生成
	FromDetection bool `json:"from_detection,omitempty"`
}

func (d HighlightData) Lerp(other HighlightData, t float64) HighlightData {
	out := HighlightData{
		X:             d.X + (other.X-d.X)*t,
		Y:             d.Y + (other.Y-d.Y)*t,
		RadiusX:       d.RadiusX + (other.RadiusX-d.RadiusX)*t,
		RadiusY:       d.RadiusY + (other.RadiusY-d.RadiusY)*t,
		Opacity:       d.Opacity + (other.Opacity-d.Opacity)*t,
		Color:         d.Color,
		FromDetection: d.FromDetection && other.FromDetection,
	}
	if t > 0.5 {
		out.Color = other.Color
	}
	return out
}

// Keyframe 帧索引控制点
// 以帧而非时间索引，编辑过程不受浮点时间漂移影响，仅在编码边界转为时间
type Keyframe[T Data[T]] struct {
	Frame  int    `json:"frame"`
	Data   T      `json:"data"`
	Origin Origin `json:"origin"`
}

// TimedKeyframe 编码器边界使用的时间索引形式
type TimedKeyframe[T Data[T]] struct {
	Time float64 `json:"time"`
	Data T       `json:"data"`
}

// Data 可线性插值的关键帧载荷
type Data[T any] interface {
	Lerp(other T, t float64) T
}

package clip

import (
	"github.com/clipworks/reframe/internal/core/timeline"
	"github.com/ixugo/goddd/pkg/web"
)

type FindClipInput struct {
	web.PagerFilter
	ProjectID string `form:"project_id"` // 所属项目 ID
}

type AddClipInput struct {
	ProjectID string  `json:"project_id" binding:"required"`
	AssetID   string  `json:"asset_id"`
	Name      string  `json:"name"`
	Duration  float64 `json:"duration" binding:"required"`  // 源时长（秒）
	Framerate float64 `json:"framerate" binding:"required"` // 源帧率
	Width     int     `json:"width"`
	Height    int     `json:"height"`
}

// SaveTransformInput 编辑态保存请求，nil 字段表示不修改
type SaveTransformInput struct {
	Crop      *timeline.Crop      `json:"crop"`
	Highlight *timeline.Highlight `json:"highlight"`
	Segments  *Segments           `json:"segments"`
}

// DetectionBox 外部检测服务回调的单个边界框，帧索引
type DetectionBox struct {
	Frame      int     `json:"frame"`
	X          float64 `json:"x"`
	Y          float64 `json:"y"`
	Width      float64 `json:"width"`
	Height     float64 `json:"height"`
	Confidence float64 `json:"confidence"`
}

// allPager 内部一次取全量的分页器
func allPager() web.PagerFilter {
	return web.PagerFilter{Page: 1, Size: 10000}
}

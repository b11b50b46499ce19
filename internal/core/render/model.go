package render

import (
	"errors"

	"github.com/clipworks/reframe/internal/core/clip"
	"github.com/clipworks/reframe/pkg/ffkit"
	"github.com/ixugo/goddd/pkg/orm"
)

// Status 任务生命周期状态，Complete/Error 为终态，任务不会复活，
// 重试会创建新的任务 ID
type Status string

const (
	StatusPending    Status = "pending"
	StatusProcessing Status = "processing"
	StatusComplete   Status = "complete"
	StatusError      Status = "error"
)

// Kind 渲染任务类型
type Kind string

const (
	KindSingleClip Kind = "single_clip"
	KindMultiClip  Kind = "multi_clip"
	KindOverlay    Kind = "overlay"
)

// 渲染阶段，进度通道按阶段上报
const (
	PhasePrepare  = "prepare"
	PhaseClips    = "clips"
	PhaseEncode   = "encode"
	PhaseStitch   = "stitch"
	PhaseOverlay  = "overlay"
	PhaseFinalize = "finalize"
)

var (
	// ErrSourceNotReady 源片段缺失或尚未抽取完成
	ErrSourceNotReady = errors.New("render: source not ready")
	// ErrIncompleteFraming 需要构图时缺少裁剪关键帧
	ErrIncompleteFraming = errors.New("render: incomplete framing")
	// ErrEncodeFailed 编码器进程失败，诊断信息原样附带
	ErrEncodeFailed = errors.New("render: encode failed")
)

// Job 渲染任务，创建即为审计记录保留，终态后不再变化
type Job struct {
	ID        string  `gorm:"primaryKey" json:"id"`
	ProjectID string  `gorm:"index" json:"project_id"`
	ClipID    string  `json:"clip_id,omitempty"`
	ExportID  string  `json:"export_id,omitempty"`
	Kind      Kind    `json:"kind"`
	Status    Status  `gorm:"index" json:"status"`
	Percent   float64 `json:"percent"`
	Phase     string  `json:"phase"`
	Message   string  `json:"message"`
	// ClipVersion 提交时捕获的片段版本，进行中的渲染不受并发编辑影响
	ClipVersion   int    `json:"clip_version,omitempty"`
	ResultAssetID string `json:"result_asset_id,omitempty"`
	Error         string `json:"error,omitempty"`

	CreatedAt orm.Time `json:"created_at"`
	UpdatedAt orm.Time `json:"updated_at"`
}

func (*Job) TableName() string {
	return "render_jobs"
}

// Terminal 是否已达终态
func (j *Job) Terminal() bool {
	return j.Status == StatusComplete || j.Status == StatusError
}

// MultiClipPlan 多片段拼接计划，调用方随源视频一并提交
type MultiClipPlan struct {
	Clips             []clip.ExportableClip `json:"clips"`
	GlobalAspectRatio clip.AspectRatio      `json:"global_aspect_ratio"`
	Transition        ffkit.Transition      `json:"transition"`
	IncludeAudio      bool                  `json:"include_audio"`
}

// SourceFile 多片段渲染时已落盘的上传源
type SourceFile struct {
	ClipID string
	Path   string
}

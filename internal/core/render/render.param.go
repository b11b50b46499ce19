package render

import (
	"github.com/ixugo/goddd/pkg/web"
)

type (
	// FindJobInput ...
	FindJobInput struct {
		web.PagerFilter
		ProjectID string `form:"project_id"`
		Status    string `form:"status"`
	}
	// SubmitClipInput 单片段渲染请求，变换参数一律取服务端状态
	SubmitClipInput struct {
		ClipID       string `json:"clip_id" binding:"required"`
		ExportID     string `json:"export_id"`
		IncludeAudio bool   `json:"include_audio"`
		OutWidth     int    `json:"out_width"`
		OutHeight    int    `json:"out_height"`
	}
	// SubmitOverlayInput 高亮覆盖趟请求，asset_id 指向已渲染成片
	SubmitOverlayInput struct {
		AssetID  string `json:"asset_id" binding:"required"`
		ClipID   string `json:"clip_id" binding:"required"`
		ExportID string `json:"export_id"`
		Effect   string `json:"effect_type" binding:"required"`
	}
)

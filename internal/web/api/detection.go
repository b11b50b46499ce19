package api

import (
	"log/slog"
	"time"

	"github.com/clipworks/reframe/internal/core/clip"
	"github.com/gin-gonic/gin"
	"github.com/ixugo/goddd/pkg/web"
)

// DetectionAPI 处理外部检测服务的回调请求
type DetectionAPI struct {
	log      *slog.Logger
	clipCore clip.Core
	limiter  func(identifier string) bool
}

func NewDetectionAPI(core clip.Core) DetectionAPI {
	return DetectionAPI{
		log:      slog.With("hook", "detection"),
		clipCore: core,
		limiter:  web.IDRateLimiter(1, 5, 3*time.Minute),
	}
}

func registerDetection(g gin.IRouter, api DetectionAPI, handler ...gin.HandlerFunc) {
	group := g.Group("/detections", handler...)
	group.POST("/webhook", web.WrapH(api.onDetections))
}

type detectionWebhookInput struct {
	ClipID string              `json:"clip_id" binding:"required"`
	Boxes  []clip.DetectionBox `json:"boxes" binding:"required"`
}

type detectionWebhookOutput struct {
	Seeded int `json:"seeded"`
}

// onDetections 将检测服务回调的边界框播种为片段的高亮关键帧
func (a DetectionAPI) onDetections(c *gin.Context, in *detectionWebhookInput) (detectionWebhookOutput, error) {
	if !a.limiter(in.ClipID) {
		return detectionWebhookOutput{}, nil
	}
	ctx := c.Request.Context()
	a.log.InfoContext(ctx, "detection boxes", "clip_id", in.ClipID, "count", len(in.Boxes))

	w, err := a.clipCore.SeedHighlightFromDetection(ctx, in.ClipID, in.Boxes)
	if err != nil {
		return detectionWebhookOutput{}, err
	}
	return detectionWebhookOutput{Seeded: w.Highlight.Len()}, nil
}

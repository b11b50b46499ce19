package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"path/filepath"
	"time"

	"github.com/clipworks/reframe/internal/conf"
	"github.com/clipworks/reframe/internal/core/render"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/ixugo/goddd/pkg/reason"
	"github.com/ixugo/goddd/pkg/web"
)

// RenderAPI 为 http 提供业务方法
type RenderAPI struct {
	renderCore *render.Core
	conf       *conf.Bootstrap
}

func NewRenderAPI(core *render.Core, cfg *conf.Bootstrap) RenderAPI {
	return RenderAPI{renderCore: core, conf: cfg}
}

func registerRender(g gin.IRouter, api RenderAPI, handler ...gin.HandlerFunc) {
	group := g.Group("/render", handler...)
	group.POST("", web.WrapH(api.submitClip))
	group.POST("/multi-clip", api.submitMultiClip)
	group.POST("/overlay", web.WrapH(api.submitOverlay))

	// 进度查询与推送不鉴权，便于轮询与 ws 断线重连
	jobs := g.Group("/jobs")
	jobs.GET("", web.WrapH(api.findJobs))
	jobs.GET("/:id", web.WrapH(api.getJob))
	jobs.GET("/:id/ws", api.jobProgressWS)
}

// mapSubmitErr 提交期校验失败归为请求错误
func mapSubmitErr(err error) error {
	if errors.Is(err, render.ErrSourceNotReady) || errors.Is(err, render.ErrIncompleteFraming) {
		return reason.ErrBadRequest.Withf("%s", err.Error())
	}
	return err
}

func (a RenderAPI) submitClip(c *gin.Context, in *render.SubmitClipInput) (*render.Job, error) {
	job, err := a.renderCore.SubmitClipRender(c.Request.Context(), in)
	return job, mapSubmitErr(err)
}

// submitMultiClip 多片段拼接渲染
// multipart 表单：multiClipPlanJson 为拼接计划，video_0..video_{n-1}
// 按计划顺序对应各片段的源视频
func (a RenderAPI) submitMultiClip(c *gin.Context) {
	var plan render.MultiClipPlan
	if err := json.Unmarshal([]byte(c.PostForm("multiClipPlanJson")), &plan); err != nil {
		web.Fail(c, reason.ErrBadRequest.Withf("multiClipPlanJson: %s", err.Error()))
		return
	}
	sources := make([]render.SourceFile, 0, len(plan.Clips))
	for i, e := range plan.Clips {
		fh, err := c.FormFile(fmt.Sprintf("video_%d", i))
		if err != nil {
			web.Fail(c, reason.ErrBadRequest.Withf("video_%d: %s", i, err.Error()))
			return
		}
		path := filepath.Join(a.conf.Render.TempDir, fmt.Sprintf("upload_%s%s", uuid.NewString(), filepath.Ext(fh.Filename)))
		if err := c.SaveUploadedFile(fh, path); err != nil {
			web.Fail(c, err)
			return
		}
		sources = append(sources, render.SourceFile{ClipID: e.ClipID, Path: path})
	}

	job, err := a.renderCore.SubmitMultiClipRender(c.Request.Context(), c.PostForm("project_id"), c.PostForm("exportId"), &plan, sources)
	if err != nil {
		web.Fail(c, mapSubmitErr(err))
		return
	}
	c.JSON(http.StatusOK, job)
}

func (a RenderAPI) submitOverlay(c *gin.Context, in *render.SubmitOverlayInput) (*render.Job, error) {
	job, err := a.renderCore.SubmitOverlayRender(c.Request.Context(), in)
	return job, mapSubmitErr(err)
}

func (a RenderAPI) findJobs(c *gin.Context, in *render.FindJobInput) (any, error) {
	items, total, err := a.renderCore.FindJobs(c.Request.Context(), in)
	return gin.H{"items": items, "total": total}, err
}

// getJob 轮询任务状态，进行中的任务带实时进度
func (a RenderAPI) getJob(c *gin.Context, _ *struct{}) (*render.Job, error) {
	return a.renderCore.GetJob(c.Request.Context(), c.Param("id"))
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(*http.Request) bool { return true },
}

const wsWriteWait = 10 * time.Second

// jobProgressWS 渲染进度推送
// 订阅即补发最近一次状态，终态事件后连接关闭；断线的客户端可
// 重连或回落到 GET /jobs/:id 轮询
func (a RenderAPI) jobProgressWS(c *gin.Context) {
	jobID := c.Param("id")
	if _, err := a.renderCore.GetJob(c.Request.Context(), jobID); err != nil {
		web.Fail(c, err)
		return
	}
	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		slog.ErrorContext(c.Request.Context(), "ws upgrade", "err", err)
		return
	}
	defer conn.Close()

	ch, cancel := a.renderCore.Hub().Subscribe(jobID)
	defer cancel()

	// 客户端不发业务消息，读协程仅感知断线
	go func() {
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				cancel()
				return
			}
		}
	}()

	for ev := range ch {
		_ = conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
		if err := conn.WriteJSON(ev); err != nil {
			return
		}
		if ev.Type == render.EventComplete || ev.Type == render.EventError {
			break
		}
	}
	_ = conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
	_ = conn.WriteMessage(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
}

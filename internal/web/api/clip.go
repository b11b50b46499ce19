package api

import (
	"github.com/clipworks/reframe/internal/core/clip"
	"github.com/gin-gonic/gin"
	"github.com/ixugo/goddd/pkg/web"
)

// ClipAPI 为 http 提供业务方法
type ClipAPI struct {
	clipCore clip.Core
}

func NewClipAPI(core clip.Core) ClipAPI {
	return ClipAPI{clipCore: core}
}

func registerClip(g gin.IRouter, api ClipAPI, handler ...gin.HandlerFunc) {
	group := g.Group("/clips", handler...)
	group.GET("", web.WrapH(api.findClips))
	group.POST("", web.WrapH(api.addClip))
	group.GET("/:id", web.WrapH(api.getClip))
	group.DELETE("/:id", web.WrapH(api.delClip))
	// 编辑态保存，经写合并队列延迟落盘
	group.PUT("/:id/transform", web.WrapH(api.saveTransform))
	group.POST("/:id/transform/flush", web.WrapH(api.flushTransform))
	group.GET("/:id/export", web.WrapH(api.exportClip))
}

func (a ClipAPI) findClips(c *gin.Context, in *clip.FindClipInput) (any, error) {
	items, total, err := a.clipCore.FindClips(c.Request.Context(), in)
	return gin.H{"items": items, "total": total}, err
}

func (a ClipAPI) addClip(c *gin.Context, in *clip.AddClipInput) (*clip.WorkingClip, error) {
	return a.clipCore.AddClip(c.Request.Context(), in)
}

func (a ClipAPI) getClip(c *gin.Context, _ *struct{}) (*clip.WorkingClip, error) {
	return a.clipCore.GetClip(c.Request.Context(), c.Param("id"))
}

func (a ClipAPI) delClip(c *gin.Context, _ *struct{}) (*clip.WorkingClip, error) {
	return a.clipCore.DelClip(c.Request.Context(), c.Param("id"))
}

func (a ClipAPI) saveTransform(c *gin.Context, in *clip.SaveTransformInput) (*clip.WorkingClip, error) {
	return a.clipCore.SaveTransform(c.Request.Context(), c.Param("id"), in)
}

func (a ClipAPI) flushTransform(c *gin.Context, _ *struct{}) (any, error) {
	if err := a.clipCore.FlushTransform(c.Request.Context(), c.Param("id")); err != nil {
		return nil, err
	}
	return gin.H{"msg": "ok"}, nil
}

// exportClip 解析片段当前持久化状态为导出参数
func (a ClipAPI) exportClip(c *gin.Context, _ *struct{}) (clip.ExportableClip, error) {
	return a.clipCore.Resolve(c.Request.Context(), c.Param("id"))
}

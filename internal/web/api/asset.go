package api

import (
	"net/http"

	"github.com/clipworks/reframe/internal/core/asset"
	"github.com/gin-gonic/gin"
	"github.com/ixugo/goddd/pkg/web"
)

// AssetAPI 为 http 提供业务方法
type AssetAPI struct {
	assetCore *asset.Core
}

func NewAssetAPI(core *asset.Core) AssetAPI {
	return AssetAPI{assetCore: core}
}

func registerAsset(g gin.IRouter, api AssetAPI, handler ...gin.HandlerFunc) {
	group := g.Group("/assets", handler...)
	group.POST("", api.uploadAsset)
	group.GET("/:id", web.WrapH(api.getAsset))
	group.GET("/:id/download", api.downloadAsset)
	group.DELETE("/:id", web.WrapH(api.releaseAsset))
}

type uploadAssetOutput struct {
	AssetID      string `json:"asset_id"`
	Hash         string `json:"hash"`
	Size         int64  `json:"size"`
	Deduplicated bool   `json:"deduplicated"`
}

// uploadAsset 原始字节流上传，内容哈希一致时去重并复用既有资产
func (a AssetAPI) uploadAsset(c *gin.Context) {
	res, err := a.assetCore.Store(c.Request.Context(), c.Request.Body)
	if err != nil {
		web.Fail(c, err)
		return
	}
	c.JSON(http.StatusOK, uploadAssetOutput{
		AssetID:      res.Asset.ID,
		Hash:         res.Asset.Hash,
		Size:         res.Asset.Size,
		Deduplicated: res.Deduplicated,
	})
}

func (a AssetAPI) getAsset(c *gin.Context, _ *struct{}) (*asset.Asset, error) {
	return a.assetCore.GetAsset(c.Request.Context(), c.Param("id"))
}

// downloadAsset 支持 HTTP Range 的视频下载
func (a AssetAPI) downloadAsset(c *gin.Context) {
	f, info, err := a.assetCore.Open(c.Request.Context(), c.Param("id"))
	if err != nil {
		web.Fail(c, err)
		return
	}
	defer f.Close()
	c.Header("Content-Type", "video/mp4")
	c.Header("Content-Disposition", `attachment; filename="`+info.ID+`.mp4"`)
	http.ServeContent(c.Writer, c.Request, info.ID+".mp4", info.UpdatedAt.Time, f)
}

// releaseAsset 递减引用计数，归零时回收字节
func (a AssetAPI) releaseAsset(c *gin.Context, _ *struct{}) (any, error) {
	if err := a.assetCore.Release(c.Request.Context(), c.Param("id")); err != nil {
		return nil, err
	}
	return gin.H{"msg": "ok"}, nil
}

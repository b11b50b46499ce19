package api

import (
	"net/http"

	"github.com/clipworks/reframe/internal/conf"
	"github.com/clipworks/reframe/internal/core/asset"
	"github.com/clipworks/reframe/internal/core/asset/store/assetdb"
	"github.com/clipworks/reframe/internal/core/clip"
	"github.com/clipworks/reframe/internal/core/clip/store/clipdb"
	"github.com/clipworks/reframe/internal/core/render"
	"github.com/clipworks/reframe/internal/core/render/store/renderdb"
	"github.com/gin-gonic/gin"
	"github.com/google/wire"
	"github.com/ixugo/goddd/domain/uniqueid"
	"github.com/ixugo/goddd/domain/uniqueid/store/uniqueiddb"
	"github.com/ixugo/goddd/domain/version/versionapi"
	"github.com/ixugo/goddd/pkg/orm"
	"github.com/ixugo/goddd/pkg/web"
	"gorm.io/gorm"
)

var (
	ProviderVersionSet = wire.NewSet(versionapi.NewVersionCore)
	ProviderSet        = wire.NewSet(
		wire.Struct(new(Usecase), "*"),
		NewHTTPHandler,
		versionapi.New,
		NewUniqueID,
		NewClipCore, NewClipAPI,
		NewAssetCore, NewAssetAPI,
		NewRenderCore, NewRenderAPI,
		NewDetectionAPI,
	)
)

type Usecase struct {
	Conf     *conf.Bootstrap
	DB       *gorm.DB
	Version  versionapi.API
	UniqueID uniqueid.Core

	ClipAPI      ClipAPI
	AssetAPI     AssetAPI
	RenderAPI    RenderAPI
	DetectionAPI DetectionAPI
}

// NewHTTPHandler 生成Gin框架路由内容
func NewHTTPHandler(uc *Usecase) http.Handler {
	cfg := uc.Conf.Server
	if cfg.HTTP.JwtSecret == "" {
		uc.Conf.Server.HTTP.JwtSecret = orm.GenerateRandomString(32)
	}
	if !uc.Conf.Debug {
		gin.SetMode(gin.ReleaseMode)
	}
	g := gin.New()
	// 如果启用了 Pprof，设置 Pprof 监控
	if cfg.HTTP.PProf.Enabled {
		web.SetupPProf(g, &cfg.HTTP.PProf.AccessIps)
	}

	setupRouter(g, uc)
	uc.Version.RecordVersion()
	return g
}

// NewUniqueID 唯一 id 生成器
func NewUniqueID(db *gorm.DB) uniqueid.Core {
	return uniqueid.NewCore(uniqueiddb.NewDB(db).AutoMigrate(orm.GetEnabledAutoMigrate()), 5)
}

// defaultAspect 竖屏短视频默认目标宽高比
var defaultAspect = clip.AspectRatio{W: 9, H: 16}

func NewClipCore(db *gorm.DB, uni uniqueid.Core, cfg *conf.Bootstrap) clip.Core {
	core := clip.NewCore(clipdb.NewDB(db).AutoMigrate(orm.GetEnabledAutoMigrate()), uni, defaultAspect)
	core.WithSaver(clip.NewSaverWithCore(cfg.Render.SaveQuietWindow.Duration(), core))
	return core
}

func NewAssetCore(db *gorm.DB, uni uniqueid.Core, cfg *conf.Bootstrap) *asset.Core {
	return asset.NewCore(assetdb.NewDB(db).AutoMigrate(orm.GetEnabledAutoMigrate()), uni, cfg.Storage.Root)
}

func NewRenderCore(db *gorm.DB, clips clip.Core, assets *asset.Core, cfg *conf.Bootstrap) *render.Core {
	return render.NewCore(renderdb.NewDB(db).AutoMigrate(orm.GetEnabledAutoMigrate()), clips, assets, cfg.Render)
}

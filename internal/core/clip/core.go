package clip

import (
	"context"
	"log/slog"

	"github.com/clipworks/reframe/internal/core/timeline"
	"github.com/ixugo/goddd/pkg/orm"
	"github.com/ixugo/goddd/pkg/reason"
	"github.com/jinzhu/copier"
)

// ClipStorer Instantiation interface
type ClipStorer interface {
	Find(context.Context, *[]*WorkingClip, orm.Pager, ...orm.QueryOption) (int64, error)
	Get(context.Context, *WorkingClip, ...orm.QueryOption) error
	Add(context.Context, *WorkingClip) error
	Edit(context.Context, *WorkingClip, func(*WorkingClip), ...orm.QueryOption) error
	Del(context.Context, *WorkingClip, ...orm.QueryOption) error
}

// Storer data persistence
type Storer interface {
	Clip() ClipStorer
}

// IDGenerator 业务前缀唯一 ID
type IDGenerator interface {
	UniqueID(prefix string) string
}

// IDPrefixClip 片段 ID 前缀
const IDPrefixClip = "clip"

// Core business domain
type Core struct {
	store    Storer
	uni      IDGenerator
	composer Composer
	saver    *Saver
}

// NewCore create business domain
func NewCore(store Storer, uni IDGenerator, aspect AspectRatio) Core {
	c := Core{
		store:    store,
		uni:      uni,
		composer: Composer{Aspect: aspect},
	}
	return c
}

// WithSaver 注入写合并队列，编辑保存走延迟落盘
func (c *Core) WithSaver(s *Saver) {
	c.saver = s
}

// Composer 返回解析器，渲染编排侧复用
func (c Core) Composer() Composer { return c.composer }

// FindClips 分页查询片段列表
func (c Core) FindClips(ctx context.Context, in *FindClipInput) ([]*WorkingClip, int64, error) {
	query := orm.NewQuery(2).OrderBy("created_at ASC")
	if in.ProjectID != "" {
		query.Where("project_id = ?", in.ProjectID)
	}
	items := make([]*WorkingClip, 0, in.Limit())
	total, err := c.store.Clip().Find(ctx, &items, in, query.Encode()...)
	if err != nil {
		return nil, 0, reason.ErrDB.Withf(`Find in[%+v] err[%s]`, in, err.Error())
	}
	return items, total, nil
}

// GetClip Query a single object
func (c Core) GetClip(ctx context.Context, id string) (*WorkingClip, error) {
	out := WorkingClip{ID: id}
	if err := c.store.Clip().Get(ctx, &out, orm.Where("id=?", id)); err != nil {
		if orm.IsErrRecordNotFound(err) {
			return nil, reason.ErrNotFound.Withf(`Get id[%v] err[%s]`, id, err.Error())
		}
		return nil, reason.ErrDB.Withf(`Get id[%v] err[%s]`, id, err.Error())
	}
	return &out, nil
}

// AddClip Insert into database
func (c Core) AddClip(ctx context.Context, in *AddClipInput) (*WorkingClip, error) {
	if in.Duration <= 0 || in.Framerate <= 0 {
		return nil, reason.ErrBadRequest.Withf("duration and framerate must be positive")
	}
	var out WorkingClip
	if err := copier.Copy(&out, in); err != nil {
		slog.ErrorContext(ctx, "Copy", "err", err)
	}
	out.ID = c.uni.UniqueID(IDPrefixClip)
	out.Version = 1
	out.Segments = NewSegments(in.Duration)

	if err := c.store.Clip().Add(ctx, &out); err != nil {
		return nil, reason.ErrDB.Withf(`Add err[%s]`, err.Error())
	}
	return &out, nil
}

// DelClip Delete object
func (c Core) DelClip(ctx context.Context, id string) (*WorkingClip, error) {
	var out WorkingClip
	if err := c.store.Clip().Del(ctx, &out, orm.Where("id=?", id)); err != nil {
		return nil, reason.ErrDB.Withf(`Del id[%v] err[%s]`, id, err.Error())
	}
	if c.saver != nil {
		c.saver.Discard(id)
	}
	return &out, nil
}

// SaveTransform 保存编辑中的变换状态（时间轴 + 分段模型）
// 已渲染过的片段在此处触发版本递增；经由写合并队列延迟落盘
func (c Core) SaveTransform(ctx context.Context, id string, in *SaveTransformInput) (*WorkingClip, error) {
	w, err := c.GetClip(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := applyTransform(w, in); err != nil {
		return nil, reason.ErrBadRequest.Withf("transform id[%s] err[%s]", id, err.Error())
	}

	if c.saver != nil {
		c.saver.Enqueue(w)
		return w, nil
	}
	if err := c.persistTransform(ctx, w); err != nil {
		return nil, err
	}
	return w, nil
}

// FlushTransform 渲染请求前的显式落盘，确保服务端不会基于过期状态渲染
func (c Core) FlushTransform(ctx context.Context, id string) error {
	if c.saver == nil {
		return nil
	}
	return c.saver.Flush(ctx, id)
}

// MarkRendered 渲染提交时标记版本已被引用
func (c Core) MarkRendered(ctx context.Context, id string, version int) error {
	var out WorkingClip
	err := c.store.Clip().Edit(ctx, &out, func(w *WorkingClip) {
		if w.Version == version {
			w.Rendered = true
		}
	}, orm.Where("id=?", id))
	if err != nil {
		return reason.ErrDB.Withf(`MarkRendered id[%v] err[%s]`, id, err.Error())
	}
	return nil
}

// Resolve 解析片段的持久化状态为导出参数
func (c Core) Resolve(ctx context.Context, id string) (ExportableClip, error) {
	w, err := c.GetClip(ctx, id)
	if err != nil {
		return ExportableClip{}, err
	}
	return c.composer.Resolve(w), nil
}

// ResolveProject 解析项目下全部片段的拼接计划
func (c Core) ResolveProject(ctx context.Context, projectID, selectedID string, live *WorkingClip) ([]ExportableClip, error) {
	clips, _, err := c.FindClips(ctx, &FindClipInput{
		ProjectID:   projectID,
		PagerFilter: allPager(),
	})
	if err != nil {
		return nil, err
	}
	return c.composer.ResolveAll(clips, selectedID, live), nil
}

// applyTransform 将编辑态写入内存模型，触发写时复制版本规则
// 客户端提交的是完整时间轴，帧号必须落在 [0, FrameCount] 内
func applyTransform(w *WorkingClip, in *SaveTransformInput) error {
	max := w.FrameCount()
	if in.Crop != nil {
		if err := validateFrames(in.Crop, max); err != nil {
			return err
		}
	}
	if in.Highlight != nil {
		if err := validateFrames(in.Highlight, max); err != nil {
			return err
		}
	}
	if in.Crop != nil {
		w.Crop = *in.Crop
	}
	if in.Highlight != nil {
		w.Highlight = *in.Highlight
	}
	if in.Segments != nil {
		w.Segments = *in.Segments
	}
	if w.Rendered {
		w.Version++
		w.Rendered = false
	}
	return nil
}

func validateFrames[T timeline.Data[T]](tl *timeline.Timeline[T], maxFrame int) error {
	for _, k := range tl.Keys {
		if k.Frame < 0 || k.Frame > maxFrame {
			return timeline.ErrFrameOutOfRange
		}
	}
	return nil
}

// persistTransform 将内存模型落盘，最后写入者胜出
func (c Core) persistTransform(ctx context.Context, w *WorkingClip) error {
	var out WorkingClip
	err := c.store.Clip().Edit(ctx, &out, func(dst *WorkingClip) {
		dst.Crop = w.Crop
		dst.Highlight = w.Highlight
		dst.Segments = w.Segments
		dst.Version = w.Version
		dst.Rendered = w.Rendered
	}, orm.Where("id=?", w.ID))
	if err != nil {
		return reason.ErrDB.Withf(`persist transform id[%v] err[%s]`, w.ID, err.Error())
	}
	return nil
}

// SeedHighlightFromDetection 将外部检测框转换为高亮关键帧写入片段
func (c Core) SeedHighlightFromDetection(ctx context.Context, id string, boxes []DetectionBox) (*WorkingClip, error) {
	w, err := c.GetClip(ctx, id)
	if err != nil {
		return nil, err
	}
	for _, b := range boxes {
		data := timeline.HighlightData{
			X:             b.X + b.Width/2,
			Y:             b.Y + b.Height/2,
			RadiusX:       b.Width / 2,
			RadiusY:       b.Height / 2,
			Opacity:       0.85,
			Color:         "#ffd700",
			FromDetection: true,
		}
		if err := w.SetHighlightKeyframe(b.Frame, data, timeline.OriginUser); err != nil {
			return nil, reason.ErrBadRequest.Withf("detection frame[%d] err[%s]", b.Frame, err.Error())
		}
	}
	if err := c.persistTransform(ctx, w); err != nil {
		return nil, err
	}
	return w, nil
}

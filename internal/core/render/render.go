package render

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"os"
	"path/filepath"

	"github.com/clipworks/reframe/internal/conf"
	"github.com/clipworks/reframe/internal/core/asset"
	"github.com/clipworks/reframe/internal/core/clip"
	"github.com/clipworks/reframe/pkg/ffkit"
	"github.com/google/uuid"
	"github.com/ixugo/goddd/pkg/orm"
	"github.com/ixugo/goddd/pkg/reason"
)

// JobStorer Instantiation interface
type JobStorer interface {
	Find(context.Context, *[]*Job, orm.Pager, ...orm.QueryOption) (int64, error)
	Get(context.Context, *Job, ...orm.QueryOption) error
	Add(context.Context, *Job) error
	Edit(context.Context, *Job, func(*Job), ...orm.QueryOption) error
}

// Storer data persistence
type Storer interface {
	Job() JobStorer
}

// Runner 编码子进程执行器，测试注入假实现
type Runner func(ctx context.Context, args []string, totalDur float64, onProgress func(float64)) error

// Prober 源视频元数据探测
type Prober func(ctx context.Context, path string) (*ffkit.MediaInfo, error)

// Core business domain
// 渲染任务编排：工作槽限流 + 进度分发 + 片段编码缓存
type Core struct {
	store  Storer
	clips  clip.Core
	assets *asset.Core
	enc    ffkit.Encoder
	run    Runner
	probe  Prober
	hub    *Hub
	cache  *encodeCache
	slots  chan struct{}
	cfg    conf.Render
}

// NewCore create business domain
func NewCore(store Storer, clips clip.Core, assets *asset.Core, cfg conf.Render) *Core {
	enc := ffkit.New(cfg.EncoderBin, cfg.ProbeBin)
	workers := cfg.Workers
	if workers <= 0 {
		workers = 1
	}
	return &Core{
		store:  store,
		clips:  clips,
		assets: assets,
		enc:    enc,
		run:    enc.Run,
		probe:  enc.Probe,
		hub:    NewHub(),
		cache:  newEncodeCache(),
		slots:  make(chan struct{}, workers),
		cfg:    cfg,
	}
}

// WithRunner 替换编码执行器，仅测试使用
func (c *Core) WithRunner(run Runner, probe Prober) {
	c.run = run
	if probe != nil {
		c.probe = probe
	}
}

// Hub 进度分发中心
func (c *Core) Hub() *Hub { return c.hub }

// FindJobs 分页查询渲染任务
func (c *Core) FindJobs(ctx context.Context, in *FindJobInput) ([]*Job, int64, error) {
	query := orm.NewQuery(2).OrderBy("created_at DESC")
	if in.ProjectID != "" {
		query.Where("project_id = ?", in.ProjectID)
	}
	if in.Status != "" {
		query.Where("status = ?", in.Status)
	}
	items := make([]*Job, 0, in.Limit())
	total, err := c.store.Job().Find(ctx, &items, in, query.Encode()...)
	if err != nil {
		return nil, 0, reason.ErrDB.Withf(`Find in[%+v] err[%s]`, in, err.Error())
	}
	return items, total, nil
}

// GetJob 查询单个任务，进行中的任务合并通道上的实时进度
func (c *Core) GetJob(ctx context.Context, id string) (*Job, error) {
	out := Job{ID: id}
	if err := c.store.Job().Get(ctx, &out, orm.Where("id=?", id)); err != nil {
		if orm.IsErrRecordNotFound(err) {
			return nil, reason.ErrNotFound.Withf(`Get id[%v] err[%s]`, id, err.Error())
		}
		return nil, reason.ErrDB.Withf(`Get id[%v] err[%s]`, id, err.Error())
	}
	if !out.Terminal() {
		if ev, ok := c.hub.Snapshot(id); ok {
			out.Percent = ev.Percent
			out.Phase = ev.Phase
			out.Message = ev.Message
		}
	}
	return &out, nil
}

// SubmitClipRender 提交单片段渲染
// 服务端权威：先冲刷写合并队列，再从持久化状态解析导出参数，
// 客户端只提供片段 ID
func (c *Core) SubmitClipRender(ctx context.Context, in *SubmitClipInput) (*Job, error) {
	if err := c.clips.FlushTransform(ctx, in.ClipID); err != nil {
		return nil, err
	}
	w, err := c.clips.GetClip(ctx, in.ClipID)
	if err != nil {
		return nil, err
	}
	if w.Crop.Empty() && (w.Width <= 0 || w.Height <= 0) {
		return nil, ErrIncompleteFraming
	}
	src, err := c.sourcePath(ctx, w.AssetID)
	if err != nil {
		return nil, err
	}
	e := c.clips.Composer().Resolve(w)

	job := &Job{
		ID:          uuid.NewString(),
		ProjectID:   w.ProjectID,
		ClipID:      w.ID,
		ExportID:    in.ExportID,
		Kind:        KindSingleClip,
		Status:      StatusPending,
		Phase:       PhasePrepare,
		ClipVersion: w.Version,
	}
	if err := c.store.Job().Add(ctx, job); err != nil {
		return nil, reason.ErrDB.Withf(`Add job err[%s]`, err.Error())
	}
	if err := c.clips.MarkRendered(ctx, w.ID, w.Version); err != nil {
		slog.ErrorContext(ctx, "MarkRendered", "clip", w.ID, "err", err)
	}
	go c.runSingle(job.ID, e, src, in)
	return job, nil
}

func (c *Core) runSingle(jobID string, e clip.ExportableClip, src string, in *SubmitClipInput) {
	ctx := context.Background()
	c.slots <- struct{}{}
	defer func() { <-c.slots }()

	c.transition(ctx, jobID, StatusProcessing, PhasePrepare, 0)

	ow, oh := outputDims(in.OutWidth, in.OutHeight, e)
	params := clipParams(e, ow, oh, c.cfg.TargetFPS, in.IncludeAudio)
	out := filepath.Join(c.cfg.TempDir, jobID+".mp4")
	c.report(jobID, 5, PhaseEncode, "")

	args := c.enc.BuildClipArgs(src, out, params)
	err := c.run(ctx, args, e.EffectiveDuration, func(p float64) {
		c.report(jobID, 5+p*0.90, PhaseEncode, "")
	})
	if err != nil {
		_ = os.Remove(out)
		c.fail(ctx, jobID, fmt.Errorf("%w: %s", ErrEncodeFailed, err.Error()))
		return
	}
	c.finalize(ctx, jobID, out)
}

// SubmitMultiClipRender 提交多片段拼接渲染，源视频已由接入层落盘
func (c *Core) SubmitMultiClipRender(ctx context.Context, projectID, exportID string, plan *MultiClipPlan, sources []SourceFile) (*Job, error) {
	if len(plan.Clips) == 0 {
		return nil, reason.ErrBadRequest.Withf("empty clip plan")
	}
	if len(sources) != len(plan.Clips) {
		return nil, fmt.Errorf("%w: %d sources for %d clips", ErrSourceNotReady, len(sources), len(plan.Clips))
	}
	byClip := make(map[string]string, len(sources))
	for _, s := range sources {
		byClip[s.ClipID] = s.Path
	}
	for _, e := range plan.Clips {
		if _, ok := byClip[e.ClipID]; !ok {
			return nil, fmt.Errorf("%w: missing source for clip %s", ErrSourceNotReady, e.ClipID)
		}
	}

	job := &Job{
		ID:        uuid.NewString(),
		ProjectID: projectID,
		ExportID:  exportID,
		Kind:      KindMultiClip,
		Status:    StatusPending,
		Phase:     PhasePrepare,
	}
	if err := c.store.Job().Add(ctx, job); err != nil {
		return nil, reason.ErrDB.Withf(`Add job err[%s]`, err.Error())
	}
	for _, e := range plan.Clips {
		if err := c.clips.MarkRendered(ctx, e.ClipID, e.Version); err != nil {
			slog.ErrorContext(ctx, "MarkRendered", "clip", e.ClipID, "err", err)
		}
	}
	go c.runMulti(job.ID, plan, byClip)
	return job, nil
}

func (c *Core) runMulti(jobID string, plan *MultiClipPlan, sources map[string]string) {
	ctx := context.Background()
	c.slots <- struct{}{}
	defer func() { <-c.slots }()

	c.transition(ctx, jobID, StatusProcessing, PhasePrepare, 0)

	oh := 1080
	ow := even(float64(oh) * plan.GlobalAspectRatio.Ratio())
	n := len(plan.Clips)
	span := 75.0 / float64(n)

	parts := make([]string, 0, n)
	durations := make([]float64, 0, n)
	for i, e := range plan.Clips {
		base := 5 + span*float64(i)
		params := clipParams(e, ow, oh, c.cfg.TargetFPS, plan.IncludeAudio)
		key := cacheKey(e.ClipID, e.Version, params)
		if path, ok := c.cache.Get(key); ok {
			// 缓存命中直接复用编码产物
			c.report(jobID, base+span, PhaseClips, fmt.Sprintf("clip %d/%d cached", i+1, n))
			parts = append(parts, path)
			durations = append(durations, e.EffectiveDuration)
			continue
		}
		out := filepath.Join(c.cfg.TempDir, key+".mp4")
		args := c.enc.BuildClipArgs(sources[e.ClipID], out, params)
		err := c.run(ctx, args, e.EffectiveDuration, func(p float64) {
			c.report(jobID, base+p*span/100, PhaseClips, fmt.Sprintf("clip %d/%d", i+1, n))
		})
		if err != nil {
			_ = os.Remove(out)
			c.fail(ctx, jobID, fmt.Errorf("%w: clip %s: %s", ErrEncodeFailed, e.ClipID, err.Error()))
			return
		}
		c.cache.Put(key, out)
		parts = append(parts, out)
		durations = append(durations, e.EffectiveDuration)
	}

	c.transition(ctx, jobID, StatusProcessing, PhaseStitch, 80)
	stitched := filepath.Join(c.cfg.TempDir, jobID+".mp4")
	var total float64
	for _, d := range durations {
		total += d
	}
	args := c.enc.BuildConcatArgs(parts, stitched, durations, plan.Transition, c.cfg.TargetFPS, plan.IncludeAudio)
	err := c.run(ctx, args, total, func(p float64) {
		c.report(jobID, 80+p*0.15, PhaseStitch, "")
	})
	if err != nil {
		_ = os.Remove(stitched)
		c.fail(ctx, jobID, fmt.Errorf("%w: stitch: %s", ErrEncodeFailed, err.Error()))
		return
	}
	c.finalize(ctx, jobID, stitched)
}

// SubmitOverlayRender 对已渲染的成片叠加高亮效果
// 高亮窗口取自片段的高亮时间轴，相邻关键帧构成一个启用窗口
func (c *Core) SubmitOverlayRender(ctx context.Context, in *SubmitOverlayInput) (*Job, error) {
	switch in.Effect {
	case ffkit.EffectDarkOverlay, ffkit.EffectBrightnessBoost, ffkit.EffectOriginal:
	default:
		return nil, reason.ErrBadRequest.Withf("unknown effect %q", in.Effect)
	}
	src, err := c.sourcePath(ctx, in.AssetID)
	if err != nil {
		return nil, err
	}
	w, err := c.clips.GetClip(ctx, in.ClipID)
	if err != nil {
		return nil, err
	}
	windows := overlayWindows(w)
	if in.Effect != ffkit.EffectOriginal && len(windows) == 0 {
		return nil, ErrIncompleteFraming
	}

	job := &Job{
		ID:        uuid.NewString(),
		ProjectID: w.ProjectID,
		ClipID:    w.ID,
		ExportID:  in.ExportID,
		Kind:      KindOverlay,
		Status:    StatusPending,
		Phase:     PhasePrepare,
	}
	if err := c.store.Job().Add(ctx, job); err != nil {
		return nil, reason.ErrDB.Withf(`Add job err[%s]`, err.Error())
	}
	go c.runOverlay(job.ID, src, in.AssetID, ffkit.OverlayParams{Effect: in.Effect, Windows: windows})
	return job, nil
}

func (c *Core) runOverlay(jobID, src, srcAssetID string, p ffkit.OverlayParams) {
	ctx := context.Background()
	c.slots <- struct{}{}
	defer func() { <-c.slots }()

	c.transition(ctx, jobID, StatusProcessing, PhaseOverlay, 0)

	// original 效果不产生新编码，直接引用源资产
	if p.Effect == ffkit.EffectOriginal {
		c.complete(ctx, jobID, srcAssetID)
		return
	}

	var total float64
	if info, err := c.probe(ctx, src); err == nil {
		total = info.Duration
	}
	out := filepath.Join(c.cfg.TempDir, jobID+".mp4")
	args := c.enc.BuildOverlayArgs(src, out, p)
	err := c.run(ctx, args, total, func(pct float64) {
		c.report(jobID, pct*0.90, PhaseOverlay, "")
	})
	if err != nil {
		_ = os.Remove(out)
		c.fail(ctx, jobID, fmt.Errorf("%w: %s", ErrEncodeFailed, err.Error()))
		return
	}
	c.finalize(ctx, jobID, out)
}

// finalize 编码产物入库（内容寻址去重）并完成任务
func (c *Core) finalize(ctx context.Context, jobID, path string) {
	c.transition(ctx, jobID, StatusProcessing, PhaseFinalize, 95)
	res, err := c.assets.StoreFile(ctx, path)
	if err != nil {
		_ = os.Remove(path)
		c.fail(ctx, jobID, fmt.Errorf("store result: %w", err))
		return
	}
	_ = os.Remove(path)
	c.complete(ctx, jobID, res.Asset.ID)
}

// sourcePath 校验资产存在且字节仍在磁盘
func (c *Core) sourcePath(ctx context.Context, assetID string) (string, error) {
	if assetID == "" {
		return "", ErrSourceNotReady
	}
	a, err := c.assets.GetAsset(ctx, assetID)
	if err != nil {
		return "", fmt.Errorf("%w: %s", ErrSourceNotReady, err.Error())
	}
	if !c.assets.Exists(a) {
		return "", fmt.Errorf("%w: asset %s missing on disk", ErrSourceNotReady, assetID)
	}
	return c.assets.FullPath(a), nil
}

// report 仅向进度通道上报，不落库
func (c *Core) report(jobID string, percent float64, phase, msg string) {
	c.hub.Publish(Event{
		Type:    EventProgress,
		JobID:   jobID,
		Percent: percent,
		Phase:   phase,
		Message: msg,
	})
}

// transition 阶段变化落库并上报
func (c *Core) transition(ctx context.Context, jobID string, st Status, phase string, percent float64) {
	var out Job
	err := c.store.Job().Edit(ctx, &out, func(j *Job) {
		j.Status = st
		j.Phase = phase
		j.Percent = percent
	}, orm.Where("id=?", jobID))
	if err != nil {
		slog.ErrorContext(ctx, "job transition", "job", jobID, "err", err)
	}
	c.report(jobID, percent, phase, "")
}

func (c *Core) complete(ctx context.Context, jobID, assetID string) {
	var out Job
	err := c.store.Job().Edit(ctx, &out, func(j *Job) {
		j.Status = StatusComplete
		j.Phase = PhaseFinalize
		j.Percent = 100
		j.ResultAssetID = assetID
	}, orm.Where("id=?", jobID))
	if err != nil {
		slog.ErrorContext(ctx, "job complete", "job", jobID, "err", err)
	}
	c.hub.Publish(Event{
		Type:          EventComplete,
		JobID:         jobID,
		Percent:       100,
		Phase:         PhaseFinalize,
		ResultAssetID: assetID,
	})
}

func (c *Core) fail(ctx context.Context, jobID string, cause error) {
	slog.ErrorContext(ctx, "render failed", "job", jobID, "err", cause)
	var out Job
	err := c.store.Job().Edit(ctx, &out, func(j *Job) {
		j.Status = StatusError
		j.Error = cause.Error()
	}, orm.Where("id=?", jobID))
	if err != nil {
		slog.ErrorContext(ctx, "job fail", "job", jobID, "err", err)
	}
	c.hub.Publish(Event{
		Type:  EventError,
		JobID: jobID,
		Error: cause.Error(),
	})
}

// clipParams 将解析结果映射为编码参数，已隐藏的分段不参与
func clipParams(e clip.ExportableClip, ow, oh, fps int, audio bool) ffkit.ClipParams {
	p := ffkit.ClipParams{
		TargetFPS:    fps,
		OutWidth:     ow,
		OutHeight:    oh,
		IncludeAudio: audio,
	}
	for _, k := range e.Crop {
		p.Crop = append(p.Crop, ffkit.CropKeyframe{
			Time: k.Time, X: k.Data.X, Y: k.Data.Y, Width: k.Data.Width, Height: k.Data.Height,
		})
	}
	for _, s := range e.Segments {
		if s.IsTrimmed {
			continue
		}
		p.Segments = append(p.Segments, ffkit.SpeedSegment{Start: s.Start, End: s.End, Speed: s.Speed})
	}
	if e.Trim != nil {
		p.Trim = &ffkit.Range{Start: e.Trim.Start, End: e.Trim.End}
	}
	return p
}

// outputDims 未指定输出尺寸时取首个裁剪关键帧的尺寸并取偶
func outputDims(w, h int, e clip.ExportableClip) (int, int) {
	if w > 0 && h > 0 {
		return even(float64(w)), even(float64(h))
	}
	if len(e.Crop) > 0 {
		return even(e.Crop[0].Data.Width), even(e.Crop[0].Data.Height)
	}
	return 1080, 1920
}

func even(v float64) int {
	n := int(math.Round(v))
	if n%2 != 0 {
		n--
	}
	if n < 2 {
		n = 2
	}
	return n
}

// overlayWindows 相邻高亮关键帧构成启用窗口，椭圆参数取窗口中点插值
func overlayWindows(w *clip.WorkingClip) []ffkit.OverlayWindow {
	if w.Highlight.Empty() {
		return nil
	}
	keys := w.Highlight.ExportTimeBased(w.Framerate)
	if len(keys) == 1 {
		k := keys[0]
		return []ffkit.OverlayWindow{{
			Start: k.Time, End: k.Time,
			CenterX: k.Data.X, CenterY: k.Data.Y,
			RadiusX: k.Data.RadiusX, RadiusY: k.Data.RadiusY,
			Opacity: k.Data.Opacity,
		}}
	}
	out := make([]ffkit.OverlayWindow, 0, len(keys)-1)
	for i := 0; i+1 < len(keys); i++ {
		a, b := keys[i], keys[i+1]
		mid := a.Data.Lerp(b.Data, 0.5)
		out = append(out, ffkit.OverlayWindow{
			Start: a.Time, End: b.Time,
			CenterX: mid.X, CenterY: mid.Y,
			RadiusX: mid.RadiusX, RadiusY: mid.RadiusY,
			Opacity: mid.Opacity,
		})
	}
	return out
}

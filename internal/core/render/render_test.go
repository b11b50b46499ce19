package render_test

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/clipworks/reframe/internal/conf"
	"github.com/clipworks/reframe/internal/core/asset"
	"github.com/clipworks/reframe/internal/core/asset/store/assetdb"
	"github.com/clipworks/reframe/internal/core/clip"
	"github.com/clipworks/reframe/internal/core/clip/store/clipdb"
	"github.com/clipworks/reframe/internal/core/render"
	"github.com/clipworks/reframe/internal/core/render/store/renderdb"
	"github.com/clipworks/reframe/internal/core/timeline"
	"github.com/clipworks/reframe/pkg/ffkit"
	"github.com/glebarez/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

type seqID struct{ n atomic.Int64 }

func (s *seqID) UniqueID(prefix string) string {
	return fmt.Sprintf("%s%d", prefix, s.n.Add(1))
}

type env struct {
	render *render.Core
	clips  clip.Core
	assets *asset.Core
	runs   *atomic.Int64
	tmp    string
}

// fakeRun 以最后一个参数为输出路径写入占位字节，并回调两次进度
func newEnv(t *testing.T) *env {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{Logger: logger.Discard})
	if err != nil {
		t.Fatal(err)
	}
	gen := &seqID{}
	assets := asset.NewCore(assetdb.NewDB(db).AutoMigrate(true), gen, t.TempDir())
	clips := clip.NewCore(clipdb.NewDB(db).AutoMigrate(true), gen, clip.AspectRatio{W: 9, H: 16})
	tmp := t.TempDir()
	cfg := conf.Render{Workers: 1, TempDir: tmp, TargetFPS: 30}
	rc := render.NewCore(renderdb.NewDB(db).AutoMigrate(true), clips, assets, cfg)

	var runs atomic.Int64
	rc.WithRunner(func(_ context.Context, args []string, _ float64, onProgress func(float64)) error {
		runs.Add(1)
		out := args[len(args)-1]
		if err := os.WriteFile(out, []byte("encoded:"+out), 0o644); err != nil {
			return err
		}
		if onProgress != nil {
			onProgress(50)
			onProgress(100)
		}
		return nil
	}, func(_ context.Context, _ string) (*ffkit.MediaInfo, error) {
		return &ffkit.MediaInfo{Duration: 10}, nil
	})
	return &env{render: rc, clips: clips, assets: assets, runs: &runs, tmp: tmp}
}

func (e *env) addClip(t *testing.T, withSource bool) *clip.WorkingClip {
	t.Helper()
	ctx := context.Background()
	in := clip.AddClipInput{ProjectID: "prj1", Duration: 10, Framerate: 30, Width: 1920, Height: 1080}
	if withSource {
		res, err := e.assets.Store(ctx, strings.NewReader("source-bytes"))
		if err != nil {
			t.Fatal(err)
		}
		in.AssetID = res.Asset.ID
	}
	w, err := e.clips.AddClip(ctx, &in)
	if err != nil {
		t.Fatal(err)
	}
	return w
}

func waitTerminal(t *testing.T, h *render.Hub, jobID string) render.Event {
	t.Helper()
	ch, cancel := h.Subscribe(jobID)
	defer cancel()
	timeout := time.After(3 * time.Second)
	for {
		select {
		case ev, ok := <-ch:
			if !ok {
				t.Fatal("channel closed without terminal event")
			}
			if ev.Type == render.EventComplete || ev.Type == render.EventError {
				return ev
			}
		case <-timeout:
			t.Fatal("timeout waiting for terminal event")
		}
	}
}

func TestSubmitClipRender(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	w := e.addClip(t, true)

	job, err := e.render.SubmitClipRender(ctx, &render.SubmitClipInput{ClipID: w.ID})
	if err != nil {
		t.Fatal(err)
	}
	ev := waitTerminal(t, e.render.Hub(), job.ID)
	if ev.Type != render.EventComplete {
		t.Fatalf("expected complete, got %+v", ev)
	}
	if ev.ResultAssetID == "" {
		t.Fatal("expected result asset id")
	}

	got, err := e.render.GetJob(ctx, job.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got.Status != render.StatusComplete || got.Percent != 100 {
		t.Fatalf("unexpected job state %+v", got)
	}
	if got.ResultAssetID != ev.ResultAssetID {
		t.Fatalf("result asset mismatch: %s vs %s", got.ResultAssetID, ev.ResultAssetID)
	}

	// 产出资产可读
	a, err := e.assets.GetAsset(ctx, ev.ResultAssetID)
	if err != nil {
		t.Fatal(err)
	}
	if !e.assets.Exists(a) {
		t.Fatal("result asset bytes missing")
	}

	// 提交即标记版本被引用，下一次编辑保存触发版本递增
	cw, err := e.clips.GetClip(ctx, w.ID)
	if err != nil {
		t.Fatal(err)
	}
	if !cw.Rendered {
		t.Fatal("expected clip marked rendered at submit")
	}
}

func TestSubmitClipRenderSourceNotReady(t *testing.T) {
	e := newEnv(t)
	w := e.addClip(t, false)

	_, err := e.render.SubmitClipRender(context.Background(), &render.SubmitClipInput{ClipID: w.ID})
	if !errors.Is(err, render.ErrSourceNotReady) {
		t.Fatalf("expected ErrSourceNotReady, got %v", err)
	}
}

func TestSubmitClipRenderIncompleteFraming(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	// 无裁剪关键帧且源尺寸未知，无法合成默认构图
	w, err := e.clips.AddClip(ctx, &clip.AddClipInput{ProjectID: "prj1", Duration: 10, Framerate: 30})
	if err != nil {
		t.Fatal(err)
	}
	_, err = e.render.SubmitClipRender(ctx, &render.SubmitClipInput{ClipID: w.ID})
	if !errors.Is(err, render.ErrIncompleteFraming) {
		t.Fatalf("expected ErrIncompleteFraming, got %v", err)
	}
}

func TestSubmitClipRenderEncodeFailed(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	w := e.addClip(t, true)
	e.render.WithRunner(func(_ context.Context, args []string, _ float64, _ func(float64)) error {
		// 编码器中途失败时会留下写了一半的输出文件
		_ = os.WriteFile(args[len(args)-1], []byte("partial"), 0o644)
		return errors.New("width not divisible by 2 (1081x1920)")
	}, nil)

	job, err := e.render.SubmitClipRender(ctx, &render.SubmitClipInput{ClipID: w.ID})
	if err != nil {
		t.Fatal(err)
	}
	ev := waitTerminal(t, e.render.Hub(), job.ID)
	if ev.Type != render.EventError {
		t.Fatalf("expected error event, got %+v", ev)
	}
	// 编码器诊断原样透传
	if !strings.Contains(ev.Error, "width not divisible by 2") {
		t.Fatalf("diagnostic lost: %s", ev.Error)
	}
	got, err := e.render.GetJob(ctx, job.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got.Status != render.StatusError || !strings.Contains(got.Error, "width not divisible by 2") {
		t.Fatalf("unexpected job state %+v", got)
	}
	// 失败任务不留半成品
	if _, err := os.Stat(filepath.Join(e.tmp, job.ID+".mp4")); !os.IsNotExist(err) {
		t.Fatalf("partial output not cleaned up: %v", err)
	}
}

func multiPlan(w *clip.WorkingClip, n int) *render.MultiClipPlan {
	plan := &render.MultiClipPlan{
		GlobalAspectRatio: clip.AspectRatio{W: 9, H: 16},
		Transition:        ffkit.Transition{Type: ffkit.TransitionCut},
	}
	for i := 0; i < n; i++ {
		plan.Clips = append(plan.Clips, clip.ExportableClip{
			ClipID:    fmt.Sprintf("%s_%d", w.ID, i),
			Version:   1,
			Duration:  10,
			Framerate: 30,
			Crop: []timeline.TimedKeyframe[timeline.CropData]{
				{Time: 0, Data: timeline.CropData{Width: 608, Height: 1080}},
				{Time: 10, Data: timeline.CropData{Width: 608, Height: 1080}},
			},
			Segments:          []clip.Segment{{Start: 0, End: 10, Speed: 1}},
			EffectiveDuration: 10,
		})
	}
	return plan
}

func TestSubmitMultiClipRender(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	w := e.addClip(t, true)
	plan := multiPlan(w, 2)

	srcDir := t.TempDir()
	var sources []render.SourceFile
	for i, c := range plan.Clips {
		path := fmt.Sprintf("%s/src%d.mp4", srcDir, i)
		if err := os.WriteFile(path, []byte("src"), 0o644); err != nil {
			t.Fatal(err)
		}
		sources = append(sources, render.SourceFile{ClipID: c.ClipID, Path: path})
	}

	job, err := e.render.SubmitMultiClipRender(ctx, "prj1", "exp1", plan, sources)
	if err != nil {
		t.Fatal(err)
	}
	ev := waitTerminal(t, e.render.Hub(), job.ID)
	if ev.Type != render.EventComplete {
		t.Fatalf("expected complete, got %+v", ev)
	}
	// 2 次片段编码 + 1 次拼接
	if got := e.runs.Load(); got != 3 {
		t.Fatalf("expected 3 encoder runs, got %d", got)
	}
}

func TestSubmitMultiClipRenderCacheHit(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	w := e.addClip(t, true)
	plan := multiPlan(w, 1)

	src := t.TempDir() + "/src.mp4"
	if err := os.WriteFile(src, []byte("src"), 0o644); err != nil {
		t.Fatal(err)
	}
	sources := []render.SourceFile{{ClipID: plan.Clips[0].ClipID, Path: src}}

	job1, err := e.render.SubmitMultiClipRender(ctx, "prj1", "exp1", plan, sources)
	if err != nil {
		t.Fatal(err)
	}
	waitTerminal(t, e.render.Hub(), job1.ID)
	first := e.runs.Load()

	// 同片段同版本同参数复用缓存，仅余拼接一趟
	job2, err := e.render.SubmitMultiClipRender(ctx, "prj1", "exp1", plan, sources)
	if err != nil {
		t.Fatal(err)
	}
	waitTerminal(t, e.render.Hub(), job2.ID)
	if got := e.runs.Load() - first; got != 1 {
		t.Fatalf("expected 1 encoder run on cache hit, got %d", got)
	}
}

func TestSubmitMultiClipRenderSourceMismatch(t *testing.T) {
	e := newEnv(t)
	w := e.addClip(t, true)
	plan := multiPlan(w, 2)

	_, err := e.render.SubmitMultiClipRender(context.Background(), "prj1", "exp1", plan, nil)
	if !errors.Is(err, render.ErrSourceNotReady) {
		t.Fatalf("expected ErrSourceNotReady, got %v", err)
	}
}

func TestSubmitOverlayRender(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	w := e.addClip(t, true)

	// 高亮时间轴给出两个关键帧，构成一个启用窗口
	hi := timeline.HighlightData{X: 960, Y: 540, RadiusX: 100, RadiusY: 80, Opacity: 0.85}
	if err := w.SetHighlightKeyframe(30, hi, timeline.OriginUser); err != nil {
		t.Fatal(err)
	}
	if _, err := e.clips.SaveTransform(ctx, w.ID, &clip.SaveTransformInput{Highlight: &w.Highlight}); err != nil {
		t.Fatal(err)
	}

	job, err := e.render.SubmitOverlayRender(ctx, &render.SubmitOverlayInput{
		AssetID: w.AssetID,
		ClipID:  w.ID,
		Effect:  ffkit.EffectDarkOverlay,
	})
	if err != nil {
		t.Fatal(err)
	}
	ev := waitTerminal(t, e.render.Hub(), job.ID)
	if ev.Type != render.EventComplete || ev.ResultAssetID == "" {
		t.Fatalf("unexpected terminal event %+v", ev)
	}
}

func TestSubmitOverlayRenderOriginalPassthrough(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	w := e.addClip(t, true)

	job, err := e.render.SubmitOverlayRender(ctx, &render.SubmitOverlayInput{
		AssetID: w.AssetID,
		ClipID:  w.ID,
		Effect:  ffkit.EffectOriginal,
	})
	if err != nil {
		t.Fatal(err)
	}
	ev := waitTerminal(t, e.render.Hub(), job.ID)
	if ev.Type != render.EventComplete || ev.ResultAssetID != w.AssetID {
		t.Fatalf("expected passthrough to source asset, got %+v", ev)
	}
	if got := e.runs.Load(); got != 0 {
		t.Fatalf("expected no encoder runs, got %d", got)
	}
}

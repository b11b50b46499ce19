package clip

import (
	"math"
	"testing"

	"github.com/clipworks/reframe/internal/core/timeline"
)

func plainClip(id string, duration, framerate float64) *WorkingClip {
	return &WorkingClip{
		ID:        id,
		Duration:  duration,
		Framerate: framerate,
		Width:     1920,
		Height:    1080,
		Version:   1,
		Segments:  NewSegments(duration),
	}
}

func TestResolveAllCumulativeTiming(t *testing.T) {
	c := Composer{Aspect: AspectRatio{W: 9, H: 16}}
	clips := []*WorkingClip{
		plainClip("a", 10, 30),
		plainClip("b", 15, 30),
		plainClip("c", 20, 30),
	}
	out := c.ResolveAll(clips, "", nil)
	want := [][2]float64{{0, 10}, {10, 25}, {25, 45}}
	for i, e := range out {
		if !almost(e.Start, want[i][0]) || !almost(e.End, want[i][1]) {
			t.Fatalf("out[%d] = [%v, %v], want %v", i, e.Start, e.End, want[i])
		}
	}
}

// 只编辑一个片段时，其余片段不得从导出计划中丢失（历史回归）
func TestResolveAllCompleteness(t *testing.T) {
	c := Composer{Aspect: AspectRatio{W: 9, H: 16}}
	clips := []*WorkingClip{
		plainClip("a", 10, 30),
		plainClip("b", 15, 30),
		plainClip("c", 20, 30),
	}
	live := plainClip("b", 15, 30)
	_ = live.Segments.SetSpeed(0, 0.5) // 实时编辑：b 放慢一半

	out := c.ResolveAll(clips, "b", live)
	if len(out) != len(clips) {
		t.Fatalf("len = %d, want %d", len(out), len(clips))
	}
	for i, id := range []string{"a", "b", "c"} {
		if out[i].ClipID != id {
			t.Fatalf("out[%d].ClipID = %s, want %s", i, out[i].ClipID, id)
		}
	}
	// b 的实时态生效，累计偏移随之顺延
	if !almost(out[1].EffectiveDuration, 30) {
		t.Fatalf("live edit ignored: %v", out[1].EffectiveDuration)
	}
	if !almost(out[2].Start, 40) || !almost(out[2].End, 60) {
		t.Fatalf("out[2] = [%v, %v], want [40, 60]", out[2].Start, out[2].End)
	}
}

// 其他片段的帧/时间转换必须用它们各自的帧率，而不是活动片段的帧率
func TestResolveUsesOwnFramerate(t *testing.T) {
	c := Composer{Aspect: AspectRatio{W: 9, H: 16}}
	w := plainClip("a", 10, 60)
	if err := w.SetCropKeyframe(600, timeline.CropData{X: 1, Width: 1, Height: 1}, timeline.OriginUser); err != nil {
		t.Fatal(err)
	}
	out := c.Resolve(w)
	// 帧 600 @ 60fps = 10s
	var found bool
	for _, kf := range out.Crop {
		if math.Abs(kf.Time-10) < 1e-9 && kf.Data.X == 1 {
			found = true
		}
	}
	if !found {
		t.Fatalf("keyframe not converted at clip's own framerate: %+v", out.Crop)
	}
}

func TestResolveSynthesizesDefaultCrop(t *testing.T) {
	c := Composer{Aspect: AspectRatio{W: 9, H: 16}}
	w := plainClip("a", 12, 30)
	out := c.Resolve(w)

	if len(out.Crop) != 2 {
		t.Fatalf("default crop keyframes = %d, want 2", len(out.Crop))
	}
	if out.Crop[0].Time != 0 || !almost(out.Crop[1].Time, 12) {
		t.Fatalf("boundary times = %v, %v", out.Crop[0].Time, out.Crop[1].Time)
	}
	d := out.Crop[0].Data
	if d != out.Crop[1].Data {
		t.Fatal("boundary keyframes should be identical")
	}
	// 1920x1080 源配 9:16 目标：裁剪高占满 1080，宽 = 1080*9/16，水平居中
	wantW := 1080.0 * 9 / 16
	if !almost(d.Width, wantW) || !almost(d.Height, 1080) {
		t.Fatalf("crop size = %vx%v, want %vx1080", d.Width, d.Height, wantW)
	}
	if !almost(d.X, (1920-wantW)/2) || d.Y != 0 {
		t.Fatalf("crop origin = (%v, %v)", d.X, d.Y)
	}
}

func TestResolveCarriesTrimAndHighlight(t *testing.T) {
	c := Composer{Aspect: AspectRatio{W: 9, H: 16}}
	w := newFramedClip(t)
	_ = w.SetHighlightKeyframe(450, timeline.HighlightData{X: 5, RadiusX: 2, RadiusY: 2, Opacity: 1}, timeline.OriginUser)
	_ = w.Segments.Split(10)
	if err := w.ToggleTrim(0); err != nil {
		t.Fatal(err)
	}

	out := c.Resolve(w)
	if out.Trim == nil || !almost(out.Trim.Start, 10) {
		t.Fatalf("trim = %+v", out.Trim)
	}
	if len(out.Highlight) == 0 {
		t.Fatal("highlight timeline dropped")
	}
	if !almost(out.EffectiveDuration, 20) {
		t.Fatalf("effective duration = %v", out.EffectiveDuration)
	}
}

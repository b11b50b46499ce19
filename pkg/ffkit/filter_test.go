package ffkit

import (
	"strings"
	"testing"
)

func findArg(args []string, flag string) (string, bool) {
	for i, a := range args {
		if a == flag && i+1 < len(args) {
			return args[i+1], true
		}
	}
	return "", false
}

func TestBuildClipArgsStaticCrop(t *testing.T) {
	e := New("", "")
	p := ClipParams{
		Crop: []CropKeyframe{
			{Time: 0, X: 656, Y: 0, Width: 608, Height: 1080},
			{Time: 30, X: 656, Y: 0, Width: 608, Height: 1080},
		},
		Segments:  []SpeedSegment{{Start: 0, End: 30, Speed: 1}},
		TargetFPS: 30,
		OutWidth:  1080,
		OutHeight: 1920,
	}
	args := e.BuildClipArgs("in.mp4", "out.mp4", p)
	fc, ok := findArg(args, "-filter_complex")
	if !ok {
		t.Fatalf("no filter_complex in %v", args)
	}
	if !strings.Contains(fc, "crop=608:1080:656:0") {
		t.Fatalf("static crop missing: %s", fc)
	}
	if strings.Contains(fc, "if(lt(t") {
		t.Fatalf("static crop produced animated expression: %s", fc)
	}
	if !strings.Contains(fc, "scale=1080:1920") || !strings.Contains(fc, "fps=30") {
		t.Fatalf("normalization missing: %s", fc)
	}
	if args[len(args)-1] != "out.mp4" {
		t.Fatalf("output not last arg: %v", args)
	}
}

func TestBuildClipArgsAnimatedCrop(t *testing.T) {
	e := New("", "")
	p := ClipParams{
		Crop: []CropKeyframe{
			{Time: 0, X: 0, Y: 0, Width: 608, Height: 1080},
			{Time: 10, X: 600, Y: 0, Width: 608, Height: 1080},
		},
		Segments:  []SpeedSegment{{Start: 0, End: 10, Speed: 1}},
		TargetFPS: 30,
		OutWidth:  1080,
		OutHeight: 1920,
	}
	args := e.BuildClipArgs("in.mp4", "out.mp4", p)
	fc, _ := findArg(args, "-filter_complex")
	if !strings.Contains(fc, "if(lt(t,") {
		t.Fatalf("animated crop should build piecewise expression: %s", fc)
	}
}

func TestBuildClipArgsSpeedAndTrim(t *testing.T) {
	e := New("", "")
	p := ClipParams{
		Segments: []SpeedSegment{
			{Start: 0, End: 10, Speed: 1},
			{Start: 10, End: 20, Speed: 2},
			{Start: 20, End: 30, Speed: 1},
		},
		Trim:         &Range{Start: 5, End: 25},
		TargetFPS:    30,
		OutWidth:     1080,
		OutHeight:    1920,
		IncludeAudio: true,
	}
	args := e.BuildClipArgs("in.mp4", "out.mp4", p)
	fc, _ := findArg(args, "-filter_complex")

	// 可见段应裁剪到 [5,10] [10,20] [20,25]
	for _, want := range []string{"trim=start=5:end=10", "trim=start=10:end=20", "trim=start=20:end=25"} {
		if !strings.Contains(fc, want) {
			t.Fatalf("missing %q in %s", want, fc)
		}
	}
	if !strings.Contains(fc, "setpts=(PTS-STARTPTS)/2") {
		t.Fatalf("speed segment not applied: %s", fc)
	}
	if !strings.Contains(fc, "atempo=2") {
		t.Fatalf("audio tempo not applied: %s", fc)
	}
	if !strings.Contains(fc, "concat=n=3") {
		t.Fatalf("segment concat missing: %s", fc)
	}
}

func TestAtempoChainCascades(t *testing.T) {
	if got := atempoChain(4); got != "atempo=2.0,atempo=2" {
		t.Fatalf("atempoChain(4) = %s", got)
	}
	if got := atempoChain(0.25); got != "atempo=0.5,atempo=0.5" {
		t.Fatalf("atempoChain(0.25) = %s", got)
	}
	if got := atempoChain(1.5); got != "atempo=1.5" {
		t.Fatalf("atempoChain(1.5) = %s", got)
	}
}

func TestBuildConcatArgsHardCut(t *testing.T) {
	e := New("", "")
	args := e.BuildConcatArgs([]string{"a.mp4", "b.mp4", "c.mp4"}, "out.mp4",
		[]float64{10, 15, 20}, Transition{Type: TransitionCut}, 30, true)
	fc, _ := findArg(args, "-filter_complex")
	if !strings.Contains(fc, "concat=n=3:v=1:a=1") {
		t.Fatalf("concat filter missing: %s", fc)
	}
}

func TestBuildConcatArgsFadeOffsets(t *testing.T) {
	e := New("", "")
	args := e.BuildConcatArgs([]string{"a.mp4", "b.mp4", "c.mp4"}, "out.mp4",
		[]float64{10, 15, 20}, Transition{Type: TransitionFade, Duration: 0.5}, 30, false)
	fc, _ := findArg(args, "-filter_complex")
	// 第一级 offset = 10-0.5 = 9.5，第二级 = 9.5+15-0.5 = 24
	if !strings.Contains(fc, "offset=9.5") || !strings.Contains(fc, "offset=24") {
		t.Fatalf("xfade offsets wrong: %s", fc)
	}
	if !strings.Contains(fc, "[vout]") {
		t.Fatalf("final label missing: %s", fc)
	}
}

func TestBuildOverlayArgs(t *testing.T) {
	e := New("", "")
	args := e.BuildOverlayArgs("in.mp4", "out.mp4", OverlayParams{
		Effect: EffectDarkOverlay,
		Windows: []OverlayWindow{
			{Start: 2, End: 6, CenterX: 500, CenterY: 300, RadiusX: 80, RadiusY: 60},
		},
	})
	vf, ok := findArg(args, "-vf")
	if !ok {
		t.Fatalf("no -vf in %v", args)
	}
	if !strings.Contains(vf, "between(t,2,6)") {
		t.Fatalf("enable window missing: %s", vf)
	}
	if !strings.Contains(vf, "x0=500") {
		t.Fatalf("ellipse center missing: %s", vf)
	}
}

func TestBuildOverlayArgsBrightnessConstrainedToEllipse(t *testing.T) {
	e := New("", "")
	args := e.BuildOverlayArgs("in.mp4", "out.mp4", OverlayParams{
		Effect: EffectBrightnessBoost,
		Windows: []OverlayWindow{
			{Start: 2, End: 6, CenterX: 500, CenterY: 300, RadiusX: 80, RadiusY: 60},
		},
	})
	vf, ok := findArg(args, "-vf")
	if !ok {
		t.Fatalf("no -vf in %v", args)
	}
	if !strings.Contains(vf, "between(t,2,6)") {
		t.Fatalf("enable window missing: %s", vf)
	}
	// 提亮必须被椭圆中心与半径约束，而不是整帧生效
	for _, want := range []string{"(X-500)/80", "(Y-300)/60"} {
		if !strings.Contains(vf, want) {
			t.Fatalf("ellipse term %q missing: %s", want, vf)
		}
	}
}

func TestParseProgressTime(t *testing.T) {
	sec, ok := parseProgressTime("frame= 200 fps= 30 time=00:01:30.50 bitrate=...")
	if !ok || sec != 90.5 {
		t.Fatalf("parse = %v, %v", sec, ok)
	}
	if _, ok := parseProgressTime("no progress here"); ok {
		t.Fatal("false positive")
	}
}

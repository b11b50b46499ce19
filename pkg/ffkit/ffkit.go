package ffkit

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os/exec"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/ixugo/goddd/pkg/queue"
)

// Encoder 外部编码器子进程封装
type Encoder struct {
	Bin      string
	ProbeBin string
}

func New(bin, probeBin string) Encoder {
	if bin == "" {
		bin = "ffmpeg"
	}
	if probeBin == "" {
		probeBin = "ffprobe"
	}
	return Encoder{Bin: bin, ProbeBin: probeBin}
}

// MediaInfo 探测到的源视频元数据
type MediaInfo struct {
	Duration  float64
	Width     int
	Height    int
	Framerate float64
}

// timeRe 匹配编码器 stderr 进度行中的已处理时长
var timeRe = regexp.MustCompile(`time=(\d+):(\d+):(\d+(?:\.\d+)?)`)

// Run 启动编码子进程并阻塞至结束
// stderr 按行读入环形日志用于失败诊断；totalDur > 0 时解析进度行回调百分比；
// ctx 取消后子进程被终止
func (e Encoder) Run(ctx context.Context, args []string, totalDur float64, onProgress func(percent float64)) error {
	cmd := exec.CommandContext(ctx, e.Bin, args...)
	cmd.WaitDelay = 5 * time.Second

	stderr, err := cmd.StderrPipe()
	if err != nil {
		return fmt.Errorf("failed to get stderr pipe: %w", err)
	}
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("failed to start encoder: %w", err)
	}

	log := queue.NewCirQueue[string](60)
	scan := bufio.NewScanner(stderr)
	scan.Split(scanProgressLines)
	for scan.Scan() {
		line := scan.Text()
		if line == "" {
			continue
		}
		log.Push(line)
		if totalDur <= 0 || onProgress == nil {
			continue
		}
		if sec, ok := parseProgressTime(line); ok {
			percent := sec / totalDur * 100
			if percent > 100 {
				percent = 100
			}
			onProgress(percent)
		}
	}

	if err := cmd.Wait(); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return fmt.Errorf("encoder exited: %w: %s", err, tail(log.Range(), 12))
	}
	return nil
}

// scanProgressLines 按 \r 或 \n 切分，编码器进度行以回车覆盖输出
func scanProgressLines(data []byte, atEOF bool) (int, []byte, error) {
	if atEOF && len(data) == 0 {
		return 0, nil, nil
	}
	if i := bytes.IndexAny(data, "\r\n"); i >= 0 {
		return i + 1, data[:i], nil
	}
	if atEOF {
		return len(data), data, nil
	}
	return 0, nil, nil
}

func parseProgressTime(line string) (float64, bool) {
	m := timeRe.FindStringSubmatch(line)
	if m == nil {
		return 0, false
	}
	h, _ := strconv.Atoi(m[1])
	min, _ := strconv.Atoi(m[2])
	sec, _ := strconv.ParseFloat(m[3], 64)
	return float64(h)*3600 + float64(min)*60 + sec, true
}

func tail(lines []string, n int) string {
	if len(lines) > n {
		lines = lines[len(lines)-n:]
	}
	return strings.Join(lines, "; ")
}

type probeOutput struct {
	Format struct {
		Duration string `json:"duration"`
	} `json:"format"`
	Streams []struct {
		CodecType  string `json:"codec_type"`
		Width      int    `json:"width"`
		Height     int    `json:"height"`
		RFrameRate string `json:"r_frame_rate"`
	} `json:"streams"`
}

// Probe 读取源视频元数据
func (e Encoder) Probe(ctx context.Context, inputPath string) (*MediaInfo, error) {
	args := []string{
		"-v", "quiet",
		"-print_format", "json",
		"-show_format",
		"-show_streams",
		inputPath,
	}
	out, err := exec.CommandContext(ctx, e.ProbeBin, args...).Output()
	if err != nil {
		return nil, fmt.Errorf("probe failed: %w", err)
	}
	var po probeOutput
	if err := json.Unmarshal(out, &po); err != nil {
		return nil, fmt.Errorf("probe parse: %w", err)
	}

	info := MediaInfo{}
	info.Duration, _ = strconv.ParseFloat(po.Format.Duration, 64)
	for _, s := range po.Streams {
		if s.CodecType != "video" {
			continue
		}
		info.Width = s.Width
		info.Height = s.Height
		info.Framerate = parseFrameRate(s.RFrameRate)
		break
	}
	if info.Duration <= 0 {
		return nil, fmt.Errorf("probe: no duration in %s", inputPath)
	}
	return &info, nil
}

// parseFrameRate 解析 "30000/1001" 形式的帧率
func parseFrameRate(s string) float64 {
	parts := strings.SplitN(s, "/", 2)
	if len(parts) == 2 {
		num, err1 := strconv.ParseFloat(parts[0], 64)
		den, err2 := strconv.ParseFloat(parts[1], 64)
		if err1 == nil && err2 == nil && den != 0 {
			return num / den
		}
	}
	v, _ := strconv.ParseFloat(s, 64)
	return v
}

package conf

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/pelletier/go-toml/v2"
)

// Bootstrap 服务启动配置
type Bootstrap struct {
	BuildVersion string `toml:"-"`
	Debug        bool   `toml:"debug"`

	Server  Server  `toml:"server"`
	Data    Data    `toml:"data"`
	Render  Render  `toml:"render"`
	Storage Storage `toml:"storage"`
}

type Server struct {
	HTTP HTTP `toml:"http"`
}

type HTTP struct {
	Port      int    `toml:"port"`
	JwtSecret string `toml:"jwt_secret"`
	PProf     PProf  `toml:"pprof"`
}

type PProf struct {
	Enabled   bool     `toml:"enabled"`
	AccessIps []string `toml:"access_ips"`
}

type Data struct {
	Database Database `toml:"database"`
}

type Database struct {
	// Dsn 以 postgres/mysql 开头走对应驱动，其余按 sqlite 文件路径处理
	Dsn             string   `toml:"dsn"`
	MaxIdleConns    int      `toml:"max_idle_conns"`
	MaxOpenConns    int      `toml:"max_open_conns"`
	ConnMaxLifetime Duration `toml:"conn_max_lifetime"`
	SlowThreshold   Duration `toml:"slow_threshold"`
}

// Render 渲染编排配置
type Render struct {
	// EncoderBin 外部编码器可执行文件，默认 ffmpeg
	EncoderBin string `toml:"encoder_bin"`
	ProbeBin   string `toml:"probe_bin"`
	// Workers 并发编码任务上限，对应编码器子进程槽位
	Workers   int    `toml:"workers"`
	OutputDir string `toml:"output_dir"`
	TempDir   string `toml:"temp_dir"`
	// TargetFPS 多片段拼接前统一归一化的帧率
	TargetFPS int `toml:"target_fps"`
	// SaveQuietWindow 编辑状态写合并的静默窗口
	SaveQuietWindow Duration `toml:"save_quiet_window"`
}

// Storage 内容寻址资产存储配置
type Storage struct {
	// Root 资产落盘根目录，文件按哈希前缀两级散列
	Root string `toml:"root"`
}

// Duration 支持 toml 字符串形式的时长，如 "30s"
type Duration time.Duration

func (d Duration) Duration() time.Duration { return time.Duration(d) }

func (d *Duration) UnmarshalText(text []byte) error {
	v, err := time.ParseDuration(string(text))
	if err != nil {
		return err
	}
	*d = Duration(v)
	return nil
}

func (d Duration) MarshalText() ([]byte, error) {
	return []byte(time.Duration(d).String()), nil
}

// SetupConfig 读取配置文件，文件不存在时写入默认配置
func SetupConfig(path string) (*Bootstrap, error) {
	bc := defaultBootstrap()
	data, err := os.ReadFile(path)
	if err != nil {
		if !os.IsNotExist(err) {
			return nil, fmt.Errorf("read config: %w", err)
		}
		if err := writeDefault(path, bc); err != nil {
			return nil, err
		}
		return bc, nil
	}
	if err := toml.Unmarshal(data, bc); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	bc.fillDefaults()
	return bc, nil
}

func defaultBootstrap() *Bootstrap {
	bc := Bootstrap{
		Server: Server{HTTP: HTTP{Port: 8080}},
		Data: Data{Database: Database{
			Dsn:             "reframe.db",
			MaxIdleConns:    10,
			MaxOpenConns:    100,
			ConnMaxLifetime: Duration(6 * time.Hour),
			SlowThreshold:   Duration(200 * time.Millisecond),
		}},
	}
	bc.fillDefaults()
	return &bc
}

func (bc *Bootstrap) fillDefaults() {
	if bc.Render.EncoderBin == "" {
		bc.Render.EncoderBin = "ffmpeg"
	}
	if bc.Render.ProbeBin == "" {
		bc.Render.ProbeBin = "ffprobe"
	}
	if bc.Render.Workers <= 0 {
		bc.Render.Workers = 2
	}
	if bc.Render.OutputDir == "" {
		bc.Render.OutputDir = "renders"
	}
	if bc.Render.TempDir == "" {
		bc.Render.TempDir = os.TempDir()
	}
	if bc.Render.TargetFPS <= 0 {
		bc.Render.TargetFPS = 30
	}
	if bc.Render.SaveQuietWindow <= 0 {
		bc.Render.SaveQuietWindow = Duration(800 * time.Millisecond)
	}
	if bc.Storage.Root == "" {
		bc.Storage.Root = "assets"
	}
}

func writeDefault(path string, bc *Bootstrap) error {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("mkdir config dir: %w", err)
		}
	}
	data, err := toml.Marshal(bc)
	if err != nil {
		return fmt.Errorf("marshal default config: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write default config: %w", err)
	}
	return nil
}

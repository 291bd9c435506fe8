package config

import (
	"flag"
	"os"
	"time"

	"github.com/myafeier/qrcam/camera"
	"github.com/myafeier/qrcam/scanner"
	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

// Config 程序配置，来自 yaml 文件，命令行参数可以覆盖部分字段
type Config struct {
	Listen     string          `yaml:"listen"`
	StaticDir  string          `yaml:"static_dir"`
	ReplayDir  string          `yaml:"replay_dir"` // 不为空时用目录里的图片代替摄像头
	ReplayLoop bool            `yaml:"replay_loop"`
	Camera     Camera          `yaml:"camera"`
	Scan       scanner.Options `yaml:"scan"`
}

type Camera struct {
	Pattern     string        `yaml:"pattern"`
	Width       int           `yaml:"width"`
	Height      int           `yaml:"height"`
	ReadTimeout time.Duration `yaml:"read_timeout"`
}

func Default() *Config {
	opts := scanner.DefaultOptions()
	return &Config{
		Listen: "127.0.0.1:8080",
		Camera: Camera{
			Pattern:     "/dev/video*",
			Width:       opts.Resolution.Width,
			Height:      opts.Resolution.Height,
			ReadTimeout: 5 * time.Second,
		},
		Scan: opts,
	}
}

// Load 读取配置文件，path 为空或文件不存在时返回默认配置
func Load(path string) (*Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return cfg, nil
	}
	if err != nil {
		return nil, errors.WithStack(err)
	}
	if err = yaml.Unmarshal(data, cfg); err != nil {
		return nil, errors.Wrapf(err, "parse %s", path)
	}
	if err = cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) Validate() error {
	if c.Camera.Width <= 0 || c.Camera.Height <= 0 {
		return errors.Errorf("invalid camera resolution %dx%d", c.Camera.Width, c.Camera.Height)
	}
	if c.Scan.JPEGQuality < 1 || c.Scan.JPEGQuality > 100 {
		return errors.Errorf("jpeg_quality must be within 1..100, got %d", c.Scan.JPEGQuality)
	}
	if c.Scan.InterFrameDelay < 0 {
		return errors.New("inter_frame_delay must not be negative")
	}
	return nil
}

// Options 组合出会话参数
func (c *Config) Options() scanner.Options {
	o := c.Scan
	o.Resolution = camera.Size{Width: c.Camera.Width, Height: c.Camera.Height}
	return o
}

// Backend 根据配置选择回放目录或 V4L2 摄像头
func (c *Config) Backend() (camera.Backend, error) {
	if c.ReplayDir != "" {
		r, err := camera.LoadReplay(c.ReplayDir)
		if err != nil {
			return nil, err
		}
		r.Loop = c.ReplayLoop
		r.Interval = 33 * time.Millisecond
		return r, nil
	}
	v, err := camera.NewV4L2()
	if err != nil {
		return nil, err
	}
	if c.Camera.Pattern != "" {
		v.Pattern = c.Camera.Pattern
	}
	v.ReadTimeout = c.Camera.ReadTimeout
	return v, nil
}

// FromFlags 解析命令行：-config 指定文件，其余参数覆盖文件里的值
func FromFlags(fs *flag.FlagSet, args []string) (*Config, error) {
	path := fs.String("config", "qrcam.yaml", "config file (yaml)")
	listen := fs.String("listen", "", "http listen address")
	replay := fs.String("replay", "", "directory of images to use instead of a camera")
	gray := fs.Bool("gray", false, "grayscale-normalize frames before decoding")
	if err := fs.Parse(args); err != nil {
		return nil, err
	}

	cfg, err := Load(*path)
	if err != nil {
		return nil, err
	}
	if *listen != "" {
		cfg.Listen = *listen
	}
	if *replay != "" {
		cfg.ReplayDir = *replay
	}
	if *gray {
		cfg.Scan.GrayscaleNormalize = true
	}
	return cfg, nil
}

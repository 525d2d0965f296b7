package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/iWorld-y/gnc_reports/internal/model"
)

// Config 项目配置结构体
type Config struct {
	Portal   PortalConfig       `yaml:"portal"`
	Items    []model.ReportItem `yaml:"items"`
	Download DownloadConfig     `yaml:"download"`
	Timing   TimingConfig       `yaml:"timing"`
	Browser  BrowserConfig      `yaml:"browser"`
	Session  SessionConfig      `yaml:"session"`
	Throttle ThrottleConfig     `yaml:"throttle"`
	Log      LogConfig          `yaml:"log"`
	DB       DBConfig           `yaml:"db"`
	Archive  ArchiveConfig      `yaml:"archive"`
	Metrics  MetricsConfig      `yaml:"metrics"`
}

// PortalConfig 目标页面及控件
type PortalConfig struct {
	StartURL          string         `yaml:"start_url"`
	Filters           []FilterConfig `yaml:"filters"` // 按顺序设置，后一个的选项依赖前一个
	ItemControlMarker string         `yaml:"item_control_marker"`
	ExportButtonID    string         `yaml:"export_button_id"`
}

// FilterConfig 页面级筛选条件
type FilterConfig struct {
	Name      string `yaml:"name"`
	ControlID string `yaml:"control_id"`
	Value     string `yaml:"value"`
}

// DownloadConfig 下载目录与轮询参数
type DownloadConfig struct {
	Dir               string        `yaml:"dir"`
	FinalExt          string        `yaml:"final_ext"`
	InProgressMarkers []string      `yaml:"in_progress_markers"`
	PollTimeout       time.Duration `yaml:"poll_timeout"`
	PollInterval      time.Duration `yaml:"poll_interval"`
	ProgressEvery     time.Duration `yaml:"progress_every"`
	Cooldown          time.Duration `yaml:"cooldown"`
}

// TimingConfig 页面操作后的等待时间
type TimingConfig struct {
	ElementTimeout time.Duration `yaml:"element_timeout"`
	FilterSettle   time.Duration `yaml:"filter_settle"`
	ScrollSettle   time.Duration `yaml:"scroll_settle"`
	SelectSettle   time.Duration `yaml:"select_settle"`
}

// BrowserConfig 浏览器相关配置
type BrowserConfig struct {
	Mode         string `yaml:"mode"` // local 或 remote
	RemoteURL    string `yaml:"remote_url"`
	ExecPath     string `yaml:"exec_path"`
	Headless     bool   `yaml:"headless"`
	UserAgent    string `yaml:"user_agent"`
	WindowWidth  int    `yaml:"window_width"`
	WindowHeight int    `yaml:"window_height"`
}

// SessionConfig 会话建立的重试次数
type SessionConfig struct {
	MaxAttempts int `yaml:"max_attempts"`
}

// ThrottleConfig 导出按钮的点击频率限制，0 表示不限制
type ThrottleConfig struct {
	TriggersPerMinute int `yaml:"triggers_per_minute"`
}

// LogConfig 日志相关配置
type LogConfig struct {
	Level string `yaml:"level"`
	File  string `yaml:"file"`
}

// DBConfig 数据库相关配置，Host 为空时不记录运行结果
type DBConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	Name     string `yaml:"name"`
	SSLMode  string `yaml:"sslmode"`
}

// ArchiveConfig S3 兼容的对象存储，Endpoint 为空时不归档
type ArchiveConfig struct {
	Endpoint  string `yaml:"endpoint"`
	AccessKey string `yaml:"access_key"`
	SecretKey string `yaml:"secret_key"`
	Bucket    string `yaml:"bucket"`
	Prefix    string `yaml:"prefix"`
	UseSSL    bool   `yaml:"use_ssl"`
}

// MetricsConfig Prometheus textfile 输出路径，为空时不输出
type MetricsConfig struct {
	Textfile string `yaml:"textfile"`
}

const (
	BrowserLocal  = "local"
	BrowserRemote = "remote"
)

// DefaultItems 六个 GNC 统计报表，顺序即处理顺序
func DefaultItems() []model.ReportItem {
	return []model.ReportItem{
		{ID: "1", Name: "Conversiones de vehículos"},
		{ID: "2", Name: "Desmontajes de equipos en vehículos"},
		{ID: "3", Name: "Revisiones periódicas de vehículos"},
		{ID: "4", Name: "Modificaciones de equipos en vehículos"},
		{ID: "5", Name: "Revisiones de Cilindros"},
		{ID: "6", Name: "Cilindro de GNC revisiones CRPC"},
	}
}

// Default 默认配置
func Default() *Config {
	return &Config{
		Portal: PortalConfig{
			StartURL: "https://www.enargas.gov.ar/secciones/gas-natural-comprimido/estadisticas.php",
			Filters: []FilterConfig{
				{Name: "statistic-type", ControlID: "tipo-consulta-gnc", Value: "5;2"},
				{Name: "period", ControlID: "periodo", Value: "2026"},
			},
			ItemControlMarker: "Conversiones",
			ExportButtonID:    "btn-ver-xls",
		},
		Items: DefaultItems(),
		Download: DownloadConfig{
			Dir:               "descargas_gnc",
			FinalExt:          ".xls",
			InProgressMarkers: []string{".crdownload", ".tmp"},
			PollTimeout:       60 * time.Second,
			PollInterval:      time.Second,
			ProgressEvery:     10 * time.Second,
			Cooldown:          10 * time.Second,
		},
		Timing: TimingConfig{
			ElementTimeout: 20 * time.Second,
			FilterSettle:   3 * time.Second,
			ScrollSettle:   time.Second,
			SelectSettle:   2 * time.Second,
		},
		Browser: BrowserConfig{
			Mode:         BrowserLocal,
			Headless:     true,
			WindowWidth:  1920,
			WindowHeight: 1080,
		},
		Session: SessionConfig{MaxAttempts: 1},
		Log:     LogConfig{Level: "info"},
		DB:      DBConfig{Port: 5432, SSLMode: "disable"},
		Archive: ArchiveConfig{Bucket: "gnc-reports"},
	}
}

// LoadConfig 从指定路径加载配置，未设置的字段保留默认值
//
// 文件中的 ${VAR} 会用环境变量替换；同目录及工作目录下的 .env 会先被加载，
// 但不会覆盖已有的环境变量。
func LoadConfig(path string) (*Config, error) {
	loadEnvFiles(filepath.Dir(path))

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	cfg := Default()
	if err := yaml.Unmarshal([]byte(os.ExpandEnv(string(data))), cfg); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}

	return cfg, nil
}

func loadEnvFiles(dirs ...string) {
	dirs = append(dirs, ".")
	for _, dir := range dirs {
		// godotenv.Load 不覆盖已有环境变量
		_ = godotenv.Load(filepath.Join(dir, ".env"))
	}
}

// Validate 检查配置是否可用
func (c *Config) Validate() error {
	var errs []error

	if c.Portal.StartURL == "" {
		errs = append(errs, errors.New("portal.start_url is required"))
	}
	for i, f := range c.Portal.Filters {
		if f.ControlID == "" || f.Value == "" {
			errs = append(errs, fmt.Errorf("portal.filters[%d]: control_id and value are required", i))
		}
	}
	if c.Portal.ItemControlMarker == "" {
		errs = append(errs, errors.New("portal.item_control_marker is required"))
	}
	if c.Portal.ExportButtonID == "" {
		errs = append(errs, errors.New("portal.export_button_id is required"))
	}

	if len(c.Items) == 0 {
		errs = append(errs, errors.New("items: at least one report item is required"))
	}
	seen := make(map[string]bool, len(c.Items))
	for _, item := range c.Items {
		if item.ID == "" {
			errs = append(errs, fmt.Errorf("items: empty id for %q", item.Name))
			continue
		}
		if seen[item.ID] {
			errs = append(errs, fmt.Errorf("items: duplicate id %q", item.ID))
		}
		seen[item.ID] = true
	}

	if c.Download.Dir == "" {
		errs = append(errs, errors.New("download.dir is required"))
	}
	if c.Download.FinalExt == "" {
		errs = append(errs, errors.New("download.final_ext is required"))
	}
	if c.Download.PollTimeout <= 0 {
		errs = append(errs, errors.New("download.poll_timeout must be positive"))
	}
	if c.Download.PollInterval <= 0 {
		errs = append(errs, errors.New("download.poll_interval must be positive"))
	}
	if c.Download.Cooldown < 0 {
		errs = append(errs, errors.New("download.cooldown must not be negative"))
	}
	if c.Timing.ElementTimeout <= 0 {
		errs = append(errs, errors.New("timing.element_timeout must be positive"))
	}

	switch c.Browser.Mode {
	case BrowserLocal:
	case BrowserRemote:
		if c.Browser.RemoteURL == "" {
			errs = append(errs, errors.New("browser.remote_url is required in remote mode"))
		}
	default:
		errs = append(errs, fmt.Errorf("browser.mode: unknown mode %q", c.Browser.Mode))
	}

	if c.Session.MaxAttempts < 1 {
		errs = append(errs, errors.New("session.max_attempts must be at least 1"))
	}
	if c.Throttle.TriggersPerMinute < 0 {
		errs = append(errs, errors.New("throttle.triggers_per_minute must not be negative"))
	}

	return errors.Join(errs...)
}

// DownloadDir 下载目录的绝对路径，相对路径以工作目录为基准
func (c *Config) DownloadDir() (string, error) {
	return filepath.Abs(c.Download.Dir)
}

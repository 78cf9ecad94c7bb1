package config

import (
	"fmt"
	"net"
	"strconv"
	"strings"
	"time"

	"github.com/schatten/schatten/internal/backend"
)

// Duration 提供更灵活的反序列化能力，同时兼容纯秒整数与 Go Duration 字符串。
type Duration time.Duration

// UnmarshalText 使 Viper 可以识别诸如 "30s"、"5m" 或纯数字秒值等配置写法。
func (d *Duration) UnmarshalText(text []byte) error {
	raw := strings.TrimSpace(string(text))
	if raw == "" {
		*d = Duration(0)
		return nil
	}

	if parsed, err := time.ParseDuration(raw); err == nil {
		*d = Duration(parsed)
		return nil
	}

	if seconds, err := strconv.ParseInt(raw, 10, 64); err == nil {
		*d = Duration(time.Duration(seconds) * time.Second)
		return nil
	}

	return fmt.Errorf("invalid duration value: %s", raw)
}

// DurationValue 返回真实的 time.Duration，便于调用方计算。
func (d Duration) DurationValue() time.Duration {
	return time.Duration(d)
}

// GlobalConfig 描述监听、日志、上游连接与诊断等进程级参数。
type GlobalConfig struct {
	ListenHost          string   `mapstructure:"ListenHost"`
	ListenPort          int      `mapstructure:"ListenPort"`
	LogLevel            string   `mapstructure:"LogLevel"`
	LogFilePath         string   `mapstructure:"LogFilePath"`
	LogMaxSize          int      `mapstructure:"LogMaxSize"`
	LogMaxBackups       int      `mapstructure:"LogMaxBackups"`
	LogCompress         bool     `mapstructure:"LogCompress"`
	UpstreamTimeout     Duration `mapstructure:"UpstreamTimeout"`
	MaxIdleConnsPerHost int      `mapstructure:"MaxIdleConnsPerHost"`
	BodyLimit           int      `mapstructure:"BodyLimit"`
	Report              string   `mapstructure:"Report"`
	EnableDiagnostics   bool     `mapstructure:"EnableDiagnostics"`
	MetricsNamespace    string   `mapstructure:"MetricsNamespace"`
	IgnoreHeaders       []string `mapstructure:"IgnoreHeaders"`
}

// BackendConfig 描述 production 或 sandbox 目标。Methods/Headers 只对 sandbox 生效，
// 用于生成内置的 SelectionHook 与 HeaderMungeHook。
type BackendConfig struct {
	Name    string            `mapstructure:"Name"`
	Host    string            `mapstructure:"Host"`
	Port    int               `mapstructure:"Port"`
	Methods []string          `mapstructure:"Methods"`
	Headers map[string]string `mapstructure:"Headers"`
}

// Config 是 TOML 文件映射的整体结构。
type Config struct {
	Global     GlobalConfig    `mapstructure:",squash"`
	Production BackendConfig   `mapstructure:"Production"`
	Sandboxes  []BackendConfig `mapstructure:"Sandbox"`
}

// Backend 转换为不可变的 backend.Backend。
func (b BackendConfig) Backend() backend.Backend {
	return backend.New(b.Name, b.Host, b.Port)
}

// ListenAddress 返回 host:port 形式的监听地址。
func (c *Config) ListenAddress() string {
	return net.JoinHostPort(c.Global.ListenHost, strconv.Itoa(c.Global.ListenPort))
}

// SandboxNames 返回 sandbox 名称列表，供启动日志使用。
func (c *Config) SandboxNames() []string {
	if len(c.Sandboxes) == 0 {
		return nil
	}
	names := make([]string, len(c.Sandboxes))
	for i, sb := range c.Sandboxes {
		names[i] = sb.Name
	}
	return names
}

// ReportEnabled 表示是否需要挂载具名 completion hook。
func (c *Config) ReportEnabled() bool {
	report := strings.TrimSpace(c.Global.Report)
	return report != "" && report != ReportNone
}

package config

import (
	"fmt"
	"net/http"
	"reflect"
	"strconv"
	"strings"
	"time"

	"github.com/mitchellh/mapstructure"
	"github.com/spf13/viper"
)

// ReportNone 显式关闭具名 completion hook。
const ReportNone = "none"

// ReportDiffLog 是内置的差异对比 completion hook 名称。
const ReportDiffLog = "diff-log"

// Load 读取并解析 TOML 配置文件，同时注入默认值与校验逻辑。
func Load(path string) (*Config, error) {
	if path == "" {
		path = "config.toml"
	}

	v := viper.New()
	v.SetConfigFile(path)
	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("读取配置失败: %w", err)
	}

	if err := rejectProductionList(v); err != nil {
		return nil, err
	}

	var cfg Config
	hook := mapstructure.ComposeDecodeHookFunc(
		durationDecodeHook(),
		mapstructure.StringToSliceHookFunc(","),
	)
	if err := v.Unmarshal(&cfg, viper.DecodeHook(hook)); err != nil {
		return nil, fmt.Errorf("解析配置失败: %w", err)
	}

	applyGlobalDefaults(&cfg.Global)
	applyBackendDefaults(&cfg.Production)
	for i := range cfg.Sandboxes {
		applyBackendDefaults(&cfg.Sandboxes[i])
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("ListenHost", "0.0.0.0")
	v.SetDefault("ListenPort", 1234)
	v.SetDefault("LogLevel", "info")
	v.SetDefault("LogFilePath", "")
	v.SetDefault("LogMaxSize", 100)
	v.SetDefault("LogMaxBackups", 10)
	v.SetDefault("LogCompress", true)
	v.SetDefault("UpstreamTimeout", "30s")
	v.SetDefault("MaxIdleConnsPerHost", 64)
	v.SetDefault("BodyLimit", 4*1024*1024)
	v.SetDefault("Report", ReportDiffLog)
	v.SetDefault("EnableDiagnostics", false)
	v.SetDefault("MetricsNamespace", "schatten")
	v.SetDefault("IgnoreHeaders", []string{"Date"})
}

func applyGlobalDefaults(g *GlobalConfig) {
	g.ListenHost = strings.TrimSpace(g.ListenHost)
	if g.ListenPort == 0 {
		g.ListenPort = 1234
	}
	if g.UpstreamTimeout.DurationValue() == 0 {
		g.UpstreamTimeout = Duration(30 * time.Second)
	}
	if g.MaxIdleConnsPerHost == 0 {
		g.MaxIdleConnsPerHost = 64
	}
	if g.BodyLimit == 0 {
		g.BodyLimit = 4 * 1024 * 1024
	}
	g.Report = strings.ToLower(strings.TrimSpace(g.Report))
	for i, h := range g.IgnoreHeaders {
		g.IgnoreHeaders[i] = http.CanonicalHeaderKey(strings.TrimSpace(h))
	}
}

func applyBackendDefaults(b *BackendConfig) {
	b.Name = strings.TrimSpace(b.Name)
	b.Host = strings.TrimSpace(b.Host)
	for i, m := range b.Methods {
		b.Methods[i] = strings.ToUpper(strings.TrimSpace(m))
	}
}

func durationDecodeHook() mapstructure.DecodeHookFunc {
	targetType := reflect.TypeOf(Duration(0))

	return func(from reflect.Type, to reflect.Type, data interface{}) (interface{}, error) {
		if to != targetType {
			return data, nil
		}

		switch v := data.(type) {
		case string:
			if v == "" {
				return Duration(0), nil
			}
			if parsed, err := time.ParseDuration(v); err == nil {
				return Duration(parsed), nil
			}
			if seconds, err := strconv.ParseFloat(v, 64); err == nil {
				return Duration(time.Duration(seconds * float64(time.Second))), nil
			}
			return nil, fmt.Errorf("无法解析 Duration 字段: %s", v)
		case int:
			return Duration(time.Duration(v) * time.Second), nil
		case int64:
			return Duration(time.Duration(v) * time.Second), nil
		case float64:
			return Duration(time.Duration(v * float64(time.Second))), nil
		case time.Duration:
			return Duration(v), nil
		case Duration:
			return v, nil
		default:
			return nil, fmt.Errorf("不支持的 Duration 类型: %T", v)
		}
	}
}

// rejectProductionList 拒绝 [[Production]] 数组写法：production 只能有一个。
func rejectProductionList(v *viper.Viper) error {
	raw := v.Get("Production")
	if list, ok := raw.([]interface{}); ok && len(list) > 0 {
		return newFieldError("Production", "只能配置一个 production，请改用 [Production] 并把其余目标声明为 [[Sandbox]]")
	}
	if list, ok := raw.([]map[string]interface{}); ok && len(list) > 0 {
		return newFieldError("Production", "只能配置一个 production，请改用 [Production] 并把其余目标声明为 [[Sandbox]]")
	}
	return nil
}

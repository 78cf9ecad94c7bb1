package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/sirupsen/logrus"
)

var supportedReports = map[string]struct{}{
	"":            {},
	ReportNone:    {},
	ReportDiffLog: {},
}

const supportedReportList = "none|diff-log"

// Validate 针对语义级别做进一步校验，防止非法配置启动服务。
func (c *Config) Validate() error {
	if c == nil {
		return errors.New("配置为空")
	}

	g := c.Global
	if g.ListenPort <= 0 || g.ListenPort > 65535 {
		return newFieldError("Global.ListenPort", "必须在 1-65535")
	}
	if strings.ContainsAny(g.ListenHost, "/ ") {
		return newFieldError("Global.ListenHost", "不允许包含路径或空格")
	}
	if g.LogLevel != "" {
		if _, err := logrus.ParseLevel(g.LogLevel); err != nil {
			return newFieldError("Global.LogLevel", err.Error())
		}
	}
	if g.UpstreamTimeout.DurationValue() <= 0 {
		return newFieldError("Global.UpstreamTimeout", "必须大于 0")
	}
	if g.MaxIdleConnsPerHost <= 0 {
		return newFieldError("Global.MaxIdleConnsPerHost", "必须大于 0")
	}
	if g.BodyLimit <= 0 {
		return newFieldError("Global.BodyLimit", "必须大于 0")
	}
	if _, ok := supportedReports[g.Report]; !ok {
		return newFieldError("Global.Report", "仅支持 "+supportedReportList)
	}

	if err := validateBackend("Production", c.Production); err != nil {
		return err
	}

	seenNames := map[string]struct{}{c.Production.Name: {}}
	for i := range c.Sandboxes {
		sb := &c.Sandboxes[i]
		if sb.Name == "" {
			return newFieldError("Sandbox[].Name", "不能为空")
		}
		if _, exists := seenNames[sb.Name]; exists {
			return newFieldError(sandboxField(sb.Name, "Name"), "重复（与 production 或其它 sandbox 同名）")
		}
		seenNames[sb.Name] = struct{}{}

		if err := validateBackend(sandboxField(sb.Name, ""), *sb); err != nil {
			return err
		}
		for _, m := range sb.Methods {
			if err := validateMethod(m); err != nil {
				return fmt.Errorf("%s: %w", sandboxField(sb.Name, "Methods"), err)
			}
		}
		for key := range sb.Headers {
			if !isToken(key) {
				return newFieldError(sandboxField(sb.Name, "Headers"), fmt.Sprintf("非法 header 名称: %q", key))
			}
		}
	}

	return nil
}

func validateBackend(prefix string, b BackendConfig) error {
	field := func(name string) string {
		if strings.HasSuffix(prefix, ".") {
			return prefix + name
		}
		return prefix + "." + name
	}
	if b.Name == "" {
		return newFieldError(field("Name"), "不能为空")
	}
	if err := validateHost(b.Host); err != nil {
		return fmt.Errorf("%s: %w", field("Host"), err)
	}
	if b.Port <= 0 || b.Port > 65535 {
		return newFieldError(field("Port"), "必须在 1-65535")
	}
	return nil
}

func validateHost(host string) error {
	if host == "" {
		return errors.New("Host 不能为空")
	}
	if strings.Contains(host, "/") {
		return errors.New("Host 不允许包含路径")
	}
	if strings.Contains(host, " ") {
		return errors.New("Host 不允许包含空格")
	}
	if strings.HasPrefix(host, "http:") || strings.HasPrefix(host, "https:") {
		return errors.New("Host 不应包含协议头")
	}
	return nil
}

func validateMethod(method string) error {
	if method == "*" {
		return nil
	}
	if !isToken(method) {
		return fmt.Errorf("非法方法: %q", method)
	}
	return nil
}

// isToken 按 RFC 7230 token 规则校验方法名与 header 名。
func isToken(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if r > 0x7e || r <= 0x20 || strings.ContainsRune("()<>@,;:\\\"/[]?={}", r) {
			return false
		}
	}
	return true
}

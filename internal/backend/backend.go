// Package backend 描述代理目标（production / sandbox）以及按名称索引的注册表。
// Backend 在启动前创建，之后只读；所有查找和聚合 map 的 key 都使用 Name。
package backend

import (
	"errors"
	"fmt"
	"net"
	"strconv"
	"strings"
)

// ErrInvalidBackend 表示 Backend 缺少名称、主机或端口越界。
var ErrInvalidBackend = errors.New("invalid backend")

// Backend 是一个不可变的代理目标描述。
type Backend struct {
	Name string
	Host string
	Port int
}

// New 构造 Backend，名称与主机会去除首尾空白。
func New(name, host string, port int) Backend {
	return Backend{
		Name: strings.TrimSpace(name),
		Host: strings.TrimSpace(host),
		Port: port,
	}
}

// Validate 校验名称、主机与端口，注册表在接收 Backend 前调用。
func (b Backend) Validate() error {
	if b.Name == "" {
		return fmt.Errorf("%w: name is required", ErrInvalidBackend)
	}
	if b.Host == "" {
		return fmt.Errorf("%w: %s: host is required", ErrInvalidBackend, b.Name)
	}
	if b.Port <= 0 || b.Port > 65535 {
		return fmt.Errorf("%w: %s: port %d out of range", ErrInvalidBackend, b.Name, b.Port)
	}
	return nil
}

// Address 返回 host:port，IPv6 地址会自动加方括号。
func (b Backend) Address() string {
	return net.JoinHostPort(b.Host, strconv.Itoa(b.Port))
}

// URL 拼接 http://host:port + 原始 URI（path + query）。
func (b Backend) URL(uri string) string {
	if uri == "" || uri[0] != '/' {
		uri = "/" + uri
	}
	return "http://" + b.Address() + uri
}

// String 用于日志输出。
func (b Backend) String() string {
	return b.Name + "@" + b.Address()
}

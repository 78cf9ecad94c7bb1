package logging

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/schatten/schatten/internal/config"
)

func TestNewDefaultsToStdout(t *testing.T) {
	logger, closer, err := New(config.GlobalConfig{LogLevel: "info"})
	if err != nil {
		t.Fatalf("配置失败: %v", err)
	}
	defer closer.Close()
	if logger.Out != os.Stdout {
		t.Fatalf("未指定文件时应输出到 stdout")
	}
}

func TestNewRejectsUnknownLevel(t *testing.T) {
	if _, _, err := New(config.GlobalConfig{LogLevel: "loud"}); err == nil {
		t.Fatalf("非法日志级别应报错")
	}
}

func TestNewFallbackOnPermissionDenied(t *testing.T) {
	if os.Geteuid() == 0 {
		t.Skip("root 可以绕过目录权限")
	}
	dir := t.TempDir()
	blocked := filepath.Join(dir, "blocked")
	if err := os.Mkdir(blocked, 0o755); err != nil {
		t.Fatalf("创建目录失败: %v", err)
	}
	if err := os.Chmod(blocked, 0o000); err != nil {
		t.Fatalf("设置目录权限失败: %v", err)
	}
	t.Cleanup(func() { _ = os.Chmod(blocked, 0o755) })

	cfg := config.GlobalConfig{
		LogLevel:    "info",
		LogFilePath: filepath.Join(blocked, "sub", "schatten.log"),
	}
	logger, closer, err := New(cfg)
	if err != nil {
		t.Fatalf("初始化不应失败: %v", err)
	}
	defer closer.Close()
	if logger.Out != os.Stdout {
		t.Fatalf("fallback 时应退回 stdout")
	}
}

func TestNewCreatesRotatingFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "schatten.log")
	logger, closer, err := New(config.GlobalConfig{LogLevel: "debug", LogFilePath: path})
	if err != nil {
		t.Fatalf("配置失败: %v", err)
	}
	logger.Info("test")
	if err := closer.Close(); err != nil {
		t.Fatalf("关闭日志失败: %v", err)
	}
	if _, err := os.Stat(path); err != nil {
		t.Fatalf("预期创建日志文件: %v", err)
	}
}

func TestMergeCopiesFields(t *testing.T) {
	base := RequestFields("req-1", "GET", "/foo")
	merged := Merge(base, DispatchFields("sandbox", "localhost:3001", "sandbox"))
	if merged["request_id"] != "req-1" || merged["backend"] != "sandbox" {
		t.Fatalf("unexpected merged fields: %v", merged)
	}
	if _, ok := base["backend"]; ok {
		t.Fatalf("Merge 不应修改 base")
	}
}

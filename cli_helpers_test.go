package main

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

// cliOutput 是一次 run 调用期间捕获的 stdout/stderr。
type cliOutput struct {
	stdout *bytes.Buffer
	stderr *bytes.Buffer
}

// captureCLIOutput 在测试期间把 stdOut/stdErr 换成内存 buffer，结束后恢复。
func captureCLIOutput(t *testing.T) cliOutput {
	t.Helper()
	out := cliOutput{stdout: &bytes.Buffer{}, stderr: &bytes.Buffer{}}

	prevOut, prevErr := stdOut, stdErr
	stdOut, stdErr = out.stdout, out.stderr
	t.Cleanup(func() {
		stdOut, stdErr = prevOut, prevErr
	})
	return out
}

// configFixture 返回 internal/config/testdata 下的配置；go test 以包目录（仓库根）为工作目录。
func configFixture(t *testing.T, name string) string {
	t.Helper()
	path := filepath.Join("internal", "config", "testdata", name)
	if _, err := os.Stat(path); err != nil {
		t.Fatalf("配置样例不存在: %v", err)
	}
	return path
}

func writeConfigFile(t *testing.T, content string) string {
	t.Helper()
	file := filepath.Join(t.TempDir(), "config.toml")
	if err := os.WriteFile(file, []byte(strings.TrimSpace(content)), 0o600); err != nil {
		t.Fatalf("写入配置失败: %v", err)
	}
	return file
}

package main

import (
	"flag"
	"fmt"
	"io"
	"os"

	"github.com/sirupsen/logrus"

	// 内置 report 在 init 中注册到 hooks。
	_ "github.com/schatten/schatten/internal/compare"
	"github.com/schatten/schatten/internal/config"
	"github.com/schatten/schatten/internal/logging"
	"github.com/schatten/schatten/internal/proxy/hooks"
	"github.com/schatten/schatten/internal/server"
	"github.com/schatten/schatten/internal/version"
	"github.com/schatten/schatten/shadow"
)

// cliOptions 汇总 CLI 标志解析后的结果，便于在测试中注入。
type cliOptions struct {
	configPath  string
	checkOnly   bool
	showVersion bool
}

var (
	stdOut io.Writer = os.Stdout
	stdErr io.Writer = os.Stderr
)

func main() {
	opts, err := parseCLIFlags(os.Args[1:])
	if err != nil {
		fmt.Fprintln(stdErr, err.Error())
		os.Exit(2)
	}
	os.Exit(run(opts))
}

// run 根据解析到的 CLI 选项执行业务流程，并返回退出码，方便测试。
func run(opts cliOptions) int {
	if opts.showVersion {
		printVersion()
		return 0
	}

	cfg, err := config.Load(opts.configPath)
	if err != nil {
		fmt.Fprintf(stdErr, "加载配置失败: %v\n", err)
		return 1
	}

	logger, closer, err := logging.New(cfg.Global)
	if err != nil {
		fmt.Fprintf(stdErr, "初始化日志失败: %v\n", err)
		return 1
	}
	defer closer.Close()

	if opts.checkOnly {
		fields := logging.BaseFields("check_config", opts.configPath)
		fields["production"] = cfg.Production.Backend().String()
		fields["sandboxes"] = cfg.SandboxNames()
		fields["result"] = "ok"
		logger.WithFields(fields).Info("配置校验通过")
		return 0
	}

	// 启动顺序：配置 → logger → ProxyServer（backend + hook）→ fiber 监听。
	srv, err := buildProxyServer(cfg, logger)
	if err != nil {
		fmt.Fprintf(stdErr, "构建代理失败: %v\n", err)
		return 1
	}

	fields := logging.BaseFields("startup", opts.configPath)
	fields["listen"] = cfg.ListenAddress()
	fields["production"] = cfg.Production.Backend().String()
	fields["sandboxes"] = cfg.SandboxNames()
	fields["report"] = cfg.Global.Report
	fields["version"] = version.Full()
	logger.WithFields(fields).Info("配置加载完成")

	if err := srv.Run(); err != nil {
		fmt.Fprintf(stdErr, "HTTP 服务启动失败: %v\n", err)
		return 1
	}
	return 0
}

// buildProxyServer 把配置翻译成 ProxyServer：sandbox 注册、按方法选择、header 打标、具名 completion hook。
func buildProxyServer(cfg *config.Config, logger *logrus.Logger) (*shadow.ProxyServer, error) {
	opts := []shadow.Option{
		shadow.WithLogger(logger),
		shadow.WithClient(server.NewUpstreamClient(cfg)),
		shadow.WithBodyLimit(cfg.Global.BodyLimit),
		shadow.WithDiagnostics(cfg.Global.EnableDiagnostics),
	}
	if cfg.Global.EnableDiagnostics {
		opts = append(opts, shadow.WithMetrics(cfg.Global.MetricsNamespace))
	}

	srv, err := shadow.New(cfg.Global.ListenHost, cfg.Global.ListenPort, cfg.Production.Backend(), opts...)
	if err != nil {
		return nil, err
	}

	selector := hooks.NewMethodSelector()
	tagger := hooks.NewHeaderTagger()
	for _, sb := range cfg.Sandboxes {
		if err := srv.AddBackend(sb.Backend()); err != nil {
			return nil, err
		}
		selector.Allow(sb.Name, sb.Methods)
		tagger.Tag(sb.Name, sb.Headers)
	}
	if len(cfg.Sandboxes) > 0 {
		if err := srv.OnSelectBackends(selector); err != nil {
			return nil, err
		}
	}
	if !tagger.Empty() {
		if err := srv.OnMungeHeaders(tagger); err != nil {
			return nil, err
		}
	}

	if cfg.ReportEnabled() {
		hook, err := resolveReport(cfg, logger, srv)
		if err != nil {
			return nil, err
		}
		if err := srv.OnServerFinished(hook); err != nil {
			return nil, err
		}
	}
	return srv, nil
}

func resolveReport(cfg *config.Config, logger *logrus.Logger, srv *shadow.ProxyServer) (hooks.CompletionHook, error) {
	return hooks.Build(cfg.Global.Report, hooks.ReportOptions{
		Logger:        logger,
		Metrics:       srv.Metrics(),
		IgnoreHeaders: cfg.Global.IgnoreHeaders,
	})
}

// parseCLIFlags 解析 CLI 参数，并结合环境变量计算最终的配置路径。
func parseCLIFlags(args []string) (cliOptions, error) {
	fs := flag.NewFlagSet("schatten", flag.ContinueOnError)
	fs.SetOutput(io.Discard)

	var (
		configFlag string
		checkOnly  bool
		showVer    bool
	)

	fs.StringVar(&configFlag, "config", "", "配置文件路径（默认 ./config.toml，可被 SCHATTEN_CONFIG 覆盖）")
	fs.BoolVar(&checkOnly, "check-config", false, "仅校验配置后退出")
	fs.BoolVar(&showVer, "version", false, "显示版本信息")

	if err := fs.Parse(args); err != nil {
		return cliOptions{}, fmt.Errorf("解析参数失败: %w", err)
	}

	path := os.Getenv("SCHATTEN_CONFIG")
	if configFlag != "" {
		path = configFlag
	}
	if path == "" {
		path = "config.toml"
	}

	return cliOptions{
		configPath:  path,
		checkOnly:   checkOnly,
		showVersion: showVer,
	}, nil
}

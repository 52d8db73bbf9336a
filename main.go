package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/sirupsen/logrus"

	"github.com/any-hub/stalecache/internal/cache"
	"github.com/any-hub/stalecache/internal/config"
	"github.com/any-hub/stalecache/internal/logging"
	"github.com/any-hub/stalecache/internal/orchestrator"
	"github.com/any-hub/stalecache/internal/server"
	"github.com/any-hub/stalecache/internal/server/routes"
	"github.com/any-hub/stalecache/internal/version"
)

// cliOptions 汇总 CLI 标志解析后的结果，便于在测试中注入。
type cliOptions struct {
	configPath  string
	checkOnly   bool
	showVersion bool
	getGroup    string
	getKey      string
	getArgs     []string
	getMeta     bool
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

	logger, err := logging.InitLogger(cfg.Global)
	if err != nil {
		fmt.Fprintf(stdErr, "初始化日志失败: %v\n", err)
		return 1
	}

	if opts.checkOnly {
		fields := logging.BaseFields("check_config", opts.configPath)
		fields["groups"] = config.GroupNames(cfg.Groups)
		fields["backend"] = cfg.Global.StorageBackend
		fields["result"] = "ok"
		logger.WithFields(fields).Info("配置校验通过")
		return 0
	}

	groups, err := server.NewGroupRegistry(cfg, server.NewUpstreamClient(cfg))
	if err != nil {
		fmt.Fprintf(stdErr, "构建分组注册表失败: %v\n", err)
		return 1
	}

	// 缓存不可用时不退出：服务照常启动，所有请求返回 "Cache directory problem"。
	store, closeStore, err := openStore(cfg)
	if err != nil {
		logger.WithFields(logging.BaseFields("open_store", opts.configPath)).
			WithError(err).
			WithField("cache_root", cfg.Global.CacheRoot).
			Warn("cache_unavailable")
	}
	defer closeStore()

	policy, err := orchestrator.ParseEmptyPayloadPolicy(cfg.Global.EmptyPayload)
	if err != nil {
		fmt.Fprintf(stdErr, "空数据策略无效: %v\n", err)
		return 1
	}

	orch := orchestrator.New(store, groups, cfg.Global.UpdateInterval.DurationValue(),
		orchestrator.WithLogger(logger),
		orchestrator.WithCacheRoot(cfg.Global.CacheRoot),
		orchestrator.WithEmptyPayloadPolicy(policy),
	)

	if opts.getGroup != "" {
		return runGet(context.Background(), orch, opts)
	}

	fields := logging.BaseFields("startup", opts.configPath)
	fields["groups"] = config.GroupNames(cfg.Groups)
	fields["listen_port"] = cfg.Global.ListenPort
	fields["backend"] = cfg.Global.StorageBackend
	fields["cache_root"] = cfg.Global.CacheRoot
	fields["update_interval"] = cfg.Global.UpdateInterval.DurationValue().String()
	fields["version"] = version.Full()
	logger.WithFields(fields).Info("配置加载完成")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	watchConfig(ctx, opts.configPath, orch, logger)

	if err := startHTTPServer(cfg, orch, logger); err != nil {
		fmt.Fprintf(stdErr, "HTTP 服务启动失败: %v\n", err)
		return 1
	}
	return 0
}

// parseCLIFlags 解析 CLI 参数，并结合环境变量计算最终的配置路径。
// -get 之后的位置参数作为回源参数传入。
func parseCLIFlags(args []string) (cliOptions, error) {
	fs := flag.NewFlagSet("stalecache", flag.ContinueOnError)
	fs.SetOutput(io.Discard)

	var (
		configFlag string
		checkOnly  bool
		showVer    bool
		getTarget  string
		getMeta    bool
	)

	fs.StringVar(&configFlag, "config", "", "配置文件路径（默认 ./config.toml，可被 STALECACHE_CONFIG 覆盖）")
	fs.BoolVar(&checkOnly, "check-config", false, "仅校验配置后退出")
	fs.BoolVar(&showVer, "version", false, "显示版本信息")
	fs.StringVar(&getTarget, "get", "", "以 group/key 形式取一次数据并输出 JSON 后退出")
	fs.BoolVar(&getMeta, "meta", false, "配合 -get 输出完整文档（含 status/updated/date）")

	if err := fs.Parse(args); err != nil {
		return cliOptions{}, fmt.Errorf("解析参数失败: %w", err)
	}

	path := os.Getenv("STALECACHE_CONFIG")
	if configFlag != "" {
		path = configFlag
	}
	if path == "" {
		path = "config.toml"
	}

	opts := cliOptions{
		configPath:  path,
		checkOnly:   checkOnly,
		showVersion: showVer,
		getMeta:     getMeta,
	}

	if getTarget != "" {
		groupName, key, ok := strings.Cut(getTarget, "/")
		if !ok || groupName == "" || key == "" || strings.Contains(key, "/") {
			return cliOptions{}, fmt.Errorf("-get 需要 group/key 形式，得到 %q", getTarget)
		}
		opts.getGroup = groupName
		opts.getKey = key
		opts.getArgs = fs.Args()
	}

	return opts, nil
}

// openStore 按 StorageBackend 打开缓存存储，返回的 close 函数总是可调用。
func openStore(cfg *config.Config) (cache.Store, func(), error) {
	noop := func() {}
	switch cfg.Global.StorageBackend {
	case config.BackendSQLite:
		store, err := cache.NewSQLiteStore(cfg.Global.CacheRoot)
		if err != nil {
			return nil, noop, err
		}
		return store, func() { _ = store.Close() }, nil
	default:
		store, err := cache.NewStore(cfg.Global.CacheRoot)
		if err != nil {
			return nil, noop, err
		}
		return store, noop, nil
	}
}

// runGet 执行一次 Service 调用并把结果写到 stdout；状态摘要写到 stderr。
func runGet(ctx context.Context, orch *orchestrator.Orchestrator, opts cliOptions) int {
	doc, err := orch.Service(ctx, opts.getGroup, opts.getKey, opts.getArgs...)
	if err != nil {
		var svcErr *orchestrator.ServiceError
		if errors.As(err, &svcErr) {
			encoded, _ := json.Marshal(svcErr)
			fmt.Fprintln(stdOut, string(encoded))
		}
		fmt.Fprintf(stdErr, "获取 %s/%s 失败: %v\n", opts.getGroup, opts.getKey, err)
		return 1
	}

	var out []byte
	if opts.getMeta {
		out, err = json.Marshal(doc)
		if err != nil {
			fmt.Fprintf(stdErr, "编码文档失败: %v\n", err)
			return 1
		}
	} else {
		out = doc.Data
	}
	fmt.Fprintln(stdOut, string(out))
	fmt.Fprintf(stdErr, "%s/%s: status=%s produced %s\n",
		opts.getGroup, opts.getKey, doc.Status, humanize.Time(doc.ProducedAt()))
	return 0
}

// watchConfig 监听配置文件，UpdateInterval 的修改无需重启即可生效。
// 其它字段的修改只记录日志，需要重启进程。
func watchConfig(ctx context.Context, path string, orch *orchestrator.Orchestrator, logger *logrus.Logger) {
	watcher, err := config.NewWatcher(path, 0)
	if err != nil {
		logger.WithFields(logging.BaseFields("config_watch", path)).WithError(err).Warn("配置监听未启用")
		return
	}

	go func() {
		_ = watcher.Run(ctx, func(cfg *config.Config, err error) {
			fields := logging.BaseFields("config_reload", watcher.Path())
			if err != nil {
				logger.WithFields(fields).WithError(err).Warn("配置重载失败")
				return
			}
			interval := cfg.Global.UpdateInterval.DurationValue()
			if interval == orch.UpdateInterval() {
				return
			}
			orch.SetUpdateInterval(interval)
			fields["update_interval"] = interval.String()
			logger.WithFields(fields).Info("UpdateInterval 已更新")
		})
	}()
}

func startHTTPServer(cfg *config.Config, orch *orchestrator.Orchestrator, logger *logrus.Logger) error {
	port := cfg.Global.ListenPort
	app, err := server.NewApp(server.AppOptions{
		Logger:     logger,
		Backend:    orch,
		ListenPort: port,
	})
	if err != nil {
		return err
	}
	routes.RegisterGroupRoutes(app, orch, nil)

	logger.WithFields(logrus.Fields{
		"action": "listen",
		"port":   port,
	}).Info("Fiber 服务启动")

	return app.Listen(fmt.Sprintf(":%d", port))
}

// =============================================================================
// FlowEngine 主入口
// =============================================================================
// 工作流校验、单次执行、节点类型查询、数据库迁移与运维服务
//
// 使用方法:
//
//	flowengine validate -workflow order.yaml            # 校验工作流
//	flowengine run -workflow order.yaml -input '{}'     # 执行一次并输出执行记录
//	flowengine node-types                               # 列出节点类型
//	flowengine serve --config config.yaml               # 启动 /metrics 与 /healthz
//	flowengine health -addr http://localhost:9091       # 健康检查
//	flowengine migrate up                               # 运行数据库迁移
//	flowengine version                                  # 显示版本信息
// =============================================================================

package main

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"os"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/BaSui01/flowengine/config"
)

// =============================================================================
// 📦 版本信息（构建时注入）
// =============================================================================

var (
	Version   = "dev"
	BuildTime = "unknown"
	GitCommit = "unknown"
)

// errUsage 表示参数错误，已向用户输出用法
var errUsage = errors.New("invalid usage")

// =============================================================================
// 🎯 主函数
// =============================================================================

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

// run 分发子命令并返回进程退出码
func run(args []string, stdout, stderr io.Writer) int {
	if len(args) < 1 {
		printUsage(stderr)
		return 1
	}

	var err error
	switch args[0] {
	case "validate":
		err = runValidate(args[1:], stdout)
	case "run":
		err = runWorkflow(args[1:], stdout)
	case "node-types":
		err = runNodeTypes(args[1:], stdout)
	case "serve":
		err = runServe(args[1:])
	case "health":
		err = runHealthCheck(args[1:], stdout)
	case "migrate":
		err = runMigrate(args[1:], stdout)
	case "version":
		printVersion(stdout)
	case "help", "-h", "--help":
		printUsage(stdout)
	default:
		fmt.Fprintf(stderr, "Unknown command: %s\n", args[0])
		printUsage(stderr)
		return 1
	}

	if err != nil {
		if !errors.Is(err, errUsage) {
			fmt.Fprintf(stderr, "Error: %v\n", err)
		}
		return 1
	}
	return 0
}

// =============================================================================
// 🔧 配置与日志
// =============================================================================

// loadConfig 按 默认值 → YAML → 环境变量 加载并校验配置
func loadConfig(path string) (*config.Config, error) {
	loader := config.NewLoader()
	if path != "" {
		loader = loader.WithConfigPath(path)
	}
	cfg, err := loader.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// newFlagSet 创建不直接退出进程的 FlagSet
func newFlagSet(name string, out io.Writer) *flag.FlagSet {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	fs.SetOutput(out)
	return fs
}

func parseFlags(fs *flag.FlagSet, args []string) error {
	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return errUsage
		}
		return fmt.Errorf("%w: %v", errUsage, err)
	}
	return nil
}

func initLogger(cfg config.LogConfig) *zap.Logger {
	var level zapcore.Level
	switch cfg.Level {
	case "debug":
		level = zapcore.DebugLevel
	case "info":
		level = zapcore.InfoLevel
	case "warn":
		level = zapcore.WarnLevel
	case "error":
		level = zapcore.ErrorLevel
	default:
		level = zapcore.InfoLevel
	}

	var encoderConfig zapcore.EncoderConfig
	if cfg.Format == "console" {
		encoderConfig = zap.NewDevelopmentEncoderConfig()
		encoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	} else {
		encoderConfig = zap.NewProductionEncoderConfig()
		encoderConfig.TimeKey = "timestamp"
		encoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	}

	outputs := cfg.OutputPaths
	if len(outputs) == 0 {
		outputs = []string{"stdout"}
	}

	zapConfig := zap.Config{
		Level:             zap.NewAtomicLevelAt(level),
		Development:       cfg.Format == "console",
		Encoding:          "json",
		EncoderConfig:     encoderConfig,
		OutputPaths:       outputs,
		ErrorOutputPaths:  []string{"stderr"},
		DisableCaller:     !cfg.EnableCaller,
		DisableStacktrace: !cfg.EnableStacktrace,
	}
	if cfg.Format == "console" {
		zapConfig.Encoding = "console"
	}

	var opts []zap.Option
	if cfg.EnableStacktrace {
		opts = append(opts, zap.AddStacktrace(zapcore.ErrorLevel))
	}
	logger, err := zapConfig.Build(opts...)
	if err != nil {
		logger, _ = zap.NewProduction()
	}
	return logger
}

// =============================================================================
// 📖 版本与帮助
// =============================================================================

func printVersion(w io.Writer) {
	fmt.Fprintf(w, "FlowEngine %s\n", Version)
	fmt.Fprintf(w, "  Build Time: %s\n", BuildTime)
	fmt.Fprintf(w, "  Git Commit: %s\n", GitCommit)
}

func printUsage(w io.Writer) {
	fmt.Fprint(w, `FlowEngine - workflow orchestration engine

Usage:
  flowengine <command> [options]

Commands:
  validate    Validate a workflow definition (YAML or JSON)
  run         Execute a workflow once with the built-in demo agents
  node-types  List registered node types grouped by group
  serve       Serve /metrics, /healthz and /version
  health      Check a running server's /healthz endpoint
  migrate     Database migration commands
  version     Show version information
  help        Show this help message

Examples:
  flowengine validate -workflow order.yaml
  flowengine run -workflow order.yaml -input '{"amount": 10}'
  flowengine serve --config config.yaml
  flowengine migrate up --config config.yaml

Run 'flowengine migrate help' for migration commands.
`)
}

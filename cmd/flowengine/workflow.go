package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"slices"
	"strings"
	"syscall"
	"time"

	"github.com/goccy/go-json"
	"go.uber.org/zap"

	"github.com/BaSui01/flowengine"
	"github.com/BaSui01/flowengine/agent"
	"github.com/BaSui01/flowengine/workflow"
	"github.com/BaSui01/flowengine/workflow/nodetype"
)

// =============================================================================
// ✅ validate 命令
// =============================================================================

func runValidate(args []string, out io.Writer) error {
	fs := newFlagSet("validate", out)
	path := fs.String("workflow", "", "Path to workflow definition (YAML or JSON)")
	if err := parseFlags(fs, args); err != nil {
		return err
	}
	if *path == "" {
		fmt.Fprintln(out, "validate: -workflow is required")
		fs.Usage()
		return errUsage
	}

	start, err := validateFile(*path)
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "✅ %s is valid (start node: %s)\n", *path, start)
	return nil
}

// validateFile 使用内置节点类型校验工作流文件并返回起始节点
func validateFile(path string) (string, error) {
	def, err := workflow.LoadDefinition(path)
	if err != nil {
		return "", err
	}
	if err := def.Check(); err != nil {
		return "", err
	}
	g, err := def.Graph()
	if err != nil {
		return "", err
	}

	reg := nodetype.NewRegistry(zap.NewNop())
	if err := nodetype.RegisterBuiltins(reg); err != nil {
		return "", err
	}
	return workflow.Validate(g, reg)
}

// =============================================================================
// ▶️ run 命令
// =============================================================================

func runWorkflow(args []string, out io.Writer) error {
	fs := newFlagSet("run", out)
	path := fs.String("workflow", "", "Path to workflow definition (YAML or JSON)")
	input := fs.String("input", "", "Execution input as JSON")
	vars := fs.String("vars", "", "Execution variables as a JSON object")
	configPath := fs.String("config", "", "Path to config file")
	timeout := fs.Duration("timeout", 0, "Cancel the execution after this duration (0 = no limit)")
	if err := parseFlags(fs, args); err != nil {
		return err
	}
	if *path == "" {
		fmt.Fprintln(out, "run: -workflow is required")
		fs.Usage()
		return errUsage
	}

	def, err := workflow.LoadDefinition(*path)
	if err != nil {
		return err
	}
	var in any
	if *input != "" {
		if err := json.Unmarshal([]byte(*input), &in); err != nil {
			return fmt.Errorf("invalid -input: %w", err)
		}
	}
	var variables map[string]any
	if *vars != "" {
		if err := json.Unmarshal([]byte(*vars), &variables); err != nil {
			return fmt.Errorf("invalid -vars: %w", err)
		}
	}

	cfg, err := loadConfig(*configPath)
	if err != nil {
		return err
	}
	// stdout 只输出执行记录
	cfg.Log.OutputPaths = []string{"stderr"}
	logger := initLogger(cfg.Log)
	defer func() { _ = logger.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if *timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, *timeout)
		defer cancel()
	}

	eng, err := flowengine.New(ctx, flowengine.WithConfig(cfg), flowengine.WithLogger(logger))
	if err != nil {
		return err
	}
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := eng.Close(closeCtx); err != nil {
			logger.Warn("engine close failed", zap.Error(err))
		}
	}()

	for _, a := range demoAgents() {
		if err := eng.RegisterAgent(a); err != nil {
			return err
		}
	}

	registered, err := eng.RegisterWorkflow(ctx, def)
	if err != nil {
		return err
	}
	exec, runErr := eng.ExecuteWorkflow(ctx, registered.ID, in, variables)
	if exec != nil {
		data, err := json.MarshalIndent(exec, "", "  ")
		if err != nil {
			return err
		}
		fmt.Fprintln(out, string(data))
	}
	return runErr
}

// =============================================================================
// 🤖 内置演示 Agent
// =============================================================================

// demoAgents 返回 run 命令注册的演示 Agent：
// echo.echo 原样返回参数，echo.upper 将 text 参数转为大写，fail.fail 总是失败。
func demoAgents() []agent.Agent {
	echo := agent.NewFuncAgent("echo", map[string]agent.CapabilityFunc{
		"echo": func(_ context.Context, params map[string]any) (any, error) {
			return params, nil
		},
		"upper": func(_ context.Context, params map[string]any) (any, error) {
			text, ok := params["text"].(string)
			if !ok {
				return nil, errors.New("parameter text must be a string")
			}
			return strings.ToUpper(text), nil
		},
	})
	fail := agent.NewFuncAgent("fail", map[string]agent.CapabilityFunc{
		"fail": func(_ context.Context, params map[string]any) (any, error) {
			if msg, ok := params["message"].(string); ok && msg != "" {
				return nil, errors.New(msg)
			}
			return nil, errors.New("demo failure")
		},
	})
	return []agent.Agent{echo, fail}
}

// =============================================================================
// 🧩 node-types 命令
// =============================================================================

func runNodeTypes(args []string, out io.Writer) error {
	fs := newFlagSet("node-types", out)
	asJSON := fs.Bool("json", false, "Print descriptions as JSON")
	if err := parseFlags(fs, args); err != nil {
		return err
	}

	reg := nodetype.NewRegistry(zap.NewNop())
	if err := nodetype.RegisterBuiltins(reg); err != nil {
		return err
	}

	if *asJSON {
		data, err := json.MarshalIndent(reg.GetAll(), "", "  ")
		if err != nil {
			return err
		}
		fmt.Fprintln(out, string(data))
		return nil
	}

	groups := reg.GetGroups()
	slices.Sort(groups)
	for _, group := range groups {
		fmt.Fprintf(out, "%s:\n", group)
		for _, d := range reg.GetByGroup(group) {
			fmt.Fprintf(out, "  %-12s v%d  %s\n", d.Type, d.Version, d.Name)
			if len(d.Outputs) > 0 {
				names := make([]string, 0, len(d.Outputs))
				for _, p := range d.Outputs {
					names = append(names, p.Name)
				}
				fmt.Fprintf(out, "               outputs: %s\n", strings.Join(names, ", "))
			}
		}
	}
	return nil
}

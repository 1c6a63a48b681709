// 版权所有 2024 AgentFlow Authors. 版权所有。
// 此源代码的使用由 MIT 许可规范,该许可可以是
// 在LICENSE文件中找到。

/*
包 orchestrator 将工作流引擎的各组件装配为一个服务。

# 组件

  - 节点类型注册表（内置 trigger / task / condition / parallel）
  - Agent 注册表与能力授权门（none / capability / jwt）
  - InvocationManager：全局并发上限与可选限流，所有 Agent 调用经由它准入
  - 执行引擎：每个执行一个 Run 句柄，可取消
  - Hook 总线：审计日志、日志输出，以及可选的 Redis Stream
  - 记录存储：工作流定义与执行记录，执行开始与结束时各写入一次

# 用法

	o, err := orchestrator.New(ctx, orchestrator.Options{Config: &cfg, Logger: logger})
	def, err := o.RegisterWorkflow(ctx, def)
	exec, err := o.ExecuteWorkflow(ctx, def.ID, input, nil)
	defer o.Close(ctx)
*/
package orchestrator

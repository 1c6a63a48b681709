// 版权所有 2024 AgentFlow Authors. 版权所有。
// 此源代码的使用由 MIT 许可规范,该许可可以是
// 在LICENSE文件中找到。

/*
包 server 管理 flowengine serve 子命令的运维 HTTP 服务器生命周期。

# 核心类型

  - Manager：封装 net/http.Server 与 net.Listener，提供非阻塞
    Start、幂等 Shutdown 以及阻塞到 ctx 结束的 Run。
  - Config：监听地址、读写超时与优雅关闭超时，可由
    config.MetricsConfig 经 FromMetricsConfig 构造。

# 使用方式

	m := server.NewManager(handler, server.FromMetricsConfig(cfg.Metrics), logger)
	if err := m.Start(); err != nil {
		return err
	}
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	return m.Run(ctx)
*/
package server

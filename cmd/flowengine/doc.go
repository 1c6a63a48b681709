// Copyright (c) AgentFlow Authors.
// Licensed under the MIT License.

/*
flowengine 是 FlowEngine 工作流编排引擎的命令行入口。

# 子命令

  - validate：使用内置节点类型校验工作流定义（YAML 或 JSON），
    成功时输出起始节点，失败时输出带错误码的类型化错误。
  - run：注册内置演示 Agent（echo、fail），执行一次工作流并以
    JSON 输出执行记录；执行失败时退出码为 1。
  - node-types：按分组列出已注册节点类型，-json 输出完整描述。
  - serve：启动运维 HTTP 服务，提供 /metrics（Prometheus）、
    /healthz 与 /version，收到 SIGINT/SIGTERM 后优雅关闭。
  - health：请求运行中服务的 /healthz。
  - migrate：对 store.sql 数据库执行 up/down/status/version/info。
  - version：显示构建时注入的版本信息。

# 配置

所有需要配置的子命令都接受 --config，加载顺序为默认值、YAML
文件、FLOWENGINE_* 环境变量。日志由 log 配置段构建。
*/
package main

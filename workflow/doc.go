// Copyright (c) AgentFlow Authors.
// Licensed under the MIT License.

/*
Package workflow 提供工作流图、校验与执行引擎。

# 概述

workflow 包把一组类型化节点及其端口连接组织为 Graph，在执行前一次性
完成校验（节点类型、参数、连接、环检测、起始节点选择），校验通过后图被
封存为只读，可被任意数量的并发执行共享。Engine 从起始节点出发深度优先
遍历，沿节点选择的输出端口传递数据，同一节点的多个后继分支并发执行。

# 核心接口与类型

  - Graph / Node / Connection：工作流图及其节点、端口连接
  - Validate：按固定顺序校验并返回起始节点
  - Definition：持久化形态，支持 JSON / YAML 导入导出
  - Engine：执行引擎（Start 异步 / Execute 同步）
  - NodeHandler：按节点类型注册的处理器
  - TaskInvoker：task / parallel 节点调用 Agent 能力的契约
  - Execution / NodeResult：执行记录与节点结果
  - Run：运行中执行的句柄（Snapshot / Cancel / Wait）

# 主要能力

  - 快速失败：首个节点失败即终止整个执行，已完成的节点结果保留
  - 条件分支：condition 节点按表达式结果走 true / false 端口
  - 并行扇出：parallel 节点并发调用子任务，结果按声明顺序返回
  - 菱形汇合：同一执行中每个节点最多运行一次，先到达的分支执行
  - 禁用节点：记为 skipped，输入透传至第一个输出端口
  - 可观测性：每次执行与每个节点一个 OpenTelemetry span，生命周期事件
    通过 hooks.Emitter 发出
*/
package workflow

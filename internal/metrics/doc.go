// 版权所有 2024 AgentFlow Authors. 版权所有。
// 此源代码的使用由 MIT 许可规范,该许可可以是
// 在LICENSE文件中找到。

/*
包 metrics 提供基于 Prometheus 的编排引擎指标采集能力，覆盖
工作流、节点、调用、Hook 与存储五大维度。

# 概述

本包通过 Collector 统一注册和记录 Prometheus 指标，使用 promauto
自动注册机制，所有指标按 namespace 隔离，便于 Grafana 等工具进行
可视化与告警。

# 核心类型

  - Collector：指标收集器，持有 Counter、Histogram、Gauge 等
    Prometheus 指标，按业务域分组管理。

# 主要能力

  - 工作流指标：注册总数、执行总数与耗时，按 status 分组。
  - 节点指标：执行总数与耗时，按 node_type/status 分组。
  - 调用指标：结束总数、耗时、活跃调用数 Gauge、准入拒绝数（按 reason）。
  - Hook 指标：因缓冲区满而丢弃的事件数。
  - 存储指标：操作耗时，按 backend/operation 分组。
*/
package metrics

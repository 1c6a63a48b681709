// Package config 提供 FlowEngine 的配置管理功能。
//
// 配置按 默认值 → YAML 文件 → 环境变量（前缀 FLOWENGINE）的顺序叠加，
// 环境变量名由结构体 env 标签逐级拼接，例如 FLOWENGINE_STORE_REDIS_ADDR。
// Config.Validate 汇总所有问题后一次返回。
package config

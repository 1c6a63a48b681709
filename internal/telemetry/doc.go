// Package telemetry 初始化 OpenTelemetry 的 TracerProvider 与 MeterProvider，
// 并提供工作流执行与 Agent 调用的 OTel 指标。
// 遥测禁用时保持全局 noop 实现，不连接任何外部服务。
package telemetry

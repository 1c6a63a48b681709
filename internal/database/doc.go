// 版权所有 2024 AgentFlow Authors. 版权所有。
// 此源代码的使用由 MIT 许可规范,该许可可以是
// 在LICENSE文件中找到。

/*
包 database 负责打开 SQL 记录存储所用的 GORM 连接并管理其连接池，
支持 PostgreSQL、MySQL 与 SQLite（glebarez 纯 Go 驱动）。

# 核心类型

  - PoolManager：持有 GORM DB 与底层 sql.DB，提供 DB()、Ping()、
    Stats()、GetStats()、Close() 等生命周期方法；Close 会先停止健康检查。
  - PoolConfig：连接池配置，PoolConfigFrom 从 config.DatabaseConfig 派生。
  - TransactionFunc：事务回调函数类型。

# 主要能力

  - Open / Dialector：按驱动选择方言并打开连接，sqlite 内存库固定单连接。
  - 健康检查：后台定时 PingContext 探活。
  - 事务管理：WithTransaction 单次执行，WithTransactionRetry 对死锁、
    序列化失败、数据库锁定等错误按指数退避重试。
*/
package database

// 版权所有 2024 AgentFlow Authors. 版权所有。
// 此源代码的使用由 MIT 许可规范,该许可可以是
// 在LICENSE文件中找到。

/*
包 migration 管理 SQL 记录存储（workflow_records / execution_records）
的 Schema 版本，支持 PostgreSQL、MySQL 与 SQLite，基于 golang-migrate 实现。

# 概述

各方言的迁移文件通过 embed.FS 内嵌在 migrations/<dialect>/ 下，
表结构与 store 包中 gorm 模型保持一致，因此既可以使用
store.auto_migrate 让 gorm 建表，也可以通过 flowengine migrate
子命令显式管理版本。

# 核心类型

  - Migrator：迁移器接口，提供 Up/Down/Version/Status/Info/Close。
  - DefaultMigrator：基于 golang-migrate 的默认实现，自行打开并持有连接。
  - CLI：命令行交互层，Run 按子命令分发并格式化输出。

# 辅助函数

  - NewMigratorFromDatabaseConfig：从 config.DatabaseConfig 创建迁移器。
  - ParseDatabaseType / BuildDatabaseURL：解析方言并拼接连接串。
*/
package migration

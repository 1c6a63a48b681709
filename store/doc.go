// 版权所有 2024 AgentFlow Authors. 版权所有。
// 此源代码的使用由 MIT 许可规范,该许可可以是
// 在LICENSE文件中找到。

/*
包 store 持久化工作流定义与执行记录。

# 后端

  - MemoryStore：进程内存储，读写均复制记录。
  - SQLStore：基于 GORM，支持 PostgreSQL、MySQL 与 SQLite；
    表结构与 internal/migration 内嵌的迁移一致，写操作在事务中执行并对
    死锁等错误重试。
  - RedisStore：JSON 字符串加有序集合索引（按创建/开始时间、工作流、状态）。
  - BadgerStore：嵌入式 KV，按键前缀扫描。

New 根据 config.StoreConfig 构建后端，并通过 Instrument 上报每次操作耗时。
记录不存在时返回 ErrNotFound，记录缺少 ID 时返回 ErrInvalidInput。
*/
package store

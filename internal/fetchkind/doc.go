// Package fetchkind 聚合可通过配置启用的回源类型（http、file 等），并提供统一的注册入口。
//
// 回源类型作者需要：
//  1. 在 internal/fetchkind/<kind>/ 目录下实现 BuildFunc；
//  2. 在 init() 中调用 MustRegister 注册元数据；
//  3. 在 internal/config/modules.go 中以空白导入的方式启用该类型。
package fetchkind

// Package group 维护“分组 → 回源函数”的显式注册表。每个分组对应缓存根目录下的
// 一个子目录，以及一个负责产出数据的 FetchFunc；Orchestrator 只通过注册表查找回源
// 函数，未注册的分组在调用时直接报错。
package group

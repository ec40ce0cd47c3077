// 版权所有 2024 AgentFlow Authors. 版权所有。
// 此源代码的使用由 MIT 许可规范,该许可可以是
// 在LICENSE文件中找到。

/*
包 identity 为每次导出派生产物标识。

标识由三部分组成：首个已加载主体的 ID（缺失时为 "unknown"）、去掉分隔符的
UTC 时间戳，以及随机字母数字令牌。同一主体的连续两次导出总是得到不同的
文件名，避免发布端的产物覆盖。

  id := identity.NewResolver().Resolve(subjects)
  name := id.Filename(types.FormatGLB) // 1CRN_20261017T120102123Z_k3x9q2ab.glb
*/
package identity

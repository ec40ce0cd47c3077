// 版权所有 2024 AgentFlow Authors. 版权所有。
// 此源代码的使用由 MIT 许可规范,该许可可以是
// 在LICENSE文件中找到。

/*
Package workflow 编排导出与发布周期。

# 状态

Controller 只有 Idle 与 Busy 两个状态。忙碌标志通过 CAS 获取，
Busy 期间的触发直接返回 ErrBusy，不排队。

# 阶段

一个周期内依次执行：导出（与标识解析并发）→ 编码 → 发布 → 呈现。
任何阶段失败都在控制器内收敛：记录带原因的日志，Presenter 只收到
通用的失败提示，随后回到 Idle。周期一旦开始就会跑完，调用方的
取消不会中断它。

# 呈现

Presenter 是回调接口；LogPresenter 输出日志，EventPresenter 把回调
转换为 Event 交给任意下游（例如 WebSocket 推送）。
*/
package workflow

// Package react 提供 ReAct（推理-行动）循环的图定义。
//
// 模型节点带着工具列表调用 LLM；路由节点在回复包含工具调用时进入
// 工具节点，否则结束。工具节点按 Parallelism 并发执行同一轮的调用，
// 结果按调用顺序追加为 tool 消息后回到模型节点。循环次数由工作流的
// 步数上限约束。
package react

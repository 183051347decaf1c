// Copyright (c) AgentFlow Authors.
// Licensed under the MIT License.

/*
Package testutil 提供测试共享的工具和辅助函数。

# 核心能力

  - 上下文辅助: TestContext / TestContextWithTimeout / CancelledContext，
    自动注册 Cleanup 防止泄漏
  - 断言工具: AssertMessagesEqual / AssertErrorCode / AssertEventuallyTrue
  - 等待工具: WaitFor / WaitForChannel
  - 流式辅助: CollectStreamChunks / CollectStreamContent

# 子包

  - testutil/mocks: MockProvider（LLM Provider）与 MockToolServer（工具服务端），
    均支持 Builder 模式、调用记录与错误注入

# 使用示例

	ctx := testutil.TestContext(t)
	provider := mocks.NewMockProvider().WithResponse("hello")
	server := mocks.NewMockToolServer().WithTool("echo", echoFn)
*/
package testutil

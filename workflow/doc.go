// Copyright (c) AgentFlow Authors.
// Licensed under the MIT License.

/*
Package workflow 提供类型化状态图的编译与执行引擎。

# 概述

Agent 被声明为一张状态图：一组具名节点与有向边。GraphConfig 描述节点和边，
Compile（或一次性的 GraphBuilder）将其编译为不可变的 Workflow，
Workflow 以状态实例为输入顺序执行各节点直到 END。

# 核心类型

  - Schema[S]      — 状态结构体 S 的反射描述：状态键、字段 Reducer、输入/输出投影
  - Update         — 部分状态更新（map[string]any），未出现的键保持不变
  - Node[S]        — 封闭变体：Plain / Route / Start / End，由 NodeKind 区分
  - Edge           — (Start, End) 有序对；指向 Route 节点的边是条件边
  - GraphConfig[S] — 作者提供的节点与边列表
  - GraphBuilder[S]— 至多编译一次的构建器
  - Workflow[S]    — 编译结果：Invoke / InvokeAsync / Stream / Execute

# 编译规则

  - 节点按名称索引，重名、保留名（START/END）、空函数均为配置错误
  - 编译器在解析边之前注入 START 与 END 哨兵
  - 终点是 Route 节点的边在源节点上安装条件转移；从 Route 节点出发的边声明其可选目的地
  - 非 Route 源节点至多一条出边（无并行扇出）
  - 默认严格校验可达性；WithPermissive 关闭校验，死路在运行时以 ErrDeadEnd 报告

# 执行

节点逐个顺序执行。节点函数与路由器返回的错误原样透传给调用方。
WithStepLimit 限制单次运行的节点执行次数，防止环路无限运行。
*/
package workflow

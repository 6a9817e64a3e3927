// Copyright (c) DiagramGate Authors.
// Licensed under the MIT License.

/*
Package script 实现图表脚本所使用的受限 Python 子集：词法分析、语法分析、
语法树遍历以及树遍历解释器。

# 概述

语法覆盖图表脚本常见写法：赋值与复合赋值、import / from-import、
with / for / while / if、def / return，以及名称、字面量、列表、元组、
字典、调用（含关键字参数）、属性、下标与切片、算术 / 比较 / 逻辑运算、
条件表达式、列表 / 字典推导式、生成器表达式（求值为列表）以及不带格式
说明符的 f-string。class、lambda、try、集合字面量等子集之外的语法
在解析阶段直接返回 *SyntaxError，调用方据此走保守的文本扫描路径。

# 执行模型

  - 名称解析只查找调用方提供的全局命名空间与函数局部变量，
    不存在隐式的内置作用域
  - Thread.Cancel 可从任意 goroutine 调用，解释器在每条语句、
    每次循环迭代和每次调用前检查中断
  - MaxSteps 提供确定性的步数预算
  - 列表、字典、字符串的长度受 MaxCollectionLen / MaxStringLen 限制

# 扩展

宿主对象通过实现 Callable、HasAttrs、HasBinary、ContextManager
接入解释器，例如图表节点通过 HasBinary 实现 >>、<<、- 连线运算。
*/
package script

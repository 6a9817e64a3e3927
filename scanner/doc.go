// Copyright (c) DiagramGate Authors.
// Licensed under the MIT License.

/*
Package scanner 在执行前对提交的脚本做准入检查。

# 概述

扫描分为三层：

  - SyntaxScanner：解析为语法树并按 Policy 检查禁用调用、反射属性与 import
  - TextScanner：源码无法解析时的逐行文本兜底，所有命中均为阻断级
  - LintIntegration：并行运行 bandit 与内置正则 linter，作为纵深防御

Scanner 组合以上结果，去重、排序并附加修复建议，产出 types.ScanVerdict。
解析失败的提交永远不会被接受。

# 使用方式

	s := scanner.New(scanner.DefaultPolicy(),
		scanner.NewLintIntegration(10*time.Second, logger,
			scanner.NewBanditLinter(""), scanner.NewPatternLinter()),
		logger)
	verdict := s.Evaluate(ctx, submission)
*/
package scanner

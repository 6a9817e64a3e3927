package script

import (
	"errors"
	"fmt"
	"strings"
)

// maxNesting 表达式与语句的最大嵌套深度
const maxNesting = 100

// Parse 解析脚本源码。遇到子集之外的语法一律返回 *SyntaxError。
func Parse(src string) (*File, error) {
	toks, err := tokenize(src)
	if err != nil {
		return nil, err
	}
	p := &parser{toks: toks}
	return p.parseFile()
}

// ParseExpr 解析单个表达式
func ParseExpr(src string) (Expr, error) {
	toks, err := tokenize(src)
	if err != nil {
		return nil, err
	}
	p := &parser{toks: toks}
	e, err := p.parseTest()
	if err != nil {
		return nil, err
	}
	for p.peek() == NEWLINE {
		p.advance()
	}
	if p.peek() != EOF {
		return nil, p.unexpected()
	}
	return e, nil
}

// parser 递归下降解析器
type parser struct {
	toks  []tokenValue
	pos   int
	depth int
}

func (p *parser) cur() tokenValue { return p.toks[p.pos] }

func (p *parser) peek() Token { return p.toks[p.pos].tok }

func (p *parser) peekN(n int) Token {
	if p.pos+n >= len(p.toks) {
		return EOF
	}
	return p.toks[p.pos+n].tok
}

func (p *parser) advance() tokenValue {
	tv := p.toks[p.pos]
	if tv.tok != EOF {
		p.pos++
	}
	return tv
}

func (p *parser) errorf(pos Position, format string, args ...any) error {
	return &SyntaxError{Pos: pos, Msg: fmt.Sprintf(format, args...)}
}

func (p *parser) unexpected() error {
	tv := p.cur()
	switch tv.tok {
	case RESERVED:
		return p.errorf(tv.pos, "unsupported syntax: %s", tv.raw)
	case IDENT, INT, FLOAT:
		return p.errorf(tv.pos, "unexpected %s %q", tv.tok, tv.raw)
	}
	return p.errorf(tv.pos, "unexpected %s", tv.tok)
}

func (p *parser) expect(tok Token) (tokenValue, error) {
	if p.peek() != tok {
		tv := p.cur()
		if tv.tok == RESERVED {
			return tv, p.unexpected()
		}
		return tv, p.errorf(tv.pos, "expected %s, found %s", tok, tv.tok)
	}
	return p.advance(), nil
}

func (p *parser) enter() error {
	p.depth++
	if p.depth > maxNesting {
		return p.errorf(p.cur().pos, "too many nested expressions")
	}
	return nil
}

func (p *parser) leave() { p.depth-- }

// ============================================================
// 语句
// ============================================================

func (p *parser) parseFile() (*File, error) {
	f := &File{}
	for p.peek() != EOF {
		if p.peek() == NEWLINE {
			p.advance()
			continue
		}
		stmts, err := p.parseStmt()
		if err != nil {
			return nil, err
		}
		f.Stmts = append(f.Stmts, stmts...)
	}
	return f, nil
}

func (p *parser) parseStmt() ([]Stmt, error) {
	switch p.peek() {
	case IF:
		s, err := p.parseIf()
		return []Stmt{s}, err
	case WHILE:
		s, err := p.parseWhile()
		return []Stmt{s}, err
	case FOR:
		s, err := p.parseFor()
		return []Stmt{s}, err
	case WITH:
		s, err := p.parseWith()
		return []Stmt{s}, err
	case DEF:
		s, err := p.parseDef()
		return []Stmt{s}, err
	case AT:
		return nil, p.errorf(p.cur().pos, "unsupported syntax: decorators")
	case INDENT:
		return nil, p.errorf(p.cur().pos, "unexpected indent")
	}
	return p.parseSimpleStmts()
}

// parseSimpleStmts simple_stmt (';' simple_stmt)* [';'] NEWLINE
func (p *parser) parseSimpleStmts() ([]Stmt, error) {
	var stmts []Stmt
	for {
		s, err := p.parseSmallStmt()
		if err != nil {
			return nil, err
		}
		stmts = append(stmts, s)
		if p.peek() != SEMI {
			break
		}
		p.advance()
		if p.peek() == NEWLINE || p.peek() == EOF {
			break
		}
	}
	if p.peek() == EOF {
		return stmts, nil
	}
	if _, err := p.expect(NEWLINE); err != nil {
		return nil, err
	}
	return stmts, nil
}

func (p *parser) parseSmallStmt() (Stmt, error) {
	tv := p.cur()
	switch tv.tok {
	case PASS, BREAK, CONTINUE:
		p.advance()
		return &BranchStmt{TokPos: tv.pos, Token: tv.tok}, nil
	case RETURN:
		p.advance()
		s := &ReturnStmt{ReturnPos: tv.pos}
		if p.peek() != NEWLINE && p.peek() != SEMI && p.peek() != EOF {
			v, err := p.parseTestList()
			if err != nil {
				return nil, err
			}
			s.Value = v
		}
		return s, nil
	case IMPORT:
		return p.parseImport()
	case FROM:
		return p.parseFromImport()
	case RESERVED:
		return nil, p.unexpected()
	}
	return p.parseExprStmt()
}

func (p *parser) parseExprStmt() (Stmt, error) {
	first, err := p.parseTestList()
	if err != nil {
		return nil, err
	}

	if op, ok := augmentedOps[p.peek()]; ok {
		opPos := p.advance().pos
		if err := checkTarget(first, false); err != nil {
			return nil, err
		}
		v, err := p.parseTestList()
		if err != nil {
			return nil, err
		}
		return &AugAssignStmt{Target: first, OpPos: opPos, Op: op, Value: v}, nil
	}

	if p.peek() != EQ {
		return &ExprStmt{X: first}, nil
	}

	targets := []Expr{first}
	var eqPos Position
	var value Expr
	for p.peek() == EQ {
		eqPos = p.advance().pos
		v, err := p.parseTestList()
		if err != nil {
			return nil, err
		}
		targets = append(targets, v)
	}
	value = targets[len(targets)-1]
	targets = targets[:len(targets)-1]
	for _, t := range targets {
		if err := checkTarget(t, true); err != nil {
			return nil, err
		}
	}
	return &AssignStmt{Targets: targets, EqPos: eqPos, Value: value}, nil
}

// checkTarget 校验赋值目标，仅允许名称、属性、下标及其元组/列表组合
func checkTarget(e Expr, allowUnpack bool) error {
	switch x := e.(type) {
	case *Ident, *AttributeExpr, *IndexExpr:
		return nil
	case *TupleExpr:
		if allowUnpack {
			for _, el := range x.Elems {
				if err := checkTarget(el, true); err != nil {
					return err
				}
			}
			return nil
		}
	case *ListExpr:
		if allowUnpack {
			for _, el := range x.Elems {
				if err := checkTarget(el, true); err != nil {
					return err
				}
			}
			return nil
		}
	}
	return &SyntaxError{Pos: e.Span(), Msg: "cannot assign to expression"}
}

func (p *parser) parseDottedName() (string, Position, error) {
	tv, err := p.expect(IDENT)
	if err != nil {
		return "", tv.pos, err
	}
	name := tv.raw
	for p.peek() == DOT {
		p.advance()
		part, err := p.expect(IDENT)
		if err != nil {
			return "", tv.pos, err
		}
		name += "." + part.raw
	}
	return name, tv.pos, nil
}

func (p *parser) parseAsName() (string, error) {
	if p.peek() != AS {
		return "", nil
	}
	p.advance()
	tv, err := p.expect(IDENT)
	if err != nil {
		return "", err
	}
	return tv.raw, nil
}

// parseImport import a.b [as c], d
func (p *parser) parseImport() (Stmt, error) {
	s := &ImportStmt{ImportPos: p.advance().pos}
	for {
		name, pos, err := p.parseDottedName()
		if err != nil {
			return nil, err
		}
		as, err := p.parseAsName()
		if err != nil {
			return nil, err
		}
		s.Names = append(s.Names, &ImportAlias{NamePos: pos, Name: name, AsName: as})
		if p.peek() != COMMA {
			return s, nil
		}
		p.advance()
	}
}

// parseFromImport from [.]a.b import (c [as d], ...) | *
func (p *parser) parseFromImport() (Stmt, error) {
	s := &FromImportStmt{FromPos: p.advance().pos}
	for p.peek() == DOT {
		p.advance()
		s.Level++
	}
	if p.peek() == IDENT {
		name, _, err := p.parseDottedName()
		if err != nil {
			return nil, err
		}
		s.Module = name
	} else if s.Level == 0 {
		return nil, p.unexpected()
	}
	if _, err := p.expect(IMPORT); err != nil {
		return nil, err
	}

	if p.peek() == STAR {
		p.advance()
		s.Star = true
		return s, nil
	}

	paren := p.peek() == LPAREN
	if paren {
		p.advance()
	}
	for {
		tv, err := p.expect(IDENT)
		if err != nil {
			return nil, err
		}
		as, err := p.parseAsName()
		if err != nil {
			return nil, err
		}
		s.Names = append(s.Names, &ImportAlias{NamePos: tv.pos, Name: tv.raw, AsName: as})
		if p.peek() != COMMA {
			break
		}
		p.advance()
		if paren && p.peek() == RPAREN {
			break
		}
	}
	if paren {
		if _, err := p.expect(RPAREN); err != nil {
			return nil, err
		}
	}
	return s, nil
}

// parseSuite ':' (simple_stmts | NEWLINE INDENT stmt+ OUTDENT)
func (p *parser) parseSuite() ([]Stmt, error) {
	if _, err := p.expect(COLON); err != nil {
		return nil, err
	}
	if err := p.enter(); err != nil {
		return nil, err
	}
	defer p.leave()

	if p.peek() != NEWLINE {
		return p.parseSimpleStmts()
	}
	p.advance()
	if p.peek() != INDENT {
		return nil, p.errorf(p.cur().pos, "expected an indented block")
	}
	p.advance()

	var body []Stmt
	for p.peek() != OUTDENT && p.peek() != EOF {
		if p.peek() == NEWLINE {
			p.advance()
			continue
		}
		stmts, err := p.parseStmt()
		if err != nil {
			return nil, err
		}
		body = append(body, stmts...)
	}
	if p.peek() == OUTDENT {
		p.advance()
	}
	return body, nil
}

func (p *parser) parseIf() (Stmt, error) {
	s := &IfStmt{IfPos: p.advance().pos}
	cond, err := p.parseTest()
	if err != nil {
		return nil, err
	}
	s.Cond = cond
	if s.Body, err = p.parseSuite(); err != nil {
		return nil, err
	}

	switch p.peek() {
	case ELIF:
		elif, err := p.parseIf()
		if err != nil {
			return nil, err
		}
		s.Else = []Stmt{elif}
	case ELSE:
		p.advance()
		if s.Else, err = p.parseSuite(); err != nil {
			return nil, err
		}
	}
	return s, nil
}

func (p *parser) parseWhile() (Stmt, error) {
	s := &WhileStmt{WhilePos: p.advance().pos}
	cond, err := p.parseTest()
	if err != nil {
		return nil, err
	}
	s.Cond = cond
	if s.Body, err = p.parseSuite(); err != nil {
		return nil, err
	}
	if p.peek() == ELSE {
		p.advance()
		if s.Else, err = p.parseSuite(); err != nil {
			return nil, err
		}
	}
	return s, nil
}

func (p *parser) parseFor() (Stmt, error) {
	s := &ForStmt{ForPos: p.advance().pos}
	target, err := p.parseTargetList()
	if err != nil {
		return nil, err
	}
	if err := checkTarget(target, true); err != nil {
		return nil, err
	}
	s.Target = target
	if _, err := p.expect(IN); err != nil {
		return nil, err
	}
	if s.Iter, err = p.parseTestList(); err != nil {
		return nil, err
	}
	if s.Body, err = p.parseSuite(); err != nil {
		return nil, err
	}
	if p.peek() == ELSE {
		p.advance()
		if s.Else, err = p.parseSuite(); err != nil {
			return nil, err
		}
	}
	return s, nil
}

// parseTargetList for 循环目标，in 不能作为比较运算符
func (p *parser) parseTargetList() (Expr, error) {
	first, err := p.parseBitOr()
	if err != nil {
		return nil, err
	}
	if p.peek() != COMMA {
		return first, nil
	}
	t := &TupleExpr{Lparen: first.Span(), Elems: []Expr{first}}
	for p.peek() == COMMA {
		p.advance()
		if p.peek() == IN {
			break
		}
		e, err := p.parseBitOr()
		if err != nil {
			return nil, err
		}
		t.Elems = append(t.Elems, e)
	}
	return t, nil
}

func (p *parser) parseWith() (Stmt, error) {
	s := &WithStmt{WithPos: p.advance().pos}
	for {
		ctx, err := p.parseTest()
		if err != nil {
			return nil, err
		}
		item := &WithItem{Context: ctx}
		if p.peek() == AS {
			p.advance()
			target, err := p.parseBitOr()
			if err != nil {
				return nil, err
			}
			if err := checkTarget(target, true); err != nil {
				return nil, err
			}
			item.Target = target
		}
		s.Items = append(s.Items, item)
		if p.peek() != COMMA {
			break
		}
		p.advance()
	}
	body, err := p.parseSuite()
	if err != nil {
		return nil, err
	}
	s.Body = body
	return s, nil
}

func (p *parser) parseDef() (Stmt, error) {
	s := &DefStmt{DefPos: p.advance().pos}
	name, err := p.expect(IDENT)
	if err != nil {
		return nil, err
	}
	s.Name = name.raw
	if _, err := p.expect(LPAREN); err != nil {
		return nil, err
	}

	seen := make(map[string]bool)
	seenDefault := false
	for p.peek() != RPAREN {
		if p.peek() == STAR || p.peek() == STARSTAR {
			return nil, p.errorf(p.cur().pos, "unsupported syntax: variadic parameters")
		}
		tv, err := p.expect(IDENT)
		if err != nil {
			return nil, err
		}
		if seen[tv.raw] {
			return nil, p.errorf(tv.pos, "duplicate argument %q in function definition", tv.raw)
		}
		seen[tv.raw] = true
		if p.peek() == COLON {
			return nil, p.errorf(p.cur().pos, "unsupported syntax: annotations")
		}
		param := &Param{NamePos: tv.pos, Name: tv.raw}
		if p.peek() == EQ {
			p.advance()
			if param.Default, err = p.parseTest(); err != nil {
				return nil, err
			}
			seenDefault = true
		} else if seenDefault {
			return nil, p.errorf(tv.pos, "non-default argument follows default argument")
		}
		s.Params = append(s.Params, param)
		if p.peek() != COMMA {
			break
		}
		p.advance()
	}
	if _, err := p.expect(RPAREN); err != nil {
		return nil, err
	}
	if p.peek() == ARROW {
		return nil, p.errorf(p.cur().pos, "unsupported syntax: annotations")
	}
	if s.Body, err = p.parseSuite(); err != nil {
		return nil, err
	}
	return s, nil
}

// ============================================================
// 表达式
// ============================================================

// parseTestList test (',' test)* [','] ，含逗号时构成元组
func (p *parser) parseTestList() (Expr, error) {
	first, err := p.parseTest()
	if err != nil {
		return nil, err
	}
	if p.peek() != COMMA {
		return first, nil
	}
	t := &TupleExpr{Lparen: first.Span(), Elems: []Expr{first}}
	for p.peek() == COMMA {
		p.advance()
		if !startsExpr(p.peek()) {
			break
		}
		e, err := p.parseTest()
		if err != nil {
			return nil, err
		}
		t.Elems = append(t.Elems, e)
	}
	return t, nil
}

func startsExpr(tok Token) bool {
	switch tok {
	case IDENT, INT, FLOAT, STRING, FSTRING, TRUE, FALSE, NONE,
		LPAREN, LBRACK, LBRACE, MINUS, PLUS, TILDE, NOT, RESERVED:
		return true
	}
	return false
}

// parseTest or_test ['if' or_test 'else' test]
func (p *parser) parseTest() (Expr, error) {
	if err := p.enter(); err != nil {
		return nil, err
	}
	defer p.leave()

	if p.peek() == RESERVED {
		return nil, p.unexpected()
	}
	x, err := p.parseOr()
	if err != nil {
		return nil, err
	}
	if p.peek() != IF {
		return x, nil
	}
	ifPos := p.advance().pos
	cond, err := p.parseOr()
	if err != nil {
		return nil, err
	}
	if _, err := p.expect(ELSE); err != nil {
		return nil, err
	}
	els, err := p.parseTest()
	if err != nil {
		return nil, err
	}
	return &CondExpr{Then: x, If: ifPos, Cond: cond, Else: els}, nil
}

func (p *parser) parseOr() (Expr, error) {
	x, err := p.parseAnd()
	if err != nil {
		return nil, err
	}
	for p.peek() == OR {
		pos := p.advance().pos
		y, err := p.parseAnd()
		if err != nil {
			return nil, err
		}
		x = &BinaryExpr{X: x, OpPos: pos, Op: OR, Y: y}
	}
	return x, nil
}

func (p *parser) parseAnd() (Expr, error) {
	x, err := p.parseNot()
	if err != nil {
		return nil, err
	}
	for p.peek() == AND {
		pos := p.advance().pos
		y, err := p.parseNot()
		if err != nil {
			return nil, err
		}
		x = &BinaryExpr{X: x, OpPos: pos, Op: AND, Y: y}
	}
	return x, nil
}

func (p *parser) parseNot() (Expr, error) {
	if p.peek() != NOT {
		return p.parseComparison()
	}
	pos := p.advance().pos
	if err := p.enter(); err != nil {
		return nil, err
	}
	defer p.leave()
	x, err := p.parseNot()
	if err != nil {
		return nil, err
	}
	return &UnaryExpr{OpPos: pos, Op: NOT, X: x}, nil
}

func (p *parser) comparisonOp() (Token, Position, bool) {
	tv := p.cur()
	switch tv.tok {
	case LT, GT, LE, GE, EQL, NEQ, IN:
		p.advance()
		return tv.tok, tv.pos, true
	case NOT:
		if p.peekN(1) == IN {
			p.advance()
			p.advance()
			return NOT_IN, tv.pos, true
		}
	case IS:
		p.advance()
		if p.peek() == NOT {
			p.advance()
			return IS_NOT, tv.pos, true
		}
		return IS, tv.pos, true
	}
	return ILLEGAL, tv.pos, false
}

// parseComparison 不支持链式比较 a < b < c
func (p *parser) parseComparison() (Expr, error) {
	x, err := p.parseBitOr()
	if err != nil {
		return nil, err
	}
	op, pos, ok := p.comparisonOp()
	if !ok {
		return x, nil
	}
	y, err := p.parseBitOr()
	if err != nil {
		return nil, err
	}
	if _, nextPos, chained := p.comparisonOp(); chained {
		return nil, p.errorf(nextPos, "unsupported syntax: chained comparison")
	}
	return &BinaryExpr{X: x, OpPos: pos, Op: op, Y: y}, nil
}

// binaryLevels 由低到高的二元运算优先级
var binaryLevels = [][]Token{
	{PIPE},
	{CIRCUMFLEX},
	{AMP},
	{LTLT, GTGT},
	{PLUS, MINUS},
	{STAR, SLASH, SLASHSLASH, PERCENT},
}

func (p *parser) parseBitOr() (Expr, error) {
	return p.parseBinary(0)
}

func (p *parser) parseBinary(level int) (Expr, error) {
	if level == len(binaryLevels) {
		return p.parseFactor()
	}
	x, err := p.parseBinary(level + 1)
	if err != nil {
		return nil, err
	}
	for containsToken(binaryLevels[level], p.peek()) {
		tv := p.advance()
		y, err := p.parseBinary(level + 1)
		if err != nil {
			return nil, err
		}
		x = &BinaryExpr{X: x, OpPos: tv.pos, Op: tv.tok, Y: y}
	}
	return x, nil
}

func containsToken(list []Token, tok Token) bool {
	for _, t := range list {
		if t == tok {
			return true
		}
	}
	return false
}

// parseFactor ('+'|'-'|'~') factor | power
func (p *parser) parseFactor() (Expr, error) {
	switch p.peek() {
	case PLUS, MINUS, TILDE:
		tv := p.advance()
		if err := p.enter(); err != nil {
			return nil, err
		}
		defer p.leave()
		x, err := p.parseFactor()
		if err != nil {
			return nil, err
		}
		return &UnaryExpr{OpPos: tv.pos, Op: tv.tok, X: x}, nil
	}
	return p.parsePower()
}

// parsePower primary ['**' factor]，右结合
func (p *parser) parsePower() (Expr, error) {
	x, err := p.parsePrimary()
	if err != nil {
		return nil, err
	}
	if p.peek() != STARSTAR {
		return x, nil
	}
	pos := p.advance().pos
	y, err := p.parseFactor()
	if err != nil {
		return nil, err
	}
	return &BinaryExpr{X: x, OpPos: pos, Op: STARSTAR, Y: y}, nil
}

func (p *parser) parsePrimary() (Expr, error) {
	x, err := p.parseAtom()
	if err != nil {
		return nil, err
	}
	for {
		switch p.peek() {
		case DOT:
			p.advance()
			tv, err := p.expect(IDENT)
			if err != nil {
				return nil, err
			}
			x = &AttributeExpr{X: x, NamePos: tv.pos, Name: tv.raw}
		case LPAREN:
			if x, err = p.parseCall(x); err != nil {
				return nil, err
			}
		case LBRACK:
			if x, err = p.parseSubscript(x); err != nil {
				return nil, err
			}
		default:
			return x, nil
		}
	}
}

func (p *parser) parseCall(fn Expr) (Expr, error) {
	call := &CallExpr{Fn: fn, Lparen: p.advance().pos}
	if err := p.enter(); err != nil {
		return nil, err
	}
	defer p.leave()

	seen := make(map[string]bool)
	for p.peek() != RPAREN {
		if p.peek() == STAR || p.peek() == STARSTAR {
			return nil, p.errorf(p.cur().pos, "unsupported syntax: argument unpacking")
		}
		if p.peek() == IDENT && p.peekN(1) == EQ {
			name := p.advance()
			p.advance()
			v, err := p.parseTest()
			if err != nil {
				return nil, err
			}
			if seen[name.raw] {
				return nil, p.errorf(name.pos, "keyword argument repeated: %s", name.raw)
			}
			seen[name.raw] = true
			call.Keywords = append(call.Keywords, &Keyword{NamePos: name.pos, Name: name.raw, Value: v})
		} else {
			if len(call.Keywords) > 0 {
				return nil, p.errorf(p.cur().pos, "positional argument follows keyword argument")
			}
			v, err := p.parseTest()
			if err != nil {
				return nil, err
			}
			if p.peek() == FOR {
				if len(call.Args) > 0 {
					return nil, p.errorf(p.cur().pos, "generator expression must be parenthesized")
				}
				if v, err = p.parseComprehension(v.Span(), LPAREN, nil, v); err != nil {
					return nil, err
				}
				if p.peek() != RPAREN {
					return nil, p.errorf(p.cur().pos, "generator expression must be parenthesized")
				}
			}
			call.Args = append(call.Args, v)
		}
		if p.peek() != COMMA {
			break
		}
		p.advance()
	}
	if _, err := p.expect(RPAREN); err != nil {
		return nil, err
	}
	return call, nil
}

func (p *parser) parseSubscript(x Expr) (Expr, error) {
	lbrack := p.advance().pos
	if err := p.enter(); err != nil {
		return nil, err
	}
	defer p.leave()

	var lo Expr
	var err error
	if p.peek() != COLON {
		if lo, err = p.parseTestList(); err != nil {
			return nil, err
		}
		if p.peek() == RBRACK {
			p.advance()
			return &IndexExpr{X: x, Lbrack: lbrack, Index: lo}, nil
		}
	}

	s := &SliceExpr{X: x, Lbrack: lbrack, Lo: lo}
	if _, err := p.expect(COLON); err != nil {
		return nil, err
	}
	if p.peek() != COLON && p.peek() != RBRACK {
		if s.Hi, err = p.parseTest(); err != nil {
			return nil, err
		}
	}
	if p.peek() == COLON {
		p.advance()
		if p.peek() != RBRACK {
			if s.Step, err = p.parseTest(); err != nil {
				return nil, err
			}
		}
	}
	if _, err := p.expect(RBRACK); err != nil {
		return nil, err
	}
	return s, nil
}

func (p *parser) parseAtom() (Expr, error) {
	tv := p.cur()
	switch tv.tok {
	case IDENT:
		p.advance()
		return &Ident{NamePos: tv.pos, Name: tv.raw}, nil
	case INT:
		p.advance()
		return &Literal{ValuePos: tv.pos, Token: INT, Raw: tv.raw, Value: tv.i}, nil
	case FLOAT:
		p.advance()
		return &Literal{ValuePos: tv.pos, Token: FLOAT, Raw: tv.raw, Value: tv.f}, nil
	case STRING, FSTRING:
		return p.parseStrings()
	case TRUE:
		p.advance()
		return &Literal{ValuePos: tv.pos, Token: TRUE, Raw: tv.raw, Value: true}, nil
	case FALSE:
		p.advance()
		return &Literal{ValuePos: tv.pos, Token: FALSE, Raw: tv.raw, Value: false}, nil
	case NONE:
		p.advance()
		return &Literal{ValuePos: tv.pos, Token: NONE, Raw: tv.raw}, nil
	case LPAREN:
		return p.parseParen()
	case LBRACK:
		return p.parseList()
	case LBRACE:
		return p.parseDict()
	}
	return nil, p.unexpected()
}

func (p *parser) parseParen() (Expr, error) {
	lparen := p.advance().pos
	if err := p.enter(); err != nil {
		return nil, err
	}
	defer p.leave()

	if p.peek() == RPAREN {
		p.advance()
		return &TupleExpr{Lparen: lparen}, nil
	}
	first, err := p.parseTest()
	if err != nil {
		return nil, err
	}
	if p.peek() == FOR {
		comp, err := p.parseComprehension(lparen, LPAREN, nil, first)
		if err != nil {
			return nil, err
		}
		if _, err := p.expect(RPAREN); err != nil {
			return nil, err
		}
		return comp, nil
	}
	if p.peek() == RPAREN {
		p.advance()
		return first, nil
	}

	t := &TupleExpr{Lparen: lparen, Elems: []Expr{first}}
	for p.peek() == COMMA {
		p.advance()
		if p.peek() == RPAREN {
			break
		}
		e, err := p.parseTest()
		if err != nil {
			return nil, err
		}
		t.Elems = append(t.Elems, e)
	}
	if _, err := p.expect(RPAREN); err != nil {
		return nil, err
	}
	return t, nil
}

func (p *parser) parseList() (Expr, error) {
	l := &ListExpr{Lbrack: p.advance().pos}
	if err := p.enter(); err != nil {
		return nil, err
	}
	defer p.leave()

	for p.peek() != RBRACK {
		if p.peek() == STAR {
			return nil, p.errorf(p.cur().pos, "unsupported syntax: iterable unpacking")
		}
		e, err := p.parseTest()
		if err != nil {
			return nil, err
		}
		if p.peek() == FOR && len(l.Elems) == 0 {
			comp, err := p.parseComprehension(l.Lbrack, LBRACK, nil, e)
			if err != nil {
				return nil, err
			}
			if _, err := p.expect(RBRACK); err != nil {
				return nil, err
			}
			return comp, nil
		}
		l.Elems = append(l.Elems, e)
		if p.peek() != COMMA {
			break
		}
		p.advance()
	}
	if _, err := p.expect(RBRACK); err != nil {
		return nil, err
	}
	return l, nil
}

func (p *parser) parseDict() (Expr, error) {
	d := &DictExpr{Lbrace: p.advance().pos}
	if err := p.enter(); err != nil {
		return nil, err
	}
	defer p.leave()

	for p.peek() != RBRACE {
		if p.peek() == STARSTAR {
			return nil, p.errorf(p.cur().pos, "unsupported syntax: dict unpacking")
		}
		k, err := p.parseTest()
		if err != nil {
			return nil, err
		}
		if p.peek() != COLON {
			return nil, p.errorf(p.cur().pos, "unsupported syntax: set literal")
		}
		p.advance()
		v, err := p.parseTest()
		if err != nil {
			return nil, err
		}
		if p.peek() == FOR && len(d.Entries) == 0 {
			comp, err := p.parseComprehension(d.Lbrace, LBRACE, k, v)
			if err != nil {
				return nil, err
			}
			if _, err := p.expect(RBRACE); err != nil {
				return nil, err
			}
			return comp, nil
		}
		d.Entries = append(d.Entries, &DictEntry{Key: k, Value: v})
		if p.peek() != COMMA {
			break
		}
		p.advance()
	}
	if _, err := p.expect(RBRACE); err != nil {
		return nil, err
	}
	return d, nil
}

// parseComprehension 解析结果表达式之后的 for / if 子句
func (p *parser) parseComprehension(open Position, kind Token, key, elem Expr) (*Comprehension, error) {
	comp := &Comprehension{Lbrack: open, Kind: kind, Key: key, Elem: elem}
	for p.peek() == FOR {
		clause := &CompClause{ForPos: p.advance().pos}
		target, err := p.parseTargetList()
		if err != nil {
			return nil, err
		}
		if err := checkTarget(target, true); err != nil {
			return nil, err
		}
		clause.Target = target
		if _, err := p.expect(IN); err != nil {
			return nil, err
		}
		if clause.Iter, err = p.parseOr(); err != nil {
			return nil, err
		}
		for p.peek() == IF {
			p.advance()
			cond, err := p.parseOr()
			if err != nil {
				return nil, err
			}
			clause.Conds = append(clause.Conds, cond)
		}
		comp.Clauses = append(comp.Clauses, clause)
	}
	return comp, nil
}

// parseStrings 拼接相邻的字符串字面量，含 f-string 时得到 FStringExpr
func (p *parser) parseStrings() (Expr, error) {
	start := p.cur().pos
	var parts []*FStringPart
	var lit strings.Builder
	formatted := false
	for p.peek() == STRING || p.peek() == FSTRING {
		tv := p.advance()
		if tv.tok == STRING {
			lit.WriteString(tv.str)
			continue
		}
		formatted = true
		for _, fp := range tv.parts {
			if fp.expr == "" {
				lit.WriteString(fp.lit)
				continue
			}
			if lit.Len() > 0 {
				parts = append(parts, &FStringPart{Lit: lit.String()})
				lit.Reset()
			}
			x, err := p.parseField(fp.expr, tv.pos)
			if err != nil {
				return nil, err
			}
			parts = append(parts, &FStringPart{X: x, Conv: fp.conv})
		}
	}
	if !formatted {
		s := lit.String()
		return &Literal{ValuePos: start, Token: STRING, Raw: s, Value: s}, nil
	}
	if lit.Len() > 0 {
		parts = append(parts, &FStringPart{Lit: lit.String()})
	}
	return &FStringExpr{ValuePos: start, Parts: parts}, nil
}

// parseField 解析 f-string 替换字段。字段内的位置统一记为字符串字面量的位置。
func (p *parser) parseField(src string, pos Position) (Expr, error) {
	toks, err := tokenize("(" + src + ")")
	if err != nil {
		var se *SyntaxError
		if errors.As(err, &se) {
			se.Pos = pos
		}
		return nil, err
	}
	for i := range toks {
		toks[i].pos = pos
	}
	sub := &parser{toks: toks, depth: p.depth}
	x, err := sub.parseTest()
	if err != nil {
		return nil, err
	}
	for sub.peek() == NEWLINE {
		sub.advance()
	}
	if sub.peek() != EOF {
		return nil, sub.unexpected()
	}
	return x, nil
}

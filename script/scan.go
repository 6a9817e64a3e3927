package script

import (
	"fmt"
	"strconv"
	"strings"
	"unicode"
	"unicode/utf8"
)

// tokenValue 词法单元及其字面值
type tokenValue struct {
	tok Token
	pos Position
	raw string  // 标识符名或字面量原文
	str string  // 解码后的字符串值
	i   int64   // INT
	f   float64 // FLOAT

	parts []fstringPart // FSTRING
}

// fstringPart f-string 中的一段：字面文本，或 {expr} 的表达式源码
type fstringPart struct {
	lit  string
	expr string
	conv byte // 'r'、's' 或 0
}

// lexer 将源码切分为带缩进信息的词法单元序列
type lexer struct {
	src         string
	off         int
	line, col   int
	depth       int // 括号嵌套深度，>0 时忽略换行与缩进
	indents     []int
	atLineStart bool
	lineHasTok  bool
	tokens      []tokenValue
}

// tokenize 对完整源码做词法分析
func tokenize(src string) ([]tokenValue, error) {
	lx := &lexer{
		src:         src,
		line:        1,
		col:         1,
		indents:     []int{0},
		atLineStart: true,
	}
	if err := lx.run(); err != nil {
		return nil, err
	}
	return lx.tokens, nil
}

func (lx *lexer) errorf(pos Position, format string, args ...any) error {
	return &SyntaxError{Pos: pos, Msg: fmt.Sprintf(format, args...)}
}

func (lx *lexer) position() Position { return Position{Line: lx.line, Col: lx.col} }

func (lx *lexer) eof() bool { return lx.off >= len(lx.src) }

func (lx *lexer) peek() rune {
	if lx.eof() {
		return 0
	}
	r, _ := utf8.DecodeRuneInString(lx.src[lx.off:])
	return r
}

func (lx *lexer) peekAt(n int) byte {
	if lx.off+n >= len(lx.src) {
		return 0
	}
	return lx.src[lx.off+n]
}

func (lx *lexer) next() rune {
	if lx.eof() {
		return 0
	}
	r, size := utf8.DecodeRuneInString(lx.src[lx.off:])
	lx.off += size
	if r == '\n' {
		lx.line++
		lx.col = 1
	} else {
		lx.col++
	}
	return r
}

func (lx *lexer) emit(tv tokenValue) {
	lx.tokens = append(lx.tokens, tv)
	lx.lineHasTok = true
}

func (lx *lexer) run() error {
	for {
		if lx.atLineStart && lx.depth == 0 {
			done, err := lx.indentation()
			if err != nil {
				return err
			}
			if done {
				break
			}
			continue
		}

		lx.skipSpace()
		if lx.eof() {
			break
		}
		pos := lx.position()
		c := lx.peek()

		switch {
		case c == '#':
			for !lx.eof() && lx.peek() != '\n' && lx.peek() != '\r' {
				lx.next()
			}
		case c == '\\':
			lx.next()
			if lx.peek() == '\r' {
				lx.next()
			}
			if lx.peek() != '\n' {
				return lx.errorf(pos, "unexpected character after line continuation character")
			}
			lx.next()
		case c == '\n' || c == '\r':
			lx.next()
			if c == '\r' && lx.peek() == '\n' {
				lx.next()
			}
			if lx.depth == 0 {
				if lx.lineHasTok {
					lx.tokens = append(lx.tokens, tokenValue{tok: NEWLINE, pos: pos})
				}
				lx.lineHasTok = false
				lx.atLineStart = true
			}
		case isIdentStart(c):
			if err := lx.identOrString(pos); err != nil {
				return err
			}
		case isDigit(c) || (c == '.' && isDigit(rune(lx.peekAt(1)))):
			if err := lx.number(pos); err != nil {
				return err
			}
		case c == '"' || c == '\'':
			s, err := lx.stringLit(pos, false)
			if err != nil {
				return err
			}
			lx.emit(tokenValue{tok: STRING, pos: pos, raw: s, str: s})
		default:
			if err := lx.operator(pos); err != nil {
				return err
			}
		}
	}

	if lx.depth > 0 {
		return lx.errorf(lx.position(), "unexpected end of file: unclosed bracket")
	}
	end := lx.position()
	if lx.lineHasTok {
		lx.tokens = append(lx.tokens, tokenValue{tok: NEWLINE, pos: end})
	}
	for len(lx.indents) > 1 {
		lx.indents = lx.indents[:len(lx.indents)-1]
		lx.tokens = append(lx.tokens, tokenValue{tok: OUTDENT, pos: end})
	}
	lx.tokens = append(lx.tokens, tokenValue{tok: EOF, pos: end})
	return nil
}

// indentation 处理行首缩进，空行与纯注释行不产生任何词法单元
func (lx *lexer) indentation() (bool, error) {
	width := 0
measure:
	for !lx.eof() {
		switch lx.peek() {
		case ' ':
			width++
		case '\t':
			width = (width/8 + 1) * 8
		case '\f':
			width = 0
		default:
			break measure
		}
		lx.next()
	}
	if lx.eof() {
		return true, nil
	}
	switch lx.peek() {
	case '#':
		for !lx.eof() && lx.peek() != '\n' {
			lx.next()
		}
		if !lx.eof() {
			lx.next()
		}
		return false, nil
	case '\n', '\r':
		c := lx.next()
		if c == '\r' && lx.peek() == '\n' {
			lx.next()
		}
		return false, nil
	}

	pos := lx.position()
	cur := lx.indents[len(lx.indents)-1]
	switch {
	case width > cur:
		lx.indents = append(lx.indents, width)
		lx.tokens = append(lx.tokens, tokenValue{tok: INDENT, pos: pos})
	case width < cur:
		for width < lx.indents[len(lx.indents)-1] {
			lx.indents = lx.indents[:len(lx.indents)-1]
			lx.tokens = append(lx.tokens, tokenValue{tok: OUTDENT, pos: pos})
		}
		if width != lx.indents[len(lx.indents)-1] {
			return false, lx.errorf(pos, "unindent does not match any outer indentation level")
		}
	}
	lx.atLineStart = false
	return false, nil
}

func (lx *lexer) skipSpace() {
	for !lx.eof() {
		switch lx.peek() {
		case ' ', '\t', '\f':
			lx.next()
		default:
			return
		}
	}
}

func (lx *lexer) identOrString(pos Position) error {
	start := lx.off
	for !lx.eof() && isIdentPart(lx.peek()) {
		lx.next()
	}
	word := lx.src[start:lx.off]

	if q := lx.peek(); (q == '"' || q == '\'') && isStringPrefix(word) {
		lower := strings.ToLower(word)
		raw := strings.Contains(lower, "r")
		if strings.Contains(lower, "f") {
			if strings.Contains(lower, "b") {
				return lx.errorf(pos, "unsupported syntax: bytes f-string")
			}
			body, err := lx.stringLit(pos, true)
			if err != nil {
				return err
			}
			parts, err := splitFString(body, raw, pos)
			if err != nil {
				return err
			}
			lx.emit(tokenValue{tok: FSTRING, pos: pos, raw: body, parts: parts})
			return nil
		}
		s, err := lx.stringLit(pos, raw)
		if err != nil {
			return err
		}
		lx.emit(tokenValue{tok: STRING, pos: pos, raw: s, str: s})
		return nil
	}

	if tok, ok := keywords[word]; ok {
		lx.emit(tokenValue{tok: tok, pos: pos, raw: word})
		return nil
	}
	if reservedWords[word] {
		lx.emit(tokenValue{tok: RESERVED, pos: pos, raw: word})
		return nil
	}
	lx.emit(tokenValue{tok: IDENT, pos: pos, raw: word})
	return nil
}

func isStringPrefix(word string) bool {
	if len(word) == 0 || len(word) > 2 {
		return false
	}
	for _, c := range strings.ToLower(word) {
		if c != 'r' && c != 'b' && c != 'u' && c != 'f' {
			return false
		}
	}
	return true
}

func (lx *lexer) stringLit(pos Position, raw bool) (string, error) {
	quote := lx.next()
	triple := false
	if lx.peek() == quote && rune(lx.peekAt(1)) == quote {
		lx.next()
		lx.next()
		triple = true
	}

	var sb strings.Builder
	for {
		if lx.eof() {
			return "", lx.errorf(pos, "unterminated string literal")
		}
		c := lx.peek()
		if c == quote {
			if !triple {
				lx.next()
				return sb.String(), nil
			}
			if rune(lx.peekAt(1)) == quote && rune(lx.peekAt(2)) == quote {
				lx.next()
				lx.next()
				lx.next()
				return sb.String(), nil
			}
			sb.WriteRune(lx.next())
			continue
		}
		if (c == '\n' || c == '\r') && !triple {
			return "", lx.errorf(pos, "unterminated string literal")
		}
		if c != '\\' {
			sb.WriteRune(lx.next())
			continue
		}

		lx.next()
		if lx.eof() {
			return "", lx.errorf(pos, "unterminated string literal")
		}
		if raw {
			sb.WriteRune('\\')
			sb.WriteRune(lx.next())
			continue
		}
		if err := lx.escape(&sb, pos); err != nil {
			return "", err
		}
	}
}

// splitFString 将未转义的 f-string 正文拆成字面段与表达式段。
// 不支持格式说明符 {x:>10}。
func splitFString(body string, raw bool, pos Position) ([]fstringPart, error) {
	var parts []fstringPart
	var lit strings.Builder
	flush := func() error {
		if lit.Len() == 0 {
			return nil
		}
		s := lit.String()
		lit.Reset()
		if !raw {
			decoded, err := unescape(s, pos)
			if err != nil {
				return err
			}
			s = decoded
		}
		parts = append(parts, fstringPart{lit: s})
		return nil
	}

	for i := 0; i < len(body); i++ {
		c := body[i]
		switch {
		case c == '}' && i+1 < len(body) && body[i+1] == '}':
			lit.WriteByte('}')
			i++
		case c == '}':
			return nil, &SyntaxError{Pos: pos, Msg: "f-string: single '}' is not allowed"}
		case c == '{' && i+1 < len(body) && body[i+1] == '{':
			lit.WriteByte('{')
			i++
		case c == '{':
			if err := flush(); err != nil {
				return nil, err
			}
			part, n, err := fstringField(body[i+1:], pos)
			if err != nil {
				return nil, err
			}
			parts = append(parts, part)
			i += n
		default:
			lit.WriteByte(c)
		}
	}
	if err := flush(); err != nil {
		return nil, err
	}
	return parts, nil
}

// fstringField 读取 { 之后的替换字段，返回消耗的字节数（含右花括号）
func fstringField(s string, pos Position) (fstringPart, int, error) {
	depth := 0
	var quote byte
	for i := 0; i < len(s); i++ {
		c := s[i]
		if quote != 0 {
			if c == quote {
				quote = 0
			}
			continue
		}
		switch c {
		case '\\':
			return fstringPart{}, 0, &SyntaxError{Pos: pos, Msg: "f-string expression part cannot include a backslash"}
		case '\'', '"':
			quote = c
		case '(', '[', '{':
			depth++
		case ')', ']':
			depth--
		case '}':
			if depth > 0 {
				depth--
				continue
			}
			return newFStringField(s[:i], pos, i+1)
		case ':':
			if depth == 0 {
				return fstringPart{}, 0, &SyntaxError{Pos: pos, Msg: "unsupported syntax: f-string format spec"}
			}
		case '!':
			if depth == 0 && i+1 < len(s) && s[i+1] != '=' {
				if i+2 >= len(s) || s[i+2] != '}' || (s[i+1] != 'r' && s[i+1] != 's') {
					return fstringPart{}, 0, &SyntaxError{Pos: pos, Msg: "f-string: invalid conversion character"}
				}
				part, _, err := newFStringField(s[:i], pos, 0)
				part.conv = s[i+1]
				return part, i + 3, err
			}
		}
	}
	return fstringPart{}, 0, &SyntaxError{Pos: pos, Msg: "f-string: expecting '}'"}
}

func newFStringField(expr string, pos Position, n int) (fstringPart, int, error) {
	expr = strings.TrimSpace(expr)
	if expr == "" {
		return fstringPart{}, 0, &SyntaxError{Pos: pos, Msg: "f-string: empty expression not allowed"}
	}
	if strings.HasSuffix(expr, "=") && !strings.HasSuffix(expr, "==") {
		return fstringPart{}, 0, &SyntaxError{Pos: pos, Msg: "unsupported syntax: f-string self-documenting expression"}
	}
	return fstringPart{expr: expr}, n, nil
}

// unescape 对原样读取的字符串正文做转义处理
func unescape(s string, pos Position) (string, error) {
	sub := &lexer{src: s, line: pos.Line, col: pos.Col}
	var sb strings.Builder
	for !sub.eof() {
		c := sub.next()
		if c != '\\' {
			sb.WriteRune(c)
			continue
		}
		if sub.eof() {
			sb.WriteRune(c)
			break
		}
		if err := sub.escape(&sb, pos); err != nil {
			return "", err
		}
	}
	return sb.String(), nil
}

func (lx *lexer) escape(sb *strings.Builder, pos Position) error {
	c := lx.next()
	switch c {
	case '\n':
		// 续行
	case '\r':
		if lx.peek() == '\n' {
			lx.next()
		}
	case '\\', '\'', '"':
		sb.WriteRune(c)
	case 'n':
		sb.WriteByte('\n')
	case 't':
		sb.WriteByte('\t')
	case 'r':
		sb.WriteByte('\r')
	case 'a':
		sb.WriteByte('\a')
	case 'b':
		sb.WriteByte('\b')
	case 'f':
		sb.WriteByte('\f')
	case 'v':
		sb.WriteByte('\v')
	case '0', '1', '2', '3', '4', '5', '6', '7':
		digits := string(c)
		for len(digits) < 3 && lx.peek() >= '0' && lx.peek() <= '7' {
			digits += string(lx.next())
		}
		n, _ := strconv.ParseUint(digits, 8, 32)
		sb.WriteRune(rune(n))
	case 'x', 'u', 'U':
		width := map[rune]int{'x': 2, 'u': 4, 'U': 8}[c]
		var digits strings.Builder
		for i := 0; i < width; i++ {
			d := lx.peek()
			if !isHexDigit(d) {
				return lx.errorf(pos, "truncated \\%c escape", c)
			}
			digits.WriteRune(lx.next())
		}
		n, err := strconv.ParseUint(digits.String(), 16, 32)
		if err != nil || n > unicode.MaxRune {
			return lx.errorf(pos, "invalid \\%c escape", c)
		}
		sb.WriteRune(rune(n))
	case 'N':
		return lx.errorf(pos, "named unicode escapes are not supported")
	default:
		sb.WriteByte('\\')
		sb.WriteRune(c)
	}
	return nil
}

func (lx *lexer) number(pos Position) error {
	start := lx.off
	isFloat := false

	if lx.peek() == '0' && strings.ContainsRune("xXoObB", rune(lx.peekAt(1))) {
		lx.next()
		lx.next()
		for !lx.eof() && (isHexDigit(lx.peek()) || lx.peek() == '_') {
			lx.next()
		}
	} else {
		lx.digits()
		if lx.peek() == '.' {
			isFloat = true
			lx.next()
			lx.digits()
		}
		if c := lx.peek(); c == 'e' || c == 'E' {
			isFloat = true
			lx.next()
			if c := lx.peek(); c == '+' || c == '-' {
				lx.next()
			}
			if !isDigit(lx.peek()) {
				return lx.errorf(pos, "invalid float literal")
			}
			lx.digits()
		}
	}

	if c := lx.peek(); c == 'j' || c == 'J' {
		return lx.errorf(pos, "complex literals are not supported")
	}
	if isIdentPart(lx.peek()) {
		return lx.errorf(pos, "invalid decimal literal")
	}

	text := lx.src[start:lx.off]
	if isFloat {
		f, err := strconv.ParseFloat(strings.ReplaceAll(text, "_", ""), 64)
		if err != nil {
			return lx.errorf(pos, "invalid float literal %q", text)
		}
		lx.emit(tokenValue{tok: FLOAT, pos: pos, raw: text, f: f})
		return nil
	}

	if len(text) > 1 && text[0] == '0' && isDigit(rune(text[1])) && strings.Trim(text, "0_") != "" {
		return lx.errorf(pos, "leading zeros in decimal integer literals are not permitted")
	}
	n, err := strconv.ParseInt(text, 0, 64)
	if err != nil {
		if numErr, ok := err.(*strconv.NumError); ok && numErr.Err == strconv.ErrRange {
			return lx.errorf(pos, "integer literal too large")
		}
		return lx.errorf(pos, "invalid integer literal %q", text)
	}
	lx.emit(tokenValue{tok: INT, pos: pos, raw: text, i: n})
	return nil
}

func (lx *lexer) digits() {
	for !lx.eof() && (isDigit(lx.peek()) || lx.peek() == '_') {
		lx.next()
	}
}

var threeCharOps = map[string]Token{
	"**=": STARSTAR_EQ,
	"//=": SLASHSLASH_EQ,
	">>=": GTGT_EQ,
	"<<=": LTLT_EQ,
}

var twoCharOps = map[string]Token{
	"**": STARSTAR,
	"//": SLASHSLASH,
	">>": GTGT,
	"<<": LTLT,
	"<=": LE,
	">=": GE,
	"==": EQL,
	"!=": NEQ,
	"->": ARROW,
	"+=": PLUS_EQ,
	"-=": MINUS_EQ,
	"*=": STAR_EQ,
	"/=": SLASH_EQ,
	"%=": PERCENT_EQ,
	"&=": AMP_EQ,
	"|=": PIPE_EQ,
	"^=": CIRCUMFLEX_EQ,
}

var oneCharOps = map[byte]Token{
	'+': PLUS,
	'-': MINUS,
	'*': STAR,
	'/': SLASH,
	'%': PERCENT,
	'&': AMP,
	'|': PIPE,
	'^': CIRCUMFLEX,
	'~': TILDE,
	'.': DOT,
	',': COMMA,
	'=': EQ,
	':': COLON,
	';': SEMI,
	'@': AT,
	'(': LPAREN,
	')': RPAREN,
	'[': LBRACK,
	']': RBRACK,
	'{': LBRACE,
	'}': RBRACE,
	'<': LT,
	'>': GT,
}

func (lx *lexer) operator(pos Position) error {
	rest := lx.src[lx.off:]
	if strings.HasPrefix(rest, "...") {
		return lx.errorf(pos, "ellipsis is not supported")
	}
	if strings.HasPrefix(rest, ":=") {
		return lx.errorf(pos, "assignment expressions are not supported")
	}
	if len(rest) >= 3 {
		if tok, ok := threeCharOps[rest[:3]]; ok {
			lx.advance(3)
			lx.emit(tokenValue{tok: tok, pos: pos, raw: rest[:3]})
			return nil
		}
	}
	if len(rest) >= 2 {
		if tok, ok := twoCharOps[rest[:2]]; ok {
			lx.advance(2)
			lx.emit(tokenValue{tok: tok, pos: pos, raw: rest[:2]})
			return nil
		}
	}
	tok, ok := oneCharOps[rest[0]]
	if !ok {
		return lx.errorf(pos, "unexpected character %q", lx.peek())
	}
	switch tok {
	case LPAREN, LBRACK, LBRACE:
		lx.depth++
	case RPAREN, RBRACK, RBRACE:
		if lx.depth == 0 {
			return lx.errorf(pos, "unmatched %q", rest[:1])
		}
		lx.depth--
	}
	lx.advance(1)
	lx.emit(tokenValue{tok: tok, pos: pos, raw: rest[:1]})
	return nil
}

func (lx *lexer) advance(n int) {
	for i := 0; i < n; i++ {
		lx.next()
	}
}

func isIdentStart(c rune) bool {
	return c == '_' || unicode.IsLetter(c)
}

func isIdentPart(c rune) bool {
	return c == '_' || unicode.IsLetter(c) || unicode.IsDigit(c)
}

func isDigit(c rune) bool { return c >= '0' && c <= '9' }

func isHexDigit(c rune) bool {
	return isDigit(c) || (c >= 'a' && c <= 'f') || (c >= 'A' && c <= 'F')
}

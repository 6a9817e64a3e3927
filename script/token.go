package script

import "fmt"

// Token 词法单元类型
type Token int

const (
	ILLEGAL Token = iota
	EOF

	NEWLINE
	INDENT
	OUTDENT

	// 字面量
	IDENT   // name
	INT     // 123, 0x1f
	FLOAT   // 1.5, 1e3
	STRING  // "abc", 'abc', """abc"""
	FSTRING // f"a{b}"

	// 运算符与分隔符
	PLUS          // +
	MINUS         // -
	STAR          // *
	SLASH         // /
	SLASHSLASH    // //
	PERCENT       // %
	STARSTAR      // **
	GTGT          // >>
	LTLT          // <<
	AMP           // &
	PIPE          // |
	CIRCUMFLEX    // ^
	TILDE         // ~
	DOT           // .
	COMMA         // ,
	EQ            // =
	COLON         // :
	SEMI          // ;
	AT            // @
	ARROW         // ->
	LPAREN        // (
	RPAREN        // )
	LBRACK        // [
	RBRACK        // ]
	LBRACE        // {
	RBRACE        // }
	LT            // <
	GT            // >
	GE            // >=
	LE            // <=
	EQL           // ==
	NEQ           // !=
	PLUS_EQ       // +=
	MINUS_EQ      // -=
	STAR_EQ       // *=
	SLASH_EQ      // /=
	SLASHSLASH_EQ // //=
	PERCENT_EQ    // %=
	STARSTAR_EQ   // **=
	GTGT_EQ       // >>=
	LTLT_EQ       // <<=
	AMP_EQ        // &=
	PIPE_EQ       // |=
	CIRCUMFLEX_EQ // ^=

	// 关键字
	AND
	AS
	BREAK
	CONTINUE
	DEF
	ELIF
	ELSE
	FALSE
	FOR
	FROM
	IF
	IMPORT
	IN
	IS
	NONE
	NOT
	OR
	PASS
	RETURN
	TRUE
	WHILE
	WITH

	// RESERVED 语言保留但当前子集不支持的关键字（class、lambda、try ...）
	RESERVED

	// 仅出现在 AST 中的组合运算符
	NOT_IN
	IS_NOT
)

var tokenNames = [...]string{
	ILLEGAL:       "illegal token",
	EOF:           "end of file",
	NEWLINE:       "newline",
	INDENT:        "indent",
	OUTDENT:       "outdent",
	IDENT:         "identifier",
	INT:           "int literal",
	FLOAT:         "float literal",
	STRING:        "string literal",
	FSTRING:       "f-string literal",
	PLUS:          "+",
	MINUS:         "-",
	STAR:          "*",
	SLASH:         "/",
	SLASHSLASH:    "//",
	PERCENT:       "%",
	STARSTAR:      "**",
	GTGT:          ">>",
	LTLT:          "<<",
	AMP:           "&",
	PIPE:          "|",
	CIRCUMFLEX:    "^",
	TILDE:         "~",
	DOT:           ".",
	COMMA:         ",",
	EQ:            "=",
	COLON:         ":",
	SEMI:          ";",
	AT:            "@",
	ARROW:         "->",
	LPAREN:        "(",
	RPAREN:        ")",
	LBRACK:        "[",
	RBRACK:        "]",
	LBRACE:        "{",
	RBRACE:        "}",
	LT:            "<",
	GT:            ">",
	GE:            ">=",
	LE:            "<=",
	EQL:           "==",
	NEQ:           "!=",
	PLUS_EQ:       "+=",
	MINUS_EQ:      "-=",
	STAR_EQ:       "*=",
	SLASH_EQ:      "/=",
	SLASHSLASH_EQ: "//=",
	PERCENT_EQ:    "%=",
	STARSTAR_EQ:   "**=",
	GTGT_EQ:       ">>=",
	LTLT_EQ:       "<<=",
	AMP_EQ:        "&=",
	PIPE_EQ:       "|=",
	CIRCUMFLEX_EQ: "^=",
	AND:           "and",
	AS:            "as",
	BREAK:         "break",
	CONTINUE:      "continue",
	DEF:           "def",
	ELIF:          "elif",
	ELSE:          "else",
	FALSE:         "False",
	FOR:           "for",
	FROM:          "from",
	IF:            "if",
	IMPORT:        "import",
	IN:            "in",
	IS:            "is",
	NONE:          "None",
	NOT:           "not",
	OR:            "or",
	PASS:          "pass",
	RETURN:        "return",
	TRUE:          "True",
	WHILE:         "while",
	WITH:          "with",
	RESERVED:      "reserved keyword",
	NOT_IN:        "not in",
	IS_NOT:        "is not",
}

func (t Token) String() string {
	if int(t) >= 0 && int(t) < len(tokenNames) && tokenNames[t] != "" {
		return tokenNames[t]
	}
	return fmt.Sprintf("token(%d)", int(t))
}

var keywords = map[string]Token{
	"and":      AND,
	"as":       AS,
	"break":    BREAK,
	"continue": CONTINUE,
	"def":      DEF,
	"elif":     ELIF,
	"else":     ELSE,
	"False":    FALSE,
	"for":      FOR,
	"from":     FROM,
	"if":       IF,
	"import":   IMPORT,
	"in":       IN,
	"is":       IS,
	"None":     NONE,
	"not":      NOT,
	"or":       OR,
	"pass":     PASS,
	"return":   RETURN,
	"True":     TRUE,
	"while":    WHILE,
	"with":     WITH,
}

// reservedWords 语法合法但不在支持子集内的关键字，解析时一律报错
var reservedWords = map[string]bool{
	"assert":   true,
	"async":    true,
	"await":    true,
	"class":    true,
	"del":      true,
	"except":   true,
	"finally":  true,
	"global":   true,
	"lambda":   true,
	"nonlocal": true,
	"raise":    true,
	"try":      true,
	"yield":    true,
}

// augmentedOps 复合赋值运算符到二元运算符的映射
var augmentedOps = map[Token]Token{
	PLUS_EQ:       PLUS,
	MINUS_EQ:      MINUS,
	STAR_EQ:       STAR,
	SLASH_EQ:      SLASH,
	SLASHSLASH_EQ: SLASHSLASH,
	PERCENT_EQ:    PERCENT,
	STARSTAR_EQ:   STARSTAR,
	GTGT_EQ:       GTGT,
	LTLT_EQ:       LTLT,
	AMP_EQ:        AMP,
	PIPE_EQ:       PIPE,
	CIRCUMFLEX_EQ: CIRCUMFLEX,
}

// Position 源码位置，行列均从 1 开始
type Position struct {
	Line int
	Col  int
}

// IsValid 位置是否有效
func (p Position) IsValid() bool { return p.Line > 0 }

func (p Position) String() string {
	return fmt.Sprintf("%d:%d", p.Line, p.Col)
}

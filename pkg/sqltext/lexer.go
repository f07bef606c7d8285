package sqltext

import (
	"strings"

	"github.com/alecthomas/participle/v2/lexer"
	"github.com/pkg/errors"
)

// sqlLexer tokenizes SQL just well enough to find placeholders, statement
// boundaries and leading keywords without being fooled by literals or
// comments. Rule order matters: the first matching rule wins.
var sqlLexer = lexer.MustSimple([]lexer.SimpleRule{
	{Name: "Comment", Pattern: `--[^\r\n]*`},
	{Name: "MultilineComment", Pattern: `/\*[^*]*\*+([^/*][^*]*\*+)*/`},
	{Name: "String", Pattern: `'([^'\\]|\\.|'')*'`},
	{Name: "DollarQuote", Pattern: `\$([A-Za-z_][A-Za-z0-9_]*)?\$`},
	{Name: "QuotedIdent", Pattern: `"([^"]|"")*"`},
	{Name: "BacktickIdent", Pattern: "`([^`\\\\]|\\\\.)*`"},
	{Name: "NamedParam", Pattern: `%\([A-Za-z_][A-Za-z0-9_]*\)s`},
	{Name: "PositionalParam", Pattern: `%s`},
	{Name: "Percent", Pattern: `%%`},
	{Name: "Number", Pattern: `\d+(\.\d*)?`},
	{Name: "Ident", Pattern: `[a-zA-Z_][a-zA-Z0-9_]*`},
	{Name: "Semicolon", Pattern: `;`},
	{Name: "Whitespace", Pattern: `\s+`},
	{Name: "Punct", Pattern: `[^\s]`},
})

var (
	tokComment          = sqlLexer.Symbols()["Comment"]
	tokMultilineComment = sqlLexer.Symbols()["MultilineComment"]
	tokString           = sqlLexer.Symbols()["String"]
	tokDollarQuote      = sqlLexer.Symbols()["DollarQuote"]
	tokNamedParam       = sqlLexer.Symbols()["NamedParam"]
	tokPositionalParam  = sqlLexer.Symbols()["PositionalParam"]
	tokPercent          = sqlLexer.Symbols()["Percent"]
	tokIdent            = sqlLexer.Symbols()["Ident"]
	tokSemicolon        = sqlLexer.Symbols()["Semicolon"]
	tokWhitespace       = sqlLexer.Symbols()["Whitespace"]
	tokPunct            = sqlLexer.Symbols()["Punct"]
)

// tokenize returns every token in sql, including whitespace and comments, so
// that concatenating the token values reproduces the input exactly.
//
// Dollar-quoted bodies ($$...$$ or $tag$...$tag$) come back as a single
// DollarQuote token. The closing tag has to match the opening one, which a
// regular expression can't express, so the lexer only finds the opening tag
// and the body is located by hand before lexing resumes after it.
func tokenize(sql string) ([]lexer.Token, error) {
	var (
		tokens []lexer.Token
		offset int
	)

	for {
		lex, err := sqlLexer.LexString("", sql[offset:])
		if err != nil {
			return nil, errors.Wrap(err, "failed to lex SQL")
		}

		resume := -1
		for resume < 0 {
			tok, err := lex.Next()
			if err != nil {
				return nil, errors.Wrap(err, "failed to lex SQL")
			}

			if tok.EOF() {
				return tokens, nil
			}

			tok.Pos.Offset += offset
			if tok.Type == tokDollarQuote {
				end := dollarQuoteEnd(sql, tok.Pos.Offset, tok.Value)
				tok.Value = sql[tok.Pos.Offset:end]
				resume = end
			}

			tokens = append(tokens, tok)
		}

		if resume >= len(sql) {
			return tokens, nil
		}

		offset = resume
	}
}

// dollarQuoteEnd returns the offset just past the tag closing the body that
// opens at start. An unterminated body runs to the end of sql.
func dollarQuoteEnd(sql string, start int, tag string) int {
	body := start + len(tag)
	idx := strings.Index(sql[body:], tag)
	if idx < 0 {
		return len(sql)
	}

	return body + idx + len(tag)
}

func isTrivia(tok lexer.Token) bool {
	return tok.Type == tokWhitespace || tok.Type == tokComment || tok.Type == tokMultilineComment
}

func keyword(tok lexer.Token) string {
	if tok.Type != tokIdent {
		return ""
	}

	return strings.ToUpper(tok.Value)
}

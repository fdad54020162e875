// Package stylesheet extracts the few facts audits need from CSS text.
package stylesheet

import (
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/tdewolff/parse/v2"
	"github.com/tdewolff/parse/v2/css"
)

// FontFace summarises one @font-face rule.
type FontFace struct {
	Name      string `json:"name"`
	HasSubset bool   `json:"hasSubset"`
}

// FontFaces returns the @font-face rules in text, including those nested in
// conditional at-rules. Rules without a font-family are ignored, and when a
// rule repeats font-family the last declaration names it. On a parse
// error the faces found so far are returned with the error.
func FontFaces(text string) ([]FontFace, error) {
	p := css.NewParser(parse.NewInputString(text), false)

	var (
		faces   []FontFace
		stack   []bool
		current FontFace
	)
	inFace := func() bool { return len(stack) > 0 && stack[len(stack)-1] }

	for {
		gt, _, data := p.Next()
		switch gt {
		case css.ErrorGrammar:
			if err := p.Err(); err != nil && err != io.EOF {
				return faces, fmt.Errorf("failed to parse stylesheet: %w", err)
			}
			return faces, nil
		case css.BeginAtRuleGrammar:
			isFace := strings.EqualFold(string(data), "@font-face")
			stack = append(stack, isFace)
			if isFace {
				current = FontFace{}
			}
		case css.BeginRulesetGrammar:
			stack = append(stack, false)
		case css.EndRulesetGrammar:
			if len(stack) > 0 {
				stack = stack[:len(stack)-1]
			}
		case css.EndAtRuleGrammar:
			if inFace() && current.Name != "" {
				faces = append(faces, current)
			}
			if len(stack) > 0 {
				stack = stack[:len(stack)-1]
			}
		case css.DeclarationGrammar:
			if !inFace() {
				continue
			}
			switch strings.ToLower(string(data)) {
			case "font-family":
				current.Name = firstFamily(p.Values())
			case "unicode-range":
				current.HasSubset = true
			}
		}
	}
}

// firstFamily joins the tokens before the first comma into a family name.
func firstFamily(values []css.Token) string {
	var b strings.Builder
	for _, tok := range values {
		if tok.TokenType == css.CommaToken {
			break
		}
		switch tok.TokenType {
		case css.StringToken:
			s := string(tok.Data)
			if u, err := strconv.Unquote(s); err == nil {
				s = u
			} else {
				s = strings.Trim(s, `'"`)
			}
			b.WriteString(s)
		case css.WhitespaceToken:
			b.WriteByte(' ')
		default:
			b.Write(tok.Data)
		}
	}
	return strings.TrimSpace(b.String())
}

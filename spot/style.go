package spot

import (
	"fmt"
	"strings"

	cssast "github.com/aymerick/douceur/css"
	"github.com/aymerick/douceur/parser"
	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

const stylesheetText = `
#spotterWrapper {
	background-color: rgba(255, 255, 255, 0.9);
	opacity: 0;
	position: absolute;
	top: 0;
	z-index: 999999999;
	width: 100%;
	height: 100%;
}
#spotterContent {
	margin-top: 35px;
	text-align: center;
}
#spotterClose {
	background-color: #8DCB0C;
	height: 35px;
	position: fixed;
	width: 100%;
	z-index: 1000000001;
}
#spotterClose:hover {
	background-color: #7DA81F;
}
#spotterClose__p {
	color: white;
	cursor: pointer;
	font: bold 15px Helvetica,Arial;
	line-height: 35px;
	text-align: center;
	text-decoration: none;
}
#spotterList {
	padding: 30px;
}
.spotterList__li {
	background-color: #333;
	border: 1px solid #DDD;
	display: inline-block;
	list-style: none;
	margin: 0 20px 20px 0;
	padding: 5px;
}
.spotterList__li:hover {
	background-color: #FFF;
	border: 1px solid #BBB;
}
.spotterList__a--wide {
	display: table-cell;
	vertical-align: middle;
}
.spotterList__img {
	display: block;
	margin: 0 auto;
}
.spotterList__a:active, .spotterList__a:focus {
	border: 0;
	outline: #888 solid 2px;
}
.spotter__opaque {
	transition: opacity 0.1s;
}
#spotterMsg {
	display: block;
	font-size: 14px;
	line-height: 25px;
	margin: 0 auto;
	padding-top: 30px;
	width: 600px;
}
`

// Stylesheet is the compacted overlay stylesheet.
var Stylesheet = mustCompactCSS(stylesheetText)

func mustCompactCSS(src string) string {
	out, err := compactCSS(src)
	if err != nil {
		panic(err)
	}
	return out
}

// compactCSS parses src and prints it back without whitespace.
func compactCSS(src string) (string, error) {
	sheet, err := parser.Parse(src)
	if err != nil {
		return "", fmt.Errorf("spot: parse stylesheet: %w", err)
	}
	var b strings.Builder
	for _, rule := range sheet.Rules {
		if rule.Kind != cssast.QualifiedRule || len(rule.Selectors) == 0 {
			continue
		}
		b.WriteString(strings.Join(rule.Selectors, ","))
		b.WriteByte('{')
		b.WriteString(formatDeclarations(rule.Declarations))
		b.WriteByte('}')
	}
	return b.String(), nil
}

// StyleNode returns a fresh <style id="spotterStyle"> element holding
// Stylesheet.
func StyleNode() *html.Node {
	n := &html.Node{Type: html.ElementNode, DataAtom: atom.Style, Data: "style"}
	n.Attr = []html.Attribute{{Key: "id", Val: StyleID}}
	n.AppendChild(&html.Node{Type: html.TextNode, Data: Stylesheet})
	return n
}

func formatDeclarations(decls []*cssast.Declaration) string {
	var b strings.Builder
	for _, d := range decls {
		if d == nil || d.Property == "" {
			continue
		}
		b.WriteString(d.Property)
		b.WriteByte(':')
		b.WriteString(d.Value)
		if d.Important {
			b.WriteString("!important")
		}
		b.WriteByte(';')
	}
	return b.String()
}

// styleSet returns the inline style attr with prop set to value, replacing
// an earlier declaration of the same property.
func styleSet(attr, prop, value string) string {
	decls := inlineDeclarations(attr)
	prop = strings.ToLower(strings.TrimSpace(prop))
	replaced := false
	for _, d := range decls {
		if strings.EqualFold(d.Property, prop) {
			d.Value = value
			d.Important = false
			replaced = true
		}
	}
	if !replaced {
		decls = append(decls, &cssast.Declaration{Property: prop, Value: value})
	}
	return formatDeclarations(decls)
}

// styleGet returns the value of prop in the inline style attr.
func styleGet(attr, prop string) string {
	val := ""
	for _, d := range inlineDeclarations(attr) {
		if strings.EqualFold(d.Property, prop) {
			val = strings.TrimSpace(d.Value)
		}
	}
	return val
}

// inlineDeclarations parses a style attribute. The parser drops the value of
// a final declaration that is not terminated, so one is added.
func inlineDeclarations(attr string) []*cssast.Declaration {
	attr = strings.TrimSpace(attr)
	if attr == "" {
		return nil
	}
	if !strings.HasSuffix(attr, ";") {
		attr += ";"
	}
	decls, err := parser.ParseDeclarations(attr)
	if err != nil {
		return nil
	}
	out := decls[:0]
	for _, d := range decls {
		if d == nil || d.Property == "" || strings.TrimSpace(d.Value) == "" {
			continue
		}
		out = append(out, d)
	}
	return out
}

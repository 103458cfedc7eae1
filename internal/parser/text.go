package parser

import (
	"regexp"
	"strings"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

// 文本标签兜底：结构化解析没有取到的字段按标签别名在可见文本中查找。
// 以 ^ 开头的别名只在行首匹配，裸 "Score" 不会命中 "Consumer Score"；这类别名放在最后。
var scoreLabels = map[string][]string{
	KeyOverall:                {"Overall Score", "Total Score", "^Score"},
	ScoreKey("Consumer"):      {"Consumer Score", "Customer Score", "End-user Score"},
	ScoreKey("Developer"):     {"Developer Score", "Engineer Score", "Dev Score"},
	ScoreKey("Investor"):      {"Investor Score"},
	ScoreKey("Clarity"):       {"Clarity Score", "Readability Score"},
	ScoreKey("Visual Design"): {"Visual Design Score", "Design Score"},
	ScoreKey("UX"):            {"UX Score", "Usability Score"},
	ScoreKey("Trust"):         {"Trust Score", "Credibility Score"},
	ScoreKey("Value Prop"):    {"Value Prop Score", "Value Proposition Score"},
}

var blockLabels = map[string][]string{
	KeyDescription: {"Description of Website", "Site Description", "^Description"},
}

// 页面上标注的公司名优先于从 URL 推出的主机名
var companyLabels = map[string][]string{
	KeyCompany: {"^Company", "^Site Name", "^Website Name"},
}

type labelPattern struct {
	key string
	re  []*regexp.Regexp
}

var (
	scorePatterns   = compileLabels(scoreLabels, `(?i)%s\s*[:\-]?\s*(\d{1,3}(?:\.\d+)?)`)
	blockPatterns   = compileLabels(blockLabels, `(?is)%s\s*[:\-]?\s*(.+?)(?:\n\s*\n|\n[A-Z][^\n]{0,60}:\s|$)`)
	companyPatterns = compileLabels(companyLabels, `(?i)%s[ \t]*:[ \t]*([^\n]+)`)
)

func compileLabels(labels map[string][]string, format string) []labelPattern {
	var out []labelPattern
	// 固定顺序，保证结果稳定
	keys := append([]string{KeyCompany, KeyOverall, KeyDescription}, scoreKeys()...)
	for _, key := range keys {
		aliases, ok := labels[key]
		if !ok {
			continue
		}
		lp := labelPattern{key: key}
		for _, a := range aliases {
			label := regexp.QuoteMeta(strings.TrimPrefix(a, "^"))
			if strings.HasPrefix(a, "^") {
				label = `(?m:^)[ \t]*` + label
			}
			lp.re = append(lp.re, regexp.MustCompile(strings.Replace(format, "%s", label, 1)))
		}
		out = append(out, lp)
	}
	return out
}

func scoreKeys() []string {
	keys := make([]string, len(Categories))
	for i, c := range Categories {
		keys[i] = ScoreKey(c)
	}
	return keys
}

func parseText(text string, rec *Record) {
	if strings.TrimSpace(text) == "" {
		return
	}
	for _, lp := range scorePatterns {
		for _, re := range lp.re {
			if m := re.FindStringSubmatch(text); m != nil {
				if v, ok := scoreValue(m[1]); ok {
					rec.SetIfAbsent(lp.key, v)
				}
				break
			}
		}
	}
	for _, lp := range companyPatterns {
		for _, re := range lp.re {
			if m := re.FindStringSubmatch(text); m != nil {
				if name := CleanText(m[1]); name != "" {
					rec.Set(lp.key, Text(name))
				}
				break
			}
		}
	}
	for _, lp := range blockPatterns {
		for _, re := range lp.re {
			if m := re.FindStringSubmatch(text); m != nil {
				if v := description(m[1]); !v.IsAbsent() {
					rec.SetIfAbsent(lp.key, v)
				}
				break
			}
		}
	}
}

var blockAtoms = map[atom.Atom]bool{
	atom.P: true, atom.Div: true, atom.Section: true, atom.Article: true,
	atom.H1: true, atom.H2: true, atom.H3: true, atom.H4: true, atom.H5: true, atom.H6: true,
	atom.Li: true, atom.Ul: true, atom.Ol: true, atom.Tr: true, atom.Table: true,
	atom.Header: true, atom.Footer: true, atom.Main: true, atom.Br: true,
}

// BlockText 页面可见文本，块级元素之间以换行分隔
func BlockText(doc string) string {
	root, err := html.Parse(strings.NewReader(doc))
	if err != nil {
		return ""
	}

	var b strings.Builder
	var walk func(n *html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode && (n.DataAtom == atom.Script || n.DataAtom == atom.Style || n.DataAtom == atom.Noscript) {
			return
		}
		if n.Type == html.TextNode {
			if t := strings.TrimSpace(n.Data); t != "" {
				if b.Len() > 0 && !strings.HasSuffix(b.String(), "\n") {
					b.WriteByte(' ')
				}
				b.WriteString(t)
			}
		}
		block := n.Type == html.ElementNode && blockAtoms[n.DataAtom]
		if block {
			newline(&b)
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
		if block {
			newline(&b)
		}
	}
	walk(root)
	return strings.TrimSpace(b.String())
}

func newline(b *strings.Builder) {
	if b.Len() > 0 && !strings.HasSuffix(b.String(), "\n") {
		b.WriteByte('\n')
	}
}

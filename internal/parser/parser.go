package parser

import (
	"net/url"
	"regexp"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// 规范指标名
const (
	KeyCompany     = "Company"
	KeyURL         = "URL"
	KeyOverall     = "Overall Score"
	KeyDescription = "Description of Website"
)

const (
	sectionAudience  = "Audience Perspective"
	sectionTechnical = "Technical Criteria Scores"
)

// Categories 按表格顺序排列的评分类别
var Categories = []string{
	"Consumer", "Developer", "Investor",
	"Clarity", "Visual Design", "UX", "Trust", "Value Prop",
}

// 卡片标题到类别名的别名
var titleAliases = map[string]string{
	"Value Proposition": "Value Prop",
}

func ScoreKey(category string) string       { return category + " Score" }
func DescriptionKey(category string) string { return category + " Score Description" }

// Row 初始化时下发给前端的行提示
type Row struct {
	Key   string `json:"key"`
	Label string `json:"label"`
}

// RowHints 规范的行顺序；实际列集合仍以首个成功记录为准
func RowHints() []Row {
	rows := []Row{
		{KeyCompany, KeyCompany},
		{KeyURL, KeyURL},
		{KeyOverall, KeyOverall},
		{KeyDescription, KeyDescription},
	}
	for _, c := range Categories {
		rows = append(rows, Row{ScoreKey(c), ScoreKey(c)}, Row{DescriptionKey(c), DescriptionKey(c)})
	}
	return rows
}

// Parse 从结果页 HTML 中提取指标。任何输入都不会返回错误，缺失字段以 Absent 表示。
func Parse(html, siteURL string) *Record {
	rec := skeleton(siteURL)

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err == nil {
		parseStructured(doc, rec)
	}

	parseText(BlockText(html), rec)
	return rec
}

func skeleton(siteURL string) *Record {
	rec := NewRecord()
	if company := CompanyFromURL(siteURL); company != "" {
		rec.Set(KeyCompany, Text(company))
	} else {
		rec.Set(KeyCompany, Absent)
	}
	if siteURL != "" {
		rec.Set(KeyURL, Text(siteURL))
	} else {
		rec.Set(KeyURL, Absent)
	}
	rec.Set(KeyOverall, Absent)
	rec.Set(KeyDescription, Absent)
	for _, c := range Categories {
		rec.Set(ScoreKey(c), Absent)
		rec.Set(DescriptionKey(c), Absent)
	}
	return rec
}

// CompanyFromURL 去掉协议和 www. 前缀后的主机名
func CompanyFromURL(raw string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return ""
	}
	host := ""
	if u, err := url.Parse(raw); err == nil && u.Host != "" {
		host = u.Hostname()
	} else {
		host = strings.TrimPrefix(strings.TrimPrefix(raw, "https://"), "http://")
		if i := strings.IndexAny(host, "/?#"); i >= 0 {
			host = host[:i]
		}
	}
	return strings.TrimPrefix(host, "www.")
}

func parseStructured(doc *goquery.Document, rec *Record) {
	if s := strings.TrimSpace(doc.Find("span.text-5xl").First().Text()); s != "" {
		if v, ok := scoreValue(s); ok {
			rec.Set(KeyOverall, v)
		}
	}

	if s := doc.Find("p.text-xl.text-white").First().Text(); strings.TrimSpace(s) != "" {
		rec.Set(KeyDescription, description(s))
	}

	if grid := gridAfter(doc, sectionAudience); grid != nil {
		grid.ChildrenFiltered("div").Each(func(_ int, card *goquery.Selection) {
			parseCard(card, rec)
		})
	}

	if grid := gridAfter(doc, sectionTechnical); grid != nil {
		grid.Find("div.p-6").Each(func(_ int, card *goquery.Selection) {
			parseCard(card, rec)
		})
	}
}

// gridAfter 按文档顺序返回标题为 heading 的 h2 之后的第一个 div.grid
func gridAfter(doc *goquery.Document, heading string) *goquery.Selection {
	var grid *goquery.Selection
	seen := false
	doc.Find("h2, div.grid").EachWithBreak(func(_ int, s *goquery.Selection) bool {
		if goquery.NodeName(s) == "h2" {
			if !seen && strings.TrimSpace(s.Text()) == heading {
				seen = true
			}
			return true
		}
		if seen {
			grid = s
			return false
		}
		return true
	})
	return grid
}

func parseCard(card *goquery.Selection, rec *Record) {
	title := strings.TrimSpace(card.Find("h3").First().Text())
	if title == "" {
		return
	}
	if alias, ok := titleAliases[title]; ok {
		title = alias
	}

	score := Absent
	if s := strings.TrimSpace(card.Find("span.text-2xl").First().Text()); s != "" {
		if v, ok := scoreValue(s); ok {
			score = v
		} else {
			score = Text(s)
		}
	}

	desc := Absent
	if s := card.Find("p.text-gray-300").First().Text(); strings.TrimSpace(s) != "" {
		desc = description(s)
	}

	// 未知类别按同样的命名规则追加为动态指标
	rec.Set(ScoreKey(title), score)
	rec.Set(DescriptionKey(title), desc)
}

var scorePattern = regexp.MustCompile(`^(\d{1,3}(?:\.\d+)?)(?:\s*/\s*\d+)?$`)

// scoreValue 分数保持为数字，"82/100" 之类取分子
func scoreValue(s string) (Value, bool) {
	m := scorePattern.FindStringSubmatch(strings.TrimSpace(s))
	if m == nil {
		return Absent, false
	}
	f, err := strconv.ParseFloat(m[1], 64)
	if err != nil {
		return Absent, false
	}
	return Number(f), true
}

func description(s string) Value {
	cleaned := WrapSentences(CleanText(s))
	if cleaned == "" {
		return Absent
	}
	return Text(cleaned)
}

var (
	spaceRun   = regexp.MustCompile(`\s+`)
	decorative = regexp.MustCompile(`[^\p{L}\p{N}_\s.,;:()!?'"/&-]`)
	sentence   = regexp.MustCompile(`\.\s+([A-Z])`)
)

// CleanText 合并空白并去掉装饰性符号，保留常用标点
func CleanText(s string) string {
	s = spaceRun.ReplaceAllString(strings.TrimSpace(s), " ")
	s = decorative.ReplaceAllString(s, "")
	return strings.TrimSpace(spaceRun.ReplaceAllString(s, " "))
}

// WrapSentences 在句号后紧跟大写字母处换行
func WrapSentences(s string) string {
	return sentence.ReplaceAllString(s, ".\n$1")
}

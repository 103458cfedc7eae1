package locator

import (
	"github.com/qs3c/site_compare_server/internal/browser"
)

func xpath(name, expr string) Strategy {
	return Strategy{Name: name, Selector: browser.Selector{By: browser.ByXPath, Value: expr}}
}

func css(name, sel string) Strategy {
	return Strategy{Name: name, Selector: browser.Selector{By: browser.ByCSS, Value: sel}}
}

func text(name, value string) Strategy {
	return Strategy{Name: name, Selector: browser.Selector{By: browser.ByText, Value: value}}
}

// buttonContaining 按钮文本包含 word（忽略大小写）
func buttonContaining(word string) string {
	return "//button[contains(translate(., 'ABCDEFGHIJKLMNOPQRSTUVWXYZ', 'abcdefghijklmnopqrstuvwxyz'),'" + word + "')]"
}

var URLInputChain = Chain{
	Role: RoleURLInput,
	Strategies: []Strategy{
		xpath("type=url", "//input[@type='url']"),
		xpath("placeholder https", "//input[contains(@placeholder,'https')]"),
		xpath("placeholder http", "//input[contains(@placeholder,'http')]"),
		xpath("placeholder enter", "//input[contains(@placeholder,'Enter') or contains(@placeholder,'enter')]"),
		xpath("type=text", "//input[@type='text']"),
		xpath("any input", "//input"),
		xpath("textarea", "//textarea"),
	},
}

var SubmitChain = Chain{
	Role: RoleSubmit,
	Strategies: []Strategy{
		xpath("text analy", buttonContaining("analy")),
		xpath("text rate", buttonContaining("rate")),
		xpath("text submit", buttonContaining("submit")),
		xpath("text generate", buttonContaining("generate")),
		xpath("text get report", buttonContaining("get report")),
		xpath("type=submit", "//button[@type='submit']"),
		xpath("any button", "//button"),
		Strategy{Name: "role=button", Selector: browser.Selector{By: browser.ByRole, Value: "button"}},
	},
}

var CookieBannerChain = Chain{
	Role: RoleCookieBanner,
	Strategies: []Strategy{
		xpath("text accept", buttonContaining("accept")),
		xpath("text agree", buttonContaining("agree")),
		xpath("text allow", buttonContaining("allow")),
		xpath("cookie container", "//*[contains(@class,'cookie')]//button"),
		xpath("onetrust", "//*[@id='onetrust-accept-btn-handler']"),
	},
}

// ScorePanelChain 结果完成标记：首选 Overall Score 文本，其次结果容器
var ScorePanelChain = Chain{
	Role: RoleScorePanel,
	Strategies: []Strategy{
		xpath("overall score", "//span[contains(text(), 'Overall Score')]"),
		text("overall score text", "Overall Score"),
		css("result container", "[class*='result'], [class*='report'], [role='article']"),
	},
}

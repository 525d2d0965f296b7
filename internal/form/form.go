package form

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// ErrLocatorNotFound 在限定时间内没有找到控件
var ErrLocatorNotFound = errors.New("locator not found")

// Automation 定义浏览器表单自动化接口
//
// 所有方法都在实现配置的等待时间内完成，超时返回包裹 ErrLocatorNotFound 的错误。
// 实现只需支持单线程调用。
type Automation interface {
	Navigate(ctx context.Context, url string) error
	WaitReady(ctx context.Context, loc Locator) error
	SelectOption(ctx context.Context, loc Locator, value string) error
	Click(ctx context.Context, loc Locator) error
	ScrollIntoView(ctx context.Context, loc Locator) error
	Close() error
}

// Strategy 控件定位方式
type Strategy int

const (
	StrategyID Strategy = iota
	StrategyXPath
)

// Query 定位器解析后的结果
type Query struct {
	Strategy Strategy
	Expr     string
}

// Locator 控件定位器，编排逻辑只通过 Query 使用它，不关心具体定位方式
type Locator interface {
	Query() Query
	String() string
}

// ByID 按稳定的元素 id 定位
type ByID struct {
	ID string
}

func (l ByID) Query() Query {
	return Query{Strategy: StrategyID, Expr: l.ID}
}

func (l ByID) String() string {
	return "#" + l.ID
}

// ByOptionText 定位“包含某个选项文本的下拉框”，用于 id 不稳定的控件
type ByOptionText struct {
	Contains string
}

func (l ByOptionText) Query() Query {
	return Query{
		Strategy: StrategyXPath,
		Expr:     fmt.Sprintf("//select[option[contains(text(), %s)]]", XPathLiteral(l.Contains)),
	}
}

func (l ByOptionText) String() string {
	return fmt.Sprintf("select[option~=%q]", l.Contains)
}

// XPathLiteral 把任意字符串转成合法的 XPath 字符串字面量
func XPathLiteral(s string) string {
	if !strings.Contains(s, "'") {
		return "'" + s + "'"
	}
	if !strings.Contains(s, `"`) {
		return `"` + s + `"`
	}
	parts := strings.Split(s, "'")
	quoted := make([]string, 0, len(parts)*2)
	for i, p := range parts {
		if i > 0 {
			quoted = append(quoted, `"'"`)
		}
		if p != "" {
			quoted = append(quoted, "'"+p+"'")
		}
	}
	return "concat(" + strings.Join(quoted, ", ") + ")"
}

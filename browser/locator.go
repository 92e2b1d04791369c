package browser

import (
	"fmt"
	"strings"
)

// LocatorKind selects how a locator expression is evaluated.
type LocatorKind int

const (
	CSS LocatorKind = iota
	XPath
)

func (k LocatorKind) String() string {
	if k == XPath {
		return "xpath"
	}
	return "css"
}

// Locator addresses elements on a page.
type Locator struct {
	Kind LocatorKind
	Expr string
}

// ParseLocator infers the kind from the expression: XPath expressions
// start with "/" or "(", anything else is a CSS selector.
func ParseLocator(expr string) Locator {
	expr = strings.TrimSpace(expr)
	if strings.HasPrefix(expr, "/") || strings.HasPrefix(expr, "(") {
		return Locator{Kind: XPath, Expr: expr}
	}
	return Locator{Kind: CSS, Expr: expr}
}

// Indexed fills the %d verb of a locator template.
func (l Locator) Indexed(i int) Locator {
	return Locator{Kind: l.Kind, Expr: fmt.Sprintf(l.Expr, i)}
}

func (l Locator) String() string {
	return l.Kind.String() + ":" + l.Expr
}

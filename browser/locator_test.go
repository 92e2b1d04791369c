package browser

import "testing"

func TestParseLocator(t *testing.T) {
	tests := []struct {
		input string
		kind  LocatorKind
		expr  string
	}{
		{input: ".sell-price", kind: CSS, expr: ".sell-price"},
		{input: "#ts--common-ques-ans-card", kind: CSS, expr: "#ts--common-ques-ans-card"},
		{input: `//*[@id="author-list"]/div[3]`, kind: XPath, expr: `//*[@id="author-list"]/div[3]`},
		{input: "(//a)[1]", kind: XPath, expr: "(//a)[1]"},
		{input: "  /html/body  ", kind: XPath, expr: "/html/body"},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got := ParseLocator(tt.input)
			if got.Kind != tt.kind || got.Expr != tt.expr {
				t.Fatalf("ParseLocator(%q) = %v, want %s:%s", tt.input, got, tt.kind, tt.expr)
			}
		})
	}
}

func TestLocatorIndexed(t *testing.T) {
	tmpl := ParseLocator(`//div/div[%d]/p`)
	got := tmpl.Indexed(3)
	if got.Expr != "//div/div[3]/p" || got.Kind != XPath {
		t.Fatalf("Indexed(3) = %v", got)
	}
	if tmpl.Expr != `//div/div[%d]/p` {
		t.Fatalf("template must not change, got %q", tmpl.Expr)
	}
}

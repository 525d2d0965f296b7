package chrome

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/iWorld-y/gnc_reports/internal/form"
)

func TestSelector(t *testing.T) {
	assert.Equal(t, `[id="btn-ver-xls"]`, selector(form.ByID{ID: "btn-ver-xls"}.Query()))
	assert.Equal(t, "//select[option[contains(text(), 'Conversiones')]]",
		selector(form.ByOptionText{Contains: "Conversiones"}.Query()))
}

func TestElementExpr(t *testing.T) {
	assert.Equal(t, `document.getElementById("tipo-consulta-gnc")`,
		elementExpr(form.ByID{ID: "tipo-consulta-gnc"}.Query()))

	expr := elementExpr(form.ByOptionText{Contains: "Conversiones"}.Query())
	assert.True(t, strings.HasPrefix(expr, `document.evaluate("//select[option[contains(text(), 'Conversiones')]]"`))
	assert.True(t, strings.HasSuffix(expr, ".singleNodeValue"))
}

func TestJSString_Escapes(t *testing.T) {
	assert.Equal(t, `"5;2"`, jsString("5;2"))
	assert.Equal(t, `"a\"b"`, jsString(`a"b`))
}

func TestExecOptions_Defaults(t *testing.T) {
	headless := execOptions(Options{Headless: true})
	windowed := execOptions(Options{Headless: false, UserAgent: "Mozilla/5.0", ExecPath: "/usr/bin/chromium"})

	// 自定义 UA 与可执行文件路径各追加一个选项
	assert.Equal(t, len(headless)+2, len(windowed))
}

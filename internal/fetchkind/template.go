package fetchkind

import (
	"encoding/json"
	"net/http"
	"strconv"
	"strings"

	"github.com/tidwall/gjson"

	"github.com/any-hub/stalecache/internal/group"
)

// Expand 将模板中的 {key}、{0}、{1}… 替换为回源参数，escape 为 nil 时原样替换。
// {key} 等价于 {0}。缺少的参数替换为空字符串。
func Expand(template string, args []string, escape func(string) string) string {
	if escape == nil {
		escape = func(s string) string { return s }
	}

	var b strings.Builder
	for {
		start := strings.IndexByte(template, '{')
		if start < 0 {
			b.WriteString(template)
			return b.String()
		}
		end := strings.IndexByte(template[start:], '}')
		if end < 0 {
			b.WriteString(template)
			return b.String()
		}
		end += start

		b.WriteString(template[:start])
		name := template[start+1 : end]
		if idx, ok := placeholderIndex(name); ok {
			if idx < len(args) {
				b.WriteString(escape(args[idx]))
			}
		} else {
			b.WriteString(template[start : end+1])
		}
		template = template[end+1:]
	}
}

func placeholderIndex(name string) (int, bool) {
	if name == "key" {
		return 0, true
	}
	idx, err := strconv.Atoi(name)
	if err != nil || idx < 0 {
		return 0, false
	}
	return idx, true
}

// Extract 校验 body 为合法 JSON，并在 path 非空时用 gjson 取出子文档。
func Extract(body []byte, path string) (json.RawMessage, error) {
	if !gjson.ValidBytes(body) {
		return nil, group.Errorf(http.StatusBadGateway, "upstream returned invalid JSON")
	}
	if path == "" {
		return json.RawMessage(body), nil
	}
	result := gjson.GetBytes(body, path)
	if !result.Exists() {
		return nil, group.NewFetchError("path " + path + " not found in upstream document")
	}
	return json.RawMessage(result.Raw), nil
}

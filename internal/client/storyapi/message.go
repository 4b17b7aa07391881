package storyapi

import (
	"strings"

	"github.com/tidwall/gjson"
)

// Message chains probed, in order, on a failed response body. The first path
// that holds a non-empty string wins.
var (
	// TextMessageChain unwraps the nested validation shape before the plain detail.
	TextMessageChain = []string{"detail.detail.0.msg", "detail"}
	// ImageMessageChain is empty: image failures always surface the generic message.
	ImageMessageChain []string
)

const (
	beginFallback   = "故事开始失败，请稍后再试"
	advanceFallback = "获取下一步故事失败，请稍后再试"
	imageFallback   = "插图生成失败"
)

// ExtractMessage returns the user-facing message for a failed response body.
func ExtractMessage(body []byte, chain []string, fallback string) string {
	if len(chain) == 0 || !gjson.ValidBytes(body) {
		return fallback
	}
	for _, path := range chain {
		res := gjson.GetBytes(body, path)
		if res.Type != gjson.String {
			continue
		}
		if msg := strings.TrimSpace(res.Str); msg != "" {
			return msg
		}
	}
	return fallback
}

package story

import (
	"encoding/base64"
	"fmt"
	"net/http"
	"strings"

	"github.com/vincent-petithory/dataurl"
)

// Picture 是一张内存中的图片。
type Picture struct {
	MIMEType string
	Data     []byte
}

// DecodePicture 解析上传的图片。接受完整的 data URL，也接受裸 base64。
func DecodePicture(raw string) (*Picture, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, fmt.Errorf("empty image payload")
	}

	if strings.HasPrefix(raw, "data:") {
		du, err := dataurl.DecodeString(raw)
		if err != nil {
			return nil, fmt.Errorf("decode data url: %w", err)
		}
		return newPicture(du.Data, du.MediaType.ContentType())
	}

	data, err := base64.StdEncoding.DecodeString(raw)
	if err != nil {
		return nil, fmt.Errorf("decode base64 image: %w", err)
	}
	return newPicture(data, "")
}

func newPicture(data []byte, mimeType string) (*Picture, error) {
	if len(data) == 0 {
		return nil, fmt.Errorf("image payload has no data")
	}
	if !strings.HasPrefix(mimeType, "image/") {
		mimeType = http.DetectContentType(data)
	}
	if !strings.HasPrefix(mimeType, "image/") {
		return nil, fmt.Errorf("unsupported image type %q", mimeType)
	}
	return &Picture{MIMEType: mimeType, Data: data}, nil
}

// DataURL 把图片重新编码为 data URL，供多模态消息使用。
func (p *Picture) DataURL() string {
	return dataurl.New(p.Data, p.MIMEType).String()
}

package story

import (
	"bytes"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	"image/png"
	"net/http"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
)

// ImageStore 把生成的插图保存到本地目录，并通过 /images/ 对外提供。
type ImageStore struct {
	dir     string
	baseURL string
}

// NewImageStore 创建存储目录。baseURL 是服务的对外地址，例如 http://127.0.0.1:8080。
func NewImageStore(dir, baseURL string) (*ImageStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create image dir: %w", err)
	}
	return &ImageStore{dir: dir, baseURL: strings.TrimRight(baseURL, "/")}, nil
}

// Dir 返回存储目录。
func (s *ImageStore) Dir() string {
	return s.dir
}

// Save 以 <uuid>.png 保存图片并返回其公开 URL。非 PNG 数据会先转码。
func (s *ImageStore) Save(p *Picture) (string, error) {
	data := p.Data
	if p.MIMEType != "image/png" {
		img, _, err := image.Decode(bytes.NewReader(p.Data))
		if err != nil {
			return "", fmt.Errorf("decode generated image: %w", err)
		}
		var buf bytes.Buffer
		if err := png.Encode(&buf, img); err != nil {
			return "", fmt.Errorf("encode png: %w", err)
		}
		data = buf.Bytes()
	}

	name := uuid.NewString() + ".png"
	if err := os.WriteFile(filepath.Join(s.dir, name), data, 0o644); err != nil {
		return "", fmt.Errorf("write image: %w", err)
	}
	return s.baseURL + "/images/" + name, nil
}

// Lookup 按 URL 的文件名查找此前保存的图片。找不到时返回 false。
func (s *ImageStore) Lookup(imageURL string) (*Picture, bool) {
	name := baseName(imageURL)
	if name == "" {
		return nil, false
	}

	data, err := os.ReadFile(filepath.Join(s.dir, name))
	if err != nil || len(data) == 0 {
		return nil, false
	}
	return &Picture{MIMEType: http.DetectContentType(data), Data: data}, true
}

func baseName(imageURL string) string {
	raw := strings.TrimSpace(imageURL)
	if raw == "" {
		return ""
	}
	if u, err := url.Parse(raw); err == nil && u.Path != "" {
		raw = u.Path
	}
	name := path.Base(raw)
	if name == "." || name == "/" || name == ".." {
		return ""
	}
	return name
}

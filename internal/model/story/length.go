package story

import (
	"fmt"
	"strings"
)

// Length is the story length selector offered by the start form.
type Length string

const (
	LengthShort  Length = "short"
	LengthMedium Length = "medium"
	LengthLong   Length = "long"
)

// LengthPreset pairs a selector with its fixed step count.
type LengthPreset struct {
	Name  Length `json:"name"`
	Steps int    `json:"steps"`
}

// Lengths returns the supported presets in display order.
func Lengths() []LengthPreset {
	return []LengthPreset{
		{Name: LengthShort, Steps: 5},
		{Name: LengthMedium, Steps: 8},
		{Name: LengthLong, Steps: 12},
	}
}

// Steps maps the selector to its step count.
func (l Length) Steps() (int, error) {
	for _, preset := range Lengths() {
		if preset.Name == l {
			return preset.Steps, nil
		}
	}
	return 0, fmt.Errorf("unknown story length %q", string(l))
}

// ParseLength 解析长度选择，忽略大小写与首尾空白。
func ParseLength(raw string) (Length, error) {
	l := Length(strings.ToLower(strings.TrimSpace(raw)))
	if _, err := l.Steps(); err != nil {
		return "", err
	}
	return l, nil
}

package config

import (
	"fmt"
	"strings"
)

// ImageResizeMode specifies what to do with raster images wider than the
// configured limit.
type ImageResizeMode int

const (
	ImageResizeModeNone ImageResizeMode = iota
	ImageResizeModeKeepAR
)

var imageResizeModeNames = []string{"none", "keepAR"}

func (m ImageResizeMode) IsValid() bool {
	return m >= ImageResizeModeNone && m <= ImageResizeModeKeepAR
}

func (m ImageResizeMode) String() string {
	if !m.IsValid() {
		return fmt.Sprintf("ImageResizeMode(%d)", int(m))
	}
	return imageResizeModeNames[m]
}

// ImageResizeModeNames returns all valid mode names, useful for usage strings.
func ImageResizeModeNames() []string {
	return append([]string(nil), imageResizeModeNames...)
}

func ParseImageResizeMode(name string) (ImageResizeMode, error) {
	for i, n := range imageResizeModeNames {
		if strings.EqualFold(n, name) {
			return ImageResizeMode(i), nil
		}
	}
	return 0, fmt.Errorf("%s is not a valid ImageResizeMode", name)
}

func (m ImageResizeMode) MarshalText() ([]byte, error) {
	if !m.IsValid() {
		return nil, fmt.Errorf("%d is not a valid ImageResizeMode", int(m))
	}
	return []byte(m.String()), nil
}

func (m *ImageResizeMode) UnmarshalText(text []byte) error {
	v, err := ParseImageResizeMode(string(text))
	if err != nil {
		return err
	}
	*m = v
	return nil
}

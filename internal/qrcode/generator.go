package qrcode

import (
	"fmt"

	"github.com/skip2/go-qrcode"
)

const (
	MinSize     = 128
	MaxSize     = 1024
	DefaultSize = 256
)

// Generator renders short URLs as PNG QR codes.
type Generator struct {
	defaultSize int
	level       qrcode.RecoveryLevel
}

func NewGenerator(defaultSize int) *Generator {
	if defaultSize < MinSize || defaultSize > MaxSize {
		defaultSize = DefaultSize
	}
	return &Generator{
		defaultSize: defaultSize,
		level:       qrcode.Medium,
	}
}

// PNG encodes content at the given pixel size. A zero size selects the default.
func (g *Generator) PNG(content string, size int) ([]byte, error) {
	if size == 0 {
		size = g.defaultSize
	}
	if size < MinSize || size > MaxSize {
		return nil, fmt.Errorf("qr size must be between %d and %d, got %d", MinSize, MaxSize, size)
	}

	code, err := qrcode.New(content, g.level)
	if err != nil {
		return nil, fmt.Errorf("failed to encode qr code: %w", err)
	}

	png, err := code.PNG(size)
	if err != nil {
		return nil, fmt.Errorf("failed to render qr code: %w", err)
	}
	return png, nil
}

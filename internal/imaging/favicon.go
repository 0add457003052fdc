/**
 * internal/imaging/favicon.go
 * favicon 与 ICO 容器
 *
 * ICO 使用 PNG 内嵌格式：
 *   ICONDIR(6 字节) + ICONDIRENTRY(16 字节) * N + PNG 数据
 */

package imaging

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"image"
	"io"

	"sitebuild/internal/manifest"
)

// FaviconSizes favicon 输出尺寸
var FaviconSizes = []int{16, 32, 64, 96, 128, 192}

const (
	icoHeaderSize = 6
	icoEntrySize  = 16
	icoMaxSize    = 256
)

type icoHeader struct {
	Reserved uint16
	Type     uint16
	Count    uint16
}

type icoEntry struct {
	Width      uint8
	Height     uint8
	Colors     uint8
	Reserved   uint8
	Planes     uint16
	BitCount   uint16
	BytesInRes uint32
	Offset     uint32
}

// EncodeICO 将多张图片打包为一个 ICO 文件（每张图片以 PNG 存储）
func EncodeICO(w io.Writer, images []image.Image) error {
	if len(images) == 0 {
		return fmt.Errorf("ico requires at least one image")
	}

	payloads := make([][]byte, len(images))
	entries := make([]icoEntry, len(images))
	offset := icoHeaderSize + icoEntrySize*len(images)

	for i, img := range images {
		b := img.Bounds()
		if b.Dx() > icoMaxSize || b.Dy() > icoMaxSize {
			return fmt.Errorf("ico image %dx%d exceeds %d pixels", b.Dx(), b.Dy(), icoMaxSize)
		}

		var buf bytes.Buffer
		if err := Encode(&buf, PNG, img, manifest.LosslessQuality); err != nil {
			return err
		}
		payloads[i] = buf.Bytes()

		entries[i] = icoEntry{
			Width:      uint8(b.Dx() % icoMaxSize), // 256 记为 0
			Height:     uint8(b.Dy() % icoMaxSize),
			Planes:     1,
			BitCount:   32,
			BytesInRes: uint32(buf.Len()),
			Offset:     uint32(offset),
		}
		offset += buf.Len()
	}

	header := icoHeader{Type: 1, Count: uint16(len(images))}
	if err := binary.Write(w, binary.LittleEndian, header); err != nil {
		return err
	}
	if err := binary.Write(w, binary.LittleEndian, entries); err != nil {
		return err
	}
	for _, p := range payloads {
		if _, err := w.Write(p); err != nil {
			return err
		}
	}
	return nil
}

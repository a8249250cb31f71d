// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package cifar

import (
	"bytes"
	"testing"

	"github.com/gomlx/gomlx/types/shapes"
	"github.com/gomlx/gomlx/types/tensors"
	"github.com/gomlx/gopjrt/dtypes"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeRecords builds raw records in the file layout: numLabelBytes label
// bytes, then 3 channel-major 32x32 planes.
func fakeRecords(labels []byte, numLabelBytes int, pixel func(example, channel, h, w int) byte) []byte {
	var buf bytes.Buffer
	for example, label := range labels {
		for ii := 0; ii < numLabelBytes-1; ii++ {
			buf.WriteByte(0) // Coarse label, discarded.
		}
		buf.WriteByte(label)
		for d := 0; d < Depth; d++ {
			for h := 0; h < Height; h++ {
				for w := 0; w < Width; w++ {
					buf.WriteByte(pixel(example, d, h, w))
				}
			}
		}
	}
	return buf.Bytes()
}

func TestReadExamples(t *testing.T) {
	labels := []byte{7, 3}
	pixel := func(example, channel, h, w int) byte {
		return byte((example*91 + channel*31 + h*7 + w) % 256)
	}
	raw := fakeRecords(labels, 2, pixel)

	target := ImagesAndLabels{
		images: tensors.FromShape(shapes.Make(dtypes.Float32, len(labels), Height, Width, Depth)),
		labels: tensors.FromShape(shapes.Make(dtypes.Int64, len(labels), 1)),
	}
	readExamples(bytes.NewReader(raw), "(in memory)", target, 0, len(labels), 2)

	tensors.ConstFlatData[int64](target.labels, func(flat []int64) {
		assert.Equal(t, []int64{7, 3}, flat)
	})
	tensors.ConstFlatData[float32](target.images, func(flat []float32) {
		// Spot-check the channel-major to channels-last transposition.
		at := func(example, h, w, d int) float32 {
			return flat[((example*Height+h)*Width+w)*Depth+d]
		}
		for _, spot := range [][4]int{{0, 0, 0, 0}, {0, 5, 11, 2}, {1, 31, 31, 1}, {1, 17, 3, 0}} {
			example, h, w, d := spot[0], spot[1], spot[2], spot[3]
			want := float32(pixel(example, d, h, w)) / 255.0
			assert.Equal(t, want, at(example, h, w, d))
		}
	})
}

func TestReadExamplesTruncatedFile(t *testing.T) {
	raw := fakeRecords([]byte{1}, 1, func(example, channel, h, w int) byte { return 0 })
	target := ImagesAndLabels{
		images: tensors.FromShape(shapes.Make(dtypes.Float32, 2, Height, Width, Depth)),
		labels: tensors.FromShape(shapes.Make(dtypes.Int64, 2, 1)),
	}
	require.Panics(t, func() {
		readExamples(bytes.NewReader(raw), "(in memory)", target, 0, 2, 1)
	})
}

func TestConvertToGoImage(t *testing.T) {
	target := ImagesAndLabels{
		images: tensors.FromShape(shapes.Make(dtypes.Float32, 1, Height, Width, Depth)),
		labels: tensors.FromShape(shapes.Make(dtypes.Int64, 1, 1)),
	}
	pixel := func(example, channel, h, w int) byte {
		return byte((channel*67 + h*5 + w) % 256)
	}
	raw := fakeRecords([]byte{0}, 1, pixel)
	readExamples(bytes.NewReader(raw), "(in memory)", target, 0, 1, 1)

	img := ConvertToGoImage(target.images, 0)
	require.NotNil(t, img)
	assert.Equal(t, Width, img.Rect.Dx())
	assert.Equal(t, Height, img.Rect.Dy())
	c := img.NRGBAAt(11, 5)
	assert.Equal(t, pixel(0, 0, 5, 11), c.R)
	assert.Equal(t, pixel(0, 1, 5, 11), c.G)
	assert.Equal(t, pixel(0, 2, 5, 11), c.B)
	assert.Equal(t, uint8(255), c.A)
}

func TestNumClasses(t *testing.T) {
	assert.Equal(t, 10, C10.NumClasses())
	assert.Equal(t, 100, C100.NumClasses())
	assert.Len(t, C10Labels, 10)
	assert.Len(t, C100FineLabels, 100)
	assert.Len(t, C100CoarseLabels, 20)
}

// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package resnet56

import (
	. "github.com/gomlx/exceptions"
	. "github.com/gomlx/gomlx/graph"
	"github.com/gomlx/gomlx/ml/context"
	"github.com/gomlx/gomlx/ml/layers"
	"github.com/gomlx/gomlx/ml/layers/activations"
	"github.com/gomlx/gomlx/ml/layers/batchnorm"
	"github.com/gomlx/gomlx/types/tensors/images"
)

// BlockBuilder configures one residual block. Create it with IdentityBlock or
// ConvBlock, set the options and call Done to append the block to the graph.
type BlockBuilder struct {
	ctx *context.Context
	x   *Node

	kernelSize     int
	filters1       int
	filters2       int
	stage          int
	block          rune
	strides        int
	projection     bool
	channelsConfig images.ChannelsAxisConfig
	names          NamePolicy
}

func newBlockBuilder(ctx *context.Context, x *Node, projection bool) *BlockBuilder {
	b := &BlockBuilder{
		ctx:            ctx,
		x:              x,
		kernelSize:     3,
		stage:          2,
		block:          'a',
		strides:        1,
		projection:     projection,
		channelsConfig: images.ChannelsLast,
		names:          KerasNames{},
	}
	if projection {
		b.strides = 2
	}
	return b
}

// IdentityBlock builds a residual block whose shortcut is the identity: two
// convolutions (each followed by batch normalization, the first also by ReLU)
// added back onto the unchanged input, then a final ReLU. The input channel
// count must match the second filter count, and spatial dimensions are
// preserved.
//
// Returns a BlockBuilder, configure it and call Done.
func IdentityBlock(ctx *context.Context, x *Node) *BlockBuilder {
	return newBlockBuilder(ctx, x, false)
}

// ConvBlock builds a residual block with a projected shortcut: the main path
// is the same two convolutions as IdentityBlock, but the first one is strided,
// and the shortcut is a 1x1 convolution with the same stride (plus batch
// normalization), so both sides match in spatial resolution and channels.
// Used at stage boundaries, where width or resolution changes.
//
// Returns a BlockBuilder, configure it and call Done. Default strides is 2.
func ConvBlock(ctx *context.Context, x *Node) *BlockBuilder {
	return newBlockBuilder(ctx, x, true)
}

// KernelSize sets the spatial size of the two main-path convolution kernels.
// The projection shortcut is always 1x1. Default is 3.
func (b *BlockBuilder) KernelSize(size int) *BlockBuilder {
	b.kernelSize = size
	return b
}

// Filters sets the output channels of the first and second main-path
// convolutions. The second also determines the block's output width. There is
// no default, it must be set before Done.
func (b *BlockBuilder) Filters(filters1, filters2 int) *BlockBuilder {
	b.filters1 = filters1
	b.filters2 = filters2
	return b
}

// Stage sets the stage number used in layer names. Default is 2, the first
// stage after the stem.
func (b *BlockBuilder) Stage(stage int) *BlockBuilder {
	b.stage = stage
	return b
}

// Block sets the block label used in layer names, 'a' through 'z'.
// Default is 'a'.
func (b *BlockBuilder) Block(block rune) *BlockBuilder {
	b.block = block
	return b
}

// Strides sets the stride of the first main-path convolution and of the
// projection shortcut, applied to both spatial axes. Only valid on ConvBlock;
// an identity shortcut cannot change resolution. Default is 2.
func (b *BlockBuilder) Strides(strides int) *BlockBuilder {
	if !b.projection {
		Panicf("resnet56: Strides is only configurable on ConvBlock, IdentityBlock preserves the input resolution")
	}
	b.strides = strides
	return b
}

// ChannelsAxis sets the layout convention of x. Default is
// images.ChannelsLast.
func (b *BlockBuilder) ChannelsAxis(channelsAxisConfig images.ChannelsAxisConfig) *BlockBuilder {
	b.channelsConfig = channelsAxisConfig
	return b
}

// NamePolicy sets the layer naming strategy. Default is KerasNames.
func (b *BlockBuilder) NamePolicy(policy NamePolicy) *BlockBuilder {
	b.names = policy
	return b
}

// Done builds the block and returns its output, shaped like the input except
// for the channels (filters2) and, on a strided ConvBlock, the spatial axes
// (ceil division by the stride).
func (b *BlockBuilder) Done() *Node {
	x := b.x
	if x.Rank() != 4 {
		Panicf("resnet56: block input must be rank-4, got shape %s", x.Shape())
	}
	if b.kernelSize <= 0 {
		Panicf("resnet56: block kernel size must be > 0, got %d", b.kernelSize)
	}
	if b.filters1 <= 0 || b.filters2 <= 0 {
		Panicf("resnet56: block filters must be set to positive values, got (%d, %d)",
			b.filters1, b.filters2)
	}
	if b.block < 'a' || b.block > 'z' {
		Panicf("resnet56: block label must be 'a' through 'z', got %q", b.block)
	}
	if b.strides <= 0 {
		Panicf("resnet56: block strides must be > 0, got %d", b.strides)
	}
	channelsAxis := images.GetChannelsAxis(x, b.channelsConfig)
	if !b.projection && x.Shape().Dimensions[channelsAxis] != b.filters2 {
		Panicf("resnet56: identity shortcut requires input channels (%d) to match filters2 (%d)",
			x.Shape().Dimensions[channelsAxis], b.filters2)
	}

	// Main path: the first convolution carries the block's stride.
	convName, normName := b.names.Branch(b.stage, b.block, "2a")
	main := layers.Convolution(b.ctx.In(convName), x).CurrentScope().
		ChannelsAxis(b.channelsConfig).
		Filters(b.filters1).KernelSize(b.kernelSize).Strides(b.strides).PadSame().
		Done()
	main = b.batchNorm(normName, main, channelsAxis)
	main = activations.Relu(main)

	convName, normName = b.names.Branch(b.stage, b.block, "2b")
	main = layers.Convolution(b.ctx.In(convName), main).CurrentScope().
		ChannelsAxis(b.channelsConfig).
		Filters(b.filters2).KernelSize(b.kernelSize).Strides(1).PadSame().
		Done()
	main = b.batchNorm(normName, main, channelsAxis)

	shortcut := x
	if b.projection {
		convName, normName = b.names.Branch(b.stage, b.block, "1")
		shortcut = layers.Convolution(b.ctx.In(convName), x).CurrentScope().
			ChannelsAxis(b.channelsConfig).
			Filters(b.filters2).KernelSize(1).Strides(b.strides).NoPadding().
			Done()
		shortcut = b.batchNorm(normName, shortcut, channelsAxis)
	}
	return activations.Relu(Add(main, shortcut))
}

func (b *BlockBuilder) batchNorm(scope string, x *Node, featureAxis int) *Node {
	return batchnorm.New(b.ctx.In(scope), x, featureAxis).CurrentScope().
		Momentum(BatchNormMomentum).Epsilon(BatchNormEpsilon).Done()
}

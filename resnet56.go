// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

// Package resnet56 implements the 56-layer residual network for classification
// of small (32x32) images, as described in "Deep Residual Learning for Image
// Recognition" (https://arxiv.org/abs/1512.03385), with the layer naming of the
// original Keras port -- so checkpoints remain addressable by the same names.
//
// The package only builds the computation graph: training, checkpointing and
// execution are all handled by the usual GoMLX machinery. Use BuildGraph for
// fine control, or ModelGraph as a ready-made train.ModelFn.
//
// Example:
//
//	probabilities := resnet56.BuildGraph(ctx, batchedImages).Classes(10).Done()
package resnet56

import (
	. "github.com/gomlx/exceptions"
	. "github.com/gomlx/gomlx/graph"
	"github.com/gomlx/gomlx/ml/context"
	"github.com/gomlx/gomlx/ml/layers"
	"github.com/gomlx/gomlx/ml/layers/activations"
	"github.com/gomlx/gomlx/ml/layers/batchnorm"
	"github.com/gomlx/gomlx/ml/layers/regularizers"
	"github.com/gomlx/gomlx/types/tensors/images"
)

const (
	// L2WeightDecay is the default L2 regularization applied to every
	// convolution and dense kernel of the network.
	L2WeightDecay = 2e-4

	// BatchNormMomentum is the momentum of the moving averages of every batch
	// normalization layer in the network.
	BatchNormMomentum = 0.997

	// BatchNormEpsilon is the epsilon of every batch normalization layer in
	// the network.
	BatchNormEpsilon = 1e-5
)

// StageSpec describes one stage of the network: a group of residual blocks
// operating at a fixed channel width. The first block of a stage is a
// projection (ConvBlock) with the given stride; the remaining Blocks-1 are
// IdentityBlocks.
type StageSpec struct {
	// Filters is the channel width of every convolution in the stage.
	Filters int

	// Blocks is the total number of residual blocks, including the leading
	// projection block. At most 26, since blocks are labeled 'a' through 'z'.
	Blocks int

	// Stride of the leading projection block, applied to both spatial axes.
	// A stride of 2 halves the spatial resolution.
	Stride int
}

// DefaultStages returns the stage schedule of the ResNet-56: three stages of
// 9 blocks each, at widths 16, 32 and 64, the latter two halving the spatial
// resolution.
func DefaultStages() []StageSpec {
	return []StageSpec{
		{Filters: 16, Blocks: 9, Stride: 1},
		{Filters: 32, Blocks: 9, Stride: 2},
		{Filters: 64, Blocks: 9, Stride: 2},
	}
}

// Config is created with BuildGraph, configured with its methods, and
// materialized into graph nodes with Done.
type Config struct {
	ctx   *context.Context
	input *Node

	numClasses     int
	kernelSize     int
	stemFilters    int
	channelsConfig images.ChannelsAxisConfig
	stages         []StageSpec
	names          NamePolicy
	weightDecay    float64
	weightDecaySet bool
	training       *bool
	logits         bool
}

// BuildGraph configures the construction of a ResNet-56 classification graph
// on batchedImages, which must be rank-4 -- `[batch, height, width, channels]`
// by default, see ChannelsAxis.
//
// Variables are created (or reused) in ctx's current scope, with deterministic
// names -- see NamePolicy. The context's default He initialization applies to
// all kernels.
//
// Returns a Config for further configuration. Call Done when finished, and it
// returns the output node: softmax probabilities shaped
// `[batch, numClasses]` (or logits, if Logits was set).
func BuildGraph(ctx *context.Context, batchedImages *Node) *Config {
	return &Config{
		ctx:            ctx,
		input:          batchedImages,
		numClasses:     100,
		kernelSize:     3,
		stemFilters:    16,
		channelsConfig: images.ChannelsLast,
		stages:         DefaultStages(),
		names:          KerasNames{},
		weightDecay:    L2WeightDecay,
	}
}

// Classes sets the number of output classes. It must be > 0. Default is 100.
func (c *Config) Classes(numClasses int) *Config {
	c.numClasses = numClasses
	return c
}

// ChannelsAxis sets the layout convention of the input images, which is
// threaded through every convolution and normalization of the network --
// mixing conventions within one graph is invalid. Default is
// images.ChannelsLast.
func (c *Config) ChannelsAxis(channelsAxisConfig images.ChannelsAxisConfig) *Config {
	c.channelsConfig = channelsAxisConfig
	return c
}

// Training forces the per-graph training flag consulted by the batch
// normalization layers (batch statistics if true, moving averages if false).
//
// If not called, the flag is left however the execution context configured it
// (train.Trainer sets it during training) -- the equivalent of Keras'
// `training=None`.
func (c *Config) Training(value bool) *Config {
	c.training = &value
	return c
}

// Stages replaces the stage schedule. Default is DefaultStages. The stage
// indices used for layer naming start at 2, after the stem.
func (c *Config) Stages(stages ...StageSpec) *Config {
	c.stages = stages
	return c
}

// NamePolicy replaces the layer naming strategy. Default is KerasNames, which
// keeps checkpoints compatible with the original Keras model.
func (c *Config) NamePolicy(policy NamePolicy) *Config {
	c.names = policy
	return c
}

// WeightDecay sets the L2 regularization coefficient applied uniformly to
// every convolution and dense kernel. Default is L2WeightDecay (2e-4).
func (c *Config) WeightDecay(amount float64) *Config {
	c.weightDecay = amount
	c.weightDecaySet = true
	return c
}

// Logits skips the final softmax, returning the raw logits instead of
// normalized probabilities -- what the `losses.*Logits` family expects during
// training. The graph structure and layer names are otherwise identical.
func (c *Config) Logits() *Config {
	c.logits = true
	return c
}

// Done builds the graph and returns its output node.
//
// It panics on invalid configurations (non-positive class count, bad input
// rank, invalid stage schedule); no partial graph state is left behind in
// that case -- callers may fix the configuration and simply rebuild.
func (c *Config) Done() *Node {
	ctx := c.ctx
	x := c.input
	g := x.Graph()
	if c.numClasses <= 0 {
		Panicf("resnet56: number of classes must be > 0, got %d", c.numClasses)
	}
	if x.Rank() != 4 {
		Panicf("resnet56: input images must be rank-4 (batch + 2 spatial axes + channels), got shape %s",
			x.Shape())
	}
	if len(c.stages) == 0 {
		Panicf("resnet56: at least one stage is required")
	}
	for ii, stage := range c.stages {
		if stage.Filters <= 0 || stage.Stride <= 0 {
			Panicf("resnet56: stage #%d must have positive filters and stride, got %+v", ii, stage)
		}
		if stage.Blocks < 1 || stage.Blocks > 26 {
			Panicf("resnet56: stage #%d must have from 1 to 26 blocks ('a' to 'z'), got %d",
				ii, stage.Blocks)
		}
	}
	if c.training != nil {
		ctx.SetTraining(g, *c.training)
	}

	// Every learnable kernel reads the L2 coefficient from the same
	// hyperparameter, so the identical decay applies across the whole network.
	if _, found := ctx.GetParam(regularizers.ParamL2); c.weightDecaySet || !found {
		ctx.SetParam(regularizers.ParamL2, c.weightDecay)
	}

	channelsAxis := images.GetChannelsAxis(x, c.channelsConfig)
	spatial := spatialAxes(x, channelsAxis)

	// Stem: one explicit pixel of zero-padding on each spatial edge, then a
	// valid-padding convolution. Not the same graph as PadSame -- the original
	// model does it this way, and the names ("conv1_pad") key on it.
	padConfig := make([]PadAxis, x.Rank())
	for _, axis := range spatial {
		padConfig[axis] = PadAxis{Start: 1, End: 1}
	}
	x = Pad(x, ScalarZero(g, x.DType()), padConfig...)
	convName, normName := c.names.Stem()
	x = layers.Convolution(ctx.In(convName), x).CurrentScope().
		ChannelsAxis(c.channelsConfig).
		Filters(c.stemFilters).KernelSize(c.kernelSize).Strides(1).NoPadding().
		Done()
	x = batchnorm.New(ctx.In(normName), x, channelsAxis).CurrentScope().
		Momentum(BatchNormMomentum).Epsilon(BatchNormEpsilon).Done()
	x = activations.Relu(x)

	// Stages: each starts with a projection block -- the stem (or previous
	// stage) width and resolution won't match otherwise -- followed by
	// identity blocks.
	for stageIdx, stage := range c.stages {
		stageNum := stageIdx + 2 // Stage numbering starts at 2, after the stem.
		x = ConvBlock(ctx, x).
			KernelSize(c.kernelSize).Filters(stage.Filters, stage.Filters).
			Stage(stageNum).Block('a').Strides(stage.Stride).
			ChannelsAxis(c.channelsConfig).NamePolicy(c.names).
			Done()
		for blockIdx := 1; blockIdx < stage.Blocks; blockIdx++ {
			x = IdentityBlock(ctx, x).
				KernelSize(c.kernelSize).Filters(stage.Filters, stage.Filters).
				Stage(stageNum).Block(rune('a' + blockIdx)).
				ChannelsAxis(c.channelsConfig).NamePolicy(c.names).
				Done()
		}
	}

	// Global average pooling over the spatial axes: one vector per example.
	x = ReduceMean(x, spatial...)

	x = layers.Dense(ctx.In(c.names.Top(c.numClasses)), x, true, c.numClasses)
	if !c.logits {
		x = Softmax(x)
	}
	return x
}

// spatialAxes returns the axes of x that are neither batch (0) nor channels.
func spatialAxes(x *Node, channelsAxis int) []int {
	axes := make([]int, 0, x.Rank()-2)
	for axis := 1; axis < x.Rank(); axis++ {
		if axis != channelsAxis {
			axes = append(axes, axis)
		}
	}
	return axes
}

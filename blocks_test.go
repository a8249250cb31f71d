// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package resnet56

import (
	"testing"

	. "github.com/gomlx/gomlx/graph"
	"github.com/gomlx/gomlx/graph/graphtest"
	"github.com/gomlx/gomlx/ml/context"
	"github.com/gomlx/gomlx/types/shapes"
	"github.com/gomlx/gopjrt/dtypes"
	"github.com/stretchr/testify/assert"

	_ "github.com/gomlx/gomlx/backends/default"
)

func blockInput(t *testing.T, dims ...int) *Node {
	backend := graphtest.BuildTestBackend()
	g := NewGraph(backend, t.Name())
	return Parameter(g, "x", shapes.Make(dtypes.Float32, dims...))
}

func TestIdentityBlockPreservesShape(t *testing.T) {
	x := blockInput(t, 2, 8, 8, 16)
	y := IdentityBlock(context.New(), x).
		Filters(16, 16).Stage(2).Block('b').
		Done()
	y.AssertDims(2, 8, 8, 16)
}

func TestConvBlockStrides(t *testing.T) {
	x := blockInput(t, 2, 8, 8, 16)
	y := ConvBlock(context.New(), x).
		Filters(32, 32).Stage(3).Block('a').Strides(2).
		Done()
	y.AssertDims(2, 4, 4, 32)

	// Stride 1: only the channels change.
	x = blockInput(t, 2, 8, 8, 16)
	y = ConvBlock(context.New(), x).
		Filters(32, 32).Stage(2).Block('a').Strides(1).
		Done()
	y.AssertDims(2, 8, 8, 32)
}

func TestConvBlockOddSpatialDims(t *testing.T) {
	// Same-padding with stride 2 rounds the output dimensions up: 7 -> 4.
	x := blockInput(t, 2, 7, 7, 16)
	y := ConvBlock(context.New(), x).
		Filters(32, 32).Stage(3).Block('a').Strides(2).
		Done()
	y.AssertDims(2, 4, 4, 32)
}

func TestBlockValidation(t *testing.T) {
	assert.Panics(t, func() { // Filters not set.
		IdentityBlock(context.New(), blockInput(t, 2, 8, 8, 16)).Done()
	})
	assert.Panics(t, func() { // Channels mismatch for an identity shortcut.
		IdentityBlock(context.New(), blockInput(t, 2, 8, 8, 16)).
			Filters(32, 32).Done()
	})
	assert.Panics(t, func() { // Label out of range.
		IdentityBlock(context.New(), blockInput(t, 2, 8, 8, 16)).
			Filters(16, 16).Block('A').Done()
	})
	assert.Panics(t, func() { // Strides only configurable on ConvBlock.
		IdentityBlock(context.New(), blockInput(t, 2, 8, 8, 16)).
			Filters(16, 16).Strides(2).Done()
	})
}

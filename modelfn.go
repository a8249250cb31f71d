// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package resnet56

import (
	"github.com/gomlx/gomlx/graph"
	"github.com/gomlx/gomlx/ml/context"
)

// ParamNumClasses is the context hyperparameter read by ModelGraph for the
// number of output classes. It is saved along with checkpoints, so a loaded
// model rebuilds with the same head. Default is 10.
const ParamNumClasses = "resnet56_num_classes"

// ModelGraph builds the ResNet-56 graph for a train.Trainer: it takes the
// batched images as its only input and returns the logits (not probabilities,
// to pair with the losses.*Logits family). The number of classes comes from
// the ParamNumClasses hyperparameter.
//
// It is a train.ModelFn; spec is ignored.
func ModelGraph(ctx *context.Context, spec any, inputs []*graph.Node) []*graph.Node {
	images := inputs[0]
	numClasses := context.GetParamOr(ctx, ParamNumClasses, 10)
	logits := BuildGraph(ctx, images).
		Classes(numClasses).
		Logits().
		Done()
	logits.AssertDims(images.Shape().Dimensions[0], numClasses)
	return []*graph.Node{logits}
}

// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

// Package classifier serves a trained ResNet-56 model for inference.
// It loads a checkpoint and offers a Classify method that will classify any
// image, by first resizing it to the model's 32x32 input size.
//
// To use it, create a Classifier with New(), and then simply call its Classify
// method.
//
// This is an example of how to serve a model for inference.
package classifier

import (
	"fmt"
	"image"

	"github.com/disintegration/imaging"
	"github.com/gomlx/exceptions"
	"github.com/gomlx/gomlx/backends"
	"github.com/gomlx/gomlx/graph"
	"github.com/gomlx/gomlx/ml/context"
	"github.com/gomlx/gomlx/ml/context/checkpoints"
	"github.com/gomlx/gomlx/types/tensors"
	"github.com/gomlx/gomlx/types/tensors/images"
	"github.com/gomlx/gopjrt/dtypes"
	"github.com/gomlx/resnet56"
	"github.com/gomlx/resnet56/cifar"
	"github.com/pkg/errors"
)

// Classifier holds the ResNet-56 model compiled.
// It will use XLA with GPU if available or CPU by default. But the backend can
// be configured with GOMLX_BACKEND.
type Classifier struct {
	// backend is created with defaults, which uses GOMLX_BACKEND if it is set.
	backend backends.Backend

	// ctx with the model's weights.
	ctx *context.Context

	// exec is used to execute the model with a context.
	exec *context.Exec

	numClasses int
}

// New creates a new Classifier from the model saved in checkpointDir.
func New(checkpointDir string) (*Classifier, error) {
	c := &Classifier{
		backend: backends.MustNew(),
		ctx:     context.New(),
	}

	// All hyperparameters are read from the checkpoint as well, so it rebuilds
	// the same model.
	// We don't need to keep the checkpoint handler around, since we are not going to use it to save.
	_, err := checkpoints.Load(c.ctx).
		Dir(checkpointDir).
		Done()
	if err != nil {
		return nil, errors.WithMessagef(err, "failed while loading ResNet-56 model from %q", checkpointDir)
	}
	c.ctx = c.ctx.Reuse() // Mark it to reuse variables: it will be an error to create a new variable -- for extra sanity checking.
	c.numClasses = context.GetParamOr(c.ctx, resnet56.ParamNumClasses, 10)

	// Create model executor.
	c.exec = context.NewExec(c.backend, c.ctx.In("model"), func(ctx *context.Context, image *graph.Node) (choice *graph.Node) {
		image = graph.ExpandAxes(image, 0) // Create a batch dimension of size 1.
		logits := resnet56.ModelGraph(ctx, nil, []*graph.Node{image})[0]
		// Take the class with highest logit value.
		choice = graph.ArgMax(logits, -1, dtypes.Int32)
		// Remove batch dimension.
		choice = graph.Reshape(choice) // No dimensions given, means a scalar.
		return
	})
	return c, nil
}

// NumClasses of the loaded model, from its saved hyperparameters.
func (c *Classifier) NumClasses() int {
	return c.numClasses
}

// Classify an image, returning the class with the highest score, from 0 to
// NumClasses-1. Images of any size are accepted, they are resized
// (Lanczos resampling) to the model's 32x32 input.
//
// Use LabelName to convert the returned class to a string name.
func (c *Classifier) Classify(img image.Image) (int32, error) {
	bounds := img.Bounds()
	if bounds.Dx() != cifar.Width || bounds.Dy() != cifar.Height {
		img = imaging.Resize(img, cifar.Width, cifar.Height, imaging.Lanczos)
	}
	input := images.ToTensor(dtypes.Float32).Single(img)
	var outputs []*tensors.Tensor
	err := exceptions.TryCatch[error](func() { outputs = c.exec.Call(input) })
	if err != nil {
		return 0, err
	}
	classID := tensors.ToScalar[int32](outputs[0]) // Convert tensor to Go value.
	return classID, nil
}

// LabelName returns a human-readable name for a class returned by Classify:
// the CIFAR-10 label table for 10-class models, the CIFAR-100 fine-label
// table for 100-class models, and the numeric class otherwise.
func (c *Classifier) LabelName(classID int32) string {
	idx := int(classID)
	switch c.numClasses {
	case 10:
		if idx >= 0 && idx < len(cifar.C10Labels) {
			return cifar.C10Labels[idx]
		}
	case 100:
		if idx >= 0 && idx < len(cifar.C100FineLabels) {
			return cifar.C100FineLabels[idx]
		}
	}
	return fmt.Sprintf("#%d", classID)
}

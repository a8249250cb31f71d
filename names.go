// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package resnet56

import "fmt"

// NamePolicy generates the variable scope names of the network's layers.
// Implementations must be pure: the same inputs always yield the same names,
// so a rebuilt graph reuses (and a loaded checkpoint finds) the same
// variables.
type NamePolicy interface {
	// Stem returns the scope names of the first convolution and its batch
	// normalization.
	Stem() (conv, norm string)

	// Branch returns the scope names of a convolution and its batch
	// normalization inside a residual block. The branch is "2a" or "2b" for
	// the main path, "1" for the projection shortcut.
	Branch(stage int, block rune, branch string) (conv, norm string)

	// Top returns the scope name of the final dense layer.
	Top(numClasses int) string
}

// KerasNames reproduces the layer names of the original Keras model
// ("conv1", "res2a_branch2a", "bn3b_branch2b", "fc10", ...), so converted
// checkpoints resolve without any renaming.
type KerasNames struct{}

// Stem implements NamePolicy.
func (KerasNames) Stem() (conv, norm string) {
	return "conv1", "bn_conv1"
}

// Branch implements NamePolicy.
func (KerasNames) Branch(stage int, block rune, branch string) (conv, norm string) {
	conv = fmt.Sprintf("res%d%c_branch%s", stage, block, branch)
	norm = fmt.Sprintf("bn%d%c_branch%s", stage, block, branch)
	return
}

// Top implements NamePolicy.
func (KerasNames) Top(numClasses int) string {
	return fmt.Sprintf("fc%d", numClasses)
}

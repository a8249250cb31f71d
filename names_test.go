// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package resnet56

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestKerasNames(t *testing.T) {
	names := KerasNames{}

	conv, norm := names.Stem()
	assert.Equal(t, "conv1", conv)
	assert.Equal(t, "bn_conv1", norm)

	conv, norm = names.Branch(2, 'a', "2a")
	assert.Equal(t, "res2a_branch2a", conv)
	assert.Equal(t, "bn2a_branch2a", norm)

	conv, norm = names.Branch(3, 'i', "2b")
	assert.Equal(t, "res3i_branch2b", conv)
	assert.Equal(t, "bn3i_branch2b", norm)

	conv, norm = names.Branch(4, 'a', "1")
	assert.Equal(t, "res4a_branch1", conv)
	assert.Equal(t, "bn4a_branch1", norm)

	assert.Equal(t, "fc10", names.Top(10))
	assert.Equal(t, "fc100", names.Top(100))
}

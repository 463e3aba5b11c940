package main

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestValidateRunArgs(t *testing.T) {
	assert.NoError(t, validateRunArgs([]string{"alice"}, nil))
	assert.NoError(t, validateRunArgs(nil, []string{"123"}), "refetch-only jobs need no target")
	assert.NoError(t, validateRunArgs([]string{"alice"}, []string{"123"}))
	assert.Error(t, validateRunArgs(nil, nil))
}

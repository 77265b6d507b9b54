package main

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParseProperties(t *testing.T) {
	assert.Nil(t, parseProperties(""))
	assert.Equal(t, map[string]string{"axis": "x", "waterlogged": "false"},
		parseProperties("axis=x, waterlogged=false,broken"))
}

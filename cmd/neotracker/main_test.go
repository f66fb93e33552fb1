package main

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/neotracker/neotracker/internal/app"
	_ "github.com/neotracker/neotracker/testing"
)

func TestMainSkipsStartupInTestMode(t *testing.T) {
	app.RefreshTestMode()
	assert.True(t, app.InTestMode())
	assert.NotPanics(t, main)
}

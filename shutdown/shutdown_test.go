package shutdown

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestContextStop(t *testing.T) {
	ctx, stop := Context(context.Background())
	assert.NoError(t, ctx.Err())
	stop()
	<-ctx.Done()
	assert.ErrorIs(t, ctx.Err(), context.Canceled)
}

func TestSignalsIncludeInterrupt(t *testing.T) {
	assert.NotEmpty(t, signals)
}

package chainErrors

import (
	"fmt"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
)

func Test_ErrorKinds(t *testing.T) {
	t.Run("Kind survives wrapping", func(t *testing.T) {
		err := RpcFailure(fmt.Errorf("connection refused"), "state_getStorage")
		wrapped := errors.Wrap(err, "probe failed")

		assert.True(t, errors.Is(wrapped, ErrRpcFailure))
		assert.False(t, errors.Is(wrapped, ErrNotFound))
		assert.Contains(t, wrapped.Error(), "connection refused")
	})
	t.Run("WithKind does not double tag", func(t *testing.T) {
		err := NotFound("block %d", 10)
		assert.Equal(t, err, WithKind(ErrNotFound, err))
		assert.Nil(t, WithKind(ErrRpcFailure, nil))
	})
	t.Run("Constructors carry their kind", func(t *testing.T) {
		assert.True(t, errors.Is(DecodeFailure("bad"), ErrDecodeFailure))
		assert.True(t, errors.Is(InvalidRange("empty"), ErrInvalidRange))
	})
}

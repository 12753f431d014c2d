package blockState

import (
	"context"
	"testing"

	"github.com/Layr-Labs/storage-locator/internal/tests"
	"github.com/Layr-Labs/storage-locator/pkg/chainErrors"
	"github.com/Layr-Labs/storage-locator/pkg/chainTypes"
	"github.com/Layr-Labs/storage-locator/pkg/clients/substrate"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setup(t *testing.T, schedule tests.Schedule, cacheSize int) (*tests.FakeChain, *Prober) {
	chain := tests.NewFakeChain(200, "", schedule)
	p, err := NewProber(&ProberConfig{BlockHashCacheSize: cacheSize}, chain, nil, tests.GetTestLogger())
	require.NoError(t, err)
	return chain, p
}

func uint32Ptr(v uint32) *uint32 {
	return &v
}

func Test_Equivalent(t *testing.T) {
	a := &BlockState{Identity: chainTypes.BlockIdentity{Number: 1}, Version: 3}
	b := &BlockState{Identity: chainTypes.BlockIdentity{Number: 2}, Version: 3}
	c := &BlockState{Identity: chainTypes.BlockIdentity{Number: 1}, Version: 3, MigrationInProgress: true}
	d := &BlockState{Identity: chainTypes.BlockIdentity{Number: 1}, Version: 4}

	assert.True(t, a.Equivalent(b))
	assert.False(t, a.Equivalent(c))
	assert.False(t, a.Equivalent(d))
}

func Test_Prober(t *testing.T) {
	schedule := tests.StepSchedule(
		tests.Transition{From: 0, State: tests.FakeBlockState{Version: 7}},
		tests.Transition{From: 100, State: tests.FakeBlockState{Version: 8, Migrating: true}},
		tests.Transition{From: 106, State: tests.FakeBlockState{Version: 8}},
	)

	t.Run("Should probe the latest block when no number is given", func(t *testing.T) {
		_, p := setup(t, schedule, 0)

		state, err := p.Probe(context.Background(), nil)
		require.NoError(t, err)
		assert.Equal(t, uint32(200), state.Identity.Number)
		assert.Equal(t, tests.HashOf(200), state.Identity.Hash)
		assert.Equal(t, uint16(8), state.Version)
		assert.False(t, state.MigrationInProgress)
	})
	t.Run("Should probe a specific block", func(t *testing.T) {
		_, p := setup(t, schedule, 0)

		state, err := p.Probe(context.Background(), uint32Ptr(103))
		require.NoError(t, err)
		assert.Equal(t, uint32(103), state.Identity.Number)
		assert.Equal(t, tests.HashOf(103), state.Identity.Hash)
		assert.Equal(t, uint16(8), state.Version)
		assert.True(t, state.MigrationInProgress)

		state, err = p.ProbeNumber(context.Background(), 99)
		require.NoError(t, err)
		assert.Equal(t, uint16(7), state.Version)
		assert.False(t, state.MigrationInProgress)
	})
	t.Run("Should return equivalent states for repeated probes", func(t *testing.T) {
		_, p := setup(t, schedule, 0)

		first, err := p.ProbeNumber(context.Background(), 150)
		require.NoError(t, err)
		second, err := p.ProbeNumber(context.Background(), 150)
		require.NoError(t, err)
		assert.Equal(t, first, second)
	})
	t.Run("Should return NotFound beyond the chain head", func(t *testing.T) {
		_, p := setup(t, schedule, 0)

		_, err := p.ProbeNumber(context.Background(), 201)
		assert.True(t, errors.Is(err, chainErrors.ErrNotFound))
	})
	t.Run("Should return NotFound when the version slot is empty", func(t *testing.T) {
		_, p := setup(t, tests.StepSchedule(tests.Transition{State: tests.FakeBlockState{MissingVersion: true}}), 0)

		_, err := p.ProbeNumber(context.Background(), 10)
		assert.True(t, errors.Is(err, chainErrors.ErrNotFound))
	})
	t.Run("Should return DecodeFailure for a short version", func(t *testing.T) {
		_, p := setup(t, tests.StepSchedule(tests.Transition{State: tests.FakeBlockState{RawVersion: []byte{0x01}}}), 0)

		_, err := p.ProbeNumber(context.Background(), 10)
		assert.True(t, errors.Is(err, chainErrors.ErrDecodeFailure))
	})
	t.Run("Should propagate RpcFailure from either read", func(t *testing.T) {
		chain, p := setup(t, schedule, 0)
		chain.FailAfter[substrate.RPCMethod_GetStorage] = 0

		_, err := p.ProbeNumber(context.Background(), 10)
		assert.True(t, errors.Is(err, chainErrors.ErrRpcFailure))
	})
	t.Run("Should read both slots at the resolved hash", func(t *testing.T) {
		chain, p := setup(t, schedule, 0)

		_, err := p.ProbeNumber(context.Background(), 10)
		require.NoError(t, err)
		assert.Equal(t, 1, chain.Calls(substrate.RPCMethod_GetBlockHash))
		assert.Equal(t, 2, chain.Calls(substrate.RPCMethod_GetStorage))
	})
	t.Run("Should serve repeated heights from the hash cache", func(t *testing.T) {
		chain, p := setup(t, schedule, 16)

		for i := 0; i < 3; i++ {
			_, err := p.ProbeNumber(context.Background(), 42)
			require.NoError(t, err)
		}
		assert.Equal(t, 1, chain.Calls(substrate.RPCMethod_GetBlockHash))
		assert.Equal(t, 6, chain.Calls(substrate.RPCMethod_GetStorage))
	})
}

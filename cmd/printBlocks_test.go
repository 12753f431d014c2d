package cmd

import (
	"bytes"
	"context"
	"strings"
	"testing"
	"time"

	"github.com/Layr-Labs/storage-locator/internal/tests"
	"github.com/Layr-Labs/storage-locator/pkg/blockState"
	"github.com/Layr-Labs/storage-locator/pkg/childTrieFetcher"
	"github.com/Layr-Labs/storage-locator/pkg/exporter"
	"github.com/Layr-Labs/storage-locator/pkg/keyEnumerator"
	"github.com/Layr-Labs/storage-locator/pkg/migrationLocator"
	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupServices(t *testing.T, chain *tests.FakeChain) *services {
	l := tests.GetTestLogger()
	prober, err := blockState.NewProber(&blockState.ProberConfig{}, chain, nil, l)
	require.NoError(t, err)
	enumerator := keyEnumerator.NewRootKeyEnumerator(keyEnumerator.DefaultKeyEnumeratorConfig(), chain, nil, l)
	fetcher := childTrieFetcher.NewChildTrieFetcher(childTrieFetcher.DefaultChildTrieFetcherConfig(), chain, nil, l)
	return &services{
		logger:     l,
		prober:     prober,
		locator:    migrationLocator.NewLocator(prober, nil, l),
		enumerator: enumerator,
		fetcher:    fetcher,
		exporter:   exporter.NewExporter(&exporter.ExporterConfig{}, chain, enumerator, fetcher, l),
	}
}

func Test_PrintBlocks(t *testing.T) {
	chain := tests.NewFakeChain(10, "", tests.StepSchedule(
		tests.Transition{State: tests.FakeBlockState{Version: 1}},
		tests.Transition{From: 5, State: tests.FakeBlockState{Version: 2}},
		tests.Transition{From: 8, State: tests.FakeBlockState{Version: 3}},
	))
	s := setupServices(t, chain)

	newCmd := func() (*cobra.Command, *bytes.Buffer) {
		var out bytes.Buffer
		c := &cobra.Command{}
		c.SetContext(context.Background())
		c.SetOut(&out)
		return c, &out
	}

	t.Run("Should print every block until the target version", func(t *testing.T) {
		c, out := newCmd()
		require.NoError(t, printBlocks(c, s, nil, migrationLocator.VersionReached(2)))

		lines := strings.Split(strings.TrimSpace(out.String()), "\n")
		require.Len(t, lines, 4)
		ts := tests.GenesisTimestamp.Add(60 * time.Second).UTC().Format(time.DateTime)
		assert.Equal(t, "10\t"+ts+"\tversion=3\tmigrationInProgress=false", lines[0])
		assert.True(t, strings.HasPrefix(lines[3], "7\t"))
		assert.Contains(t, lines[3], "version=2")
	})
	t.Run("Should stop at block 0", func(t *testing.T) {
		c, out := newCmd()
		from := uint32(2)
		require.NoError(t, printBlocks(c, s, &from, migrationLocator.Never))

		lines := strings.Split(strings.TrimSpace(out.String()), "\n")
		require.Len(t, lines, 3)
		assert.True(t, strings.HasPrefix(lines[2], "0\t"))
	})
}

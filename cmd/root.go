package cmd

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/Layr-Labs/storage-locator/internal/config"
	"github.com/Layr-Labs/storage-locator/pkg/storageKeys"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

var rootCmd = &cobra.Command{
	Use:   "storage-locator",
	Short: "Locate pallet storage migrations and export storage from a Substrate node",
	// errors are printed once by Execute
	SilenceErrors: true,
	SilenceUsage:  true,
}

func Execute(ctx context.Context) {
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %+v\n", err)
		os.Exit(1)
	}
}

func init() {
	initConfig(rootCmd)

	rootCmd.PersistentFlags().Bool(config.Debug, false, `"true" or "false"`)

	rootCmd.PersistentFlags().String(config.ChainRpcUrl, config.DefaultRpcUrl, `HTTP JSON-RPC endpoint of the node, e.g. "http://<hostname>:9944"`)
	rootCmd.PersistentFlags().Int(config.ChainRequestTimeout, config.DefaultRequestTimeout, `Timeout in seconds for every RPC request`)
	rootCmd.PersistentFlags().String(config.ChainPallet, storageKeys.DefaultPallet, `Pallet whose storage version is tracked`)
	rootCmd.PersistentFlags().Int(config.ChainBlockHashCacheSize, config.DefaultBlockHashCacheSize, `Number of resolved block hashes to cache, 0 disables the cache`)

	rootCmd.PersistentFlags().Int(config.StoragePageSize, config.DefaultPageSize, `Number of keys requested per page`)
	rootCmd.PersistentFlags().Int(config.StorageMaxConcurrency, config.DefaultMaxConcurrency, `Maximum number of storage requests in flight`)
	rootCmd.PersistentFlags().Bool(config.StorageLegacyPaging, false, `Stop paging unless a page is longer than the page size`)

	rootCmd.PersistentFlags().Bool(config.DataDogStatsdEnabled, false, `e.g. "true" or "false"`)
	rootCmd.PersistentFlags().String(config.DataDogStatsdUrl, "", `e.g. "localhost:8125"`)
	rootCmd.PersistentFlags().Bool(config.DataDogTracingEnabled, false, `e.g. "true" or "false"`)

	rootCmd.PersistentFlags().Bool(config.PrometheusEnabled, false, `e.g. "true" or "false"`)
	rootCmd.PersistentFlags().Int(config.PrometheusPort, config.DefaultPrometheusPort, `The port to run the prometheus server on`)

	// setup sub commands
	rootCmd.AddCommand(probeCmd)
	rootCmd.AddCommand(findMigrationsCmd)
	rootCmd.AddCommand(printBlocksCmd)
	rootCmd.AddCommand(exportStorageCmd)
	rootCmd.AddCommand(exportChangeSetsCmd)
	rootCmd.AddCommand(exportBlockCmd)

	// bind any subcommand flags
	probeCmd.Flags().Uint32(flagBlock, 0, "Block number to probe (default latest)")

	findMigrationsCmd.Flags().Uint32(flagBlock, 0, "Block number to start from (default latest)")
	findMigrationsCmd.Flags().Int(flagTargetVersion, -1, "Stop once this storage version is reached with no migration running (default walk to the first transition)")
	findMigrationsCmd.Flags().String(flagOutput, "", "Write the boundaries found to this CSV file")

	printBlocksCmd.Flags().Uint32(flagBlock, 0, "Block number to start from (default latest)")
	printBlocksCmd.Flags().Int(flagTargetVersion, -1, "Stop once this storage version is reached with no migration running")
	_ = printBlocksCmd.MarkFlagRequired(flagTargetVersion)

	exportStorageCmd.Flags().Uint32(flagBlock, 0, "Block number to export (default latest)")
	exportStorageCmd.Flags().String(flagOutput, "db.json", "Path of the JSON storage export")
	exportStorageCmd.Flags().String(flagChildrenOutput, "", "Also fetch every child trie and write them to this JSON file")
	exportStorageCmd.Flags().String(flagLevelDb, "", "Also save the snapshot into this LevelDB directory")

	exportChangeSetsCmd.Flags().Uint32(flagFromBlock, 0, "First block of the change sets")
	exportChangeSetsCmd.Flags().String(flagOutput, "change_sets.json", "Path of the JSON change sets export")
	_ = exportChangeSetsCmd.MarkFlagRequired(flagFromBlock)

	exportBlockCmd.Flags().Uint32(flagBlock, 0, "Block number to export (default latest)")
	exportBlockCmd.Flags().String(flagOutput, "blocks.json", "Path of the JSON block export")

	rootCmd.PersistentFlags().VisitAll(func(f *pflag.Flag) {
		key := config.KebabToSnakeCase(f.Name)
		viper.BindPFlag(key, f) //nolint:errcheck
		viper.BindEnv(key)      //nolint:errcheck
	})
}

func initConfig(cmd *cobra.Command) {
	viper.SetEnvPrefix(config.ENV_PREFIX)

	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_", ".", "_"))

	viper.AutomaticEnv()
}

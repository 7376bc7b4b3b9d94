package cmd

import (
	"fmt"
	"os"

	"github.com/ValentinKolb/dStruct/cmd/kv"
	"github.com/ValentinKolb/dStruct/cmd/serve"
	"github.com/ValentinKolb/dStruct/cmd/util"
	"github.com/spf13/cobra"
)

const (
	Version = "0.3.0"
)

var (

	// RootCmd represents the base command when called without any subcommands
	RootCmd = &cobra.Command{
		Use:   "dstruct",
		Short: "data structures on a distributed key-value store",
		Long: fmt.Sprintf(`dStruct (v%s)

Redis-like strings, hashes, lists and sets on top of a transactional,
ordered key-value backend (memory, badger, raft or TiKV).`, Version),
		SilenceUsage: true,
	}
	versionCmd = &cobra.Command{
		Use:   "version",
		Short: "Print the version number of dStruct",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("dStruct v%s\n", Version)
		},
	}
)

func init() {
	// Add Commands
	RootCmd.AddCommand(serve.ServeCmd)
	RootCmd.AddCommand(kv.KeyValueCommands)
	RootCmd.AddCommand(versionCmd)

	// Add Flags
	key := "serializer"
	RootCmd.PersistentFlags().String(key, "binary", util.WrapString("serializer to use (json, gob, binary)"))
	key = "transport"
	RootCmd.PersistentFlags().String(key, "tcp", util.WrapString("transport to use (tcp, unix)"))
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the RootCmd.
func Execute() {
	if err := RootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

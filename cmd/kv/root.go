package kv

import (
	"context"

	"github.com/ValentinKolb/dStruct/cmd/util"
	"github.com/ValentinKolb/dStruct/rpc/client"
	"github.com/spf13/cobra"
)

var (
	rpcClient *client.Client

	// KeyValueCommands represents the client command group
	KeyValueCommands = &cobra.Command{
		Use:   "kv",
		Short: "Run commands against a dstruct server",
		Long: `Run commands against a dstruct server. Every invocation uses a new session,
use the shell for transactions spanning several commands.

Arguments starting with a dash must follow a --, e.g. dstruct kv lrange list 0 -- -1`,
		PersistentPreRunE:  setupKVClient,
		PersistentPostRunE: closeKVClient,
	}
)

func init() {
	// Initialize viper
	cobra.OnInitialize(util.InitConfig)

	// Add common RPC flags to the KV command
	util.SetupRPCClientFlags(KeyValueCommands)

	// Add one subcommand per store command plus the tools
	addStoreCommands(KeyValueCommands)
	KeyValueCommands.AddGroup(&cobra.Group{ID: groupTools, Title: "Tools:"})
	shellCmd.GroupID = groupTools
	perfTestCmd.GroupID = groupTools
	KeyValueCommands.AddCommand(shellCmd)
	KeyValueCommands.AddCommand(perfTestCmd)
}

// setupKVClient connects the RPC client
func setupKVClient(cmd *cobra.Command, _ []string) error {
	// Bind command flags to viper
	if err := util.BindCommandFlags(cmd); err != nil {
		return err
	}

	s, err := util.GetSerializer()
	if err != nil {
		return err
	}

	t, err := util.GetTransport()
	if err != nil {
		return err
	}

	rpcClient, err = client.New(*util.GetClientConfig(), t, s)
	return err
}

func closeKVClient(_ *cobra.Command, _ []string) error {
	if rpcClient == nil {
		return nil
	}
	return rpcClient.Close()
}

// requestContext is the context of a single command sent from the command line
func requestContext() (context.Context, context.CancelFunc) {
	return context.WithCancel(context.Background())
}

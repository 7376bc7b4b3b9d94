package kv

import (
	"fmt"
	"strings"

	"github.com/ValentinKolb/dStruct/lib/core"
	"github.com/spf13/cobra"
)

const groupTools = "tools"

// addStoreCommands adds a subcommand for every command of the store.
// The server checks the arguments, the client only forwards them.
func addStoreCommands(parent *cobra.Command) {
	groups := map[string]bool{}
	for _, c := range core.Commands() {
		if !groups[c.Group] {
			groups[c.Group] = true
			parent.AddGroup(&cobra.Group{ID: c.Group, Title: strings.ToUpper(c.Group[:1]) + c.Group[1:] + " commands:"})
		}
		parent.AddCommand(newStoreCommand(c))
	}
}

func newStoreCommand(c *core.Command) *cobra.Command {
	name := c.Name
	use := name
	if c.Usage != "" {
		use += " " + c.Usage
	}
	return &cobra.Command{
		Use:                   use,
		Aliases:               c.Aliases,
		Short:                 c.Summary,
		GroupID:               c.Group,
		DisableFlagsInUseLine: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := requestContext()
			defer cancel()

			res, err := rpcClient.Do(ctx, name, toBytes(args)...)
			if err != nil {
				return err
			}
			fmt.Println(res.String())
			return nil
		},
	}
}

func toBytes(args []string) [][]byte {
	out := make([][]byte, len(args))
	for i, a := range args {
		out[i] = []byte(a)
	}
	return out
}

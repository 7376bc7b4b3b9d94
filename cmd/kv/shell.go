package kv

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/ValentinKolb/dStruct/cmd/util"
	"github.com/ValentinKolb/dStruct/lib/core"
	"github.com/ValentinKolb/dStruct/rpc/client"
	"github.com/ValentinKolb/dStruct/rpc/common"
	"github.com/chzyer/readline"
	"github.com/mattn/go-shellwords"
	"github.com/spf13/cobra"
)

var shellCmd = &cobra.Command{
	Use:   "shell",
	Short: "Interactive shell running all commands in one session",
	Long: util.WrapString(`Interactive shell running all commands in one session, so begin, commit
and rollback work across lines. Arguments are split like in a POSIX shell, quote values containing spaces.
Type help for the command list and exit to leave, an open transaction is rolled back.`),
	Args: cobra.NoArgs,
	RunE: runShell,
}

func runShell(_ *cobra.Command, _ []string) error {
	l, err := readline.NewEx(&readline.Config{
		Prompt:            "dstruct> ",
		HistoryFile:       filepath.Join(os.TempDir(), "dstruct_history"),
		InterruptPrompt:   "^C",
		EOFPrompt:         "exit",
		HistorySearchFold: true,
		AutoComplete:      shellCompleter(),
	})
	if err != nil {
		return err
	}
	defer l.Close()

	session := rpcClient.Session()
	defer func() {
		ctx, cancel := requestContext()
		defer cancel()
		if err := session.Close(ctx); err != nil {
			fmt.Fprintf(l.Stderr(), "(error) %v\n", err)
		}
	}()

	parser := shellwords.NewParser()
	for {
		line, err := l.Readline()
		if errors.Is(err, readline.ErrInterrupt) {
			if line == "" {
				return nil
			}
			continue
		} else if errors.Is(err, io.EOF) {
			return nil
		} else if err != nil {
			return err
		}

		args, err := parser.Parse(strings.TrimSpace(line))
		if err != nil {
			fmt.Fprintf(l.Stderr(), "(error) %v\n", err)
			continue
		}
		if len(args) == 0 {
			continue
		}

		switch strings.ToLower(args[0]) {
		case "exit", "quit":
			return nil
		case "help":
			printShellHelp(l.Stdout())
			continue
		}

		runShellLine(l, session, args)
	}
}

// runShellLine runs one command and prints its result
func runShellLine(l *readline.Instance, session *client.Session, args []string) {
	ctx, cancel := requestContext()
	defer cancel()

	res, err := session.DoStrings(ctx, args[0], args[1:]...)
	if err != nil {
		fmt.Fprintf(l.Stderr(), "(error) %v\n", err)
		if !common.IsRemote(err) {
			// the server drops the transaction of a session whose connection broke
			fmt.Fprintln(l.Stderr(), "(warning) request failed in transport, an open transaction may be lost")
		}
		return
	}
	fmt.Fprintln(l.Stdout(), res.String())
}

func printShellHelp(w io.Writer) {
	group := ""
	for _, c := range core.Commands() {
		if c.Group != group {
			group = c.Group
			fmt.Fprintf(w, "\n%s:\n", group)
		}
		fmt.Fprintf(w, "  %-32s %s\n", strings.TrimSpace(c.Name+" "+c.Usage), c.Summary)
	}
	fmt.Fprintf(w, "\n  %-32s %s\n\n", "exit", "Leave the shell")
}

func shellCompleter() *readline.PrefixCompleter {
	var items []readline.PrefixCompleterInterface
	for _, c := range core.Commands() {
		items = append(items, readline.PcItem(c.Name))
	}
	items = append(items, readline.PcItem("help"), readline.PcItem("exit"))
	return readline.NewPrefixCompleter(items...)
}

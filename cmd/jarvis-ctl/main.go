package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/afero"
	"github.com/spf13/cobra"

	"jarvis/internal/ipc"
	"jarvis/internal/provision"
)

type client struct {
	socket  string
	lang    string
	timeout time.Duration
	out     io.Writer
}

func main() {
	if err := newRoot(os.Stdout).ExecuteContext(context.Background()); err != nil {
		os.Exit(1)
	}
}

func newRoot(out io.Writer) *cobra.Command {
	c := &client{out: out}

	root := &cobra.Command{
		Use:          "jarvis-ctl",
		Short:        "Control a running jarvis-daemon.",
		SilenceUsage: true,
	}
	root.SetOut(out)
	root.SetErr(out)

	root.PersistentFlags().StringVarP(&c.socket, "socket", "s", ipc.DefaultSocketPath, "Daemon control socket")
	root.PersistentFlags().DurationVarP(&c.timeout, "timeout", "t", 2*time.Minute, "How long to wait for the daemon")

	root.AddCommand(
		c.simple("trigger", "Start listening for a command without the wake word", ipc.CmdTrigger),
		c.simple("stop", "Stop speech and capture, drop queued commands", ipc.CmdStop),
		c.simple("ping", "Check that the daemon answers", ipc.CmdPing),
		c.simple("history", "Print the conversation so far", ipc.CmdHistory),
		c.simple("clear", "Forget the conversation", ipc.CmdClear),
		c.simple("models", "List the models the endpoint offers", ipc.CmdModels),
		c.textCmd("say <text>", "Send a typed command", ipc.CmdSay),
		c.textCmd("speak <text>", "Speak text as is", ipc.CmdSpeak),
		c.cmdLang(),
		c.cmdStatus(),
		c.cmdFile(),
		c.cmdConfig(),
		cmdInit(out),
	)
	return root
}

func (c *client) send(ctx context.Context, req ipc.Request) (ipc.Response, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	resp, err := ipc.Send(ctx, c.socket, req)
	if err != nil {
		return resp, err
	}
	if !resp.OK {
		return resp, errors.New(resp.Error)
	}
	return resp, nil
}

func (c *client) print(resp ipc.Response) {
	if resp.Text != "" {
		fmt.Fprintln(c.out, resp.Text)
	}
}

func (c *client) simple(use, short, name string) *cobra.Command {
	return &cobra.Command{
		Use:   use,
		Short: short,
		Args:  cobra.NoArgs,
		RunE: func(cc *cobra.Command, _ []string) error {
			resp, err := c.send(cc.Context(), ipc.Request{Cmd: name})
			if err != nil {
				return err
			}
			c.print(resp)
			return nil
		},
	}
}

func (c *client) textCmd(use, short, name string) *cobra.Command {
	var l string
	command := &cobra.Command{
		Use:   use,
		Short: short,
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cc *cobra.Command, args []string) error {
			resp, err := c.send(cc.Context(), ipc.Request{Cmd: name, Text: strings.Join(args, " "), Lang: l})
			if err != nil {
				return err
			}
			c.print(resp)
			return nil
		},
	}
	command.Flags().StringVarP(&l, "lang", "l", "", "Language of the text (default: the session's)")
	return command
}

func (c *client) cmdLang() *cobra.Command {
	return &cobra.Command{
		Use:   "lang [code]",
		Short: "Show or switch the session language",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cc *cobra.Command, args []string) error {
			req := ipc.Request{Cmd: ipc.CmdLang}
			if len(args) == 1 {
				req.Lang = args[0]
			}
			resp, err := c.send(cc.Context(), req)
			if err != nil {
				return err
			}
			c.print(resp)
			return nil
		},
	}
}

func (c *client) cmdStatus() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Print the session status",
		Args:  cobra.NoArgs,
		RunE: func(cc *cobra.Command, _ []string) error {
			resp, err := c.send(cc.Context(), ipc.Request{Cmd: ipc.CmdStatus})
			if err != nil {
				return err
			}
			var buf bytes.Buffer
			if err := json.Indent(&buf, resp.Status, "", "  "); err != nil {
				return fmt.Errorf("decode status: %w", err)
			}
			fmt.Fprintln(c.out, buf.String())
			return nil
		},
	}
}

func (c *client) cmdFile() *cobra.Command {
	var l string
	command := &cobra.Command{
		Use:   "file <path>",
		Short: "Transcribe an audio file and run it as a command",
		Args:  cobra.ExactArgs(1),
		RunE: func(cc *cobra.Command, args []string) error {
			path, err := filepath.Abs(args[0])
			if err != nil {
				return err
			}
			resp, err := c.send(cc.Context(), ipc.Request{Cmd: ipc.CmdFile, Text: path, Lang: l})
			if err != nil {
				return err
			}
			c.print(resp)
			return nil
		},
	}
	command.Flags().StringVarP(&l, "lang", "l", "", "Spoken language (default: the session's)")
	return command
}

func (c *client) cmdConfig() *cobra.Command {
	command := &cobra.Command{
		Use:   "config",
		Short: "Read or change the daemon configuration",
	}

	get := &cobra.Command{
		Use:   "get <key>",
		Short: "Print a value, e.g. languages.default",
		Args:  cobra.ExactArgs(1),
		RunE: func(cc *cobra.Command, args []string) error {
			resp, err := c.send(cc.Context(), ipc.Request{Cmd: ipc.CmdConfigGet, Key: args[0]})
			if err != nil {
				return err
			}
			c.print(resp)
			return nil
		},
	}

	set := &cobra.Command{
		Use:   "set <key> <value>",
		Short: "Change a value and save the user config",
		Args:  cobra.ExactArgs(2),
		RunE: func(cc *cobra.Command, args []string) error {
			resp, err := c.send(cc.Context(), ipc.Request{Cmd: ipc.CmdConfigSet, Key: args[0], Value: args[1]})
			if err != nil {
				return err
			}
			c.print(resp)
			return nil
		},
	}

	command.AddCommand(get, set)
	return command
}

func cmdInit(out io.Writer) *cobra.Command {
	var dir string
	command := &cobra.Command{
		Use:   "init",
		Short: "Create the working directory layout and seed .env",
		Args:  cobra.NoArgs,
		RunE: func(_ *cobra.Command, _ []string) error {
			rep, err := provision.Run(afero.NewOsFs(), dir)
			if err != nil {
				return err
			}
			for _, d := range rep.Created {
				fmt.Fprintln(out, "created", d)
			}
			fmt.Fprintln(out, provision.EnvFile, rep.Env)
			for _, w := range rep.Warnings {
				fmt.Fprintln(out, "warning:", w)
			}
			return nil
		},
	}
	command.Flags().StringVarP(&dir, "dir", "d", ".", "Directory to provision")
	return command
}

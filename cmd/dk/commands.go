package main

import (
	"errors"
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/briandowns/spinner"
	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/atinyakov/oroio/internal/models"
	"github.com/atinyakov/oroio/internal/service"
)

func (c *cli) listCmd() *cobra.Command {
	return &cobra.Command{
		Use:     "list",
		Aliases: []string{"ls"},
		Short:   "List stored keys with their cached usage",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			c.printList(cmd.OutOrStdout(), cmd)
			return nil
		},
	}
}

func (c *cli) printList(out io.Writer, cmd *cobra.Command) {
	ctx := cmd.Context()
	keys := c.app.Keys.List(ctx)
	if len(keys) == 0 {
		fmt.Fprintln(out, color.YellowString("No keys stored.")+" Add one with "+color.CyanString("dk add <key>"))
		return
	}

	current := c.app.Keys.Current(ctx)
	cache, valid, _ := c.app.Keys.Usage()
	for i, k := range keys {
		marker := " "
		if i+1 == current {
			marker = color.GreenString("*")
		}
		line := fmt.Sprintf("%s %2d  %-22s", marker, i+1, models.MaskKey(k))
		if snap, ok := cache.Lookup(i); ok && valid {
			line += "  " + formatUsage(snap)
		}
		fmt.Fprintln(out, line)
	}

	switch {
	case cache == nil:
		fmt.Fprintln(out, color.CyanString("→")+" No usage data yet, run "+color.YellowString("dk refresh"))
	case !valid:
		fmt.Fprintln(out, color.YellowString("!")+" Usage data is stale, run "+color.YellowString("dk refresh"))
	default:
		fmt.Fprintln(out, color.CyanString("→")+" Usage as of "+cache.Timestamp.Local().Format(time.DateTime))
	}
}

func formatUsage(s models.Snapshot) string {
	switch s.Raw {
	case models.RawHTTPError:
		return color.RedString("invalid key")
	case models.RawNoUsage:
		return color.YellowString("no usage data")
	}
	balance := formatTokens(s.BalanceNum)
	if s.BalanceNum <= 0 {
		balance = color.RedString(balance)
	} else {
		balance = color.GreenString(balance)
	}
	return fmt.Sprintf("%s / %s left, expires %s", balance, formatTokens(s.Total), s.Expires)
}

func formatTokens(n int64) string {
	abs := n
	if abs < 0 {
		abs = -abs
	}
	switch {
	case abs >= 1_000_000:
		return strconv.FormatFloat(float64(n)/1e6, 'f', 1, 64) + "M"
	case abs >= 1_000:
		return strconv.FormatFloat(float64(n)/1e3, 'f', 1, 64) + "k"
	default:
		return strconv.FormatInt(n, 10)
	}
}

func (c *cli) addCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "add <key>",
		Short: "Append a key to the store",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			n, err := c.app.Keys.Add(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s Added. %d keys stored.\n", color.GreenString("✓"), n)
			return nil
		},
	}
}

func (c *cli) rmCmd() *cobra.Command {
	return &cobra.Command{
		Use:     "rm <index>",
		Aliases: []string{"remove"},
		Short:   "Remove the key at a position",
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			idx, err := parseIndexArg(args[0])
			if err != nil {
				return err
			}
			n, err := c.app.Keys.RemoveAt(cmd.Context(), idx)
			if err != nil {
				return explain(err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s Removed. %d keys left.\n", color.GreenString("✓"), n)
			return nil
		},
	}
}

func (c *cli) useCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "use <index>",
		Short: "Make the key at a position current",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			idx, err := parseIndexArg(args[0])
			if err != nil {
				return err
			}
			if err := c.app.Keys.SelectAt(cmd.Context(), idx); err != nil {
				return explain(err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s Switched to key %d\n", color.GreenString("✓"), idx)
			return nil
		},
	}
}

func (c *cli) currentCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "current",
		Short: "Print the current key",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			_, key, ok := c.app.Keys.CurrentKey(cmd.Context())
			if !ok {
				return errors.New("no keys stored")
			}
			fmt.Fprintln(cmd.OutOrStdout(), key)
			return nil
		},
	}
}

func (c *cli) refreshCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "refresh",
		Short: "Fetch usage for every key and update the cache",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			s := spinner.New(spinner.CharSets[14], 100*time.Millisecond)
			s.Writer = cmd.ErrOrStderr()
			s.Suffix = " Fetching usage..."
			s.Start()
			err := c.app.Keys.Refresh(cmd.Context())
			s.Stop()
			if err != nil {
				return err
			}
			c.printList(cmd.OutOrStdout(), cmd)
			return nil
		},
	}
}

func parseIndexArg(arg string) (int, error) {
	idx, err := strconv.Atoi(arg)
	if err != nil {
		return 0, fmt.Errorf("invalid index %q", arg)
	}
	return idx, nil
}

func explain(err error) error {
	if errors.Is(err, service.ErrRange) {
		return fmt.Errorf("%w, see dk list", err)
	}
	return err
}

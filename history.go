package main

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"constellationFinder/core"
	"constellationFinder/storage"
)

var historyCmd = &cobra.Command{
	Use:     "history",
	Aliases: []string{"ls"},
	Short:   "List saved locations and their narrations",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		store, err := openStore(cmd.Context(), cfg)
		if err != nil {
			return err
		}
		defer store.Close()

		limit, _ := cmd.Flags().GetInt("limit")
		locs, err := store.ListLocations(cmd.Context(), storage.ClampLimit(limit))
		if err != nil {
			return fmt.Errorf("failed to list locations: %w", err)
		}
		out := cmd.OutOrStdout()
		if len(locs) == 0 {
			fmt.Fprintln(out, "No locations saved yet.")
			return nil
		}
		for _, loc := range locs {
			qs, err := store.ListNarrations(cmd.Context(), loc.ID, storage.DefaultListLimit)
			if err != nil {
				fmt.Fprintf(os.Stderr, "warning: narrations for location %d: %v\n", loc.ID, err)
			}
			printLocation(out, loc, qs)
		}
		return nil
	},
}

var faint = color.New(color.Faint)

func printLocation(w io.Writer, loc core.LocationSample, qs []core.NarrationQuery) {
	owner := ""
	if loc.Owner != "" {
		owner = " " + color.YellowString(loc.Owner)
	}
	fmt.Fprintf(w, "#%d %s%s %s\n",
		loc.ID,
		color.CyanString("%.4f, %.4f", loc.Latitude, loc.Longitude),
		owner,
		faint.Sprint(loc.CreatedAt.Local().Format("2006-01-02 15:04")),
	)
	if len(qs) == 0 {
		fmt.Fprintln(w, faint.Sprint("  (no narrations)"))
		return
	}
	for _, q := range qs {
		names := "none recognised"
		if len(q.Constellations) > 0 {
			names = strings.Join(q.Constellations, ", ")
		}
		fmt.Fprintf(w, "  query %d: %s %s\n", q.ID, color.GreenString(names), faint.Sprint(q.CreatedAt.Local().Format("15:04")))
	}
}

var purgeOwnerCmd = &cobra.Command{
	Use:   "purge-owner <owner>",
	Short: "Delete every location and narration recorded for an owner",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		owner := strings.TrimSpace(args[0])
		if owner == "" {
			return fmt.Errorf("owner must not be blank")
		}
		confirm, _ := cmd.Flags().GetBool("confirm")
		if !confirm {
			fmt.Fprintf(cmd.OutOrStdout(), "Delete all data for '%s'? [y/N] ", owner)
			response, _ := bufio.NewReader(cmd.InOrStdin()).ReadString('\n')
			response = strings.TrimSpace(strings.ToLower(response))
			if response != "y" && response != "yes" {
				fmt.Fprintln(cmd.OutOrStdout(), "Cancelled.")
				return nil
			}
		}

		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		store, err := openStore(cmd.Context(), cfg)
		if err != nil {
			return err
		}
		defer store.Close()

		n, err := store.DeleteOwner(cmd.Context(), owner)
		if err != nil {
			return fmt.Errorf("failed to purge owner: %w", err)
		}
		color.New(color.FgGreen).Fprintf(cmd.OutOrStdout(), "✓ Removed %d location(s) for %s\n", n, owner)
		return nil
	},
}

func init() {
	historyCmd.Flags().Int("limit", storage.DefaultListLimit, "maximum number of locations")
	purgeOwnerCmd.Flags().Bool("confirm", false, "skip confirmation prompt")
	rootCmd.AddCommand(historyCmd, purgeOwnerCmd)
}

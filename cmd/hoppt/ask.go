package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/permaevidence/HopPT/internal/pipeline"
)

func askCMD() *cobra.Command {
	var cfgPath string
	var quiet bool
	ask := &cobra.Command{
		Use:   "ask [question]",
		Short: "Answer one question with live web context",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			question := strings.TrimSpace(strings.Join(args, " "))
			if question == "" {
				return errors.New("question is empty")
			}

			a, err := buildApp(cfgPath)
			if err != nil {
				return err
			}
			defer a.Close()

			ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer cancel()

			onStatus := func(ev pipeline.StatusEvent) {
				if quiet {
					return
				}
				switch ev.Stage {
				case pipeline.StageGeneratingQueries:
					fmt.Fprintln(os.Stderr, "* generating queries")
				case pipeline.StageAnalyzingResults:
					fmt.Fprintln(os.Stderr, "* analyzing results")
				case pipeline.StageScraping:
					fmt.Fprintf(os.Stderr, "* scraping %s\n", strings.Join(ev.URLs, ", "))
				}
			}

			err = a.pipeline.Run(ctx, question, nil, onStatus, func(delta string) {
				fmt.Print(delta)
			})
			fmt.Println()
			if errors.Is(err, context.Canceled) {
				return nil
			}
			return err
		},
	}
	ask.Flags().BoolVarP(&quiet, "quiet", "q", false, "suppress status output")
	ask.PersistentFlags().StringVarP(&cfgPath, "config", "c", "", "config file path")
	return ask
}

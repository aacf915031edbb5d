package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"taskboard/board-client/eventchannel"
	"taskboard/board-client/livebridge"
	"taskboard/board-client/reconcile"
	"taskboard/board-client/snapshot"
	"taskboard/domain"
	"taskboard/internal/redisconn"
)

var watchCmd = &cobra.Command{
	Use:   "watch <board-id>",
	Short: "Print a board and reprint it whenever someone changes it",
	Args:  cobra.ExactArgs(1),
	RunE:  runWatch,
}

var watchWindow string

func init() {
	rootCmd.AddCommand(watchCmd)
	watchCmd.Flags().StringVar(&watchWindow, "window", reconcile.DefaultWindow.String(), "Quiescence window before reloading")
}

func runWatch(cmd *cobra.Command, args []string) error {
	if flagRedis == "" {
		return fmt.Errorf("--redis or BOARD_REDIS is required to watch a board")
	}
	window, err := parsePositiveDuration("--window", watchWindow)
	if err != nil {
		return err
	}
	e, err := newEngine()
	if err != nil {
		return err
	}
	rc, err := redisconn.NewClient(flagRedis)
	if err != nil {
		return err
	}
	defer rc.Close()

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if _, err := e.gateway.LoadBoard(ctx, args[0], domain.TaskFilter{}); err != nil {
		return err
	}
	out := cmd.OutOrStdout()
	printBoard(out, e.store.Board())
	unsubscribe := e.store.Subscribe(func(s snapshot.Snapshot) {
		if s.Board != nil {
			fmt.Fprintln(out)
			printBoard(out, s.Board)
		}
	})
	defer unsubscribe()

	notices, stopNotices := e.notices.Subscribe(16)
	defer stopNotices()
	go func() {
		for n := range notices {
			fmt.Fprintf(cmd.ErrOrStderr(), "%s: %s\n", n.Kind, n.Text)
		}
	}()

	channel := eventchannel.New(rc, e.logger)
	defer channel.Close()
	bridge := livebridge.New(channel, e.gateway, reconcile.Options{
		Window: window,
		Logger: e.logger,
		OnFailure: func(err error) {
			fmt.Fprintf(cmd.ErrOrStderr(), "reload failed: %v\n", err)
		},
	})
	return bridge.Watch(ctx, args[0], e.user, func(*livebridge.Session) error {
		<-ctx.Done()
		return nil
	})
}

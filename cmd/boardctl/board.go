package main

import (
	"fmt"
	"io"
	"strings"
	"time"

	"crmboard/internal/board/domain"
	"crmboard/internal/kanban"
	"crmboard/pkg/boardclient"

	"github.com/spf13/cobra"
)

// renderBoard prints one block per stage with its cards
func renderBoard(w io.Writer, b kanban.Board) {
	fmt.Fprintf(w, "%s board of %s: %d stages, %d cards\n", b.BoardType, b.TenantID, len(b.Columns), b.CardCount())
	for _, col := range b.Columns {
		total := 0.0
		for _, c := range col.Cards {
			total += c.Value
		}
		fmt.Fprintf(w, "\n[%d] %s (%s) %d cards", col.Stage.Order, col.Stage.Name, col.Stage.ID, len(col.Cards))
		if total > 0 {
			fmt.Fprintf(w, ", value %.2f", total)
		}
		fmt.Fprintln(w)
		for _, c := range col.Cards {
			fmt.Fprintf(w, "  - %s  %s [%s]", c.ID, c.Title, c.Priority)
			if c.Value > 0 {
				fmt.Fprintf(w, " %.2f", c.Value)
			}
			if c.AssigneeID != "" {
				fmt.Fprintf(w, " @%s", c.AssigneeID)
			}
			fmt.Fprintln(w)
		}
	}
}

func (a *app) boardCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "board",
		Short: "Show or follow a board",
	}
	cmd.AddCommand(a.boardShowCmd(), a.boardWatchCmd())
	return cmd
}

func (a *app) boardShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "Print the board",
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := a.loadStore(cmd.Context(), cmd)
			if err != nil {
				return err
			}
			renderBoard(cmd.OutOrStdout(), store.Board())
			return nil
		},
	}
}

func (a *app) boardWatchCmd() *cobra.Command {
	var quiet time.Duration

	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Follow the board live; production boards are autosaved",
		RunE: func(cmd *cobra.Command, args []string) error {
			tenantID, err := a.tenant()
			if err != nil {
				return err
			}
			bt, err := a.board()
			if err != nil {
				return err
			}
			ctx, stop := signalContext(cmd.Context())
			defer stop()

			out := cmd.OutOrStdout()
			store := kanban.NewStore(a.client, bt, kanban.WithLogger(a.log), kanban.WithNotifier(a.notifier(cmd)))
			unsubscribe := store.Subscribe(func(b kanban.Board) {
				fmt.Fprintf(out, "\n--- %s ---\n", time.Now().Format("15:04:05"))
				renderBoard(out, b)
			})
			defer unsubscribe()

			if bt == domain.BoardProduction {
				key := domain.SnapshotKey{TenantID: tenantID, BoardType: bt}
				if user := a.client.Session().State().User; user != nil {
					key.UserID = user.ID
				}
				saver := kanban.NewAutosaver(a.client, key,
					kanban.WithQuietPeriod(quiet),
					kanban.WithAutosaveLogger(a.log),
					kanban.WithResultHook(func(err error) {
						if err != nil {
							fmt.Fprintf(cmd.ErrOrStderr(), "! autosave failed: %v\n", err)
						}
					}))
				detach := saver.Attach(store)
				defer func() {
					detach()
					if err := saver.Flush(cmd.Context()); err != nil {
						a.log.Warn().Err(err).Msg("final autosave failed")
					}
					saver.Stop()
				}()
			}

			listener := kanban.NewListener(boardclient.NewFeed(a.client), store, kanban.WithListenerLogger(a.log))
			listener.Start(ctx, tenantID)
			defer listener.Stop()

			// a token refresh for another tenant re-targets the listener
			stopAuth := a.client.Session().OnChange(func(state boardclient.AuthState) {
				if state.SignedIn && state.TenantID() != "" {
					listener.Start(ctx, state.TenantID())
				}
			})
			defer stopAuth()

			fmt.Fprintf(out, "Watching %s board of %s, press Ctrl+C to stop\n", bt, tenantID)
			<-ctx.Done()
			return nil
		},
	}

	cmd.Flags().DurationVar(&quiet, "autosave-delay", kanban.DefaultQuietPeriod, "Quiet period before a production board snapshot is saved")
	return cmd
}

func (a *app) stageCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "stage",
		Short: "Manage stages (admins)",
	}

	var color string
	add := &cobra.Command{
		Use:   "add <name>",
		Short: "Append a stage",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := a.loadStore(cmd.Context(), cmd)
			if err != nil {
				return err
			}
			stage, err := store.AddStage(cmd.Context(), dtoStage(strings.Join(args, " "), color))
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Added stage %s (%s) at order %d\n", stage.Name, stage.ID, stage.Order)
			return nil
		},
	}
	add.Flags().StringVar(&color, "color", "", "Stage color")

	del := &cobra.Command{
		Use:   "delete <stage-id>",
		Short: "Delete a stage; its cards move to the first remaining stage",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := a.loadStore(cmd.Context(), cmd)
			if err != nil {
				return err
			}
			if err := store.DeleteStage(cmd.Context(), args[0]); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Deleted stage %s\n", args[0])
			return nil
		},
	}

	cmd.AddCommand(add, del)
	return cmd
}

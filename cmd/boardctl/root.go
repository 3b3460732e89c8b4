package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"crmboard/internal/board/domain"
	"crmboard/internal/kanban"
	"crmboard/pkg/boardclient"
	"crmboard/pkg/logger"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
)

var errSignedOut = errors.New("not signed in, run 'boardctl login' first")

type app struct {
	server      string
	sessionPath string
	logLevel    string
	boardType   string

	log    zerolog.Logger
	client *boardclient.Client
}

func defaultSessionPath() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		return ".boardctl-session.json"
	}
	return filepath.Join(dir, "crmboard", "session.json")
}

func rootCmd() *cobra.Command {
	a := &app{}

	cmd := &cobra.Command{
		Use:           "boardctl",
		Short:         "Work with crmboard funnels and production boards",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.setup(cmd)
		},
	}

	cmd.PersistentFlags().StringVar(&a.server, "server", envOr("CRMBOARD_SERVER", "http://localhost:8080"), "API base URL")
	cmd.PersistentFlags().StringVar(&a.sessionPath, "session", defaultSessionPath(), "Session file")
	cmd.PersistentFlags().StringVar(&a.logLevel, "log-level", "warn", "Log level (debug, info, warn, error)")
	cmd.PersistentFlags().StringVarP(&a.boardType, "board", "b", string(domain.BoardFunnel), "Board type (funnel, production)")

	cmd.AddCommand(a.loginCmd(), a.logoutCmd(), a.whoamiCmd(), a.boardCmd(), a.stageCmd(), a.cardCmd())
	return cmd
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func (a *app) setup(cmd *cobra.Command) error {
	logData, err := logger.New().FromBuffer(cmd.ErrOrStderr()).WithLevel(a.logLevel).Console().Make()
	if err != nil {
		return err
	}
	a.log = logData.Logger

	session, err := boardclient.LoadSession(a.sessionPath)
	if err != nil {
		return fmt.Errorf("read session: %w", err)
	}
	a.client = boardclient.New(a.server, session, boardclient.WithLogger(a.log))
	// keep rotated tokens on disk
	session.OnChange(func(state boardclient.AuthState) {
		if err := session.Save(a.sessionPath); err != nil {
			a.log.Warn().Err(err).Msg("failed to save session")
		}
	})
	return nil
}

func (a *app) board() (domain.BoardType, error) {
	bt := domain.BoardType(a.boardType)
	if !bt.Valid() {
		return "", fmt.Errorf("unknown board type %q", a.boardType)
	}
	return bt, nil
}

func (a *app) tenant() (string, error) {
	state := a.client.Session().State()
	if !state.SignedIn || state.TenantID() == "" {
		return "", errSignedOut
	}
	return state.TenantID(), nil
}

// notifier prints failed optimistic mutations, which the store has already rolled back
func (a *app) notifier(cmd *cobra.Command) kanban.Notifier {
	return kanban.NotifierFunc(func(op string, err error) {
		fmt.Fprintf(cmd.ErrOrStderr(), "! %s failed, change reverted: %v\n", op, err)
	})
}

// loadStore loads the selected board of the signed in tenant
func (a *app) loadStore(ctx context.Context, cmd *cobra.Command) (*kanban.Store, error) {
	tenantID, err := a.tenant()
	if err != nil {
		return nil, err
	}
	bt, err := a.board()
	if err != nil {
		return nil, err
	}
	store := kanban.NewStore(a.client, bt, kanban.WithLogger(a.log), kanban.WithNotifier(a.notifier(cmd)))
	if _, err := store.Load(ctx, tenantID); err != nil {
		return nil, err
	}
	return store, nil
}

func signalContext(parent context.Context) (context.Context, context.CancelFunc) {
	return signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
}

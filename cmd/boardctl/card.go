package main

import (
	"errors"
	"fmt"
	"strings"

	"crmboard/internal/board/dto"
	"crmboard/internal/kanban"

	"github.com/spf13/cobra"
)

func dtoStage(name, color string) dto.StageInput {
	return dto.StageInput{Name: name, Color: color}
}

func (a *app) cardCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "card",
		Short: "Create, move, edit and search cards",
	}
	cmd.AddCommand(a.cardAddCmd(), a.cardMoveCmd(), a.cardEditCmd(), a.cardDeleteCmd(), a.cardSearchCmd(), a.cardHistoryCmd())
	return cmd
}

func (a *app) cardAddCmd() *cobra.Command {
	var in dto.CardInput

	cmd := &cobra.Command{
		Use:   "add <stage-id> <title>",
		Short: "Add a card to a stage",
		Args:  cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := a.loadStore(cmd.Context(), cmd)
			if err != nil {
				return err
			}
			in.StageID = args[0]
			in.Title = strings.Join(args[1:], " ")
			card, err := store.AddCard(cmd.Context(), in)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Added card %s to %s\n", card.ID, card.StageID)
			return nil
		},
	}

	cmd.Flags().StringVar(&in.Description, "description", "", "Card description")
	cmd.Flags().StringVar(&in.Priority, "priority", "medium", "Priority (high, medium, low)")
	cmd.Flags().Float64Var(&in.Value, "value", 0, "Lead value")
	cmd.Flags().StringVar(&in.AssigneeID, "assignee", "", "Assignee user id")
	cmd.Flags().StringVar(&in.Source, "source", "", "Lead source")
	return cmd
}

func (a *app) cardMoveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "move <card-id> <stage-id>",
		Short: "Move a card to another stage",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := a.loadStore(cmd.Context(), cmd)
			if err != nil {
				return err
			}
			cardID, target := args[0], args[1]
			_, from, ok := store.Board().FindCard(cardID)
			if !ok {
				return fmt.Errorf("card %s: %w", cardID, kanban.ErrCardNotFound)
			}
			if _, ok := store.Board().Column(target); !ok {
				return fmt.Errorf("stage %s: %w", target, kanban.ErrStageNotFound)
			}

			// same gesture as a drag from the card's column onto the target column
			drag := kanban.NewDragAdapter(store)
			if err := drag.Start(cardID, from); err != nil {
				return err
			}
			drag.Enter(target)
			moved, err := drag.Drop(cmd.Context(), target)
			if err != nil {
				return err
			}
			if !moved {
				fmt.Fprintf(cmd.OutOrStdout(), "Card %s is already in %s\n", cardID, target)
				return nil
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Moved card %s from %s to %s\n", cardID, from, target)
			return nil
		},
	}
}

func (a *app) cardEditCmd() *cobra.Command {
	var (
		title, description, priority, assignee, source string
		value                                          float64
	)

	cmd := &cobra.Command{
		Use:   "edit <card-id>",
		Short: "Change card fields",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var patch dto.CardPatch
			flags := cmd.Flags()
			if flags.Changed("title") {
				patch.Title = &title
			}
			if flags.Changed("description") {
				patch.Description = &description
			}
			if flags.Changed("priority") {
				patch.Priority = &priority
			}
			if flags.Changed("value") {
				patch.Value = &value
			}
			if flags.Changed("assignee") {
				patch.AssigneeID = &assignee
			}
			if flags.Changed("source") {
				patch.Source = &source
			}
			if patch.Empty() {
				return errors.New("nothing to change, pass at least one field flag")
			}

			store, err := a.loadStore(cmd.Context(), cmd)
			if err != nil {
				return err
			}
			card, err := store.EditCard(cmd.Context(), args[0], patch)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Updated card %s: %s [%s]\n", card.ID, card.Title, card.Priority)
			return nil
		},
	}

	cmd.Flags().StringVar(&title, "title", "", "Card title")
	cmd.Flags().StringVar(&description, "description", "", "Card description")
	cmd.Flags().StringVar(&priority, "priority", "", "Priority (high, medium, low)")
	cmd.Flags().Float64Var(&value, "value", 0, "Lead value")
	cmd.Flags().StringVar(&assignee, "assignee", "", "Assignee user id")
	cmd.Flags().StringVar(&source, "source", "", "Lead source")
	return cmd
}

func (a *app) cardDeleteCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "delete <card-id>",
		Short: "Delete a card",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := a.loadStore(cmd.Context(), cmd)
			if err != nil {
				return err
			}
			if err := store.DeleteCard(cmd.Context(), args[0]); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Deleted card %s\n", args[0])
			return nil
		},
	}
}

func (a *app) cardSearchCmd() *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "search <query>",
		Short: "Find cards by title, source or description (typos tolerated)",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			tenantID, err := a.tenant()
			if err != nil {
				return err
			}
			bt, err := a.board()
			if err != nil {
				return err
			}
			results, err := a.client.SearchCards(cmd.Context(), tenantID, bt, strings.Join(args, " "), limit)
			if err != nil {
				return err
			}
			if len(results) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "No matching cards")
				return nil
			}
			for _, r := range results {
				fmt.Fprintf(cmd.OutOrStdout(), "%6.1f  %s  %s (stage %s)\n", r.Score, r.Card.ID, r.Card.Title, r.Card.StageID)
			}
			return nil
		},
	}

	cmd.Flags().IntVarP(&limit, "limit", "n", 10, "Maximum results")
	return cmd
}

func (a *app) cardHistoryCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "history <card-id>",
		Short: "List the stage transitions of a card",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			tenantID, err := a.tenant()
			if err != nil {
				return err
			}
			bt, err := a.board()
			if err != nil {
				return err
			}
			history, err := a.client.CardHistory(cmd.Context(), tenantID, bt, args[0])
			if err != nil {
				return err
			}
			for _, h := range history {
				fmt.Fprintf(cmd.OutOrStdout(), "%s  %s -> %s  by %s\n", h.CreatedAt.Format("2006-01-02 15:04"), h.FromStageID, h.ToStageID, h.ActorID)
			}
			return nil
		},
	}
}

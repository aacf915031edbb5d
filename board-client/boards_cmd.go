package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"taskboard/domain"
)

var boardsCmd = &cobra.Command{
	Use:   "boards",
	Short: "List and manage boards",
}

var boardsListCmd = &cobra.Command{
	Use:     "list",
	Aliases: []string{"ls"},
	Short:   "List boards",
	Args:    cobra.NoArgs,
	RunE:    runBoardsList,
}

var (
	boardsListMine    bool
	boardsListTitle   string
	boardsListStarred bool
)

var boardsAddCmd = &cobra.Command{
	Use:   "add <title>",
	Short: "Create a board",
	Args:  cobra.ExactArgs(1),
	RunE:  runBoardsAdd,
}

var (
	boardsAddColor string
	boardsAddImage string
)

var boardsRemoveCmd = &cobra.Command{
	Use:     "rm <board-id>",
	Aliases: []string{"remove"},
	Short:   "Delete a board",
	Args:    cobra.ExactArgs(1),
	RunE:    runBoardsRemove,
}

var boardsStarCmd = &cobra.Command{
	Use:   "star <board-id>",
	Short: "Toggle the starred flag of a board",
	Args:  cobra.ExactArgs(1),
	RunE:  runBoardsStar,
}

func init() {
	rootCmd.AddCommand(boardsCmd)
	boardsCmd.AddCommand(boardsListCmd, boardsAddCmd, boardsRemoveCmd, boardsStarCmd)

	boardsListCmd.Flags().BoolVar(&boardsListMine, "mine", false, "Only boards created by or shared with --user")
	boardsListCmd.Flags().StringVar(&boardsListTitle, "title", "", "Only boards whose title contains this text")
	boardsListCmd.Flags().BoolVar(&boardsListStarred, "starred", false, "Only starred boards")

	boardsAddCmd.Flags().StringVar(&boardsAddColor, "color", "", "Background color")
	boardsAddCmd.Flags().StringVar(&boardsAddImage, "image", "", "Background image URL")
}

func runBoardsList(cmd *cobra.Command, args []string) error {
	e, err := newEngine()
	if err != nil {
		return err
	}
	filter := domain.BoardFilter{Title: boardsListTitle}
	if boardsListMine {
		filter.CreatedBy = flagUser
	}
	boards, err := e.gateway.LoadBoards(cmd.Context(), filter)
	if err != nil {
		return err
	}
	if boardsListStarred {
		boards = e.store.Starred()
	}
	printBoardList(cmd.OutOrStdout(), boards)
	return nil
}

func runBoardsAdd(cmd *cobra.Command, args []string) error {
	e, err := newEngine()
	if err != nil {
		return err
	}
	b, err := e.gateway.AddBoard(cmd.Context(), args[0], domain.Style{BackgroundColor: boardsAddColor, BackgroundImage: boardsAddImage})
	if err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), b.ID)
	return nil
}

func runBoardsRemove(cmd *cobra.Command, args []string) error {
	e, err := newEngine()
	if err != nil {
		return err
	}
	return e.gateway.RemoveBoard(cmd.Context(), args[0])
}

func runBoardsStar(cmd *cobra.Command, args []string) error {
	e, err := newEngine()
	if err != nil {
		return err
	}
	if _, err := e.gateway.LoadBoards(cmd.Context(), domain.BoardFilter{}); err != nil {
		return err
	}
	b, err := e.gateway.ToggleStar(cmd.Context(), args[0])
	if err != nil {
		return err
	}
	state := "unstarred"
	if b.IsStarred {
		state = "starred"
	}
	fmt.Fprintf(cmd.OutOrStdout(), "%s %s\n", b.ID, state)
	return nil
}

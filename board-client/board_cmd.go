package main

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"taskboard/domain"
)

var boardShowCmd = &cobra.Command{
	Use:   "show <board-id>",
	Short: "Print a board",
	Args:  cobra.ExactArgs(1),
	RunE:  runBoardShow,
}

var (
	showText    string
	showLabels  []string
	showMembers []string
)

var taskCmd = &cobra.Command{
	Use:   "task",
	Short: "Change tasks on a board",
}

var taskAddCmd = &cobra.Command{
	Use:   "add <board-id> <group-id> <title>",
	Short: "Append a task to a group",
	Args:  cobra.ExactArgs(3),
	RunE:  runTaskAdd,
}

var taskMoveCmd = &cobra.Command{
	Use:   "move <board-id> <task-id> <index>",
	Short: "Move a task to an index, optionally in another group",
	Args:  cobra.ExactArgs(3),
	RunE:  runTaskMove,
}

var taskMoveGroup string

var taskRemoveCmd = &cobra.Command{
	Use:     "rm <board-id> <task-id>",
	Aliases: []string{"remove"},
	Short:   "Delete a task",
	Args:    cobra.ExactArgs(2),
	RunE:    runTaskRemove,
}

var taskSetCmd = &cobra.Command{
	Use:   "set <board-id> <task-id> <key> <json-value>",
	Short: "Set one task field",
	Long: `Set one task field.

The value is JSON: strings are quoted, null clears optional fields.
Keys: title, description, dueDate, cover, checklists, attachments,
members, labels, position.`,
	Args: cobra.ExactArgs(4),
	RunE: runTaskSet,
}

var taskMemberCmd = &cobra.Command{
	Use:   "member <board-id> <task-id> <member-id>",
	Short: "Toggle a member assignment",
	Args:  cobra.ExactArgs(3),
	RunE:  runTaskMember,
}

var taskLabelCmd = &cobra.Command{
	Use:   "label <board-id> <task-id> <label-id>",
	Short: "Toggle a label",
	Args:  cobra.ExactArgs(3),
	RunE:  runTaskLabel,
}

var checklistMoveCmd = &cobra.Command{
	Use:   "checklist-move <board-id> <task-id> <checklist-id> <from> <to>",
	Short: "Reorder a checklist item",
	Args:  cobra.ExactArgs(5),
	RunE:  runChecklistMove,
}

var groupCmd = &cobra.Command{
	Use:   "group",
	Short: "Change groups on a board",
}

var groupAddCmd = &cobra.Command{
	Use:   "add <board-id> <title>",
	Short: "Append a group",
	Args:  cobra.ExactArgs(2),
	RunE:  runGroupAdd,
}

var groupMoveCmd = &cobra.Command{
	Use:   "move <board-id> <group-id> <index>",
	Short: "Move a group to an index",
	Args:  cobra.ExactArgs(3),
	RunE:  runGroupMove,
}

var groupRemoveCmd = &cobra.Command{
	Use:     "rm <board-id> <group-id>",
	Aliases: []string{"remove"},
	Short:   "Delete a group and its tasks",
	Args:    cobra.ExactArgs(2),
	RunE:    runGroupRemove,
}

var groupRenameCmd = &cobra.Command{
	Use:   "rename <board-id> <group-id> <title>",
	Short: "Rename a group",
	Args:  cobra.ExactArgs(3),
	RunE:  runGroupRename,
}

func init() {
	rootCmd.AddCommand(boardShowCmd, taskCmd, groupCmd)
	taskCmd.AddCommand(taskAddCmd, taskMoveCmd, taskRemoveCmd, taskSetCmd, taskMemberCmd, taskLabelCmd, checklistMoveCmd)
	groupCmd.AddCommand(groupAddCmd, groupMoveCmd, groupRemoveCmd, groupRenameCmd)

	boardShowCmd.Flags().StringVar(&showText, "text", "", "Only tasks whose title or description contains this text")
	boardShowCmd.Flags().StringSliceVar(&showLabels, "label", nil, "Only tasks with one of these label ids")
	boardShowCmd.Flags().StringSliceVar(&showMembers, "member", nil, "Only tasks assigned to one of these member ids")

	taskMoveCmd.Flags().StringVar(&taskMoveGroup, "to", "", "Destination group id (default: the task's group)")
}

// withBoard opens the board and runs fn against it.
func withBoard(ctx context.Context, boardID string, fn func(e *engine, b *domain.Board) (*domain.Board, error)) (*domain.Board, error) {
	e, err := newEngine()
	if err != nil {
		return nil, err
	}
	b, err := e.gateway.LoadBoard(ctx, boardID, domain.TaskFilter{})
	if err != nil {
		return nil, err
	}
	return fn(e, b)
}

func locateTask(b *domain.Board, taskID string) (string, error) {
	g, _ := b.LocateTask(taskID)
	if g == nil {
		return "", domain.TaskNotFound(taskID)
	}
	return g.ID, nil
}

func runBoardShow(cmd *cobra.Command, args []string) error {
	e, err := newEngine()
	if err != nil {
		return err
	}
	filter := domain.TaskFilter{Text: showText, LabelIDs: showLabels, MemberIDs: showMembers}
	b, err := e.gateway.LoadBoard(cmd.Context(), args[0], filter)
	if err != nil {
		return err
	}
	printBoard(cmd.OutOrStdout(), b)
	return nil
}

func runTaskAdd(cmd *cobra.Command, args []string) error {
	var task *domain.Task
	_, err := withBoard(cmd.Context(), args[0], func(e *engine, b *domain.Board) (*domain.Board, error) {
		nb, t, err := e.gateway.AddTask(cmd.Context(), b.ID, args[1], args[2])
		task = t
		return nb, err
	})
	if err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), task.ID)
	return nil
}

func runTaskMove(cmd *cobra.Command, args []string) error {
	index, err := strconv.Atoi(args[2])
	if err != nil {
		return fmt.Errorf("invalid index %q", args[2])
	}
	b, err := withBoard(cmd.Context(), args[0], func(e *engine, b *domain.Board) (*domain.Board, error) {
		from, err := locateTask(b, args[1])
		if err != nil {
			return nil, err
		}
		to := taskMoveGroup
		if to == "" {
			to = from
		}
		return e.gateway.MoveTask(cmd.Context(), b.ID, from, args[1], to, index)
	})
	if err != nil {
		return err
	}
	printBoard(cmd.OutOrStdout(), b)
	return nil
}

func runTaskRemove(cmd *cobra.Command, args []string) error {
	_, err := withBoard(cmd.Context(), args[0], func(e *engine, b *domain.Board) (*domain.Board, error) {
		groupID, err := locateTask(b, args[1])
		if err != nil {
			return nil, err
		}
		return e.gateway.DeleteTask(cmd.Context(), b.ID, groupID, args[1])
	})
	return err
}

func runTaskSet(cmd *cobra.Command, args []string) error {
	if !json.Valid([]byte(args[3])) {
		return fmt.Errorf("value for %s is not valid JSON: %s", args[2], args[3])
	}
	_, err := withBoard(cmd.Context(), args[0], func(e *engine, b *domain.Board) (*domain.Board, error) {
		groupID, err := locateTask(b, args[1])
		if err != nil {
			return nil, err
		}
		change := domain.Change{Key: args[2], Value: json.RawMessage(args[3])}
		return e.gateway.ApplyFieldChange(cmd.Context(), b.ID, groupID, args[1], change)
	})
	return err
}

func runTaskMember(cmd *cobra.Command, args []string) error {
	_, err := withBoard(cmd.Context(), args[0], func(e *engine, b *domain.Board) (*domain.Board, error) {
		groupID, err := locateTask(b, args[1])
		if err != nil {
			return nil, err
		}
		return e.gateway.ToggleTaskMember(cmd.Context(), b.ID, groupID, args[1], args[2])
	})
	return err
}

func runTaskLabel(cmd *cobra.Command, args []string) error {
	_, err := withBoard(cmd.Context(), args[0], func(e *engine, b *domain.Board) (*domain.Board, error) {
		groupID, err := locateTask(b, args[1])
		if err != nil {
			return nil, err
		}
		return e.gateway.ToggleTaskLabel(cmd.Context(), b.ID, groupID, args[1], args[2])
	})
	return err
}

func runChecklistMove(cmd *cobra.Command, args []string) error {
	from, err := strconv.Atoi(args[3])
	if err != nil {
		return fmt.Errorf("invalid index %q", args[3])
	}
	to, err := strconv.Atoi(args[4])
	if err != nil {
		return fmt.Errorf("invalid index %q", args[4])
	}
	_, err = withBoard(cmd.Context(), args[0], func(e *engine, b *domain.Board) (*domain.Board, error) {
		groupID, err := locateTask(b, args[1])
		if err != nil {
			return nil, err
		}
		return e.gateway.MoveChecklistItem(cmd.Context(), b.ID, groupID, args[1], args[2], from, to)
	})
	return err
}

func runGroupAdd(cmd *cobra.Command, args []string) error {
	b, err := withBoard(cmd.Context(), args[0], func(e *engine, b *domain.Board) (*domain.Board, error) {
		return e.gateway.AddGroup(cmd.Context(), b.ID, args[1])
	})
	if err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), b.Groups[len(b.Groups)-1].ID)
	return nil
}

func runGroupMove(cmd *cobra.Command, args []string) error {
	index, err := strconv.Atoi(args[2])
	if err != nil {
		return fmt.Errorf("invalid index %q", args[2])
	}
	b, err := withBoard(cmd.Context(), args[0], func(e *engine, b *domain.Board) (*domain.Board, error) {
		return e.gateway.MoveGroup(cmd.Context(), b.ID, args[1], index)
	})
	if err != nil {
		return err
	}
	printBoard(cmd.OutOrStdout(), b)
	return nil
}

func runGroupRemove(cmd *cobra.Command, args []string) error {
	_, err := withBoard(cmd.Context(), args[0], func(e *engine, b *domain.Board) (*domain.Board, error) {
		return e.gateway.DeleteGroup(cmd.Context(), b.ID, args[1])
	})
	return err
}

func runGroupRename(cmd *cobra.Command, args []string) error {
	_, err := withBoard(cmd.Context(), args[0], func(e *engine, b *domain.Board) (*domain.Board, error) {
		change, err := domain.NewChange(domain.KeyTitle, args[2])
		if err != nil {
			return nil, err
		}
		return e.gateway.ApplyFieldChange(cmd.Context(), b.ID, args[1], "", change)
	})
	return err
}

package gateway

import (
	"context"
	"errors"
	"reflect"
	"strconv"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	log "github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"taskboard/board-client/notice"
	"taskboard/board-client/snapshot"
	"taskboard/domain"
)

func fixture() *domain.Board {
	return &domain.Board{
		ID:      "B1",
		Title:   "Launch",
		Members: []domain.Member{{ID: "u1", Fullname: "Ada"}},
		Labels:  []domain.Label{{ID: "l1", Title: "urgent", Color: "red"}},
		Groups: []domain.Group{
			{ID: "G1", Title: "Todo", Position: 1, Tasks: []domain.Task{
				{ID: "T1", Title: "one", Position: 1},
				{ID: "T2", Title: "two", Position: 2},
				{ID: "T3", Title: "three", Position: 3},
			}},
			{ID: "G2", Title: "Done", Position: 2, Tasks: []domain.Task{}},
		},
	}
}

type harness struct {
	gw      *Gateway
	store   *snapshot.Store
	fake    *fakePersistence
	hook    *test.Hook
	notices <-chan notice.Notice
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	logger, hook := test.NewNullLogger()
	logger.SetLevel(log.DebugLevel)
	fake := newFakePersistence(fixture())
	store := snapshot.New()
	broker := notice.NewBroker()
	notices, unsubscribe := broker.Subscribe(16)
	t.Cleanup(unsubscribe)
	var n atomic.Int64
	gw := New(store, fake, Options{
		Timeout: time.Second,
		Logger:  logger,
		User:    &domain.Member{ID: "u1", Fullname: "Ada"},
		Notices: broker,
		NewID:   func() string { return "id-" + strconv.FormatInt(n.Add(1), 10) },
		Now:     func() time.Time { return time.UnixMilli(1700000000000) },
	})
	if _, err := gw.LoadBoard(context.Background(), "B1", domain.TaskFilter{}); err != nil {
		t.Fatalf("load: %v", err)
	}
	return &harness{gw: gw, store: store, fake: fake, hook: hook, notices: notices}
}

func taskOrder(g *domain.Group) []string {
	out := make([]string, len(g.Tasks))
	for i, t := range g.Tasks {
		out[i] = t.ID
	}
	return out
}

func TestMoveTaskToFront(t *testing.T) {
	h := newHarness(t)
	b, err := h.gw.MoveTask(context.Background(), "B1", "G1", "T3", "G1", 0)
	if err != nil {
		t.Fatalf("move: %v", err)
	}
	g, _ := b.FindGroup("G1")
	if got := taskOrder(g); !reflect.DeepEqual(got, []string{"T3", "T1", "T2"}) {
		t.Fatalf("order %v", got)
	}
	if !(g.Tasks[0].Position < g.Tasks[1].Position) {
		t.Fatalf("T3 not before T1: %v", g.Tasks)
	}
	if g.Tasks[1].Position != 1 || g.Tasks[2].Position != 2 {
		t.Fatalf("siblings moved: %v", g.Tasks)
	}
	if len(h.fake.recorded()) != 0 {
		t.Fatalf("same-group move must not record activity")
	}
}

func TestMoveTaskAcrossGroupsRecordsActivity(t *testing.T) {
	h := newHarness(t)
	b, err := h.gw.MoveTask(context.Background(), "B1", "G1", "T2", "G2", 0)
	if err != nil {
		t.Fatalf("move: %v", err)
	}
	src, _ := b.FindGroup("G1")
	dst, _ := b.FindGroup("G2")
	if len(src.Tasks) != 2 || len(dst.Tasks) != 1 || dst.Tasks[0].ID != "T2" {
		t.Fatalf("unexpected groups %v / %v", taskOrder(src), taskOrder(dst))
	}
	acts := h.fake.recorded()
	if len(acts) != 1 || acts[0].Verb != domain.VerbMoveTask || acts[0].By == nil || acts[0].By.ID != "u1" {
		t.Fatalf("unexpected activities %+v", acts)
	}
}

func TestStoreHoldsServerSnapshot(t *testing.T) {
	h := newHarness(t)
	h.fake.onSave = func(b *domain.Board) {
		for i := range b.Groups {
			for j := range b.Groups[i].Tasks {
				b.Groups[i].Tasks[j].Position = float64(j+1) * 100
			}
		}
		b.Title = "normalized by server"
	}
	resp, err := h.gw.MoveTask(context.Background(), "B1", "G1", "T1", "G1", 2)
	if err != nil {
		t.Fatalf("move: %v", err)
	}
	got := h.store.Board()
	if !reflect.DeepEqual(got, resp) {
		t.Fatalf("store differs from server response")
	}
	if got.Title != "normalized by server" || got.Groups[0].Tasks[0].Position != 100 {
		t.Fatalf("store holds the local guess: %+v", got.Groups[0].Tasks)
	}
}

func TestApplyFieldChangeMissingTask(t *testing.T) {
	h := newHarness(t)
	before := h.store.Board()
	calls := h.fake.callCount()
	change, _ := domain.NewChange(domain.KeyTitle, "x")
	_, err := h.gw.ApplyFieldChange(context.Background(), "B1", "G1", "nope", change)
	if !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
	if h.store.Board() != before {
		t.Fatalf("store changed")
	}
	if h.fake.callCount() != calls {
		t.Fatalf("persistence called for missing task")
	}
}

func TestApplyFieldChangeWrongBoard(t *testing.T) {
	h := newHarness(t)
	change, _ := domain.NewChange(domain.KeyTitle, "x")
	if _, err := h.gw.ApplyFieldChange(context.Background(), "B2", "G1", "T1", change); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestPersistenceFailureLeavesStore(t *testing.T) {
	h := newHarness(t)
	before := h.store.Board()
	h.fake.err = errUnavailable
	change, _ := domain.NewChange(domain.KeyTitle, "x")
	_, err := h.gw.ApplyFieldChange(context.Background(), "B1", "G1", "T1", change)
	if !errors.Is(err, domain.ErrPersistence) || !errors.Is(err, errUnavailable) {
		t.Fatalf("unexpected error %v", err)
	}
	if h.store.Board() != before {
		t.Fatalf("store changed after failed write")
	}
	select {
	case n := <-h.notices:
		if n.Kind != notice.Failure {
			t.Fatalf("unexpected notice %+v", n)
		}
	default:
		t.Fatalf("expected failure notice")
	}

	if _, err := h.gw.MoveTask(context.Background(), "B1", "G1", "T1", "G2", 0); !errors.Is(err, domain.ErrPersistence) {
		t.Fatalf("expected persistence failure, got %v", err)
	}
	if h.store.Board() != before {
		t.Fatalf("store changed after failed move")
	}
}

func TestDeleteTaskAndGroup(t *testing.T) {
	h := newHarness(t)
	b, err := h.gw.DeleteTask(context.Background(), "B1", "G1", "T2")
	if err != nil {
		t.Fatalf("delete task: %v", err)
	}
	g, _ := b.FindGroup("G1")
	if got := taskOrder(g); !reflect.DeepEqual(got, []string{"T1", "T3"}) {
		t.Fatalf("order after delete %v", got)
	}
	acts := h.fake.recorded()
	if len(acts) != 1 || acts[0].Verb != domain.VerbDeleteTask || acts[0].TaskNumber != 2 {
		t.Fatalf("unexpected activity %+v", acts)
	}

	b, err = h.gw.DeleteGroup(context.Background(), "B1", "G1")
	if err != nil {
		t.Fatalf("delete group: %v", err)
	}
	if _, task := b.LocateTask("T1"); task != nil {
		t.Fatalf("task of deleted group still visible")
	}
	if h.store.Board().Groups[0].ID != "G2" {
		t.Fatalf("unexpected groups %+v", h.store.Board().Groups)
	}
}

func TestAddTaskAndGroup(t *testing.T) {
	h := newHarness(t)
	_, task, err := h.gw.AddTask(context.Background(), "B1", "G2", "write docs")
	if err != nil {
		t.Fatalf("add task: %v", err)
	}
	if task.Position == 0 || task.Title != "write docs" {
		t.Fatalf("unexpected task %+v", task)
	}
	b, err := h.gw.AddGroup(context.Background(), "B1", "Review")
	if err != nil {
		t.Fatalf("add group: %v", err)
	}
	last := b.Groups[len(b.Groups)-1]
	if last.Title != "Review" || last.Position <= b.Groups[len(b.Groups)-2].Position {
		t.Fatalf("group not appended: %+v", b.Groups)
	}
	acts := h.fake.recorded()
	if len(acts) != 2 || acts[0].Verb != domain.VerbAddTask || acts[0].TaskNumber != 4 || acts[1].Verb != domain.VerbAddGroup {
		t.Fatalf("unexpected activities %+v", acts)
	}
}

func TestActivityFailureIsNotFatal(t *testing.T) {
	h := newHarness(t)
	h.fake.activityErr = errUnavailable
	if _, err := h.gw.DeleteTask(context.Background(), "B1", "G1", "T1"); err != nil {
		t.Fatalf("delete should succeed: %v", err)
	}
	found := false
	for _, e := range h.hook.AllEntries() {
		if e.Message == "append activity failed" {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected logged activity failure")
	}
}

func TestStaleResponseIsDiscarded(t *testing.T) {
	h := newHarness(t)
	slow := make(chan struct{})
	h.fake.gate = func(c domain.Change) <-chan struct{} {
		if string(c.Value) == `"first"` {
			return slow
		}
		return nil
	}
	first, _ := domain.NewChange(domain.KeyTitle, "first")
	second, _ := domain.NewChange(domain.KeyTitle, "second")

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		if _, err := h.gw.ApplyFieldChange(context.Background(), "B1", "G1", "T1", first); err != nil {
			t.Errorf("first: %v", err)
		}
	}()
	deadline := time.Now().Add(time.Second)
	for h.fake.callCount() < 2 {
		if time.Now().After(deadline) {
			t.Fatalf("first request never reached persistence")
		}
		time.Sleep(time.Millisecond)
	}
	// the first request holds ticket n, the second takes n+1
	if _, err := h.gw.ApplyFieldChange(context.Background(), "B1", "G1", "T1", second); err != nil {
		t.Fatalf("second: %v", err)
	}
	close(slow)
	wg.Wait()

	task, _ := h.store.Board().FindTask("G1", "T1")
	if task.Title != "second" {
		t.Fatalf("late response clobbered newer state: %q", task.Title)
	}
}

func TestToggleMemberAndLabel(t *testing.T) {
	h := newHarness(t)
	b, err := h.gw.ToggleTaskMember(context.Background(), "B1", "G1", "T1", "u1")
	if err != nil {
		t.Fatalf("toggle member: %v", err)
	}
	task, _ := b.FindTask("G1", "T1")
	if !reflect.DeepEqual(task.MemberIDs, []string{"u1"}) {
		t.Fatalf("member not assigned %v", task.MemberIDs)
	}
	b, err = h.gw.ToggleTaskMember(context.Background(), "B1", "G1", "T1", "u1")
	if err != nil {
		t.Fatalf("toggle member off: %v", err)
	}
	task, _ = b.FindTask("G1", "T1")
	if len(task.MemberIDs) != 0 {
		t.Fatalf("member not removed %v", task.MemberIDs)
	}
	if _, err := h.gw.ToggleTaskMember(context.Background(), "B1", "G1", "T1", "ghost"); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected not found for non-member, got %v", err)
	}
	b, err = h.gw.ToggleTaskLabel(context.Background(), "B1", "G1", "T1", "l1")
	if err != nil {
		t.Fatalf("toggle label: %v", err)
	}
	task, _ = b.FindTask("G1", "T1")
	if len(b.TaskLabels(task)) != 1 {
		t.Fatalf("label not attached")
	}
}

func TestMoveChecklistItem(t *testing.T) {
	h := newHarness(t)
	h.fake.boards["B1"].Groups[0].Tasks[0].Checklists = []domain.Checklist{{
		ID: "c1", Title: "steps", Items: []domain.ChecklistItem{
			{ID: "i1", Position: 1}, {ID: "i2", Position: 2}, {ID: "i3", Position: 3},
		},
	}}
	if err := h.gw.Reload(context.Background(), "B1"); err != nil {
		t.Fatalf("reload: %v", err)
	}
	b, err := h.gw.MoveChecklistItem(context.Background(), "B1", "G1", "T1", "c1", 0, 2)
	if err != nil {
		t.Fatalf("move item: %v", err)
	}
	task, _ := b.FindTask("G1", "T1")
	items := task.Checklists[0].Items
	if items[0].ID != "i2" || items[1].ID != "i3" || items[2].ID != "i1" {
		t.Fatalf("unexpected items %+v", items)
	}
	if _, err := h.gw.MoveChecklistItem(context.Background(), "B1", "G1", "T1", "nope", 0, 1); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestBoardListOperations(t *testing.T) {
	h := newHarness(t)
	if _, err := h.gw.LoadBoards(context.Background(), domain.BoardFilter{}); err != nil {
		t.Fatalf("load boards: %v", err)
	}
	created, err := h.gw.AddBoard(context.Background(), "Side project", domain.Style{BackgroundColor: "#0079bf"})
	if err != nil {
		t.Fatalf("add board: %v", err)
	}
	if created.CreatedBy == nil || created.CreatedBy.ID != "u1" || len(created.Activities) != 2 {
		t.Fatalf("unexpected new board %+v", created)
	}
	if len(h.store.Boards()) != 2 {
		t.Fatalf("expected 2 listed boards, got %d", len(h.store.Boards()))
	}
	if _, err := h.gw.ToggleStar(context.Background(), created.ID); err != nil {
		t.Fatalf("toggle star: %v", err)
	}
	if starred := h.store.Starred(); len(starred) != 1 || starred[0].ID != created.ID {
		t.Fatalf("unexpected starred %+v", starred)
	}
	if err := h.gw.RemoveBoard(context.Background(), "B1"); err != nil {
		t.Fatalf("remove: %v", err)
	}
	if h.store.Board() != nil || len(h.store.Boards()) != 1 {
		t.Fatalf("board not removed from store")
	}
}

func TestReloadUsesLastFilter(t *testing.T) {
	h := newHarness(t)
	h.fake.boards["B1"].Groups[0].Tasks[2].LabelIDs = []string{"l1"}
	if _, err := h.gw.LoadBoard(context.Background(), "B1", domain.TaskFilter{LabelIDs: []string{"l1"}}); err != nil {
		t.Fatalf("load: %v", err)
	}
	h.fake.boards["B1"].Groups[0].Tasks[0].LabelIDs = []string{"l1"}
	if err := h.gw.Reload(context.Background(), "B1"); err != nil {
		t.Fatalf("reload: %v", err)
	}
	g, _ := h.store.Board().FindGroup("G1")
	if got := taskOrder(g); !reflect.DeepEqual(got, []string{"T1", "T3"}) {
		t.Fatalf("unexpected filtered tasks %v", got)
	}
}

func TestMutationSpanAndLog(t *testing.T) {
	exporter := tracetest.NewInMemoryExporter()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(sdktrace.NewSimpleSpanProcessor(exporter)))
	prev := otel.GetTracerProvider()
	otel.SetTracerProvider(tp)
	defer func() {
		_ = tp.Shutdown(context.Background())
		otel.SetTracerProvider(prev)
	}()

	h := newHarness(t)
	h.hook.Reset()
	exporter.Reset()
	h.fake.err = errUnavailable
	change, _ := domain.NewChange(domain.KeyTitle, "x")
	_, _ = h.gw.ApplyFieldChange(context.Background(), "B1", "G1", "T1", change)

	spans := exporter.GetSpans()
	if len(spans) != 1 {
		t.Fatalf("expected 1 span, got %d", len(spans))
	}
	span := spans[0]
	attrs := map[attribute.Key]attribute.Value{}
	for _, kv := range span.Attributes {
		attrs[kv.Key] = kv.Value
	}
	if attrs["board.op"].AsString() != "change:title" || attrs["board.task_id"].AsString() != "T1" {
		t.Fatalf("unexpected attributes %v", span.Attributes)
	}
	if attrs["board.error_stage"].AsString() != "persist" {
		t.Fatalf("missing error stage %v", span.Attributes)
	}
	if span.Status.Code != codes.Error {
		t.Fatalf("expected error status, got %v", span.Status.Code)
	}

	var entry *log.Entry
	for _, e := range h.hook.AllEntries() {
		if e.Message == mutationSpanName {
			entry = e
		}
	}
	if entry == nil {
		t.Fatalf("no mutation log line")
	}
	if entry.Data["status"] != "error" || entry.Data["error_stage"] != "persist" || entry.Data["board"] != "B1" {
		t.Fatalf("unexpected fields %v", entry.Data)
	}
}

func TestToggleLabelKeepsDanglingReference(t *testing.T) {
	h := newHarness(t)
	h.fake.boards["B1"].Groups[0].Tasks[0].LabelIDs = []string{"gone"}
	if err := h.gw.Reload(context.Background(), "B1"); err != nil {
		t.Fatalf("reload: %v", err)
	}
	b, err := h.gw.ToggleTaskLabel(context.Background(), "B1", "G1", "T1", "l1")
	if err != nil {
		t.Fatalf("toggle: %v", err)
	}
	task, _ := b.FindTask("G1", "T1")
	if !reflect.DeepEqual(task.LabelIDs, []string{"gone", "l1"}) {
		t.Fatalf("unexpected labels %v", task.LabelIDs)
	}
	b, err = h.gw.ToggleTaskLabel(context.Background(), "B1", "G1", "T1", "l1")
	if err != nil {
		t.Fatalf("toggle off: %v", err)
	}
	task, _ = b.FindTask("G1", "T1")
	if !reflect.DeepEqual(task.LabelIDs, []string{"gone"}) {
		t.Fatalf("dangling label dropped: %v", task.LabelIDs)
	}
}

func TestMoveTaskUnderFilterKeepsHiddenTasks(t *testing.T) {
	h := newHarness(t)
	if _, err := h.gw.LoadBoard(context.Background(), "B1", domain.TaskFilter{Text: "three"}); err != nil {
		t.Fatalf("load: %v", err)
	}
	b, err := h.gw.MoveTask(context.Background(), "B1", "G1", "T3", "G2", 0)
	if err != nil {
		t.Fatalf("move: %v", err)
	}
	saved := h.fake.boards["B1"]
	if got := taskOrder(&saved.Groups[0]); !reflect.DeepEqual(got, []string{"T1", "T2"}) {
		t.Fatalf("hidden tasks lost: %v", got)
	}
	if got := taskOrder(&saved.Groups[1]); !reflect.DeepEqual(got, []string{"T3"}) {
		t.Fatalf("unexpected destination %v", got)
	}
	if len(b.Groups[0].Tasks) != 0 || len(h.store.Board().Groups[0].Tasks) != 0 {
		t.Fatalf("view should stay filtered: %v", b.Groups[0].Tasks)
	}
}

func TestReorderUnderFilterLandsBetweenVisibleTasks(t *testing.T) {
	h := newHarness(t)
	if _, err := h.gw.LoadBoard(context.Background(), "B1", domain.TaskFilter{Text: "t"}); err != nil {
		t.Fatalf("load: %v", err)
	}
	b, err := h.gw.MoveTask(context.Background(), "B1", "G1", "T3", "G1", 0)
	if err != nil {
		t.Fatalf("move: %v", err)
	}
	if got := taskOrder(&h.fake.boards["B1"].Groups[0]); !reflect.DeepEqual(got, []string{"T1", "T3", "T2"}) {
		t.Fatalf("unexpected saved order %v", got)
	}
	g, _ := b.FindGroup("G1")
	if got := taskOrder(g); !reflect.DeepEqual(got, []string{"T3", "T2"}) {
		t.Fatalf("unexpected view %v", got)
	}
}

func TestAddUnderFilterKeepsHiddenTasks(t *testing.T) {
	h := newHarness(t)
	if _, err := h.gw.LoadBoard(context.Background(), "B1", domain.TaskFilter{Text: "three"}); err != nil {
		t.Fatalf("load: %v", err)
	}
	_, task, err := h.gw.AddTask(context.Background(), "B1", "G2", "four")
	if err != nil {
		t.Fatalf("add task: %v", err)
	}
	if task == nil || task.Title != "four" {
		t.Fatalf("unexpected task %+v", task)
	}
	if _, err := h.gw.AddGroup(context.Background(), "B1", "Later"); err != nil {
		t.Fatalf("add group: %v", err)
	}
	saved := h.fake.boards["B1"]
	if len(saved.Groups) != 3 || len(saved.Groups[0].Tasks) != 3 || len(saved.Groups[1].Tasks) != 1 {
		t.Fatalf("unexpected saved board %+v", saved.Groups)
	}
}

func TestStoreListenerCanReachGateway(t *testing.T) {
	h := newHarness(t)
	done := make(chan struct{})
	var once sync.Once
	unsubscribe := h.store.Subscribe(func(snapshot.Snapshot) {
		_ = h.gw.filter("B1")
		_ = h.gw.ticket()
		once.Do(func() { close(done) })
	})
	defer unsubscribe()
	go func() { _ = h.gw.Reload(context.Background(), "B1") }()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatalf("listener blocked on the gateway")
	}
}

package message

import (
	"context"
	"sync"
	"testing"

	"AreaLink/module/chat/model"
	"AreaLink/module/chat/room"
	"AreaLink/module/chat/store"
	errs "AreaLink/tools/errs"
)

func newTestRoom(t *testing.T) (*Sequencer, *room.Manager, *model.ChatRoom, *store.Memory) {
	t.Helper()
	mem := store.NewMemory()
	rooms := room.NewManager(mem)
	r, err := rooms.GetOrCreate(context.Background(), "alice", "bob")
	if err != nil {
		t.Fatalf("create room: %v", err)
	}
	return NewSequencer(store.MemoryMessages{Memory: mem}, mem), rooms, r, mem
}

func TestAppendConcurrentSendersTotalOrder(t *testing.T) {
	seq, _, r, _ := newTestRoom(t)
	ctx := context.Background()

	const perSender = 50
	var wg sync.WaitGroup
	var aliceSeqs, bobSeqs []int64
	var aliceMu, bobMu sync.Mutex

	wg.Add(2)
	go func() {
		defer wg.Done()
		for i := 0; i < perSender; i++ {
			m, err := seq.Append(ctx, r.ID, "alice", "hi", model.KindText)
			if err != nil {
				t.Errorf("alice append: %v", err)
				return
			}
			aliceMu.Lock()
			aliceSeqs = append(aliceSeqs, m.Seq)
			aliceMu.Unlock()
		}
	}()
	go func() {
		defer wg.Done()
		for i := 0; i < perSender; i++ {
			m, err := seq.Append(ctx, r.ID, "bob", "hey", model.KindText)
			if err != nil {
				t.Errorf("bob append: %v", err)
				return
			}
			bobMu.Lock()
			bobSeqs = append(bobSeqs, m.Seq)
			bobMu.Unlock()
		}
	}()
	wg.Wait()

	// Each sender observes its own messages in its own call order.
	for i := 1; i < len(aliceSeqs); i++ {
		if aliceSeqs[i] <= aliceSeqs[i-1] {
			t.Fatalf("alice's own order violated: %v", aliceSeqs)
		}
	}
	for i := 1; i < len(bobSeqs); i++ {
		if bobSeqs[i] <= bobSeqs[i-1] {
			t.Fatalf("bob's own order violated: %v", bobSeqs)
		}
	}

	// Across both senders: a strict total order 1..2*perSender, no holes,
	// no duplicates, nothing lost.
	all := make(map[int64]bool)
	for _, s := range append(append([]int64{}, aliceSeqs...), bobSeqs...) {
		if all[s] {
			t.Fatalf("duplicate seq %d", s)
		}
		all[s] = true
	}
	for i := int64(1); i <= perSender*2; i++ {
		if !all[i] {
			t.Fatalf("seq %d missing", i)
		}
	}

	// CreatedAt never moves backwards along the sequence.
	hist, _, err := seq.History(ctx, r.ID, "alice", 0, perSender*2)
	if err != nil {
		t.Fatal(err)
	}
	for i := 1; i < len(hist); i++ {
		if hist[i].CreatedAt < hist[i-1].CreatedAt {
			t.Fatalf("createdAt inverted at seq %d", hist[i].Seq)
		}
	}
}

func TestAppendRejectsOutsiderAndEmptyContent(t *testing.T) {
	seq, _, r, _ := newTestRoom(t)
	ctx := context.Background()

	if _, err := seq.Append(ctx, r.ID, "mallory", "hi", model.KindText); !errs.IsCode(err, errs.UnauthorizedCode) {
		t.Fatalf("expected unauthorized for non-participant, got %v", err)
	}
	if _, err := seq.Append(ctx, r.ID, "alice", "", model.KindText); !errs.IsCode(err, errs.ValidationCode) {
		t.Fatalf("expected validation error for empty content, got %v", err)
	}
	if _, err := seq.Append(ctx, "no-such-room", "alice", "hi", model.KindText); !errs.IsCode(err, errs.NotFoundCode) {
		t.Fatalf("expected not found for unknown room, got %v", err)
	}
}

func TestMarkReadIdempotentAndSenderExcluded(t *testing.T) {
	seq, _, r, _ := newTestRoom(t)
	ctx := context.Background()

	m, err := seq.Append(ctx, r.ID, "alice", "hi", model.KindText)
	if err != nil {
		t.Fatal(err)
	}

	if n, _ := seq.UnreadCount(ctx, r.ID, "bob"); n != 1 {
		t.Fatalf("bob unread = %d, want 1", n)
	}
	// Sender "reading" their own message changes nothing.
	if err := seq.MarkRead(ctx, m.ID, "alice"); err != nil {
		t.Fatal(err)
	}
	if n, _ := seq.UnreadCount(ctx, r.ID, "bob"); n != 1 {
		t.Fatalf("bob unread after sender self-read = %d, want 1", n)
	}

	if err := seq.MarkRead(ctx, m.ID, "bob"); err != nil {
		t.Fatal(err)
	}
	if err := seq.MarkRead(ctx, m.ID, "bob"); err != nil {
		t.Fatalf("second markRead must be a no-op, got %v", err)
	}

	got, _, err := seq.History(ctx, r.ID, "bob", 0, 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 1 || len(got[0].ReadBy) != 1 || got[0].ReadBy[0] != "bob" {
		t.Fatalf("readBy = %v, want [bob]", got[0].ReadBy)
	}
	if n, _ := seq.UnreadCount(ctx, r.ID, "bob"); n != 0 {
		t.Fatalf("bob unread after read = %d, want 0", n)
	}

	if err := seq.MarkRead(ctx, "no-such-msg", "bob"); !errs.IsCode(err, errs.NotFoundCode) {
		t.Fatalf("expected not found for unknown message, got %v", err)
	}
	if err := seq.MarkRead(ctx, m.ID, "mallory"); !errs.IsCode(err, errs.UnauthorizedCode) {
		t.Fatalf("expected unauthorized for outsider read, got %v", err)
	}
}

func TestHistoryCursorStableUnderAppends(t *testing.T) {
	seq, _, r, _ := newTestRoom(t)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		if _, err := seq.Append(ctx, r.ID, "alice", "m", model.KindText); err != nil {
			t.Fatal(err)
		}
	}
	page1, cursor, err := seq.History(ctx, r.ID, "bob", 0, 3)
	if err != nil {
		t.Fatal(err)
	}
	if len(page1) != 3 || cursor != 3 {
		t.Fatalf("page1 len=%d cursor=%d, want 3/3", len(page1), cursor)
	}

	// Concurrent-looking appends between pages must not disturb the cursor.
	if _, err := seq.Append(ctx, r.ID, "bob", "late", model.KindText); err != nil {
		t.Fatal(err)
	}

	page2, _, err := seq.History(ctx, r.ID, "bob", cursor, 10)
	if err != nil {
		t.Fatal(err)
	}
	for _, m := range page2 {
		if m.Seq <= cursor {
			t.Fatalf("cursor re-returned seq %d <= %d", m.Seq, cursor)
		}
	}
	if len(page2) != 3 {
		t.Fatalf("page2 len=%d, want 3 (seqs 4,5,6)", len(page2))
	}
}

func TestScenarioHiHey(t *testing.T) {
	seq, _, r, _ := newTestRoom(t)
	ctx := context.Background()

	var wg sync.WaitGroup
	wg.Add(2)
	go func() { defer wg.Done(); _, _ = seq.Append(ctx, r.ID, "alice", "hi", model.KindText) }()
	go func() { defer wg.Done(); _, _ = seq.Append(ctx, r.ID, "bob", "hey", model.KindText) }()
	wg.Wait()

	hist, _, err := seq.History(ctx, r.ID, "alice", 0, 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(hist) != 2 {
		t.Fatalf("history len=%d, want 2", len(hist))
	}
	a, b := hist[0].Content, hist[1].Content
	ok := (a == "hi" && b == "hey") || (a == "hey" && b == "hi")
	if !ok {
		t.Fatalf("history %q,%q — interleaved/duplicated/lost", a, b)
	}
}

package store

import (
	"context"
	"testing"
	"time"

	"AreaLink/module/chat/model"
)

func TestTouchOnlyAdvances(t *testing.T) {
	ctx := context.Background()
	mem := NewMemory()
	base := time.Now()

	r := &model.ChatRoom{
		ID:        "r1",
		PairKey:   model.PairKeyOf("u1", "u2"),
		UserA:     "u1",
		UserB:     "u2",
		CreatedAt: base,
		UpdatedAt: base,
	}
	if err := mem.Insert(ctx, r); err != nil {
		t.Fatalf("insert: %v", err)
	}

	later := base.Add(10 * time.Second)
	if err := mem.Touch(ctx, "r1", later); err != nil {
		t.Fatalf("touch: %v", err)
	}
	// 乱序到达的旧时间戳不能把 UpdatedAt 拨回去
	if err := mem.Touch(ctx, "r1", base.Add(3*time.Second)); err != nil {
		t.Fatalf("touch: %v", err)
	}

	got, err := mem.Get(ctx, "r1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if !got.UpdatedAt.Equal(later) {
		t.Fatalf("UpdatedAt = %v, want %v", got.UpdatedAt, later)
	}

	// 不存在的房间是 no-op
	if err := mem.Touch(ctx, "ghost", later); err != nil {
		t.Fatalf("touch missing room: %v", err)
	}
}

package chat

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/pkg/errors"

	errs "AreaLink/tools/errs"
)

func TestParseFrame(t *testing.T) {
	f, err := ParseFrame([]byte(`{"type":"message.send","ts":1700000000000,"payload":{"to":"u2","content":"hi"}}`))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if f.Type != FrameSend || f.Ts != 1700000000000 {
		t.Fatalf("frame = %+v", f)
	}
	var p SendPayload
	if err := f.DecodePayload(&p); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if p.To != "u2" || p.Content != "hi" || p.RoomID != "" {
		t.Fatalf("payload = %+v", p)
	}
}

func TestParseFrameRejectsGarbageAndMissingType(t *testing.T) {
	if _, err := ParseFrame([]byte("not json")); err == nil {
		t.Fatal("garbage accepted")
	}
	if _, err := ParseFrame([]byte(`{"ts":1}`)); err == nil {
		t.Fatal("frame without type accepted")
	}
}

func TestDecodePayloadEmpty(t *testing.T) {
	f := &Frame{Type: FramePing}
	var p StatusPayload
	if err := f.DecodePayload(&p); err != nil {
		t.Fatalf("empty payload should decode to zero value, got %v", err)
	}
	if p.Online {
		t.Fatal("zero value expected")
	}
}

func TestBuildErrorMapsCodes(t *testing.T) {
	cases := []struct {
		err  error
		code int
	}{
		{errs.ErrValidation.WithDetail("lat out of range"), errs.ValidationCode},
		{errs.ErrUnauthorized.WithDetail("not a participant"), errs.UnauthorizedCode},
		{errs.ErrNotFound.WithDetail("room"), errs.NotFoundCode},
		{errs.ErrTransientDelivery.WithDetail("queue full"), errs.TransientDeliveryCode},
		{errors.New("boom"), errs.TransientDeliveryCode}, // 非业务错误打内部故障码
	}
	for _, c := range cases {
		f, err := ParseFrame(BuildError(c.err))
		if err != nil {
			t.Fatalf("parse built frame: %v", err)
		}
		if f.Type != FrameError {
			t.Fatalf("type = %s", f.Type)
		}
		var p ErrorPayload
		if err := f.DecodePayload(&p); err != nil {
			t.Fatalf("decode: %v", err)
		}
		if p.Code != c.code {
			t.Fatalf("code for %v = %d, want %d", c.err, p.Code, c.code)
		}
	}
	// 内部错误不外泄细节
	var p ErrorPayload
	f, _ := ParseFrame(BuildError(errors.New("db password wrong")))
	_ = f.DecodePayload(&p)
	if p.Msg != "internal error" {
		t.Fatalf("internal error leaked: %q", p.Msg)
	}
}

func TestBuildConnAckRoundTrip(t *testing.T) {
	raw := BuildConnAck("c1", "gw-1", 25*time.Second)
	var f Frame
	if err := json.Unmarshal(raw, &f); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if f.Type != FrameConnAck || f.Ts == 0 {
		t.Fatalf("frame = %+v", f)
	}
	var p ConnAckPayload
	if err := f.DecodePayload(&p); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if p.ConnID != "c1" || p.GatewayID != "gw-1" || p.PingIntervalMS != 25000 {
		t.Fatalf("payload = %+v", p)
	}
}

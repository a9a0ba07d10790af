package socketio

import (
	"encoding/json"
	"testing"
)

func TestParseEngineOpen(t *testing.T) {
	open, err := parseEngineOpen(`0{"sid":"abc","pingInterval":25000,"pingTimeout":20000}`)
	if err != nil {
		t.Fatalf("parseEngineOpen: %v", err)
	}
	if open.SID != "abc" || open.PingInterval != 25000 {
		t.Fatalf("unexpected open payload %+v", open)
	}

	if _, err := parseEngineOpen(`4{"sid":"abc"}`); err == nil {
		t.Fatalf("expected error for non-open packet")
	}
	if _, err := parseEngineOpen(`0{}`); err == nil {
		t.Fatalf("expected error for missing sid")
	}
}

func TestParseEventPacket(t *testing.T) {
	pkt, err := parseEventPacket(`2["room_created",{"id":"r1"}]`)
	if err != nil {
		t.Fatalf("parseEventPacket: %v", err)
	}
	if pkt.Event != "room_created" || len(pkt.Args) != 1 {
		t.Fatalf("unexpected packet %+v", pkt)
	}

	var body struct {
		ID string `json:"id"`
	}
	if err := json.Unmarshal(pkt.Args[0], &body); err != nil || body.ID != "r1" {
		t.Fatalf("unexpected args: %v %v", body, err)
	}
}

func TestParseEventPacket_WithID(t *testing.T) {
	pkt, err := parseEventPacket(`213["ping"]`)
	if err != nil {
		t.Fatalf("parseEventPacket: %v", err)
	}
	if pkt.ID == nil || *pkt.ID != 13 || pkt.Event != "ping" {
		t.Fatalf("unexpected packet %+v", pkt)
	}
}

func TestParseEventPacket_Invalid(t *testing.T) {
	for _, payload := range []string{"", "2", "2{}", `2[]`, `2[42]`, `3["x"]`} {
		if _, err := parseEventPacket(payload); err == nil {
			t.Fatalf("expected error for %q", payload)
		}
	}
}

func TestParseAckPacket(t *testing.T) {
	ack, err := parseAckPacket(`37["ok"]`)
	if err != nil {
		t.Fatalf("parseAckPacket: %v", err)
	}
	if ack.ID != 7 || len(ack.Args) != 1 {
		t.Fatalf("unexpected ack %+v", ack)
	}

	if _, err := parseAckPacket(`3["ok"]`); err == nil {
		t.Fatalf("expected error for missing ack id")
	}
}

func TestBuildEventPacket(t *testing.T) {
	pkt, err := buildEventPacket("/", nil, "join_room", map[string]any{"roomId": "r1"})
	if err != nil {
		t.Fatalf("buildEventPacket: %v", err)
	}
	parsed, err := parseEventPacket(pkt)
	if err != nil {
		t.Fatalf("round trip: %v", err)
	}
	if parsed.Event != "join_room" {
		t.Fatalf("unexpected event %q", parsed.Event)
	}

	id := 5
	pkt, err = buildEventPacket("/", &id, "ping")
	if err != nil {
		t.Fatalf("buildEventPacket: %v", err)
	}
	parsed, err = parseEventPacket(pkt)
	if err != nil {
		t.Fatalf("round trip: %v", err)
	}
	if parsed.ID == nil || *parsed.ID != 5 {
		t.Fatalf("expected id 5, got %+v", parsed.ID)
	}
}

func TestBuildConnectPacket(t *testing.T) {
	pkt, err := buildConnectPacket("/", map[string]any{"token": "t"})
	if err != nil {
		t.Fatalf("buildConnectPacket: %v", err)
	}
	if pkt[0] != byte(socketConnect) {
		t.Fatalf("unexpected packet type in %q", pkt)
	}
}

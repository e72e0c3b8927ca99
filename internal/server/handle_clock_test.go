package server

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"nhooyr.io/websocket"
	"nhooyr.io/websocket/wsjson"
)

func TestClockStream(t *testing.T) {
	env := setupEnv(t, nil)
	env.do(t, http.MethodPost, "/api/dev-1/game/start", StartGameRequest{TeamName: "UNIT"})

	srv := httptest.NewServer(env.router)
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/api/dev-1/clock"
	conn, _, err := websocket.Dial(ctx, url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.CloseNow()

	var first ClockFrame
	if err := wsjson.Read(ctx, conn, &first); err != nil {
		t.Fatalf("read first frame: %v", err)
	}
	if !first.HasGame {
		t.Fatal("first frame reports no game")
	}
	if first.Clock.Ended {
		t.Error("fresh mission reported as ended")
	}

	var second ClockFrame
	if err := wsjson.Read(ctx, conn, &second); err != nil {
		t.Fatalf("read second frame: %v", err)
	}
	if second.Clock.ElapsedSeconds < first.Clock.ElapsedSeconds {
		t.Errorf("elapsed went backwards: %v then %v", first.Clock.ElapsedSeconds, second.Clock.ElapsedSeconds)
	}

	conn.Close(websocket.StatusNormalClosure, "")
}

func TestClockStreamWithoutGame(t *testing.T) {
	env := setupEnv(t, nil)
	srv := httptest.NewServer(env.router)
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	conn, _, err := websocket.Dial(ctx, "ws"+strings.TrimPrefix(srv.URL, "http")+"/api/dev-2/clock", nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.CloseNow()

	var frame ClockFrame
	if err := wsjson.Read(ctx, conn, &frame); err != nil {
		t.Fatalf("read: %v", err)
	}
	if frame.HasGame {
		t.Error("device without a game reported hasGame")
	}
}

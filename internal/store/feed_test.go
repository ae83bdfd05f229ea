package store_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"sipoma-sync/internal/store"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestClient_SubscribeReceivesFeedEvents(t *testing.T) {
	upgrader := websocket.Upgrader{}
	events := make(chan store.ChangeEvent, 1)

	mux := http.NewServeMux()
	mux.HandleFunc("/api/realtime", func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		require.NoError(t, err)
		defer conn.Close()

		err = conn.WriteJSON(store.ChangeEvent{
			Action:      store.ActionUpdate,
			Collection:  store.CollectionHourly,
			RecordID:    "r1",
			Date:        "2024-05-01",
			ParameterID: "p1",
			PlantUnit:   "unit-1",
		})
		require.NoError(t, err)

		// Keep the socket open until the client disconnects.
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)

	c := store.NewClient(store.ClientConfig{BaseURL: srv.URL}, nil, zap.NewNop())
	t.Cleanup(c.Close)

	unsub, err := c.Subscribe(context.Background(), store.CollectionHourly, func(e store.ChangeEvent) {
		select {
		case events <- e:
		default:
		}
	})
	require.NoError(t, err)
	defer unsub()

	select {
	case e := <-events:
		require.Equal(t, store.ActionUpdate, e.Action)
		require.Equal(t, "r1", e.RecordID)
		require.Equal(t, "2024-05-01", e.Date)
		require.Equal(t, "unit-1", e.PlantUnit)
	case <-time.After(2 * time.Second):
		t.Fatal("no change event received from feed")
	}
}

func TestClient_SubscribeOnlyMatchingCollection(t *testing.T) {
	upgrader := websocket.Upgrader{}

	mux := http.NewServeMux()
	mux.HandleFunc("/api/realtime", func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		require.NoError(t, err)
		defer conn.Close()

		require.NoError(t, conn.WriteJSON(store.ChangeEvent{
			Action:     store.ActionCreate,
			Collection: "unrelated",
			RecordID:   "x",
		}))
		require.NoError(t, conn.WriteJSON(store.ChangeEvent{
			Action:     store.ActionCreate,
			Collection: store.CollectionSilo,
			RecordID:   "s1",
		}))
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)

	c := store.NewClient(store.ClientConfig{BaseURL: srv.URL}, nil, zap.NewNop())
	t.Cleanup(c.Close)

	got := make(chan string, 2)
	unsub, err := c.Subscribe(context.Background(), store.CollectionSilo, func(e store.ChangeEvent) {
		got <- e.RecordID
	})
	require.NoError(t, err)
	defer unsub()

	select {
	case id := <-got:
		require.Equal(t, "s1", id)
	case <-time.After(2 * time.Second):
		t.Fatal("no change event received from feed")
	}
	select {
	case id := <-got:
		t.Fatalf("unexpected event %q for another collection", id)
	case <-time.After(50 * time.Millisecond):
	}
}

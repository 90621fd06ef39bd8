package monitor

import (
	"net/http"

	"github.com/ethereum/go-ethereum/event"
	"github.com/ethereum/go-ethereum/log"
	"github.com/gorilla/websocket"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// statusMessage is the wire shape pushed to a connected status-stream client.
type statusMessage struct {
	Kind   string `json:"kind"`
	TaskID string `json:"task_id"`
	Error  string `json:"error,omitempty"`
}

// StatusStreamHandler upgrades to a websocket and relays ProcessedFeed and
// FailedFeed events for the lifetime of the connection. Optional: operators
// not running a UI against it never dial it. Each subscription channel
// buffers 32 events and no event is dropped: once a buffer is full, the
// monitor loop's Feed.Send waits until this handler reads from it or
// unsubscribes.
func (m *Monitor) StatusStreamHandler(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Debug("monitor: websocket upgrade failed", "err", err)
		return
	}
	defer conn.Close()

	processed := make(chan TaskProcessedEvent, 32)
	failed := make(chan AggregationFailedEvent, 32)
	subs := []event.Subscription{
		m.ProcessedFeed.Subscribe(processed),
		m.FailedFeed.Subscribe(failed),
	}
	defer func() {
		for _, s := range subs {
			s.Unsubscribe()
		}
	}()

	for {
		select {
		case ev := <-processed:
			if err := conn.WriteJSON(statusMessage{Kind: "processed", TaskID: ev.TaskID.String()}); err != nil {
				return
			}
		case ev := <-failed:
			if err := conn.WriteJSON(statusMessage{Kind: "failed", TaskID: ev.TaskID.String(), Error: ev.Err.Error()}); err != nil {
				return
			}
		case sub := <-firstErr(subs):
			log.Debug("monitor: status stream subscription error", "err", sub)
			return
		}
	}
}

func firstErr(subs []event.Subscription) <-chan error {
	out := make(chan error, 1)
	for _, s := range subs {
		go func(s event.Subscription) {
			if err := <-s.Err(); err != nil {
				select {
				case out <- err:
				default:
				}
			}
		}(s)
	}
	return out
}

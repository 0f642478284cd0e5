package api

import (
	"errors"
	"net"
	"net/http"
	"sync"

	"github.com/gorilla/websocket"

	"github.com/evantohost/tesseract/internal/model"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  64 << 10,
	WriteBufferSize: 64 << 10,
	// Cross-origin policy is enforced by the CORS middleware.
	CheckOrigin: func(*http.Request) bool { return true },
}

// channelConn wraps a websocket connection with a write lock: progress events
// and terminal responses for one job are written from the dispatch path while
// the read loop owns the connection.
type channelConn struct {
	mu   sync.Mutex
	conn *websocket.Conn
}

func (c *channelConn) send(resp model.Response) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conn.WriteJSON(resp)
}

// handleChannel upgrades to a websocket and runs the job channel: each inbound
// message is one job, dispatched in order, with progress and terminal
// responses flowing back over the same connection.
func (s *Server) handleChannel(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Error("websocket upgrade", "error", err)
		return
	}
	defer conn.Close()

	cc := &channelConn{conn: conn}
	workerID := model.NewID()
	s.logger.Info("channel opened", "worker_id", workerID, "remote", conn.RemoteAddr().String())

	for {
		var job model.Job
		if err := conn.ReadJSON(&job); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				s.logger.Warn("channel read", "worker_id", workerID, "error", err)
			}
			s.logger.Info("channel closed", "worker_id", workerID)
			return
		}

		if job.JobID == "" {
			job.JobID = model.NewID()
		}
		if job.WorkerID == "" {
			job.WorkerID = workerID
		}

		s.dispatcher.Dispatch(r.Context(), job, func(resp model.Response) {
			if err := cc.send(resp); err != nil && !isClosedConn(err) {
				s.logger.Warn("channel write", "job_id", resp.JobID, "error", err)
			}
		})
	}
}

func isClosedConn(err error) bool {
	var netErr *net.OpError
	return websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) ||
		errors.As(err, &netErr)
}

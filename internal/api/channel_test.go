package api

import (
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/evantohost/tesseract/internal/model"
)

func dialChannel(t *testing.T, ts *httptest.Server) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/v1/channel"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial %s: %v", url, err)
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

// readUntilTerminal drains responses for one job, returning the terminal one.
func readUntilTerminal(t *testing.T, conn *websocket.Conn) (model.Response, int) {
	t.Helper()
	progress := 0
	for {
		conn.SetReadDeadline(time.Now().Add(5 * time.Second))
		var resp model.Response
		if err := conn.ReadJSON(&resp); err != nil {
			t.Fatalf("reading response: %v", err)
		}
		if resp.Status == model.StatusProgress {
			progress++
			continue
		}
		return resp, progress
	}
}

func TestChannelDispatchesJobs(t *testing.T) {
	srv := newTestServer(t)
	ts := httptest.NewServer(srv.Router())
	defer ts.Close()

	conn := dialChannel(t, ts)

	if err := conn.WriteJSON(model.Job{Action: model.ActionLoad}); err != nil {
		t.Fatalf("sending job: %v", err)
	}

	resp, progress := readUntilTerminal(t, conn)
	if resp.Status != model.StatusResolve {
		t.Fatalf("status = %q (%v), want resolve", resp.Status, resp.Data)
	}
	if resp.JobID == "" || resp.WorkerID == "" {
		t.Errorf("missing generated ids: %+v", resp)
	}
	if progress != 2 {
		t.Errorf("progress events = %d, want 2", progress)
	}
}

func TestChannelJobsRunInOrder(t *testing.T) {
	srv := newTestServer(t)
	ts := httptest.NewServer(srv.Router())
	defer ts.Close()

	conn := dialChannel(t, ts)

	jobs := []model.Job{
		{JobID: "j-load", Action: model.ActionLoad},
		{JobID: "j-init", Action: model.ActionInitialize, Payload: []byte(`{"langs":["eng"]}`)},
		{JobID: "j-term", Action: model.ActionTerminate},
	}
	for _, job := range jobs {
		if err := conn.WriteJSON(job); err != nil {
			t.Fatalf("sending %s: %v", job.JobID, err)
		}
	}

	for _, job := range jobs {
		resp, _ := readUntilTerminal(t, conn)
		if resp.JobID != job.JobID {
			t.Fatalf("terminal for %q, want %q", resp.JobID, job.JobID)
		}
		if resp.Status != model.StatusResolve {
			t.Fatalf("%s: status = %q (%v)", job.JobID, resp.Status, resp.Data)
		}
	}
}

func TestChannelRejectionKeepsConnection(t *testing.T) {
	srv := newTestServer(t)
	ts := httptest.NewServer(srv.Router())
	defer ts.Close()

	conn := dialChannel(t, ts)

	if err := conn.WriteJSON(model.Job{Action: "bogus"}); err != nil {
		t.Fatalf("sending job: %v", err)
	}
	resp, _ := readUntilTerminal(t, conn)
	if resp.Status != model.StatusReject {
		t.Fatalf("status = %q, want reject", resp.Status)
	}

	// The channel survives rejects; the next job still runs.
	if err := conn.WriteJSON(model.Job{Action: model.ActionLoad}); err != nil {
		t.Fatalf("sending second job: %v", err)
	}
	resp, _ = readUntilTerminal(t, conn)
	if resp.Status != model.StatusResolve {
		t.Fatalf("second job status = %q (%v), want resolve", resp.Status, resp.Data)
	}
}

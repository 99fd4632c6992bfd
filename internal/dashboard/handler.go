package dashboard

import (
	"encoding/json"
	"log"
	"sync"
	"time"

	"github.com/diddy-rotations/svsync/internal/daemon"
	"github.com/google/uuid"
)

// Handler turns daemon notifications into dashboard messages.
// It implements daemon.Observer and keeps the summary the server reports.
type Handler struct {
	server *Server
	logger *log.Logger

	mu     sync.Mutex
	status StatusData
}

// NewHandler creates a new event handler connected to a dashboard server
func NewHandler(server *Server, logger *log.Logger) *Handler {
	if logger == nil {
		logger = log.Default()
	}

	h := &Handler{
		server: server,
		logger: logger,
	}
	server.setStatus(h.Status)
	return h
}

// SetUnits replaces the known unit list, typically once at startup.
func (h *Handler) SetUnits(units []string) {
	h.mu.Lock()
	h.status.Units = append([]string(nil), units...)
	h.mu.Unlock()
}

// Status returns a copy of the running summary.
func (h *Handler) Status() StatusData {
	h.mu.Lock()
	defer h.mu.Unlock()

	out := h.status
	out.Units = append([]string(nil), h.status.Units...)
	if h.status.LastSync != nil {
		last := *h.status.LastSync
		last.Units = append([]string(nil), last.Units...)
		out.LastSync = &last
	}
	return out
}

// OnSync implements daemon.Observer.
func (h *Handler) OnSync(rec daemon.SyncRecord) {
	data := SyncCompleteData{
		ID:         uuid.NewString(),
		Trigger:    string(rec.Trigger),
		Units:      append([]string(nil), rec.Units...),
		StartedAt:  rec.Started,
		DurationMS: rec.Duration.Milliseconds(),
	}
	if rec.Err != nil {
		data.Error = rec.Err.Error()
	}

	h.mu.Lock()
	h.status.Syncs++
	if rec.Err != nil {
		h.status.Failures++
	}
	last := data
	h.status.LastSync = &last
	h.mu.Unlock()

	h.send(MessageTypeSyncComplete, data)
}

// OnUnitDiscovered implements daemon.Observer.
func (h *Handler) OnUnitDiscovered(unit string) {
	h.mu.Lock()
	h.status.Units = append(h.status.Units, unit)
	h.mu.Unlock()

	h.send(MessageTypeUnitDiscovered, UnitDiscoveredData{Unit: unit})
}

// OnExternalOverwrite implements daemon.Observer.
func (h *Handler) OnExternalOverwrite(modTime time.Time) {
	h.mu.Lock()
	h.status.Externals++
	h.mu.Unlock()

	h.send(MessageTypeExternalOverwrite, DestinationData{ModTime: modTime})
}

// OnEchoSuppressed implements daemon.Observer.
func (h *Handler) OnEchoSuppressed(modTime time.Time) {
	h.mu.Lock()
	h.status.Echoes++
	h.mu.Unlock()

	h.send(MessageTypeEchoSuppressed, DestinationData{ModTime: modTime})
}

func (h *Handler) send(typ MessageType, data any) {
	dataJSON, err := json.Marshal(data)
	if err != nil {
		h.logger.Printf("Failed to marshal %s data: %v", typ, err)
		return
	}

	h.server.Broadcast(Message{
		Type:      typ,
		Timestamp: time.Now(),
		Data:      dataJSON,
	})
}

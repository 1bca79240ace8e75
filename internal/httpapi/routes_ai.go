package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"

	"taskhive/server/internal/db"
	"taskhive/server/internal/provider"
)

type chatPayload struct {
	Message string         `json:"message" validate:"required,min=1,max=1000"`
	Context map[string]any `json:"context"`
}

const genericChatFailure = "The assistant ran into a problem handling that request. Please try again."

// handleChat answers with a text/event-stream of {"chunk": ...} frames
// terminated by [DONE]. Headers are committed lazily: a failure before the
// first chunk is still a plain JSON error response; a failure mid-stream is
// downgraded to an in-band error frame so clients never hang.
func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	var payload chatPayload
	if !s.decodeValid(w, r, &payload) {
		return
	}
	user, _ := userFrom(r.Context())

	stream := newSSEStream(w)
	err := s.deps.Assistant.ChatTurn(r.Context(), user.ID, payload.Message, func(text string) {
		stream.WriteChunk(text)
	})
	if err != nil {
		s.logError(r, err)
		if !stream.Started() {
			if errors.Is(err, provider.ErrUpstream) {
				respondError(w, http.StatusServiceUnavailable, "PROVIDER_UNAVAILABLE",
					s.publicError(err, genericChatFailure))
			} else {
				respondError(w, http.StatusInternalServerError, "INTERNAL",
					s.publicError(err, genericChatFailure))
			}
			return
		}
		stream.WriteError(genericChatFailure)
		stream.Done()
		return
	}
	stream.Done()
}

func (s *Server) handleListMessages(w http.ResponseWriter, r *http.Request) {
	user, _ := userFrom(r.Context())
	rows, err := s.deps.Assistant.Messages(user.ID)
	if err != nil {
		s.domainError(w, r, err)
		return
	}
	out := make([]map[string]any, 0, len(rows))
	for i := range rows {
		out = append(out, messageView(&rows[i]))
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleResetConversation(w http.ResponseWriter, r *http.Request) {
	user, _ := userFrom(r.Context())
	conv, err := s.deps.Assistant.Reset(user.ID)
	if err != nil {
		s.domainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"conversation_id": conv.ID})
}

func messageView(m *db.Message) map[string]any {
	return map[string]any{
		"id":             m.ID,
		"content":        m.Content,
		"from_assistant": m.FromAssistant,
		"created_at":     m.CreatedAt,
	}
}

type sseStream struct {
	w       http.ResponseWriter
	flusher http.Flusher
	started bool
}

func newSSEStream(w http.ResponseWriter) *sseStream {
	flusher, _ := w.(http.Flusher)
	return &sseStream{w: w, flusher: flusher}
}

func (s *sseStream) Started() bool { return s.started }

func (s *sseStream) start() {
	if s.started {
		return
	}
	s.started = true
	h := s.w.Header()
	h.Set("Content-Type", "text/event-stream")
	h.Set("Cache-Control", "no-cache")
	h.Set("Connection", "keep-alive")
	s.w.WriteHeader(http.StatusOK)
}

func (s *sseStream) WriteChunk(text string) {
	s.start()
	s.writeFrame(map[string]string{"chunk": text})
}

func (s *sseStream) WriteError(msg string) {
	s.start()
	s.writeFrame(map[string]string{"error": msg})
}

// Done emits the end-of-stream sentinel. Always the last frame.
func (s *sseStream) Done() {
	s.start()
	_, _ = s.w.Write([]byte("data: [DONE]\n\n"))
	s.flush()
}

func (s *sseStream) writeFrame(payload any) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return
	}
	_, _ = s.w.Write([]byte("data: "))
	_, _ = s.w.Write(raw)
	_, _ = s.w.Write([]byte("\n\n"))
	s.flush()
}

func (s *sseStream) flush() {
	if s.flusher != nil {
		s.flusher.Flush()
	}
}

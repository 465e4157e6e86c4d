package api

import (
	"encoding/json"
	"io"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/kalambet/agentmesh/internal/document"
	"github.com/kalambet/agentmesh/internal/rooms"
	"github.com/kalambet/agentmesh/internal/storage"
)

// handleHealth reports 503 when the database stops answering.
func handleHealth(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if deps.Ping != nil {
			if err := deps.Ping(r.Context()); err != nil {
				writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable", "error": err.Error()})
				return
			}
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	}
}

// decodeBody decodes a size-limited JSON body. An empty body leaves v as is.
func decodeBody(w http.ResponseWriter, r *http.Request, v any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)
	defer r.Body.Close()
	if err := json.NewDecoder(r.Body).Decode(v); err != nil && err != io.EOF {
		httpError(w, http.StatusBadRequest, "invalid_request_error", "invalid request body: %v", err)
		return false
	}
	return true
}

type createPersonRequest struct {
	Name  string `json:"name"`
	Email string `json:"email"`
}

func handleCreatePerson(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req createPersonRequest
		if !decodeBody(w, r, &req) {
			return
		}
		p, err := deps.Rooms.CreatePerson(r.Context(), req.Name, req.Email)
		if err != nil {
			domainError(w, r, err)
			return
		}
		writeJSON(w, http.StatusCreated, p)
	}
}

func handleMe(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		me, err := deps.Rooms.Me(r.Context(), actorFrom(r.Context()))
		if err != nil {
			domainError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, me)
	}
}

type saveProfileRequest struct {
	rooms.ProfileInput
	RoomCode string `json:"room_code,omitempty"`
}

func handleSaveProfile(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req saveProfileRequest
		if !decodeBody(w, r, &req) {
			return
		}
		p, err := deps.Rooms.SaveProfile(r.Context(), actorFrom(r.Context()), req.RoomCode, req.ProfileInput)
		if err != nil {
			domainError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, p)
	}
}

type importProfileResponse struct {
	Profile   storage.Profile `json:"profile"`
	Pages     int             `json:"pages"`
	Truncated bool            `json:"truncated"`
}

// handleImportProfile replaces the bio with the text of an uploaded PDF
// sent as the "file" field of a multipart form.
func handleImportProfile(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		r.Body = http.MaxBytesReader(w, r.Body, document.MaxUploadBytes+maxRequestBodySize)
		if err := r.ParseMultipartForm(document.MaxUploadBytes); err != nil {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "invalid multipart form: %v", err)
			return
		}
		file, _, err := r.FormFile("file")
		if err != nil {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "file is required")
			return
		}
		defer file.Close()

		data, err := io.ReadAll(io.LimitReader(file, document.MaxUploadBytes+1))
		if err != nil {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "reading upload: %v", err)
			return
		}
		doc, err := document.ExtractPDF(data, rooms.MaxBio)
		if err != nil {
			if code, typ := classify(err); code != http.StatusInternalServerError {
				httpError(w, code, typ, "%s", err.Error())
				return
			}
			httpError(w, http.StatusBadRequest, "invalid_request_error", "could not read PDF: %v", err)
			return
		}

		p, err := deps.Rooms.SaveProfile(r.Context(), actorFrom(r.Context()), r.FormValue("room_code"),
			rooms.ProfileInput{Bio: &doc.Text})
		if err != nil {
			domainError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, importProfileResponse{Profile: p, Pages: doc.Pages, Truncated: doc.Truncated})
	}
}

func handleCreateRoom(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		room, err := deps.Rooms.CreateRoom(r.Context(), actorFrom(r.Context()))
		if err != nil {
			domainError(w, r, err)
			return
		}
		writeJSON(w, http.StatusCreated, room)
	}
}

type joinRoomRequest struct {
	Code string `json:"code"`
}

func handleJoinRoom(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req joinRoomRequest
		if !decodeBody(w, r, &req) {
			return
		}
		room, err := deps.Rooms.JoinRoom(r.Context(), req.Code, actorFrom(r.Context()))
		if err != nil {
			domainError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, room)
	}
}

func handleRoomState(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		st, err := deps.Rooms.RoomState(r.Context(), chi.URLParam(r, "code"), actorFrom(r.Context()))
		if err != nil {
			domainError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, st)
	}
}

func handleTriggerMatchmaking(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		room, err := deps.Rooms.TriggerRoom(r.Context(), chi.URLParam(r, "code"), actorFrom(r.Context()))
		if err != nil {
			domainError(w, r, err)
			return
		}
		writeJSON(w, http.StatusAccepted, map[string]string{"room": room.Code, "status": "scheduled"})
	}
}

type respondRequest struct {
	Decision string `json:"decision"`
	Answer   string `json:"answer"`
}

func handleRespond(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req respondRequest
		if !decodeBody(w, r, &req) {
			return
		}
		o, err := deps.Responder.Respond(r.Context(), chi.URLParam(r, "id"), actorFrom(r.Context()), req.Decision, req.Answer)
		if err != nil {
			domainError(w, r, err)
			return
		}
		if deps.Metrics != nil {
			deps.Metrics.ObserveResponse(strings.ToUpper(strings.TrimSpace(req.Decision)), o.Status)
		}
		writeJSON(w, http.StatusOK, o)
	}
}

// handleRoomSocket subscribes a participant to the room's change events.
func handleRoomSocket(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		room, err := deps.Rooms.Authorize(r.Context(), chi.URLParam(r, "code"), actorFrom(r.Context()))
		if err != nil {
			domainError(w, r, err)
			return
		}
		deps.Hub.ServeRoom(w, r, room.Code)
	}
}

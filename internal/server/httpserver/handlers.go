package httpserver

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/gofrs/uuid/v5"

	"github.com/and161185/arquivo-manager/internal/errs"
	"github.com/and161185/arquivo-manager/internal/model"
	"github.com/and161185/arquivo-manager/internal/service"
)

type userDTO struct {
	ID       uuid.UUID  `json:"id"`
	Email    string     `json:"email"`
	FullName string     `json:"full_name"`
	Role     model.Role `json:"role"`
}

func toUserDTO(i model.Identity) userDTO {
	return userDTO{ID: i.AccountID, Email: i.Email, FullName: i.FullName, Role: i.Role}
}

type messageResponse struct {
	Message string `json:"message"`
}

// --- Auth ---

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type loginResponse struct {
	AccessToken string    `json:"access_token"`
	ExpiresAt   time.Time `json:"expires_at"`
	User        userDTO   `json:"user"`
}

func (s *Server) login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := decodeJSON(r, &req); err != nil {
		fail(w, s.log, err)
		return
	}
	tok, ident, err := s.svc.Auth.Login(r.Context(), req.Email, req.Password, ClientIPFromContext(r.Context()))
	if err != nil {
		if errors.Is(err, errs.ErrUnauthenticated) {
			writeError(w, http.StatusUnauthorized, "invalid credentials")
			return
		}
		fail(w, s.log, err)
		return
	}
	writeJSON(w, http.StatusOK, loginResponse{AccessToken: tok.AccessToken, ExpiresAt: tok.ExpiresAt, User: toUserDTO(ident)})
}

type registerRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
	FullName string `json:"full_name"`
}

func (s *Server) register(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if err := decodeJSON(r, &req); err != nil {
		fail(w, s.log, err)
		return
	}
	id, err := s.svc.Auth.Register(r.Context(), req.Email, req.Password, req.FullName)
	if err != nil {
		fail(w, s.log, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]uuid.UUID{"id": id})
}

// validateRole reports the stored identity of the token subject.
func (s *Server) validateRole(w http.ResponseWriter, r *http.Request) {
	id, ok := subjectFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, msgAuthRequired)
		return
	}
	ident, err := s.svc.Auth.Whoami(r.Context(), ClientIPFromContext(r.Context()), id)
	if err != nil {
		fail(w, s.log, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"valid": true, "user": toUserDTO(ident)})
}

// --- Users ---

type profileDTO struct {
	ID                   uuid.UUID  `json:"id"`
	UserID               uuid.UUID  `json:"user_id"`
	FullName             string     `json:"full_name"`
	Role                 model.Role `json:"role"`
	WhatsApp             *string    `json:"whatsapp"`
	ReceiveNotifications bool       `json:"receive_notifications"`
	UpdatedAt            time.Time  `json:"updated_at"`
}

func (s *Server) profile(w http.ResponseWriter, r *http.Request) {
	actor := mustActor(r.Context())
	p, err := s.svc.Accounts.Profile(r.Context(), actor.AccountID)
	if err != nil {
		fail(w, s.log, err)
		return
	}
	writeJSON(w, http.StatusOK, profileDTO{
		ID:                   p.ID,
		UserID:               p.AccountID,
		FullName:             p.FullName,
		Role:                 p.Role,
		WhatsApp:             p.WhatsApp,
		ReceiveNotifications: p.ReceiveNotifications,
		UpdatedAt:            p.UpdatedAt,
	})
}

type profileUpdateRequest struct {
	FullName             string  `json:"full_name"`
	WhatsApp             *string `json:"whatsapp"`
	ReceiveNotifications *bool   `json:"receive_notifications"`
}

func (s *Server) updateProfile(w http.ResponseWriter, r *http.Request) {
	actor := mustActor(r.Context())
	var req profileUpdateRequest
	if err := decodeJSON(r, &req); err != nil {
		fail(w, s.log, err)
		return
	}
	notify := true
	if req.ReceiveNotifications != nil {
		notify = *req.ReceiveNotifications
	}
	upd := model.ProfileUpdate{FullName: req.FullName, WhatsApp: req.WhatsApp, ReceiveNotifications: notify}
	if err := s.svc.Accounts.UpdateOwnProfile(r.Context(), actor.AccountID, upd); err != nil {
		fail(w, s.log, err)
		return
	}
	writeJSON(w, http.StatusOK, messageResponse{Message: "profile updated"})
}

type inviteRequest struct {
	Email    string     `json:"email"`
	FullName string     `json:"full_name"`
	Role     model.Role `json:"role"`
	WhatsApp *string    `json:"whatsapp"`
}

type inviteResponse struct {
	ID           uuid.UUID `json:"id"`
	Email        string    `json:"email"`
	TempPassword string    `json:"temp_password"`
}

func (s *Server) invite(w http.ResponseWriter, r *http.Request) {
	actor := mustActor(r.Context())
	var req inviteRequest
	if err := decodeJSON(r, &req); err != nil {
		fail(w, s.log, err)
		return
	}
	inv, err := s.svc.Accounts.Invite(r.Context(), actor, req.Email, req.FullName, req.Role, req.WhatsApp)
	if err != nil {
		fail(w, s.log, err)
		return
	}
	writeJSON(w, http.StatusCreated, inviteResponse{ID: inv.AccountID, Email: inv.Email, TempPassword: inv.TempPassword})
}

type updateUserRequest struct {
	UserID   uuid.UUID   `json:"user_id"`
	FullName *string     `json:"full_name"`
	Role     *model.Role `json:"role"`
	WhatsApp *string     `json:"whatsapp"`
	Active   *bool       `json:"active"`
}

func (s *Server) updateUser(w http.ResponseWriter, r *http.Request) {
	actor := mustActor(r.Context())
	var req updateUserRequest
	if err := decodeJSON(r, &req); err != nil {
		fail(w, s.log, err)
		return
	}
	upd := model.UserUpdate{FullName: req.FullName, Role: req.Role, WhatsApp: req.WhatsApp, Active: req.Active}
	if err := s.svc.Accounts.UpdateUser(r.Context(), actor, req.UserID, upd); err != nil {
		fail(w, s.log, err)
		return
	}
	writeJSON(w, http.StatusOK, messageResponse{Message: "user updated"})
}

// --- Files ---

type permissionDTO struct {
	UserID     *uuid.UUID `json:"user_id"`
	GroupID    *uuid.UUID `json:"group_id"`
	CategoryID *uuid.UUID `json:"category_id"`
}

type uploadResponse struct {
	FileID   uuid.UUID `json:"file_id"`
	FileURL  string    `json:"file_url"`
	FileType string    `json:"file_type"`
}

// multipartOverhead leaves room for form fields next to the file part.
const multipartOverhead = 1 << 20

func (s *Server) upload(w http.ResponseWriter, r *http.Request) {
	actor := mustActor(r.Context())
	r.Body = http.MaxBytesReader(w, r.Body, s.maxUpload+multipartOverhead)
	if err := r.ParseMultipartForm(32 << 20); err != nil {
		var tooBig *http.MaxBytesError
		if errors.As(err, &tooBig) {
			writeError(w, http.StatusRequestEntityTooLarge, fmt.Sprintf("file too large, max %d MB", s.maxUpload>>20))
			return
		}
		writeError(w, http.StatusBadRequest, "malformed multipart body")
		return
	}
	defer func() { _ = r.MultipartForm.RemoveAll() }()

	var perms []permissionDTO
	if raw := r.FormValue("permissions"); raw != "" {
		if err := json.Unmarshal([]byte(raw), &perms); err != nil {
			writeError(w, http.StatusBadRequest, "permissions must be a JSON array")
			return
		}
	}
	in := service.UploadInput{
		Title:       r.FormValue("title"),
		Description: r.FormValue("description"),
		Permissions: make([]model.FilePermission, 0, len(perms)),
	}
	for _, p := range perms {
		in.Permissions = append(in.Permissions, model.FilePermission{AccountID: p.UserID, GroupID: p.GroupID, CategoryID: p.CategoryID})
	}

	f, hdr, err := r.FormFile("file")
	switch {
	case err == nil:
		defer f.Close()
		in.FileName, in.Size, in.Content = hdr.Filename, hdr.Size, f
	case !errors.Is(err, http.ErrMissingFile):
		writeError(w, http.StatusBadRequest, "malformed file part")
		return
	}

	meta, err := s.svc.Resources.RegisterUpload(r.Context(), actor, in)
	if err != nil {
		fail(w, s.log, err)
		return
	}
	writeJSON(w, http.StatusCreated, uploadResponse{FileID: meta.ID, FileURL: meta.FileURL, FileType: meta.FileType})
}

func (s *Server) deleteFile(w http.ResponseWriter, r *http.Request) {
	s.deleteResource(w, r, s.svc.Resources.DeleteFile, "file deleted")
}

func (s *Server) deleteCategory(w http.ResponseWriter, r *http.Request) {
	s.deleteResource(w, r, s.svc.Resources.DeleteCategory, "category deleted")
}

func (s *Server) deleteGroup(w http.ResponseWriter, r *http.Request) {
	s.deleteResource(w, r, s.svc.Resources.DeleteGroup, "group deleted")
}

func (s *Server) deleteResource(w http.ResponseWriter, r *http.Request,
	del func(ctx context.Context, actor model.Actor, id uuid.UUID) error, msg string) {
	actor := mustActor(r.Context())
	id, err := pathID(r)
	if err != nil {
		fail(w, s.log, err)
		return
	}
	if err := del(r.Context(), actor, id); err != nil {
		fail(w, s.log, err)
		return
	}
	writeJSON(w, http.StatusOK, messageResponse{Message: msg})
}

// --- Categories ---

// nameRequest is the body for creating or renaming a category or group.
type nameRequest struct {
	Name        string  `json:"name"`
	Description *string `json:"description"`
}

type namedDTO struct {
	ID          uuid.UUID `json:"id"`
	Name        string    `json:"name"`
	Description *string   `json:"description"`
	CreatedBy   uuid.UUID `json:"created_by"`
}

func (s *Server) createCategory(w http.ResponseWriter, r *http.Request) {
	actor := mustActor(r.Context())
	var req nameRequest
	if err := decodeJSON(r, &req); err != nil {
		fail(w, s.log, err)
		return
	}
	c, err := s.svc.Resources.CreateCategory(r.Context(), actor, req.Name, req.Description)
	if err != nil {
		fail(w, s.log, err)
		return
	}
	writeJSON(w, http.StatusCreated, namedDTO{ID: c.ID, Name: c.Name, Description: c.Description, CreatedBy: c.CreatedBy})
}

func (s *Server) updateCategory(w http.ResponseWriter, r *http.Request) {
	actor := mustActor(r.Context())
	id, err := pathID(r)
	if err != nil {
		fail(w, s.log, err)
		return
	}
	var req nameRequest
	if err := decodeJSON(r, &req); err != nil {
		fail(w, s.log, err)
		return
	}
	upd := model.CategoryUpdate{Name: req.Name, Description: req.Description}
	if err := s.svc.Resources.UpdateCategory(r.Context(), actor, id, upd); err != nil {
		fail(w, s.log, err)
		return
	}
	writeJSON(w, http.StatusOK, messageResponse{Message: "category updated"})
}

// --- Groups ---

func (s *Server) createGroup(w http.ResponseWriter, r *http.Request) {
	actor := mustActor(r.Context())
	var req nameRequest
	if err := decodeJSON(r, &req); err != nil {
		fail(w, s.log, err)
		return
	}
	g, err := s.svc.Resources.CreateGroup(r.Context(), actor, req.Name, req.Description)
	if err != nil {
		fail(w, s.log, err)
		return
	}
	writeJSON(w, http.StatusCreated, namedDTO{ID: g.ID, Name: g.Name, Description: g.Description, CreatedBy: g.CreatedBy})
}

func (s *Server) updateGroup(w http.ResponseWriter, r *http.Request) {
	actor := mustActor(r.Context())
	id, err := pathID(r)
	if err != nil {
		fail(w, s.log, err)
		return
	}
	var req nameRequest
	if err := decodeJSON(r, &req); err != nil {
		fail(w, s.log, err)
		return
	}
	upd := model.GroupUpdate{Name: req.Name, Description: req.Description}
	if err := s.svc.Resources.UpdateGroup(r.Context(), actor, id, upd); err != nil {
		fail(w, s.log, err)
		return
	}
	writeJSON(w, http.StatusOK, messageResponse{Message: "group updated"})
}

func (s *Server) groupMembers(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		fail(w, s.log, err)
		return
	}
	members, err := s.svc.Resources.GroupMembers(r.Context(), id)
	if err != nil {
		fail(w, s.log, err)
		return
	}
	out := make([]userDTO, 0, len(members))
	for _, m := range members {
		out = append(out, userDTO{ID: m.AccountID, Email: m.Email, FullName: m.FullName, Role: m.Role})
	}
	writeJSON(w, http.StatusOK, map[string]any{"members": out})
}

type membersRequest struct {
	UserIDs []uuid.UUID            `json:"user_ids"`
	Action  model.MembershipAction `json:"action"`
}

func (s *Server) setGroupMembers(w http.ResponseWriter, r *http.Request) {
	actor := mustActor(r.Context())
	id, err := pathID(r)
	if err != nil {
		fail(w, s.log, err)
		return
	}
	var req membersRequest
	if err := decodeJSON(r, &req); err != nil {
		fail(w, s.log, err)
		return
	}
	if req.Action == "" {
		req.Action = model.MembershipSet
	}
	if err := s.svc.Resources.SetGroupMembers(r.Context(), actor, id, req.Action, req.UserIDs); err != nil {
		fail(w, s.log, err)
		return
	}
	writeJSON(w, http.StatusOK, messageResponse{Message: "members updated"})
}

// --- Security events ---

type eventDTO struct {
	ID        string          `json:"id"`
	Type      model.EventType `json:"event_type"`
	IP        string          `json:"ip_address"`
	UserID    *uuid.UUID      `json:"user_id"`
	Details   string          `json:"details"`
	CreatedAt time.Time       `json:"created_at"`
}

func (s *Server) securityEvents(w http.ResponseWriter, r *http.Request) {
	f, err := eventFilter(r)
	if err != nil {
		fail(w, s.log, err)
		return
	}
	evs, err := s.svc.Events.List(r.Context(), f)
	if err != nil {
		fail(w, s.log, err)
		return
	}
	out := make([]eventDTO, 0, len(evs))
	for _, e := range evs {
		out = append(out, eventDTO{ID: e.ID, Type: e.Type, IP: e.ActorIP, UserID: e.AccountID, Details: e.Details, CreatedAt: e.CreatedAt})
	}
	writeJSON(w, http.StatusOK, map[string]any{"events": out})
}

func eventFilter(r *http.Request) (model.EventFilter, error) {
	q := r.URL.Query()
	var f model.EventFilter
	if v := q.Get("type"); v != "" {
		t := model.EventType(v)
		if !t.Valid() {
			return f, fmt.Errorf("%w: unknown event type %q", errs.ErrInvalidInput, v)
		}
		f.Type = &t
	}
	if v := q.Get("user_id"); v != "" {
		id, err := uuid.FromString(v)
		if err != nil {
			return f, fmt.Errorf("%w: invalid user_id", errs.ErrInvalidInput)
		}
		f.AccountID = &id
	}
	if v := q.Get("since"); v != "" {
		ts, err := time.Parse(time.RFC3339, v)
		if err != nil {
			return f, fmt.Errorf("%w: since must be RFC 3339", errs.ErrInvalidInput)
		}
		f.Since = &ts
	}
	if v := q.Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			return f, fmt.Errorf("%w: invalid limit", errs.ErrInvalidInput)
		}
		f.Limit = n
	}
	return f, nil
}

// Package api exposes the write and re-fetch endpoints of the chat over HTTP.
// Every state change goes through a service, which broadcasts it to the live connections.
package api

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"time"

	"chat-hub/auth"
	"chat-hub/contract"
	"chat-hub/domain"
	"chat-hub/domain/chat"
	"chat-hub/domain/event"
	"chat-hub/domain/mimetypes"
	"chat-hub/errors"

	"github.com/google/uuid"
	"github.com/samber/lo"
)

type Messages interface {
	Ingest(ctx context.Context, senderID string, cmd chat.PostMessageCommand) (domain.Message, error)
	Delete(ctx context.Context, userID string, messageID uuid.UUID) error
	List(ctx context.Context, viewerID string, cmd chat.GetMessagesCommand) ([]event.Message, *string, error)
}

type Reactions interface {
	Toggle(ctx context.Context, userID string, cmd chat.ToggleReactionCommand) (bool, []domain.ReactionEntry, error)
	List(ctx context.Context, messageID uuid.UUID) ([]domain.ReactionEntry, error)
}

type Channels interface {
	CreateChannel(ctx context.Context, userID string, cmd chat.CreateChannelCommand) (domain.Channel, error)
	DeleteChannel(ctx context.Context, userID, channelID string) error
	Join(ctx context.Context, userID, channelID string) error
	Leave(ctx context.Context, userID, channelID string) error
	Invite(ctx context.Context, inviterID string, cmd chat.InviteCommand) (domain.Invitation, error)
}

type Profiles interface {
	UpdateProfile(ctx context.Context, userID string, cmd chat.UpdateProfileCommand) (domain.User, error)
}

type Attachments interface {
	Save(name string, r io.Reader) (domain.Attachment, error)
	Open(stored string) (*os.File, string, error)
}

type Dependencies struct {
	Messages    Messages
	Reactions   Reactions
	Channels    Channels
	Profiles    Profiles
	Presence    contract.PresenceTracker
	Attachments Attachments
}

type Config struct {
	WriteRatePerSecond float64
	WriteBurst         int
}

type API struct {
	log     *slog.Logger
	tokens  *auth.Tokens
	deps    Dependencies
	limiter *limiterPool
}

func NewAPI(log *slog.Logger, tokens *auth.Tokens, deps Dependencies, cfg Config) *API {
	return &API{log: log, tokens: tokens, deps: deps, limiter: newLimiterPool(cfg.WriteRatePerSecond, cfg.WriteBurst)}
}

// Routes registers the endpoints on mux. Everything under /api needs a token;
// attachments are served by their unguessable generated names.
func (a *API) Routes(mux *http.ServeMux) {
	read := func(h http.HandlerFunc) http.Handler { return a.tokens.Middleware(h) }
	write := func(h http.HandlerFunc) http.Handler { return a.tokens.Middleware(a.rateLimited(h)) }

	mux.Handle("POST /api/messages", write(a.postMessage))
	mux.Handle("GET /api/messages", read(a.listMessages))
	mux.Handle("DELETE /api/messages/{id}", write(a.deleteMessage))
	mux.Handle("POST /api/messages/{id}/reactions", write(a.toggleReaction))
	mux.Handle("GET /api/messages/{id}/reactions", read(a.listReactions))
	mux.Handle("POST /api/presence", write(a.setPresence))
	mux.Handle("GET /api/presence", read(a.getPresence))
	mux.Handle("PUT /api/profile", write(a.updateProfile))
	mux.Handle("POST /api/channels", write(a.createChannel))
	mux.Handle("DELETE /api/channels/{id}", write(a.deleteChannel))
	mux.Handle("POST /api/channels/{id}/members", write(a.joinChannel))
	mux.Handle("DELETE /api/channels/{id}/members", write(a.leaveChannel))
	mux.Handle("POST /api/channels/{id}/invitations", write(a.invite))
	mux.Handle("POST /api/attachments", write(a.uploadAttachment))
	mux.HandleFunc("GET /attachments/{name}", a.downloadAttachment)
}

func (a *API) rateLimited(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, _ := auth.UserID(r.Context())
		if !a.limiter.Allow(userID) {
			a.writeError(w, r, errors.ErrRateLimited)
			return
		}
		next(w, r)
	}
}

type postMessageRequest struct {
	Content     string                `json:"content"`
	ChannelID   string                `json:"channelId"`
	RecipientID string                `json:"recipientId"`
	ParentID    *uuid.UUID            `json:"parentId"`
	Attachment  *event.AttachmentData `json:"attachment"`
}

type postMessageResponse struct {
	ID          uuid.UUID `json:"id"`
	ChannelID   string    `json:"channelId,omitempty"`
	RecipientID string    `json:"recipientId,omitempty"`
	Timestamp   time.Time `json:"timestamp"`
}

func (a *API) postMessage(w http.ResponseWriter, r *http.Request) {
	var body postMessageRequest
	if !a.decode(w, r, &body) {
		return
	}
	cmd := chat.PostMessageCommand{
		Content:     body.Content,
		ChannelID:   body.ChannelID,
		RecipientID: body.RecipientID,
		ParentID:    body.ParentID,
	}
	if at := body.Attachment; at != nil {
		cmd.Attachment = &domain.Attachment{Name: at.Name, URL: at.URL, Size: at.Size, MimeType: at.MimeType}
	}
	msg, err := a.deps.Messages.Ingest(r.Context(), a.userID(r), cmd)
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	a.writeJSON(w, http.StatusCreated, postMessageResponse{
		ID:          msg.ID,
		ChannelID:   msg.Destination.ChannelID,
		RecipientID: msg.Destination.RecipientID,
		Timestamp:   msg.CreatedAt,
	})
}

type messagePage struct {
	Messages []event.Message `json:"messages"`
	Cursor   *string         `json:"cursor,omitempty"`
}

func (a *API) listMessages(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	cmd := chat.GetMessagesCommand{ChannelID: query.Get("channelId"), RecipientID: query.Get("recipientId")}
	if cursor := query.Get("cursor"); cursor != "" {
		cmd.Cursor = &cursor
	}
	messages, cursor, err := a.deps.Messages.List(r.Context(), a.userID(r), cmd)
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	a.writeJSON(w, http.StatusOK, messagePage{Messages: messages, Cursor: cursor})
}

func (a *API) deleteMessage(w http.ResponseWriter, r *http.Request) {
	id, ok := a.pathUUID(w, r)
	if !ok {
		return
	}
	if err := a.deps.Messages.Delete(r.Context(), a.userID(r), id); err != nil {
		a.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type toggleReactionRequest struct {
	Emoji string `json:"emoji"`
}

type toggleReactionResponse struct {
	Added     bool                   `json:"added"`
	Reactions []domain.ReactionEntry `json:"reactions"`
}

func (a *API) toggleReaction(w http.ResponseWriter, r *http.Request) {
	id, ok := a.pathUUID(w, r)
	if !ok {
		return
	}
	var body toggleReactionRequest
	if !a.decode(w, r, &body) {
		return
	}
	added, reactions, err := a.deps.Reactions.Toggle(r.Context(), a.userID(r), chat.ToggleReactionCommand{MessageID: id, Emoji: body.Emoji})
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	a.writeJSON(w, http.StatusOK, toggleReactionResponse{Added: added, Reactions: reactions})
}

type listReactionsResponse struct {
	MessageID uuid.UUID              `json:"messageId"`
	Reactions []domain.ReactionEntry `json:"reactions"`
}

func (a *API) listReactions(w http.ResponseWriter, r *http.Request) {
	id, ok := a.pathUUID(w, r)
	if !ok {
		return
	}
	reactions, err := a.deps.Reactions.List(r.Context(), id)
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	a.writeJSON(w, http.StatusOK, listReactionsResponse{MessageID: id, Reactions: reactions})
}

type setPresenceRequest struct {
	Status string `json:"status"`
}

// setPresence skips the caller's own socket, named by X-Connection-ID, when echoing the change.
func (a *API) setPresence(w http.ResponseWriter, r *http.Request) {
	var body setPresenceRequest
	if !a.decode(w, r, &body) {
		return
	}
	if err := a.deps.Presence.SetStatus(r.Context(), a.userID(r), chat.SetStatusCommand{Status: body.Status, ConnectionID: r.Header.Get("X-Connection-ID")}); err != nil {
		a.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (a *API) getPresence(w http.ResponseWriter, _ *http.Request) {
	a.writeJSON(w, http.StatusOK, lo.Map(a.deps.Presence.Snapshot(), func(p domain.Presence, _ int) event.Presence {
		return event.FromPresence(p)
	}))
}

type updateProfileRequest struct {
	Username    string `json:"username"`
	DisplayName string `json:"displayName"`
	AvatarURL   string `json:"avatarUrl"`
}

func (a *API) updateProfile(w http.ResponseWriter, r *http.Request) {
	var body updateProfileRequest
	if !a.decode(w, r, &body) {
		return
	}
	user, err := a.deps.Profiles.UpdateProfile(r.Context(), a.userID(r), chat.UpdateProfileCommand(body))
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	a.writeJSON(w, http.StatusOK, event.FromUser(user))
}

type createChannelRequest struct {
	Name string `json:"name"`
}

func (a *API) createChannel(w http.ResponseWriter, r *http.Request) {
	var body createChannelRequest
	if !a.decode(w, r, &body) {
		return
	}
	channel, err := a.deps.Channels.CreateChannel(r.Context(), a.userID(r), chat.CreateChannelCommand{Name: body.Name})
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	a.writeJSON(w, http.StatusCreated, event.FromChannel(channel))
}

func (a *API) deleteChannel(w http.ResponseWriter, r *http.Request) {
	a.noContent(w, r, a.deps.Channels.DeleteChannel(r.Context(), a.userID(r), r.PathValue("id")))
}

func (a *API) joinChannel(w http.ResponseWriter, r *http.Request) {
	a.noContent(w, r, a.deps.Channels.Join(r.Context(), a.userID(r), r.PathValue("id")))
}

func (a *API) leaveChannel(w http.ResponseWriter, r *http.Request) {
	a.noContent(w, r, a.deps.Channels.Leave(r.Context(), a.userID(r), r.PathValue("id")))
}

type inviteRequest struct {
	InviteeID string `json:"inviteeId"`
}

func (a *API) invite(w http.ResponseWriter, r *http.Request) {
	var body inviteRequest
	if !a.decode(w, r, &body) {
		return
	}
	invitation, err := a.deps.Channels.Invite(r.Context(), a.userID(r),
		chat.InviteCommand{ChannelID: r.PathValue("id"), InviteeID: body.InviteeID})
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	a.writeJSON(w, http.StatusCreated, event.FromInvitation(invitation))
}

// uploadAttachment streams the "file" part straight to the store, without buffering the form.
func (a *API) uploadAttachment(w http.ResponseWriter, r *http.Request) {
	reader, err := r.MultipartReader()
	if err != nil {
		a.writeError(w, r, fmt.Errorf("%w: %w", errors.ErrInvalidAttachment, err))
		return
	}
	for {
		part, err := reader.NextPart()
		if err == io.EOF {
			a.writeError(w, r, fmt.Errorf("%w: missing file part", errors.ErrInvalidAttachment))
			return
		}
		if err != nil {
			a.writeError(w, r, fmt.Errorf("%w: %w", errors.ErrInvalidAttachment, err))
			return
		}
		if part.FormName() != "file" {
			_ = part.Close()
			continue
		}
		attachment, err := a.deps.Attachments.Save(part.FileName(), part)
		_ = part.Close()
		if err != nil {
			a.writeError(w, r, err)
			return
		}
		a.writeJSON(w, http.StatusCreated, event.AttachmentData{
			Name:     attachment.Name,
			URL:      attachment.URL,
			Size:     attachment.Size,
			MimeType: attachment.MimeType,
		})
		return
	}
}

func (a *API) downloadAttachment(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("name")
	file, mimeType, err := a.deps.Attachments.Open(name)
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	defer file.Close()
	info, err := file.Stat()
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	disposition := "attachment"
	if mimetypes.Inline(mimeType) {
		disposition = "inline"
	}
	w.Header().Set("Content-Type", mimeType)
	w.Header().Set("Content-Disposition", disposition)
	w.Header().Set("X-Content-Type-Options", "nosniff")
	http.ServeContent(w, r, name, info.ModTime(), file)
}

func (a *API) userID(r *http.Request) string {
	userID, _ := auth.UserID(r.Context())
	return userID
}

func (a *API) pathUUID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		a.writeError(w, r, fmt.Errorf("message %q: %w", r.PathValue("id"), errors.ErrNotFound))
		return uuid.Nil, false
	}
	return id, true
}

func (a *API) decode(w http.ResponseWriter, r *http.Request, v any) bool {
	decoder := json.NewDecoder(io.LimitReader(r.Body, 1<<20))
	if err := decoder.Decode(v); err != nil {
		a.writeJSON(w, http.StatusBadRequest, errorBody{Error: "malformed json body"})
		return false
	}
	return true
}

func (a *API) noContent(w http.ResponseWriter, r *http.Request, err error) {
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type errorBody struct {
	Error string `json:"error"`
}

func (a *API) writeError(w http.ResponseWriter, r *http.Request, err error) {
	code := errors.MapToHTTPStatus(err)
	message := err.Error()
	if code == http.StatusInternalServerError {
		a.log.Error("Request failed", "method", r.Method, "path", r.URL.Path, "error", err)
		message = "internal error"
	} else {
		a.log.Debug("Request rejected", "method", r.Method, "path", r.URL.Path, "status", code, "error", err)
	}
	a.writeJSON(w, code, errorBody{Error: message})
}

func (a *API) writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		a.log.Warn("Unable to write response", "error", err)
	}
}

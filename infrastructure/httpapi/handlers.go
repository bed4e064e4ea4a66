package httpapi

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"

	"deal-lab/domain"
	"deal-lab/repositories"
	"deal-lab/services"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/samber/lo"
)

// Handlers adapts HTTP requests onto the service surface. Actor
// identity always comes from the validated token, never from the body.
type Handlers struct {
	log           *slog.Logger
	negotiation   services.INegotiationService
	workflow      services.IWorkflowService
	conversations services.IConversationService
	presence      services.IPresenceService
}

func NewHandlers(
	log *slog.Logger,
	negotiation services.INegotiationService,
	workflow services.IWorkflowService,
	conversations services.IConversationService,
	presence services.IPresenceService,
) *Handlers {
	return &Handlers{
		log:           log,
		negotiation:   negotiation,
		workflow:      workflow,
		conversations: conversations,
		presence:      presence,
	}
}

func withUserID(ctx context.Context, userID string) context.Context {
	return context.WithValue(ctx, userIDKey, userID)
}

func userIDFrom(ctx context.Context) string {
	userID, _ := ctx.Value(userIDKey).(string)
	return userID
}

func pathID(r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(mux.Vars(r)["id"])
	return id, err == nil
}

func decodeBody(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		writeError(w, http.StatusBadRequest, "malformed json body")
		return false
	}
	return true
}

// --- transactions ---

func (h *Handlers) createTransaction(w http.ResponseWriter, r *http.Request) {
	var cmd services.CreateTransactionCommand
	if !decodeBody(w, r, &cmd) {
		return
	}
	txn, err := h.workflow.CreateTransaction(r.Context(), cmd)
	if err != nil {
		respondError(w, err)
		return
	}
	respondJSON(w, http.StatusCreated, txn)
}

func (h *Handlers) listTransactions(w http.ResponseWriter, r *http.Request) {
	filter := repositories.TransactionFilter{
		ParticipantID: r.URL.Query().Get("participant"),
		Status:        domain.TransactionStatus(r.URL.Query().Get("status")),
		Type:          domain.TransactionType(r.URL.Query().Get("type")),
	}
	txns, err := h.workflow.ListTransactions(filter)
	if err != nil {
		respondError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, txns)
}

func (h *Handlers) deleteTransaction(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r)
	if !ok {
		writeError(w, http.StatusBadRequest, "malformed transaction id")
		return
	}
	if err := h.workflow.DeleteTransaction(r.Context(), id, userIDFrom(r.Context())); err != nil {
		respondError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handlers) updateStatus(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r)
	if !ok {
		writeError(w, http.StatusBadRequest, "malformed transaction id")
		return
	}
	var body struct {
		Status domain.TransactionStatus `json:"status"`
		Notes  string                   `json:"notes"`
	}
	if !decodeBody(w, r, &body) {
		return
	}
	txn, err := h.workflow.UpdateStatus(r.Context(), id, userIDFrom(r.Context()), body.Status, body.Notes)
	if err != nil {
		respondError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, txn)
}

func (h *Handlers) timeline(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r)
	if !ok {
		writeError(w, http.StatusBadRequest, "malformed transaction id")
		return
	}
	entries, err := h.workflow.Timeline(r.Context(), id, userIDFrom(r.Context()))
	if err != nil {
		respondError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, entries)
}

// --- offers ---

func (h *Handlers) createOffer(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r)
	if !ok {
		writeError(w, http.StatusBadRequest, "malformed transaction id")
		return
	}
	var cmd services.CreateOfferCommand
	if !decodeBody(w, r, &cmd) {
		return
	}
	cmd.TransactionID = id
	cmd.OffererID = userIDFrom(r.Context())
	offer, err := h.negotiation.CreateOffer(r.Context(), cmd)
	if err != nil {
		respondError(w, err)
		return
	}
	respondJSON(w, http.StatusCreated, offer)
}

func (h *Handlers) listOffers(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r)
	if !ok {
		writeError(w, http.StatusBadRequest, "malformed transaction id")
		return
	}
	if r.URL.Query().Get("view") == "tree" {
		tree, err := h.negotiation.OfferTree(id)
		if err != nil {
			respondError(w, err)
			return
		}
		respondJSON(w, http.StatusOK, tree)
		return
	}
	offers, err := h.negotiation.ListOffers(id)
	if err != nil {
		respondError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, offers)
}

func (h *Handlers) respondToOffer(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r)
	if !ok {
		writeError(w, http.StatusBadRequest, "malformed offer id")
		return
	}
	var cmd services.RespondToOfferCommand
	if !decodeBody(w, r, &cmd) {
		return
	}
	cmd.OfferID = id
	cmd.ResponderID = userIDFrom(r.Context())
	result, err := h.negotiation.RespondToOffer(r.Context(), cmd)
	if err != nil {
		respondError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, result)
}

// --- milestones ---

func (h *Handlers) addMilestone(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r)
	if !ok {
		writeError(w, http.StatusBadRequest, "malformed transaction id")
		return
	}
	var cmd services.AddMilestoneCommand
	if !decodeBody(w, r, &cmd) {
		return
	}
	cmd.TransactionID = id
	m, err := h.workflow.AddMilestone(r.Context(), cmd)
	if err != nil {
		respondError(w, err)
		return
	}
	respondJSON(w, http.StatusCreated, m)
}

func (h *Handlers) listMilestones(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r)
	if !ok {
		writeError(w, http.StatusBadRequest, "malformed transaction id")
		return
	}
	milestones, progress, err := h.workflow.ListMilestones(id)
	if err != nil {
		respondError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{
		"milestones": milestones,
		"completed":  progress.Completed,
		"total":      progress.Total,
		"percent":    progress.Percent(),
	})
}

func (h *Handlers) completeMilestone(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r)
	if !ok {
		writeError(w, http.StatusBadRequest, "malformed milestone id")
		return
	}
	progress, err := h.workflow.CompleteMilestone(r.Context(), id, userIDFrom(r.Context()))
	if err != nil {
		respondError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{
		"completed": progress.Completed,
		"total":     progress.Total,
		"percent":   progress.Percent(),
	})
}

// --- messaging ---

func (h *Handlers) sendMessage(w http.ResponseWriter, r *http.Request) {
	var cmd services.SendMessageCommand
	if !decodeBody(w, r, &cmd) {
		return
	}
	cmd.SenderID = userIDFrom(r.Context())
	m, err := h.conversations.SendMessage(r.Context(), cmd)
	if err != nil {
		respondError(w, err)
		return
	}
	respondJSON(w, http.StatusCreated, m)
}

func (h *Handlers) listMessages(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	filter := repositories.MessageFilter{
		SenderID:    query.Get("sender"),
		RecipientID: query.Get("recipient"),
		UnreadOnly:  query.Get("unread") == "true",
	}
	if raw := query.Get("transaction"); raw != "" {
		txnID, err := uuid.Parse(raw)
		if err != nil {
			writeError(w, http.StatusBadRequest, "malformed transaction id")
			return
		}
		filter.TransactionID = &txnID
	}
	var cursor *string
	if raw := query.Get("cursor"); raw != "" {
		cursor = lo.ToPtr(raw)
	}
	messages, next, err := h.conversations.ListMessages(filter, cursor)
	if err != nil {
		respondError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{"messages": messages, "cursor": next})
}

func (h *Handlers) deleteMessage(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r)
	if !ok {
		writeError(w, http.StatusBadRequest, "malformed message id")
		return
	}
	if err := h.conversations.DeleteMessage(r.Context(), id, userIDFrom(r.Context())); err != nil {
		respondError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handlers) markRead(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r)
	if !ok {
		writeError(w, http.StatusBadRequest, "malformed message id")
		return
	}
	m, err := h.conversations.MarkRead(r.Context(), id, userIDFrom(r.Context()))
	if err != nil {
		respondError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, m)
}

func (h *Handlers) markConversationRead(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r)
	if !ok {
		writeError(w, http.StatusBadRequest, "malformed transaction id")
		return
	}
	if err := h.conversations.MarkConversationRead(r.Context(), id, userIDFrom(r.Context())); err != nil {
		respondError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handlers) listConversations(w http.ResponseWriter, r *http.Request) {
	summaries, err := h.conversations.ListConversations(userIDFrom(r.Context()))
	if err != nil {
		respondError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, summaries)
}

// --- presence ---

func (h *Handlers) listOnline(w http.ResponseWriter, _ *http.Request) {
	respondJSON(w, http.StatusOK, h.presence.ListOnline())
}

func (h *Handlers) joinRoom(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r)
	if !ok {
		writeError(w, http.StatusBadRequest, "malformed transaction id")
		return
	}
	if err := h.presence.JoinTransactionRoom(userIDFrom(r.Context()), id); err != nil {
		respondError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handlers) leaveRoom(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r)
	if !ok {
		writeError(w, http.StatusBadRequest, "malformed transaction id")
		return
	}
	h.presence.LeaveTransactionRoom(userIDFrom(r.Context()), id)
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handlers) typing(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r)
	if !ok {
		writeError(w, http.StatusBadRequest, "malformed transaction id")
		return
	}
	var body struct {
		Active bool `json:"active"`
	}
	if !decodeBody(w, r, &body) {
		return
	}
	userID := userIDFrom(r.Context())
	if body.Active {
		h.presence.StartTyping(userID, id)
	} else {
		h.presence.StopTyping(userID, id)
	}
	w.WriteHeader(http.StatusAccepted)
}

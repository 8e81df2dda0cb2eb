package handlers

import (
	"errors"
	"net/http"

	"github.com/hellonagi/fz99-lounge-sub001/middleware"
	"github.com/hellonagi/fz99-lounge-sub001/services"
)

type RecurringMatchHandler struct {
	recurringMatchService services.RecurringMatchService
}

func NewRecurringMatchHandler(s services.RecurringMatchService) *RecurringMatchHandler {
	return &RecurringMatchHandler{recurringMatchService: s}
}

// CreateHandler обрабатывает POST /recurring-matches
func (h *RecurringMatchHandler) CreateHandler(w http.ResponseWriter, r *http.Request) {
	currentUserID, err := middleware.GetUserIDFromContext(r.Context())
	if err != nil {
		unauthorizedResponse(w, r, "authentication required to create recurring match")
		return
	}

	var input services.CreateRecurringMatchInput
	if err := readJSON(w, r, &input); err != nil {
		badRequestResponse(w, r, err)
		return
	}

	rm, err := h.recurringMatchService.Create(r.Context(), currentUserID, input)
	if err != nil {
		mapRecurringMatchServiceErrorToHTTP(w, r, err)
		return
	}

	if err := writeJSON(w, http.StatusCreated, jsonResponse{"recurring_match": rm}, nil); err != nil {
		serverErrorResponse(w, r, err)
	}
}

// ListHandler обрабатывает GET /recurring-matches
func (h *RecurringMatchHandler) ListHandler(w http.ResponseWriter, r *http.Request) {
	list, err := h.recurringMatchService.List(r.Context())
	if err != nil {
		mapRecurringMatchServiceErrorToHTTP(w, r, err)
		return
	}

	if err := writeJSON(w, http.StatusOK, jsonResponse{"recurring_matches": list}, nil); err != nil {
		serverErrorResponse(w, r, err)
	}
}

// GetByIDHandler обрабатывает GET /recurring-matches/{recurringMatchID}
func (h *RecurringMatchHandler) GetByIDHandler(w http.ResponseWriter, r *http.Request) {
	id, err := getIDFromURL(r, "recurringMatchID")
	if err != nil {
		badRequestResponse(w, r, err)
		return
	}

	rm, err := h.recurringMatchService.GetByID(r.Context(), id)
	if err != nil {
		mapRecurringMatchServiceErrorToHTTP(w, r, err)
		return
	}

	if err := writeJSON(w, http.StatusOK, jsonResponse{"recurring_match": rm}, nil); err != nil {
		serverErrorResponse(w, r, err)
	}
}

// UpdateHandler обрабатывает PATCH /recurring-matches/{recurringMatchID}
func (h *RecurringMatchHandler) UpdateHandler(w http.ResponseWriter, r *http.Request) {
	id, err := getIDFromURL(r, "recurringMatchID")
	if err != nil {
		badRequestResponse(w, r, err)
		return
	}

	var input services.UpdateRecurringMatchInput
	if err := readJSON(w, r, &input); err != nil {
		badRequestResponse(w, r, err)
		return
	}

	rm, err := h.recurringMatchService.Update(r.Context(), id, input)
	if err != nil {
		mapRecurringMatchServiceErrorToHTTP(w, r, err)
		return
	}

	if err := writeJSON(w, http.StatusOK, jsonResponse{"recurring_match": rm}, nil); err != nil {
		serverErrorResponse(w, r, err)
	}
}

// SetEnabledHandler обрабатывает PATCH /recurring-matches/{recurringMatchID}/enabled
func (h *RecurringMatchHandler) SetEnabledHandler(w http.ResponseWriter, r *http.Request) {
	id, err := getIDFromURL(r, "recurringMatchID")
	if err != nil {
		badRequestResponse(w, r, err)
		return
	}

	var input struct {
		IsEnabled *bool `json:"is_enabled"`
	}
	if err := readJSON(w, r, &input); err != nil {
		badRequestResponse(w, r, err)
		return
	}
	if input.IsEnabled == nil {
		badRequestResponse(w, r, errors.New("is_enabled is required"))
		return
	}

	rm, err := h.recurringMatchService.SetEnabled(r.Context(), id, *input.IsEnabled)
	if err != nil {
		mapRecurringMatchServiceErrorToHTTP(w, r, err)
		return
	}

	if err := writeJSON(w, http.StatusOK, jsonResponse{"recurring_match": rm}, nil); err != nil {
		serverErrorResponse(w, r, err)
	}
}

// DeleteHandler обрабатывает DELETE /recurring-matches/{recurringMatchID}
func (h *RecurringMatchHandler) DeleteHandler(w http.ResponseWriter, r *http.Request) {
	id, err := getIDFromURL(r, "recurringMatchID")
	if err != nil {
		badRequestResponse(w, r, err)
		return
	}

	if err := h.recurringMatchService.Delete(r.Context(), id); err != nil {
		mapRecurringMatchServiceErrorToHTTP(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func mapRecurringMatchServiceErrorToHTTP(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, services.ErrRecurringMatchNotFound):
		notFoundResponse(w, r)
	case errors.Is(err, services.ErrRecurringMatchCategoryConflict):
		conflictResponse(w, r, err.Error())
	case errors.Is(err, services.ErrRuleOverlap):
		conflictResponse(w, r, err.Error())
	case errors.Is(err, services.ErrCategoryInvalid),
		errors.Is(err, services.ErrInGameModeRequired),
		errors.Is(err, services.ErrPlayerBoundsInvalid),
		errors.Is(err, services.ErrRulesRequired),
		errors.Is(err, services.ErrRuleDaysOfWeekRequired),
		errors.Is(err, services.ErrRuleDayOfWeekInvalid),
		errors.Is(err, services.ErrRuleTimeOfDayInvalid),
		errors.Is(err, services.ErrValidationFailed):
		unprocessableEntityResponse(w, r, err)
	default:
		serverErrorResponse(w, r, err)
	}
}

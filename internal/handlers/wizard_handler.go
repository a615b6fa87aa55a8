package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"empresa-service/internal/middleware"
	"empresa-service/internal/services"
)

// WizardHandler exposes the onboarding wizard over HTTP
type WizardHandler struct {
	wizard *services.WizardService
	logger *logrus.Logger
}

// NewWizardHandler creates a new wizard handler
func NewWizardHandler(wizard *services.WizardService, logger *logrus.Logger) *WizardHandler {
	return &WizardHandler{wizard: wizard, logger: logger}
}

type startSessionRequest struct {
	EditingEmpresaID *string `json:"editing_empresa_id"`
}

// StartSession creates a wizard session
// POST /api/v1/wizard/sessions
func (h *WizardHandler) StartSession(c *gin.Context) {
	var req startSessionRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			ErrorResponse(c, http.StatusBadRequest, "Invalid request body", err)
			return
		}
	}

	var editingID *uuid.UUID
	if req.EditingEmpresaID != nil {
		id, err := uuid.Parse(*req.EditingEmpresaID)
		if err != nil {
			ErrorResponse(c, http.StatusBadRequest, "Invalid empresa id", err)
			return
		}
		editingID = &id
	}

	view, err := h.wizard.StartSession(c.Request.Context(), editingID)
	if err != nil {
		ErrorResponse(c, http.StatusInternalServerError, "Failed to start wizard session", err)
		return
	}
	SuccessResponse(c, http.StatusCreated, "Wizard session created", view)
}

// GetStep returns the current step and its accumulated data
// GET /api/v1/wizard/sessions/:key/step
func (h *WizardHandler) GetStep(c *gin.Context) {
	view, err := h.wizard.GetStep(c.Request.Context(), c.Param("key"))
	if err != nil {
		h.sessionError(c, err)
		return
	}
	SuccessResponse(c, http.StatusOK, "Current wizard step", view)
}

type submitStepRequest struct {
	Action string                 `json:"action"`
	Data   map[string]interface{} `json:"data"`
}

// SubmitStep handles a step POST: advance (default), save_draft, or go_back
// POST /api/v1/wizard/sessions/:key/step
func (h *WizardHandler) SubmitStep(c *gin.Context) {
	var req submitStepRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		ErrorResponse(c, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	if req.Data == nil {
		req.Data = make(map[string]interface{})
	}

	view, fieldErrs, err := h.wizard.SubmitStep(c.Request.Context(), c.Param("key"), req.Action, req.Data)
	if err != nil {
		if validationErr, ok := services.IsValidationError(err); ok {
			ValidationErrorResponse(c, []*services.ValidationError{validationErr})
			return
		}
		h.sessionError(c, err)
		return
	}
	if len(fieldErrs) > 0 {
		ValidationErrorResponse(c, fieldErrs)
		return
	}
	SuccessResponse(c, http.StatusOK, "Step accepted", view)
}

// Finish consolidates the wizard session into a persistent tenant
// POST /api/v1/wizard/sessions/:key/finish
func (h *WizardHandler) Finish(c *gin.Context) {
	correlationID := middleware.GetCorrelationID(c)

	result, err := h.wizard.Finish(c.Request.Context(), c.Param("key"), correlationID)
	if err != nil {
		h.sessionError(c, err)
		return
	}

	switch result.Outcome {
	case services.FinishOutcomeSuccess:
		SuccessResponse(c, http.StatusOK, "Cadastro concluído", result)
	case services.FinishOutcomeDuplicate, services.FinishOutcomeInvalid:
		c.JSON(http.StatusBadRequest, gin.H{
			"success":        false,
			"message":        result.Message,
			"reason":         result.Outcome,
			"return_step":    result.ReturnStep,
			"redirect_to":    result.RedirectTo,
			"correlation_id": result.CorrelationID,
		})
	default:
		// consolidation failed; the session survives for retry and the
		// response stays structured, never a bare error page
		c.JSON(http.StatusInternalServerError, gin.H{
			"success":        false,
			"message":        result.Message,
			"reason":         result.Outcome,
			"return_step":    result.ReturnStep,
			"redirect_to":    result.RedirectTo,
			"correlation_id": result.CorrelationID,
		})
	}
}

// Heartbeat marks the session as still attended
// POST /api/v1/wizard/sessions/:key/heartbeat
func (h *WizardHandler) Heartbeat(c *gin.Context) {
	if err := h.wizard.Heartbeat(c.Request.Context(), c.Param("key")); err != nil {
		h.sessionError(c, err)
		return
	}
	SuccessResponse(c, http.StatusOK, "Heartbeat registered", nil)
}

// Cancel destroys the wizard session
// DELETE /api/v1/wizard/sessions/:key
func (h *WizardHandler) Cancel(c *gin.Context) {
	if err := h.wizard.Cancel(c.Request.Context(), c.Param("key")); err != nil {
		ErrorResponse(c, http.StatusInternalServerError, "Failed to cancel wizard session", err)
		return
	}
	SuccessResponse(c, http.StatusOK, "Wizard session cancelled", gin.H{
		"redirect_to": "/empresas",
	})
}

func (h *WizardHandler) sessionError(c *gin.Context, err error) {
	if sessionErr, ok := services.IsSessionError(err); ok {
		ErrorResponse(c, http.StatusNotFound, sessionErr.Message, nil)
		return
	}
	ErrorResponse(c, http.StatusInternalServerError, "Wizard operation failed", err)
}

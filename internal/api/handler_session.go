package api

import (
	"encoding/json"
	"net/http"

	"github.com/google/uuid"
	echo "github.com/labstack/echo/v5"

	"github.com/loomstep/engine/internal/kernel"
	"github.com/loomstep/engine/internal/store"
)

// createSessionHandler handles POST /api/v1/sessions: resolves the
// requested story pack, seeds initial state from its npc_defs, and
// persists a new session at the pack's start node, per spec.md §3's
// Session lifecycle.
func (s *Server) createSessionHandler(c *echo.Context) error {
	var req CreateSessionRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, &ErrorEnvelope{
			Detail: ErrorDetail{Code: "BAD_REQUEST", Message: "malformed request body"},
		})
	}
	if req.StoryID == "" {
		return c.JSON(http.StatusBadRequest, &ErrorEnvelope{
			Detail: ErrorDetail{Code: "BAD_REQUEST", Message: "story_id is required"},
		})
	}
	version := req.Version
	if version == 0 {
		version = 1
	}

	pack, err := s.packs.Resolve(req.StoryID, version)
	if err != nil {
		return c.JSON(http.StatusNotFound, &ErrorEnvelope{
			Detail: ErrorDetail{Code: "NOT_FOUND", Message: err.Error()},
		})
	}

	initial := kernel.State{
		Energy:    kernel.EnergyMax,
		Money:     0,
		Knowledge: 0,
		Affection: 0,
		Day:       kernel.DayMin,
		Slot:      kernel.SlotMorning,
		NpcState:  make(map[string]kernel.NpcEntry, len(pack.NpcDefs)),
	}
	for _, def := range pack.NpcDefs {
		initial.NpcState[def.ID] = kernel.NpcEntry{Affection: def.InitialAffection, Trust: def.InitialTrust}
	}
	initial = kernel.Normalize(initial, pack.ThresholdLookup())

	stateJSON, merr := json.Marshal(initial)
	if merr != nil {
		return c.JSON(http.StatusInternalServerError, &ErrorEnvelope{
			Detail: ErrorDetail{Code: "STEP_FAILED", Message: merr.Error()},
		})
	}

	row := store.SessionRow{
		ID:           uuid.NewString(),
		UserID:       req.UserID,
		StoryID:      pack.StoryID,
		StoryVersion: pack.Version,
		Status:       store.SessionStatusActive,
		StoryNodeID:  pack.StartNodeID,
		StateJSON:    stateJSON,
	}
	if err := s.store.CreateSession(c.Request().Context(), row); err != nil {
		return c.JSON(http.StatusInternalServerError, &ErrorEnvelope{
			Detail: ErrorDetail{Code: "STEP_FAILED", Message: err.Error()},
		})
	}

	return c.JSON(http.StatusCreated, &CreateSessionResponse{
		SessionID:    row.ID,
		StoryID:      row.StoryID,
		StoryVersion: row.StoryVersion,
		StoryNodeID:  row.StoryNodeID,
		StateJSON:    stateJSON,
		CurrentNode:  row.StoryNodeID,
		Status:       row.Status,
	})
}

// getSessionHandler handles GET /api/v1/sessions/:id.
func (s *Server) getSessionHandler(c *echo.Context) error {
	row, err := s.store.GetSession(c.Request().Context(), c.Param("id"))
	if err != nil {
		return c.JSON(http.StatusNotFound, &ErrorEnvelope{
			Detail: ErrorDetail{Code: "NOT_FOUND", Message: "session not found"},
		})
	}

	var state kernel.State
	if err := json.Unmarshal(row.StateJSON, &state); err != nil {
		return c.JSON(http.StatusInternalServerError, &ErrorEnvelope{
			Detail: ErrorDetail{Code: "STEP_FAILED", Message: err.Error()},
		})
	}

	return c.JSON(http.StatusOK, &SessionStateResponse{
		SessionID:    row.ID,
		StoryID:      row.StoryID,
		StoryVersion: row.StoryVersion,
		Status:       row.Status,
		StoryNodeID:  row.StoryNodeID,
		State:        state,
	})
}

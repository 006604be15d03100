package command

import (
	"context"
	"fmt"

	"github.com/metka-hub/metka-attendance-hub/internal/domain/geo"
	"github.com/metka-hub/metka-attendance-hub/internal/domain/lesson"
	"github.com/metka-hub/metka-attendance-hub/internal/domain/shared"
	"github.com/metka-hub/metka-attendance-hub/internal/domain/slab"
	"github.com/metka-hub/metka-attendance-hub/pkg/logger"
)

// ══════════════════════════════════════════════════════════════════════════════
// CREATE SLAB COMMAND
// Administrative: mounts a new physical check-in point.
// ══════════════════════════════════════════════════════════════════════════════

// CreateSlabCommand contains the data for a new check-in point.
type CreateSlabCommand struct {
	Coordinates geo.Coordinates
	Location    lesson.LocationCode
}

// Validate validates the command.
func (c CreateSlabCommand) Validate() error {
	if !c.Location.IsValid() {
		return fmt.Errorf("create_slab: %w", shared.ErrInvalidSlab)
	}
	return nil
}

// CreateSlabHandler handles the CreateSlabCommand.
type CreateSlabHandler struct {
	slabs  slab.Repository
	logger *logger.Logger
}

// NewCreateSlabHandler creates a new CreateSlabHandler.
func NewCreateSlabHandler(slabs slab.Repository, log *logger.Logger) *CreateSlabHandler {
	if log == nil {
		log = logger.Default()
	}
	return &CreateSlabHandler{
		slabs:  slabs,
		logger: log.With(logger.Component("create_slab")),
	}
}

// Handle persists the check-in point and returns it with its assigned ID.
func (h *CreateSlabHandler) Handle(ctx context.Context, cmd CreateSlabCommand) (*slab.Slab, error) {
	if err := cmd.Validate(); err != nil {
		return nil, err
	}

	s, err := h.slabs.Create(ctx, cmd.Coordinates, cmd.Location)
	if err != nil {
		return nil, fmt.Errorf("create_slab: %w", err)
	}

	h.logger.Info("slab created",
		logger.SlabID(s.ID),
		logger.LocationCode(string(s.Location)))

	return s, nil
}

package http

import (
	"context"
	"net/http"
	"strconv"

	"github.com/dkeye/Guardian/internal/app/orch"
	"github.com/dkeye/Guardian/internal/core"
	"github.com/dkeye/Guardian/internal/domain"
	"github.com/dkeye/Guardian/internal/store"
	"github.com/gin-gonic/gin"
)

// Catalog is the read side of the SQLite store; nil disables the
// device and snapshot endpoints.
type Catalog interface {
	Devices(ctx context.Context) ([]store.Device, error)
	Snapshots(ctx context.Context, room string, limit int) ([]store.SnapshotRecord, error)
}

const maxSnapshotLimit = 500

type handlers struct {
	orch    *orch.Orchestrator
	catalog Catalog
}

func (h *handlers) health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":      "ok",
		"rooms":       len(h.orch.Rooms.List()),
		"connections": h.orch.Registry.Count(),
	})
}

func (h *handlers) listRooms(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"rooms": h.orch.Rooms.List()})
}

func (h *handlers) getRoom(c *gin.Context) {
	id := domain.RoomID(c.Param("room"))
	room, ok := h.orch.Rooms.Get(id)
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "room not found"})
		return
	}
	resp := gin.H{
		"room":           id,
		"member_count":   room.MemberCount(),
		"child_count":    room.Count(domain.RoleChild),
		"guardian_count": room.Count(domain.RoleGuardian),
		"members":        room.MembersSnapshot(),
	}
	if report, ok := h.orch.Mirror.Latest(id); ok {
		resp["state"] = report
	}
	c.JSON(http.StatusOK, resp)
}

func (h *handlers) getState(c *gin.Context) {
	report, ok := h.orch.Mirror.Latest(domain.RoomID(c.Param("room")))
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "no state reported"})
		return
	}
	c.JSON(http.StatusOK, report)
}

func (h *handlers) evictRoom(c *gin.Context) {
	n := h.orch.EvictRoom(domain.RoomID(c.Param("room")))
	c.JSON(http.StatusOK, gin.H{"evicted": n})
}

func (h *handlers) kickMember(c *gin.Context) {
	sid := core.SessionID(c.Param("id"))
	ms, ok := h.orch.Registry.GetSession(sid)
	if !ok || ms.Meta().Room != domain.RoomID(c.Param("room")) {
		c.JSON(http.StatusNotFound, gin.H{"error": "member not found"})
		return
	}
	h.orch.Kick(sid)
	c.Status(http.StatusNoContent)
}

func (h *handlers) listDevices(c *gin.Context) {
	if h.catalog == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "catalog disabled"})
		return
	}
	devices, err := h.catalog.Devices(c.Request.Context())
	if err != nil {
		_ = c.Error(err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "catalog unavailable"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"devices": devices})
}

func (h *handlers) listSnapshots(c *gin.Context) {
	if h.catalog == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "catalog disabled"})
		return
	}
	limit := 50
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid limit"})
			return
		}
		limit = min(n, maxSnapshotLimit)
	}
	snaps, err := h.catalog.Snapshots(c.Request.Context(), c.Query("room"), limit)
	if err != nil {
		_ = c.Error(err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "catalog unavailable"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"snapshots": snaps})
}

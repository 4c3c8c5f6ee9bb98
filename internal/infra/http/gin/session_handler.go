package ginserver

import (
	"errors"
	"log/slog"
	"net/http"

	gin "github.com/gin-gonic/gin"

	"zarp/internal/app/dto"
	"zarp/internal/app/session"
	"zarp/internal/domain/availability"
	"zarp/internal/domain/daterange"
	"zarp/internal/domain/shared/money"
)

// SessionHandler exposes the availability engine to the booking page:
// open a viewing session, read blocked ranges, drive the selection state
// machine, submit, tear down.
type SessionHandler struct {
	Manager  *session.Manager
	ClientID string
	Logger   *slog.Logger
}

func (h SessionHandler) Open(c *gin.Context) {
	var req dto.OpenSessionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	var price money.Money
	if req.PricePerNight != 0 || req.Currency != "" {
		var err error
		price, err = money.New(req.PricePerNight, req.Currency)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
	}
	s, err := h.Manager.Open(c.Request.Context(), availability.PropertyID(req.PropertyID), price)
	if err != nil {
		// Without the authoritative snapshot every range would read as
		// available; booking stays disabled until the UI retries.
		if errors.Is(err, session.ErrSnapshotLoad) {
			c.JSON(http.StatusBadGateway, gin.H{"error": "availability snapshot unavailable"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusCreated, dto.MapSessionState(s.ID, s.State()))
}

func (h SessionHandler) Calendar(c *gin.Context) {
	s, ok := h.session(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, dto.MapBlockedRanges(s.State()))
}

func (h SessionHandler) CheckIn(c *gin.Context) {
	s, ok := h.session(c)
	if !ok {
		return
	}
	day, ok := h.bindDate(c)
	if !ok {
		return
	}
	s.SelectCheckIn(day)
	c.JSON(http.StatusOK, dto.MapSessionState(s.ID, s.State()))
}

func (h SessionHandler) CheckOut(c *gin.Context) {
	s, ok := h.session(c)
	if !ok {
		return
	}
	day, ok := h.bindDate(c)
	if !ok {
		return
	}
	s.SelectCheckOut(day)
	c.JSON(http.StatusOK, dto.MapSessionState(s.ID, s.State()))
}

func (h SessionHandler) Clear(c *gin.Context) {
	s, ok := h.session(c)
	if !ok {
		return
	}
	s.Clear()
	c.JSON(http.StatusOK, dto.MapSessionState(s.ID, s.State()))
}

func (h SessionHandler) State(c *gin.Context) {
	s, ok := h.session(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, dto.MapSessionState(s.ID, s.State()))
}

func (h SessionHandler) Refresh(c *gin.Context) {
	s, ok := h.session(c)
	if !ok {
		return
	}
	if err := s.Refresh(c.Request.Context()); err != nil {
		c.JSON(http.StatusBadGateway, gin.H{"error": "availability snapshot unavailable"})
		return
	}
	c.JSON(http.StatusOK, dto.MapSessionState(s.ID, s.State()))
}

func (h SessionHandler) Submit(c *gin.Context) {
	s, ok := h.session(c)
	if !ok {
		return
	}
	var req dto.SubmitRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	res, err := s.Submit(c.Request.Context(), h.ClientID, req.PaymentMethod)
	switch {
	case errors.Is(err, session.ErrDatesConflict):
		// The backend is the final arbiter; the refreshed state tells
		// the UI which dates just became unavailable.
		c.JSON(http.StatusConflict, gin.H{
			"error": "dates just became unavailable",
			"state": dto.MapSessionState(s.ID, s.State()),
		})
	case errors.Is(err, session.ErrNoAcceptedSelection):
		c.JSON(http.StatusBadRequest, gin.H{"error": "no accepted selection"})
	case err != nil:
		c.JSON(http.StatusBadGateway, gin.H{"error": err.Error()})
	default:
		c.JSON(http.StatusOK, dto.SubmitResponse{RedirectURL: res.RedirectURL})
	}
}

func (h SessionHandler) Close(c *gin.Context) {
	if err := h.Manager.Close(c.Param("id")); err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "session not found"})
		return
	}
	c.Status(http.StatusNoContent)
}

func (h SessionHandler) session(c *gin.Context) (*session.Session, bool) {
	s, err := h.Manager.Get(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "session not found"})
		return nil, false
	}
	return s, true
}

func (h SessionHandler) bindDate(c *gin.Context) (daterange.Day, bool) {
	var req dto.DateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return 0, false
	}
	day, err := daterange.ParseDay(req.Date)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return 0, false
	}
	return day, true
}

var _ SessionHTTP = SessionHandler{}

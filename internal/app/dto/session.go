package dto

import (
	"zarp/internal/app/session"
	"zarp/internal/domain/availability"
)

type OpenSessionRequest struct {
	PropertyID    string `json:"property_id" binding:"required"`
	PricePerNight int64  `json:"price_per_night"`
	Currency      string `json:"currency"`
}

type DateRequest struct {
	Date string `json:"date" binding:"required"`
}

type SubmitRequest struct {
	PaymentMethod string `json:"payment_method" binding:"required"`
}

type SubmitResponse struct {
	RedirectURL string `json:"redirect_url"`
}

type BlockedRange struct {
	Start string `json:"start"`
	End   string `json:"end"`
}

type BlockedRanges struct {
	PropertyID string         `json:"property_id"`
	Ranges     []BlockedRange `json:"ranges"`
	Version    int64          `json:"version"`
}

type Selection struct {
	CheckIn    string `json:"check_in"`
	CheckOut   string `json:"check_out,omitempty"`
	Nights     int    `json:"nights,omitempty"`
	TotalPrice int64  `json:"total_price,omitempty"`
	Currency   string `json:"currency,omitempty"`
}

type SessionState struct {
	SessionID     string     `json:"session_id"`
	PropertyID    string     `json:"property_id"`
	State         string     `json:"state"`
	Reason        string     `json:"reason,omitempty"`
	Selection     *Selection `json:"selection,omitempty"`
	Version       int64      `json:"version"`
	LiveConnected bool       `json:"live_connected"`
}

func MapBlockedRanges(st session.State) BlockedRanges {
	ranges := make([]BlockedRange, 0, len(st.Blocked))
	for _, iv := range st.Blocked {
		ranges = append(ranges, BlockedRange{Start: iv.Start.String(), End: iv.End.String()})
	}
	return BlockedRanges{PropertyID: string(st.PropertyID), Ranges: ranges, Version: st.Version}
}

func MapSessionState(sessionID string, st session.State) SessionState {
	out := SessionState{
		SessionID:     sessionID,
		PropertyID:    string(st.PropertyID),
		State:         string(st.SelState),
		Reason:        string(st.Reason),
		Version:       st.Version,
		LiveConnected: st.LiveConnected,
	}
	switch {
	case st.HasSelection:
		out.Selection = &Selection{
			CheckIn:    st.Selection.CheckIn.String(),
			CheckOut:   st.Selection.CheckOut.String(),
			Nights:     st.Nights,
			TotalPrice: st.TotalPrice.Amount,
			Currency:   st.TotalPrice.Currency,
		}
	case st.SelState == availability.StateCheckInSet:
		out.Selection = &Selection{CheckIn: st.Selection.CheckIn.String()}
	}
	return out
}

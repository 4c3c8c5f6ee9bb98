package submit

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"zarp/internal/app/session"
)

type submitBody struct {
	CheckIn       string `json:"checkIn"`
	CheckOut      string `json:"checkOut"`
	PropertyID    string `json:"propertyId"`
	ClientID      string `json:"clientId"`
	PaymentMethod string `json:"paymentMethod"`
}

type submitResponse struct {
	RedirectURL string `json:"redirectUrl"`
	Error       string `json:"error"`
}

// Submitter posts an accepted selection to the reservation collaborator.
// The backend performs its own conflict detection at this point; a 409
// means another guest won the dates regardless of what the client-side
// set believed.
type Submitter struct {
	baseURL string
	client  *http.Client
	logger  *slog.Logger
}

func NewSubmitter(baseURL string, timeout time.Duration, logger *slog.Logger) *Submitter {
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Submitter{
		baseURL: baseURL,
		client:  &http.Client{Timeout: timeout},
		logger:  logger,
	}
}

func (s *Submitter) Submit(ctx context.Context, req session.SubmitRequest) (session.SubmitResult, error) {
	body, err := json.Marshal(submitBody{
		CheckIn:       req.CheckIn.String(),
		CheckOut:      req.CheckOut.String(),
		PropertyID:    string(req.PropertyID),
		ClientID:      req.ClientID,
		PaymentMethod: req.PaymentMethod,
	})
	if err != nil {
		return session.SubmitResult{}, err
	}

	url := s.baseURL + "/api/v1/reservas"
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return session.SubmitResult{}, err
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(httpReq)
	if err != nil {
		return session.SubmitResult{}, fmt.Errorf("submit: %w", err)
	}
	defer resp.Body.Close()

	var decoded submitResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil && resp.StatusCode < 300 {
		return session.SubmitResult{}, fmt.Errorf("submit: decode response: %w", err)
	}

	switch {
	case resp.StatusCode == http.StatusConflict:
		s.logger.Info("submission rejected by backend",
			"property_id", req.PropertyID, "check_in", req.CheckIn, "check_out", req.CheckOut)
		return session.SubmitResult{}, fmt.Errorf("%w: %s", session.ErrDatesConflict, decoded.Error)
	case resp.StatusCode >= 300:
		return session.SubmitResult{}, fmt.Errorf("submit: backend returned %d: %s", resp.StatusCode, decoded.Error)
	case decoded.RedirectURL == "":
		return session.SubmitResult{}, fmt.Errorf("submit: backend response missing redirectUrl")
	}
	return session.SubmitResult{RedirectURL: decoded.RedirectURL}, nil
}

var _ session.Submitter = (*Submitter)(nil)

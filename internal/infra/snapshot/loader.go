package snapshot

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/sony/gobreaker"

	"zarp/internal/app/session"
	"zarp/internal/domain/availability"
	"zarp/internal/domain/daterange"
)

// reservaDTO mirrors the backend's wire shape. fechaFin is the last
// occupied day (inclusive), which maps straight onto Interval.End.
type reservaDTO struct {
	FechaInicio string `json:"fechaInicio"`
	FechaFin    string `json:"fechaFin"`
}

// Loader fetches the authoritative reserved ranges over HTTP. A failed
// load is always an error, never an empty snapshot: an empty JSON array
// from the backend is the only way to get a fully-available set.
type Loader struct {
	baseURL string
	client  *http.Client
	breaker *gobreaker.CircuitBreaker
	logger  *slog.Logger
}

func NewLoader(baseURL string, timeout time.Duration, logger *slog.Logger) *Loader {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	if logger == nil {
		logger = slog.Default()
	}
	breaker := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "availability-snapshot",
		MaxRequests: 1,
		Interval:    30 * time.Second,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			failureRatio := float64(counts.TotalFailures) / float64(counts.Requests)
			return counts.Requests >= 3 && failureRatio >= 0.6
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("snapshot breaker state change", "breaker", name, "from", from.String(), "to", to.String())
		},
	})
	return &Loader{
		baseURL: baseURL,
		client:  &http.Client{Timeout: timeout},
		breaker: breaker,
		logger:  logger,
	}
}

func (l *Loader) Load(ctx context.Context, propertyID availability.PropertyID) (availability.Snapshot, error) {
	out, err := l.breaker.Execute(func() (interface{}, error) {
		return l.fetch(ctx, propertyID)
	})
	if err != nil {
		return availability.Snapshot{}, fmt.Errorf("%w: %v", session.ErrSnapshotLoad, err)
	}
	intervals := out.([]daterange.Interval)
	return availability.Snapshot{
		PropertyID: propertyID,
		Intervals:  intervals,
		LoadedAt:   time.Now().UTC(),
	}, nil
}

func (l *Loader) fetch(ctx context.Context, propertyID availability.PropertyID) ([]daterange.Interval, error) {
	url := fmt.Sprintf("%s/api/v1/propiedades/%s/reservas", l.baseURL, propertyID)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")

	resp, err := l.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("snapshot endpoint returned %d", resp.StatusCode)
	}

	var reservas []reservaDTO
	if err := json.NewDecoder(resp.Body).Decode(&reservas); err != nil {
		return nil, fmt.Errorf("decode snapshot body: %w", err)
	}
	intervals := make([]daterange.Interval, 0, len(reservas))
	for _, r := range reservas {
		iv, err := parseReserva(r)
		if err != nil {
			// A snapshot with holes would read as falsely available.
			return nil, err
		}
		intervals = append(intervals, iv)
	}
	return intervals, nil
}

func parseReserva(r reservaDTO) (daterange.Interval, error) {
	start, err := daterange.ParseDay(r.FechaInicio)
	if err != nil {
		return daterange.Interval{}, fmt.Errorf("fechaInicio: %w", err)
	}
	end, err := daterange.ParseDay(r.FechaFin)
	if err != nil {
		return daterange.Interval{}, fmt.Errorf("fechaFin: %w", err)
	}
	return daterange.NewInterval(start, end)
}

var _ session.SnapshotLoader = (*Loader)(nil)

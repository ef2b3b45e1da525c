// Package sender pushes the latest snapshot to remote HTTP collectors.
package sender

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"sync"
	"time"

	"codeberg.org/welterm/udsd/internal/config"
	"codeberg.org/welterm/udsd/internal/errors"
	"codeberg.org/welterm/udsd/internal/logger"
	"codeberg.org/welterm/udsd/internal/metrics"
	"codeberg.org/welterm/udsd/internal/store"
)

const (
	moduleName     = "active_data_sender"
	requestTimeout = 5 * time.Second
)

// Sender POSTs one snapshot per cycle to every configured endpoint.
// Delivery is fire-and-forget; a failed endpoint is retried on the
// next cycle with whatever snapshot is current then.
type Sender struct {
	endpoints      []config.Endpoint
	store          *store.Store
	client         *http.Client
	ignoreConnErrs bool
}

func New(cfg config.ActiveSender, st *store.Store) *Sender {
	return &Sender{
		endpoints:      cfg.Endpoints,
		store:          st,
		client:         &http.Client{Timeout: requestTimeout},
		ignoreConnErrs: cfg.IgnoreConnectionErrors,
	}
}

// Cycle serializes the snapshot once and delivers it to all endpoints
// concurrently. Every endpoint gets an attempt no matter how the
// others fare.
func (s *Sender) Cycle(ctx context.Context) {
	metrics.Cycles.WithLabelValues(moduleName).Inc()

	body, err := json.Marshal(s.store.Snapshot())
	if err != nil {
		logger.Error().Err(err).Msg("Failed to serialize snapshot")
		return
	}

	var wg sync.WaitGroup
	for _, ep := range s.endpoints {
		wg.Add(1)
		go func(ep config.Endpoint) {
			defer wg.Done()
			s.send(ctx, ep, body)
		}(ep)
	}
	wg.Wait()
}

func (s *Sender) send(ctx context.Context, ep config.Endpoint, body []byte) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, ep.URL, bytes.NewReader(body))
	if err != nil {
		logger.Error().Str("endpoint", ep.URL).Err(err).Msg("Failed to build request")
		metrics.SendAttempts.WithLabelValues(ep.URL, metrics.OutcomeConnectError).Inc()
		return
	}
	req.Header.Set("Content-Type", "application/json")
	if ep.BearerToken != "" {
		req.Header.Set("Authorization", "Bearer "+ep.BearerToken)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		s.logConnectionError(ep.URL, err)
		metrics.SendAttempts.WithLabelValues(ep.URL, metrics.OutcomeConnectError).Inc()
		return
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		logger.Warn().
			Str("endpoint", ep.URL).
			Int("status", resp.StatusCode).
			Msg("Endpoint rejected data")
		metrics.SendAttempts.WithLabelValues(ep.URL, metrics.OutcomeHTTPError).Inc()
		return
	}

	logger.Debug().Str("endpoint", ep.URL).Int("bytes", len(body)).Msg("Data delivered")
	metrics.SendAttempts.WithLabelValues(ep.URL, metrics.OutcomeOK).Inc()
}

func (s *Sender) logConnectionError(url string, err error) {
	if s.ignoreConnErrs {
		logger.Debug().Str("endpoint", url).Err(err).Msg("Endpoint unreachable")
		return
	}

	logger.ErrorWithCode(errors.New().Wrap(errors.ErrSendConnection, err)).
		Str("endpoint", url).
		Msg("Endpoint unreachable")
}

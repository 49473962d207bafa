// Package folio issues per-template folio numbers.
//
// A folio is unique and strictly increasing within a template. Stores must
// perform the read-increment-write of a counter as one serialized operation;
// counters of different templates must not block one another.
package folio

import (
	"context"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/example/formflow/internal/apperr"
	"github.com/example/formflow/internal/metrics"
)

// Store atomically creates-or-increments the counter of a template and returns
// the new value. A missing counter is created at 1.
type Store interface {
	Increment(ctx context.Context, templateID uint) (int64, error)
	Backend() string
}

// Sequencer hands out folio numbers from a Store.
type Sequencer struct {
	store Store
}

// NewSequencer wraps store.
func NewSequencer(store Store) *Sequencer {
	return &Sequencer{store: store}
}

// Next returns the next folio for templateID.
func (s *Sequencer) Next(ctx context.Context, templateID uint) (int64, error) {
	if templateID == 0 {
		return 0, errors.New("folio requested for empty template id")
	}
	n, err := s.store.Increment(ctx, templateID)
	if err != nil {
		metrics.FolioFailuresTotal.WithLabelValues(s.store.Backend()).Inc()
		return 0, errors.Wrapf(err, "next folio for template %d", templateID)
	}
	if n < 1 {
		metrics.FolioFailuresTotal.WithLabelValues(s.store.Backend()).Inc()
		logrus.WithFields(logrus.Fields{"templateId": templateID, "value": n, "backend": s.store.Backend()}).
			Error("folio counter returned a non-positive value")
		return 0, errors.Wrapf(apperr.ErrConflictingFolio, "template %d counter returned %d", templateID, n)
	}
	metrics.FoliosIssuedTotal.WithLabelValues(s.store.Backend()).Inc()
	return n, nil
}

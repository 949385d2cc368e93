package scheduler

import (
	"context"

	"github.com/sirupsen/logrus"

	"github.com/iliyamo/card-tracking/internal/model"
	"github.com/iliyamo/card-tracking/internal/service"
)

// AssignmentPass gives a card to every visitor whose pending appointment
// checks in within the lookahead window and who has none yet, then
// starts the appointment.  Cards are taken oldest first.  A card that
// failed to assign for a card-side reason is not offered again in the
// same pass, and a visitor served earlier in the pass is not given a
// second card.
func (s *Scheduler) AssignmentPass(ctx context.Context) PassResult {
	var res PassResult
	now := s.clock.Now().UTC()
	appts, err := s.appointments.DueForCheckIn(ctx, now, now.Add(s.cfg.Lookahead))
	if err != nil {
		s.log.WithError(err).Error("assignment pass: listing appointments failed")
		return res
	}

	taken := make(map[string]bool)
	served := make(map[string]bool)
	for _, a := range appts {
		if ctx.Err() != nil {
			s.log.WithError(ctx.Err()).Warn("assignment pass interrupted")
			break
		}
		log := s.log.WithFields(logrus.Fields{"appointment_id": a.ID, "visitor_id": a.VisitorID})
		if a.Visitor == nil {
			log.Error("appointment without visitor")
			s.count(&res, "assign", "failed")
			continue
		}

		// The visitor may already hold a card, from a manual assignment
		// or a previous tick that assigned but failed to start.
		if a.Visitor.HasCard() || served[a.Visitor.ID] {
			if _, err := s.cards.CheckIn(ctx, a.ID); err != nil {
				log.WithError(err).Warn("starting appointment failed")
				s.count(&res, "assign", "failed")
				continue
			}
			s.count(&res, "assign", "started")
			continue
		}

		card, err := s.pickCard(ctx, taken)
		if err != nil {
			log.WithError(err).Error("listing available cards failed")
			s.count(&res, "assign", "failed")
			continue
		}
		if card == nil {
			log.Info("no card available, will retry next tick")
			s.count(&res, "assign", "skipped")
			continue
		}
		log = log.WithField("card_id", card.ID)

		if _, err := s.cards.AssignToVisitor(ctx, card.ID, a.Visitor.ID); err != nil {
			if cardUnusable(err) {
				taken[card.ID] = true
			}
			log.WithError(err).Warn("auto-assign failed")
			s.count(&res, "assign", "failed")
			continue
		}
		served[a.Visitor.ID] = true
		if _, err := s.cards.CheckIn(ctx, a.ID); err != nil {
			log.WithError(err).Warn("card assigned but starting appointment failed")
			s.count(&res, "assign", "failed")
			continue
		}
		s.count(&res, "assign", "assigned")
	}
	return res
}

// cardUnusable reports whether an assignment error was caused by the
// card rather than the visitor.
func cardUnusable(err error) bool {
	switch service.CodeOf(err) {
	case service.CodeVisitorNotFound, service.CodeVisitorCompleted, service.CodeVisitorHasCard:
		return false
	}
	return true
}

func (s *Scheduler) pickCard(ctx context.Context, taken map[string]bool) (*model.Card, error) {
	cards, err := s.cards.FindAvailableCards(ctx, len(taken)+1)
	if err != nil {
		return nil, err
	}
	for i := range cards {
		if !taken[cards[i].ID] {
			return &cards[i], nil
		}
	}
	return nil, nil
}

// ReleasePass completes every in-progress appointment whose check-out
// time has passed, releasing the visitor's card if one is held.
func (s *Scheduler) ReleasePass(ctx context.Context) PassResult {
	var res PassResult
	now := s.clock.Now().UTC()
	appts, err := s.appointments.DueForCheckOut(ctx, now)
	if err != nil {
		s.log.WithError(err).Error("release pass: listing appointments failed")
		return res
	}
	for _, a := range appts {
		if ctx.Err() != nil {
			s.log.WithError(ctx.Err()).Warn("release pass interrupted")
			break
		}
		log := s.log.WithFields(logrus.Fields{"appointment_id": a.ID, "visitor_id": a.VisitorID})
		hadCard := a.Visitor != nil && a.Visitor.HasCard()
		if hadCard {
			log = log.WithField("card_id", *a.Visitor.CardID)
		}
		if _, err := s.cards.CheckOut(ctx, a.ID); err != nil {
			log.WithError(err).Warn("auto-release failed")
			s.count(&res, "release", "failed")
			continue
		}
		if hadCard {
			s.count(&res, "release", "released")
		}
		s.count(&res, "release", "completed")
	}
	return res
}

func (s *Scheduler) count(res *PassResult, pass, outcome string) {
	outcomes.WithLabelValues(pass, outcome).Inc()
	switch outcome {
	case "assigned":
		res.Assigned++
	case "started":
		res.Started++
	case "released":
		res.Released++
	case "completed":
		res.Completed++
	case "skipped":
		res.Skipped++
	case "failed":
		res.Failed++
	}
}

package authstore

import (
	"context"
	"strings"

	"github.com/sirupsen/logrus"
	"github.com/yoockh/launchkit/internal/identity"
	"github.com/yoockh/launchkit/internal/models"
)

// message is everything the dispatcher applies.
type message interface{ isMessage() }

type eventMsg struct{ ev identity.Event }

// initialMsg carries the result of the provider query made by Initialize.
type initialMsg struct {
	session *identity.Session
	failed  bool
	ack     chan struct{}
}

// Enrichment is the outcome of a profile lookup started for one sign-in.
// Generation ties it to that sign-in; stale results are dropped.
type Enrichment struct {
	UserID     string
	Generation uint64
	Profile    *models.Profile
	Err        error
}

func (e Enrichment) Ok() bool { return e.Err == nil && e.Profile != nil }

type enrichmentMsg struct{ Enrichment }

type clearMsg struct{ ack chan struct{} }

// flushMsg is acknowledged once every earlier message has been applied.
type flushMsg struct{ ack chan struct{} }

func (eventMsg) isMessage()      {}
func (initialMsg) isMessage()    {}
func (enrichmentMsg) isMessage() {}
func (clearMsg) isMessage()      {}
func (flushMsg) isMessage()      {}

func (s *Store) run() {
	for {
		select {
		case <-s.done:
			return
		case m := <-s.msgs:
			s.apply(m)
		}
	}
}

func (s *Store) apply(m message) {
	switch m := m.(type) {
	case initialMsg:
		s.applyInitial(m)
		close(m.ack)
	case eventMsg:
		s.applyEvent(m.ev)
	case enrichmentMsg:
		s.applyEnrichment(m.Enrichment)
	case clearMsg:
		s.signOutLocal()
		close(m.ack)
	case flushMsg:
		close(m.ack)
	}
}

func (s *Store) applyInitial(m initialMsg) {
	// A provider event already told us more than this snapshot can.
	if s.eventApplied || m.failed || m.session == nil {
		s.update(func(st *State) { st.IsLoading = false })
		return
	}
	s.signIn(m.session)
}

func (s *Store) applyEvent(ev identity.Event) {
	log := s.log.WithField("event", string(ev.Kind))

	switch ev.Kind {
	case identity.EventSignedIn:
		s.eventApplied = true
		if ev.Session == nil {
			log.Warn("sign-in event without session")
			return
		}
		s.signIn(ev.Session)

	case identity.EventSignedOut:
		s.eventApplied = true
		s.signOutLocal()

	case identity.EventTokenRefreshed:
		s.eventApplied = true
		if ev.Session == nil {
			return
		}
		cur := s.State()
		if cur.User == nil {
			// backfill: we missed the sign-in
			s.signIn(ev.Session)
			return
		}
		if cur.User.ID != ev.Session.User.ID && ev.Session.User.ID != "" {
			log.WithFields(logrus.Fields{
				"current": cur.User.ID,
				"session": ev.Session.User.ID,
			}).Warn("token refresh for another user ignored")
			return
		}
		sess := ev.Session.Clone()
		s.update(func(st *State) { st.Session = sess })

	default:
		log.Debug("session event ignored")
	}
}

func (s *Store) applyEnrichment(e Enrichment) {
	cur := s.State()
	if e.Generation != s.generation || cur.User == nil || cur.User.ID != e.UserID {
		s.log.WithField("user_id", e.UserID).Debug("stale profile lookup dropped")
		return
	}
	if !e.Ok() {
		s.log.WithError(e.Err).WithField("user_id", e.UserID).Info("profile unavailable, keeping fallback admin status")
		s.update(func(st *State) { st.AdminSettled = true })
		return
	}
	admin := e.Profile.IsAdmin
	s.update(func(st *State) {
		st.IsAdmin = admin
		st.AdminSettled = true
	})
}

func (s *Store) signIn(sess *identity.Session) {
	s.generation++
	gen := s.generation

	user := sess.User.Clone()
	admin := s.fallbackAdmin(user)
	session := sess.Clone()
	lookup := s.profiles != nil && user.ID != ""
	s.update(func(st *State) {
		st.User = user
		st.Session = session
		st.IsAdmin = admin
		st.AdminSettled = !lookup
		st.IsLoading = false
	})

	if lookup {
		s.lookupProfile(user.ID, gen)
	}
}

func (s *Store) signOutLocal() {
	s.generation++
	s.update(func(st *State) {
		st.User = nil
		st.Session = nil
		st.IsAdmin = false
		st.AdminSettled = false
	})
}

// fallbackAdmin decides admin status before (or without) the profile row:
// an explicit is_admin metadata flag wins, then the admin address.
func (s *Store) fallbackAdmin(u *identity.User) bool {
	if v, ok := u.MetadataFlag("is_admin"); ok {
		return v
	}
	return s.opts.AdminEmail != "" && strings.EqualFold(u.Email, s.opts.AdminEmail)
}

func (s *Store) lookupProfile(userID string, gen uint64) {
	s.lookups.Add(1)
	go func() {
		defer s.lookups.Done()
		ctx, cancel := context.WithTimeout(s.baseCtx, profileLookupTimeout)
		defer cancel()

		p, err := s.profiles.GetProfile(ctx, userID)
		_ = s.post(enrichmentMsg{Enrichment{UserID: userID, Generation: gen, Profile: p, Err: err}})
	}()
}

// flush blocks until every message posted before it has been applied.
func (s *Store) flush() {
	ack := make(chan struct{})
	if s.post(flushMsg{ack: ack}) == nil {
		s.await(ack)
	}
}

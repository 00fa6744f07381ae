// Package session holds the explicit per-device context the engine reads:
// who is signed in, where they are, how far to search, and whether the app
// is in the foreground.
package session

import (
	"sync"

	"locallens/domain/core/entities"
	"locallens/domain/core/valueobjects"
	"locallens/domain/geo"
	pkgerrors "locallens/pkg/errors"
)

// AppState is the foreground/background state of the host app.
type AppState string

const (
	Foreground AppState = "foreground"
	Background AppState = "background"
)

// ChangeKind names what changed on the session.
type ChangeKind int

const (
	UserChanged ChangeKind = iota
	LocationChanged
	RadiusChanged
	AppStateChanged
)

// Change is delivered to listeners after the session is updated.
type Change struct {
	Kind     ChangeKind
	AppState AppState
}

// Session is safe for concurrent use.
type Session struct {
	mu        sync.RWMutex
	user      *entities.User
	location  *geo.Point
	radiusKm  float64
	state     AppState
	listeners map[int]func(Change)
	nextID    int
}

// New creates a foregrounded session with the default search radius.
func New(defaultRadiusKm float64) *Session {
	return &Session{
		radiusKm:  defaultRadiusKm,
		state:     Foreground,
		listeners: make(map[int]func(Change)),
	}
}

// SetUser signs a user in.
func (s *Session) SetUser(user entities.User) {
	s.mu.Lock()
	u := user
	s.user = &u
	s.mu.Unlock()
	s.notify(Change{Kind: UserChanged})
}

// ClearUser signs the current user out.
func (s *Session) ClearUser() {
	s.mu.Lock()
	s.user = nil
	s.mu.Unlock()
	s.notify(Change{Kind: UserChanged})
}

// CurrentUser returns the signed-in user.
func (s *Session) CurrentUser() (entities.User, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.user == nil {
		return entities.User{}, false
	}
	return *s.user, true
}

// CurrentUserID returns the signed-in user's id or "".
func (s *Session) CurrentUserID() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.user == nil {
		return ""
	}
	return s.user.ID
}

// RequireUser returns the signed-in user or a MISSING_AUTH_CONTEXT error.
func (s *Session) RequireUser() (entities.User, error) {
	u, ok := s.CurrentUser()
	if !ok || u.ID == "" {
		return entities.User{}, pkgerrors.MissingAuthContext()
	}
	return u, nil
}

// SetLocation records the device location.
func (s *Session) SetLocation(lat, lon float64) error {
	if err := geo.Validate(lat, lon); err != nil {
		return err
	}
	s.mu.Lock()
	s.location = &geo.Point{Latitude: lat, Longitude: lon}
	s.mu.Unlock()
	s.notify(Change{Kind: LocationChanged})
	return nil
}

// Location returns the last reported location.
func (s *Session) Location() (geo.Point, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.location == nil {
		return geo.Point{}, false
	}
	return *s.location, true
}

// SetRadius changes the search radius.
func (s *Session) SetRadius(radiusKm float64) error {
	if radiusKm <= 0 {
		return pkgerrors.NewValidationError("radius must be positive")
	}
	s.mu.Lock()
	s.radiusKm = radiusKm
	s.mu.Unlock()
	s.notify(Change{Kind: RadiusChanged})
	return nil
}

// RadiusKm returns the search radius.
func (s *Session) RadiusKm() float64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.radiusKm
}

// SearchContext returns the active feed key. It is false until a location is known.
func (s *Session) SearchContext() (valueobjects.SearchContext, bool) {
	s.mu.RLock()
	loc, radius := s.location, s.radiusKm
	s.mu.RUnlock()
	if loc == nil {
		return valueobjects.SearchContext{}, false
	}
	sc, err := valueobjects.NewSearchContext(loc.Latitude, loc.Longitude, radius)
	if err != nil {
		return valueobjects.SearchContext{}, false
	}
	return sc, true
}

// SetAppState records a foreground/background transition. Listeners only
// hear about actual transitions.
func (s *Session) SetAppState(state AppState) {
	s.mu.Lock()
	if s.state == state {
		s.mu.Unlock()
		return
	}
	s.state = state
	s.mu.Unlock()
	s.notify(Change{Kind: AppStateChanged, AppState: state})
}

// AppState returns the current app state.
func (s *Session) AppState() AppState {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state
}

// OnChange registers a listener and returns its disposer.
func (s *Session) OnChange(fn func(Change)) func() {
	s.mu.Lock()
	id := s.nextID
	s.nextID++
	s.listeners[id] = fn
	s.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			s.mu.Lock()
			delete(s.listeners, id)
			s.mu.Unlock()
		})
	}
}

func (s *Session) notify(c Change) {
	s.mu.RLock()
	fns := make([]func(Change), 0, len(s.listeners))
	for _, fn := range s.listeners {
		fns = append(fns, fn)
	}
	s.mu.RUnlock()

	for _, fn := range fns {
		fn(c)
	}
}

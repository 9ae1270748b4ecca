package web

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"sort"
	"time"

	"zigbee-ledfx/internal/adapter"
	"zigbee-ledfx/internal/effects"
	"zigbee-ledfx/internal/store"
	"zigbee-ledfx/internal/transport"
)

const (
	requestTimeout = 10 * time.Second
	maxConfirmWait = 10 * time.Second
)

// LightView is the API representation of a configured light.
type LightView struct {
	Name         string          `json:"name"`
	IEEEAddress  string          `json:"ieee_address"`
	ShortAddress uint16          `json:"short_address"`
	Endpoint     uint8           `json:"endpoint"`
	Model        string          `json:"model"`
	Profile      effects.Profile `json:"profile"`
	State        effects.Patch   `json:"state"`
}

func (s *Server) lightView(l *adapter.Light) LightView {
	return LightView{
		Name:         l.Name(),
		IEEEAddress:  transport.FormatIEEE(l.IEEE()),
		ShortAddress: l.ShortAddr(),
		Endpoint:     l.Endpoint(),
		Model:        l.Profile().Model,
		Profile:      l.Profile(),
		State:        l.State(),
	}
}

// light resolves the ?light= query parameter. Without it the only
// configured light is used.
func (s *Server) light(w http.ResponseWriter, r *http.Request) (*adapter.Light, bool) {
	name := r.URL.Query().Get("light")
	if name == "" {
		lights := s.coord.Lights().List()
		if len(lights) != 1 {
			s.writeError(w, http.StatusBadRequest, "light parameter is required")
			return nil, false
		}
		return lights[0], true
	}
	l, err := s.coord.Light(name)
	if err != nil {
		s.writeError(w, http.StatusNotFound, "light not found")
		return nil, false
	}
	return l, true
}

func (s *Server) handleAPIListLights(w http.ResponseWriter, r *http.Request) {
	lights := s.coord.Lights().List()
	views := make([]LightView, 0, len(lights))
	for _, l := range lights {
		views = append(views, s.lightView(l))
	}
	s.writeJSON(w, http.StatusOK, views)
}

func (s *Server) handleAPIState(w http.ResponseWriter, r *http.Request) {
	l, ok := s.light(w, r)
	if !ok {
		return
	}
	s.writeJSON(w, http.StatusOK, l.State())
}

type setResponse struct {
	Accepted  map[string]effects.Patch `json:"accepted"`
	Confirmed map[string]effects.Patch `json:"confirmed,omitempty"`
	State     effects.Patch            `json:"state"`
}

// handleAPISet applies a command dictionary. With ?wait=<duration> the
// response also carries the patches the device confirmed within that time.
func (s *Server) handleAPISet(w http.ResponseWriter, r *http.Request) {
	l, ok := s.light(w, r)
	if !ok {
		return
	}

	var wait time.Duration
	if v := r.URL.Query().Get("wait"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil || d < 0 {
			s.writeError(w, http.StatusBadRequest, "invalid wait duration")
			return
		}
		wait = min(d, maxConfirmWait)
	}

	var cmds map[string]any
	r.Body = http.MaxBytesReader(w, r.Body, 1<<20)
	if err := json.NewDecoder(r.Body).Decode(&cmds); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if len(cmds) == 0 {
		s.writeError(w, http.StatusBadRequest, "no commands")
		return
	}

	keys := make([]string, 0, len(cmds))
	for k := range cmds {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		if err := l.Validate(effects.Command{Key: k, Value: cmds[k]}); err != nil {
			s.writeError(w, http.StatusBadRequest, err.Error())
			return
		}
	}

	ctx, cancel := context.WithTimeout(r.Context(), requestTimeout)
	defer cancel()

	pending, err := l.Apply(ctx, cmds)
	if err != nil {
		status := http.StatusBadGateway
		if errors.Is(err, adapter.ErrUnknownKey) {
			status = http.StatusBadRequest
		}
		s.logger.Warn("set failed", "light", l.Name(), "err", err)
		s.writeError(w, status, err.Error())
		return
	}

	resp := setResponse{Accepted: make(map[string]effects.Patch, len(pending))}
	for k, p := range pending {
		resp.Accepted[k] = p.Accepted
	}
	if wait > 0 {
		resp.Confirmed = awaitConfirmed(ctx, pending, wait)
	}
	resp.State = l.State()
	s.writeJSON(w, http.StatusOK, resp)
}

// awaitConfirmed collects confirmations until all arrived or d elapsed.
func awaitConfirmed(ctx context.Context, pending map[string]*adapter.Pending, d time.Duration) map[string]effects.Patch {
	timer := time.NewTimer(d)
	defer timer.Stop()

	confirmed := make(map[string]effects.Patch, len(pending))
	for k, p := range pending {
		select {
		case patch, ok := <-p.Confirmed():
			if ok {
				confirmed[k] = patch
			}
		case <-timer.C:
			return confirmed
		case <-ctx.Done():
			return confirmed
		}
	}
	return confirmed
}

func (s *Server) handleAPIGet(w http.ResponseWriter, r *http.Request) {
	l, ok := s.light(w, r)
	if !ok {
		return
	}
	key := r.PathValue("key")

	ctx, cancel := context.WithTimeout(r.Context(), requestTimeout)
	defer cancel()

	if err := l.Get(ctx, key); err != nil {
		status := http.StatusBadGateway
		if errors.Is(err, adapter.ErrUnknownKey) || errors.Is(err, effects.ErrNotGettable) {
			status = http.StatusBadRequest
		}
		s.writeError(w, status, err.Error())
		return
	}
	s.writeJSON(w, http.StatusAccepted, map[string]string{"status": "requested", "key": key})
}

func (s *Server) handleAPIConfigure(w http.ResponseWriter, r *http.Request) {
	l, ok := s.light(w, r)
	if !ok {
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), requestTimeout)
	defer cancel()

	rec, err := s.coord.Configure(ctx, l.Name())
	if err != nil {
		s.logger.Error("configure", "light", l.Name(), "err", err)
		s.writeError(w, http.StatusBadGateway, err.Error())
		return
	}
	s.writeJSON(w, http.StatusOK, rec)
}

func (s *Server) handleAPISetup(w http.ResponseWriter, r *http.Request) {
	l, ok := s.light(w, r)
	if !ok {
		return
	}
	rec, err := s.coord.Store().GetSetup(transport.FormatIEEE(l.IEEE()))
	if errors.Is(err, store.ErrNotFound) {
		s.writeError(w, http.StatusNotFound, "light not configured")
		return
	}
	if err != nil {
		s.logger.Error("get setup", "light", l.Name(), "err", err)
		s.writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}
	s.writeJSON(w, http.StatusOK, rec)
}

func (s *Server) handleAPICapabilities(w http.ResponseWriter, r *http.Request) {
	l, ok := s.light(w, r)
	if !ok {
		return
	}
	s.writeJSON(w, http.StatusOK, l.Capabilities())
}

func (s *Server) handleAPIInfo(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, s.coord.Info())
}

func (s *Server) handleAPIListClusters(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, s.coord.Registry().All())
}

package hiwin_arm

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi"
	"github.com/golang/geo/r3"
	"github.com/pkg/errors"
	"go.viam.com/rdk/logging"
)

// HTTPServer exposes a Controller over a small JSON API. Motion requests queue
// on the controller's motion slot along with every other user of the session.
type HTTPServer struct {
	ctrl   *Controller
	logger logging.Logger
}

func NewHTTPServer(ctrl *Controller, logger logging.Logger) *HTTPServer {
	return &HTTPServer{ctrl: ctrl, logger: logger}
}

// Routes mounts the API on a chi router.
func (s *HTTPServer) Routes() http.Handler {
	r := chi.NewRouter()
	r.Get("/status", s.getStatus)
	r.Post("/connect", s.postConnect)
	r.Post("/disconnect", s.postDisconnect)
	r.Post("/alarm/clear", s.postClearAlarm)
	r.Get("/position/{space}", s.getPosition)
	r.Post("/home/{space}", s.postHome)
	r.Post("/move/{kind}", s.postMove)
	r.Post("/jog", s.postJog)
	r.Get("/ratio/{kind}", s.getRatio)
	r.Post("/ratio/{kind}", s.postRatio)
	return r
}

type moveBody struct {
	Target         []float64 `json:"target"`
	PositionType   string    `json:"position_type"`
	CoordinateType string    `json:"coordinate_type"`
	Smoothing      string    `json:"smoothing,omitempty"`
	SmoothValue    *float64  `json:"smooth_value,omitempty"`
	Wait           *bool     `json:"wait,omitempty"`
}

type ratioBody struct {
	Value int `json:"value"`
}

func (s *HTTPServer) getStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.ctrl.Status().Map())
}

func (s *HTTPServer) postConnect(w http.ResponseWriter, r *http.Request) {
	if err := s.ctrl.Connect(r.Context()); err != nil {
		s.fail(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *HTTPServer) postDisconnect(w http.ResponseWriter, r *http.Request) {
	s.ctrl.Disconnect(r.Context())
	w.WriteHeader(http.StatusNoContent)
}

func (s *HTTPServer) postClearAlarm(w http.ResponseWriter, r *http.Request) {
	if err := s.ctrl.ClearAlarm(); err != nil {
		s.fail(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *HTTPServer) getPosition(w http.ResponseWriter, r *http.Request) {
	space, err := ParsePositionType(chi.URLParam(r, "space"))
	if err != nil {
		s.fail(w, err)
		return
	}
	pos, err := s.ctrl.Position(space)
	if err != nil {
		s.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"position_type": space.String(), "position": pos.Slice()})
}

func (s *HTTPServer) postHome(w http.ResponseWriter, r *http.Request) {
	space, err := ParsePositionType(chi.URLParam(r, "space"))
	if err != nil {
		s.fail(w, err)
		return
	}
	wait := r.URL.Query().Get("wait") != "false"

	if err := s.ctrl.Home(r.Context(), space, wait); err != nil {
		s.fail(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *HTTPServer) postMove(w http.ResponseWriter, r *http.Request) {
	kind := chi.URLParam(r, "kind")
	if kind != "linear" && kind != "ptp" {
		http.Error(w, "move kind must be linear or ptp", http.StatusNotFound)
		return
	}
	var body moveBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	req, err := body.request()
	if err != nil {
		s.fail(w, err)
		return
	}

	if kind == "linear" {
		err = s.ctrl.MoveLinear(r.Context(), req.Target, req.Space, req.Frame, req.Smoothing, req.Wait)
	} else {
		err = s.ctrl.MovePointToPoint(r.Context(), req.Target, req.Space, req.Frame, req.Smoothing, req.Wait)
	}
	if err != nil {
		s.fail(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *HTTPServer) postJog(w http.ResponseWriter, r *http.Request) {
	var delta r3.Vector
	if err := json.NewDecoder(r.Body).Decode(&delta); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if err := s.ctrl.Jog(r.Context(), delta); err != nil {
		s.fail(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *HTTPServer) getRatio(w http.ResponseWriter, r *http.Request) {
	var (
		v   int
		err error
	)
	switch kind := chi.URLParam(r, "kind"); kind {
	case "speed":
		v, err = s.ctrl.Speed()
	case "acceleration":
		v, err = s.ctrl.Acceleration()
	default:
		http.Error(w, "ratio must be speed or acceleration", http.StatusNotFound)
		return
	}
	if err != nil {
		s.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, ratioBody{Value: v})
}

func (s *HTTPServer) postRatio(w http.ResponseWriter, r *http.Request) {
	var body ratioBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	var err error
	switch chi.URLParam(r, "kind") {
	case "speed":
		err = s.ctrl.SetSpeed(body.Value)
	case "acceleration":
		err = s.ctrl.SetAcceleration(body.Value)
	default:
		http.Error(w, "ratio must be speed or acceleration", http.StatusNotFound)
		return
	}
	if err != nil {
		s.fail(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (b moveBody) request() (MoveRequest, error) {
	var req MoveRequest
	target, err := PositionFromSlice(b.Target)
	if err != nil {
		return req, err
	}
	req.Target = target
	if req.Space, err = ParsePositionType(b.PositionType); err != nil {
		return req, err
	}
	if req.Frame, err = ParseCoordinateType(b.CoordinateType); err != nil {
		return req, err
	}
	if b.Smoothing != "" {
		st, err := ParseSmoothType(b.Smoothing)
		if err != nil {
			return req, err
		}
		value := DefaultSmoothValue
		if b.SmoothValue != nil {
			value = *b.SmoothValue
		}
		req.Smoothing = &SmoothingSpec{Type: st, Value: value}
	}
	req.Wait = b.Wait == nil || *b.Wait
	return req, nil
}

// fail maps the error taxonomy onto status codes.
func (s *HTTPServer) fail(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	var (
		gwErr   *GatewayError
		connErr *ConnectionError
	)
	switch {
	case IsValidation(err):
		status = http.StatusBadRequest
	case errors.Is(err, ErrNotConnected), errors.Is(err, ErrFaulted):
		status = http.StatusConflict
	case IsTimeout(err):
		status = http.StatusGatewayTimeout
	case errors.As(err, &gwErr), errors.As(err, &connErr):
		status = http.StatusBadGateway
	}
	s.logger.Debugf("request failed (%d): %v", status, err)
	http.Error(w, err.Error(), status)
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}

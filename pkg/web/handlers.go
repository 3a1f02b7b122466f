package web

import (
	"encoding/base64"
	"errors"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/websocket/v2"

	"github.com/teslashibe/go-engage/pkg/analyzer"
	"github.com/teslashibe/go-engage/pkg/hub"
	"github.com/teslashibe/go-engage/pkg/inference"
	"github.com/teslashibe/go-engage/pkg/weights"
)

// CreateSessionRequest starts a session.
type CreateSessionRequest struct {
	Context string `json:"context" validate:"omitempty,max=64"`
}

// AnalyzeRequest carries one frame plus optional upstream signals.
type AnalyzeRequest struct {
	Image          string   `json:"image" validate:"required"` // base64 or data URL
	Posture        *float64 `json:"posture" validate:"omitempty,gte=0,lte=100"`
	Gesture        *float64 `json:"gesture" validate:"omitempty,gte=0,lte=100"`
	EngagedGesture bool     `json:"engaged_gesture"`
}

// ContextRequest switches a session's weight context.
type ContextRequest struct {
	Context string `json:"context" validate:"required,max=64"`
}

// SampleRequest labels the session's latest scores.
type SampleRequest struct {
	GroundTruth *float64 `json:"ground_truth" validate:"required,gte=0,lte=100"`
}

// ProfileRequest authors a custom weight profile.
type ProfileRequest struct {
	Weights map[string]float64 `json:"weights" validate:"required,min=1"`
}

// StatusResponse describes the running service.
type StatusResponse struct {
	Status   string          `json:"status"`
	Uptime   string          `json:"uptime"`
	Sessions []analyzer.Info `json:"sessions"`
	Contexts []string        `json:"contexts"`
	Samples  int             `json:"training_samples"`
	Model    *weights.Model  `json:"model,omitempty"`
}

// bind parses and validates the request body into v.
func (s *Server) bind(c *fiber.Ctx, v any) error {
	if err := c.BodyParser(v); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid request body: "+err.Error())
	}
	if err := s.validate.Struct(v); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, err.Error())
	}
	return nil
}

// session looks up the :id session.
func (s *Server) session(c *fiber.Ctx) (*analyzer.Session, error) {
	sess, err := s.registry.Get(c.Params("id"))
	if err != nil {
		return nil, statusError(err)
	}
	return sess, nil
}

// statusError maps domain errors onto HTTP status codes.
func statusError(err error) error {
	code := fiber.StatusInternalServerError
	switch {
	case errors.Is(err, analyzer.ErrSessionNotFound):
		code = fiber.StatusNotFound
	case errors.Is(err, analyzer.ErrRateLimited):
		code = fiber.StatusTooManyRequests
	case errors.Is(err, analyzer.ErrTooManySessions):
		code = fiber.StatusServiceUnavailable
	case errors.Is(err, analyzer.ErrNoScores),
		errors.Is(err, weights.ErrInsufficientSamples):
		code = fiber.StatusConflict
	case errors.Is(err, weights.ErrFitFailed):
		code = fiber.StatusUnprocessableEntity
	case errors.Is(err, weights.ErrReservedProfile):
		code = fiber.StatusForbidden
	case errors.Is(err, weights.ErrInvalidGroundTruth),
		errors.Is(err, weights.ErrMissingComponent),
		errors.Is(err, weights.ErrUnknownComponent),
		errors.Is(err, weights.ErrInvalidWeight),
		errors.Is(err, inference.ErrUnsupportedFrame):
		code = fiber.StatusBadRequest
	}
	return fiber.NewError(code, err.Error())
}

// decodeImage accepts raw base64 or a data URL.
func decodeImage(s string) ([]byte, error) {
	if strings.HasPrefix(s, "data:") {
		i := strings.Index(s, ",")
		if i < 0 {
			return nil, errors.New("malformed data URL")
		}
		s = s[i+1:]
	}
	data, err := base64.StdEncoding.DecodeString(strings.TrimSpace(s))
	if err != nil {
		return nil, err
	}
	if len(data) == 0 {
		return nil, errors.New("empty image")
	}
	return data, nil
}

func (s *Server) handleStatus(c *fiber.Ctx) error {
	resp := StatusResponse{
		Status:   "ok",
		Uptime:   s.now().Sub(s.started).Round(time.Second).String(),
		Sessions: s.registry.List(),
		Contexts: s.optimizer.Contexts(),
		Samples:  s.optimizer.SampleCount(),
	}
	if m, ok := s.optimizer.Model(); ok {
		resp.Model = &m
	}
	return c.JSON(resp)
}

func (s *Server) handleListSessions(c *fiber.Ctx) error {
	return c.JSON(s.registry.List())
}

func (s *Server) handleCreateSession(c *fiber.Ctx) error {
	var req CreateSessionRequest
	if len(c.Body()) > 0 {
		if err := s.bind(c, &req); err != nil {
			return err
		}
	}
	if req.Context == "" {
		req.Context = s.cfg.DefaultContext
	}
	if req.Context == "" {
		req.Context = weights.Default
	}

	sess, err := s.registry.Create(req.Context)
	if err != nil {
		return statusError(err)
	}
	return c.Status(fiber.StatusCreated).JSON(fiber.Map{
		"session_id": sess.ID,
		"context":    sess.Context(),
		"weights":    s.optimizer.Weights(sess.Context()),
	})
}

func (s *Server) handleAnalyze(c *fiber.Ctx) error {
	sess, err := s.session(c)
	if err != nil {
		return err
	}
	var req AnalyzeRequest
	if err := s.bind(c, &req); err != nil {
		return err
	}

	data, err := decodeImage(req.Image)
	if err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid image: "+err.Error())
	}
	frame, err := s.decode(data)
	if err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid image: "+err.Error())
	}
	defer frame.Close()

	res, err := sess.Process(c.UserContext(), frame, analyzer.Upstream{
		Posture:        req.Posture,
		Gesture:        req.Gesture,
		EngagedGesture: req.EngagedGesture,
	})
	if err != nil {
		return statusError(err)
	}

	if err := s.hub.BroadcastJSON(sess.ID, res); err != nil {
		s.logger.Warn("broadcast failed", "session", sess.ID, "error", err)
	}
	return c.JSON(res)
}

func (s *Server) handleSetContext(c *fiber.Ctx) error {
	sess, err := s.session(c)
	if err != nil {
		return err
	}
	var req ContextRequest
	if err := s.bind(c, &req); err != nil {
		return err
	}
	profile := sess.SetContext(req.Context)
	return c.JSON(fiber.Map{"context": req.Context, "weights": profile})
}

func (s *Server) handleAddSample(c *fiber.Ctx) error {
	sess, err := s.session(c)
	if err != nil {
		return err
	}
	var req SampleRequest
	if err := s.bind(c, &req); err != nil {
		return err
	}
	sample, err := sess.AddTrainingSample(c.UserContext(), *req.GroundTruth)
	if err != nil {
		return statusError(err)
	}
	return c.Status(fiber.StatusCreated).JSON(fiber.Map{
		"sample":       sample,
		"sample_count": s.optimizer.SampleCount(),
	})
}

func (s *Server) handleTrain(c *fiber.Ctx) error {
	profile, err := s.optimizer.Train(c.UserContext())
	if err != nil {
		return statusError(err)
	}
	resp := fiber.Map{"weights": profile}
	if m, ok := s.optimizer.Model(); ok {
		resp["model"] = m
	}
	return c.JSON(resp)
}

func (s *Server) handleListProfiles(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{"profiles": s.optimizer.Profiles()})
}

func (s *Server) handleSetProfile(c *fiber.Ctx) error {
	var req ProfileRequest
	if err := s.bind(c, &req); err != nil {
		return err
	}
	w := make(map[weights.Component]float64, len(req.Weights))
	for k, v := range req.Weights {
		w[weights.Component(k)] = v
	}
	profile, err := s.optimizer.SetCustom(c.UserContext(), c.Params("name"), w)
	if err != nil {
		return statusError(err)
	}
	return c.JSON(fiber.Map{"name": c.Params("name"), "weights": profile})
}

func (s *Server) handleSummary(c *fiber.Ctx) error {
	sess, err := s.session(c)
	if err != nil {
		return err
	}
	return c.JSON(sess.Summary())
}

func (s *Server) handleDeleteSession(c *fiber.Ctx) error {
	summary, err := s.registry.Delete(c.Params("id"))
	if err != nil {
		return statusError(err)
	}
	return c.JSON(summary)
}

// requireSession rejects websocket upgrades for unknown sessions.
func (s *Server) requireSession(c *fiber.Ctx) error {
	if _, err := s.session(c); err != nil {
		return err
	}
	return c.Next()
}

// handleSessionWS streams a session's results until the client leaves
// or the session closes.
func (s *Server) handleSessionWS(c *websocket.Conn) {
	hub.NewClient(s.hub, c, c.Params("id")).Run()
}

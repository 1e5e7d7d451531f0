// Package api serves the scoring engine over HTTP and provides a client for
// it.
package api

import (
	"context"
	"errors"
	"fmt"

	"github.com/bytedance/sonic"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/compress"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/tensorplex-labs/tmscore/internal/ensemble"
	"github.com/tensorplex-labs/tmscore/internal/matching"
	"github.com/tensorplex-labs/tmscore/internal/scoring"
	"github.com/tensorplex-labs/tmscore/internal/structure"
	"github.com/tensorplex-labs/tmscore/internal/superpose"
)

var whitelistedRoutes = []string{"/health"}

// NewServer creates the scoring server. A nil config uses the defaults.
func NewServer(serverConfig *ServerConfig) *Server {
	if serverConfig == nil {
		serverConfig = &ServerConfig{}
	}
	if serverConfig.Host == "" {
		serverConfig.Host = DefaultServerHost
	}
	if serverConfig.Port == 0 {
		serverConfig.Port = DefaultServerPort
	}
	if serverConfig.BodyLimit == 0 {
		serverConfig.BodyLimit = DefaultBodyLimit
	}
	if serverConfig.Normalization == "" {
		serverConfig.Normalization = scoring.NormalizeTarget
	}
	if serverConfig.Policy == "" {
		serverConfig.Policy = ensemble.BestOfBest
	}

	log.Info().
		Any("serverConfig", serverConfig).
		Msg("Server configuration loaded")

	app := fiber.New(fiber.Config{
		Prefork:      false,
		ErrorHandler: fiberErrHandler,
		JSONEncoder:  sonic.Marshal,
		JSONDecoder:  sonic.Unmarshal,
		BodyLimit:    serverConfig.BodyLimit,
	})

	app.Use(recover.New())
	app.Use(requestIDMiddleware())
	app.Use(compress.New(compress.Config{Level: compress.LevelBestSpeed}))
	app.Use(ZstdMiddleware(whitelistedRoutes))

	server := &Server{
		App:    app,
		config: serverConfig,
	}

	app.Get("/health", server.handleHealth)
	serveRoute(server, "/superpose", server.handleSuperpose)
	serveRoute(server, "/score", server.handleScore)
	serveRoute(server, "/score/multichain", server.handleMultiChain)
	serveRoute(server, "/ensemble", server.handleEnsemble)

	return server
}

// Start listens until ctx is done, then shuts the app down.
func (s *Server) Start(ctx context.Context) error {
	addr := fmt.Sprintf("%s:%d", s.config.Host, s.config.Port)
	errCh := make(chan error, 1)
	go func() {
		errCh <- s.App.Listen(addr)
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("listen %s: %w", addr, err)
	case <-ctx.Done():
		log.Info().Msg("Shutting down scoring server")
		return s.App.Shutdown()
	}
}

func requestIDMiddleware() fiber.Handler {
	return func(c *fiber.Ctx) error {
		id := c.Get(RequestIDHeader)
		if id == "" {
			id = uuid.NewString()
		}
		c.Locals(RequestIDHeader, id)
		c.Set(RequestIDHeader, id)
		return c.Next()
	}
}

func requestID(c *fiber.Ctx) string {
	id, _ := c.Locals(RequestIDHeader).(string)
	return id
}

// isContractError reports errors caused by the request rather than the
// server.
func isContractError(err error) bool {
	for _, target := range []error{
		structure.ErrShapeMismatch,
		structure.ErrEmptyStructure,
		matching.ErrNoFeasibleAssignment,
		ensemble.ErrUnknownPolicy,
		ensemble.ErrEmptyEnsemble,
		ensemble.ErrUnknownPadPolicy,
		scoring.ErrUnknownNormalization,
	} {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}

func fiberErrHandler(ctx *fiber.Ctx, err error) error {
	code := fiber.StatusInternalServerError

	var e *fiber.Error
	if errors.As(err, &e) {
		code = e.Code
	} else if isContractError(err) {
		code = fiber.StatusBadRequest
	}

	log.Error().
		Err(err).
		Int("status_code", code).
		Str("path", ctx.Path()).
		Str("method", ctx.Method()).
		Str("request_id", requestID(ctx)).
		Msg("Fiber error handler triggered")

	return ctx.Status(code).JSON(createResponse(requestID(ctx), map[string]interface{}{}, err))
}

// serveRoute registers a JSON POST handler from Req to Resp.
func serveRoute[Req, Resp any](s *Server, path string, handler func(*fiber.Ctx, Req) (Resp, error)) {
	s.App.Post(path, func(c *fiber.Ctx) error {
		var req Req
		if err := sonic.Unmarshal(c.Body(), &req); err != nil {
			log.Error().
				Err(err).
				Str("route", path).
				Msg("Failed to parse request body")
			return fiber.NewError(fiber.StatusBadRequest, fmt.Sprintf("invalid request body: %s", err))
		}

		resp, err := handler(c, req)
		if err != nil {
			return err
		}
		return c.JSON(createResponse(requestID(c), resp, nil))
	})
}

func createResponse[T any](id string, body T, err error) StdResponse[T] {
	resp := StdResponse[T]{Body: body, RequestID: id}
	if err != nil {
		errMsg := err.Error()
		resp.Error = &errMsg
	}
	return resp
}

func (s *Server) normalization(name string) (scoring.Normalization, error) {
	if name == "" {
		return s.config.Normalization, nil
	}
	return scoring.ParseNormalization(name)
}

func (s *Server) handleHealth(c *fiber.Ctx) error {
	return c.JSON(createResponse(requestID(c), HealthResponse{Status: "ok"}, nil))
}

func (s *Server) handleSuperpose(c *fiber.Ctx, req SuperposeRequest) (SuperposeResponse, error) {
	pred, truth, err := wirePair(req.Pred, req.True)
	if err != nil {
		return SuperposeResponse{}, err
	}
	a, err := superpose.Kabsch(pred, truth)
	if err != nil {
		return SuperposeResponse{}, err
	}
	return SuperposeResponse{
		Rotation:    rotation3(a.Rotation),
		Translation: [3]float64(a.Translation),
		Aligned:     FromPointSet(a.Aligned),
		RMSD:        a.RMSD(),
	}, nil
}

func (s *Server) handleScore(c *fiber.Ctx, req ScoreRequest) (ScoreResponse, error) {
	norm, err := s.normalization(req.NormalizeBy)
	if err != nil {
		return ScoreResponse{}, err
	}
	pred, truth, err := wirePair(req.Pred, req.True)
	if err != nil {
		return ScoreResponse{}, err
	}
	d, err := scoring.NewScorer(scoring.WithNormalization(norm)).Detail(pred, truth)
	if err != nil {
		return ScoreResponse{}, err
	}
	resp := ScoreResponse{Score: d.Score, NormalizeBy: string(norm)}
	if req.Detail {
		resp.Detail = detailPayload(d)
	}
	log.Info().
		Str("request_id", requestID(c)).
		Int("residues", len(req.True)).
		Float64("tm_score", d.Score).
		Msg("Scored pair")
	return resp, nil
}

func (s *Server) handleMultiChain(c *fiber.Ctx, req MultiChainRequest) (MultiChainResponse, error) {
	norm, err := s.normalization(req.NormalizeBy)
	if err != nil {
		return MultiChainResponse{}, err
	}
	pred, err := req.Pred.Structure()
	if err != nil {
		return MultiChainResponse{}, fiber.NewError(fiber.StatusBadRequest, fmt.Sprintf("pred: %s", err))
	}
	truth, err := req.True.Structure()
	if err != nil {
		return MultiChainResponse{}, fiber.NewError(fiber.StatusBadRequest, fmt.Sprintf("true: %s", err))
	}

	res, err := matching.ScoreMultiChain(c.UserContext(), pred, truth, matching.Options{
		Normalization: norm,
		Workers:       s.config.Workers,
	})
	if err != nil {
		return MultiChainResponse{}, err
	}
	return MultiChainResponse{
		Score:         res.Score,
		Pairs:         pairPayloads(res.Pairs),
		UnmatchedPred: res.UnmatchedPred,
		UnmatchedTrue: res.UnmatchedTrue,
		Matrix:        rows(res.Matrix),
	}, nil
}

func (s *Server) handleEnsemble(c *fiber.Ctx, req EnsembleRequest) (EnsembleResponse, error) {
	policy := s.config.Policy
	if req.Policy != "" {
		p, err := ensemble.ParsePolicy(req.Policy)
		if err != nil {
			return EnsembleResponse{}, err
		}
		policy = p
	}
	norm, err := s.normalization(req.NormalizeBy)
	if err != nil {
		return EnsembleResponse{}, err
	}
	pad, err := ensemble.ParsePadPolicy(req.PadPolicy)
	if err != nil {
		return EnsembleResponse{}, err
	}

	preds, err := toEnsemble(req.Preds, "pred")
	if err != nil {
		return EnsembleResponse{}, fiber.NewError(fiber.StatusBadRequest, err.Error())
	}
	refs, err := toEnsemble(req.Refs, "ref")
	if err != nil {
		return EnsembleResponse{}, fiber.NewError(fiber.StatusBadRequest, err.Error())
	}

	opts := []ensemble.EvaluatorOption{
		ensemble.WithNormalization(norm),
		ensemble.WithWorkers(s.config.Workers),
		ensemble.WithPadding(req.PadSize, pad),
	}
	if s.config.Cache != nil {
		opts = append(opts, ensemble.WithCache(s.config.Cache))
	}
	evaluator := ensemble.NewEvaluator(opts...)
	res, err := evaluator.Evaluate(c.UserContext(), preds, refs, policy)
	if err != nil {
		return EnsembleResponse{}, err
	}

	resp := EnsembleResponse{
		Policy:            string(res.Policy),
		Score:             res.Score,
		BestPred:          res.BestPred,
		BestRef:           res.BestRef,
		Matrix:            rows(res.Matrix),
		BestPredPerRef:    res.BestPredPerRef,
		BestPredIdxPerRef: res.BestPredIdxPerRef,
		PredScores:        res.PredScores,
		RefScores:         res.RefScores,
		Slots:             res.Slots,
	}
	for i, row := range res.Cells {
		for j, cell := range row {
			if !cell.OK() {
				resp.Failures = append(resp.Failures, CellFailurePayload{Pred: i, Ref: j, Error: cell.Err.Error()})
			}
		}
	}

	log.Info().
		Str("request_id", requestID(c)).
		Str("policy", resp.Policy).
		Int("preds", len(preds)).
		Int("refs", len(refs)).
		Float64("tm_score", resp.Score).
		Msg("Evaluated ensemble")
	return resp, nil
}

package api

import (
	"github.com/gofiber/fiber/v2"

	"github.com/tensorplex-labs/tmscore/internal/ensemble"
	"github.com/tensorplex-labs/tmscore/internal/scoring"
)

const (
	RequestIDHeader = "x-request-id"

	DefaultServerHost = "0.0.0.0"
	DefaultServerPort = 8888
	DefaultBodyLimit  = 16 * 1024 * 1024 // 16MB

	DefaultClientTimeout = 30 // seconds
)

type Server struct {
	App    *fiber.App
	config *ServerConfig
}

type ServerConfig struct {
	Host      string
	Port      int
	BodyLimit int
	// Defaults applied when a request leaves a policy empty.
	Normalization scoring.Normalization
	Policy        ensemble.Policy
	Workers       int
	// Cache, when set, is shared by every ensemble request.
	Cache ensemble.ScoreCache
}

// StdResponse represents the standardized response structure
type StdResponse[T any] struct {
	Body      T       `json:"body"`
	RequestID string  `json:"request_id,omitempty"`
	Error     *string `json:"error,omitempty"`
}

// Points is a point set on the wire, one [x, y, z] triple per residue.
// Rows are decoded as given; PointSet rejects any row that is not 3-D.
type Points [][]float64

type ChainPayload struct {
	Label  string `json:"label"`
	Points Points `json:"points"`
}

// ModelPayload is one structure: its chains in order.
type ModelPayload []ChainPayload

type HealthResponse struct {
	Status string `json:"status"`
}

type SuperposeRequest struct {
	Pred Points `json:"pred"`
	True Points `json:"true"`
}

type SuperposeResponse struct {
	Rotation    [3][3]float64 `json:"rotation"`
	Translation [3]float64    `json:"translation"`
	Aligned     Points        `json:"aligned"`
	RMSD        float64       `json:"rmsd"`
}

type ScoreRequest struct {
	Pred        Points `json:"pred"`
	True        Points `json:"true"`
	NormalizeBy string `json:"normalize_by,omitempty"`
	Detail      bool   `json:"detail,omitempty"`
}

type DetailPayload struct {
	RMSD         float64       `json:"rmsd"`
	D0           float64       `json:"d0"`
	LNorm        float64       `json:"l_norm"`
	MinDistance  float64       `json:"min_distance"`
	MeanDistance float64       `json:"mean_distance"`
	MaxDistance  float64       `json:"max_distance"`
	Rotation     [3][3]float64 `json:"rotation"`
	Translation  [3]float64    `json:"translation"`
	Aligned      Points        `json:"aligned"`
	Distances    []float64     `json:"distances"`
}

type ScoreResponse struct {
	Score       float64        `json:"tm_score"`
	NormalizeBy string         `json:"normalize_by"`
	Detail      *DetailPayload `json:"detail,omitempty"`
}

type MultiChainRequest struct {
	Pred        ModelPayload `json:"pred"`
	True        ModelPayload `json:"true"`
	NormalizeBy string       `json:"normalize_by,omitempty"`
}

type PairPayload struct {
	Pred   string  `json:"pred"`
	True   string  `json:"true"`
	Score  float64 `json:"score"`
	Weight float64 `json:"weight"`
	Error  string  `json:"error,omitempty"`
}

type MultiChainResponse struct {
	Score         float64       `json:"tm_score"`
	Pairs         []PairPayload `json:"pairs"`
	UnmatchedPred []string      `json:"unmatched_pred,omitempty"`
	UnmatchedTrue []string      `json:"unmatched_true,omitempty"`
	Matrix        [][]float64   `json:"matrix,omitempty"`
}

type EnsembleRequest struct {
	Preds       []ModelPayload `json:"preds"`
	Refs        []ModelPayload `json:"refs"`
	Policy      string         `json:"policy,omitempty"`
	NormalizeBy string         `json:"normalize_by,omitempty"`
	PadSize     int            `json:"pad_size,omitempty"`
	PadPolicy   string         `json:"pad_policy,omitempty"`
}

type CellFailurePayload struct {
	Pred  int    `json:"pred"`
	Ref   int    `json:"ref"`
	Error string `json:"error"`
}

type EnsembleResponse struct {
	Policy            string               `json:"policy"`
	Score             float64              `json:"tm_score"`
	BestPred          int                  `json:"best_pred_idx"`
	BestRef           int                  `json:"best_ref_idx"`
	Matrix            [][]float64          `json:"matrix,omitempty"`
	BestPredPerRef    []float64            `json:"best_pred_per_ref,omitempty"`
	BestPredIdxPerRef []int                `json:"best_pred_idx_per_ref,omitempty"`
	PredScores        []float64            `json:"pred_scores,omitempty"`
	RefScores         []float64            `json:"ref_scores,omitempty"`
	Slots             []int                `json:"slots"`
	Failures          []CellFailurePayload `json:"failures,omitempty"`
}

package qdrant

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	pkgerrors "github.com/plotwise/plotwise-backend/internal/pkg/errors"
	"github.com/plotwise/plotwise-backend/internal/platform/ctxutil"
	"github.com/plotwise/plotwise-backend/internal/platform/logger"
	"github.com/plotwise/plotwise-backend/internal/platform/vector"
)

const (
	payloadGenerationKey = "_pw_generation"
	payloadParcelIDKey   = "_pw_parcel_id"
	maxErrorBodyBytes    = 1024
)

// Point ids are deterministic UUIDs of (generation, parcel id), matching
// what the ETL writer produces, so id-set filters can be translated to
// native has_id conditions.
var pointIDNamespaceUUID = uuid.MustParse("7c42a7be-6d19-4f0a-9d4e-2a61c3f0b9a4")

type index struct {
	log        *logger.Logger
	cfg        Config
	baseURL    string
	generation string
	distance   string
	http       *http.Client
}

type qdrantEnvelope struct {
	Result json.RawMessage `json:"result"`
	Status json.RawMessage `json:"status"`
	Time   float64         `json:"time"`
}

type qdrantSearchResultItem struct {
	ID      json.RawMessage `json:"id"`
	Score   float64         `json:"score"`
	Payload map[string]any  `json:"payload"`
	Vector  []float32       `json:"vector"`
}

// NewIndex binds a read-only ANN handle to one collection and one
// generation. Snapshot reloads construct fresh handles; existing handles
// keep serving the generation they were bound to.
func NewIndex(log *logger.Logger, cfg Config, generation string) (vector.Index, error) {
	if log == nil {
		return nil, fmt.Errorf("logger required")
	}
	if err := ValidateConfig(cfg); err != nil {
		return nil, err
	}
	generation = strings.TrimSpace(generation)
	if generation == "" {
		return nil, fmt.Errorf("generation required")
	}

	idx := &index{
		log:        log.With("service", "QdrantIndex", "collection", cfg.Collection),
		cfg:        cfg,
		baseURL:    strings.TrimRight(cfg.URL, "/"),
		generation: generation,
		http: &http.Client{
			Timeout: 10 * time.Second,
		},
	}

	if err := idx.verifyReady(context.Background()); err != nil {
		return nil, err
	}

	log.Info(
		"Qdrant index bound",
		"provider", "qdrant",
		"url", idx.baseURL,
		"collection", cfg.Collection,
		"generation", generation,
		"vector_dim", cfg.VectorDim,
		"distance", idx.distance,
	)
	return idx, nil
}

func (s *index) Dim() int             { return s.cfg.VectorDim }
func (s *index) SupportsFilter() bool { return true }

func (s *index) Query(ctx context.Context, q []float32, topK int, allowed map[string]struct{}) ([]vector.Match, error) {
	if s == nil {
		return nil, fmt.Errorf("qdrant index unavailable")
	}
	const op = "query"
	if len(q) == 0 {
		return nil, opErr(op, OperationErrorValidation, "query vector required", nil)
	}
	if s.cfg.VectorDim > 0 && len(q) != s.cfg.VectorDim {
		return nil, opErr(
			op,
			OperationErrorValidation,
			fmt.Sprintf("query vector dimension mismatch: expected=%d got=%d", s.cfg.VectorDim, len(q)),
			nil,
		)
	}
	if topK <= 0 {
		topK = 10
	}

	req := map[string]any{
		"vector":       q,
		"limit":        topK,
		"with_payload": true,
		"with_vector":  false,
		"filter":       s.queryFilter(allowed),
	}
	var rawResults []qdrantSearchResultItem
	if err := s.doJSON(
		ctx,
		op,
		http.MethodPost,
		s.collectionPath("/points/search"),
		req,
		&rawResults,
	); err != nil {
		return nil, err
	}

	out := make([]vector.Match, 0, len(rawResults))
	for _, item := range rawResults {
		id := s.extractParcelID(item)
		if id == "" {
			continue
		}
		out = append(out, vector.Match{
			ID:    id,
			Score: s.normalizeScore(item.Score),
		})
	}

	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Score == out[j].Score {
			return out[i].ID < out[j].ID
		}
		return out[i].Score > out[j].Score
	})
	return out, nil
}

func (s *index) Fetch(ctx context.Context, id string) ([]float32, error) {
	if s == nil {
		return nil, fmt.Errorf("qdrant index unavailable")
	}
	const op = "fetch"
	id = strings.TrimSpace(id)
	if id == "" {
		return nil, opErr(op, OperationErrorValidation, "parcel id required", nil)
	}

	req := map[string]any{
		"ids":          []string{s.pointID(id)},
		"with_payload": false,
		"with_vector":  true,
	}
	var points []qdrantSearchResultItem
	if err := s.doJSON(ctx, op, http.MethodPost, s.collectionPath("/points"), req, &points); err != nil {
		return nil, err
	}
	if len(points) == 0 || len(points[0].Vector) == 0 {
		return nil, pkgerrors.ErrNotFound
	}
	return points[0].Vector, nil
}

func (s *index) verifyReady(ctx context.Context) error {
	if s == nil {
		return fmt.Errorf("qdrant index not initialized")
	}
	const op = "bootstrap_verify"

	readyReq, err := http.NewRequestWithContext(ctxutil.Default(ctx), http.MethodGet, s.baseURL+"/readyz", nil)
	if err != nil {
		return opErr(op, OperationErrorTransportFailed, "build ready request failed", err)
	}
	readyResp, err := s.http.Do(readyReq)
	if err != nil {
		return classifyHTTPCallError(op, "qdrant ready check failed", err)
	}
	_ = readyResp.Body.Close()
	if readyResp.StatusCode < 200 || readyResp.StatusCode >= 300 {
		return &OperationError{
			Code:       OperationErrorQueryFailed,
			Operation:  op,
			StatusCode: readyResp.StatusCode,
			Message:    fmt.Sprintf("qdrant ready check returned status=%d", readyResp.StatusCode),
		}
	}

	var result struct {
		Config struct {
			Params struct {
				Vectors struct {
					Size     int    `json:"size"`
					Distance string `json:"distance"`
				} `json:"vectors"`
			} `json:"params"`
		} `json:"config"`
	}
	if err := s.doJSON(
		ctx,
		op,
		http.MethodGet,
		s.collectionPath(""),
		nil,
		&result,
	); err != nil {
		return err
	}

	size := result.Config.Params.Vectors.Size
	if size != 0 && size != s.cfg.VectorDim {
		return &OperationError{
			Code:      OperationErrorValidation,
			Operation: op,
			Message: fmt.Sprintf(
				"qdrant collection %q vector size mismatch: expected=%d actual=%d",
				s.cfg.Collection,
				s.cfg.VectorDim,
				size,
			),
		}
	}
	s.distance = strings.TrimSpace(result.Config.Params.Vectors.Distance)
	return nil
}

func (s *index) doJSON(ctx context.Context, op, method, path string, in any, out any) error {
	var body io.Reader
	if in != nil {
		var buf bytes.Buffer
		if err := json.NewEncoder(&buf).Encode(in); err != nil {
			return opErr(op, OperationErrorEncodeFailed, "encode request failed", err)
		}
		body = &buf
	}

	req, err := http.NewRequestWithContext(ctxutil.Default(ctx), method, s.baseURL+path, body)
	if err != nil {
		return opErr(op, OperationErrorTransportFailed, "build request failed", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.http.Do(req)
	if err != nil {
		return classifyHTTPCallError(op, "qdrant request failed", err)
	}
	defer resp.Body.Close()

	raw, readErr := io.ReadAll(io.LimitReader(resp.Body, 10*maxErrorBodyBytes))
	if readErr != nil {
		return opErr(op, OperationErrorDecodeFailed, "read response failed", readErr)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return &OperationError{
			Code:       OperationErrorQueryFailed,
			Operation:  op,
			StatusCode: resp.StatusCode,
			Message:    fmt.Sprintf("qdrant http status=%d body=%q", resp.StatusCode, truncateBody(raw)),
		}
	}

	var envelope qdrantEnvelope
	if err := json.Unmarshal(raw, &envelope); err != nil {
		return opErr(op, OperationErrorDecodeFailed, "decode qdrant envelope failed", err)
	}
	if statusErr := parseEnvelopeStatus(envelope.Status); statusErr != "" {
		return &OperationError{
			Code:       OperationErrorQueryFailed,
			Operation:  op,
			StatusCode: resp.StatusCode,
			Message:    statusErr,
		}
	}

	if out == nil {
		return nil
	}
	if len(envelope.Result) == 0 || string(envelope.Result) == "null" {
		return nil
	}
	if err := json.Unmarshal(envelope.Result, out); err != nil {
		return opErr(op, OperationErrorDecodeFailed, "decode qdrant result failed", err)
	}
	return nil
}

func classifyHTTPCallError(op, message string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return opErr(op, OperationErrorTimeout, message, err)
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return opErr(op, OperationErrorTimeout, message, err)
	}
	return opErr(op, OperationErrorTransportFailed, message, err)
}

func parseEnvelopeStatus(raw json.RawMessage) string {
	status := strings.TrimSpace(string(raw))
	if status == "" || status == "null" {
		return ""
	}

	var statusString string
	if err := json.Unmarshal(raw, &statusString); err == nil {
		if strings.EqualFold(statusString, "ok") {
			return ""
		}
		return fmt.Sprintf("qdrant status=%q", statusString)
	}

	var statusObject struct {
		Error string `json:"error"`
	}
	if err := json.Unmarshal(raw, &statusObject); err == nil {
		if strings.TrimSpace(statusObject.Error) != "" {
			return strings.TrimSpace(statusObject.Error)
		}
	}

	return fmt.Sprintf("qdrant status=%s", status)
}

func truncateBody(raw []byte) string {
	if len(raw) <= maxErrorBodyBytes {
		return string(raw)
	}
	return string(raw[:maxErrorBodyBytes]) + "..."
}

func (s *index) queryFilter(allowed map[string]struct{}) map[string]any {
	must := []any{
		map[string]any{
			"key":   payloadGenerationKey,
			"match": map[string]any{"value": s.generation},
		},
	}
	if allowed != nil {
		pointIDs := make([]string, 0, len(allowed))
		for id := range allowed {
			pointIDs = append(pointIDs, s.pointID(id))
		}
		sort.Strings(pointIDs)
		must = append(must, map[string]any{"has_id": pointIDs})
	}
	return map[string]any{"must": must}
}

func (s *index) extractParcelID(item qdrantSearchResultItem) string {
	if payloadID, ok := item.Payload[payloadParcelIDKey].(string); ok {
		id := strings.TrimSpace(payloadID)
		if id != "" {
			return id
		}
	}
	return decodePointID(item.ID)
}

func decodePointID(raw json.RawMessage) string {
	if len(raw) == 0 {
		return ""
	}
	var idString string
	if err := json.Unmarshal(raw, &idString); err == nil {
		return strings.TrimSpace(idString)
	}
	var idNumber int64
	if err := json.Unmarshal(raw, &idNumber); err == nil {
		return fmt.Sprintf("%d", idNumber)
	}
	return strings.TrimSpace(string(raw))
}

func (s *index) pointID(parcelID string) string {
	deterministic := uuid.NewSHA1(pointIDNamespaceUUID, []byte(s.generation+"|"+parcelID))
	return deterministic.String()
}

func (s *index) collectionPath(suffix string) string {
	path := "/collections/" + s.cfg.Collection
	if strings.TrimSpace(suffix) == "" {
		return path
	}
	return path + suffix
}

func (s *index) normalizeScore(score float64) float64 {
	switch strings.ToLower(strings.TrimSpace(s.distance)) {
	case "euclid", "manhattan":
		if score < 0 {
			score = -score
		}
		return 1.0 / (1.0 + score)
	default:
		return score
	}
}

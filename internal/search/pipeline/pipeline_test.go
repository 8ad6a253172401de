package pipeline

import (
	"context"
	"errors"
	"testing"
	"time"

	"gorm.io/gorm"

	"github.com/plotwise/plotwise-backend/internal/disclosure"
	"github.com/plotwise/plotwise-backend/internal/domain"
	pkgerrors "github.com/plotwise/plotwise-backend/internal/pkg/errors"
	"github.com/plotwise/plotwise-backend/internal/platform/logger"
	"github.com/plotwise/plotwise-backend/internal/platform/openai"
	"github.com/plotwise/plotwise-backend/internal/platform/vector"
	"github.com/plotwise/plotwise-backend/internal/search/dualindex"
	"github.com/plotwise/plotwise-backend/internal/search/fusion"
	"github.com/plotwise/plotwise-backend/internal/search/graphfilter"
	"github.com/plotwise/plotwise-backend/internal/search/normalize"
	"github.com/plotwise/plotwise-backend/internal/search/proximity"
	"github.com/plotwise/plotwise-backend/internal/snapshot"
)

type fakeParcelRepo struct {
	parcels map[string]*domain.Parcel
	getErr  error
}

func (f *fakeParcelRepo) Create(_ context.Context, _ *gorm.DB, _ []*domain.Parcel) error {
	return nil
}

func (f *fakeParcelRepo) GetByID(_ context.Context, _ *gorm.DB, id string) (*domain.Parcel, error) {
	if f.getErr != nil {
		return nil, f.getErr
	}
	p, ok := f.parcels[id]
	if !ok {
		return nil, pkgerrors.ErrNotFound
	}
	return p, nil
}

func (f *fakeParcelRepo) GetByIDs(_ context.Context, _ *gorm.DB, ids []string) ([]*domain.Parcel, error) {
	if f.getErr != nil {
		return nil, f.getErr
	}
	out := make([]*domain.Parcel, 0, len(ids))
	for _, id := range ids {
		if p, ok := f.parcels[id]; ok {
			out = append(out, p)
		}
	}
	return out, nil
}

func (f *fakeParcelRepo) ListByGeneration(_ context.Context, _ *gorm.DB, _ string) ([]*domain.Parcel, error) {
	out := make([]*domain.Parcel, 0, len(f.parcels))
	for _, p := range f.parcels {
		out = append(out, p)
	}
	return out, nil
}

func (f *fakeParcelRepo) CountByGeneration(_ context.Context, _ *gorm.DB, _ string) (int64, error) {
	return int64(len(f.parcels)), nil
}

// failingEngine wraps a working engine but fails predicate evaluation, for
// exercising the unavailable path.
type failingEngine struct {
	graphfilter.Engine
	err error
}

func (f *failingEngine) Match(_ context.Context, _ domain.Filters) (graphfilter.MatchResult, error) {
	return graphfilter.MatchResult{}, f.err
}

func (f *failingEngine) Count(_ context.Context, _ domain.Filters) (int, map[string]int, error) {
	return 0, nil, f.err
}

type stubEmbedder struct {
	vec []float32
	err error
}

func (s *stubEmbedder) Embed(_ context.Context, inputs []string) ([][]float32, error) {
	if s.err != nil {
		return nil, s.err
	}
	out := make([][]float32, len(inputs))
	for i := range out {
		out[i] = s.vec
	}
	return out, nil
}

type fixedLoader struct {
	snap *snapshot.Snapshot
}

func (l *fixedLoader) Load(_ context.Context, _ string) (*snapshot.Snapshot, error) {
	return l.snap, nil
}

type testHarness struct {
	pipeline *Pipeline
	ledger   *disclosure.MemoryLedger
	repo     *fakeParcelRepo
}

func testParcels() map[string]*domain.Parcel {
	return map[string]*domain.Parcel{
		"p1": {ID: "p1", AreaM2: 820, Ownership: domain.OwnershipPrivate, BuildStatus: domain.BuildStatusVacant,
			SizeClass: domain.SizeClassMedium, ZoneID: "z1", CityID: "c1", DistrictID: "d1", HasEmbeddings: true},
		"p2": {ID: "p2", AreaM2: 640, Ownership: domain.OwnershipPrivate, BuildStatus: domain.BuildStatusVacant,
			SizeClass: domain.SizeClassMedium, ZoneID: "z1", CityID: "c1", DistrictID: "d1", HasEmbeddings: true},
		"p3": {ID: "p3", AreaM2: 910, Ownership: domain.OwnershipPrivate, BuildStatus: domain.BuildStatusVacant,
			SizeClass: domain.SizeClassMedium, ZoneID: "z1", CityID: "c1", DistrictID: "d1"},
	}
}

func structuralVec(seed float32) []float32 {
	v := make([]float32, domain.StructuralDim)
	v[0] = seed
	v[1] = 1
	return v
}

// harnessFixture overrides parts of the default three-parcel fixture. A nil
// parcels map selects the default parcels, edges, and structural vectors.
type harnessFixture struct {
	engine     graphfilter.Engine
	embedder   openai.Client
	parcels    map[string]*domain.Parcel
	edges      []domain.ProximityEdge
	pois       []domain.POI
	adjacency  []domain.AdjacencyEdge
	structural map[string][]float32
}

// newHarness builds a pipeline over three in-district parcels with distinct
// proximity composites (p2 best, p1 middle, p3 no edges) and structural
// embeddings for p1 and p2.
func newHarness(t *testing.T, engineOverride graphfilter.Engine) *testHarness {
	t.Helper()
	return newFixtureHarness(t, harnessFixture{engine: engineOverride})
}

func newFixtureHarness(t *testing.T, fix harnessFixture) *testHarness {
	t.Helper()
	log, err := logger.New("development")
	if err != nil {
		t.Fatalf("logger init: %v", err)
	}

	parcels := fix.parcels
	edges, pois, adjacency := fix.edges, fix.pois, fix.adjacency
	structuralVecs := fix.structural
	if parcels == nil {
		parcels = testParcels()
		edges = []domain.ProximityEdge{
			{ParcelID: "p1", POIID: "b1", POIType: domain.POIBusStop, DistanceM: 400},
			{ParcelID: "p2", POIID: "b1", POIType: domain.POIBusStop, DistanceM: 80},
		}
		pois = []domain.POI{
			{ID: "b1", Type: domain.POIBusStop, Name: "Main Street Stop"},
		}
		adjacency = []domain.AdjacencyEdge{
			{ParcelA: "p1", ParcelB: "p2", SharedBorderM: 25},
		}
		structuralVecs = map[string][]float32{
			"p1": structuralVec(1),
			"p2": structuralVec(0.97),
		}
	}
	repo := &fakeParcelRepo{parcels: parcels}

	locations := []domain.LocationNode{
		{ID: "c1", Name: "Riverton", Kind: domain.LocationCity},
		{ID: "d1", Name: "Old Town", Kind: domain.LocationDistrict, ParentID: "c1"},
	}
	zones := []domain.ZoningZone{{ID: "z1", Code: "R1", Residential: true}}
	parcelRows := make([]domain.Parcel, 0, len(repo.parcels))
	for _, p := range repo.parcels {
		parcelRows = append(parcelRows, *p)
	}

	var engine graphfilter.Engine = graphfilter.NewMemoryEngine(log, parcelRows, zones, locations)
	if fix.engine != nil {
		engine = fix.engine
	}

	prox := proximity.NewIndex(log, edges, pois, adjacency)

	semantic := vector.NewMemoryIndex(domain.SemanticDim)
	structural := vector.NewMemoryIndex(domain.StructuralDim)
	for id, vec := range structuralVecs {
		_ = structural.Add(id, vec)
	}
	vectors, err := dualindex.New(log, semantic, structural, dualindex.DefaultInflationFactor)
	if err != nil {
		t.Fatalf("dualindex init: %v", err)
	}

	locByID := make(map[string]domain.LocationNode, len(locations))
	for _, l := range locations {
		locByID[l.ID] = l
	}

	snapshots, err := snapshot.NewProvider(log, &fixedLoader{snap: &snapshot.Snapshot{
		Graph:     engine,
		Proximity: prox,
		Vectors:   vectors,
		Locations: locByID,
	}})
	if err != nil {
		t.Fatalf("snapshot provider init: %v", err)
	}
	if _, err := snapshots.Reload(context.Background(), "gen-test"); err != nil {
		t.Fatalf("snapshot reload: %v", err)
	}

	ledger := disclosure.NewMemoryLedger()
	policy, err := disclosure.NewPolicy(log, ledger)
	if err != nil {
		t.Fatalf("policy init: %v", err)
	}

	tuning := fusion.DefaultTuning()
	normalizer, err := normalize.New(log, fix.embedder, tuning.DefaultWeights)
	if err != nil {
		t.Fatalf("normalizer init: %v", err)
	}

	pipe, err := New(log, normalizer, snapshots, policy, repo, tuning, time.Second, 2, 10)
	if err != nil {
		t.Fatalf("pipeline init: %v", err)
	}
	return &testHarness{pipeline: pipe, ledger: ledger, repo: repo}
}

func baseRequest() domain.RawPreference {
	return domain.RawPreference{
		Location: "Old Town",
		CallerID: "caller-1",
	}
}

func TestSearch_GraphOnlyQueryOrdersByProximityComposite(t *testing.T) {
	h := newHarness(t, nil)

	resp, err := h.pipeline.Search(context.Background(), baseRequest())
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if resp.Degraded {
		t.Fatalf("nothing failed, response must not be degraded")
	}
	if resp.TotalCount != 3 {
		t.Fatalf("expected total 3, got %d", resp.TotalCount)
	}
	want := []string{"p2", "p1", "p3"}
	if len(resp.RankedIDsPage) != 3 {
		t.Fatalf("expected 3 ranked ids, got %v", resp.RankedIDsPage)
	}
	for i := range want {
		if resp.RankedIDsPage[i] != want[i] {
			t.Fatalf("expected proximity order %v, got %v", want, resp.RankedIDsPage)
		}
	}
	if resp.Generation != "gen-test" {
		t.Fatalf("expected generation stamp, got %q", resp.Generation)
	}
}

func TestSearch_AreaRangeWithForestWeightOrdering(t *testing.T) {
	// Three parcels; the area window keeps two of them, and the strong
	// forest preference must put the nearer-to-forest parcel first.
	h := newFixtureHarness(t, harnessFixture{
		parcels: map[string]*domain.Parcel{
			"q1": {ID: "q1", AreaM2: 600, Ownership: domain.OwnershipPrivate, BuildStatus: domain.BuildStatusVacant,
				SizeClass: domain.SizeClassMedium, ZoneID: "z1", CityID: "c1", DistrictID: "d1"},
			"q2": {ID: "q2", AreaM2: 1400, Ownership: domain.OwnershipPrivate, BuildStatus: domain.BuildStatusVacant,
				SizeClass: domain.SizeClassMedium, ZoneID: "z1", CityID: "c1", DistrictID: "d1"},
			"q3": {ID: "q3", AreaM2: 2600, Ownership: domain.OwnershipPrivate, BuildStatus: domain.BuildStatusVacant,
				SizeClass: domain.SizeClassLarge, ZoneID: "z1", CityID: "c1", DistrictID: "d1"},
		},
		edges: []domain.ProximityEdge{
			{ParcelID: "q1", POIID: "f1", POIType: domain.POIForest, DistanceM: 1200},
			{ParcelID: "q2", POIID: "f1", POIType: domain.POIForest, DistanceM: 300},
		},
		pois: []domain.POI{
			{ID: "f1", Type: domain.POIForest, Name: "Birch Woods"},
		},
	})

	raw := baseRequest()
	raw.AreaM2 = [2]float64{500, 2000}
	raw.ProximityWeights = map[string]float64{"forest": 0.9}

	resp, err := h.pipeline.Search(context.Background(), raw)
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if resp.TotalCount != 2 {
		t.Fatalf("area window must keep exactly 2 parcels, got %d", resp.TotalCount)
	}
	want := []string{"q2", "q1"}
	if len(resp.RankedIDsPage) != 2 {
		t.Fatalf("expected 2 ranked ids, got %v", resp.RankedIDsPage)
	}
	for i := range want {
		if resp.RankedIDsPage[i] != want[i] {
			t.Fatalf("expected forest-weighted order %v, got %v", want, resp.RankedIDsPage)
		}
	}
}

func TestSearch_TeasersCappedAndLocationScoped(t *testing.T) {
	h := newHarness(t, nil)

	resp, err := h.pipeline.Search(context.Background(), baseRequest())
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if len(resp.Teasers) != 2 {
		t.Fatalf("expected teaser limit 2, got %d", len(resp.Teasers))
	}
	for _, teaser := range resp.Teasers {
		if teaser.ApproxLocation != "Old Town, Riverton" {
			t.Fatalf("unexpected teaser location %q", teaser.ApproxLocation)
		}
		if len(teaser.Highlights) == 0 {
			t.Fatalf("teaser must carry at least one highlight")
		}
	}
}

func TestSearch_FreeTextWithoutEmbedderDegrades(t *testing.T) {
	h := newHarness(t, nil)
	raw := baseRequest()
	raw.FreeText = "sunny and quiet"

	resp, err := h.pipeline.Search(context.Background(), raw)
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if !resp.Degraded {
		t.Fatalf("skipped semantic branch must mark the response degraded")
	}
	if len(resp.SkippedBranches) != 1 || resp.SkippedBranches[0] != "semantic" {
		t.Fatalf("expected the semantic branch reported as skipped, got %v", resp.SkippedBranches)
	}
	if len(resp.RankedIDsPage) != 3 {
		t.Fatalf("remaining branches must still rank, got %v", resp.RankedIDsPage)
	}
}

func TestSearch_FreeTextWithNoCloseNeighborsStaysHealthy(t *testing.T) {
	// The embedding succeeds but the semantic index holds nothing nearby.
	// An empty neighbor list is a normal outcome, not degradation.
	vec := make([]float32, domain.SemanticDim)
	vec[0] = 1
	h := newFixtureHarness(t, harnessFixture{embedder: &stubEmbedder{vec: vec}})

	raw := baseRequest()
	raw.FreeText = "quiet parcel at the edge of the woods"

	resp, err := h.pipeline.Search(context.Background(), raw)
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if resp.Degraded {
		t.Fatalf("all branches ran, response must not be degraded")
	}
	if len(resp.SkippedBranches) != 0 {
		t.Fatalf("no branch was skipped, got %v", resp.SkippedBranches)
	}
	if resp.TotalCount != 3 {
		t.Fatalf("expected total 3, got %d", resp.TotalCount)
	}
	if len(resp.Teasers) == 0 {
		t.Fatalf("teasers must still be served")
	}
}

func TestSearch_SeedParcelBoostsStructuralTwin(t *testing.T) {
	h := newHarness(t, nil)
	raw := baseRequest()
	raw.SimilarToParcel = "p1"

	resp, err := h.pipeline.Search(context.Background(), raw)
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if resp.Degraded {
		t.Fatalf("structural branch ran, response must not be degraded")
	}
	// p2 leads on proximity already; the structural twin signal must not
	// surface the seed itself ahead of it.
	if resp.RankedIDsPage[0] != "p2" {
		t.Fatalf("expected p2 first, got %v", resp.RankedIDsPage)
	}
}

func TestSearch_SeedWithoutEmbeddingSkipsBranch(t *testing.T) {
	h := newHarness(t, nil)
	raw := baseRequest()
	raw.SimilarToParcel = "p3"

	resp, err := h.pipeline.Search(context.Background(), raw)
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if !resp.Degraded {
		t.Fatalf("seed without a stored vector must degrade the response")
	}
	if len(resp.SkippedBranches) != 1 || resp.SkippedBranches[0] != "structural" {
		t.Fatalf("expected the structural branch reported as skipped, got %v", resp.SkippedBranches)
	}
	if len(resp.RankedIDsPage) != 3 {
		t.Fatalf("graph and proximity must still serve, got %v", resp.RankedIDsPage)
	}
}

func TestSearch_NoSnapshotIsUnavailable(t *testing.T) {
	log, err := logger.New("development")
	if err != nil {
		t.Fatalf("logger init: %v", err)
	}
	snapshots, err := snapshot.NewProvider(log, &fixedLoader{snap: &snapshot.Snapshot{}})
	if err != nil {
		t.Fatalf("provider init: %v", err)
	}
	tuning := fusion.DefaultTuning()
	normalizer, err := normalize.New(log, nil, tuning.DefaultWeights)
	if err != nil {
		t.Fatalf("normalizer init: %v", err)
	}
	policy, err := disclosure.NewPolicy(log, disclosure.NewMemoryLedger())
	if err != nil {
		t.Fatalf("policy init: %v", err)
	}
	pipe, err := New(log, normalizer, snapshots, policy, &fakeParcelRepo{}, tuning, time.Second, 2, 10)
	if err != nil {
		t.Fatalf("pipeline init: %v", err)
	}

	_, err = pipe.Search(context.Background(), baseRequest())
	if !errors.Is(err, pkgerrors.ErrRetrievalUnavailable) {
		t.Fatalf("expected ErrRetrievalUnavailable, got %v", err)
	}
}

func TestSearch_AllBranchesFailedIsUnavailable(t *testing.T) {
	log, err := logger.New("development")
	if err != nil {
		t.Fatalf("logger init: %v", err)
	}
	working := graphfilter.NewMemoryEngine(log, nil, nil, []domain.LocationNode{
		{ID: "d1", Name: "Old Town", Kind: domain.LocationDistrict, ParentID: "c1"},
	})
	h := newHarness(t, &failingEngine{Engine: working, err: errors.New("graph store down")})

	_, err = h.pipeline.Search(context.Background(), baseRequest())
	if !errors.Is(err, pkgerrors.ErrRetrievalUnavailable) {
		t.Fatalf("expected ErrRetrievalUnavailable, got %v", err)
	}
}

func TestSearch_GraphFailureWithLiveVectorBranchDegrades(t *testing.T) {
	log, err := logger.New("development")
	if err != nil {
		t.Fatalf("logger init: %v", err)
	}
	working := graphfilter.NewMemoryEngine(log, nil, nil, []domain.LocationNode{
		{ID: "d1", Name: "Old Town", Kind: domain.LocationDistrict, ParentID: "c1"},
	})
	h := newHarness(t, &failingEngine{Engine: working, err: errors.New("graph store down")})
	raw := baseRequest()
	raw.SimilarToParcel = "p1"

	resp, err := h.pipeline.Search(context.Background(), raw)
	if err != nil {
		t.Fatalf("one live branch must keep the request alive: %v", err)
	}
	if !resp.Degraded {
		t.Fatalf("graph failure must mark the response degraded")
	}
	if len(resp.RankedIDsPage) != 0 {
		t.Fatalf("no gate means no ranked ids, got %v", resp.RankedIDsPage)
	}
}

func TestSearch_InvalidPreferencePassesThrough(t *testing.T) {
	h := newHarness(t, nil)
	raw := baseRequest()
	raw.Location = "Nowhere"

	_, err := h.pipeline.Search(context.Background(), raw)
	if !errors.Is(err, pkgerrors.ErrInvalidPreference) {
		t.Fatalf("expected ErrInvalidPreference, got %v", err)
	}
}

func TestCount_IgnoresVectorBranches(t *testing.T) {
	h := newHarness(t, nil)
	raw := baseRequest()
	raw.FreeText = "would normally need an embedder"
	raw.SimilarToParcel = "p1"

	total, breakdown, err := h.pipeline.Count(context.Background(), raw)
	if err != nil {
		t.Fatalf("count: %v", err)
	}
	if total != 3 {
		t.Fatalf("expected 3, got %d", total)
	}
	if breakdown["Old Town"] != 3 {
		t.Fatalf("expected breakdown for Old Town, got %v", breakdown)
	}
}

func TestReveal_ChargesAndReturnsFullDetail(t *testing.T) {
	h := newHarness(t, nil)
	_ = h.ledger.Grant(context.Background(), "caller-1", 1)

	reveal, prompt, err := h.pipeline.Reveal(context.Background(), "caller-1", "s1", "p2")
	if err != nil {
		t.Fatalf("reveal: %v", err)
	}
	if prompt != nil {
		t.Fatalf("unexpected payment prompt %+v", prompt)
	}
	if reveal.Parcel.ID != "p2" || reveal.Explanation == "" || len(reveal.Highlights) == 0 {
		t.Fatalf("unexpected reveal %+v", reveal)
	}
	balance, _ := h.ledger.Balance(context.Background(), "caller-1")
	if balance != 0 {
		t.Fatalf("expected the credit to be spent, balance=%d", balance)
	}
}

func TestReveal_InsufficientCreditsPrompts(t *testing.T) {
	h := newHarness(t, nil)

	reveal, prompt, err := h.pipeline.Reveal(context.Background(), "caller-1", "s1", "p2")
	if !errors.Is(err, pkgerrors.ErrInsufficientCredits) {
		t.Fatalf("expected ErrInsufficientCredits, got %v", err)
	}
	if reveal != nil {
		t.Fatalf("refused reveal must carry no data")
	}
	if prompt == nil || prompt.RequiredCredits != 1 {
		t.Fatalf("unexpected prompt %+v", prompt)
	}
}

func TestReveal_UnknownParcelIsNotFound(t *testing.T) {
	h := newHarness(t, nil)
	_ = h.ledger.Grant(context.Background(), "caller-1", 1)

	_, _, err := h.pipeline.Reveal(context.Background(), "caller-1", "s1", "ghost")
	if !errors.Is(err, pkgerrors.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	balance, _ := h.ledger.Balance(context.Background(), "caller-1")
	if balance != 1 {
		t.Fatalf("failed reveal must not charge, balance=%d", balance)
	}
}

func TestReveal_BlankParcelIDRejected(t *testing.T) {
	h := newHarness(t, nil)
	_, _, err := h.pipeline.Reveal(context.Background(), "caller-1", "s1", "  ")
	if !errors.Is(err, pkgerrors.ErrInvalidPreference) {
		t.Fatalf("expected ErrInvalidPreference, got %v", err)
	}
}

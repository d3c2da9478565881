package services

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/kmoreland/leasepulse/internal/broadcast"
	"github.com/kmoreland/leasepulse/internal/logger"
	"github.com/kmoreland/leasepulse/internal/models"
	"github.com/kmoreland/leasepulse/internal/repository"
	"github.com/kmoreland/leasepulse/internal/scoring"
)

// MockUnitRepository is a mock implementation of repository.UnitRepository.
type MockUnitRepository struct {
	mock.Mock
}

func (m *MockUnitRepository) GetByID(ctx context.Context, id string) (*models.Unit, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Unit), args.Error(1)
}

func (m *MockUnitRepository) List(ctx context.Context, filters repository.ListFilters) ([]models.Unit, error) {
	args := m.Called(ctx, filters)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]models.Unit), args.Error(1)
}

func (m *MockUnitRepository) Count(ctx context.Context, filters repository.ListFilters) (int, error) {
	args := m.Called(ctx, filters)
	return args.Int(0), args.Error(1)
}

func (m *MockUnitRepository) FetchAll(ctx context.Context) ([]models.Unit, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]models.Unit), args.Error(1)
}

func (m *MockUnitRepository) FetchAvailable(ctx context.Context) ([]models.Unit, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]models.Unit), args.Error(1)
}

func (m *MockUnitRepository) Create(ctx context.Context, unit *models.Unit) error {
	args := m.Called(ctx, unit)
	return args.Error(0)
}

func (m *MockUnitRepository) Update(ctx context.Context, unit *models.Unit) (bool, error) {
	args := m.Called(ctx, unit)
	return args.Bool(0), args.Error(1)
}

func (m *MockUnitRepository) Delete(ctx context.Context, id string) (bool, error) {
	args := m.Called(ctx, id)
	return args.Bool(0), args.Error(1)
}

func (m *MockUnitRepository) UpdateLeadScore(ctx context.Context, id string, score float64) error {
	args := m.Called(ctx, id, score)
	return args.Error(0)
}

// capturingTransport records every event delivered through the hub.
type capturingTransport struct {
	mu     sync.Mutex
	events []broadcast.Event
}

func (t *capturingTransport) Send(ctx context.Context, event broadcast.Event) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.events = append(t.events, event)
	return nil
}

func (t *capturingTransport) captured() []broadcast.Event {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]broadcast.Event(nil), t.events...)
}

func newTestUnitService(t *testing.T) (UnitService, *MockUnitRepository, *capturingTransport) {
	t.Helper()

	repo := new(MockUnitRepository)
	log := logger.New("test")
	hub := broadcast.NewHub(time.Second, log)
	transport := &capturingTransport{}
	hub.Register("test-observer", transport)

	svc := NewUnitService(repo, scoring.NewEngine(scoring.DefaultLocationRules()), hub, log)
	return svc, repo, transport
}

func createInput() CreateUnitInput {
	return CreateUnitInput{
		PropertyName: "The Henry Clay",
		UnitNumber:   "4B",
		Bedrooms:     2,
		Bathrooms:    1.0,
		SquareFeet:   1000,
		Price:        1200,
		Amenities:    []string{"parking"},
		Location: models.Location{
			Address: "604 S 3rd St",
			City:    "Louisville",
			State:   "KY",
			Zip:     "40202",
			Lat:     38.2527,
			Lng:     -85.7585,
		},
	}
}

func TestCreateUnit_Success(t *testing.T) {
	// Arrange
	svc, repo, _ := newTestUnitService(t)
	repo.On("Create", mock.Anything, mock.AnythingOfType("*models.Unit")).Return(nil)
	repo.On("FetchAvailable", mock.Anything).Return([]models.Unit{}, nil)
	repo.On("UpdateLeadScore", mock.Anything, mock.AnythingOfType("string"), mock.AnythingOfType("float64")).Return(nil)

	// Act
	unit, err := svc.CreateUnit(context.Background(), createInput())

	// Assert
	require.NoError(t, err)
	require.NotNil(t, unit)
	assert.NotEmpty(t, unit.ID)
	assert.Equal(t, models.StatusAvailable, unit.Status)
	assert.Nil(t, unit.LeasedAt)
	assert.Equal(t, "dng18e8", unit.Location.Geohash)
	assert.False(t, unit.ListedAt.IsZero())

	// Against the sentinel market every component fires: the score clamps
	// to the ceiling.
	assert.Equal(t, 100.0, unit.LeadScore)

	repo.AssertExpectations(t)
}

// Observers must see the freshly computed score, never the zero value the
// unit was persisted with.
func TestCreateUnit_BroadcastsScoredRecord(t *testing.T) {
	// Arrange
	svc, repo, transport := newTestUnitService(t)
	repo.On("Create", mock.Anything, mock.AnythingOfType("*models.Unit")).Return(nil)
	repo.On("FetchAvailable", mock.Anything).Return([]models.Unit{}, nil)
	repo.On("UpdateLeadScore", mock.Anything, mock.AnythingOfType("string"), mock.AnythingOfType("float64")).Return(nil)

	// Act
	unit, err := svc.CreateUnit(context.Background(), createInput())

	// Assert
	require.NoError(t, err)
	events := transport.captured()
	require.Len(t, events, 1)
	assert.Equal(t, broadcast.EventUnitUpdate, events[0].Type)

	payload, ok := events[0].Data.(models.Unit)
	require.True(t, ok)
	assert.Equal(t, unit.ID, payload.ID)
	assert.Equal(t, unit.LeadScore, payload.LeadScore)
	assert.Positive(t, payload.LeadScore)
}

func TestCreateUnit_DefaultsToAvailable(t *testing.T) {
	// Arrange
	svc, repo, _ := newTestUnitService(t)
	repo.On("Create", mock.Anything, mock.AnythingOfType("*models.Unit")).Return(nil)
	repo.On("FetchAvailable", mock.Anything).Return([]models.Unit{}, nil)
	repo.On("UpdateLeadScore", mock.Anything, mock.AnythingOfType("string"), mock.AnythingOfType("float64")).Return(nil)

	input := createInput()
	input.Status = ""

	// Act
	unit, err := svc.CreateUnit(context.Background(), input)

	// Assert
	require.NoError(t, err)
	assert.Equal(t, models.StatusAvailable, unit.Status)
}

func TestCreateUnit_LeasedStampsLeasedAt(t *testing.T) {
	// Arrange
	svc, repo, _ := newTestUnitService(t)
	repo.On("Create", mock.Anything, mock.AnythingOfType("*models.Unit")).Return(nil)
	repo.On("FetchAvailable", mock.Anything).Return([]models.Unit{}, nil)
	repo.On("UpdateLeadScore", mock.Anything, mock.AnythingOfType("string"), mock.AnythingOfType("float64")).Return(nil)

	input := createInput()
	input.Status = models.StatusLeased

	// Act
	unit, err := svc.CreateUnit(context.Background(), input)

	// Assert
	require.NoError(t, err)
	require.NotNil(t, unit.LeasedAt)
	assert.False(t, unit.LeasedAt.Before(unit.ListedAt))
}

func TestCreateUnit_InvalidStatus(t *testing.T) {
	// Arrange
	svc, repo, transport := newTestUnitService(t)

	input := createInput()
	input.Status = models.UnitStatus("sold")

	// Act
	unit, err := svc.CreateUnit(context.Background(), input)

	// Assert
	assert.Nil(t, unit)
	assert.ErrorIs(t, err, ErrInvalidStatus)
	assert.Empty(t, transport.captured())
	repo.AssertNotCalled(t, "Create")
}

func TestCreateUnit_RepositoryError(t *testing.T) {
	// Arrange
	svc, repo, transport := newTestUnitService(t)
	repo.On("Create", mock.Anything, mock.AnythingOfType("*models.Unit")).Return(errors.New("connection refused"))

	// Act
	unit, err := svc.CreateUnit(context.Background(), createInput())

	// Assert
	assert.Nil(t, unit)
	assert.Error(t, err)
	assert.Empty(t, transport.captured())
}

func TestUpdateUnit_NotFound(t *testing.T) {
	// Arrange
	svc, repo, transport := newTestUnitService(t)
	repo.On("GetByID", mock.Anything, "missing-id").Return(nil, nil)

	// Act
	unit, err := svc.UpdateUnit(context.Background(), "missing-id", UpdateUnitInput{})

	// Assert
	assert.Nil(t, unit)
	assert.ErrorIs(t, err, ErrUnitNotFound)
	assert.Empty(t, transport.captured())
}

func TestUpdateUnit_TransitionToLeased(t *testing.T) {
	// Arrange
	svc, repo, transport := newTestUnitService(t)
	existing := &models.Unit{
		ID:       "unit-1",
		Status:   models.StatusAvailable,
		Price:    1500,
		ListedAt: time.Now().UTC().AddDate(0, 0, -10),
	}
	repo.On("GetByID", mock.Anything, "unit-1").Return(existing, nil)
	repo.On("Update", mock.Anything, mock.AnythingOfType("*models.Unit")).Return(true, nil)

	leased := models.StatusLeased

	// Act
	unit, err := svc.UpdateUnit(context.Background(), "unit-1", UpdateUnitInput{Status: &leased})

	// Assert
	require.NoError(t, err)
	assert.Equal(t, models.StatusLeased, unit.Status)
	require.NotNil(t, unit.LeasedAt)

	// Leased units keep their last score; no rescoring round trip
	repo.AssertNotCalled(t, "FetchAvailable")
	repo.AssertNotCalled(t, "UpdateLeadScore")

	events := transport.captured()
	require.Len(t, events, 1)
	assert.Equal(t, broadcast.EventUnitUpdate, events[0].Type)
}

func TestUpdateUnit_PriceChangeRescoresAvailableUnit(t *testing.T) {
	// Arrange
	svc, repo, transport := newTestUnitService(t)
	existing := &models.Unit{
		ID:         "unit-1",
		Status:     models.StatusAvailable,
		Price:      1500,
		SquareFeet: 1000,
		Bathrooms:  1.0,
		ListedAt:   time.Now().UTC().AddDate(0, 0, -20),
	}
	repo.On("GetByID", mock.Anything, "unit-1").Return(existing, nil)
	repo.On("Update", mock.Anything, mock.AnythingOfType("*models.Unit")).Return(true, nil)
	repo.On("FetchAvailable", mock.Anything).Return([]models.Unit{}, nil)
	repo.On("UpdateLeadScore", mock.Anything, "unit-1", mock.AnythingOfType("float64")).Return(nil)

	newPrice := 1000

	// Act
	unit, err := svc.UpdateUnit(context.Background(), "unit-1", UpdateUnitInput{Price: &newPrice})

	// Assert
	require.NoError(t, err)
	assert.Equal(t, 1000, unit.Price)
	assert.Positive(t, unit.LeadScore)

	events := transport.captured()
	require.Len(t, events, 1)
	payload, ok := events[0].Data.(models.Unit)
	require.True(t, ok)
	assert.Equal(t, unit.LeadScore, payload.LeadScore)

	repo.AssertExpectations(t)
}

func TestUpdateUnit_InvalidStatus(t *testing.T) {
	// Arrange
	svc, repo, _ := newTestUnitService(t)
	existing := &models.Unit{ID: "unit-1", Status: models.StatusAvailable}
	repo.On("GetByID", mock.Anything, "unit-1").Return(existing, nil)

	bad := models.UnitStatus("demolished")

	// Act
	unit, err := svc.UpdateUnit(context.Background(), "unit-1", UpdateUnitInput{Status: &bad})

	// Assert
	assert.Nil(t, unit)
	assert.ErrorIs(t, err, ErrInvalidStatus)
	repo.AssertNotCalled(t, "Update")
}

func TestUpdateUnit_GoneBetweenReadAndWrite(t *testing.T) {
	// Arrange
	svc, repo, transport := newTestUnitService(t)
	existing := &models.Unit{ID: "unit-1", Status: models.StatusLeased}
	repo.On("GetByID", mock.Anything, "unit-1").Return(existing, nil)
	repo.On("Update", mock.Anything, mock.AnythingOfType("*models.Unit")).Return(false, nil)

	// Act
	unit, err := svc.UpdateUnit(context.Background(), "unit-1", UpdateUnitInput{})

	// Assert
	assert.Nil(t, unit)
	assert.ErrorIs(t, err, ErrUnitNotFound)
	assert.Empty(t, transport.captured())
}

func TestDeleteUnit_Success(t *testing.T) {
	// Arrange
	svc, repo, transport := newTestUnitService(t)
	repo.On("Delete", mock.Anything, "unit-1").Return(true, nil)

	// Act
	err := svc.DeleteUnit(context.Background(), "unit-1")

	// Assert
	require.NoError(t, err)
	events := transport.captured()
	require.Len(t, events, 1)
	assert.Equal(t, broadcast.EventUnitDeleted, events[0].Type)
	assert.Equal(t, broadcast.DeletedPayload{ID: "unit-1"}, events[0].Data)
}

func TestDeleteUnit_NotFound(t *testing.T) {
	// Arrange
	svc, repo, transport := newTestUnitService(t)
	repo.On("Delete", mock.Anything, "missing-id").Return(false, nil)

	// Act
	err := svc.DeleteUnit(context.Background(), "missing-id")

	// Assert
	assert.ErrorIs(t, err, ErrUnitNotFound)
	assert.Empty(t, transport.captured())
}

func TestGetUnit(t *testing.T) {
	// Arrange
	svc, repo, _ := newTestUnitService(t)
	existing := &models.Unit{ID: "unit-1"}
	repo.On("GetByID", mock.Anything, "unit-1").Return(existing, nil)
	repo.On("GetByID", mock.Anything, "missing-id").Return(nil, nil)

	// Act & Assert
	unit, err := svc.GetUnit(context.Background(), "unit-1")
	require.NoError(t, err)
	assert.Equal(t, "unit-1", unit.ID)

	unit, err = svc.GetUnit(context.Background(), "missing-id")
	assert.Nil(t, unit)
	assert.ErrorIs(t, err, ErrUnitNotFound)
}

func TestListUnits(t *testing.T) {
	// Arrange
	svc, repo, _ := newTestUnitService(t)
	filters := repository.ListFilters{Limit: 10}
	repo.On("List", mock.Anything, filters).Return([]models.Unit{{ID: "a"}, {ID: "b"}}, nil)
	repo.On("Count", mock.Anything, filters).Return(42, nil)

	// Act
	units, total, err := svc.ListUnits(context.Background(), filters)

	// Assert
	require.NoError(t, err)
	assert.Len(t, units, 2)
	assert.Equal(t, 42, total)
}

func TestPrioritizedUnits_FiltersToAvailable(t *testing.T) {
	// Arrange
	svc, repo, _ := newTestUnitService(t)
	status := models.StatusAvailable
	repo.On("List", mock.Anything, repository.ListFilters{Status: &status, Limit: 5}).
		Return([]models.Unit{{ID: "top", LeadScore: 95}}, nil)

	// Act
	units, err := svc.PrioritizedUnits(context.Background(), 5)

	// Assert
	require.NoError(t, err)
	require.Len(t, units, 1)
	assert.Equal(t, "top", units[0].ID)
	repo.AssertExpectations(t)
}

func TestScoreBreakdown(t *testing.T) {
	// Arrange
	svc, repo, _ := newTestUnitService(t)
	existing := &models.Unit{
		ID:         "unit-1",
		Status:     models.StatusAvailable,
		Price:      1500,
		SquareFeet: 1000,
		Bathrooms:  1.0,
		ListedAt:   time.Now().UTC().AddDate(0, 0, -20),
	}
	repo.On("GetByID", mock.Anything, "unit-1").Return(existing, nil)
	repo.On("FetchAvailable", mock.Anything).Return([]models.Unit{*existing}, nil)

	// Act
	breakdown, err := svc.ScoreBreakdown(context.Background(), "unit-1")

	// Assert
	require.NoError(t, err)
	require.NotNil(t, breakdown)
	assert.Len(t, breakdown.Components, 5)
	assert.GreaterOrEqual(t, breakdown.TotalScore, 0.0)
	assert.LessOrEqual(t, breakdown.TotalScore, 100.0)
}

func TestScoreBreakdown_NotFound(t *testing.T) {
	// Arrange
	svc, repo, _ := newTestUnitService(t)
	repo.On("GetByID", mock.Anything, "missing-id").Return(nil, nil)

	// Act
	breakdown, err := svc.ScoreBreakdown(context.Background(), "missing-id")

	// Assert
	assert.Nil(t, breakdown)
	assert.ErrorIs(t, err, ErrUnitNotFound)
}

// Only units whose score actually changed are written back.
func TestRecalculateScores_PersistsChangesOnly(t *testing.T) {
	// Arrange
	svc, repo, _ := newTestUnitService(t)

	now := time.Now().UTC()
	fresh := models.Unit{
		ID:         "fresh",
		Status:     models.StatusAvailable,
		Price:      1500,
		SquareFeet: 1000,
		Bathrooms:  1.0,
		ListedAt:   now.AddDate(0, 0, -20).Add(-time.Hour),
	}
	stale := models.Unit{
		ID:         "stale",
		Status:     models.StatusAvailable,
		Price:      1500,
		SquareFeet: 1000,
		Bathrooms:  1.0,
		ListedAt:   now.AddDate(0, 0, -20).Add(-time.Hour),
		LeadScore:  12.34,
	}

	// Pre-seed the fresh unit with exactly the score the engine will
	// produce so it is skipped.
	population := []models.Unit{fresh, stale}
	snapshot := scoring.BuildSnapshot(population)
	engine := scoring.NewEngine(scoring.DefaultLocationRules())
	fresh.LeadScore, _ = engine.Score(fresh, snapshot, now)
	population[0] = fresh

	repo.On("FetchAvailable", mock.Anything).Return(population, nil)
	repo.On("UpdateLeadScore", mock.Anything, "stale", mock.AnythingOfType("float64")).Return(nil)

	// Act
	updated, err := svc.RecalculateScores(context.Background())

	// Assert
	require.NoError(t, err)
	assert.Equal(t, 1, updated)
	repo.AssertNotCalled(t, "UpdateLeadScore", mock.Anything, "fresh", mock.AnythingOfType("float64"))
	repo.AssertExpectations(t)
}

func TestRecalculateScores_EmptyPopulation(t *testing.T) {
	// Arrange
	svc, repo, _ := newTestUnitService(t)
	repo.On("FetchAvailable", mock.Anything).Return([]models.Unit{}, nil)

	// Act
	updated, err := svc.RecalculateScores(context.Background())

	// Assert
	require.NoError(t, err)
	assert.Equal(t, 0, updated)
}

package server

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	githubsqlite "github.com/glebarez/sqlite"
	"github.com/ruleta-labs/spintrack/internal/auth"
	"github.com/ruleta-labs/spintrack/internal/roulette"
	"github.com/ruleta-labs/spintrack/internal/storage"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type testEnvironment struct {
	server *httptest.Server
	tokens *auth.TokenIssuer
	store  *storage.ResultStore
}

func newTestEnvironment(t *testing.T) *testEnvironment {
	t.Helper()

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())
	db, err := gorm.Open(githubsqlite.Open(dsn), &gorm.Config{})
	if err != nil {
		t.Fatalf("failed to open in-memory database: %v", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("failed to access database handle: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)
	if err := db.AutoMigrate(&storage.ResultRecord{}, &auth.Account{}); err != nil {
		t.Fatalf("failed to migrate schema: %v", err)
	}

	tokenIssuer := auth.NewTokenIssuer(auth.TokenIssuerConfig{
		SigningSecret: []byte("test-signing-secret"),
		Issuer:        "spintrack-auth",
		Audience:      "spintrack-api",
		TokenTTL:      time.Minute,
	})
	authService, err := auth.NewService(auth.ServiceConfig{Database: db})
	if err != nil {
		t.Fatalf("failed to construct auth service: %v", err)
	}
	resultStore, err := storage.NewResultStore(storage.StoreConfig{Database: db, AppID: "test-app"})
	if err != nil {
		t.Fatalf("failed to construct store: %v", err)
	}
	resultsService, err := roulette.NewService(roulette.ServiceConfig{Store: resultStore})
	if err != nil {
		t.Fatalf("failed to construct results service: %v", err)
	}

	handler, err := NewHTTPHandler(Dependencies{
		AuthService:  authService,
		TokenManager: tokenIssuer,
		Results:      resultsService,
		Store:        resultStore,
		PageSize:     10,
		Logger:       zap.NewNop(),
	})
	if err != nil {
		t.Fatalf("failed to construct http handler: %v", err)
	}

	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	return &testEnvironment{server: server, tokens: tokenIssuer, store: resultStore}
}

func (e *testEnvironment) issueToken(t *testing.T, userID string) string {
	t.Helper()
	token, _, err := e.tokens.IssueToken(context.Background(), auth.UserHandle{UserID: userID, Guest: true})
	if err != nil {
		t.Fatalf("failed to issue token: %v", err)
	}
	return token
}

func (e *testEnvironment) doJSON(t *testing.T, method, path, token, body string) (*http.Response, []byte) {
	t.Helper()
	var reader *bytes.Buffer
	if body != "" {
		reader = bytes.NewBufferString(body)
	} else {
		reader = &bytes.Buffer{}
	}
	request, err := http.NewRequest(method, e.server.URL+path, reader)
	if err != nil {
		t.Fatalf("failed to construct request: %v", err)
	}
	if token != "" {
		request.Header.Set("Authorization", "Bearer "+token)
	}
	if body != "" {
		request.Header.Set("Content-Type", "application/json")
	}
	response, err := http.DefaultClient.Do(request)
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	defer response.Body.Close()
	buffer := &bytes.Buffer{}
	if _, err := buffer.ReadFrom(response.Body); err != nil {
		t.Fatalf("failed to read response body: %v", err)
	}
	return response, buffer.Bytes()
}

func TestGuestSignInIssuesSession(t *testing.T) {
	env := newTestEnvironment(t)

	response, body := env.doJSON(t, http.MethodPost, "/auth/guest", "", "")
	if response.StatusCode != http.StatusOK {
		t.Fatalf("unexpected status: %d (%s)", response.StatusCode, body)
	}
	var session sessionResponsePayload
	if err := json.Unmarshal(body, &session); err != nil {
		t.Fatalf("failed to decode session: %v", err)
	}
	if session.AccessToken == "" || session.TokenType != "Bearer" || !session.Guest {
		t.Fatalf("unexpected session payload: %#v", session)
	}

	subject, err := env.tokens.ValidateToken(session.AccessToken)
	if err != nil {
		t.Fatalf("issued token must validate: %v", err)
	}
	if subject != session.UserID {
		t.Fatalf("token subject %q does not match session user %q", subject, session.UserID)
	}
}

func TestRegisterLoginAndDuplicate(t *testing.T) {
	env := newTestEnvironment(t)

	response, body := env.doJSON(t, http.MethodPost, "/auth/register", "",
		`{"email":"player@example.com","password":"hunter2secret","display_name":"Player"}`)
	if response.StatusCode != http.StatusOK {
		t.Fatalf("unexpected register status: %d (%s)", response.StatusCode, body)
	}

	response, _ = env.doJSON(t, http.MethodPost, "/auth/register", "",
		`{"email":"player@example.com","password":"otherpassword"}`)
	if response.StatusCode != http.StatusConflict {
		t.Fatalf("expected conflict for duplicate email, got %d", response.StatusCode)
	}

	response, _ = env.doJSON(t, http.MethodPost, "/auth/login", "",
		`{"email":"player@example.com","password":"hunter2secret"}`)
	if response.StatusCode != http.StatusOK {
		t.Fatalf("unexpected login status: %d", response.StatusCode)
	}

	response, _ = env.doJSON(t, http.MethodPost, "/auth/login", "",
		`{"email":"player@example.com","password":"wrong-password"}`)
	if response.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected unauthorized for wrong password, got %d", response.StatusCode)
	}
}

func TestSubmitRequiresAuthorization(t *testing.T) {
	env := newTestEnvironment(t)

	response, _ := env.doJSON(t, http.MethodPost, "/results", "", `{"number":"17"}`)
	if response.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected unauthorized, got %d", response.StatusCode)
	}
}

func TestSubmitAndListResults(t *testing.T) {
	env := newTestEnvironment(t)
	token := env.issueToken(t, "user-1")

	response, body := env.doJSON(t, http.MethodPost, "/results", token, `{"number":"17"}`)
	if response.StatusCode != http.StatusCreated {
		t.Fatalf("unexpected submit status: %d (%s)", response.StatusCode, body)
	}
	var created roulette.Result
	if err := json.Unmarshal(body, &created); err != nil {
		t.Fatalf("failed to decode result: %v", err)
	}
	if created.ID == "" || created.Number != "17" || created.Sector != roulette.SectorC {
		t.Fatalf("unexpected created result: %#v", created)
	}

	response, body = env.doJSON(t, http.MethodGet, "/results", token, "")
	if response.StatusCode != http.StatusOK {
		t.Fatalf("unexpected list status: %d (%s)", response.StatusCode, body)
	}
	var list listResponsePayload
	if err := json.Unmarshal(body, &list); err != nil {
		t.Fatalf("failed to decode list: %v", err)
	}
	if list.TotalResults != 1 || len(list.Results) != 1 {
		t.Fatalf("unexpected list payload: %#v", list)
	}
	if list.Results[0].Spin != 1 {
		t.Fatalf("expected spin rank 1, got %d", list.Results[0].Spin)
	}
}

func TestSubmitRejectsInvalidNumber(t *testing.T) {
	env := newTestEnvironment(t)
	token := env.issueToken(t, "user-1")

	response, _ := env.doJSON(t, http.MethodPost, "/results", token, `{"number":"37"}`)
	if response.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected bad request for off-wheel number, got %d", response.StatusCode)
	}
}

func TestSubmitRejectsPastDate(t *testing.T) {
	env := newTestEnvironment(t)
	token := env.issueToken(t, "user-1")

	response, body := env.doJSON(t, http.MethodPost, "/results", token, `{"number":"17","date":"2020-01-01"}`)
	if response.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected bad request for past date, got %d (%s)", response.StatusCode, body)
	}
}

func TestListPaginationNewestFirst(t *testing.T) {
	env := newTestEnvironment(t)
	token := env.issueToken(t, "user-1")

	for _, number := range []string{"17", "5", "00"} {
		response, body := env.doJSON(t, http.MethodPost, "/results", token, fmt.Sprintf(`{"number":%q}`, number))
		if response.StatusCode != http.StatusCreated {
			t.Fatalf("unexpected submit status: %d (%s)", response.StatusCode, body)
		}
		// Timestamps carry millisecond precision; keep the spin order stable.
		time.Sleep(2 * time.Millisecond)
	}

	response, body := env.doJSON(t, http.MethodGet, "/results?page=1&page_size=2", token, "")
	if response.StatusCode != http.StatusOK {
		t.Fatalf("unexpected list status: %d (%s)", response.StatusCode, body)
	}
	var firstPage listResponsePayload
	if err := json.Unmarshal(body, &firstPage); err != nil {
		t.Fatalf("failed to decode list: %v", err)
	}
	if firstPage.TotalPages != 2 || !firstPage.CanGoNext || firstPage.CanGoPrevious {
		t.Fatalf("unexpected pagination flags: %#v", firstPage)
	}
	if len(firstPage.Results) != 2 || firstPage.Results[0].Spin != 3 || firstPage.Results[1].Spin != 2 {
		t.Fatalf("expected newest-first spins [3 2], got %#v", firstPage.Results)
	}

	response, body = env.doJSON(t, http.MethodGet, "/results?page=2&page_size=2", token, "")
	if response.StatusCode != http.StatusOK {
		t.Fatalf("unexpected list status: %d", response.StatusCode)
	}
	var secondPage listResponsePayload
	if err := json.Unmarshal(body, &secondPage); err != nil {
		t.Fatalf("failed to decode list: %v", err)
	}
	if len(secondPage.Results) != 1 || secondPage.Results[0].Spin != 1 {
		t.Fatalf("expected oldest spin on last page, got %#v", secondPage.Results)
	}
	if secondPage.CanGoNext || !secondPage.CanGoPrevious {
		t.Fatalf("unexpected pagination flags: %#v", secondPage)
	}
}

func TestStatsReportsCountsAndConsecutive(t *testing.T) {
	env := newTestEnvironment(t)
	token := env.issueToken(t, "user-1")

	// 0 and 28 share a sector, so recording them back to back flags both
	// spins as consecutive.
	for _, number := range []string{"0", "28"} {
		response, body := env.doJSON(t, http.MethodPost, "/results", token, fmt.Sprintf(`{"number":%q}`, number))
		if response.StatusCode != http.StatusCreated {
			t.Fatalf("unexpected submit status: %d (%s)", response.StatusCode, body)
		}
		time.Sleep(2 * time.Millisecond)
	}

	response, body := env.doJSON(t, http.MethodGet, "/results/stats", token, "")
	if response.StatusCode != http.StatusOK {
		t.Fatalf("unexpected stats status: %d (%s)", response.StatusCode, body)
	}
	var stats statsResponsePayload
	if err := json.Unmarshal(body, &stats); err != nil {
		t.Fatalf("failed to decode stats: %v", err)
	}
	if stats.Statistics.TotalSpins != 2 {
		t.Fatalf("unexpected total spins: %d", stats.Statistics.TotalSpins)
	}
	if stats.Statistics.SectorCounts[roulette.SectorC] != 2 {
		t.Fatalf("unexpected sector counts: %#v", stats.Statistics.SectorCounts)
	}
	if len(stats.ConsecutiveSpins) != 2 || stats.ConsecutiveSpins[0] != 1 || stats.ConsecutiveSpins[1] != 2 {
		t.Fatalf("unexpected consecutive spins: %#v", stats.ConsecutiveSpins)
	}
}

func TestEditResultRecomputesSector(t *testing.T) {
	env := newTestEnvironment(t)
	token := env.issueToken(t, "user-1")

	response, body := env.doJSON(t, http.MethodPost, "/results", token, `{"number":"17"}`)
	if response.StatusCode != http.StatusCreated {
		t.Fatalf("unexpected submit status: %d (%s)", response.StatusCode, body)
	}
	var created roulette.Result
	if err := json.Unmarshal(body, &created); err != nil {
		t.Fatalf("failed to decode result: %v", err)
	}

	response, body = env.doJSON(t, http.MethodPatch, "/results/"+created.ID, token, `{"number":"5"}`)
	if response.StatusCode != http.StatusOK {
		t.Fatalf("unexpected edit status: %d (%s)", response.StatusCode, body)
	}
	var edited struct {
		Sector roulette.Sector `json:"sector"`
	}
	if err := json.Unmarshal(body, &edited); err != nil {
		t.Fatalf("failed to decode edit response: %v", err)
	}
	if edited.Sector != roulette.SectorD {
		t.Fatalf("expected sector D after edit, got %s", edited.Sector)
	}
}

func TestEditUnknownResultReturnsNotFound(t *testing.T) {
	env := newTestEnvironment(t)
	token := env.issueToken(t, "user-1")

	response, _ := env.doJSON(t, http.MethodPatch, "/results/missing", token, `{"number":"5"}`)
	if response.StatusCode != http.StatusNotFound {
		t.Fatalf("expected not found, got %d", response.StatusCode)
	}
}

func TestListRejectsMalformedScope(t *testing.T) {
	env := newTestEnvironment(t)
	token := env.issueToken(t, "user-1")

	for _, path := range []string{
		"/results?date=yesterday",
		"/results?start=2026-03-14",
		"/results?start=2026-03-14&end=2026-03-10",
		"/results?date=2026-03-14&start=2026-03-10&end=2026-03-14",
	} {
		response, _ := env.doJSON(t, http.MethodGet, path, token, "")
		if response.StatusCode != http.StatusBadRequest {
			t.Fatalf("expected bad request for %s, got %d", path, response.StatusCode)
		}
	}
}

func TestHealthEndpoint(t *testing.T) {
	env := newTestEnvironment(t)

	response, body := env.doJSON(t, http.MethodGet, "/health", "", "")
	if response.StatusCode != http.StatusOK {
		t.Fatalf("unexpected health status: %d (%s)", response.StatusCode, body)
	}
}

func TestLogoutReturnsNoContent(t *testing.T) {
	env := newTestEnvironment(t)

	response, _ := env.doJSON(t, http.MethodPost, "/auth/logout", "", "")
	if response.StatusCode != http.StatusNoContent {
		t.Fatalf("unexpected logout status: %d", response.StatusCode)
	}
}

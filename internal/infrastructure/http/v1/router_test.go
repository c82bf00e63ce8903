package v1

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tablequery/internal/core/apperror"
	"tablequery/internal/core/query"
	"tablequery/internal/domain/auth"
	"tablequery/internal/domain/filter"
	"tablequery/internal/infrastructure/http/v1/dto"
	"tablequery/internal/infrastructure/storage/postgres"
	"tablequery/internal/metadata"
	"tablequery/pkg/logger"
)

const testSchema = `
tables:
  - name: workers
    fields: [id, name, email, created_at]
    include:
      - "company|name as company"
    relations:
      company:
        table: companies
        cardinality: belongs_to
      notes:
        table: notes
        foreignKey: worker_id
        cardinality: has_many
  - name: companies
    fields: [name]
`

type fakeRepo struct {
	page      postgres.Page
	err       error
	query     query.Query
	paginated query.Query
}

func (r *fakeRepo) List(_ context.Context, q, paginated query.Query) (postgres.Page, error) {
	r.query, r.paginated = q, paginated
	return r.page, r.err
}

type fakePinger struct{ err error }

func (p fakePinger) Ping(context.Context) error { return p.err }

func testRegistry(t *testing.T) *metadata.Registry {
	t.Helper()
	defs, err := metadata.Parse([]byte(testSchema))
	require.NoError(t, err)
	r := metadata.NewRegistry()
	require.NoError(t, r.Replace(defs))
	return r
}

func testRouter(t *testing.T, cfg RouterConfig) http.Handler {
	t.Helper()
	if cfg.Registry == nil {
		cfg.Registry = testRegistry(t)
	}
	cfg.Logger = logger.NewNop()
	return NewRouter(cfg)
}

func do(t *testing.T, h http.Handler, method, target string, body any, header http.Header) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}

	req := httptest.NewRequest(method, target, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	for k, v := range header {
		req.Header[k] = v
	}

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) dto.ErrorResponse {
	t.Helper()
	var body dto.ErrorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	return body
}

func TestList(t *testing.T) {
	repo := &fakeRepo{page: postgres.Page{
		Items:      postgres.Rows{{"id": float64(1), "name": "ann"}},
		TotalCount: 12,
	}}
	h := testRouter(t, RouterConfig{Repo: repo})

	params := url.Values{}
	params.Add("filter", "email;like;%ann%")
	params.Set("orderBy", "name")
	params.Set("ascending", "true")
	params.Set("page", "2")
	params.Set("limit", "5")

	rec := do(t, h, http.MethodGet, "/api/v1/tables/workers?"+params.Encode(), nil, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.NotEmpty(t, rec.Header().Get("X-Request-ID"))

	var body dto.TableListResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, dto.PaginationResponse{Page: 2, Limit: 5, TotalItems: 12, TotalPages: 3}, body.Pagination)
	assert.Equal(t, "ann", body.Items[0]["name"])

	sql, args, err := repo.paginated.ToSql()
	require.NoError(t, err)
	assert.Equal(t,
		"SELECT workers.*, companies.name AS company FROM workers "+
			"LEFT JOIN companies ON workers.company_id = companies.id "+
			"WHERE workers.email LIKE $1 ORDER BY workers.name ASC LIMIT 5 OFFSET 5",
		sql)
	assert.Equal(t, []any{"%ann%"}, args)

	unpaginated, _, err := repo.query.ToSql()
	require.NoError(t, err)
	assert.NotContains(t, unpaginated, "LIMIT")
}

func TestList_OptionsBagAndOverrides(t *testing.T) {
	repo := &fakeRepo{}
	h := testRouter(t, RouterConfig{Repo: repo})

	bag, err := json.Marshal(map[string]any{
		"query":   "ann",
		"orderBy": "email",
		"filters": []string{"id;gt;3"},
	})
	require.NoError(t, err)

	params := url.Values{}
	params.Set("options", encodeStd(bag))
	params.Set("orderBy", "name")

	rec := do(t, h, http.MethodGet, "/api/v1/tables/workers?"+params.Encode(), nil, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	sql, args, err := repo.paginated.ToSql()
	require.NoError(t, err)
	assert.Contains(t, sql, "(workers.id::text ILIKE $1 OR workers.name::text ILIKE $2")
	assert.Contains(t, sql, "companies.name::text ILIKE $5)")
	assert.Contains(t, sql, "workers.id > $6")
	assert.Contains(t, sql, "ORDER BY workers.name DESC LIMIT 10 OFFSET 0")
	assert.Equal(t, "%ann%", args[0])
}

func TestList_EncodedFilters(t *testing.T) {
	repo := &fakeRepo{}
	h := testRouter(t, RouterConfig{Repo: repo})

	payload, err := filter.EncodePayload([]string{"name;in;ann,bob"}, true)
	require.NoError(t, err)

	params := url.Values{}
	params.Set("filters", payload)

	rec := do(t, h, http.MethodGet, "/api/v1/tables/workers?"+params.Encode(), nil, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	sql, args, err := repo.paginated.ToSql()
	require.NoError(t, err)
	assert.Contains(t, sql, "workers.name IN ($1,$2)")
	assert.Equal(t, []any{"ann", "bob"}, args)
}

func TestList_Errors(t *testing.T) {
	tests := []struct {
		name       string
		target     string
		repoErr    error
		wantStatus int
		wantCode   string
	}{
		{
			name:       "unknown table",
			target:     "/api/v1/tables/ghosts",
			wantStatus: http.StatusNotFound,
			wantCode:   apperror.CodeNotFound,
		},
		{
			name:       "bad filter",
			target:     "/api/v1/tables/workers?filter=" + url.QueryEscape("age;between;1"),
			wantStatus: http.StatusBadRequest,
			wantCode:   apperror.CodeInvalidFilterFormat,
		},
		{
			name:       "unknown relation",
			target:     "/api/v1/tables/workers?include=" + url.QueryEscape("boss|name"),
			wantStatus: http.StatusBadRequest,
			wantCode:   apperror.CodeUnknownRelation,
		},
		{
			name:       "malformed relation",
			target:     "/api/v1/tables/workers?include=company",
			wantStatus: http.StatusBadRequest,
			wantCode:   apperror.CodeMalformedRelationSpec,
		},
		{
			name:       "bad order column",
			target:     "/api/v1/tables/workers?orderBy=" + url.QueryEscape("name; drop"),
			wantStatus: http.StatusBadRequest,
			wantCode:   apperror.CodeValidation,
		},
		{
			name:       "bad ascending flag",
			target:     "/api/v1/tables/workers?ascending=maybe",
			wantStatus: http.StatusBadRequest,
			wantCode:   apperror.CodeValidation,
		},
		{
			name:       "page not a number",
			target:     "/api/v1/tables/workers?page=two",
			wantStatus: http.StatusBadRequest,
			wantCode:   apperror.CodeValidation,
		},
		{
			name:       "limit too large",
			target:     "/api/v1/tables/workers?limit=5000",
			wantStatus: http.StatusBadRequest,
			wantCode:   apperror.CodeValidation,
		},
		{
			name:       "page out of range",
			target:     "/api/v1/tables/workers?page=9223372036854775807&limit=1000",
			wantStatus: http.StatusBadRequest,
			wantCode:   apperror.CodeValidation,
		},
		{
			name:       "query timeout",
			target:     "/api/v1/tables/workers",
			repoErr:    apperror.NewTimeout(context.DeadlineExceeded),
			wantStatus: http.StatusGatewayTimeout,
			wantCode:   apperror.CodeTimeout,
		},
		{
			name:       "plain error is hidden",
			target:     "/api/v1/tables/workers",
			repoErr:    errors.New("connection reset"),
			wantStatus: http.StatusInternalServerError,
			wantCode:   apperror.CodeInternal,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := testRouter(t, RouterConfig{Repo: &fakeRepo{err: tt.repoErr}})

			rec := do(t, h, http.MethodGet, tt.target, nil, nil)
			assert.Equal(t, tt.wantStatus, rec.Code, rec.Body.String())

			body := decodeError(t, rec)
			assert.Equal(t, tt.wantCode, body.Code)
			assert.NotContains(t, rec.Body.String(), "connection reset")
		})
	}
}

func TestList_CompileOnly(t *testing.T) {
	h := testRouter(t, RouterConfig{})

	rec := do(t, h, http.MethodGet, "/api/v1/tables/workers", nil, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestCompile(t *testing.T) {
	h := testRouter(t, RouterConfig{})

	req := map[string]any{
		"options": map[string]any{
			"filters":   []string{"email;like;%ann%"},
			"orderBy":   "name",
			"ascending": "true",
			"page":      "2",
			"limit":     5,
		},
		"include": []string{"notes|count(*) as notes_count"},
	}

	rec := do(t, h, http.MethodPost, "/api/v1/tables/workers/compile", req, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var body dto.CompileResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))

	assert.Equal(t,
		"SELECT workers.*, companies.name AS company, "+
			"(SELECT count(*) FROM notes WHERE notes.worker_id = workers.id LIMIT 1) AS notes_count "+
			"FROM workers LEFT JOIN companies ON workers.company_id = companies.id "+
			"WHERE workers.email LIKE $1 ORDER BY workers.name ASC LIMIT 5 OFFSET 5",
		body.SQL)
	assert.Equal(t, []any{"%ann%"}, body.Args)
	assert.Contains(t, body.CountSQL, "SELECT COUNT(*) FROM (SELECT workers.*")
	assert.NotContains(t, body.CountSQL, "LIMIT 5")
	assert.Equal(t, []any{"%ann%"}, body.CountArgs)
	assert.Equal(t, 2, body.Page)
	assert.Equal(t, 5, body.Limit)
	assert.Empty(t, body.Diagnostics)
}

func TestCompile_EmptyBody(t *testing.T) {
	h := testRouter(t, RouterConfig{})

	rec := do(t, h, http.MethodPost, "/api/v1/tables/companies/compile", nil, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var body dto.CompileResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "SELECT * FROM companies ORDER BY companies.created_at DESC LIMIT 10 OFFSET 0", body.SQL)
	assert.Equal(t, []any{}, body.Args)
}

func TestCompile_InvalidBody(t *testing.T) {
	h := testRouter(t, RouterConfig{})

	rec := do(t, h, http.MethodPost, "/api/v1/tables/workers/compile",
		map[string]any{"options": map[string]any{"page": "first"}}, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, apperror.CodeValidation, decodeError(t, rec).Code)
}

func TestAuth(t *testing.T) {
	jwtSvc := auth.NewJWTService(auth.DefaultJWTConfig("secret"))
	h := testRouter(t, RouterConfig{JWTValidator: jwtSvc})

	companiesOnly, _, err := jwtSvc.GenerateAccessToken("reporting", []string{"companies"})
	require.NoError(t, err)

	bearer := func(token string) http.Header {
		return http.Header{"Authorization": []string{"Bearer " + token}}
	}

	tests := []struct {
		name       string
		target     string
		header     http.Header
		wantStatus int
	}{
		{name: "missing header", target: "/api/v1/tables/companies/compile", wantStatus: http.StatusUnauthorized},
		{name: "bad scheme", target: "/api/v1/tables/companies/compile", header: http.Header{"Authorization": []string{"Basic abc"}}, wantStatus: http.StatusUnauthorized},
		{name: "invalid token", target: "/api/v1/tables/companies/compile", header: bearer("nope"), wantStatus: http.StatusUnauthorized},
		{name: "table not granted", target: "/api/v1/tables/workers/compile", header: bearer(companiesOnly), wantStatus: http.StatusForbidden},
		{name: "granted", target: "/api/v1/tables/companies/compile", header: bearer(companiesOnly), wantStatus: http.StatusOK},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := do(t, h, http.MethodPost, tt.target, nil, tt.header)
			assert.Equal(t, tt.wantStatus, rec.Code, rec.Body.String())
		})
	}
}

func TestMetadataRoutes(t *testing.T) {
	h := testRouter(t, RouterConfig{})

	rec := do(t, h, http.MethodGet, "/api/v1/tables", nil, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var defs []metadata.TableDef
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &defs))
	require.Len(t, defs, 2)
	assert.Equal(t, "companies", defs[0].Name)

	rec = do(t, h, http.MethodGet, "/api/v1/tables/workers/schema", nil, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var def metadata.TableDef
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &def))
	assert.Equal(t, "id", def.PrimaryKey)
	assert.Contains(t, def.Relations, "notes")

	rec = do(t, h, http.MethodGet, "/api/v1/tables/ghosts/schema", nil, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestHealth(t *testing.T) {
	rec := do(t, testRouter(t, RouterConfig{DB: fakePinger{}}), http.MethodGet, "/health/ready", nil, nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = do(t, testRouter(t, RouterConfig{DB: fakePinger{err: errors.New("down")}}), http.MethodGet, "/health/ready", nil, nil)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Contains(t, rec.Body.String(), "unhealthy: down")

	rec = do(t, testRouter(t, RouterConfig{Registry: metadata.NewRegistry()}), http.MethodGet, "/health/ready", nil, nil)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)

	rec = do(t, testRouter(t, RouterConfig{}), http.MethodGet, "/health/live", nil, nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestRecovery(t *testing.T) {
	router := NewRouter(RouterConfig{Registry: testRegistry(t), Logger: logger.NewNop()})
	router.GET("/boom", func(c *gin.Context) { panic("boom") })

	rec := do(t, router, http.MethodGet, "/boom", nil, nil)
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Equal(t, apperror.CodeInternal, decodeError(t, rec).Code)
}

func encodeStd(raw []byte) string {
	return base64.StdEncoding.EncodeToString(raw)
}

package echoapi

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"reflect"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"

	"github.com/mafunzo/mafunzo/core"
	"github.com/mafunzo/mafunzo/core/enrollment"
	"github.com/mafunzo/mafunzo/core/program"
	"github.com/mafunzo/mafunzo/core/referral"
	emailsvc "github.com/mafunzo/mafunzo/services/email"
	inmemdb "github.com/mafunzo/mafunzo/storage/database/inmem"
	testutil "github.com/mafunzo/mafunzo/tests"
)

var (
	errMissingToken     = httpErr{Error: "missing or malformed jwt"}
	errPermissionDenied = httpErr{Error: "permission denied"}
)

type httpErr struct {
	Error string `json:"error"`
}

type httpTest struct {
	name     string
	method   string
	path     string
	body     []byte
	token    string
	wantCode int
	wantData []byte
}

type testServer struct {
	*Server

	conf           *core.Config
	referralSvc    *referral.Service
	referralRepo   referral.Repository
	programRepo    program.Repository
	enrollmentRepo enrollment.Repository
}

func newTestServer(t *testing.T) testServer {
	t.Helper()
	db, err := inmemdb.Open()
	if err != nil {
		t.Fatalf("newTestServer() failed: %v", err)
	}
	conf := testutil.NewConfig()
	logger := testutil.NewLogger()

	referralRepo := inmemdb.NewReferralRepository(db)
	programRepo := inmemdb.NewProgramRepository(db)
	enrollmentRepo := inmemdb.NewEnrollmentRepository(db)

	referralSvc := referral.NewService(conf, referralRepo, logger, nil)
	programSvc := program.NewService(programRepo)
	enrollmentSvc := enrollment.NewService(enrollmentRepo, programSvc, referralSvc, emailsvc.NewConsoleServiceMock(conf), logger)

	server := NewServer(ServerDeps{
		Conf:           conf,
		Logger:         logger,
		DisableReqLogs: true,
		ReferralSvc:    referralSvc,
		ProgramSvc:     programSvc,
		EnrollmentSvc:  enrollmentSvc,
	})
	return testServer{
		Server:         server,
		conf:           conf,
		referralSvc:    referralSvc,
		referralRepo:   referralRepo,
		programRepo:    programRepo,
		enrollmentRepo: enrollmentRepo,
	}
}

func (s testServer) do(req *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	s.ServeHTTP(rec, req)
	return rec
}

func newAuthRequest(method, path, token string, data ...[]byte) *http.Request {
	var body bytes.Buffer
	if len(data) > 0 {
		body.Write(data[0])
	}
	req := httptest.NewRequest(method, path, &body)
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	return req
}

func newRequest(method, path string, data ...[]byte) *http.Request {
	return newAuthRequest(method, path, "", data...)
}

func getToken(t *testing.T, conf *core.Config, subject string, isAdmin bool) string {
	t.Helper()
	token, err := GenerateToken(conf, GetClaims(conf, subject, "Test User", isAdmin))
	if err != nil {
		t.Fatalf("getToken() failed: %v", err)
	}
	return token
}

func marchallObj(t *testing.T, obj interface{}) []byte {
	t.Helper()
	data, err := json.Marshal(obj)
	if err != nil {
		t.Fatalf("marchallObj() failed: %v", err)
	}
	return data
}

func decodeJSON(t *testing.T, rec *httptest.ResponseRecorder, dest interface{}) {
	t.Helper()
	if err := json.Unmarshal(rec.Body.Bytes(), dest); err != nil {
		t.Fatalf("decoding response %q failed: %v", rec.Body.String(), err)
	}
}

func jsonBytesEqual(t *testing.T, b1, b2 []byte) (bool, error) {
	t.Helper()
	var j1, j2 interface{}
	if err := json.Unmarshal(b1, &j1); err != nil {
		return false, err
	}
	if err := json.Unmarshal(b2, &j2); err != nil {
		return false, err
	}
	if reflect.DeepEqual(j1, j2) {
		return true, nil
	}
	return assert.ObjectsAreEqual(j1, j2), nil
}

func checkCodeAndData(t *testing.T, tt httpTest, rec *httptest.ResponseRecorder) {
	t.Helper()
	if rec.Code != tt.wantCode {
		t.Errorf("failed! code = %v; wantCode %v", rec.Code, tt.wantCode)
	}
	if tt.wantData == nil {
		return
	}
	ok, err := jsonBytesEqual(t, rec.Body.Bytes(), tt.wantData)
	if err != nil {
		t.Errorf("jsonBytesEqual() failed to compare; err %v", err)
	}
	if !ok {
		t.Errorf("failed! data = %s; wantData %s", rec.Body.String(), tt.wantData)
	}
}

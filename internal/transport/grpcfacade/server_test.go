package grpcfacade

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/oklog/ulid/v2"

	"banchod/internal/bancho"
	"banchod/internal/channel"
	"banchod/internal/idgen"
	"banchod/internal/session"
	"banchod/internal/token"
	"banchod/internal/userrepo"
)

type stubRepo struct{}

func (stubRepo) GetUserByUsername(context.Context, string) (userrepo.User, error) {
	return userrepo.User{}, userrepo.ErrUserNotFound
}
func (stubRepo) AddFriend(context.Context, int32, int32) error    { return nil }
func (stubRepo) RemoveFriend(context.Context, int32, int32) error { return nil }
func (stubRepo) Friends(context.Context, int32) ([]int32, error)  { return nil, nil }
func (stubRepo) Close() error                                     { return nil }

func newTestServer(t *testing.T) *Server {
	t.Helper()
	signer, err := token.New()
	if err != nil {
		t.Fatalf("token.New: %v", err)
	}
	svc := bancho.New(stubRepo{}, signer, channel.NewRegistry(), nil, nil)
	return New(svc, nil)
}

func postJSON(t *testing.T, srv *Server, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	buf, err := json.Marshal(body)
	if err != nil {
		t.Fatalf("marshal request: %v", err)
	}
	req := httptest.NewRequest(http.MethodPost, path, bytes.NewReader(buf))
	req.Header.Set(echoContentType, echoApplicationJSON)
	rec := httptest.NewRecorder()
	srv.mux.ServeHTTP(rec, req)
	return rec
}

const (
	echoContentType     = "Content-Type"
	echoApplicationJSON = "application/json"
)

func TestCreateAndGetUserSession(t *testing.T) {
	srv := newTestServer(t)
	ids := idgen.NewSource()
	sessionID := ids.New(time.Now())

	createRec := postJSON(t, srv, "/rpc/CreateUserSession", createUserSessionReq{
		SessionID: sessionID.String(),
		UserID:    42,
		Username:  "rex",
	})
	if createRec.Code != http.StatusOK {
		t.Fatalf("create status: got %d, want %d, body=%s", createRec.Code, http.StatusOK, createRec.Body.String())
	}

	getRec := postJSON(t, srv, "/rpc/GetUserSession", queryOnlyReq{
		Query: queryDTO{Kind: "user_id", UserID: 42},
	})
	if getRec.Code != http.StatusOK {
		t.Fatalf("get status: got %d", getRec.Code)
	}
	var got struct {
		Session sessionDTO `json:"session"`
		OK      bool       `json:"ok"`
	}
	if err := json.Unmarshal(getRec.Body.Bytes(), &got); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if !got.OK || got.Session.Username != "rex" {
		t.Fatalf("unexpected response: %+v", got)
	}
}

func TestDeleteUserSessionNotFound(t *testing.T) {
	srv := newTestServer(t)

	rec := postJSON(t, srv, "/rpc/DeleteUserSession", queryOnlyReq{
		Query: queryDTO{Kind: "user_id", UserID: 999},
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("status: got %d", rec.Code)
	}
	var got struct {
		OK bool `json:"ok"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &got); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if got.OK {
		t.Fatalf("expected ok=false for a session that was never created")
	}
}

func TestCheckUserSessionExists(t *testing.T) {
	srv := newTestServer(t)
	ids := idgen.NewSource()
	sessionID := ids.New(time.Now())

	postJSON(t, srv, "/rpc/CreateUserSession", createUserSessionReq{
		SessionID: sessionID.String(),
		UserID:    7,
		Username:  "ayane",
	})

	rec := postJSON(t, srv, "/rpc/CheckUserSessionExists", queryOnlyReq{
		Query: queryDTO{Kind: "username", Username: "ayane"},
	})
	var got struct {
		Exists bool `json:"exists"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &got); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if !got.Exists {
		t.Fatalf("expected exists=true")
	}
}

func TestEnqueueAndDequeueBanchoPackets(t *testing.T) {
	srv := newTestServer(t)
	ids := idgen.NewSource()
	sessionID := ids.New(time.Now())

	postJSON(t, srv, "/rpc/CreateUserSession", createUserSessionReq{
		SessionID: sessionID.String(),
		UserID:    5,
		Username:  "five",
	})

	enqueueRec := postJSON(t, srv, "/rpc/EnqueueBanchoPackets", packetsReq{
		Query:   queryDTO{Kind: "user_id", UserID: 5},
		Packets: []string{"aGVsbG8="}, // "hello"
	})
	var enqueued struct {
		OK bool `json:"ok"`
	}
	if err := json.Unmarshal(enqueueRec.Body.Bytes(), &enqueued); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if !enqueued.OK {
		t.Fatalf("expected enqueue ok=true")
	}

	dequeueRec := postJSON(t, srv, "/rpc/DequeueBanchoPackets", queryOnlyReq{
		Query: queryDTO{Kind: "user_id", UserID: 5},
	})
	var dequeued struct {
		Packets string `json:"packets"`
		OK      bool   `json:"ok"`
	}
	if err := json.Unmarshal(dequeueRec.Body.Bytes(), &dequeued); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if !dequeued.OK {
		t.Fatalf("expected dequeue ok=true")
	}
}

func TestQueryDTOUnknownKindRejected(t *testing.T) {
	_, err := queryDTO{Kind: "bogus"}.toQuery()
	if err == nil {
		t.Fatalf("expected an error for an unrecognized query kind")
	}
}

func TestQueryDTOSessionID(t *testing.T) {
	id := ulid.Make()
	q, err := queryDTO{Kind: "session_id", SessionID: id.String()}.toQuery()
	if err != nil {
		t.Fatalf("toQuery: %v", err)
	}
	if q.Kind != session.BySessionID || q.SessionID != id {
		t.Fatalf("unexpected query: %+v", q)
	}
}

func TestGRPCHealthEndpointResponds(t *testing.T) {
	srv := newTestServer(t)

	req := httptest.NewRequest(http.MethodGet, "/grpc.health.v1.Health/Check", nil)
	rec := httptest.NewRecorder()
	srv.mux.ServeHTTP(rec, req)

	if rec.Code == http.StatusNotFound {
		t.Fatalf("expected the grpchealth handler to be mounted, got 404")
	}
}

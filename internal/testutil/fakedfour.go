package testutil

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"
)

const (
	fakeCSRFBefore = "csrf-anonymous"
	fakeCSRFAfter  = "csrf-authenticated"
	fakeSessionID  = "fake-session"
)

// FakeSnapshot is a snapshot held by FakeDfour
type FakeSnapshot struct {
	PK           string
	Title        string
	Topic        string
	BfsNumber    int
	Datafile     string
	Data         map[string]any
	LastModified time.Time
}

// FakeUpload records one accepted multipart upload
type FakeUpload struct {
	PK       string
	Filename string
	Content  []byte
}

// FakeCreate records one snapshot creation mutation
type FakeCreate struct {
	Title     string `json:"title"`
	Topic     string `json:"topic"`
	BfsNumber int    `json:"bfsNumber"`
	WSHash    string `json:"wshash"`
}

// FakeDfour is an in-process stand-in for a dfour instance. It serves the
// GraphQL queries, raw data files, form login and snapshot upload used by
// the client.
type FakeDfour struct {
	*httptest.Server

	Username string
	Password string

	mu               sync.Mutex
	rejectUploads    bool
	omitLastModified bool
	workspaces map[string][]*FakeSnapshot
	uploads    []FakeUpload
	creates    []FakeCreate
	queries    []string
	nextPK     int
}

// NewFakeDfour starts a fake instance accepting username/password. It is
// closed when the test ends.
func NewFakeDfour(t testing.TB, username, password string) *FakeDfour {
	t.Helper()

	f := &FakeDfour{
		Username:   username,
		Password:   password,
		workspaces: make(map[string][]*FakeSnapshot),
		nextPK:     100,
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/graphql/", f.handleGraphQL)
	mux.HandleFunc("/media/", f.handleMedia)
	mux.HandleFunc("/account/login/", f.handleLogin)
	mux.HandleFunc("/api/v1/snapshots/", f.handleUpload)

	f.Server = httptest.NewServer(mux)
	t.Cleanup(f.Close)
	return f
}

// AddWorkspace registers an empty workspace
func (f *FakeDfour) AddWorkspace(ws string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.workspaces[ws]; !ok {
		f.workspaces[ws] = []*FakeSnapshot{}
	}
}

// AddSnapshot adds a snapshot to a workspace, creating the workspace if
// needed. Missing PK and Datafile are generated.
func (f *FakeDfour) AddSnapshot(ws string, s FakeSnapshot) *FakeSnapshot {
	f.mu.Lock()
	defer f.mu.Unlock()

	if s.PK == "" {
		s.PK = f.allocPK()
	}
	if s.Datafile == "" {
		s.Datafile = fmt.Sprintf("snapshots/%s.json", s.PK)
	}
	if s.LastModified.IsZero() {
		s.LastModified = time.Now().UTC().Truncate(time.Second)
	}
	snap := &s
	f.workspaces[ws] = append(f.workspaces[ws], snap)
	return snap
}

// RejectUploads makes every following upload fail with 403
func (f *FakeDfour) RejectUploads() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.rejectUploads = true
}

// OmitLastModified drops the Last-Modified header from media responses
func (f *FakeDfour) OmitLastModified() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.omitLastModified = true
}

// Snapshot returns a copy of the snapshot with the given pk
func (f *FakeDfour) Snapshot(pk string) (FakeSnapshot, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	s := f.findByPK(pk)
	if s == nil {
		return FakeSnapshot{}, false
	}
	return *s, true
}

// Snapshots returns copies of all snapshots in a workspace
func (f *FakeDfour) Snapshots(ws string) []FakeSnapshot {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]FakeSnapshot, 0, len(f.workspaces[ws]))
	for _, s := range f.workspaces[ws] {
		out = append(out, *s)
	}
	return out
}

// Uploads returns every accepted upload in order
func (f *FakeDfour) Uploads() []FakeUpload {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]FakeUpload(nil), f.uploads...)
}

// Creates returns every snapshot creation in order
func (f *FakeDfour) Creates() []FakeCreate {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]FakeCreate(nil), f.creates...)
}

// Queries returns the operation names of all GraphQL requests received
func (f *FakeDfour) Queries() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.queries...)
}

func (f *FakeDfour) allocPK() string {
	f.nextPK++
	return strconv.Itoa(f.nextPK)
}

func (f *FakeDfour) findByPK(pk string) *FakeSnapshot {
	for _, snaps := range f.workspaces {
		for _, s := range snaps {
			if s.PK == pk {
				return s
			}
		}
	}
	return nil
}

func decodeGlobalID(id, typeName string) (string, bool) {
	raw, err := base64.StdEncoding.DecodeString(id)
	if err != nil {
		return "", false
	}
	return strings.CutPrefix(string(raw), typeName+":")
}

func (f *FakeDfour) authenticated(r *http.Request) bool {
	ck, err := r.Cookie("sessionid")
	return err == nil && ck.Value == fakeSessionID
}

func (f *FakeDfour) csrfValid(r *http.Request) bool {
	ck, err := r.Cookie("csrftoken")
	return err == nil && ck.Value != "" && r.Header.Get("X-CSRFToken") == ck.Value
}

type graphqlRequest struct {
	Query     string          `json:"query"`
	Variables json.RawMessage `json:"variables"`
}

func (f *FakeDfour) handleGraphQL(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req graphqlRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	var data any
	var err error
	switch {
	case strings.Contains(req.Query, "snapshotsInWorkspace"):
		f.queries = append(f.queries, "snapshotsInWorkspace")
		data, err = f.workspaceQuery(req.Variables, true)
	case strings.Contains(req.Query, "getsnapshotsinworkspace"):
		f.queries = append(f.queries, "getsnapshotsinworkspace")
		data, err = f.workspaceQuery(req.Variables, false)
	case strings.Contains(req.Query, "getsnapshot"):
		f.queries = append(f.queries, "getsnapshot")
		data, err = f.snapshotQuery(req.Variables)
	case strings.Contains(req.Query, "updatesnapshot"):
		f.queries = append(f.queries, "updatesnapshot")
		if !f.authenticated(r) || !f.csrfValid(r) {
			err = fmt.Errorf("you do not have permission to perform this action")
			break
		}
		data, err = f.createSnapshot(req.Variables)
	default:
		err = fmt.Errorf("unknown operation")
	}

	w.Header().Set("Content-Type", "application/json")
	if err != nil {
		_ = json.NewEncoder(w).Encode(map[string]any{
			"data":   nil,
			"errors": []map[string]any{{"message": err.Error()}},
		})
		return
	}
	_ = json.NewEncoder(w).Encode(map[string]any{"data": data})
}

func (f *FakeDfour) workspaceQuery(vars json.RawMessage, full bool) (any, error) {
	var v struct {
		WSHash string `json:"wshash"`
	}
	if err := json.Unmarshal(vars, &v); err != nil {
		return nil, err
	}
	ws, ok := decodeGlobalID(v.WSHash, "WorkspaceNode")
	if !ok {
		return nil, fmt.Errorf("invalid workspace id %q", v.WSHash)
	}

	snaps, exists := f.workspaces[ws]
	if !exists {
		return map[string]any{"workspace": nil}, nil
	}

	list := make([]map[string]any, 0, len(snaps))
	for _, s := range snaps {
		entry := map[string]any{
			"pk":    s.PK,
			"title": s.Title,
		}
		if full {
			entry["topic"] = s.Topic
			entry["datafile"] = s.Datafile
			entry["data"] = s.Data
			if s.BfsNumber != 0 {
				entry["municipality"] = map[string]any{"bfsNumber": s.BfsNumber}
			} else {
				entry["municipality"] = nil
			}
		}
		list = append(list, entry)
	}
	return map[string]any{"workspace": map[string]any{
		"title":       ws,
		"description": "",
		"snapshots":   list,
	}}, nil
}

func (f *FakeDfour) snapshotQuery(vars json.RawMessage) (any, error) {
	var v struct {
		Hash string `json:"hash"`
	}
	if err := json.Unmarshal(vars, &v); err != nil {
		return nil, err
	}
	pk, ok := decodeGlobalID(v.Hash, "SnapshotNode")
	if !ok {
		return nil, fmt.Errorf("invalid snapshot id %q", v.Hash)
	}

	s := f.findByPK(pk)
	if s == nil {
		return map[string]any{"snapshot": nil}, nil
	}
	// single snapshot data is served as a JSON string
	raw, err := json.Marshal(s.Data)
	if err != nil {
		return nil, err
	}
	return map[string]any{"snapshot": map[string]any{"data": string(raw)}}, nil
}

func (f *FakeDfour) createSnapshot(vars json.RawMessage) (any, error) {
	var v struct {
		Data FakeCreate `json:"data"`
	}
	if err := json.Unmarshal(vars, &v); err != nil {
		return nil, err
	}
	in := v.Data
	f.creates = append(f.creates, in)

	ws, ok := decodeGlobalID(in.WSHash, "SnapshotNode")
	if !ok {
		return nil, fmt.Errorf("invalid workspace reference %q", in.WSHash)
	}
	if _, exists := f.workspaces[ws]; !exists {
		return nil, fmt.Errorf("workspace %q does not exist", ws)
	}

	pk := f.allocPK()
	f.workspaces[ws] = append(f.workspaces[ws], &FakeSnapshot{
		PK:           pk,
		Title:        in.Title,
		Topic:        in.Topic,
		BfsNumber:    in.BfsNumber,
		Datafile:     fmt.Sprintf("snapshots/%s.json", pk),
		Data:         map[string]any{},
		LastModified: time.Now().UTC().Truncate(time.Second),
	})

	n, _ := strconv.Atoi(pk)
	return map[string]any{"snapshotmutation": map[string]any{
		"snapshot": map[string]any{"pk": n},
	}}, nil
}

func (f *FakeDfour) handleMedia(w http.ResponseWriter, r *http.Request) {
	datafile := strings.TrimPrefix(r.URL.Path, "/media/")

	f.mu.Lock()
	var found *FakeSnapshot
	for _, snaps := range f.workspaces {
		for _, s := range snaps {
			if s.Datafile == datafile {
				found = s
			}
		}
	}
	var snap FakeSnapshot
	if found != nil {
		snap = *found
	}
	omit := f.omitLastModified
	f.mu.Unlock()

	if found == nil {
		http.NotFound(w, r)
		return
	}
	if !omit {
		w.Header().Set("Last-Modified", snap.LastModified.UTC().Format(http.TimeFormat))
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(snap.Data)
}

func (f *FakeDfour) handleLogin(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		http.SetCookie(w, &http.Cookie{Name: "csrftoken", Value: fakeCSRFBefore, Path: "/"})
		_, _ = io.WriteString(w, "<form method=post></form>")
	case http.MethodPost:
		if err := r.ParseForm(); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		ck, err := r.Cookie("csrftoken")
		if err != nil || ck.Value != r.PostForm.Get("csrfmiddlewaretoken") {
			http.Error(w, "CSRF verification failed", http.StatusForbidden)
			return
		}
		if r.PostForm.Get("username") != f.Username || r.PostForm.Get("password") != f.Password {
			// the form is shown again without a session
			_, _ = io.WriteString(w, "<form method=post>invalid login</form>")
			return
		}
		http.SetCookie(w, &http.Cookie{Name: "csrftoken", Value: fakeCSRFAfter, Path: "/"})
		http.SetCookie(w, &http.Cookie{Name: "sessionid", Value: fakeSessionID, Path: "/", HttpOnly: true})
		_, _ = io.WriteString(w, "welcome")
	default:
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
	}
}

func (f *FakeDfour) handleUpload(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPatch {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if !f.authenticated(r) {
		http.Error(w, "authentication required", http.StatusUnauthorized)
		return
	}
	if !f.csrfValid(r) {
		http.Error(w, "CSRF verification failed", http.StatusForbidden)
		return
	}

	pk := strings.Trim(strings.TrimPrefix(r.URL.Path, "/api/v1/snapshots/"), "/")

	f.mu.Lock()
	reject := f.rejectUploads
	f.mu.Unlock()
	if reject {
		http.Error(w, "upload rejected", http.StatusForbidden)
		return
	}

	file, header, err := r.FormFile("data_file")
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	defer func() {
		_ = file.Close()
	}()
	content, err := io.ReadAll(file)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	var data map[string]any
	if err := json.Unmarshal(content, &data); err != nil {
		http.Error(w, "invalid json", http.StatusBadRequest)
		return
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	s := f.findByPK(pk)
	if s == nil {
		http.NotFound(w, r)
		return
	}
	s.Data = data
	s.LastModified = time.Now().UTC().Truncate(time.Second)
	f.uploads = append(f.uploads, FakeUpload{PK: pk, Filename: header.Filename, Content: content})

	w.Header().Set("Content-Type", "application/json")
	_, _ = fmt.Fprintf(w, `{"pk": %q}`, pk)
}

package sync

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/schaermu/dfoursync/internal/datapackage"
	"github.com/schaermu/dfoursync/internal/dfour"
	"github.com/schaermu/dfoursync/internal/domain"
)

func TestRemoteReader_Read(t *testing.T) {
	svc := newMockService()
	modified := time.Date(2024, 3, 2, 8, 30, 0, 0, time.UTC)
	svc.addRemote(t, "12", pkgFor("a", "A", 1), "energy", 261, modified)
	svc.addRemote(t, "13", datapackage.Descriptor{"title": "Bern Nord"}, "water", 351, t1)

	snaps, err := NewRemoteReader(svc, testLogger()).Read(context.Background(), testWorkspace)
	require.NoError(t, err)
	require.Len(t, snaps, 2)

	a := snaps["a"]
	assert.Equal(t, "A", a.Title)
	assert.Equal(t, "energy", a.Topic)
	assert.Equal(t, 261, a.BfsNumber)
	assert.Equal(t, "12", a.PK)
	assert.Equal(t, testEndpoint+"/media/snapshots/12.json", a.Location)
	assert.True(t, a.LastModified.Equal(modified))
	assert.Equal(t, "a", a.Content["name"])

	hash, err := datapackage.Hash(pkgFor("a", "A", 1))
	require.NoError(t, err)
	assert.Equal(t, hash, a.Hash)

	b, ok := snaps["bern-nord"]
	require.True(t, ok, "name falls back to the slugified title")
	assert.Equal(t, "13", b.PK)
}

func TestRemoteReader_TitleFallsBackToData(t *testing.T) {
	svc := newMockService()
	svc.workspace.Snapshots = []dfour.RemoteSnapshot{{
		PK:       "5",
		Datafile: "/snapshots/5.json",
		Data:     dfour.RawData(`"{\"name\": \"n\", \"title\": \"From Data\"}"`),
	}}

	snaps, err := NewRemoteReader(svc, testLogger()).Read(context.Background(), testWorkspace)
	require.NoError(t, err)
	assert.Equal(t, "From Data", snaps["n"].Title)
	assert.Equal(t, 0, snaps["n"].BfsNumber)
	assert.Equal(t, testEndpoint+"/media/snapshots/5.json", snaps["n"].Location)
}

func TestRemoteReader_Errors(t *testing.T) {
	queryFailed := domain.RemoteQueryError(errors.New("boom"), "query failed")

	tests := []struct {
		name    string
		setup   func(t *testing.T, svc *mockService)
		wantErr error
		wantMsg string
	}{
		{
			name: "workspace query fails",
			setup: func(t *testing.T, svc *mockService) {
				svc.workspaceErr = queryFailed
			},
			wantErr: domain.ErrRemoteQuery,
			wantMsg: "boom",
		},
		{
			name: "last modified fails",
			setup: func(t *testing.T, svc *mockService) {
				svc.addRemote(t, "1", pkgFor("a", "A", 1), "t", 1, t1)
				svc.modifiedErr = queryFailed
			},
			wantErr: domain.ErrRemoteQuery,
			wantMsg: "boom",
		},
		{
			name: "malformed data",
			setup: func(t *testing.T, svc *mockService) {
				svc.workspace.Snapshots = []dfour.RemoteSnapshot{{PK: "9", Data: dfour.RawData(`"{not json"`)}}
			},
			wantErr: domain.ErrRemoteQuery,
			wantMsg: "pk 9",
		},
		{
			name: "missing data",
			setup: func(t *testing.T, svc *mockService) {
				svc.workspace.Snapshots = []dfour.RemoteSnapshot{{PK: "9"}}
			},
			wantErr: domain.ErrRemoteQuery,
			wantMsg: "pk 9",
		},
		{
			name: "unnamed data",
			setup: func(t *testing.T, svc *mockService) {
				svc.workspace.Snapshots = []dfour.RemoteSnapshot{{PK: "9", Data: dfour.RawData(`{"resources": []}`)}}
			},
			wantErr: domain.ErrRemoteQuery,
			wantMsg: "pk 9",
		},
		{
			name: "name escapes the folder",
			setup: func(t *testing.T, svc *mockService) {
				svc.addRemote(t, "7", pkgFor("../../escaped", "Escaped", 1), "t", 1, t1)
			},
			wantErr: domain.ErrRemoteQuery,
			wantMsg: "pk 7 on " + testEndpoint,
		},
		{
			name: "name with a subdirectory",
			setup: func(t *testing.T, svc *mockService) {
				svc.addRemote(t, "8", pkgFor("sub/nested", "Nested", 1), "t", 1, t1)
			},
			wantErr: domain.ErrRemoteQuery,
			wantMsg: "path separator",
		},
		{
			name: "hidden name",
			setup: func(t *testing.T, svc *mockService) {
				svc.addRemote(t, "9", pkgFor(".dfour", "Hidden", 1), "t", 1, t1)
			},
			wantErr: domain.ErrRemoteQuery,
			wantMsg: "pk 9",
		},
		{
			name: "duplicate names",
			setup: func(t *testing.T, svc *mockService) {
				svc.addRemote(t, "1", pkgFor("a", "A", 1), "t", 1, t1)
				svc.addRemote(t, "2", pkgFor("a", "A again", 2), "t", 1, t1)
			},
			wantErr: domain.ErrRemoteQuery,
			wantMsg: `"a" is used by both pk 1 and pk 2`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := newMockService()
			tt.setup(t, svc)

			_, err := NewRemoteReader(svc, testLogger()).Read(context.Background(), testWorkspace)
			require.Error(t, err)
			assert.ErrorIs(t, err, tt.wantErr)
			assert.Contains(t, err.Error(), tt.wantMsg)
		})
	}
}

package sync

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/fatih/color"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"github.com/schaermu/dfoursync/internal/config"
	"github.com/schaermu/dfoursync/internal/domain"
)

func TestMain(m *testing.M) {
	color.NoColor = true
	os.Exit(m.Run())
}

func sampleReport() Report {
	localDate := time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)
	remoteDate := time.Date(2024, 2, 3, 4, 5, 6, 0, time.UTC)
	return Report{
		Snapshots: 3,
		Changes: []domain.Change{
			{Name: "a", Kind: domain.KindUpload, Source: "/data/packages/a.json", Topic: "energy", BfsNumber: 261, LocalDate: &localDate},
			{Name: "b", Kind: domain.KindDownloadReplace, Source: "12", Target: "/data/packages/b.json", Topic: "water", BfsNumber: 230, LocalDate: &localDate, RemoteDate: &remoteDate},
		},
		Conflicts: []domain.Conflict{
			{Name: "c", LocalPath: "/data/packages/c.json", RemotePK: "14", LocalHash: "l", RemoteHash: "r", Modified: localDate},
		},
	}
}

func TestRender_Text(t *testing.T) {
	var out bytes.Buffer
	require.NoError(t, Render(&out, config.OutputText, sampleReport()))

	lines := strings.Split(strings.TrimRight(out.String(), "\n"), "\n")
	require.Len(t, lines, 4)
	assert.Equal(t, "3 snapshot(s) found", lines[0])
	assert.Equal(t, []string{"upload", "a", "/data/packages/a.json", "->", "(new)"}, strings.Fields(lines[1]))
	assert.Equal(t, []string{"download-replace", "b", "12", "->", "/data/packages/b.json"}, strings.Fields(lines[2]))
	assert.True(t, strings.HasPrefix(lines[3], "conflict "))
	assert.Contains(t, lines[3], "2024-01-02T03:04:05Z")
	assert.Contains(t, lines[3], "/data/packages/c.json and pk 14")
	assert.NotContains(t, out.String(), "up to date")
}

func TestRender_TextNothingToDo(t *testing.T) {
	var out bytes.Buffer
	require.NoError(t, Render(&out, config.OutputText, Report{Snapshots: 2}))
	assert.Equal(t, "2 snapshot(s) found\nEverything is up to date.\n", out.String())
}

func TestRender_TextPreview(t *testing.T) {
	r := sampleReport()
	r.Previews = map[string]string{"b": " {\n-  \"rows\": 1\n+  \"rows\": 2\n }\n"}

	var out bytes.Buffer
	require.NoError(t, Render(&out, config.OutputText, r))
	assert.Contains(t, out.String(), "/data/packages/b.json\n     {\n    -  \"rows\": 1\n    +  \"rows\": 2\n     }\n")
}

func TestRender_JSON(t *testing.T) {
	t.Run("empty lists", func(t *testing.T) {
		var out bytes.Buffer
		require.NoError(t, Render(&out, config.OutputJSON, Report{Snapshots: 4}))
		assert.JSONEq(t, `{"changes": [], "conflicts": []}`, out.String())
	})

	t.Run("changes", func(t *testing.T) {
		var out bytes.Buffer
		require.NoError(t, Render(&out, config.OutputJSON, sampleReport()))
		assert.JSONEq(t, `{
			"changes": [
				{"name": "a", "type": "upload", "source": "/data/packages/a.json", "target": "", "topic": "energy",
				 "bfsNumber": 261, "local_date": "2024-01-02T03:04:05Z", "remote_date": null},
				{"name": "b", "type": "download-replace", "source": "12", "target": "/data/packages/b.json", "topic": "water",
				 "bfsNumber": 230, "local_date": "2024-01-02T03:04:05Z", "remote_date": "2024-02-03T04:05:06Z"}
			],
			"conflicts": [
				{"name": "c", "local_path": "/data/packages/c.json", "remote_pk": "14", "local_hash": "l",
				 "remote_hash": "r", "modified": "2024-01-02T03:04:05Z"}
			]
		}`, out.String())
	})
}

func TestRender_YAML(t *testing.T) {
	var out bytes.Buffer
	require.NoError(t, Render(&out, config.OutputYAML, sampleReport()))

	var decoded struct {
		Changes []struct {
			Name      string `yaml:"name"`
			Type      string `yaml:"type"`
			Target    string `yaml:"target"`
			BfsNumber int    `yaml:"bfsNumber"`
		} `yaml:"changes"`
		Conflicts []struct {
			Name     string `yaml:"name"`
			RemotePK string `yaml:"remote_pk"`
		} `yaml:"conflicts"`
	}
	require.NoError(t, yaml.Unmarshal(out.Bytes(), &decoded))
	require.Len(t, decoded.Changes, 2)
	assert.Equal(t, "upload", decoded.Changes[0].Type)
	assert.Equal(t, "", decoded.Changes[0].Target)
	assert.Equal(t, "b", decoded.Changes[1].Name)
	assert.Equal(t, 230, decoded.Changes[1].BfsNumber)
	require.Len(t, decoded.Conflicts, 1)
	assert.Equal(t, "14", decoded.Conflicts[0].RemotePK)
}

func TestRender_CSV(t *testing.T) {
	var out bytes.Buffer
	require.NoError(t, Render(&out, config.OutputCSV, sampleReport()))

	records, err := csv.NewReader(&out).ReadAll()
	require.NoError(t, err)
	assert.Equal(t, [][]string{
		{"name", "type", "source", "target", "topic", "bfsNumber", "local_date", "remote_date"},
		{"a", "upload", "/data/packages/a.json", "", "energy", "261", "2024-01-02T03:04:05Z", ""},
		{"b", "download-replace", "12", "/data/packages/b.json", "water", "230", "2024-01-02T03:04:05Z", "2024-02-03T04:05:06Z"},
	}, records)
}

func TestContentDiff(t *testing.T) {
	t.Run("small change", func(t *testing.T) {
		diff, err := ContentDiff(
			map[string]any{"name": "a", "rows": 1},
			map[string]any{"name": "a", "rows": 2},
		)
		require.NoError(t, err)
		assert.Equal(t, " {\n     \"name\": \"a\",\n-    \"rows\": 1\n+    \"rows\": 2\n }\n", diff)
	})

	t.Run("unchanged runs are elided", func(t *testing.T) {
		from := map[string]any{}
		for i := 1; i <= 10; i++ {
			from[fmt.Sprintf("k%02d", i)] = i
		}
		to := map[string]any{}
		for k, v := range from {
			to[k] = v
		}
		to["k10"] = 100

		diff, err := ContentDiff(from, to)
		require.NoError(t, err)
		assert.Equal(t, " ...\n     \"k07\": 7,\n     \"k08\": 8,\n     \"k09\": 9,\n-    \"k10\": 10\n+    \"k10\": 100\n }\n", diff)
	})

	t.Run("identical content", func(t *testing.T) {
		doc := map[string]any{"a": 1, "b": 2, "c": 3, "d": 4}
		diff, err := ContentDiff(doc, doc)
		require.NoError(t, err)
		assert.Equal(t, " ...\n", diff)
	})

	t.Run("unencodable content", func(t *testing.T) {
		_, err := ContentDiff(map[string]any{"f": func() {}}, map[string]any{})
		assert.Error(t, err)
	})
}

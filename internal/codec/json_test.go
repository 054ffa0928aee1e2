package codec

import (
	"bytes"
	"errors"
	"strings"
	"testing"

	"hydrovalley/internal/domain"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/require"
)

const scenarioJSON = `{"reservoirs":[{"name":"R1","minVolume":0,"maxVolume":100}],"units":[{"name":"T1","kind":"turbine","upstreamReservoir":"R1","downstreamReservoir":null}]}`

func TestParseValleyScenario(t *testing.T) {
	model, err := ParseValley(scenarioJSON)
	require.NoError(t, err)
	require.Len(t, model.Reservoirs, 1)
	require.Len(t, model.Units, 1)

	r := model.Reservoirs[0]
	require.Equal(t, "R1", r.Name)
	require.Equal(t, domain.Scalar(0), r.MinVolume)
	require.Equal(t, domain.Scalar(100), r.MaxVolume)
	require.Nil(t, r.Cost)

	u := model.Units[0]
	require.Equal(t, domain.KindTurbine, u.Kind)
	require.Equal(t, "R1", u.Upstream)
	require.Empty(t, u.Downstream)

	graph := domain.BuildGraph(model)
	require.Len(t, graph.Nodes, 2)
	require.Len(t, graph.Edges, 1)
	require.Equal(t, "R1", graph.Edges[0].Source)
	require.Equal(t, "T1", graph.Edges[0].Target)
}

func TestParseValleySyntaxErrors(t *testing.T) {
	tests := []struct {
		name  string
		input string
	}{
		{"empty", ""},
		{"whitespace", "   \n"},
		{"truncated", `{"reservoirs": [`},
		{"bad token", `{"reservoirs": [}`},
		{"trailing data", `{} {}`},
		{"single quotes", `{'reservoirs': []}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			model, err := ParseValley(tt.input)
			if model != nil {
				t.Error("expected no partial model")
			}
			if !errors.Is(err, ErrSyntax) {
				t.Fatalf("expected syntax error, got %v", err)
			}
			if errors.Is(err, ErrSchema) {
				t.Error("syntax error must not match ErrSchema")
			}
		})
	}
}

func TestParseValleySyntaxPosition(t *testing.T) {
	_, err := ParseValley("{\n  \"reservoirs\": [,]\n}")
	var perr *ParseError
	require.ErrorAs(t, err, &perr)
	require.Equal(t, KindSyntax, perr.Kind)
	require.Equal(t, 2, perr.Line)
}

func TestParseValleySchemaErrors(t *testing.T) {
	tests := []struct {
		name   string
		input  string
		entity string
	}{
		{"top level array", `[]`, ""},
		{"collection not array", `{"reservoirs": {}}`, "reservoirs"},
		{"entity not object", `{"junctions": ["J1"]}`, "junctions[0]"},
		{"missing name", `{"junctions": [{}]}`, "junctions[0]"},
		{"empty name", `{"junctions": [{"name": " "}]}`, `junctions[0] " "`},
		{"numeric name", `{"junctions": [{"name": 3}]}`, "junctions[0]"},
		{"missing minVolume", `{"reservoirs": [{"name": "R1", "maxVolume": 1}]}`, `reservoirs[0] "R1"`},
		{"missing maxVolume", `{"reservoirs": [{"name": "R1", "minVolume": 1}]}`, `reservoirs[0] "R1"`},
		{"bad volume", `{"reservoirs": [{"name": "R1", "minVolume": "low", "maxVolume": 1}]}`, `reservoirs[0] "R1"`},
		{"missing unit kind", `{"units": [{"name": "T1"}]}`, `units[0] "T1"`},
		{"unknown unit kind", `{"units": [{"name": "T1", "kind": "windmill"}]}`, `units[0] "T1"`},
		{"reservoir with other kind", `{"reservoirs": [{"name": "R1", "kind": "pump", "minVolume": 0, "maxVolume": 1}]}`, `reservoirs[0] "R1"`},
		{"numeric reference", `{"units": [{"name": "T1", "kind": "turbine", "upstreamReservoir": 4}]}`, `units[0] "T1"`},
		{"bad power levels", `{"units": [{"name": "T1", "kind": "pump", "powerLevels": [1, "x"]}]}`, `units[0] "T1"`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseValley(tt.input)
			require.ErrorIs(t, err, ErrSchema)

			var perr *ParseError
			require.ErrorAs(t, err, &perr)
			if tt.entity != "" {
				require.Contains(t, perr.Entities, tt.entity)
			}
		})
	}
}

func TestParseValleyDuplicateNames(t *testing.T) {
	t.Run("two reservoirs", func(t *testing.T) {
		_, err := ParseValley(`{"reservoirs": [
			{"name": "A", "minVolume": 0, "maxVolume": 1},
			{"name": "A", "minVolume": 0, "maxVolume": 2}
		]}`)
		require.ErrorIs(t, err, ErrSchema)

		var perr *ParseError
		require.ErrorAs(t, err, &perr)
		require.Equal(t, []string{`reservoirs[0] "A"`, `reservoirs[1] "A"`}, perr.Entities)
		require.Contains(t, err.Error(), `duplicate entity name "A"`)
	})

	t.Run("across collections", func(t *testing.T) {
		_, err := ParseValley(`{
			"reservoirs": [{"name": "X", "minVolume": 0, "maxVolume": 1}],
			"junctions": [{"name": "X"}]
		}`)
		var perr *ParseError
		require.ErrorAs(t, err, &perr)
		require.Equal(t, []string{`reservoirs[0] "X"`, `junctions[0] "X"`}, perr.Entities)
	})
}

func TestParseValleyDanglingReference(t *testing.T) {
	input := `{"units": [{"name": "T1", "kind": "turbine", "upstreamReservoir": "Ghost"}]}`

	model, err := ParseValley(input)
	require.NoError(t, err)

	conns := domain.NewEntityIndex(model).ConnectionsOf("T1")
	require.Len(t, conns, 1)
	require.True(t, conns[0].Dangling)
	require.Equal(t, "Ghost", conns[0].Other)

	_, err = ParseStrict(input)
	require.ErrorIs(t, err, ErrSchema)
	require.Contains(t, err.Error(), `unit "T1" upstream reference "Ghost"`)
}

func TestParseValleyLegacyShapes(t *testing.T) {
	model, err := ParseValley(`{
		"reservoirs": [{"name": "R1", "min_volume": 0, "max_volume": [10, 20], "cost": 3}],
		"turbines": [{"name": "T1", "reservoir": "R1", "power_max": 5}],
		"pumps": [{"name": "P1", "upstream_reservoir": "J1", "downstream_reservoir": "R1", "power_levels": [1, 2]}],
		"units": [{"name": "U0", "kind": "Turbine"}],
		"junctions": [{"name": "J1"}],
		"horizon": 24
	}`)
	require.NoError(t, err)

	require.Equal(t, domain.SeriesOf(10, 20), model.Reservoirs[0].MaxVolume)
	require.Equal(t, domain.Scalar(3), *model.Reservoirs[0].Cost)

	var names []string
	for _, u := range model.Units {
		names = append(names, u.Name)
	}
	require.Equal(t, []string{"U0", "T1", "P1"}, names)

	require.Equal(t, domain.KindTurbine, model.Units[0].Kind)
	require.Equal(t, "R1", model.Units[1].Upstream)
	require.Equal(t, domain.Scalar(5), *model.Units[1].PowerMax)
	require.Equal(t, domain.KindPump, model.Units[2].Kind)
	require.Equal(t, []float64{1, 2}, model.Units[2].PowerLevels)
	require.Contains(t, model.Extra, "horizon")
}

func TestCanonicalRoundTrip(t *testing.T) {
	inputs := []string{
		scenarioJSON,
		`{"turbines": [{"name": "T1", "reservoir": "R1"}], "reservoirs": [{"name": "R1", "min_volume": 0, "max_volume": 9, "tag": {"b": 1, "a": 2}}]}`,
		`{"units": [{"name": "P", "kind": "pump", "upstreamReservoir": "Ghost", "powerMin": [1,2], "powerMax": 3}], "junctions": [{"name": "J"}]}`,
	}
	for _, input := range inputs {
		first, err := ParseValley(input)
		require.NoError(t, err)

		canonical, err := Canonical(first)
		require.NoError(t, err)

		second, err := ParseValley(string(canonical))
		require.NoError(t, err)

		a, b := domain.NewEntityIndex(first), domain.NewEntityIndex(second)
		require.Equal(t, a.Names(), b.Names())
		for _, name := range a.Names() {
			ea, _ := a.Lookup(name)
			eb, _ := b.Lookup(name)
			if diff := cmp.Diff(ea, eb); diff != "" {
				t.Errorf("entity %s differs after round trip (-first +second):\n%s", name, diff)
			}
			require.Equal(t, a.ConnectionsOf(name), b.ConnectionsOf(name))
		}

		again, err := Canonical(second)
		require.NoError(t, err)
		require.Equal(t, string(canonical), string(again), "canonical form must be a fixed point")
	}
}

func TestJSONCodecExport(t *testing.T) {
	model, err := ParseValley(scenarioJSON)
	require.NoError(t, err)

	var buf bytes.Buffer
	require.NoError(t, NewJSONCodec().Export(model, &buf))
	require.True(t, strings.HasPrefix(buf.String(), "{\n  \"junctions\": []"))

	reparsed, err := NewJSONCodec().Parse(&buf)
	require.NoError(t, err)
	require.Equal(t, 2, reparsed.Len())
}

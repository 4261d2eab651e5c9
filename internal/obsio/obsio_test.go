package obsio

import (
	"bytes"
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/signalsfoundry/gnss-prepro/model"
)

const sampleObs = `# SENTUS OBS
C      0 G01   35.120  120.500  21000000.100  21000003.200  45.00  41.00
C      0 E11   60.000   10.000  24000000.000  24000002.000  47.00  44.00
P      0 G01  110355000.000  85991000.000
P      0 E11  126120000.000  94180000.000

C      1 G01   35.130  120.510  21000100.100  21000103.200  45.10  41.10
P      1 G01  110355525.500  85991409.500
`

func TestReaderGroupsEpochs(t *testing.T) {
	r := NewReader(strings.NewReader(sampleObs))

	ep, err := r.ReadEpoch()
	require.NoError(t, err)
	assert.Equal(t, 0.0, ep.SoD)
	require.Len(t, ep.Codes, 2)
	require.Len(t, ep.Phases, 2)
	assert.Equal(t, model.CodeRecord{
		Label: "G01", SoD: 0, Elevation: 35.12, Azimuth: 120.5,
		C1: 21000000.1, C2: 21000003.2, S1: 45, S2: 41,
	}, ep.Codes[0])
	assert.Equal(t, "E11", ep.Phases[1].Label)
	assert.Equal(t, 94180000.0, ep.Phases[1].L2)

	ep, err = r.ReadEpoch()
	require.NoError(t, err)
	assert.Equal(t, 1.0, ep.SoD)
	assert.Len(t, ep.Codes, 1)
	assert.Len(t, ep.Phases, 1)

	_, err = r.ReadEpoch()
	assert.ErrorIs(t, err, io.EOF)
	_, err = r.ReadEpoch()
	assert.ErrorIs(t, err, io.EOF)
}

func TestReaderRejectsMalformedLines(t *testing.T) {
	cases := map[string]string{
		"short code":   "C 0 G01 35 120 1 2 3\n",
		"bad number":   "P 0 G01 abc 2\n",
		"unknown kind": "X 0 G01 1 2\n",
	}
	for name, input := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := NewReader(strings.NewReader(input)).ReadEpoch()
			require.Error(t, err)
			assert.True(t, errors.Is(err, ErrMalformed), "err = %v", err)
			assert.Contains(t, err.Error(), "line 1")
		})
	}
}

func TestReaderEmptyInput(t *testing.T) {
	_, err := NewReader(strings.NewReader("# only a comment\n\n")).ReadEpoch()
	assert.ErrorIs(t, err, io.EOF)
}

func TestObsWriterRoundTrip(t *testing.T) {
	in := &model.Epoch{
		SoD: 3600,
		Codes: []model.CodeRecord{
			{Label: "G07", SoD: 3600, Elevation: 12.5, Azimuth: 300.25, C1: 22000000.125, C2: 22000004.5, S1: 38.5, S2: 33},
		},
		Phases: []model.PhaseRecord{
			{Label: "G07", SoD: 3600, L1: 115610000.25, L2: 90085000.75},
		},
	}
	var buf bytes.Buffer
	w := NewObsWriter(&buf)
	require.NoError(t, w.WriteEpoch(in))
	require.NoError(t, w.Flush())

	out, err := NewReader(&buf).ReadEpoch()
	require.NoError(t, err)
	assert.Equal(t, in, out)
}

func TestPreproWriterFormat(t *testing.T) {
	res := model.NewEpochResult(30, 1)
	obs := model.NewObservation(model.RawSample{Label: "E05", SoD: 30, Elevation: 45.5, Azimuth: 90, C1: 2.3e7, C2: 2.3e7 + 2, S1: 44, S2: 40})
	obs.L1Meters, obs.L2Meters = 2.3e7-1, 2.3e7+1
	obs.IFCode, obs.IFPhase = 2.3e7-3, 2.3e7-4
	obs.SmoothIF = 2.3e7 - 3.5
	obs.Reject(model.RejectMinSNRF2)
	res.Add(obs)

	var buf bytes.Buffer
	w := NewPreproWriter(&buf)
	require.NoError(t, w.WriteEpoch(context.Background(), res))
	require.NoError(t, w.WriteEpoch(context.Background(), res))
	require.NoError(t, w.Flush())

	lines := strings.Split(strings.TrimRight(buf.String(), "\n"), "\n")
	require.Len(t, lines, 3, "header written once")
	assert.True(t, strings.HasPrefix(lines[0], "#"))

	fields := strings.Fields(lines[1])
	require.Len(t, fields, 20)
	assert.Equal(t, []string{"30", "E05", "45.500", "90.000", "0", "4", "0"}, fields[:7])
	assert.Equal(t, "22999999.000", fields[9])
	assert.Equal(t, "NaN", fields[13])
	assert.Equal(t, "22999996.500", fields[19])
	assert.Len(t, strings.Fields(lines[0][1:]), 20)
}

func TestCreatePreproFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "OUT", "PPVE", PreproFileName("s6an", time.Date(2024, 1, 11, 0, 0, 0, 0, time.UTC)))
	pf, err := CreatePreproFile(path)
	require.NoError(t, err)

	res := model.NewEpochResult(0, 1)
	res.Add(model.NewObservation(model.RawSample{Label: "G01"}))
	require.NoError(t, pf.WriteEpoch(context.Background(), res))
	require.NoError(t, pf.Close())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, 2, strings.Count(string(data), "\n"))
	assert.True(t, strings.HasSuffix(path, "PREPRO_OBS_s6an_Y24D011.dat"))
}

func TestFileNames(t *testing.T) {
	day := time.Date(2023, 12, 31, 0, 0, 0, 0, time.UTC)
	assert.Equal(t, "OBS_s6an_Y23D365.dat", ObsFileName("s6an", day))
	assert.Equal(t, "PREPRO_OBS_s6an_Y23D365.dat", PreproFileName("s6an", day))
}
